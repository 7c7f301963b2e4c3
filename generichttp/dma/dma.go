// Package dma exposes an fpgadma session over HTTP
package dma

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"go/types"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"github.com/nasa-jpl/golab/fpgadma"
	"github.com/nasa-jpl/golab/generichttp"
)

// DefaultWaitTimeout bounds /wait when the request does not
const DefaultWaitTimeout = time.Second

// RegisterT is the body of the register routes
type RegisterT struct {
	Bar    uint8  `json:"bar"`
	Offset uint64 `json:"offset"`
	Value  uint32 `json:"value"`
}

// ChannelT is the body of the channel routes
type ChannelT struct {
	Channel    int  `json:"channel"`
	Descriptor int  `json:"descriptor"`
	Start      bool `json:"start"`
	Cyclic     bool `json:"cyclic"`

	// TimeoutMs bounds /wait, DefaultWaitTimeout if zero
	TimeoutMs int `json:"timeout_ms"`
}

// GlobalT is the body of /global
type GlobalT struct {
	Start bool `json:"start"`
	Rx    bool `json:"rx"`
}

// RunT is the body of /run
type RunT struct {
	Layout fpgadma.GlobalStartConfig `json:"layout"`
	Rx     bool                      `json:"rx"`
}

// PlanT is the reply of /plan
type PlanT struct {
	fpgadma.Plan
	Checksum uint32 `json:"checksum"`
}

// CountT is the reply of /wait
type CountT struct {
	Count uint64 `json:"count"`
}

// HTTPWrapper wraps a discovered session in an HTTP route table
type HTTPWrapper struct {
	// Sess is the underlying session
	Sess *fpgadma.Session

	// Topo is the result of discovery on Sess
	Topo *fpgadma.Topology

	// RouteTable maps URLs to functions
	RouteTable generichttp.RouteTable

	reg *rate.Limiter
}

// NewHTTPWrapper returns a new HTTP wrapper around a session.
// lim bounds the raw register routes; nil means no bound.
func NewHTTPWrapper(s *fpgadma.Session, topo *fpgadma.Topology, lim *rate.Limiter) HTTPWrapper {
	if lim == nil {
		lim = rate.NewLimiter(rate.Inf, 0)
	}
	h := HTTPWrapper{Sess: s, Topo: topo, reg: lim}
	h.RouteTable = generichttp.RouteTable{
		generichttp.MethodPath{Method: http.MethodGet, Path: "/limits"}:           h.GetLimits,
		generichttp.MethodPath{Method: http.MethodGet, Path: "/memory-map"}:       h.GetMemoryMap,
		generichttp.MethodPath{Method: http.MethodGet, Path: "/notifications"}:    h.GetNotifications,
		generichttp.MethodPath{Method: http.MethodGet, Path: "/status"}:           generichttp.GetUint(s.Status),
		generichttp.MethodPath{Method: http.MethodGet, Path: "/version"}:          generichttp.GetString(h.version),
		generichttp.MethodPath{Method: http.MethodGet, Path: "/register"}:         h.limited(h.GetRegister),
		generichttp.MethodPath{Method: http.MethodPost, Path: "/register"}:        h.limited(h.SetRegister),
		generichttp.MethodPath{Method: http.MethodPost, Path: "/channel"}:         h.SetChannel,
		generichttp.MethodPath{Method: http.MethodPost, Path: "/global"}:          h.SetGlobal,
		generichttp.MethodPath{Method: http.MethodPost, Path: "/interrupts"}:      generichttp.SetBool(s.SetInterrupts),
		generichttp.MethodPath{Method: http.MethodPost, Path: "/configure"}:       h.Configure,
		generichttp.MethodPath{Method: http.MethodPost, Path: "/plan"}:            h.Plan,
		generichttp.MethodPath{Method: http.MethodPost, Path: "/run"}:             h.Run,
		generichttp.MethodPath{Method: http.MethodPost, Path: "/stop-all"}:        generichttp.Action(s.StopAll),
		generichttp.MethodPath{Method: http.MethodGet, Path: "/descriptor-index"}: h.GetDescriptorIndex,
		generichttp.MethodPath{Method: http.MethodPost, Path: "/wait"}:            h.Wait,
	}
	return h
}

// RT satisfies the generichttp.HTTPer interface
func (h HTTPWrapper) RT() generichttp.RouteTable {
	return h.RouteTable
}

// statusOf maps a session error to an HTTP status code
func statusOf(err error) int {
	switch {
	case errors.Is(err, fpgadma.ErrInvalidChannel):
		return http.StatusBadRequest
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusRequestTimeout
	default:
		return http.StatusInternalServerError
	}
}

func (h HTTPWrapper) limited(fcn http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !h.reg.Allow() {
			http.Error(w, "register access rate exceeded", http.StatusTooManyRequests)
			return
		}
		fcn(w, r)
	}
}

func (h HTTPWrapper) version() (string, error) {
	v, err := h.Sess.FirmwareVersion()
	return fmt.Sprintf("%#x", v), err
}

// memoryMap prefers the discovered map
func (h HTTPWrapper) memoryMap() (*fpgadma.MemoryMap, error) {
	if h.Topo != nil && h.Topo.Map != nil {
		return h.Topo.Map, nil
	}
	return h.Sess.QueryMemoryMap()
}

func decodeConfig(w http.ResponseWriter, r *http.Request) (fpgadma.GlobalStartConfig, bool) {
	cfg := fpgadma.GlobalStartConfig{}
	err := json.NewDecoder(r.Body).Decode(&cfg)
	defer r.Body.Close()
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return cfg, false
	}
	return cfg, true
}

// GetLimits replies with the limits of the board
func (h HTTPWrapper) GetLimits(w http.ResponseWriter, r *http.Request) {
	l, err := h.Sess.QueryLimits()
	if err != nil {
		http.Error(w, err.Error(), statusOf(err))
		return
	}
	generichttp.ReplyJSON(w, l)
}

// GetMemoryMap replies with the buffer of every channel/descriptor pair
func (h HTTPWrapper) GetMemoryMap(w http.ResponseWriter, r *http.Request) {
	m, err := h.memoryMap()
	if err != nil {
		http.Error(w, err.Error(), statusOf(err))
		return
	}
	generichttp.ReplyJSON(w, m)
}

// GetNotifications replies with the handle table reported by the driver
func (h HTTPWrapper) GetNotifications(w http.ResponseWriter, r *http.Request) {
	if h.Topo == nil || h.Topo.Notifications == nil {
		http.Error(w, "notifications have not been established", http.StatusConflict)
		return
	}
	generichttp.ReplyJSON(w, h.Topo.Notifications.Table())
}

// queryUint parses the query parameter key as an unsigned integer of the
// given bit size; decimal, 0x hex and 0o octal are accepted.  A missing
// parameter is def when required is false.
func queryUint(r *http.Request, key string, bits int, required bool, def uint64) (uint64, error) {
	str := r.URL.Query().Get(key)
	if str == "" {
		if required {
			return 0, fmt.Errorf("query parameter %q is required", key)
		}
		return def, nil
	}
	v, err := strconv.ParseUint(str, 0, bits)
	if err != nil {
		return 0, fmt.Errorf("query parameter %q: %w", key, err)
	}
	return v, nil
}

// GetRegister reads the register named by the bar and offset query
// parameters, e.g. /register?bar=0&offset=0x2c.  bar defaults to 0.
func (h HTTPWrapper) GetRegister(w http.ResponseWriter, r *http.Request) {
	bar, err := queryUint(r, "bar", 8, false, 0)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	offset, err := queryUint(r, "offset", 64, true, 0)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	v, err := h.Sess.ReadRegister(uint8(bar), offset)
	if err != nil {
		http.Error(w, err.Error(), statusOf(err))
		return
	}
	hp := generichttp.HumanPayload{T: types.Uint32, Uint: v}
	hp.EncodeAndRespond(w, r)
}

// SetRegister writes {bar, offset, value} from the body
func (h HTTPWrapper) SetRegister(w http.ResponseWriter, r *http.Request) {
	reg := RegisterT{}
	err := json.NewDecoder(r.Body).Decode(&reg)
	defer r.Body.Close()
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	err = h.Sess.WriteRegister(reg.Bar, reg.Offset, reg.Value)
	if err != nil {
		http.Error(w, err.Error(), statusOf(err))
		return
	}
	w.WriteHeader(http.StatusOK)
}

// SetChannel starts or stops the channel of {channel, start, cyclic}
func (h HTTPWrapper) SetChannel(w http.ResponseWriter, r *http.Request) {
	ch := ChannelT{}
	err := json.NewDecoder(r.Body).Decode(&ch)
	defer r.Body.Close()
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	err = h.Sess.SetChannelState(ch.Channel, ch.Start, ch.Cyclic)
	if err != nil {
		http.Error(w, err.Error(), statusOf(err))
		return
	}
	w.WriteHeader(http.StatusOK)
}

// SetGlobal enables or disables a direction per {start, rx}
func (h HTTPWrapper) SetGlobal(w http.ResponseWriter, r *http.Request) {
	g := GlobalT{}
	err := json.NewDecoder(r.Body).Decode(&g)
	defer r.Body.Close()
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	err = h.Sess.SetGlobalState(g.Start, g.Rx)
	if err != nil {
		http.Error(w, err.Error(), statusOf(err))
		return
	}
	w.WriteHeader(http.StatusOK)
}

// Configure programs the descriptor table from a GlobalStartConfig body
func (h HTTPWrapper) Configure(w http.ResponseWriter, r *http.Request) {
	cfg, ok := decodeConfig(w, r)
	if !ok {
		return
	}
	m, err := h.memoryMap()
	if err == nil {
		err = h.Sess.Configure(cfg, m)
	}
	if err != nil {
		http.Error(w, err.Error(), statusOf(err))
		return
	}
	w.WriteHeader(http.StatusOK)
}

// Plan replies with the register traffic Configure would produce, without
// touching the hardware
func (h HTTPWrapper) Plan(w http.ResponseWriter, r *http.Request) {
	cfg, ok := decodeConfig(w, r)
	if !ok {
		return
	}
	m, err := h.memoryMap()
	if err != nil {
		http.Error(w, err.Error(), statusOf(err))
		return
	}
	l, err := h.Sess.QueryLimits()
	if err != nil {
		http.Error(w, err.Error(), statusOf(err))
		return
	}
	p := fpgadma.BuildPlan(cfg, m, l)
	generichttp.ReplyJSON(w, PlanT{Plan: p, Checksum: p.Checksum()})
}

// Run enables a direction, programs the layout and starts its channels
func (h HTTPWrapper) Run(w http.ResponseWriter, r *http.Request) {
	run := RunT{}
	err := json.NewDecoder(r.Body).Decode(&run)
	defer r.Body.Close()
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	m, err := h.memoryMap()
	if err == nil {
		err = h.Sess.Run(run.Layout, m, run.Rx)
	}
	if err != nil {
		http.Error(w, err.Error(), statusOf(err))
		return
	}
	w.WriteHeader(http.StatusOK)
}

// GetDescriptorIndex replies with the descriptor the channel query
// parameter is working on, e.g. /descriptor-index?channel=3
func (h HTTPWrapper) GetDescriptorIndex(w http.ResponseWriter, r *http.Request) {
	ch, err := queryUint(r, "channel", 31, true, 0)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	idx, err := h.Sess.DescriptorIndex(int(ch))
	if err != nil {
		http.Error(w, err.Error(), statusOf(err))
		return
	}
	hp := generichttp.HumanPayload{T: types.Uint32, Uint: idx}
	hp.EncodeAndRespond(w, r)
}

// Wait blocks until {channel, descriptor} completes or timeout_ms passes,
// and replies with the number of completions
func (h HTTPWrapper) Wait(w http.ResponseWriter, r *http.Request) {
	ch := ChannelT{}
	err := json.NewDecoder(r.Body).Decode(&ch)
	defer r.Body.Close()
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if h.Topo == nil || h.Topo.Notifications == nil {
		http.Error(w, "notifications have not been established", http.StatusConflict)
		return
	}
	timeout := DefaultWaitTimeout
	if ch.TimeoutMs > 0 {
		timeout = time.Duration(ch.TimeoutMs) * time.Millisecond
	}
	ctx, cancel := context.WithTimeout(r.Context(), timeout)
	defer cancel()
	n, err := h.Topo.Notifications.Wait(ctx, ch.Channel, ch.Descriptor)
	if err != nil {
		http.Error(w, err.Error(), statusOf(err))
		return
	}
	generichttp.ReplyJSON(w, CountT{Count: n})
}
