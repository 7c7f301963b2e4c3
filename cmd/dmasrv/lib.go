package main

import (
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/theckman/yacspin"
	"golang.org/x/time/rate"

	"github.com/nasa-jpl/golab/fpgadma"
	"github.com/nasa-jpl/golab/generichttp"
	"github.com/nasa-jpl/golab/generichttp/dma"
	"github.com/nasa-jpl/golab/server/middleware/locker"
	"github.com/nasa-jpl/golab/util"
)

// Config is the configuration of dmasrv
type Config struct {
	// Addr is the address to listen at
	Addr string `koanf:"Addr" yaml:"Addr"`

	// Root is the URL the DMA routes are mounted at, e.g. /dma
	Root string `koanf:"Root" yaml:"Root"`

	// Device is the path of the driver's character device
	Device string `koanf:"Device" yaml:"Device"`

	// Mock serves an in-memory board instead of Device
	Mock bool `koanf:"Mock" yaml:"Mock"`

	// Layout is the path of a descriptor layout file, see fpgadma.LoadLayout
	Layout string `koanf:"Layout" yaml:"Layout"`

	// AutoRun runs Layout at startup
	AutoRun bool `koanf:"AutoRun" yaml:"AutoRun"`

	// Rx selects the receive direction for AutoRun, transmit otherwise
	Rx bool `koanf:"Rx" yaml:"Rx"`

	// OpenTimeout is how long to keep retrying to open Device, seconds
	OpenTimeout float64 `koanf:"OpenTimeout" yaml:"OpenTimeout"`

	// RegisterRate bounds the raw register routes, requests per second.
	// Zero or less is unbounded.
	RegisterRate float64 `koanf:"RegisterRate" yaml:"RegisterRate"`

	// RegisterBurst is the burst allowed above RegisterRate
	RegisterBurst int `koanf:"RegisterBurst" yaml:"RegisterBurst"`
}

// defaultConfig is loaded before the config file
func defaultConfig() Config {
	return Config{
		Addr:          ":8000",
		Root:          "/dma",
		Device:        "/dev/fpga_dma",
		OpenTimeout:   10,
		RegisterRate:  200,
		RegisterBurst: 20,
	}
}

// openSession opens the device, retrying with an exponential backoff while
// the node is missing (the driver may still be loading).  A spinner is shown
// while waiting.
func openSession(c Config) (*fpgadma.Session, error) {
	if c.Mock {
		be := fpgadma.NewMockBackend()
		prims := fpgadma.NewMockPrimitives()
		be.Events = prims
		log.Println("serving a mock board, no hardware will be touched")
		return fpgadma.New(be, fpgadma.WithPrimitives(prims)), nil
	}

	spinner, err := yacspin.New(yacspin.Config{
		Frequency:         100 * time.Millisecond,
		CharSet:           yacspin.CharSets[14],
		Suffix:            " opening " + c.Device,
		StopCharacter:     "✓",
		StopFailCharacter: "✗",
	})
	if err == nil {
		spinner.Start()
	}

	var s *fpgadma.Session
	attempts := 0
	op := func() error {
		attempts++
		var err error
		s, err = fpgadma.Open(c.Device)
		if err != nil && spinner != nil {
			spinner.Message(fmt.Sprintf("attempt %d", attempts))
		}
		return err
	}
	err = backoff.Retry(op, &backoff.ExponentialBackOff{
		InitialInterval:     50 * time.Millisecond,
		RandomizationFactor: 0.,
		Multiplier:          2.,
		MaxInterval:         2 * time.Second,
		MaxElapsedTime:      util.SecsToDuration(c.OpenTimeout),
		Clock:               backoff.SystemClock})
	if spinner != nil {
		if err != nil {
			spinner.StopFail()
		} else {
			spinner.Stop()
		}
	}
	return s, err
}

// discover runs the bring-up handshake and, if configured, the layout
func discover(s *fpgadma.Session, c Config) (*fpgadma.Topology, error) {
	topo, err := s.Discover()
	if err != nil {
		if topo != nil && topo.Notifications != nil {
			topo.Notifications.Close()
		}
		return nil, err
	}
	l := topo.Limits
	v, err := s.FirmwareVersion()
	if err != nil {
		return topo, err
	}
	log.Printf("board up: firmware %#x, %d channels × %d descriptors, %d byte buffers\n",
		v, l.MaxChannels, l.MaxDescriptors, l.MaxDescriptorBufferSize)

	if !c.AutoRun || c.Layout == "" {
		return topo, nil
	}
	cfg, err := fpgadma.LoadLayout(c.Layout)
	if err != nil {
		return topo, err
	}
	p := fpgadma.BuildPlan(cfg, topo.Map, l)
	if err = s.Run(cfg, topo.Map, c.Rx); err != nil {
		return topo, err
	}
	log.Printf("running %s on channels %s, plan %08x\n", c.Layout, util.IntSliceToCSV(p.Channels), p.Checksum())
	return topo, nil
}

// BuildMux mounts the DMA routes, behind a locker, on a logging chi router.
// The root serves /endpoints listing every route.
func BuildMux(s *fpgadma.Session, topo *fpgadma.Topology, c Config) chi.Router {
	root := chi.NewRouter()
	root.Use(middleware.Logger)

	var lim *rate.Limiter
	if c.RegisterRate > 0 {
		lim = rate.NewLimiter(rate.Limit(c.RegisterRate), c.RegisterBurst)
	}
	httper := dma.NewHTTPWrapper(s, topo, lim)
	lock := locker.New()
	locker.Inject(httper, lock)

	stem := generichttp.SubMuxSanitize(c.Root)
	supergraph := map[string][]string{stem: httper.RT().Endpoints()}

	r := chi.NewRouter()
	r.Use(lock.Check)
	httper.RT().Bind(r)
	root.Mount(stem, r)
	root.Get("/endpoints", func(w http.ResponseWriter, r *http.Request) {
		generichttp.ReplyJSON(w, supergraph)
	})
	return root
}
