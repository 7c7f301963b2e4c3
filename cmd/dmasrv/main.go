package main

import (
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/knadh/koanf"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"

	yml "gopkg.in/yaml.v2"

	"github.com/nasa-jpl/golab/fpgadma"
	"github.com/nasa-jpl/golab/util"
)

var (
	// Version is the version number.  Typically injected via ldflags with git build
	Version = "1"

	// ConfigFileName is what it sounds like
	ConfigFileName = "dmasrv.yml"

	// LayoutFileName is where mklayout writes
	LayoutFileName = "layout.yml"

	k = koanf.New(".")
)

func setupconfig() {
	k.Load(structs.Provider(defaultConfig(), "koanf"), nil)
	if err := k.Load(file.Provider(ConfigFileName), yaml.Parser()); err != nil {
		errtxt := err.Error()
		if !strings.Contains(errtxt, "no such") { // file missing, who cares
			log.Fatalf("error loading config: %v", err)
		}
	}
}

func loadconfig() Config {
	c := Config{}
	err := k.Unmarshal("", &c)
	if err != nil {
		log.Fatal(err)
	}
	return c
}

func root() {
	str := `dmasrv drives the DMA engine of a PCIe FPGA board and exposes it over HTTP.

Usage:
	dmasrv <command>

Commands:
	run
	help
	mkconf
	conf
	mklayout
	plan [layout.yml]
	version`
	fmt.Println(str)
}

func help() {
	str := `dmasrv is amenable to configuration via its .yaml file, dmasrv.yml in the
working directory.  "dmasrv mkconf" writes one with the defaults.  For a primer on
YAML, see https://yaml.org/start.html

Keys:
	Addr           address to listen at, ":8000"
	Root           URL the DMA routes are mounted at, "/dma"
	Device         character device of the driver
	Mock           serve an in-memory board instead of Device
	Layout         descriptor layout file, "dmasrv mklayout" writes an example
	AutoRun        program and start Layout at startup
	Rx             AutoRun the receive direction, else transmit
	OpenTimeout    seconds to keep retrying to open Device
	RegisterRate   raw register requests per second over HTTP, 0 is unbounded
	RegisterBurst  burst above RegisterRate

"dmasrv plan" prints the register traffic a layout produces against the
memory map of the board, without writing anything.  With Mock it works
without hardware.

Every route but /lock and /endpoints returns 423 while the board is locked
with POST /dma/lock {"bool": true}.`
	fmt.Println(str)
}

func mkconf() {
	c := loadconfig()
	f, err := os.Create(ConfigFileName)
	if err != nil {
		log.Fatal(err)
	}
	defer f.Close()
	err = yml.NewEncoder(f).Encode(c)
	if err != nil {
		log.Fatal(err)
	}
}

func printconf() {
	c := loadconfig()
	err := yml.NewEncoder(os.Stdout).Encode(c)
	if err != nil {
		log.Fatal(err)
	}
}

func mklayout() {
	f, err := os.Create(LayoutFileName)
	if err != nil {
		log.Fatal(err)
	}
	defer f.Close()
	desc := fpgadma.DescriptorStartConfig{BufferSize: 4096, InterruptEnable: 1}
	cfg := fpgadma.GlobalStartConfig{
		Channels: []fpgadma.ChannelStartConfig{
			{Descriptors: []fpgadma.DescriptorStartConfig{desc, desc}},
		},
	}
	cfg.Normalize()
	if err = fpgadma.EncodeLayout(f, cfg); err != nil {
		log.Fatal(err)
	}
}

func plan(args []string) {
	c := loadconfig()
	path := c.Layout
	if len(args) > 0 {
		path = args[0]
	}
	if path == "" {
		log.Fatal("no layout given and Layout is not configured")
	}
	cfg, err := fpgadma.LoadLayout(path)
	if err != nil {
		log.Fatal(err)
	}
	s, err := openSession(c)
	if err != nil {
		log.Fatal(err)
	}
	defer s.Close()
	l, err := s.QueryLimits()
	if err != nil {
		log.Fatal(err)
	}
	m, err := s.QueryMemoryMap()
	if err != nil {
		log.Fatal(err)
	}
	p := fpgadma.BuildPlan(cfg, m, l)
	for _, op := range p.Ops {
		fmt.Println(op)
	}
	for _, cl := range p.Clamped {
		fmt.Println("clamped:", cl)
	}
	fmt.Printf("channels %s, %d writes, checksum %08x\n", util.IntSliceToCSV(p.Channels), len(p.Writes()), p.Checksum())
}

func pversion() {
	fmt.Printf("dmasrv version %v, driver interface %#x\n", Version, fpgadma.DriverVersion)
}

func run() {
	c := loadconfig()
	s, err := openSession(c)
	if err != nil {
		log.Fatal(err)
	}
	topo, err := discover(s, c)
	if err != nil {
		s.Close()
		if topo != nil {
			topo.Notifications.Close()
		}
		log.Fatal(err)
	}
	mux := BuildMux(s, topo, c)

	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		if err := s.StopAll(); err != nil {
			log.Println("error stopping DMA", err)
		}
		s.Close()
		topo.Notifications.Close()
		os.Exit(0)
	}()
	log.Println("now listening for requests at ", c.Addr)
	log.Fatal(http.ListenAndServe(c.Addr, mux))
}

func main() {
	var cmd string
	args := os.Args
	if len(args) == 1 {
		root()
		return
	}
	setupconfig()
	cmd = args[1]
	cmd = strings.ToLower(cmd)
	switch cmd {
	case "help":
		help()
		return
	case "mkconf":
		mkconf()
		return
	case "conf":
		printconf()
		return
	case "mklayout":
		mklayout()
		return
	case "plan":
		plan(args[2:])
		return
	case "run":
		run()
		return
	case "version":
		pversion()
		return
	default:
		log.Fatal("unknown command")
	}
}
