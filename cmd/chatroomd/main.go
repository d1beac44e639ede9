// Command chatroomd is the chat server daemon: it parses the CLI contract,
// builds a listening socket through internal/netsetup, and drives
// internal/reactor.Reactor until SIGINT/SIGTERM.
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	_ "net/http/pprof"
	"os"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"github.com/urfave/cli"

	"github.com/aegistudio/chatroom/internal/chatcolor"
	"github.com/aegistudio/chatroom/internal/chatproto"
	"github.com/aegistudio/chatroom/internal/chatstats"
	"github.com/aegistudio/chatroom/internal/config"
	"github.com/aegistudio/chatroom/internal/netsetup"
	"github.com/aegistudio/chatroom/internal/reactor"
	"github.com/aegistudio/chatroom/internal/wire"
)

// VERSION is populated via build flags when packaging official binaries.
var VERSION = "SELFBUILD"

// exit codes for daemon startup failures.
const (
	exitMissingPort     = 1
	exitPortNotInt      = 2
	exitBacklogNotInt   = 3
	exitSocketCreate    = 4
	exitBind            = 5
	exitListen          = 6
	exitSignalHandlerUp = 7
)

func main() {
	if VERSION == "SELFBUILD" {
		log.SetFlags(log.LstdFlags | log.Lshortfile)
	}

	myApp := cli.NewApp()
	myApp.Name = "chatroomd"
	myApp.Usage = "length-prefixed TCP chatroom server"
	myApp.Version = VERSION
	myApp.ArgsUsage = "<port> [<listen-backlog=10>]"
	myApp.Flags = []cli.Flag{
		cli.IntFlag{
			Name:  "maxpacket",
			Value: wire.DefaultMaxPacketSize,
			Usage: "largest steady-state packet accepted from a peer, in bytes",
		},
		cli.StringFlag{
			Name:  "log",
			Value: "",
			Usage: "specify a log file to output, default goes to stderr",
		},
		cli.BoolFlag{
			Name:  "quiet",
			Usage: "suppress join/leave/accept log lines",
		},
		cli.BoolFlag{
			Name:  "color",
			Usage: "colorize rejection/warning notices sent to clients",
		},
		cli.BoolFlag{
			Name:  "pprof",
			Usage: "start profiling server on :6060",
		},
		cli.StringFlag{
			Name:  "statslog",
			Value: "",
			Usage: "collect operational counters to file, aware of timeformat in golang, like: ./stats-20060102.log",
		},
		cli.IntFlag{
			Name:  "statsperiod",
			Value: 60,
			Usage: "stats collection period, in seconds",
		},
	}
	myApp.Action = run

	if err := myApp.Run(os.Args); err != nil {
		log.Printf("%+v\n", err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	if c.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "missing required argument: port")
		os.Exit(exitMissingPort)
	}

	port, err := strconv.Atoi(c.Args().Get(0))
	if err != nil {
		fmt.Fprintln(os.Stderr, "port must be an integer")
		os.Exit(exitPortNotInt)
	}

	backlog := netsetup.DefaultBacklog
	if c.NArg() >= 2 {
		backlog, err = strconv.Atoi(c.Args().Get(1))
		if err != nil {
			fmt.Fprintln(os.Stderr, "backlog must be an integer")
			os.Exit(exitBacklogNotInt)
		}
	}

	cfg := config.Config{
		Port:          port,
		Backlog:       backlog,
		MaxPacketSize: c.Int("maxpacket"),
		LogFile:       c.String("log"),
		Quiet:         c.Bool("quiet"),
		Color:         c.Bool("color"),
		Pprof:         c.Bool("pprof"),
		StatsLog:      c.String("statslog"),
		StatsPeriod:   c.Int("statsperiod"),
	}

	if cfg.LogFile != "" {
		f, err := os.OpenFile(cfg.LogFile, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
		if err != nil {
			return errors.Wrap(err, "open log file")
		}
		defer f.Close()
		log.SetOutput(f)
	}

	log.Println("version:", VERSION)
	log.Println("port:", cfg.Port)
	log.Println("backlog:", cfg.Backlog)
	log.Println("maxpacket:", cfg.MaxPacketSize)
	log.Println("quiet:", cfg.Quiet)
	log.Println("color:", cfg.Color)
	log.Println("pprof:", cfg.Pprof)
	log.Println("statslog:", cfg.StatsLog)

	// Go's net package folds socket creation, bind, and listen into one
	// call, so it cannot distinguish exit codes 4/5/6 the way raw BSD
	// sockets can; every failure here maps to 6, the last and most general
	// of the three. See DESIGN.md.
	listener, err := netsetup.Listen(cfg.Port, cfg.Backlog)
	if err != nil {
		log.Printf("%+v\n", err)
		os.Exit(exitListen)
	}
	log.Println("listening on:", listener.Addr())

	if cfg.Pprof {
		go http.ListenAndServe(":6060", nil)
	}

	var colorizer chatproto.Colorizer = chatproto.PlainColorizer()
	if cfg.Color {
		colorizer = chatcolor.New()
	}

	stats := &chatstats.Counters{}
	if cfg.StatsLog != "" {
		go chatstats.Logger(cfg.StatsLog, time.Duration(cfg.StatsPeriod)*time.Second, stats, func(err error) {
			log.Printf("statslog: %+v\n", err)
		})
	}

	r := reactor.New(listener, reactor.Options{
		Logger:        log.Default(),
		Colorizer:     colorizer,
		MaxPacketSize: cfg.MaxPacketSize,
		Quiet:         cfg.Quiet,
		Stats:         stats,
	})

	ctx, cancel := context.WithCancel(context.Background())
	// Go's signal.Ignore cannot fail, so exitSignalHandlerUp is unreachable
	// in this port; the constant is kept so the exit code table stays
	// complete and documented.
	_ = exitSignalHandlerUp
	reactor.InstallSignalHandling(cancel)

	if err := r.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
