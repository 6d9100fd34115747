package main

import (
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"runtime/pprof"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/zeldovich/go-rpcgen/rfc1057"
	"go.uber.org/zap"

	"github.com/mit-pdos/go-journal/util"
	"github.com/mit-pdos/go-lmfs/blkdev"
	"github.com/mit-pdos/go-lmfs/blkrpc"
	"github.com/mit-pdos/go-lmfs/config"
	"github.com/mit-pdos/go-lmfs/util/logger"
	"github.com/mit-pdos/go-lmfs/util/timed_dev"
)

func main() {
	cpuprofile := flag.String("cpuprofile", "", "write cpu profile to file")

	var cfgFile string
	flag.StringVar(&cfgFile, "config", "", "YAML configuration file")

	var sizeMegabytes uint64
	flag.Uint64Var(&sizeMegabytes, "size", 0, "size of device (in MB)")

	var diskfile string
	flag.StringVar(&diskfile, "disk", "", "disk image (empty for MemDisk)")

	var create bool
	flag.BoolVar(&create, "create", false, "format the disk image")

	var listen string
	flag.StringVar(&listen, "listen", "", "address to serve the device on")

	var dumpStats bool
	flag.BoolVar(&dumpStats, "stats", false, "dump stats to stderr at end")

	flag.Uint64Var(&util.Debug, "debug", 0, "debug level (higher is more verbose)")
	flag.Parse()

	cfg, err := config.Load(cfgFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "size":
			cfg.Device.SizeMB = sizeMegabytes
		case "disk":
			cfg.Device.Image = diskfile
		case "create":
			cfg.Device.Create = create
		case "listen":
			cfg.Server.Listen = listen
		}
	})
	if cfg.Device.Remote != "" {
		fmt.Fprintf(os.Stderr, "lmfs-blkd serves a local device; remote %s not allowed\n",
			cfg.Device.Remote)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.Log, "lmfs-blkd")
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	if *cpuprofile != "" {
		f, err := os.Create(*cpuprofile)
		if err != nil {
			log.Fatal("could not create profile", zap.Error(err))
		}
		pprof.StartCPUProfile(f)
		defer pprof.StopCPUProfile()
	}

	d, err := cfg.OpenDevice()
	if err != nil {
		log.Fatal("could not open device", zap.Error(err))
	}
	bsize := cfg.Cache.BlockSize
	if img, ok := d.(*blkdev.Disk); ok {
		l := img.Label()
		bsize = l.BlockSize
		log.Info("image",
			zap.String("path", cfg.Device.Image),
			zap.String("id", l.ID.String()),
			zap.Uint64("block_size", l.BlockSize),
			zap.Uint64("disk_blocks", l.NBlocks))
	}
	if dumpStats {
		d = timed_dev.New(d)
	}
	defer func() {
		if err := d.Sync(); err != nil {
			log.Error("sync", zap.Error(err))
		}
		d.Close()
	}()

	listener, err := net.Listen("tcp", cfg.Server.Listen)
	if err != nil {
		log.Fatal("listen", zap.Error(err))
	}

	srv := rfc1057.MakeServer()
	server := blkrpc.Register(srv, d, bsize)

	if cfg.Server.MetricsListen != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		go func() {
			err := http.ListenAndServe(cfg.Server.MetricsListen, mux)
			log.Error("metrics server", zap.Error(err))
		}()
	}

	interruptSig := make(chan os.Signal, 1)
	shutdown := false
	signal.Notify(interruptSig, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-interruptSig
		shutdown = true
		listener.Close()
		if dumpStats {
			server.WriteOpStats(os.Stderr)
			d.(*timed_dev.Device).WriteStats(os.Stderr)
		}
	}()

	if dumpStats {
		statSig := make(chan os.Signal, 1)
		signal.Notify(statSig, syscall.SIGUSR1)
		go func() {
			for {
				<-statSig
				server.WriteOpStats(os.Stderr)
				server.ResetOpStats()
				d := d.(*timed_dev.Device)
				d.WriteStats(os.Stderr)
				d.ResetStats()
			}
		}()
	}

	log.Info("serving",
		zap.String("addr", listener.Addr().String()),
		zap.Uint64("size", d.Size()),
		zap.Uint64("block_size", bsize))
	for {
		conn, err := listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) && shutdown {
				util.DPrintf(1, "Shutting down server")
				break
			}
			log.Error("accept", zap.Error(err))
			break
		}

		go srv.Run(conn)
	}
}
