package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"runtime/pprof"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/mit-pdos/go-journal/util"
	"github.com/mit-pdos/go-lmfs/bcache"
	"github.com/mit-pdos/go-lmfs/blkdev"
	"github.com/mit-pdos/go-lmfs/common"
	"github.com/mit-pdos/go-lmfs/config"
	"github.com/mit-pdos/go-lmfs/metrics"
	"github.com/mit-pdos/go-lmfs/syncer"
	"github.com/mit-pdos/go-lmfs/util/logger"
	"github.com/mit-pdos/go-lmfs/util/timed_dev"
)

type workload struct {
	blocks   uint64  // working set, in blocks
	seq      bool    // sequential rather than uniform random
	writes   float64 // fraction of operations that dirty the block
	oneShot  float64 // fraction of puts hinted ONE_SHOT
	prefetch int     // read-ahead window for sequential runs
}

type result struct {
	iters  int
	errors int
}

func client(sh *bcache.Shared, w workload, lim *rate.Limiter, duration time.Duration,
	seed int64) result {
	rnd := rand.New(rand.NewSource(seed))
	var r result
	var next common.Bnum
	start := time.Now()
	for time.Since(start) < duration {
		if lim != nil {
			if err := lim.Wait(context.Background()); err != nil {
				break
			}
		}
		bn := common.Bnum(rnd.Int63n(int64(w.blocks)))
		if w.seq {
			bn = next
			next = (next + 1) % common.Bnum(w.blocks)
			if w.prefetch > 0 && uint64(bn)%uint64(w.prefetch) == 0 {
				var ra []common.Bnum
				for i := 1; i <= w.prefetch && uint64(bn)+uint64(i) < w.blocks; i++ {
					ra = append(ra, bn+common.Bnum(i))
				}
				if err := sh.Prefetch(0, ra); err != nil {
					r.errors++
				}
			}
		}
		write := rnd.Float64() < w.writes
		mode := bcache.NORMAL
		if write && rnd.Intn(2) == 0 {
			mode = bcache.NO_READ
		}
		b, err := sh.GetBlock(0, bn, mode)
		if err != nil {
			r.errors++
			continue
		}
		if write {
			sh.WriteAt(b, []byte{byte(r.iters)}, 0)
		}
		var hint bcache.Hint
		if rnd.Float64() < w.oneShot {
			hint = bcache.ONE_SHOT
		}
		if err := sh.PutBlockHint(b, hint); err != nil {
			r.errors++
		}
		r.iters++
	}
	return r
}

func run(sh *bcache.Shared, w workload, lim *rate.Limiter, duration time.Duration,
	nt int) (elapsed time.Duration, iters int, errs int) {
	start := time.Now()
	count := make(chan result)
	for i := 0; i < nt; i++ {
		seed := int64(i)
		go func() {
			count <- client(sh, w, lim, duration, seed)
		}()
	}
	for i := 0; i < nt; i++ {
		r := <-count
		iters += r.iters
		errs += r.errors
	}
	elapsed = time.Since(start)
	return
}

func main() {
	cpuprofile := flag.String("cpuprofile", "", "write cpu profile to file")

	var cfgFile string
	flag.StringVar(&cfgFile, "config", "", "YAML configuration file")

	var duration time.Duration
	flag.DurationVar(&duration, "benchtime", 10*time.Second, "time to run the benchmark for")

	var nt int
	flag.IntVar(&nt, "threads", 1, "number of client goroutines")

	var opsPerSec float64
	flag.Float64Var(&opsPerSec, "rate", 0, "operations per second across all clients (0 for unlimited)")

	var w workload
	flag.Uint64Var(&w.blocks, "blocks", 4096, "working set in blocks")
	flag.BoolVar(&w.seq, "seq", false, "sequential access")
	flag.Float64Var(&w.writes, "writes", 0.3, "fraction of operations that write")
	flag.Float64Var(&w.oneShot, "oneshot", 0, "fraction of puts hinted one-shot")
	flag.IntVar(&w.prefetch, "prefetch", 0, "read-ahead window for sequential access")

	var buffers uint64
	flag.Uint64Var(&buffers, "buffers", 0, "buffers in the pool (0 for the configured count)")

	flag.Uint64Var(&util.Debug, "debug", 0, "debug level (higher is more verbose)")
	flag.Parse()

	cfg, err := config.Load(cfgFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
	if buffers != 0 {
		cfg.Cache.Buffers = buffers
	}
	log, err := logger.New(cfg.Log, "lmfs-bench")
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
	nblocks := d.Size() / cfg.Cache.BlockSize
	if w.blocks == 0 || w.blocks > nblocks {
		w.blocks = nblocks
	}
	td := timed_dev.New(d)
	tbl := blkdev.NewTable()
	if err := tbl.Attach(0, td); err != nil {
		log.Fatal("attach", zap.Error(err))
	}
	defer tbl.Close()

	p, err := bcache.New(tbl, cfg.Bcache())
	if err != nil {
		log.Fatal("bcache", zap.Error(err))
	}
	sh := bcache.MkShared(p)

	if cfg.Server.MetricsListen != "" {
		reg := prometheus.NewRegistry()
		reg.MustRegister(metrics.NewCollector(sh))
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		go func() {
			err := http.ListenAndServe(cfg.Server.MetricsListen, mux)
			if !errors.Is(err, http.ErrServerClosed) {
				log.Error("metrics server", zap.Error(err))
			}
		}()
	}

	var s *syncer.Syncer
	if cfg.Sync.Interval > 0 {
		s = syncer.New(sh, cfg.Sync.Interval)
		s.Start()
	}

	var lim *rate.Limiter
	if opsPerSec > 0 {
		lim = rate.NewLimiter(rate.Limit(opsPerSec), nt)
	}

	log.Info("starting",
		zap.Uint64("buffers", cfg.Cache.Buffers),
		zap.Uint64("block_size", cfg.Cache.BlockSize),
		zap.Uint64("blocks", w.blocks),
		zap.Int("threads", nt))
	elapsed, iters, errs := run(sh, w, lim, duration, nt)

	if s != nil {
		if err := s.Shutdown(); err != nil {
			log.Error("final sync", zap.Error(err))
		}
	} else if err := sh.FlushAll(); err != nil {
		log.Error("flush", zap.Error(err))
	}
	if err := tbl.Sync(0); err != nil {
		log.Error("device sync", zap.Error(err))
	}

	fmt.Printf("lmfs-bench: %0.1f ops/s (%d ops, %d errors, %v)\n",
		float64(iters)/elapsed.Seconds(), iters, errs, elapsed.Round(time.Millisecond))
	sh.Stats().WriteTable(os.Stdout)
	sh.WriteOpStats(os.Stdout)
	td.WriteStats(os.Stdout)
}
