package syncer

import (
	"sync"
	"time"

	"github.com/mit-pdos/go-journal/util"
)

// Flusher writes back every dirty block it caches.
type Flusher interface {
	FlushAll() error
}

// Syncer periodically flushes a cache, like the sync daemon of a
// file-system server. A failed flush is logged and retried on the next
// tick; the blocks involved stay dirty in the meantime.
type Syncer struct {
	mu       *sync.Mutex
	condShut *sync.Cond
	nthread  uint32
	shutdown bool
	stop     chan struct{}
	f        Flusher
	interval time.Duration
	runs     uint64
	failures uint64
}

func New(f Flusher, interval time.Duration) *Syncer {
	mu := new(sync.Mutex)
	return &Syncer{
		mu:       mu,
		condShut: sync.NewCond(mu),
		stop:     make(chan struct{}),
		f:        f,
		interval: interval,
	}
}

// Start launches the sync thread. It does nothing if the syncer has
// already been started or shut down.
func (s *Syncer) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.nthread > 0 || s.shutdown {
		return
	}
	util.DPrintf(1, "start sync thread, interval %v\n", s.interval)
	s.nthread = s.nthread + 1
	go func() { s.syncer() }()
}

func (s *Syncer) syncer() {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stop:
			util.DPrintf(1, "Syncer: stopping\n")
			s.mu.Lock()
			s.nthread = s.nthread - 1
			s.condShut.Signal()
			s.mu.Unlock()
			return
		case <-ticker.C:
			s.SyncNow()
		}
	}
}

// SyncNow flushes once from the calling goroutine.
func (s *Syncer) SyncNow() error {
	err := s.f.FlushAll()
	s.mu.Lock()
	s.runs++
	if err != nil {
		s.failures++
	}
	s.mu.Unlock()
	if err != nil {
		util.DPrintf(0, "Syncer: flush failed: %v\n", err)
	}
	return err
}

// Shutdown stops the sync thread, waits for it to exit, and flushes one
// last time.
func (s *Syncer) Shutdown() error {
	s.mu.Lock()
	if !s.shutdown {
		s.shutdown = true
		close(s.stop)
	}
	for s.nthread > 0 {
		util.DPrintf(1, "Shutdown: syncer wait %d\n", s.nthread)
		s.condShut.Wait()
	}
	s.mu.Unlock()
	return s.SyncNow()
}

func (s *Syncer) Runs() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runs
}

func (s *Syncer) Failures() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.failures
}
