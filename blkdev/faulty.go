package blkdev

import (
	"errors"
	"sync"

	"github.com/mit-pdos/go-lmfs/common"
)

var ErrInjected = errors.New("blkdev: injected fault")

// Run records one call made to a Faulty device.
type Run struct {
	Write bool
	Start common.Bnum
	N     int
}

// Faulty wraps a device with injectable per-block failures and records
// every run issued to it. It is meant for tests and fault drills.
type Faulty struct {
	mu          *sync.Mutex
	d           Device
	badRead     map[common.Bnum]bool
	badWrite    map[common.Bnum]bool
	rejectBatch bool
	maxTransfer int
	runs        []Run
}

func NewFaulty(d Device) *Faulty {
	return &Faulty{
		mu:       new(sync.Mutex),
		d:        d,
		badRead:  make(map[common.Bnum]bool),
		badWrite: make(map[common.Bnum]bool),
	}
}

func (f *Faulty) FailRead(bn common.Bnum, fail bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if fail {
		f.badRead[bn] = true
	} else {
		delete(f.badRead, bn)
	}
}

func (f *Faulty) FailWrite(bn common.Bnum, fail bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if fail {
		f.badWrite[bn] = true
	} else {
		delete(f.badWrite, bn)
	}
}

// RejectBatches makes every run longer than one block fail outright.
func (f *Faulty) RejectBatches(reject bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rejectBatch = reject
}

// SetMaxTransfer advertises a run limit; 0 means unlimited.
func (f *Faulty) SetMaxTransfer(n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.maxTransfer = n
}

func (f *Faulty) MaxTransfer() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.maxTransfer > 0 {
		return f.maxTransfer
	}
	if l, ok := f.d.(Limiter); ok {
		return l.MaxTransfer()
	}
	return 0
}

func (f *Faulty) Runs() []Run {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Run(nil), f.runs...)
}

func (f *Faulty) ResetRuns() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.runs = nil
}

// prefix returns how many blocks of the run precede the first failing
// one, or -1 when the run is rejected as a whole.
func (f *Faulty) prefix(write bool, start common.Bnum, n int) (int, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.runs = append(f.runs, Run{Write: write, Start: start, N: n})
	if f.rejectBatch && n > 1 {
		return -1, true
	}
	bad := f.badRead
	if write {
		bad = f.badWrite
	}
	for i := 0; i < n; i++ {
		if bad[start+common.Bnum(i)] {
			return i, true
		}
	}
	return n, false
}

func (f *Faulty) ReadBlocks(start common.Bnum, bufs [][]byte) (int, error) {
	ok, fail := f.prefix(false, start, len(bufs))
	if ok < 0 {
		return 0, ErrInjected
	}
	if ok > 0 {
		n, err := f.d.ReadBlocks(start, bufs[:ok])
		if err != nil {
			return n, err
		}
	}
	if fail {
		return ok, ErrInjected
	}
	return ok, nil
}

func (f *Faulty) WriteBlocks(start common.Bnum, bufs [][]byte) (int, error) {
	ok, fail := f.prefix(true, start, len(bufs))
	if ok < 0 {
		return 0, ErrInjected
	}
	if ok > 0 {
		n, err := f.d.WriteBlocks(start, bufs[:ok])
		if err != nil {
			return n, err
		}
	}
	if fail {
		return ok, ErrInjected
	}
	return ok, nil
}

func (f *Faulty) Size() uint64 {
	return f.d.Size()
}

func (f *Faulty) Sync() error {
	return f.d.Sync()
}

func (f *Faulty) Close() error {
	return f.d.Close()
}
