package bcache

import (
	"errors"
	"sort"

	"github.com/mit-pdos/go-journal/util"
	"go.uber.org/multierr"

	"github.com/mit-pdos/go-lmfs/common"
)

// A run is a list of slots holding consecutive blocks of one device,
// moved with a single driver call.
type run struct {
	start common.Bnum
	ids   []int32
}

func (p *Pool) maxTransfer(dev common.Dev) int {
	if l, ok := p.drv.(TransferLimiter); ok {
		return l.MaxTransfer(dev)
	}
	return 0
}

// runs sorts ids by block number and cuts them into runs of contiguous
// blocks no longer than the driver's transfer limit.
func (p *Pool) runs(dev common.Dev, ids []int32) []run {
	sort.Slice(ids, func(i, j int) bool {
		return p.slots[ids[i]].bnum < p.slots[ids[j]].bnum
	})
	max := p.maxTransfer(dev)
	var rs []run
	for _, id := range ids {
		bn := p.slots[id].bnum
		if n := len(rs); n > 0 {
			r := &rs[n-1]
			last := r.start + common.Bnum(len(r.ids)) - 1
			if bn == last+1 && (max <= 0 || len(r.ids) < max) {
				r.ids = append(r.ids, id)
				continue
			}
		}
		rs = append(rs, run{start: bn, ids: []int32{id}})
	}
	return rs
}

func (p *Pool) bufs(ids []int32) [][]byte {
	bufs := make([][]byte, len(ids))
	for i, id := range ids {
		bufs[i] = p.slots[id].data
	}
	return bufs
}

func (p *Pool) call(write bool, dev common.Dev, start common.Bnum, ids []int32) (int, error) {
	bufs := p.bufs(ids)
	if write {
		return p.drv.WriteBlocks(dev, start, bufs)
	}
	return p.drv.ReadBlocks(dev, start, bufs)
}

// done records a successful transfer of one block.
func (p *Pool) done(write bool, id int32) {
	s := &p.slots[id]
	if write {
		s.dirty = false
		p.cnt.writes++
	} else {
		s.valid = true
		p.cnt.reads++
	}
}

func (p *Pool) failed(write bool, dev common.Dev, id int32, err error) error {
	s := &p.slots[id]
	if write {
		p.cnt.writeErrors++
	} else {
		p.cnt.readErrors++
	}
	if err == nil {
		err = ErrShortTransfer
	}
	util.DPrintf(1, "bcache: %v block %d: write %v: %v\n", dev, s.bnum, write, err)
	return &IOError{Write: write, Dev: dev, Bnum: s.bnum, Err: err}
}

// transfer moves one run. If the driver rejects the run or moves only part
// of it, every block after the transferred prefix is retried on its own,
// so one bad block costs only itself.
func (p *Pool) transfer(write bool, dev common.Dev, r run) error {
	n, err := p.call(write, dev, r.start, r.ids)
	if err == nil && n == len(r.ids) {
		for _, id := range r.ids {
			p.done(write, id)
		}
		return nil
	}
	if n < 0 || n >= len(r.ids) {
		n = 0
	}
	for _, id := range r.ids[:n] {
		p.done(write, id)
	}
	rest := r.ids[n:]
	if len(r.ids) == 1 {
		return p.failed(write, dev, rest[0], err)
	}
	p.cnt.fallbacks++
	util.DPrintf(3, "bcache: %v run %d+%d failed at %d (%v), retrying singly\n",
		dev, r.start, len(r.ids), n, err)
	var errs error
	for _, id := range rest {
		bn := p.slots[id].bnum
		m, err := p.call(write, dev, bn, []int32{id})
		if err == nil && m == 1 {
			p.done(write, id)
			continue
		}
		errs = multierr.Append(errs, p.failed(write, dev, id, err))
	}
	return errs
}

func (p *Pool) gather(write bool, dev common.Dev, ids []int32) error {
	var errs error
	for _, r := range p.runs(dev, ids) {
		errs = multierr.Append(errs, p.transfer(write, dev, r))
	}
	return errs
}

// readSlots loads the given slots of dev; slots that fail stay not valid.
func (p *Pool) readSlots(dev common.Dev, ids []int32) error {
	return p.gather(false, dev, ids)
}

// writeSlots writes the given slots of dev; slots that fail stay dirty.
func (p *Pool) writeSlots(dev common.Dev, ids []int32) error {
	return p.gather(true, dev, ids)
}

// victimError picks out the error for s from a flush that left it dirty.
func victimError(err error, s *slot) error {
	for _, e := range multierr.Errors(err) {
		var ioe *IOError
		if errors.As(e, &ioe) && ioe.Dev == s.dev && ioe.Bnum == s.bnum {
			return ioe
		}
	}
	return &IOError{Write: true, Dev: s.dev, Bnum: s.bnum, Err: ErrShortTransfer}
}
