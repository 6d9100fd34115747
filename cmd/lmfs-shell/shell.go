package main

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/mit-pdos/go-lmfs/bcache"
	"github.com/mit-pdos/go-lmfs/common"
)

var errQuit = errors.New("quit")
var errUsage = errors.New("usage")

// shell runs explorer commands against device 0 of a pool. Blocks taken
// with "get" stay held until "put".
type shell struct {
	p    *bcache.Pool
	out  io.Writer
	held map[int]*bcache.Buf
	next int
}

func newShell(p *bcache.Pool, out io.Writer) *shell {
	return &shell{p: p, out: out, held: make(map[int]*bcache.Buf)}
}

var help = [][2]string{
	{"?", "help"},
	{"get bn [normal|noread|prefetch|peek]", "take a reference on a block"},
	{"put h [oneshot] [immed]", "release held block h"},
	{"held", "list held blocks"},
	{"dump bn [len]", "hex dump of a block"},
	{"write bn off text", "write text into a block"},
	{"zero bn", "zero a block"},
	{"free bn", "forget a block without writing it"},
	{"prefetch bn...", "load blocks in the background"},
	{"flush", "write back dirty blocks"},
	{"invalidate", "drop every cached block"},
	{"bsize n", "change the block size"},
	{"bufs n", "change the number of buffers"},
	{"stats", "show cache counters"},
	{"ops", "show operation latencies"},
	{"check", "verify cache invariants"},
	{"quit", "exit"},
}

func parseBnum(s string) (common.Bnum, error) {
	n, err := strconv.ParseUint(s, 0, 64)
	return common.Bnum(n), err
}

func parseMode(s string) (bcache.Mode, error) {
	switch s {
	case "normal":
		return bcache.NORMAL, nil
	case "noread":
		return bcache.NO_READ, nil
	case "prefetch":
		return bcache.PREFETCH, nil
	case "peek":
		return bcache.PEEK, nil
	}
	return 0, fmt.Errorf("unknown mode %q", s)
}

// with runs f on block bn, holding it only for the call.
func (sh *shell) with(bn common.Bnum, mode bcache.Mode, f func(b *bcache.Buf)) error {
	b, err := sh.p.GetBlock(0, bn, mode)
	if err != nil {
		return err
	}
	f(b)
	sh.p.PutBlock(b)
	return nil
}

func (sh *shell) releaseAll() {
	for h, b := range sh.held {
		sh.p.PutBlock(b)
		delete(sh.held, h)
	}
}

func (sh *shell) exec(line string) error {
	tokens := strings.Fields(line)
	if len(tokens) == 0 {
		return nil
	}
	args := tokens[1:]
	switch tokens[0] {
	case "?", "help":
		fmt.Fprintln(sh.out, "Commands:")
		for _, h := range help {
			fmt.Fprintf(sh.out, "\t%-36s %s\n", h[0], h[1])
		}
	case "quit", "exit":
		return errQuit
	case "get":
		if len(args) < 1 {
			return errUsage
		}
		bn, err := parseBnum(args[0])
		if err != nil {
			return err
		}
		mode := bcache.NORMAL
		if len(args) > 1 {
			if mode, err = parseMode(args[1]); err != nil {
				return err
			}
		}
		b, err := sh.p.GetBlock(0, bn, mode)
		if err != nil {
			return err
		}
		h := sh.next
		sh.next++
		sh.held[h] = b
		fmt.Fprintf(sh.out, "%d: block %d\n", h, bn)
	case "put":
		if len(args) < 1 {
			return errUsage
		}
		h, err := strconv.Atoi(args[0])
		if err != nil {
			return err
		}
		b, ok := sh.held[h]
		if !ok {
			return fmt.Errorf("no held block %d", h)
		}
		var hint bcache.Hint
		for _, a := range args[1:] {
			switch a {
			case "oneshot":
				hint |= bcache.ONE_SHOT
			case "immed":
				hint |= bcache.WRITE_IMMED
			default:
				return fmt.Errorf("unknown hint %q", a)
			}
		}
		delete(sh.held, h)
		return sh.p.PutBlockHint(b, hint)
	case "held":
		var hs []int
		for h := range sh.held {
			hs = append(hs, h)
		}
		sort.Ints(hs)
		for _, h := range hs {
			b := sh.held[h]
			fmt.Fprintf(sh.out, "%d: block %d dirty %v\n", h, b.Bnum(), b.IsDirty())
		}
	case "dump":
		if len(args) < 1 {
			return errUsage
		}
		bn, err := parseBnum(args[0])
		if err != nil {
			return err
		}
		n := 64
		if len(args) > 1 {
			if n, err = strconv.Atoi(args[1]); err != nil {
				return err
			}
		}
		return sh.with(bn, bcache.NORMAL, func(b *bcache.Buf) {
			data := b.Data()
			if n > len(data) || n <= 0 {
				n = len(data)
			}
			fmt.Fprint(sh.out, hex.Dump(data[:n]))
		})
	case "write":
		if len(args) < 3 {
			return errUsage
		}
		bn, err := parseBnum(args[0])
		if err != nil {
			return err
		}
		off, err := strconv.ParseUint(args[1], 0, 64)
		if err != nil {
			return err
		}
		text := strings.Join(args[2:], " ")
		return sh.with(bn, bcache.NORMAL, func(b *bcache.Buf) {
			n := b.WriteAt([]byte(text), off)
			fmt.Fprintf(sh.out, "wrote %d bytes\n", n)
		})
	case "zero":
		if len(args) < 1 {
			return errUsage
		}
		bn, err := parseBnum(args[0])
		if err != nil {
			return err
		}
		return sh.with(bn, bcache.NO_READ, sh.p.ZeroBlock)
	case "free":
		if len(args) < 1 {
			return errUsage
		}
		bn, err := parseBnum(args[0])
		if err != nil {
			return err
		}
		for _, b := range sh.held {
			if b.Bnum() == bn {
				return fmt.Errorf("block %d is held", bn)
			}
		}
		sh.p.FreeBlock(0, bn)
	case "prefetch":
		var bns []common.Bnum
		for _, a := range args {
			bn, err := parseBnum(a)
			if err != nil {
				return err
			}
			bns = append(bns, bn)
		}
		return sh.p.Prefetch(0, bns)
	case "flush":
		return sh.p.FlushDevice(0)
	case "invalidate":
		sh.p.InvalidateDevice(0)
	case "bsize", "bufs":
		if len(args) < 1 {
			return errUsage
		}
		n, err := strconv.ParseUint(args[0], 0, 64)
		if err != nil {
			return err
		}
		if tokens[0] == "bsize" {
			return sh.p.SetBlockSize(n)
		}
		return sh.p.SetBuffers(n)
	case "stats":
		sh.p.Stats().WriteTable(sh.out)
	case "ops":
		sh.p.WriteOpStats(sh.out)
	case "check":
		sh.p.CheckInvariants()
		fmt.Fprintln(sh.out, "ok")
	default:
		return fmt.Errorf("unknown command %q", tokens[0])
	}
	return nil
}
