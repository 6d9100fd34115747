package bcache

import (
	"errors"
	"fmt"

	"github.com/mit-pdos/go-lmfs/common"
)

var (
	ErrOutOfBuffers     = errors.New("bcache: out of buffers")
	ErrNotResident      = errors.New("bcache: block not resident")
	ErrInvalidBlockSize = errors.New("bcache: invalid block size")
	ErrInvalidBuffers   = errors.New("bcache: invalid buffer count")
	ErrPoolBusy         = errors.New("bcache: pool has blocks in use")
	ErrNoDevice         = errors.New("bcache: invalid device")
	ErrDeviceRead       = errors.New("bcache: device read error")
	ErrDeviceWrite      = errors.New("bcache: device write error")
	ErrShortTransfer    = errors.New("bcache: short transfer")
	ErrFatal            = errors.New("bcache: fatal invariant violation")
)

// IOError reports a failed transfer of one block. It matches
// ErrDeviceRead or ErrDeviceWrite and unwraps to the driver's error.
type IOError struct {
	Write bool
	Dev   common.Dev
	Bnum  common.Bnum
	Err   error
}

func (e *IOError) Error() string {
	op := "read"
	if e.Write {
		op = "write"
	}
	return fmt.Sprintf("bcache: %s %v block %d: %v", op, e.Dev, e.Bnum, e.Err)
}

func (e *IOError) Unwrap() error {
	return e.Err
}

func (e *IOError) Is(target error) bool {
	if e.Write {
		return target == ErrDeviceWrite
	}
	return target == ErrDeviceRead
}

// InvariantError is the panic value for programmer errors: duplicate
// identities, eviction or release of a block in an impossible state, use
// of a stale handle. Hosts that prefer to survive them can recover it and
// test errors.Is(err, ErrFatal).
type InvariantError struct {
	Msg string
}

func (e *InvariantError) Error() string {
	return "bcache: invariant violated: " + e.Msg
}

func (e *InvariantError) Is(target error) bool {
	return target == ErrFatal
}

func fatalf(format string, a ...interface{}) {
	panic(&InvariantError{Msg: fmt.Sprintf(format, a...)})
}
