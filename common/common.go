package common

import "fmt"

// Dev identifies a block device attached to the cache.
type Dev uint32

// Bnum is a block number on a device, in units of the pool's block size.
type Bnum uint64

// Inum is an inode number used for the VM back-reference of a block.
type Inum uint64

const NO_DEV Dev = ^Dev(0)
const NO_INODE Inum = 0

const (
	MinBlockSize uint64 = 1024
	// the hardware ceiling: one disk sector group of the underlying disk
	MaxBlockSize uint64 = 4096
)

// ValidBlockSize reports whether sz is a power of two within
// [MinBlockSize, MaxBlockSize].
func ValidBlockSize(sz uint64) bool {
	if sz < MinBlockSize || sz > MaxBlockSize {
		return false
	}
	return sz&(sz-1) == 0
}

func (d Dev) String() string {
	if d == NO_DEV {
		return "NO_DEV"
	}
	return fmt.Sprintf("dev%d", uint32(d))
}
