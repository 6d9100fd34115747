package blkdev

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/tchajed/goose/machine/disk"
	"github.com/tchajed/marshal"

	"github.com/mit-pdos/go-lmfs/common"
)

const (
	LABEL_MAGIC   uint64 = 0x6c6d667363616368 // "lmfscach"
	LABEL_VERSION uint64 = 1
	// disk block holding the label; data starts right after it
	LABEL_BLOCK uint64 = 0
)

var ErrBadLabel = errors.New("blkdev: bad image label")

// Label describes an image: the block size it was formatted with, its
// size in disk blocks (label included) and a unique id.
type Label struct {
	BlockSize uint64
	NBlocks   uint64
	ID        uuid.UUID
}

func (l *Label) String() string {
	return fmt.Sprintf("image %v bsize %d nblocks %d", l.ID, l.BlockSize, l.NBlocks)
}

func (l *Label) encode() disk.Block {
	enc := marshal.NewEnc(disk.BlockSize)
	enc.PutInt(LABEL_MAGIC)
	enc.PutInt(LABEL_VERSION)
	enc.PutInt(l.BlockSize)
	enc.PutInt(l.NBlocks)
	enc.PutBytes(l.ID[:])
	return enc.Finish()
}

func decodeLabel(b disk.Block) (*Label, error) {
	dec := marshal.NewDec(b)
	if dec.GetInt() != LABEL_MAGIC {
		return nil, fmt.Errorf("%w: magic", ErrBadLabel)
	}
	if v := dec.GetInt(); v != LABEL_VERSION {
		return nil, fmt.Errorf("%w: version %d", ErrBadLabel, v)
	}
	l := &Label{}
	l.BlockSize = dec.GetInt()
	l.NBlocks = dec.GetInt()
	id, err := uuid.FromBytes(dec.GetBytes(16))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadLabel, err)
	}
	l.ID = id
	if !common.ValidBlockSize(l.BlockSize) {
		return nil, fmt.Errorf("%w: block size %d", ErrBadLabel, l.BlockSize)
	}
	return l, nil
}

// Format writes a fresh label with block size bsize to d.
func Format(d disk.Disk, bsize uint64) (*Label, error) {
	if !common.ValidBlockSize(bsize) {
		return nil, fmt.Errorf("%w: block size %d", ErrBadTransfer, bsize)
	}
	if d.Size() < 2 {
		return nil, fmt.Errorf("%w: disk of %d blocks", ErrOutOfRange, d.Size())
	}
	l := &Label{
		BlockSize: bsize,
		NBlocks:   d.Size(),
		ID:        uuid.New(),
	}
	d.Write(LABEL_BLOCK, l.encode())
	d.Barrier()
	return l, nil
}

func ReadLabel(d disk.Disk) (*Label, error) {
	if d.Size() < 2 {
		return nil, fmt.Errorf("%w: disk of %d blocks", ErrBadLabel, d.Size())
	}
	l, err := decodeLabel(d.Read(LABEL_BLOCK))
	if err != nil {
		return nil, err
	}
	if l.NBlocks != d.Size() {
		return nil, fmt.Errorf("%w: label says %d blocks, disk has %d",
			ErrBadLabel, l.NBlocks, d.Size())
	}
	return l, nil
}
