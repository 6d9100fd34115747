package blkrpc

import (
	"github.com/zeldovich/go-rpcgen/xdr"
)

const (
	LMFS_BLKDEV_PROG uint32 = 0x20006c6d
	LMFS_BLKDEV_V1   uint32 = 1
)

const (
	BLKPROC_NULL  uint32 = 0
	BLKPROC_INFO  uint32 = 1
	BLKPROC_READ  uint32 = 2
	BLKPROC_WRITE uint32 = 3
	BLKPROC_SYNC  uint32 = 4
)

// largest run a server accepts in one call
const MAX_RUN uint32 = 64

type Blkstat uint32

const (
	BLK_OK       Blkstat = 0
	BLKERR_IO    Blkstat = 5
	BLKERR_INVAL Blkstat = 22
	BLKERR_RANGE Blkstat = 34
)

type InfoRes struct {
	Status      Blkstat
	Size        uint64
	BlockSize   uint32
	MaxTransfer uint32
}

type ReadArgs struct {
	Start     uint64
	Count     uint32
	BlockSize uint32
}

type ReadRes struct {
	Status Blkstat
	Msg    string
	N      uint32
	Data   []byte
}

type WriteArgs struct {
	Start     uint64
	BlockSize uint32
	Data      []byte
}

type WriteRes struct {
	Status Blkstat
	Msg    string
	N      uint32
}

type SyncRes struct {
	Status Blkstat
	Msg    string
}

func (v *Blkstat) Xdr(xs *xdr.XdrState) {
	xdr.XdrU32(xs, (*uint32)(v))
}
func (v *InfoRes) Xdr(xs *xdr.XdrState) {
	(*Blkstat)(&((v).Status)).Xdr(xs)
	xdr.XdrU64(xs, &((v).Size))
	xdr.XdrU32(xs, &((v).BlockSize))
	xdr.XdrU32(xs, &((v).MaxTransfer))
}
func (v *ReadArgs) Xdr(xs *xdr.XdrState) {
	xdr.XdrU64(xs, &((v).Start))
	xdr.XdrU32(xs, &((v).Count))
	xdr.XdrU32(xs, &((v).BlockSize))
}
func (v *ReadRes) Xdr(xs *xdr.XdrState) {
	(*Blkstat)(&((v).Status)).Xdr(xs)
	xdr.XdrString(xs, int(-1), &((v).Msg))
	xdr.XdrU32(xs, &((v).N))
	xdr.XdrVarArray(xs, int(-1), (*[]byte)(&((v).Data)))
}
func (v *WriteArgs) Xdr(xs *xdr.XdrState) {
	xdr.XdrU64(xs, &((v).Start))
	xdr.XdrU32(xs, &((v).BlockSize))
	xdr.XdrVarArray(xs, int(-1), (*[]byte)(&((v).Data)))
}
func (v *WriteRes) Xdr(xs *xdr.XdrState) {
	(*Blkstat)(&((v).Status)).Xdr(xs)
	xdr.XdrString(xs, int(-1), &((v).Msg))
	xdr.XdrU32(xs, &((v).N))
}
func (v *SyncRes) Xdr(xs *xdr.XdrState) {
	(*Blkstat)(&((v).Status)).Xdr(xs)
	xdr.XdrString(xs, int(-1), &((v).Msg))
}
