package config

import (
	"fmt"

	"github.com/mit-pdos/go-lmfs/blkdev"
	"github.com/mit-pdos/go-lmfs/blkrpc"
)

// OpenDevice opens the device the configuration names: a remote server,
// a raw file, a labeled image file, or an in-memory image.
func (c *Config) OpenDevice() (blkdev.Device, error) {
	d := c.Device
	switch {
	case d.Remote != "":
		clnt, err := blkrpc.Dial(d.Remote)
		if err != nil {
			return nil, fmt.Errorf("could not reach %s: %w", d.Remote, err)
		}
		return clnt, nil
	case d.Raw:
		f, err := blkdev.OpenFile(d.Image, c.DeviceBytes(), d.Create)
		if err != nil {
			return nil, err
		}
		return f, nil
	case d.Image != "":
		img, err := blkdev.OpenImage(d.Image, c.DeviceBytes(), c.Cache.BlockSize, d.Create)
		if err != nil {
			return nil, err
		}
		return img, nil
	}
	img, err := blkdev.NewMemImage(c.DeviceBytes(), c.Cache.BlockSize)
	if err != nil {
		return nil, err
	}
	return img, nil
}
