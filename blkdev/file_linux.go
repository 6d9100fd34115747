//go:build linux

package blkdev

import (
	"golang.org/x/sys/unix"
)

func (f *File) readv(bufs [][]byte, off int64) (int, error) {
	want := total(bufs)
	done := 0
	for done < want {
		n, err := unix.Preadv(int(f.f.Fd()), bufs, off+int64(done))
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return done, err
		}
		if n == 0 {
			return done, errShort
		}
		done += n
		bufs = advance(bufs, n)
	}
	return done, nil
}

func (f *File) writev(bufs [][]byte, off int64) (int, error) {
	want := total(bufs)
	done := 0
	for done < want {
		n, err := unix.Pwritev(int(f.f.Fd()), bufs, off+int64(done))
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return done, err
		}
		done += n
		bufs = advance(bufs, n)
	}
	return done, nil
}

func (f *File) Sync() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return unix.Fdatasync(int(f.f.Fd()))
}
