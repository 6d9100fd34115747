package main

import (
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/chzyer/readline"

	"github.com/mit-pdos/go-journal/util"
	"github.com/mit-pdos/go-lmfs/bcache"
	"github.com/mit-pdos/go-lmfs/blkdev"
	"github.com/mit-pdos/go-lmfs/config"
)

func main() {
	var cfgFile string
	flag.StringVar(&cfgFile, "config", "", "YAML configuration file")

	var diskfile string
	flag.StringVar(&diskfile, "disk", "", "disk image (empty for MemDisk)")

	var remote string
	flag.StringVar(&remote, "remote", "", "address of an lmfs-blkd server")

	flag.Uint64Var(&util.Debug, "debug", 0, "debug level (higher is more verbose)")
	flag.Parse()

	cfg, err := config.Load(cfgFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
	if diskfile != "" {
		cfg.Device.Image = diskfile
	}
	if remote != "" {
		cfg.Device.Remote = remote
		cfg.Device.Image = ""
	}
	d, err := cfg.OpenDevice()
	if err != nil {
		fmt.Fprintf(os.Stderr, "could not open device: %v\n", err)
		os.Exit(1)
	}
	tbl := blkdev.NewTable()
	if err := tbl.Attach(0, d); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
	defer tbl.Close()
	p, err := bcache.New(tbl, cfg.Bcache())
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "lmfs> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "quit",
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
	defer rl.Close()

	sh := newShell(p, rl.Stdout())
	fmt.Fprintf(sh.out, "Attached to %s\n", describe(cfg))
	fmt.Fprintf(sh.out, "Device size: %d bytes\n", d.Size())
	fmt.Fprintf(sh.out, "Buffers: %d of %d bytes\n", p.NrBufs(), p.BlockSize())
	fmt.Fprintln(sh.out, "Enter '?' for a list of commands.")
	for {
		line, err := rl.Readline()
		if err == readline.ErrInterrupt {
			if len(line) == 0 {
				break
			}
			continue
		} else if err == io.EOF {
			break
		}
		if err := sh.exec(line); err != nil {
			if err == errQuit {
				break
			}
			fmt.Fprintf(sh.out, "error: %v\n", err)
		}
	}
	sh.releaseAll()
	if err := p.FlushAll(); err != nil {
		fmt.Fprintf(os.Stderr, "flush: %v\n", err)
	}
}

func describe(cfg *config.Config) string {
	switch {
	case cfg.Device.Remote != "":
		return cfg.Device.Remote
	case cfg.Device.Image != "":
		return cfg.Device.Image
	}
	return fmt.Sprintf("memory disk (%d MB)", cfg.Device.SizeMB)
}
