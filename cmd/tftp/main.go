// Command tftp is a TFTP client (spec §6 "CLI — client"). With -f it
// reads a remote file to a local destination; without -f it writes
// standard input to a remote file.
package main

import (
	"fmt"
	"os"

	tftp "github.com/tftp-go/tftpd"
	"github.com/tftp-go/tftpd/internal/config"
	"github.com/tftp-go/tftpd/internal/tracelog"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

func run(args []string, stdin *os.File, stdout, stderr *os.File) int {
	opts, opt := config.NewClientOpts()
	_, err := opt.Parse(args)
	if opt.Called("help") {
		fmt.Fprintln(stderr, opt.Help())
		return 0
	}
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}

	mode := opts.Mode
	if mode == "" {
		mode = "octet"
	}

	reqOpts := tftp.ClientOptionRequest{}
	if opts.Blksize > 0 {
		reqOpts.HaveBlksize = true
		reqOpts.Blksize = opts.Blksize
	}
	if opts.Timeout > 0 {
		reqOpts.HaveTimeout = true
		reqOpts.Timeout = opts.Timeout
	}
	if opts.Tsize {
		reqOpts.HaveTsize = true
		reqOpts.Tsize = 0
	}

	log := tracelog.New("tftp", stdout, stderr, opts.Debug)

	if opts.Get != "" {
		out, err := os.Create(opts.Path)
		if err != nil {
			fmt.Fprintf(stderr, "tftp: create %q: %v\n", opts.Path, err)
			return 1
		}
		defer out.Close()

		if err := tftp.Get("udp", opts.Host, opts.Port, opts.Get, mode, out, reqOpts, log); err != nil {
			fmt.Fprintf(stderr, "tftp: %v\n", err)
			return 1
		}
		return 0
	}

	if err := tftp.Put("udp", opts.Host, opts.Port, opts.Path, mode, stdin, reqOpts, log); err != nil {
		fmt.Fprintf(stderr, "tftp: %v\n", err)
		return 1
	}
	return 0
}
