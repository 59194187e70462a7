package server

import (
	"fmt"
	"io"

	"github.com/tftp-go/tftpd/internal/config"
	"github.com/tftp-go/tftpd/internal/tracelog"
)

// Main parses args and runs the server until its listener errors. It is
// the whole of cmd/tftpd's logic, factored out here so it can be tested
// without an os.Exit in the way.
func Main(args []string, stdout, stderr io.Writer) error {
	opts, opt := config.NewServerOpts()
	rest, err := opt.Parse(args)
	if opt.Called("help") {
		fmt.Fprintln(stderr, opt.Help())
		return nil
	}
	if err != nil {
		return fmt.Errorf("tftpd: %w", err)
	}

	root, err := config.RootDir(rest)
	if err != nil {
		return err
	}
	opts.Out, opts.Err = stdout, stderr

	log := tracelog.New("tftpd", stdout, stderr, opts.Debug)

	srv, err := New(opts, root, log)
	if err != nil {
		return err
	}

	log.Info("listening on %s, root %s", opts.Address, root)
	return srv.Start()
}
