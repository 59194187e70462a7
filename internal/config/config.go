// Package config builds the client and server CLI option sets with
// github.com/DavidGamba/go-getoptions, in the same bundling, alias, and
// description style as the teacher's server/opts.go.
package config

import (
	"fmt"
	"io"

	"github.com/DavidGamba/go-getoptions"
)

// ClientOpts are tftp's command-line flags (spec §6 "CLI — client").
type ClientOpts struct {
	Host string // -h host (required)
	Port int    // -p port, default 69
	Get  string // -f remote-path: present => reader/RRQ
	Path string // -t local-or-remote-path (required)

	Mode    string // -m octet|netascii, default octet
	Debug   bool   // -debug: spew.Dump every decoded packet
	Verbose bool   // -v

	// Blksize/Timeout are 0 when not set by the user; 0 is not a legal
	// wire value for either, so it doubles as "don't request this option"
	// without a separate bool per field. Tsize is a bool because 0 is the
	// value a tsize request carries.
	Blksize int // --blksize
	Timeout int // --rtimeout
	Tsize   bool // --tsize: request it with value 0, per spec §8 scenario 3
}

// NewClientOpts builds the client flag set. Call opt.Parse(os.Args[1:])
// and then validate Required fields yourself -- go-getoptions enforces
// presence but not the host/get/path cross-field rule spec §6 describes.
func NewClientOpts() (*ClientOpts, *getoptions.GetOpt) {
	var o ClientOpts
	opt := getoptions.New()
	opt.SetMode(getoptions.Bundling)

	opt.Bool("help", false, opt.Alias("?"))

	opt.StringVar(&o.Host, "host", "", opt.Alias("h"), opt.Required(), opt.Description("server host: IPv4 literal or resolvable hostname"))
	opt.IntVar(&o.Port, "port", 69, opt.Alias("p"), opt.Description("server port"))
	opt.StringVar(&o.Get, "get", "", opt.Alias("f"), opt.Description("remote path to read; if omitted the session writes, reading from standard input"))
	opt.StringVar(&o.Path, "to", "", opt.Alias("t"), opt.Required(), opt.Description("destination path when reading, source label when writing"))
	opt.StringVar(&o.Mode, "mode", "octet", opt.Alias("m"), opt.Description("transfer mode: octet or netascii"))
	opt.IntVar(&o.Blksize, "blksize", 0, opt.Description("request a non-default block size, RFC 2348 (8-65464)"))
	opt.IntVar(&o.Timeout, "rtimeout", 0, opt.Description("request a non-default per-packet timeout in seconds, RFC 2349"))
	opt.BoolVar(&o.Tsize, "tsize", false, opt.Description("request the transfer size option, RFC 2349"))

	opt.BoolVar(&o.Debug, "debug", false, opt.Description("dump every decoded packet with go-spew in addition to the fixed trace line"))
	opt.BoolVar(&o.Verbose, "verbose", false, opt.Alias("v"), opt.Description("verbose output"))

	return &o, opt
}

// ServerOpts are tftpd's command-line flags (spec §6 "CLI — server"),
// extended per the teacher's server/opts.go with --create and --refuse.
type ServerOpts struct {
	Address string // --address|-a host:port, default ":69" (all interfaces); there is no -p port flag
	Root    string // positional: root directory (required)

	BlockSize int // --blocksize|-B: server-imposed ceiling, 0 = none
	Timeout   int // --timeout|-t: seconds; accepted but not read by the server

	Create     bool   // --create|-c: WRQ may create new files
	Permissive bool   // --permissive: accepted but not read; paths are always confined to Root
	Refuse     string // --refuse|-r: comma-separated option names to never accept

	// Pidfile is accepted for CLI compatibility with the teacher's tftpd
	// but not acted on; daemonization/signal handling for termination is
	// an external collaborator per spec §1, not this module's concern.
	Pidfile string

	Debug   bool
	Verbose bool

	Out, Err io.Writer
}

// NewServerOpts builds the server flag set and returns the Opts plus the
// positional-argument slice (the root directory) via opt itself --
// callers read opt.Args after Parse.
func NewServerOpts() (*ServerOpts, *getoptions.GetOpt) {
	var o ServerOpts
	opt := getoptions.New()
	opt.SetMode(getoptions.Bundling)

	opt.Bool("help", false, opt.Alias("h", "?"))

	opt.StringVar(&o.Address, "address", ":69", opt.Alias("a"), opt.Description("address and port to listen on"))
	opt.IntVar(&o.BlockSize, "blocksize", 0, opt.Alias("B"), opt.Description("maximum permitted block size; a client requesting more is offered this ceiling instead. 0 means no server-imposed ceiling beyond the protocol max"))
	opt.IntVar(&o.Timeout, "timeout", 0, opt.Alias("t"), opt.Description("per-packet retransmission timeout in seconds (accepted for compatibility; not acted on: a transfer uses the client-negotiated timeout or the built-in default)"))
	opt.BoolVar(&o.Create, "create", false, opt.Alias("c"), opt.Description("allow WRQ to create new files; existing files are never overwritten, so without this flag every WRQ fails"))
	opt.BoolVar(&o.Permissive, "permissive", false, opt.Description("accepted for compatibility; not acted on: requested paths are always confined to the root directory"))
	opt.StringVar(&o.Refuse, "refuse", "", opt.Alias("r"), opt.Description("comma-separated list of TFTP options (blksize,timeout,tsize,windowsize) to never accept"))
	opt.StringVar(&o.Pidfile, "pidfile", "", opt.Alias("P"), opt.Description("write the process id to pidfile (accepted for compatibility; not acted on)"))
	opt.BoolVar(&o.Debug, "debug", false, opt.Description("dump every decoded packet with go-spew in addition to the fixed trace line"))
	opt.BoolVar(&o.Verbose, "verbose", false, opt.Alias("v"), opt.Description("verbose output"))

	return &o, opt
}

// RootDir returns the single required positional argument, the root
// directory. It checks only that exactly one argument was given;
// server.New checks that the path is an existing, readable directory
// before binding.
func RootDir(args []string) (string, error) {
	if len(args) != 1 {
		return "", fmt.Errorf("tftpd: expected exactly one positional argument, the root directory (got %d)", len(args))
	}
	return args[0], nil
}
