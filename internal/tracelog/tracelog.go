// Package tracelog is the shared logger for both tftpd and tftp: a
// colored Info/Error/Verbose logger in the teacher's style, plus the
// fixed-format per-packet trace line written to stderr and an optional
// go-spew dump tier for interop debugging.
package tracelog

import (
	"fmt"
	"io"
	"log"
	"net/netip"
	"time"

	"github.com/davecgh/go-spew/spew"
)

const (
	reset  = "\033[0m"
	ared   = "\033[31m"
	agreen = "\033[32m"
)

func red(s string) string   { return fmt.Sprintf("%s%s%s", ared, s, reset) }
func green(s string) string { return fmt.Sprintf("%s%s%s", agreen, s, reset) }

// Logger wraps a *log.Logger with leveled, colorized helpers and a
// dedicated packet-trace line writer. One Logger is shared by a client
// session or a server worker for its lifetime.
type Logger struct {
	*log.Logger
	prefix   string
	writeErr bool
	out, err io.Writer
	debug    bool
}

// New builds a Logger writing Info/Verbose to out and Error to err, both
// timestamped. debug additionally enables spew.Dump of every traced
// packet.
func New(prefix string, out, err io.Writer, debug bool) *Logger {
	l := &Logger{prefix: prefix, out: out, err: err, debug: debug}
	l.Logger = log.New(l, prefix, 0)
	return l
}

// Write implements io.Writer so the embedded *log.Logger can route
// through us; it prefixes every line with a microsecond timestamp.
func (l *Logger) Write(b []byte) (int, error) {
	t := time.Now().Format("2006-01-02 15:04:05.000000 ")
	if l.writeErr {
		return l.err.Write(append([]byte(t), b...))
	}
	return l.out.Write(append([]byte(t), b...))
}

func (l *Logger) Info(format string, v ...any) {
	pre := l.Prefix()
	defer l.SetPrefix(pre)
	l.SetPrefix(fmt.Sprintf("[ %s ] %s: ", green("INFO"), pre))
	l.Printf(format, v...)
}

func (l *Logger) Error(format string, v ...any) {
	pre := l.Prefix()
	defer func() {
		l.SetPrefix(pre)
		l.writeErr = false
	}()
	l.writeErr = true
	l.SetPrefix(fmt.Sprintf("[ %s ] %s: ", red("ERROR"), pre))
	l.Printf(format, v...)
}

func (l *Logger) Fatalf(format string, v ...any) {
	l.Error(format, v...)
	panic(fmt.Sprintf(format, v...))
}

// Verbose logs at Info level only when verbose is true.
func (l *Logger) Verbose(verbose bool, format string, v ...any) {
	if verbose {
		l.Info(format, v...)
	}
}

// TraceOpt is one name/value pair rendered on a trace line, in request
// order.
type TraceOpt struct {
	Name  string
	Value string
}

func optSuffix(opts []TraceOpt) string {
	var s string
	for _, o := range opts {
		s += fmt.Sprintf(" %s: %s", o.Name, o.Value)
	}
	return s
}

// TraceRequest logs an RRQ or WRQ line.
func (l *Logger) TraceRequest(kind string, src netip.AddrPort, filename, mode string, opts []TraceOpt) {
	fmt.Fprintf(l.err, "%s %s %q %s%s\n", kind, src, filename, mode, optSuffix(opts))
}

// TraceData logs a DATA line. dstPort is the port the packet was
// addressed to, distinct from src, the address and port it was sent from.
func (l *Logger) TraceData(src netip.AddrPort, dstPort uint16, block uint16) {
	fmt.Fprintf(l.err, "DATA %s:%d %d\n", src, dstPort, block)
}

// TraceAck logs an ACK line.
func (l *Logger) TraceAck(src netip.AddrPort, block uint16) {
	fmt.Fprintf(l.err, "ACK %s %d\n", src, block)
}

// TraceOAck logs an OACK line.
func (l *Logger) TraceOAck(src netip.AddrPort, opts []TraceOpt) {
	fmt.Fprintf(l.err, "OACK %s%s\n", src, optSuffix(opts))
}

// TraceError logs an ERROR line.
func (l *Logger) TraceError(src netip.AddrPort, dstPort uint16, code uint16, msg string) {
	fmt.Fprintf(l.err, "ERROR %s:%d %d %q\n", src, dstPort, code, msg)
}

// Dump spew.Dumps v to stderr when debug mode is on; a no-op otherwise.
// Used alongside the fixed trace lines above, never instead of them.
func (l *Logger) Dump(v any) {
	if !l.debug {
		return
	}
	spew.Fdump(l.err, v)
}
