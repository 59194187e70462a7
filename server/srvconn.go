package server

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	tftp "github.com/tftp-go/tftpd"
	"github.com/tftp-go/tftpd/internal/tracelog"
)

// workerConn is one in-flight transfer: a dedicated ephemeral-port Conn
// together with the request that spawned it and the FileBuffer bridging
// it to the local filesystem. One workerConn serves exactly one RRQ or
// WRQ and is discarded when the transfer ends.
type workerConn struct {
	*tftp.Conn
	req      *tftp.ReadWriteRequest
	accepted *tftp.OptionTable
	buf      *tftp.FileBuffer
	log      *tracelog.Logger
}

// safeJoin resolves name under root, rejecting any path that escapes it
// (spec §7: "path escapes server root" -> Access violation).
func safeJoin(root, name string) (string, error) {
	clean := filepath.Clean(string(filepath.Separator) + name)
	joined := filepath.Join(root, clean)
	rootClean := filepath.Clean(root)
	if joined != rootClean && !strings.HasPrefix(joined, rootClean+string(filepath.Separator)) {
		return "", fmt.Errorf("tftp: path %q escapes server root", name)
	}
	return joined, nil
}

// open resolves w.req's filename under root and opens it according to
// w.req.Opcode. On failure it returns the wire ErrorCode and message the
// dispatcher should send back, alongside the underlying error for
// logging.
func (w *workerConn) open(root string, create bool) (*tftp.FileBuffer, tftp.ErrorCode, string, error) {
	path, err := safeJoin(root, w.req.Filename)
	if err != nil {
		return nil, tftp.AccessViolation, "path escapes server root", err
	}

	switch w.req.Opcode {
	case tftp.Rrq:
		buf, err := tftp.OpenForRead(path, w.req.Mode)
		if err == nil {
			return buf, 0, "", nil
		}
		switch {
		case os.IsNotExist(err):
			return nil, tftp.FileNotFound, "file not found", err
		case os.IsPermission(err):
			return nil, tftp.AccessViolation, "permission denied", err
		default:
			return nil, tftp.Undefined, "could not open file", err
		}

	case tftp.Wrq:
		buf, err := tftp.OpenForWrite(path, w.req.Mode, create)
		if err == nil {
			return buf, 0, "", nil
		}
		switch {
		case errors.Is(err, tftp.ErrFileExists):
			return nil, tftp.FileAlreadyExists, "file already exists", err
		case errors.Is(err, tftp.ErrCreateNotPermitted):
			// grounded in the teacher's own srvconn.go mapping: a
			// disallowed create reads to the client exactly like a
			// missing file, not like a permission error.
			return nil, tftp.FileNotFound, "file does not exist", err
		case os.IsPermission(err):
			return nil, tftp.AccessViolation, "permission denied", err
		default:
			return nil, tftp.Undefined, "could not open file", err
		}

	default:
		return nil, tftp.IllegalOperation, "unsupported opcode for a request",
			fmt.Errorf("tftp: opcode %s is not a request", w.req.Opcode)
	}
}

// serve runs the transfer to completion in the role req.Opcode implies
// and closes buf regardless of outcome.
func (w *workerConn) serve() error {
	sess := tftp.NewTransferSession(w.Conn, w.buf).SetLogger(w.log)

	var serveErr error
	switch w.req.Opcode {
	case tftp.Rrq:
		serveErr = sess.ServeRead(w.accepted)
	case tftp.Wrq:
		serveErr = sess.ServeWrite(w.accepted)
	default:
		serveErr = fmt.Errorf("tftp: opcode %s is not a request", w.req.Opcode)
	}

	if cerr := w.buf.Close(); cerr != nil && serveErr == nil {
		serveErr = cerr
	}
	return serveErr
}
