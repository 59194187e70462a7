package tftp

// netasciiEncoder translates a local byte stream into TFTP netascii wire
// form: LF -> CR LF, lone CR -> CR NUL. Every local byte maps to a
// complete, self-contained output (one byte, or a CR followed
// synchronously by its LF/NUL pair), so unlike the decoder it carries
// no lookahead state across calls.
type netasciiEncoder struct{}

// Translate appends the netascii-encoded form of p to dst and returns the
// result.
func (e *netasciiEncoder) Translate(dst, p []byte) []byte {
	for _, c := range p {
		switch c {
		case '\n':
			dst = append(dst, '\r', '\n')
		case '\r':
			dst = append(dst, '\r', 0)
		default:
			dst = append(dst, c)
		}
	}
	return dst
}

// netasciiDecoder translates TFTP netascii wire form back into local byte
// stream form: CR LF -> LF, CR NUL -> CR. It carries a one-byte lookahead
// across calls so a CR landing on a block boundary is handled correctly
// once its continuation byte arrives in the next block (spec §4.3).
type netasciiDecoder struct {
	haveCR bool
}

// Translate appends the locally-decoded form of p to dst and returns the
// result. Call Flush after the final block to emit a straddling CR that
// never got its continuation byte (a malformed but not fatal stream).
func (d *netasciiDecoder) Translate(dst, p []byte) []byte {
	for _, c := range p {
		if d.haveCR {
			d.haveCR = false
			switch c {
			case '\n':
				dst = append(dst, '\n')
				continue
			case 0:
				dst = append(dst, '\r')
				continue
			default:
				// not a valid CR-continuation; emit the CR verbatim and
				// fall through to process c normally.
				dst = append(dst, '\r')
			}
		}
		if c == '\r' {
			d.haveCR = true
			continue
		}
		dst = append(dst, c)
	}
	return dst
}

// Flush emits a CR left dangling at end of stream without its
// continuation byte.
func (d *netasciiDecoder) Flush(dst []byte) []byte {
	if d.haveCR {
		d.haveCR = false
		dst = append(dst, '\r')
	}
	return dst
}
