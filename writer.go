package tarx

import (
	"errors"
	"fmt"
	"io"

	"github.com/meigma/tarx/internal/wire"
)

// Writer encodes entries into the tar wire format.
//
// Entries are written in call order. Close finishes the archive with the
// end-of-archive sentinel; an archive without it will be rejected by
// compliant readers, including this package's Stream.
type Writer struct {
	w      io.Writer
	err    error
	closed bool
	pad    [wire.BlockSize]byte
}

// NewWriter returns a Writer producing an archive on w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

// WriteEntry encodes one entry: long-name markers if needed, the header
// block, and content blocks zero-padded to the block boundary.
//
// Path and link-target length are unbounded. Numeric fields that do not
// fit their legacy width (for example a content size of 8GiB or more)
// fail with ErrFieldOverflow; nothing is ever silently truncated.
func (tw *Writer) WriteEntry(e *Entry) error {
	if tw.err != nil {
		return tw.err
	}
	if tw.closed {
		return ErrWriteAfterClose
	}
	if err := tw.writeEntry(e); err != nil {
		tw.err = err
		return err
	}
	return nil
}

func (tw *Writer) writeEntry(e *Entry) error {
	if err := e.validate(); err != nil {
		return err
	}

	name := e.Path
	if e.Kind == KindDirectory {
		name += "/"
	}

	gnu := false
	if len(name) > wire.MaxNameLen {
		if err := tw.writeMarker(wire.TypeLongName, name); err != nil {
			return err
		}
		gnu = true
	}
	if len(e.Linkname) > wire.MaxLinkLen {
		if err := tw.writeMarker(wire.TypeLongLink, e.Linkname); err != nil {
			return err
		}
		gnu = true
	}

	var mtime int64
	if !e.ModTime.IsZero() {
		mtime = e.ModTime.Unix()
	}

	h := &wire.Header{
		Name:     truncate(name, wire.MaxNameLen),
		Mode:     wireMode(e.Mode),
		UID:      int64(e.UID),
		GID:      int64(e.GID),
		Size:     e.Size(),
		ModTime:  mtime,
		Typeflag: e.typeflag(),
		Linkname: truncate(e.Linkname, wire.MaxLinkLen),
		Uname:    e.Uname,
		Gname:    e.Gname,
		GNU:      gnu,
	}
	block, err := wire.Encode(h)
	if err != nil {
		if errors.Is(err, wire.ErrFieldOverflow) {
			return fmt.Errorf("tarx: %s: %s: %w", e.Path, err, ErrFieldOverflow)
		}
		return fmt.Errorf("tarx: %s: %w", e.Path, err)
	}
	if _, err := tw.w.Write(block); err != nil {
		return err
	}
	return tw.writePadded(e.Content)
}

// writeMarker emits a GNU long-name marker: a synthetic entry whose
// content is the full string, NUL-terminated.
func (tw *Writer) writeMarker(typeflag byte, value string) error {
	data := append([]byte(value), 0)
	h := &wire.Header{
		Name:     wire.LongNamePath,
		Size:     int64(len(data)),
		Typeflag: typeflag,
		GNU:      true,
	}
	block, err := wire.Encode(h)
	if err != nil {
		return fmt.Errorf("tarx: long-name marker: %w", err)
	}
	if _, err := tw.w.Write(block); err != nil {
		return err
	}
	return tw.writePadded(data)
}

// writePadded writes content followed by zero bytes up to the next block
// boundary.
func (tw *Writer) writePadded(content []byte) error {
	if len(content) == 0 {
		return nil
	}
	if _, err := tw.w.Write(content); err != nil {
		return err
	}
	if pad := wire.Padding(int64(len(content))); pad > 0 {
		if _, err := tw.w.Write(tw.pad[:pad]); err != nil {
			return err
		}
	}
	return nil
}

// Close terminates the archive with two zero blocks. It does not close
// the underlying writer.
func (tw *Writer) Close() error {
	if tw.err != nil {
		return tw.err
	}
	if tw.closed {
		return nil
	}
	tw.closed = true
	for range 2 {
		if _, err := tw.w.Write(tw.pad[:]); err != nil {
			tw.err = err
			return err
		}
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) > n {
		return s[:n]
	}
	return s
}
