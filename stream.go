package tarx

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/meigma/tarx/internal/wire"
)

// maxMarkerLen bounds the content of a long-name marker. Real paths stay
// far below this; anything larger indicates a corrupt or hostile stream.
const maxMarkerLen = 64 << 10

// StreamOption configures archive decoding.
type StreamOption func(*Stream)

// StreamWithMaxEntrySize rejects entries whose declared content size
// exceeds n bytes. Zero (the default) means no limit.
func StreamWithMaxEntrySize(n int64) StreamOption {
	return func(s *Stream) {
		s.maxEntrySize = n
	}
}

// Stream is a pull-based iterator over the entries of a tar archive.
//
// A Stream reads from its byte source only when Next is called; nothing
// runs ahead of the consumer. Errors are terminal: after Next returns a
// non-nil error, every subsequent call returns the same error. A clean
// end-of-archive is reported as io.EOF.
//
// A Stream is not restartable and must not be used concurrently.
type Stream struct {
	r            io.Reader
	err          error
	maxEntrySize int64
	blk          [wire.BlockSize]byte
}

// NewStream returns a Stream decoding the archive read from r.
func NewStream(r io.Reader, opts ...StreamOption) *Stream {
	s := &Stream{r: r}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Next returns the next entry in the archive.
//
// Long-name markers are consumed internally; the returned entry always
// carries its full path and link target. io.EOF signals the
// end-of-archive sentinel (two zero blocks); any other error means the
// archive is malformed or the source failed, and the stream is dead.
func (s *Stream) Next() (*Entry, error) {
	if s.err != nil {
		return nil, s.err
	}
	e, err := s.next()
	if err != nil {
		s.err = err
		return nil, err
	}
	return e, nil
}

func (s *Stream) next() (*Entry, error) {
	var longName, longLink string
	var haveName, haveLink bool

	for {
		h, content, err := s.readPhysical()
		if err != nil {
			if err == io.EOF && (haveName || haveLink) {
				// Marker with nothing after it.
				return nil, ErrBadMarker
			}
			return nil, err
		}

		switch h.Typeflag {
		case wire.TypeLongName:
			if haveName {
				return nil, fmt.Errorf("%w: repeated long-name marker", ErrBadMarker)
			}
			longName = markerString(content)
			haveName = true
		case wire.TypeLongLink:
			if haveLink {
				return nil, fmt.Errorf("%w: repeated long-link marker", ErrBadMarker)
			}
			longLink = markerString(content)
			haveLink = true
		default:
			e, err := entryFromHeader(h, content)
			if err != nil {
				return nil, err
			}
			if haveName {
				e.Path = longName
				if e.Kind == KindDirectory {
					e.Path = strings.TrimSuffix(e.Path, "/")
				}
			}
			if haveLink {
				e.Linkname = longLink
			}
			if e.Path == "" {
				return nil, fmt.Errorf("%w: empty entry path", ErrHeader)
			}
			return e, nil
		}
	}
}

// readPhysical reads one header block and, for payload-carrying types,
// the content blocks that follow it. It returns io.EOF only after a
// complete end-of-archive sentinel.
func (s *Stream) readPhysical() (*wire.Header, []byte, error) {
	if err := s.readBlock(); err != nil {
		return nil, nil, err
	}

	if wire.IsZero(s.blk[:]) {
		// First zero block: the sentinel requires a second one.
		if err := s.readBlock(); err != nil {
			return nil, nil, err
		}
		if !wire.IsZero(s.blk[:]) {
			return nil, nil, fmt.Errorf("%w: lone zero block inside archive", ErrHeader)
		}
		return nil, nil, io.EOF
	}

	h, err := wire.Decode(s.blk[:])
	if err != nil {
		switch {
		case errors.Is(err, wire.ErrBadChecksum):
			return nil, nil, ErrChecksum
		default:
			return nil, nil, fmt.Errorf("%w: %v", ErrHeader, err)
		}
	}

	content, err := s.readContent(h)
	if err != nil {
		return nil, nil, err
	}
	return h, content, nil
}

// readContent consumes the payload blocks for types that carry one.
// Directory and link headers are metadata-only; their size field is
// ignored, matching the behavior of other tar implementations.
func (s *Stream) readContent(h *wire.Header) ([]byte, error) {
	switch h.Typeflag {
	case wire.TypeLongName, wire.TypeLongLink:
		if h.Size > maxMarkerLen {
			return nil, fmt.Errorf("%w: oversized marker (%d bytes)", ErrBadMarker, h.Size)
		}
	case wire.TypeRegular, wire.TypeRegularOld:
		// A trailing slash marks a pre-USTAR directory: header-only,
		// whatever the size field claims, like TypeDirectory.
		if strings.HasSuffix(h.Name, "/") {
			return nil, nil
		}
		if s.maxEntrySize > 0 && h.Size > s.maxEntrySize {
			return nil, fmt.Errorf("%s: %w", h.Name, ErrEntryTooLarge)
		}
	default:
		return nil, nil
	}

	if h.Size == 0 {
		return nil, nil
	}
	content := make([]byte, h.Size)
	if _, err := io.ReadFull(s.r, content); err != nil {
		return nil, ErrTruncated
	}
	if pad := wire.Padding(h.Size); pad > 0 {
		if _, err := io.CopyN(io.Discard, s.r, pad); err != nil {
			return nil, ErrTruncated
		}
	}
	return content, nil
}

// readBlock fills s.blk with the next 512 bytes. Running out of input at
// a block boundary is a truncation: a well-formed archive always ends
// with the two-zero-block sentinel, which readPhysical recognizes before
// asking for more.
func (s *Stream) readBlock() error {
	if _, err := io.ReadFull(s.r, s.blk[:]); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return ErrTruncated
		}
		return err
	}
	return nil
}

// entryFromHeader converts a resolved wire header into a public Entry.
func entryFromHeader(h *wire.Header, content []byte) (*Entry, error) {
	e := &Entry{
		Path:     h.Name,
		Linkname: h.Linkname,
		Mode:     fileMode(h.Mode),
		UID:      int(h.UID),
		GID:      int(h.GID),
		Uname:    h.Uname,
		Gname:    h.Gname,
		ModTime:  time.Unix(h.ModTime, 0),
	}

	switch h.Typeflag {
	case wire.TypeRegular, wire.TypeRegularOld:
		// Pre-USTAR archives mark directories with a trailing slash on a
		// regular-file header.
		if strings.HasSuffix(h.Name, "/") {
			e.Kind = KindDirectory
			e.Path = strings.TrimSuffix(h.Name, "/")
		} else {
			e.Kind = KindRegular
			e.Content = content
		}
	case wire.TypeDirectory:
		e.Kind = KindDirectory
		e.Path = strings.TrimSuffix(h.Name, "/")
	case wire.TypeSymlink:
		e.Kind = KindSymlink
	case wire.TypeHardlink:
		e.Kind = KindHardlink
	default:
		return nil, fmt.Errorf("%w: typeflag %q", ErrUnsupportedType, h.Typeflag)
	}
	return e, nil
}

// markerString extracts the NUL-terminated string from marker content.
func markerString(content []byte) string {
	if i := bytes.IndexByte(content, 0); i >= 0 {
		content = content[:i]
	}
	return string(content)
}
