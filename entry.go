package tarx

import (
	"fmt"
	"io/fs"
	"time"

	"github.com/meigma/tarx/internal/wire"
)

// Kind identifies what an archive entry represents.
type Kind uint8

const (
	KindRegular Kind = iota
	KindDirectory
	KindSymlink
	KindHardlink
)

// String returns the human-readable name of the entry kind.
func (k Kind) String() string {
	switch k {
	case KindRegular:
		return "file"
	case KindDirectory:
		return "dir"
	case KindSymlink:
		return "symlink"
	case KindHardlink:
		return "hardlink"
	default:
		return "unknown"
	}
}

// Entry represents one archival unit: metadata plus, for regular files,
// the content payload.
//
// The GNU long-name marker records that appear on the wire are not
// representable as an Entry; the Stream resolves them before yielding,
// so consumers only ever see the four kinds above.
type Entry struct {
	// Path is the archive-relative path with forward-slash separators.
	// Length is unbounded; the long-name extension covers paths beyond
	// the legacy 100-byte field.
	Path string

	// Kind distinguishes files, directories, and links.
	Kind Kind

	// Linkname is the raw link target for KindSymlink and KindHardlink.
	// It is never resolved or validated against a filesystem.
	Linkname string

	// Content is the payload for KindRegular; nil or empty otherwise.
	// The entry owns this buffer until the consumer takes it.
	Content []byte

	// Mode holds the permission bits plus setuid/setgid/sticky.
	Mode fs.FileMode

	// Numeric owner identity, carried through unchanged.
	UID int
	GID int

	// Symbolic owner identity; empty when unknown.
	Uname string
	Gname string

	// ModTime is the modification time, stored with second precision.
	ModTime time.Time
}

// Size returns the content length in bytes.
func (e *Entry) Size() int64 {
	return int64(len(e.Content))
}

// validate checks the per-kind invariants before encoding.
func (e *Entry) validate() error {
	if e.Path == "" {
		return fmt.Errorf("tarx: entry has empty path")
	}
	switch e.Kind {
	case KindRegular:
		if e.Linkname != "" {
			return fmt.Errorf("tarx: %s: regular file with link target", e.Path)
		}
	case KindDirectory:
		if len(e.Content) != 0 {
			return fmt.Errorf("tarx: %s: directory with content", e.Path)
		}
		if e.Linkname != "" {
			return fmt.Errorf("tarx: %s: directory with link target", e.Path)
		}
	case KindSymlink, KindHardlink:
		if len(e.Content) != 0 {
			return fmt.Errorf("tarx: %s: link with content", e.Path)
		}
		if e.Linkname == "" {
			return fmt.Errorf("tarx: %s: link without target", e.Path)
		}
	default:
		return fmt.Errorf("tarx: %s: %w", e.Path, ErrUnsupportedType)
	}
	return nil
}

// typeflag returns the wire typeflag for the entry kind.
func (e *Entry) typeflag() byte {
	switch e.Kind {
	case KindDirectory:
		return wire.TypeDirectory
	case KindSymlink:
		return wire.TypeSymlink
	case KindHardlink:
		return wire.TypeHardlink
	default:
		return wire.TypeRegular
	}
}

// Permission bits as stored in the tar mode field.
const (
	modeSetuid = 0o4000
	modeSetgid = 0o2000
	modeSticky = 0o1000
)

// wireMode converts an fs.FileMode to the tar mode field value.
func wireMode(m fs.FileMode) int64 {
	v := int64(m.Perm())
	if m&fs.ModeSetuid != 0 {
		v |= modeSetuid
	}
	if m&fs.ModeSetgid != 0 {
		v |= modeSetgid
	}
	if m&fs.ModeSticky != 0 {
		v |= modeSticky
	}
	return v
}

// fileMode converts a tar mode field value to an fs.FileMode. Type bits
// some implementations fold into the field are discarded; the typeflag
// is authoritative.
func fileMode(v int64) fs.FileMode {
	m := fs.FileMode(v) & fs.ModePerm
	if v&modeSetuid != 0 {
		m |= fs.ModeSetuid
	}
	if v&modeSetgid != 0 {
		m |= fs.ModeSetgid
	}
	if v&modeSticky != 0 {
		m |= fs.ModeSticky
	}
	return m
}
