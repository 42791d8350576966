// Package wire implements the 512-byte block layout shared by USTAR and
// GNU tar archives: header field offsets, octal number formatting, and
// checksum computation. It deals in raw headers only; long-name marker
// resolution and entry semantics live in the parent package.
package wire

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
)

// BlockSize is the unit all tar structures are aligned to.
const BlockSize = 512

// Typeflag values understood by this codec.
const (
	TypeRegular    = '0'
	TypeRegularOld = '\x00' // pre-USTAR encoding of a regular file
	TypeHardlink   = '1'
	TypeSymlink    = '2'
	TypeDirectory  = '5'
	TypeLongName   = 'L' // GNU: content is the next entry's path
	TypeLongLink   = 'K' // GNU: content is the next entry's link target
)

// LongNamePath is the fixed sentinel path carried by long-name markers.
const LongNamePath = "././@LongLink"

// Capacity of the legacy string fields. Names and link targets longer
// than this need a long-name marker.
const (
	MaxNameLen = 100
	MaxLinkLen = 100
)

// Header field offsets and widths within a 512-byte block.
const (
	offName     = 0
	lenName     = 100
	offMode     = 100
	offUID      = 108
	offGID      = 116
	lenNumeric  = 8
	offSize     = 124
	lenSize     = 12
	offModTime  = 136
	lenModTime  = 12
	offChecksum = 148
	lenChecksum = 8
	offTypeflag = 156
	offLinkname = 157
	lenLinkname = 100
	offMagic    = 257
	offUname    = 265
	lenUname    = 32
	offGname    = 297
	lenGname    = 32
	offPrefix   = 345
	lenPrefix   = 155
)

// magicVersion spans the magic and version fields (257..265).
const (
	magicUSTAR = "ustar\x0000"
	magicGNU   = "ustar  \x00"
)

var zeroBlock [BlockSize]byte

// Errors reported by the codec. The parent package wraps these into its
// public error set.
var (
	ErrFieldOverflow = fmt.Errorf("wire: value does not fit in header field")
	ErrBadHeader     = fmt.Errorf("wire: invalid header block")
	ErrBadChecksum   = fmt.Errorf("wire: header checksum mismatch")
)

// Header is the raw, decoded form of one header block. String fields are
// exactly as stored on the wire; no long-name substitution has happened.
type Header struct {
	Name     string
	Mode     int64
	UID      int64
	GID      int64
	Size     int64
	ModTime  int64 // seconds since the Unix epoch
	Typeflag byte
	Linkname string
	Uname    string
	Gname    string
	GNU      bool // carries the GNU magic instead of USTAR
}

// IsZero reports whether b consists entirely of zero bytes.
func IsZero(b []byte) bool {
	return len(b) == BlockSize && bytes.Equal(b, zeroBlock[:])
}

// Checksum computes the unsigned and signed byte sums of a header block,
// treating the checksum field as eight ASCII spaces.
func Checksum(b []byte) (unsigned, signed int64) {
	for i, c := range b {
		if offChecksum <= i && i < offChecksum+lenChecksum {
			c = ' '
		}
		unsigned += int64(c)
		signed += int64(int8(c))
	}
	return unsigned, signed
}

// Encode serializes h into a single 512-byte block. Name and Linkname
// longer than their fields are truncated; callers that need full fidelity
// must emit long-name markers first. Numeric overflow is an error.
func Encode(h *Header) ([]byte, error) {
	b := make([]byte, BlockSize)

	putString(b[offName:offName+lenName], h.Name)
	if err := putOctal(b[offMode:offMode+lenNumeric], h.Mode); err != nil {
		return nil, fmt.Errorf("mode: %w", err)
	}
	if err := putOctal(b[offUID:offUID+lenNumeric], h.UID); err != nil {
		return nil, fmt.Errorf("uid: %w", err)
	}
	if err := putOctal(b[offGID:offGID+lenNumeric], h.GID); err != nil {
		return nil, fmt.Errorf("gid: %w", err)
	}
	if err := putOctal(b[offSize:offSize+lenSize], h.Size); err != nil {
		return nil, fmt.Errorf("size: %w", err)
	}
	if err := putOctal(b[offModTime:offModTime+lenModTime], h.ModTime); err != nil {
		return nil, fmt.Errorf("mtime: %w", err)
	}
	b[offTypeflag] = h.Typeflag
	putString(b[offLinkname:offLinkname+lenLinkname], h.Linkname)
	magic := magicUSTAR
	if h.GNU {
		magic = magicGNU
	}
	copy(b[offMagic:], magic)
	if err := putNulString(b[offUname:offUname+lenUname], h.Uname); err != nil {
		return nil, fmt.Errorf("uname: %w", err)
	}
	if err := putNulString(b[offGname:offGname+lenGname], h.Gname); err != nil {
		return nil, fmt.Errorf("gname: %w", err)
	}

	// Checksum goes in last: six octal digits, NUL, space.
	unsigned, _ := Checksum(b)
	const digits = 6
	s := strconv.FormatInt(unsigned, 8)
	if len(s) > digits {
		return nil, fmt.Errorf("checksum: %w", ErrFieldOverflow)
	}
	copy(b[offChecksum:], strings.Repeat("0", digits-len(s))+s)
	b[offChecksum+digits] = 0
	b[offChecksum+digits+1] = ' '
	return b, nil
}

// Decode parses a single 512-byte header block, verifying its checksum.
// A non-empty USTAR prefix field is joined into Name.
func Decode(b []byte) (*Header, error) {
	if len(b) != BlockSize {
		return nil, ErrBadHeader
	}

	stored, err := parseOctal(b[offChecksum : offChecksum+lenChecksum])
	if err != nil {
		return nil, ErrBadHeader
	}
	unsigned, signed := Checksum(b)
	if stored != unsigned && stored != signed {
		return nil, ErrBadChecksum
	}

	h := &Header{
		Name:     cString(b[offName : offName+lenName]),
		Typeflag: b[offTypeflag],
		Linkname: cString(b[offLinkname : offLinkname+lenLinkname]),
	}
	if h.Mode, err = parseOctal(b[offMode : offMode+lenNumeric]); err != nil {
		return nil, fmt.Errorf("%w: mode field", ErrBadHeader)
	}
	if h.UID, err = parseOctal(b[offUID : offUID+lenNumeric]); err != nil {
		return nil, fmt.Errorf("%w: uid field", ErrBadHeader)
	}
	if h.GID, err = parseOctal(b[offGID : offGID+lenNumeric]); err != nil {
		return nil, fmt.Errorf("%w: gid field", ErrBadHeader)
	}
	if h.Size, err = parseOctal(b[offSize : offSize+lenSize]); err != nil {
		return nil, fmt.Errorf("%w: size field", ErrBadHeader)
	}
	if h.Size < 0 {
		return nil, fmt.Errorf("%w: negative size", ErrBadHeader)
	}
	if h.ModTime, err = parseOctal(b[offModTime : offModTime+lenModTime]); err != nil {
		return nil, fmt.Errorf("%w: mtime field", ErrBadHeader)
	}

	switch magic := string(b[offMagic : offMagic+8]); magic {
	case magicUSTAR:
		h.Uname = cString(b[offUname : offUname+lenUname])
		h.Gname = cString(b[offGname : offGname+lenGname])
		if prefix := cString(b[offPrefix : offPrefix+lenPrefix]); prefix != "" {
			h.Name = prefix + "/" + h.Name
		}
	case magicGNU:
		h.GNU = true
		h.Uname = cString(b[offUname : offUname+lenUname])
		h.Gname = cString(b[offGname : offGname+lenGname])
	default:
		// Pre-USTAR (V7) headers have a zeroed magic field; anything else
		// is not a tar header.
		if cString(b[offMagic:offMagic+8]) != "" {
			return nil, fmt.Errorf("%w: unrecognized magic", ErrBadHeader)
		}
	}
	return h, nil
}

// Padding returns the number of zero bytes that follow size content bytes
// to reach the next block boundary.
func Padding(size int64) int64 {
	return -size & (BlockSize - 1)
}

// putOctal writes v as zero-padded octal ASCII with a trailing NUL.
func putOctal(b []byte, v int64) error {
	if v < 0 {
		return ErrFieldOverflow
	}
	s := strconv.FormatInt(v, 8)
	if len(s) > len(b)-1 {
		return ErrFieldOverflow
	}
	copy(b, strings.Repeat("0", len(b)-1-len(s))+s)
	b[len(b)-1] = 0
	return nil
}

// parseOctal reads an octal ASCII field, tolerating leading and trailing
// spaces and NULs. An all-padding field parses as zero.
func parseOctal(b []byte) (int64, error) {
	trimmed := strings.Trim(string(b), " \x00")
	if trimmed == "" {
		return 0, nil
	}
	v, err := strconv.ParseInt(trimmed, 8, 64)
	if err != nil {
		return 0, ErrBadHeader
	}
	return v, nil
}

// putString writes s into a fixed field, NUL-padding the remainder. A
// string that fills the field exactly is stored without a terminator.
// Longer strings are truncated; the long-name layer is responsible for
// preserving them.
func putString(b []byte, s string) {
	copy(b, s)
}

// putNulString writes s requiring room for a NUL terminator.
func putNulString(b []byte, s string) error {
	if len(s) > len(b)-1 {
		return ErrFieldOverflow
	}
	copy(b, s)
	return nil
}

// cString reads a NUL-terminated string from a fixed field. A field with
// no NUL uses its full width.
func cString(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	return string(b)
}
