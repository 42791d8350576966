package tarx

import "errors"

// Decode errors.
var (
	// ErrHeader is returned when a header block is structurally invalid.
	ErrHeader = errors.New("tarx: invalid tar header")

	// ErrChecksum is returned when a header checksum does not match the
	// header bytes.
	ErrChecksum = errors.New("tarx: header checksum mismatch")

	// ErrTruncated is returned when input ends before the two-zero-block
	// end-of-archive marker.
	ErrTruncated = errors.New("tarx: truncated archive")

	// ErrBadMarker is returned when a GNU long-name marker is not
	// immediately followed by the entry it annotates, or when two markers
	// of the same kind appear in succession.
	ErrBadMarker = errors.New("tarx: malformed long-name marker sequence")

	// ErrEntryTooLarge is returned when an entry's declared size exceeds
	// the limit set with StreamWithMaxEntrySize.
	ErrEntryTooLarge = errors.New("tarx: entry exceeds size limit")
)

// Encode errors.
var (
	// ErrFieldOverflow is returned when a numeric value does not fit in
	// its fixed-width header field. Path and link-target length are not
	// subject to this: the long-name extension removes their cap.
	ErrFieldOverflow = errors.New("tarx: value does not fit in header field")

	// ErrWriteAfterClose is returned when writing to a closed Writer.
	ErrWriteAfterClose = errors.New("tarx: write after close")
)

// Filesystem errors.
var (
	// ErrInsecurePath is returned when an archive entry's path would
	// resolve outside the extraction root.
	ErrInsecurePath = errors.New("tarx: entry path escapes extraction root")

	// ErrUnsupportedType is returned when an entry kind cannot be decoded
	// or cannot be materialized on the target filesystem.
	ErrUnsupportedType = errors.New("tarx: unsupported entry type")
)
