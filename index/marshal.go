package index

import (
	"errors"
	"fmt"

	flatbuffers "github.com/google/flatbuffers/go"
	"github.com/opencontainers/go-digest"

	"github.com/meigma/tarx"
	"github.com/meigma/tarx/index/internal/fb"
)

// ErrBadIndex is returned when index data cannot be parsed or carries an
// unknown version.
var ErrBadIndex = errors.New("index: malformed index data")

// Marshal serializes the index to its FlatBuffers form.
func (idx *Index) Marshal() []byte {
	builder := flatbuffers.NewBuilder(1024)

	// Build entries in reverse order (FlatBuffers requirement).
	offsets := make([]flatbuffers.UOffsetT, len(idx.records))
	for i := len(idx.records) - 1; i >= 0; i-- {
		rec := idx.records[i]

		pathOff := builder.CreateString(rec.Path)
		var digestOff, linknameOff flatbuffers.UOffsetT
		if rec.Digest != "" {
			digestOff = builder.CreateString(string(rec.Digest))
		}
		if rec.Linkname != "" {
			linknameOff = builder.CreateString(rec.Linkname)
		}

		fb.EntryStart(builder)
		fb.EntryAddPath(builder, pathOff)
		fb.EntryAddKind(builder, byte(rec.Kind))
		fb.EntryAddOffset(builder, uint64(rec.Offset))
		fb.EntryAddSize(builder, uint64(rec.Size))
		if digestOff != 0 {
			fb.EntryAddDigest(builder, digestOff)
		}
		if linknameOff != 0 {
			fb.EntryAddLinkname(builder, linknameOff)
		}
		offsets[i] = fb.EntryEnd(builder)
	}

	fb.IndexStartEntriesVector(builder, len(offsets))
	for i := len(offsets) - 1; i >= 0; i-- {
		builder.PrependUOffsetT(offsets[i])
	}
	entriesOff := builder.EndVector(len(offsets))

	var archiveDigestOff flatbuffers.UOffsetT
	if idx.archiveDigest != "" {
		archiveDigestOff = builder.CreateString(string(idx.archiveDigest))
	}

	fb.IndexStart(builder)
	fb.IndexAddVersion(builder, Version)
	fb.IndexAddEntries(builder, entriesOff)
	fb.IndexAddArchiveSize(builder, uint64(idx.archiveSize))
	if archiveDigestOff != 0 {
		fb.IndexAddArchiveDigest(builder, archiveDigestOff)
	}
	builder.Finish(fb.IndexEnd(builder))
	return builder.FinishedBytes()
}

// Load parses a FlatBuffers-encoded index.
func Load(data []byte) (idx *Index, err error) {
	// FlatBuffers accessors panic on malformed buffers; contain that to
	// a parse error.
	defer func() {
		if r := recover(); r != nil {
			idx = nil
			err = fmt.Errorf("%w: %v", ErrBadIndex, r)
		}
	}()
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty input", ErrBadIndex)
	}

	root := fb.GetRootAsIndex(data, 0)
	if v := root.Version(); v != Version {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrBadIndex, v)
	}

	records := make([]Record, 0, root.EntriesLength())
	var fbEntry fb.Entry
	for i := range root.EntriesLength() {
		if !root.Entries(&fbEntry, i) {
			return nil, fmt.Errorf("%w: entry %d", ErrBadIndex, i)
		}
		records = append(records, Record{
			Path:     string(fbEntry.Path()),
			Kind:     tarx.Kind(fbEntry.Kind()),
			Offset:   int64(fbEntry.Offset()),
			Size:     int64(fbEntry.Size()),
			Digest:   digest.Digest(fbEntry.Digest()),
			Linkname: string(fbEntry.Linkname()),
		})
	}

	idx = &Index{
		records:       records,
		archiveSize:   int64(root.ArchiveSize()),
		archiveDigest: digest.Digest(root.ArchiveDigest()),
	}
	idx.buildLookup()
	return idx, nil
}
