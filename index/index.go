// Package index builds and reads sidecar indexes for tar archives.
//
// An index records every entry's path, kind, content offset, size, and
// content digest, plus the whole-archive size and digest. It enables
// random access into an archive (via io.ReaderAt) and integrity
// verification without re-reading the tree, at the cost of one full scan
// when the index is built.
//
// Indexes are serialized as FlatBuffers (schema/index.fbs) and are purely
// advisory: the archive itself remains a plain tar stream.
package index

import (
	"bytes"
	"fmt"
	"io"
	"iter"
	"sort"
	"strings"

	"github.com/opencontainers/go-digest"

	"github.com/meigma/tarx"
	"github.com/meigma/tarx/internal/wire"
)

// Version is the index format version written by this package.
const Version = 1

// Record describes one archive entry.
type Record struct {
	// Path is the archive-relative path, forward-slash separators.
	Path string

	// Kind distinguishes files, directories, and links.
	Kind tarx.Kind

	// Offset is the byte offset of the entry's content in the archive.
	// For metadata-only entries it points just past the header.
	Offset int64

	// Size is the content size in bytes; zero for metadata-only entries.
	Size int64

	// Digest is the content digest; empty for metadata-only entries.
	Digest digest.Digest

	// Linkname is the raw link target for symlinks and hardlinks.
	Linkname string
}

// Index holds the records of one archive in archive order.
type Index struct {
	records       []Record
	byPath        []int // record indices sorted by path
	archiveSize   int64
	archiveDigest digest.Digest
}

// Scan reads an archive once and builds its index. The reader is
// consumed up to and including the end-of-archive sentinel; a malformed
// archive fails with the same errors the tarx Stream would report.
func Scan(r io.Reader) (*Index, error) {
	dig := digest.Canonical.Digester()
	s := &scanner{r: io.TeeReader(r, dig.Hash())}

	var records []Record
	for {
		rec, err := s.next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		records = append(records, *rec)
	}

	idx := &Index{
		records:       records,
		archiveSize:   s.offset,
		archiveDigest: dig.Digest(),
	}
	idx.buildLookup()
	return idx, nil
}

// Len returns the number of records.
func (idx *Index) Len() int {
	return len(idx.records)
}

// ArchiveSize returns the archive size in bytes, sentinel included.
func (idx *Index) ArchiveSize() int64 {
	return idx.archiveSize
}

// ArchiveDigest returns the digest of the complete archive byte stream.
func (idx *Index) ArchiveDigest() digest.Digest {
	return idx.archiveDigest
}

// Lookup returns the record for an archive path.
func (idx *Index) Lookup(path string) (Record, bool) {
	i := sort.Search(len(idx.byPath), func(i int) bool {
		return idx.records[idx.byPath[i]].Path >= path
	})
	if i < len(idx.byPath) && idx.records[idx.byPath[i]].Path == path {
		return idx.records[idx.byPath[i]], true
	}
	return Record{}, false
}

// Records returns an iterator over all records in archive order.
func (idx *Index) Records() iter.Seq[Record] {
	return func(yield func(Record) bool) {
		for _, rec := range idx.records {
			if !yield(rec) {
				return
			}
		}
	}
}

// RecordsWithPrefix returns an iterator over the records under a
// directory prefix, in archive order.
func (idx *Index) RecordsWithPrefix(prefix string) iter.Seq[Record] {
	dirPrefix := strings.TrimSuffix(prefix, "/") + "/"
	return func(yield func(Record) bool) {
		for _, rec := range idx.records {
			if rec.Path != prefix && !strings.HasPrefix(rec.Path, dirPrefix) {
				continue
			}
			if !yield(rec) {
				return
			}
		}
	}
}

func (idx *Index) buildLookup() {
	idx.byPath = make([]int, len(idx.records))
	for i := range idx.byPath {
		idx.byPath[i] = i
	}
	sort.Slice(idx.byPath, func(a, b int) bool {
		return idx.records[idx.byPath[a]].Path < idx.records[idx.byPath[b]].Path
	})
}

// scanner walks archive blocks, tracking byte offsets. It parallels the
// tarx Stream but digests content instead of materializing it.
type scanner struct {
	r      io.Reader
	offset int64
	blk    [wire.BlockSize]byte
}

const maxMarkerLen = 64 << 10

func (s *scanner) next() (*Record, error) {
	var longName, longLink string
	var haveName, haveLink bool

	for {
		if err := s.readBlock(); err != nil {
			return nil, err
		}
		if wire.IsZero(s.blk[:]) {
			if err := s.readBlock(); err != nil {
				return nil, err
			}
			if !wire.IsZero(s.blk[:]) {
				return nil, fmt.Errorf("%w: lone zero block inside archive", tarx.ErrHeader)
			}
			if haveName || haveLink {
				return nil, tarx.ErrBadMarker
			}
			return nil, io.EOF
		}

		h, err := wire.Decode(s.blk[:])
		if err != nil {
			if err == wire.ErrBadChecksum {
				return nil, tarx.ErrChecksum
			}
			return nil, fmt.Errorf("%w: %v", tarx.ErrHeader, err)
		}

		switch h.Typeflag {
		case wire.TypeLongName, wire.TypeLongLink:
			if h.Size > maxMarkerLen {
				return nil, fmt.Errorf("%w: oversized marker", tarx.ErrBadMarker)
			}
			var buf bytes.Buffer
			if err := s.consume(h.Size, &buf); err != nil {
				return nil, err
			}
			value := markerString(buf.Bytes())
			if h.Typeflag == wire.TypeLongName {
				if haveName {
					return nil, fmt.Errorf("%w: repeated long-name marker", tarx.ErrBadMarker)
				}
				longName, haveName = value, true
			} else {
				if haveLink {
					return nil, fmt.Errorf("%w: repeated long-link marker", tarx.ErrBadMarker)
				}
				longLink, haveLink = value, true
			}

		default:
			rec, err := s.record(h)
			if err != nil {
				return nil, err
			}
			if haveName {
				rec.Path = strings.TrimSuffix(longName, "/")
			}
			if haveLink {
				rec.Linkname = longLink
			}
			if rec.Path == "" {
				return nil, fmt.Errorf("%w: empty entry path", tarx.ErrHeader)
			}
			return rec, nil
		}
	}
}

// record builds the Record for a non-marker header, consuming and
// digesting its content blocks.
func (s *scanner) record(h *wire.Header) (*Record, error) {
	rec := &Record{
		Path:     strings.TrimSuffix(h.Name, "/"),
		Offset:   s.offset,
		Linkname: h.Linkname,
	}
	switch h.Typeflag {
	case wire.TypeRegular, wire.TypeRegularOld:
		if strings.HasSuffix(h.Name, "/") {
			rec.Kind = tarx.KindDirectory
			return rec, nil
		}
		rec.Kind = tarx.KindRegular
		rec.Size = h.Size
		dig := digest.Canonical.Digester()
		if err := s.consume(h.Size, dig.Hash()); err != nil {
			return nil, err
		}
		rec.Digest = dig.Digest()
	case wire.TypeDirectory:
		rec.Kind = tarx.KindDirectory
	case wire.TypeSymlink:
		rec.Kind = tarx.KindSymlink
	case wire.TypeHardlink:
		rec.Kind = tarx.KindHardlink
	default:
		return nil, fmt.Errorf("%w: typeflag %q", tarx.ErrUnsupportedType, h.Typeflag)
	}
	return rec, nil
}

// consume streams n content bytes into w and discards the block padding.
func (s *scanner) consume(n int64, w io.Writer) error {
	if _, err := io.CopyN(w, s.r, n); err != nil {
		return tarx.ErrTruncated
	}
	s.offset += n
	if pad := wire.Padding(n); pad > 0 {
		if _, err := io.CopyN(io.Discard, s.r, pad); err != nil {
			return tarx.ErrTruncated
		}
		s.offset += pad
	}
	return nil
}

func (s *scanner) readBlock() error {
	if _, err := io.ReadFull(s.r, s.blk[:]); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return tarx.ErrTruncated
		}
		return err
	}
	s.offset += wire.BlockSize
	return nil
}

func markerString(content []byte) string {
	if i := bytes.IndexByte(content, 0); i >= 0 {
		content = content[:i]
	}
	return string(content)
}
