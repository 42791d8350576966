package tarx

import (
	"bytes"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meigma/tarx/internal/wire"
)

func TestWriterReencodeIdentity(t *testing.T) {
	// Decoding an archive this package wrote and re-encoding the entries
	// must reproduce it byte for byte.
	entries := sampleEntries()
	entries = append(entries,
		&Entry{
			Path:    "long/" + strings.Repeat("n", 140),
			Kind:    KindRegular,
			Content: []byte("long name payload"),
			Mode:    0o600,
			ModTime: time.Unix(1700000000, 0),
		},
	)
	first := archive(t, entries)

	decoded, err := drain(t, NewStream(bytes.NewReader(first)))
	require.NoError(t, err)

	second := archive(t, decoded)
	assert.Equal(t, first, second)
}

func TestWriterValidation(t *testing.T) {
	tests := []struct {
		name  string
		entry *Entry
	}{
		{"empty path", &Entry{Kind: KindRegular}},
		{"directory with content", &Entry{Path: "d", Kind: KindDirectory, Content: []byte("x")}},
		{"directory with link target", &Entry{Path: "d", Kind: KindDirectory, Linkname: "t"}},
		{"regular with link target", &Entry{Path: "f", Kind: KindRegular, Linkname: "t"}},
		{"symlink without target", &Entry{Path: "l", Kind: KindSymlink}},
		{"symlink with content", &Entry{Path: "l", Kind: KindSymlink, Linkname: "t", Content: []byte("x")}},
		{"hardlink without target", &Entry{Path: "l", Kind: KindHardlink}},
		{"unknown kind", &Entry{Path: "x", Kind: Kind(99)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tw := NewWriter(io.Discard)
			assert.Error(t, tw.WriteEntry(tt.entry))
		})
	}
}

func TestWriterFieldOverflow(t *testing.T) {
	tw := NewWriter(io.Discard)
	err := tw.WriteEntry(&Entry{
		Path:    "f",
		Kind:    KindRegular,
		UID:     1 << 22,
		ModTime: time.Unix(0, 0),
	})
	assert.ErrorIs(t, err, ErrFieldOverflow)
}

func TestWriterWriteAfterClose(t *testing.T) {
	var buf bytes.Buffer
	tw := NewWriter(&buf)
	require.NoError(t, tw.WriteEntry(&Entry{Path: "f", Kind: KindRegular}))
	require.NoError(t, tw.Close())

	err := tw.WriteEntry(&Entry{Path: "g", Kind: KindRegular})
	assert.ErrorIs(t, err, ErrWriteAfterClose)

	// Close is idempotent and must not append a second sentinel.
	n := buf.Len()
	require.NoError(t, tw.Close())
	assert.Equal(t, n, buf.Len())
}

func TestWriterBlockAlignment(t *testing.T) {
	tests := []struct {
		name    string
		content int
		blocks  int
	}{
		{"empty", 0, 1},
		{"one byte", 1, 2},
		{"full block", 512, 2},
		{"block plus one", 513, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			tw := NewWriter(&buf)
			require.NoError(t, tw.WriteEntry(&Entry{
				Path:    "f",
				Kind:    KindRegular,
				Content: bytes.Repeat([]byte("a"), tt.content),
			}))
			assert.Equal(t, tt.blocks*wire.BlockSize, buf.Len())
		})
	}
}

func TestWriterDirectoryTrailingSlash(t *testing.T) {
	var buf bytes.Buffer
	tw := NewWriter(&buf)
	require.NoError(t, tw.WriteEntry(&Entry{Path: "some/dir", Kind: KindDirectory, Mode: 0o755}))

	h, err := wire.Decode(buf.Bytes()[:wire.BlockSize])
	require.NoError(t, err)
	assert.Equal(t, "some/dir/", h.Name)
}

func TestWriterLongNameMarkerLayout(t *testing.T) {
	longPath := strings.Repeat("p", 200)
	var buf bytes.Buffer
	tw := NewWriter(&buf)
	require.NoError(t, tw.WriteEntry(&Entry{Path: longPath, Kind: KindRegular}))

	// Marker header, marker content block, then the real header with a
	// truncated name and GNU magic.
	require.Equal(t, 3*wire.BlockSize, buf.Len())

	marker, err := wire.Decode(buf.Bytes()[:wire.BlockSize])
	require.NoError(t, err)
	assert.Equal(t, wire.LongNamePath, marker.Name)
	assert.Equal(t, byte(wire.TypeLongName), marker.Typeflag)
	assert.Equal(t, int64(len(longPath)+1), marker.Size)

	content := buf.Bytes()[wire.BlockSize : 2*wire.BlockSize]
	assert.Equal(t, longPath, string(content[:len(longPath)]))
	assert.Equal(t, byte(0), content[len(longPath)])

	real, err := wire.Decode(buf.Bytes()[2*wire.BlockSize:])
	require.NoError(t, err)
	assert.Equal(t, longPath[:wire.MaxNameLen], real.Name)
	assert.True(t, real.GNU)
}
