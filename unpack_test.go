package tarx

import (
	"bytes"
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func unpackToDir(t *testing.T, data []byte, opts ...UnpackOption) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, Unpack(context.Background(), dir, bytes.NewReader(data), opts...))
	return dir
}

func TestPackUnpackRoundTrip(t *testing.T) {
	src := buildTestTree(t)
	dst := unpackToDir(t, packToBuffer(t, src))

	err := filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		require.NoError(t, err)
		rel, err := filepath.Rel(src, path)
		require.NoError(t, err)
		if rel == "." {
			return nil
		}
		other := filepath.Join(dst, rel)

		srcInfo, err := os.Lstat(path)
		require.NoError(t, err)
		dstInfo, err := os.Lstat(other)
		require.NoError(t, err, "missing %s", rel)

		require.Equal(t, srcInfo.Mode().Type(), dstInfo.Mode().Type(), "type of %s", rel)
		switch {
		case srcInfo.Mode().IsRegular():
			assert.Equal(t, srcInfo.Mode().Perm(), dstInfo.Mode().Perm(), "perm of %s", rel)
			want, err := os.ReadFile(path)
			require.NoError(t, err)
			got, err := os.ReadFile(other)
			require.NoError(t, err)
			assert.Equal(t, want, got, "content of %s", rel)
		case srcInfo.Mode()&fs.ModeSymlink != 0:
			want, err := os.Readlink(path)
			require.NoError(t, err)
			got, err := os.Readlink(other)
			require.NoError(t, err)
			assert.Equal(t, want, got, "target of %s", rel)
		}
		return nil
	})
	require.NoError(t, err)
}

func TestUnpackLongPaths(t *testing.T) {
	src := t.TempDir()
	long := filepath.Join(strings.Repeat("a", 90), strings.Repeat("b", 90), strings.Repeat("c", 90))
	require.NoError(t, os.MkdirAll(filepath.Join(src, filepath.Dir(long)), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(src, long), []byte("deep"), 0o644))

	dst := unpackToDir(t, packToBuffer(t, src))

	got, err := os.ReadFile(filepath.Join(dst, long))
	require.NoError(t, err)
	assert.Equal(t, []byte("deep"), got)
}

func TestUnpackSymlinkRawTarget(t *testing.T) {
	mtime := time.Unix(1700000000, 0)
	data := archive(t, []*Entry{
		{Path: "escape", Kind: KindSymlink, Linkname: "../outside", Mode: 0o777, ModTime: mtime},
		{Path: "abs", Kind: KindSymlink, Linkname: "/etc/hosts", Mode: 0o777, ModTime: mtime},
	})
	dst := unpackToDir(t, data)

	// Link targets are stored verbatim; creating the link never follows
	// or validates where it points.
	got, err := os.Readlink(filepath.Join(dst, "escape"))
	require.NoError(t, err)
	assert.Equal(t, "../outside", got)

	got, err = os.Readlink(filepath.Join(dst, "abs"))
	require.NoError(t, err)
	assert.Equal(t, "/etc/hosts", got)
}

func TestUnpackRejectsTraversal(t *testing.T) {
	mtime := time.Unix(1700000000, 0)
	tests := []struct {
		name  string
		entry *Entry
	}{
		{"parent escape", &Entry{Path: "../evil", Kind: KindRegular, Content: []byte("x"), Mode: 0o644, ModTime: mtime}},
		{"embedded parent", &Entry{Path: "a/../../evil", Kind: KindRegular, Content: []byte("x"), Mode: 0o644, ModTime: mtime}},
		{"dot directory", &Entry{Path: "a/./b", Kind: KindDirectory, Mode: 0o755, ModTime: mtime}},
		{"hardlink target escape", &Entry{Path: "link", Kind: KindHardlink, Linkname: "../../etc/passwd", Mode: 0o644, ModTime: mtime}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := archive(t, []*Entry{tt.entry})
			err := Unpack(context.Background(), t.TempDir(), bytes.NewReader(data))
			assert.ErrorIs(t, err, ErrInsecurePath)
		})
	}
}

func TestUnpackRelocatesAbsolutePaths(t *testing.T) {
	mtime := time.Unix(1700000000, 0)
	data := archive(t, []*Entry{
		{Path: "/abs/file", Kind: KindRegular, Content: []byte("x"), Mode: 0o644, ModTime: mtime},
	})
	dst := unpackToDir(t, data)

	got, err := os.ReadFile(filepath.Join(dst, "abs", "file"))
	require.NoError(t, err)
	assert.Equal(t, []byte("x"), got)
}

func TestUnpackHardlink(t *testing.T) {
	mtime := time.Unix(1700000000, 0)
	data := archive(t, []*Entry{
		{Path: "orig", Kind: KindRegular, Content: []byte("shared"), Mode: 0o644, ModTime: mtime},
		{Path: "alias", Kind: KindHardlink, Linkname: "orig", Mode: 0o644, ModTime: mtime},
	})
	dst := unpackToDir(t, data)

	got, err := os.ReadFile(filepath.Join(dst, "alias"))
	require.NoError(t, err)
	assert.Equal(t, []byte("shared"), got)

	require.NoError(t, os.WriteFile(filepath.Join(dst, "orig"), []byte("changed"), 0o644))
	got, err = os.ReadFile(filepath.Join(dst, "alias"))
	require.NoError(t, err)
	assert.Equal(t, []byte("changed"), got, "alias must share storage with orig")
}

func TestUnpackGNUTarArchive(t *testing.T) {
	// See TestStreamGNUTarArchive for how testdata/gnu.tar was produced.
	data, err := os.ReadFile(filepath.Join("testdata", "gnu.tar"))
	require.NoError(t, err)

	dst := unpackToDir(t, data)

	got, err := os.ReadFile(filepath.Join(dst, "dir", "hello.txt"))
	require.NoError(t, err)
	assert.Equal(t, "hello from gnu tar\n", string(got))

	target, err := os.Readlink(filepath.Join(dst, "dir", "link"))
	require.NoError(t, err)
	assert.Equal(t, "hello.txt", target)

	through, err := os.ReadFile(filepath.Join(dst, "dir", "link"))
	require.NoError(t, err)
	assert.Equal(t, "hello from gnu tar\n", string(through))

	leaf, err := os.ReadFile(filepath.Join(dst, "dir", strings.Repeat("a", 120), "leaf.txt"))
	require.NoError(t, err)
	assert.Equal(t, "deep payload\n", string(leaf))

	info, err := os.Stat(filepath.Join(dst, "dir", "empty"))
	require.NoError(t, err)
	assert.Zero(t, info.Size())
}

func TestUnpackCreatesMissingParents(t *testing.T) {
	mtime := time.Unix(1700000000, 0)
	data := archive(t, []*Entry{
		{Path: "a/b/c/file", Kind: KindRegular, Content: []byte("x"), Mode: 0o644, ModTime: mtime},
	})
	dst := unpackToDir(t, data)

	got, err := os.ReadFile(filepath.Join(dst, "a", "b", "c", "file"))
	require.NoError(t, err)
	assert.Equal(t, []byte("x"), got)
}

func TestUnpackOverwritesSymlinkInPlace(t *testing.T) {
	dst := t.TempDir()
	outside := t.TempDir()
	target := filepath.Join(outside, "target")
	require.NoError(t, os.WriteFile(target, []byte("original"), 0o644))
	if err := os.Symlink(target, filepath.Join(dst, "victim")); err != nil {
		t.Skipf("symlinks unsupported: %v", err)
	}

	mtime := time.Unix(1700000000, 0)
	data := archive(t, []*Entry{
		{Path: "victim", Kind: KindRegular, Content: []byte("payload"), Mode: 0o644, ModTime: mtime},
	})
	require.NoError(t, Unpack(context.Background(), dst, bytes.NewReader(data)))

	// The write must land at the entry's own path, not through the link.
	outsideContent, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, []byte("original"), outsideContent)

	info, err := os.Lstat(filepath.Join(dst, "victim"))
	require.NoError(t, err)
	assert.True(t, info.Mode().IsRegular())
}

func TestUnpackPreserveTimes(t *testing.T) {
	mtime := time.Unix(1500000000, 0)
	data := archive(t, []*Entry{
		{Path: "f", Kind: KindRegular, Content: []byte("x"), Mode: 0o644, ModTime: mtime},
	})

	dst := unpackToDir(t, data, UnpackWithPreserveTimes(true))
	info, err := os.Stat(filepath.Join(dst, "f"))
	require.NoError(t, err)
	assert.True(t, mtime.Equal(info.ModTime()), "got %v", info.ModTime())
}

func TestUnpackWithoutPreserveMode(t *testing.T) {
	mtime := time.Unix(1700000000, 0)
	data := archive(t, []*Entry{
		{Path: "f", Kind: KindRegular, Content: []byte("x"), Mode: 0o400, ModTime: mtime},
	})

	dst := unpackToDir(t, data, UnpackWithPreserveMode(false))
	info, err := os.Stat(filepath.Join(dst, "f"))
	require.NoError(t, err)
	assert.NotEqual(t, fs.FileMode(0o400), info.Mode().Perm())
}

func TestUnpackCreatesDestination(t *testing.T) {
	dst := filepath.Join(t.TempDir(), "not", "yet", "there")
	data := archive(t, []*Entry{
		{Path: "f", Kind: KindRegular, Content: []byte("x"), Mode: 0o644, ModTime: time.Unix(1700000000, 0)},
	})
	require.NoError(t, Unpack(context.Background(), dst, bytes.NewReader(data)))
	assert.FileExists(t, filepath.Join(dst, "f"))
}

func TestUnpackTruncatedArchiveFails(t *testing.T) {
	data := archive(t, sampleEntries())
	err := Unpack(context.Background(), t.TempDir(), bytes.NewReader(data[:len(data)-1024]))
	assert.ErrorIs(t, err, ErrTruncated)
}

func TestUnpackCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	data := archive(t, sampleEntries())
	err := Unpack(ctx, t.TempDir(), bytes.NewReader(data))
	assert.ErrorIs(t, err, context.Canceled)
}
