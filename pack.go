package tarx

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/meigma/tarx/internal/platform"
	"github.com/meigma/tarx/internal/wire"
)

// Pack archives the entire contents of dir to w.
//
// Equivalent to PackPaths with the directory root as the only path.
func Pack(ctx context.Context, dir string, w io.Writer, opts ...PackOption) error {
	return PackPaths(ctx, dir, nil, w, opts...)
}

// PackPaths archives the named paths, relative to dir, to w.
//
// Directories are traversed recursively in lexicographic order, each
// directory listed before its descendants, so output is deterministic
// for a given tree. Symbolic links are stored with their raw, unresolved
// targets and never followed. Regular file content is read in full; the
// recorded size is the byte count observed at read time.
//
// Archive paths are relative to dir and use forward slashes regardless
// of the host separator. An empty or nil paths slice packs all of dir.
//
// Any path that cannot be read fails the whole operation; there is no
// partial-failure tolerance. On failure the bytes already written to w
// do not form a complete archive.
func PackPaths(ctx context.Context, dir string, paths []string, w io.Writer, opts ...PackOption) error {
	cfg := packConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}

	root, err := os.OpenRoot(dir)
	if err != nil {
		return err
	}
	defer root.Close()

	cfg.log().Info("packing archive", "dir", dir, "paths", len(paths))

	p := &packer{root: root, tw: NewWriter(w), cfg: &cfg}
	if len(paths) == 0 {
		paths = []string{"."}
	}
	for _, raw := range paths {
		rel := NormalizePath(raw)
		if rel != "." && !fs.ValidPath(rel) {
			return fmt.Errorf("tarx: invalid pack path %q", raw)
		}
		if err := p.add(ctx, rel); err != nil {
			return err
		}
	}
	if err := p.tw.Close(); err != nil {
		return err
	}

	cfg.log().Debug("archive packed", "entries", p.entries, "bytes", p.bytes)
	return nil
}

// packer holds state for one pack operation.
type packer struct {
	root    *os.Root
	tw      *Writer
	cfg     *packConfig
	entries int
	bytes   int64
}

// add emits the entry for rel and, for directories, its subtree.
func (p *packer) add(ctx context.Context, rel string) error {
	info, err := p.root.Lstat(filepath.FromSlash(rel))
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return p.emit(ctx, rel, info)
	}
	return fs.WalkDir(p.root.FS(), rel, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if path == "." {
			// The archive root itself has no entry; its children carry
			// the structure.
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		return p.emit(ctx, path, info)
	})
}

// emit writes one filesystem object as an archive entry.
func (p *packer) emit(ctx context.Context, path string, info fs.FileInfo) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	uid, gid := platform.FileOwner(info)
	e := &Entry{
		Path:    path,
		Mode:    info.Mode() & (fs.ModePerm | fs.ModeSetuid | fs.ModeSetgid | fs.ModeSticky),
		UID:     uid,
		GID:     gid,
		ModTime: info.ModTime(),
	}

	switch {
	case info.IsDir():
		e.Kind = KindDirectory
	case info.Mode()&fs.ModeSymlink != 0:
		target, err := p.root.Readlink(filepath.FromSlash(path))
		if err != nil {
			return err
		}
		e.Kind = KindSymlink
		e.Linkname = target
	case info.Mode().IsRegular():
		content, err := p.readFile(path)
		if err != nil {
			return err
		}
		e.Kind = KindRegular
		e.Content = content
	default:
		return fmt.Errorf("tarx: %s: %s: %w", path, info.Mode(), ErrUnsupportedType)
	}

	if err := p.tw.WriteEntry(e); err != nil {
		return err
	}
	p.entries++
	p.bytes += e.Size()
	if p.cfg.progress != nil {
		p.cfg.progress(ProgressEvent{Path: path, Entries: p.entries, Bytes: p.bytes})
	}
	p.cfg.log().Debug("packed entry", "path", path, "kind", e.Kind.String(), "size", e.Size())
	return nil
}

// readFile reads a regular file's full content through the pack root.
func (p *packer) readFile(path string) ([]byte, error) {
	f, err := p.root.Open(filepath.FromSlash(path))
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

// PackSize computes the exact archive size in bytes that Pack would
// produce for dir, from metadata alone. It accounts for headers,
// long-name markers, content padding, and the end-of-archive sentinel.
//
// The result is only as stable as the tree: files modified between
// PackSize and Pack change the outcome.
func PackSize(ctx context.Context, dir string, paths ...string) (int64, error) {
	root, err := os.OpenRoot(dir)
	if err != nil {
		return 0, err
	}
	defer root.Close()

	var total int64
	count := func(path string, info fs.FileInfo) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		name := path
		var linkLen, size int64
		switch {
		case info.IsDir():
			name += "/"
		case info.Mode()&fs.ModeSymlink != 0:
			target, err := root.Readlink(filepath.FromSlash(path))
			if err != nil {
				return err
			}
			linkLen = int64(len(target))
		case info.Mode().IsRegular():
			size = info.Size()
		default:
			return fmt.Errorf("tarx: %s: %s: %w", path, info.Mode(), ErrUnsupportedType)
		}
		total += entrySize(int64(len(name)), linkLen, size)
		return nil
	}

	if len(paths) == 0 {
		paths = []string{"."}
	}
	for _, raw := range paths {
		rel := NormalizePath(raw)
		if rel != "." && !fs.ValidPath(rel) {
			return 0, fmt.Errorf("tarx: invalid pack path %q", raw)
		}
		info, err := root.Lstat(filepath.FromSlash(rel))
		if err != nil {
			return 0, err
		}
		if !info.IsDir() {
			if err := count(rel, info); err != nil {
				return 0, err
			}
			continue
		}
		err = fs.WalkDir(root.FS(), rel, func(path string, d fs.DirEntry, walkErr error) error {
			if walkErr != nil {
				return walkErr
			}
			if path == "." {
				return nil
			}
			info, err := d.Info()
			if err != nil {
				return err
			}
			return count(path, info)
		})
		if err != nil {
			return 0, err
		}
	}
	return total + 2*wire.BlockSize, nil
}

// entrySize returns the wire size of one entry given its name length,
// link-target length, and content size.
func entrySize(nameLen, linkLen, contentSize int64) int64 {
	size := int64(wire.BlockSize)
	if nameLen > wire.MaxNameLen {
		size += wire.BlockSize + padded(nameLen+1)
	}
	if linkLen > wire.MaxLinkLen {
		size += wire.BlockSize + padded(linkLen+1)
	}
	return size + padded(contentSize)
}

func padded(n int64) int64 {
	return n + wire.Padding(n)
}
