package tarx

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"
)

// Unpack materializes the archive read from r under dir, creating it if
// necessary. See UnpackStream.
func Unpack(ctx context.Context, dir string, r io.Reader, opts ...UnpackOption) error {
	return UnpackStream(ctx, dir, NewStream(r), opts...)
}

// UnpackStream consumes st and recreates its entries under dir, strictly
// in stream order: a directory entry is materialized before the entries
// naming paths beneath it, exactly as archived.
//
// Directories are created along with any missing ancestors; pre-existing
// directories are not an error. Regular files overwrite whatever is at
// their path. Symbolic links are created with the raw target string; a
// filesystem that cannot create one yields an error wrapped around
// ErrUnsupportedType, never a silent downgrade to a regular file.
//
// An entry whose path would resolve outside dir is rejected with
// ErrInsecurePath. All filesystem operations go through an os.Root
// handle on dir as a second line of defense.
//
// On failure, entries already unpacked remain on disk; there is no
// rollback. Callers needing atomicity should unpack into a fresh
// directory and rename it into place.
func UnpackStream(ctx context.Context, dir string, st *Stream, opts ...UnpackOption) error {
	cfg := unpackConfig{preserveMode: true}
	for _, opt := range opts {
		opt(&cfg)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	root, err := os.OpenRoot(dir)
	if err != nil {
		return err
	}
	defer root.Close()

	cfg.log().Info("unpacking archive", "dir", dir)

	u := &unpacker{root: root, cfg: &cfg}
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		e, err := st.Next()
		if err == io.EOF {
			cfg.log().Debug("archive unpacked", "entries", u.entries)
			return nil
		}
		if err != nil {
			return err
		}
		if err := u.apply(e); err != nil {
			return err
		}
		u.entries++
	}
}

// unpacker holds state for one unpack operation.
type unpacker struct {
	root    *os.Root
	cfg     *unpackConfig
	entries int
}

// apply materializes a single entry.
func (u *unpacker) apply(e *Entry) error {
	rel := NormalizePath(e.Path)
	if !isSecurePath(rel) {
		return fmt.Errorf("%w: %q", ErrInsecurePath, e.Path)
	}
	fsPath := filepath.FromSlash(rel)

	u.cfg.log().Debug("unpacking entry", "path", rel, "kind", e.Kind.String(), "size", e.Size())

	var err error
	switch e.Kind {
	case KindDirectory:
		err = u.applyDir(fsPath, e)
	case KindRegular:
		err = u.applyFile(fsPath, e)
	case KindSymlink:
		err = u.applySymlink(fsPath, e)
	case KindHardlink:
		err = u.applyHardlink(fsPath, e)
	default:
		return fmt.Errorf("tarx: %s: %w", e.Path, ErrUnsupportedType)
	}
	if err != nil {
		return err
	}
	return u.applyMetadata(fsPath, e)
}

func (u *unpacker) applyDir(fsPath string, e *Entry) error {
	return u.root.MkdirAll(fsPath, 0o755)
}

func (u *unpacker) applyFile(fsPath string, e *Entry) error {
	if err := u.ensureParent(fsPath); err != nil {
		return err
	}
	// Drop a pre-existing symlink so the write lands at the entry's own
	// path instead of wherever the link points.
	if err := u.removeNonDir(fsPath); err != nil {
		return err
	}
	f, err := u.root.OpenFile(fsPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.Write(e.Content); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func (u *unpacker) applySymlink(fsPath string, e *Entry) error {
	if err := u.ensureParent(fsPath); err != nil {
		return err
	}
	if err := u.removeNonDir(fsPath); err != nil {
		return err
	}
	if err := u.root.Symlink(e.Linkname, fsPath); err != nil {
		if errors.Is(err, errors.ErrUnsupported) {
			return fmt.Errorf("tarx: symlink %s: %w", e.Path, ErrUnsupportedType)
		}
		return err
	}
	return nil
}

func (u *unpacker) applyHardlink(fsPath string, e *Entry) error {
	target := NormalizePath(e.Linkname)
	if !isSecurePath(target) {
		return fmt.Errorf("%w: link target %q", ErrInsecurePath, e.Linkname)
	}
	if err := u.ensureParent(fsPath); err != nil {
		return err
	}
	if err := u.removeNonDir(fsPath); err != nil {
		return err
	}
	if err := u.root.Link(filepath.FromSlash(target), fsPath); err != nil {
		if errors.Is(err, errors.ErrUnsupported) {
			return fmt.Errorf("tarx: hardlink %s: %w", e.Path, ErrUnsupportedType)
		}
		return err
	}
	return nil
}

// applyMetadata restores mode, ownership, and times per configuration.
// Symlinks are skipped: their permission and time bits are not portable.
func (u *unpacker) applyMetadata(fsPath string, e *Entry) error {
	if e.Kind == KindSymlink {
		return nil
	}
	if u.cfg.preserveMode {
		if err := u.root.Chmod(fsPath, e.Mode); err != nil {
			return err
		}
	}
	if u.cfg.preserveOwner {
		if err := u.root.Chown(fsPath, e.UID, e.GID); err != nil {
			return err
		}
	}
	if u.cfg.preserveTimes && !e.ModTime.IsZero() {
		if err := u.root.Chtimes(fsPath, time.Time{}, e.ModTime); err != nil {
			return err
		}
	}
	return nil
}

// ensureParent creates the missing ancestors of fsPath. Archives usually
// carry directory entries first, but an archive of bare file paths must
// still unpack.
func (u *unpacker) ensureParent(fsPath string) error {
	parent := filepath.Dir(fsPath)
	if parent == "." {
		return nil
	}
	return u.root.MkdirAll(parent, 0o755)
}

// removeNonDir removes an existing filesystem object at fsPath unless it
// is a directory that should be merged into.
func (u *unpacker) removeNonDir(fsPath string) error {
	info, err := u.root.Lstat(fsPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return err
	}
	if info.IsDir() {
		return fmt.Errorf("tarx: %s: is a directory", fsPath)
	}
	return u.root.Remove(fsPath)
}
