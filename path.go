package tarx

import (
	"path"
	"strings"
)

// NormalizePath converts a user-provided path to the archive-canonical
// form used throughout this package.
//
// It performs the following transformations:
//   - Converts backslashes to forward slashes
//   - Strips leading and trailing slashes: "/etc/nginx/" → "etc/nginx"
//   - Collapses consecutive slashes: "etc//nginx" → "etc/nginx"
//   - Converts empty string to root: "" → "."
//
// It does not resolve "." or ".." elements; paths containing them are
// rejected by the Unpacker via isSecurePath.
func NormalizePath(p string) string {
	p = strings.ReplaceAll(p, `\`, "/")
	p = strings.Trim(p, "/")
	if p == "" {
		return "."
	}

	parts := strings.Split(p, "/")
	result := parts[:0] // reuse backing array
	for _, part := range parts {
		if part != "" {
			result = append(result, part)
		}
	}
	if len(result) == 0 {
		return "."
	}
	return strings.Join(result, "/")
}

// isSecurePath reports whether an archive path may be materialized under
// an extraction root: relative, non-empty, and free of "." and ".."
// elements. The caller normalizes first, so absolute paths and empty
// segments have already been stripped.
func isSecurePath(p string) bool {
	if p == "" || p == "." {
		return false
	}
	if path.IsAbs(p) {
		return false
	}
	for part := range strings.SplitSeq(p, "/") {
		if part == "." || part == ".." {
			return false
		}
	}
	return true
}
