// Package tarx implements a streaming TAR archive codec.
//
// The package reads and writes the USTAR 512-byte block layout extended
// with the GNU long-name convention, so paths and link targets are not
// limited to the legacy 100-byte header fields. Archives produced here
// are readable by other tar implementations and vice versa.
//
// The main entry points are:
//   - Pack / PackPaths: walk a directory tree and write it as an archive
//   - Unpack / UnpackStream: materialize an archive under a target root
//   - Stream: pull-based entry iterator over archive bytes
//   - Writer: entry-at-a-time archive writer
//
// Compression, PAX extended headers, and sparse files are out of scope;
// wrap the byte streams externally if compression is needed.
package tarx
