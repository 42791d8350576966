package tarhttp

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meigma/tarx"
)

func serveTree(t *testing.T) (*Handler, string) {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "site", "assets"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "site", "index.html"), []byte("<html/>"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "site", "assets", "app.js"), []byte("console.log(1)"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "readme"), []byte("top"), 0o644))
	return NewHandler(dir), dir
}

func TestHandlerServesSubtree(t *testing.T) {
	h, _ := serveTree(t)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/site", nil))

	res := rec.Result()
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, "application/x-tar", res.Header.Get("Content-Type"))
	assert.Contains(t, res.Header.Get("Content-Disposition"), `filename="site.tar"`)

	body := rec.Body.Bytes()
	assert.Equal(t, strconv.Itoa(len(body)), res.Header.Get("Content-Length"))

	// The body must be a complete archive of the subtree.
	dst := t.TempDir()
	require.NoError(t, tarx.Unpack(context.Background(), dst, bytes.NewReader(body)))

	got, err := os.ReadFile(filepath.Join(dst, "index.html"))
	require.NoError(t, err)
	assert.Equal(t, []byte("<html/>"), got)
	assert.FileExists(t, filepath.Join(dst, "assets", "app.js"))
	assert.NoFileExists(t, filepath.Join(dst, "readme"))
}

func TestHandlerServesRoot(t *testing.T) {
	h, _ := serveTree(t)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	dst := t.TempDir()
	require.NoError(t, tarx.Unpack(context.Background(), dst, bytes.NewReader(rec.Body.Bytes())))
	assert.FileExists(t, filepath.Join(dst, "readme"))
	assert.FileExists(t, filepath.Join(dst, "site", "index.html"))
}

func TestHandlerHead(t *testing.T) {
	h, _ := serveTree(t)

	get := httptest.NewRecorder()
	h.ServeHTTP(get, httptest.NewRequest(http.MethodGet, "/site", nil))

	head := httptest.NewRecorder()
	h.ServeHTTP(head, httptest.NewRequest(http.MethodHead, "/site", nil))

	require.Equal(t, http.StatusOK, head.Code)
	assert.Empty(t, head.Body.Bytes())
	assert.Equal(t, strconv.Itoa(get.Body.Len()), head.Result().Header.Get("Content-Length"))
}

func TestHandlerNotFound(t *testing.T) {
	h, _ := serveTree(t)

	tests := []string{"/missing", "/readme", "/site/index.html"}
	for _, path := range tests {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusNotFound, rec.Code, "path %q", path)
	}
}

func TestHandlerMethodNotAllowed(t *testing.T) {
	h, _ := serveTree(t)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/site", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.Equal(t, "GET, HEAD", rec.Result().Header.Get("Allow"))
}

func TestHandlerRejectsTraversal(t *testing.T) {
	h, _ := serveTree(t)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/..%2f..%2fetc", nil))
	assert.NotEqual(t, http.StatusOK, rec.Code)
}
