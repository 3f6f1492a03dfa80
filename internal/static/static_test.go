package static

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func distFS() fstest.MapFS {
	return fstest.MapFS{
		"index.html":         {Data: []byte("<html>app</html>")},
		"assets/index-1.js":  {Data: []byte("console.log(1)")},
		"assets/index-1.css": {Data: []byte("body{}")},
		"favicon.ico":        {Data: []byte("ico")},
	}
}

func get(t *testing.T, h http.Handler, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", target, nil))
	return rec
}

func TestHandler_SPA(t *testing.T) {
	h := NewFS(distFS(), true)

	tests := []struct {
		name       string
		path       string
		wantStatus int
		wantBody   string
	}{
		{"root", "/", http.StatusOK, "<html>app</html>"},
		{"asset", "/assets/index-1.js", http.StatusOK, "console.log(1)"},
		{"client route", "/dashboard/settings", http.StatusOK, "<html>app</html>"},
		{"missing asset", "/assets/missing.js", http.StatusNotFound, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := get(t, h, tt.path)
			assert.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantBody != "" {
				assert.Contains(t, rec.Body.String(), tt.wantBody)
			}
		})
	}
}

func TestHandler_SPAFallbackKeepsRequestPath(t *testing.T) {
	h := NewFS(distFS(), true)
	req := httptest.NewRequest("GET", "/users/42", nil)
	h.ServeHTTP(httptest.NewRecorder(), req)
	assert.Equal(t, "/users/42", req.URL.Path)
}

func TestHandler_NoSPA(t *testing.T) {
	h := NewFS(distFS(), false)

	assert.Equal(t, http.StatusOK, get(t, h, "/assets/index-1.css").Code)
	assert.Equal(t, http.StatusNotFound, get(t, h, "/dashboard").Code)
}

func TestNew_Directory(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "index.html"), []byte("disk"), 0o644))

	h, err := New(dir, true)
	require.NoError(t, err)

	rec := get(t, h, "/anything")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "disk")
}

func TestNew_Errors(t *testing.T) {
	_, err := New(filepath.Join(t.TempDir(), "missing"), true)
	assert.Error(t, err)

	file := filepath.Join(t.TempDir(), "file.txt")
	require.NoError(t, os.WriteFile(file, nil, 0o644))
	_, err = New(file, false)
	assert.Error(t, err)
}
