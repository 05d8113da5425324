package httpsurface_test

import (
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/aiwhisperer/core/pkg/httpsurface"
	"github.com/aiwhisperer/core/pkg/pathguard"
)

func TestHealthzIsUnauthenticated(t *testing.T) {
	guard, err := pathguard.New(t.TempDir())
	require.NoError(t, err)

	s := httpsurface.New(httpsurface.Config{}, guard, nil, nil)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
}

func TestBrowseListsWorkspaceDirectory(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(dir+"/a.txt", []byte("hi"), 0o644))

	guard, err := pathguard.New(dir)
	require.NoError(t, err)

	s := httpsurface.New(httpsurface.Config{}, guard, nil, nil)
	req := httptest.NewRequest(http.MethodGet, "/files/", nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "a.txt")
}
