package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestInitialize_WiresService(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, `
app:
  version: "test"
server:
  addr: "127.0.0.1:0"
  api_key: "secret"
hub:
  base_url: "http://hub.test"
directory:
  base_url: "http://ledger.test"
storage:
  driver: sqlite
  sqlite_path: "`+filepath.Join(dir, "s.db")+`"
notify:
  driver: log
  async: false
logging:
  level: error
  file: "`+filepath.Join(dir, "s.log")+`"
`)

	b := NewBootstrap()
	require.NoError(t, b.Initialize(context.Background(), path))
	t.Cleanup(func() { b.Close() })

	assert.NotNil(t, b.Store)
	assert.NotNil(t, b.Reconciler)
	assert.Nil(t, b.Refresher)
	assert.False(t, b.Config.AsyncNotify())

	rec := httptest.NewRecorder()
	b.Server.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	b.Server.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/external-settlement/1/status", nil))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	require.NoError(t, b.Shutdown(context.Background()))
}

func TestInitialize_MissingConfig(t *testing.T) {
	b := NewBootstrap()
	err := b.Initialize(context.Background(), filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}

func TestInitialize_NATSUnavailable(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, `
hub:
  base_url: "http://hub.test"
directory:
  base_url: "http://ledger.test"
storage:
  sqlite_path: "`+filepath.Join(dir, "s.db")+`"
notify:
  driver: nats
  nats_url: "nats://127.0.0.1:1"
logging:
  level: error
  file: "`+filepath.Join(dir, "s.log")+`"
`)

	b := NewBootstrap()
	err := b.Initialize(context.Background(), path)
	require.Error(t, err)
	assert.Empty(t, b.closers)
}
