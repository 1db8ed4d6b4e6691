package cmd

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func newRemote(t *testing.T) *httptest.Server {
	t.Helper()
	docs := map[string]string{
		"/v0/askstories.json":   `[7]`,
		"/v0/item/7.json":       `{"id":7,"type":"story","by":"pg","time":1700000000,"title":"Ask: hi","kids":[8]}`,
		"/v0/item/8.json":       `{"id":8,"type":"comment","by":"tptacek","time":1700000001,"parent":7,"text":"hello"}`,
		"/v0/user/pg.json":      `{"id":"pg","created":1160418092,"karma":155040}`,
		"/v0/user/tptacek.json": `{"id":"tptacek","created":1175012900,"karma":400000}`,
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, ok := docs[r.URL.Path]
		if !ok {
			body = "null"
		}
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func writeConfig(t *testing.T, baseURL string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "hnmirror.yaml")
	cfg := fmt.Sprintf(`
logging:
  level: error
hn:
  base_url: %s/v0
  max_retries: 0
scheduler:
  categories: [ask]
db:
  driver: sqlite
  dsn: %s
server:
  enabled: false
`, baseURL, filepath.Join(dir, "hn.db"))
	require.NoError(t, os.WriteFile(path, []byte(cfg), 0o600))
	return path
}

func TestMigrateCrawlStatus(t *testing.T) {
	cfgPath := writeConfig(t, newRemote(t).URL)
	ctx := context.Background()

	var out bytes.Buffer
	require.NoError(t, execute(ctx, []string{"migrate", "--config", cfgPath}, &out))
	require.Contains(t, out.String(), "schema applied (sqlite)")

	out.Reset()
	require.NoError(t, execute(ctx, []string{"crawl", "--config", cfgPath, "--category", "ask"}, &out))
	require.Contains(t, out.String(), "requested=1 crawled=1 failed=0 items=2 users=2")

	out.Reset()
	require.NoError(t, execute(ctx, []string{"crawl", "--config", cfgPath, "--category", "ask"}, &out))
	require.Contains(t, out.String(), "ask not due")

	out.Reset()
	require.NoError(t, execute(ctx, []string{"crawl", "--config", cfgPath, "--category", "ask", "--force"}, &out))
	require.Contains(t, out.String(), "crawled=1")

	out.Reset()
	require.NoError(t, execute(ctx, []string{"status", "--config", cfgPath}, &out))
	require.Contains(t, out.String(), "CATEGORY")
	require.Contains(t, out.String(), "finished")
}

func TestCrawlRejectsUnknownCategory(t *testing.T) {
	cfgPath := writeConfig(t, newRemote(t).URL)

	var out bytes.Buffer
	err := execute(context.Background(), []string{"crawl", "--config", cfgPath, "--category", "frontpage"}, &out)
	require.ErrorContains(t, err, "unknown category")
}

func TestBadConfigFails(t *testing.T) {
	var out bytes.Buffer
	err := execute(context.Background(), []string{"status", "--config", filepath.Join(t.TempDir(), "missing.yaml")}, &out)
	require.ErrorContains(t, err, "read config")
}
