package catalog_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seclens/feedbridge/internal/catalog"
)

func writeCatalog(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "feeds.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad(t *testing.T) {
	path := writeCatalog(t, `feeds:
  - name: phishtank
    url: https://data.phishtank.com/data/online-valid.csv
    format: csv
  - name: newsapi
    url: https://newsapi.org/v2/top-headlines
    format: json
    api_key_env: NEWSAPI_KEY
    index: news-headlines
`)

	cat, err := catalog.Load(path)
	require.NoError(t, err)
	require.Len(t, cat.Feeds, 2)

	feed, err := cat.Lookup("newsapi")
	require.NoError(t, err)
	assert.Equal(t, "json", feed.Format)
	assert.Equal(t, "news-headlines", feed.Index)
	assert.Equal(t, "NEWSAPI_KEY", feed.APIKeyEnv)

	_, err = cat.Lookup("missing")
	assert.Error(t, err)
}

func TestLoadRejectsBadCatalogs(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"missing name", "feeds:\n  - url: https://a.example\n    format: csv\n"},
		{"missing url", "feeds:\n  - name: a\n    format: csv\n"},
		{"bad format", "feeds:\n  - name: a\n    url: https://a.example\n    format: xml\n"},
		{"duplicate name", `feeds:
  - name: a
    url: https://a.example
    format: csv
  - name: a
    url: https://b.example
    format: csv
`},
		{"not yaml", "{{{"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := catalog.Load(writeCatalog(t, tt.content))
			assert.Error(t, err)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := catalog.Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestAPIKeyFromEnv(t *testing.T) {
	t.Setenv("FEEDBRIDGE_TEST_KEY", "s3cret")

	feed := &catalog.Feed{Name: "newsapi", APIKeyEnv: "FEEDBRIDGE_TEST_KEY"}
	assert.Equal(t, "s3cret", feed.APIKey())

	feed.APIKeyEnv = ""
	assert.Empty(t, feed.APIKey())
}
