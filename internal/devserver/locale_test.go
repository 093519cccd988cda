package devserver

import (
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeLocales(t *testing.T, root string, names ...string) {
	t.Helper()
	dir := filepath.Join(root, "locale")
	require.NoError(t, os.MkdirAll(dir, 0755))
	for _, name := range names {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name+".json"), []byte("{}"), 0644))
	}
}

func TestLocalePicker(t *testing.T) {
	root := t.TempDir()
	writeLocales(t, root, "nb", "sv", "en")
	lp := newLocalePicker(root)

	tests := []struct {
		name   string
		header string
		want   string
	}{
		{name: "exact match", header: "nb", want: "nb"},
		{name: "region narrows to base", header: "sv-SE", want: "sv"},
		{name: "quality ordering", header: "da;q=0.9, sv;q=0.8", want: "sv"},
		{name: "no header falls back to default", header: "", want: "en"},
		{name: "unknown language falls back to default", header: "zh-CN", want: "en"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", "/", nil)
			if tt.header != "" {
				r.Header.Set("Accept-Language", tt.header)
			}
			assert.Equal(t, tt.want, lp.pick(r))
		})
	}
}

func TestLocalePicker_NoLocaleDirectory(t *testing.T) {
	lp := newLocalePicker(t.TempDir())

	r := httptest.NewRequest("GET", "/", nil)
	r.Header.Set("Accept-Language", "nb")
	assert.Equal(t, "en", lp.pick(r), "without translation files everything resolves to the default")
}
