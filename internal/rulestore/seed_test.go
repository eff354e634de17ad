package rulestore

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeSeed(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "seed.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadSeed(t *testing.T) {
	path := writeSeed(t, `
forwards:
  - name: news
    destination: -100111
    sources: [-100222, -100333, -100222]
  - name: alerts
    destination: 42
`)

	snap, err := LoadSeed(path)
	require.NoError(t, err)
	require.Len(t, snap.Rules, 2)
	assert.Equal(t, "news", snap.Rules[0].Name)
	assert.Equal(t, []int64{-100222, -100333}, snap.Rules[0].Sources)
	assert.Equal(t, "alerts", snap.Rules[1].Name)
	assert.Equal(t, []int64{}, snap.Rules[1].Sources)
}

func TestLoadSeedRejectsBadRules(t *testing.T) {
	for name, content := range map[string]string{
		"no name":   "forwards:\n  - destination: 1\n",
		"duplicate": "forwards:\n  - name: a\n    destination: 1\n  - name: a\n    destination: 2\n",
		"bad yaml":  "forwards: [",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := LoadSeed(writeSeed(t, content))
			assert.Error(t, err)
		})
	}
}

func TestLoadSeedMissingFile(t *testing.T) {
	_, err := LoadSeed(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
