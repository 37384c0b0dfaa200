package fsutil

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestAtomicWrite(t *testing.T) {
	tmpDir := t.TempDir()

	tests := []struct {
		name     string
		path     string
		existing []byte
		data     []byte
	}{
		{name: "new file", path: filepath.Join(tmpDir, "new.txt"), data: []byte("hello")},
		{name: "overwrite", path: filepath.Join(tmpDir, "existing.txt"), existing: []byte("original"), data: []byte("updated")},
		{name: "empty", path: filepath.Join(tmpDir, "empty.txt"), data: []byte{}},
		{name: "nested directory", path: filepath.Join(tmpDir, "state", "deep", "file.txt"), data: []byte("nested")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.existing != nil {
				require.NoError(t, os.WriteFile(tt.path, tt.existing, 0600))
			}

			require.NoError(t, AtomicWrite(tt.path, tt.data))

			got, err := os.ReadFile(tt.path)
			require.NoError(t, err)
			assert.Equal(t, tt.data, got)

			info, err := os.Stat(tt.path)
			require.NoError(t, err)
			assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
		})
	}
}

func TestAtomicWriteNoTempFilesLeft(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "schedule.json")

	for i := 0; i < 5; i++ {
		require.NoError(t, AtomicWrite(path, []byte("x")))
	}

	entries, err := os.ReadDir(tmpDir)
	require.NoError(t, err)
	for _, e := range entries {
		assert.False(t, strings.Contains(e.Name(), ".tmp."), "temp file left behind: %s", e.Name())
	}
}

func TestAtomicWriteConcurrent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "shared.txt")

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, AtomicWrite(path, []byte("same-content")))
		}()
	}
	wg.Wait()

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "same-content", string(got))
}

func TestAtomicWriteJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	value := map[string]any{"order": "ORD-001", "machine": "FILL_1"}

	require.NoError(t, AtomicWriteJSON(path, value))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(string(data), "}\n"))
	assert.Contains(t, string(data), "\n  ")

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "ORD-001", decoded["order"])

	assert.ErrorIs(t, AtomicWriteJSON(path, nil), ErrNilValue)
}

func TestAtomicWriteYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "planner.yaml")
	type doc struct {
		Retries int `yaml:"retries"`
	}

	require.NoError(t, AtomicWriteYAML(path, doc{Retries: 1}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var got doc
	require.NoError(t, yaml.Unmarshal(data, &got))
	assert.Equal(t, 1, got.Retries)
}
