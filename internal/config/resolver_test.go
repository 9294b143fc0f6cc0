package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	gantryerrors "github.com/gantry-ci/gantry/pkg/gantry/v1/errors"
)

func writeConfigFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0o755))
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestParseEnvironment(t *testing.T) {
	testCases := []struct {
		input   string
		want    Environment
		wantErr bool
	}{
		{"dev", Dev, false},
		{"Development", Dev, false},
		{"staging", Staging, false},
		{"PROD", Prod, false},
		{"production", Prod, false},
		{" stage ", Staging, false},
		{"qa", "", true},
		{"", "", true},
	}
	for _, tc := range testCases {
		t.Run(tc.input, func(t *testing.T) {
			got, err := ParseEnvironment(tc.input)
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestStoreGetPrecedence(t *testing.T) {
	root := t.TempDir()
	writeConfigFile(t, root, "dev.json", `{"region": "us-east-1", "replicas": 3}`)

	store := NewStore(Dev, root)
	require.NoError(t, store.Load())

	// Override beats loaded file.
	assert.Equal(t, "eu-west-1", store.Get("region", "fallback", map[string]string{"region": "eu-west-1"}))
	// Loaded file beats default.
	assert.Equal(t, "us-east-1", store.Get("region", "fallback", nil))
	// Default when neither source has the key.
	assert.Equal(t, "fallback", store.Get("zone", "fallback", nil))
	// Presence wins, not truthiness: an empty override still shadows the file.
	assert.Equal(t, "", store.Get("region", "fallback", map[string]string{"region": ""}))
}

func TestStoreLoadSearchOrder(t *testing.T) {
	root := t.TempDir()
	writeConfigFile(t, filepath.Join(root, "templates"), "staging.json", `{"source": "templates"}`)
	writeConfigFile(t, filepath.Join(root, "config"), "staging.json", `{"source": "config"}`)

	store := NewStore(Staging, root)
	require.NoError(t, store.Load())
	assert.Equal(t, "templates", store.Get("source", "", nil))

	// A root-level file takes precedence over both subdirectories.
	rootPath := writeConfigFile(t, root, "staging.json", `{"source": "root"}`)
	require.NoError(t, store.Reload())
	assert.Equal(t, "root", store.Get("source", "", nil))
	assert.Equal(t, rootPath, store.SourcePath())
}

func TestStoreLoadMissingFileIsNotAnError(t *testing.T) {
	store := NewStore(Prod, t.TempDir())
	require.NoError(t, store.Load())
	assert.Empty(t, store.SourcePath())
	assert.Equal(t, "def", store.Get("anything", "def", nil))
}

func TestStoreLoadSkipsUnderscoreKeys(t *testing.T) {
	root := t.TempDir()
	writeConfigFile(t, root, "dev.json", `{"_comment": "internal note", "app_name": "web"}`)

	store := NewStore(Dev, root)
	require.NoError(t, store.Load())

	assert.False(t, store.Has("_comment", nil))
	assert.Equal(t, "web", store.Get("app_name", "", nil))
}

func TestStoreLoadScalarCoercion(t *testing.T) {
	root := t.TempDir()
	writeConfigFile(t, root, "dev.json", `{"replicas": 3, "ratio": 0.5, "debug": true}`)

	store := NewStore(Dev, root)
	require.NoError(t, store.Load())

	assert.Equal(t, "3", store.Get("replicas", "", nil))
	assert.Equal(t, "0.5", store.Get("ratio", "", nil))
	assert.Equal(t, "true", store.Get("debug", "", nil))
}

func TestStoreLoadRejectsMalformedJSON(t *testing.T) {
	root := t.TempDir()
	writeConfigFile(t, root, "dev.json", `{"region": `)

	store := NewStore(Dev, root)
	err := store.Load()
	require.Error(t, err)
	var parseErr *gantryerrors.ConfigParseError
	assert.ErrorAs(t, err, &parseErr)
}

func TestStoreLoadRejectsNestedValues(t *testing.T) {
	root := t.TempDir()
	writeConfigFile(t, root, "dev.json", `{"nested": {"a": 1}}`)

	store := NewStore(Dev, root)
	err := store.Load()
	require.Error(t, err)
	var parseErr *gantryerrors.ConfigParseError
	assert.ErrorAs(t, err, &parseErr)
}

func TestStoreSchemaVersion(t *testing.T) {
	testCases := []struct {
		name    string
		version string
		wantErr bool
	}{
		{"major v1", `"1.0.0"`, false},
		{"v-prefixed", `"v1.2.3"`, false},
		{"future major", `"2.0.0"`, true},
		{"garbage", `"not-a-version"`, true},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			root := t.TempDir()
			writeConfigFile(t, root, "dev.json", `{"schema_version": `+tc.version+`}`)
			store := NewStore(Dev, root)
			err := store.Load()
			if tc.wantErr {
				var parseErr *gantryerrors.ConfigParseError
				require.ErrorAs(t, err, &parseErr)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestStoreSnapshotIsACopy(t *testing.T) {
	root := t.TempDir()
	writeConfigFile(t, root, "dev.json", `{"region": "us-east-1"}`)

	store := NewStore(Dev, root)
	require.NoError(t, store.Load())

	snap := store.Snapshot(map[string]string{"zone": "a"})
	assert.Equal(t, "us-east-1", snap["region"])
	assert.Equal(t, "a", snap["zone"])

	snap["region"] = "tampered"
	assert.Equal(t, "us-east-1", store.Get("region", "", nil))
}

func TestStoreReloadPicksUpEdits(t *testing.T) {
	root := t.TempDir()
	path := writeConfigFile(t, root, "dev.json", `{"feature": "off"}`)

	store := NewStore(Dev, root)
	require.NoError(t, store.Load())
	assert.Equal(t, "off", store.Get("feature", "", nil))

	require.NoError(t, os.WriteFile(path, []byte(`{"feature": "on"}`), 0o644))
	require.NoError(t, store.Reload())
	assert.Equal(t, "on", store.Get("feature", "", nil))
}
