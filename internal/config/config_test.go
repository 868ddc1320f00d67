package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/oakvm/internal/attach"
	"github.com/roach88/oakvm/internal/gc"
	"github.com/roach88/oakvm/internal/oops"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.True(t, cfg.VM.CompressedOops)
	assert.Equal(t, oops.DefaultMaxArrayLength, cfg.VM.MaxArrayLength)
	assert.Equal(t, int64(gc.DefaultCapacity), cfg.VM.HeapCapacity)
	assert.Equal(t, attach.DefaultInitRetries, cfg.Attach.InitRetries)
	assert.Equal(t, Duration(time.Second), cfg.Attach.InitInterval)
	assert.Equal(t, filepath.Join(cfg.Attach.PipeDir, "attach.sock"), cfg.GatewayPath())
}

func TestLoad_Formats(t *testing.T) {
	for _, file := range []string{"oakvm.yaml", "oakvm.toml"} {
		t.Run(file, func(t *testing.T) {
			cfg, err := Load(filepath.Join("testdata", file))
			require.NoError(t, err)

			assert.False(t, cfg.VM.CompressedOops)
			assert.Equal(t, 1000, cfg.VM.MaxArrayLength)
			assert.Equal(t, int64(1<<20), cfg.VM.HeapCapacity)
			assert.Equal(t, int64(65536), cfg.VM.MetaspaceLimit)
			assert.Equal(t, "/var/run/oakvm", cfg.Attach.PipeDir)
			assert.Equal(t, 3, cfg.Attach.InitRetries)
			assert.Equal(t, Duration(250*time.Millisecond), cfg.Attach.InitInterval)
			assert.Equal(t, "/var/lib/oakvm/journal.db", cfg.Journal.Path)

			// Unset keys keep their defaults.
			assert.Equal(t, oops.DefaultSubtypeCacheSize, cfg.VM.SubtypeCacheSize)
		})
	}
}

func TestLoad_UnknownField(t *testing.T) {
	for _, file := range []string{"unknown.yaml", "unknown.toml"} {
		t.Run(file, func(t *testing.T) {
			_, err := Load(filepath.Join("testdata", file))
			require.Error(t, err)
			assert.Contains(t, err.Error(), "compressed_oop")
		})
	}
}

func TestLoad_Invalid(t *testing.T) {
	_, err := Load(filepath.Join("testdata", "invalid.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "vm.subtype_cache_size must be positive")
	assert.Contains(t, err.Error(), "attach.init_retries must not be negative")
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join("testdata", "missing.yaml"))
	assert.Error(t, err)

	dir := t.TempDir()
	path := filepath.Join(dir, "oakvm.json")
	require.NoError(t, os.WriteFile(path, []byte("{}"), 0o644))
	_, err = Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported extension")

	empty := filepath.Join(dir, "empty.yml")
	require.NoError(t, os.WriteFile(empty, nil, 0o644))
	cfg, err := Load(empty)
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestOptions(t *testing.T) {
	cfg, err := Load(filepath.Join("testdata", "oakvm.yaml"))
	require.NoError(t, err)

	heap := gc.New(cfg.HeapOptions(nil)...)
	assert.False(t, heap.UseCompressedOops())
	assert.Equal(t, int64(1<<20), heap.Capacity())

	u, err := oops.New(heap, cfg.UniverseOptions(nil)...)
	require.NoError(t, err)
	assert.Equal(t, 1000, u.MaxArrayLength())

	l := attach.NewListener(attach.UnixOpener{Dir: cfg.Attach.PipeDir}, cfg.ListenerOptions(nil)...)
	assert.False(t, l.IsInitialized())
}
