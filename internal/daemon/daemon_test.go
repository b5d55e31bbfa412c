package daemon

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRejectsNonPositiveInterval(t *testing.T) {
	_, err := New(0, func(ctx context.Context) error { return nil })
	assert.Error(t, err)
}

func TestDaemonRunsImmediatelyAndStops(t *testing.T) {
	var runs atomic.Int32
	d, err := New(time.Hour, func(ctx context.Context) error {
		runs.Add(1)
		return nil
	})
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, d.Start(ctx))

	assert.Eventually(t, func() bool { return runs.Load() >= 1 },
		5*time.Second, 10*time.Millisecond, "initial build fires immediately")
	require.NoError(t, d.Stop(ctx))
}

func TestTickSkipsOverlappingRun(t *testing.T) {
	release := make(chan struct{})
	var runs atomic.Int32
	d, err := New(time.Hour, func(ctx context.Context) error {
		runs.Add(1)
		<-release
		return nil
	})
	require.NoError(t, err)

	ctx := context.Background()
	go d.tick(ctx)
	assert.Eventually(t, func() bool { return runs.Load() == 1 },
		time.Second, 5*time.Millisecond)

	d.tick(ctx) // overlapping tick is dropped, does not block
	assert.Equal(t, int32(1), runs.Load())
	close(release)
}

func TestConfigWatcherFiresOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("output_dir: a\n"), 0o644))

	var fired atomic.Int32
	cw, err := NewConfigWatcher(path, func() { fired.Add(1) })
	require.NoError(t, err)
	cw.debounceTime = 20 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, cw.Start(ctx))
	defer func() { _ = cw.Stop() }()

	require.NoError(t, os.WriteFile(path, []byte("output_dir: b\n"), 0o644))
	assert.Eventually(t, func() bool { return fired.Load() >= 1 },
		5*time.Second, 10*time.Millisecond)
}

func TestConfigWatcherIgnoresSiblingFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("x: 1\n"), 0o644))

	var fired atomic.Int32
	cw, err := NewConfigWatcher(path, func() { fired.Add(1) })
	require.NoError(t, err)
	cw.debounceTime = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, cw.Start(ctx))
	defer func() { _ = cw.Stop() }()

	require.NoError(t, os.WriteFile(filepath.Join(dir, "other.txt"), []byte("hi"), 0o644))
	time.Sleep(100 * time.Millisecond)
	assert.Zero(t, fired.Load())
}
