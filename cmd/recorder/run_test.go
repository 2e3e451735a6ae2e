// cmd/recorder/run_test.go
package main

import (
	"context"
	"encoding/csv"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tamzrod/capture-sync/internal/syncclient"
	"github.com/tamzrod/capture-sync/internal/syncserver"
)

const runYAML = `
recorder:
  output_root: /rec
  server:
    endpoint: %s
  devices:
    - device_id: 1
      name: CAM-1
      sync_policy: relaxed
      segment_frame_limit: 3
      exchange_timeout: 500ms
      telemetry_columns: [source_seq]
      streams:
        - {name: rgb, width: 4, height: 2, fps: 30}
        - {name: depth, width: 4, height: 2}
      source: {type: synthetic, interval_ms: 1, max_frames: 7}
    - device_id: 2
      sync_policy: strict
      segment_frame_limit: 10
      max_total_frames: 4
      exchange_timeout: 500ms
      streams:
        - {name: rgb, width: 2, height: 2}
      source: {type: synthetic, interval_ms: 1, max_frames: 50}
`

func writeConfig(t *testing.T, endpoint string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "capture-sync.yaml")
	require.NoError(t, os.WriteFile(path, []byte(fmt.Sprintf(runYAML, endpoint)), 0o644))
	return path
}

func csvRows(t *testing.T, fs afero.Fs, name string) [][]string {
	t.Helper()
	f, err := fs.Open(filepath.Join("/rec", name))
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	return rows
}

func TestRunRecorder_EndToEnd(t *testing.T) {
	srv := syncserver.NewServer("127.0.0.1:0", []int{1, 2}, nil)
	require.NoError(t, srv.SetInstruction(syncclient.RespSave))
	addr, err := srv.Listen()
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = srv.Serve(ctx) }()

	fs := afero.NewMemMapFs()
	require.NoError(t, runRecorder(ctx, writeConfig(t, addr.String()), fs, slog.Default()))

	// device 1: 7 frames at 3 per segment
	for idx, want := range []int{3, 3, 1} {
		rows := csvRows(t, fs, fmt.Sprintf("1_data_%d.csv", idx))
		require.Len(t, rows, want+1, "segment %d", idx)
		assert.Equal(t, "source_seq", rows[0][5])
		for _, name := range []string{"1_rgb_%d.webm", "1_depth_%d.webm"} {
			ok, err := afero.Exists(fs, filepath.Join("/rec", fmt.Sprintf(name, idx)))
			require.NoError(t, err)
			assert.True(t, ok)
		}
	}
	last := csvRows(t, fs, "1_data_2.csv")
	assert.Equal(t, "6", last[1][3])
	assert.Equal(t, "save", last[1][4])

	// device 2: strict, capped at 4 persisted frames
	rows := csvRows(t, fs, "2_data_0.csv")
	require.Len(t, rows, 5)
	for _, r := range rows[1:] {
		assert.Equal(t, "save", r[4])
		assert.NotEqual(t, syncclient.Unavailable, r[2])
	}

	// both devices closed their session
	assert.Empty(t, srv.Registered())
}

func TestRunRecorder_InvalidConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("recorder:\n  devices: []\n"), 0o644))

	err := runRecorder(context.Background(), path, afero.NewMemMapFs(), slog.Default())
	assert.Error(t, err)
}

func TestRunRecorder_StoppedBeforeStart(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	fs := afero.NewMemMapFs()
	// the server endpoint is never reached: no frame is captured
	require.NoError(t, runRecorder(ctx, writeConfig(t, "127.0.0.1:1"), fs, slog.Default()))

	rows := csvRows(t, fs, "1_data_0.csv")
	assert.Len(t, rows, 1, "header only")
}
