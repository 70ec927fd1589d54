package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soypat/wl12xx"
	"github.com/soypat/wl12xx/mbox"
	"github.com/soypat/wl12xx/txdata"
)

const sampleConfig = `
[log]
level = "debug"

[tx]
max_total = 64
pace_timeout_ms = 3

[tx.ac.VO]
min = 6
depth = 12
pace = 1

[events]
enabled = ["BSS_LOSE", "rssi_trigger_0"]
max_bcn_loss_ms = 4000

[[conn]]
role = 1
mode = "sta"
link = 1
bssid = "02:00:00:00:00:01"
rssi_threshold = -70

[[conn]]
role = 2
mode = "ap"
link = 2
encrypt = true

  [[conn.peer]]
  link = 5
  addr = "02:00:00:00:00:05"
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "wlctl.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestDefaultMatchesCore(t *testing.T) {
	cfg, conns, err := Default().Core()
	require.NoError(t, err)
	assert.Empty(t, conns)
	assert.Equal(t, wl12xx.DefaultConfig(), cfg)
}

func TestLoadFile(t *testing.T) {
	f, err := Load(writeConfig(t, sampleConfig))
	require.NoError(t, err)

	lvl, err := f.Level()
	require.NoError(t, err)
	assert.Equal(t, slog.LevelDebug, lvl)

	cfg, conns, err := f.Core()
	require.NoError(t, err)
	def := wl12xx.DefaultConfig()
	assert.EqualValues(t, 64, cfg.MaxTotal)
	assert.Equal(t, 3*time.Millisecond, cfg.PaceTimeout)
	assert.EqualValues(t, 6, cfg.MinAC[txdata.ACVoice])
	assert.Equal(t, 12, cfg.Depth[txdata.ACVoice])
	// Untouched values keep their defaults.
	assert.Equal(t, def.Depth[txdata.ACBestEffort], cfg.Depth[txdata.ACBestEffort])
	assert.Equal(t, def.MaxLinks, cfg.MaxLinks)
	assert.Equal(t, def.ConsBcnLossTime, cfg.ConsBcnLossTime)
	assert.Equal(t, 4*time.Second, cfg.MaxBcnLossTime)

	var want mbox.Vector
	want.Enable(mbox.KindBeaconLoss)
	want.Enable(mbox.KindRSSITrigger0)
	assert.Equal(t, want, cfg.Events)

	require.Len(t, conns, 2)
	assert.Equal(t, wl12xx.ConnConfig{
		Role:          1,
		Mode:          wl12xx.ModeStation,
		Link:          1,
		BSSID:         wl12xx.MAC{2, 0, 0, 0, 0, 1},
		RSSIThreshold: -70,
	}, conns[0])
	assert.Equal(t, wl12xx.ModeAP, conns[1].Mode)
	assert.True(t, conns[1].Encrypt)

	peers, err := f.Peers()
	require.NoError(t, err)
	assert.Equal(t, []PeerConfig{{Role: 2, Link: 5, Addr: wl12xx.MAC{2, 0, 0, 0, 0, 5}}}, peers)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	require.Error(t, err)
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("WLCTL_LOG_LEVEL", "trace")
	f, err := Load(writeConfig(t, sampleConfig))
	require.NoError(t, err)
	lvl, err := f.Level()
	require.NoError(t, err)
	assert.Equal(t, slog.LevelDebug-1, lvl)
}

func TestMarshalRoundTrip(t *testing.T) {
	def := Default()
	b, err := Marshal(def)
	require.NoError(t, err)
	f, err := Load(writeConfig(t, string(b)))
	require.NoError(t, err)
	want, _, err := def.Core()
	require.NoError(t, err)
	got, _, err := f.Core()
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestCoreErrors(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*File)
	}{
		{"access category", func(f *File) { f.Tx.AC["XX"] = ACBudget{} }},
		{"event", func(f *File) { f.Events.Enabled = append(f.Events.Enabled, "NOT_AN_EVENT") }},
		{"mode", func(f *File) { f.Conns = []Conn{{Role: 1, Mode: "mesh"}} }},
		{"bssid", func(f *File) { f.Conns = []Conn{{Role: 1, BSSID: "zz"}} }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := Default()
			tt.modify(&f)
			_, _, err := f.Core()
			assert.Error(t, err)
		})
	}
}

func TestParseLevel(t *testing.T) {
	for s, want := range map[string]slog.Level{
		"trace": slog.LevelDebug - 1,
		"DEBUG": slog.LevelDebug,
		"info":  slog.LevelInfo,
		"warn":  slog.LevelWarn,
		"error": slog.LevelError,
	} {
		got, err := ParseLevel(s)
		require.NoError(t, err, s)
		assert.Equal(t, want, got, s)
	}
	_, err := ParseLevel("loud")
	assert.Error(t, err)
}
