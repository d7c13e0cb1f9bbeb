package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_Valid(t *testing.T) {
	yaml := `
prtg:
  url: "https://prtg.example.com"
  username: exporter
  password_env: TEST_PRTG_PASSHASH
  page_size: 500
  initial_count: 2000
  channel_parallelism: 4
  sensor_limit: 10000
  requests_per_second: 25
refresh:
  pause: 10s
scrape:
  block_until_ready: true
  block_timeout: 5s
labels:
  static:
    site: fra1
  from_tags: [env]
converters: [wmimemory]
`
	cfg := loadFromString(t, yaml)

	if cfg.PRTG.URL != "https://prtg.example.com" {
		t.Errorf("url: got %q", cfg.PRTG.URL)
	}
	if cfg.PRTG.PageSize != 500 {
		t.Errorf("page_size: got %d", cfg.PRTG.PageSize)
	}
	if cfg.PRTG.InitialCount != 2000 {
		t.Errorf("initial_count: got %d", cfg.PRTG.InitialCount)
	}
	if cfg.PRTG.ChannelParallelism != 4 {
		t.Errorf("channel_parallelism: got %d", cfg.PRTG.ChannelParallelism)
	}
	if cfg.PRTG.SensorLimit != 10000 {
		t.Errorf("sensor_limit: got %d", cfg.PRTG.SensorLimit)
	}
	if cfg.PRTG.RequestsPerSecond != 25 {
		t.Errorf("requests_per_second: got %v", cfg.PRTG.RequestsPerSecond)
	}
	if cfg.Refresh.Pause != 10*time.Second {
		t.Errorf("pause: got %v", cfg.Refresh.Pause)
	}
	if !cfg.Scrape.BlockUntilReady || cfg.Scrape.BlockTimeout != 5*time.Second {
		t.Errorf("scrape: got %+v", cfg.Scrape)
	}
	if cfg.Labels.Static["site"] != "fra1" {
		t.Errorf("labels.static: got %v", cfg.Labels.Static)
	}
	if len(cfg.Labels.FromTags) != 1 || cfg.Labels.FromTags[0] != "env" {
		t.Errorf("labels.from_tags: got %v", cfg.Labels.FromTags)
	}
	if len(cfg.Converters) != 1 || cfg.Converters[0] != ConverterMemory {
		t.Errorf("converters: got %v", cfg.Converters)
	}
}

func TestLoad_Defaults(t *testing.T) {
	cfg := loadFromString(t, "prtg:\n  url: http://prtg:8080\n")

	if cfg.PRTG.PageSize != DefaultPageSize {
		t.Errorf("default page_size: got %d, want %d", cfg.PRTG.PageSize, DefaultPageSize)
	}
	if cfg.PRTG.InitialCount != DefaultInitialCount {
		t.Errorf("default initial_count: got %d, want %d", cfg.PRTG.InitialCount, DefaultInitialCount)
	}
	if cfg.PRTG.ChannelParallelism != DefaultChannelParallelism {
		t.Errorf("default channel_parallelism: got %d", cfg.PRTG.ChannelParallelism)
	}
	if cfg.PRTG.SensorLimit != 0 {
		t.Errorf("default sensor_limit: got %d, want 0", cfg.PRTG.SensorLimit)
	}
	if cfg.Refresh.Pause != DefaultPause {
		t.Errorf("default pause: got %v, want %v", cfg.Refresh.Pause, DefaultPause)
	}
	if cfg.Refresh.StopTimeout != DefaultStopTimeout {
		t.Errorf("default stop_timeout: got %v", cfg.Refresh.StopTimeout)
	}
	if cfg.Server.HTTPPort != DefaultHTTPPort {
		t.Errorf("default http_port: got %d, want %d", cfg.Server.HTTPPort, DefaultHTTPPort)
	}
	if len(cfg.Converters) != 0 {
		t.Errorf("default converters: got %v, want none", cfg.Converters)
	}
	if cfg.Scrape.BlockUntilReady {
		t.Error("default block_until_ready: got true, want false")
	}
}

func TestLoad_EmptyFileUsesDefaultURL(t *testing.T) {
	cfg := loadFromString(t, "")
	if cfg.PRTG.URL != DefaultURL {
		t.Errorf("url: got %q, want %q", cfg.PRTG.URL, DefaultURL)
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"relative url", "prtg:\n  url: prtg.local\n"},
		{"zero page size", "prtg:\n  page_size: 0\n"},
		{"negative limit", "prtg:\n  sensor_limit: -1\n"},
		{"zero parallelism", "prtg:\n  channel_parallelism: 0\n"},
		{"negative rate", "prtg:\n  requests_per_second: -2\n"},
		{"zero pause", "refresh:\n  pause: 0s\n"},
		{"bad static label", "labels:\n  static:\n    \"1bad\": x\n"},
		{"bad tag label", "labels:\n  from_tags: [\"with-dash\"]\n"},
		{"tag label shadows static", "labels:\n  static:\n    env: prod\n  from_tags: [env]\n"},
		{"static label clashes with exported fixed label", "labels:\n  static:\n    group: a\n    exported_group: b\n"},
		{"tag label clashes with exported fixed label", "labels:\n  static:\n    name: a\n  from_tags: [exported_name]\n"},
		{"repeated tag label", "labels:\n  from_tags: [env, env]\n"},
		{"unknown converter", "converters: [snmpcpu]\n"},
		{"port out of range", "server:\n  http_port: 70000\n"},
		{"malformed yaml", "prtg: [\n"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := loadStringErr(t, tc.yaml); err == nil {
				t.Fatal("expected error, got nil")
			}
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("expected error for missing file, got nil")
	}
}

func TestPRTGConfig_Passhash(t *testing.T) {
	t.Setenv("TEST_PRTG_PASSHASH", "123456789")
	p := PRTGConfig{PasswordEnv: "TEST_PRTG_PASSHASH"}
	if got := p.Passhash(); got != "123456789" {
		t.Errorf("Passhash(): got %q, want %q", got, "123456789")
	}
}

func TestPRTGConfig_Passhash_Empty(t *testing.T) {
	p := PRTGConfig{}
	if got := p.Passhash(); got != "" {
		t.Errorf("Passhash() with no PasswordEnv: got %q, want empty", got)
	}
}

func TestWatch_ReloadsOnWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("refresh:\n  pause: 10s\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changed := make(chan *Config, 4)
	done := make(chan error, 1)
	go func() {
		done <- Watch(ctx, path, func(c *Config) {
			select {
			case changed <- c:
			default:
			}
		})
	}()

	// Give the watcher a moment to register before writing.
	time.Sleep(100 * time.Millisecond)
	if err := os.WriteFile(path, []byte("refresh:\n  pause: 42s\n"), 0o600); err != nil {
		t.Fatalf("rewrite config: %v", err)
	}

	// A write may surface as several events, the first of which can observe
	// a truncated file. Wait for the final content.
	deadline := time.After(3 * time.Second)
	for reloaded := false; !reloaded; {
		select {
		case c := <-changed:
			reloaded = c.Refresh.Pause == 42*time.Second
		case <-deadline:
			t.Fatal("onChange not called with the new config")
		}
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Watch returned %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Watch did not return after cancel")
	}
}

// loadFromString writes yaml to a temp file and calls Load, failing on error.
func loadFromString(t *testing.T, content string) *Config {
	t.Helper()
	cfg, err := loadStringErr(t, content)
	if err != nil {
		t.Fatalf("Load() unexpected error: %v", err)
	}
	return cfg
}

// loadStringErr writes yaml to a temp file and calls Load, returning any error.
func loadStringErr(t *testing.T, content string) (*Config, error) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write temp config: %v", err)
	}
	return Load(path)
}

func TestLoad_ExampleFile(t *testing.T) {
	cfg, err := Load(filepath.Join("..", "..", "..", "config.example.yaml"))
	if err != nil {
		t.Fatalf("Load(config.example.yaml): %v", err)
	}
	if cfg.Labels.Static["site"] != "fra1" || len(cfg.Converters) != 2 {
		t.Errorf("example config decoded as %+v", cfg)
	}
}

func TestWatch_RenameSaveAndInvalidFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("refresh:\n  pause: 10s\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changed := make(chan *Config, 4)
	go Watch(ctx, path, func(c *Config) { changed <- c }) //nolint:errcheck
	time.Sleep(100 * time.Millisecond)

	// Invalid content is skipped.
	if err := os.WriteFile(path, []byte("refresh:\n  pause: 0s\n"), 0o600); err != nil {
		t.Fatalf("write invalid config: %v", err)
	}
	select {
	case c := <-changed:
		t.Fatalf("onChange called for invalid config: %+v", c.Refresh)
	case <-time.After(400 * time.Millisecond):
	}

	// Editors replace the file through a rename.
	tmp := filepath.Join(dir, ".config.yaml.swp")
	if err := os.WriteFile(tmp, []byte("refresh:\n  pause: 7s\n"), 0o600); err != nil {
		t.Fatalf("write temp config: %v", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		t.Fatalf("rename: %v", err)
	}
	select {
	case c := <-changed:
		if c.Refresh.Pause != 7*time.Second {
			t.Errorf("pause after rename save = %v, want 7s", c.Refresh.Pause)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("onChange not called after rename save")
	}
}

func TestLoad_LabelShadowingFixedLabelIsExported(t *testing.T) {
	cfg := loadFromString(t, "labels:\n  static:\n    group: a\n  from_tags: [device_role]\n")
	if got := ExportedLabelName("group"); got != "exported_group" {
		t.Errorf("ExportedLabelName(group) = %q", got)
	}
	if got := ExportedLabelName("__meta"); got != "exported___meta" {
		t.Errorf("ExportedLabelName(__meta) = %q", got)
	}
	if got := ExportedLabelName("device_role"); got != "device_role" {
		t.Errorf("ExportedLabelName(device_role) = %q", got)
	}
	if cfg.Labels.Static["group"] != "a" {
		t.Errorf("labels.static: got %v", cfg.Labels.Static)
	}
}
