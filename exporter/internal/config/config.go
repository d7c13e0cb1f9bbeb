package config

import (
	"fmt"
	"net/url"
	"os"
	"sort"
	"time"

	"github.com/prometheus/common/model"
	"gopkg.in/yaml.v3"
)

// Default values applied when fields are absent from the config file.
const (
	DefaultURL                = "http://127.0.0.1:8080"
	DefaultTimeout            = 30 * time.Second
	DefaultInitialCount       = 1000
	DefaultPageSize           = 1000
	DefaultChannelParallelism = 10
	DefaultPause              = 20 * time.Second
	DefaultStopTimeout        = 3 * time.Second
	DefaultHTTPPort           = 9705
	DefaultBroadcastInterval  = 5 * time.Second
)

// Converter names understood by the convert package.
const (
	ConverterCPU    = "wmihypervserver"
	ConverterMemory = "wmimemory"
)

// Config is the top-level exporter configuration.
// Fields map 1:1 to config.example.yaml.
type Config struct {
	PRTG    PRTGConfig    `yaml:"prtg"`
	Refresh RefreshConfig `yaml:"refresh"`
	Scrape  ScrapeConfig  `yaml:"scrape"`
	Labels  LabelsConfig  `yaml:"labels"`

	// Converters lists the sensor types whose display value is parsed by a
	// built-in converter instead of using lastvalue_raw. Empty by default,
	// so every family keeps the prtg_sensor_<type> name.
	Converters []string `yaml:"converters"`

	Server ServerConfig `yaml:"server"`
}

// PRTGConfig describes how to reach the PRTG API and how to page through it.
type PRTGConfig struct {
	// URL is the PRTG base URL, e.g. https://prtg.example.com.
	URL string `yaml:"url"`

	// Username is sent as the username query parameter when non-empty.
	Username string `yaml:"username"`

	// PasswordEnv is the name of the environment variable holding the passhash.
	PasswordEnv string `yaml:"password_env"`

	// Timeout bounds every single HTTP request.
	Timeout time.Duration `yaml:"timeout"`

	// InsecureSkipVerify disables TLS certificate verification.
	InsecureSkipVerify bool `yaml:"insecure_skip_verify"`

	// RequestsPerSecond limits outbound API requests. 0 disables the limit.
	RequestsPerSecond float64 `yaml:"requests_per_second"`

	// InitialCount is the size of the first sensor batch of the first cycle.
	InitialCount int `yaml:"initial_count"`

	// PageSize is the maximum number of sensors requested per API call.
	PageSize int `yaml:"page_size"`

	// ChannelParallelism bounds the number of in-flight channel requests.
	ChannelParallelism int `yaml:"channel_parallelism"`

	// SensorLimit is the soft limit on the number of sensors fetched.
	// 0 means unlimited.
	SensorLimit int `yaml:"sensor_limit"`
}

// Passhash returns the PRTG passhash resolved from the environment.
func (p PRTGConfig) Passhash() string {
	if p.PasswordEnv == "" {
		return ""
	}
	return os.Getenv(p.PasswordEnv)
}

// RefreshConfig controls the background refresh loop.
type RefreshConfig struct {
	// Pause is the sleep between two refresh cycles.
	Pause time.Duration `yaml:"pause"`

	// StopTimeout is how long shutdown waits for the loop to terminate.
	StopTimeout time.Duration `yaml:"stop_timeout"`
}

// ScrapeConfig controls how /metrics reads the snapshot.
type ScrapeConfig struct {
	// BlockUntilReady makes scrapes wait for the first snapshot instead of
	// returning no samples.
	BlockUntilReady bool `yaml:"block_until_ready"`

	// BlockTimeout bounds that wait. 0 waits until a snapshot is published.
	BlockTimeout time.Duration `yaml:"block_timeout"`
}

// LabelsConfig configures the enrichment stages.
type LabelsConfig struct {
	// Static labels are added to every sample.
	Static map[string]string `yaml:"static"`

	// FromTags lists label names extracted from "name=value" sensor tags.
	FromTags []string `yaml:"from_tags"`
}

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	// HTTPPort serves /metrics, the JSON API and the WebSocket stream.
	HTTPPort int `yaml:"http_port"`

	// BroadcastInterval controls how often status is pushed to WebSocket clients.
	BroadcastInterval time.Duration `yaml:"broadcast_interval"`
}

// Load reads and parses the YAML config file at path.
// Missing optional fields are filled with sensible defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML config data, applies defaults and validates the result.
func Parse(data []byte) (*Config, error) {
	cfg := Defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse yaml: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	return cfg, nil
}

// Defaults returns a Config pre-populated with default values.
func Defaults() *Config {
	return &Config{
		PRTG: PRTGConfig{
			URL:                DefaultURL,
			Timeout:            DefaultTimeout,
			InitialCount:       DefaultInitialCount,
			PageSize:           DefaultPageSize,
			ChannelParallelism: DefaultChannelParallelism,
		},
		Refresh: RefreshConfig{
			Pause:       DefaultPause,
			StopTimeout: DefaultStopTimeout,
		},
		Server: ServerConfig{
			HTTPPort:          DefaultHTTPPort,
			BroadcastInterval: DefaultBroadcastInterval,
		},
	}
}

// validate checks required fields and structural constraints.
func validate(cfg *Config) error {
	p := cfg.PRTG
	if p.URL == "" {
		return fmt.Errorf("prtg.url is required")
	}
	u, err := url.Parse(p.URL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("prtg.url %q is not an absolute URL", p.URL)
	}
	if p.Timeout <= 0 {
		return fmt.Errorf("prtg.timeout must be positive")
	}
	if p.RequestsPerSecond < 0 {
		return fmt.Errorf("prtg.requests_per_second must not be negative")
	}
	if p.InitialCount <= 0 {
		return fmt.Errorf("prtg.initial_count must be positive")
	}
	if p.PageSize <= 0 {
		return fmt.Errorf("prtg.page_size must be positive")
	}
	if p.ChannelParallelism <= 0 {
		return fmt.Errorf("prtg.channel_parallelism must be positive")
	}
	if p.SensorLimit < 0 {
		return fmt.Errorf("prtg.sensor_limit must not be negative")
	}
	if cfg.Refresh.Pause <= 0 {
		return fmt.Errorf("refresh.pause must be positive")
	}
	if cfg.Refresh.StopTimeout <= 0 {
		return fmt.Errorf("refresh.stop_timeout must be positive")
	}
	if cfg.Scrape.BlockTimeout < 0 {
		return fmt.Errorf("scrape.block_timeout must not be negative")
	}
	if err := validateLabels(cfg.Labels); err != nil {
		return err
	}
	for i, name := range cfg.Converters {
		switch name {
		case ConverterCPU, ConverterMemory:
		default:
			return fmt.Errorf("converters[%d]: unknown converter %q", i, name)
		}
	}
	if cfg.Server.HTTPPort <= 0 || cfg.Server.HTTPPort > 65535 {
		return fmt.Errorf("server.http_port %d out of range", cfg.Server.HTTPPort)
	}
	if cfg.Server.BroadcastInterval <= 0 {
		return fmt.Errorf("server.broadcast_interval must be positive")
	}
	return nil
}

// validateLabels checks the additional label names and rejects any two that
// would be exported under the same name.
func validateLabels(l LabelsConfig) error {
	exported := make(map[string]string, len(l.Static)+len(l.FromTags))
	claim := func(field, name string) error {
		if !model.LabelName(name).IsValid() {
			return fmt.Errorf("%s: invalid label name %q", field, name)
		}
		e := ExportedLabelName(name)
		if prev, ok := exported[e]; ok {
			return fmt.Errorf("%s: %q and %q are both exported as %q", field, prev, name, e)
		}
		exported[e] = name
		return nil
	}

	static := make([]string, 0, len(l.Static))
	for name := range l.Static {
		static = append(static, name)
	}
	sort.Strings(static)
	for _, name := range static {
		if err := claim("labels.static", name); err != nil {
			return err
		}
	}
	for i, name := range l.FromTags {
		if err := claim(fmt.Sprintf("labels.from_tags[%d]", i), name); err != nil {
			return err
		}
	}
	return nil
}
