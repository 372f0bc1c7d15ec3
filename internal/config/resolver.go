package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	DefaultConnectionType = "follows"
	DefaultHTTPPort       = 8090
	DefaultLogLevel       = "info"
)

type ValueSource string

const (
	SourceUnknown ValueSource = "unknown"
	SourceConfig  ValueSource = "config"
	SourceEnv     ValueSource = "env"
	SourceCLI     ValueSource = "cli"
	SourceDefault ValueSource = "default"
)

type ResolvedValue struct {
	Value  string      `json:"value"`
	Source ValueSource `json:"source"`
	From   string      `json:"from,omitempty"`
}

// ResolveOptions carries the CLI layer. Empty fields leave lower layers in
// place.
type ResolveOptions struct {
	ConfigPath        string
	CLIDBPath         string
	CLIDataset        string
	CLIConnectionType string
	CLIClusterMode    string
	CLIHTTPPort       string
	CLILogLevel       string
}

type ResolvedConfig struct {
	ConfigPath string `json:"config_path"`

	DBPath         ResolvedValue `json:"db_path"`
	Dataset        ResolvedValue `json:"dataset"`
	ConnectionType ResolvedValue `json:"connection_type"`
	ClusterMode    ResolvedValue `json:"cluster_mode"`
	HTTPPort       ResolvedValue `json:"http_port"`
	LogLevel       ResolvedValue `json:"log_level"`
}

type fileConfig struct {
	DBPath         string `yaml:"db_path"`
	Dataset        string `yaml:"dataset"`
	ConnectionType string `yaml:"connection_type"`
	ClusterMode    string `yaml:"cluster_mode"`
	HTTPPort       int    `yaml:"http_port"`
	LogLevel       string `yaml:"log_level"`
}

func DefaultConfigPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".sociograph", "config.yaml")
}

// ResolveConfig layers built-in defaults, the YAML file, SOCIOGRAPH_* env
// vars and CLI flags, later layers winning. A missing config file is not an
// error.
func ResolveConfig(opts ResolveOptions) (ResolvedConfig, error) {
	path := strings.TrimSpace(opts.ConfigPath)
	if path == "" {
		path = DefaultConfigPath()
	}

	out := ResolvedConfig{ConfigPath: path}
	apply(&out.ConnectionType, DefaultConnectionType, SourceDefault, "built-in default")
	apply(&out.ClusterMode, "directed", SourceDefault, "built-in default")
	apply(&out.HTTPPort, strconv.Itoa(DefaultHTTPPort), SourceDefault, "built-in default")
	apply(&out.LogLevel, DefaultLogLevel, SourceDefault, "built-in default")

	cfg, err := loadConfig(path)
	if err != nil {
		return out, err
	}
	if cfg != nil {
		apply(&out.DBPath, cfg.DBPath, SourceConfig, path)
		apply(&out.Dataset, cfg.Dataset, SourceConfig, path)
		apply(&out.ConnectionType, cfg.ConnectionType, SourceConfig, path)
		apply(&out.ClusterMode, cfg.ClusterMode, SourceConfig, path)
		if cfg.HTTPPort != 0 {
			apply(&out.HTTPPort, strconv.Itoa(cfg.HTTPPort), SourceConfig, path)
		}
		apply(&out.LogLevel, cfg.LogLevel, SourceConfig, path)
	}

	applyEnv(&out.DBPath, "SOCIOGRAPH_DB")
	applyEnv(&out.Dataset, "SOCIOGRAPH_DATASET")
	applyEnv(&out.ConnectionType, "SOCIOGRAPH_CONNECTION_TYPE")
	applyEnv(&out.ClusterMode, "SOCIOGRAPH_CLUSTER_MODE")
	applyEnv(&out.HTTPPort, "SOCIOGRAPH_HTTP_PORT")
	applyEnv(&out.LogLevel, "SOCIOGRAPH_LOG_LEVEL")

	apply(&out.DBPath, opts.CLIDBPath, SourceCLI, "--db")
	apply(&out.Dataset, opts.CLIDataset, SourceCLI, "--dataset")
	apply(&out.ConnectionType, opts.CLIConnectionType, SourceCLI, "--type")
	apply(&out.ClusterMode, opts.CLIClusterMode, SourceCLI, "--mode")
	apply(&out.HTTPPort, opts.CLIHTTPPort, SourceCLI, "--port")
	apply(&out.LogLevel, opts.CLILogLevel, SourceCLI, "--log-level")

	if _, err := out.Port(); err != nil {
		return out, err
	}

	if out.DBPath.Value != "" {
		out.DBPath.Value = expandUserPath(out.DBPath.Value)
	}
	if out.Dataset.Value != "" {
		out.Dataset.Value = expandUserPath(out.Dataset.Value)
	}
	return out, nil
}

// Port returns the HTTP port as a number.
func (r ResolvedConfig) Port() (int, error) {
	p, err := strconv.Atoi(r.HTTPPort.Value)
	if err != nil || p <= 0 || p > 65535 {
		return 0, fmt.Errorf("invalid http_port %q from %s", r.HTTPPort.Value, r.HTTPPort.Source)
	}
	return p, nil
}

func apply(dst *ResolvedValue, raw string, source ValueSource, from string) {
	v := strings.TrimSpace(raw)
	if v == "" {
		return
	}
	*dst = ResolvedValue{Value: v, Source: source, From: from}
}

func applyEnv(dst *ResolvedValue, envKey string) {
	if v := strings.TrimSpace(os.Getenv(envKey)); v != "" {
		*dst = ResolvedValue{Value: v, Source: SourceEnv, From: envKey}
	}
}

func loadConfig(path string) (*fileConfig, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	var cfg fileConfig
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return &cfg, nil
}

func expandUserPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err == nil {
			return filepath.Join(home, path[2:])
		}
	}
	return path
}
