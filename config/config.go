// Package config reads and writes the TOML configuration of a quire data
// directory and turns it into the options the other packages take.
package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/asaidimu/go-quire/blob"
	"github.com/asaidimu/go-quire/core/sandbox"
)

// FileName is the config file kept at the root of a data directory.
const FileName = "quire.toml"

// Config represents the main configuration for quire.
type Config struct {
	DataDir    string           `toml:"data_dir" validate:"required"`
	Database   DatabaseConfig   `toml:"database"`
	Blobs      BlobConfig       `toml:"blobs"`
	Encryption EncryptionConfig `toml:"encryption"`
	Sandbox    SandboxConfig    `toml:"sandbox"`
	Search     SearchConfig     `toml:"search"`
	Log        LogConfig        `toml:"log"`
	Metrics    MetricsConfig    `toml:"metrics"`
}

// DatabaseConfig locates the SQLite file. An empty path uses quire.db in
// the data directory.
type DatabaseConfig struct {
	Path string `toml:"path,omitempty"`
}

// BlobConfig represents configuration for the file content store.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type BlobConfig struct {
	Type string `toml:"type" validate:"omitempty,oneof=memory filesystem s3"`

	// Filesystem-specific fields. Root defaults to blobs/ in the data directory.
	Root string `toml:"root,omitempty"`

	// S3-specific fields
	Bucket    string `toml:"bucket,omitempty" validate:"required_if=Type s3"`
	Prefix    string `toml:"prefix,omitempty"`
	Region    string `toml:"region,omitempty" validate:"required_if=Type s3"`
	Endpoint  string `toml:"endpoint,omitempty" validate:"omitempty,url"`
	PathStyle bool   `toml:"path_style,omitempty"`
	// Credentials are read from these environment variables, never from
	// the file itself.
	AccessKeyEnv string `toml:"access_key_env,omitempty"`
	SecretKeyEnv string `toml:"secret_key_env,omitempty"`
}

// EncryptionConfig wraps the blob store in age encryption when enabled.
type EncryptionConfig struct {
	Enabled       bool   `toml:"enabled"`
	PassphraseEnv string `toml:"passphrase_env,omitempty" validate:"required_if=Enabled true"`
}

// SandboxConfig bounds guest code.
type SandboxConfig struct {
	Timeout      Duration `toml:"timeout"`
	MaxCallStack int      `toml:"max_call_stack" validate:"gte=0"`
	Location     string   `toml:"location,omitempty" validate:"omitempty,timezone"`
}

// SearchConfig sizes the search index.
type SearchConfig struct {
	ShardCount int `toml:"shard_count" validate:"gte=0,lte=256"`
}

// LogConfig selects the zap logger built by Logger.
type LogConfig struct {
	Level       string `toml:"level" validate:"omitempty,oneof=debug info warn error"`
	Development bool   `toml:"development"`
}

// MetricsConfig exposes Prometheus metrics on Address when set.
type MetricsConfig struct {
	Address string `toml:"address,omitempty" validate:"omitempty,hostname_port"`
}

// Duration is a time.Duration written as a string such as "250ms".
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", text, err)
	}
	d.Duration = v
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// NewConfig creates a Config for dataDir with default settings.
func NewConfig(dataDir string) *Config {
	defaults := sandbox.DefaultOptions()
	return &Config{
		DataDir: dataDir,
		Blobs:   BlobConfig{Type: blob.TypeFileSystem},
		Encryption: EncryptionConfig{
			PassphraseEnv: "QUIRE_PASSPHRASE",
		},
		Sandbox: SandboxConfig{
			Timeout:      Duration{defaults.Timeout},
			MaxCallStack: defaults.MaxCallStackSize,
			Location:     "UTC",
		},
		Search: SearchConfig{ShardCount: 8},
		Log:    LogConfig{Level: "info"},
	}
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks the config's field constraints.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// DatabasePath resolves the SQLite file.
func (c *Config) DatabasePath() string {
	if c.Database.Path != "" {
		return c.Database.Path
	}
	return filepath.Join(c.DataDir, "quire.db")
}

// BlobStore resolves the blob store settings. S3 credentials are read from
// the environment.
func (c *Config) BlobStore() blob.Config {
	cfg := blob.Config{Type: c.Blobs.Type, Root: c.Blobs.Root}
	if cfg.Type == blob.TypeFileSystem && cfg.Root == "" {
		cfg.Root = filepath.Join(c.DataDir, "blobs")
	}
	if cfg.Type == blob.TypeS3 {
		cfg.S3 = blob.S3Config{
			Bucket:    c.Blobs.Bucket,
			Prefix:    c.Blobs.Prefix,
			Region:    c.Blobs.Region,
			Endpoint:  c.Blobs.Endpoint,
			PathStyle: c.Blobs.PathStyle,
		}
		if c.Blobs.AccessKeyEnv != "" {
			cfg.S3.AccessKeyID = os.Getenv(c.Blobs.AccessKeyEnv)
		}
		if c.Blobs.SecretKeyEnv != "" {
			cfg.S3.SecretAccessKey = os.Getenv(c.Blobs.SecretKeyEnv)
		}
	}
	return cfg
}

// SandboxOptions converts the sandbox section, keeping defaults for unset
// fields.
func (c *Config) SandboxOptions(logger *zap.Logger) (sandbox.Options, error) {
	opts := sandbox.DefaultOptions()
	opts.Logger = logger
	if c.Sandbox.Timeout.Duration > 0 {
		opts.Timeout = c.Sandbox.Timeout.Duration
	}
	if c.Sandbox.MaxCallStack > 0 {
		opts.MaxCallStackSize = c.Sandbox.MaxCallStack
	}
	if c.Sandbox.Location != "" {
		loc, err := time.LoadLocation(c.Sandbox.Location)
		if err != nil {
			return opts, fmt.Errorf("loading sandbox location: %w", err)
		}
		opts.Location = loc
	}
	return opts, nil
}

// Logger builds the zap logger described by the log section.
func (c *Config) Logger() (*zap.Logger, error) {
	zc := zap.NewProductionConfig()
	if c.Log.Development {
		zc = zap.NewDevelopmentConfig()
	}
	if c.Log.Level != "" {
		level, err := zapcore.ParseLevel(c.Log.Level)
		if err != nil {
			return nil, fmt.Errorf("parsing log level: %w", err)
		}
		zc.Level = zap.NewAtomicLevelAt(level)
	}
	zc.OutputPaths = []string{"stderr"}
	return zc.Build()
}

// Passphrase reads the encryption passphrase from the configured variable.
func (c *Config) Passphrase() string {
	if c.Encryption.PassphraseEnv == "" {
		return ""
	}
	return os.Getenv(c.Encryption.PassphraseEnv)
}

// Read decodes and validates a Config.
func Read(r io.Reader) (*Config, error) {
	var cfg Config
	if _, err := toml.NewDecoder(r).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Write encodes a Config to the provided writer.
func Write(w io.Writer, cfg *Config) error {
	if err := toml.NewEncoder(w).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

// ReadFromFile reads a Config from the specified file path.
func ReadFromFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	cfg, err := Read(f)
	if err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}
	return cfg, nil
}

// Init writes cfg to path, refusing to overwrite an existing file.
func Init(path string, cfg *Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()

	if err := Write(f, cfg); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	return nil
}
