package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/DocKV/dockv/pkg/store"
	"github.com/DocKV/dockv/pkg/telemetry"
)

const (
	CurrentManifestVersion = 1

	DefaultManifestFileName = "MANIFEST"
)

var (
	ErrInvalidConfig    = errors.New("invalid configuration")
	ErrManifestNotFound = errors.New("manifest not found")
	ErrInvalidManifest  = errors.New("invalid manifest")
)

// Config holds the runtime configuration for a dockv data directory.
type Config struct {
	Version int `json:"version"`

	// Storage
	DataDir            string `json:"data_dir"`
	SegmentDir         string `json:"segment_dir"`
	SegmentCompression string `json:"segment_compression"`

	// Transaction status authority
	StatusAuthorityEndpoint string `json:"status_authority_endpoint,omitempty"`
	StatusRequestTimeoutMs  int64  `json:"status_request_timeout_ms"`

	// Telemetry
	Telemetry telemetry.Config `json:"telemetry"`

	mu sync.RWMutex
}

// NewDefaultConfig creates a Config with reasonable defaults rooted at dataDir.
func NewDefaultConfig(dataDir string) *Config {
	return &Config{
		Version:                CurrentManifestVersion,
		DataDir:                dataDir,
		SegmentDir:             filepath.Join(dataDir, "segments"),
		SegmentCompression:     store.ZstdCompression.String(),
		StatusRequestTimeoutMs: 1000,
		Telemetry:              telemetry.DefaultConfig(),
	}
}

// Validate checks the configuration for invalid values.
func (c *Config) Validate() error {
	if c == nil {
		return fmt.Errorf("%w: configuration cannot be nil", ErrInvalidConfig)
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.Version <= 0 {
		return fmt.Errorf("%w: invalid version %d", ErrInvalidConfig, c.Version)
	}

	if c.DataDir == "" {
		return fmt.Errorf("%w: data_dir cannot be empty", ErrInvalidConfig)
	}

	if c.SegmentDir == "" {
		return fmt.Errorf("%w: segment_dir cannot be empty", ErrInvalidConfig)
	}

	if _, err := c.compression(); err != nil {
		return err
	}

	if c.StatusRequestTimeoutMs <= 0 {
		return fmt.Errorf("%w: status_request_timeout_ms must be positive", ErrInvalidConfig)
	}

	if err := c.Telemetry.Validate(); err != nil {
		return fmt.Errorf("%w: telemetry: %v", ErrInvalidConfig, err)
	}

	return nil
}

// Compression returns the configured segment compression codec.
func (c *Config) Compression() (store.Compression, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.compression()
}

func (c *Config) compression() (store.Compression, error) {
	switch c.SegmentCompression {
	case store.NoCompression.String():
		return store.NoCompression, nil
	case store.ZstdCompression.String():
		return store.ZstdCompression, nil
	default:
		return 0, fmt.Errorf("%w: unknown segment_compression %q", ErrInvalidConfig, c.SegmentCompression)
	}
}

// StatusRequestTimeout returns the per-request timeout for status authority calls.
func (c *Config) StatusRequestTimeout() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return time.Duration(c.StatusRequestTimeoutMs) * time.Millisecond
}

// ManifestPath returns the path to the manifest file under the data directory.
func (c *Config) ManifestPath() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return filepath.Join(c.DataDir, DefaultManifestFileName)
}

// LoadConfigFromManifest loads a Config from the manifest in dataDir.
func LoadConfigFromManifest(dataDir string) (*Config, error) {
	manifestPath := filepath.Join(dataDir, DefaultManifestFileName)
	data, err := os.ReadFile(manifestPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrManifestNotFound
		}
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidManifest, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// SaveManifest persists the configuration to the manifest file atomically.
func (c *Config) SaveManifest(dataDir string) error {
	if err := c.Validate(); err != nil {
		return err
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	manifestPath := filepath.Join(dataDir, DefaultManifestFileName)
	tempPath := manifestPath + ".tmp"

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal configuration: %w", err)
	}

	if err := os.WriteFile(tempPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write manifest: %w", err)
	}

	if err := os.Rename(tempPath, manifestPath); err != nil {
		return fmt.Errorf("failed to rename manifest: %w", err)
	}

	return nil
}

// Update applies fn to a copy of the configuration, validates it, and commits
// the result. The configuration is unchanged if validation fails.
func (c *Config) Update(fn func(*Config)) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	data, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal current configuration: %w", err)
	}

	var next Config
	if err := json.Unmarshal(data, &next); err != nil {
		return fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	fn(&next)
	if err := next.Validate(); err != nil {
		return err
	}

	c.Version = next.Version
	c.DataDir = next.DataDir
	c.SegmentDir = next.SegmentDir
	c.SegmentCompression = next.SegmentCompression
	c.StatusAuthorityEndpoint = next.StatusAuthorityEndpoint
	c.StatusRequestTimeoutMs = next.StatusRequestTimeoutMs
	c.Telemetry = next.Telemetry

	return nil
}
