// Package config holds the settings shared by ingestion and the transform
// pipeline. Values come from DefaultConfig, an optional YAML file and options,
// applied in that order.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DefaultSourceCollection = "it-assets"
	DefaultDestCollection   = "it-assets_final"
	DefaultBatchSize        = 2000
	DefaultConcurrency      = 1
	DefaultReportInterval   = 10000
	DefaultRequestTimeout   = 300 * time.Second
	DefaultMaxRetries       = 5
	DefaultRetryDelay       = time.Second
)

// Store selects and tunes the document store.
type Store struct {
	// Path is the database directory. Ignored when InMemory is set.
	Path     string `yaml:"path"`
	InMemory bool   `yaml:"in_memory"`
	// Profile is "self-managed" or "serverless".
	Profile     string `yaml:"profile"`
	Compression bool   `yaml:"compression"`
}

// Bulk tunes the bulk loader.
type Bulk struct {
	BatchSize   int `yaml:"batch_size"`
	Concurrency int `yaml:"concurrency"`
	// ReportInterval is the number of rows between progress log lines. 0 disables them.
	ReportInterval int `yaml:"report_interval"`
}

// Config is the full set of pipeline settings.
type Config struct {
	Store            Store  `yaml:"store"`
	SourceCollection string `yaml:"source_collection"`
	DestCollection   string `yaml:"dest_collection"`
	Bulk             Bulk   `yaml:"bulk"`

	// Slices partitions query-scoped requests. 0 lets the store decide.
	Slices         int           `yaml:"slices"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	MaxRetries     int           `yaml:"max_retries"`
	RetryDelay     time.Duration `yaml:"retry_delay"`
	// RequestsPerSecond throttles query-scoped writes. 0 or less is unlimited.
	RequestsPerSecond float64 `yaml:"requests_per_second"`
}

// DefaultConfig returns the settings used when nothing is overridden.
func DefaultConfig() *Config {
	return &Config{
		Store: Store{
			Path:    "assetpipe.db",
			Profile: "self-managed",
		},
		SourceCollection: DefaultSourceCollection,
		DestCollection:   DefaultDestCollection,
		Bulk: Bulk{
			BatchSize:      DefaultBatchSize,
			Concurrency:    DefaultConcurrency,
			ReportInterval: DefaultReportInterval,
		},
		RequestTimeout: DefaultRequestTimeout,
		MaxRetries:     DefaultMaxRetries,
		RetryDelay:     DefaultRetryDelay,
	}
}

// Option overrides a setting.
type Option func(*Config)

func WithStorePath(path string) Option {
	return func(c *Config) {
		c.Store.Path = path
		c.Store.InMemory = false
	}
}

func WithInMemory() Option {
	return func(c *Config) { c.Store.InMemory = true }
}

func WithProfile(profile string) Option {
	return func(c *Config) { c.Store.Profile = profile }
}

func WithCompression(compress bool) Option {
	return func(c *Config) { c.Store.Compression = compress }
}

func WithCollections(source, dest string) Option {
	return func(c *Config) {
		c.SourceCollection = source
		c.DestCollection = dest
	}
}

func WithBatchSize(size int) Option {
	return func(c *Config) { c.Bulk.BatchSize = size }
}

func WithConcurrency(n int) Option {
	return func(c *Config) { c.Bulk.Concurrency = n }
}

func WithRequestTimeout(d time.Duration) Option {
	return func(c *Config) { c.RequestTimeout = d }
}

// WithRetries sets the attempts per store call and the base backoff delay.
func WithRetries(maxRetries int, delay time.Duration) Option {
	return func(c *Config) {
		c.MaxRetries = maxRetries
		c.RetryDelay = delay
	}
}

// New returns DefaultConfig with opts applied.
func New(opts ...Option) *Config {
	c := DefaultConfig()
	c.Apply(opts...)
	return c
}

// Apply applies opts in order.
func (c *Config) Apply(opts ...Option) {
	for _, opt := range opts {
		opt(c)
	}
}

// LoadFile reads a YAML file over DefaultConfig. Keys absent from the file
// keep their defaults.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	c := DefaultConfig()
	if err := yaml.Unmarshal(data, c); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return c, nil
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error
	if !c.Store.InMemory && c.Store.Path == "" {
		errs = append(errs, errors.New("store path is required"))
	}
	switch c.Store.Profile {
	case "", "self-managed", "serverless":
	default:
		errs = append(errs, fmt.Errorf("unknown store profile %q", c.Store.Profile))
	}
	if c.SourceCollection == "" {
		errs = append(errs, errors.New("source collection is required"))
	}
	if c.DestCollection == "" {
		errs = append(errs, errors.New("destination collection is required"))
	}
	if c.SourceCollection != "" && c.SourceCollection == c.DestCollection {
		errs = append(errs, errors.New("source and destination collections must differ"))
	}
	if c.Bulk.BatchSize < 1 {
		errs = append(errs, fmt.Errorf("batch size must be greater than 0, got %d", c.Bulk.BatchSize))
	}
	if c.Bulk.Concurrency < 1 {
		errs = append(errs, fmt.Errorf("concurrency must be greater than 0, got %d", c.Bulk.Concurrency))
	}
	if c.Bulk.ReportInterval < 0 {
		errs = append(errs, fmt.Errorf("report interval must not be negative, got %d", c.Bulk.ReportInterval))
	}
	if c.Slices < 0 {
		errs = append(errs, fmt.Errorf("slices must not be negative, got %d", c.Slices))
	}
	if c.RequestTimeout < 0 {
		errs = append(errs, fmt.Errorf("request timeout must not be negative, got %s", c.RequestTimeout))
	}
	if c.MaxRetries < 1 {
		errs = append(errs, fmt.Errorf("max retries must be greater than 0, got %d", c.MaxRetries))
	}
	if c.RetryDelay < 0 {
		errs = append(errs, fmt.Errorf("retry delay must not be negative, got %s", c.RetryDelay))
	}
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
}
