// Package config loads the service configuration from a YAML file with
// dotted option names, applies DATA_API_* environment overrides and
// validates the result.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/htrc/data-api/pkg/archive"
	"github.com/htrc/data-api/pkg/dispatch"
	"github.com/htrc/data-api/pkg/gateway"
	"github.com/htrc/data-api/pkg/logging"
	"github.com/htrc/data-api/pkg/policy"
	"github.com/htrc/data-api/pkg/retrieval"
	"github.com/htrc/data-api/pkg/work"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "DATA_API_"

// Storage backends.
const (
	BackendRedis  = "redis"
	BackendS3     = "s3"
	BackendBlob   = "blob"
	BackendMemory = "memory"
)

// ErrInvalid is wrapped by every validation error.
var ErrInvalid = errors.New("invalid configuration")

// Config is the full service configuration. Durations are configured in
// milliseconds or seconds as their key names say.
type Config struct {
	// Retrieval
	MaxAsyncFetchEntryCount      int `yaml:"max.async.fetch.entry.count"`
	MaxPagesPerRetrieval         int `yaml:"max.pages.per.retrieval"`
	MaxExceptionsToReport        int `yaml:"max.exceptions.to.report"`
	MinEntryCountTriggerDispatch int `yaml:"min.entry.count.trigger.dispatch"`
	MaxWaitMillis                int `yaml:"max.wait.millis"`

	// Dispatch pool
	AsyncWorkerCount int `yaml:"async.worker.count"`
	AsyncQueueSize   int `yaml:"async.queue.size"`

	// Storage gateway retry
	AccessMaxAttempts   int `yaml:"hector.access.max.attempts"`
	AccessFailInitDelay int `yaml:"hector.access.fail.init.delay"`
	AccessFailMaxDelay  int `yaml:"hector.access.fail.max.delay"`
	FetchTimeoutMillis  int `yaml:"fetch.timeout.millis"`

	// Policy
	MaxVolumesAllowed        int  `yaml:"max.volumes.allowed"`
	MaxTotalPagesAllowed     int  `yaml:"max.total.pages.allowed"`
	MaxPagesPerVolumeAllowed int  `yaml:"max.pages.per.volume.allowed"`
	PublicDomainOnly         bool `yaml:"public.domain.only"`
	LegacyPageRange          bool `yaml:"legacy.page.range"`

	// Storage
	StorageBackend string `yaml:"storage.backend"`
	StoragePrefix  string `yaml:"storage.prefix"`
	RedisAddr      string `yaml:"redis.addr"`
	RedisPassword  string `yaml:"redis.password"`
	RedisDB        int    `yaml:"redis.db"`
	S3Bucket       string `yaml:"s3.bucket"`
	S3Region       string `yaml:"s3.region"`
	S3Endpoint     string `yaml:"s3.endpoint"`
	S3AccessKeyID  string `yaml:"s3.access.key.id"`
	S3SecretKey    string `yaml:"s3.secret.access.key"`
	BlobURL        string `yaml:"blob.url"`

	VolumeInfoCacheTTLSeconds int `yaml:"volumeinfo.cache.ttl.seconds"`

	// Output and server
	ArchiveCompression string `yaml:"archive.compression"`
	HTTPAddr           string `yaml:"http.addr"`
	LogLevel           string `yaml:"log.level"`
	LogPretty          bool   `yaml:"log.pretty"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		MaxAsyncFetchEntryCount:      16,
		MaxPagesPerRetrieval:         100,
		MaxExceptionsToReport:        10,
		MinEntryCountTriggerDispatch: 4,

		AsyncWorkerCount: 8,
		AsyncQueueSize:   1024,

		AccessMaxAttempts:   3,
		AccessFailInitDelay: 100,
		AccessFailMaxDelay:  2000,

		StorageBackend: BackendMemory,

		ArchiveCompression: string(archive.CompressionDeflate),
		HTTPAddr:           ":8080",
		LogLevel:           string(logging.LevelInfo),
	}
}

// Load reads path (if not empty) over the defaults, applies environment
// overrides and validates.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := cfg.decode(data); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) decode(data []byte) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	// An empty file leaves the defaults in place.
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// EnvName returns the environment variable overriding a dotted key,
// e.g. DATA_API_MAX_ASYNC_FETCH_ENTRY_COUNT.
func EnvName(key string) string {
	return EnvPrefix + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	v := reflect.ValueOf(c).Elem()
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		key := t.Field(i).Tag.Get("yaml")
		if key == "" {
			continue
		}
		raw, ok := lookup(EnvName(key))
		if !ok {
			continue
		}
		field := v.Field(i)
		switch field.Kind() {
		case reflect.Int:
			n, err := strconv.Atoi(strings.TrimSpace(raw))
			if err != nil {
				return fmt.Errorf("%w: %s: %v", ErrInvalid, EnvName(key), err)
			}
			field.SetInt(int64(n))
		case reflect.Bool:
			b, err := strconv.ParseBool(strings.TrimSpace(raw))
			if err != nil {
				return fmt.Errorf("%w: %s: %v", ErrInvalid, EnvName(key), err)
			}
			field.SetBool(b)
		case reflect.String:
			field.SetString(raw)
		}
	}
	return nil
}

// Validate checks ranges and backend requirements.
func (c *Config) Validate() error {
	var errs []error

	positive := map[string]int{
		"max.async.fetch.entry.count": c.MaxAsyncFetchEntryCount,
		"max.pages.per.retrieval":     c.MaxPagesPerRetrieval,
		"async.worker.count":          c.AsyncWorkerCount,
		"async.queue.size":            c.AsyncQueueSize,
		"hector.access.max.attempts":  c.AccessMaxAttempts,
	}
	for key, n := range positive {
		if n <= 0 {
			errs = append(errs, fmt.Errorf("%w: %s must be > 0, got %d", ErrInvalid, key, n))
		}
	}

	nonNegative := map[string]int{
		"max.exceptions.to.report":         c.MaxExceptionsToReport,
		"min.entry.count.trigger.dispatch": c.MinEntryCountTriggerDispatch,
		"max.wait.millis":                  c.MaxWaitMillis,
		"hector.access.fail.init.delay":    c.AccessFailInitDelay,
		"hector.access.fail.max.delay":     c.AccessFailMaxDelay,
		"fetch.timeout.millis":             c.FetchTimeoutMillis,
		"max.volumes.allowed":              c.MaxVolumesAllowed,
		"max.total.pages.allowed":          c.MaxTotalPagesAllowed,
		"max.pages.per.volume.allowed":     c.MaxPagesPerVolumeAllowed,
		"redis.db":                         c.RedisDB,
		"volumeinfo.cache.ttl.seconds":     c.VolumeInfoCacheTTLSeconds,
	}
	for key, n := range nonNegative {
		if n < 0 {
			errs = append(errs, fmt.Errorf("%w: %s must be >= 0, got %d", ErrInvalid, key, n))
		}
	}

	switch c.StorageBackend {
	case BackendMemory:
	case BackendRedis:
		if c.RedisAddr == "" {
			errs = append(errs, fmt.Errorf("%w: redis.addr is required for the redis backend", ErrInvalid))
		}
	case BackendS3:
		if c.S3Bucket == "" {
			errs = append(errs, fmt.Errorf("%w: s3.bucket is required for the s3 backend", ErrInvalid))
		}
		if (c.S3AccessKeyID == "") != (c.S3SecretKey == "") {
			errs = append(errs, fmt.Errorf("%w: s3.access.key.id and s3.secret.access.key must be set together", ErrInvalid))
		}
	case BackendBlob:
		if c.BlobURL == "" {
			errs = append(errs, fmt.Errorf("%w: blob.url is required for the blob backend", ErrInvalid))
		}
	default:
		errs = append(errs, fmt.Errorf("%w: unknown storage.backend %q", ErrInvalid, c.StorageBackend))
	}

	if c.VolumeInfoCacheTTLSeconds > 0 && c.RedisAddr == "" {
		errs = append(errs, fmt.Errorf("%w: redis.addr is required for the volume info cache", ErrInvalid))
	}

	if _, err := archive.ParseCompression(c.ArchiveCompression); err != nil {
		errs = append(errs, fmt.Errorf("%w: %v", ErrInvalid, err))
	}

	return errors.Join(errs...)
}

// Retrieval returns the per-request retrieval options.
func (c *Config) Retrieval() retrieval.Config {
	return retrieval.Config{
		MaxInFlight:     c.MaxAsyncFetchEntryCount,
		TriggerDispatch: c.MinEntryCountTriggerDispatch,
		MaxExceptions:   c.MaxExceptionsToReport,
		MaxWait:         time.Duration(c.MaxWaitMillis) * time.Millisecond,
		Split: work.Config{
			MaxBatchSize:     c.MaxPagesPerRetrieval,
			LegacyPageRange:  c.LegacyPageRange,
			PublicDomainOnly: c.PublicDomainOnly,
		},
	}
}

// Retry returns the storage gateway retry options.
func (c *Config) Retry() gateway.RetryConfig {
	return gateway.RetryConfig{
		MaxAttempts:  c.AccessMaxAttempts,
		InitialDelay: time.Duration(c.AccessFailInitDelay) * time.Millisecond,
		MaxDelay:     time.Duration(c.AccessFailMaxDelay) * time.Millisecond,
	}
}

// FetchTimeout returns the per-attempt backend timeout, zero if unset.
func (c *Config) FetchTimeout() time.Duration {
	return time.Duration(c.FetchTimeoutMillis) * time.Millisecond
}

// Pool returns the dispatch pool options.
func (c *Config) Pool() dispatch.Config {
	return dispatch.Config{
		Workers:   c.AsyncWorkerCount,
		QueueSize: c.AsyncQueueSize,
	}
}

// Checkers builds the policy checkers.
func (c *Config) Checkers() *policy.Checkers {
	return policy.NewCheckers(c.MaxVolumesAllowed, c.MaxTotalPagesAllowed, c.MaxPagesPerVolumeAllowed)
}

// CacheTTL returns the volume info cache TTL; zero disables the cache.
func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.VolumeInfoCacheTTLSeconds) * time.Second
}

// Compression returns the archive compression. Validate has checked it.
func (c *Config) Compression() archive.Compression {
	comp, _ := archive.ParseCompression(c.ArchiveCompression)
	return comp
}

// Logging returns the logger configuration.
func (c *Config) Logging() logging.Config {
	cfg := logging.DefaultConfig()
	cfg.Level = logging.LogLevel(c.LogLevel)
	cfg.Pretty = c.LogPretty
	return cfg
}
