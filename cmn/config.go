// Package cmn provides common constants, types, and utilities for the staging engine
/*
 * Copyright (c) 2018-2025, NVIDIA CORPORATION. All rights reserved.
 */
package cmn

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/IATkachenko/arc-sub001/cmn/cos"

	jsoniter "github.com/json-iterator/go"
	"gopkg.in/yaml.v3"
)

// environment
const (
	EnvCacheDirs = "DSTAGE_CACHE_DIRS"
	EnvJobID     = "DSTAGE_JOBID"
	EnvLogDir    = "DSTAGE_LOG_DIR"
	EnvCatalog   = "DSTAGE_CATALOG_DIR"
)

// defaults
const (
	DefaultRetries      = 3
	DefaultRangeRetries = 3
	DefaultBufSize      = 64 * cos.KiB
	DefaultBufNum       = 8
	DefaultMaxStreams   = 20
	DefaultStaleLock    = time.Hour
	DefaultDNLifetime   = 24 * time.Hour
	DefaultMaxInact     = 5 * time.Minute
	DefaultSpeedTime    = time.Minute
	DefaultProgress     = time.Second
	DefaultSweep        = 10 * time.Minute
	DefaultStatsNs      = "dstage"
)

type (
	Config struct {
		Cache    CacheConf    `json:"cache" yaml:"cache"`
		Transfer TransferConf `json:"transfer" yaml:"transfer"`
		Speed    SpeedConf    `json:"speed" yaml:"speed"`
		Catalog  CatalogConf  `json:"catalog" yaml:"catalog"`
		S3       S3Conf       `json:"s3" yaml:"s3"`
		Log      LogConf      `json:"log" yaml:"log"`
		Stats    StatsConf    `json:"stats" yaml:"stats"`
		URLMap   []URLMapRule `json:"url_map,omitempty" yaml:"url_map,omitempty"`
	}

	CacheConf struct {
		// one or more cache roots; empty means "no cache"
		Dirs []string `json:"dirs" yaml:"dirs"`
		// per-job claim directory name (joblinks/<JobID>)
		JobID string `json:"job_id" yaml:"job_id"`
		// job session directory: link names are relative to it
		SessionDir string `json:"session_dir" yaml:"session_dir"`
		// lock files older than this are reclaimed regardless of the owner
		StaleLock cos.Duration `json:"stale_lock" yaml:"stale_lock"`
		// lifetime of a cached DN when the credentials don't say otherwise
		DNLifetime cos.Duration `json:"dn_lifetime" yaml:"dn_lifetime"`
		// sweep stale locks periodically (0 - never)
		SweepInterval cos.Duration `json:"sweep_interval" yaml:"sweep_interval"`
		// place cached files by copying rather than linking
		CopyThrough bool `json:"copy_through" yaml:"copy_through"`
	}

	TransferConf struct {
		Checksum     string      `json:"checksum" yaml:"checksum"`           // default checksum algorithm
		BufSize      cos.SizeIEC `json:"buf_size" yaml:"buf_size"`           // segment size
		BufNum       int         `json:"buf_num" yaml:"buf_num"`             // number of segments
		Retries      int         `json:"retries" yaml:"retries"`             // location retry budget per endpoint
		RangeRetries int         `json:"range_retries" yaml:"range_retries"` // per byte range (transient errors)
		MaxStreams   int         `json:"max_streams" yaml:"max_streams"`     // clamp for the `threads` option
		Force        bool        `json:"force_registration" yaml:"force_registration"`
		Verify       bool        `json:"verify_checksum" yaml:"verify_checksum"`
		Secure       bool        `json:"secure" yaml:"secure"`
	}

	SpeedConf struct {
		MinSpeed      cos.SizeIEC  `json:"min_speed" yaml:"min_speed"` // bytes per second over MinSpeedTime
		MinSpeedTime  cos.Duration `json:"min_speed_time" yaml:"min_speed_time"`
		MinAvgSpeed   cos.SizeIEC  `json:"min_average_speed" yaml:"min_average_speed"`
		MaxInactivity cos.Duration `json:"max_inactivity" yaml:"max_inactivity"`
		Progress      cos.Duration `json:"progress" yaml:"progress"`
	}

	CatalogConf struct {
		// buntdb files are kept here; empty means in-memory
		Dir string `json:"dir" yaml:"dir"`
	}

	S3Conf struct {
		Region    string `json:"region" yaml:"region"`
		Endpoint  string `json:"endpoint" yaml:"endpoint"`
		// static keys; empty means the default AWS credential chain
		AccessKey string `json:"access_key,omitempty" yaml:"access_key,omitempty"`
		SecretKey string `json:"secret_key,omitempty" yaml:"secret_key,omitempty"`
		PathStyle bool   `json:"path_style" yaml:"path_style"`
	}

	LogConf struct {
		Dir       string      `json:"dir" yaml:"dir"`
		MaxSize   cos.SizeIEC `json:"max_size" yaml:"max_size"`
		Verbosity int         `json:"verbosity" yaml:"verbosity"`
		ToStderr  bool        `json:"to_stderr" yaml:"to_stderr"`
	}

	StatsConf struct {
		Namespace string `json:"namespace" yaml:"namespace"`
		Enabled   bool   `json:"enabled" yaml:"enabled"`
	}

	URLMapRule struct {
		Prefix      string `json:"prefix" yaml:"prefix"`
		Replacement string `json:"replacement" yaml:"replacement"`
		// mapped path must be a local file that exists
		Access bool `json:"access" yaml:"access"`
	}

	Validator interface {
		Validate() error
	}
)

// interface guard
var (
	_ Validator = (*Config)(nil)
	_ Validator = (*CacheConf)(nil)
	_ Validator = (*TransferConf)(nil)
	_ Validator = (*SpeedConf)(nil)
	_ Validator = (*LogConf)(nil)
	_ Validator = (*StatsConf)(nil)
	_ Validator = (*URLMapRule)(nil)
)

func DefaultConfig() *Config {
	return &Config{
		Cache: CacheConf{
			StaleLock:     cos.Duration(DefaultStaleLock),
			DNLifetime:    cos.Duration(DefaultDNLifetime),
			SweepInterval: cos.Duration(DefaultSweep),
		},
		Transfer: TransferConf{
			Checksum:     cos.ChecksumAdler32,
			BufSize:      DefaultBufSize,
			BufNum:       DefaultBufNum,
			Retries:      DefaultRetries,
			RangeRetries: DefaultRangeRetries,
			MaxStreams:   DefaultMaxStreams,
		},
		Speed: SpeedConf{
			MinSpeedTime:  cos.Duration(DefaultSpeedTime),
			MaxInactivity: cos.Duration(DefaultMaxInact),
			Progress:      cos.Duration(DefaultProgress),
		},
		Log: LogConf{
			MaxSize: 4 * cos.MiB,
		},
		Stats: StatsConf{
			Namespace: DefaultStatsNs,
		},
	}
}

// LoadConfig loads JSON or YAML (by extension, with fallback to the other),
// applies environment overrides, and validates
func LoadConfig(path string) (*Config, error) {
	config := DefaultConfig()
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to load config %q: %w", path, err)
		}
		if err := parseConfig(filepath.Ext(path), b, config); err != nil {
			return nil, fmt.Errorf("failed to parse config %q: %w", path, err)
		}
	}
	config.ApplyEnv()
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// JSON first w/ fall back to YAML (and vice versa)
func parseConfig(ext string, b []byte, config *Config) error {
	switch strings.ToLower(ext) {
	case ".json", ".jsonc", ".js":
		if errj := jsoniter.Unmarshal(b, config); errj != nil {
			if erry := yaml.Unmarshal(b, config); erry != nil {
				return fmt.Errorf("errs: (%v, %v)", errj, erry)
			}
		}
	default:
		if erry := yaml.Unmarshal(b, config); erry != nil {
			if errj := jsoniter.Unmarshal(b, config); errj != nil {
				return fmt.Errorf("errs: (%v, %v)", erry, errj)
			}
		}
	}
	return nil
}

func (c *Config) ApplyEnv() {
	if dirs := cos.GetEnvList(EnvCacheDirs); len(dirs) > 0 {
		c.Cache.Dirs = dirs
	}
	c.Cache.JobID = cos.GetEnvOrDefault(EnvJobID, c.Cache.JobID)
	c.Log.Dir = cos.GetEnvOrDefault(EnvLogDir, c.Log.Dir)
	c.Catalog.Dir = cos.GetEnvOrDefault(EnvCatalog, c.Catalog.Dir)
}

func (c *Config) Validate() error {
	vs := []Validator{&c.Cache, &c.Transfer, &c.Speed, &c.Log, &c.Stats}
	for i := range c.URLMap {
		vs = append(vs, &c.URLMap[i])
	}
	for _, v := range vs {
		if err := v.Validate(); err != nil {
			return err
		}
	}
	return nil
}

func (c *Config) Clone() *Config {
	clone := *c
	clone.Cache.Dirs = append([]string(nil), c.Cache.Dirs...)
	clone.URLMap = append([]URLMapRule(nil), c.URLMap...)
	return &clone
}

func (c *Config) JSON() []byte {
	b, err := jsoniter.MarshalIndent(c, "", "    ")
	if err != nil {
		return nil
	}
	return b
}

func (c *CacheConf) Validate() error {
	for i, dir := range c.Dirs {
		if dir == "" || !filepath.IsAbs(dir) {
			return fmt.Errorf("invalid cache.dirs[%d] %q (expecting absolute path)", i, dir)
		}
		c.Dirs[i] = filepath.Clean(dir)
	}
	if len(c.Dirs) > 0 && c.JobID == "" {
		return errors.New("cache.job_id must be set when caching is enabled")
	}
	if strings.ContainsRune(c.JobID, filepath.Separator) {
		return fmt.Errorf("invalid cache.job_id %q", c.JobID)
	}
	if c.StaleLock <= 0 {
		return fmt.Errorf("invalid cache.stale_lock %v (expecting positive)", c.StaleLock)
	}
	if c.DNLifetime < 0 || c.SweepInterval < 0 {
		return fmt.Errorf("invalid cache.dn_lifetime %v or cache.sweep_interval %v", c.DNLifetime, c.SweepInterval)
	}
	return nil
}

func (c *CacheConf) Enabled() bool { return len(c.Dirs) > 0 }

func (c *TransferConf) Validate() error {
	if c.Checksum == "" {
		c.Checksum = cos.ChecksumNone
	}
	if err := cos.ValidateCksumType(c.Checksum); err != nil {
		return fmt.Errorf("invalid transfer.checksum: %w", err)
	}
	if c.BufSize < cos.KiB || c.BufSize > 64*cos.MiB {
		return fmt.Errorf("invalid transfer.buf_size %s (expecting [1KiB, 64MiB])", c.BufSize)
	}
	if c.BufNum < 1 || c.BufNum > 1024 {
		return fmt.Errorf("invalid transfer.buf_num %d (expecting [1, 1024])", c.BufNum)
	}
	if c.Retries < 0 || c.RangeRetries < 0 {
		return fmt.Errorf("invalid transfer.retries %d or transfer.range_retries %d", c.Retries, c.RangeRetries)
	}
	if c.MaxStreams < 1 {
		return fmt.Errorf("invalid transfer.max_streams %d (expecting positive)", c.MaxStreams)
	}
	return nil
}

func (c *SpeedConf) Validate() error {
	if c.MinSpeed < 0 || c.MinAvgSpeed < 0 {
		return fmt.Errorf("invalid speed limits (min %d, average %d)", c.MinSpeed, c.MinAvgSpeed)
	}
	if c.MinSpeed > 0 && c.MinSpeedTime <= 0 {
		return errors.New("speed.min_speed_time must be positive when speed.min_speed is set")
	}
	if c.MaxInactivity < 0 || c.Progress < 0 {
		return fmt.Errorf("invalid speed.max_inactivity %v or speed.progress %v", c.MaxInactivity, c.Progress)
	}
	return nil
}

func (c *LogConf) Validate() error {
	if c.Verbosity < 0 || c.Verbosity > 5 {
		return fmt.Errorf("invalid log.verbosity %d (expecting [0, 5])", c.Verbosity)
	}
	if c.MaxSize > cos.GiB {
		return fmt.Errorf("invalid log.max_size %s (expecting <= 1GiB)", c.MaxSize)
	}
	return nil
}

func (c *StatsConf) Validate() error {
	if c.Enabled && c.Namespace == "" {
		c.Namespace = DefaultStatsNs
	}
	return nil
}

func (r *URLMapRule) Validate() error {
	if r.Prefix == "" || r.Replacement == "" {
		return fmt.Errorf("invalid url_map rule %q => %q", r.Prefix, r.Replacement)
	}
	return nil
}
