package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultAgentConfig returns sensible defaults for the agent configuration.
func DefaultAgentConfig() AgentConfig {
	return AgentConfig{
		Transport:    TransportHTTP,
		HTTPTimeout:  30 * time.Second,
		GitBranch:    "main",
		CacheBackend: CacheFile,
		CacheFile:    "remote-config.json",
		Expiration:   24 * time.Hour,
		PollInterval: 5 * time.Minute,
		StateDir:     "/var/lib/remoteconf",
		LogLevel:     "info",
	}
}

// LoadAgentConfig reads the agent configuration from a YAML file and applies
// defaults for any unset fields.
func LoadAgentConfig(path string) (AgentConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return DefaultAgentConfig(), fmt.Errorf("reading agent config %s: %w", path, err)
	}

	cfg, err := ParseAgentConfig(data)
	if err != nil {
		return cfg, fmt.Errorf("agent config %s: %w", path, err)
	}
	return cfg, nil
}

// ParseAgentConfig parses raw YAML, applies defaults and validates.
func ParseAgentConfig(data []byte) (AgentConfig, error) {
	cfg := DefaultAgentConfig()

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing: %w", err)
	}

	if cfg.NodeName == "" {
		hostname, err := os.Hostname()
		if err != nil {
			return cfg, fmt.Errorf("node_name not set and hostname unavailable: %w", err)
		}
		cfg.NodeName = hostname
	}

	if cfg.URL == "" {
		return cfg, fmt.Errorf("url is required")
	}

	switch cfg.Transport {
	case TransportHTTP:
		u, err := url.Parse(cfg.URL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return cfg, fmt.Errorf("url %q must be an http(s) URL for http transport", cfg.URL)
		}
	case TransportS3:
		u, err := url.Parse(cfg.URL)
		if err != nil || u.Scheme != "s3" {
			return cfg, fmt.Errorf("url %q must be an s3://bucket/key URL for s3 transport", cfg.URL)
		}
	case TransportGit:
		if cfg.GitPath == "" {
			return cfg, fmt.Errorf("git_path is required for git transport")
		}
	default:
		return cfg, fmt.Errorf("unsupported transport: %q (expected \"http\", \"s3\" or \"git\")", cfg.Transport)
	}

	switch cfg.CacheBackend {
	case CacheFile:
		if cfg.CacheDir == "" {
			base, err := os.UserCacheDir()
			if err != nil {
				return cfg, fmt.Errorf("cache_dir not set and user cache dir unavailable: %w", err)
			}
			cfg.CacheDir = filepath.Join(base, "remoteconf")
		}
	case CacheS3:
		if cfg.CacheS3Bucket == "" {
			return cfg, fmt.Errorf("cache_s3_bucket is required for s3 cache backend")
		}
	case CacheNone:
	default:
		return cfg, fmt.Errorf("unsupported cache_backend: %q (expected \"file\", \"s3\" or \"none\")", cfg.CacheBackend)
	}

	if cfg.Expiration <= 0 {
		return cfg, fmt.Errorf("expiration must be positive, got %s", cfg.Expiration)
	}
	if cfg.PollInterval <= 0 {
		return cfg, fmt.Errorf("poll_interval must be positive, got %s", cfg.PollInterval)
	}

	return cfg, nil
}
