package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	t.Setenv("XDG_CACHE_HOME", t.TempDir())
	cfgPath := filepath.Join(t.TempDir(), "agent.yaml")
	if err := os.WriteFile(cfgPath, []byte(content), 0o644); err != nil {
		t.Fatalf("writing test config: %v", err)
	}
	return cfgPath
}

func TestLoadAgentConfig(t *testing.T) {
	yaml := `
node_name: "my-node"
url: "https://config.example.com/app.json"
headers:
  X-Api-Key: "secret"
transport: "http"
http_timeout: 10s
cache_backend: "file"
cache_dir: "/tmp/remoteconf-cache"
cache_file: "app.json"
expiration: 12h
poll_interval: 60s
state_dir: "/tmp/test-state"
log_level: "debug"
api_listen_addr: ":9090"
cloudwatch_namespace: "RemoteConf"
`

	cfg, err := LoadAgentConfig(writeConfig(t, yaml))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.NodeName != "my-node" {
		t.Errorf("expected node name my-node, got %s", cfg.NodeName)
	}
	if cfg.URL != "https://config.example.com/app.json" {
		t.Errorf("unexpected URL: %s", cfg.URL)
	}
	if cfg.Headers["X-Api-Key"] != "secret" {
		t.Errorf("unexpected headers: %v", cfg.Headers)
	}
	if cfg.HTTPTimeout != 10*time.Second {
		t.Errorf("expected 10s http timeout, got %v", cfg.HTTPTimeout)
	}
	if cfg.CacheDir != "/tmp/remoteconf-cache" || cfg.CacheFile != "app.json" {
		t.Errorf("unexpected cache location: %s/%s", cfg.CacheDir, cfg.CacheFile)
	}
	if cfg.Expiration != 12*time.Hour {
		t.Errorf("expected 12h expiration, got %v", cfg.Expiration)
	}
	if cfg.PollInterval != 60*time.Second {
		t.Errorf("expected 60s poll interval, got %v", cfg.PollInterval)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("expected log level debug, got %s", cfg.LogLevel)
	}
	if cfg.APIListenAddr != ":9090" {
		t.Errorf("expected API listen addr :9090, got %s", cfg.APIListenAddr)
	}
	if cfg.CloudWatchNamespace != "RemoteConf" {
		t.Errorf("expected CloudWatch namespace RemoteConf, got %s", cfg.CloudWatchNamespace)
	}
}

func TestLoadAgentConfig_Defaults(t *testing.T) {
	cfg, err := LoadAgentConfig(writeConfig(t, `url: "https://config.example.com/app.json"`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Transport != TransportHTTP {
		t.Errorf("expected default transport http, got %s", cfg.Transport)
	}
	if cfg.CacheBackend != CacheFile {
		t.Errorf("expected default cache backend file, got %s", cfg.CacheBackend)
	}
	if cfg.CacheFile != "remote-config.json" {
		t.Errorf("expected default cache file, got %s", cfg.CacheFile)
	}
	if !strings.HasSuffix(cfg.CacheDir, "remoteconf") {
		t.Errorf("expected cache dir under the user cache dir, got %s", cfg.CacheDir)
	}
	if cfg.Expiration != 24*time.Hour {
		t.Errorf("expected default 24h expiration, got %v", cfg.Expiration)
	}
	if cfg.PollInterval != 5*time.Minute {
		t.Errorf("expected default 5m poll interval, got %v", cfg.PollInterval)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("expected default log level info, got %s", cfg.LogLevel)
	}
	if cfg.NodeName == "" {
		t.Error("expected node name to default to the hostname")
	}
}

func TestLoadAgentConfig_S3(t *testing.T) {
	yaml := `
url: "s3://configs/app.json"
transport: "s3"
cache_backend: "s3"
cache_s3_bucket: "config-cache"
cache_s3_prefix: "hosts/web/"
s3_region: "eu-west-1"
s3_endpoint_url: "http://localhost:4566"
`

	cfg, err := LoadAgentConfig(writeConfig(t, yaml))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Transport != TransportS3 || cfg.CacheBackend != CacheS3 {
		t.Errorf("unexpected transport/cache: %s/%s", cfg.Transport, cfg.CacheBackend)
	}
	if cfg.CacheS3Bucket != "config-cache" || cfg.CacheS3Prefix != "hosts/web/" {
		t.Errorf("unexpected cache bucket: %s %s", cfg.CacheS3Bucket, cfg.CacheS3Prefix)
	}
	if cfg.S3Region != "eu-west-1" {
		t.Errorf("expected region eu-west-1, got %s", cfg.S3Region)
	}
	if cfg.S3EndpointURL != "http://localhost:4566" {
		t.Errorf("unexpected endpoint: %s", cfg.S3EndpointURL)
	}
}

func TestLoadAgentConfig_Git(t *testing.T) {
	yaml := `
url: "https://github.com/example/configs.git"
transport: "git"
git_path: "apps/web.json"
cache_backend: "none"
`

	cfg, err := LoadAgentConfig(writeConfig(t, yaml))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.GitBranch != "main" {
		t.Errorf("expected default branch main, got %s", cfg.GitBranch)
	}
	if cfg.GitPath != "apps/web.json" {
		t.Errorf("unexpected git path: %s", cfg.GitPath)
	}
}

func TestLoadAgentConfig_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{"missing url", `transport: "http"`, "url is required"},
		{"http url with s3 scheme", `url: "s3://b/k"`, "http(s) URL"},
		{"s3 transport with http url", "url: \"https://x/y\"\ntransport: \"s3\"", "s3://bucket/key"},
		{"git without path", "url: \"https://x/y.git\"\ntransport: \"git\"", "git_path is required"},
		{"unknown transport", "url: \"https://x/y\"\ntransport: \"ftp\"", "unsupported transport"},
		{"s3 cache without bucket", "url: \"https://x/y\"\ncache_backend: \"s3\"", "cache_s3_bucket is required"},
		{"unknown cache backend", "url: \"https://x/y\"\ncache_backend: \"redis\"", "unsupported cache_backend"},
		{"negative expiration", "url: \"https://x/y\"\nexpiration: -1h", "expiration must be positive"},
		{"zero poll interval", "url: \"https://x/y\"\npoll_interval: 0s", "poll_interval must be positive"},
		{"malformed yaml", "url: [", "parsing"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadAgentConfig(writeConfig(t, tt.yaml))
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestLoadAgentConfig_FileNotFound(t *testing.T) {
	_, err := LoadAgentConfig("/nonexistent/path/agent.yaml")
	if err == nil {
		t.Fatal("expected error for missing config file")
	}
}
