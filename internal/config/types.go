package config

import "time"

// Transport kinds.
const (
	TransportHTTP = "http"
	TransportS3   = "s3"
	TransportGit  = "git"
)

// Cache backends.
const (
	CacheFile = "file"
	CacheS3   = "s3"
	CacheNone = "none"
)

// AgentConfig holds the agent's own operational configuration.
type AgentConfig struct {
	// NodeName labels metrics and status output. Defaults to the hostname.
	NodeName string `yaml:"node_name"`

	// URL is the remote configuration document. For http it is an
	// http(s) URL, for s3 an s3://bucket/key URL, for git the repository URL.
	URL string `yaml:"url"`
	// Headers are sent with every HTTP request (e.g. an API key).
	Headers map[string]string `yaml:"headers,omitempty"`
	// Transport is "http", "s3" or "git".
	Transport string `yaml:"transport"`
	// HTTPTimeout bounds a single HTTP request. Zero means no timeout.
	HTTPTimeout time.Duration `yaml:"http_timeout,omitempty"`
	// GitBranch is the branch to track (for git transport).
	GitBranch string `yaml:"git_branch,omitempty"`
	// GitPath is the document's path inside the repository (for git transport).
	GitPath string `yaml:"git_path,omitempty"`

	// CacheBackend is "file", "s3" or "none".
	CacheBackend string `yaml:"cache_backend"`
	// CacheDir is where the file cache lives. Defaults to the platform
	// user cache directory.
	CacheDir string `yaml:"cache_dir,omitempty"`
	// CacheFile is the cached record's name.
	CacheFile string `yaml:"cache_file,omitempty"`
	// CacheS3Bucket is the bucket for the s3 cache backend.
	CacheS3Bucket string `yaml:"cache_s3_bucket,omitempty"`
	// CacheS3Prefix is an optional key prefix in the cache bucket. Include
	// trailing slash.
	CacheS3Prefix string `yaml:"cache_s3_prefix,omitempty"`
	// Expiration is how long a cached copy is served without a remote fetch.
	Expiration time.Duration `yaml:"expiration"`

	// S3Region is the AWS region for S3 and CloudWatch. If empty, resolved
	// from the environment.
	S3Region string `yaml:"s3_region,omitempty"`
	// S3EndpointURL overrides the S3 endpoint (useful for LocalStack/MinIO).
	S3EndpointURL string `yaml:"s3_endpoint_url,omitempty"`

	// PollInterval is how often the agent refreshes the configuration.
	PollInterval time.Duration `yaml:"poll_interval"`
	// StateDir holds transport working state such as the git clone.
	StateDir string `yaml:"state_dir"`
	// LogLevel controls verbosity: "debug", "info", "warn", "error".
	LogLevel string `yaml:"log_level"`
	// APIListenAddr is the address for the status HTTP API (e.g. ":8080").
	// If empty, the API server is not started.
	APIListenAddr string `yaml:"api_listen_addr,omitempty"`
	// CloudWatchNamespace enables publishing fetch metrics to CloudWatch.
	// If empty, nothing is published.
	CloudWatchNamespace string `yaml:"cloudwatch_namespace,omitempty"`
}
