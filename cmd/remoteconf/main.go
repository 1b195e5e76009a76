package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"

	"github.com/artemnikitin/remoteconf/internal/agent"
	"github.com/artemnikitin/remoteconf/internal/cache"
	"github.com/artemnikitin/remoteconf/internal/config"
	"github.com/artemnikitin/remoteconf/internal/remoteconfig"
	"github.com/artemnikitin/remoteconf/internal/transport"
	"github.com/artemnikitin/remoteconf/internal/version"
)

type options struct {
	configPath  string
	once        bool
	ignoreCache bool
	clearCache  bool
}

func main() {
	var opts options
	flag.StringVar(&opts.configPath, "config", "/etc/remoteconf/agent.yaml", "path to agent config file")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.BoolVar(&opts.once, "once", false, "fetch once, print the values as JSON and exit")
	flag.BoolVar(&opts.ignoreCache, "ignore-cache", false, "with -once, skip the cache and ask the remote")
	flag.BoolVar(&opts.clearCache, "clear-cache", false, "delete the cached copy and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println("remoteconf", version.String())
		return
	}

	if err := run(opts, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(opts options, stdout io.Writer) error {
	cfg, err := config.LoadAgentConfig(opts.configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := newLogger(cfg.LogLevel)

	// Handle graceful shutdown on SIGINT/SIGTERM.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		logger.Info("received signal, shutting down", "signal", sig)
		cancel()
	}()

	tr, err := newTransport(ctx, cfg)
	if err != nil {
		return err
	}
	if c, ok := tr.(transport.Closer); ok {
		defer c.Close()
	}

	gw, err := newGateway(ctx, cfg, logger)
	if err != nil {
		return err
	}

	store, err := remoteconfig.New(remoteconfig.Options{
		URL:        cfg.URL,
		Headers:    cfg.Headers,
		Expiration: cfg.Expiration,
		Logger:     logger,
	}, tr, gw)
	if err != nil {
		return fmt.Errorf("creating config store: %w", err)
	}

	switch {
	case opts.clearCache:
		store.ClearCache(ctx)
		logger.Info("config cache cleared")
		return nil
	case opts.once:
		return fetchOnce(ctx, store, opts.ignoreCache, stdout, logger)
	}

	var publisher agent.Publisher
	if cfg.CloudWatchNamespace != "" {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.S3Region))
		if err != nil {
			return fmt.Errorf("loading AWS config for CloudWatch: %w", err)
		}
		publisher = agent.NewCloudWatchPublisher(cloudwatch.NewFromConfig(awsCfg), cfg.CloudWatchNamespace, cfg.NodeName)
	}

	a := agent.New(cfg, store, publisher, logger)
	if d, ok := tr.(transport.Describer); ok {
		a.SetSource(d)
	}

	return a.Run(ctx)
}

func newLogger(level string) *slog.Logger {
	logLevel := slog.LevelInfo
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	}

	// Logs go to stderr so -once output on stdout stays machine readable.
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	}))
}

func newTransport(ctx context.Context, cfg config.AgentConfig) (transport.Transport, error) {
	switch cfg.Transport {
	case config.TransportHTTP:
		return transport.NewHTTP(cfg.HTTPTimeout), nil
	case config.TransportS3:
		t, err := transport.NewS3(ctx, transport.S3Config{
			Region:      cfg.S3Region,
			EndpointURL: cfg.S3EndpointURL,
		})
		if err != nil {
			return nil, fmt.Errorf("creating s3 transport: %w", err)
		}
		return t, nil
	case config.TransportGit:
		t, err := transport.NewGit(cfg.GitBranch, cfg.GitPath, cfg.StateDir)
		if err != nil {
			return nil, fmt.Errorf("creating git transport: %w", err)
		}
		return t, nil
	default:
		return nil, fmt.Errorf("unsupported transport: %s", cfg.Transport)
	}
}

func newGateway(ctx context.Context, cfg config.AgentConfig, logger *slog.Logger) (cache.Gateway, error) {
	switch cfg.CacheBackend {
	case config.CacheFile:
		return cache.NewLive(cache.NewFileStorage(cfg.CacheDir), cfg.CacheFile, logger), nil
	case config.CacheS3:
		client, err := transport.NewS3Client(ctx, cfg.S3Region, cfg.S3EndpointURL)
		if err != nil {
			return nil, fmt.Errorf("creating s3 cache client: %w", err)
		}
		storage := cache.NewS3Storage(client, cfg.CacheS3Bucket, cfg.CacheS3Prefix)
		return cache.NewLive(storage, cfg.CacheFile, logger), nil
	case config.CacheNone:
		return cache.Noop{}, nil
	default:
		return nil, fmt.Errorf("unsupported cache backend: %s", cfg.CacheBackend)
	}
}

func fetchOnce(ctx context.Context, store *remoteconfig.Store, ignoreCache bool, stdout io.Writer, logger *slog.Logger) error {
	res, err := store.Fetch(ctx, ignoreCache)
	if err != nil {
		return fmt.Errorf("fetching config: %w", err)
	}
	if res.RemoteErr != nil {
		logger.Warn("remote unavailable, printing cached config", "error", res.RemoteErr)
	}
	if res.PersistErr != nil {
		logger.Warn("config cache write failed", "error", res.PersistErr)
	}

	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(store.Values()); err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	return nil
}
