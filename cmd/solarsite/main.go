package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"

	"github.com/thirdfuse/solarsite/build"
	"github.com/thirdfuse/solarsite/internal/assets"
	"github.com/thirdfuse/solarsite/internal/config"
	"github.com/thirdfuse/solarsite/internal/log"
	"github.com/thirdfuse/solarsite/internal/server"
)

const (
	defaultAddr   = ":8080"
	defaultConfig = "config.prod.json"
	webRoot       = "web"
)

// envConfig holds runtime settings read from the process environment.
// A .env file in the working directory is loaded first, never overriding
// variables already set.
type envConfig struct {
	ConfigPath    string `env:"CONFIG"`
	Addr          string `env:"ADDR"`
	Port          string `env:"PORT"`
	LogLevel      string `env:"LOG_LEVEL" envDefault:"info"`
	LogFile       string `env:"LOG_FILE"`
	LogMaxSizeMB  int    `env:"LOG_MAX_SIZE_MB"`
	LogMaxBackups int    `env:"LOG_MAX_BACKUPS"`
	Folder        string `env:"FOLDER"`
	Dev           bool   `env:"DEV"`
	MailgunAPIKey string `env:"MAILGUN_API_KEY"`
}

func main() {
	cfg, err := parseRuntime()
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration: %v\n", err)
		os.Exit(1)
	}

	logger := log.NewWithOptions(log.Options{
		Level:      cfg.env.LogLevel,
		File:       cfg.env.LogFile,
		MaxSizeMB:  cfg.env.LogMaxSizeMB,
		MaxBackups: cfg.env.LogMaxBackups,
	})

	src, err := loadSource(cfg.dev, cfg.folder)
	if err != nil {
		logger.Error("load assets", "error", err)
		os.Exit(1)
	}

	conf, configSource, err := loadConfig(cfg.configPath, cfg.env)
	if err != nil {
		logger.Error("load config", "error", err)
		os.Exit(1)
	}

	if configSource != "" {
		logger.Info("configuration loaded", "source", configSource)
	}

	if err := conf.Validate(func(name string) bool { return src.PageExists(name) }); err != nil {
		logger.Error("validate config", "error", err)
		os.Exit(1)
	}

	srv, err := server.New(conf, src, logger, cfg.dev)
	if err != nil {
		logger.Error("initialise server", "error", err)
		os.Exit(1)
	}

	httpSrv := &http.Server{
		Addr:              cfg.addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	done := make(chan struct{})

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown", "error", err)
		}

		close(done)
	}()

	logger.Info("server starting", "addr", cfg.addr, "dev", cfg.dev)

	err = httpSrv.ListenAndServe()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}

	<-done
	logger.Info("server stopped")
}

type runtimeConfig struct {
	env        envConfig
	configPath string
	addr       string
	folder     string
	dev        bool
}

func parseRuntime() (runtimeConfig, error) {
	// Missing .env is fine; SMTP credentials usually arrive this way in
	// development.
	_ = godotenv.Load()

	var ec envConfig
	if err := env.Parse(&ec); err != nil {
		return runtimeConfig{}, err
	}

	configDefault := ec.ConfigPath
	if configDefault == "" {
		configDefault = defaultConfig
	}

	addrDefault := strings.TrimSpace(ec.Addr)
	if addrDefault == "" {
		if port := strings.TrimSpace(ec.Port); port != "" {
			if strings.HasPrefix(port, ":") {
				addrDefault = port
			} else {
				addrDefault = ":" + port
			}
		}
	}
	if addrDefault == "" {
		addrDefault = defaultAddr
	}

	configPath := flag.String("config", configDefault, "path to configuration file")
	addr := flag.String("addr", addrDefault, "address to listen on (host:port)")
	folder := flag.String("folder", ec.Folder, "path to the asset folder (overrides embedded assets)")
	logLevel := flag.String("log-level", ec.LogLevel, "log level (debug, info, warn, error)")
	dev := flag.Bool("dev", ec.Dev, "run in development mode (serve assets from disk)")

	flag.Parse()

	ec.LogLevel = *logLevel

	return runtimeConfig{
		env:        ec,
		configPath: strings.TrimSpace(*configPath),
		addr:       strings.TrimSpace(*addr),
		folder:     strings.TrimSpace(*folder),
		dev:        *dev,
	}, nil
}

func loadConfig(path string, ec envConfig) (*config.Config, string, error) {
	cleanPath := strings.TrimSpace(path)
	if cleanPath != "" {
		conf, err := config.Load(cleanPath)
		if err == nil {
			applyRuntimeOverrides(conf, ec)
			return conf, cleanPath, nil
		}

		if !errors.Is(err, os.ErrNotExist) {
			return nil, "", err
		}
	}

	embedded := build.EmbeddedConfig()
	if len(embedded) == 0 {
		if cleanPath != "" {
			return nil, "", fmt.Errorf("config %s not found and no embedded configuration present", cleanPath)
		}
		return nil, "", errors.New("embedded configuration is missing")
	}

	conf, err := config.Parse(embedded)
	if err != nil {
		return nil, "", fmt.Errorf("parse embedded config: %w", err)
	}

	conf.WithSource("embedded")
	conf.WithLoadedTime(time.Now().UTC())
	applyRuntimeOverrides(conf, ec)

	if cleanPath != "" {
		return conf, fmt.Sprintf("embedded (fallback from %s)", cleanPath), nil
	}

	return conf, "embedded", nil
}

func applyRuntimeOverrides(cfg *config.Config, ec envConfig) {
	if cfg == nil {
		return
	}

	if apiKey := strings.TrimSpace(ec.MailgunAPIKey); apiKey != "" {
		cfg.Contact.Mailgun.APIKey = apiKey
	}
}

func loadSource(dev bool, folder string) (*assets.Source, error) {
	root := strings.TrimSpace(folder)
	if root == "" && dev {
		root = webRoot
	}

	if root != "" {
		return assets.NewDisk(root)
	}

	sub, err := fs.Sub(build.FS, "public")
	if err != nil {
		return nil, err
	}

	return assets.NewEmbedded(sub)
}
