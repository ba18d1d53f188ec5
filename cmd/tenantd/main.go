// Package main is the entry point for the tenant service.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/vyrodovalexey/avtenantd/internal/config"
	"github.com/vyrodovalexey/avtenantd/internal/observability"
)

// Version information (set at build time).
var (
	version   = "dev"
	buildTime = "unknown"
	gitCommit = "unknown"
)

// cliFlags holds command line flags.
type cliFlags struct {
	configPath   string
	logLevel     string
	logFormat    string
	showVersion  bool
	validateOnly bool
}

func main() {
	flags := parseFlags()

	if flags.showVersion {
		printVersion()
		return
	}

	logger := initLogger(flags)
	defer func() { _ = logger.Sync() }()

	cfg := loadAndValidateConfig(flags.configPath, logger)
	if flags.validateOnly {
		logger.Info("configuration valid")
		return
	}

	app := initApplication(cfg, logger)

	runService(app, logger)
}

// parseFlags parses command line flags.
func parseFlags() cliFlags {
	configPath := flag.String("config", getEnvOrDefault("TENANTD_CONFIG_PATH", "configs/tenantd.yaml"),
		"Path to configuration file")
	logLevel := flag.String("log-level", getEnvOrDefault("TENANTD_LOG_LEVEL", "info"),
		"Log level (debug, info, warn, error)")
	logFormat := flag.String("log-format", getEnvOrDefault("TENANTD_LOG_FORMAT", "json"),
		"Log format (json, console)")
	showVersion := flag.Bool("version", false, "Show version information")
	validateOnly := flag.Bool("validate-config", getEnvBool("TENANTD_VALIDATE_ONLY", false),
		"Validate the configuration and exit")
	flag.Parse()

	return cliFlags{
		configPath:   *configPath,
		logLevel:     *logLevel,
		logFormat:    *logFormat,
		showVersion:  *showVersion,
		validateOnly: *validateOnly,
	}
}

// printVersion prints version information and exits.
func printVersion() {
	fmt.Printf("avtenantd version %s\n", version)
	fmt.Printf("  Build time: %s\n", buildTime)
	fmt.Printf("  Git commit: %s\n", gitCommit)
}

// initLogger initializes the logger.
func initLogger(flags cliFlags) observability.Logger {
	logger, err := observability.NewLogger(observability.LogConfig{
		Level:  flags.logLevel,
		Format: flags.logFormat,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	observability.SetGlobalLogger(logger)
	return logger
}

// loadAndValidateConfig loads and validates the configuration.
func loadAndValidateConfig(configPath string, logger observability.Logger) *config.ServiceConfig {
	logger.Info("starting avtenantd",
		observability.String("version", version),
		observability.String("config", configPath),
	)

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		logger.Fatal("failed to load configuration", observability.Error(err))
	}

	logger.Info("configuration loaded",
		observability.String("catalogDatabase", cfg.Catalog.Database),
		observability.String("cacheType", cfg.Cache.Type),
		observability.Bool("cacheEnabled", cfg.Cache.Enabled),
		observability.Bool("revocation", cfg.Auth.Revocation.Enabled),
	)

	return cfg
}
