package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ironsheep/colony-counter/internal/config"
	"github.com/ironsheep/colony-counter/internal/log"
	"github.com/ironsheep/colony-counter/internal/server"
	"github.com/ironsheep/colony-counter/internal/vision"
)

// Version information - set by ldflags during build
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	// Handle --version and --help before flag parsing
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "--version", "-v", "version":
			fmt.Printf("colony-counter %s\n", Version)
			fmt.Printf("  Build time: %s\n", BuildTime)
			fmt.Printf("  Git commit: %s\n", GitCommit)
			fmt.Printf("  Vision:     %s\n", vision.Backend)
			return
		case "--help", "-h", "help":
			printHelp()
			return
		}
	}

	configPath := flag.String("config", os.Getenv("COLONY_CONFIG"), "path to a YAML config file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "colony-counter: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger := log.Init(cfg.LogLevel, cfg.LogFormat)
	logger.Info("starting colony-counter",
		"version", Version,
		"commit", GitCommit,
		"listen", cfg.Listen,
		"vision", vision.Backend)

	style, err := vision.StyleFromConfig(cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	engine := vision.NewEngine(vision.Options{
		Style:  style,
		Logger: log.Component("vision"),
	})
	engine.Start(ctx)

	go func() {
		started := time.Now()
		if err := engine.WaitReady(ctx); err != nil {
			logger.Warn("counting disabled until the vision pipeline is available", "error", err)
			return
		}
		logger.Info("counting enabled", "startup", time.Since(started))
	}()

	srv := server.New(cfg, engine, log.Component("server"))
	return srv.Run(ctx)
}

func printHelp() {
	fmt.Println("colony-counter - count bacterial colonies in petri dish photos")
	fmt.Println()
	fmt.Println("Usage: colony-counter [options]")
	fmt.Println()
	fmt.Println("Options:")
	fmt.Println("  -config PATH     YAML config file")
	fmt.Println("  --version, -v    Print version information")
	fmt.Println("  --help, -h       Print this help message")
	fmt.Println()
	fmt.Println("Environment variables:")
	fmt.Println("  COLONY_CONFIG=path          Config file (same as -config)")
	fmt.Println("  COLONY_LISTEN=:8080         HTTP listen address")
	fmt.Println("  COLONY_LOG_LEVEL=debug      Log level (debug, info, warn, error)")
	fmt.Println("  COLONY_LOG_FORMAT=json      Log format (text, json)")
	fmt.Println()
	fmt.Println("Open the listen address in a browser to use the counter.")
	fmt.Println("Build with -tags gocv to enable the OpenCV pipeline.")
}
