package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ironsheep/starfind-mcp/internal/config"
	"github.com/ironsheep/starfind-mcp/internal/logger"
	"github.com/ironsheep/starfind-mcp/internal/server"
	"github.com/ironsheep/starfind-mcp/internal/transport"
)

// Version information - set by ldflags during build
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	httpMode := false

	// Handle --version, --help and --http
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "--version", "-v", "version":
			fmt.Printf("starfind-mcp %s\n", Version)
			fmt.Printf("  Build time: %s\n", BuildTime)
			fmt.Printf("  Git commit: %s\n", GitCommit)
			return
		case "--help", "-h", "help":
			printHelp()
			return
		case "--http":
			httpMode = true
		default:
			fmt.Fprintf(os.Stderr, "unknown option: %s\n\n", os.Args[1])
			printHelp()
			os.Exit(2)
		}
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	// Logging goes to stderr (stdout is for MCP protocol)
	log, err := logger.New(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger error: %v\n", err)
		os.Exit(1)
	}
	log.WithFields(logger.Fields{
		"version": Version,
		"built":   BuildTime,
		"commit":  GitCommit,
		"workers": cfg.Workers,
	}).Debug("starfind-mcp starting")

	srv := server.New(cfg, log)

	if !httpMode {
		if err := srv.Run(); err != nil {
			log.WithError(err).Fatal("server error")
		}
		return
	}

	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           transport.NewHandler(srv, log, transport.DefaultMaxBodyBytes),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		log.WithField("addr", cfg.HTTPAddr).Info("http server listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			log.WithError(err).Fatal("http server error")
		}
	case <-ctx.Done():
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.WithError(err).Error("http shutdown failed")
		}
	}
}

func printHelp() {
	fmt.Println("starfind-mcp - MCP server for stellar source detection")
	fmt.Println()
	fmt.Println("Usage: starfind-mcp [options]")
	fmt.Println()
	fmt.Println("Options:")
	fmt.Println("  --version, -v    Print version information")
	fmt.Println("  --help, -h       Print this help message")
	fmt.Println("  --http           Serve the tools over HTTP instead of stdio")
	fmt.Println()
	fmt.Println("Environment variables (also read from .env):")
	fmt.Println("  STARFIND_LOG_LEVEL=info        debug, info, warn or error")
	fmt.Println("  STARFIND_LOG_FORMAT=text       text or json")
	fmt.Println("  STARFIND_LOG_FILE=             Also log to this rotating file")
	fmt.Println("  STARFIND_HTTP_ADDR=:8080       Listen address for --http")
	fmt.Println("  STARFIND_WORKERS=<cpus>        Concurrent frames in star_find_batch")
	fmt.Println("  STARFIND_NSIGMA=5              Default threshold in background sigmas")
	fmt.Println("  STARFIND_CLIP_SIGMA=3          Background sigma-clipping limit")
	fmt.Println("  STARFIND_SHARP_LO/HI=0.2/1.0   Default sharpness band")
	fmt.Println("  STARFIND_ROUND_LO/HI=-1/1      Default roundness band")
	fmt.Println()
	fmt.Println("By default the server communicates via MCP over stdin/stdout.")
	fmt.Println("Configure it in your MCP client.")
}
