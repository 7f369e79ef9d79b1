// Command longshot captures full-page screenshots.
//
// Usage:
//
//	longshot -url https://example.com            # one-shot capture to ./ as PNG/JPEG
//	longshot -url https://example.com -pdf       # also bundle the parts into a PDF
//	longshot -serve :8080                        # HTTP capture API
//	longshot -mcp                                # MCP server on stdio
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	_ "modernc.org/sqlite"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/longshot"
	"github.com/hazyhaar/longshot/internal/export"
	"github.com/hazyhaar/longshot/internal/httpapi"
)

func main() {
	configPath := flag.String("config", "", "path to longshot.yaml config file")
	captureURL := flag.String("url", "", "capture a single URL and exit")
	outDir := flag.String("out", "", "output directory for one-shot captures")
	pdf := flag.Bool("pdf", false, "also bundle one-shot capture parts into a PDF")
	serveAddr := flag.String("serve", "", "serve the HTTP capture API on this address")
	mcpStdio := flag.Bool("mcp", false, "serve MCP tools on stdio")
	logLevel := flag.String("log-level", "info", "log level: debug, info, warn, error")
	flag.Parse()

	var level slog.Level
	switch *logLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, logger, *configPath, *captureURL, *outDir, *serveAddr, *pdf, *mcpStdio); err != nil {
		logger.Error("longshot: fatal", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *slog.Logger, configPath, captureURL, outDir, serveAddr string, pdf, mcpStdio bool) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	switch {
	case serveAddr != "":
		return runServe(ctx, logger, cfg, serveAddr)
	case mcpStdio:
		return runMCP(ctx, logger, cfg)
	case captureURL != "":
		return runCapture(ctx, logger, cfg, captureURL, outDir, pdf)
	}

	fmt.Fprintln(os.Stderr, "usage: longshot -url <url> [-out <dir>] [-pdf] | -serve <addr> | -mcp")
	os.Exit(1)
	return nil
}

func loadConfig(path string) (*longshot.Config, error) {
	if path == "" {
		return longshot.DefaultConfig(), nil
	}
	return longshot.LoadConfigFile(path)
}

func runCapture(ctx context.Context, logger *slog.Logger, cfg *longshot.Config, url, outDir string, pdf bool) error {
	c := longshot.New(cfg, logger)
	if err := c.Start(ctx); err != nil {
		return err
	}
	defer c.Close()

	res, err := c.Capture(ctx, url)
	if err != nil {
		return err
	}
	for _, w := range res.Warnings {
		logger.Warn("capture warning", "warning", w)
	}

	if outDir == "" {
		outDir = cfg.Output.Dir
	}
	paths, err := res.WriteFiles(outDir)
	if err != nil {
		return err
	}
	for _, p := range paths {
		fmt.Println(p)
	}

	if pdf || cfg.Output.PDF {
		p, err := writePDF(res, outDir)
		if err != nil {
			return err
		}
		fmt.Println(p)
	}
	return nil
}

func writePDF(res *longshot.Result, dir string) (string, error) {
	images := make([][]byte, 0, len(res.Artifacts))
	for _, a := range res.Artifacts {
		images = append(images, a.Bytes)
	}

	path := filepath.Join(dir, res.SessionID+".pdf")
	f, err := os.Create(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	if err := export.PDF(f, images); err != nil {
		return "", err
	}
	return path, nil
}

func runServe(ctx context.Context, logger *slog.Logger, cfg *longshot.Config, addr string) error {
	c := longshot.New(cfg, logger)
	if err := c.Start(ctx); err != nil {
		return err
	}
	defer c.Close()

	srv := &http.Server{
		Addr:              addr,
		Handler:           httpapi.NewServer(c, logger).Router(),
		ReadHeaderTimeout: 10 * time.Second,
		// Captures run inside the request; long pages take minutes.
		WriteTimeout: 10 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown", "error", err)
	}
	logger.Info("server stopped")
	return nil
}

func runMCP(ctx context.Context, logger *slog.Logger, cfg *longshot.Config) error {
	c := longshot.New(cfg, logger)
	if err := c.Start(ctx); err != nil {
		return err
	}
	defer c.Close()

	srv := mcp.NewServer(&mcp.Implementation{
		Name:    "longshot",
		Version: "1.0.0",
	}, nil)
	c.RegisterMCP(srv)

	logger.Info("mcp server starting", "transport", "stdio")
	return srv.Run(ctx, &mcp.StdioTransport{})
}
