package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/kalambet/yomark/internal/api"
	"github.com/kalambet/yomark/internal/config"
	"github.com/kalambet/yomark/internal/embed"
	"github.com/kalambet/yomark/internal/index"
	"github.com/kalambet/yomark/internal/manager"
	"github.com/kalambet/yomark/internal/ollama"
	"github.com/kalambet/yomark/internal/recall"
	"github.com/kalambet/yomark/internal/store"
	"github.com/kalambet/yomark/internal/vectorcache"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the yomark server (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer()
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running yomark server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return stopServer()
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show yomark system status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus()
	},
}

func pidFilePath(dataDir string) string {
	return filepath.Join(dataDir, "yomark.pid")
}

func writePIDFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o644)
}

func readPIDFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(data)))
}

func removePIDFile(path string) {
	os.Remove(path)
}

func runServer() error {
	fmt.Fprintf(os.Stderr, "yomark version %s\n", version)

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	// Initialize structured logging.
	logLevel := slog.LevelInfo
	if strings.EqualFold(cfg.Log.Level, "debug") {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))

	apiToken, err := config.GetAPIToken(cfg.Storage.DataDir)
	if err != nil {
		return fmt.Errorf("initializing API token: %w", err)
	}
	slog.Info("API bearer token available")

	// Refuse to start twice. The health endpoint is the authority; the PID
	// file only names the culprit.
	pidPath := pidFilePath(cfg.Storage.DataDir)
	healthURL := fmt.Sprintf("http://127.0.0.1:%d/health", cfg.Server.Port)
	healthClient := &http.Client{Timeout: 2 * time.Second}
	if resp, err := healthClient.Get(healthURL); err == nil {
		resp.Body.Close()
		if pid, pidErr := readPIDFile(pidPath); pidErr == nil {
			printWarning("yomark is already running (PID %d)", pid)
			return fmt.Errorf("server already running (PID %d)", pid)
		}
		printWarning("yomark is already running on port %d", cfg.Server.Port)
		return fmt.Errorf("server already running on port %d", cfg.Server.Port)
	}
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("writing PID file: %w", err)
	}
	defer removePIDFile(pidPath)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Open the file store and build the in-memory index from disk.
	locations := make([]store.Location, len(cfg.Storages))
	for i, s := range cfg.Storages {
		locations[i] = store.Location{Name: s.Name, Path: s.Path}
	}
	st, err := store.New(locations, time.Duration(cfg.Storage.LockTimeoutMS)*time.Millisecond)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}

	ix := index.New()
	for _, loc := range locations {
		result, err := st.Scan(loc.Name)
		if err != nil {
			return fmt.Errorf("scanning storage %s: %w", loc.Name, err)
		}
		ix.Rebuild(result)
		stats := ix.StorageStats(loc.Name)
		slog.Info("indexed storage", "storage", loc.Name, "records", stats.Total, "load_errors", stats.Errors, "conflicts", stats.Conflicts)
	}

	mgr := manager.New(st, ix)

	// Semantic scoring is best-effort: if Ollama is unreachable at startup
	// the server still comes up and recall degrades to lexical mode.
	var provider embed.Provider
	embedReady := func() bool { return false }
	if cfg.Recall.EnableSemantic {
		ollamaClient := ollama.New(cfg.Ollama.BaseURL)
		if err := ollama.EnsureReady(ctx, ollamaClient, cfg.Ollama.EmbedModel, os.Stderr); err != nil {
			slog.Warn("embedding model unavailable, recall will be lexical-only", "error", err)
		}

		persist, err := vectorcache.Open(cfg.Storage.DataDir)
		if err != nil {
			return fmt.Errorf("opening vector cache: %w", err)
		}
		defer func() {
			if err := persist.Close(); err != nil {
				slog.Warn("closing vector cache", "error", err)
			}
		}()

		// Vectors from different models are not comparable, so drop any
		// cached under a previously configured model.
		if purged, err := persist.Purge(cfg.Ollama.EmbedModel); err != nil {
			slog.Warn("purging stale embedding vectors", "error", err)
		} else if purged > 0 {
			slog.Info("purged embedding vectors from previous model", "count", purged)
		}

		queryTimeout := time.Duration(cfg.Recall.QueryTimeoutMS) * time.Millisecond
		inner := embed.NewOllamaProvider(ollamaClient, cfg.Ollama.EmbedModel, queryTimeout)
		provider = embed.NewCachedProvider(inner, cfg.Ollama.EmbedModel, cfg.Recall.CacheSize, persist)
		embedReady = func() bool {
			checkCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			return ollamaClient.IsRunning(checkCtx)
		}
	}

	coordinator := recall.NewCoordinator(ix, provider, recall.Options{
		SemanticWeight: cfg.Recall.SemanticWeight,
		LexicalWeight:  cfg.Recall.LexicalWeight,
		DefaultLimit:   cfg.Recall.DefaultLimit,
		MaxLimit:       cfg.Recall.MaxLimit,
		EnableSemantic: cfg.Recall.EnableSemantic,
	}, cfg.StorageNames(), cfg.CurrentStorage())

	handler := api.NewHandler(api.Deps{
		Manager:        mgr,
		Coordinator:    coordinator,
		Index:          ix,
		Store:          st,
		Token:          apiToken,
		CurrentStorage: cfg.CurrentStorage(),
		QueryTimeout:   time.Duration(cfg.Recall.QueryTimeoutMS) * time.Millisecond,
		EmbedReady:     embedReady,
	})

	addr := fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: handler,
	}

	// MCP server over stdio, for agent clients launched alongside.
	mcpSrv := api.NewMCPServer(api.MCPDeps{
		Manager:        mgr,
		Coordinator:    coordinator,
		Index:          ix,
		Storages:       cfg.StorageNames(),
		CurrentStorage: cfg.CurrentStorage(),
	})
	stdioSrv := server.NewStdioServer(mcpSrv)
	go func() {
		if err := stdioSrv.Listen(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("MCP stdio server error", "error", err)
		}
	}()
	slog.Info("MCP server started (stdio transport)")

	errCh := make(chan error, 1)
	go func() {
		fmt.Fprintf(os.Stderr, "yomark listening on %s\n", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		fmt.Fprintln(os.Stderr, "shutting down...")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func stopServer() error {
	cfg, err := config.Load()
	if err != nil {
		printError("could not load config: %v", err)
		return err
	}

	pidPath := pidFilePath(cfg.Storage.DataDir)
	pid, err := readPIDFile(pidPath)
	if err != nil {
		printError("yomark is not running (no PID file)")
		return fmt.Errorf("not running: %w", err)
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		printError("could not find process %d", pid)
		return err
	}

	if err := process.Signal(syscall.SIGTERM); err != nil {
		printError("could not stop yomark (PID %d): %v", pid, err)
		removePIDFile(pidPath)
		return err
	}

	printSuccess("Sent stop signal to yomark (PID %d)", pid)
	return nil
}

func showStatus() error {
	cfg, err := config.Load()
	if err != nil {
		printError("config error: %v", err)
		return nil
	}

	serverURL := fmt.Sprintf("http://127.0.0.1:%d", cfg.Server.Port)
	client := &http.Client{Timeout: 2 * time.Second}

	resp, err := client.Get(serverURL + "/health")
	if err != nil {
		printStatus("Server", "stopped")
	} else {
		resp.Body.Close()
		if resp.StatusCode == 200 {
			printStatus("Server", "running on port %d", cfg.Server.Port)
		} else {
			printStatus("Server", "error (HTTP %d)", resp.StatusCode)
		}
	}

	ollamaResp, err := client.Get(cfg.Ollama.BaseURL + "/api/version")
	if err != nil {
		printStatus("Ollama", "not running")
	} else {
		ollamaResp.Body.Close()
		printStatus("Ollama", "running at %s", cfg.Ollama.BaseURL)
	}

	printStatus("Embed model", "%s", cfg.Ollama.EmbedModel)
	printStatus("Semantic recall", "%v", cfg.Recall.EnableSemantic)
	printStatus("Current storage", "%s", cfg.CurrentStorage())
	printStatus("Storages", "%s", strings.Join(cfg.StorageNames(), ", "))
	printStatus("Data dir", "%s", cfg.Storage.DataDir)
	return nil
}
