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

	"github.com/kalambet/learnbot/internal/annotate"
	"github.com/kalambet/learnbot/internal/api"
	"github.com/kalambet/learnbot/internal/config"
	"github.com/kalambet/learnbot/internal/ingest"
	"github.com/kalambet/learnbot/internal/profile"
	"github.com/kalambet/learnbot/internal/session"
	"github.com/kalambet/learnbot/internal/storage"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the learnbot server (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer()
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running learnbot server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return stopServer()
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show learnbot status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus(cmd.Context())
	},
}

func pidFilePath(dataDir string) string {
	return filepath.Join(dataDir, "learnbot.pid")
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
	fmt.Fprintf(os.Stderr, "learnbot version %s\n", version)

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.SlogLevel()})))

	apiToken, err := config.GetAPIToken(config.NewKeychain())
	if err != nil {
		return fmt.Errorf("initializing API token: %w", err)
	}
	slog.Info("API bearer token available")

	// Refuse to start twice: check the health endpoint before taking the PID file.
	pidPath := pidFilePath(cfg.Storage.DataDir)
	healthURL := fmt.Sprintf("http://127.0.0.1:%d/health", cfg.Server.Port)
	healthClient := &http.Client{Timeout: 2 * time.Second}
	if resp, err := healthClient.Get(healthURL); err == nil {
		resp.Body.Close()
		if pid, pidErr := readPIDFile(pidPath); pidErr == nil {
			printWarning("learnbot is already running (PID %d)", pid)
			return fmt.Errorf("server already running (PID %d)", pid)
		}
		printWarning("learnbot is already running on port %d", cfg.Server.Port)
		return fmt.Errorf("server already running on port %d", cfg.Server.Port)
	}
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("writing PID file: %w", err)
	}
	defer removePIDFile(pidPath)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "warning: closing storage: %v\n", err)
		}
	}()

	annotatorTimeout, err := cfg.AnnotatorTimeout()
	if err != nil {
		return err
	}
	annotator, err := annotate.NewProse(annotate.ProseConfig{
		Timeout:     annotatorTimeout,
		LexiconPath: cfg.Annotator.LexiconPath,
	})
	if err != nil {
		return fmt.Errorf("loading annotator: %w", err)
	}

	profiles := profile.NewManager(store)
	sess, err := session.New(session.Config{
		Profiles:          profiles,
		Turns:             store,
		Annotator:         annotator,
		CompoundSentiment: cfg.Dialogue.CompoundSentiment,
	})
	if err != nil {
		return fmt.Errorf("loading session: %w", err)
	}
	user, bot := sess.Profile()
	slog.Info("session ready", "user", user, "bot", bot)

	appHandler := api.NewAppHandler(api.AppDeps{
		Store:      store,
		Session:    sess,
		Profiles:   profiles,
		Token:      apiToken,
		HTTPClient: &http.Client{Timeout: 15 * time.Second},
	})

	addr := fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: appHandler,
	}

	pollInterval, err := cfg.PollInterval()
	if err != nil {
		return err
	}
	worker := ingest.NewWorker(store, sess, pollInterval)
	go worker.Run(ctx)

	if cfg.Server.MCPEnabled {
		mcpSrv := api.NewMCPServer(api.MCPDeps{Session: sess, Version: version})
		stdioSrv := server.NewStdioServer(mcpSrv)
		go func() {
			if err := stdioSrv.Listen(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
				slog.Error("MCP stdio server error", "error", err)
			}
		}()
		slog.Info("MCP server started (stdio transport)")
	}

	errCh := make(chan error, 1)
	go func() {
		fmt.Fprintf(os.Stderr, "learnbot listening on %s\n", addr)
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
		printError("learnbot is not running (no PID file)")
		return fmt.Errorf("not running: %w", err)
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		printError("could not find process %d", pid)
		return err
	}

	if err := process.Signal(syscall.SIGTERM); err != nil {
		printError("could not stop learnbot (PID %d): %v", pid, err)
		removePIDFile(pidPath)
		return err
	}

	printSuccess("Sent stop signal to learnbot (PID %d)", pid)
	return nil
}

func showStatus(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		printError("config error: %v", err)
		return nil
	}

	client, err := newAPIClient()
	if err != nil {
		printError("%v", err)
		return nil
	}
	reportStatus(ctx, client)
	printStatus("Data dir", "%s", cfg.Storage.DataDir)
	return nil
}

// reportStatus prints server health and, when it is up, the selected
// profile and how much material the bot has.
func reportStatus(ctx context.Context, client *apiClient) {
	resp, err := client.get(ctx, "/health")
	if err != nil {
		printStatus("Server", "stopped")
		return
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		printStatus("Server", "error (HTTP %d)", resp.StatusCode)
		return
	}
	printStatus("Server", "running at %s", client.baseURL)

	resp, err = client.get(ctx, "/analysis")
	if err != nil {
		return
	}
	var a session.Analysis
	if err := decodeJSON(resp, &a); err != nil {
		printStatus("Profile", "unavailable (%v)", err)
		return
	}
	printStatus("User", "%s", a.User)
	printStatus("Bot", "%s (%s)", a.Bot, countLabel(len(a.Categories), "category", "categories"))
	printStatus("Progress", "%d/%d", a.UsedPotential, a.BotPotential)
}

func countLabel(n int, one, many string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s", one)
	}
	return fmt.Sprintf("%d %s", n, many)
}
