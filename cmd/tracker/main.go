package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ChitranshGuha/system-tracker-sqlite-sub000/internal/api"
	"github.com/ChitranshGuha/system-tracker-sqlite-sub000/internal/capture/x11"
	"github.com/ChitranshGuha/system-tracker-sqlite-sub000/internal/config"
	"github.com/ChitranshGuha/system-tracker-sqlite-sub000/internal/connectivity"
	"github.com/ChitranshGuha/system-tracker-sqlite-sub000/internal/domain/collector"
	"github.com/ChitranshGuha/system-tracker-sqlite-sub000/internal/domain/interval"
	"github.com/ChitranshGuha/system-tracker-sqlite-sub000/internal/domain/screenshot"
	"github.com/ChitranshGuha/system-tracker-sqlite-sub000/internal/domain/session"
	"github.com/ChitranshGuha/system-tracker-sqlite-sub000/internal/domain/syncer"
	"github.com/ChitranshGuha/system-tracker-sqlite-sub000/internal/repository"
	"github.com/ChitranshGuha/system-tracker-sqlite-sub000/internal/sqlite"
	"github.com/ChitranshGuha/system-tracker-sqlite-sub000/internal/tracker"
)

const appVersion = "0.1.0"

var rootCmd = &cobra.Command{
	Use:           "tracker",
	Short:         "Employee activity tracking agent",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the tracking agent",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runAgent()
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show persisted tracking state",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus()
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("version: %s\n", appVersion)
	},
}

func main() {
	rootCmd.AddCommand(runCmd, statusCmd, versionCmd)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func runAgent() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config error: %w", err)
	}

	logger, closeLog, err := newLogger(cfg.Log)
	if err != nil {
		return err
	}
	defer closeLog()

	db, err := openDB(cfg.DB.Path)
	if err != nil {
		logger.Error("failed to open database", "error", err)
		return err
	}
	defer db.Close()

	sessionRepo := sqlite.NewSessionRepository(db)
	queueRepo := sqlite.NewQueueRepository(db)
	stateRepo := sqlite.NewStateRepository(db)

	client := api.NewHTTPClient(cfg.API.BaseURL, cfg.API.Token, cfg.API.Timeout, logger)
	monitor := connectivity.NewMonitor(client, stateRepo, cfg.Tracker.OfflineCooldown, logger)

	samples := collector.New()
	sessions := session.NewService(sessionRepo, stateRepo, client, monitor, cfg.Tracker.RetainedSessions, logger)
	accountant := interval.New(samples, sessions, queueRepo, client, monitor, nil, cfg.Tracker.IdleTickThreshold, logger)
	sessions.SetIntervalCloser(accountant)
	engine := syncer.New(queueRepo, client, cfg.Tracker.ReplayAttemptCap, logger)

	params := tracker.Params{
		Config:     cfg,
		Collector:  samples,
		Sessions:   sessions,
		Accountant: accountant,
		Engine:     engine,
		Monitor:    monitor,
		Logger:     logger,
	}
	if backend := openBackend(logger); backend != nil {
		params.Backend = backend
		params.Screenshots = screenshot.NewScheduler(backend, client, sessions, queueRepo, monitor, cfg.Tracker.ScreenshotDir, logger)
	}

	agent := tracker.New(params)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := agent.Run(ctx); err != nil {
		logger.Error("failed to start agent", "error", err)
		return err
	}

	if cfg.Owner.ID != "" && cfg.Owner.TaskID != "" && !agent.IsLogging() {
		if err := agent.StartLogging(ctx, cfg.Owner.ID, cfg.Owner.TaskID, cfg.Owner.Description); err != nil {
			logger.Error("failed to start logging", "error", err)
		}
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("shutting down")
	cancel()
	if err := agent.Close(); err != nil {
		logger.Warn("shutdown error", "error", err)
	}
	return nil
}

func showStatus() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config error: %w", err)
	}

	db, err := openDB(cfg.DB.Path)
	if err != nil {
		return err
	}
	defer db.Close()

	stateRepo := sqlite.NewStateRepository(db)
	queueRepo := sqlite.NewQueueRepository(db)
	ctx := context.Background()

	logging, err := stateRepo.Get(ctx, repository.StateIsLogging)
	if errors.Is(err, repository.ErrNotFound) {
		logging = "false"
	} else if err != nil {
		return err
	}

	pending, err := queueRepo.CountPending(ctx)
	if err != nil {
		return err
	}
	quarantined, err := queueRepo.ListQuarantined(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("Logging:     %s\n", logging)
	fmt.Printf("Pending:     %d\n", pending)
	fmt.Printf("Quarantined: %d\n", len(quarantined))
	if sessionID, err := stateRepo.Get(ctx, repository.StateSessionID); err == nil {
		fmt.Printf("Session:     %s\n", sessionID)
	}
	if raw, err := stateRepo.Get(ctx, repository.StateManualOfflineUntil); err == nil {
		if unix, parseErr := strconv.ParseInt(raw, 10, 64); parseErr == nil {
			if until := time.Unix(unix, 0); time.Now().Before(until) {
				fmt.Printf("Offline:     until %s\n", until.Format(time.RFC3339))
			}
		}
	}
	if raw, err := stateRepo.Get(ctx, repository.StateLastUpdateCheck); err == nil {
		fmt.Printf("Update check: %s\n", raw)
	}
	return nil
}

func openDB(path string) (*sqlite.DB, error) {
	if err := ensureDir(path); err != nil {
		return nil, fmt.Errorf("preparing database path: %w", err)
	}
	db, err := sqlite.New(path)
	if err != nil {
		return nil, err
	}
	if err := db.RunMigrations(); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

func openBackend(logger *slog.Logger) *x11.Backend {
	backend, err := x11.New()
	if err != nil {
		logger.Warn("X11 capture unavailable, running without desktop sampling", "error", err)
		return nil
	}
	return backend
}

func newLogger(cfg config.LogConfig) (*slog.Logger, func(), error) {
	writer := io.Writer(os.Stderr)
	closeLog := func() {}

	if cfg.Path != "" {
		fileWriter, file, err := newLogFileWriter(cfg.Path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "log file error: %v\n", err)
		} else {
			writer = fileWriter
			closeLog = func() { file.Close() }
		}
	}

	logger := slog.New(slog.NewTextHandler(writer, &slog.HandlerOptions{
		Level: parseLogLevel(cfg.Level),
	}))
	return logger, closeLog, nil
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func ensureDir(path string) error {
	if path == ":memory:" || path == "" {
		return nil
	}
	dir := filepath.Dir(path)
	if dir == "." {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}

const (
	maxLogSizeBytes  = 6 * 1024 * 1024
	keepLogSizeBytes = 5 * 1024 * 1024
)

type logFileWriter struct {
	path string
	file *os.File
	mu   sync.Mutex
}

func newLogFileWriter(path string) (*logFileWriter, *os.File, error) {
	if err := ensureDir(path); err != nil {
		return nil, nil, err
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, err
	}
	writer := &logFileWriter{path: path, file: file}
	if err := writer.truncateIfNeeded(); err != nil {
		return nil, nil, err
	}
	return writer, file, nil
}

func (w *logFileWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	n, err := w.file.Write(p)
	if err != nil {
		return n, err
	}
	if err := w.truncateIfNeeded(); err != nil {
		return n, err
	}
	return n, nil
}

func (w *logFileWriter) truncateIfNeeded() error {
	info, err := w.file.Stat()
	if err != nil {
		return err
	}
	size := info.Size()
	if size <= maxLogSizeBytes {
		return nil
	}

	buf := make([]byte, keepLogSizeBytes)
	if _, err := w.file.Seek(size-keepLogSizeBytes, io.SeekStart); err != nil {
		return err
	}
	n, err := w.file.Read(buf)
	if err != nil && err != io.EOF {
		return err
	}
	buf = buf[:n]

	if err := w.file.Truncate(0); err != nil {
		return err
	}
	if _, err := w.file.Seek(0, io.SeekStart); err != nil {
		return err
	}
	if _, err := w.file.Write(buf); err != nil {
		return err
	}
	_, err = w.file.Seek(0, io.SeekEnd)
	return err
}
