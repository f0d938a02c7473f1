package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/yourusername/yt-fetch-go/api"
	"github.com/yourusername/yt-fetch-go/internal/app"
	"github.com/yourusername/yt-fetch-go/internal/domain"
	"github.com/yourusername/yt-fetch-go/internal/infrastructure"
	"github.com/yourusername/yt-fetch-go/pkg/logger"
)

var serverMode = flag.Bool("server-mode", false, "Internal flag: run in server mode (called by daemon)")

func main() {
	flag.Parse()

	// If not in server mode, run as daemon
	if !*serverMode {
		startAsDaemon()
		return
	}

	// Run as server (called by daemon)
	runServer()
}

// startAsDaemon forks the current process and runs the server in background
func startAsDaemon() {
	// Get the executable path
	execPath, err := os.Executable()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to get executable path: %v\n", err)
		os.Exit(1)
	}

	// Get current working directory
	cwd, err := os.Getwd()
	if err != nil {
		cwd = "/"
	}

	// Fork the process
	cmd := exec.Command(execPath, "-server-mode")
	cmd.Dir = cwd
	cmd.Env = os.Environ()

	// Detach from parent process
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setsid: true, // Create new session
	}

	// Redirect output to /dev/null
	devNull, err := os.OpenFile(os.DevNull, os.O_RDWR, 0)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open /dev/null: %v\n", err)
		os.Exit(1)
	}
	cmd.Stdin = devNull
	cmd.Stdout = devNull
	cmd.Stderr = devNull

	// Start the child process
	if err := cmd.Start(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to start daemon: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Server started as daemon (PID: %d)\n", cmd.Process.Pid)
	os.Exit(0)
}

func runServer() {
	// Load configuration from the default search path (./configs,
	// ~/.yt-fetch, /etc/yt-fetch)
	config, err := app.LoadConfig("")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Create logs directory
	if err := os.MkdirAll(config.Download.LogsDir, 0755); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logs directory: %v\n", err)
		os.Exit(1)
	}

	// Initialize multi-logger (task events + application errors)
	multiLog, err := logger.NewMultiLogger(logger.MultiLoggerConfig{
		Level:   config.Logging.Level,
		LogsDir: config.Download.LogsDir,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer multiLog.Close()

	log, err := logger.New(logger.Config{
		Level:      config.Logging.Level,
		Format:     config.Logging.Format,
		OutputPath: config.Logging.OutputPath,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	log.Info("Starting yt-fetch server",
		zap.String("version", "1.0.0"),
		zap.String("host", config.Server.Host),
		zap.Int("port", config.Server.Port),
		zap.Int("workers", config.Download.Workers),
		zap.Bool("transcode", config.Transcode.Enabled))

	// Create directories
	if err := createDirectories(config); err != nil {
		log.Fatal("Failed to create directories", zap.Error(err))
	}

	// Initialize history repository
	var history domain.HistoryRepository
	repo, err := infrastructure.NewSQLiteHistoryRepository(config.History.DatabasePath, config.History.MaxEntries)
	if err != nil {
		log.Warn("History disabled: failed to open database",
			zap.String("path", config.History.DatabasePath),
			zap.Error(err))
	} else {
		history = repo
		defer repo.Close()
	}

	// Credential sources for auth recovery
	cookieCloud := infrastructure.NewCookieCloudClient(&config.CookieCloud, config.Download.CookiesDir, log)
	var syncer domain.CredentialSyncer
	if config.CookieCloud.IsConfigured() {
		syncer = cookieCloud
	}

	var browserSource domain.BrowserCookieSource
	if config.Browser.Enabled {
		browserSource = infrastructure.NewBrowserCookieExtractor(
			config.Download.YTDLPBinary, config.Download.CookiesDir, log)
	}

	// Core engine state
	store := app.NewTaskStore(log)
	phases := app.NewPhaseTracker(nil)
	hooks := app.NewHookRegistry(0, log)
	recovery := app.NewRecoveryCoordinator(config.Recovery, app.LexicalClassifier{}, store, hooks,
		syncer, browserSource, config.Browser.Browser, cookieCloud.CookieFilePath(), log)

	extractor := infrastructure.NewYTDLPExtractor(&config.Download, log)

	var transcoder *app.TranscodeSupervisor
	if config.Transcode.Enabled {
		engine := infrastructure.NewFFmpegEngine(config.Transcode.FFmpegBinary, log)
		prober := infrastructure.NewFFprobeProber(
			config.Transcode.FFprobeBinary, config.Transcode.FFmpegBinary, log)
		decider := infrastructure.NewAV1Decider(config.Transcode.AV1Only,
			config.Transcode.FFprobeBinary, config.Transcode.FFmpegBinary, log)
		transcoder = app.NewTranscodeSupervisor(config.Transcode, engine, decider, prober, store, log)
	}

	orch := app.NewOrchestrator(config, store, phases, hooks, recovery, transcoder,
		extractor, history, multiLog, log)

	// Setup HTTP router
	router := api.SetupRouter(orch, history, log)

	// Create HTTP server
	addr := fmt.Sprintf("%s:%d", config.Server.Host, config.Server.Port)
	server := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	// Start server in goroutine
	go func() {
		log.Info("HTTP server listening", zap.String("addr", addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server...")

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	// Drain in-flight tasks
	orch.Close()

	// Shutdown HTTP server
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}

	log.Info("Server exited")
}

func createDirectories(config *domain.Config) error {
	// Create all required subdirectories
	dirs := []string{
		config.Download.BaseDir,
		config.Download.CookiesDir,
		config.Download.LogsDir,
		config.Download.ConfigDir,
	}

	for _, dir := range dirs {
		// Skip empty paths (may be optional paths not configured)
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	return nil
}
