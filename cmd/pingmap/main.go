// cmd/pingmap/main.go
package main

import (
    "context"
    "errors"
    "flag"
    "fmt"
    "io"
    "os"
    "os/signal"
    "path/filepath"
    "syscall"
    "time"

    "github.com/dustin/go-humanize"
    "github.com/sirupsen/logrus"
    "pingmap/internal/config"
    "pingmap/internal/database"
    "pingmap/internal/monitoring"
    "pingmap/internal/web"
)

func main() {
    configFile := flag.String("config", "config.yaml", "Configuration file path")
    version := flag.Bool("version", false, "Show version information")
    once := flag.Bool("once", false, "Run a single check cycle and exit; when a server holds the database the cycle is started on that server instead")
    serverURL := flag.String("server", "", "Base URL of the running server used by -once (default derived from server.port)")
    flag.Parse()

    if *version {
        fmt.Printf("pingmap %s\nCommit: %s\nBuilt: %s\n", web.Version, web.GitCommit, web.BuildTime)
        os.Exit(0)
    }

    // Load configuration
    cfg, err := config.Load(*configFile)
    if err != nil {
        logrus.Fatalf("Failed to load config: %v", err)
    }

    logFile, err := setupLogging(cfg.Logging)
    if err != nil {
        logrus.Fatalf("Failed to set up logging: %v", err)
    }
    if logFile != nil {
        defer logFile.Close()
    }

    logrus.WithFields(logrus.Fields{
        "config_file": *configFile,
        "port":        cfg.Server.Port,
        "workers":     cfg.Monitoring.Workers,
        "once":        *once,
    }).Info("Starting pingmap")

    // Initialize database
    store, err := database.NewBoltStore(cfg.Database.Path)
    if *once && errors.Is(err, database.ErrStoreLocked) {
        baseURL := *serverURL
        if baseURL == "" {
            baseURL = web.ServerURL(cfg.Server.Port)
        }
        os.Exit(triggerRemote(baseURL))
    }
    if err != nil {
        logrus.Fatalf("Failed to initialize database: %v", err)
    }
    defer store.Close()

    logrus.WithFields(logrus.Fields{
        "path": cfg.Database.Path,
        "size": humanize.Bytes(uint64(store.Size())),
    }).Info("Opened database")

    engine := monitoring.NewEngine(cfg, store, monitoring.NewExecProber(cfg.Monitoring.PingCommand), nil)

    ctx, cancel := context.WithCancel(context.Background())
    defer cancel()

    if *once {
        code := runOnce(ctx, engine)
        store.Close()
        os.Exit(code)
    }

    if err := engine.Start(ctx); err != nil {
        logrus.Fatalf("Failed to start monitoring engine: %v", err)
    }

    webServer := web.NewServer(cfg, store, engine)
    if err := webServer.Start(ctx); err != nil {
        logrus.Fatalf("Failed to start web server: %v", err)
    }

    // Wait for shutdown signal
    sigChan := make(chan os.Signal, 1)
    signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

    sig := <-sigChan
    logrus.WithField("signal", sig).Info("Received shutdown signal")

    cancel()
    engine.Stop()

    shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
    defer shutdownCancel()
    if err := webServer.Stop(shutdownCtx); err != nil {
        logrus.WithError(err).Error("Web server shutdown failed")
    }

    logrus.Info("Shutdown complete")
}

// runOnce seeds the configured hosts, runs one cycle and returns the exit
// code: non-zero when any host could not be recorded.
func runOnce(ctx context.Context, engine *monitoring.Engine) int {
    if err := engine.SeedHosts(ctx); err != nil {
        logrus.WithError(err).Error("Failed to seed hosts")
    }

    summary, err := engine.RunCycle(ctx)
    if err != nil {
        logrus.WithError(err).Error("Check cycle failed")
        return 1
    }

    fmt.Printf("Checked %d/%d hosts: %d up, %d down (%s)\n",
        summary.Checked, summary.Total, summary.Up, summary.Down, summary.Duration.Round(time.Millisecond))
    return 0
}

// triggerRemote starts the cycle on the server that holds the database.
// The server records the results; the exit code only reports whether the
// run was accepted.
func triggerRemote(baseURL string) int {
    logrus.WithField("server", baseURL).Info("Database is held by a running server, starting the cycle there")

    ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
    defer cancel()

    runID, err := web.TriggerCycle(ctx, nil, baseURL)
    if err != nil {
        logrus.WithError(err).Error("Failed to start check cycle on server")
        return 1
    }

    fmt.Printf("Started check cycle %s on %s\n", runID, baseURL)
    return 0
}

func setupLogging(cfg config.LoggingConfig) (*os.File, error) {
    level, err := logrus.ParseLevel(cfg.Level)
    if err != nil {
        level = logrus.InfoLevel
    }
    logrus.SetLevel(level)

    if cfg.Format == "json" {
        logrus.SetFormatter(&logrus.JSONFormatter{})
    } else {
        logrus.SetFormatter(&logrus.TextFormatter{
            FullTimestamp: true,
        })
    }

    if cfg.File == "" {
        return nil, nil
    }

    if err := os.MkdirAll(filepath.Dir(cfg.File), 0755); err != nil {
        return nil, fmt.Errorf("failed to create log directory: %w", err)
    }
    file, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
    if err != nil {
        return nil, fmt.Errorf("failed to open log file: %w", err)
    }
    logrus.SetOutput(io.MultiWriter(os.Stderr, file))
    return file, nil
}
