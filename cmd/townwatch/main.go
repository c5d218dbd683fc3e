package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"townwatch/internal/applog"
	"townwatch/internal/config"
	"townwatch/internal/session"
	"townwatch/internal/tui"
	"townwatch/internal/web"
)

// version is set at build time via -ldflags "-X main.version=v1.0.0"
var version = "dev"

func main() {
	// Load config first to get log level
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logOut, closeLog, err := logOutput(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open log file: %v\n", err)
		os.Exit(1)
	}
	defer closeLog()

	slog.SetDefault(slog.New(slog.NewJSONHandler(logOut, &slog.HandlerOptions{
		Level: applog.ParseLevel(cfg.LogLevel),
	})))

	sess, err := session.New(session.OptionsFromConfig(cfg))
	if err != nil {
		slog.Error("Invalid source", "source", cfg.Source, "error", err, "component", "Main")
		os.Exit(1)
	}
	log := applog.New("Main", sess.View())

	log.Info("Starting Townwatch", "version", version)
	if cfg.LoadedFrom != "" {
		log.Info("Configuration file loaded", "path", cfg.LoadedFrom)
	}
	log.Info("Watching backend", "source", cfg.Source)
	log.Info("Snapshot poll interval", "interval", cfg.PollInterval.String())
	log.Info("Stream reconnect delay", "delay", cfg.ReconnectDelay.String())
	log.Debug("Front-ends", "mode", cfg.UIMode)

	sess.Start()

	var webServer *web.Server
	if cfg.WantsWeb() {
		webServer = web.New(sess.View(), sess, cfg.WebPort, version)
		if err := webServer.Start(); err != nil {
			log.Error("Web UI failed to start", "error", err)
			sess.Stop()
			os.Exit(1)
		}
	}

	// Set up graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	if cfg.WantsTUI() {
		runTUI(sess, stop, log)
	} else {
		<-stop
	}

	log.Info("Shutting down gracefully")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if webServer != nil {
		if err := webServer.Shutdown(ctx); err != nil {
			log.Warn("Web UI shutdown incomplete", "error", err)
		}
	}
	sess.Stop()
}

// runTUI blocks until the user quits the terminal dashboard or a signal
// arrives.
func runTUI(sess *session.Session, stop <-chan os.Signal, log *applog.Logger) {
	model := tui.New(sess.View(), sess)
	defer model.Close()

	p := tea.NewProgram(model, tea.WithAltScreen())
	done := make(chan error, 1)
	go func() {
		_, err := p.Run()
		done <- err
	}()

	select {
	case err := <-done:
		if err != nil {
			log.Error("Terminal UI failed", "error", err)
		}
	case <-stop:
		p.Quit()
		<-done
	}
}

// logOutput picks the slog destination. The terminal UI owns stdout, so in
// that mode records go to LOG_FILE or nowhere.
func logOutput(cfg *config.Config) (io.Writer, func(), error) {
	if !cfg.WantsTUI() {
		return os.Stdout, func() {}, nil
	}
	if cfg.LogFile == "" {
		return io.Discard, func() {}, nil
	}
	f, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, err
	}
	return f, func() { f.Close() }, nil
}
