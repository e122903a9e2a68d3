package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/joescharf/campus/internal/daemon"
	"github.com/joescharf/campus/internal/web"
)

var serveDaemon bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the web UI server",
	Long: `Start the HTTP server for the campus web UI.

Each browser gets its own session; the page updates live over
Server-Sent Events. By default it listens on localhost:8080.
Use --daemon to run it in the background.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if serveDaemon {
			return serveStartRun()
		}
		return serveRun(cmd.Context())
	},
}

var serveStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show whether a background server is running",
	RunE: func(cmd *cobra.Command, args []string) error {
		return serveStatusRun()
	},
}

var serveStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the background server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return serveStopRun()
	},
}

func init() {
	serveCmd.Flags().String("addr", "localhost:8080", "address to listen on")
	serveCmd.Flags().BoolVarP(&serveDaemon, "daemon", "d", false, "run in the background")
	_ = viper.BindPFlag("serve.addr", serveCmd.Flags().Lookup("addr"))

	serveCmd.AddCommand(serveStatusCmd)
	serveCmd.AddCommand(serveStopCmd)
	rootCmd.AddCommand(serveCmd)
}

func pidFile() *daemon.PIDFile {
	return daemon.NewPIDFile(filepath.Join(viper.GetString("state_dir"), "campus-serve.pid"))
}

func serveLogPath() string {
	return filepath.Join(viper.GetString("state_dir"), "campus-serve.log")
}

func webConfig() web.Config {
	cfg := web.DefaultConfig
	cfg.Addr = viper.GetString("serve.addr")
	if ttl := viper.GetDuration("serve.session_ttl"); ttl > 0 {
		cfg.SessionTTL = ttl
	}
	cfg.SecureCookie = viper.GetBool("serve.secure_cookie")
	return cfg
}

// serveRun runs the server in the foreground until a shutdown signal.
func serveRun(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, shutdownSignals()...)
	defer stop()

	pf := pidFile()
	if err := pf.Acquire(); err != nil {
		return err
	}
	defer func() { _ = pf.Release() }()

	logger := newLogger()
	defer func() { _ = logger.Sync() }()

	a, err := newApp(ctx, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	srv := web.NewServer(a, webConfig(), logger, nil)
	defer srv.Close()

	ui.Success("Serving campus at http://%s", viper.GetString("serve.addr"))
	err = srv.ListenAndServe(ctx)
	logger.Info("server stopped", zap.Error(err))
	return err
}

// serveStartRun starts the server as a detached child process.
func serveStartRun() error {
	pf := pidFile()
	if pid, running := pf.IsRunning(); running {
		return fmt.Errorf("server already running (pid %d)", pid)
	}

	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("find executable: %w", err)
	}

	logPath := serveLogPath()
	if err := os.MkdirAll(filepath.Dir(logPath), 0o755); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}
	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer logFile.Close()

	args := []string{"serve", "--addr", viper.GetString("serve.addr")}
	if cfgFile, _ := rootCmd.PersistentFlags().GetString("config"); cfgFile != "" {
		args = append(args, "--config", cfgFile)
	}
	child := exec.Command(exe, args...)
	child.Stdout = logFile
	child.Stderr = logFile
	setDaemonAttrs(child)

	if err := child.Start(); err != nil {
		return fmt.Errorf("start server: %w", err)
	}
	if err := child.Process.Release(); err != nil {
		return fmt.Errorf("release server process: %w", err)
	}

	ui.Success("Server started in background (pid %d)", child.Process.Pid)
	ui.Info("Logs: %s", logPath)
	return nil
}

func serveStatusRun() error {
	pf := pidFile()
	pid, running := pf.IsRunning()
	if !running {
		ui.Info("Server is not running")
		return nil
	}
	ui.Success("Server is running (pid %d)", pid)
	ui.Info("Address: http://%s", viper.GetString("serve.addr"))
	ui.Info("Logs: %s", serveLogPath())
	return nil
}

func serveStopRun() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pid, err := pidFile().Stop(ctx)
	if errors.Is(err, daemon.ErrNotRunning) {
		return fmt.Errorf("server not running")
	}
	if err != nil {
		return err
	}
	ui.Success("Server stopped (pid %d)", pid)
	return nil
}
