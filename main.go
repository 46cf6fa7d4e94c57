package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"syscall"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"

	"github.com/ThaneAcheron/veonim/config"
	"github.com/ThaneAcheron/veonim/logger"
)

// version is set at build time with -ldflags "-X main.version=..."
var version = "dev"

var daemonMode bool

var rootCmd = &cobra.Command{
	Use:   "veonim",
	Short: "Language intelligence bridge for Neovim",
	Long: `veonim connects a running Neovim to a language service.

Started without flags it relays msgpack-rpc between Neovim on stdin/stdout
and the shared daemon, starting the daemon when none is running.`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		if daemonMode {
			return runDaemon()
		}
		return runClient()
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(version)
	},
}

func init() {
	rootCmd.Flags().BoolVar(&daemonMode, "daemon", false, "run the shared daemon instead of relaying")
	rootCmd.AddCommand(versionCmd)
}

// execPath returns name placed next to the executable.
func execPath(name string) string {
	exe, err := os.Executable()
	if err != nil {
		logger.Fatal("error getting executable path: %v", err)
	}
	return filepath.Join(filepath.Dir(exe), name)
}

func getSocketPath() string { return execPath("veonim.sock") }

func getPidPath() string { return execPath("veonim.pid") }

// Setup logger to log to a file in the same directory as the executable
// Caller must defer logger.Close()
func setupLogger(logLevel string) (*logger.LimitedLogger, error) {
	f, err := os.OpenFile(execPath("veonim.log"), os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
	if err != nil {
		return nil, errors.Wrap(err, "open log file")
	}
	return logger.NewLimitedLogger(f, logger.ParseLogLevel(logLevel)), nil
}

func isDaemonRunning() (bool, int) {
	data, err := os.ReadFile(getPidPath())
	if err != nil {
		return false, 0
	}

	pid, err := strconv.Atoi(string(data))
	if err != nil {
		return false, 0
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		return false, 0
	}

	// On Unix, Signal(0) checks if process exists
	err = process.Signal(syscall.Signal(0))
	return err == nil, pid
}

func runDaemon() error {
	cfg, err := config.Load()
	if err != nil {
		return errors.Wrap(err, "invalid config")
	}

	ll, err := setupLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer ll.Close()
	logger.Info("config: %+v", *cfg)

	daemon, err := NewDaemon(cfg)
	if err != nil {
		return errors.Wrap(err, "error creating daemon")
	}
	return daemon.Start()
}

func runClient() error {
	client := NewClient()

	if err := client.EnsureDaemonRunning(); err != nil {
		return errors.Wrap(err, "error ensuring daemon is running")
	}
	if err := client.Connect(); err != nil {
		return errors.Wrap(err, "error connecting to daemon")
	}
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
