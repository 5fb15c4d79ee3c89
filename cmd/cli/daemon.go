// Package cli provides command-line interface commands for the portwarden
// port monitor. This file implements daemon lifecycle commands.
package cli

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/mfolkes/portwarden/internal/config"
	"github.com/mfolkes/portwarden/internal/daemon"
)

const (
	daemonStartupDelay     = 500 // milliseconds to wait for daemon startup
	daemonStopProgressStep = 5   // show progress every N seconds
	daemonStopTimeout      = 30  // seconds to wait before force kill
	statusLineLength       = 30  // characters for status separator line
)

var (
	daemonPidFile    string
	daemonForeground bool
)

// daemonCmd represents the daemon command.
var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Run portwarden as a background daemon",
	Long: `Run portwarden as a background daemon that continuously monitors
targets, persists state to the database when configured, and serves the
REST API. The daemon can be started, stopped, and inspected using
subcommands.`,
	Example: `  portwarden daemon start
  portwarden daemon stop
  portwarden daemon status
  portwarden daemon restart`,
}

// daemonStartCmd represents the daemon start command.
var daemonStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the portwarden daemon",
	Long: `Start the portwarden daemon. By default the process detaches and
runs in the background; use --foreground to keep it attached to the
terminal.`,
	Example: `  portwarden daemon start
  portwarden daemon start --foreground
  portwarden daemon start --pid-file /tmp/portwarden.pid`,
	Run: runDaemonStart,
}

// daemonStopCmd represents the daemon stop command.
var daemonStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running portwarden daemon",
	Long: `Stop the currently running portwarden daemon. Monitoring state not
persisted to the database is lost.`,
	Example: `  portwarden daemon stop
  portwarden daemon stop --pid-file /tmp/portwarden.pid`,
	Run: runDaemonStop,
}

// daemonStatusCmd represents the daemon status command.
var daemonStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Check the status of the portwarden daemon",
	Run:   runDaemonStatus,
}

// daemonRestartCmd represents the daemon restart command.
var daemonRestartCmd = &cobra.Command{
	Use:   "restart",
	Short: "Restart the portwarden daemon",
	Long: `Stop the currently running daemon (if any) and start a new instance.
This is equivalent to running 'daemon stop' followed by 'daemon start'.`,
	Run: runDaemonRestart,
}

func init() {
	rootCmd.AddCommand(daemonCmd)
	daemonCmd.AddCommand(daemonStartCmd)
	daemonCmd.AddCommand(daemonStopCmd)
	daemonCmd.AddCommand(daemonStatusCmd)
	daemonCmd.AddCommand(daemonRestartCmd)

	daemonCmd.PersistentFlags().StringVar(&daemonPidFile, "pid-file", "", "path to PID file (default from config)")

	daemonStartCmd.Flags().BoolVar(&daemonForeground, "foreground", false, "stay attached to the terminal")
	daemonRestartCmd.Flags().BoolVar(&daemonForeground, "foreground", false, "stay attached to the terminal")
}

// effectivePIDFile resolves the PID file path from the flag or config.
func effectivePIDFile() string {
	if daemonPidFile != "" {
		return daemonPidFile
	}
	cfg, err := config.Load(getConfigFilePath())
	if err != nil {
		return config.Default().Daemon.PIDFile
	}
	return cfg.Daemon.PIDFile
}

func runDaemonStart(_ *cobra.Command, _ []string) {
	if isDaemonRunning() {
		fmt.Fprintf(os.Stderr, "Daemon is already running (PID file: %s)\n", effectivePIDFile())
		fmt.Fprintf(os.Stderr, "Use 'portwarden daemon stop' to stop it first, or 'daemon restart' to restart\n")
		os.Exit(1)
	}

	cfg, err := config.Load(getConfigFilePath())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	if daemonPidFile != "" {
		cfg.Daemon.PIDFile = daemonPidFile
	}
	cfg.Daemon.Daemonize = !daemonForeground

	if verbose {
		fmt.Printf("Starting daemon with configuration:\n")
		fmt.Printf("  PID file: %s\n", cfg.Daemon.PIDFile)
		fmt.Printf("  Foreground: %t\n", daemonForeground)
		fmt.Printf("  Database: %t\n", cfg.Database.Enabled)
		fmt.Printf("  API: %t (%s)\n", cfg.API.Enabled, cfg.GetAPIAddress())
	}

	d := daemon.New(cfg, getConfigFilePath())

	fmt.Println("Starting portwarden daemon...")
	if !daemonForeground {
		fmt.Printf("Daemon will run in background (PID file: %s)\n", cfg.Daemon.PIDFile)
	}

	if err := d.Start(); err != nil {
		fmt.Fprintf(os.Stderr, "Error starting daemon: %v\n", err)
		os.Exit(1)
	}

	if !daemonForeground {
		time.Sleep(daemonStartupDelay * time.Millisecond)
		if isDaemonRunning() {
			fmt.Println("Daemon started successfully")
		} else {
			fmt.Fprintf(os.Stderr, "Daemon failed to start properly\n")
			os.Exit(1)
		}
	}
}

func runDaemonStop(_ *cobra.Command, _ []string) {
	if !isDaemonRunning() {
		fmt.Printf("Daemon is not running (no PID file found at %s)\n", effectivePIDFile())
		return
	}

	pid, err := readPIDFile()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading PID file: %v\n", err)
		os.Exit(1)
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error finding daemon process: %v\n", err)
		os.Exit(1)
	}

	if err := process.Signal(syscall.SIGTERM); err != nil {
		fmt.Fprintf(os.Stderr, "Error sending stop signal to daemon: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Stopping daemon (PID %d)...\n", pid)
	for i := 0; i < daemonStopTimeout; i++ {
		if !isDaemonRunning() {
			fmt.Println("Daemon stopped successfully")
			return
		}
		time.Sleep(1 * time.Second)
		if i%daemonStopProgressStep == (daemonStopProgressStep - 1) {
			fmt.Printf("Waiting for daemon to stop... (%d seconds)\n", i+1)
		}
	}

	fmt.Printf("Daemon did not stop gracefully, sending SIGKILL...\n")
	if err := process.Signal(syscall.SIGKILL); err != nil {
		fmt.Fprintf(os.Stderr, "Error force-killing daemon: %v\n", err)
		os.Exit(1)
	}

	time.Sleep(2 * time.Second)
	if !isDaemonRunning() {
		fmt.Println("Daemon force-stopped")
	} else {
		fmt.Fprintf(os.Stderr, "Failed to stop daemon\n")
		os.Exit(1)
	}
}

func runDaemonStatus(_ *cobra.Command, _ []string) {
	fmt.Printf("Portwarden Daemon Status\n")
	fmt.Println(strings.Repeat("=", statusLineLength))

	pidFile := effectivePIDFile()

	if !isDaemonRunning() {
		fmt.Printf("Status: Not running\n")
		fmt.Printf("PID file: %s (not found)\n", pidFile)
		return
	}

	pid, err := readPIDFile()
	if err != nil {
		fmt.Printf("Status: Unknown (error reading PID file: %v)\n", err)
		return
	}

	fmt.Printf("Status: Running\n")
	fmt.Printf("PID: %d\n", pid)
	fmt.Printf("PID file: %s\n", pidFile)

	if info, err := os.Stat(pidFile); err == nil {
		fmt.Printf("Started: %s\n", info.ModTime().Format("2006-01-02 15:04:05"))
		fmt.Printf("Uptime: %s\n", formatDuration(time.Since(info.ModTime())))
	}

	fmt.Printf("\nTo view monitoring state: portwarden monitor status\n")
	fmt.Printf("To stop daemon: portwarden daemon stop\n")
}

func runDaemonRestart(cmd *cobra.Command, args []string) {
	fmt.Println("Restarting portwarden daemon...")

	if isDaemonRunning() {
		fmt.Println("Stopping existing daemon...")
		runDaemonStop(cmd, args)
		time.Sleep(1 * time.Second)
	}

	fmt.Println("Starting new daemon...")
	runDaemonStart(cmd, args)
}

func isDaemonRunning() bool {
	pidFile := effectivePIDFile()
	if _, err := os.Stat(pidFile); os.IsNotExist(err) {
		return false
	}

	pid, err := readPIDFile()
	if err != nil {
		return false
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}

	// Signal 0 probes process liveness without delivering anything.
	return process.Signal(syscall.Signal(0)) == nil
}

func readPIDFile() (int, error) {
	// #nosec G304 - PID file path comes from flags or configuration
	data, err := os.ReadFile(effectivePIDFile())
	if err != nil {
		return 0, err
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("invalid PID in file: %v", err)
	}

	return pid, nil
}
