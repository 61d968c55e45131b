package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gofrs/flock"
	"github.com/spf13/cobra"

	"mediaconv/internal/config"
	"mediaconv/internal/daemon"
	"mediaconv/internal/deps"
)

type statusReport struct {
	ConfigPath    string          `json:"config_path"`
	ConfigFound   bool            `json:"config_found"`
	OutputDir     string          `json:"output_dir"`
	OutputDirErr  string          `json:"output_dir_error,omitempty"`
	Disk          *deps.DiskUsage `json:"disk,omitempty"`
	Dependencies  []deps.Status   `json:"dependencies"`
	DaemonRunning bool            `json:"daemon_running"`
	DaemonAddress string          `json:"daemon_address,omitempty"`
	Daemon        *daemon.Status  `json:"daemon,omitempty"`
}

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show dependency, output directory, and daemon status",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			report := collectStatus(cmd.Context(), cfg)
			report.ConfigPath = ctx.configPath
			report.ConfigFound = ctx.configSeen
			if jsonOutput {
				return writeJSON(cmd, report)
			}
			out := cmd.OutOrStdout()
			for _, line := range renderStatus(report, shouldColorize(out)) {
				fmt.Fprintln(out, line)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print status as JSON")
	return cmd
}

func collectStatus(ctx context.Context, cfg *config.Config) statusReport {
	report := statusReport{
		OutputDir:    cfg.Paths.OutputDir,
		Dependencies: deps.CheckBinaries(deps.Requirements(cfg)),
	}
	if err := deps.CheckDirectory(cfg.Paths.OutputDir); err != nil {
		report.OutputDirErr = err.Error()
	} else if usage, err := deps.CheckDiskUsage(cfg.Paths.OutputDir); err == nil {
		report.Disk = &usage
	}

	report.DaemonRunning = daemonLocked(cfg.LockPath())
	if report.DaemonRunning {
		address := dialAddress(cfg.Server.Bind)
		report.DaemonAddress = address
		if snapshot, err := fetchDaemonStatus(ctx, address); err == nil {
			report.Daemon = snapshot
		}
	}
	return report
}

// daemonLocked reports whether another process holds the daemon lock.
func daemonLocked(path string) bool {
	lock := flock.New(path)
	ok, err := lock.TryLock()
	if err != nil {
		return false
	}
	if ok {
		_ = lock.Unlock()
		return false
	}
	return true
}

// dialAddress turns a listen address into one a client can connect to.
func dialAddress(bind string) string {
	host, port, err := net.SplitHostPort(bind)
	if err != nil {
		return bind
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "127.0.0.1"
	}
	return net.JoinHostPort(host, port)
}

func fetchDaemonStatus(ctx context.Context, address string) (*daemon.Status, error) {
	reqCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, "http://"+address+"/api/status", nil)
	if err != nil {
		return nil, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status endpoint returned %s", resp.Status)
	}
	var snapshot daemon.Status
	if err := json.NewDecoder(resp.Body).Decode(&snapshot); err != nil {
		return nil, fmt.Errorf("decode status: %w", err)
	}
	return &snapshot, nil
}

func renderStatus(report statusReport, colorize bool) []string {
	var lines []string

	lines = append(lines, renderSectionHeader("Configuration", colorize))
	configMessage := report.ConfigPath
	if !report.ConfigFound {
		configMessage = fmt.Sprintf("%s (not found, using defaults)", report.ConfigPath)
	}
	lines = append(lines, renderStatusLine("Config", statusInfo, configMessage, colorize))
	if report.OutputDirErr != "" {
		lines = append(lines, renderStatusLine("Output dir", statusError, report.OutputDirErr, colorize))
	} else {
		message := report.OutputDir
		if report.Disk != nil {
			message = fmt.Sprintf("%s (%s free of %s)", report.OutputDir,
				humanBytes(report.Disk.FreeBytes), humanBytes(report.Disk.TotalBytes))
		}
		lines = append(lines, renderStatusLine("Output dir", statusOK, message, colorize))
	}

	lines = append(lines, "", renderSectionHeader("Dependencies", colorize))
	for _, dep := range report.Dependencies {
		if dep.Available {
			lines = append(lines, renderStatusLine(dep.Name, statusOK, dep.Path, colorize))
			continue
		}
		kind := statusError
		if dep.Optional {
			kind = statusWarn
		}
		lines = append(lines, renderStatusLine(dep.Name, kind, dep.Detail, colorize))
	}

	lines = append(lines, "", renderSectionHeader("Daemon", colorize))
	if !report.DaemonRunning {
		lines = append(lines, renderStatusLine("Daemon", statusWarn, "not running", colorize))
		return lines
	}
	if report.Daemon == nil {
		lines = append(lines, renderStatusLine("Daemon", statusWarn, "lock held but API unreachable", colorize))
		return lines
	}
	d := report.Daemon
	lines = append(lines, renderStatusLine("Daemon", statusOK, "running at "+report.DaemonAddress, colorize))
	lines = append(lines, renderStatusLine("Pool", statusInfo, fmt.Sprintf("%d/%d active, %d queued, %d done, %d failed",
		d.Pool.Active, d.Pool.Workers, d.Pool.Queued, d.Pool.Completed, d.Pool.Failed), colorize))
	lines = append(lines, renderStatusLine("Retention", statusInfo, fmt.Sprintf("%d sweeps, %d files removed",
		d.Retention.Sweeps, d.Retention.TotalRemoved), colorize))
	if d.KeepAlive != nil {
		kind := statusInfo
		if d.KeepAlive.Failed > 0 {
			kind = statusWarn
		}
		lines = append(lines, renderStatusLine("Keep-alive", kind, fmt.Sprintf("%d sent, %d skipped, %d failed",
			d.KeepAlive.Sent, d.KeepAlive.Skipped, d.KeepAlive.Failed), colorize))
	} else {
		lines = append(lines, renderStatusLine("Keep-alive", statusInfo, "disabled", colorize))
	}
	if d.CacheEnabled {
		if d.CacheError != "" {
			lines = append(lines, renderStatusLine("Result cache", statusWarn, d.CacheError, colorize))
		} else {
			lines = append(lines, renderStatusLine("Result cache", statusOK, "reachable", colorize))
		}
	}
	activity := "none yet"
	if !d.LastActivity.IsZero() {
		activity = d.LastActivity.Local().Format(time.DateTime)
	}
	lines = append(lines, renderStatusLine("Last activity", statusInfo, activity, colorize))
	return lines
}

func humanBytes(v uint64) string {
	const unit = 1024
	if v < unit {
		return fmt.Sprintf("%d B", v)
	}
	div := uint64(unit)
	exp := 0
	for n := v / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(v)/float64(div), "KMGTPE"[exp])
}

