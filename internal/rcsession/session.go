// Package rcsession manages the lifecycle of the background remote-sync
// worker process (rclone rcd) whose authenticated local HTTP API serves
// cloud storage operations.
package rcsession

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v4/process"
)

// Config configures the worker session.
type Config struct {
	WorkerPath string // worker binary, looked up on PATH when relative
	Port       int    // control API port
	// ReadyRechecks is how many extra readiness probes Ready callers should
	// make when the first probe fails. There is deliberately no wait or
	// backoff between probes: the original tool rechecked the same condition
	// immediately, and whether a real wait was intended is unresolved. The
	// knob exists so operators can raise the probe count; it never sleeps.
	ReadyRechecks int
}

// Session owns one running worker process. At most one session exists per
// run; starting it terminates any competing worker instances first.
type Session struct {
	cfg    Config
	logger *slog.Logger

	user string
	pass string
	cmd  *exec.Cmd
	done chan error

	client *http.Client
}

// Start launches the worker and returns a handle to its control plane. The
// worker binary missing from PATH is fatal before any process is touched.
func Start(ctx context.Context, cfg Config, logger *slog.Logger) (*Session, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.WorkerPath == "" {
		cfg.WorkerPath = "rclone"
	}
	if cfg.Port == 0 {
		cfg.Port = 5572
	}

	workerPath, err := exec.LookPath(cfg.WorkerPath)
	if err != nil {
		return nil, fmt.Errorf("remote-sync worker not found: %w", err)
	}

	s := &Session{
		cfg:    cfg,
		logger: logger,
		client: &http.Client{Timeout: 5 * time.Second},
	}

	// Competing workers would hold the control port or race on credentials.
	s.terminateStale(workerPath)

	s.user = "dbbackupctl"
	s.pass, err = newCredential(minCredentialLen)
	if err != nil {
		return nil, err
	}

	cmd := exec.CommandContext(ctx, workerPath, "rcd",
		"--rc-addr", fmt.Sprintf("localhost:%d", cfg.Port),
		"--rc-user", s.user,
		"--rc-pass", s.pass,
	)
	cmd.Stdout = nil
	cmd.Stderr = nil

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("starting remote-sync worker: %w", err)
	}
	s.cmd = cmd
	s.done = make(chan error, 1)
	go func() {
		s.done <- cmd.Wait()
	}()

	logger.Info("remote-sync worker started", "pid", cmd.Process.Pid, "port", cfg.Port)
	return s, nil
}

// terminateStale kills other worker instances matching this tool's
// invocation signature (same binary name, rcd mode).
func (s *Session) terminateStale(workerPath string) {
	procs, err := process.Processes()
	if err != nil {
		s.logger.Warn("could not enumerate processes", "error", err)
		return
	}

	workerName := filepath.Base(workerPath)
	for _, p := range procs {
		if int(p.Pid) == os.Getpid() {
			continue
		}
		name, err := p.Name()
		if err != nil || name != workerName {
			continue
		}
		args, err := p.CmdlineSlice()
		if err != nil || !containsArg(args, "rcd") {
			continue
		}
		s.logger.Warn("terminating stale remote-sync worker", "pid", p.Pid)
		if err := p.Kill(); err != nil {
			s.logger.Warn("failed to terminate stale worker", "pid", p.Pid, "error", err)
		}
	}
}

func containsArg(args []string, want string) bool {
	for _, a := range args {
		if strings.TrimSpace(a) == want {
			return true
		}
	}
	return false
}

// Ready probes the control API once. No waiting happens here; callers decide
// how many probes to make (see Config.ReadyRechecks).
func (s *Session) Ready(ctx context.Context) bool {
	if s.cmd == nil {
		return false
	}
	select {
	case <-s.done:
		// Worker already exited.
		return false
	default:
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.Endpoint()+"/rc/noop", nil)
	if err != nil {
		return false
	}
	req.SetBasicAuth(s.user, s.pass)

	resp, err := s.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// Endpoint returns the control API base URL.
func (s *Session) Endpoint() string {
	return fmt.Sprintf("http://localhost:%d", s.cfg.Port)
}

// Credentials returns the session's one-shot basic auth pair.
func (s *Session) Credentials() (string, string) {
	return s.user, s.pass
}

// Close terminates the worker and reaps it. Safe to call when Start failed
// partway or the worker already exited; it runs on every exit path of a run.
func (s *Session) Close() error {
	if s == nil || s.cmd == nil || s.cmd.Process == nil {
		return nil
	}

	if err := s.cmd.Process.Kill(); err != nil && !strings.Contains(err.Error(), "already finished") {
		s.logger.Warn("failed to kill remote-sync worker", "error", err)
	}

	select {
	case <-s.done:
	case <-time.After(5 * time.Second):
		s.logger.Warn("timed out waiting for remote-sync worker to exit")
	}

	s.cmd = nil
	s.logger.Debug("remote-sync worker stopped")
	return nil
}
