// Package daemon tracks a running campus server through a PID file.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// ErrAlreadyRunning is returned by Acquire when a live process holds the file.
var ErrAlreadyRunning = errors.New("server already running")

// ErrNotRunning is returned by Stop when no live process holds the file.
var ErrNotRunning = errors.New("server not running")

// PIDFile manages a PID file for daemon process tracking.
type PIDFile struct {
	Path string
}

// NewPIDFile creates a PIDFile manager for the given path.
func NewPIDFile(path string) *PIDFile {
	return &PIDFile{Path: path}
}

// Acquire records the current process, creating the parent directory. A
// stale file left by a dead process is overwritten.
func (p *PIDFile) Acquire() error {
	if pid, running := p.IsRunning(); running && pid != os.Getpid() {
		return fmt.Errorf("%w (pid %d)", ErrAlreadyRunning, pid)
	}
	if err := os.MkdirAll(filepath.Dir(p.Path), 0o755); err != nil {
		return fmt.Errorf("create pid dir: %w", err)
	}
	return p.WritePID(os.Getpid())
}

// Release removes the file if it still names the current process.
func (p *PIDFile) Release() error {
	pid, err := p.Read()
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	if pid != os.Getpid() {
		return nil
	}
	return p.Remove()
}

// WritePID writes the given PID to the file.
func (p *PIDFile) WritePID(pid int) error {
	return os.WriteFile(p.Path, []byte(strconv.Itoa(pid)+"\n"), 0o644)
}

// Read reads the PID from the file.
func (p *PIDFile) Read() (int, error) {
	data, err := os.ReadFile(p.Path)
	if err != nil {
		return 0, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("invalid PID file content: %w", err)
	}
	return pid, nil
}

// Remove deletes the PID file.
func (p *PIDFile) Remove() error {
	return os.Remove(p.Path)
}

// Stop asks the recorded process to shut down and waits for it to exit.
// The file is removed once the process is gone.
func (p *PIDFile) Stop(ctx context.Context) (int, error) {
	pid, running := p.IsRunning()
	if !running {
		return pid, ErrNotRunning
	}
	if err := p.terminate(); err != nil {
		return pid, fmt.Errorf("signal pid %d: %w", pid, err)
	}

	t := time.NewTicker(50 * time.Millisecond)
	defer t.Stop()
	for {
		if _, running := p.IsRunning(); !running {
			_ = p.Remove()
			return pid, nil
		}
		select {
		case <-ctx.Done():
			return pid, fmt.Errorf("waiting for pid %d: %w", pid, ctx.Err())
		case <-t.C:
		}
	}
}
