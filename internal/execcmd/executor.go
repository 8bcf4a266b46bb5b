// Package execcmd wraps external command execution behind a mockable
// interface. Power and deploy drivers shell out to ipmitool, iscsiadm
// and the disk utilities through it, so tests never touch real hardware.
package execcmd

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"strings"

	"github.com/ternarybob/ferrum/internal/common"
)

// Executor runs external commands
type Executor interface {
	// Run executes name with args and returns captured stdout and stderr.
	Run(ctx context.Context, name string, args ...string) (string, string, error)
}

// CommandError carries the exit detail of a failed command
type CommandError struct {
	Cmd      string
	ExitCode int
	Stdout   string
	Stderr   string
	Err      error
}

func (e *CommandError) Error() string {
	var sb strings.Builder
	sb.WriteString("command failed: ")
	sb.WriteString(e.Cmd)
	if e.Stderr != "" {
		sb.WriteString(": ")
		sb.WriteString(strings.TrimSpace(e.Stderr))
	}
	return sb.String()
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

// ExitCode extracts the process exit code from an error, or -1 when the
// command never ran.
func ExitCode(err error) int {
	var cmdErr *CommandError
	if errors.As(err, &cmdErr) {
		return cmdErr.ExitCode
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return -1
}

type systemExecutor struct{}

// NewExecutor returns an Executor backed by os/exec
func NewExecutor() Executor {
	return &systemExecutor{}
}

func (s *systemExecutor) Run(ctx context.Context, name string, args ...string) (string, string, error) {
	logger := common.GetLogger()

	cmd := exec.CommandContext(ctx, name, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err != nil {
		code := -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			code = exitErr.ExitCode()
		}
		logger.Debug().
			Str("command", name).
			Int("exit_code", code).
			Msg("Command failed")
		return stdout.String(), stderr.String(), &CommandError{
			Cmd:      name + " " + strings.Join(args, " "),
			ExitCode: code,
			Stdout:   stdout.String(),
			Stderr:   stderr.String(),
			Err:      err,
		}
	}

	return stdout.String(), stderr.String(), nil
}
