// Package kernel runs the input of an InputCell through an interpreter.
package kernel

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"dovakin0007.com/notebook-grpc/internal/models"
	"github.com/hashicorp/go-hclog"
	"github.com/mattn/go-shellwords"
)

type Executor interface {
	Run(ctx context.Context, input string) (string, error)
}

type ExecutorFunc func(ctx context.Context, input string) (string, error)

func (f ExecutorFunc) Run(ctx context.Context, input string) (string, error) {
	return f(ctx, input)
}

// Command starts one interpreter process per execution and feeds the cell
// input on stdin. Interpreter errors are part of the output, not a failure.
type Command struct {
	Argv    []string
	Timeout time.Duration
	Logger  hclog.Logger
}

// NewCommand parses a shell-style command line such as `python3 -`.
func NewCommand(line string, timeout time.Duration, logger hclog.Logger) (*Command, error) {
	argv, err := shellwords.Parse(line)
	if err != nil {
		return nil, fmt.Errorf("parse kernel command %q: %w", line, err)
	}
	if len(argv) == 0 {
		return nil, errors.New("kernel command is empty")
	}
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Command{Argv: argv, Timeout: timeout, Logger: logger}, nil
}

func (c *Command) Run(ctx context.Context, input string) (string, error) {
	if c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, c.Argv[0], c.Argv[1:]...)
	cmd.Stdin = strings.NewReader(input)
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	start := time.Now()
	err := cmd.Run()
	c.Logger.Debug("kernel run finished", "argv", c.Argv, "duration", time.Since(start), "error", err)

	if ctx.Err() != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return out.String(), fmt.Errorf("%w: kernel did not finish", models.ErrTimeout)
		}
		return out.String(), ctx.Err()
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return out.String(), nil
	}
	if err != nil {
		return "", fmt.Errorf("start kernel: %w", err)
	}
	return out.String(), nil
}
