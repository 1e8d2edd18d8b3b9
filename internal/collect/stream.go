package collect

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"
	"sync/atomic"
)

// Stdin is the path that selects the process standard input
const Stdin = "-"

// Stream produces the raw host link byte stream the root writes
type Stream interface {
	Open(ctx context.Context) (io.ReadCloser, error)
	Name() string
}

// FileStream reads a serial device node, a named pipe or a capture file
type FileStream struct {
	Path string
}

func (s FileStream) Name() string {
	if s.Path == Stdin {
		return "stdin"
	}
	return s.Path
}

func (s FileStream) Open(context.Context) (io.ReadCloser, error) {
	if s.Path == Stdin {
		return os.Stdin, nil
	}

	f, err := os.Open(s.Path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", s.Path, err)
	}
	return f, nil
}

// CommandStream runs a program and reads its standard output, e.g. a sink
// node writing frames to stdout or a tool bridging a serial port. Lines the
// program writes to stderr are logged.
type CommandStream struct {
	Runtime string
	Args    []string
	Logger  *slog.Logger
}

func (s CommandStream) Name() string {
	return s.Runtime
}

func (s CommandStream) Open(ctx context.Context) (io.ReadCloser, error) {
	binPath, err := FindRuntime(s.Runtime)
	if err != nil {
		return nil, fmt.Errorf("error finding runtime: %w", err)
	}

	cmd := exec.CommandContext(ctx, binPath, s.Args...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("error creating stdout pipe: %w", err)
	}

	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("error creating stderr pipe: %w", err)
	}

	if err = cmd.Start(); err != nil {
		return nil, fmt.Errorf("error starting command: %w", err)
	}

	logger := s.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil)) // nil logger
	}

	p := process{
		ReadCloser: stdout,
		cmd:        cmd,
		name:       s.Runtime,
		logger:     logger,
	}

	p.wg.Add(1)
	go p.handleStderr(stderr)

	return &p, nil
}

// process is the standard output of a running command. Closing it stops the
// command and reports how it exited.
type process struct {
	io.ReadCloser

	cmd    *exec.Cmd
	name   string
	killed atomic.Bool
	wg     sync.WaitGroup
	logger *slog.Logger
}

// handleStderr reads from stderr and logs every line
func (p *process) handleStderr(stderr io.Reader) {
	defer p.wg.Done()

	scanner := bufio.NewScanner(stderr)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		p.logger.Warn(fmt.Sprintf("%s >> %s", p.name, line)) // simple logging here
	}
	if err := scanner.Err(); err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, fs.ErrClosed) {
		p.logger.Error(fmt.Sprintf("%s: error reading stderr: %s", p.name, err.Error()))
	}
}

func (p *process) Close() error {
	// a command that already exited just fails to be killed
	if err := p.cmd.Process.Kill(); err == nil {
		p.killed.Store(true)
	}

	p.wg.Wait()

	if err := p.cmd.Wait(); err != nil && !p.killed.Load() && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("command exited with error: %w", err)
	}
	return nil
}
