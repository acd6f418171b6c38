// Package command
package command

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"gitdeploy/internal/domain"
)

const (
	initialScannerBufferSize = 4096
	maxScannerBufferSize     = 10 * 1024 * 1024
)

// exitCodeNotRun is reported for commands that never produced an exit
// status of their own, mirroring the shell's "command not found".
const exitCodeNotRun = 127

type Recorder interface {
	ObserveCommand(name string, success bool, elapsed time.Duration)
}

type Executor struct {
	workDir   string
	env       []string
	observers []domain.LineObserver
	recorder  Recorder
}

type Option func(*Executor)

func WithObserver(o domain.LineObserver) Option {
	return func(e *Executor) {
		if o != nil {
			e.observers = append(e.observers, o)
		}
	}
}

func WithRecorder(r Recorder) Option {
	return func(e *Executor) { e.recorder = r }
}

func WithEnv(kv ...string) Option {
	return func(e *Executor) { e.env = append(e.env, kv...) }
}

func NewExecutor(workDir string, opts ...Option) *Executor {
	e := &Executor{
		workDir: workDir,
		env:     []string{"GIT_TERMINAL_PROMPT=0"},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Executor) WorkDir() string {
	return e.workDir
}

// Run executes name with args in the executor's work directory. The
// returned error is non-nil only when the process could not be started;
// a non-zero exit is reported through the outcome.
func (e *Executor) Run(ctx context.Context, name string, args ...string) (outcome domain.CommandOutcome, err error) {
	display := Display(name, args...)
	outcome = domain.CommandOutcome{Command: display, ExitCode: -1, Output: []string{}}

	start := time.Now()
	defer func() {
		outcome.ExecutionTime = domain.Elapsed(time.Since(start))
	}()

	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = e.workDir
	cmd.Env = append(os.Environ(), e.env...)
	cmd.Stdin = nil

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return outcome, fmt.Errorf("failed to create stdout pipe: %w", err)
	}

	stderr, err := cmd.StderrPipe()
	if err != nil {
		return outcome, fmt.Errorf("failed to create stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		outcome.ExitCode = exitCodeNotRun
		e.record(name, false, time.Since(start))
		return outcome, fmt.Errorf("failed to start command: %w", err)
	}

	var (
		mu    sync.Mutex
		lines []string
		wg    sync.WaitGroup
	)

	collect := func(line string, stream domain.LogStream) {
		mu.Lock()
		lines = append(lines, line)
		mu.Unlock()

		for _, o := range e.observers {
			o(domain.OutputLine{Command: display, Line: line, Stream: stream})
		}
	}

	wg.Add(2)
	go func() {
		defer wg.Done()
		streamOutput(stdout, domain.StreamStdout, collect)
	}()
	go func() {
		defer wg.Done()
		streamOutput(stderr, domain.StreamStderr, collect)
	}()

	wg.Wait()
	waitErr := cmd.Wait()

	outcome.Output = append(outcome.Output, lines...)
	outcome.ExitCode = exitCode(cmd, waitErr)
	outcome.Success = waitErr == nil && outcome.ExitCode == 0

	e.record(name, outcome.Success, time.Since(start))

	var exitErr *exec.ExitError
	if waitErr != nil && !errors.As(waitErr, &exitErr) {
		return outcome, fmt.Errorf("command failed: %w", waitErr)
	}

	return outcome, nil
}

func (e *Executor) record(name string, success bool, elapsed time.Duration) {
	if e.recorder != nil {
		e.recorder.ObserveCommand(name, success, elapsed)
	}
}

// NotFound builds the outcome reported when a binary could not be
// located at all.
func NotFound(command, reason string) domain.CommandOutcome {
	return domain.CommandOutcome{
		Command:  command,
		Success:  false,
		ExitCode: exitCodeNotRun,
		Output:   []string{reason},
	}
}

func Display(name string, args ...string) string {
	parts := make([]string, 0, len(args)+1)
	parts = append(parts, name)
	for _, a := range args {
		if a == "" || strings.ContainsAny(a, " \t\"'") {
			a = fmt.Sprintf("%q", a)
		}
		parts = append(parts, a)
	}
	return strings.Join(parts, " ")
}

func exitCode(cmd *exec.Cmd, err error) int {
	if cmd.ProcessState != nil {
		return cmd.ProcessState.ExitCode()
	}
	if err != nil {
		return -1
	}
	return 0
}

func streamOutput(r io.Reader, stream domain.LogStream, handler func(string, domain.LogStream)) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, initialScannerBufferSize), maxScannerBufferSize)

	for scanner.Scan() {
		for _, line := range normalizeAndSplitLines(scanner.Text()) {
			line = strings.TrimRight(line, " \t")
			if line != "" {
				handler(line, stream)
			}
		}
	}

	// A scanner error means a single line exceeded the buffer; drain the
	// rest so the child never blocks on a full pipe.
	if scanner.Err() != nil {
		io.Copy(io.Discard, r)
	}
}

func normalizeAndSplitLines(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")

	return strings.Split(text, "\n")
}
