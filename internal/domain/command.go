package domain

import (
	"context"
	"encoding/json"
	"time"
)

type LogStream string

const (
	StreamStdout LogStream = "stdout"
	StreamStderr LogStream = "stderr"
)

// Elapsed is a duration serialised as seconds with centisecond precision.
type Elapsed time.Duration

func (e Elapsed) Seconds() float64 {
	return float64(time.Duration(e).Round(10*time.Millisecond).Milliseconds()) / 1000
}

func (e Elapsed) MarshalJSON() ([]byte, error) {
	return json.Marshal(e.Seconds())
}

func (e *Elapsed) UnmarshalJSON(data []byte) error {
	var seconds float64
	if err := json.Unmarshal(data, &seconds); err != nil {
		return err
	}
	*e = Elapsed(time.Duration(seconds * float64(time.Second)))
	return nil
}

type CommandOutcome struct {
	Command       string   `json:"command"`
	Success       bool     `json:"success"`
	ExitCode      int      `json:"return_code"`
	Output        []string `json:"output"`
	ExecutionTime Elapsed  `json:"execution_time"`
}

// OutputLine is one line of command output, as observed while the
// command is still running.
type OutputLine struct {
	Command string    `json:"command"`
	Line    string    `json:"line"`
	Stream  LogStream `json:"stream"`
}

type LineObserver func(OutputLine)

// CommandRunner runs an external program in a fixed work directory.
// A non-zero exit is reported through the outcome; an error means the
// process could not be started at all.
type CommandRunner interface {
	Run(ctx context.Context, name string, args ...string) (CommandOutcome, error)
	WorkDir() string
}
