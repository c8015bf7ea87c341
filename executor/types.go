package executor

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"
)

var (
	ErrUnsupportedLanguage = errors.New("unsupported language")
	ErrQueueFull           = errors.New("job queue full")
	ErrPoolClosed          = errors.New("worker pool is shut down")
)

// TimeoutMessage is the error text recorded for a case that hit its time budget.
const TimeoutMessage = "time out"

// Artifact is the per-request workspace holding the source and the compiler output.
// It is owned by exactly one pipeline invocation.
type Artifact struct {
	Dir        string
	SourcePath string
	MainClass  string
}

// InputMode selects how a case's input reaches the program.
type InputMode string

const (
	// InputArgs splits the case line into program arguments.
	InputArgs InputMode = "args"
	// InputStdin writes the case text to standard input.
	InputStdin InputMode = "stdin"
)

// ParseInputMode validates a configured input mode. Empty means InputArgs.
func ParseInputMode(s string) (InputMode, error) {
	switch InputMode(strings.ToLower(strings.TrimSpace(s))) {
	case "", InputArgs:
		return InputArgs, nil
	case InputStdin:
		return InputStdin, nil
	default:
		return "", fmt.Errorf("unknown input mode %q", s)
	}
}

// ProcessSpec describes one OS process to run.
type ProcessSpec struct {
	Path  string
	Args  []string
	Dir   string
	Stdin io.Reader
}

// ProcessResult holds what a finished (or killed) process left behind.
type ProcessResult struct {
	ExitCode int
	Stdout   string
	Stderr   string
	Elapsed  time.Duration
	TimedOut bool
	// Err is set when the process could not be started or its I/O failed.
	Err error
}

// CompileError reports a non-zero compiler exit.
type CompileError struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

func (e *CompileError) Error() string {
	if msg := normalizeOutput(e.Stderr); msg != "" {
		return msg
	}
	if msg := normalizeOutput(e.Stdout); msg != "" {
		return msg
	}
	return fmt.Sprintf("compile error: exit status %d", e.ExitCode)
}

// shortID returns a shortened container ID for logging
func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}
