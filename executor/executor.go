package executor

import (
	"bufio"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/shlex"
	"go.uber.org/zap"

	"codesandbox/model"
)

// Strategy runs a compiled artifact once per case.
type Strategy interface {
	Name() string
	// RunAll returns one result per executed case, in input order. Case
	// failures are reported as data; the error is reserved for failures
	// of the execution environment itself.
	RunAll(ctx context.Context, artifact Artifact, inputs []string) ([]model.RawExecutionResult, error)
}

// Compiler builds the saved source inside its workspace.
type Compiler struct {
	path    string
	timeout time.Duration
	lang    LanguageConfig
	logger  *zap.Logger
}

// NewCompiler creates a compiler for lang. An empty path uses the toolchain default.
func NewCompiler(lang LanguageConfig, path string, timeout time.Duration, logger *zap.Logger) *Compiler {
	if path == "" {
		path = lang.Compiler
	}
	return &Compiler{path: path, timeout: timeout, lang: lang, logger: logger}
}

// Compile returns a *CompileError when the compiler exits non-zero, and a
// plain error when it cannot be run at all.
func (c *Compiler) Compile(ctx context.Context, artifact Artifact) error {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	res := RunProcess(ctx, ProcessSpec{
		Path: c.path,
		Args: c.lang.CompileArgs(artifact.SourcePath),
		Dir:  artifact.Dir,
	})
	if res.Err != nil {
		return fmt.Errorf("run compiler: %w", res.Err)
	}
	if res.TimedOut {
		return &CompileError{ExitCode: -1, Stderr: fmt.Sprintf("compile %s after %v", TimeoutMessage, c.timeout)}
	}

	c.logger.Debug("compile finished",
		zap.String("dir", artifact.Dir),
		zap.Int("exit_code", res.ExitCode),
		zap.Duration("duration", res.Elapsed))

	if res.ExitCode != 0 {
		return &CompileError{ExitCode: res.ExitCode, Stdout: res.Stdout, Stderr: res.Stderr}
	}
	return nil
}

// runCases drives run over inputs in order. With stopOnFailure it halts after
// the first case that carries error content.
func runCases(ctx context.Context, inputs []string, stopOnFailure bool,
	run func(ctx context.Context, input string) (model.RawExecutionResult, error)) ([]model.RawExecutionResult, error) {
	results := make([]model.RawExecutionResult, 0, len(inputs))
	for _, input := range inputs {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		res, err := run(ctx, input)
		if err != nil {
			return results, err
		}
		results = append(results, res)
		if stopOnFailure && res.Failed() {
			break
		}
	}
	return results, nil
}

// caseResult converts a finished process into a case result.
func caseResult(pr ProcessResult) model.RawExecutionResult {
	res := model.RawExecutionResult{
		ExitCode:      pr.ExitCode,
		Stdout:        normalizeOutput(pr.Stdout),
		Stderr:        normalizeOutput(pr.Stderr),
		ElapsedMillis: pr.Elapsed.Milliseconds(),
		TimedOut:      pr.TimedOut,
	}
	if res.TimedOut {
		res.Stdout = ""
	}
	res.ErrorMessage = errorMessage(res.Stderr, res.ExitCode, res.TimedOut, pr.Err)
	return res
}

func errorMessage(stderr string, exitCode int, timedOut bool, err error) string {
	switch {
	case timedOut:
		return TimeoutMessage
	case err != nil:
		return err.Error()
	case stderr != "":
		return stderr
	case exitCode != 0:
		return fmt.Sprintf("exit status %d", exitCode)
	}
	return ""
}

// invalidInput is the result for a case whose input could not be parsed.
func invalidInput(err error) model.RawExecutionResult {
	return model.RawExecutionResult{ExitCode: -1, ErrorMessage: fmt.Sprintf("invalid input: %v", err)}
}

// normalizeOutput joins the lines of s with "\n", dropping line terminators
// at the end.
func normalizeOutput(s string) string {
	if s == "" {
		return ""
	}
	scanner := bufio.NewScanner(strings.NewReader(s))
	scanner.Buffer(make([]byte, 0, 64*1024), len(s)+1)
	var lines []string
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	return strings.Join(lines, "\n")
}

// splitArgs splits a case line into arguments using shell word rules.
func splitArgs(input string) ([]string, error) {
	return shlex.Split(input)
}

// stdinPayload returns the case text as a newline terminated stdin stream.
func stdinPayload(input string) string {
	if strings.HasSuffix(input, "\n") {
		return input
	}
	return input + "\n"
}
