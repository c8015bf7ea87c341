package executor

import (
	"context"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"codesandbox/model"
)

// NativeConfig controls how compiled programs run directly on the host.
type NativeConfig struct {
	RuntimePath string
	MaxHeap     string
	// SecurityManagerPath is put on the classpath next to the artifact and
	// SecurityManagerClass is installed as the JVM security manager.
	SecurityManagerPath  string
	SecurityManagerClass string
	Timeout              time.Duration
	InputMode            InputMode
	StopOnFirstFailure   bool
}

// NativeStrategy runs each case as a host process. It has no memory
// measurement, so peak memory is always reported as zero.
type NativeStrategy struct {
	cfg    NativeConfig
	lang   LanguageConfig
	logger *zap.Logger
}

// NewNativeStrategy creates the host-process strategy for lang.
func NewNativeStrategy(lang LanguageConfig, cfg NativeConfig, logger *zap.Logger) *NativeStrategy {
	if cfg.RuntimePath == "" {
		cfg.RuntimePath = lang.Runtime
	}
	if cfg.InputMode == "" {
		cfg.InputMode = InputArgs
	}
	if cfg.SecurityManagerPath == "" || cfg.SecurityManagerClass == "" {
		logger.Warn("native strategy running without a security manager")
	}
	return &NativeStrategy{cfg: cfg, lang: lang, logger: logger}
}

func (s *NativeStrategy) Name() string {
	return "native"
}

func (s *NativeStrategy) RunAll(ctx context.Context, artifact Artifact, inputs []string) ([]model.RawExecutionResult, error) {
	return runCases(ctx, inputs, s.cfg.StopOnFirstFailure, func(ctx context.Context, input string) (model.RawExecutionResult, error) {
		return s.Run(ctx, artifact, input), nil
	})
}

// Run executes one case under the configured timeout.
func (s *NativeStrategy) Run(ctx context.Context, artifact Artifact, input string) model.RawExecutionResult {
	spec := ProcessSpec{Path: s.cfg.RuntimePath, Dir: artifact.Dir}
	var programArgs []string
	switch s.cfg.InputMode {
	case InputStdin:
		spec.Stdin = strings.NewReader(stdinPayload(input))
	default:
		args, err := splitArgs(input)
		if err != nil {
			return invalidInput(err)
		}
		programArgs = args
	}
	spec.Args = s.command(artifact, programArgs)

	runCtx := ctx
	if s.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, s.cfg.Timeout)
		defer cancel()
	}

	pr := RunProcess(runCtx, spec)
	if pr.TimedOut {
		s.logger.Warn("case timed out, process killed",
			zap.String("dir", artifact.Dir),
			zap.Duration("timeout", s.cfg.Timeout))
	}
	return caseResult(pr)
}

// command builds the runtime arguments for one case.
func (s *NativeStrategy) command(artifact Artifact, programArgs []string) []string {
	args := make([]string, 0, 6+len(programArgs))
	if s.cfg.MaxHeap != "" {
		args = append(args, "-Xmx"+s.cfg.MaxHeap)
	}
	args = append(args, "-Dfile.encoding=UTF-8")

	classpath := artifact.Dir
	if s.cfg.SecurityManagerPath != "" && s.cfg.SecurityManagerClass != "" {
		classpath += string(os.PathListSeparator) + s.cfg.SecurityManagerPath
		args = append(args, "-cp", classpath, "-Djava.security.manager="+s.cfg.SecurityManagerClass)
	} else {
		args = append(args, "-cp", classpath)
	}

	mainClass := artifact.MainClass
	if mainClass == "" {
		mainClass = s.lang.MainClass
	}
	args = append(args, mainClass)
	return append(args, programArgs...)
}
