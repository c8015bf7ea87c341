package executor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"codesandbox/metrics"
	"codesandbox/model"
)

const (
	DefaultContainerImage  = "openjdk:8-alpine"
	DefaultContainerMemory = 100 * 1000 * 1000
	DefaultNanoCPUs        = 1_000_000_000
	DefaultPidsLimit       = 64
	DefaultMountPath       = "/app/code"

	// ManagedLabel marks every container created by the sandbox.
	ManagedLabel = "codesandbox.managed"

	removeTimeout = 30 * time.Second
	killTimeout   = 5 * time.Second
)

// killCommand signals every process in the container except its init and
// the calling shell. Cases run one at a time, so after a timeout that is the
// runaway case and anything it spawned.
var killCommand = []string{"sh", "-c", "kill -KILL -1"}

// ContainerSpec is the full isolation contract for one sandbox container.
type ContainerSpec struct {
	Image          string
	MemoryBytes    int64
	NanoCPUs       int64
	PidsLimit      int64
	SeccompProfile string
	HostDir        string
	MountPath      string
	Labels         map[string]string
}

// ExecRequest is one command run inside a started container.
type ExecRequest struct {
	Cmd        []string
	WorkingDir string
	Stdin      string
}

// ExecResult is the demultiplexed output of a finished exec.
type ExecResult struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

// ContainerRuntime is the container API the strategy needs.
type ContainerRuntime interface {
	Create(ctx context.Context, spec ContainerSpec) (string, error)
	Start(ctx context.Context, id string) error
	// Exec blocks until the command's output is drained. When ctx ends
	// first it stops reading and returns ctx.Err().
	Exec(ctx context.Context, id string, req ExecRequest) (ExecResult, error)
	// Stats streams memory usage samples in bytes until ctx ends. sample is
	// called on the goroutine that called Stats.
	Stats(ctx context.Context, id string, sample func(usage int64)) error
	Remove(ctx context.Context, id string) error
}

// ContainerConfig controls the container strategy.
type ContainerConfig struct {
	Image              string
	MemoryBytes        int64
	NanoCPUs           int64
	PidsLimit          int64
	SeccompProfilePath string
	MountPath          string
	Timeout            time.Duration
	InputMode          InputMode
	StopOnFirstFailure bool
}

// ContainerStrategy provisions one container per request and runs every
// case in it as a separate exec, sampling memory while each exec runs.
type ContainerStrategy struct {
	runtime ContainerRuntime
	cfg     ContainerConfig
	seccomp string
	lang    LanguageConfig
	logger  *zap.Logger
}

// NewContainerStrategy validates cfg and loads the seccomp profile. The
// profile is mandatory.
func NewContainerStrategy(runtime ContainerRuntime, lang LanguageConfig, cfg ContainerConfig, logger *zap.Logger) (*ContainerStrategy, error) {
	if runtime == nil {
		return nil, errors.New("container runtime is required")
	}
	if cfg.SeccompProfilePath == "" {
		return nil, errors.New("seccomp profile path is required")
	}
	profile, err := os.ReadFile(cfg.SeccompProfilePath)
	if err != nil {
		return nil, fmt.Errorf("read seccomp profile: %w", err)
	}
	if !json.Valid(profile) {
		return nil, fmt.Errorf("seccomp profile %s is not valid JSON", cfg.SeccompProfilePath)
	}

	if cfg.Image == "" {
		cfg.Image = DefaultContainerImage
	}
	if cfg.MemoryBytes <= 0 {
		cfg.MemoryBytes = DefaultContainerMemory
	}
	if cfg.NanoCPUs <= 0 {
		cfg.NanoCPUs = DefaultNanoCPUs
	}
	if cfg.PidsLimit <= 0 {
		cfg.PidsLimit = DefaultPidsLimit
	}
	if cfg.MountPath == "" {
		cfg.MountPath = DefaultMountPath
	}
	if cfg.InputMode == "" {
		cfg.InputMode = InputArgs
	}

	return &ContainerStrategy{
		runtime: runtime,
		cfg:     cfg,
		seccomp: string(profile),
		lang:    lang,
		logger:  logger,
	}, nil
}

func (s *ContainerStrategy) Name() string {
	return "docker"
}

func (s *ContainerStrategy) spec(artifact Artifact) ContainerSpec {
	return ContainerSpec{
		Image:          s.cfg.Image,
		MemoryBytes:    s.cfg.MemoryBytes,
		NanoCPUs:       s.cfg.NanoCPUs,
		PidsLimit:      s.cfg.PidsLimit,
		SeccompProfile: s.seccomp,
		HostDir:        artifact.Dir,
		MountPath:      s.cfg.MountPath,
		Labels:         map[string]string{ManagedLabel: "true"},
	}
}

// RunAll creates and starts the container, runs the cases one exec at a
// time and force-removes the container on every exit path.
func (s *ContainerStrategy) RunAll(ctx context.Context, artifact Artifact, inputs []string) ([]model.RawExecutionResult, error) {
	setupStart := time.Now()
	id, err := s.runtime.Create(ctx, s.spec(artifact))
	if err != nil {
		return nil, fmt.Errorf("create container: %w", err)
	}
	defer func() {
		removeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), removeTimeout)
		defer cancel()
		if err := s.runtime.Remove(removeCtx, id); err != nil {
			s.logger.Error("failed to remove container", zap.String("container", shortID(id)), zap.Error(err))
		}
	}()

	if err := s.runtime.Start(ctx, id); err != nil {
		return nil, fmt.Errorf("start container %s: %w", shortID(id), err)
	}
	metrics.ContainerSetupTime.Observe(float64(time.Since(setupStart).Milliseconds()))
	s.logger.Debug("container ready", zap.String("container", shortID(id)), zap.Int("cases", len(inputs)))

	return runCases(ctx, inputs, s.cfg.StopOnFirstFailure, func(ctx context.Context, input string) (model.RawExecutionResult, error) {
		return s.runCase(ctx, id, artifact, input)
	})
}

func (s *ContainerStrategy) runCase(ctx context.Context, id string, artifact Artifact, input string) (model.RawExecutionResult, error) {
	req, err := s.execRequest(artifact, input)
	if err != nil {
		return invalidInput(err), nil
	}

	execCtx := ctx
	if s.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		execCtx, cancel = context.WithTimeout(ctx, s.cfg.Timeout)
		defer cancel()
	}

	pollCtx, stopPoll := context.WithCancel(ctx)
	peak := s.pollMemory(pollCtx, id)

	start := time.Now()
	out, execErr := s.runtime.Exec(execCtx, id, req)
	elapsed := time.Since(start)

	stopPoll()
	peakMemory := <-peak

	timedOut := execErr != nil && errors.Is(execCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil
	if execErr != nil && !timedOut {
		if ctx.Err() != nil {
			return model.RawExecutionResult{}, ctx.Err()
		}
		return model.RawExecutionResult{}, fmt.Errorf("exec in container %s: %w", shortID(id), execErr)
	}

	res := model.RawExecutionResult{
		ExitCode:      out.ExitCode,
		Stdout:        normalizeOutput(out.Stdout),
		Stderr:        normalizeOutput(out.Stderr),
		ElapsedMillis: elapsed.Milliseconds(),
		PeakMemory:    peakMemory,
		TimedOut:      timedOut,
	}
	if timedOut {
		res.ExitCode = -1
		res.Stdout = ""
		s.logger.Warn("case timed out in container",
			zap.String("container", shortID(id)),
			zap.Duration("timeout", s.cfg.Timeout))
		s.killCase(ctx, id)
	}
	res.ErrorMessage = errorMessage(res.Stderr, res.ExitCode, res.TimedOut, nil)
	return res, nil
}

// killCase terminates a timed-out case so it stops competing with the next
// one for the container's CPU and memory.
func (s *ContainerStrategy) killCase(ctx context.Context, id string) {
	killCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), killTimeout)
	defer cancel()
	if _, err := s.runtime.Exec(killCtx, id, ExecRequest{Cmd: killCommand}); err != nil {
		s.logger.Error("failed to kill timed-out case", zap.String("container", shortID(id)), zap.Error(err))
	}
}

func (s *ContainerStrategy) execRequest(artifact Artifact, input string) (ExecRequest, error) {
	mainClass := artifact.MainClass
	if mainClass == "" {
		mainClass = s.lang.MainClass
	}
	req := ExecRequest{
		Cmd:        []string{s.lang.Runtime, "-cp", s.cfg.MountPath, mainClass},
		WorkingDir: s.cfg.MountPath,
	}
	if s.cfg.InputMode == InputStdin {
		req.Stdin = stdinPayload(input)
		return req, nil
	}
	args, err := splitArgs(input)
	if err != nil {
		return ExecRequest{}, err
	}
	req.Cmd = append(req.Cmd, args...)
	return req, nil
}

// pollMemory samples memory until ctx ends and then delivers the peak
// exactly once on the returned channel.
func (s *ContainerStrategy) pollMemory(ctx context.Context, id string) <-chan int64 {
	peak := make(chan int64, 1)
	go func() {
		var highest int64
		err := s.runtime.Stats(ctx, id, func(usage int64) {
			if usage > highest {
				highest = usage
			}
		})
		if err != nil && ctx.Err() == nil {
			s.logger.Debug("stats stream ended early", zap.String("container", shortID(id)), zap.Error(err))
		}
		peak <- highest
	}()
	return peak
}
