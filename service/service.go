package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"codesandbox/executor"
	"codesandbox/metrics"
	"codesandbox/model"
)

// Guard rejects submissions before anything touches the disk.
type Guard interface {
	Scan(code string) error
}

// Compiler builds the saved source inside its workspace.
type Compiler interface {
	Compile(ctx context.Context, artifact executor.Artifact) error
}

// SandboxService runs the save, compile, run, aggregate and cleanup pipeline
// with an injected execution strategy.
type SandboxService struct {
	guard    Guard
	compiler Compiler
	strategy executor.Strategy
	lang     executor.LanguageConfig
	codeRoot string
	logger   *zap.Logger
}

// NewSandboxService creates codeRoot if needed and resolves it to an
// absolute path so workspaces can be bind-mounted.
func NewSandboxService(guard Guard, compiler Compiler, strategy executor.Strategy,
	lang executor.LanguageConfig, codeRoot string, logger *zap.Logger) (*SandboxService, error) {
	if guard == nil || compiler == nil || strategy == nil {
		return nil, errors.New("guard, compiler and strategy are required")
	}
	root, err := filepath.Abs(codeRoot)
	if err != nil {
		return nil, fmt.Errorf("resolve code root: %w", err)
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create code root: %w", err)
	}
	return &SandboxService{
		guard:    guard,
		compiler: compiler,
		strategy: strategy,
		lang:     lang,
		codeRoot: root,
		logger:   logger,
	}, nil
}

// StrategyName reports which strategy runs the cases.
func (s *SandboxService) StrategyName() string {
	return s.strategy.Name()
}

// Execute never returns an error: every failure, including a panic, comes
// back as a FAILED response, and the workspace is removed on every path.
func (s *SandboxService) Execute(ctx context.Context, req model.ExecutionRequest) (resp model.ExecutionResponse) {
	start := time.Now()
	strategy := s.strategy.Name()
	logger := s.logger.With(zap.String("strategy", strategy), zap.Int("cases", len(req.InputList)))

	defer func() {
		if r := recover(); r != nil {
			logger.Error("panic during execution", zap.Any("panic", r), zap.Stack("stack"))
			resp = failure(fmt.Errorf("internal error: %v", r))
		}
		metrics.ExecutionsTotal.WithLabelValues(strategy, resp.Status.String()).Inc()
		metrics.PhaseDuration.WithLabelValues(strategy, "total").Observe(float64(time.Since(start).Milliseconds()))
	}()

	if lang, ok := executor.GetLanguageConfig(req.Language); !ok || lang.Name != s.lang.Name {
		return failure(fmt.Errorf("%w: %s", executor.ErrUnsupportedLanguage, req.Language))
	}

	if err := s.guard.Scan(req.Code); err != nil {
		metrics.ContentViolations.Inc()
		logger.Info("submission rejected", zap.Error(err))
		return failure(err)
	}

	artifact, err := s.save(req.Code)
	if err != nil {
		logger.Error("failed to save source", zap.Error(err))
		return failure(err)
	}
	defer s.cleanup(artifact)
	logger = logger.With(zap.String("workspace", filepath.Base(artifact.Dir)))

	compileStart := time.Now()
	err = s.compiler.Compile(ctx, artifact)
	metrics.PhaseDuration.WithLabelValues(strategy, "compile").Observe(float64(time.Since(compileStart).Milliseconds()))
	if err != nil {
		var compileErr *executor.CompileError
		if errors.As(err, &compileErr) {
			logger.Info("compilation failed", zap.Int("exit_code", compileErr.ExitCode))
		} else {
			logger.Error("compiler could not run", zap.Error(err))
		}
		return failure(err)
	}

	runStart := time.Now()
	results, err := s.strategy.RunAll(ctx, artifact, req.InputList)
	metrics.PhaseDuration.WithLabelValues(strategy, "run").Observe(float64(time.Since(runStart).Milliseconds()))
	if err != nil {
		logger.Error("execution failed", zap.Error(err))
		return failure(err)
	}

	for _, r := range results {
		if r.TimedOut {
			metrics.CaseTimeouts.WithLabelValues(strategy).Inc()
		}
	}

	resp = Aggregate(results, len(req.InputList))
	if resp.JudgeInfo.Memory > 0 {
		metrics.PeakMemory.WithLabelValues(strategy).Observe(float64(resp.JudgeInfo.Memory))
	}
	logger.Info("execution finished",
		zap.String("status", resp.Status.String()),
		zap.Int("outputs", len(resp.OutputList)),
		zap.Int64("time_ms", resp.JudgeInfo.Time),
		zap.Int64("memory_bytes", resp.JudgeInfo.Memory))
	return resp
}

// save writes code into a fresh workspace named by a random identifier.
func (s *SandboxService) save(code string) (executor.Artifact, error) {
	dir := filepath.Join(s.codeRoot, uuid.NewString())
	if err := os.Mkdir(dir, 0o755); err != nil {
		return executor.Artifact{}, fmt.Errorf("create workspace: %w", err)
	}
	artifact := executor.Artifact{
		Dir:        dir,
		SourcePath: filepath.Join(dir, s.lang.SourceFile),
		MainClass:  s.lang.MainClass,
	}
	if err := os.WriteFile(artifact.SourcePath, []byte(code), 0o644); err != nil {
		s.cleanup(artifact)
		return executor.Artifact{}, fmt.Errorf("write source: %w", err)
	}
	return artifact, nil
}

func (s *SandboxService) cleanup(artifact executor.Artifact) {
	if err := os.RemoveAll(artifact.Dir); err != nil {
		s.logger.Error("failed to remove workspace", zap.String("dir", artifact.Dir), zap.Error(err))
	}
}

func failure(err error) model.ExecutionResponse {
	return model.ExecutionResponse{
		OutputList: []string{},
		Message:    err.Error(),
		Status:     model.StatusFailed,
	}
}
