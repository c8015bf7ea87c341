package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"codesandbox/config"
	"codesandbox/executor"
	"codesandbox/internal/sanitize"
)

// BuildSandbox assembles the guard, compiler and configured strategy into a
// SandboxService. The returned close function releases the container
// runtime, if one was opened.
func BuildSandbox(ctx context.Context, cfg config.Config, logger *zap.Logger) (*SandboxService, func() error, error) {
	noop := func() error { return nil }

	lang, ok := executor.GetLanguageConfig(executor.DefaultLanguage)
	if !ok {
		return nil, noop, fmt.Errorf("%w: %s", executor.ErrUnsupportedLanguage, executor.DefaultLanguage)
	}
	inputMode, err := executor.ParseInputMode(cfg.InputMode)
	if err != nil {
		return nil, noop, err
	}

	guard, err := sanitize.LoadContentGuard(cfg.BannedWordsPath, cfg.MaxCodeLength)
	if err != nil {
		return nil, noop, fmt.Errorf("load banned words: %w", err)
	}
	logger.Info("content guard ready", zap.Int("words", guard.Len()), zap.Int("max_code_length", cfg.MaxCodeLength))

	compiler := executor.NewCompiler(lang, cfg.JavacPath, cfg.CompileTimeout, logger.Named("compiler"))

	var (
		strategy executor.Strategy
		closeFn  = noop
	)
	switch cfg.Strategy {
	case "native":
		strategy = executor.NewNativeStrategy(lang, executor.NativeConfig{
			RuntimePath:          cfg.JavaPath,
			MaxHeap:              cfg.JVMMaxHeap,
			SecurityManagerPath:  cfg.SecurityManagerPath,
			SecurityManagerClass: cfg.SecurityManagerClass,
			Timeout:              cfg.RunTimeout,
			InputMode:            inputMode,
			StopOnFirstFailure:   cfg.StopOnFirstFailure,
		}, logger.Named("native"))
	case "docker", "":
		manager, err := executor.NewContainerManager(cfg.ContainerLogPath)
		if err != nil {
			return nil, noop, err
		}
		if err := manager.EnsureImage(ctx, cfg.DockerImage); err != nil {
			manager.Close()
			return nil, noop, err
		}
		strategy, err = executor.NewContainerStrategy(manager, lang, executor.ContainerConfig{
			Image:              cfg.DockerImage,
			MemoryBytes:        cfg.DockerMemoryBytes,
			NanoCPUs:           cfg.DockerNanoCPUs,
			PidsLimit:          cfg.DockerPidsLimit,
			SeccompProfilePath: cfg.SeccompProfilePath,
			Timeout:            cfg.RunTimeout,
			InputMode:          inputMode,
			StopOnFirstFailure: cfg.StopOnFirstFailure,
		}, logger.Named("docker"))
		if err != nil {
			manager.Close()
			return nil, noop, err
		}
		closeFn = manager.Close
	default:
		return nil, noop, fmt.Errorf("unknown strategy %q", cfg.Strategy)
	}

	svc, err := NewSandboxService(guard, compiler, strategy, lang, cfg.CodeRoot, logger.Named("sandbox"))
	if err != nil {
		closeFn()
		return nil, noop, err
	}
	return svc, closeFn, nil
}
