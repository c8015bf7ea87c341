package executor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sync/atomic"
	"time"
)

const waitDelay = time.Second

// RunProcess runs spec to completion or until ctx is done. A watcher
// goroutine kills the process when ctx ends first; if that happened because
// of a deadline the result is marked TimedOut.
func RunProcess(ctx context.Context, spec ProcessSpec) ProcessResult {
	cmd := exec.Command(spec.Path, spec.Args...)
	cmd.Dir = spec.Dir
	cmd.Stdin = spec.Stdin
	cmd.WaitDelay = waitDelay

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return ProcessResult{ExitCode: -1, Err: fmt.Errorf("start %s: %w", spec.Path, err)}
	}

	var timedOut, cancelled atomic.Bool
	done := make(chan struct{})
	go watchProcess(ctx, cmd.Process, done, &timedOut, &cancelled)

	waitErr := cmd.Wait()
	close(done)
	elapsed := time.Since(start)

	result := ProcessResult{
		ExitCode: exitCodeFromErr(waitErr, cmd),
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Elapsed:  elapsed,
		TimedOut: timedOut.Load(),
	}

	var exitErr *exec.ExitError
	switch {
	case result.TimedOut:
	case cancelled.Load():
		result.Err = ctx.Err()
	case waitErr != nil && !errors.As(waitErr, &exitErr):
		result.Err = fmt.Errorf("wait %s: %w", spec.Path, waitErr)
	}
	return result
}

// watchProcess kills p when ctx ends before done is closed. The flags are
// only set when the kill reached a live process, so a case that exited just
// as the deadline fired keeps its real result.
func watchProcess(ctx context.Context, p *os.Process, done <-chan struct{}, timedOut, cancelled *atomic.Bool) {
	select {
	case <-ctx.Done():
		if errors.Is(p.Kill(), os.ErrProcessDone) {
			return
		}
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			timedOut.Store(true)
		} else {
			cancelled.Store(true)
		}
	case <-done:
	}
}

func exitCodeFromErr(err error, cmd *exec.Cmd) int {
	if cmd.ProcessState != nil {
		return cmd.ProcessState.ExitCode()
	}
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return -1
}
