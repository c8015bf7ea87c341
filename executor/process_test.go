package executor

import (
	"context"
	"os/exec"
	"runtime"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func requireShell(t *testing.T) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("requires a POSIX shell")
	}
	sh, err := exec.LookPath("sh")
	if err != nil {
		t.Skip("sh not found in PATH")
	}
	return sh
}

func TestRunProcess(t *testing.T) {
	sh := requireShell(t)

	tests := []struct {
		name       string
		script     string
		stdin      string
		wantExit   int
		wantStdout string
		wantStderr string
	}{
		{name: "success", script: "echo hello", wantExit: 0, wantStdout: "hello\n"},
		{name: "exit code", script: "exit 3", wantExit: 3},
		{name: "stderr", script: "echo oops >&2; exit 1", wantExit: 1, wantStderr: "oops\n"},
		{name: "stdin", script: "read a; echo got $a", stdin: "42\n", wantExit: 0, wantStdout: "got 42\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			spec := ProcessSpec{Path: sh, Args: []string{"-c", tt.script}, Dir: t.TempDir()}
			if tt.stdin != "" {
				spec.Stdin = strings.NewReader(tt.stdin)
			}
			res := RunProcess(context.Background(), spec)
			require.NoError(t, res.Err)
			assert.False(t, res.TimedOut)
			assert.Equal(t, tt.wantExit, res.ExitCode)
			assert.Equal(t, tt.wantStdout, res.Stdout)
			assert.Equal(t, tt.wantStderr, res.Stderr)
		})
	}
}

func TestRunProcessTimeout(t *testing.T) {
	sh := requireShell(t)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	start := time.Now()
	res := RunProcess(ctx, ProcessSpec{Path: sh, Args: []string{"-c", "exec sleep 10"}})
	assert.True(t, res.TimedOut)
	assert.NoError(t, res.Err)
	assert.NotEqual(t, 0, res.ExitCode)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestRunProcessCancelled(t *testing.T) {
	sh := requireShell(t)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(100 * time.Millisecond)
		cancel()
	}()

	res := RunProcess(ctx, ProcessSpec{Path: sh, Args: []string{"-c", "exec sleep 10"}})
	assert.False(t, res.TimedOut)
	assert.ErrorIs(t, res.Err, context.Canceled)
}

func TestRunProcessStartFailure(t *testing.T) {
	res := RunProcess(context.Background(), ProcessSpec{Path: "/nonexistent/binary"})
	assert.Error(t, res.Err)
	assert.Equal(t, -1, res.ExitCode)
}

func TestWatchProcessIgnoresFinishedProcess(t *testing.T) {
	sh := requireShell(t)
	cmd := exec.Command(sh, "-c", "exit 0")
	require.NoError(t, cmd.Start())
	require.NoError(t, cmd.Wait())

	ctx, cancel := context.WithTimeout(context.Background(), time.Nanosecond)
	defer cancel()
	<-ctx.Done()

	var timedOut, cancelled atomic.Bool
	watchProcess(ctx, cmd.Process, make(chan struct{}), &timedOut, &cancelled)
	assert.False(t, timedOut.Load(), "finished case marked as timed out")
	assert.False(t, cancelled.Load())
}

func TestWatchProcessKillsOnDeadline(t *testing.T) {
	sh := requireShell(t)
	cmd := exec.Command(sh, "-c", "sleep 10")
	require.NoError(t, cmd.Start())

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	var timedOut, cancelled atomic.Bool
	watchProcess(ctx, cmd.Process, make(chan struct{}), &timedOut, &cancelled)
	assert.True(t, timedOut.Load())
	assert.False(t, cancelled.Load())
	assert.Error(t, cmd.Wait())
}
