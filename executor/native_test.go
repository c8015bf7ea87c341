package executor

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// fakeJava skips the JVM flags and the main class, then sums its integer
// arguments. With no arguments it reads them from one stdin line.
const fakeJava = `#!/bin/sh
while [ "$#" -gt 0 ] && [ "$1" != "Main" ]; do shift; done
shift
if [ "$#" -eq 0 ]; then
  read line
  set -- $line
fi
if [ "$1" = "loop" ]; then
  exec sleep 10
fi
sum=0
for n in "$@"; do
  case "$n" in
    ''|*[!0-9]*) echo "NumberFormatException: $n" >&2; exit 1 ;;
  esac
  sum=$((sum + n))
done
echo "$sum"
`

func writeFakeJava(t *testing.T) string {
	t.Helper()
	requireShell(t)
	path := filepath.Join(t.TempDir(), "java")
	require.NoError(t, os.WriteFile(path, []byte(fakeJava), 0o755))
	return path
}

func newTestNative(t *testing.T, cfg NativeConfig) *NativeStrategy {
	t.Helper()
	lang, ok := GetLanguageConfig("java")
	require.True(t, ok)
	cfg.RuntimePath = writeFakeJava(t)
	return NewNativeStrategy(lang, cfg, zaptest.NewLogger(t))
}

func TestNativeRunAll(t *testing.T) {
	s := newTestNative(t, NativeConfig{Timeout: 5 * time.Second})
	artifact := Artifact{Dir: t.TempDir(), MainClass: "Main"}

	results, err := s.RunAll(context.Background(), artifact, []string{"1 2", "3 4"})
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.Equal(t, "3", results[0].Stdout)
	assert.Equal(t, "7", results[1].Stdout)
	for _, r := range results {
		assert.False(t, r.Failed())
		assert.Zero(t, r.PeakMemory)
	}
}

func TestNativeRunFailure(t *testing.T) {
	s := newTestNative(t, NativeConfig{Timeout: 5 * time.Second})
	artifact := Artifact{Dir: t.TempDir(), MainClass: "Main"}

	res := s.Run(context.Background(), artifact, "x y")
	assert.Equal(t, 1, res.ExitCode)
	assert.True(t, res.Failed())
	assert.Equal(t, "NumberFormatException: x", res.ErrorMessage)
}

func TestNativeRunTimeout(t *testing.T) {
	s := newTestNative(t, NativeConfig{Timeout: 300 * time.Millisecond})
	artifact := Artifact{Dir: t.TempDir(), MainClass: "Main"}

	start := time.Now()
	res := s.Run(context.Background(), artifact, "loop")
	assert.True(t, res.TimedOut)
	assert.Equal(t, TimeoutMessage, res.ErrorMessage)
	assert.Empty(t, res.Stdout)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestNativeRunStdin(t *testing.T) {
	s := newTestNative(t, NativeConfig{Timeout: 5 * time.Second, InputMode: InputStdin})
	artifact := Artifact{Dir: t.TempDir(), MainClass: "Main"}

	res := s.Run(context.Background(), artifact, "5 6")
	assert.False(t, res.Failed())
	assert.Equal(t, "11", res.Stdout)
}

func TestNativeRunStopOnFirstFailure(t *testing.T) {
	s := newTestNative(t, NativeConfig{Timeout: 5 * time.Second, StopOnFirstFailure: true})
	artifact := Artifact{Dir: t.TempDir(), MainClass: "Main"}

	results, err := s.RunAll(context.Background(), artifact, []string{"1 1", "bad", "2 2"})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.True(t, results[1].Failed())
}

func TestNativeRunInvalidInput(t *testing.T) {
	s := newTestNative(t, NativeConfig{Timeout: 5 * time.Second})
	res := s.Run(context.Background(), Artifact{Dir: t.TempDir()}, `"unterminated`)
	assert.True(t, res.Failed())
	assert.Contains(t, res.ErrorMessage, "invalid input")
}

func TestNativeCommand(t *testing.T) {
	lang, ok := GetLanguageConfig("java")
	require.True(t, ok)
	logger := zaptest.NewLogger(t)

	t.Run("with security manager", func(t *testing.T) {
		s := NewNativeStrategy(lang, NativeConfig{
			MaxHeap:              "156m",
			SecurityManagerPath:  "/opt/security",
			SecurityManagerClass: "DefaultSecurityManager",
		}, logger)
		got := s.command(Artifact{Dir: "/tmp/ws"}, []string{"1", "2"})
		assert.Equal(t, []string{
			"-Xmx156m",
			"-Dfile.encoding=UTF-8",
			"-cp", "/tmp/ws" + string(os.PathListSeparator) + "/opt/security",
			"-Djava.security.manager=DefaultSecurityManager",
			"Main", "1", "2",
		}, got)
	})

	t.Run("without security manager", func(t *testing.T) {
		s := NewNativeStrategy(lang, NativeConfig{}, logger)
		got := s.command(Artifact{Dir: "/tmp/ws", MainClass: "Solution"}, nil)
		assert.Equal(t, []string{"-Dfile.encoding=UTF-8", "-cp", "/tmp/ws", "Solution"}, got)
	})
}

func TestNormalizeOutput(t *testing.T) {
	tests := map[string]string{
		"":           "",
		"3\n":        "3",
		"a\nb\n":     "a\nb",
		"a\r\nb\r\n": "a\nb",
		"a\nb":       "a\nb",
		"\n\nx\n":    "\n\nx",
	}
	for in, want := range tests {
		assert.Equal(t, want, normalizeOutput(in), "input %q", in)
	}
}
