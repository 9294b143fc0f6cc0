package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestRunReturnsWithoutSignal pins the exit path: a normal run must return
// on its own, without depending on a signal arriving to unblock shutdown.
func TestRunReturnsWithoutSignal(t *testing.T) {
	repo := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(repo, "go.mod"),
		[]byte("module example.com/svc\n\ngo 1.22\n"), 0o644))

	done := make(chan int, 1)
	go func() {
		done <- run([]string{
			"-phase", "detect-repo",
			"-env", "dev",
			"-repo-root", repo,
			"-config-root", repo,
			"-log-level", "error",
			"-metrics-path", filepath.Join(repo, "metrics.prom"),
		})
	}()

	select {
	case code := <-done:
		assert.Equal(t, ExitSuccess, code)
	case <-time.After(10 * time.Second):
		t.Fatal("run did not return after the phase completed")
	}
}

func TestRunRejectsUnknownPhase(t *testing.T) {
	assert.Equal(t, ExitUsageError, run([]string{"-phase", "bogus"}))
}

func TestRunRejectsUnknownEnvironment(t *testing.T) {
	assert.Equal(t, ExitUsageError, run([]string{"-phase", "build", "-env", "qa"}))
}

func TestRunRejectsMalformedOverride(t *testing.T) {
	assert.Equal(t, ExitUsageError, run([]string{"-phase", "build", "-set", "no-equals-sign"}))
}
