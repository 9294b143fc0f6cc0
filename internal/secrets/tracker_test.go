package secrets_test

import (
	"fmt"
	"sync"
	"testing"

	"github.com/gantry-ci/gantry/internal/secrets"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTracker(t *testing.T) {
	tracker := secrets.NewTracker()
	require.NotNil(t, tracker, "NewTracker should not return nil")
}

// TestAddAndIsTracked verifies the basic functionality of adding a secret and
// checking for its exact presence.
func TestAddAndIsTracked(t *testing.T) {
	tracker := secrets.NewTracker()
	secretValue := "my-secret-password-123"

	assert.False(t, tracker.IsTracked(secretValue), "Tracker should be empty initially")
	assert.False(t, tracker.IsTracked(""), "IsTracked should be false for empty string")

	tracker.Add(secretValue)

	assert.True(t, tracker.IsTracked(secretValue), "Tracker should find the exact secret value")
	assert.False(t, tracker.IsTracked("not-the-secret"), "Tracker should not find a different value")
}

// TestContainsTracked verifies the substring matching capability, which is
// what catches secrets embedded in command lines and CLI diagnostics.
func TestContainsTracked(t *testing.T) {
	secretValue := "s3cr3t_t0k3n"

	testCases := []struct {
		name          string
		input         string
		expectFound   bool
		shouldBeEmpty bool
	}{
		{
			name:        "Exact Match",
			input:       "s3cr3t_t0k3n",
			expectFound: true,
		},
		{
			name:        "Contained in Command Line",
			input:       "netlify deploy --auth s3cr3t_t0k3n --dir dist",
			expectFound: true,
		},
		{
			name:        "Contained in Authorization Header",
			input:       "Authorization: Bearer s3cr3t_t0k3n",
			expectFound: true,
		},
		{
			name:        "Not Contained",
			input:       "this is a normal string",
			expectFound: false,
		},
		{
			name:        "Partial Match (should not be found)",
			input:       "s3cr3t_t0k",
			expectFound: false,
		},
		{
			name:          "Empty Input String",
			input:         "",
			expectFound:   false,
			shouldBeEmpty: true,
		},
		{
			name:          "Empty Tracker",
			input:         "some value",
			expectFound:   false,
			shouldBeEmpty: true,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			tracker := secrets.NewTracker()
			if !tc.shouldBeEmpty {
				tracker.Add(secretValue)
			}
			assert.Equal(t, tc.expectFound, tracker.ContainsTracked(tc.input))
		})
	}
}

func TestScrubReplacesAllOccurrences(t *testing.T) {
	tracker := secrets.NewTracker()
	tracker.Add("hunter2")
	tracker.Add("tok_abc")

	in := "deploy failed: auth hunter2 rejected, retried with hunter2 and tok_abc"
	out := tracker.Scrub(in)

	assert.NotContains(t, out, "hunter2")
	assert.NotContains(t, out, "tok_abc")
	assert.Contains(t, out, secrets.RedactedValue)
	assert.Equal(t, "unrelated text", tracker.Scrub("unrelated text"))
}

func TestAddEmptyDoesNothing(t *testing.T) {
	tracker := secrets.NewTracker()
	assert.NotPanics(t, func() {
		tracker.Add("")
	}, "Adding an empty string should not panic")
	assert.False(t, tracker.IsTracked(""), "Tracker should not track empty strings")
}

func TestRedactTracked(t *testing.T) {
	tracker := secrets.NewTracker()
	tracker.Add("live-secret-value")

	data := map[string]interface{}{
		"url":    "https://example.net",
		"token":  "live-secret-value",
		"nested": map[string]string{"auth": "Bearer live-secret-value"},
		"list":   []interface{}{"safe", "live-secret-value"},
		"count":  3,
	}
	redacted, changed := secrets.RedactTracked(data, tracker)
	require.True(t, changed)

	m := redacted.(map[string]interface{})
	assert.Equal(t, "https://example.net", m["url"])
	assert.Equal(t, secrets.RedactedValue, m["token"])
	assert.Equal(t, secrets.RedactedValue, m["nested"].(map[string]string)["auth"])
	assert.Equal(t, secrets.RedactedValue, m["list"].([]interface{})[1])
	assert.Equal(t, 3, m["count"])

	// The original is untouched.
	assert.Equal(t, "live-secret-value", data["token"])
}

// TestConcurrency validates that the Tracker is thread-safe by concurrently
// reading and writing to a shared instance. This test will fail under the
// `-race` flag if the RWMutex is not implemented correctly.
func TestConcurrency(t *testing.T) {
	tracker := secrets.NewTracker()
	const numGoroutines = 100
	const numSecretsPerRoutine = 50

	var wg sync.WaitGroup
	wg.Add(numGoroutines)

	for i := 0; i < numGoroutines; i++ {
		go func(routineID int) {
			defer wg.Done()
			for j := 0; j < numSecretsPerRoutine; j++ {
				secretToAdd := fmt.Sprintf("secret_from_routine_%d_item_%d", routineID, j)
				tracker.Add(secretToAdd)

				secretToRead := "secret_from_routine_0_item_0"
				if routineID > 0 {
					_ = tracker.ContainsTracked(secretToRead)
				}
			}
		}(i)
	}

	wg.Wait()

	for i := 0; i < numGoroutines; i++ {
		for j := 0; j < numSecretsPerRoutine; j++ {
			secretToCheck := fmt.Sprintf("secret_from_routine_%d_item_%d", i, j)
			assert.True(t, tracker.IsTracked(secretToCheck), "Secret from routine %d item %d should be tracked", i, j)
		}
	}
}
