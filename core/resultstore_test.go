package core

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"vqagen/models"
)

func TestResultStoreConcurrentAppend(t *testing.T) {
	// 1. Eight goroutines appending 25 results each
	store := NewResultStore("gemini-2.0-flash", false, testLogger())
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			for j := 0; j < 25; j++ {
				store.Append(&models.Result{
					RequestID: fmt.Sprintf("req-%d-%d", worker, j),
					Status:    models.StatusSuccess,
				})
			}
		}(i)
	}
	wg.Wait()

	// 2. Nothing lost
	assert.Equal(t, 200, store.Len())
	seen := make(map[string]bool)
	for _, r := range store.Snapshot() {
		seen[r.RequestID] = true
	}
	assert.Len(t, seen, 200)
}

func TestResultStoreFlushRoundTrip(t *testing.T) {
	// 1. A mix of successes and failures
	store := NewResultStore("gemini-2.0-flash", true, testLogger())
	want := make(map[string]models.ResultStatus)
	for i := 0; i < 10; i++ {
		req := &models.Request{
			ID:       fmt.Sprintf("req-%03d", i),
			ImageID:  fmt.Sprintf("img-%03d", i),
			Category: "mcq",
			Prompt:   "Answer with a single letter.",
			Model:    "gemini-2.0-flash",
		}
		var res *models.Result
		if i%3 == 0 {
			res = models.FailureResult(req, models.NewAPIError(models.ErrKindOther, 500, "internal error"), 2)
		} else {
			res = models.SuccessResult(req, &models.CallOutput{Text: "B", Usage: &models.TokenUsage{TotalTokens: 12}}, 1)
		}
		store.Append(res)
		want[req.ID] = res.Status
	}

	// 2. Flush and load back
	path := filepath.Join(t.TempDir(), "results.json")
	assert.NoError(t, store.Flush(path))
	loaded, err := LoadResultFile(path)
	assert.NoError(t, err)

	// 3. Header and per-result content survive the round trip
	assert.Equal(t, "gemini-2.0-flash", loaded.Model)
	assert.True(t, loaded.Eval)
	assert.Equal(t, 10, loaded.Total)
	assert.Equal(t, loaded.Total, loaded.Succeeded+loaded.Failed)

	got := make(map[string]models.ResultStatus)
	for _, r := range loaded.Results {
		got[r.RequestID] = r.Status
		if r.Succeeded() {
			assert.Equal(t, "B", r.Response)
			assert.Equal(t, 12, r.Usage.TotalTokens)
		} else {
			assert.Equal(t, models.ErrKindOther, r.ErrorKind)
			assert.NotEmpty(t, r.ErrorDetail)
		}
	}
	assert.Equal(t, want, got)
}

func TestResultStoreFlushReplacesAtomically(t *testing.T) {
	store := NewResultStore("gemini-2.0-flash", false, testLogger())
	dir := t.TempDir()
	path := filepath.Join(dir, "results.json")

	// 1. First flush
	store.Append(&models.Result{RequestID: "req-001", Status: models.StatusSuccess})
	assert.NoError(t, store.Flush(path))

	// 2. Second flush fully replaces the file
	store.Append(&models.Result{RequestID: "req-002", Status: models.StatusFailure})
	assert.NoError(t, store.Flush(path))

	loaded, err := LoadResultFile(path)
	assert.NoError(t, err)
	assert.Equal(t, 2, loaded.Total)

	// 3. No temp files left behind
	entries, err := os.ReadDir(dir)
	assert.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestResultStoreSucceededImageIDs(t *testing.T) {
	store := NewResultStore("gemini-2.0-flash", false, testLogger())
	store.Append(&models.Result{RequestID: "req-1", ImageID: "img-1", Status: models.StatusSuccess})
	store.Append(&models.Result{RequestID: "req-2", ImageID: "img-2", Status: models.StatusFailure})

	ids := store.SucceededImageIDs()
	assert.True(t, ids["img-1"])
	assert.False(t, ids["img-2"])
}

func TestResultStoreCheckpoints(t *testing.T) {
	// 1. Fast checkpoints against a temp file
	store := NewResultStore("gemini-2.0-flash", false, testLogger())
	path := filepath.Join(t.TempDir(), "checkpoint.json")
	store.StartCheckpoints(path, 10*time.Millisecond)
	store.Append(&models.Result{RequestID: "req-1", ImageID: "img-1", Status: models.StatusSuccess})

	// 2. A checkpoint lands without an explicit Flush
	assert.Eventually(t, func() bool {
		_, err := os.Stat(path)
		return err == nil
	}, time.Second, 5*time.Millisecond, "checkpoint file should appear")

	store.StopCheckpoints()
	loaded, err := LoadResultFile(path)
	assert.NoError(t, err)
	assert.Equal(t, 1, loaded.Total)
}
