package core

import (
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"vqagen/core/utils"
	"vqagen/models"
)

// ResultStore accumulates terminal Results from all workers and serializes
// them to a single JSON file. Appends are internally serialized; flushes
// replace the target file atomically so a died run never leaves a torn file.
type ResultStore struct {
	model string
	eval  bool
	log   *logrus.Logger

	mu      sync.Mutex
	results []*models.Result

	quit chan struct{}
	wg   sync.WaitGroup
}

// NewResultStore builds an empty store stamped with the run's model and mode.
func NewResultStore(model string, eval bool, log *logrus.Logger) *ResultStore {
	return &ResultStore{model: model, eval: eval, log: log}
}

// Append records one terminal Result. Safe from any worker concurrently.
func (s *ResultStore) Append(res *models.Result) {
	s.mu.Lock()
	s.results = append(s.results, res)
	s.mu.Unlock()
}

// Len reports how many Results have been recorded.
func (s *ResultStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.results)
}

// Snapshot copies the current collection.
func (s *ResultStore) Snapshot() []*models.Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*models.Result, len(s.results))
	copy(out, s.results)
	return out
}

// SucceededImageIDs collects the image ids that already carry a success
// Result. Resume filtering skips these.
func (s *ResultStore) SucceededImageIDs() map[string]bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]bool)
	for _, r := range s.results {
		if r.Succeeded() {
			out[r.ImageID] = true
		}
	}
	return out
}

// Flush writes the collection as a ResultFile, atomically replacing any
// previous file at path.
func (s *ResultStore) Flush(path string) error {
	s.mu.Lock()
	file := s.buildFile()
	s.mu.Unlock()

	return utils.WriteJSONAtomic(path, file)
}

// buildFile snapshots the collection with counts. Caller holds the lock.
func (s *ResultStore) buildFile() *models.ResultFile {
	succeeded := 0
	for _, r := range s.results {
		if r.Succeeded() {
			succeeded++
		}
	}
	results := make([]*models.Result, len(s.results))
	copy(results, s.results)
	return &models.ResultFile{
		GeneratedAt: time.Now().UTC(),
		Model:       s.model,
		Eval:        s.eval,
		Total:       len(results),
		Succeeded:   succeeded,
		Failed:      len(results) - succeeded,
		Results:     results,
	}
}

// StartCheckpoints flushes to path on a fixed interval until StopCheckpoints.
// Intervals without new results skip the write. The final flush stays with
// the caller.
func (s *ResultStore) StartCheckpoints(path string, interval time.Duration) {
	if s.quit != nil || interval <= 0 {
		return
	}
	s.quit = make(chan struct{})
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		last := -1
		for {
			select {
			case <-ticker.C:
				n := s.Len()
				if n == last {
					continue
				}
				if err := s.Flush(path); err != nil {
					s.log.Errorf("Checkpoint flush failed: %v", err)
					continue
				}
				last = n
				s.log.Infof("💾 Checkpoint: %d result(s) -> %s", n, path)
			case <-s.quit:
				return
			}
		}
	}()
}

// StopCheckpoints halts the checkpoint loop and waits for it to exit.
func (s *ResultStore) StopCheckpoints() {
	if s.quit == nil {
		return
	}
	close(s.quit)
	s.wg.Wait()
	s.quit = nil
}

// LoadResultFile reads a previously flushed file back. Round-trip with Flush
// is lossless on content.
func LoadResultFile(path string) (*models.ResultFile, error) {
	var rf models.ResultFile
	if err := utils.ReadJSON(path, &rf); err != nil {
		return nil, fmt.Errorf("load results file: %w", err)
	}
	return &rf, nil
}
