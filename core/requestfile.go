package core

import (
	"fmt"
	"time"

	"vqagen/core/utils"
	"vqagen/models"
)

// WriteRequestFile serializes a built request batch for a later run command.
func WriteRequestFile(path string, reqs []*models.Request, model string, eval bool) error {
	rf := &models.RequestFile{
		GeneratedAt:   time.Now().UTC(),
		Model:         model,
		Eval:          eval,
		TotalRequests: len(reqs),
		Requests:      reqs,
	}
	return utils.WriteJSONAtomic(path, rf)
}

// LoadRequestFile reads a batch written by WriteRequestFile.
func LoadRequestFile(path string) (*models.RequestFile, error) {
	var rf models.RequestFile
	if err := utils.ReadJSON(path, &rf); err != nil {
		return nil, fmt.Errorf("load requests file: %w", err)
	}
	if len(rf.Requests) == 0 {
		return nil, fmt.Errorf("requests file %q contains no requests", path)
	}
	for i, req := range rf.Requests {
		if req == nil || req.ID == "" || req.ImagePath == "" {
			return nil, fmt.Errorf("requests file %q: entry %d is missing request_id or image_path", path, i)
		}
	}
	return &rf, nil
}
