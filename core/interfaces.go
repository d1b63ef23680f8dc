package core

import (
	"context"

	"vqagen/models"
)

// ModelCaller is the outbound model boundary the dispatcher depends on.
// Implementations return classified *models.APIError values so dispatch
// decisions never touch provider-specific detail.
type ModelCaller interface {
	Generate(ctx context.Context, key string, req *models.Request) (*models.CallOutput, error)
}
