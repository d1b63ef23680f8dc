package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSuccessAndFailureResults(t *testing.T) {
	req := &Request{
		ID:        "req-1",
		ImageID:   "img-1",
		ImagePath: "/data/images/img-1.jpg",
		Category:  "describe",
		Prompt:    "Describe the image.",
		Model:     "gemini-2.0-flash",
	}

	ok := SuccessResult(req, &CallOutput{Text: "A normal chest radiograph.", Usage: &TokenUsage{TotalTokens: 9}}, 2)
	assert.True(t, ok.Succeeded())
	assert.Equal(t, "req-1", ok.RequestID)
	assert.Equal(t, "A normal chest radiograph.", ok.Response)
	assert.Equal(t, 2, ok.Attempts)
	assert.False(t, ok.CompletedAt.IsZero())

	fail := FailureResult(req, NewAPIError(ErrKindTimeout, 0, "deadline exceeded"), 3)
	assert.False(t, fail.Succeeded())
	assert.Equal(t, ErrKindTimeout, fail.ErrorKind)
	assert.Contains(t, fail.ErrorDetail, "deadline exceeded")
}

func TestBuildFailureResult(t *testing.T) {
	rec := &DatasetRecord{ImageID: "img-1", ImagePath: "/data/images/img-1.jpg"}
	err := &MissingFieldError{RecordID: "img-1", Category: "describe", Fields: []string{"caption"}}

	res := BuildFailureResult(rec, "gemini-2.0-flash", err)
	assert.Equal(t, StatusFailure, res.Status)
	assert.Equal(t, ErrKindMissingField, res.ErrorKind)
	assert.Equal(t, "describe", res.Category, "category comes from the failed template")
	assert.Equal(t, "img-1", res.ImageID)
	assert.NotEmpty(t, res.RequestID)
}
