package models

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// ResultStatus marks a Result as success or failure.
type ResultStatus string

const (
	StatusSuccess ResultStatus = "success"
	StatusFailure ResultStatus = "failure"
)

// TokenUsage mirrors the usage metadata reported by the API.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens,omitempty"`
	CompletionTokens int `json:"completion_tokens,omitempty"`
	TotalTokens      int `json:"total_tokens,omitempty"`
}

// CallOutput is the successful payload of one model call.
type CallOutput struct {
	Text         string
	FinishReason string
	Usage        *TokenUsage
}

// Result is the terminal outcome of one Request. Exactly one Result exists
// per submitted Request.
type Result struct {
	RequestID      string       `json:"request_id"`
	ImageID        string       `json:"image_id"`
	ImagePath      string       `json:"image_path"`
	PrimaryLabel   string       `json:"image_primary_label,omitempty"`
	SecondaryLabel string       `json:"image_secondary_label,omitempty"`
	Category       string       `json:"category,omitempty"`
	Prompt         string       `json:"prompt"`
	Model          string       `json:"model_name"`
	Status         ResultStatus `json:"status"`
	Response       string       `json:"api_response,omitempty"`
	ErrorDetail    string       `json:"error,omitempty"`
	ErrorKind      ErrorKind    `json:"error_kind,omitempty"`
	Attempts       int          `json:"attempts,omitempty"`
	Usage          *TokenUsage  `json:"usage,omitempty"`
	CompletedAt    time.Time    `json:"completed_at"`
}

// Succeeded reports whether the Result carries a model response.
func (r *Result) Succeeded() bool {
	return r.Status == StatusSuccess
}

// SuccessResult binds a model response to its Request.
func SuccessResult(req *Request, out *CallOutput, attempts int) *Result {
	res := newResult(req, attempts)
	res.Status = StatusSuccess
	res.Response = out.Text
	res.Usage = out.Usage
	return res
}

// FailureResult binds a terminal error to its Request.
func FailureResult(req *Request, err error, attempts int) *Result {
	res := newResult(req, attempts)
	res.Status = StatusFailure
	res.ErrorDetail = err.Error()
	res.ErrorKind = KindOf(err)
	return res
}

// BuildFailureResult records a record whose Request never got built, keeping
// the one-result-per-record accounting intact.
func BuildFailureResult(rec *DatasetRecord, model string, err error) *Result {
	res := &Result{
		RequestID:      uuid.NewString(),
		ImageID:        rec.ImageID,
		ImagePath:      rec.ImagePath,
		PrimaryLabel:   rec.PrimaryLabel,
		SecondaryLabel: rec.SecondaryLabel,
		Model:          model,
		Status:         StatusFailure,
		ErrorDetail:    err.Error(),
		ErrorKind:      KindOf(err),
		CompletedAt:    time.Now().UTC(),
	}
	var missing *MissingFieldError
	if errors.As(err, &missing) {
		res.Category = missing.Category
	}
	return res
}

func newResult(req *Request, attempts int) *Result {
	return &Result{
		RequestID:      req.ID,
		ImageID:        req.ImageID,
		ImagePath:      req.ImagePath,
		PrimaryLabel:   req.PrimaryLabel,
		SecondaryLabel: req.SecondaryLabel,
		Category:       req.Category,
		Prompt:         req.Prompt,
		Model:          req.Model,
		Attempts:       attempts,
		CompletedAt:    time.Now().UTC(),
	}
}

// ResultFile is the serialized output collection, one entry per input record.
type ResultFile struct {
	GeneratedAt time.Time `json:"generated_at"`
	Model       string    `json:"model"`
	Eval        bool      `json:"eval"`
	Total       int       `json:"total"`
	Succeeded   int       `json:"succeeded"`
	Failed      int       `json:"failed"`
	Results     []*Result `json:"results"`
}
