package models

import "time"

// GenerationConfig carries the sampling parameters forwarded to the model.
type GenerationConfig struct {
	Temperature     *float64 `json:"temperature,omitempty" yaml:"temperature"`
	TopP            *float64 `json:"top_p,omitempty" yaml:"top_p"`
	TopK            *int     `json:"top_k,omitempty" yaml:"top_k"`
	MaxOutputTokens int      `json:"max_output_tokens,omitempty" yaml:"max_output_tokens"`
}

// Request is one unit of work: a filled prompt bound to an image and a model.
// Immutable once built.
type Request struct {
	ID             string           `json:"request_id"`
	ImageID        string           `json:"image_id"`
	ImagePath      string           `json:"image_path"`
	PrimaryLabel   string           `json:"image_primary_label,omitempty"`
	SecondaryLabel string           `json:"image_secondary_label,omitempty"`
	Category       string           `json:"category"`
	Prompt         string           `json:"prompt"`
	Model          string           `json:"model_name"`
	Generation     GenerationConfig `json:"generation_config"`
	Eval           bool             `json:"is_eval,omitempty"`
}

// RequestFile is the serialized form of a built request batch.
type RequestFile struct {
	GeneratedAt   time.Time  `json:"generated_at"`
	Model         string     `json:"model"`
	Eval          bool       `json:"eval"`
	TotalRequests int        `json:"total_requests"`
	Requests      []*Request `json:"requests"`
}
