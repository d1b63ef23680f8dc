package core

import (
	"fmt"
	"hash/fnv"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"

	"vqagen/models"
)

// BuildOptions configures request assembly.
type BuildOptions struct {
	// Model is the target model name, stamped into every Request.
	Model string
	// Generation carries the sampling parameters forwarded per call.
	Generation models.GenerationConfig
	// Eval switches category selection from sampling to a fixed per-record
	// variant, and draws from the eval template set.
	Eval bool
	// Category forces one category for every record when set.
	Category string
	// Seed fixes the sampling RNG; 0 seeds from the clock.
	Seed int64
}

// RequestBuilder turns dataset records into immutable Requests. Pure over its
// inputs apart from the category-sampling RNG.
type RequestBuilder struct {
	templates  *TemplateStore
	opts       BuildOptions
	categories []string

	mu  sync.Mutex
	rng *rand.Rand
}

// NewRequestBuilder validates the options against the template store.
func NewRequestBuilder(templates *TemplateStore, opts BuildOptions) (*RequestBuilder, error) {
	if opts.Model == "" {
		return nil, fmt.Errorf("builder: model name is required")
	}
	categories := templates.Categories(opts.Eval)
	if len(categories) == 0 {
		if opts.Eval {
			return nil, fmt.Errorf("builder: template file has no eval_templates")
		}
		return nil, fmt.Errorf("builder: template file has no templates")
	}
	if opts.Category != "" && !templates.Has(opts.Category, opts.Eval) {
		return nil, fmt.Errorf("builder: category %q not found in template file", opts.Category)
	}

	seed := opts.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &RequestBuilder{
		templates:  templates,
		opts:       opts,
		categories: categories,
		rng:        rand.New(rand.NewSource(seed)),
	}, nil
}

// Build fills the chosen template with the record's fields. Missing
// placeholder values fail with *models.MissingFieldError; the caller records
// the failure and moves on, other records are unaffected.
func (b *RequestBuilder) Build(rec *models.DatasetRecord) (*models.Request, error) {
	if err := rec.Validate(); err != nil {
		return nil, err
	}

	category := b.pickCategory(rec)
	prompt, err := b.templates.Fill(category, b.opts.Eval, rec.ImageID, rec.PlaceholderValues())
	if err != nil {
		return nil, err
	}

	return &models.Request{
		ID:             uuid.NewString(),
		ImageID:        rec.ImageID,
		ImagePath:      rec.ImagePath,
		PrimaryLabel:   rec.PrimaryLabel,
		SecondaryLabel: rec.SecondaryLabel,
		Category:       category,
		Prompt:         prompt,
		Model:          b.opts.Model,
		Generation:     b.opts.Generation,
		Eval:           b.opts.Eval,
	}, nil
}

// pickCategory samples in standard mode. Eval mode hashes the record
// identifier over the sorted category list so a given record always gets the
// same question variant, run after run.
func (b *RequestBuilder) pickCategory(rec *models.DatasetRecord) string {
	if b.opts.Category != "" {
		return b.opts.Category
	}
	if b.opts.Eval {
		h := fnv.New32a()
		h.Write([]byte(rec.ImageID))
		return b.categories[int(h.Sum32()%uint32(len(b.categories)))]
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.categories[b.rng.Intn(len(b.categories))]
}
