package core

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"

	"vqagen/models"
)

const sampleTemplates = `
templates:
  describe: "Describe the finding in this image. Reference caption: {{caption}}"
  differential: "List plausible differentials for a {{primary_label}} finding. Caption: {{caption}}"
eval_templates:
  mcq: "Answer with a single letter. Caption: {{caption}}"
  open_ended: "Answer the question about the {{primary_label}} in the image."
`

func writeTemplates(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "templates.yaml")
	assert.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadTemplates(t *testing.T) {
	store, err := LoadTemplates(writeTemplates(t, sampleTemplates))
	assert.NoError(t, err)

	// Categories come back sorted, per mode
	assert.Equal(t, []string{"describe", "differential"}, store.Categories(false))
	assert.Equal(t, []string{"mcq", "open_ended"}, store.Categories(true))
	assert.True(t, store.Has("describe", false))
	assert.False(t, store.Has("mcq", false))
	assert.True(t, store.Has("mcq", true))
}

func TestLoadTemplatesMissingFile(t *testing.T) {
	_, err := LoadTemplates(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoadTemplatesRejectsEmptyContent(t *testing.T) {
	// 1. A file with no templates at all
	_, err := LoadTemplates(writeTemplates(t, "# nothing here\n"))
	assert.Error(t, err)

	// 2. A blank template body
	_, err = LoadTemplates(writeTemplates(t, "templates:\n  blank: \"  \"\n"))
	assert.Error(t, err)
}

func TestFillReportsAllMissingFields(t *testing.T) {
	store, err := LoadTemplates(writeTemplates(t, sampleTemplates))
	assert.NoError(t, err)

	_, err = store.Fill("differential", false, "img-009", map[string]string{})

	var missing *models.MissingFieldError
	assert.ErrorAs(t, err, &missing)
	assert.Equal(t, "img-009", missing.RecordID)
	assert.Equal(t, "differential", missing.Category)
	assert.Equal(t, []string{"caption", "primary_label"}, missing.Fields)
}

func TestFillUnknownCategory(t *testing.T) {
	store, err := LoadTemplates(writeTemplates(t, sampleTemplates))
	assert.NoError(t, err)

	_, err = store.Fill("nonexistent", false, "img-001", nil)
	assert.Error(t, err)
}

func TestFillKeepsLiteralJSONBraces(t *testing.T) {
	// Prompts often embed a JSON answer schema; single braces must survive
	content := `
templates:
  json_answer: 'Reply as JSON: {"caption": "{{caption}}", "confidence": 0.9}'
`
	store, err := LoadTemplates(writeTemplates(t, content))
	assert.NoError(t, err)

	out, err := store.Fill("json_answer", false, "img-001", map[string]string{"caption": "cardiomegaly"})
	assert.NoError(t, err)
	assert.Equal(t, `Reply as JSON: {"caption": "cardiomegaly", "confidence": 0.9}`, out)
}
