package core

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"

	"vqagen/models"
)

func TestLoadRecordsFromDirectory(t *testing.T) {
	// 1. Lay out the ingestion structure: metadata/ plus images/
	root := t.TempDir()
	metaDir := filepath.Join(root, "metadata")
	imgDir := filepath.Join(root, "images")
	assert.NoError(t, os.MkdirAll(metaDir, 0o755))
	assert.NoError(t, os.MkdirAll(imgDir, 0o755))

	writeMeta := func(id, caption, fileName string) {
		meta := map[string]interface{}{
			"caption": caption,
			"metadata": map[string]interface{}{
				"image_file_name":     fileName,
				"image_primary_label": "pneumonia",
				"image_context":       map[string]string{"modality": "xray"},
			},
		}
		data, err := json.Marshal(meta)
		assert.NoError(t, err)
		assert.NoError(t, os.WriteFile(filepath.Join(metaDir, id+".json"), data, 0o644))
	}
	writeMeta("img-002", "CT slice of the abdomen.", "img-002.jpg")
	writeMeta("img-001", "Frontal chest radiograph.", "img-001.jpg")
	writeMeta("img-404", "Metadata without its image.", "img-404.jpg")
	assert.NoError(t, os.WriteFile(filepath.Join(imgDir, "img-001.jpg"), []byte("jpg"), 0o644))
	assert.NoError(t, os.WriteFile(filepath.Join(imgDir, "img-002.jpg"), []byte("jpg"), 0o644))

	// 2. The record whose image is missing gets skipped, the rest load sorted
	records, err := LoadRecords(root, testLogger())
	assert.NoError(t, err)
	assert.Len(t, records, 2)
	assert.Equal(t, "img-001", records[0].ImageID)
	assert.Equal(t, "img-002", records[1].ImageID)
	assert.Equal(t, "Frontal chest radiograph.", records[0].Caption)
	assert.Equal(t, "pneumonia", records[0].PrimaryLabel)
	assert.Equal(t, "xray", records[0].Context["modality"])
	assert.Equal(t, filepath.Join(imgDir, "img-001.jpg"), records[0].ImagePath)
}

func TestLoadRecordsFromFile(t *testing.T) {
	// 1. A flat records file referencing one real and one missing image
	dir := t.TempDir()
	imgPath := filepath.Join(dir, "img-001.jpg")
	assert.NoError(t, os.WriteFile(imgPath, []byte("jpg"), 0o644))

	records := []*models.DatasetRecord{
		{ImageID: "img-001", ImagePath: imgPath, Caption: "Frontal chest radiograph."},
		{ImageID: "img-404", ImagePath: filepath.Join(dir, "gone.jpg"), Caption: "Missing image."},
	}
	data, err := json.Marshal(records)
	assert.NoError(t, err)
	recordsPath := filepath.Join(dir, "records.json")
	assert.NoError(t, os.WriteFile(recordsPath, data, 0o644))

	// 2. Only the resolvable record survives
	loaded, err := LoadRecords(recordsPath, testLogger())
	assert.NoError(t, err)
	assert.Len(t, loaded, 1)
	assert.Equal(t, "img-001", loaded[0].ImageID)
}

func TestLoadRecordsFromWrappedFile(t *testing.T) {
	// The {"records": [...]} wrapper form parses too
	dir := t.TempDir()
	imgPath := filepath.Join(dir, "img-001.jpg")
	assert.NoError(t, os.WriteFile(imgPath, []byte("jpg"), 0o644))

	payload := map[string]interface{}{
		"records": []*models.DatasetRecord{
			{ImageID: "img-001", ImagePath: imgPath},
		},
	}
	data, err := json.Marshal(payload)
	assert.NoError(t, err)
	recordsPath := filepath.Join(dir, "records.json")
	assert.NoError(t, os.WriteFile(recordsPath, data, 0o644))

	loaded, err := LoadRecords(recordsPath, testLogger())
	assert.NoError(t, err)
	assert.Len(t, loaded, 1)
}

func TestLoadRecordsEmptyDataset(t *testing.T) {
	// 1. A missing path is an error
	_, err := LoadRecords(filepath.Join(t.TempDir(), "nope"), testLogger())
	assert.Error(t, err)

	// 2. A dataset where nothing survives filtering is an error too
	root := t.TempDir()
	assert.NoError(t, os.MkdirAll(filepath.Join(root, "metadata"), 0o755))
	assert.NoError(t, os.MkdirAll(filepath.Join(root, "images"), 0o755))
	_, err = LoadRecords(root, testLogger())
	assert.Error(t, err)
}
