package core

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"

	"vqagen/models"
)

// LoadRecords reads dataset records either from a directory in the ingestion
// layout (metadata/*.json plus an images/ directory) or from a flat JSON
// records file. Unusable records are skipped with a warning; only an empty
// result is fatal.
func LoadRecords(path string, log *logrus.Logger) ([]*models.DatasetRecord, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("dataset path %q: %w", path, err)
	}
	if info.IsDir() {
		return loadRecordsDir(path, log)
	}
	return loadRecordsFile(path, log)
}

func loadRecordsDir(root string, log *logrus.Logger) ([]*models.DatasetRecord, error) {
	metaDir := filepath.Join(root, "metadata")
	imagesDir := filepath.Join(root, "images")

	entries, err := os.ReadDir(metaDir)
	if err != nil {
		return nil, fmt.Errorf("read metadata dir %q: %w", metaDir, err)
	}

	var records []*models.DatasetRecord
	skipped := 0
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		p := filepath.Join(metaDir, e.Name())
		data, err := os.ReadFile(p)
		if err != nil {
			log.Warnf("Skipping %s: %v", p, err)
			skipped++
			continue
		}
		var mf models.MetadataFile
		if err := json.Unmarshal(data, &mf); err != nil {
			log.Warnf("Skipping %s: %v", p, err)
			skipped++
			continue
		}

		imageID := strings.TrimSuffix(e.Name(), ".json")
		imageName := mf.Metadata.ImageFileName
		if imageName == "" {
			log.Warnf("Skipping %s: metadata has no image_file_name", imageID)
			skipped++
			continue
		}
		imagePath := filepath.Join(imagesDir, imageName)
		if _, err := os.Stat(imagePath); err != nil {
			log.Warnf("Skipping %s: image %s not found", imageID, imagePath)
			skipped++
			continue
		}
		records = append(records, mf.ToRecord(imageID, imagePath))
	}

	if len(records) == 0 {
		return nil, fmt.Errorf("dataset %q: no usable records (%d skipped)", root, skipped)
	}
	if skipped > 0 {
		log.Warnf("Dataset: %d unusable record(s) skipped", skipped)
	}
	// Deterministic order regardless of directory listing.
	sort.Slice(records, func(i, j int) bool { return records[i].ImageID < records[j].ImageID })
	return records, nil
}

func loadRecordsFile(path string, log *logrus.Logger) ([]*models.DatasetRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read records file %q: %w", path, err)
	}

	var records []*models.DatasetRecord
	if err := json.Unmarshal(data, &records); err != nil {
		var wrapper struct {
			Records []*models.DatasetRecord `json:"records"`
		}
		if err2 := json.Unmarshal(data, &wrapper); err2 != nil || wrapper.Records == nil {
			return nil, fmt.Errorf("parse records file %q: %w", path, err)
		}
		records = wrapper.Records
	}

	usable := records[:0]
	skipped := 0
	for _, rec := range records {
		if err := rec.Validate(); err != nil {
			log.Warnf("Skipping record: %v", err)
			skipped++
			continue
		}
		if _, err := os.Stat(rec.ImagePath); err != nil {
			log.Warnf("Skipping %s: image %s not found", rec.ImageID, rec.ImagePath)
			skipped++
			continue
		}
		usable = append(usable, rec)
	}

	if len(usable) == 0 {
		return nil, fmt.Errorf("records file %q: no usable records (%d skipped)", path, skipped)
	}
	if skipped > 0 {
		log.Warnf("Dataset: %d unusable record(s) skipped", skipped)
	}
	return usable, nil
}
