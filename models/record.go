package models

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// DatasetRecord is one image plus the metadata available for prompt filling.
type DatasetRecord struct {
	ImageID        string            `json:"image_id"`
	ImagePath      string            `json:"image_path"`
	Caption        string            `json:"caption,omitempty"`
	PrimaryLabel   string            `json:"image_primary_label,omitempty"`
	SecondaryLabel string            `json:"image_secondary_label,omitempty"`
	Context        map[string]string `json:"context,omitempty"`
}

// Validate checks the fields every record must carry.
func (r *DatasetRecord) Validate() error {
	if r.ImageID == "" {
		return errors.New("record: image_id is required")
	}
	if r.ImagePath == "" {
		return fmt.Errorf("record %q: image_path is required", r.ImageID)
	}
	return nil
}

// PlaceholderValues flattens the record into the map consumed by prompt
// templates. Empty values are treated as absent so template filling can
// report them as missing. Named fields shadow context entries. An
// "image_context" value joining every context entry is synthesized when the
// map does not carry one itself, so templates can reference the full context
// block without knowing the individual keys.
func (r *DatasetRecord) PlaceholderValues() map[string]string {
	vals := make(map[string]string, len(r.Context)+6)
	keys := make([]string, 0, len(r.Context))
	for k, v := range r.Context {
		if v == "" {
			continue
		}
		vals[k] = v
		keys = append(keys, k)
	}
	if _, ok := vals["image_context"]; !ok && len(keys) > 0 {
		sort.Strings(keys)
		parts := make([]string, len(keys))
		for i, k := range keys {
			parts[i] = vals[k]
		}
		vals["image_context"] = strings.Join(parts, "\n")
	}
	vals["image_id"] = r.ImageID
	if r.Caption != "" {
		vals["caption"] = r.Caption
	}
	if r.PrimaryLabel != "" {
		vals["primary_label"] = r.PrimaryLabel
	}
	if r.SecondaryLabel != "" {
		vals["secondary_label"] = r.SecondaryLabel
	}
	return vals
}

// MetadataFile mirrors the per-image metadata JSON produced by the ingestion
// pipeline: a caption plus a nested metadata block.
type MetadataFile struct {
	Caption  string `json:"caption"`
	Metadata struct {
		ImageContext   map[string]string `json:"image_context"`
		ImageHash      string            `json:"image_hash"`
		ImageFileName  string            `json:"image_file_name"`
		PrimaryLabel   string            `json:"image_primary_label"`
		SecondaryLabel string            `json:"image_secondary_label"`
	} `json:"metadata"`
}

// ToRecord converts a parsed metadata file into a DatasetRecord.
func (m *MetadataFile) ToRecord(imageID, imagePath string) *DatasetRecord {
	return &DatasetRecord{
		ImageID:        imageID,
		ImagePath:      imagePath,
		Caption:        m.Caption,
		PrimaryLabel:   m.Metadata.PrimaryLabel,
		SecondaryLabel: m.Metadata.SecondaryLabel,
		Context:        m.Metadata.ImageContext,
	}
}
