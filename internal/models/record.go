package models

import "time"

// RawRecord is a single row or item as parsed from a feed, before any
// normalization. Keys come from the CSV header or the JSON field names.
type RawRecord map[string]any

// String returns the named field as a string, or "" when absent or not
// string-typed. Parsers only store strings, so the fallback is rare.
func (r RawRecord) String(key string) string {
	if v, ok := r[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// Document is the canonical record handed to the loader. ID is the
// deterministic natural key and becomes the store document ID; Body is
// the full document as indexed, including metadata blocks.
type Document struct {
	ID   string
	Body map[string]any
}

// DataQuality summarizes completeness of a transformed record.
type DataQuality struct {
	TitleLength       int  `json:"title_length,omitempty"`
	DescriptionLength int  `json:"description_length,omitempty"`
	ContentLength     int  `json:"content_length,omitempty"`
	URLLength         int  `json:"url_length,omitempty"`
	HasURL            bool `json:"has_url"`
	HasImage          bool `json:"has_image,omitempty"`
	HasAuthor         bool `json:"has_author,omitempty"`
	HasDescription    bool `json:"has_description,omitempty"`
}

// ETLMetadata records provenance for a transformed record.
type ETLMetadata struct {
	IngestionTimestamp time.Time `json:"ingestion_timestamp"`
	IngestionDate      string    `json:"ingestion_date"`
	Source             string    `json:"source"`
	ConnectorVersion   string    `json:"connector_version"`
	DataType           string    `json:"data_type"`
	Issues             []string  `json:"data_quality_issues,omitempty"`
}
