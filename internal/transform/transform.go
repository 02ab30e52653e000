// Package transform maps raw feed records onto canonical documents.
// Transformation is a pure function of the record and the supplied clock
// reading, so repeated runs over the same source state converge.
package transform

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/seclens/feedbridge/internal/models"
)

// ConnectorVersion is recorded in every document's etl_metadata block.
const ConnectorVersion = "1.0"

// ErrSkipRecord marks a record that cannot be minimally transformed
// (no usable natural key). The caller counts it and moves on.
var ErrSkipRecord = errors.New("record cannot be transformed")

// Normalizer converts one raw record into a canonical document.
type Normalizer interface {
	// Source names the feed this normalizer handles.
	Source() string
	// Transform builds the canonical document. It never fails for a
	// merely incomplete record; issues are tagged on the document.
	Transform(rec models.RawRecord, now time.Time) (*models.Document, error)
}

// ForSource returns the normalizer for a configured feed name.
func ForSource(name string) (Normalizer, error) {
	switch name {
	case "phishtank":
		return &PhishTankNormalizer{}, nil
	case "newsapi":
		return &NewsAPINormalizer{}, nil
	default:
		return nil, fmt.Errorf("no normalizer for source %q", name)
	}
}

// PhishTankNormalizer handles the PhishTank CSV feed. The natural key is
// the feed-assigned phish_id.
type PhishTankNormalizer struct{}

func (n *PhishTankNormalizer) Source() string { return "phishtank" }

func (n *PhishTankNormalizer) Transform(rec models.RawRecord, now time.Time) (*models.Document, error) {
	phishID := strings.TrimSpace(rec.String("phish_id"))
	if phishID == "" {
		return nil, ErrSkipRecord
	}

	now = now.UTC()
	body := make(map[string]any, len(rec)+4)
	for k, v := range rec {
		if s, ok := v.(string); ok {
			body[k] = strings.TrimSpace(s)
		} else {
			body[k] = v
		}
	}
	body["phish_id"] = phishID

	url := strings.TrimSpace(rec.String("url"))
	var issues []string
	if url == "" {
		issues = append(issues, "missing_url")
	}

	// Submission time arrives as ISO 8601 with a trailing Z. A parse
	// failure is non-fatal; the date fields stay null.
	if raw := strings.TrimSpace(rec.String("submission_time")); raw != "" {
		if ts, err := parseFeedTime(raw); err == nil {
			body["submission_timestamp"] = ts
			body["submission_date"] = ts.Format("2006-01-02")
		} else {
			slog.Warn("could not parse submission time",
				slog.String("phish_id", phishID), slog.String("value", raw))
			body["submission_timestamp"] = nil
			body["submission_date"] = nil
		}
	}

	body["ingestion_timestamp"] = now
	body["data_quality"] = models.DataQuality{
		URLLength: len(url),
		HasURL:    url != "",
	}
	body["etl_metadata"] = models.ETLMetadata{
		IngestionTimestamp: now,
		IngestionDate:      now.Format("2006-01-02"),
		Source:             n.Source(),
		ConnectorVersion:   ConnectorVersion,
		DataType:           "phishing_site",
		Issues:             issues,
	}

	return &models.Document{ID: phishID, Body: body}, nil
}

// NewsAPINormalizer handles the NewsAPI JSON feed. The natural key is the
// article URL; the document ID is its SHA-256 so repeated runs converge
// on the same store entry regardless of URL length or characters.
type NewsAPINormalizer struct{}

func (n *NewsAPINormalizer) Source() string { return "newsapi" }

func (n *NewsAPINormalizer) Transform(rec models.RawRecord, now time.Time) (*models.Document, error) {
	url := strings.TrimSpace(rec.String("url"))
	if url == "" {
		// Without the identifying URL there is no stable key to upsert on.
		return nil, ErrSkipRecord
	}

	now = now.UTC()
	title := strings.TrimSpace(rec.String("title"))
	description := strings.TrimSpace(rec.String("description"))
	content := strings.TrimSpace(rec.String("content"))
	author := strings.TrimSpace(rec.String("author"))
	image := strings.TrimSpace(rec.String("urlToImage"))
	publishedAt := strings.TrimSpace(rec.String("publishedAt"))

	var issues []string
	if title == "" {
		issues = append(issues, "missing_title")
	}
	if description == "" {
		issues = append(issues, "missing_description")
	}

	body := map[string]any{
		"title":        title,
		"description":  description,
		"content":      content,
		"url":          url,
		"url_to_image": image,
		"published_at": publishedAt,
		"author":       author,
		"source": map[string]any{
			"id":   rec.String("source_id"),
			"name": rec.String("source_name"),
		},
	}

	if publishedAt != "" {
		if ts, err := parseFeedTime(publishedAt); err == nil {
			body["published_timestamp"] = ts
			body["published_date"] = ts.Format("2006-01-02")
		} else {
			slog.Warn("could not parse published date",
				slog.String("url", url), slog.String("value", publishedAt))
			body["published_timestamp"] = nil
			body["published_date"] = nil
		}
	}

	body["ingestion_timestamp"] = now
	body["data_quality"] = models.DataQuality{
		TitleLength:       len(title),
		DescriptionLength: len(description),
		ContentLength:     len(content),
		URLLength:         len(url),
		HasURL:            true,
		HasImage:          image != "",
		HasAuthor:         author != "",
		HasDescription:    description != "",
	}
	body["etl_metadata"] = models.ETLMetadata{
		IngestionTimestamp: now,
		IngestionDate:      now.Format("2006-01-02"),
		Source:             n.Source(),
		ConnectorVersion:   ConnectorVersion,
		DataType:           "news_article",
		Issues:             issues,
	}

	return &models.Document{ID: ArticleKey(url), Body: body}, nil
}

// ArticleKey derives the deterministic document ID for an article URL.
func ArticleKey(url string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(url)))
	return hex.EncodeToString(sum[:])
}

// parseFeedTime accepts the timestamp shapes seen in the feeds: RFC 3339
// with a trailing Z or numeric offset, or a bare datetime treated as UTC.
func parseFeedTime(value string) (time.Time, error) {
	if ts, err := time.Parse(time.RFC3339, value); err == nil {
		return ts.UTC(), nil
	}
	if ts, err := time.Parse("2006-01-02T15:04:05", value); err == nil {
		return ts.UTC(), nil
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", value)
}
