// Package parser turns a raw feed payload into loosely-typed records.
// CSV payloads are keyed by the header row; JSON payloads follow the
// NewsAPI response shape.
package parser

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/seclens/feedbridge/internal/models"
)

// Kind classifies a parse failure.
type Kind int

const (
	KindMalformedPayload Kind = iota
	KindAPIError
)

// String returns a human-readable representation of the failure kind.
func (k Kind) String() string {
	switch k {
	case KindMalformedPayload:
		return "malformed_payload"
	case KindAPIError:
		return "api_error"
	default:
		return "unknown"
	}
}

// Error is a terminal parse failure: the payload cannot be interpreted
// at all. Individual bad rows are dropped and counted instead.
type Error struct {
	Kind   Kind
	Detail string
	Err    error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("parse failed (%s)", e.Kind)
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Parse dispatches on the feed format. It returns the parsed records and
// the number of malformed rows dropped.
func Parse(payload []byte, format string) ([]models.RawRecord, int, error) {
	switch format {
	case "csv":
		return ParseCSV(payload)
	case "json":
		records, err := ParseNewsJSON(payload)
		return records, 0, err
	default:
		return nil, 0, &Error{Kind: KindMalformedPayload, Detail: "unsupported format " + format}
	}
}

// ParseCSV parses a header-row CSV payload. Rows whose field count does
// not match the header are dropped and counted, not fatal. A well-formed
// payload with zero data rows yields an empty slice.
func ParseCSV(payload []byte) ([]models.RawRecord, int, error) {
	r := csv.NewReader(bytes.NewReader(payload))
	r.FieldsPerRecord = -1 // mismatches handled per row

	header, err := r.Read()
	if err != nil {
		return nil, 0, &Error{Kind: KindMalformedPayload, Detail: "missing header row", Err: err}
	}
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}

	records := make([]models.RawRecord, 0)
	dropped := 0
	for {
		row, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			dropped++
			continue
		}
		if len(row) != len(header) {
			dropped++
			continue
		}
		rec := make(models.RawRecord, len(header))
		for i, name := range header {
			rec[name] = row[i]
		}
		records = append(records, rec)
	}

	if dropped > 0 {
		slog.Warn("dropped malformed csv rows", slog.Int("dropped", dropped))
	}
	return records, dropped, nil
}

// newsResponse mirrors the NewsAPI top-headlines response body.
type newsResponse struct {
	Status       string        `json:"status"`
	Code         string        `json:"code"`
	Message      string        `json:"message"`
	TotalResults int           `json:"totalResults"`
	Articles     []newsArticle `json:"articles"`
}

type newsArticle struct {
	Source struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"source"`
	Author      string `json:"author"`
	Title       string `json:"title"`
	Description string `json:"description"`
	URL         string `json:"url"`
	URLToImage  string `json:"urlToImage"`
	PublishedAt string `json:"publishedAt"`
	Content     string `json:"content"`
}

// ParseNewsJSON parses a NewsAPI-shaped JSON payload. A non-ok status is
// an upstream API error, not a feed-format issue. An ok response with no
// articles yields an empty slice.
func ParseNewsJSON(payload []byte) ([]models.RawRecord, error) {
	var resp newsResponse
	if err := json.Unmarshal(payload, &resp); err != nil {
		return nil, &Error{Kind: KindMalformedPayload, Err: err}
	}

	if resp.Status != "ok" {
		detail := resp.Message
		if resp.Code != "" {
			detail = resp.Code + ": " + detail
		}
		return nil, &Error{Kind: KindAPIError, Detail: detail}
	}

	records := make([]models.RawRecord, 0, len(resp.Articles))
	for _, a := range resp.Articles {
		records = append(records, models.RawRecord{
			"source_id":   a.Source.ID,
			"source_name": a.Source.Name,
			"author":      a.Author,
			"title":       a.Title,
			"description": a.Description,
			"url":         a.URL,
			"urlToImage":  a.URLToImage,
			"publishedAt": a.PublishedAt,
			"content":     a.Content,
		})
	}

	slog.Info("parsed articles from feed",
		slog.Int("articles", len(records)),
		slog.Int("total_results", resp.TotalResults))
	return records, nil
}
