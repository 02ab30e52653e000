package parser

import (
	"errors"
	"testing"
)

const phishCSV = `phish_id,url,phish_detail_url,submission_time,verified,verification_time,online,target
8240972,http://badsite.example/login,http://www.phishtank.com/phish_detail.php?phish_id=8240972,2024-01-15T08:30:00+00:00,yes,2024-01-15T09:00:00+00:00,yes,PayPal
8240973,http://evil.example/verify,http://www.phishtank.com/phish_detail.php?phish_id=8240973,2024-01-15T08:45:00+00:00,yes,2024-01-15T09:05:00+00:00,yes,Other
`

func TestParseCSV(t *testing.T) {
	records, dropped, err := ParseCSV([]byte(phishCSV))
	if err != nil {
		t.Fatalf("ParseCSV() error = %v", err)
	}
	if dropped != 0 {
		t.Errorf("dropped = %d, want 0", dropped)
	}
	if len(records) != 2 {
		t.Fatalf("len(records) = %d, want 2", len(records))
	}

	if got := records[0].String("phish_id"); got != "8240972" {
		t.Errorf("phish_id = %q, want %q", got, "8240972")
	}
	if got := records[0].String("target"); got != "PayPal" {
		t.Errorf("target = %q, want %q", got, "PayPal")
	}
	if got := records[1].String("url"); got != "http://evil.example/verify" {
		t.Errorf("url = %q, want %q", got, "http://evil.example/verify")
	}
}

func TestParseCSV_DropsMismatchedRows(t *testing.T) {
	payload := "phish_id,url,target\n" +
		"1,http://a.example,PayPal\n" +
		"2,http://b.example\n" + // one field short
		"3,http://c.example,Other,extra,extra\n" + // too many fields
		"4,http://d.example,Chase\n"

	records, dropped, err := ParseCSV([]byte(payload))
	if err != nil {
		t.Fatalf("ParseCSV() error = %v", err)
	}
	if dropped != 2 {
		t.Errorf("dropped = %d, want 2", dropped)
	}
	if len(records) != 2 {
		t.Fatalf("len(records) = %d, want 2", len(records))
	}
	if got := records[1].String("phish_id"); got != "4" {
		t.Errorf("phish_id = %q, want %q", got, "4")
	}
}

func TestParseCSV_HeaderOnly(t *testing.T) {
	records, dropped, err := ParseCSV([]byte("phish_id,url,target\n"))
	if err != nil {
		t.Fatalf("ParseCSV() error = %v", err)
	}
	if dropped != 0 || len(records) != 0 {
		t.Errorf("got %d records, %d dropped; want 0, 0", len(records), dropped)
	}
}

func TestParseCSV_EmptyPayload(t *testing.T) {
	_, _, err := ParseCSV(nil)
	var perr *Error
	if !errors.As(err, &perr) {
		t.Fatalf("ParseCSV() error = %v, want *Error", err)
	}
	if perr.Kind != KindMalformedPayload {
		t.Errorf("Kind = %v, want KindMalformedPayload", perr.Kind)
	}
}

func TestParseCSV_TrimsHeaderWhitespace(t *testing.T) {
	records, _, err := ParseCSV([]byte("phish_id, url \n1,http://a.example\n"))
	if err != nil {
		t.Fatalf("ParseCSV() error = %v", err)
	}
	if got := records[0].String("url"); got != "http://a.example" {
		t.Errorf("url = %q, want %q", got, "http://a.example")
	}
}

func TestParseNewsJSON(t *testing.T) {
	payload := `{
		"status": "ok",
		"totalResults": 2,
		"articles": [
			{
				"source": {"id": "reuters", "name": "Reuters"},
				"author": "Jane Doe",
				"title": "Markets rally",
				"description": "Stocks climbed on Tuesday.",
				"url": "https://news.example/markets-rally",
				"urlToImage": "https://news.example/img.jpg",
				"publishedAt": "2024-01-15T10:00:00Z",
				"content": "Full text here."
			},
			{
				"source": {"id": "", "name": "Wire"},
				"title": "Untitled",
				"url": "https://news.example/other"
			}
		]
	}`

	records, err := ParseNewsJSON([]byte(payload))
	if err != nil {
		t.Fatalf("ParseNewsJSON() error = %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("len(records) = %d, want 2", len(records))
	}

	first := records[0]
	if got := first.String("source_name"); got != "Reuters" {
		t.Errorf("source_name = %q, want %q", got, "Reuters")
	}
	if got := first.String("url"); got != "https://news.example/markets-rally" {
		t.Errorf("url = %q, want %q", got, "https://news.example/markets-rally")
	}
	if got := first.String("publishedAt"); got != "2024-01-15T10:00:00Z" {
		t.Errorf("publishedAt = %q, want %q", got, "2024-01-15T10:00:00Z")
	}
	if got := records[1].String("author"); got != "" {
		t.Errorf("missing author = %q, want empty", got)
	}
}

func TestParseNewsJSON_APIError(t *testing.T) {
	payload := `{"status":"error","code":"apiKeyInvalid","message":"Your API key is invalid."}`

	_, err := ParseNewsJSON([]byte(payload))
	var perr *Error
	if !errors.As(err, &perr) {
		t.Fatalf("ParseNewsJSON() error = %v, want *Error", err)
	}
	if perr.Kind != KindAPIError {
		t.Errorf("Kind = %v, want KindAPIError", perr.Kind)
	}
	if want := "apiKeyInvalid: Your API key is invalid."; perr.Detail != want {
		t.Errorf("Detail = %q, want %q", perr.Detail, want)
	}
}

func TestParseNewsJSON_Malformed(t *testing.T) {
	_, err := ParseNewsJSON([]byte(`{"status": "ok", "articles": [`))
	var perr *Error
	if !errors.As(err, &perr) {
		t.Fatalf("ParseNewsJSON() error = %v, want *Error", err)
	}
	if perr.Kind != KindMalformedPayload {
		t.Errorf("Kind = %v, want KindMalformedPayload", perr.Kind)
	}
}

func TestParseNewsJSON_NoArticles(t *testing.T) {
	records, err := ParseNewsJSON([]byte(`{"status":"ok","totalResults":0,"articles":[]}`))
	if err != nil {
		t.Fatalf("ParseNewsJSON() error = %v", err)
	}
	if len(records) != 0 {
		t.Errorf("len(records) = %d, want 0", len(records))
	}
}

func TestParse_UnsupportedFormat(t *testing.T) {
	_, _, err := Parse([]byte("whatever"), "xml")
	if err == nil {
		t.Fatal("Parse() should reject unsupported formats")
	}
}
