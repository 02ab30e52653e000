package fetcher_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seclens/feedbridge/internal/config"
	"github.com/seclens/feedbridge/internal/fetcher"
	"github.com/seclens/feedbridge/internal/metrics"
)

func testHTTPConfig() config.HTTPConfig {
	return config.HTTPConfig{
		Timeout:            5 * time.Second,
		MaxRetries:         3,
		BackoffBase:        2 * time.Second,
		RetryAfterFallback: 60 * time.Second,
	}
}

// sleepRecorder captures backoff waits instead of blocking.
type sleepRecorder struct {
	waits []time.Duration
}

func (s *sleepRecorder) sleep(d time.Duration) {
	s.waits = append(s.waits, d)
}

// flakyTransport fails the first n round trips with a timeout-flavored
// error, then delegates to the real transport.
type flakyTransport struct {
	failures int
	next     http.RoundTripper
}

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "dial tcp: i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func (t *flakyTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.failures > 0 {
		t.failures--
		return nil, timeoutErr{}
	}
	return t.next.RoundTrip(req)
}

func TestFetchSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "phish_id,url\n1,http://a.example\n")
	}))
	defer srv.Close()

	f := fetcher.New(testHTTPConfig())
	payload, err := f.Fetch(context.Background(), fetcher.Source{URL: srv.URL})

	require.NoError(t, err)
	assert.Contains(t, string(payload), "phish_id,url")
}

func TestFetchSendsHeadersAndQuery(t *testing.T) {
	var gotKey, gotCountry string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("X-Api-Key")
		gotCountry = r.URL.Query().Get("country")
		fmt.Fprint(w, `{"status":"ok","articles":[]}`)
	}))
	defer srv.Close()

	f := fetcher.New(testHTTPConfig())
	_, err := f.Fetch(context.Background(), fetcher.Source{
		URL:     srv.URL,
		Headers: map[string]string{"X-Api-Key": "secret"},
		Query:   map[string]string{"country": "us"},
	})

	require.NoError(t, err)
	assert.Equal(t, "secret", gotKey)
	assert.Equal(t, "us", gotCountry)
}

func TestFetchRetriesTransientFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "payload")
	}))
	defer srv.Close()

	rec := &sleepRecorder{}
	client := &http.Client{Transport: &flakyTransport{failures: 2, next: http.DefaultTransport}}
	f := fetcher.New(testHTTPConfig(), fetcher.WithClient(client), fetcher.WithSleep(rec.sleep))

	payload, err := f.Fetch(context.Background(), fetcher.Source{URL: srv.URL})

	require.NoError(t, err)
	assert.Equal(t, "payload", string(payload))
	// Exponential backoff: base, then base doubled.
	assert.Equal(t, []time.Duration{2 * time.Second, 4 * time.Second}, rec.waits)
}

func TestFetchGivesUpAfterMaxRetries(t *testing.T) {
	rec := &sleepRecorder{}
	client := &http.Client{Transport: &flakyTransport{failures: 100, next: http.DefaultTransport}}
	f := fetcher.New(testHTTPConfig(), fetcher.WithClient(client), fetcher.WithSleep(rec.sleep))

	_, err := f.Fetch(context.Background(), fetcher.Source{URL: "http://feed.example/data.csv"})

	require.Error(t, err)
	var ferr *fetcher.Error
	require.True(t, errors.As(err, &ferr))
	assert.Equal(t, fetcher.KindTimeout, ferr.Kind)
	assert.Equal(t, 3, ferr.Attempts)
	// maxRetries attempts means maxRetries-1 waits between them.
	assert.Len(t, rec.waits, 2)
}

func TestFetchHonorsRetryAfter(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls <= 2 {
			w.Header().Set("Retry-After", "5")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		fmt.Fprint(w, "payload")
	}))
	defer srv.Close()

	rec := &sleepRecorder{}
	f := fetcher.New(testHTTPConfig(), fetcher.WithSleep(rec.sleep))

	payload, err := f.Fetch(context.Background(), fetcher.Source{URL: srv.URL})

	require.NoError(t, err)
	assert.Equal(t, "payload", string(payload))
	// Retry-After waits do not escalate.
	assert.Equal(t, []time.Duration{5 * time.Second, 5 * time.Second}, rec.waits)
}

func TestFetchRetryAfterHTTPDate(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.Header().Set("Retry-After", time.Now().Add(3*time.Second).UTC().Format(http.TimeFormat))
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		fmt.Fprint(w, "payload")
	}))
	defer srv.Close()

	rec := &sleepRecorder{}
	f := fetcher.New(testHTTPConfig(), fetcher.WithSleep(rec.sleep))

	_, err := f.Fetch(context.Background(), fetcher.Source{URL: srv.URL})

	require.NoError(t, err)
	require.Len(t, rec.waits, 1)
	assert.Greater(t, rec.waits[0], time.Duration(0))
	assert.LessOrEqual(t, rec.waits[0], 3*time.Second)
}

func TestFetchRetryAfterPastDate(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.Header().Set("Retry-After", time.Now().Add(-time.Hour).UTC().Format(http.TimeFormat))
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		fmt.Fprint(w, "payload")
	}))
	defer srv.Close()

	rec := &sleepRecorder{}
	f := fetcher.New(testHTTPConfig(), fetcher.WithSleep(rec.sleep))

	_, err := f.Fetch(context.Background(), fetcher.Source{URL: srv.URL})

	require.NoError(t, err)
	require.Len(t, rec.waits, 1)
	assert.Equal(t, time.Duration(0), rec.waits[0], "an expired date means retry immediately")
}

func TestFetchCountsEveryAttempt(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "payload")
	}))
	defer srv.Close()

	rec := &sleepRecorder{}
	client := &http.Client{Transport: &flakyTransport{failures: 2, next: http.DefaultTransport}}
	f := fetcher.New(testHTTPConfig(), fetcher.WithClient(client), fetcher.WithSleep(rec.sleep))

	before := testutil.ToFloat64(metrics.FetchAttempts)
	_, err := f.Fetch(context.Background(), fetcher.Source{URL: srv.URL})
	require.NoError(t, err)

	// Two failed tries plus the success.
	assert.Equal(t, float64(3), testutil.ToFloat64(metrics.FetchAttempts)-before)
}

func TestFetchRateLimitFallbackWait(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			// No Retry-After header at all.
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		fmt.Fprint(w, "payload")
	}))
	defer srv.Close()

	rec := &sleepRecorder{}
	f := fetcher.New(testHTTPConfig(), fetcher.WithSleep(rec.sleep))

	_, err := f.Fetch(context.Background(), fetcher.Source{URL: srv.URL})

	require.NoError(t, err)
	assert.Equal(t, []time.Duration{60 * time.Second}, rec.waits)
}

func TestFetchPersistentRateLimitIsTerminal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "1")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	rec := &sleepRecorder{}
	f := fetcher.New(testHTTPConfig(), fetcher.WithSleep(rec.sleep))

	_, err := f.Fetch(context.Background(), fetcher.Source{URL: srv.URL})

	var ferr *fetcher.Error
	require.True(t, errors.As(err, &ferr))
	assert.Equal(t, fetcher.KindRateLimited, ferr.Kind)
	assert.Equal(t, http.StatusTooManyRequests, ferr.Status)
}

func TestFetchUnauthorizedIsTerminal(t *testing.T) {
	for _, status := range []int{http.StatusUnauthorized, http.StatusUpgradeRequired} {
		t.Run(http.StatusText(status), func(t *testing.T) {
			calls := 0
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				calls++
				w.WriteHeader(status)
			}))
			defer srv.Close()

			rec := &sleepRecorder{}
			f := fetcher.New(testHTTPConfig(), fetcher.WithSleep(rec.sleep))

			_, err := f.Fetch(context.Background(), fetcher.Source{URL: srv.URL})

			var ferr *fetcher.Error
			require.True(t, errors.As(err, &ferr))
			assert.Equal(t, fetcher.KindUnauthorized, ferr.Kind)
			assert.Equal(t, status, ferr.Status)
			assert.Equal(t, 1, calls, "no retry on auth failures")
			assert.Empty(t, rec.waits)
		})
	}
}

func TestFetchServerErrorIsTerminal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream exploded", http.StatusBadGateway)
	}))
	defer srv.Close()

	rec := &sleepRecorder{}
	f := fetcher.New(testHTTPConfig(), fetcher.WithSleep(rec.sleep))

	_, err := f.Fetch(context.Background(), fetcher.Source{URL: srv.URL})

	var ferr *fetcher.Error
	require.True(t, errors.As(err, &ferr))
	assert.Equal(t, fetcher.KindServer, ferr.Kind)
	assert.Equal(t, http.StatusBadGateway, ferr.Status)
	assert.Contains(t, ferr.Detail, "upstream exploded")
	assert.Empty(t, rec.waits)
}
