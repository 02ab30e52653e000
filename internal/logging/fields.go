package logging

import "log/slog"

// Feed returns a standard attribute naming the feed being processed.
func Feed(name string) slog.Attr {
	return slog.String("feed", name)
}

// RunID returns a standard attribute carrying the batch run identifier.
func RunID(id string) slog.Attr {
	return slog.String("run_id", id)
}

// Stage returns a standard attribute naming the pipeline stage.
func Stage(name string) slog.Attr {
	return slog.String("stage", name)
}
