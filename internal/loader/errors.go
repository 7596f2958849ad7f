package loader

import (
	"errors"
	"fmt"
)

// NetworkError marks a fetch that failed in transport or timed out.
type NetworkError struct {
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network error: %v", e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// UpstreamError marks an explicit error payload returned by the data source.
type UpstreamError struct {
	StatusCode int
	Message    string
}

func (e *UpstreamError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("upstream error (status %d): %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("upstream error: %s", e.Message)
}

// classify converts a raw fetch error into the loader taxonomy and attaches
// the request context. Errors already typed by the source pass through.
func classify(err error, req LoadRequest) error {
	var ne *NetworkError
	var ue *UpstreamError
	if !errors.As(err, &ne) && !errors.As(err, &ue) {
		err = &NetworkError{Err: err}
	}
	return fmt.Errorf("fetch %s %s %s to %s: %w",
		req.Ticker, req.Timeframe,
		req.Start.Format("2006-01-02"), req.End.Format("2006-01-02"), err)
}
