package remote

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strconv"
	"time"
)

// retryBackoff is the delay before the second attempt; it doubles after that
// up to maxRetryBackoff.
var retryBackoff = time.Second

const maxRetryBackoff = 30 * time.Second

// retryDo sends req up to maxAttempts times. Transport errors, 429 and 5xx
// responses are retried; anything else is returned as is, and so is the
// response of the final attempt. A Retry-After header given in seconds
// replaces the computed delay when it is not longer than maxRetryBackoff.
// The request body is replayed on each attempt.
func retryDo(ctx context.Context, client *http.Client, req *http.Request, maxAttempts int) (*http.Response, error) {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	rewind, err := rewindableBody(req)
	if err != nil {
		return nil, err
	}

	var lastErr error
	delay := retryBackoff
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if attempt > 1 {
			if err := sleepCtx(ctx, delay); err != nil {
				return nil, err
			}
			delay = min(delay*2, maxRetryBackoff)
		}
		if err := rewind(); err != nil {
			return nil, err
		}

		resp, err := client.Do(req)
		if err != nil {
			lastErr = err
			continue
		}
		if attempt == maxAttempts || !isRetryableStatus(resp.StatusCode) {
			return resp, nil
		}
		if wait, ok := retryAfter(resp); ok {
			delay = wait
		}
		_, _ = io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}
	return nil, lastErr
}

// rewindableBody buffers req's body once and returns a func that resets it
// before each attempt.
func rewindableBody(req *http.Request) (func() error, error) {
	if req.Body == nil || req.Body == http.NoBody {
		return func() error { return nil }, nil
	}
	data, err := io.ReadAll(req.Body)
	req.Body.Close()
	if err != nil {
		return nil, err
	}
	return func() error {
		req.Body = io.NopCloser(bytes.NewReader(data))
		req.ContentLength = int64(len(data))
		return nil
	}, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func retryAfter(resp *http.Response) (time.Duration, bool) {
	secs, err := strconv.Atoi(resp.Header.Get("Retry-After"))
	if err != nil || secs < 0 {
		return 0, false
	}
	d := time.Duration(secs) * time.Second
	if d > maxRetryBackoff {
		return 0, false
	}
	return d, true
}

func isRetryableStatus(status int) bool {
	return status == http.StatusTooManyRequests || status >= 500
}
