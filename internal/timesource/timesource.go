// Package timesource supplies the single authoritative "now" every
// time-dependent component reads, so two panels never disagree by more
// than the tick granularity.
package timesource

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// Clock yields the current authoritative instant.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// System returns a clock backed by the local wall clock.
func System() Clock { return systemClock{} }

// Fixed returns a clock pinned to one instant, for tests.
func Fixed(t time.Time) Clock { return fixedClock{t} }

type fixedClock struct{ t time.Time }

func (f fixedClock) Now() time.Time { return f.t }

// skewedClock is the local clock corrected by a constant skew measured
// against an external authority.
type skewedClock struct {
	base Clock
	skew time.Duration
}

func (s skewedClock) Now() time.Time { return s.base.Now().Add(s.skew) }

// WithSkew wraps a clock with a constant correction.
func WithSkew(base Clock, skew time.Duration) Clock {
	if skew == 0 {
		return base
	}
	return skewedClock{base: base, skew: skew}
}

// authorityResponse accepts the common shapes time APIs return: either an
// RFC3339 datetime field or a unix-seconds field.
type authorityResponse struct {
	UTCDatetime string `json:"utc_datetime"`
	DateTime    string `json:"datetime"`
	UnixTime    int64  `json:"unixtime"`
}

func (r authorityResponse) instant() (time.Time, error) {
	for _, s := range []string{r.UTCDatetime, r.DateTime} {
		if s == "" {
			continue
		}
		if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
			return t, nil
		}
	}
	if r.UnixTime > 0 {
		return time.Unix(r.UnixTime, 0), nil
	}
	return time.Time{}, fmt.Errorf("no usable time field in authority response")
}

// Sync performs the one-shot startup resynchronization against a time
// authority. Any failure (no URL, timeout, bad payload) falls back to the
// given base clock; resync is best effort and never surfaces an error.
func Sync(ctx context.Context, base Clock, url string, timeout time.Duration, logger *slog.Logger) Clock {
	if url == "" {
		return base
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	before := base.Now()
	authority, err := fetchAuthority(ctx, url)
	if err != nil {
		logger.Warn("time authority unreachable, using local clock", "url", url, "error", err)
		return base
	}
	after := base.Now()

	// Split the round trip in half, the usual NTP-style approximation.
	midpoint := before.Add(after.Sub(before) / 2)
	skew := authority.Sub(midpoint)

	logger.Info("clock synchronized against time authority",
		"url", url,
		"skew_ms", skew.Milliseconds(),
		"rtt_ms", after.Sub(before).Milliseconds(),
	)
	return WithSkew(base, skew)
}

func fetchAuthority(ctx context.Context, url string) (time.Time, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return time.Time{}, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return time.Time{}, fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return time.Time{}, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	var body authorityResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return time.Time{}, fmt.Errorf("decoding response: %w", err)
	}
	return body.instant()
}
