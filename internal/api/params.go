package api

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/atmx/wager-engine/internal/apperr"
)

func marketIDParam(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "marketID"), 10, 64)
	if err != nil || id <= 0 {
		return 0, apperr.Validation("invalid_market_id", "market id must be a positive integer")
	}
	return id, nil
}

func queryInt(q url.Values, key string) (int, error) {
	v := strings.TrimSpace(q.Get(key))
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, apperr.Validation("invalid_query", key+" must be an integer")
	}
	return n, nil
}

func queryInt64Ptr(q url.Values, key string) (*int64, error) {
	v := strings.TrimSpace(q.Get(key))
	if v == "" {
		return nil, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return nil, apperr.Validation("invalid_query", key+" must be an integer")
	}
	return &n, nil
}

func queryBoolPtr(q url.Values, key string) (*bool, error) {
	v := strings.TrimSpace(q.Get(key))
	if v == "" {
		return nil, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return nil, apperr.Validation("invalid_query", key+" must be true or false")
	}
	return &b, nil
}

// queryTime accepts RFC 3339 or unix seconds.
func queryTime(q url.Values, key string) (*time.Time, error) {
	v := strings.TrimSpace(q.Get(key))
	if v == "" {
		return nil, nil
	}
	if secs, err := strconv.ParseInt(v, 10, 64); err == nil {
		t := time.Unix(secs, 0).UTC()
		return &t, nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return nil, apperr.Validation("invalid_time", key+" must be RFC 3339 or unix seconds")
	}
	t = t.UTC()
	return &t, nil
}
