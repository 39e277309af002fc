package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"spendcast/internal/core"
)

const maxBodyBytes = 1 << 20

// decodeJSON reads a single JSON object into dst, rejecting unknown fields.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return invalidInput(errors.New("request body is empty"))
		}
		return invalidInput(fmt.Errorf("invalid request body: %w", err))
	}
	if dec.More() {
		return invalidInput(errors.New("request body must contain a single JSON object"))
	}
	return nil
}

// parseRange reads the optional from/to query parameters. Both or neither
// must be present.
func parseRange(r *http.Request) (*core.DateRange, error) {
	q := r.URL.Query()
	from := strings.TrimSpace(q.Get("from"))
	to := strings.TrimSpace(q.Get("to"))
	if from == "" && to == "" {
		return nil, nil
	}
	if from == "" || to == "" {
		return nil, fmt.Errorf("%w: from and to must be given together", core.ErrInvalidRange)
	}
	start, err := core.ParseDate(from)
	if err != nil {
		return nil, fmt.Errorf("%w: from: %v", core.ErrInvalidRange, err)
	}
	end, err := core.ParseDate(to)
	if err != nil {
		return nil, fmt.Errorf("%w: to: %v", core.ErrInvalidRange, err)
	}
	rng := core.DateRange{Start: start, End: end}
	if err := rng.Validate(); err != nil {
		return nil, err
	}
	return &rng, nil
}

func parseBool(r *http.Request, name string) (bool, error) {
	v := strings.TrimSpace(r.URL.Query().Get(name))
	if v == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, invalidInput(fmt.Errorf("invalid %s value %q", name, v))
	}
	return b, nil
}
