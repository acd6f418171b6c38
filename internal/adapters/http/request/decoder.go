// Package request
package request

import (
	"errors"
	"io"
	"net/http"
)

var (
	ErrInvalidBody   = errors.New("invalid request body")
	ErrBodyTooLarge  = errors.New("request body too large")
	DefaultBodyLimit = int64(1 << 20)
)

type BodyReader interface {
	Read(w http.ResponseWriter, r *http.Request) ([]byte, error)
}

// LimitedReader reads the raw body, which webhook signature checks
// need byte for byte.
type LimitedReader struct {
	limit int64
}

func NewLimitedReader(limit int64) BodyReader {
	if limit <= 0 {
		limit = DefaultBodyLimit
	}
	return &LimitedReader{limit: limit}
}

func (d *LimitedReader) Read(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	defer r.Body.Close()

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, d.limit))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, ErrBodyTooLarge
		}
		return nil, ErrInvalidBody
	}

	return body, nil
}
