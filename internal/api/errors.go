package api

import (
	"errors"
	"net/http"

	"github.com/samcharles93/logtrains/internal/assets"
	"github.com/samcharles93/logtrains/internal/inference"
)

var ErrInvalidRequest = errors.New("invalid_request")

type invalidRequestError struct {
	msg string
}

func (e invalidRequestError) Error() string {
	return e.msg
}

func (e invalidRequestError) Unwrap() error {
	return ErrInvalidRequest
}

func newInvalidRequest(msg string) error {
	return invalidRequestError{msg: msg}
}

// classify maps an error to an HTTP status and an error type string.
func classify(err error) (int, string) {
	switch {
	case errors.Is(err, ErrInvalidRequest):
		return http.StatusBadRequest, "invalid_request_error"
	case errors.Is(err, inference.ErrConfig):
		return http.StatusBadRequest, "config_error"
	case errors.Is(err, inference.ErrTokenization):
		return http.StatusBadRequest, "tokenization_error"
	case errors.Is(err, inference.ErrEngineBusy):
		return http.StatusTooManyRequests, "engine_busy"
	case errors.Is(err, assets.ErrAssetResolution):
		return http.StatusServiceUnavailable, "asset_error"
	default:
		return http.StatusInternalServerError, "server_error"
	}
}
