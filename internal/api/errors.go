package api

import (
	"context"
	"errors"
	"net/http"

	"google.golang.org/grpc/codes"

	"quantick/internal/series"
	"quantick/internal/store"
	"quantick/internal/strategy"
)

// errBadBody marks a request body that could not be decoded.
var errBadBody = errors.New("malformed request body")

// classify maps service errors to an HTTP status and a gRPC code.
func classify(err error) (int, codes.Code) {
	switch {
	case errors.Is(err, store.ErrRunNotFound), errors.Is(err, series.ErrNoData):
		return http.StatusNotFound, codes.NotFound
	case errors.Is(err, strategy.ErrUnknownStrategy),
		errors.Is(err, strategy.ErrInvalidRequest),
		errors.Is(err, errBadBody):
		return http.StatusBadRequest, codes.InvalidArgument
	case errors.Is(err, ErrUnavailable):
		return http.StatusNotImplemented, codes.Unimplemented
	case errors.Is(err, context.Canceled):
		return http.StatusServiceUnavailable, codes.Canceled
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, codes.DeadlineExceeded
	default:
		return http.StatusInternalServerError, codes.Internal
	}
}
