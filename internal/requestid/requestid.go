// Package requestid carries request ids from HTTP handlers to queued jobs.
package requestid

import (
	"context"
	"regexp"

	"github.com/google/uuid"
)

// Header is the HTTP header that carries the request id.
const Header = "X-Request-ID"

// LocalsKey is the fiber locals key the id is stored under.
const LocalsKey = "request_id"

var validID = regexp.MustCompile(`^[A-Za-z0-9._:-]{1,128}$`)

type ctxKey struct{}

// WithRequestID returns a context with the given request ID.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

// FromContext extracts the request ID from context, or "" if there is none.
func FromContext(ctx context.Context) string {
	if id, ok := ctx.Value(ctxKey{}).(string); ok {
		return id
	}
	return ""
}

// New generates a fresh request ID.
func New() string {
	return uuid.New().String()
}

// Resolve returns incoming when it is a usable id supplied by the caller,
// otherwise a fresh one.
func Resolve(incoming string) string {
	if validID.MatchString(incoming) {
		return incoming
	}
	return New()
}
