// Package context carries log correlation identifiers across call boundaries.
package context

import "context"

type key int

const (
	requestIDKey key = iota
	submissionIDKey
)

// WithRequestID stores the inbound request id for log correlation.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return withString(ctx, requestIDKey, requestID)
}

func RequestIDFromContext(ctx context.Context) string {
	return stringFrom(ctx, requestIDKey)
}

// WithSubmissionID marks ctx as working on one submission so that query and
// request logs can be joined to its population run.
func WithSubmissionID(ctx context.Context, submissionID string) context.Context {
	return withString(ctx, submissionIDKey, submissionID)
}

func SubmissionIDFromContext(ctx context.Context) string {
	return stringFrom(ctx, submissionIDKey)
}

func withString(ctx context.Context, k key, value string) context.Context {
	if value == "" {
		return ctx
	}
	return context.WithValue(ctx, k, value)
}

func stringFrom(ctx context.Context, k key) string {
	if ctx == nil {
		return ""
	}
	value, _ := ctx.Value(k).(string)
	return value
}
