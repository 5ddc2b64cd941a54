// ABOUTME: Request-context propagation of the authenticated subject
// ABOUTME: Provides WithSubject/SubjectFromContext for downstream handlers

package auth

import (
	"context"
)

// subjectKey is the key type for storing the subject in context.Context.
type subjectKey struct{}

// WithSubject returns a new context with the authenticated subject attached.
func WithSubject(ctx context.Context, subject string) context.Context {
	return context.WithValue(ctx, subjectKey{}, subject)
}

// SubjectFromContext retrieves the authenticated subject from the context,
// returning the empty string if the request carried no verified token.
func SubjectFromContext(ctx context.Context) string {
	subject, _ := ctx.Value(subjectKey{}).(string)
	return subject
}
