package port

import "context"

// Credentials identify the Supabase project a request targets. They arrive
// per request (HTTP headers) or from the environment (stdio).
type Credentials struct {
	AccessToken string
	ProjectRef  string
}

type credentialsKey struct{}

// WithCredentials returns a context carrying c.
func WithCredentials(ctx context.Context, c Credentials) context.Context {
	return context.WithValue(ctx, credentialsKey{}, c)
}

// CredentialsFromContext returns the credentials stored by WithCredentials.
func CredentialsFromContext(ctx context.Context) (Credentials, bool) {
	c, ok := ctx.Value(credentialsKey{}).(Credentials)
	return c, ok
}
