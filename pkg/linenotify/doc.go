// Package linenotify provides a typed client for the LINE Notify HTTP API.
// It wraps the OAuth2 authorization-code exchange and the notify, status, and
// revoke endpoints, returning the service's in-band status/message pairs as
// ordinary results. The Client takes the bearer token explicitly on every
// call; Session layers a cached token on top for callers that prefer it.
package linenotify
