// Package oauthstate produces and checks the opaque state value that ties an
// OAuth2 authorization redirect back to the request that started it.
package oauthstate
