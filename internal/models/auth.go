package models

import (
	"net/http"
	"time"

	"golang.org/x/oauth2"
)

// CredentialKind identifies how a credential is presented to the backend
type CredentialKind string

const (
	// CredentialSessionCookie is a short-lived ODOO session identifier (cookie deployments)
	CredentialSessionCookie CredentialKind = "session_cookie"

	// CredentialBearerToken is a long-lived extension token (token deployments)
	CredentialBearerToken CredentialKind = "bearer_token"
)

const (
	// SessionCookieName is the ODOO session cookie
	SessionCookieName = "session_id"

	// SessionHeader carries the session id alongside the cookie
	SessionHeader = "X-Passdoo-Session"
)

// AuthCredential is the opaque secret attached to every backend call
type AuthCredential struct {
	Kind  CredentialKind `json:"kind"`
	Value string         `json:"value"`
}

// NewSessionCookie wraps a session id captured from the login surface
func NewSessionCookie(value string) AuthCredential {
	return AuthCredential{Kind: CredentialSessionCookie, Value: value}
}

// NewBearerToken wraps a token captured from the login callback
func NewBearerToken(value string) AuthCredential {
	return AuthCredential{Kind: CredentialBearerToken, Value: value}
}

// Valid reports whether the credential has a known kind and a value
func (c AuthCredential) Valid() bool {
	if c.Value == "" {
		return false
	}
	return c.Kind == CredentialSessionCookie || c.Kind == CredentialBearerToken
}

// Apply attaches the credential to an outgoing request
func (c AuthCredential) Apply(req *http.Request) {
	switch c.Kind {
	case CredentialBearerToken:
		token := &oauth2.Token{AccessToken: c.Value, TokenType: "Bearer"}
		token.SetAuthHeader(req)
	case CredentialSessionCookie:
		req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: c.Value})
		req.Header.Set(SessionHeader, c.Value)
	}
}

// Redacted returns a log-safe representation of the credential
func (c AuthCredential) Redacted() string {
	if len(c.Value) <= 6 {
		return string(c.Kind) + ":***"
	}
	return string(c.Kind) + ":" + c.Value[:6] + "..."
}

// SessionRecord is the durable marker of a provisionally authenticated user.
// Its presence in storage is the only source of truth for "logged in".
type SessionRecord struct {
	Credential AuthCredential `json:"credential"`
	IssuedAt   time.Time      `json:"issued_at"`
}

// ExpiresLocally reports whether the record has a client-side TTL.
// Bearer tokens are long-lived and validated by the server only.
func (s *SessionRecord) ExpiresLocally() bool {
	return s.Credential.Kind == CredentialSessionCookie
}

// Expired reports whether a locally expiring record is older than timeout
func (s *SessionRecord) Expired(now time.Time, timeout time.Duration) bool {
	if !s.ExpiresLocally() || timeout <= 0 {
		return false
	}
	return now.Sub(s.IssuedAt) > timeout
}
