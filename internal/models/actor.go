package models

import "github.com/golang-jwt/jwt/v5"

// ActorClaims is the token payload issued by the identity provider. The actor
// is an opaque identity string stamped on revisions, suggestions, comments and
// workflow events.
type ActorClaims struct {
	Actor string `json:"actor,omitempty"`
	jwt.RegisteredClaims
}

// Identity returns the explicit actor claim, falling back to the subject.
func (c *ActorClaims) Identity() string {
	if c == nil {
		return ""
	}
	if c.Actor != "" {
		return c.Actor
	}
	return c.Subject
}
