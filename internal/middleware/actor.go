package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	appErrors "github.com/noah-isme/report-revision-api/pkg/errors"
	"github.com/noah-isme/report-revision-api/pkg/response"
)

const (
	// ContextActorKey is the gin context key storing the resolved actor.
	ContextActorKey = "actor"
	// ActorHeader carries the actor when a trusted gateway has authenticated the caller.
	ActorHeader = "X-Actor-ID"
)

type tokenResolver interface {
	ResolveToken(token string) (string, error)
}

// Actor requires every request to carry an identity. A bearer token is always
// accepted; the X-Actor-ID header only when trustHeader is set.
func Actor(resolver tokenResolver, trustHeader bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		if header := c.GetHeader("Authorization"); header != "" {
			parts := strings.SplitN(header, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
				response.Abort(c, appErrors.Clone(appErrors.ErrUnauthorized, "invalid authorization header"))
				return
			}
			if resolver == nil {
				response.Abort(c, appErrors.Clone(appErrors.ErrUnauthorized, "token authentication is not configured"))
				return
			}
			actor, err := resolver.ResolveToken(strings.TrimSpace(parts[1]))
			if err != nil {
				response.Abort(c, err)
				return
			}
			c.Set(ContextActorKey, actor)
			c.Next()
			return
		}

		if trustHeader {
			if actor := strings.TrimSpace(c.GetHeader(ActorHeader)); actor != "" {
				c.Set(ContextActorKey, actor)
				c.Next()
				return
			}
		}

		response.Abort(c, appErrors.ErrUnauthorized)
	}
}

// ActorFromContext returns the identity set by Actor, or "".
func ActorFromContext(c *gin.Context) string {
	if c == nil {
		return ""
	}
	value, exists := c.Get(ContextActorKey)
	if !exists {
		return ""
	}
	actor, _ := value.(string)
	return actor
}
