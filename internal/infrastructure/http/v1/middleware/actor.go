package middleware

import (
	"github.com/gin-gonic/gin"

	appctx "stockledger/internal/core/context"
)

// Header carrying the acting user. Authentication lives upstream; this
// service trusts the gateway and only records who acted.
const HeaderActorID = "X-Actor-ID"

// Actor middleware lifts the actor identity from the request headers into
// the domain context. Requests without an actor pass through; write
// operations reject them at validation time.
func Actor() gin.HandlerFunc {
	return func(c *gin.Context) {
		actorID := c.GetHeader(HeaderActorID)
		if actorID != "" {
			ctx := appctx.WithUser(c.Request.Context(), &appctx.UserContext{
				UserID: actorID,
			})
			c.Request = c.Request.WithContext(ctx)
			c.Set("actor_id", actorID)
		}
		c.Next()
	}
}
