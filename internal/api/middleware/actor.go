package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const actorContextKey = "actor_id"

// Actor extracts the X-Actor-ID header into the request context. The
// header carries the identity the upstream gateway authenticated; stage
// event audit rows attribute transitions to it.
func Actor() gin.HandlerFunc {
	return func(c *gin.Context) {
		if raw := c.GetHeader("X-Actor-ID"); raw != "" {
			if id, err := uuid.Parse(raw); err == nil {
				c.Set(actorContextKey, id)
			}
		}
		c.Next()
	}
}

// ActorFrom returns the authenticated actor id, or nil when the request
// carried none.
func ActorFrom(c *gin.Context) *uuid.UUID {
	v, ok := c.Get(actorContextKey)
	if !ok {
		return nil
	}
	id, ok := v.(uuid.UUID)
	if !ok {
		return nil
	}
	return &id
}
