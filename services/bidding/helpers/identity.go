package helpers

import (
	"live-bidding/internal/models"

	"github.com/gin-gonic/gin"
)

const actorKey = "actor"

// SetActor stores the verified caller identity on the request context
func SetActor(c *gin.Context, actor models.Actor) {
	c.Set(actorKey, actor)
}

// ActorFromContext returns the identity set by the identity middleware,
// or the zero Actor when the route is not behind it
func ActorFromContext(c *gin.Context) models.Actor {
	if v, ok := c.Get(actorKey); ok {
		if actor, ok := v.(models.Actor); ok {
			return actor
		}
	}
	return models.Actor{}
}
