package server

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/tracechain/internal/actor"
	obscontext "github.com/smallbiznis/tracechain/internal/observability/context"
	"github.com/smallbiznis/tracechain/internal/permission"
)

const bearerPrefix = "bearer "

// ActorRequired authenticates the bearer token and puts the actor on the
// request context.
func (s *Server) ActorRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := strings.TrimSpace(c.GetHeader("Authorization"))
		if len(header) < len(bearerPrefix) || !strings.EqualFold(header[:len(bearerPrefix)], bearerPrefix) {
			AbortWithError(c, actor.ErrMissingToken)
			return
		}

		a, err := s.auth.AuthenticateBearer(header[len(bearerPrefix):])
		if err != nil {
			AbortWithError(c, err)
			return
		}

		ctx := actor.WithActor(c.Request.Context(), a)
		ctx = obscontext.WithActor(ctx, a.ID, a.RoleString())
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

func (s *Server) RequireRole(role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		a, ok := actor.FromContext(c.Request.Context())
		if !ok {
			AbortWithError(c, ErrUnauthorized)
			return
		}
		if !permission.HasRole(a.Roles, role) {
			AbortWithError(c, ErrForbidden)
			return
		}
		c.Next()
	}
}

func currentActor(c *gin.Context) (actor.Actor, bool) {
	return actor.FromContext(c.Request.Context())
}
