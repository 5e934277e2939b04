package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func (s *Server) ListStages(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"data": s.catalog.All()})
}

// ListMyStages returns the stages the caller's roles may record.
func (s *Server) ListMyStages(c *gin.Context) {
	by, ok := currentActor(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": s.permissions.AvailableStages(by.Roles)})
}
