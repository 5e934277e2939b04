package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// PublicTrace is the unauthenticated tracking view, the target of product QR
// codes.
func (s *Server) PublicTrace(c *gin.Context) {
	resp, err := s.productSvc.Trace(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	steps := make([]gin.H, 0, len(resp.Steps))
	for _, st := range resp.Steps {
		steps = append(steps, gin.H{
			"stage":       st.Stage,
			"stage_label": s.catalog.Label(st.Stage),
			"location":    st.Location,
			"latitude":    st.Latitude,
			"longitude":   st.Longitude,
			"tx_hash":     st.TxHash,
			"created_at":  st.CreatedAt,
		})
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{
		"product": resp.Product,
		"steps":   steps,
	}})
}

func (s *Server) PublicVerify(c *gin.Context) {
	resp, err := s.productSvc.Verify(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) PublicBatch(c *gin.Context) {
	resp, err := s.batchSvc.Get(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}
