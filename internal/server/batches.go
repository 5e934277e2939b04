package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	batchdomain "github.com/smallbiznis/tracechain/internal/batch/domain"
	"github.com/smallbiznis/tracechain/pkg/db/pagination"
)

type createBatchRequest struct {
	Name        string   `json:"name"`
	Code        string   `json:"code"`
	Description *string  `json:"description"`
	ProductIDs  []string `json:"product_ids"`
}

type updateBatchProductsRequest struct {
	ProductIDs []string `json:"product_ids"`
}

func (s *Server) CreateBatch(c *gin.Context) {
	by, ok := currentActor(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	var req createBatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.batchSvc.Create(c.Request.Context(), by, batchdomain.CreateRequest{
		Name:        strings.TrimSpace(req.Name),
		Code:        strings.TrimSpace(req.Code),
		Description: req.Description,
		ProductIDs:  req.ProductIDs,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": resp})
}

func (s *Server) ListBatches(c *gin.Context) {
	resp, err := s.batchSvc.List(c.Request.Context(), batchdomain.ListRequest{
		Pagination: pagination.Parse(c.Query("page"), c.Query("page_size"), batchdomain.DefaultPageSize),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GetBatch(c *gin.Context) {
	by, _ := currentActor(c)

	resp, err := s.batchSvc.Get(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{
		"batch":            resp,
		"available_stages": s.permissions.AvailableStages(by.Roles),
	}})
}

func (s *Server) UpdateBatchProducts(c *gin.Context) {
	by, ok := currentActor(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	var req updateBatchProductsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.batchSvc.UpdateProducts(c.Request.Context(), by, strings.TrimSpace(c.Param("id")), req.ProductIDs)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ListAssignableProducts(c *gin.Context) {
	by, ok := currentActor(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	resp, err := s.batchSvc.ListAssignable(c.Request.Context(), by)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}
