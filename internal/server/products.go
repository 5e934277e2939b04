package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	productdomain "github.com/smallbiznis/tracechain/internal/product/domain"
	"github.com/smallbiznis/tracechain/pkg/db/pagination"
)

type createProductRequest struct {
	Name        string  `json:"name"`
	SKU         string  `json:"sku"`
	Description *string `json:"description"`
}

type addAuthorizedUserRequest struct {
	ActorID string `json:"actor_id"`
}

func (s *Server) CreateProduct(c *gin.Context) {
	by, ok := currentActor(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	var req createProductRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.productSvc.Create(c.Request.Context(), by, productdomain.CreateRequest{
		Name:        strings.TrimSpace(req.Name),
		SKU:         strings.TrimSpace(req.SKU),
		Description: req.Description,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": resp})
}

func (s *Server) ListProducts(c *gin.Context) {
	resp, err := s.productSvc.List(c.Request.Context(), productdomain.ListRequest{
		Pagination: pagination.Parse(c.Query("page"), c.Query("page_size"), productdomain.DefaultPageSize),
		Query:      strings.TrimSpace(c.Query("q")),
		Stage:      strings.TrimSpace(c.Query("stage")),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

// GetProduct returns the product with its steps and the stages the caller may
// record next.
func (s *Server) GetProduct(c *gin.Context) {
	by, _ := currentActor(c)
	id := strings.TrimSpace(c.Param("id"))

	resp, err := s.productSvc.Trace(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	canWrite, err := s.permissions.CanWriteProduct(c.Request.Context(), by.ID, resp.Product.ID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{
		"product":          resp.Product,
		"steps":            resp.Steps,
		"can_write":        canWrite,
		"available_stages": s.permissions.AvailableStages(by.Roles),
	}})
}

func (s *Server) DeleteProduct(c *gin.Context) {
	by, ok := currentActor(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	if err := s.productSvc.Delete(c.Request.Context(), by, strings.TrimSpace(c.Param("id"))); err != nil {
		AbortWithError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (s *Server) AddAuthorizedUser(c *gin.Context) {
	by, ok := currentActor(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	var req addAuthorizedUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	productID := strings.TrimSpace(c.Param("id"))
	if err := s.productSvc.AddAuthorizedUser(c.Request.Context(), by, productID, strings.TrimSpace(req.ActorID)); err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{"product_id": productID, "actor_id": strings.TrimSpace(req.ActorID)}})
}

func (s *Server) ListMyProducts(c *gin.Context) {
	by, ok := currentActor(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	resp, err := s.productSvc.ListForActor(c.Request.Context(), by)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}
