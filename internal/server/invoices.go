package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	invoicedomain "github.com/smallbiznis/tollgate/internal/invoice/domain"
	taxdomain "github.com/smallbiznis/tollgate/internal/tax/domain"
)

func (s *Server) GenerateInvoice(c *gin.Context) {
	var req invoicedomain.GenerateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	inv, err := s.invoiceSvc.Generate(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, inv)
}

func (s *Server) GetInvoice(c *gin.Context) {
	inv, lines, err := s.invoiceSvc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"invoice": inv, "lines": lines})
}

func (s *Server) IssueInvoice(c *gin.Context) {
	inv, err := s.invoiceSvc.Issue(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	s.obsMetrics.RecordInvoiceIssued(c.Request.Context(), string(inv.Jurisdiction))
	c.JSON(http.StatusOK, inv)
}

func (s *Server) CancelInvoice(c *gin.Context) {
	inv, err := s.invoiceSvc.Cancel(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, inv)
}

// TaxPreview computes the tax split for a subtotal without creating any
// document.
func (s *Server) TaxPreview(c *gin.Context) {
	var req struct {
		Subtotal     int64  `json:"subtotal"`
		Jurisdiction string `json:"jurisdiction"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	breakdown, err := s.taxSvc.Compute(c.Request.Context(), req.Subtotal,
		taxdomain.Jurisdiction(strings.TrimSpace(req.Jurisdiction)))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, breakdown)
}
