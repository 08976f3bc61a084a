package server

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	execdomain "github.com/smallbiznis/tirta/internal/billingexecution/domain"
	invoicedomain "github.com/smallbiznis/tirta/internal/invoice/domain"
	"github.com/smallbiznis/tirta/pkg/db/pagination"
)

type executionDetail struct {
	*execdomain.Execution
	Invoices []invoicedomain.Invoice `json:"invoices"`
}

// ExecuteBillingConfig runs the config synchronously through the same
// executor and guard the scheduler uses.
func (s *Server) ExecuteBillingConfig(c *gin.Context) {
	cfg := configFromContext(c)
	if cfg == nil {
		AbortWithError(c, ErrNotFound)
		return
	}

	// a client disconnect must not abort a run halfway through
	ctx := context.WithoutCancel(c.Request.Context())
	result, err := s.executor.Execute(ctx, cfg.ID, execdomain.TriggerManual)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": result})
}

func (s *Server) ListExecutions(c *gin.Context) {
	var query pagination.Pagination
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.executionSvc.ListByConfig(c.Request.Context(), execdomain.ListRequest{
		ConfigID:   strings.TrimSpace(c.Param("id")),
		Pagination: query,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data":            resp.Executions,
		"next_page_token": resp.NextPageToken,
		"has_more":        resp.HasMore,
	})
}

func (s *Server) GetExecutionByID(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))
	ctx := c.Request.Context()

	exec, err := s.executionSvc.GetByID(ctx, id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	invoices, err := s.invoiceSvc.ListByExecution(ctx, exec.ID.String())
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if invoices == nil {
		invoices = []invoicedomain.Invoice{}
	}

	c.JSON(http.StatusOK, gin.H{"data": executionDetail{Execution: exec, Invoices: invoices}})
}
