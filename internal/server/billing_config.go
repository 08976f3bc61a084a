package server

import (
	"context"
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	billingconfigdomain "github.com/smallbiznis/tirta/internal/billingconfig/domain"
	"go.uber.org/zap"
)

func (s *Server) CreateBillingConfig(c *gin.Context) {
	var req billingconfigdomain.CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	cfg, err := s.configSvc.Create(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	s.reload(c.Request.Context(), cfg.ID)
	c.JSON(http.StatusCreated, gin.H{"data": cfg})
}

func (s *Server) ListBillingConfigs(c *gin.Context) {
	items, err := s.configSvc.List(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": items})
}

func (s *Server) GetBillingConfigByID(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))
	cfg, err := s.configSvc.GetByID(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": cfg})
}

func (s *Server) UpdateBillingConfig(c *gin.Context) {
	var req billingconfigdomain.UpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	req.ID = strings.TrimSpace(c.Param("id"))

	cfg, err := s.configSvc.Update(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	s.reload(c.Request.Context(), cfg.ID)
	c.JSON(http.StatusOK, gin.H{"data": cfg})
}

func (s *Server) DeleteBillingConfig(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))
	if err := s.configSvc.Delete(c.Request.Context(), id); err != nil {
		AbortWithError(c, err)
		return
	}

	if parsed, err := billingconfigdomain.ParseID(id); err == nil {
		s.reload(c.Request.Context(), parsed)
	}
	c.Status(http.StatusNoContent)
}

// reload keeps the armed timer in step with the stored config. The write
// already succeeded, so a failure is logged and the next resync repairs it.
func (s *Server) reload(ctx context.Context, id snowflake.ID) {
	if s.reloader == nil {
		return
	}
	if err := s.reloader.Reload(context.WithoutCancel(ctx), &id); err != nil {
		s.log.Warn("scheduler reload failed",
			zap.String("config_id", id.String()),
			zap.Error(err),
		)
	}
}
