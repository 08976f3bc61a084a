package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	tariffdomain "github.com/smallbiznis/tirta/internal/tariff/domain"
)

func (s *Server) ListTariffs(c *gin.Context) {
	items, err := s.tariffSvc.List(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": items})
}

func (s *Server) CreateTariff(c *gin.Context) {
	var req tariffdomain.CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	req.CategoryID = strings.TrimSpace(req.CategoryID)
	req.Name = strings.TrimSpace(req.Name)

	resp, err := s.tariffSvc.Create(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": resp})
}

func (s *Server) ActivateTariff(c *gin.Context) {
	resp, err := s.tariffSvc.Activate(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}
