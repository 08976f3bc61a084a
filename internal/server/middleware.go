package server

import (
	"strings"

	"github.com/gin-gonic/gin"
	billingconfigdomain "github.com/smallbiznis/tirta/internal/billingconfig/domain"
	obscontext "github.com/smallbiznis/tirta/internal/observability/context"
)

const contextConfigKey = "billing_config"

// ConfigContext loads the billing config named by the :id path parameter and
// exposes it to the handlers and the request logger.
func (s *Server) ConfigContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := strings.TrimSpace(c.Param("id"))
		cfg, err := s.configSvc.GetByID(c.Request.Context(), id)
		if err != nil {
			AbortWithError(c, err)
			return
		}

		c.Set(contextConfigKey, cfg)
		c.Set("config_code", cfg.Code)
		c.Request = c.Request.WithContext(obscontext.WithConfigID(c.Request.Context(), cfg.ID.String()))
		c.Next()
	}
}

func configFromContext(c *gin.Context) *billingconfigdomain.BillingConfig {
	v, ok := c.Get(contextConfigKey)
	if !ok {
		return nil
	}
	cfg, _ := v.(*billingconfigdomain.BillingConfig)
	return cfg
}
