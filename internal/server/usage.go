package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

const (
	defaultUsageDays = 30
	defaultTopLimit  = 10
	maxUsageDays     = 365
	maxTopLimit      = 100
)

func (s *Server) DailyUsage(c *gin.Context) {
	days := queryInt(c, "days", defaultUsageDays)
	if days > maxUsageDays {
		days = maxUsageDays
	}
	usage, err := s.usageSvc.DailyUsage(c.Request.Context(), tenantIDFrom(c), days)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": usage})
}

func (s *Server) TypeDistribution(c *gin.Context) {
	usage, err := s.usageSvc.TypeDistribution(c.Request.Context(), tenantIDFrom(c))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": usage})
}

func (s *Server) TopOperations(c *gin.Context) {
	limit := queryInt(c, "limit", defaultTopLimit)
	if limit > maxTopLimit {
		limit = maxTopLimit
	}
	logs, err := s.usageSvc.TopOperations(c.Request.Context(), tenantIDFrom(c), limit)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": logs})
}
