package server

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	creditsdomain "github.com/pulseform/pulseform/internal/credits/domain"
)

const defaultLedgerLimit = 50

func (s *Server) GetCredits(c *gin.Context) {
	balance, err := s.creditsSvc.Get(c.Request.Context(), tenantIDFrom(c))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": gin.H{
		"monthly":     balance.CreditsMonthly,
		"purchased":   balance.CreditsPurchased,
		"available":   balance.CreditsMonthly + balance.CreditsPurchased,
		"cycle_start": balance.CycleStart,
		"cycle_end":   balance.CycleEnd,
	}})
}

type grantCreditsBody struct {
	Amount int64  `json:"amount"`
	Bucket string `json:"bucket"`
	Reason string `json:"reason"`
}

// GrantCredits tops up an arbitrary tenant. Exposed to the platform's admin
// surface; the gateway gates who may call it.
func (s *Server) GrantCredits(c *gin.Context) {
	tenantID, err := parseIDParam(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}
	var body grantCreditsBody
	if err := c.ShouldBindJSON(&body); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	reason := strings.TrimSpace(body.Reason)
	if reason == "" {
		reason = "manual_grant"
	}
	err = s.creditsSvc.Credit(
		c.Request.Context(),
		tenantID,
		body.Amount,
		reason,
		creditsdomain.Bucket(strings.TrimSpace(body.Bucket)),
		userIDFrom(c).String(),
	)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	balance, err := s.creditsSvc.Get(c.Request.Context(), tenantID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": gin.H{
		"monthly":   balance.CreditsMonthly,
		"purchased": balance.CreditsPurchased,
	}})
}

func (s *Server) ListLedger(c *gin.Context) {
	limit := queryInt(c, "limit", defaultLedgerLimit)
	entries, err := s.creditsSvc.ListLedger(c.Request.Context(), tenantIDFrom(c), limit)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": entries})
}

func queryInt(c *gin.Context, name string, def int) int {
	raw := strings.TrimSpace(c.Query(name))
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return def
	}
	return n
}
