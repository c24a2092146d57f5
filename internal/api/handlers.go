package api

import (
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"go-openclaw-autoapply/internal/models"
	"go-openclaw-autoapply/internal/risk"
)

type autoApplyRequest struct {
	UserID     string `json:"user_id" binding:"required"`
	MaxApplies int    `json:"max_applies"`
}

type antiBanRequest struct {
	UserID     string            `json:"user_id"`
	ActionType models.ActionType `json:"action_type" binding:"required"`
	Context    struct {
		Platform models.Platform   `json:"platform" binding:"required"`
		Extra    map[string]string `json:"extra"`
	} `json:"context"`
}

type antiBanResponse struct {
	RiskLevel    risk.Level  `json:"risk_level"`
	Proceed      bool        `json:"proceed"`
	DelaySeconds float64     `json:"delay_seconds"`
	Reason       string      `json:"reason"`
	Source       risk.Source `json:"source"`
}

// autoApply runs one pass synchronously. Skips are 200s; only an unexpected
// run failure is a 500, and it still carries the result body.
func (s *Server) autoApply(c *gin.Context) {
	var req autoApplyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid JSON format: " + err.Error()})
		return
	}
	if req.MaxApplies < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "max_applies must not be negative"})
		return
	}

	res, err := s.applier.Run(c.Request.Context(), req.UserID, req.MaxApplies)
	if err != nil {
		log.Printf("❌ auto-apply run for %s failed: %v", req.UserID, err)
		c.JSON(http.StatusInternalServerError, res)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (s *Server) antiBan(c *gin.Context) {
	var req antiBanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid JSON format: " + err.Error()})
		return
	}
	switch req.ActionType {
	case models.ActionApply, models.ActionScrape:
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown action_type: " + string(req.ActionType)})
		return
	}

	a := s.guard.Assess(c.Request.Context(),
		risk.ActorContext{UserID: req.UserID},
		req.ActionType,
		risk.PlatformContext{Platform: req.Context.Platform, Extra: req.Context.Extra},
	)
	c.JSON(http.StatusOK, antiBanResponse{
		RiskLevel:    a.Level,
		Proceed:      a.Proceed,
		DelaySeconds: a.Delay.Seconds(),
		Reason:       a.Reason,
		Source:       a.Source,
	})
}
