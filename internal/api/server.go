// Package api exposes the agents over a small internal HTTP surface.
package api

import (
	"context"
	"crypto/subtle"
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"go-openclaw-autoapply/internal/applier"
	"go-openclaw-autoapply/internal/models"
	"go-openclaw-autoapply/internal/risk"
)

const secretHeader = "X-Agent-Secret"

type AutoApplier interface {
	Run(ctx context.Context, userID string, maxApplies int) (*applier.RunResult, error)
}

type RiskAssessor interface {
	Assess(ctx context.Context, actor risk.ActorContext, action models.ActionType, pc risk.PlatformContext) risk.Assessment
}

type Server struct {
	applier AutoApplier
	guard   RiskAssessor
	secret  string
}

func NewServer(a AutoApplier, guard RiskAssessor, secret string) *Server {
	return &Server{applier: a, guard: guard, secret: secret}
}

// Router builds the gin engine. Agent routes require the shared secret.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery())

	config := cors.DefaultConfig()
	config.AllowAllOrigins = true
	config.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", secretHeader}
	r.Use(cors.New(config))

	r.GET("/health", s.health)

	agents := r.Group("/api/agents", s.requireSecret)
	{
		agents.POST("/auto-apply", s.autoApply)
		agents.POST("/anti-ban", s.antiBan)
	}
	return r
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy"})
}

func (s *Server) requireSecret(c *gin.Context) {
	got := c.GetHeader(secretHeader)
	if s.secret == "" || subtle.ConstantTimeCompare([]byte(got), []byte(s.secret)) != 1 {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	c.Next()
}
