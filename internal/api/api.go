// Package api exposes the HTTP CRUD surface for traders, followers,
// copy-configs, and leaderboard reads — a thin collaborator that sits
// beside the streaming core (spec.md §1 scope note: the pipeline itself
// speaks no HTTP). Routes are grounded on
// original_source/backend/trading-engine/src/routes/copy_configs.rs and
// routes/followers.rs; the router/middleware shape is grounded on the
// teacher's use of github.com/gorilla/mux-less CLI tooling generalized to
// github.com/gin-gonic/gin, the REST framework the wider example pack
// uses for equivalent CRUD surfaces.
package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/web3guy0/copyfollow/internal/database"
)

// Server wraps the gin engine and its database handle.
type Server struct {
	db     *database.Database
	engine *gin.Engine
}

func NewServer(db *database.Database) *Server {
	gin.SetMode(gin.ReleaseMode)
	s := &Server{db: db, engine: gin.New()}
	s.engine.Use(gin.Recovery(), requestLogger())
	s.routes()
	return s
}

// Handler returns the routed gin engine as an http.Handler. It does not
// start a listener: cmd/copyfollow owns the net/http.Server lifecycle
// directly for shutdown control.
func (s *Server) Handler() http.Handler {
	return s.engine
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		log.Debug().Str("method", c.Request.Method).Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).Msg("api: request")
	}
}

func (s *Server) routes() {
	s.engine.GET("/traders", s.listTraders)
	s.engine.GET("/leaderboard", s.listLeaderboard)

	s.engine.GET("/followers", s.listFollowers)
	s.engine.POST("/followers", s.createFollower)
	s.engine.GET("/followers/:id", s.getFollower)
	s.engine.DELETE("/followers/:id", s.deleteFollower)

	s.engine.POST("/copy-configs", s.createCopyConfig)
	s.engine.PUT("/copy-configs/:id", s.updateCopyConfig)
	s.engine.GET("/copy-configs/:id", s.getCopyConfig)
}

func (s *Server) listTraders(c *gin.Context) {
	traders, err := s.db.ListTraders()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, traders)
}

func (s *Server) listLeaderboard(c *gin.Context) {
	limit := 50
	entries, err := s.db.ListLeaderboard(limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, entries)
}

func (s *Server) listFollowers(c *gin.Context) {
	followers, err := s.db.ListFollowers()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, followers)
}

type createFollowerRequest struct {
	Address        string `json:"address" binding:"required"`
	AgentSignature string `json:"agent_signature" binding:"required"`
}

func (s *Server) createFollower(c *gin.Context) {
	var req createFollowerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	f := &database.Follower{Address: req.Address, AgentSignature: req.AgentSignature}
	if err := s.db.CreateFollower(f); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, f)
}

func (s *Server) getFollower(c *gin.Context) {
	id, err := parseID(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	f, err := s.db.GetFollower(id)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "follower not found"})
		return
	}
	c.JSON(http.StatusOK, f)
}

func (s *Server) deleteFollower(c *gin.Context) {
	id, err := parseID(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.db.DeleteFollower(id); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

type copyConfigRequest struct {
	FollowerID      uint             `json:"follower_id" binding:"required"`
	TraderAddress   string           `json:"trader_address" binding:"required"`
	Ratio           decimal.Decimal  `json:"ratio" binding:"required"`
	MaxRiskPerTrade *decimal.Decimal `json:"max_risk_per_trade"`
	IsActive        bool             `json:"is_active"`
}

func (s *Server) createCopyConfig(c *gin.Context) {
	var req copyConfigRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	cfg := &database.CopyConfig{
		FollowerID:      req.FollowerID,
		TraderAddress:   req.TraderAddress,
		Ratio:           req.Ratio,
		MaxRiskPerTrade: req.MaxRiskPerTrade,
		IsActive:        req.IsActive,
	}
	if err := s.db.CreateCopyConfig(cfg); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, cfg)
}

func (s *Server) updateCopyConfig(c *gin.Context) {
	id, err := parseID(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	var req copyConfigRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	cfg := &database.CopyConfig{
		ID:              id,
		FollowerID:      req.FollowerID,
		TraderAddress:   req.TraderAddress,
		Ratio:           req.Ratio,
		MaxRiskPerTrade: req.MaxRiskPerTrade,
		IsActive:        req.IsActive,
	}
	if err := s.db.UpdateCopyConfig(cfg); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, cfg)
}

func (s *Server) getCopyConfig(c *gin.Context) {
	id, err := parseID(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	cfg, err := s.db.GetCopyConfig(id)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "copy config not found"})
		return
	}
	c.JSON(http.StatusOK, cfg)
}

func parseID(c *gin.Context) (uint, error) {
	var req struct {
		ID uint `uri:"id" binding:"required"`
	}
	if err := c.ShouldBindUri(&req); err != nil {
		return 0, err
	}
	return req.ID, nil
}
