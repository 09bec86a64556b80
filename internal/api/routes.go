package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/pokelink/duelnet/internal/db"
)

const defaultHistoryLimit = 20

func zerologDebug() bool {
	return zerolog.GlobalLevel() <= zerolog.DebugLevel
}

func (s *Server) handlePing(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": "duelnet",
		"version": s.opts.Version,
		"player":  s.opts.Player,
		"uptime":  time.Since(s.started).Round(time.Second).String(),
	})
}

func (s *Server) handleStatus(c *gin.Context) {
	if s.opts.Status == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no active battle"})
		return
	}
	status, ok := s.opts.Status()
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "no active battle"})
		return
	}
	c.JSON(http.StatusOK, status)
}

func (s *Server) handleHistory(c *gin.Context) {
	if s.opts.History == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "history is disabled"})
		return
	}

	limit := defaultHistoryLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		limit = n
	}

	battles, err := s.opts.History.ListBattles(limit)
	if err != nil {
		log.Error().Err(err).Msg("failed to list battles")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read history"})
		return
	}
	if battles == nil {
		battles = []db.BattleRecord{}
	}
	c.JSON(http.StatusOK, gin.H{"battles": battles})
}

func (s *Server) handleTally(c *gin.Context) {
	if s.opts.History == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "history is disabled"})
		return
	}
	tally, err := s.opts.History.Tally()
	if err != nil {
		log.Error().Err(err).Msg("failed to tally battles")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read history"})
		return
	}
	c.JSON(http.StatusOK, tally)
}

func (s *Server) handleTurns(c *gin.Context) {
	if s.opts.History == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "history is disabled"})
		return
	}
	turns, err := s.opts.History.Turns(c.Param("id"))
	if err != nil {
		log.Error().Err(err).Str("battle", c.Param("id")).Msg("failed to list turns")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read history"})
		return
	}
	if len(turns) == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "battle not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"battle_id": c.Param("id"), "turns": turns})
}
