package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/sanicball-project/sanicrelay/internal/util"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 500
)

// handlePing returns a simple health check response.
func (s *Server) handlePing(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": "sanicrelay",
		"version": s.opts.Version,
	})
}

// handleServerInfo describes the relay endpoint and its host.
func (s *Server) handleServerInfo(c *gin.Context) {
	data := s.cfg.GetServerData()
	sysInfo := util.GetSystemInfo()

	info := gin.H{
		"name":            data.Name,
		"ip":              data.IP,
		"port":            data.Port,
		"app_id":          data.AppID,
		"public":          data.Public,
		"max_players":     data.MaxPlayers,
		"servers":         data.Servers,
		"accepting":       data.EnabledConnections,
		"motd":            data.MOTD,
		"version":         s.opts.Version,
		"uptime_sec":      int64(time.Since(s.started).Seconds()),
		"os":              sysInfo.OS,
		"architecture":    sysInfo.Architecture,
		"cpu_model":       sysInfo.CPUModel,
		"cpu_cores":       sysInfo.CPUCores,
		"total_memory_mb": sysInfo.TotalMemory,
	}
	if s.opts.Match != nil {
		snap := s.opts.Match.Snapshot()
		info["motd"] = snap.MOTD
		info["phase"] = snap.Phase
		info["clients"] = len(snap.Clients)
		info["players"] = len(snap.Players)
	}
	c.JSON(http.StatusOK, info)
}

// handleMatch returns the latest match snapshot.
func (s *Server) handleMatch(c *gin.Context) {
	c.JSON(http.StatusOK, s.opts.Match.Snapshot())
}

// handleHistory returns recent relay events, newest first.
func (s *Server) handleHistory(c *gin.Context) {
	limit, ok := queryLimit(c)
	if !ok {
		return
	}
	entries, err := s.opts.History.Recent(limit)
	if err != nil {
		log.Error().Err(err).Msg("history query failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "history unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": entries})
}

// handleResults returns recent race results, newest first.
func (s *Server) handleResults(c *gin.Context) {
	limit, ok := queryLimit(c)
	if !ok {
		return
	}
	results, err := s.opts.History.Results(limit)
	if err != nil {
		log.Error().Err(err).Msg("race results query failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "history unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"results": results})
}

// queryLimit parses ?limit=, writing a 400 response when it is invalid.
func queryLimit(c *gin.Context) (int, bool) {
	raw := c.Query("limit")
	if raw == "" {
		return defaultHistoryLimit, true
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 1 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
		return 0, false
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}
	return limit, true
}
