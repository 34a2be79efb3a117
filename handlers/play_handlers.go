package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"playlog/api/etl"
	"playlog/api/models"
	"playlog/api/store"
	"playlog/api/utils"
)

type PlayHandlers struct {
	PlayStore *store.PlayStore
	Log       *slog.Logger

	// Defaults for load runs triggered without an explicit directory.
	EventDataDir string
	ArtifactPath string
}

func NewPlayHandlers(s *store.PlayStore, log *slog.Logger, eventDataDir, artifactPath string) *PlayHandlers {
	return &PlayHandlers{
		PlayStore:    s,
		Log:          log,
		EventDataDir: eventDataDir,
		ArtifactPath: artifactPath,
	}
}

// Load runs one full batch load: extract, reset, reload. The previous
// table contents are gone once this starts; there is no incremental mode.
func (h *PlayHandlers) Load(c *gin.Context) {
	var req models.LoadRequest
	if err := c.ShouldBindJSON(&req); err != nil && c.Request.ContentLength > 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	dir := req.Dir
	if dir == "" {
		dir = h.EventDataDir
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Minute)
	defer cancel()

	result, err := etl.Run(ctx, h.Log, dir, h.ArtifactPath, h.PlayStore)
	if err != nil {
		h.Log.Error("batch load failed", "dir", dir, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Batch load failed"})
		return
	}

	c.JSON(http.StatusOK, result)
}

// GetSessionItem answers query 1: what played at one position of a session.
func (h *PlayHandlers) GetSessionItem(c *gin.Context) {
	sessionID, ok := utils.Int32Param(c, "session_id")
	if !ok {
		return
	}
	item, ok := utils.Int32Param(c, "item")
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	play, err := h.PlayStore.GetPlayBySessionItem(ctx, sessionID, item)
	if err != nil {
		h.Log.Error("failed to get session item", "sessionId", sessionID, "item", item, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve session item"})
		return
	}
	if play == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "No play recorded for that session item"})
		return
	}

	c.JSON(http.StatusOK, play)
}

// GetUserSessionPlays answers query 2: a user's session playlist in
// item_in_session order.
func (h *PlayHandlers) GetUserSessionPlays(c *gin.Context) {
	userID, ok := utils.Int32Param(c, "user_id")
	if !ok {
		return
	}
	sessionID, ok := utils.Int32Param(c, "session_id")
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	plays, err := h.PlayStore.GetPlaysByUserSession(ctx, userID, sessionID)
	if err != nil {
		h.Log.Error("failed to get user session plays", "userId", userID, "sessionId", sessionID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve session plays"})
		return
	}

	// An unknown key is an empty playlist, not an error.
	if plays == nil {
		plays = []models.UserSessionPlay{}
	}
	c.JSON(http.StatusOK, plays)
}

// GetSongListeners answers query 3: everyone who played a song.
func (h *PlayHandlers) GetSongListeners(c *gin.Context) {
	song := c.Param("song")
	if song == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "song path parameter is required"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	listeners, err := h.PlayStore.GetSongListeners(ctx, song)
	if err != nil {
		h.Log.Error("failed to get song listeners", "song", song, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve song listeners"})
		return
	}

	if listeners == nil {
		listeners = []models.Listener{}
	}
	c.JSON(http.StatusOK, listeners)
}

// GetTableCounts reports the row count of every target table.
func (h *PlayHandlers) GetTableCounts(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	counts, err := h.PlayStore.TableCounts(ctx)
	if err != nil {
		h.Log.Error("failed to get table counts", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve table counts"})
		return
	}

	c.JSON(http.StatusOK, counts)
}
