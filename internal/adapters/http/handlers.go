package http

import (
	"net/http"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/ametov/huddle/internal/adapters/auth"
	"github.com/ametov/huddle/internal/adapters/profile"
	"github.com/ametov/huddle/internal/adapters/signal"
	"github.com/ametov/huddle/internal/app"
	"github.com/ametov/huddle/internal/core"
	"github.com/ametov/huddle/internal/domain"
)

// Deps bundles everything the REST surface needs.
type Deps struct {
	Lifecycle *app.Lifecycle
	Registry  *app.Registry
	Limiter   *signal.MessageRateLimiter
	Auth      core.Authenticator
	Tokens    *auth.JWT
	Profiles  *profile.Store
	History   core.HistoryStore
}

type tokenRequest struct {
	DisplayName string `json:"displayName"`
}

type tokenResponse struct {
	Token  string `json:"token"`
	UserID string `json:"userId"`
}

// handleIssueToken hands out a guest credential. The guest identity is
// stashed in the cookie session so a reconnecting browser keeps the same
// userId across tokens.
func (d Deps) handleIssueToken(c *gin.Context) {
	var req tokenRequest
	_ = c.ShouldBindJSON(&req)

	session := sessions.Default(c)
	userID, _ := session.Get("guest_id").(string)
	if userID == "" {
		userID = uuid.NewString()
		session.Set("guest_id", userID)
		if err := session.Save(); err != nil {
			log.Warn().Err(err).Str("module", "adapters.http").Msg("session save")
		}
	}

	if req.DisplayName != "" {
		p := domain.Profile{}
		if err := p.SetDisplayName(req.DisplayName); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if err := d.Profiles.Upsert(domain.UserID(userID), p); err != nil {
			log.Error().Err(err).Str("module", "adapters.http").Msg("profile upsert on token issue")
		}
	}

	token, err := d.Tokens.IssueToken(domain.UserID(userID), req.DisplayName)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "token issue failed"})
		return
	}
	c.JSON(http.StatusOK, tokenResponse{Token: token, UserID: userID})
}

type profileRequest struct {
	DisplayName string `json:"displayName"`
	PhotoURL    string `json:"photoURL"`
}

func (d Deps) handleUpsertProfile(c *gin.Context) {
	var req profileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
		return
	}

	p := domain.Profile{PhotoURL: req.PhotoURL}
	if err := p.SetDisplayName(req.DisplayName); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	userID := domain.UserID(c.GetString("user_id"))
	if err := d.Profiles.Upsert(userID, p); err != nil {
		log.Error().Err(err).Str("module", "adapters.http").Msg("profile upsert")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "profile store unavailable"})
		return
	}
	c.JSON(http.StatusOK, p)
}

func (d Deps) handleListRooms(c *gin.Context) {
	c.JSON(http.StatusOK, d.Registry.Rooms())
}

func (d Deps) handleRoster(c *gin.Context) {
	roomID := domain.RoomID(c.Param("room"))
	roster := d.Registry.Roster(roomID)
	if roster == nil {
		roster = []domain.Participant{}
	}
	c.JSON(http.StatusOK, roster)
}

func (d Deps) handleHistory(c *gin.Context) {
	roomID := domain.RoomID(c.Param("room"))
	messages, err := d.History.FetchHistory(c.Request.Context(), roomID)
	if err != nil {
		log.Error().Err(err).Str("module", "adapters.http").Str("room", string(roomID)).Msg("history fetch")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "history unavailable"})
		return
	}
	if messages == nil {
		messages = []domain.ChatMessage{}
	}
	c.JSON(http.StatusOK, messages)
}
