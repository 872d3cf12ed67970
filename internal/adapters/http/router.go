package http

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/ametov/huddle/internal/adapters/signal"
	"github.com/ametov/huddle/internal/config"
	"github.com/ametov/huddle/internal/core"
)

// AuthRequired rejects requests whose credential cannot be resolved to a
// user identity. This runs before the websocket upgrade, so a rejected
// connection never enters the session lifecycle.
func AuthRequired(authn core.Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		credential := c.Query("token")
		if credential == "" {
			header := c.GetHeader("Authorization")
			credential = strings.TrimPrefix(header, "Bearer ")
		}
		if credential == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing credential"})
			return
		}
		userID, err := authn.AuthenticateConnection(credential)
		if err != nil {
			log.Warn().Err(err).Str("module", "adapters.http").Msg("authentication rejected")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid credential"})
			return
		}
		c.Set("user_id", string(userID))
		c.Next()
	}
}

func SetupRouter(ctx context.Context, cfg *config.Config, deps Deps) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	store := cookie.NewStore([]byte(cfg.Secret))
	r.Use(sessions.Sessions("HuddleSessions", store))

	log.Info().Str("module", "adapters.http").Msg("router setup")

	api := r.Group("/api")
	api.POST("/token", deps.handleIssueToken)
	api.GET("/rooms", deps.handleListRooms)
	api.GET("/rooms/:room/participants", deps.handleRoster)
	api.GET("/rooms/:room/history", deps.handleHistory)

	authed := api.Group("")
	authed.Use(AuthRequired(deps.Auth))
	authed.POST("/profile", deps.handleUpsertProfile)
	authed.GET("/ws", func(c *gin.Context) {
		ctl := signal.NewController(deps.Lifecycle, deps.Limiter, cfg)
		ctl.HandleWS(ctx, c)
	})

	return r
}
