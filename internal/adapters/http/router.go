package http

import (
	"context"

	"github.com/dkeye/intercom/internal/app"
	"github.com/dkeye/intercom/internal/config"
	"github.com/dkeye/intercom/internal/domain"
	"github.com/gin-gonic/gin"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

// Session is the part of app.Session the status API drives.
type Session interface {
	Status() app.Status
	Snapshot() app.Snapshot
	JoinCall(opts domain.JoinOptions) (*domain.Call, error)
	UpdateCall(id domain.CallID, apply func(*domain.Call)) bool
	DeregisterCall(id domain.CallID)
	ExitAllCalls()
	Reconnect() error
	ClearConflict()
	SetGlobalMute(muted bool)
}

// Media opens and closes per-call peer connections.
type Media interface {
	Open(ctx context.Context, id domain.CallID) (*webrtc.SessionDescription, error)
	Answer(id domain.CallID, sdp string) error
	Close(id domain.CallID) bool
	CloseAll()
}

func SetupRouter(cfg *config.Config, sess Session, media Media) *gin.Engine {
	switch cfg.Mode {
	case "release":
		gin.SetMode(gin.ReleaseMode)
	case "test":
		gin.SetMode(gin.TestMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	h := &handlers{sess: sess, media: media, defaultUsername: cfg.Username}

	api := r.Group("/api")
	api.GET("/status", h.status)
	api.POST("/reconnect", h.reconnect)
	api.POST("/conflict/clear", h.clearConflict)
	api.POST("/mute-all", h.muteAll)

	calls := api.Group("/calls")
	calls.GET("", h.listCalls)
	calls.POST("", h.joinCall)
	calls.DELETE("", h.exitAll)
	calls.PATCH("/:id", h.updateCall)
	calls.DELETE("/:id", h.leaveCall)
	calls.POST("/:id/answer", h.answer)

	log.Info().Str("module", "adapters.http").Str("addr", cfg.StatusAddr).Msg("router setup")
	return r
}
