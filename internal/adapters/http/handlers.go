package http

import (
	"errors"
	"net/http"

	"github.com/dkeye/intercom/internal/app"
	"github.com/dkeye/intercom/internal/domain"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

type handlers struct {
	sess  Session
	media Media
	// used when a join request names no user
	defaultUsername string
}

type MuteRequest struct {
	Muted *bool `json:"muted"`
}

type UpdateCallRequest struct {
	Mute   *bool    `json:"mute"`
	Volume *float64 `json:"volume"`
}

type AnswerRequest struct {
	SDP string `json:"sdp"`
}

type JoinResponse struct {
	CallID domain.CallID `json:"callId"`
	Offer  string        `json:"offer"`
}

func (h *handlers) status(c *gin.Context) {
	c.JSON(http.StatusOK, h.sess.Status())
}

func (h *handlers) listCalls(c *gin.Context) {
	c.JSON(http.StatusOK, h.sess.Snapshot())
}

func (h *handlers) reconnect(c *gin.Context) {
	if err := h.sess.Reconnect(); err != nil {
		if errors.Is(err, app.ErrNoURL) {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, h.sess.Status())
}

func (h *handlers) clearConflict(c *gin.Context) {
	h.sess.ClearConflict()
	c.JSON(http.StatusOK, h.sess.Status())
}

func (h *handlers) muteAll(c *gin.Context) {
	var req MuteRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Muted == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing or invalid muted"})
		return
	}
	h.sess.SetGlobalMute(*req.Muted)
	c.JSON(http.StatusOK, h.sess.Snapshot())
}

func (h *handlers) joinCall(c *gin.Context) {
	var opts domain.JoinOptions
	if err := c.ShouldBindJSON(&opts); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid join options"})
		return
	}
	if opts.Username == "" {
		opts.Username = h.defaultUsername
	}
	call, err := h.sess.JoinCall(opts)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	offer, err := h.media.Open(c.Request.Context(), call.ID())
	if err != nil {
		log.Error().Err(err).Str("module", "adapters.http").Str("call_id", string(call.ID())).Msg("media open")
		h.sess.DeregisterCall(call.ID())
		c.JSON(http.StatusBadGateway, gin.H{"error": "media setup failed"})
		return
	}
	c.JSON(http.StatusCreated, JoinResponse{CallID: call.ID(), Offer: offer.SDP})
}

func (h *handlers) answer(c *gin.Context) {
	var req AnswerRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.SDP == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing or invalid sdp"})
		return
	}
	if err := h.media.Answer(domain.CallID(c.Param("id")), req.SDP); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *handlers) updateCall(c *gin.Context) {
	var req UpdateCallRequest
	if err := c.ShouldBindJSON(&req); err != nil || (req.Mute == nil && req.Volume == nil) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "nothing to update"})
		return
	}
	if req.Volume != nil && (*req.Volume < 0 || *req.Volume > 1) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "volume must be within [0, 1]"})
		return
	}
	ok := h.sess.UpdateCall(domain.CallID(c.Param("id")), func(call *domain.Call) {
		if req.Mute != nil {
			call.SetMute(*req.Mute)
		}
		if req.Volume != nil {
			call.SetVolume(*req.Volume)
		}
	})
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown call"})
		return
	}
	c.JSON(http.StatusOK, h.sess.Snapshot())
}

func (h *handlers) leaveCall(c *gin.Context) {
	id := domain.CallID(c.Param("id"))
	h.media.Close(id)
	h.sess.DeregisterCall(id)
	c.Status(http.StatusNoContent)
}

func (h *handlers) exitAll(c *gin.Context) {
	h.media.CloseAll()
	h.sess.ExitAllCalls()
	c.Status(http.StatusNoContent)
}
