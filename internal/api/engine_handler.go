package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/apenugon/testgrowth-sub000/internal/service"
)

// EngineHandler exposes the provisioning, lifecycle and recalculation
// operations. Thin wrappers: no business logic beyond parameter parsing.
type EngineHandler struct {
	engine    service.Engine
	lifecycle *service.LifecycleService
	recalc    *service.RecalcService
	logger    *logrus.Logger
}

func NewEngineHandler(
	engine service.Engine,
	lifecycle *service.LifecycleService,
	recalc *service.RecalcService,
	logger *logrus.Logger,
) *EngineHandler {
	return &EngineHandler{
		engine:    engine,
		lifecycle: lifecycle,
		recalc:    recalc,
		logger:    logger,
	}
}

// SetupWebhooks provisions webhooks for every participating store.
// POST /api/contests/:contest_id/webhooks/setup
func (h *EngineHandler) SetupWebhooks(c *gin.Context) {
	contestID, ok := pathID(c, "contest_id")
	if !ok {
		return
	}
	result, err := h.engine.SetupWebhooksForContest(c.Request.Context(), contestID)
	if err != nil {
		h.logger.WithError(err).WithField("contest_id", contestID).Error("setup webhooks")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(statusForPartial(len(result.Failures)), result)
}

// RemoveWebhooks tears down the contest's active webhook registrations.
// POST /api/contests/:contest_id/webhooks/remove
func (h *EngineHandler) RemoveWebhooks(c *gin.Context) {
	contestID, ok := pathID(c, "contest_id")
	if !ok {
		return
	}
	result, err := h.engine.RemoveWebhooksForContest(c.Request.Context(), contestID)
	if err != nil {
		h.logger.WithError(err).WithField("contest_id", contestID).Error("remove webhooks")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(statusForPartial(len(result.Failures)), result)
}

// Recalculate rebuilds balances for one participant (?user_id=) or the whole
// contest. POST /api/contests/:contest_id/recalculate
func (h *EngineHandler) Recalculate(c *gin.Context) {
	contestID, ok := pathID(c, "contest_id")
	if !ok {
		return
	}
	ctx := c.Request.Context()

	if raw := c.Query("user_id"); raw != "" {
		userID, err := strconv.ParseUint(raw, 10, 64)
		if err != nil || userID == 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user_id"})
			return
		}
		if err := h.recalc.RecalculateParticipantBalances(ctx, contestID, userID); err != nil {
			h.logger.WithError(err).WithField("contest_id", contestID).Error("recalculate participant")
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"contest_id": contestID, "user_id": userID, "recalculated": true})
		return
	}

	if err := h.recalc.RecalculateAllContestBalances(ctx, contestID); err != nil {
		h.logger.WithError(err).WithField("contest_id", contestID).Error("recalculate contest")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"contest_id": contestID, "recalculated": true})
}

// Activate drives DRAFT -> ACTIVE. POST /api/contests/:contest_id/activate
func (h *EngineHandler) Activate(c *gin.Context) {
	h.transition(c, func(ctx *gin.Context, contestID uint64) (interface{}, error) {
		return h.lifecycle.Activate(ctx.Request.Context(), contestID)
	})
}

// Close drives ACTIVE -> CLOSED. POST /api/contests/:contest_id/close
func (h *EngineHandler) Close(c *gin.Context) {
	h.transition(c, func(ctx *gin.Context, contestID uint64) (interface{}, error) {
		return h.lifecycle.Close(ctx.Request.Context(), contestID)
	})
}

// Cancel drives DRAFT/ACTIVE -> CANCELLED. POST /api/contests/:contest_id/cancel
func (h *EngineHandler) Cancel(c *gin.Context) {
	h.transition(c, func(ctx *gin.Context, contestID uint64) (interface{}, error) {
		return gin.H{"contest_id": contestID, "cancelled": true},
			h.lifecycle.Cancel(ctx.Request.Context(), contestID)
	})
}

// Sweep runs the scheduled transitions. Invoked by the external scheduler;
// safe to call at any frequency. POST /api/lifecycle/sweep
func (h *EngineHandler) Sweep(c *gin.Context) {
	if err := h.lifecycle.Sweep(c.Request.Context(), time.Now().UTC()); err != nil {
		h.logger.WithError(err).Error("lifecycle sweep")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"swept": true})
}

func (h *EngineHandler) transition(c *gin.Context, fn func(*gin.Context, uint64) (interface{}, error)) {
	contestID, ok := pathID(c, "contest_id")
	if !ok {
		return
	}
	result, err := fn(c, contestID)
	if err != nil {
		if errors.Is(err, service.ErrInvalidTransition) {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		h.logger.WithError(err).WithField("contest_id", contestID).Error("lifecycle transition")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, result)
}

// statusForPartial maps partial provisioning failures to 207-style reporting:
// full success is 200, anything partial is 502 with the per-item failures.
func statusForPartial(failures int) int {
	if failures > 0 {
		return http.StatusBadGateway
	}
	return http.StatusOK
}
