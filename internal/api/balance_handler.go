package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/apenugon/testgrowth-sub000/internal/repository"
	"github.com/apenugon/testgrowth-sub000/internal/service"
)

// BalanceHandler serves the leaderboard and ledger read APIs.
type BalanceHandler struct {
	balances *service.BalanceService
	logger   *logrus.Logger
}

func NewBalanceHandler(balances *service.BalanceService, logger *logrus.Logger) *BalanceHandler {
	return &BalanceHandler{balances: balances, logger: logger}
}

// GetContestBalances returns the ranked balances of a contest.
// GET /api/contests/:contest_id/balances
func (h *BalanceHandler) GetContestBalances(c *gin.Context) {
	contestID, ok := pathID(c, "contest_id")
	if !ok {
		return
	}
	balances, err := h.balances.GetContestBalances(c.Request.Context(), contestID)
	if err != nil {
		if err == repository.ErrNotFound {
			c.JSON(http.StatusNotFound, gin.H{"error": "contest not found"})
			return
		}
		h.logger.WithError(err).WithField("contest_id", contestID).Error("get contest balances")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"contest_id": contestID, "balances": balances})
}

// ListStoreEvents returns a store's ledger rows, optionally scoped to a contest.
// GET /api/stores/:store_id/events?contest_id=&limit=
func (h *BalanceHandler) ListStoreEvents(c *gin.Context) {
	storeID, ok := pathID(c, "store_id")
	if !ok {
		return
	}
	contestID, _ := strconv.ParseUint(c.Query("contest_id"), 10, 64)
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))

	events, err := h.balances.ListStoreEvents(c.Request.Context(), storeID, contestID, limit)
	if err != nil {
		if err == repository.ErrNotFound {
			c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
			return
		}
		h.logger.WithError(err).WithField("store_id", storeID).Error("list store events")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"store_id": storeID, "events": events})
}

// DisconnectStore soft-removes a store and its not-yet-ended memberships.
// POST /api/stores/:store_id/disconnect
func (h *BalanceHandler) DisconnectStore(c *gin.Context) {
	storeID, ok := pathID(c, "store_id")
	if !ok {
		return
	}
	if err := h.balances.DisconnectStore(c.Request.Context(), storeID); err != nil {
		h.logger.WithError(err).WithField("store_id", storeID).Error("disconnect store")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"store_id": storeID, "disconnected": true})
}

// pathID parses a uint64 path parameter, answering 400 on garbage.
func pathID(c *gin.Context, name string) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})
		return 0, false
	}
	return id, true
}
