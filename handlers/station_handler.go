package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v5"

	"checkin-system/models"
)

// StationEngine is what the local admin surface needs from the session.
type StationEngine interface {
	State() string
	PendingCount(ctx context.Context) (int, error)
	LastSyncAt(ctx context.Context) (*time.Time, error)
	Dismiss()
}

// SyncTrigger is the manual reconciler trigger.
type SyncTrigger interface {
	SyncNow(ctx context.Context) (models.SyncSummary, error)
}

// BacklogStore exposes the permanent-failure backlog for manual review and
// replay.
type BacklogStore interface {
	ListBacklog(ctx context.Context) ([]models.PendingCheckIn, error)
	Requeue(ctx context.Context, id string) error
}

// OnlineReporter reports the last observed connectivity state.
type OnlineReporter interface {
	Online() bool
}

// StationHandler serves the kiosk UI and on-site operators over loopback.
type StationHandler struct {
	engine  StationEngine
	sync    SyncTrigger
	backlog BacklogStore
	online  OnlineReporter
}

func NewStationHandler(engine StationEngine, sync SyncTrigger, backlog BacklogStore, online OnlineReporter) *StationHandler {
	return &StationHandler{
		engine:  engine,
		sync:    sync,
		backlog: backlog,
		online:  online,
	}
}

func (h *StationHandler) GetStatus(c echo.Context) error {
	ctx := c.Request().Context()

	pending, err := h.engine.PendingCount(ctx)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to read pending count"})
	}

	lastSync, err := h.engine.LastSyncAt(ctx)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to read last sync"})
	}

	return c.JSON(http.StatusOK, map[string]any{
		"state":        h.engine.State(),
		"online":       h.online.Online(),
		"pending":      pending,
		"last_sync_at": lastSync,
	})
}

func (h *StationHandler) TriggerSync(c echo.Context) error {
	summary, err := h.sync.SyncNow(c.Request().Context())
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, summary)
}

func (h *StationHandler) GetBacklog(c echo.Context) error {
	items, err := h.backlog.ListBacklog(c.Request().Context())
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to list backlog"})
	}
	return c.JSON(http.StatusOK, map[string]any{
		"items": items,
		"count": len(items),
	})
}

func (h *StationHandler) RequeueBacklogItem(c echo.Context) error {
	id := c.PathParam("id")
	if id == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "item id is required"})
	}

	if err := h.backlog.Requeue(c.Request().Context(), id); err != nil {
		return c.JSON(http.StatusUnprocessableEntity, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, map[string]string{"message": "item requeued"})
}

func (h *StationHandler) Dismiss(c echo.Context) error {
	h.engine.Dismiss()
	return c.JSON(http.StatusOK, map[string]string{"state": h.engine.State()})
}
