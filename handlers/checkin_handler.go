package handlers

import (
	"errors"
	"log"
	"net/http"

	"github.com/pocketbase/pocketbase/core"

	"checkin-system/internal/status"
	"checkin-system/models"
	"checkin-system/services"
)

type CheckInHandler struct {
	service *services.CheckInService
	store   *services.PBStore
}

func NewCheckInHandler(service *services.CheckInService, store *services.PBStore) *CheckInHandler {
	return &CheckInHandler{service: service, store: store}
}

// Create is POST /api/checkin: the processor's wire entrypoint. Terminal
// rejections carry an error code so stations and reconcilers can tell them
// apart from outages; duplicates are successes.
func (h *CheckInHandler) Create(e *core.RequestEvent) error {
	var req models.CheckInRequest
	if err := e.BindBody(&req); err != nil {
		return e.JSON(http.StatusBadRequest, models.CheckInResponse{
			Success: false,
			Error:   &models.CheckInAPIError{Code: "bad_request", Message: "invalid request body"},
		})
	}

	if req.ClientScanID == "" || req.TicketRef == "" || req.StationID == "" {
		return e.JSON(http.StatusBadRequest, models.CheckInResponse{
			Success: false,
			Error:   &models.CheckInAPIError{Code: "bad_request", Message: "client_scan_id, ticket_ref and station_id are required"},
		})
	}
	if req.Method == "" {
		req.Method = models.MethodQRCode
	}

	result, err := h.service.Process(e.Request.Context(), req)
	if err != nil {
		return e.JSON(errorStatus(err), models.CheckInResponse{
			Success: false,
			Error:   &models.CheckInAPIError{Code: status.ToCode(err), Message: err.Error()},
		})
	}

	data := &models.CheckInData{
		TicketID:          result.Record.TicketID,
		AttendeeName:      result.AttendeeName,
		CheckedInAt:       result.Record.CheckedInAt,
		IsDuplicate:       result.Duplicate,
		PreviousCheckInAt: result.FirstCheckInAt,
		StationID:         result.Record.StationID,
	}

	return e.JSON(http.StatusOK, models.CheckInResponse{Success: true, Data: data})
}

// ListByEvent is GET /api/events/{eventId}/checkins.
func (h *CheckInHandler) ListByEvent(e *core.RequestEvent) error {
	eventID := e.Request.PathValue("eventId")
	if eventID == "" {
		return e.JSON(http.StatusBadRequest, map[string]string{"error": "event id is required"})
	}

	records, err := h.store.ListCheckIns(e.Request.Context(), eventID, 500)
	if err != nil {
		log.Printf("ListByEvent %s: %v", eventID, err)
		return e.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to list check-ins"})
	}

	return e.JSON(http.StatusOK, map[string]any{
		"check_ins": records,
		"count":     len(records),
	})
}

// Attendance is GET /api/events/{eventId}/attendance: the engine-emitted door
// count.
func (h *CheckInHandler) Attendance(e *core.RequestEvent) error {
	eventID := e.Request.PathValue("eventId")
	if eventID == "" {
		return e.JSON(http.StatusBadRequest, map[string]string{"error": "event id is required"})
	}

	count, err := h.service.Attendance(e.Request.Context(), eventID)
	if err != nil {
		log.Printf("Attendance %s: %v", eventID, err)
		return e.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to read attendance"})
	}

	return e.JSON(http.StatusOK, map[string]any{
		"event_id":   eventID,
		"attendance": count,
	})
}

func errorStatus(err error) int {
	switch {
	case errors.Is(err, status.ErrTicketNotFound):
		return http.StatusNotFound
	case errors.Is(err, status.ErrTicketInvalid):
		return http.StatusUnprocessableEntity
	case errors.Is(err, status.ErrEventClosed):
		return http.StatusConflict
	default:
		return http.StatusServiceUnavailable
	}
}
