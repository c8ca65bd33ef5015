package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"checkin-system/internal/status"
	"checkin-system/models"
	"checkin-system/monitoring"
	"checkin-system/utils"
)

// ProcessorCaller is the station-side view of the Check-In Processor. The
// HTTP client below implements it against the server; tests use fakes.
type ProcessorCaller interface {
	Process(ctx context.Context, req models.CheckInRequest) (*models.CheckInResult, error)
}

// CheckInClient calls the server's check-in endpoint. Transport failures and
// 5xx responses surface as status.ErrUnavailable and feed the circuit
// breaker; business rejections pass through the breaker as successes so an
// event full of revoked tickets does not trip it.
type CheckInClient struct {
	baseURL string
	http    *http.Client
	breaker *utils.CircuitBreaker
	monitor *monitoring.Monitor
}

func NewCheckInClient(baseURL string, timeout time.Duration, monitor *monitoring.Monitor) *CheckInClient {
	return &CheckInClient{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
		breaker: utils.NewCircuitBreaker("checkin-processor", utils.DefaultBreakerSettings()),
		monitor: monitor,
	}
}

// outcome separates business rejections from transport errors inside the
// breaker callback.
type outcome struct {
	result *models.CheckInResult
	bizErr error
}

func (c *CheckInClient) Process(ctx context.Context, req models.CheckInRequest) (*models.CheckInResult, error) {
	started := time.Now()

	value, err := c.breaker.Execute(ctx, func() (any, error) {
		return c.call(ctx, req)
	})

	if c.monitor != nil {
		c.monitor.TrackBreakerState(int(c.breaker.State()))
	}

	if err != nil {
		// Breaker open, half-open overflow, or a transport failure: all of
		// them mean "processor unreachable right now".
		c.trackCall("unavailable", started)
		return nil, fmt.Errorf("%w: %v", status.ErrUnavailable, err)
	}

	out := value.(*outcome)
	if out.bizErr != nil {
		c.trackCall(status.ToCode(out.bizErr), started)
		return nil, out.bizErr
	}

	c.trackCall("ok", started)
	return out.result, nil
}

func (c *CheckInClient) call(ctx context.Context, req models.CheckInRequest) (*outcome, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/checkin", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return nil, fmt.Errorf("server returned %d", resp.StatusCode)
	}

	var wire models.CheckInResponse
	if err := json.NewDecoder(resp.Body).Decode(&wire); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	if !wire.Success {
		code := status.CodeUnavailable
		msg := ""
		if wire.Error != nil {
			code = wire.Error.Code
			msg = wire.Error.Message
		}
		bizErr := status.FromCode(code)
		if status.IsTransient(bizErr) {
			// Transient per the server's own classification: count it
			// against the breaker.
			return nil, fmt.Errorf("%s: %s", code, msg)
		}
		return &outcome{bizErr: fmt.Errorf("%w: %s", bizErr, msg)}, nil
	}

	if wire.Data == nil {
		return nil, fmt.Errorf("success response without data")
	}

	result := &models.CheckInResult{
		Record: models.CheckInRecord{
			TicketID:     wire.Data.TicketID,
			StationID:    wire.Data.StationID,
			CheckedInAt:  wire.Data.CheckedInAt,
			ClientScanID: req.ClientScanID,
			Method:       req.Method,
		},
		AttendeeName:   wire.Data.AttendeeName,
		Duplicate:      wire.Data.IsDuplicate,
		FirstCheckInAt: wire.Data.PreviousCheckInAt,
	}
	return &outcome{result: result}, nil
}

func (c *CheckInClient) trackCall(result string, started time.Time) {
	if c.monitor != nil {
		c.monitor.TrackProcessorCall(result, time.Since(started))
	}
}
