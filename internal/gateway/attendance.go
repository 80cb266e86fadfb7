// Package gateway is the network boundary to the attendance backend. It
// does request/response translation only; deciding what a response means
// for local state is the service layer's job.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"volunteer-checkin-bot/internal/models"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// AttendanceGateway submits attendance transitions to the backend. The
// backend decides whether a token means check-in or check-out; callers get
// that back in the outcome. A returned error guarantees no client-side
// state was touched.
type AttendanceGateway interface {
	SubmitToken(ctx context.Context, token string, clientTime time.Time) (*models.TransitionOutcome, error)
	ManualCheckOut(ctx context.Context, recordID string, clientTime time.Time) (*models.TransitionOutcome, error)
}

// RejectedError means the backend understood the request and refused it
// (unknown token, closed project, already checked out). The message is
// shown to the volunteer verbatim.
type RejectedError struct {
	StatusCode int
	Message    string
}

func (e *RejectedError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("request rejected (status %d)", e.StatusCode)
}

// Client is the HTTP implementation of AttendanceGateway.
type Client struct {
	baseURL    string
	apiToken   string
	httpClient *http.Client
	logger     *logrus.Logger
}

func NewClient(baseURL, apiToken string, timeout time.Duration) *Client {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	})

	return &Client{
		baseURL:    baseURL,
		apiToken:   apiToken,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

type scanRequest struct {
	QRToken    string `json:"qrToken"`
	ActionTime string `json:"actionTime"`
}

type manualCheckOutRequest struct {
	RecordID     string `json:"recordId"`
	CheckOutTime string `json:"checkOutTime"`
}

type outcomeResponse struct {
	Action      string    `json:"action"`
	RecordID    string    `json:"recordId"`
	ProjectName string    `json:"projectName"`
	ServerTime  time.Time `json:"serverTime"`
	HoursWorked *float64  `json:"hoursWorked,omitempty"`
	TotalHours  *float64  `json:"totalHours,omitempty"`
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// SubmitToken posts a scanned token to POST /qr/scan.
func (c *Client) SubmitToken(ctx context.Context, token string, clientTime time.Time) (*models.TransitionOutcome, error) {
	c.logger.WithField("action_time", clientTime.Format(time.RFC3339)).Info("Submitting scanned token")

	body := scanRequest{
		QRToken:    token,
		ActionTime: clientTime.Format(time.RFC3339),
	}
	return c.post(ctx, "/qr/scan", body)
}

// ManualCheckOut posts a scan-less check-out to POST /hours/manual-checkout.
func (c *Client) ManualCheckOut(ctx context.Context, recordID string, clientTime time.Time) (*models.TransitionOutcome, error) {
	c.logger.WithFields(logrus.Fields{
		"record_id":      recordID,
		"check_out_time": clientTime.Format(time.RFC3339),
	}).Info("Submitting manual check-out")

	body := manualCheckOutRequest{
		RecordID:     recordID,
		CheckOutTime: clientTime.Format(time.RFC3339),
	}
	return c.post(ctx, "/hours/manual-checkout", body)
}

func (c *Client) post(ctx context.Context, path string, payload any) (*models.TransitionOutcome, error) {
	jsonData, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiToken)
	// Fresh ID per attempt so the backend can coalesce duplicates if the
	// client restarts mid-request.
	req.Header.Set("X-Request-ID", uuid.NewString())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.WithError(err).Warn("Attendance API request failed")
		return nil, fmt.Errorf("failed to call attendance API: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var errResp errorResponse
		message := ""
		if err := json.Unmarshal(respBody, &errResp); err == nil {
			message = errResp.Error
			if message == "" {
				message = errResp.Message
			}
		}

		c.logger.WithFields(logrus.Fields{
			"path":   path,
			"status": resp.StatusCode,
		}).Warn("Attendance API rejected request")

		return nil, &RejectedError{StatusCode: resp.StatusCode, Message: message}
	}

	var outcome outcomeResponse
	if err := json.Unmarshal(respBody, &outcome); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	action := models.ActionKind(outcome.Action)
	if action != models.ActionCheckIn && action != models.ActionCheckOut {
		return nil, fmt.Errorf("attendance API returned unknown action %q", outcome.Action)
	}

	c.logger.WithFields(logrus.Fields{
		"path":    path,
		"action":  outcome.Action,
		"project": outcome.ProjectName,
	}).Info("Attendance API call succeeded")

	return &models.TransitionOutcome{
		Action:      action,
		RecordID:    outcome.RecordID,
		ProjectName: outcome.ProjectName,
		ServerTime:  outcome.ServerTime,
		HoursWorked: outcome.HoursWorked,
		TotalHours:  outcome.TotalHours,
	}, nil
}
