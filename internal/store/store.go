// Package store owns persistence for locate requests and their append-only
// status-update log. All request mutation goes through this package; the
// submission path never writes rows directly.
package store

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/zulandar/onecall/internal/models"
	"gorm.io/gorm"
)

// Store provides request persistence over a GORM connection.
type Store struct {
	db *gorm.DB
}

// New creates a Store.
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Extra carries the optional fields an UpdateStatus call may set alongside
// the status itself. Zero values are left untouched.
type Extra struct {
	TicketNumber       string
	ConfirmationNumber string
	SubmissionMethod   string
	ResponseData       string
	LastError          string
	SubmittedAt        *time.Time
	RetryCount         *int
}

// Create persists a new request. A missing ID is filled with a fresh UUID
// and the status defaults to pending.
func (s *Store) Create(req *models.Request) error {
	if req == nil {
		return fmt.Errorf("store: request is required")
	}
	if req.DistrictID == "" {
		return fmt.Errorf("store: district id is required")
	}
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	if req.Status == "" {
		req.Status = models.StatusPending
	}
	if err := s.db.Create(req).Error; err != nil {
		return fmt.Errorf("store: create request: %w", err)
	}
	return nil
}

// Get returns a request by id.
func (s *Store) Get(id string) (*models.Request, error) {
	if id == "" {
		return nil, fmt.Errorf("store: request id is required")
	}
	var req models.Request
	if err := s.db.First(&req, "id = ?", id).Error; err != nil {
		return nil, fmt.Errorf("store: get request %s: %w", id, err)
	}
	return &req, nil
}

// UpdateStatus sets a request's status and any extra fields, maintaining the
// most-recent-wins projection next to the status-update log.
func (s *Store) UpdateStatus(id, status string, extra Extra) error {
	if id == "" {
		return fmt.Errorf("store: request id is required")
	}
	updates := map[string]interface{}{
		"status":     status,
		"updated_at": time.Now(),
	}
	if extra.TicketNumber != "" {
		updates["ticket_number"] = extra.TicketNumber
	}
	if extra.ConfirmationNumber != "" {
		updates["confirmation_number"] = extra.ConfirmationNumber
	}
	if extra.SubmissionMethod != "" {
		updates["submission_method"] = extra.SubmissionMethod
	}
	if extra.ResponseData != "" {
		updates["response_data"] = extra.ResponseData
	}
	if extra.LastError != "" {
		updates["last_error"] = extra.LastError
	}
	if extra.SubmittedAt != nil {
		updates["submitted_at"] = *extra.SubmittedAt
	}
	if extra.RetryCount != nil {
		updates["retry_count"] = *extra.RetryCount
	}

	result := s.db.Model(&models.Request{}).Where("id = ?", id).Updates(updates)
	if result.Error != nil {
		return fmt.Errorf("store: update status for %s: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("store: request not found: %s", id)
	}
	return nil
}

// AppendStatusUpdate adds one entry to a request's audit log. Entries are
// never mutated or deleted.
func (s *Store) AppendStatusUpdate(id, kind string, details map[string]interface{}) error {
	if id == "" {
		return fmt.Errorf("store: request id is required")
	}
	if kind == "" {
		return fmt.Errorf("store: update kind is required")
	}
	payload := ""
	if len(details) > 0 {
		b, err := json.Marshal(details)
		if err != nil {
			return fmt.Errorf("store: marshal details for %s: %w", id, err)
		}
		payload = string(b)
	}
	update := models.StatusUpdate{
		ID:        uuid.NewString(),
		RequestID: id,
		Kind:      kind,
		Details:   payload,
		CreatedAt: time.Now(),
	}
	if err := s.db.Create(&update).Error; err != nil {
		return fmt.Errorf("store: append status update for %s: %w", id, err)
	}
	return nil
}

// StatusUpdates returns a request's audit log, most recent first.
func (s *Store) StatusUpdates(id string) ([]models.StatusUpdate, error) {
	if id == "" {
		return nil, fmt.Errorf("store: request id is required")
	}
	var updates []models.StatusUpdate
	if err := s.db.Where("request_id = ?", id).
		Order("created_at DESC").Find(&updates).Error; err != nil {
		return nil, fmt.Errorf("store: status updates for %s: %w", id, err)
	}
	return updates, nil
}

// ListActive returns requests in the given statuses, oldest first.
func (s *Store) ListActive(statuses ...string) ([]models.Request, error) {
	if len(statuses) == 0 {
		statuses = models.ActiveStatuses()
	}
	var reqs []models.Request
	if err := s.db.Where("status IN ?", statuses).
		Order("created_at ASC").Find(&reqs).Error; err != nil {
		return nil, fmt.Errorf("store: list active: %w", err)
	}
	return reqs, nil
}

// ListActiveByDistrict returns active requests for one district, oldest first.
func (s *Store) ListActiveByDistrict(districtID string) ([]models.Request, error) {
	if districtID == "" {
		return nil, fmt.Errorf("store: district id is required")
	}
	var reqs []models.Request
	if err := s.db.Where("district_id = ? AND status IN ?", districtID, models.ActiveStatuses()).
		Order("created_at ASC").Find(&reqs).Error; err != nil {
		return nil, fmt.Errorf("store: list active for %s: %w", districtID, err)
	}
	return reqs, nil
}

// ListRecent returns the most recently created requests, newest first.
func (s *Store) ListRecent(limit int) ([]models.Request, error) {
	if limit <= 0 {
		limit = 50
	}
	var reqs []models.Request
	if err := s.db.Order("created_at DESC").Limit(limit).Find(&reqs).Error; err != nil {
		return nil, fmt.Errorf("store: list recent: %w", err)
	}
	return reqs, nil
}

// ReconcileTicket replaces a synthetic ticket number with the real one once
// an external channel (the inbound-email correlator) has matched it. The
// swap is logged so the synthetic id remains visible in the audit trail.
func (s *Store) ReconcileTicket(id, realTicket string) error {
	if realTicket == "" {
		return fmt.Errorf("store: real ticket number is required")
	}
	req, err := s.Get(id)
	if err != nil {
		return err
	}
	result := s.db.Model(&models.Request{}).Where("id = ?", id).Updates(map[string]interface{}{
		"ticket_number":       realTicket,
		"confirmation_number": realTicket,
		"updated_at":          time.Now(),
	})
	if result.Error != nil {
		return fmt.Errorf("store: reconcile ticket for %s: %w", id, result.Error)
	}
	return s.AppendStatusUpdate(id, "ticket_reconciled", map[string]interface{}{
		"previousTicket": req.TicketNumber,
		"ticketNumber":   realTicket,
	})
}

// Retry moves a failed request back to pending and bumps its retry count.
func (s *Store) Retry(id string) (*models.Request, error) {
	req, err := s.Get(id)
	if err != nil {
		return nil, err
	}
	if req.Status != models.StatusFailed {
		return nil, fmt.Errorf("store: request %s is %s, only failed requests can be retried", id, req.Status)
	}
	count := req.RetryCount + 1
	if err := s.UpdateStatus(id, models.StatusPending, Extra{RetryCount: &count}); err != nil {
		return nil, err
	}
	if err := s.AppendStatusUpdate(id, "retry", map[string]interface{}{
		"retryCount": count,
	}); err != nil {
		return nil, err
	}
	return s.Get(id)
}
