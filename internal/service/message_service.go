// internal/service/message_service.go
package service

import (
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/vendaops/vendaops-backend/internal/apperrors"
	"github.com/vendaops/vendaops-backend/internal/model"
	"github.com/vendaops/vendaops-backend/internal/queue"
	"github.com/vendaops/vendaops-backend/internal/repository"
)

// MessageService covers the authoring side of one-off scheduled messages:
// creation, listing, manual retry/cancel, and the send-now queue path.
type MessageService struct {
	Repo      repository.ScheduledMessageRepositoryInterface
	Publisher queue.JobPublisher
	Log       zerolog.Logger
}

type CreateMessageInput struct {
	RecipientName    string    `json:"recipient_name"`
	RecipientPhone   string    `json:"recipient_phone"`
	Body             string    `json:"body"`
	ChannelID        string    `json:"channel_id"`
	OwnerID          string    `json:"owner_id"`
	ScheduledAt      time.Time `json:"scheduled_at"`
	RequiresApproval bool      `json:"requires_approval"`
}

func (s *MessageService) Create(in CreateMessageInput) (*model.ScheduledMessage, error) {
	if strings.TrimSpace(in.RecipientPhone) == "" {
		return nil, apperrors.NewValidation("recipient_phone", "is required")
	}
	if strings.TrimSpace(in.Body) == "" {
		return nil, apperrors.NewValidation("body", "is required")
	}
	if strings.TrimSpace(in.ChannelID) == "" {
		return nil, apperrors.NewValidation("channel_id", "is required")
	}
	if in.ScheduledAt.IsZero() {
		return nil, apperrors.NewValidation("scheduled_at", "is required")
	}

	m := &model.ScheduledMessage{
		RecipientName:    in.RecipientName,
		RecipientPhone:   in.RecipientPhone,
		Body:             in.Body,
		ChannelID:        in.ChannelID,
		OwnerID:          in.OwnerID,
		ScheduledAt:      in.ScheduledAt,
		Status:           model.StatusPending,
		RequiresApproval: in.RequiresApproval,
	}
	if err := s.Repo.Create(m); err != nil {
		return nil, err
	}
	return m, nil
}

// List fetches messages with pagination.
func (s *MessageService) List(page, pageSize int, status string) ([]model.ScheduledMessage, map[string]int, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}
	offset := (page - 1) * pageSize

	ptrs, total, err := s.Repo.List(offset, pageSize, status)
	if err != nil {
		return nil, nil, err
	}

	messages := make([]model.ScheduledMessage, len(ptrs))
	for i, m := range ptrs {
		messages[i] = *m
	}

	totalPages := (total + pageSize - 1) / pageSize
	pagination := map[string]int{
		"page":        page,
		"page_size":   pageSize,
		"total_count": total,
		"total_pages": totalPages,
	}
	return messages, pagination, nil
}

func (s *MessageService) Get(id string) (*model.ScheduledMessage, error) {
	return s.Repo.GetByID(id)
}

func (s *MessageService) Delete(id string) error {
	return s.Repo.Delete(id)
}

// Retry puts a failed or cancelled message back into the due set, clearing
// its terminal fields.
func (s *MessageService) Retry(id string) error {
	m, err := s.Repo.GetByID(id)
	if err != nil {
		return err
	}
	if m == nil {
		return apperrors.NewNotFound("scheduled message", id)
	}
	return s.Repo.Retry(id)
}

func (s *MessageService) Cancel(id string) error {
	m, err := s.Repo.GetByID(id)
	if err != nil {
		return err
	}
	if m == nil {
		return apperrors.NewNotFound("scheduled message", id)
	}
	return s.Repo.Cancel(id)
}

// Approve clears the approval gate.
func (s *MessageService) Approve(id string) error {
	m, err := s.Repo.GetByID(id)
	if err != nil {
		return err
	}
	if m == nil {
		return apperrors.NewNotFound("scheduled message", id)
	}
	return s.Repo.Approve(id)
}

// SendNow queues an immediate dispatch for a pending message.
func (s *MessageService) SendNow(id string) error {
	m, err := s.Repo.GetByID(id)
	if err != nil {
		return err
	}
	if m == nil {
		return apperrors.NewNotFound("scheduled message", id)
	}
	if m.Status != model.StatusPending {
		return apperrors.ErrConcurrencyLost
	}
	if err := s.Publisher.PublishDispatchJob(id); err != nil {
		return err
	}
	s.Log.Info().Str("message_id", id).Msg("dispatch job queued")
	return nil
}

func (s *MessageService) CountByStatus() (map[string]int, error) {
	return s.Repo.CountByStatus()
}
