// internal/service/schedule_service.go
package service

import (
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/vendaops/vendaops-backend/internal/apperrors"
	"github.com/vendaops/vendaops-backend/internal/model"
	"github.com/vendaops/vendaops-backend/internal/recurrence"
	"github.com/vendaops/vendaops-backend/internal/repository"
)

// ScheduleService covers the authoring side of recurring schedules. Rule
// validation and cursor seeding happen here, so malformed rules never
// reach the dispatcher.
type ScheduleService struct {
	Repo repository.RecurringScheduleRepositoryInterface
	Log  zerolog.Logger
	Now  func() time.Time
}

type CreateScheduleInput struct {
	RecipientName      string     `json:"recipient_name"`
	RecipientPhone     string     `json:"recipient_phone"`
	Body               string     `json:"body"`
	ChannelID          string     `json:"channel_id"`
	OwnerID            string     `json:"owner_id"`
	FunnelStage        string     `json:"funnel_stage"`
	RecurrenceType     string     `json:"recurrence_type"`
	RecurrenceInterval int        `json:"recurrence_interval"`
	DayOfWeek          *int       `json:"day_of_week,omitempty"`
	DayOfMonth         *int       `json:"day_of_month,omitempty"`
	StartDate          time.Time  `json:"start_date"`
	EndDate            *time.Time `json:"end_date,omitempty"`
}

func (s *ScheduleService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now().UTC()
}

func (s *ScheduleService) Create(in CreateScheduleInput) (*model.RecurringSchedule, error) {
	if strings.TrimSpace(in.RecipientPhone) == "" {
		return nil, apperrors.NewValidation("recipient_phone", "is required")
	}
	if strings.TrimSpace(in.Body) == "" {
		return nil, apperrors.NewValidation("body", "is required")
	}
	if strings.TrimSpace(in.ChannelID) == "" {
		return nil, apperrors.NewValidation("channel_id", "is required")
	}

	interval := in.RecurrenceInterval
	if interval == 0 {
		interval = 1
	}

	rule := recurrence.Rule{
		Type:       model.RecurrenceType(in.RecurrenceType),
		Interval:   interval,
		DayOfWeek:  in.DayOfWeek,
		DayOfMonth: in.DayOfMonth,
		StartDate:  in.StartDate,
	}
	if err := recurrence.Validate(rule); err != nil {
		return nil, err
	}
	if in.EndDate != nil && in.EndDate.Before(in.StartDate) {
		return nil, apperrors.NewValidation("end_date", "must not precede start_date")
	}

	next, err := recurrence.Seed(s.now(), rule)
	if err != nil {
		return nil, err
	}
	if in.EndDate != nil && next.After(endOfDay(*in.EndDate)) {
		return nil, apperrors.NewValidation("end_date", "rule would never fire before its end date")
	}

	sched := &model.RecurringSchedule{
		RecipientName:      in.RecipientName,
		RecipientPhone:     in.RecipientPhone,
		Body:               in.Body,
		ChannelID:          in.ChannelID,
		OwnerID:            in.OwnerID,
		FunnelStage:        in.FunnelStage,
		RecurrenceType:     rule.Type,
		RecurrenceInterval: interval,
		DayOfWeek:          in.DayOfWeek,
		DayOfMonth:         in.DayOfMonth,
		StartDate:          in.StartDate,
		EndDate:            in.EndDate,
		NextExecutionDate:  next,
		IsActive:           true,
	}
	if err := s.Repo.Create(sched); err != nil {
		return nil, err
	}
	return sched, nil
}

func (s *ScheduleService) List(page, pageSize int, stage string) ([]model.RecurringSchedule, map[string]int, error) {
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

	ptrs, total, err := s.Repo.List(offset, pageSize, stage)
	if err != nil {
		return nil, nil, err
	}

	schedules := make([]model.RecurringSchedule, len(ptrs))
	for i, sc := range ptrs {
		schedules[i] = *sc
	}

	totalPages := (total + pageSize - 1) / pageSize
	pagination := map[string]int{
		"page":        page,
		"page_size":   pageSize,
		"total_count": total,
		"total_pages": totalPages,
	}
	return schedules, pagination, nil
}

func (s *ScheduleService) Get(id string) (*model.RecurringSchedule, error) {
	return s.Repo.GetByID(id)
}

func (s *ScheduleService) Delete(id string) error {
	return s.Repo.Delete(id)
}

// Toggle flips a schedule between active and inactive and returns the new
// state.
func (s *ScheduleService) Toggle(id string) (bool, error) {
	sched, err := s.Repo.GetByID(id)
	if err != nil {
		return false, err
	}
	if sched == nil {
		return false, apperrors.NewNotFound("recurring schedule", id)
	}
	active := !sched.IsActive
	if err := s.Repo.SetActive(id, active); err != nil {
		return false, err
	}
	return active, nil
}

func (s *ScheduleService) CountByStage() (map[string]int, error) {
	return s.Repo.CountByStage()
}

func endOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 23, 59, 59, 0, t.Location())
}
