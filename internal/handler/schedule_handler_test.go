package handler_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/vendaops/vendaops-backend/internal/apperrors"
	"github.com/vendaops/vendaops-backend/internal/handler"
	"github.com/vendaops/vendaops-backend/internal/model"
	"github.com/vendaops/vendaops-backend/internal/service"
)

type memRecurringRepo struct {
	mu        sync.Mutex
	schedules map[string]*model.RecurringSchedule
	seq       int
}

func newMemRecurringRepo() *memRecurringRepo {
	return &memRecurringRepo{schedules: map[string]*model.RecurringSchedule{}}
}

func (r *memRecurringRepo) Create(s *model.RecurringSchedule) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s.ID == "" {
		r.seq++
		s.ID = fmt.Sprintf("sched-%d", r.seq)
	}
	cp := *s
	r.schedules[s.ID] = &cp
	return nil
}

func (r *memRecurringRepo) GetByID(id string) (*model.RecurringSchedule, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.schedules[id]
	if !ok {
		return nil, nil
	}
	cp := *s
	return &cp, nil
}

func (r *memRecurringRepo) List(offset, limit int, stage string) ([]*model.RecurringSchedule, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	all := []*model.RecurringSchedule{}
	for _, s := range r.schedules {
		if stage != "" && s.FunnelStage != stage {
			continue
		}
		cp := *s
		all = append(all, &cp)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID < all[j].ID })
	total := len(all)
	if offset >= total {
		return []*model.RecurringSchedule{}, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return all[offset:end], total, nil
}

func (r *memRecurringRepo) Delete(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.schedules, id)
	return nil
}

func (r *memRecurringRepo) SetActive(id string, active bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.schedules[id]; ok {
		s.IsActive = active
	}
	return nil
}

func (r *memRecurringRepo) GetDue(now time.Time, limit int) ([]*model.RecurringSchedule, error) {
	return nil, nil
}

func (r *memRecurringRepo) Advance(id string, expectedNext, next time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.schedules[id]
	if !ok || !s.NextExecutionDate.Equal(expectedNext) {
		return apperrors.ErrConcurrencyLost
	}
	s.NextExecutionDate = next
	s.LastExecutionDate = &expectedNext
	s.ExecutionsCount++
	return nil
}

func (r *memRecurringRepo) Retire(id string, expectedNext time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.schedules[id]
	if !ok || !s.NextExecutionDate.Equal(expectedNext) {
		return apperrors.ErrConcurrencyLost
	}
	s.IsActive = false
	s.LastExecutionDate = &expectedNext
	s.ExecutionsCount++
	return nil
}

func (r *memRecurringRepo) CountByStage() (map[string]int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	stats := map[string]int{}
	for _, s := range r.schedules {
		stats[s.FunnelStage]++
	}
	return stats, nil
}

func newScheduleRouter(repo *memRecurringRepo, now time.Time) *chi.Mux {
	svc := &service.ScheduleService{
		Repo: repo,
		Log:  zerolog.Nop(),
		Now:  func() time.Time { return now },
	}
	h := &handler.ScheduleHandler{Service: svc}

	r := chi.NewRouter()
	r.Post("/recurring-schedules", h.Create)
	r.Get("/recurring-schedules", h.List)
	r.Get("/recurring-schedules/{id}", h.Get)
	r.Delete("/recurring-schedules/{id}", h.Delete)
	r.Post("/recurring-schedules/{id}/toggle", h.Toggle)
	return r
}

func TestScheduleCreateEndpoint(t *testing.T) {
	now := time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC)
	router := newScheduleRouter(newMemRecurringRepo(), now)

	body := map[string]interface{}{
		"recipient_phone": "5511999990000",
		"body":            "weekly check-in",
		"channel_id":      "instance-main",
		"funnel_stage":    "prospecting",
		"recurrence_type": "weekly",
		"day_of_week":     1,
		"start_date":      "2024-03-06T09:00:00Z",
	}
	payload, _ := json.Marshal(body)

	req := httptest.NewRequest(http.MethodPost, "/recurring-schedules", bytes.NewReader(payload))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var created model.RecurringSchedule
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	want := time.Date(2024, time.March, 11, 9, 0, 0, 0, time.UTC)
	if !created.NextExecutionDate.Equal(want) {
		t.Errorf("next_execution_date = %v, want %v", created.NextExecutionDate, want)
	}
	if !created.IsActive {
		t.Error("new schedule not active")
	}
}

func TestScheduleCreateEndpointRejectsBadRule(t *testing.T) {
	now := time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC)
	router := newScheduleRouter(newMemRecurringRepo(), now)

	// Weekly rule without day_of_week.
	payload := []byte(`{
		"recipient_phone": "5511999990000",
		"body": "weekly check-in",
		"channel_id": "instance-main",
		"recurrence_type": "weekly",
		"start_date": "2024-03-06T09:00:00Z"
	}`)

	req := httptest.NewRequest(http.MethodPost, "/recurring-schedules", bytes.NewReader(payload))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestScheduleToggleEndpoint(t *testing.T) {
	now := time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC)
	repo := newMemRecurringRepo()
	repo.Create(&model.RecurringSchedule{
		RecipientPhone:    "5511999990000",
		Body:              "weekly check-in",
		ChannelID:         "instance-main",
		RecurrenceType:    model.RecurrenceDaily,
		StartDate:         now,
		NextExecutionDate: now,
		IsActive:          true,
	})
	router := newScheduleRouter(repo, now)

	req := httptest.NewRequest(http.MethodPost, "/recurring-schedules/sched-1/toggle", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp map[string]bool
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp["is_active"] {
		t.Error("expected is_active=false after toggle")
	}

	req = httptest.NewRequest(http.MethodPost, "/recurring-schedules/missing/toggle", nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Errorf("toggle missing status = %d, want 404", rec.Code)
	}
}

func TestDashboardStatsEndpoint(t *testing.T) {
	now := time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC)
	msgRepo := newMemScheduledRepo()
	msgRepo.Create(&model.ScheduledMessage{Status: model.StatusSent, RecipientPhone: "1", Body: "x", ChannelID: "c", ScheduledAt: now})
	msgRepo.Create(&model.ScheduledMessage{Status: model.StatusPending, RecipientPhone: "1", Body: "x", ChannelID: "c", ScheduledAt: now})
	schedRepo := newMemRecurringRepo()
	schedRepo.Create(&model.RecurringSchedule{FunnelStage: "prospecting", NextExecutionDate: now, StartDate: now})

	h := &handler.DispatchHandler{
		Messages:  &service.MessageService{Repo: msgRepo, Publisher: &noopPublisher{}, Log: zerolog.Nop()},
		Schedules: &service.ScheduleService{Repo: schedRepo, Log: zerolog.Nop()},
	}
	r := chi.NewRouter()
	r.Get("/dashboard/stats", h.Stats)

	req := httptest.NewRequest(http.MethodGet, "/dashboard/stats", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp struct {
		ByStatus map[string]int `json:"scheduled_by_status"`
		ByStage  map[string]int `json:"recurring_by_stage"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.ByStatus["sent"] != 1 || resp.ByStatus["pending"] != 1 {
		t.Errorf("scheduled_by_status = %v", resp.ByStatus)
	}
	if resp.ByStage["prospecting"] != 1 {
		t.Errorf("recurring_by_stage = %v", resp.ByStage)
	}
}
