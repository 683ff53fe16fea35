package repository

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/vendaops/vendaops-backend/internal/model"
)

type RecurringScheduleRepositoryInterface interface {
	// CRUD used by the authoring surface
	Create(s *model.RecurringSchedule) error
	GetByID(id string) (*model.RecurringSchedule, error)
	List(offset, limit int, stage string) ([]*model.RecurringSchedule, int, error)
	Delete(id string) error
	SetActive(id string, active bool) error

	// Dispatch engine
	GetDue(now time.Time, limit int) ([]*model.RecurringSchedule, error)
	Advance(id string, expectedNext, next time.Time) error
	Retire(id string, expectedNext time.Time) error

	// Projections
	CountByStage() (map[string]int, error)
}

type RecurringScheduleRepository struct {
	DB *sql.DB
}

const recurringColumns = `id, recipient_name, recipient_phone, body, channel_id, owner_id,
       funnel_stage, recurrence_type, recurrence_interval, day_of_week, day_of_month,
       start_date, end_date, next_execution_date, is_active, executions_count,
       last_execution_date, created_at, updated_at`

func (r *RecurringScheduleRepository) Create(s *model.RecurringSchedule) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	s.CreatedAt = time.Now().UTC()
	s.UpdatedAt = s.CreatedAt

	query := `
        INSERT INTO recurring_schedules
        (id, recipient_name, recipient_phone, body, channel_id, owner_id,
         funnel_stage, recurrence_type, recurrence_interval, day_of_week, day_of_month,
         start_date, end_date, next_execution_date, is_active, executions_count,
         created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
    `
	_, err := r.DB.Exec(query,
		s.ID, s.RecipientName, s.RecipientPhone, s.Body, s.ChannelID, s.OwnerID,
		s.FunnelStage, s.RecurrenceType, s.RecurrenceInterval, s.DayOfWeek, s.DayOfMonth,
		s.StartDate, s.EndDate, s.NextExecutionDate, s.IsActive, s.ExecutionsCount,
		s.CreatedAt, s.UpdatedAt,
	)
	return err
}

func (r *RecurringScheduleRepository) GetByID(id string) (*model.RecurringSchedule, error) {
	query := fmt.Sprintf(`SELECT %s FROM recurring_schedules WHERE id=$1`, recurringColumns)
	s, err := scanRecurring(r.DB.QueryRow(query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return s, err
}

func (r *RecurringScheduleRepository) List(offset, limit int, stage string) ([]*model.RecurringSchedule, int, error) {
	query := fmt.Sprintf(`SELECT %s FROM recurring_schedules WHERE 1=1`, recurringColumns)
	args := []interface{}{}
	argPos := 1

	if stage != "" {
		query += fmt.Sprintf(" AND funnel_stage=$%d", argPos)
		args = append(args, stage)
		argPos++
	}
	query += fmt.Sprintf(" ORDER BY next_execution_date LIMIT $%d OFFSET $%d", argPos, argPos+1)
	args = append(args, limit, offset)

	rows, err := r.DB.Query(query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	schedules := []*model.RecurringSchedule{}
	for rows.Next() {
		s, err := scanRecurring(rows)
		if err != nil {
			return nil, 0, err
		}
		schedules = append(schedules, s)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	countQuery := `SELECT COUNT(*) FROM recurring_schedules`
	countArgs := []interface{}{}
	if stage != "" {
		countQuery += ` WHERE funnel_stage=$1`
		countArgs = append(countArgs, stage)
	}
	var total int
	if err := r.DB.QueryRow(countQuery, countArgs...).Scan(&total); err != nil {
		return nil, 0, err
	}
	return schedules, total, nil
}

// Delete is idempotent to a missing id.
func (r *RecurringScheduleRepository) Delete(id string) error {
	_, err := r.DB.Exec(`DELETE FROM recurring_schedules WHERE id=$1`, id)
	return err
}

func (r *RecurringScheduleRepository) SetActive(id string, active bool) error {
	_, err := r.DB.Exec(`UPDATE recurring_schedules SET is_active=$2, updated_at=NOW() WHERE id=$1`, id, active)
	return err
}

// GetDue returns active rules whose cursor has arrived.
func (r *RecurringScheduleRepository) GetDue(now time.Time, limit int) ([]*model.RecurringSchedule, error) {
	query := fmt.Sprintf(`
        SELECT %s FROM recurring_schedules
        WHERE is_active=TRUE AND next_execution_date <= $1
        ORDER BY next_execution_date
        LIMIT $2
    `, recurringColumns)
	rows, err := r.DB.Query(query, now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	schedules := []*model.RecurringSchedule{}
	for rows.Next() {
		s, err := scanRecurring(rows)
		if err != nil {
			return nil, err
		}
		schedules = append(schedules, s)
	}
	return schedules, rows.Err()
}

// Advance rolls the cursor forward after a successful fire. The WHERE
// next_execution_date=$2 clause makes the rollover a claim: the counter
// and the cursor move together exactly once per occurrence.
func (r *RecurringScheduleRepository) Advance(id string, expectedNext, next time.Time) error {
	res, err := r.DB.Exec(`
        UPDATE recurring_schedules
        SET next_execution_date=$3,
            last_execution_date=$2,
            executions_count=executions_count+1,
            updated_at=NOW()
        WHERE id=$1 AND next_execution_date=$2
    `, id, expectedNext, next)
	return conditional(res, err)
}

// Retire deactivates a rule whose next occurrence would pass its end date.
// The cursor is left unchanged; the fire that triggered retirement still
// counts.
func (r *RecurringScheduleRepository) Retire(id string, expectedNext time.Time) error {
	res, err := r.DB.Exec(`
        UPDATE recurring_schedules
        SET is_active=FALSE,
            last_execution_date=$2,
            executions_count=executions_count+1,
            updated_at=NOW()
        WHERE id=$1 AND next_execution_date=$2
    `, id, expectedNext)
	return conditional(res, err)
}

func (r *RecurringScheduleRepository) CountByStage() (map[string]int, error) {
	rows, err := r.DB.Query(`SELECT funnel_stage, COUNT(*) FROM recurring_schedules GROUP BY funnel_stage`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	stats := map[string]int{}
	for rows.Next() {
		var stage string
		var count int
		if err := rows.Scan(&stage, &count); err != nil {
			return nil, err
		}
		stats[stage] = count
	}
	return stats, rows.Err()
}

func scanRecurring(row rowScanner) (*model.RecurringSchedule, error) {
	var s model.RecurringSchedule
	err := row.Scan(
		&s.ID, &s.RecipientName, &s.RecipientPhone, &s.Body, &s.ChannelID, &s.OwnerID,
		&s.FunnelStage, &s.RecurrenceType, &s.RecurrenceInterval, &s.DayOfWeek, &s.DayOfMonth,
		&s.StartDate, &s.EndDate, &s.NextExecutionDate, &s.IsActive, &s.ExecutionsCount,
		&s.LastExecutionDate, &s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

var _ RecurringScheduleRepositoryInterface = (*RecurringScheduleRepository)(nil)
