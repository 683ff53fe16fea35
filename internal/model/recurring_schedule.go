// internal/model/recurring_schedule.go
package model

import "time"

type RecurrenceType string

const (
	RecurrenceDaily   RecurrenceType = "daily"
	RecurrenceWeekly  RecurrenceType = "weekly"
	RecurrenceMonthly RecurrenceType = "monthly"
)

// RecurringSchedule is a recurring rule plus its rolling cursor.
// NextExecutionDate is the single authoritative "fires next" date; every
// successful fire advances it together with ExecutionsCount.
type RecurringSchedule struct {
	ID                 string         `db:"id" json:"id"`
	RecipientName      string         `db:"recipient_name" json:"recipient_name"`
	RecipientPhone     string         `db:"recipient_phone" json:"recipient_phone"`
	Body               string         `db:"body" json:"body"`
	ChannelID          string         `db:"channel_id" json:"channel_id"`
	OwnerID            string         `db:"owner_id" json:"owner_id"`
	FunnelStage        string         `db:"funnel_stage" json:"funnel_stage"`
	RecurrenceType     RecurrenceType `db:"recurrence_type" json:"recurrence_type"`
	RecurrenceInterval int            `db:"recurrence_interval" json:"recurrence_interval"`
	DayOfWeek          *int           `db:"day_of_week" json:"day_of_week,omitempty"`
	DayOfMonth         *int           `db:"day_of_month" json:"day_of_month,omitempty"`
	StartDate          time.Time      `db:"start_date" json:"start_date"`
	EndDate            *time.Time     `db:"end_date" json:"end_date,omitempty"`
	NextExecutionDate  time.Time      `db:"next_execution_date" json:"next_execution_date"`
	IsActive           bool           `db:"is_active" json:"is_active"`
	ExecutionsCount    int            `db:"executions_count" json:"executions_count"`
	LastExecutionDate  *time.Time     `db:"last_execution_date" json:"last_execution_date,omitempty"`
	CreatedAt          time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time      `db:"updated_at" json:"updated_at"`
}
