package repository

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/vendaops/vendaops-backend/internal/apperrors"
	"github.com/vendaops/vendaops-backend/internal/model"
)

type ScheduledMessageRepositoryInterface interface {
	// CRUD used by the authoring surface
	Create(m *model.ScheduledMessage) error
	GetByID(id string) (*model.ScheduledMessage, error)
	List(offset, limit int, status string) ([]*model.ScheduledMessage, int, error)
	Delete(id string) error
	Approve(id string) error

	// Dispatch engine
	GetDue(now time.Time, limit int) ([]*model.ScheduledMessage, error)
	MarkSent(id string, sentAt time.Time) error
	MarkFailed(id string, errMsg string) error
	Retry(id string) error
	Cancel(id string) error

	// Projections
	CountByStatus() (map[string]int, error)
}

type ScheduledMessageRepository struct {
	DB *sql.DB
}

const scheduledColumns = `id, recipient_name, recipient_phone, body, channel_id, owner_id,
       scheduled_at, status, requires_approval, sent_at, COALESCE(error_message, ''),
       created_at, updated_at`

func (r *ScheduledMessageRepository) Create(m *model.ScheduledMessage) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.Status == "" {
		m.Status = model.StatusPending
	}
	m.CreatedAt = time.Now().UTC()
	m.UpdatedAt = m.CreatedAt

	query := `
        INSERT INTO scheduled_messages
        (id, recipient_name, recipient_phone, body, channel_id, owner_id,
         scheduled_at, status, requires_approval, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
    `
	_, err := r.DB.Exec(query,
		m.ID, m.RecipientName, m.RecipientPhone, m.Body, m.ChannelID, m.OwnerID,
		m.ScheduledAt, m.Status, m.RequiresApproval, m.CreatedAt, m.UpdatedAt,
	)
	return err
}

func (r *ScheduledMessageRepository) GetByID(id string) (*model.ScheduledMessage, error) {
	query := fmt.Sprintf(`SELECT %s FROM scheduled_messages WHERE id=$1`, scheduledColumns)
	m, err := scanScheduled(r.DB.QueryRow(query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return m, err
}

func (r *ScheduledMessageRepository) List(offset, limit int, status string) ([]*model.ScheduledMessage, int, error) {
	query := fmt.Sprintf(`SELECT %s FROM scheduled_messages WHERE 1=1`, scheduledColumns)
	args := []interface{}{}
	argPos := 1

	if status != "" {
		query += fmt.Sprintf(" AND status=$%d", argPos)
		args = append(args, status)
		argPos++
	}
	query += fmt.Sprintf(" ORDER BY scheduled_at DESC LIMIT $%d OFFSET $%d", argPos, argPos+1)
	args = append(args, limit, offset)

	rows, err := r.DB.Query(query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	messages := []*model.ScheduledMessage{}
	for rows.Next() {
		m, err := scanScheduled(rows)
		if err != nil {
			return nil, 0, err
		}
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	countQuery := `SELECT COUNT(*) FROM scheduled_messages`
	countArgs := []interface{}{}
	if status != "" {
		countQuery += ` WHERE status=$1`
		countArgs = append(countArgs, status)
	}
	var total int
	if err := r.DB.QueryRow(countQuery, countArgs...).Scan(&total); err != nil {
		return nil, 0, err
	}
	return messages, total, nil
}

// Delete is idempotent: removing a missing id is not an error.
func (r *ScheduledMessageRepository) Delete(id string) error {
	_, err := r.DB.Exec(`DELETE FROM scheduled_messages WHERE id=$1`, id)
	return err
}

// Approve clears the approval gate so the message can be auto-dispatched.
func (r *ScheduledMessageRepository) Approve(id string) error {
	_, err := r.DB.Exec(`UPDATE scheduled_messages SET requires_approval=FALSE, updated_at=NOW() WHERE id=$1`, id)
	return err
}

// GetDue returns pending, approval-cleared messages whose fire time has
// arrived.
func (r *ScheduledMessageRepository) GetDue(now time.Time, limit int) ([]*model.ScheduledMessage, error) {
	query := fmt.Sprintf(`
        SELECT %s FROM scheduled_messages
        WHERE status='pending' AND requires_approval=FALSE AND scheduled_at <= $1
        ORDER BY scheduled_at
        LIMIT $2
    `, scheduledColumns)
	rows, err := r.DB.Query(query, now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	messages := []*model.ScheduledMessage{}
	for rows.Next() {
		m, err := scanScheduled(rows)
		if err != nil {
			return nil, err
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

// MarkSent is the terminal write of a successful dispatch attempt. The
// WHERE status='pending' clause is the claim: zero rows matched means
// another worker already consumed this occurrence.
func (r *ScheduledMessageRepository) MarkSent(id string, sentAt time.Time) error {
	res, err := r.DB.Exec(`
        UPDATE scheduled_messages
        SET status='sent', sent_at=$2, error_message=NULL, updated_at=NOW()
        WHERE id=$1 AND status='pending'
    `, id, sentAt)
	return conditional(res, err)
}

// MarkFailed is the terminal write of a failed dispatch attempt.
func (r *ScheduledMessageRepository) MarkFailed(id string, errMsg string) error {
	res, err := r.DB.Exec(`
        UPDATE scheduled_messages
        SET status='failed', error_message=$2, sent_at=NULL, updated_at=NOW()
        WHERE id=$1 AND status='pending'
    `, id, errMsg)
	return conditional(res, err)
}

// Retry resets a failed or cancelled message so the next poll picks it up
// again.
func (r *ScheduledMessageRepository) Retry(id string) error {
	res, err := r.DB.Exec(`
        UPDATE scheduled_messages
        SET status='pending', error_message=NULL, sent_at=NULL, updated_at=NOW()
        WHERE id=$1 AND status IN ('failed', 'cancelled')
    `, id)
	return conditional(res, err)
}

func (r *ScheduledMessageRepository) Cancel(id string) error {
	res, err := r.DB.Exec(`
        UPDATE scheduled_messages
        SET status='cancelled', updated_at=NOW()
        WHERE id=$1 AND status='pending'
    `, id)
	return conditional(res, err)
}

func (r *ScheduledMessageRepository) CountByStatus() (map[string]int, error) {
	rows, err := r.DB.Query(`SELECT status, COUNT(*) FROM scheduled_messages GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	stats := map[string]int{"pending": 0, "sent": 0, "failed": 0, "cancelled": 0}
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		stats[status] = count
	}
	return stats, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanScheduled(row rowScanner) (*model.ScheduledMessage, error) {
	var m model.ScheduledMessage
	err := row.Scan(
		&m.ID, &m.RecipientName, &m.RecipientPhone, &m.Body, &m.ChannelID, &m.OwnerID,
		&m.ScheduledAt, &m.Status, &m.RequiresApproval, &m.SentAt, &m.ErrorMessage,
		&m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func conditional(res sql.Result, err error) error {
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return apperrors.ErrConcurrencyLost
	}
	return nil
}

var _ ScheduledMessageRepositoryInterface = (*ScheduledMessageRepository)(nil)
