package sqlxrepos

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/trezcool/darasa/core"
	"github.com/trezcool/darasa/core/session"
)

type sessionRepository struct {
	db *sqlx.DB
}

var _ session.Repository = (*sessionRepository)(nil)

func NewSessionRepository(db *sqlx.DB) *sessionRepository {
	return &sessionRepository{db: db}
}

func (repo *sessionRepository) CreateSessionForSlot(ctx context.Context, sess session.Session) (session.Session, bool, error) {
	sess.ID = uuid.New().String()
	res, err := repo.db.ExecContext(ctx, `
		INSERT INTO sessions (id, subscription_id, week_id, slot_id, start_at, end_at, status,
			zoom_meeting_id, zoom_join_url, zoom_start_url, completed_at, postpone_requested_at,
			postpone_approved_at, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		ON CONFLICT (slot_id) DO NOTHING`,
		sess.ID, sess.SubscriptionID, sess.WeekID, sess.SlotID, sess.StartAt, sess.EndAt, sess.Status,
		sess.ZoomMeetingID, sess.ZoomJoinURL, sess.ZoomStartURL, sess.CompletedAt, sess.PostponeRequestedAt,
		sess.PostponeApprovedAt, sess.Version, sess.CreatedAt, sess.UpdatedAt,
	)
	if err != nil {
		return session.Session{}, false, err
	}
	if n, err := res.RowsAffected(); err != nil {
		return session.Session{}, false, err
	} else if n > 0 {
		return sess, true, nil
	}

	// the slot already has its session; hand that one back
	existing, err := repo.getSessionBySlotID(ctx, sess.SlotID)
	return existing, false, err
}

func (repo *sessionRepository) getSessionBySlotID(ctx context.Context, slotID string) (session.Session, error) {
	var sess session.Session
	if err := repo.db.GetContext(ctx, &sess, `SELECT * FROM sessions WHERE slot_id = $1`, slotID); err != nil {
		if err == sql.ErrNoRows {
			return session.Session{}, session.ErrNotFound
		}
		return session.Session{}, err
	}
	return sess, nil
}

func (repo *sessionRepository) GetSessionByID(ctx context.Context, id string) (session.Session, error) {
	var sess session.Session
	if err := repo.db.GetContext(ctx, &sess, `SELECT * FROM sessions WHERE id = $1`, id); err != nil {
		if err == sql.ErrNoRows {
			return session.Session{}, session.ErrNotFound
		}
		return session.Session{}, err
	}
	return sess, nil
}

func (repo *sessionRepository) FilterSessions(ctx context.Context, filter session.QueryFilter, ordering ...core.DBOrdering) ([]session.Session, error) {
	q := `SELECT * FROM sessions`
	var conds []string
	var args []interface{}

	if filter.SubscriptionID != "" {
		args = append(args, filter.SubscriptionID)
		conds = append(conds, fmt.Sprintf(`subscription_id = $%d`, len(args)))
	}
	if filter.WeekID != "" {
		args = append(args, filter.WeekID)
		conds = append(conds, fmt.Sprintf(`week_id = $%d`, len(args)))
	}
	if len(filter.Statuses) > 0 {
		ph := make([]string, 0, len(filter.Statuses))
		for _, status := range filter.Statuses {
			args = append(args, status)
			ph = append(ph, fmt.Sprintf("$%d", len(args)))
		}
		conds = append(conds, fmt.Sprintf(`status IN (%s)`, strings.Join(ph, ", ")))
	}
	if !filter.EndedBefore.IsZero() {
		args = append(args, filter.EndedBefore)
		conds = append(conds, fmt.Sprintf(`end_at < $%d`, len(args)))
	}
	if len(conds) > 0 {
		q += " WHERE " + strings.Join(conds, " AND ")
	}
	q += orderingClause(ordering, "start_at ASC")

	var sessions []session.Session
	if err := repo.db.SelectContext(ctx, &sessions, q, args...); err != nil {
		return nil, err
	}
	return sessions, nil
}

func (repo *sessionRepository) UpdateSessionStatus(ctx context.Context, sess session.Session, version int) (session.Session, error) {
	var updated session.Session
	err := repo.db.GetContext(ctx, &updated, `
		UPDATE sessions
		SET status = $1, completed_at = $2, postpone_requested_at = $3, postpone_approved_at = $4,
		    version = version + 1, updated_at = $5
		WHERE id = $6 AND version = $7
		RETURNING *`,
		sess.Status, sess.CompletedAt, sess.PostponeRequestedAt, sess.PostponeApprovedAt,
		time.Now().UTC(), sess.ID, version,
	)
	if err == sql.ErrNoRows {
		// tell a lost version race apart from a missing row
		if _, err := repo.GetSessionByID(ctx, sess.ID); err != nil {
			return session.Session{}, err
		}
		return session.Session{}, session.ErrConflict
	}
	return updated, err
}

func (repo *sessionRepository) ListExpiredSessions(ctx context.Context, asOf time.Time) ([]session.Session, error) {
	var sessions []session.Session
	err := repo.db.SelectContext(ctx, &sessions, `
		SELECT * FROM sessions WHERE end_at < $1 AND status IN ($2, $3) ORDER BY end_at`,
		asOf, session.StatusScheduled, session.StatusInProgress,
	)
	return sessions, err
}
