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
	"github.com/trezcool/darasa/core/schedule"
)

type scheduleRepository struct {
	db *sqlx.DB
}

var _ schedule.Repository = (*scheduleRepository)(nil)

func NewScheduleRepository(db *sqlx.DB) *scheduleRepository {
	return &scheduleRepository{db: db}
}

func (repo *scheduleRepository) CreateWeek(ctx context.Context, wk schedule.SubscriptionWeek) (schedule.SubscriptionWeek, error) {
	wk.ID = uuid.New().String()
	_, err := repo.db.ExecContext(ctx, `
		INSERT INTO subscription_weeks (id, subscription_id, week_index, status, submitted_at, reviewed_at,
			review_note, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		wk.ID, wk.SubscriptionID, wk.WeekIndex, wk.Status, wk.SubmittedAt, wk.ReviewedAt,
		wk.ReviewNote, wk.Version, wk.CreatedAt, wk.UpdatedAt,
	)
	if err != nil {
		// another caller grabbed this week index first
		if isUniqueViolation(err, "subscription_weeks_subscription_id_week_index_key") {
			return schedule.SubscriptionWeek{}, schedule.ErrConflict
		}
		return schedule.SubscriptionWeek{}, err
	}
	return wk, nil
}

func (repo *scheduleRepository) GetWeekByID(ctx context.Context, id string) (schedule.SubscriptionWeek, error) {
	var wk schedule.SubscriptionWeek
	if err := repo.db.GetContext(ctx, &wk, `SELECT * FROM subscription_weeks WHERE id = $1`, id); err != nil {
		if err == sql.ErrNoRows {
			return schedule.SubscriptionWeek{}, schedule.ErrWeekNotFound
		}
		return schedule.SubscriptionWeek{}, err
	}
	return wk, nil
}

func (repo *scheduleRepository) FilterWeeks(ctx context.Context, filter schedule.QueryFilter, ordering ...core.DBOrdering) ([]schedule.SubscriptionWeek, error) {
	q := `SELECT * FROM subscription_weeks`
	var conds []string
	var args []interface{}

	if filter.SubscriptionID != "" {
		args = append(args, filter.SubscriptionID)
		conds = append(conds, fmt.Sprintf(`subscription_id = $%d`, len(args)))
	}
	if len(filter.Statuses) > 0 {
		ph := make([]string, 0, len(filter.Statuses))
		for _, status := range filter.Statuses {
			args = append(args, status)
			ph = append(ph, fmt.Sprintf("$%d", len(args)))
		}
		conds = append(conds, fmt.Sprintf(`status IN (%s)`, strings.Join(ph, ", ")))
	}
	if len(conds) > 0 {
		q += " WHERE " + strings.Join(conds, " AND ")
	}
	q += orderingClause(ordering, "week_index ASC")

	var weeks []schedule.SubscriptionWeek
	if err := repo.db.SelectContext(ctx, &weeks, q, args...); err != nil {
		return nil, err
	}
	return weeks, nil
}

func (repo *scheduleRepository) NextWeekIndex(ctx context.Context, subscriptionID string) (int, error) {
	var idx int
	err := repo.db.GetContext(ctx, &idx, `
		SELECT COALESCE(MAX(week_index), 0) + 1 FROM subscription_weeks WHERE subscription_id = $1`, subscriptionID)
	return idx, err
}

func (repo *scheduleRepository) HasOpenWeek(ctx context.Context, subscriptionID string) (bool, error) {
	var open bool
	err := repo.db.GetContext(ctx, &open, `
		SELECT EXISTS (SELECT 1 FROM subscription_weeks WHERE subscription_id = $1 AND status IN ($2, $3))`,
		subscriptionID, schedule.WeekStatusDraft, schedule.WeekStatusSubmitted,
	)
	return open, err
}

func (repo *scheduleRepository) UpdateWeekStatus(ctx context.Context, wk schedule.SubscriptionWeek, version int) (schedule.SubscriptionWeek, error) {
	var updated schedule.SubscriptionWeek
	err := repo.db.GetContext(ctx, &updated, `
		UPDATE subscription_weeks
		SET status = $1, submitted_at = $2, reviewed_at = $3, review_note = $4, version = version + 1, updated_at = $5
		WHERE id = $6 AND version = $7
		RETURNING *`,
		wk.Status, wk.SubmittedAt, wk.ReviewedAt, wk.ReviewNote, time.Now().UTC(), wk.ID, version,
	)
	if err == sql.ErrNoRows {
		// tell a lost version race apart from a missing row
		if _, err := repo.GetWeekByID(ctx, wk.ID); err != nil {
			return schedule.SubscriptionWeek{}, err
		}
		return schedule.SubscriptionWeek{}, schedule.ErrConflict
	}
	return updated, err
}

func (repo *scheduleRepository) CreateSlot(ctx context.Context, slot schedule.WeekSlot) (schedule.WeekSlot, error) {
	slot.ID = uuid.New().String()
	_, err := repo.db.ExecContext(ctx, `
		INSERT INTO week_slots (id, week_id, start_at, end_at, note, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		slot.ID, slot.WeekID, slot.StartAt, slot.EndAt, slot.Note, slot.CreatedAt,
	)
	if err != nil {
		return schedule.WeekSlot{}, err
	}
	return slot, nil
}

func (repo *scheduleRepository) GetWeekSlots(ctx context.Context, weekID string) ([]schedule.WeekSlot, error) {
	var slots []schedule.WeekSlot
	err := repo.db.SelectContext(ctx, &slots, `
		SELECT * FROM week_slots WHERE week_id = $1 ORDER BY start_at`, weekID)
	return slots, err
}
