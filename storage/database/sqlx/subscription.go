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
	"github.com/trezcool/darasa/core/subscription"
)

type subscriptionRepository struct {
	db *sqlx.DB
}

var _ subscription.Repository = (*subscriptionRepository)(nil)

func NewSubscriptionRepository(db *sqlx.DB) *subscriptionRepository {
	return &subscriptionRepository{db: db}
}

func (repo *subscriptionRepository) CreateSubscription(ctx context.Context, sub subscription.Subscription) (subscription.Subscription, error) {
	sub.ID = uuid.New().String()
	_, err := repo.db.ExecContext(ctx, `
		INSERT INTO subscriptions (id, student_id, teacher_id, course_id, package_id, sessions_total,
			sessions_remaining, postpone_total, postpone_remaining, status, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		sub.ID, sub.StudentID, sub.TeacherID, sub.CourseID, sub.PackageID, sub.SessionsTotal,
		sub.SessionsRemaining, sub.PostponeTotal, sub.PostponeRemaining, sub.Status, sub.Version,
		sub.CreatedAt, sub.UpdatedAt,
	)
	if err != nil {
		return subscription.Subscription{}, err
	}
	return sub, nil
}

func (repo *subscriptionRepository) GetSubscriptionByID(ctx context.Context, id string) (subscription.Subscription, error) {
	var sub subscription.Subscription
	if err := repo.db.GetContext(ctx, &sub, `SELECT * FROM subscriptions WHERE id = $1`, id); err != nil {
		if err == sql.ErrNoRows {
			return subscription.Subscription{}, subscription.ErrNotFound
		}
		return subscription.Subscription{}, err
	}
	return sub, nil
}

func (repo *subscriptionRepository) FilterSubscriptions(ctx context.Context, filter subscription.QueryFilter, ordering ...core.DBOrdering) ([]subscription.Subscription, error) {
	q := `SELECT * FROM subscriptions`
	var conds []string
	var args []interface{}

	if filter.StudentID != "" {
		args = append(args, filter.StudentID)
		conds = append(conds, fmt.Sprintf(`student_id = $%d`, len(args)))
	}
	if filter.TeacherID != "" {
		args = append(args, filter.TeacherID)
		conds = append(conds, fmt.Sprintf(`teacher_id = $%d`, len(args)))
	}
	if len(filter.Statuses) > 0 {
		ph := make([]string, 0, len(filter.Statuses))
		for _, status := range filter.Statuses {
			args = append(args, status)
			ph = append(ph, fmt.Sprintf("$%d", len(args)))
		}
		conds = append(conds, fmt.Sprintf(`status IN (%s)`, strings.Join(ph, ", ")))
	}
	if !filter.CreatedFrom.IsZero() {
		args = append(args, filter.CreatedFrom)
		conds = append(conds, fmt.Sprintf(`created_at >= $%d`, len(args)))
	}
	if !filter.CreatedTo.IsZero() {
		args = append(args, filter.CreatedTo)
		conds = append(conds, fmt.Sprintf(`created_at <= $%d`, len(args)))
	}
	if len(conds) > 0 {
		q += " WHERE " + strings.Join(conds, " AND ")
	}
	q += orderingClause(ordering, "created_at DESC")

	var subs []subscription.Subscription
	if err := repo.db.SelectContext(ctx, &subs, q, args...); err != nil {
		return nil, err
	}
	return subs, nil
}

func (repo *subscriptionRepository) UpdateSubscriptionStatus(ctx context.Context, id string, status subscription.Status, version int) (subscription.Subscription, error) {
	var sub subscription.Subscription
	err := repo.db.GetContext(ctx, &sub, `
		UPDATE subscriptions
		SET status = $1, version = version + 1, updated_at = $2
		WHERE id = $3 AND version = $4
		RETURNING *`,
		status, time.Now().UTC(), id, version,
	)
	if err == sql.ErrNoRows {
		return subscription.Subscription{}, repo.casError(ctx, id)
	}
	return sub, err
}

func (repo *subscriptionRepository) ActivateSubscription(ctx context.Context, id string) (subscription.Subscription, error) {
	_, err := repo.db.ExecContext(ctx, `
		UPDATE subscriptions
		SET status = $1, version = version + 1, updated_at = $2
		WHERE id = $3 AND status = $4`,
		subscription.StatusActive, time.Now().UTC(), id, subscription.StatusPending,
	)
	if err != nil {
		return subscription.Subscription{}, err
	}
	return repo.GetSubscriptionByID(ctx, id)
}

func (repo *subscriptionRepository) SetSubscriptionTeacher(ctx context.Context, id, teacherID string, version int) (subscription.Subscription, error) {
	var sub subscription.Subscription
	err := repo.db.GetContext(ctx, &sub, `
		UPDATE subscriptions
		SET teacher_id = $1, version = version + 1, updated_at = $2
		WHERE id = $3 AND version = $4
		RETURNING *`,
		teacherID, time.Now().UTC(), id, version,
	)
	if err == sql.ErrNoRows {
		return subscription.Subscription{}, repo.casError(ctx, id)
	}
	return sub, err
}

func (repo *subscriptionRepository) DecrementSessionsRemaining(ctx context.Context, id string) (subscription.Subscription, error) {
	// single statement so concurrent completions never double-spend, floor
	// at 0 and flip to completed when the last session is burnt
	var sub subscription.Subscription
	err := repo.db.GetContext(ctx, &sub, `
		UPDATE subscriptions
		SET sessions_remaining = GREATEST(sessions_remaining - 1, 0),
		    status = CASE WHEN sessions_remaining <= 1 AND status IN ($1, $2) THEN $3 ELSE status END,
		    version = version + 1,
		    updated_at = $4
		WHERE id = $5
		RETURNING *`,
		subscription.StatusPending, subscription.StatusActive, subscription.StatusCompleted,
		time.Now().UTC(), id,
	)
	if err == sql.ErrNoRows {
		return subscription.Subscription{}, subscription.ErrNotFound
	}
	return sub, err
}

func (repo *subscriptionRepository) ConsumePostponeCredit(ctx context.Context, id string) (subscription.Subscription, bool, error) {
	var sub subscription.Subscription
	err := repo.db.GetContext(ctx, &sub, `
		UPDATE subscriptions
		SET postpone_remaining = postpone_remaining - 1, version = version + 1, updated_at = $1
		WHERE id = $2 AND postpone_remaining > 0
		RETURNING *`,
		time.Now().UTC(), id,
	)
	if err == sql.ErrNoRows {
		// no credit left; report the current state untouched
		sub, err := repo.GetSubscriptionByID(ctx, id)
		if err != nil {
			return subscription.Subscription{}, false, err
		}
		return sub, false, nil
	}
	if err != nil {
		return subscription.Subscription{}, false, err
	}
	return sub, true, nil
}

func (repo *subscriptionRepository) ReturnPostponeCredit(ctx context.Context, id string) (subscription.Subscription, error) {
	var sub subscription.Subscription
	err := repo.db.GetContext(ctx, &sub, `
		UPDATE subscriptions
		SET postpone_remaining = LEAST(postpone_remaining + 1, postpone_total), version = version + 1, updated_at = $1
		WHERE id = $2
		RETURNING *`,
		time.Now().UTC(), id,
	)
	if err == sql.ErrNoRows {
		return subscription.Subscription{}, subscription.ErrNotFound
	}
	return sub, err
}

// casError tells a lost version race apart from a missing row.
func (repo *subscriptionRepository) casError(ctx context.Context, id string) error {
	if _, err := repo.GetSubscriptionByID(ctx, id); err != nil {
		return err
	}
	return subscription.ErrConflict
}
