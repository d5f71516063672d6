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
	"github.com/trezcool/darasa/core/user"
)

// userRow maps the users table; roles are kept as a comma-separated column.
type userRow struct {
	user.User
	RolesStr string `db:"roles"`
}

func (row *userRow) toUser() user.User {
	usr := row.User
	if row.RolesStr != "" {
		usr.Roles = strings.Split(row.RolesStr, ",")
	}
	return usr
}

type userRepository struct {
	db *sqlx.DB
}

var _ user.Repository = (*userRepository)(nil)

func NewUserRepository(db *sqlx.DB) *userRepository {
	return &userRepository{db: db}
}

func (repo *userRepository) CheckUsernameUniqueness(ctx context.Context, username, email string, excludedUsers ...user.User) error {
	q := `SELECT username, email FROM users WHERE ((username <> '' AND username = ?) OR (email <> '' AND email = ?))`
	args := []interface{}{username, email}
	if len(excludedUsers) > 0 {
		ids := make([]string, 0, len(excludedUsers))
		for _, usr := range excludedUsers {
			ids = append(ids, usr.ID)
		}
		q += ` AND id NOT IN (?)`
		args = append(args, ids)
	}
	q, expanded, err := sqlx.In(q, args...)
	if err != nil {
		return err
	}

	var matches []struct {
		Username string `db:"username"`
		Email    string `db:"email"`
	}
	if err := repo.db.SelectContext(ctx, &matches, repo.db.Rebind(q), expanded...); err != nil {
		return err
	}
	for _, m := range matches {
		if username != "" && m.Username == username {
			return user.ErrUsernameExists
		}
	}
	for _, m := range matches {
		if email != "" && m.Email == email {
			return user.ErrEmailExists
		}
	}
	return nil
}

func (repo *userRepository) CreateUser(ctx context.Context, usr user.User) (user.User, error) {
	usr.ID = uuid.New().String()
	_, err := repo.db.ExecContext(ctx, `
		INSERT INTO users (id, name, username, email, is_active, roles, password_hash, created_at, updated_at, last_login)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		usr.ID, usr.Name, usr.Username, usr.Email, usr.IsActive, strings.Join(usr.Roles, ","),
		usr.PasswordHash, usr.CreatedAt, usr.UpdatedAt, usr.LastLogin,
	)
	if err != nil {
		if isUniqueViolation(err, "users_username_uniq_idx") {
			return user.User{}, user.ErrUsernameExists
		}
		if isUniqueViolation(err, "users_email_uniq_idx") {
			return user.User{}, user.ErrEmailExists
		}
		return user.User{}, err
	}
	return usr, nil
}

func (repo *userRepository) GetUserByID(ctx context.Context, id string) (user.User, error) {
	var row userRow
	if err := repo.db.GetContext(ctx, &row, `SELECT * FROM users WHERE id = $1`, id); err != nil {
		if err == sql.ErrNoRows {
			return user.User{}, user.ErrNotFound
		}
		return user.User{}, err
	}
	return row.toUser(), nil
}

func (repo *userRepository) GetUserByUsernameOrEmail(ctx context.Context, username string) (user.User, error) {
	var row userRow
	err := repo.db.GetContext(ctx, &row, `
		SELECT * FROM users WHERE (username <> '' AND username = $1) OR (email <> '' AND email = $1)`, username)
	if err != nil {
		if err == sql.ErrNoRows {
			return user.User{}, user.ErrNotFound
		}
		return user.User{}, err
	}
	return row.toUser(), nil
}

func (repo *userRepository) FilterUsers(ctx context.Context, filter user.QueryFilter, ordering ...core.DBOrdering) ([]user.User, error) {
	q := `SELECT * FROM users`
	var conds []string
	var args []interface{}

	if filter.Search != "" {
		args = append(args, "%"+filter.Search+"%")
		conds = append(conds, fmt.Sprintf(`(name ILIKE $%[1]d OR username ILIKE $%[1]d OR email ILIKE $%[1]d)`, len(args)))
	}
	if len(filter.Roles) > 0 {
		roleConds := make([]string, 0, len(filter.Roles))
		for _, role := range filter.Roles {
			args = append(args, "%,"+role+",%")
			roleConds = append(roleConds, fmt.Sprintf(`(',' || roles || ',') LIKE $%d`, len(args)))
		}
		conds = append(conds, "("+strings.Join(roleConds, " OR ")+")")
	}
	if filter.IsActive != nil {
		args = append(args, *filter.IsActive)
		conds = append(conds, fmt.Sprintf(`is_active = $%d`, len(args)))
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

	var rows []userRow
	if err := repo.db.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, err
	}
	users := make([]user.User, len(rows))
	for i := range rows {
		users[i] = rows[i].toUser()
	}
	return users, nil
}

func (repo *userRepository) UpdateUser(ctx context.Context, usr user.User, isActive *bool) (user.User, error) {
	// only save set fields
	q := `
		UPDATE users
		SET name = $1, username = $2, email = $3, updated_at = $4`
	args := []interface{}{usr.Name, usr.Username, usr.Email, time.Now().UTC()}

	if usr.Roles != nil {
		args = append(args, strings.Join(usr.Roles, ","))
		q += fmt.Sprintf(`, roles = $%d`, len(args))
	}
	if len(usr.PasswordHash) > 0 {
		args = append(args, usr.PasswordHash)
		q += fmt.Sprintf(`, password_hash = $%d`, len(args))
	}
	if usr.LastLogin.Valid {
		args = append(args, usr.LastLogin)
		q += fmt.Sprintf(`, last_login = $%d`, len(args))
	}
	if isActive != nil {
		args = append(args, *isActive)
		q += fmt.Sprintf(`, is_active = $%d`, len(args))
	}
	args = append(args, usr.ID)
	q += fmt.Sprintf(` WHERE id = $%d RETURNING *`, len(args))

	var row userRow
	if err := repo.db.GetContext(ctx, &row, q, args...); err != nil {
		if err == sql.ErrNoRows {
			return user.User{}, user.ErrNotFound
		}
		if isUniqueViolation(err, "users_username_uniq_idx") {
			return user.User{}, user.ErrUsernameExists
		}
		if isUniqueViolation(err, "users_email_uniq_idx") {
			return user.User{}, user.ErrEmailExists
		}
		return user.User{}, err
	}
	return row.toUser(), nil
}

func (repo *userRepository) DeleteUsersByID(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	q, args, err := sqlx.In(`DELETE FROM users WHERE id IN (?)`, ids)
	if err != nil {
		return err
	}
	_, err = repo.db.ExecContext(ctx, repo.db.Rebind(q), args...)
	return err
}
