package db

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"reelsmith/internal/models"
)

var ErrNotFound = fmt.Errorf("not found")

func (db *DB) CreateUser(ctx context.Context, user *models.User) error {
	query := `
		INSERT INTO users (id, email, password_hash, role, is_approved, manual_budget)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at, updated_at
	`

	return db.QueryRowContext(
		ctx, query,
		user.ID, user.Email, user.PasswordHash, user.Role, user.IsApproved, user.ManualBudget,
	).Scan(&user.CreatedAt, &user.UpdatedAt)
}

func (db *DB) GetUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	return db.scanUser(db.QueryRowContext(ctx, userSelect+` WHERE id = $1`, id))
}

func (db *DB) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return db.scanUser(db.QueryRowContext(ctx, userSelect+` WHERE email = $1`, email))
}

const userSelect = `
	SELECT id, email, password_hash, role, is_approved, manual_budget, created_at, updated_at
	FROM users
`

func (db *DB) scanUser(row *sql.Row) (*models.User, error) {
	user := &models.User{}
	var budget sql.NullString
	err := row.Scan(
		&user.ID, &user.Email, &user.PasswordHash, &user.Role,
		&user.IsApproved, &budget, &user.CreatedAt, &user.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("user %w", ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	if budget.Valid {
		d, err := decimal.NewFromString(budget.String)
		if err != nil {
			return nil, fmt.Errorf("failed to parse manual budget: %w", err)
		}
		user.ManualBudget = &d
	}

	return user, nil
}

func (db *DB) ListUsers(ctx context.Context) ([]models.User, error) {
	rows, err := db.QueryContext(ctx, userSelect+` ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	var users []models.User
	for rows.Next() {
		var u models.User
		var budget sql.NullString
		if err := rows.Scan(
			&u.ID, &u.Email, &u.PasswordHash, &u.Role,
			&u.IsApproved, &budget, &u.CreatedAt, &u.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		if budget.Valid {
			d, err := decimal.NewFromString(budget.String)
			if err != nil {
				return nil, fmt.Errorf("failed to parse manual budget: %w", err)
			}
			u.ManualBudget = &d
		}
		users = append(users, u)
	}

	return users, rows.Err()
}

func (db *DB) CountUsers(ctx context.Context) (int, error) {
	var count int
	err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&count)
	return count, err
}

func (db *DB) SetUserApproval(ctx context.Context, id uuid.UUID, approved bool) error {
	result, err := db.ExecContext(ctx,
		`UPDATE users SET is_approved = $1, updated_at = NOW() WHERE id = $2`, approved, id)
	if err != nil {
		return fmt.Errorf("failed to update approval: %w", err)
	}
	return requireRow(result, "user")
}

func (db *DB) SetUserManualBudget(ctx context.Context, id uuid.UUID, ceiling decimal.Decimal) error {
	result, err := db.ExecContext(ctx,
		`UPDATE users SET manual_budget = $1, updated_at = NOW() WHERE id = $2`, ceiling, id)
	if err != nil {
		return fmt.Errorf("failed to set manual budget: %w", err)
	}
	return requireRow(result, "user")
}

// DeleteUser removes a user; jobs and variations go with it (ON DELETE CASCADE).
func (db *DB) DeleteUser(ctx context.Context, id uuid.UUID) error {
	result, err := db.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	return requireRow(result, "user")
}

func requireRow(result sql.Result, entity string) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%s %w", entity, ErrNotFound)
	}
	return nil
}
