package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"circles-backend/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// CircleRepository handles database operations for circles and their
// membership edges.
type CircleRepository struct {
	db *pgxpool.Pool
}

// NewCircleRepository creates a new circle repository.
func NewCircleRepository(db *pgxpool.Pool) *CircleRepository {
	return &CircleRepository{db: db}
}

const circleColumns = `id, name, owner_id, invite_code, background_url, status, created_at, close_at, delete_at, cleaned_up`

func scanCircle(row pgx.Row) (*models.Circle, error) {
	var c models.Circle
	err := row.Scan(
		&c.ID, &c.Name, &c.OwnerID, &c.InviteCode, &c.BackgroundURL,
		&c.Status, &c.CreatedAt, &c.CloseAt, &c.DeleteAt, &c.CleanedUp,
	)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// Create inserts a circle and its owner membership edge in one
// transaction.
func (r *CircleRepository) Create(ctx context.Context, circle *models.Circle) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO circles (id, name, owner_id, invite_code, background_url, status, created_at, close_at, delete_at, cleaned_up)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, circle.ID, circle.Name, circle.OwnerID, circle.InviteCode, circle.BackgroundURL,
		circle.Status, circle.CreatedAt, circle.CloseAt, circle.DeleteAt, circle.CleanedUp)
	if err != nil {
		return fmt.Errorf("failed to create circle: %w", err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO circle_members (circle_id, user_id, joined_at)
		VALUES ($1, $2, $3)
	`, circle.ID, circle.OwnerID, circle.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to add owner membership: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit circle creation: %w", err)
	}
	return nil
}

// GetByID retrieves a circle and its member set by ID.
func (r *CircleRepository) GetByID(ctx context.Context, id string) (*models.Circle, error) {
	circle, err := scanCircle(r.db.QueryRow(ctx,
		`SELECT `+circleColumns+` FROM circles WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("circle %s: %w", id, models.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get circle: %w", err)
	}
	if circle.Members, err = r.members(ctx, id); err != nil {
		return nil, err
	}
	return circle, nil
}

// GetByInviteCode retrieves a circle by its invite code.
func (r *CircleRepository) GetByInviteCode(ctx context.Context, code string) (*models.Circle, error) {
	circle, err := scanCircle(r.db.QueryRow(ctx,
		`SELECT `+circleColumns+` FROM circles WHERE invite_code = $1`, code))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("invite code: %w", models.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get circle by invite code: %w", err)
	}
	if circle.Members, err = r.members(ctx, circle.ID); err != nil {
		return nil, err
	}
	return circle, nil
}

// InviteCodeExists checks whether any circle already uses the code.
func (r *CircleRepository) InviteCodeExists(ctx context.Context, code string) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM circles WHERE invite_code = $1)`, code).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check invite code: %w", err)
	}
	return exists, nil
}

// ListByMember retrieves all circles the user belongs to, newest first.
func (r *CircleRepository) ListByMember(ctx context.Context, uid string) ([]*models.Circle, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+circleColumns+`
		FROM circles c
		JOIN circle_members m ON m.circle_id = c.id
		WHERE m.user_id = $1
		ORDER BY c.created_at DESC
	`, uid)
	if err != nil {
		return nil, fmt.Errorf("failed to list circles: %w", err)
	}
	defer rows.Close()

	var circles []*models.Circle
	for rows.Next() {
		c, err := scanCircle(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan circle: %w", err)
		}
		circles = append(circles, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating circles: %w", err)
	}

	for _, c := range circles {
		if c.Members, err = r.members(ctx, c.ID); err != nil {
			return nil, err
		}
	}
	return circles, nil
}

// AddMember adds a membership edge. Re-adding an existing member is a
// no-op, giving join its set-union semantics.
func (r *CircleRepository) AddMember(ctx context.Context, circleID, uid string, joinedAt time.Time) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO circle_members (circle_id, user_id, joined_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (circle_id, user_id) DO NOTHING
	`, circleID, uid, joinedAt)
	if err != nil {
		return fmt.Errorf("failed to add member: %w", err)
	}
	return nil
}

// RemoveMember deletes a membership edge.
func (r *CircleRepository) RemoveMember(ctx context.Context, circleID, uid string) error {
	_, err := r.db.Exec(ctx,
		`DELETE FROM circle_members WHERE circle_id = $1 AND user_id = $2`, circleID, uid)
	if err != nil {
		return fmt.Errorf("failed to remove member: %w", err)
	}
	return nil
}

// UpdateProfile updates the owner-editable fields of a circle.
func (r *CircleRepository) UpdateProfile(ctx context.Context, circleID, name string, backgroundURL *string) error {
	result, err := r.db.Exec(ctx,
		`UPDATE circles SET name = $1, background_url = $2 WHERE id = $3`,
		name, backgroundURL, circleID)
	if err != nil {
		return fmt.Errorf("failed to update circle: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("circle %s: %w", circleID, models.ErrNotFound)
	}
	return nil
}

// Delete removes a circle row; membership edges and photo metadata go
// with it via ON DELETE CASCADE.
func (r *CircleRepository) Delete(ctx context.Context, circleID string) error {
	result, err := r.db.Exec(ctx, `DELETE FROM circles WHERE id = $1`, circleID)
	if err != nil {
		return fmt.Errorf("failed to delete circle: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("circle %s: %w", circleID, models.ErrNotFound)
	}
	return nil
}

// ListExpired returns up to limit circles past their delete deadline
// that have not been cleaned up yet. The cleaned_up predicate is what
// makes the scheduled cleanup idempotent across runs.
func (r *CircleRepository) ListExpired(ctx context.Context, now time.Time, limit int) ([]*models.Circle, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+circleColumns+`
		FROM circles
		WHERE delete_at <= $1 AND cleaned_up = false
		ORDER BY delete_at
		LIMIT $2
	`, now, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list expired circles: %w", err)
	}
	defer rows.Close()

	var circles []*models.Circle
	for rows.Next() {
		c, err := scanCircle(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan circle: %w", err)
		}
		circles = append(circles, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating expired circles: %w", err)
	}
	return circles, nil
}

// PurgeMetadata deletes a circle's photo metadata and sets cleaned_up
// in a single transaction, so a failed run leaves the circle eligible
// for retry and a successful run excludes it from future queries.
func (r *CircleRepository) PurgeMetadata(ctx context.Context, circleID string) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM photos WHERE circle_id = $1`, circleID); err != nil {
		return fmt.Errorf("failed to delete photo metadata: %w", err)
	}
	if _, err := tx.Exec(ctx, `UPDATE circles SET cleaned_up = true WHERE id = $1`, circleID); err != nil {
		return fmt.Errorf("failed to mark circle cleaned up: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit purge: %w", err)
	}
	return nil
}

func (r *CircleRepository) members(ctx context.Context, circleID string) ([]string, error) {
	rows, err := r.db.Query(ctx,
		`SELECT user_id FROM circle_members WHERE circle_id = $1 ORDER BY joined_at`, circleID)
	if err != nil {
		return nil, fmt.Errorf("failed to list members: %w", err)
	}
	defer rows.Close()

	var members []string
	for rows.Next() {
		var uid string
		if err := rows.Scan(&uid); err != nil {
			return nil, fmt.Errorf("failed to scan member: %w", err)
		}
		members = append(members, uid)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating members: %w", err)
	}
	return members, nil
}
