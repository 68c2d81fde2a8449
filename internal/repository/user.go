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

// UserRepository handles database operations for users and their
// friend and block sets.
type UserRepository struct {
	db *pgxpool.Pool
}

// NewUserRepository creates a new user repository.
func NewUserRepository(db *pgxpool.Pool) *UserRepository {
	return &UserRepository{db: db}
}

const userColumns = `id, username, email, phone, display_name, photo_url, push_token, auto_accept_invites, created_at`

func scanUser(row pgx.Row) (*models.User, error) {
	var u models.User
	err := row.Scan(
		&u.ID, &u.Username, &u.Email, &u.Phone, &u.DisplayName,
		&u.PhotoURL, &u.PushToken, &u.AutoAcceptInvites, &u.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// Create creates a new user.
func (r *UserRepository) Create(ctx context.Context, user *models.User) error {
	query := `
		INSERT INTO users (id, username, email, phone, display_name, photo_url, push_token, auto_accept_invites, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := r.db.Exec(ctx, query,
		user.ID, user.Username, user.Email, user.Phone, user.DisplayName,
		user.PhotoURL, user.PushToken, user.AutoAcceptInvites, user.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

// GetByID retrieves a user by ID.
func (r *UserRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	user, err := scanUser(r.db.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("user %s: %w", id, models.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}

// GetByUsername retrieves a user by username.
func (r *UserRepository) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	user, err := scanUser(r.db.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE username = $1`, username))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("username %s: %w", username, models.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get user by username: %w", err)
	}
	return user, nil
}

// UpdatePushToken updates the push token for a user.
func (r *UserRepository) UpdatePushToken(ctx context.Context, userID string, pushToken *string) error {
	_, err := r.db.Exec(ctx, `UPDATE users SET push_token = $1 WHERE id = $2`, pushToken, userID)
	if err != nil {
		return fmt.Errorf("failed to update push token: %w", err)
	}
	return nil
}

// SetAutoAcceptInvites updates the user's auto-accept toggle.
func (r *UserRepository) SetAutoAcceptInvites(ctx context.Context, userID string, enabled bool) error {
	_, err := r.db.Exec(ctx, `UPDATE users SET auto_accept_invites = $1 WHERE id = $2`, enabled, userID)
	if err != nil {
		return fmt.Errorf("failed to update auto accept invites: %w", err)
	}
	return nil
}

// AreFriends checks whether a friendship edge exists between two users.
func (r *UserRepository) AreFriends(ctx context.Context, uidA, uidB string) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM friends WHERE user_id = $1 AND friend_id = $2)`,
		uidA, uidB).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check friendship: %w", err)
	}
	return exists, nil
}

// HasBlocked checks whether blocker has blockedID in their block set.
func (r *UserRepository) HasBlocked(ctx context.Context, blockerID, blockedID string) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM blocked_users WHERE user_id = $1 AND blocked_id = $2)`,
		blockerID, blockedID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check block: %w", err)
	}
	return exists, nil
}

// AddFriendship inserts both directed friendship edges in one
// transaction. Re-inserting an existing edge is a no-op.
func (r *UserRepository) AddFriendship(ctx context.Context, uidA, uidB string, at time.Time) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := addFriendEdges(ctx, tx, uidA, uidB, at); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit friendship: %w", err)
	}
	return nil
}

// Block performs the compound block operation atomically: add to the
// blocker's block set, remove the friendship edges in both directions,
// and delete any pending friend request between the pair.
func (r *UserRepository) Block(ctx context.Context, blockerID, blockedID string, at time.Time) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO blocked_users (user_id, blocked_id, created_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id, blocked_id) DO NOTHING
	`, blockerID, blockedID, at)
	if err != nil {
		return fmt.Errorf("failed to add block: %w", err)
	}

	_, err = tx.Exec(ctx, `
		DELETE FROM friends
		WHERE (user_id = $1 AND friend_id = $2) OR (user_id = $2 AND friend_id = $1)
	`, blockerID, blockedID)
	if err != nil {
		return fmt.Errorf("failed to remove friendship: %w", err)
	}

	_, err = tx.Exec(ctx, `
		DELETE FROM friend_requests
		WHERE (sender_id = $1 AND receiver_id = $2) OR (sender_id = $2 AND receiver_id = $1)
	`, blockerID, blockedID)
	if err != nil {
		return fmt.Errorf("failed to delete pending requests: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit block: %w", err)
	}
	return nil
}

// ListFriends returns the user's friend IDs.
func (r *UserRepository) ListFriends(ctx context.Context, uid string) ([]string, error) {
	rows, err := r.db.Query(ctx,
		`SELECT friend_id FROM friends WHERE user_id = $1 ORDER BY created_at`, uid)
	if err != nil {
		return nil, fmt.Errorf("failed to list friends: %w", err)
	}
	defer rows.Close()

	var friends []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan friend: %w", err)
		}
		friends = append(friends, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating friends: %w", err)
	}
	return friends, nil
}

func addFriendEdges(ctx context.Context, tx pgx.Tx, uidA, uidB string, at time.Time) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO friends (user_id, friend_id, created_at)
		VALUES ($1, $2, $3), ($2, $1, $3)
		ON CONFLICT (user_id, friend_id) DO NOTHING
	`, uidA, uidB, at)
	if err != nil {
		return fmt.Errorf("failed to add friend edges: %w", err)
	}
	return nil
}
