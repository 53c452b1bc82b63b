package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"support_chat/internal/domain"
	pkgerrors "support_chat/pkg/errors"
	"support_chat/pkg/logger"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type UserRepository interface {
	Create(ctx context.Context, user *domain.User) error
	GetByID(ctx context.Context, id string) (*domain.User, error)
	GetByAPIKey(ctx context.Context, apiKey string) (*domain.User, error)
	GetByPhone(ctx context.Context, phone string) (*domain.User, error)
	GetByTelegramID(ctx context.Context, telegramID int64) (*domain.User, error)
	ListStaff(ctx context.Context) ([]*domain.User, error)
}

type userRepository struct {
	db  *pgxpool.Pool
	log logger.Logger
}

func NewUserRepository(db *pgxpool.Pool, log logger.Logger) UserRepository {
	return &userRepository{db: db, log: log}
}

func (r *userRepository) Create(ctx context.Context, user *domain.User) error {
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now()
	}

	query := `
		INSERT INTO users (id, role, display_name, api_key, phone, telegram_id, created_at)
		VALUES ($1, $2, $3, NULLIF($4, ''), NULLIF($5, ''), NULLIF($6, 0), $7)
	`

	_, err := r.db.Exec(ctx, query,
		user.ID, user.Role, user.DisplayName, user.APIKey, user.Phone, user.TelegramID, user.CreatedAt,
	)

	if err != nil {
		// Код 23505 = unique_violation
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			r.log.Warn("User already exists (unique violation)", "user_id", user.ID, "constraint", pgErr.ConstraintName)
			return pkgerrors.ErrUserAlreadyExists
		}
		r.log.Error("Failed to create user", "error", err, "user_id", user.ID)
		return fmt.Errorf("create user: %w", err)
	}

	return nil
}

func (r *userRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	return r.getByField(ctx, "id", id)
}

func (r *userRepository) GetByAPIKey(ctx context.Context, apiKey string) (*domain.User, error) {
	return r.getByField(ctx, "api_key", apiKey)
}

func (r *userRepository) GetByPhone(ctx context.Context, phone string) (*domain.User, error) {
	return r.getByField(ctx, "phone", phone)
}

func (r *userRepository) GetByTelegramID(ctx context.Context, telegramID int64) (*domain.User, error) {
	return r.getByField(ctx, "telegram_id", telegramID)
}

func (r *userRepository) getByField(ctx context.Context, field string, value any) (*domain.User, error) {
	// field всегда из фиксированного набора, не из пользовательского ввода
	query := fmt.Sprintf(`
		SELECT id, role, display_name, COALESCE(api_key, ''), COALESCE(phone, ''), COALESCE(telegram_id, 0), created_at
		FROM users
		WHERE %s = $1
	`, field)

	user := &domain.User{}
	err := r.db.QueryRow(ctx, query, value).Scan(
		&user.ID, &user.Role, &user.DisplayName, &user.APIKey, &user.Phone, &user.TelegramID, &user.CreatedAt,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, pkgerrors.ErrNotFound
		}
		r.log.Error("Failed to get user", "error", err, "field", field)
		return nil, fmt.Errorf("get user by %s: %w", field, err)
	}

	return user, nil
}

func (r *userRepository) ListStaff(ctx context.Context) ([]*domain.User, error) {
	query := `
		SELECT id, role, display_name, COALESCE(api_key, ''), COALESCE(phone, ''), COALESCE(telegram_id, 0), created_at
		FROM users
		WHERE role IN ($1, $2)
		ORDER BY created_at
	`

	rows, err := r.db.Query(ctx, query, domain.RoleAdmin, domain.RoleMechanic)
	if err != nil {
		r.log.Error("Failed to list staff", "error", err)
		return nil, fmt.Errorf("list staff: %w", err)
	}
	defer rows.Close()

	var staff []*domain.User
	for rows.Next() {
		user := &domain.User{}
		if err := rows.Scan(
			&user.ID, &user.Role, &user.DisplayName, &user.APIKey, &user.Phone, &user.TelegramID, &user.CreatedAt,
		); err != nil {
			r.log.Error("Failed to scan staff user", "error", err)
			return nil, err
		}
		staff = append(staff, user)
	}

	return staff, rows.Err()
}
