package repository

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	entsql "entgo.io/ent/dialect/sql"
	"github.com/google/uuid"

	"github.com/joseph-ayodele/orders-tracker/internal/common"
	"github.com/joseph-ayodele/orders-tracker/internal/entity"
)

var ErrUserNotFound = common.NewAppError("USER_NOT_FOUND", "user not found", common.ErrNotFound)

type UserRepository interface {
	Create(ctx context.Context, email string) (*entity.User, error)
	GetByID(ctx context.Context, id uuid.UUID) (*entity.User, error)
	GetByEmail(ctx context.Context, email string) (*entity.User, error)
	// LookupEmail returns the registered address of an owner.
	LookupEmail(ctx context.Context, ownerID uuid.UUID) (string, error)
}

type userRepo struct {
	db  *DB
	log *slog.Logger
}

func NewUserRepository(db *DB, log *slog.Logger) UserRepository {
	if log == nil {
		log = slog.Default()
	}
	return &userRepo{db: db, log: log}
}

var userColumnNames = columns(usersColumns)

func (r *userRepo) Create(ctx context.Context, email string) (*entity.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if err := common.NewValidator().
		Field("email", email, common.Required, common.Email).
		Err("INVALID_USER"); err != nil {
		return nil, err
	}

	user := &entity.User{ID: uuid.New(), Email: email, CreatedAt: time.Now().UTC()}
	q, args := r.db.builder().Insert(usersTableName).
		Columns(userColumnNames...).
		Values(user.ID, user.Email, user.CreatedAt).
		Query()
	if _, err := r.db.exec(ctx, q, args); err != nil {
		r.log.Error("user create failed", "email", email, "error", err)
		return nil, fmt.Errorf("create user: %w", err)
	}
	r.log.Info("user created", "user_id", user.ID, "email", email)
	return user, nil
}

func (r *userRepo) GetByID(ctx context.Context, id uuid.UUID) (*entity.User, error) {
	return r.getOne(ctx, entsql.EQ("id", id))
}

func (r *userRepo) GetByEmail(ctx context.Context, email string) (*entity.User, error) {
	return r.getOne(ctx, entsql.EQ("email", strings.ToLower(strings.TrimSpace(email))))
}

func (r *userRepo) LookupEmail(ctx context.Context, ownerID uuid.UUID) (string, error) {
	u, err := r.GetByID(ctx, ownerID)
	if err != nil {
		return "", err
	}
	return u.Email, nil
}

func (r *userRepo) getOne(ctx context.Context, p *entsql.Predicate) (*entity.User, error) {
	b := r.db.builder()
	q, args := b.Select(userColumnNames...).
		From(b.Table(usersTableName)).
		Where(p).
		Query()
	rows, err := r.db.query(ctx, q, args)
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("get user: %w", storeError(err))
		}
		return nil, ErrUserNotFound
	}
	var u entity.User
	if err := rows.Scan(&u.ID, &u.Email, &u.CreatedAt); err != nil {
		return nil, fmt.Errorf("scan user: %w", storeError(err))
	}
	u.CreatedAt = u.CreatedAt.UTC()
	return &u, nil
}
