package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	appErrors "github.com/unclebandit/retention-backend/internal/errors"
	"github.com/unclebandit/retention-backend/internal/model"
)

// CustomerRepositoryInterface defines methods used by services
type CustomerRepositoryInterface interface {
	Create(ctx context.Context, c *model.Customer) error
	GetByID(ctx context.Context, id string) (*model.Customer, error)
	ListByOwner(ctx context.Context, userID string) ([]model.Customer, error)
	ListOwnedByIDs(ctx context.Context, userID string, ids []string) ([]model.Customer, error)
}

type CustomerRepository struct {
	DB *sqlx.DB
}

const customerColumns = `id, user_id, name, email, phone, created_at`

func (r *CustomerRepository) Create(ctx context.Context, c *model.Customer) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	c.CreatedAt = now()

	query := r.DB.Rebind(`INSERT INTO customers (id, user_id, name, email, phone, created_at) VALUES (?, ?, ?, ?, ?, ?)`)
	if _, err := r.DB.ExecContext(ctx, query, c.ID, c.UserID, c.Name, c.Email, c.Phone, c.CreatedAt); err != nil {
		return fmt.Errorf("insert customer: %w", err)
	}
	return nil
}

func (r *CustomerRepository) GetByID(ctx context.Context, id string) (*model.Customer, error) {
	var c model.Customer
	query := r.DB.Rebind(`SELECT ` + customerColumns + ` FROM customers WHERE id = ?`)
	if err := r.DB.GetContext(ctx, &c, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.NotFound("customer", id)
		}
		return nil, fmt.Errorf("get customer %s: %w", id, err)
	}
	return &c, nil
}

func (r *CustomerRepository) ListByOwner(ctx context.Context, userID string) ([]model.Customer, error) {
	customers := []model.Customer{}
	query := r.DB.Rebind(`SELECT ` + customerColumns + ` FROM customers WHERE user_id = ? ORDER BY created_at DESC, id`)
	if err := r.DB.SelectContext(ctx, &customers, query, userID); err != nil {
		return nil, fmt.Errorf("list customers: %w", err)
	}
	return customers, nil
}

// ListOwnedByIDs returns the subset of ids that exist and belong to userID, in no particular order.
func (r *CustomerRepository) ListOwnedByIDs(ctx context.Context, userID string, ids []string) ([]model.Customer, error) {
	customers := []model.Customer{}
	if len(ids) == 0 {
		return customers, nil
	}

	query, args, err := sqlx.In(`SELECT `+customerColumns+` FROM customers WHERE user_id = ? AND id IN (?)`, userID, ids)
	if err != nil {
		return nil, fmt.Errorf("build owned customers query: %w", err)
	}
	if err := r.DB.SelectContext(ctx, &customers, r.DB.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("list owned customers: %w", err)
	}
	return customers, nil
}

var _ CustomerRepositoryInterface = (*CustomerRepository)(nil)
