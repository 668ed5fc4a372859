package order

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"

	"github.com/fuegoaustral/ticketera-sub000/pkg/errors"
	"github.com/fuegoaustral/ticketera-sub000/pkg/status"
	"github.com/lib/pq"
	"github.com/sirupsen/logrus"
)

type OrderRepository interface {
	BeginTx(ctx context.Context) (*sql.Tx, error)
	CommitTx(ctx context.Context, tx *sql.Tx) error
	Rollback(ctx context.Context, tx *sql.Tx) error

	FindByKey(ctx context.Context, key string, tx *sql.Tx) (Order, error)
	FindByKeyForUpdate(ctx context.Context, key string, tx *sql.Tx) (Order, error)
	FindManyByStatusesAndEventIDs(ctx context.Context, statuses []string, eventIDs []string, tx *sql.Tx) ([]Order, error)
	Update(ctx context.Context, key string, o Order, tx *sql.Tx) error
}

type sqlCommand interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	PrepareContext(ctx context.Context, query string) (*sql.Stmt, error)
}

type orderRepository struct {
	logger *logrus.Logger
	db     *sql.DB
}

func NewOrderRepository(logger *logrus.Logger, db *sql.DB) OrderRepository {
	return &orderRepository{
		logger: logger,
		db:     db,
	}
}

// BeginTx implements OrderRepository. READ COMMITTED plus explicit row locks
// is enough: every status transition re-reads the order FOR UPDATE.
func (r *orderRepository) BeginTx(ctx context.Context) (*sql.Tx, error) {
	tx, err := r.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error()
		return nil, errors.New(http.StatusInternalServerError, status.INTERNAL_SERVER_ERROR, "an error occurred trying to begin transaction")
	}

	return tx, nil
}

// CommitTx implements OrderRepository.
func (r *orderRepository) CommitTx(ctx context.Context, tx *sql.Tx) error {
	if err := tx.Commit(); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error()
		return errors.New(http.StatusInternalServerError, status.INTERNAL_SERVER_ERROR, "an error occurred trying to commit transaction")
	}

	return nil
}

// Rollback implements OrderRepository.
func (r *orderRepository) Rollback(ctx context.Context, tx *sql.Tx) error {
	if err := tx.Rollback(); err != nil && err != sql.ErrTxDone {
		r.logger.WithContext(ctx).WithError(err).Error()
		return errors.New(http.StatusInternalServerError, status.INTERNAL_SERVER_ERROR, "an error occurred trying to rollback transaction")
	}

	return nil
}

const orderColumns = `
	key, event_id, customer_id, customer_email, amount, net_received_amount,
	status, provider_response, created_at, updated_at
`

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanOrder(s scanner) (Order, error) {
	var o Order
	var customerID sql.NullInt64
	var netReceived sql.NullFloat64
	var providerResponse []byte

	err := s.Scan(
		&o.Key, &o.EventID, &customerID, &o.CustomerEmail, &o.Amount, &netReceived,
		&o.Status, &providerResponse, &o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		return Order{}, err
	}

	if customerID.Valid {
		o.CustomerID = &customerID.Int64
	}
	if netReceived.Valid {
		o.NetReceivedAmount = &netReceived.Float64
	}
	o.ProviderResponse = providerResponse

	return o, nil
}

func (r *orderRepository) findOne(ctx context.Context, query string, key string, tx *sql.Tx) (Order, error) {
	var cmd sqlCommand = r.db

	if tx != nil {
		cmd = tx
	}

	stmt, err := cmd.PrepareContext(ctx, query)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error()
		return Order{}, errors.New(http.StatusInternalServerError, status.INTERNAL_SERVER_ERROR, "an error occurred while getting order's properties")
	}
	defer stmt.Close()

	o, err := scanOrder(stmt.QueryRowContext(ctx, key))
	if err != nil {
		if err == sql.ErrNoRows {
			return Order{}, errors.New(http.StatusNotFound, status.NOT_FOUND, fmt.Sprintf("order with key '%s' is not found", key))
		}
		r.logger.WithContext(ctx).WithError(err).Error()
		return Order{}, errors.New(http.StatusInternalServerError, status.INTERNAL_SERVER_ERROR, "an error occurred while getting order's properties")
	}

	return o, nil
}

// FindByKey implements OrderRepository.
func (r *orderRepository) FindByKey(ctx context.Context, key string, tx *sql.Tx) (Order, error) {
	return r.findOne(ctx, `SELECT `+orderColumns+` FROM ticket_order WHERE key = $1`, key, tx)
}

// FindByKeyForUpdate implements OrderRepository.
func (r *orderRepository) FindByKeyForUpdate(ctx context.Context, key string, tx *sql.Tx) (Order, error) {
	return r.findOne(ctx, `SELECT `+orderColumns+` FROM ticket_order WHERE key = $1 FOR UPDATE`, key, tx)
}

// FindManyByStatusesAndEventIDs implements OrderRepository.
func (r *orderRepository) FindManyByStatusesAndEventIDs(ctx context.Context, statuses []string, eventIDs []string, tx *sql.Tx) ([]Order, error) {
	var cmd sqlCommand = r.db

	if tx != nil {
		cmd = tx
	}

	query := `
		SELECT ` + orderColumns + `
		FROM ticket_order
		WHERE
			status = ANY($1)
		AND
			event_id = ANY($2)
		ORDER BY created_at, key
	`

	rows, err := cmd.QueryContext(ctx, query, pq.Array(statuses), pq.Array(eventIDs))
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error()
		return nil, errors.New(http.StatusInternalServerError, status.INTERNAL_SERVER_ERROR, "an error occurred while getting bunch of order's properties")
	}
	defer rows.Close()

	var data = make([]Order, 0)
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			r.logger.WithContext(ctx).WithError(err).Error()
			return nil, errors.New(http.StatusInternalServerError, status.INTERNAL_SERVER_ERROR, "an error occurred while getting bunch of order's properties")
		}
		data = append(data, o)
	}

	if err := rows.Err(); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error()
		return nil, errors.New(http.StatusInternalServerError, status.INTERNAL_SERVER_ERROR, "an error occurred while getting bunch of order's properties")
	}

	return data, nil
}

// Update implements OrderRepository.
func (r *orderRepository) Update(ctx context.Context, key string, o Order, tx *sql.Tx) error {
	var cmd sqlCommand = r.db

	if tx != nil {
		cmd = tx
	}

	query := `
		UPDATE ticket_order
		SET
			status = $1,
			customer_id = $2,
			net_received_amount = $3,
			provider_response = $4,
			updated_at = $5
		WHERE key = $6
	`

	stmt, err := cmd.PrepareContext(ctx, query)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error()
		return errors.New(http.StatusInternalServerError, status.INTERNAL_SERVER_ERROR, "an error occurred while updating order's properties")
	}
	defer stmt.Close()

	var customerID sql.NullInt64
	if o.CustomerID != nil {
		customerID = sql.NullInt64{Int64: *o.CustomerID, Valid: true}
	}

	var netReceived sql.NullFloat64
	if o.NetReceivedAmount != nil {
		netReceived = sql.NullFloat64{Float64: *o.NetReceivedAmount, Valid: true}
	}

	var providerResponse interface{}
	if len(o.ProviderResponse) > 0 {
		providerResponse = []byte(o.ProviderResponse)
	}

	_, err = stmt.ExecContext(ctx, o.Status, customerID, netReceived, providerResponse, o.UpdatedAt, key)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error()
		return errors.New(http.StatusInternalServerError, status.INTERNAL_SERVER_ERROR, "an error occurred while updating order's properties")
	}

	return nil
}
