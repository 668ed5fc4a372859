package transfer

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

type TransferRepository interface {
	BeginTx(ctx context.Context) (*sql.Tx, error)
	CommitTx(ctx context.Context, tx *sql.Tx) error
	Rollback(ctx context.Context, tx *sql.Tx) error
	Save(ctx context.Context, t Transfer, tx *sql.Tx) error
	Update(ctx context.Context, t Transfer, tx *sql.Tx) error
	FindByKeyForUpdate(ctx context.Context, key string, tx *sql.Tx) (Transfer, error)
	CountPendingByTicketKey(ctx context.Context, ticketKey string, tx *sql.Tx) (int64, error)
	// FindManyPendingByDestinationEmailForUpdate returns oldest first; the
	// order decides which transfer hands over ownership.
	FindManyPendingByDestinationEmailForUpdate(ctx context.Context, email string, tx *sql.Tx) ([]Transfer, error)
	FindManyPendingByEventID(ctx context.Context, eventID string, tx *sql.Tx) ([]Transfer, error)
	FindManyPendingByTicketKeys(ctx context.Context, ticketKeys []string, tx *sql.Tx) ([]Transfer, error)
	FindManyByFromUserAndEventID(ctx context.Context, fromUserID int64, eventID string, tx *sql.Tx) ([]Transfer, error)
}

type sqlCommand interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	PrepareContext(ctx context.Context, query string) (*sql.Stmt, error)
}

type transferRepository struct {
	logger *logrus.Logger
	db     *sql.DB
}

func NewTransferRepository(logger *logrus.Logger, db *sql.DB) TransferRepository {
	return &transferRepository{
		logger: logger,
		db:     db,
	}
}

// BeginTx implements TransferRepository.
func (r *transferRepository) BeginTx(ctx context.Context) (*sql.Tx, error) {
	tx, err := r.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error()
		return nil, errors.New(http.StatusInternalServerError, status.INTERNAL_SERVER_ERROR, "an error occurred trying to begin transaction")
	}

	return tx, nil
}

// CommitTx implements TransferRepository.
func (r *transferRepository) CommitTx(ctx context.Context, tx *sql.Tx) error {
	if err := tx.Commit(); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error()
		return errors.New(http.StatusInternalServerError, status.INTERNAL_SERVER_ERROR, "an error occurred trying to commit transaction")
	}

	return nil
}

// Rollback implements TransferRepository.
func (r *transferRepository) Rollback(ctx context.Context, tx *sql.Tx) error {
	if err := tx.Rollback(); err != nil && err != sql.ErrTxDone {
		r.logger.WithContext(ctx).WithError(err).Error()
		return errors.New(http.StatusInternalServerError, status.INTERNAL_SERVER_ERROR, "an error occurred trying to rollback transaction")
	}

	return nil
}

const transferColumns = `
	key, ticket_key, event_id, from_user_id, destination_email, destination_user_id,
	status, created_at, updated_at
`

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanTransfer(s scanner) (Transfer, error) {
	var t Transfer
	var destinationUserID sql.NullInt64

	err := s.Scan(
		&t.Key, &t.TicketKey, &t.EventID, &t.FromUserID, &t.DestinationEmail, &destinationUserID,
		&t.Status, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return Transfer{}, err
	}

	if destinationUserID.Valid {
		t.DestinationUserID = &destinationUserID.Int64
	}

	return t, nil
}

func nullableInt64(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}

// Save implements TransferRepository. The partial unique index on
// (ticket_key) WHERE status = 'PENDING' backs the single pending transfer rule.
func (r *transferRepository) Save(ctx context.Context, t Transfer, tx *sql.Tx) error {
	var cmd sqlCommand = r.db

	if tx != nil {
		cmd = tx
	}

	query := `
		INSERT INTO ticket_transfer
		(
			key, ticket_key, event_id, from_user_id, destination_email, destination_user_id,
			status, created_at, updated_at
		)
		VALUES
		(
			$1, $2, $3, $4, $5, $6, $7, $8, $9
		)
	`

	stmt, err := cmd.PrepareContext(ctx, query)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error()
		return errors.New(http.StatusInternalServerError, status.INTERNAL_SERVER_ERROR, "an error occurred while saving transfer's properties")
	}
	defer stmt.Close()

	_, err = stmt.ExecContext(ctx,
		t.Key, t.TicketKey, t.EventID, t.FromUserID, t.DestinationEmail, nullableInt64(t.DestinationUserID),
		t.Status, t.CreatedAt, t.UpdatedAt,
	)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code.Name() == "unique_violation" {
			return errors.New(http.StatusConflict, status.DUPLICATE_PENDING_TRANSFER, "ticket already has a pending transfer")
		}
		r.logger.WithContext(ctx).WithError(err).Error()
		return errors.New(http.StatusInternalServerError, status.INTERNAL_SERVER_ERROR, "an error occurred while saving transfer's properties")
	}

	return nil
}

// Update implements TransferRepository.
func (r *transferRepository) Update(ctx context.Context, t Transfer, tx *sql.Tx) error {
	var cmd sqlCommand = r.db

	if tx != nil {
		cmd = tx
	}

	query := `
		UPDATE ticket_transfer
		SET
			destination_user_id = $1,
			status = $2,
			updated_at = $3
		WHERE key = $4
	`

	stmt, err := cmd.PrepareContext(ctx, query)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error()
		return errors.New(http.StatusInternalServerError, status.INTERNAL_SERVER_ERROR, "an error occurred while updating transfer's properties")
	}
	defer stmt.Close()

	_, err = stmt.ExecContext(ctx, nullableInt64(t.DestinationUserID), t.Status, t.UpdatedAt, t.Key)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error()
		return errors.New(http.StatusInternalServerError, status.INTERNAL_SERVER_ERROR, "an error occurred while updating transfer's properties")
	}

	return nil
}

// FindByKeyForUpdate implements TransferRepository.
func (r *transferRepository) FindByKeyForUpdate(ctx context.Context, key string, tx *sql.Tx) (Transfer, error) {
	var cmd sqlCommand = r.db

	if tx != nil {
		cmd = tx
	}

	query := `SELECT ` + transferColumns + ` FROM ticket_transfer WHERE key = $1 FOR UPDATE`

	stmt, err := cmd.PrepareContext(ctx, query)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error()
		return Transfer{}, errors.New(http.StatusInternalServerError, status.INTERNAL_SERVER_ERROR, "an error occurred while getting transfer's properties")
	}
	defer stmt.Close()

	t, err := scanTransfer(stmt.QueryRowContext(ctx, key))
	if err != nil {
		if err == sql.ErrNoRows {
			return Transfer{}, errors.New(http.StatusNotFound, status.NOT_FOUND, fmt.Sprintf("transfer with key '%s' is not found", key))
		}
		r.logger.WithContext(ctx).WithError(err).Error()
		return Transfer{}, errors.New(http.StatusInternalServerError, status.INTERNAL_SERVER_ERROR, "an error occurred while getting transfer's properties")
	}

	return t, nil
}

// CountPendingByTicketKey implements TransferRepository.
func (r *transferRepository) CountPendingByTicketKey(ctx context.Context, ticketKey string, tx *sql.Tx) (int64, error) {
	var cmd sqlCommand = r.db

	if tx != nil {
		cmd = tx
	}

	query := `SELECT COUNT(1) FROM ticket_transfer WHERE ticket_key = $1 AND status = 'PENDING'`

	var count int64
	if err := cmd.QueryRowContext(ctx, query, ticketKey).Scan(&count); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error()
		return 0, errors.New(http.StatusInternalServerError, status.INTERNAL_SERVER_ERROR, "an error occurred while counting pending transfers")
	}

	return count, nil
}

func (r *transferRepository) findMany(ctx context.Context, query string, tx *sql.Tx, args ...interface{}) ([]Transfer, error) {
	var cmd sqlCommand = r.db

	if tx != nil {
		cmd = tx
	}

	rows, err := cmd.QueryContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error()
		return nil, errors.New(http.StatusInternalServerError, status.INTERNAL_SERVER_ERROR, "an error occurred while getting list of transfers")
	}
	defer rows.Close()

	result := make([]Transfer, 0)
	for rows.Next() {
		t, err := scanTransfer(rows)
		if err != nil {
			r.logger.WithContext(ctx).WithError(err).Error()
			return nil, errors.New(http.StatusInternalServerError, status.INTERNAL_SERVER_ERROR, "an error occurred while getting list of transfers")
		}
		result = append(result, t)
	}

	if err := rows.Err(); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error()
		return nil, errors.New(http.StatusInternalServerError, status.INTERNAL_SERVER_ERROR, "an error occurred while getting list of transfers")
	}

	return result, nil
}

// FindManyPendingByDestinationEmailForUpdate implements TransferRepository.
func (r *transferRepository) FindManyPendingByDestinationEmailForUpdate(ctx context.Context, email string, tx *sql.Tx) ([]Transfer, error) {
	query := `
		SELECT ` + transferColumns + `
		FROM ticket_transfer
		WHERE lower(destination_email) = lower($1) AND status = 'PENDING'
		ORDER BY created_at ASC, key ASC
		FOR UPDATE
	`

	return r.findMany(ctx, query, tx, email)
}

// FindManyPendingByEventID implements TransferRepository.
func (r *transferRepository) FindManyPendingByEventID(ctx context.Context, eventID string, tx *sql.Tx) ([]Transfer, error) {
	query := `
		SELECT ` + transferColumns + `
		FROM ticket_transfer
		WHERE event_id = $1 AND status = 'PENDING'
		ORDER BY created_at ASC, key ASC
	`

	return r.findMany(ctx, query, tx, eventID)
}

// FindManyPendingByTicketKeys implements TransferRepository.
func (r *transferRepository) FindManyPendingByTicketKeys(ctx context.Context, ticketKeys []string, tx *sql.Tx) ([]Transfer, error) {
	if len(ticketKeys) == 0 {
		return []Transfer{}, nil
	}

	query := `
		SELECT ` + transferColumns + `
		FROM ticket_transfer
		WHERE ticket_key = ANY($1) AND status = 'PENDING'
	`

	return r.findMany(ctx, query, tx, pq.Array(ticketKeys))
}

// FindManyByFromUserAndEventID implements TransferRepository.
func (r *transferRepository) FindManyByFromUserAndEventID(ctx context.Context, fromUserID int64, eventID string, tx *sql.Tx) ([]Transfer, error) {
	query := `
		SELECT ` + transferColumns + `
		FROM ticket_transfer
		WHERE from_user_id = $1 AND event_id = $2
		ORDER BY created_at DESC
	`

	return r.findMany(ctx, query, tx, fromUserID, eventID)
}
