package ticket

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"

	"github.com/fuegoaustral/ticketera-sub000/pkg/errors"
	"github.com/fuegoaustral/ticketera-sub000/pkg/status"
	"github.com/sirupsen/logrus"
)

type TicketTypeRepository interface {
	BeginTx(ctx context.Context) (*sql.Tx, error)
	CommitTx(ctx context.Context, tx *sql.Tx) error
	Rollback(ctx context.Context, tx *sql.Tx) error
	FindManyByEventID(ctx context.Context, eventID string, tx *sql.Tx) ([]TicketType, error)
	FindByIDForUpdate(ctx context.Context, ID string, tx *sql.Tx) (TicketType, error)
	Update(ctx context.Context, ID string, tt TicketType, tx *sql.Tx) error
}

type sqlCommand interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	PrepareContext(ctx context.Context, query string) (*sql.Stmt, error)
}

type ticketTypeRepository struct {
	logger *logrus.Logger
	db     *sql.DB
}

func NewTicketTypeRepository(logger *logrus.Logger, db *sql.DB) TicketTypeRepository {
	return &ticketTypeRepository{
		logger: logger,
		db:     db,
	}
}

// BeginTx implements TicketTypeRepository.
func (r *ticketTypeRepository) BeginTx(ctx context.Context) (*sql.Tx, error) {
	tx, err := r.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error()
		return nil, errors.New(http.StatusInternalServerError, status.INTERNAL_SERVER_ERROR, "an error occurred trying to begin transaction")
	}

	return tx, nil
}

// CommitTx implements TicketTypeRepository.
func (r *ticketTypeRepository) CommitTx(ctx context.Context, tx *sql.Tx) error {
	if err := tx.Commit(); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error()
		return errors.New(http.StatusInternalServerError, status.INTERNAL_SERVER_ERROR, "an error occurred trying to commit transaction")
	}

	return nil
}

// Rollback implements TicketTypeRepository.
func (r *ticketTypeRepository) Rollback(ctx context.Context, tx *sql.Tx) error {
	if err := tx.Rollback(); err != nil && err != sql.ErrTxDone {
		r.logger.WithContext(ctx).WithError(err).Error()
		return errors.New(http.StatusInternalServerError, status.INTERNAL_SERVER_ERROR, "an error occurred trying to rollback transaction")
	}

	return nil
}

// FindByIDForUpdate implements TicketTypeRepository.
func (r *ticketTypeRepository) FindByIDForUpdate(ctx context.Context, ID string, tx *sql.Tx) (TicketType, error) {
	var cmd sqlCommand = r.db

	if tx != nil {
		cmd = tx
	}

	query := `
		SELECT 
			id, event_id, name, price, remaining, direct_issue, updated_at
		FROM ticket_type
		WHERE
			id = $1
		FOR UPDATE
	`

	stmt, err := cmd.PrepareContext(ctx, query)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error()
		return TicketType{}, errors.New(http.StatusInternalServerError, status.INTERNAL_SERVER_ERROR, "an error occurred while getting ticket type's properties for update")
	}
	defer stmt.Close()

	row := stmt.QueryRowContext(ctx, ID)

	var data TicketType
	err = row.Scan(&data.ID, &data.EventID, &data.Name, &data.Price, &data.Remaining, &data.DirectIssue, &data.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return TicketType{}, errors.New(http.StatusNotFound, status.NOT_FOUND, fmt.Sprintf("ticket type with id '%s' is not found", ID))
		}
		r.logger.WithContext(ctx).WithError(err).Error()
		return TicketType{}, errors.New(http.StatusInternalServerError, status.INTERNAL_SERVER_ERROR, "an error occurred while getting ticket type's properties for update")
	}

	return data, nil
}

// Update implements TicketTypeRepository. The remaining >= 0 guard backs up
// the application check; the column also carries a CHECK constraint.
func (r *ticketTypeRepository) Update(ctx context.Context, ID string, tt TicketType, tx *sql.Tx) error {
	var cmd sqlCommand = r.db

	if tx != nil {
		cmd = tx
	}

	query := `
		UPDATE ticket_type
		SET
			remaining = $1,
			updated_at = $2
		WHERE 
			id = $3
		AND
			$1 >= 0
	`

	stmt, err := cmd.PrepareContext(ctx, query)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error()
		return errors.New(http.StatusInternalServerError, status.INTERNAL_SERVER_ERROR, "an error occurred while updating ticket type's properties")
	}
	defer stmt.Close()

	res, err := stmt.ExecContext(ctx, tt.Remaining, tt.UpdatedAt, ID)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error()
		return errors.New(http.StatusInternalServerError, status.INTERNAL_SERVER_ERROR, "an error occurred while updating ticket type's properties")
	}

	if n, _ := res.RowsAffected(); n != 1 {
		r.logger.WithContext(ctx).WithField("ticketTypeId", ID).Error("ticket type update affected no rows")
		return errors.New(http.StatusInternalServerError, status.INTERNAL_SERVER_ERROR, "an error occurred while updating ticket type's properties")
	}

	return nil
}

// FindManyByEventID implements TicketTypeRepository.
func (r *ticketTypeRepository) FindManyByEventID(ctx context.Context, eventID string, tx *sql.Tx) ([]TicketType, error) {
	var cmd sqlCommand = r.db

	if tx != nil {
		cmd = tx
	}

	query := `
		SELECT 
			id, event_id, name, price, remaining, direct_issue, updated_at
		FROM ticket_type
		WHERE
			event_id = $1
		ORDER BY id
	`

	stmt, err := cmd.PrepareContext(ctx, query)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error()
		return nil, errors.New(http.StatusInternalServerError, status.INTERNAL_SERVER_ERROR, "an error occurred while getting bunch of ticket type's properties")
	}
	defer stmt.Close()

	rows, err := stmt.QueryContext(ctx, eventID)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error()
		return nil, errors.New(http.StatusInternalServerError, status.INTERNAL_SERVER_ERROR, "an error occurred while getting bunch of ticket type's properties")
	}
	defer rows.Close()

	var data = make([]TicketType, 0)
	for rows.Next() {
		var tt TicketType
		if err := rows.Scan(&tt.ID, &tt.EventID, &tt.Name, &tt.Price, &tt.Remaining, &tt.DirectIssue, &tt.UpdatedAt); err != nil {
			r.logger.WithContext(ctx).WithError(err).Error()
			return nil, errors.New(http.StatusInternalServerError, status.INTERNAL_SERVER_ERROR, "an error occurred while getting bunch of ticket type's properties")
		}
		data = append(data, tt)
	}

	return data, nil
}
