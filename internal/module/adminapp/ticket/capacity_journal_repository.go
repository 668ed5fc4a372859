package ticket

import (
	"context"
	"database/sql"
	"net/http"

	"github.com/fuegoaustral/ticketera-sub000/pkg/errors"
	"github.com/fuegoaustral/ticketera-sub000/pkg/status"
	"github.com/sirupsen/logrus"
)

type CapacityJournalRepository interface {
	Save(ctx context.Context, j CapacityJournal, tx *sql.Tx) error
	FindManyByTicketTypeID(ctx context.Context, ticketTypeID string, tx *sql.Tx) ([]CapacityJournal, error)
}

type sqlCommand interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	PrepareContext(ctx context.Context, query string) (*sql.Stmt, error)
}

type capacityJournalRepository struct {
	logger *logrus.Logger
	db     *sql.DB
}

func NewCapacityJournalRepository(logger *logrus.Logger, db *sql.DB) CapacityJournalRepository {
	return &capacityJournalRepository{
		logger: logger,
		db:     db,
	}
}

// Save implements CapacityJournalRepository.
func (r *capacityJournalRepository) Save(ctx context.Context, j CapacityJournal, tx *sql.Tx) error {
	var cmd sqlCommand = r.db

	if tx != nil {
		cmd = tx
	}

	query := `
		INSERT INTO ticket_type_journal
		(
			ticket_type_id, action, quantity, remaining, description, staff_id, created_at
		)
		VALUES
		(
			$1, $2, $3, $4, $5, $6, $7
		)
	`

	stmt, err := cmd.PrepareContext(ctx, query)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error()
		return errors.New(http.StatusInternalServerError, status.INTERNAL_SERVER_ERROR, "an error occurred while saving capacity journal")
	}
	defer stmt.Close()

	_, err = stmt.ExecContext(ctx, j.TicketTypeID, j.Action, j.Quantity, j.Remaining, j.Description, j.StaffID, j.CreatedAt)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error()
		return errors.New(http.StatusInternalServerError, status.INTERNAL_SERVER_ERROR, "an error occurred while saving capacity journal")
	}

	return nil
}

// FindManyByTicketTypeID implements CapacityJournalRepository.
func (r *capacityJournalRepository) FindManyByTicketTypeID(ctx context.Context, ticketTypeID string, tx *sql.Tx) ([]CapacityJournal, error) {
	var cmd sqlCommand = r.db

	if tx != nil {
		cmd = tx
	}

	query := `
		SELECT
			id, ticket_type_id, action, quantity, remaining, description, staff_id, created_at
		FROM ticket_type_journal
		WHERE
			ticket_type_id = $1
		ORDER BY id ASC
	`

	stmt, err := cmd.PrepareContext(ctx, query)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error()
		return nil, errors.New(http.StatusInternalServerError, status.INTERNAL_SERVER_ERROR, "an error occurred while getting capacity journal")
	}
	defer stmt.Close()

	rows, err := stmt.QueryContext(ctx, ticketTypeID)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error()
		return nil, errors.New(http.StatusInternalServerError, status.INTERNAL_SERVER_ERROR, "an error occurred while getting capacity journal")
	}
	defer rows.Close()

	result := make([]CapacityJournal, 0)
	for rows.Next() {
		var j CapacityJournal
		if err := rows.Scan(&j.ID, &j.TicketTypeID, &j.Action, &j.Quantity, &j.Remaining, &j.Description, &j.StaffID, &j.CreatedAt); err != nil {
			r.logger.WithContext(ctx).WithError(err).Error()
			return nil, errors.New(http.StatusInternalServerError, status.INTERNAL_SERVER_ERROR, "an error occurred while getting capacity journal")
		}
		result = append(result, j)
	}

	return result, nil
}
