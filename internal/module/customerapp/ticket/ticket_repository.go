package ticket

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

type TicketRepository interface {
	Save(ctx context.Context, t Ticket, tx *sql.Tx) error
	Update(ctx context.Context, t Ticket, tx *sql.Tx) error
	FindByKey(ctx context.Context, key string, tx *sql.Tx) (Ticket, error)
	FindByKeyForUpdate(ctx context.Context, key string, tx *sql.Tx) (Ticket, error)
	// CountOwnedByEvent must run inside the transaction that mutates
	// ownership, after the user's account row has been locked.
	CountOwnedByEvent(ctx context.Context, eventID string, userID int64, tx *sql.Tx) (int64, error)
	FindManyByOrderKey(ctx context.Context, orderKey string, tx *sql.Tx) ([]Ticket, error)
	FindManyHeldByEvent(ctx context.Context, eventID string, holderID int64, tx *sql.Tx) ([]Ticket, error)
	FindManyOwnerlessByEvent(ctx context.Context, eventID string, tx *sql.Tx) ([]Ticket, error)
}

type ticketRepository struct {
	logger *logrus.Logger
	db     *sql.DB
}

func NewTicketRepository(logger *logrus.Logger, db *sql.DB) TicketRepository {
	return &ticketRepository{
		logger: logger,
		db:     db,
	}
}

const ticketColumns = `
	key, event_id, ticket_type_id, order_key, holder_id, owner_id, roles,
	used, used_at, used_by, notes, photo_url, created_at, updated_at
`

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanTicket(s scanner) (Ticket, error) {
	var t Ticket
	var ownerID, usedBy sql.NullInt64
	var usedAt sql.NullTime
	var photoURL sql.NullString
	var roles pq.StringArray

	err := s.Scan(
		&t.Key, &t.EventID, &t.TicketTypeID, &t.OrderKey, &t.HolderID, &ownerID, &roles,
		&t.Used, &usedAt, &usedBy, &t.Notes, &photoURL, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return Ticket{}, err
	}

	if ownerID.Valid {
		t.OwnerID = &ownerID.Int64
	}
	if usedBy.Valid {
		t.UsedBy = &usedBy.Int64
	}
	if usedAt.Valid {
		t.UsedAt = &usedAt.Time
	}
	if photoURL.Valid {
		t.PhotoURL = &photoURL.String
	}
	if len(roles) > 0 {
		t.Roles = []string(roles)
	}

	return t, nil
}

func nullableInt64(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}

// Save implements TicketRepository.
func (r *ticketRepository) Save(ctx context.Context, t Ticket, tx *sql.Tx) error {
	var cmd sqlCommand = r.db

	if tx != nil {
		cmd = tx
	}

	query := `
		INSERT INTO ticket
		(
			key, event_id, ticket_type_id, order_key, holder_id, owner_id, roles,
			used, notes, photo_url, created_at, updated_at
		)
		VALUES
		(
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12
		)
	`

	stmt, err := cmd.PrepareContext(ctx, query)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error()
		return errors.New(http.StatusInternalServerError, status.INTERNAL_SERVER_ERROR, "an error occurred while saving ticket's properties")
	}
	defer stmt.Close()

	var photoURL sql.NullString
	if t.PhotoURL != nil {
		photoURL.String = *t.PhotoURL
		photoURL.Valid = true
	}

	_, err = stmt.ExecContext(ctx,
		t.Key, t.EventID, t.TicketTypeID, t.OrderKey, t.HolderID, nullableInt64(t.OwnerID), pq.Array(t.Roles),
		t.Used, t.Notes, photoURL, t.CreatedAt, t.UpdatedAt,
	)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error()
		return errors.New(http.StatusInternalServerError, status.INTERNAL_SERVER_ERROR, "an error occurred while saving ticket's properties")
	}

	return nil
}

// Update implements TicketRepository. Only custody fields are written here;
// scanning and notes belong to other services.
func (r *ticketRepository) Update(ctx context.Context, t Ticket, tx *sql.Tx) error {
	var cmd sqlCommand = r.db

	if tx != nil {
		cmd = tx
	}

	query := `
		UPDATE ticket
		SET
			holder_id = $1,
			owner_id = $2,
			roles = $3,
			updated_at = $4
		WHERE key = $5
	`

	stmt, err := cmd.PrepareContext(ctx, query)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error()
		return errors.New(http.StatusInternalServerError, status.INTERNAL_SERVER_ERROR, "an error occurred while updating ticket's properties")
	}
	defer stmt.Close()

	_, err = stmt.ExecContext(ctx, t.HolderID, nullableInt64(t.OwnerID), pq.Array(t.Roles), t.UpdatedAt, t.Key)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error()
		return errors.New(http.StatusInternalServerError, status.INTERNAL_SERVER_ERROR, "an error occurred while updating ticket's properties")
	}

	return nil
}

func (r *ticketRepository) findOne(ctx context.Context, query string, key string, tx *sql.Tx) (Ticket, error) {
	var cmd sqlCommand = r.db

	if tx != nil {
		cmd = tx
	}

	stmt, err := cmd.PrepareContext(ctx, query)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error()
		return Ticket{}, errors.New(http.StatusInternalServerError, status.INTERNAL_SERVER_ERROR, "an error occurred while getting ticket's properties")
	}
	defer stmt.Close()

	t, err := scanTicket(stmt.QueryRowContext(ctx, key))
	if err != nil {
		if err == sql.ErrNoRows {
			return Ticket{}, errors.New(http.StatusNotFound, status.NOT_FOUND, fmt.Sprintf("ticket with key '%s' is not found", key))
		}
		r.logger.WithContext(ctx).WithError(err).Error()
		return Ticket{}, errors.New(http.StatusInternalServerError, status.INTERNAL_SERVER_ERROR, "an error occurred while getting ticket's properties")
	}

	return t, nil
}

// FindByKey implements TicketRepository.
func (r *ticketRepository) FindByKey(ctx context.Context, key string, tx *sql.Tx) (Ticket, error) {
	return r.findOne(ctx, `SELECT `+ticketColumns+` FROM ticket WHERE key = $1`, key, tx)
}

// FindByKeyForUpdate implements TicketRepository.
func (r *ticketRepository) FindByKeyForUpdate(ctx context.Context, key string, tx *sql.Tx) (Ticket, error) {
	return r.findOne(ctx, `SELECT `+ticketColumns+` FROM ticket WHERE key = $1 FOR UPDATE`, key, tx)
}

// CountOwnedByEvent implements TicketRepository.
func (r *ticketRepository) CountOwnedByEvent(ctx context.Context, eventID string, userID int64, tx *sql.Tx) (int64, error) {
	var cmd sqlCommand = r.db

	if tx != nil {
		cmd = tx
	}

	query := `SELECT count(key) FROM ticket WHERE event_id = $1 AND owner_id = $2`

	stmt, err := cmd.PrepareContext(ctx, query)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error()
		return 0, errors.New(http.StatusInternalServerError, status.INTERNAL_SERVER_ERROR, "an error occurred while counting owned tickets")
	}
	defer stmt.Close()

	var count int64
	if err := stmt.QueryRowContext(ctx, eventID, userID).Scan(&count); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error()
		return 0, errors.New(http.StatusInternalServerError, status.INTERNAL_SERVER_ERROR, "an error occurred while counting owned tickets")
	}

	return count, nil
}

func (r *ticketRepository) findMany(ctx context.Context, query string, tx *sql.Tx, args ...interface{}) ([]Ticket, error) {
	var cmd sqlCommand = r.db

	if tx != nil {
		cmd = tx
	}

	rows, err := cmd.QueryContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error()
		return nil, errors.New(http.StatusInternalServerError, status.INTERNAL_SERVER_ERROR, "an error occurred while getting bunch of ticket's properties")
	}
	defer rows.Close()

	var data = make([]Ticket, 0)
	for rows.Next() {
		t, err := scanTicket(rows)
		if err != nil {
			r.logger.WithContext(ctx).WithError(err).Error()
			return nil, errors.New(http.StatusInternalServerError, status.INTERNAL_SERVER_ERROR, "an error occurred while getting bunch of ticket's properties")
		}
		data = append(data, t)
	}

	if err := rows.Err(); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error()
		return nil, errors.New(http.StatusInternalServerError, status.INTERNAL_SERVER_ERROR, "an error occurred while getting bunch of ticket's properties")
	}

	return data, nil
}

// FindManyByOrderKey implements TicketRepository.
func (r *ticketRepository) FindManyByOrderKey(ctx context.Context, orderKey string, tx *sql.Tx) ([]Ticket, error) {
	query := `SELECT ` + ticketColumns + ` FROM ticket WHERE order_key = $1 ORDER BY created_at, key`
	return r.findMany(ctx, query, tx, orderKey)
}

// FindManyHeldByEvent implements TicketRepository.
func (r *ticketRepository) FindManyHeldByEvent(ctx context.Context, eventID string, holderID int64, tx *sql.Tx) ([]Ticket, error) {
	query := `SELECT ` + ticketColumns + ` FROM ticket WHERE event_id = $1 AND holder_id = $2 ORDER BY created_at, key`
	return r.findMany(ctx, query, tx, eventID, holderID)
}

// FindManyOwnerlessByEvent implements TicketRepository.
func (r *ticketRepository) FindManyOwnerlessByEvent(ctx context.Context, eventID string, tx *sql.Tx) ([]Ticket, error) {
	query := `SELECT ` + ticketColumns + ` FROM ticket WHERE event_id = $1 AND owner_id IS NULL AND used = FALSE ORDER BY holder_id, created_at, key`
	return r.findMany(ctx, query, tx, eventID)
}
