package reminder

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"time"

	"github.com/fuegoaustral/ticketera-sub000/pkg/errors"
	"github.com/fuegoaustral/ticketera-sub000/pkg/status"
	"github.com/sirupsen/logrus"
)

// NotificationRecord marks a reminder as sent. Rows are never updated.
type NotificationRecord struct {
	Recipient   string
	Fingerprint string
	Payload     json.RawMessage
	CreatedAt   time.Time
}

type NotificationRecordRepository interface {
	// Claim inserts rec unless (recipient, fingerprint) already exists and
	// reports whether this call inserted it. The unique index does the
	// arbitration, so concurrent workers cannot both win.
	Claim(ctx context.Context, rec NotificationRecord, tx *sql.Tx) (bool, error)
	// Release removes a claim whose send failed so a later run can retry.
	Release(ctx context.Context, recipient string, fingerprint string, tx *sql.Tx) error
}

type sqlCommand interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

type notificationRecordRepository struct {
	logger *logrus.Logger
	db     *sql.DB
}

func NewNotificationRecordRepository(logger *logrus.Logger, db *sql.DB) NotificationRecordRepository {
	return &notificationRecordRepository{
		logger: logger,
		db:     db,
	}
}

// Claim implements NotificationRecordRepository.
func (r *notificationRecordRepository) Claim(ctx context.Context, rec NotificationRecord, tx *sql.Tx) (bool, error) {
	var cmd sqlCommand = r.db

	if tx != nil {
		cmd = tx
	}

	query := `
		INSERT INTO notification_record
		(
			recipient, fingerprint, payload, created_at
		)
		VALUES
		(
			$1, $2, $3, $4
		)
		ON CONFLICT (recipient, fingerprint) DO NOTHING
	`

	res, err := cmd.ExecContext(ctx, query, rec.Recipient, rec.Fingerprint, []byte(rec.Payload), rec.CreatedAt)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error()
		return false, errors.New(http.StatusInternalServerError, status.INTERNAL_SERVER_ERROR, "an error occurred while recording notification")
	}

	affected, err := res.RowsAffected()
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error()
		return false, errors.New(http.StatusInternalServerError, status.INTERNAL_SERVER_ERROR, "an error occurred while recording notification")
	}

	return affected == 1, nil
}

// Release implements NotificationRecordRepository.
func (r *notificationRecordRepository) Release(ctx context.Context, recipient string, fingerprint string, tx *sql.Tx) error {
	var cmd sqlCommand = r.db

	if tx != nil {
		cmd = tx
	}

	query := `DELETE FROM notification_record WHERE recipient = $1 AND fingerprint = $2`

	if _, err := cmd.ExecContext(ctx, query, recipient, fingerprint); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error()
		return errors.New(http.StatusInternalServerError, status.INTERNAL_SERVER_ERROR, "an error occurred while releasing notification record")
	}

	return nil
}
