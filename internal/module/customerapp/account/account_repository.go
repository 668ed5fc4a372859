package account

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

type AccountRepository interface {
	FindByID(ctx context.Context, ID int64, tx *sql.Tx) (Account, error)
	FindByIDForUpdate(ctx context.Context, ID int64, tx *sql.Tx) (Account, error)
	// FindVerifiedByEmailForUpdate returns found == false when no account
	// with a verified email matches.
	FindVerifiedByEmailForUpdate(ctx context.Context, email string, tx *sql.Tx) (acc Account, found bool, err error)
	// FindManyByEmailForUpdate locks every account registered under email,
	// verified or not, ordered by id.
	FindManyByEmailForUpdate(ctx context.Context, email string, tx *sql.Tx) ([]Account, error)
	FindManyByEmails(ctx context.Context, emails []string, tx *sql.Tx) ([]Account, error)
	FindManyByIDs(ctx context.Context, IDs []int64, tx *sql.Tx) ([]Account, error)
}

type sqlCommand interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	PrepareContext(ctx context.Context, query string) (*sql.Stmt, error)
}

type accountRepository struct {
	logger *logrus.Logger
	db     *sql.DB
}

func NewAccountRepository(logger *logrus.Logger, db *sql.DB) AccountRepository {
	return &accountRepository{
		logger: logger,
		db:     db,
	}
}

const accountColumns = `id, email, name, phone, email_verified, phone_verified, profile_completed, created_at`

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanAccount(s scanner) (Account, error) {
	var a Account
	var phone sql.NullString
	err := s.Scan(&a.ID, &a.Email, &a.Name, &phone, &a.EmailVerified, &a.PhoneVerified, &a.ProfileCompleted, &a.CreatedAt)
	a.Phone = phone.String
	return a, err
}

func (r *accountRepository) findOne(ctx context.Context, query string, arg interface{}, tx *sql.Tx) (Account, error) {
	var cmd sqlCommand = r.db

	if tx != nil {
		cmd = tx
	}

	stmt, err := cmd.PrepareContext(ctx, query)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error()
		return Account{}, errors.New(http.StatusInternalServerError, status.INTERNAL_SERVER_ERROR, "an error occurred while getting account's properties")
	}
	defer stmt.Close()

	return scanAccount(stmt.QueryRowContext(ctx, arg))
}

// FindByID implements AccountRepository.
func (r *accountRepository) FindByID(ctx context.Context, ID int64, tx *sql.Tx) (Account, error) {
	query := `SELECT ` + accountColumns + ` FROM account WHERE id = $1`

	a, err := r.findOne(ctx, query, ID, tx)
	if err != nil {
		if err == sql.ErrNoRows {
			return Account{}, errors.New(http.StatusNotFound, status.NOT_FOUND, fmt.Sprintf("account with id '%d' is not found", ID))
		}
		r.logger.WithContext(ctx).WithError(err).Error()
		return Account{}, errors.New(http.StatusInternalServerError, status.INTERNAL_SERVER_ERROR, "an error occurred while getting account's properties")
	}

	return a, nil
}

// FindByIDForUpdate implements AccountRepository.
func (r *accountRepository) FindByIDForUpdate(ctx context.Context, ID int64, tx *sql.Tx) (Account, error) {
	query := `SELECT ` + accountColumns + ` FROM account WHERE id = $1 FOR UPDATE`

	a, err := r.findOne(ctx, query, ID, tx)
	if err != nil {
		if err == sql.ErrNoRows {
			return Account{}, errors.New(http.StatusNotFound, status.NOT_FOUND, fmt.Sprintf("account with id '%d' is not found", ID))
		}
		r.logger.WithContext(ctx).WithError(err).Error()
		return Account{}, errors.New(http.StatusInternalServerError, status.INTERNAL_SERVER_ERROR, "an error occurred while getting account's properties for update")
	}

	return a, nil
}

// FindVerifiedByEmailForUpdate implements AccountRepository.
func (r *accountRepository) FindVerifiedByEmailForUpdate(ctx context.Context, email string, tx *sql.Tx) (Account, bool, error) {
	query := `
		SELECT ` + accountColumns + `
		FROM account
		WHERE
			lower(email) = lower($1)
		AND
			email_verified = TRUE
		ORDER BY id
		LIMIT 1
		FOR UPDATE
	`

	a, err := r.findOne(ctx, query, email, tx)
	if err != nil {
		if err == sql.ErrNoRows {
			return Account{}, false, nil
		}
		r.logger.WithContext(ctx).WithError(err).Error()
		return Account{}, false, errors.New(http.StatusInternalServerError, status.INTERNAL_SERVER_ERROR, "an error occurred while getting account's properties for update")
	}

	return a, true, nil
}

// FindManyByEmailForUpdate implements AccountRepository.
func (r *accountRepository) FindManyByEmailForUpdate(ctx context.Context, email string, tx *sql.Tx) ([]Account, error) {
	query := `
		SELECT ` + accountColumns + `
		FROM account
		WHERE
			lower(email) = lower($1)
		ORDER BY id
		FOR UPDATE
	`

	return r.findMany(ctx, query, email, tx)
}

func (r *accountRepository) findMany(ctx context.Context, query string, arg interface{}, tx *sql.Tx) ([]Account, error) {
	var cmd sqlCommand = r.db

	if tx != nil {
		cmd = tx
	}

	rows, err := cmd.QueryContext(ctx, query, arg)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error()
		return nil, errors.New(http.StatusInternalServerError, status.INTERNAL_SERVER_ERROR, "an error occurred while getting bunch of account's properties")
	}
	defer rows.Close()

	var data = make([]Account, 0)
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			r.logger.WithContext(ctx).WithError(err).Error()
			return nil, errors.New(http.StatusInternalServerError, status.INTERNAL_SERVER_ERROR, "an error occurred while getting bunch of account's properties")
		}
		data = append(data, a)
	}

	if err := rows.Err(); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error()
		return nil, errors.New(http.StatusInternalServerError, status.INTERNAL_SERVER_ERROR, "an error occurred while getting bunch of account's properties")
	}

	return data, nil
}

// FindManyByEmails implements AccountRepository.
func (r *accountRepository) FindManyByEmails(ctx context.Context, emails []string, tx *sql.Tx) ([]Account, error) {
	query := `SELECT ` + accountColumns + ` FROM account WHERE lower(email) = ANY($1)`

	return r.findMany(ctx, query, pq.Array(emails), tx)
}

// FindManyByIDs implements AccountRepository.
func (r *accountRepository) FindManyByIDs(ctx context.Context, IDs []int64, tx *sql.Tx) ([]Account, error) {
	query := `SELECT ` + accountColumns + ` FROM account WHERE id = ANY($1)`

	return r.findMany(ctx, query, pq.Array(IDs), tx)
}
