package order

import (
	"context"
	"database/sql"
	"net/http"

	"github.com/fuegoaustral/ticketera-sub000/pkg/errors"
	"github.com/fuegoaustral/ticketera-sub000/pkg/status"
	"github.com/sirupsen/logrus"
)

type ItemRepository interface {
	FindManyByOrderKey(ctx context.Context, orderKey string, tx *sql.Tx) ([]Item, error)
}

type itemRepository struct {
	logger *logrus.Logger
	db     *sql.DB
}

func NewItemRepository(logger *logrus.Logger, db *sql.DB) ItemRepository {
	return &itemRepository{
		logger: logger,
		db:     db,
	}
}

// FindManyByOrderKey implements ItemRepository. Items come back ordered by
// ticket type so concurrent fulfillments lock ticket types in the same order.
func (r *itemRepository) FindManyByOrderKey(ctx context.Context, orderKey string, tx *sql.Tx) ([]Item, error) {
	var cmd sqlCommand = r.db

	if tx != nil {
		cmd = tx
	}

	query := `
		SELECT 
			id, order_key, ticket_type_id, price, quantity
		FROM order_item
		WHERE
			order_key = $1
		ORDER BY ticket_type_id, id
	`

	stmt, err := cmd.PrepareContext(ctx, query)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error()
		return nil, errors.New(http.StatusInternalServerError, status.INTERNAL_SERVER_ERROR, "an error occurred while getting bunch of order item's properties")
	}
	defer stmt.Close()

	rows, err := stmt.QueryContext(ctx, orderKey)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error()
		return nil, errors.New(http.StatusInternalServerError, status.INTERNAL_SERVER_ERROR, "an error occurred while getting bunch of order item's properties")
	}
	defer rows.Close()

	var data = make([]Item, 0)

	for rows.Next() {
		var i Item

		if err := rows.Scan(&i.ID, &i.OrderKey, &i.TicketTypeID, &i.Price, &i.Quantity); err != nil {
			r.logger.WithContext(ctx).WithError(err).Error()
			return nil, errors.New(http.StatusInternalServerError, status.INTERNAL_SERVER_ERROR, "an error occurred while getting bunch of order item's properties")
		}

		data = append(data, i)
	}

	return data, nil
}
