package order

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/fuegoaustral/ticketera-sub000/internal/module/customerapp/account"
	"github.com/fuegoaustral/ticketera-sub000/internal/module/customerapp/ticket"
	"github.com/fuegoaustral/ticketera-sub000/internal/pkg/notification"
	"github.com/fuegoaustral/ticketera-sub000/internal/pkg/util"
	"github.com/fuegoaustral/ticketera-sub000/pkg/clock"
	"github.com/fuegoaustral/ticketera-sub000/pkg/errors"
	"github.com/fuegoaustral/ticketera-sub000/pkg/pubsub"
	"github.com/fuegoaustral/ticketera-sub000/pkg/status"
	"github.com/sirupsen/logrus"
)

type OrderUseCase interface {
	// FulfillOrder mints the order's tickets and confirms it. Calling it on
	// an already confirmed order is a no-op that returns the minted tickets.
	FulfillOrder(ctx context.Context, key string) (FulfillOrderResponse, error)
	// MarkProcessing moves a PENDING order to PROCESSING and reports whether
	// this call made the transition.
	MarkProcessing(ctx context.Context, req MarkProcessingRequest) (bool, error)
	MarkError(ctx context.Context, key string, reason string) error
	GetOrder(ctx context.Context, key string) (OrderResponse, error)
	GetManyReconcilable(ctx context.Context, eventIDs []string) ([]Order, error)
}

type orderUseCase struct {
	logger               *logrus.Logger
	timeout              time.Duration
	baseURL              string
	clock                clock.Clock
	orderRepository      OrderRepository
	itemRepository       ItemRepository
	accountRepository    account.AccountRepository
	ticketRepository     ticket.TicketRepository
	ticketTypeRepository ticket.TicketTypeRepository
	publisher            pubsub.Publisher
	notifier             notification.Notifier
}

type OrderUseCaseProperty struct {
	Logger               *logrus.Logger
	Timeout              time.Duration
	BaseURL              string
	Clock                clock.Clock
	OrderRepository      OrderRepository
	ItemRepository       ItemRepository
	AccountRepository    account.AccountRepository
	TicketRepository     ticket.TicketRepository
	TicketTypeRepository ticket.TicketTypeRepository
	Publisher            pubsub.Publisher
	Notifier             notification.Notifier
}

func NewOrderUseCase(props OrderUseCaseProperty) OrderUseCase {
	return &orderUseCase{
		logger:               props.Logger,
		timeout:              props.Timeout,
		baseURL:              props.BaseURL,
		clock:                props.Clock,
		orderRepository:      props.OrderRepository,
		itemRepository:       props.ItemRepository,
		accountRepository:    props.AccountRepository,
		ticketRepository:     props.TicketRepository,
		ticketTypeRepository: props.TicketTypeRepository,
		publisher:            props.Publisher,
		notifier:             props.Notifier,
	}
}

func (u *orderUseCase) credential(ticketKey string) string {
	return fmt.Sprintf("%s/ticketera/v1/tickets/%s", u.baseURL, ticketKey)
}

func (u *orderUseCase) buildFulfillResponse(o Order, tickets []ticket.Ticket, already bool) FulfillOrderResponse {
	resp := FulfillOrderResponse{AlreadyFulfilled: already}
	resp.Order.PopulateFromEntity(o)

	resp.Tickets = make([]TicketResponse, len(tickets))
	for k, t := range tickets {
		resp.Tickets[k].PopulateFromEntity(t, u.credential(t.Key))
	}

	return resp
}

// lockPurchaser row-locks the purchaser's account so the "already owns a
// ticket for this event" check cannot race another ownership change.
func (u *orderUseCase) lockPurchaser(ctx context.Context, o Order, tx *sql.Tx) (account.Account, error) {
	if o.CustomerID != nil {
		return u.accountRepository.FindByIDForUpdate(ctx, *o.CustomerID, tx)
	}

	acc, found, err := u.accountRepository.FindVerifiedByEmailForUpdate(ctx, o.CustomerEmail, tx)
	if err != nil {
		return account.Account{}, err
	}
	if !found {
		return account.Account{}, errors.New(http.StatusConflict, status.ORDER_NOT_FULFILLABLE, "purchaser does not have a verified account yet")
	}

	return acc, nil
}

func distinctTicketTypes(items []Item) int {
	seen := make(map[string]struct{}, len(items))
	for _, i := range items {
		seen[i.TicketTypeID] = struct{}{}
	}
	return len(seen)
}

// FulfillOrder implements OrderUseCase.
func (u *orderUseCase) FulfillOrder(ctx context.Context, key string) (FulfillOrderResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, u.timeout)
	defer cancel()

	tx, err := u.orderRepository.BeginTx(ctx)
	if err != nil {
		return FulfillOrderResponse{}, err
	}

	o, err := u.orderRepository.FindByKeyForUpdate(ctx, key, tx)
	if err != nil {
		u.orderRepository.Rollback(ctx, tx)
		return FulfillOrderResponse{}, err
	}

	if o.Status == StatusConfirmed {
		tickets, err := u.ticketRepository.FindManyByOrderKey(ctx, key, tx)
		u.orderRepository.Rollback(ctx, tx)
		if err != nil {
			return FulfillOrderResponse{}, err
		}

		u.logger.WithContext(ctx).WithField("orderKey", key).Info("order already fulfilled")
		return u.buildFulfillResponse(o, tickets, true), nil
	}

	if !o.Fulfillable() {
		u.orderRepository.Rollback(ctx, tx)
		return FulfillOrderResponse{}, errors.New(http.StatusConflict, status.ORDER_NOT_FULFILLABLE, fmt.Sprintf("order in status %s cannot be fulfilled", o.Status))
	}

	items, err := u.itemRepository.FindManyByOrderKey(ctx, key, tx)
	if err != nil {
		u.orderRepository.Rollback(ctx, tx)
		return FulfillOrderResponse{}, err
	}
	if len(items) == 0 {
		u.orderRepository.Rollback(ctx, tx)
		return FulfillOrderResponse{}, errors.New(http.StatusConflict, status.ORDER_NOT_FULFILLABLE, "order has no items")
	}

	purchaser, err := u.lockPurchaser(ctx, o, tx)
	if err != nil {
		u.orderRepository.Rollback(ctx, tx)
		return FulfillOrderResponse{}, err
	}

	owned, err := u.ticketRepository.CountOwnedByEvent(ctx, o.EventID, purchaser.ID, tx)
	if err != nil {
		u.orderRepository.Rollback(ctx, tx)
		return FulfillOrderResponse{}, err
	}

	// Orders spanning several ticket types are assumed to be for guests, so
	// nothing is pre-assigned to the purchaser.
	ownFirst := owned == 0 && distinctTicketTypes(items) == 1

	now := u.clock.Now()
	minted := make([]ticket.Ticket, 0)

	for _, item := range items {
		tt, err := u.ticketTypeRepository.FindByIDForUpdate(ctx, item.TicketTypeID, tx)
		if err != nil {
			u.orderRepository.Rollback(ctx, tx)
			return FulfillOrderResponse{}, err
		}

		if tt.EventID != o.EventID {
			u.orderRepository.Rollback(ctx, tx)
			return FulfillOrderResponse{}, errors.New(http.StatusConflict, status.ORDER_NOT_FULFILLABLE, fmt.Sprintf("ticket type '%s' does not belong to the order's event", tt.ID))
		}

		tt, err = ticket.Reserve(tt, item.Quantity)
		if err != nil {
			u.orderRepository.Rollback(ctx, tx)
			return FulfillOrderResponse{}, err
		}
		tt.UpdatedAt = now

		if err := u.ticketTypeRepository.Update(ctx, tt.ID, tt, tx); err != nil {
			u.orderRepository.Rollback(ctx, tx)
			return FulfillOrderResponse{}, err
		}

		for i := int64(0); i < item.Quantity; i++ {
			t := ticket.Ticket{
				Key:          util.NewKey("TKT"),
				EventID:      o.EventID,
				TicketTypeID: tt.ID,
				OrderKey:     o.Key,
				HolderID:     purchaser.ID,
				CreatedAt:    now,
				UpdatedAt:    now,
			}
			if ownFirst && len(minted) == 0 {
				ownerID := purchaser.ID
				t.OwnerID = &ownerID
			}

			if err := u.ticketRepository.Save(ctx, t, tx); err != nil {
				u.orderRepository.Rollback(ctx, tx)
				return FulfillOrderResponse{}, err
			}

			minted = append(minted, t)
		}
	}

	o.Items = items
	o.Status = StatusConfirmed
	o.CustomerID = &purchaser.ID
	o.UpdatedAt = now

	if err := u.orderRepository.Update(ctx, o.Key, o, tx); err != nil {
		u.orderRepository.Rollback(ctx, tx)
		return FulfillOrderResponse{}, err
	}

	if err := u.orderRepository.CommitTx(ctx, tx); err != nil {
		return FulfillOrderResponse{}, err
	}

	u.logger.WithContext(ctx).WithFields(logrus.Fields{
		"orderKey": o.Key,
		"eventId":  o.EventID,
		"minted":   len(minted),
		"ownFirst": ownFirst,
	}).Info("order fulfilled")

	resp := u.buildFulfillResponse(o, minted, false)
	u.afterConfirmed(ctx, o, purchaser, resp.Tickets)

	return resp, nil
}

// afterConfirmed runs after commit. Failures are logged only; the order
// stays confirmed.
func (u *orderUseCase) afterConfirmed(ctx context.Context, o Order, purchaser account.Account, tickets []TicketResponse) {
	ticketKeys := make([]string, len(tickets))
	credentials := make([]map[string]interface{}, len(tickets))
	for k, t := range tickets {
		ticketKeys[k] = t.Key
		credentials[k] = map[string]interface{}{
			"ticket_key": t.Key,
			"credential": t.Credential,
			"owned":      t.OwnerID != nil,
		}
	}

	buff, _ := json.Marshal(OrderConfirmedEvent{
		OrderKey:   o.Key,
		EventID:    o.EventID,
		CustomerID: purchaser.ID,
		TicketKeys: ticketKeys,
	})
	if err := u.publisher.Publish(ctx, TopicOrderConfirmed, o.Key, nil, buff); err != nil {
		u.logger.WithContext(ctx).WithError(err).WithField("orderKey", o.Key).Error("failed to publish order confirmation")
	}

	err := u.notifier.SendEmail(ctx, notification.TemplateOrderConfirmed, []string{purchaser.Email}, map[string]interface{}{
		"order_key": o.Key,
		"name":      purchaser.Name,
		"tickets":   credentials,
	})
	if err != nil {
		u.logger.WithContext(ctx).WithError(err).WithField("orderKey", o.Key).Error("failed to send order confirmation")
	}
}

// MarkProcessing implements OrderUseCase.
func (u *orderUseCase) MarkProcessing(ctx context.Context, req MarkProcessingRequest) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, u.timeout)
	defer cancel()

	tx, err := u.orderRepository.BeginTx(ctx)
	if err != nil {
		return false, err
	}

	o, err := u.orderRepository.FindByKeyForUpdate(ctx, req.Key, tx)
	if err != nil {
		u.orderRepository.Rollback(ctx, tx)
		return false, err
	}

	if o.Status != StatusPending {
		u.orderRepository.Rollback(ctx, tx)
		return false, nil
	}

	o.Status = StatusProcessing
	o.ProviderResponse = req.ProviderResponse
	if req.NetReceivedAmount != nil {
		o.NetReceivedAmount = req.NetReceivedAmount
	}
	o.UpdatedAt = u.clock.Now()

	if err := u.orderRepository.Update(ctx, o.Key, o, tx); err != nil {
		u.orderRepository.Rollback(ctx, tx)
		return false, err
	}

	if err := u.orderRepository.CommitTx(ctx, tx); err != nil {
		return false, err
	}

	return true, nil
}

// MarkError implements OrderUseCase.
func (u *orderUseCase) MarkError(ctx context.Context, key string, reason string) error {
	ctx, cancel := context.WithTimeout(ctx, u.timeout)
	defer cancel()

	tx, err := u.orderRepository.BeginTx(ctx)
	if err != nil {
		return err
	}

	o, err := u.orderRepository.FindByKeyForUpdate(ctx, key, tx)
	if err != nil {
		u.orderRepository.Rollback(ctx, tx)
		return err
	}

	if !o.Fulfillable() {
		u.orderRepository.Rollback(ctx, tx)
		return nil
	}

	o.Status = StatusError
	o.UpdatedAt = u.clock.Now()

	if err := u.orderRepository.Update(ctx, o.Key, o, tx); err != nil {
		u.orderRepository.Rollback(ctx, tx)
		return err
	}

	if err := u.orderRepository.CommitTx(ctx, tx); err != nil {
		return err
	}

	u.logger.WithContext(ctx).WithFields(logrus.Fields{
		"orderKey": key,
		"reason":   reason,
	}).Warn("order moved to ERROR")

	return nil
}

// GetOrder implements OrderUseCase.
func (u *orderUseCase) GetOrder(ctx context.Context, key string) (OrderResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, u.timeout)
	defer cancel()

	o, err := u.orderRepository.FindByKey(ctx, key, nil)
	if err != nil {
		return OrderResponse{}, err
	}

	items, err := u.itemRepository.FindManyByOrderKey(ctx, key, nil)
	if err != nil {
		return OrderResponse{}, err
	}
	o.Items = items

	resp := OrderResponse{}
	resp.PopulateFromEntity(o)

	return resp, nil
}

// GetManyReconcilable implements OrderUseCase.
func (u *orderUseCase) GetManyReconcilable(ctx context.Context, eventIDs []string) ([]Order, error) {
	ctx, cancel := context.WithTimeout(ctx, u.timeout)
	defer cancel()

	return u.orderRepository.FindManyByStatusesAndEventIDs(ctx, []string{StatusPending, StatusProcessing}, eventIDs, nil)
}
