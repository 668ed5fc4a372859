package order

import (
	"context"
	"fmt"
	"net/http"
	"time"

	customerOrder "github.com/fuegoaustral/ticketera-sub000/internal/module/customerapp/order"
	"github.com/fuegoaustral/ticketera-sub000/pkg/errors"
	"github.com/fuegoaustral/ticketera-sub000/pkg/status"
	"github.com/sirupsen/logrus"
)

type OrderUseCase interface {
	// ConfirmOrder fulfills a direct-sale order without a payment. Only
	// PENDING orders qualify; paid orders belong to the reconciler.
	ConfirmOrder(ctx context.Context, req ConfirmOrderRequest) (customerOrder.FulfillOrderResponse, error)
	GetManyOrder(ctx context.Context, req GetManyOrderRequest) ([]customerOrder.OrderResponse, error)
}

type orderUseCase struct {
	logger               *logrus.Logger
	timeout              time.Duration
	orderRepository      customerOrder.OrderRepository
	customerOrderUseCase customerOrder.OrderUseCase
}

type OrderUseCaseProperty struct {
	Logger               *logrus.Logger
	Timeout              time.Duration
	OrderRepository      customerOrder.OrderRepository
	CustomerOrderUseCase customerOrder.OrderUseCase
}

func NewOrderUseCase(props OrderUseCaseProperty) OrderUseCase {
	return &orderUseCase{
		logger:               props.Logger,
		timeout:              props.Timeout,
		orderRepository:      props.OrderRepository,
		customerOrderUseCase: props.CustomerOrderUseCase,
	}
}

// ConfirmOrder implements OrderUseCase.
func (u *orderUseCase) ConfirmOrder(ctx context.Context, req ConfirmOrderRequest) (customerOrder.FulfillOrderResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, u.timeout)
	defer cancel()

	o, err := u.orderRepository.FindByKey(ctx, req.Key, nil)
	if err != nil {
		return customerOrder.FulfillOrderResponse{}, err
	}

	if o.Status != customerOrder.StatusPending {
		return customerOrder.FulfillOrderResponse{}, errors.New(http.StatusConflict, status.ORDER_NOT_FULFILLABLE, fmt.Sprintf("only PENDING orders can be confirmed by staff, order is %s", o.Status))
	}

	// FulfillOrder re-checks the status under the row lock, so a payment
	// landing in between is still handled exactly once.
	resp, err := u.customerOrderUseCase.FulfillOrder(ctx, req.Key)
	if err != nil {
		return customerOrder.FulfillOrderResponse{}, err
	}

	u.logger.WithContext(ctx).WithFields(logrus.Fields{
		"orderKey":         req.Key,
		"staffId":          req.StaffID,
		"alreadyFulfilled": resp.AlreadyFulfilled,
	}).Info("order confirmed by staff")

	return resp, nil
}

// GetManyOrder implements OrderUseCase.
func (u *orderUseCase) GetManyOrder(ctx context.Context, req GetManyOrderRequest) ([]customerOrder.OrderResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, u.timeout)
	defer cancel()

	statuses := []string{customerOrder.StatusPending, customerOrder.StatusProcessing, customerOrder.StatusConfirmed, customerOrder.StatusError}
	if req.Status != "" {
		statuses = []string{req.Status}
	}

	orders, err := u.orderRepository.FindManyByStatusesAndEventIDs(ctx, statuses, []string{req.EventID}, nil)
	if err != nil {
		return nil, err
	}

	resp := make([]customerOrder.OrderResponse, len(orders))
	for k, o := range orders {
		resp[k].PopulateFromEntity(o)
	}

	return resp, nil
}
