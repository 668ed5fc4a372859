package payment

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/fuegoaustral/ticketera-sub000/internal/module/customerapp/event"
	"github.com/fuegoaustral/ticketera-sub000/internal/module/customerapp/mercadopago"
	"github.com/fuegoaustral/ticketera-sub000/internal/module/customerapp/order"
	"github.com/fuegoaustral/ticketera-sub000/internal/pkg/jobs"
	"github.com/fuegoaustral/ticketera-sub000/internal/pkg/lease"
	"github.com/fuegoaustral/ticketera-sub000/pkg/errors"
	"github.com/fuegoaustral/ticketera-sub000/pkg/status"
	"github.com/sirupsen/logrus"
)

const (
	JobPath = "/ticketera/v1/internal/jobs/payment-reconcile"

	webhookTypePayment = "payment"
)

// PaymentUseCase folds the two payment signals, the signed webhook and the
// polling sweep, into order state. Both end in the same guarded transition,
// so whichever arrives second is a no-op.
type PaymentUseCase interface {
	HandlePaymentWebhook(ctx context.Context, req WebhookRequest) (WebhookResponse, error)
	ReconcilePendingPayments(ctx context.Context, req ReconcileRequest) (ReconcileResponse, error)
}

type paymentUseCase struct {
	logger                *logrus.Logger
	timeout               time.Duration
	sweepTimeout          time.Duration
	webhookSecret         string
	locker                lease.Locker
	rescheduler           jobs.Rescheduler
	eventRepository       event.EventRepository
	mercadoPagoRepository mercadopago.MercadoPagoRepository
	orderUseCase          order.OrderUseCase
}

type PaymentUseCaseProperty struct {
	Logger                *logrus.Logger
	Timeout               time.Duration
	SweepTimeout          time.Duration
	WebhookSecret         string
	Locker                lease.Locker
	Rescheduler           jobs.Rescheduler
	EventRepository       event.EventRepository
	MercadoPagoRepository mercadopago.MercadoPagoRepository
	OrderUseCase          order.OrderUseCase
}

func NewPaymentUseCase(props PaymentUseCaseProperty) PaymentUseCase {
	locker := props.Locker
	if locker == nil {
		locker = lease.NewLocalLocker()
	}

	rescheduler := props.Rescheduler
	if rescheduler == nil {
		rescheduler = jobs.Disabled()
	}

	sweepTimeout := props.SweepTimeout
	if sweepTimeout <= 0 {
		sweepTimeout = props.Timeout
	}

	return &paymentUseCase{
		logger:                props.Logger,
		timeout:               props.Timeout,
		sweepTimeout:          sweepTimeout,
		webhookSecret:         props.WebhookSecret,
		locker:                locker,
		rescheduler:           rescheduler,
		eventRepository:       props.EventRepository,
		mercadoPagoRepository: props.MercadoPagoRepository,
		orderUseCase:          props.OrderUseCase,
	}
}

// approve records an approved payment and fulfills the order. Only the call
// that moves the order out of PENDING goes on to fulfill it.
func (u *paymentUseCase) approve(ctx context.Context, orderKey string, providerResponse json.RawMessage, netReceived *float64) (string, error) {
	entry := u.logger.WithContext(ctx).WithField("orderKey", orderKey)

	transitioned, err := u.orderUseCase.MarkProcessing(ctx, order.MarkProcessingRequest{
		Key:               orderKey,
		ProviderResponse:  providerResponse,
		NetReceivedAmount: netReceived,
	})
	if err != nil {
		if errors.Is(err, status.NOT_FOUND) {
			entry.Warn("approved payment for unknown order")
			return OutcomeIgnored, nil
		}
		return "", err
	}

	if !transitioned {
		entry.Info("order already past PENDING, duplicate payment signal")
		return OutcomeDuplicate, nil
	}

	return u.fulfill(ctx, orderKey), nil
}

// fulfill never returns an error: capacity exhaustion after payment is
// final and needs a refund, anything else is retried by the sweep.
func (u *paymentUseCase) fulfill(ctx context.Context, orderKey string) string {
	entry := u.logger.WithContext(ctx).WithField("orderKey", orderKey)

	_, err := u.orderUseCase.FulfillOrder(ctx, orderKey)
	if err == nil {
		return OutcomeConfirmed
	}

	if errors.Is(err, status.INSUFFICIENT_CAPACITY) {
		entry.WithError(err).Error("paid order cannot be fulfilled, capacity exhausted")
		if err := u.orderUseCase.MarkError(ctx, orderKey, "insufficient capacity after payment approval"); err != nil {
			entry.WithError(err).Error("failed to move order to ERROR")
			return OutcomeDeferred
		}
		return OutcomeFailed
	}

	entry.WithError(err).Warn("fulfillment deferred, order stays PROCESSING")

	return OutcomeDeferred
}

// HandlePaymentWebhook implements PaymentUseCase.
func (u *paymentUseCase) HandlePaymentWebhook(ctx context.Context, req WebhookRequest) (WebhookResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, u.timeout)
	defer cancel()

	if !VerifySignature(u.webhookSecret, req.Signature, req.RequestID, req.DataID) {
		u.logger.WithContext(ctx).WithFields(logrus.Fields{
			"requestId": req.RequestID,
			"dataId":    req.DataID,
		}).Warn("payment webhook with invalid signature")
		return WebhookResponse{}, errors.New(http.StatusForbidden, status.INVALID_SIGNATURE, "forbidden")
	}

	if req.Type != webhookTypePayment {
		return WebhookResponse{Outcome: OutcomeIgnored, Reason: "not a payment notification"}, nil
	}

	p, err := u.mercadoPagoRepository.GetPayment(ctx, req.DataID)
	if err != nil {
		return WebhookResponse{}, err
	}

	resp := WebhookResponse{OrderKey: p.ExternalReference}

	if !p.Approved() {
		resp.Outcome = OutcomeIgnored
		resp.Reason = "payment status is " + p.Status
		return resp, nil
	}

	var netReceived *float64
	if p.TransactionDetails.NetReceivedAmount > 0 {
		net := p.TransactionDetails.NetReceivedAmount
		netReceived = &net
	}

	resp.Outcome, err = u.approve(ctx, p.ExternalReference, p.Raw, netReceived)
	if err != nil {
		return WebhookResponse{}, err
	}

	u.logger.WithContext(ctx).WithFields(logrus.Fields{
		"orderKey":  p.ExternalReference,
		"paymentId": p.ID,
		"outcome":   resp.Outcome,
	}).Info("payment webhook handled")

	return resp, nil
}

// ReconcilePendingPayments implements PaymentUseCase.
func (u *paymentUseCase) ReconcilePendingPayments(ctx context.Context, req ReconcileRequest) (ReconcileResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, u.sweepTimeout)
	defer cancel()

	release, ok, err := u.locker.Acquire(ctx, "payment-reconcile", u.sweepTimeout)
	if err == nil && !ok {
		return ReconcileResponse{Skipped: true}, nil
	}
	defer release()

	eventIDs := req.EventIDs
	if len(eventIDs) == 0 {
		events, err := u.eventRepository.FindManyActive(ctx, nil)
		if err != nil {
			return ReconcileResponse{}, err
		}
		for _, ev := range events {
			eventIDs = append(eventIDs, ev.ID)
		}
	}

	resp := ReconcileResponse{}

	if len(eventIDs) > 0 {
		orders, err := u.orderUseCase.GetManyReconcilable(ctx, eventIDs)
		if err != nil {
			return ReconcileResponse{}, err
		}

		for _, o := range orders {
			resp.Checked++
			resp.count(u.reconcile(ctx, o))
		}
	}

	u.logger.WithContext(ctx).WithFields(logrus.Fields{
		"events":    len(eventIDs),
		"checked":   resp.Checked,
		"confirmed": resp.Confirmed,
		"deferred":  resp.Deferred,
		"pending":   resp.Pending,
		"failed":    resp.Failed,
	}).Info("payment reconcile finished")

	body, _ := json.Marshal(req)
	u.rescheduler.Next(ctx, "payment-reconcile", JobPath, body)

	return resp, nil
}

func (u *paymentUseCase) reconcile(ctx context.Context, o order.Order) string {
	entry := u.logger.WithContext(ctx).WithField("orderKey", o.Key)

	if o.Status == order.StatusProcessing {
		return u.fulfill(ctx, o.Key)
	}

	merchantOrders, err := u.mercadoPagoRepository.SearchMerchantOrders(ctx, o.Key)
	if err != nil {
		entry.WithError(err).Warn("merchant order search failed, retrying next sweep")
		return OutcomeDeferred
	}

	var (
		approved mercadopago.MerchantOrderPayment
		mo       mercadopago.MerchantOrder
		found    bool
	)
	for _, m := range merchantOrders {
		if approved, found = m.ApprovedPayment(); found {
			mo = m
			break
		}
	}
	if !found {
		return OutcomePending
	}

	providerResponse, _ := json.Marshal(mo)
	var netReceived *float64

	// the merchant order has no fee breakdown; the payment has it
	p, err := u.mercadoPagoRepository.GetPayment(ctx, strconv.FormatInt(approved.ID, 10))
	if err != nil {
		entry.WithError(err).Warn("could not fetch approved payment, net amount left empty")
	} else {
		providerResponse = p.Raw
		if p.TransactionDetails.NetReceivedAmount > 0 {
			net := p.TransactionDetails.NetReceivedAmount
			netReceived = &net
		}
	}

	outcome, err := u.approve(ctx, o.Key, providerResponse, netReceived)
	if err != nil {
		entry.WithError(err).Warn("could not record approved payment, retrying next sweep")
		return OutcomeDeferred
	}

	return outcome
}
