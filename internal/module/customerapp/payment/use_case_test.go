package payment_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/fuegoaustral/ticketera-sub000/internal/module/customerapp/account"
	"github.com/fuegoaustral/ticketera-sub000/internal/module/customerapp/event"
	"github.com/fuegoaustral/ticketera-sub000/internal/module/customerapp/mercadopago"
	"github.com/fuegoaustral/ticketera-sub000/internal/module/customerapp/order"
	"github.com/fuegoaustral/ticketera-sub000/internal/module/customerapp/payment"
	"github.com/fuegoaustral/ticketera-sub000/internal/module/customerapp/ticket"
	"github.com/fuegoaustral/ticketera-sub000/internal/pkg/memstoretest"
	"github.com/fuegoaustral/ticketera-sub000/internal/pkg/middleware"
	"github.com/fuegoaustral/ticketera-sub000/pkg/clock"
	"github.com/fuegoaustral/ticketera-sub000/pkg/errors"
	"github.com/fuegoaustral/ticketera-sub000/pkg/status"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const secret = "webhook-secret"

var now = time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)

type fakeMercadoPago struct {
	mu             sync.Mutex
	payments       map[string]mercadopago.Payment
	merchantOrders map[string][]mercadopago.MerchantOrder
	err            error
	calls          int
}

func newFakeMercadoPago() *fakeMercadoPago {
	return &fakeMercadoPago{
		payments:       make(map[string]mercadopago.Payment),
		merchantOrders: make(map[string][]mercadopago.MerchantOrder),
	}
}

func (f *fakeMercadoPago) GetPayment(ctx context.Context, paymentID string) (mercadopago.Payment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++

	if f.err != nil {
		return mercadopago.Payment{}, f.err
	}
	p, ok := f.payments[paymentID]
	if !ok {
		return mercadopago.Payment{}, errors.New(http.StatusBadGateway, status.UPSTREAM_UNAVAILABLE, "payment provider returned 404")
	}
	p.Raw, _ = json.Marshal(p)
	return p, nil
}

func (f *fakeMercadoPago) SearchMerchantOrders(ctx context.Context, externalReference string) ([]mercadopago.MerchantOrder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++

	if f.err != nil {
		return nil, f.err
	}
	return f.merchantOrders[externalReference], nil
}

type fixture struct {
	store  *memstoretest.Store
	outbox *memstoretest.Outbox
	mp     *fakeMercadoPago
	uc     payment.PaymentUseCase
}

func newFixture(t *testing.T) fixture {
	t.Helper()

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	store := memstoretest.New()
	outbox := memstoretest.NewOutbox()
	mp := newFakeMercadoPago()
	fake := clock.NewFake(now)

	store.PutEvent(event.Event{ID: "ev-1", Name: "Fuego 2026", Active: true, TransfersEnabledUntil: now.Add(30 * 24 * time.Hour)})
	store.PutEvent(event.Event{ID: "ev-old", Name: "Fuego 2025", Active: false})
	store.PutAccount(account.Account{ID: 1, Email: "ana@example.com", Name: "Ana", EmailVerified: true, ProfileCompleted: true})
	store.PutTicketType(ticket.TicketType{ID: "tt-general", EventID: "ev-1", Name: "General", Remaining: 2})

	orderUseCase := order.NewOrderUseCase(order.OrderUseCaseProperty{
		Logger:               logger,
		Timeout:              5 * time.Second,
		BaseURL:              "https://tickets.example.com",
		Clock:                fake,
		OrderRepository:      store.Orders(),
		ItemRepository:       store.Items(),
		AccountRepository:    store.Accounts(),
		TicketRepository:     store.TicketRepository(),
		TicketTypeRepository: store.TicketTypes(),
		Publisher:            outbox,
		Notifier:             outbox,
	})

	uc := payment.NewPaymentUseCase(payment.PaymentUseCaseProperty{
		Logger:                logger,
		Timeout:               5 * time.Second,
		WebhookSecret:         secret,
		EventRepository:       store.Events(),
		MercadoPagoRepository: mp,
		OrderUseCase:          orderUseCase,
	})

	return fixture{store: store, outbox: outbox, mp: mp, uc: uc}
}

func (f fixture) putOrder(key string, quantity int64) {
	customerID := int64(1)
	f.store.PutOrder(order.Order{
		Key:           key,
		EventID:       "ev-1",
		CustomerID:    &customerID,
		CustomerEmail: "ana@example.com",
		Amount:        1000,
		Status:        order.StatusPending,
		CreatedAt:     now,
	}, order.Item{TicketTypeID: "tt-general", Quantity: quantity, Price: 1000})
}

func (f fixture) approvePayment(id int64, orderKey string) {
	f.mp.payments[strconv.FormatInt(id, 10)] = mercadopago.Payment{
		ID:                 id,
		Status:             mercadopago.PaymentStatusApproved,
		ExternalReference:  orderKey,
		TransactionAmount:  1000,
		TransactionDetails: mercadopago.TransactionDetails{NetReceivedAmount: 940, TotalPaidAmount: 1000},
	}
}

func signed(dataID string) payment.WebhookRequest {
	ts := "1704908010"
	requestID := "req-" + dataID
	return payment.WebhookRequest{
		Signature: "ts=" + ts + ",v1=" + payment.Sign(secret, payment.Manifest(dataID, requestID, ts)),
		RequestID: requestID,
		DataID:    dataID,
		Type:      "payment",
	}
}

func TestHandlePaymentWebhook_ConfirmsOrder(t *testing.T) {
	f := newFixture(t)
	f.putOrder("ORD-1", 1)
	f.approvePayment(77, "ORD-1")

	resp, err := f.uc.HandlePaymentWebhook(context.Background(), signed("77"))
	require.NoError(t, err)
	assert.Equal(t, payment.OutcomeConfirmed, resp.Outcome)
	assert.Equal(t, "ORD-1", resp.OrderKey)

	o, _ := f.store.Order("ORD-1")
	assert.Equal(t, order.StatusConfirmed, o.Status)
	require.NotNil(t, o.NetReceivedAmount)
	assert.Equal(t, 940.0, *o.NetReceivedAmount)
	assert.Len(t, f.store.Tickets(), 1)
}

func TestHandlePaymentWebhook_IsIdempotent(t *testing.T) {
	f := newFixture(t)
	f.putOrder("ORD-1", 1)
	f.approvePayment(77, "ORD-1")

	_, err := f.uc.HandlePaymentWebhook(context.Background(), signed("77"))
	require.NoError(t, err)

	resp, err := f.uc.HandlePaymentWebhook(context.Background(), signed("77"))
	require.NoError(t, err)
	assert.Equal(t, payment.OutcomeDuplicate, resp.Outcome)
	assert.Len(t, f.store.Tickets(), 1)
}

func TestHandlePaymentWebhook_InvalidSignature(t *testing.T) {
	f := newFixture(t)
	f.putOrder("ORD-1", 1)
	f.approvePayment(77, "ORD-1")

	req := signed("77")
	req.DataID = "78"

	_, err := f.uc.HandlePaymentWebhook(context.Background(), req)
	require.Error(t, err)
	ae := errors.Destruct(err)
	assert.Equal(t, http.StatusForbidden, ae.HTTPStatusCode)
	assert.Equal(t, status.INVALID_SIGNATURE, ae.Status)
	assert.Zero(t, f.mp.calls)

	o, _ := f.store.Order("ORD-1")
	assert.Equal(t, order.StatusPending, o.Status)
}

func TestHandlePaymentWebhook_IgnoresOtherTypesAndUnapproved(t *testing.T) {
	f := newFixture(t)
	f.putOrder("ORD-1", 1)
	f.mp.payments["77"] = mercadopago.Payment{ID: 77, Status: "pending", ExternalReference: "ORD-1"}

	req := signed("77")
	req.Type = "merchant_order"
	resp, err := f.uc.HandlePaymentWebhook(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, payment.OutcomeIgnored, resp.Outcome)

	resp, err = f.uc.HandlePaymentWebhook(context.Background(), signed("77"))
	require.NoError(t, err)
	assert.Equal(t, payment.OutcomeIgnored, resp.Outcome)

	o, _ := f.store.Order("ORD-1")
	assert.Equal(t, order.StatusPending, o.Status)
}

func TestHandlePaymentWebhook_UpstreamFailure(t *testing.T) {
	f := newFixture(t)
	f.putOrder("ORD-1", 1)
	f.mp.err = errors.New(http.StatusBadGateway, status.UPSTREAM_UNAVAILABLE, "payment provider is unavailable")

	_, err := f.uc.HandlePaymentWebhook(context.Background(), signed("77"))
	require.Error(t, err)
	assert.Equal(t, http.StatusBadGateway, errors.Destruct(err).HTTPStatusCode)

	o, _ := f.store.Order("ORD-1")
	assert.Equal(t, order.StatusPending, o.Status)
}

func TestHandlePaymentWebhook_CapacityExhaustedMovesToError(t *testing.T) {
	f := newFixture(t)
	f.putOrder("ORD-1", 3)
	f.approvePayment(77, "ORD-1")

	resp, err := f.uc.HandlePaymentWebhook(context.Background(), signed("77"))
	require.NoError(t, err)
	assert.Equal(t, payment.OutcomeFailed, resp.Outcome)

	o, _ := f.store.Order("ORD-1")
	assert.Equal(t, order.StatusError, o.Status)
	assert.Empty(t, f.store.Tickets())
}

func TestHandlePaymentWebhook_UnknownOrder(t *testing.T) {
	f := newFixture(t)
	f.approvePayment(77, "ORD-missing")

	resp, err := f.uc.HandlePaymentWebhook(context.Background(), signed("77"))
	require.NoError(t, err)
	assert.Equal(t, payment.OutcomeIgnored, resp.Outcome)
}

func TestReconcilePendingPayments(t *testing.T) {
	f := newFixture(t)
	f.putOrder("ORD-paid", 1)
	f.putOrder("ORD-unpaid", 1)
	f.approvePayment(77, "ORD-paid")
	f.mp.merchantOrders["ORD-paid"] = []mercadopago.MerchantOrder{{
		ID:                1,
		ExternalReference: "ORD-paid",
		Payments:          []mercadopago.MerchantOrderPayment{{ID: 76, Status: "rejected"}, {ID: 77, Status: mercadopago.PaymentStatusApproved}},
	}}

	resp, err := f.uc.ReconcilePendingPayments(context.Background(), payment.ReconcileRequest{})
	require.NoError(t, err)
	assert.Equal(t, 2, resp.Checked)
	assert.Equal(t, 1, resp.Confirmed)
	assert.Equal(t, 1, resp.Pending)

	paid, _ := f.store.Order("ORD-paid")
	assert.Equal(t, order.StatusConfirmed, paid.Status)
	unpaid, _ := f.store.Order("ORD-unpaid")
	assert.Equal(t, order.StatusPending, unpaid.Status)

	// the webhook arriving late changes nothing
	webhook, err := f.uc.HandlePaymentWebhook(context.Background(), signed("77"))
	require.NoError(t, err)
	assert.Equal(t, payment.OutcomeDuplicate, webhook.Outcome)
	assert.Len(t, f.store.Tickets(), 1)
}

func TestReconcilePendingPayments_RetriesProcessing(t *testing.T) {
	f := newFixture(t)
	f.putOrder("ORD-1", 1)
	o, _ := f.store.Order("ORD-1")
	o.Status = order.StatusProcessing
	f.store.PutOrder(o, order.Item{TicketTypeID: "tt-general", Quantity: 1})

	resp, err := f.uc.ReconcilePendingPayments(context.Background(), payment.ReconcileRequest{EventIDs: []string{"ev-1"}})
	require.NoError(t, err)
	assert.Equal(t, 1, resp.Confirmed)
	assert.Zero(t, f.mp.calls)

	stored, _ := f.store.Order("ORD-1")
	assert.Equal(t, order.StatusConfirmed, stored.Status)
}

func TestReconcilePendingPayments_UpstreamFailureDefers(t *testing.T) {
	f := newFixture(t)
	f.putOrder("ORD-1", 1)
	f.mp.err = errors.New(http.StatusBadGateway, status.UPSTREAM_UNAVAILABLE, "payment provider is unavailable")

	resp, err := f.uc.ReconcilePendingPayments(context.Background(), payment.ReconcileRequest{})
	require.NoError(t, err)
	assert.Equal(t, 1, resp.Deferred)

	o, _ := f.store.Order("ORD-1")
	assert.Equal(t, order.StatusPending, o.Status)
}

func TestOnPaymentNotification_HTTP(t *testing.T) {
	f := newFixture(t)
	f.putOrder("ORD-1", 1)
	f.approvePayment(77, "ORD-1")

	router := mux.NewRouter()
	payment.InitHTTPHandler(router, middleware.NewInternalTokenMiddleware("internal"), f.uc)

	req := httptest.NewRequest(http.MethodPost, "/ticketera/v1/customerapp/payments/webhook?data.id=77&type=payment", strings.NewReader(`{"type":"payment","data":{"id":"77"}}`))
	req.Header.Set("x-signature", "ts=1,v1=deadbeef")
	req.Header.Set("x-request-id", "req-77")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Contains(t, rec.Body.String(), status.INVALID_SIGNATURE)

	good := signed("77")
	req = httptest.NewRequest(http.MethodPost, "/ticketera/v1/customerapp/payments/webhook?data.id=77", strings.NewReader(`{"type":"payment","data":{"id":"77"}}`))
	req.Header.Set("x-signature", good.Signature)
	req.Header.Set("x-request-id", good.RequestID)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), payment.OutcomeConfirmed)

	req = httptest.NewRequest(http.MethodPost, payment.JobPath, nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
