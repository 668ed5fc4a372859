package order_test

import (
	"context"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/fuegoaustral/ticketera-sub000/internal/module/customerapp/account"
	"github.com/fuegoaustral/ticketera-sub000/internal/module/customerapp/event"
	"github.com/fuegoaustral/ticketera-sub000/internal/module/customerapp/order"
	"github.com/fuegoaustral/ticketera-sub000/internal/module/customerapp/ticket"
	"github.com/fuegoaustral/ticketera-sub000/internal/pkg/memstoretest"
	"github.com/fuegoaustral/ticketera-sub000/internal/pkg/notification"
	"github.com/fuegoaustral/ticketera-sub000/pkg/clock"
	"github.com/fuegoaustral/ticketera-sub000/pkg/errors"
	"github.com/fuegoaustral/ticketera-sub000/pkg/status"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)

type fixture struct {
	store  *memstoretest.Store
	outbox *memstoretest.Outbox
	uc     order.OrderUseCase
}

func newFixture(t *testing.T) fixture {
	t.Helper()

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	store := memstoretest.New()
	outbox := memstoretest.NewOutbox()

	store.PutEvent(event.Event{ID: "ev-1", Name: "Fuego 2026", Active: true, TransfersEnabledUntil: now.Add(30 * 24 * time.Hour)})
	store.PutAccount(account.Account{ID: 1, Email: "ana@example.com", Name: "Ana", EmailVerified: true, ProfileCompleted: true})
	store.PutTicketType(ticket.TicketType{ID: "tt-general", EventID: "ev-1", Name: "General", Remaining: 10})
	store.PutTicketType(ticket.TicketType{ID: "tt-kids", EventID: "ev-1", Name: "Kids", Remaining: 10})

	uc := order.NewOrderUseCase(order.OrderUseCaseProperty{
		Logger:               logger,
		Timeout:              5 * time.Second,
		BaseURL:              "https://tickets.example.com",
		Clock:                clock.NewFake(now),
		OrderRepository:      store.Orders(),
		ItemRepository:       store.Items(),
		AccountRepository:    store.Accounts(),
		TicketRepository:     store.TicketRepository(),
		TicketTypeRepository: store.TicketTypes(),
		Publisher:            outbox,
		Notifier:             outbox,
	})

	return fixture{store: store, outbox: outbox, uc: uc}
}

func pendingOrder(key string, items ...order.Item) (order.Order, []order.Item) {
	customerID := int64(1)
	return order.Order{
		Key:           key,
		EventID:       "ev-1",
		CustomerID:    &customerID,
		CustomerEmail: "ana@example.com",
		Status:        order.StatusPending,
		CreatedAt:     now,
	}, items
}

func TestFulfillOrder_SingleTypeAssignsFirstTicket(t *testing.T) {
	f := newFixture(t)
	o, items := pendingOrder("ORD-1", order.Item{TicketTypeID: "tt-general", Quantity: 3})
	f.store.PutOrder(o, items...)

	resp, err := f.uc.FulfillOrder(context.Background(), "ORD-1")
	require.NoError(t, err)
	assert.False(t, resp.AlreadyFulfilled)
	assert.Equal(t, order.StatusConfirmed, resp.Order.Status)
	require.Len(t, resp.Tickets, 3)

	owned := 0
	for _, tk := range resp.Tickets {
		assert.Equal(t, int64(1), tk.HolderID)
		assert.Contains(t, tk.Credential, "https://tickets.example.com/ticketera/v1/tickets/"+tk.Key)
		if tk.OwnerID != nil {
			owned++
			assert.Equal(t, int64(1), *tk.OwnerID)
		}
	}
	assert.Equal(t, 1, owned)
	require.NotNil(t, resp.Tickets[0].OwnerID)

	tt, _ := f.store.TicketType("tt-general")
	assert.Equal(t, int64(7), tt.Remaining)

	stored, _ := f.store.Order("ORD-1")
	assert.Equal(t, order.StatusConfirmed, stored.Status)

	assert.Len(t, f.outbox.Messages(order.TopicOrderConfirmed), 1)
	emails := f.outbox.Emails(notification.TemplateOrderConfirmed)
	require.Len(t, emails, 1)
	assert.Equal(t, []string{"ana@example.com"}, emails[0].Recipients)
}

func TestFulfillOrder_MultiTypeAssignsNothing(t *testing.T) {
	f := newFixture(t)
	o, items := pendingOrder("ORD-1",
		order.Item{TicketTypeID: "tt-general", Quantity: 1},
		order.Item{TicketTypeID: "tt-kids", Quantity: 2},
	)
	f.store.PutOrder(o, items...)

	resp, err := f.uc.FulfillOrder(context.Background(), "ORD-1")
	require.NoError(t, err)
	require.Len(t, resp.Tickets, 3)
	for _, tk := range resp.Tickets {
		assert.Nil(t, tk.OwnerID)
		assert.Equal(t, int64(1), tk.HolderID)
	}
}

func TestFulfillOrder_PurchaserAlreadyOwnsTicket(t *testing.T) {
	f := newFixture(t)
	ownerID := int64(1)
	f.store.PutTicket(ticket.Ticket{Key: "TKT-old", EventID: "ev-1", TicketTypeID: "tt-general", HolderID: 1, OwnerID: &ownerID, CreatedAt: now})

	o, items := pendingOrder("ORD-1", order.Item{TicketTypeID: "tt-general", Quantity: 2})
	f.store.PutOrder(o, items...)

	resp, err := f.uc.FulfillOrder(context.Background(), "ORD-1")
	require.NoError(t, err)
	for _, tk := range resp.Tickets {
		assert.Nil(t, tk.OwnerID)
	}
}

func TestFulfillOrder_ResolvesPurchaserByVerifiedEmail(t *testing.T) {
	f := newFixture(t)
	f.store.PutAccount(account.Account{ID: 7, Email: "Guest@Example.com", EmailVerified: true})

	o, items := pendingOrder("ORD-1", order.Item{TicketTypeID: "tt-general", Quantity: 1})
	o.CustomerID = nil
	o.CustomerEmail = "guest@example.com"
	f.store.PutOrder(o, items...)

	resp, err := f.uc.FulfillOrder(context.Background(), "ORD-1")
	require.NoError(t, err)
	require.NotNil(t, resp.Order.CustomerID)
	assert.Equal(t, int64(7), *resp.Order.CustomerID)
	assert.Equal(t, int64(7), resp.Tickets[0].HolderID)
}

func TestFulfillOrder_IsIdempotent(t *testing.T) {
	f := newFixture(t)
	o, items := pendingOrder("ORD-1", order.Item{TicketTypeID: "tt-general", Quantity: 2})
	f.store.PutOrder(o, items...)

	first, err := f.uc.FulfillOrder(context.Background(), "ORD-1")
	require.NoError(t, err)

	second, err := f.uc.FulfillOrder(context.Background(), "ORD-1")
	require.NoError(t, err)
	assert.True(t, second.AlreadyFulfilled)
	assert.ElementsMatch(t, ticketKeys(first.Tickets), ticketKeys(second.Tickets))

	assert.Len(t, f.store.Tickets(), 2)
	tt, _ := f.store.TicketType("tt-general")
	assert.Equal(t, int64(8), tt.Remaining)
	assert.Len(t, f.outbox.Emails(notification.TemplateOrderConfirmed), 1)
}

func TestFulfillOrder_ConcurrentCallsMintOnce(t *testing.T) {
	f := newFixture(t)
	o, items := pendingOrder("ORD-1", order.Item{TicketTypeID: "tt-general", Quantity: 2})
	f.store.PutOrder(o, items...)

	const n = 8
	var wg sync.WaitGroup
	var mu sync.Mutex
	fresh := 0

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			resp, err := f.uc.FulfillOrder(context.Background(), "ORD-1")
			if !assert.NoError(t, err) {
				return
			}
			if !resp.AlreadyFulfilled {
				mu.Lock()
				fresh++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, fresh)
	assert.Len(t, f.store.Tickets(), 2)
	tt, _ := f.store.TicketType("tt-general")
	assert.Equal(t, int64(8), tt.Remaining)
}

func TestFulfillOrder_InsufficientCapacityMintsNothing(t *testing.T) {
	f := newFixture(t)
	f.store.PutTicketType(ticket.TicketType{ID: "tt-kids", EventID: "ev-1", Name: "Kids", Remaining: 1})

	o, items := pendingOrder("ORD-1",
		order.Item{TicketTypeID: "tt-general", Quantity: 2},
		order.Item{TicketTypeID: "tt-kids", Quantity: 2},
	)
	f.store.PutOrder(o, items...)

	_, err := f.uc.FulfillOrder(context.Background(), "ORD-1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, status.INSUFFICIENT_CAPACITY))

	assert.Empty(t, f.store.Tickets())
	general, _ := f.store.TicketType("tt-general")
	assert.Equal(t, int64(10), general.Remaining)
	kids, _ := f.store.TicketType("tt-kids")
	assert.Equal(t, int64(1), kids.Remaining)

	stored, _ := f.store.Order("ORD-1")
	assert.Equal(t, order.StatusPending, stored.Status)
	assert.Empty(t, f.outbox.Emails(""))
}

func TestFulfillOrder_ConcurrentOrdersNeverOversell(t *testing.T) {
	f := newFixture(t)

	const orders = 6
	for i := 0; i < orders; i++ {
		o, items := pendingOrder(fmt.Sprintf("ORD-%d", i), order.Item{TicketTypeID: "tt-general", Quantity: 3})
		f.store.PutOrder(o, items...)
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	confirmed, rejected := 0, 0

	for i := 0; i < orders; i++ {
		wg.Add(1)
		go func(key string) {
			defer wg.Done()
			_, err := f.uc.FulfillOrder(context.Background(), key)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				confirmed++
			case errors.Is(err, status.INSUFFICIENT_CAPACITY):
				rejected++
			default:
				t.Errorf("unexpected error for %s: %v", key, err)
			}
		}(fmt.Sprintf("ORD-%d", i))
	}
	wg.Wait()

	assert.Equal(t, 3, confirmed)
	assert.Equal(t, 3, rejected)
	assert.Len(t, f.store.Tickets(), 9)

	tt, _ := f.store.TicketType("tt-general")
	assert.Equal(t, int64(1), tt.Remaining)

	pending := 0
	for i := 0; i < orders; i++ {
		o, _ := f.store.Order(fmt.Sprintf("ORD-%d", i))
		if o.Status == order.StatusPending {
			pending++
		}
	}
	assert.Equal(t, 3, pending)
}

func TestFulfillOrder_RejectsErroredOrder(t *testing.T) {
	f := newFixture(t)
	o, items := pendingOrder("ORD-1", order.Item{TicketTypeID: "tt-general", Quantity: 1})
	o.Status = order.StatusError
	f.store.PutOrder(o, items...)

	_, err := f.uc.FulfillOrder(context.Background(), "ORD-1")
	assert.True(t, errors.Is(err, status.ORDER_NOT_FULFILLABLE))
}

func TestFulfillOrder_NotFound(t *testing.T) {
	f := newFixture(t)

	_, err := f.uc.FulfillOrder(context.Background(), "ORD-missing")
	assert.True(t, errors.Is(err, status.NOT_FOUND))
}

func TestMarkProcessing(t *testing.T) {
	f := newFixture(t)
	o, items := pendingOrder("ORD-1", order.Item{TicketTypeID: "tt-general", Quantity: 1})
	f.store.PutOrder(o, items...)

	net := 950.5
	moved, err := f.uc.MarkProcessing(context.Background(), order.MarkProcessingRequest{Key: "ORD-1", ProviderResponse: []byte(`{"id":1}`), NetReceivedAmount: &net})
	require.NoError(t, err)
	assert.True(t, moved)

	moved, err = f.uc.MarkProcessing(context.Background(), order.MarkProcessingRequest{Key: "ORD-1"})
	require.NoError(t, err)
	assert.False(t, moved)

	stored, _ := f.store.Order("ORD-1")
	assert.Equal(t, order.StatusProcessing, stored.Status)
	require.NotNil(t, stored.NetReceivedAmount)
	assert.Equal(t, net, *stored.NetReceivedAmount)
}

func TestMarkError(t *testing.T) {
	f := newFixture(t)
	o, items := pendingOrder("ORD-1", order.Item{TicketTypeID: "tt-general", Quantity: 1})
	o.Status = order.StatusProcessing
	f.store.PutOrder(o, items...)

	require.NoError(t, f.uc.MarkError(context.Background(), "ORD-1", "sold out"))
	stored, _ := f.store.Order("ORD-1")
	assert.Equal(t, order.StatusError, stored.Status)
}

func TestGetManyReconcilable(t *testing.T) {
	f := newFixture(t)
	a, items := pendingOrder("ORD-a", order.Item{TicketTypeID: "tt-general", Quantity: 1})
	f.store.PutOrder(a, items...)
	b, items := pendingOrder("ORD-b", order.Item{TicketTypeID: "tt-general", Quantity: 1})
	b.Status = order.StatusProcessing
	f.store.PutOrder(b, items...)
	c, items := pendingOrder("ORD-c", order.Item{TicketTypeID: "tt-general", Quantity: 1})
	c.Status = order.StatusConfirmed
	f.store.PutOrder(c, items...)

	orders, err := f.uc.GetManyReconcilable(context.Background(), []string{"ev-1"})
	require.NoError(t, err)
	require.Len(t, orders, 2)
	assert.Equal(t, "ORD-a", orders[0].Key)
	assert.Equal(t, "ORD-b", orders[1].Key)
}

func ticketKeys(ts []order.TicketResponse) []string {
	out := make([]string, len(ts))
	for k, t := range ts {
		out[k] = t.Key
	}
	return out
}
