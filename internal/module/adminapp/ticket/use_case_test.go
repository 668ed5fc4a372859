package ticket_test

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/fuegoaustral/ticketera-sub000/internal/module/adminapp/ticket"
	customerTicket "github.com/fuegoaustral/ticketera-sub000/internal/module/customerapp/ticket"
	"github.com/fuegoaustral/ticketera-sub000/internal/pkg/memstoretest"
	"github.com/fuegoaustral/ticketera-sub000/pkg/clock"
	"github.com/fuegoaustral/ticketera-sub000/pkg/errors"
	"github.com/fuegoaustral/ticketera-sub000/pkg/status"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newUseCase(store *memstoretest.Store) ticket.TicketUseCase {
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	return ticket.NewTicketUseCase(ticket.TicketUseCaseProperty{
		Logger:                    logger,
		Timeout:                   5 * time.Second,
		Clock:                     clock.NewFake(time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)),
		TicketTypeRepository:      store.TicketTypes(),
		CapacityJournalRepository: store.CapacityJournalRepository(),
	})
}

func TestRestock(t *testing.T) {
	store := memstoretest.New()
	store.PutTicketType(customerTicket.TicketType{ID: "tt-general", EventID: "ev-1", Name: "General", Remaining: 0})
	uc := newUseCase(store)

	resp, err := uc.Restock(context.Background(), ticket.RestockRequest{TicketTypeID: "tt-general", StaffID: 5, Quantity: 20, Description: "second batch"})
	require.NoError(t, err)
	assert.Equal(t, int64(20), resp.Remaining)

	tt, _ := store.TicketType("tt-general")
	assert.Equal(t, int64(20), tt.Remaining)

	journal := store.Journal()
	require.Len(t, journal, 1)
	assert.Equal(t, ticket.JournalActionRestock, journal[0].Action)
	assert.Equal(t, int64(20), journal[0].Quantity)
	assert.Equal(t, int64(5), journal[0].StaffID)
}

func TestRestock_RejectsNonPositiveQuantity(t *testing.T) {
	store := memstoretest.New()
	store.PutTicketType(customerTicket.TicketType{ID: "tt-general", EventID: "ev-1", Remaining: 3})
	uc := newUseCase(store)

	_, err := uc.Restock(context.Background(), ticket.RestockRequest{TicketTypeID: "tt-general", Quantity: -2})
	assert.True(t, errors.Is(err, status.BAD_REQUEST))

	tt, _ := store.TicketType("tt-general")
	assert.Equal(t, int64(3), tt.Remaining)
	assert.Empty(t, store.Journal())
}

func TestRestock_UnknownTicketType(t *testing.T) {
	uc := newUseCase(memstoretest.New())

	_, err := uc.Restock(context.Background(), ticket.RestockRequest{TicketTypeID: "tt-missing", Quantity: 1})
	assert.True(t, errors.Is(err, status.NOT_FOUND))
}

func TestGetManyTicketTypes(t *testing.T) {
	store := memstoretest.New()
	store.PutTicketType(customerTicket.TicketType{ID: "tt-b", EventID: "ev-1"})
	store.PutTicketType(customerTicket.TicketType{ID: "tt-a", EventID: "ev-1"})
	store.PutTicketType(customerTicket.TicketType{ID: "tt-c", EventID: "ev-2"})
	uc := newUseCase(store)

	resp, err := uc.GetManyTicketTypes(context.Background(), "ev-1")
	require.NoError(t, err)
	require.Len(t, resp, 2)
	assert.Equal(t, "tt-a", resp[0].ID)
}
