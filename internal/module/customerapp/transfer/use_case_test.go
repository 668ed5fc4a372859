package transfer_test

import (
	"context"
	"database/sql"
	"io"
	"testing"
	"time"

	"github.com/fuegoaustral/ticketera-sub000/internal/module/customerapp/account"
	"github.com/fuegoaustral/ticketera-sub000/internal/module/customerapp/event"
	"github.com/fuegoaustral/ticketera-sub000/internal/module/customerapp/ticket"
	"github.com/fuegoaustral/ticketera-sub000/internal/module/customerapp/transfer"
	"github.com/fuegoaustral/ticketera-sub000/internal/pkg/memstoretest"
	"github.com/fuegoaustral/ticketera-sub000/internal/pkg/notification"
	"github.com/fuegoaustral/ticketera-sub000/pkg/clock"
	"github.com/fuegoaustral/ticketera-sub000/pkg/errors"
	"github.com/fuegoaustral/ticketera-sub000/pkg/status"
	"github.com/fuegoaustral/ticketera-sub000/pkg/validator"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)

const (
	sender    = int64(1)
	recipient = int64(2)
)

type fixture struct {
	store  *memstoretest.Store
	outbox *memstoretest.Outbox
	clock  *clock.Fake
	uc     transfer.TransferUseCase
}

func newFixture(t *testing.T) fixture {
	t.Helper()

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	store := memstoretest.New()
	outbox := memstoretest.NewOutbox()
	fake := clock.NewFake(now)

	store.PutEvent(event.Event{ID: "ev-1", Name: "Fuego 2026", Active: true, TransfersEnabledUntil: now.Add(10 * 24 * time.Hour)})
	store.PutAccount(account.Account{ID: sender, Email: "ana@example.com", Name: "Ana", EmailVerified: true, ProfileCompleted: true})
	store.PutAccount(account.Account{ID: recipient, Email: "beto@example.com", Name: "Beto", EmailVerified: true, ProfileCompleted: true})

	uc := transfer.NewTransferUseCase(transfer.TransferUseCaseProperty{
		Logger:             logger,
		Timeout:            5 * time.Second,
		BaseURL:            "https://tickets.example.com",
		Clock:              fake,
		Validate:           validator.Get(),
		TransferRepository: store.TransferRepository(),
		TicketRepository:   store.TicketRepository(),
		AccountRepository:  store.Accounts(),
		EventRepository:    store.Events(),
		Publisher:          outbox,
		Notifier:           outbox,
	})

	return fixture{store: store, outbox: outbox, clock: fake, uc: uc}
}

func owner(id int64) *int64 { return &id }

func (f fixture) putTicket(key string, holder int64, ownerID *int64) {
	f.store.PutTicket(ticket.Ticket{
		Key:          key,
		EventID:      "ev-1",
		TicketTypeID: "tt-general",
		HolderID:     holder,
		OwnerID:      ownerID,
		Roles:        []string{"volunteer"},
		CreatedAt:    now.Add(-time.Hour),
		UpdatedAt:    now.Add(-time.Hour),
	})
}

func (f fixture) closeWindow() {
	f.clock.Set(now.Add(11 * 24 * time.Hour))
}

func TestInitiateTransfer_ExistingAccountWithoutOwnedTicketBecomesOwner(t *testing.T) {
	f := newFixture(t)
	f.putTicket("TKT-1", sender, owner(sender))

	resp, err := f.uc.InitiateTransfer(context.Background(), transfer.InitiateTransferRequest{
		TicketKey:        "TKT-1",
		FromUserID:       sender,
		DestinationEmail: " Beto@Example.com ",
	})
	require.NoError(t, err)
	assert.Equal(t, transfer.StatusCompleted, resp.Transfer.Status)
	assert.Equal(t, "beto@example.com", resp.Transfer.DestinationEmail)

	tk, _ := f.store.Ticket("TKT-1")
	assert.Equal(t, recipient, tk.HolderID)
	require.NotNil(t, tk.OwnerID)
	assert.Equal(t, recipient, *tk.OwnerID)
	assert.Empty(t, tk.Roles)

	assert.Len(t, f.outbox.Messages(transfer.TopicTicketTransferred), 1)
	assert.Len(t, f.outbox.Emails(notification.TemplateTransferReceived), 1)
	assert.Len(t, f.outbox.Emails(notification.TemplateTransferCompleted), 1)
}

func TestInitiateTransfer_ExistingAccountAlreadyOwningStaysHolderOnly(t *testing.T) {
	f := newFixture(t)
	f.putTicket("TKT-1", sender, owner(sender))
	f.putTicket("TKT-2", recipient, owner(recipient))

	resp, err := f.uc.InitiateTransfer(context.Background(), transfer.InitiateTransferRequest{
		TicketKey:        "TKT-1",
		FromUserID:       sender,
		DestinationEmail: "beto@example.com",
	})
	require.NoError(t, err)
	assert.Equal(t, transfer.StatusCompleted, resp.Transfer.Status)
	assert.Nil(t, resp.Ticket.OwnerID)

	tk, _ := f.store.Ticket("TKT-1")
	assert.Equal(t, recipient, tk.HolderID)
	assert.Nil(t, tk.OwnerID)
}

func TestInitiateTransfer_UnknownEmailStaysPending(t *testing.T) {
	f := newFixture(t)
	f.putTicket("TKT-1", sender, nil)

	resp, err := f.uc.InitiateTransfer(context.Background(), transfer.InitiateTransferRequest{
		TicketKey:        "TKT-1",
		FromUserID:       sender,
		DestinationEmail: "nueva@example.com",
	})
	require.NoError(t, err)
	assert.Equal(t, transfer.StatusPending, resp.Transfer.Status)

	tk, _ := f.store.Ticket("TKT-1")
	assert.Equal(t, sender, tk.HolderID)

	invites := f.outbox.Emails(notification.TemplateTransferInvitation)
	require.Len(t, invites, 1)
	assert.Equal(t, []string{"nueva@example.com"}, invites[0].Recipients)
}

func TestInitiateTransfer_SinglePendingPerTicket(t *testing.T) {
	f := newFixture(t)
	f.putTicket("TKT-1", sender, nil)

	_, err := f.uc.InitiateTransfer(context.Background(), transfer.InitiateTransferRequest{TicketKey: "TKT-1", FromUserID: sender, DestinationEmail: "a@example.com"})
	require.NoError(t, err)

	_, err = f.uc.InitiateTransfer(context.Background(), transfer.InitiateTransferRequest{TicketKey: "TKT-1", FromUserID: sender, DestinationEmail: "b@example.com"})
	assert.True(t, errors.Is(err, status.DUPLICATE_PENDING_TRANSFER))
	assert.Len(t, f.store.Transfers(), 1)
}

func TestInitiateTransfer_Guards(t *testing.T) {
	tests := []struct {
		name   string
		setup  func(f fixture)
		req    transfer.InitiateTransferRequest
		status string
	}{
		{
			name:   "invalid email",
			req:    transfer.InitiateTransferRequest{TicketKey: "TKT-1", FromUserID: sender, DestinationEmail: "not-an-email"},
			status: status.BAD_REQUEST,
		},
		{
			name:   "not the holder",
			req:    transfer.InitiateTransferRequest{TicketKey: "TKT-1", FromUserID: recipient, DestinationEmail: "c@example.com"},
			status: status.FORBIDDEN,
		},
		{
			name:   "to self",
			req:    transfer.InitiateTransferRequest{TicketKey: "TKT-1", FromUserID: sender, DestinationEmail: "ana@example.com"},
			status: status.BAD_REQUEST,
		},
		{
			name: "used ticket",
			setup: func(f fixture) {
				f.store.PutTicket(ticket.Ticket{Key: "TKT-1", EventID: "ev-1", HolderID: sender, Used: true})
			},
			req:    transfer.InitiateTransferRequest{TicketKey: "TKT-1", FromUserID: sender, DestinationEmail: "c@example.com"},
			status: status.TICKET_ALREADY_USED,
		},
		{
			name:   "window closed",
			setup:  func(f fixture) { f.closeWindow() },
			req:    transfer.InitiateTransferRequest{TicketKey: "TKT-1", FromUserID: sender, DestinationEmail: "c@example.com"},
			status: status.TRANSFER_WINDOW_CLOSED,
		},
		{
			name:   "window closed wins over holder check",
			setup:  func(f fixture) { f.closeWindow() },
			req:    transfer.InitiateTransferRequest{TicketKey: "TKT-1", FromUserID: recipient, DestinationEmail: "c@example.com"},
			status: status.TRANSFER_WINDOW_CLOSED,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			f.putTicket("TKT-1", sender, nil)
			if tc.setup != nil {
				tc.setup(f)
			}

			_, err := f.uc.InitiateTransfer(context.Background(), tc.req)
			require.Error(t, err)
			assert.Equal(t, tc.status, errors.Destruct(err).Status)
			assert.Empty(t, f.store.Transfers())
		})
	}
}

func TestCancelTransfer(t *testing.T) {
	f := newFixture(t)
	f.putTicket("TKT-1", sender, nil)

	resp, err := f.uc.InitiateTransfer(context.Background(), transfer.InitiateTransferRequest{TicketKey: "TKT-1", FromUserID: sender, DestinationEmail: "nueva@example.com"})
	require.NoError(t, err)

	_, err = f.uc.CancelTransfer(context.Background(), transfer.CancelTransferRequest{TransferKey: resp.Transfer.Key, RequesterID: recipient})
	assert.True(t, errors.Is(err, status.FORBIDDEN))

	cancelled, err := f.uc.CancelTransfer(context.Background(), transfer.CancelTransferRequest{TransferKey: resp.Transfer.Key, RequesterID: sender})
	require.NoError(t, err)
	assert.Equal(t, transfer.StatusCancelled, cancelled.Status)

	_, err = f.uc.CancelTransfer(context.Background(), transfer.CancelTransferRequest{TransferKey: resp.Transfer.Key, RequesterID: sender})
	assert.True(t, errors.Is(err, status.TRANSFER_NOT_PENDING))

	// a cancelled transfer frees the ticket for a new one
	_, err = f.uc.InitiateTransfer(context.Background(), transfer.InitiateTransferRequest{TicketKey: "TKT-1", FromUserID: sender, DestinationEmail: "otra@example.com"})
	require.NoError(t, err)
}

func TestCancelTransfer_WindowClosed(t *testing.T) {
	f := newFixture(t)
	f.store.PutTransfer(transfer.Transfer{Key: "TRF-1", TicketKey: "TKT-1", EventID: "ev-1", FromUserID: sender, DestinationEmail: "nueva@example.com", Status: transfer.StatusPending, CreatedAt: now})
	f.closeWindow()

	_, err := f.uc.CancelTransfer(context.Background(), transfer.CancelTransferRequest{TransferKey: "TRF-1", RequesterID: sender})
	assert.True(t, errors.Is(err, status.TRANSFER_WINDOW_CLOSED))

	tr, _ := f.store.Transfer("TRF-1")
	assert.Equal(t, transfer.StatusPending, tr.Status)
}

func TestCompleteTransfersForNewAccount_OldestTransferGetsOwnership(t *testing.T) {
	f := newFixture(t)
	f.store.PutAccount(account.Account{ID: 3, Email: "carla@example.com", EmailVerified: true})
	f.putTicket("TKT-1", sender, nil)
	f.putTicket("TKT-2", 3, nil)
	f.putTicket("TKT-3", sender, nil)

	f.store.PutTransfer(transfer.Transfer{Key: "TRF-b", TicketKey: "TKT-2", EventID: "ev-1", FromUserID: 3, DestinationEmail: "nueva@example.com", Status: transfer.StatusPending, CreatedAt: now.Add(-time.Hour)})
	f.store.PutTransfer(transfer.Transfer{Key: "TRF-a", TicketKey: "TKT-1", EventID: "ev-1", FromUserID: sender, DestinationEmail: "nueva@example.com", Status: transfer.StatusPending, CreatedAt: now.Add(-2 * time.Hour)})
	// sender gave TKT-3 away through another route, so this transfer is stale
	f.store.PutTransfer(transfer.Transfer{Key: "TRF-c", TicketKey: "TKT-3", EventID: "ev-1", FromUserID: 3, DestinationEmail: "nueva@example.com", Status: transfer.StatusPending, CreatedAt: now.Add(-30 * time.Minute)})

	f.store.PutAccount(account.Account{ID: 9, Email: "Nueva@example.com", EmailVerified: true, ProfileCompleted: true})

	resp, err := f.uc.CompleteTransfersForNewAccount(context.Background(), 9)
	require.NoError(t, err)
	require.Len(t, resp.Completed, 2)
	assert.Equal(t, "TRF-a", resp.Completed[0].Key)
	assert.Equal(t, "TRF-b", resp.Completed[1].Key)
	assert.Equal(t, 1, resp.Cancelled)

	first, _ := f.store.Ticket("TKT-1")
	assert.Equal(t, int64(9), first.HolderID)
	require.NotNil(t, first.OwnerID)
	assert.Equal(t, int64(9), *first.OwnerID)

	second, _ := f.store.Ticket("TKT-2")
	assert.Equal(t, int64(9), second.HolderID)
	assert.Nil(t, second.OwnerID)

	stale, _ := f.store.Transfer("TRF-c")
	assert.Equal(t, transfer.StatusCancelled, stale.Status)

	assert.Len(t, f.outbox.Emails(notification.TemplateTransferReceived), 2)
}

func TestCompleteTransfersForNewAccount_RequiresActivation(t *testing.T) {
	f := newFixture(t)
	f.store.PutAccount(account.Account{ID: 9, Email: "nueva@example.com", EmailVerified: true})

	_, err := f.uc.CompleteTransfersForNewAccount(context.Background(), 9)
	assert.True(t, errors.Is(err, status.ACCOUNT_NOT_ACTIVATED))
}

func TestCompleteTransfersForNewAccount_WindowClosed(t *testing.T) {
	f := newFixture(t)
	f.putTicket("TKT-1", sender, nil)
	f.store.PutTransfer(transfer.Transfer{Key: "TRF-a", TicketKey: "TKT-1", EventID: "ev-1", FromUserID: sender, DestinationEmail: "nueva@example.com", Status: transfer.StatusPending, CreatedAt: now})
	f.store.PutAccount(account.Account{ID: 9, Email: "nueva@example.com", EmailVerified: true, ProfileCompleted: true})
	f.closeWindow()

	_, err := f.uc.CompleteTransfersForNewAccount(context.Background(), 9)
	assert.True(t, errors.Is(err, status.TRANSFER_WINDOW_CLOSED))

	tr, _ := f.store.Transfer("TRF-a")
	assert.Equal(t, transfer.StatusPending, tr.Status)
	tk, _ := f.store.Ticket("TKT-1")
	assert.Equal(t, sender, tk.HolderID)
}

func TestCompleteTransfersForNewAccount_NothingPending(t *testing.T) {
	f := newFixture(t)

	resp, err := f.uc.CompleteTransfersForNewAccount(context.Background(), recipient)
	require.NoError(t, err)
	assert.Empty(t, resp.Completed)
}

func TestAssignAndUnassignTicket(t *testing.T) {
	f := newFixture(t)
	f.putTicket("TKT-1", sender, nil)
	f.putTicket("TKT-2", sender, nil)

	resp, err := f.uc.AssignTicket(context.Background(), transfer.AssignTicketRequest{TicketKey: "TKT-1", UserID: sender})
	require.NoError(t, err)
	require.NotNil(t, resp.OwnerID)
	assert.Empty(t, resp.Roles)

	_, err = f.uc.AssignTicket(context.Background(), transfer.AssignTicketRequest{TicketKey: "TKT-1", UserID: sender})
	assert.True(t, errors.Is(err, status.TICKET_ALREADY_ASSIGNED))

	_, err = f.uc.AssignTicket(context.Background(), transfer.AssignTicketRequest{TicketKey: "TKT-2", UserID: sender})
	assert.True(t, errors.Is(err, status.ALREADY_OWNS_TICKET))

	_, err = f.uc.UnassignTicket(context.Background(), transfer.AssignTicketRequest{TicketKey: "TKT-2", UserID: sender})
	assert.True(t, errors.Is(err, status.TICKET_NOT_ASSIGNED))

	resp, err = f.uc.UnassignTicket(context.Background(), transfer.AssignTicketRequest{TicketKey: "TKT-1", UserID: sender})
	require.NoError(t, err)
	assert.Nil(t, resp.OwnerID)

	_, err = f.uc.AssignTicket(context.Background(), transfer.AssignTicketRequest{TicketKey: "TKT-2", UserID: sender})
	require.NoError(t, err)
}

func TestAssignTicket_Guards(t *testing.T) {
	f := newFixture(t)
	f.putTicket("TKT-1", sender, nil)

	_, err := f.uc.AssignTicket(context.Background(), transfer.AssignTicketRequest{TicketKey: "TKT-1", UserID: recipient})
	assert.True(t, errors.Is(err, status.FORBIDDEN))

	f.closeWindow()
	_, err = f.uc.AssignTicket(context.Background(), transfer.AssignTicketRequest{TicketKey: "TKT-1", UserID: sender})
	assert.True(t, errors.Is(err, status.TRANSFER_WINDOW_CLOSED))
	_, err = f.uc.UnassignTicket(context.Background(), transfer.AssignTicketRequest{TicketKey: "TKT-1", UserID: sender})
	assert.True(t, errors.Is(err, status.TRANSFER_WINDOW_CLOSED))
}

func TestGetManyHeldTickets_OverlaysPendingTransfer(t *testing.T) {
	f := newFixture(t)
	f.putTicket("TKT-1", sender, nil)
	f.putTicket("TKT-2", sender, nil)
	f.store.PutTransfer(transfer.Transfer{Key: "TRF-1", TicketKey: "TKT-2", EventID: "ev-1", FromUserID: sender, DestinationEmail: "nueva@example.com", Status: transfer.StatusPending, CreatedAt: now})

	tickets, err := f.uc.GetManyHeldTickets(context.Background(), transfer.GetManyHeldTicketsRequest{EventID: "ev-1", HolderID: sender})
	require.NoError(t, err)
	require.Len(t, tickets, 2)
	assert.Nil(t, tickets[0].PendingTransfer)
	require.NotNil(t, tickets[1].PendingTransfer)
	assert.Equal(t, "TRF-1", tickets[1].PendingTransfer.Key)

	outgoing, err := f.uc.GetManyOutgoingTransfers(context.Background(), transfer.GetManyOutgoingTransfersRequest{EventID: "ev-1", FromUserID: sender})
	require.NoError(t, err)
	require.Len(t, outgoing, 1)
}

// lateActivationAccounts hides the destination from the initiating
// transaction and lets its activated account land before that transaction
// commits, the way a concurrent signup would.
type lateActivationAccounts struct {
	account.AccountRepository
	store *memstoretest.Store
	late  account.Account
}

func (r lateActivationAccounts) FindManyByEmailForUpdate(ctx context.Context, email string, tx *sql.Tx) ([]account.Account, error) {
	r.store.PutAccount(r.late)
	return []account.Account{}, nil
}

func TestInitiateTransfer_SettlesDestinationActivatedMidway(t *testing.T) {
	f := newFixture(t)
	f.putTicket("TKT-1", sender, owner(sender))

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	uc := transfer.NewTransferUseCase(transfer.TransferUseCaseProperty{
		Logger:   logger,
		Timeout:  5 * time.Second,
		BaseURL:  "https://tickets.example.com",
		Clock:    f.clock,
		Validate: validator.Get(),
		AccountRepository: lateActivationAccounts{
			AccountRepository: f.store.Accounts(),
			store:             f.store,
			late:              account.Account{ID: 9, Email: "nueva@example.com", EmailVerified: true, ProfileCompleted: true},
		},
		TransferRepository: f.store.TransferRepository(),
		TicketRepository:   f.store.TicketRepository(),
		EventRepository:    f.store.Events(),
		Publisher:          f.outbox,
		Notifier:           f.outbox,
	})

	resp, err := uc.InitiateTransfer(context.Background(), transfer.InitiateTransferRequest{
		TicketKey:        "TKT-1",
		FromUserID:       sender,
		DestinationEmail: "nueva@example.com",
	})
	require.NoError(t, err)
	assert.Equal(t, transfer.StatusCompleted, resp.Transfer.Status)
	assert.Equal(t, int64(9), resp.Ticket.HolderID)

	tr, _ := f.store.Transfer(resp.Transfer.Key)
	assert.Equal(t, transfer.StatusCompleted, tr.Status)

	tk, _ := f.store.Ticket("TKT-1")
	assert.Equal(t, int64(9), tk.HolderID)
	require.NotNil(t, tk.OwnerID)
	assert.Equal(t, int64(9), *tk.OwnerID)

	assert.Empty(t, f.outbox.Emails(notification.TemplateTransferInvitation))
	assert.Len(t, f.outbox.Emails(notification.TemplateTransferReceived), 1)
}

func TestInitiateTransfer_UnverifiedDestinationWaitsForActivation(t *testing.T) {
	f := newFixture(t)
	f.putTicket("TKT-1", sender, owner(sender))
	f.store.PutAccount(account.Account{ID: 9, Email: "nueva@example.com"})

	resp, err := f.uc.InitiateTransfer(context.Background(), transfer.InitiateTransferRequest{
		TicketKey:        "TKT-1",
		FromUserID:       sender,
		DestinationEmail: "nueva@example.com",
	})
	require.NoError(t, err)
	assert.Equal(t, transfer.StatusPending, resp.Transfer.Status)
	assert.Len(t, f.outbox.Emails(notification.TemplateTransferInvitation), 1)

	f.store.PutAccount(account.Account{ID: 9, Email: "nueva@example.com", EmailVerified: true, ProfileCompleted: true})

	done, err := f.uc.CompleteTransfersForNewAccount(context.Background(), 9)
	require.NoError(t, err)
	require.Len(t, done.Completed, 1)
	assert.Equal(t, resp.Transfer.Key, done.Completed[0].Key)

	tk, _ := f.store.Ticket("TKT-1")
	assert.Equal(t, int64(9), tk.HolderID)
}
