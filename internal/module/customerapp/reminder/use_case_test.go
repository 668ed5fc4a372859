package reminder_test

import (
	"context"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/fuegoaustral/ticketera-sub000/internal/module/customerapp/account"
	"github.com/fuegoaustral/ticketera-sub000/internal/module/customerapp/event"
	"github.com/fuegoaustral/ticketera-sub000/internal/module/customerapp/reminder"
	"github.com/fuegoaustral/ticketera-sub000/internal/module/customerapp/ticket"
	"github.com/fuegoaustral/ticketera-sub000/internal/module/customerapp/transfer"
	"github.com/fuegoaustral/ticketera-sub000/internal/pkg/lease"
	"github.com/fuegoaustral/ticketera-sub000/internal/pkg/memstoretest"
	"github.com/fuegoaustral/ticketera-sub000/internal/pkg/notification"
	"github.com/fuegoaustral/ticketera-sub000/pkg/clock"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var start = time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)

const day = 24 * time.Hour

type recordingRescheduler struct {
	mu    sync.Mutex
	calls []string
}

func (r *recordingRescheduler) Next(ctx context.Context, job string, path string, body []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, job+" "+path)
	return nil
}

type fixture struct {
	store       *memstoretest.Store
	outbox      *memstoretest.Outbox
	clock       *clock.Fake
	rescheduler *recordingRescheduler
	uc          reminder.ReminderUseCase
}

func newFixture(t *testing.T, locker lease.Locker) fixture {
	t.Helper()

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	store := memstoretest.New()
	outbox := memstoretest.NewOutbox()
	fake := clock.NewFake(start)
	rescheduler := &recordingRescheduler{}

	store.PutEvent(event.Event{ID: "ev-1", Name: "Fuego 2026", Active: true, TransfersEnabledUntil: start.Add(60 * day)})
	store.PutAccount(account.Account{ID: 1, Email: "ana@example.com", Name: "Ana", Phone: "+5491100000001", PhoneVerified: true, EmailVerified: true, ProfileCompleted: true})
	store.PutAccount(account.Account{ID: 2, Email: "beto@example.com", Name: "Beto", EmailVerified: true, ProfileCompleted: true})

	uc := reminder.NewReminderUseCase(reminder.ReminderUseCaseProperty{
		Logger:                       logger,
		Timeout:                      5 * time.Second,
		BaseURL:                      "https://tickets.example.com",
		Workers:                      4,
		SMSEnabled:                   true,
		Clock:                        fake,
		Locker:                       locker,
		Rescheduler:                  rescheduler,
		EventRepository:              store.Events(),
		TransferRepository:           store.TransferRepository(),
		TicketRepository:             store.TicketRepository(),
		AccountRepository:            store.Accounts(),
		NotificationRecordRepository: store.NotificationRecordRepository(),
		Notifier:                     outbox,
	})

	return fixture{store: store, outbox: outbox, clock: fake, rescheduler: rescheduler, uc: uc}
}

func (f fixture) sweep(t *testing.T) reminder.SweepResponse {
	t.Helper()
	resp, err := f.uc.RunReminderSweep(context.Background(), reminder.RunReminderSweepRequest{EventID: "ev-1"})
	require.NoError(t, err)
	return resp
}

// pendingInvite puts a transfer created at start from Ana to an email with
// no account.
func (f fixture) pendingInvite() {
	f.store.PutTicket(ticket.Ticket{Key: "TKT-1", EventID: "ev-1", HolderID: 1, CreatedAt: start, UpdatedAt: start})
	f.store.PutTransfer(transfer.Transfer{
		Key:              "TRF-1",
		TicketKey:        "TKT-1",
		EventID:          "ev-1",
		FromUserID:       1,
		DestinationEmail: "nueva@example.com",
		Status:           transfer.StatusPending,
		CreatedAt:        start,
		UpdatedAt:        start,
	})
}

func TestRunReminderSweep_CadenceAndNoRepeat(t *testing.T) {
	f := newFixture(t, nil)
	f.pendingInvite()

	// day 0 is not a reminder day
	resp := f.sweep(t)
	assert.Zero(t, resp.EmailsSent)
	assert.Zero(t, resp.SMSSent)

	f.clock.Advance(day)
	resp = f.sweep(t)
	assert.Equal(t, 2, resp.EmailsSent)
	assert.Zero(t, resp.SMSSent)

	invites := f.outbox.Emails(notification.TemplateInvitationReminder)
	require.Len(t, invites, 1)
	assert.Equal(t, []string{"nueva@example.com"}, invites[0].Recipients)
	assert.Equal(t, 1, invites[0].Data["days"])

	senders := f.outbox.Emails(notification.TemplateSenderReminder)
	require.Len(t, senders, 1)
	assert.Equal(t, []string{"ana@example.com"}, senders[0].Recipients)

	// later the same day nothing goes out again
	f.clock.Advance(6 * time.Hour)
	resp = f.sweep(t)
	assert.Zero(t, resp.EmailsSent)
	assert.Equal(t, 2, resp.Suppressed)
	assert.Len(t, f.outbox.Emails(""), 2)

	// day 2: SMS to the sender only
	f.clock.Set(start.Add(2 * day))
	resp = f.sweep(t)
	assert.Zero(t, resp.EmailsSent)
	assert.Equal(t, 1, resp.SMSSent)
	sms := f.outbox.SMS()
	require.Len(t, sms, 1)
	assert.Equal(t, "+5491100000001", sms[0].To)
	assert.Contains(t, sms[0].Body, "nueva@example.com")

	// the SMS record is keyed by phone number, so a rerun sends nothing
	f.clock.Advance(time.Hour)
	resp = f.sweep(t)
	assert.Zero(t, resp.SMSSent)
	assert.Len(t, f.outbox.SMS(), 1)

	// day 3 is the next trigger day
	f.clock.Set(start.Add(3 * day))
	resp = f.sweep(t)
	assert.Equal(t, 2, resp.EmailsSent)
	assert.Len(t, f.outbox.Emails(""), 4)

	// day 4 is not
	f.clock.Set(start.Add(4 * day))
	resp = f.sweep(t)
	assert.Zero(t, resp.EmailsSent)
	assert.Zero(t, resp.Suppressed)

	records := f.store.NotificationRecords()
	assert.Len(t, records, 5)
	recipients := make([]string, 0, len(records))
	for _, r := range records {
		recipients = append(recipients, r.Recipient)
	}
	assert.Contains(t, recipients, "+5491100000001")
	assert.Len(t, f.rescheduler.calls, 7)
}

func TestRunReminderSweep_RegisteredDestinationGetsNoInvitationReminder(t *testing.T) {
	f := newFixture(t, nil)
	f.pendingInvite()
	// an account exists but is not verified yet
	f.store.PutAccount(account.Account{ID: 9, Email: "Nueva@example.com"})

	f.clock.Advance(day)
	resp := f.sweep(t)
	assert.Equal(t, 1, resp.EmailsSent)
	assert.Empty(t, f.outbox.Emails(notification.TemplateInvitationReminder))
	assert.Len(t, f.outbox.Emails(notification.TemplateSenderReminder), 1)
}

func TestRunReminderSweep_FailedSendIsRetried(t *testing.T) {
	f := newFixture(t, nil)
	f.pendingInvite()
	f.outbox.FailEmailsTo = "nueva@example.com"
	f.outbox.FailErr = fmt.Errorf("broker unavailable")

	f.clock.Advance(day)
	resp := f.sweep(t)
	assert.Equal(t, 1, resp.EmailsSent)
	assert.Equal(t, 1, resp.Failed)
	assert.Len(t, f.store.NotificationRecords(), 1)

	f.outbox.FailEmailsTo = ""
	resp = f.sweep(t)
	assert.Equal(t, 1, resp.EmailsSent)
	assert.Equal(t, 1, resp.Suppressed)
	assert.Len(t, f.outbox.Emails(notification.TemplateInvitationReminder), 1)
}

func TestRunReminderSweep_UnsharedHolders(t *testing.T) {
	f := newFixture(t, nil)
	f.pendingInvite()
	f.store.PutTicket(ticket.Ticket{Key: "TKT-2", EventID: "ev-1", HolderID: 2, CreatedAt: start, UpdatedAt: start})
	f.store.PutTicket(ticket.Ticket{Key: "TKT-3", EventID: "ev-1", HolderID: 2, CreatedAt: start, UpdatedAt: start.Add(time.Hour)})
	owner := int64(2)
	f.store.PutTicket(ticket.Ticket{Key: "TKT-4", EventID: "ev-1", HolderID: 2, OwnerID: &owner, CreatedAt: start, UpdatedAt: start})

	f.clock.Set(start.Add(3*day + 2*time.Hour))
	f.sweep(t)

	unshared := f.outbox.Emails(notification.TemplateUnsharedTicketRemind)
	require.Len(t, unshared, 1)
	assert.Equal(t, []string{"beto@example.com"}, unshared[0].Recipients)
	assert.Equal(t, 2, unshared[0].Data["unshared"])
}

func TestRunReminderSweep_SkipsClosedWindow(t *testing.T) {
	f := newFixture(t, nil)
	f.pendingInvite()

	f.clock.Set(start.Add(61 * day))
	resp := f.sweep(t)
	assert.True(t, resp.Skipped)
	assert.Empty(t, f.outbox.Emails(""))
	assert.Empty(t, f.rescheduler.calls)
}

func TestRunReminderSweep_SkipsWhenLeaseHeld(t *testing.T) {
	locker := lease.NewLocalLocker()
	f := newFixture(t, locker)
	f.pendingInvite()

	release, ok, err := locker.Acquire(context.Background(), "reminders-ev-1", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	f.clock.Advance(day)
	resp := f.sweep(t)
	assert.True(t, resp.Skipped)
	assert.Empty(t, f.outbox.Emails(""))

	release()
	resp = f.sweep(t)
	assert.False(t, resp.Skipped)
	assert.Equal(t, 2, resp.EmailsSent)
}
