package reminder

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/fuegoaustral/ticketera-sub000/internal/module/customerapp/account"
	"github.com/fuegoaustral/ticketera-sub000/internal/module/customerapp/event"
	"github.com/fuegoaustral/ticketera-sub000/internal/module/customerapp/ticket"
	"github.com/fuegoaustral/ticketera-sub000/internal/module/customerapp/transfer"
	"github.com/fuegoaustral/ticketera-sub000/internal/pkg/jobs"
	"github.com/fuegoaustral/ticketera-sub000/internal/pkg/lease"
	"github.com/fuegoaustral/ticketera-sub000/internal/pkg/notification"
	"github.com/fuegoaustral/ticketera-sub000/internal/pkg/util"
	"github.com/fuegoaustral/ticketera-sub000/pkg/clock"
	"github.com/sirupsen/logrus"
)

const JobPath = "/ticketera/v1/internal/jobs/reminders"

type ReminderUseCase interface {
	// RunReminderSweep may run any number of times a day; each reminder is
	// sent at most once per fingerprint.
	RunReminderSweep(ctx context.Context, req RunReminderSweepRequest) (SweepResponse, error)
}

type reminderUseCase struct {
	logger                       *logrus.Logger
	timeout                      time.Duration
	baseURL                      string
	workers                      int
	smsEnabled                   bool
	clock                        clock.Clock
	locker                       lease.Locker
	rescheduler                  jobs.Rescheduler
	eventRepository              event.EventRepository
	transferRepository           transfer.TransferRepository
	ticketRepository             ticket.TicketRepository
	accountRepository            account.AccountRepository
	notificationRecordRepository NotificationRecordRepository
	notifier                     notification.Notifier
}

type ReminderUseCaseProperty struct {
	Logger                       *logrus.Logger
	Timeout                      time.Duration
	BaseURL                      string
	Workers                      int
	SMSEnabled                   bool
	Clock                        clock.Clock
	Locker                       lease.Locker
	Rescheduler                  jobs.Rescheduler
	EventRepository              event.EventRepository
	TransferRepository           transfer.TransferRepository
	TicketRepository             ticket.TicketRepository
	AccountRepository            account.AccountRepository
	NotificationRecordRepository NotificationRecordRepository
	Notifier                     notification.Notifier
}

func NewReminderUseCase(props ReminderUseCaseProperty) ReminderUseCase {
	workers := props.Workers
	if workers <= 0 {
		workers = 1
	}

	rescheduler := props.Rescheduler
	if rescheduler == nil {
		rescheduler = jobs.Disabled()
	}

	locker := props.Locker
	if locker == nil {
		locker = lease.NewLocalLocker()
	}

	return &reminderUseCase{
		logger:                       props.Logger,
		timeout:                      props.Timeout,
		baseURL:                      props.BaseURL,
		workers:                      workers,
		smsEnabled:                   props.SMSEnabled,
		clock:                        props.Clock,
		locker:                       locker,
		rescheduler:                  rescheduler,
		eventRepository:              props.EventRepository,
		transferRepository:           props.TransferRepository,
		ticketRepository:             props.TicketRepository,
		accountRepository:            props.AccountRepository,
		notificationRecordRepository: props.NotificationRecordRepository,
		notifier:                     props.Notifier,
	}
}

const (
	channelEmail = "email"
	channelSMS   = "sms"
)

// dispatch is one reminder to one recipient.
type dispatch struct {
	channel   string
	recipient string
	template  string
	payload   Payload
	body      string
}

type outcome int

const (
	outcomeSent outcome = iota
	outcomeSuppressed
	outcomeFailed
)

// RunReminderSweep implements ReminderUseCase.
func (u *reminderUseCase) RunReminderSweep(ctx context.Context, req RunReminderSweepRequest) (SweepResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, u.timeout)
	defer cancel()

	resp := SweepResponse{EventID: req.EventID}

	release, ok, err := u.locker.Acquire(ctx, "reminders-"+req.EventID, u.timeout)
	if err == nil && !ok {
		resp.Skipped = true
		resp.Reason = "another sweep is running"
		return resp, nil
	}
	defer release()

	ev, err := u.eventRepository.FindByID(ctx, req.EventID, nil)
	if err != nil {
		return SweepResponse{}, err
	}

	now := u.clock.Now()

	if !ev.Active || !ev.TransfersOpen(now) {
		resp.Skipped = true
		resp.Reason = "event is inactive or its transfer window has closed"
		u.logger.WithContext(ctx).WithField("eventId", ev.ID).Info("reminder sweep skipped")
		return resp, nil
	}

	destinations, senders, smsReminders, err := u.transferCohorts(ctx, ev, now)
	if err != nil {
		return SweepResponse{}, err
	}

	unshared, err := u.unsharedHolderCohorts(ctx, ev, now)
	if err != nil {
		return SweepResponse{}, err
	}

	dispatches := make([]dispatch, 0, len(destinations)+len(senders)+len(unshared)+len(smsReminders))
	for _, c := range destinations {
		dispatches = append(dispatches, dispatch{channel: channelEmail, recipient: c.Email, template: notification.TemplateInvitationReminder, payload: c.ToPayload()})
	}
	for _, c := range senders {
		dispatches = append(dispatches, dispatch{channel: channelEmail, recipient: c.Email, template: notification.TemplateSenderReminder, payload: c.ToPayload()})
	}
	for _, c := range unshared {
		dispatches = append(dispatches, dispatch{channel: channelEmail, recipient: c.Email, template: notification.TemplateUnsharedTicketRemind, payload: c.ToPayload()})
	}
	for _, s := range smsReminders {
		dispatches = append(dispatches, dispatch{channel: channelSMS, recipient: s.Phone, template: channelSMS, payload: s.ToPayload(), body: s.Body()})
	}

	u.dispatchAll(ctx, now, dispatches, &resp)

	u.logger.WithContext(ctx).WithFields(logrus.Fields{
		"eventId":      ev.ID,
		"destinations": len(destinations),
		"senders":      len(senders),
		"unshared":     len(unshared),
		"sms":          len(smsReminders),
		"emailsSent":   resp.EmailsSent,
		"smsSent":      resp.SMSSent,
		"suppressed":   resp.Suppressed,
		"failed":       resp.Failed,
	}).Info("reminder sweep finished")

	body, _ := json.Marshal(req)
	u.rescheduler.Next(ctx, "reminders-"+ev.ID, JobPath, body)

	return resp, nil
}

func sortedKeys(set map[string]struct{}) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func displayName(a account.Account) string {
	if a.Name != "" {
		return a.Name
	}
	return a.Email
}

// transferCohorts builds the destination and sender cohorts plus the SMS
// reminders from the event's pending transfers.
func (u *reminderUseCase) transferCohorts(ctx context.Context, ev event.Event, now time.Time) ([]DestinationCohort, []SenderCohort, []SMSReminder, error) {
	transfers, err := u.transferRepository.FindManyPendingByEventID(ctx, ev.ID, nil)
	if err != nil {
		return nil, nil, nil, err
	}
	if len(transfers) == 0 {
		return nil, nil, nil, nil
	}

	emailSet := make(map[string]struct{})
	senderIDSet := make(map[int64]struct{})
	for _, tr := range transfers {
		emailSet[util.NormalizeEmail(tr.DestinationEmail)] = struct{}{}
		senderIDSet[tr.FromUserID] = struct{}{}
	}

	registered, err := u.accountRepository.FindManyByEmails(ctx, sortedKeys(emailSet), nil)
	if err != nil {
		return nil, nil, nil, err
	}
	hasAccount := make(map[string]struct{}, len(registered))
	for _, a := range registered {
		hasAccount[util.NormalizeEmail(a.Email)] = struct{}{}
	}

	senderIDs := make([]int64, 0, len(senderIDSet))
	for id := range senderIDSet {
		senderIDs = append(senderIDs, id)
	}
	sort.Slice(senderIDs, func(i, j int) bool { return senderIDs[i] < senderIDs[j] })

	senderAccounts, err := u.accountRepository.FindManyByIDs(ctx, senderIDs, nil)
	if err != nil {
		return nil, nil, nil, err
	}
	sendersByID := make(map[int64]account.Account, len(senderAccounts))
	for _, a := range senderAccounts {
		sendersByID[a.ID] = a
	}

	type destinationGroup struct {
		oldest  time.Time
		count   int
		senders map[string]struct{}
	}
	type senderGroup struct {
		oldest       time.Time
		count        int
		destinations map[string]struct{}
	}

	destinationGroups := make(map[string]*destinationGroup)
	senderGroups := make(map[int64]*senderGroup)
	smsReminders := make([]SMSReminder, 0)
	signupURL := u.baseURL + "/signup"

	for _, tr := range transfers {
		email := util.NormalizeEmail(tr.DestinationEmail)
		sender, senderKnown := sendersByID[tr.FromUserID]

		if _, ok := hasAccount[email]; !ok {
			g, ok := destinationGroups[email]
			if !ok {
				g = &destinationGroup{oldest: tr.CreatedAt, senders: make(map[string]struct{})}
				destinationGroups[email] = g
			}
			if tr.CreatedAt.Before(g.oldest) {
				g.oldest = tr.CreatedAt
			}
			g.count++
			if senderKnown {
				g.senders[displayName(sender)] = struct{}{}
			}
		}

		if !senderKnown {
			continue
		}

		g, ok := senderGroups[tr.FromUserID]
		if !ok {
			g = &senderGroup{oldest: tr.CreatedAt, destinations: make(map[string]struct{})}
			senderGroups[tr.FromUserID] = g
		}
		if tr.CreatedAt.Before(g.oldest) {
			g.oldest = tr.CreatedAt
		}
		g.count++
		g.destinations[email] = struct{}{}

		days := DaysSince(tr.CreatedAt, now)
		if u.smsEnabled && IsSMSReminderDay(days) && sender.PhoneVerified && sender.Phone != "" {
			smsReminders = append(smsReminders, SMSReminder{
				EventName:        ev.Name,
				TransferKey:      tr.Key,
				Phone:            sender.Phone,
				DestinationEmail: email,
				Days:             days,
				SignupURL:        signupURL,
			})
		}
	}

	destinations := make([]DestinationCohort, 0, len(destinationGroups))
	for email, g := range destinationGroups {
		days := DaysSince(g.oldest, now)
		if !IsReminderDay(days) {
			continue
		}
		destinations = append(destinations, DestinationCohort{
			EventID:     ev.ID,
			EventName:   ev.Name,
			Email:       email,
			SenderNames: sortedKeys(g.senders),
			Transfers:   g.count,
			Days:        days,
		})
	}
	sort.Slice(destinations, func(i, j int) bool { return destinations[i].Email < destinations[j].Email })

	senders := make([]SenderCohort, 0, len(senderGroups))
	for id, g := range senderGroups {
		days := DaysSince(g.oldest, now)
		if !IsReminderDay(days) {
			continue
		}
		a := sendersByID[id]
		senders = append(senders, SenderCohort{
			EventID:      ev.ID,
			EventName:    ev.Name,
			UserID:       id,
			Email:        a.Email,
			Name:         displayName(a),
			Destinations: sortedKeys(g.destinations),
			Pending:      g.count,
			Days:         days,
		})
	}
	sort.Slice(senders, func(i, j int) bool { return senders[i].UserID < senders[j].UserID })

	return destinations, senders, smsReminders, nil
}

// unsharedHolderCohorts groups ownerless tickets with no pending transfer by
// holder. Days are counted from the oldest such ticket's last custody change.
func (u *reminderUseCase) unsharedHolderCohorts(ctx context.Context, ev event.Event, now time.Time) ([]UnsharedHolderCohort, error) {
	tickets, err := u.ticketRepository.FindManyOwnerlessByEvent(ctx, ev.ID, nil)
	if err != nil {
		return nil, err
	}
	if len(tickets) == 0 {
		return nil, nil
	}

	keys := make([]string, len(tickets))
	for k, t := range tickets {
		keys[k] = t.Key
	}

	pending, err := u.transferRepository.FindManyPendingByTicketKeys(ctx, keys, nil)
	if err != nil {
		return nil, err
	}
	inFlight := make(map[string]struct{}, len(pending))
	for _, tr := range pending {
		inFlight[tr.TicketKey] = struct{}{}
	}

	type holderGroup struct {
		oldest time.Time
		count  int
	}

	groups := make(map[int64]*holderGroup)
	holderIDs := make([]int64, 0)
	for _, t := range tickets {
		if _, ok := inFlight[t.Key]; ok {
			continue
		}

		g, ok := groups[t.HolderID]
		if !ok {
			g = &holderGroup{oldest: t.UpdatedAt}
			groups[t.HolderID] = g
			holderIDs = append(holderIDs, t.HolderID)
		}
		if t.UpdatedAt.Before(g.oldest) {
			g.oldest = t.UpdatedAt
		}
		g.count++
	}
	if len(holderIDs) == 0 {
		return nil, nil
	}

	holders, err := u.accountRepository.FindManyByIDs(ctx, holderIDs, nil)
	if err != nil {
		return nil, err
	}

	cohorts := make([]UnsharedHolderCohort, 0, len(holders))
	for _, a := range holders {
		g := groups[a.ID]
		days := DaysSince(g.oldest, now)
		if !IsReminderDay(days) {
			continue
		}
		cohorts = append(cohorts, UnsharedHolderCohort{
			EventID:   ev.ID,
			EventName: ev.Name,
			UserID:    a.ID,
			Email:     a.Email,
			Name:      displayName(a),
			Unshared:  g.count,
			Days:      days,
		})
	}
	sort.Slice(cohorts, func(i, j int) bool { return cohorts[i].UserID < cohorts[j].UserID })

	return cohorts, nil
}

// dispatchAll sends every reminder through a bounded pool of workers and
// tallies the outcomes into resp once all of them are done.
func (u *reminderUseCase) dispatchAll(ctx context.Context, now time.Time, dispatches []dispatch, resp *SweepResponse) {
	var (
		mu  sync.Mutex
		wg  sync.WaitGroup
		sem = make(chan struct{}, u.workers)
	)

	for _, d := range dispatches {
		d := d

		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()

			result := u.dispatch(ctx, now, d)

			mu.Lock()
			defer mu.Unlock()

			switch {
			case result == outcomeSuppressed:
				resp.Suppressed++
			case result == outcomeFailed:
				resp.Failed++
			case d.channel == channelSMS:
				resp.SMSSent++
			default:
				resp.EmailsSent++
			}
		}()
	}

	wg.Wait()
}

// dispatch claims the fingerprint first and sends only if the claim is new.
// A failed send gives the claim back so the next run can retry.
func (u *reminderUseCase) dispatch(ctx context.Context, now time.Time, d dispatch) outcome {
	fingerprint := Fingerprint(d.recipient, d.template, d.payload)
	entry := u.logger.WithContext(ctx).WithFields(logrus.Fields{
		"channel":     d.channel,
		"template":    d.template,
		"fingerprint": fingerprint,
		"payload":     d.payload,
	})

	claimed, err := u.notificationRecordRepository.Claim(ctx, NotificationRecord{
		Recipient:   d.recipient,
		Fingerprint: fingerprint,
		Payload:     d.payload.Bytes(),
		CreatedAt:   now,
	}, nil)
	if err != nil {
		entry.WithError(err).Error("failed to claim reminder")
		return outcomeFailed
	}
	if !claimed {
		return outcomeSuppressed
	}

	if d.channel == channelSMS {
		err = u.notifier.SendSMS(ctx, d.recipient, d.body)
	} else {
		err = u.notifier.SendEmail(ctx, d.template, []string{d.recipient}, d.payload)
	}
	if err != nil {
		entry.WithError(err).Error("failed to send reminder")
		if err := u.notificationRecordRepository.Release(ctx, d.recipient, fingerprint, nil); err != nil {
			entry.WithError(err).Error("failed to release reminder claim")
		}
		return outcomeFailed
	}

	entry.Info("reminder sent")

	return outcomeSent
}
