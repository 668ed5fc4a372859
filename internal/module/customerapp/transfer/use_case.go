package transfer

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"time"

	"github.com/fuegoaustral/ticketera-sub000/internal/module/customerapp/account"
	"github.com/fuegoaustral/ticketera-sub000/internal/module/customerapp/event"
	"github.com/fuegoaustral/ticketera-sub000/internal/module/customerapp/ticket"
	"github.com/fuegoaustral/ticketera-sub000/internal/pkg/notification"
	"github.com/fuegoaustral/ticketera-sub000/internal/pkg/util"
	"github.com/fuegoaustral/ticketera-sub000/pkg/clock"
	"github.com/fuegoaustral/ticketera-sub000/pkg/errors"
	"github.com/fuegoaustral/ticketera-sub000/pkg/pubsub"
	"github.com/fuegoaustral/ticketera-sub000/pkg/status"
	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"
)

// TransferUseCase moves holdership and ownership of tickets. Every mutating
// operation checks the event's transfer window before anything else.
type TransferUseCase interface {
	InitiateTransfer(ctx context.Context, req InitiateTransferRequest) (InitiateTransferResponse, error)
	CancelTransfer(ctx context.Context, req CancelTransferRequest) (TransferResponse, error)
	CompleteTransfersForNewAccount(ctx context.Context, userID int64) (CompleteTransfersResponse, error)
	AssignTicket(ctx context.Context, req AssignTicketRequest) (TicketResponse, error)
	UnassignTicket(ctx context.Context, req AssignTicketRequest) (TicketResponse, error)
	GetManyHeldTickets(ctx context.Context, req GetManyHeldTicketsRequest) ([]TicketResponse, error)
	GetManyOutgoingTransfers(ctx context.Context, req GetManyOutgoingTransfersRequest) ([]TransferResponse, error)
}

type transferUseCase struct {
	logger             *logrus.Logger
	timeout            time.Duration
	baseURL            string
	clock              clock.Clock
	validate           *validator.Validate
	transferRepository TransferRepository
	ticketRepository   ticket.TicketRepository
	accountRepository  account.AccountRepository
	eventRepository    event.EventRepository
	publisher          pubsub.Publisher
	notifier           notification.Notifier
}

type TransferUseCaseProperty struct {
	Logger             *logrus.Logger
	Timeout            time.Duration
	BaseURL            string
	Clock              clock.Clock
	Validate           *validator.Validate
	TransferRepository TransferRepository
	TicketRepository   ticket.TicketRepository
	AccountRepository  account.AccountRepository
	EventRepository    event.EventRepository
	Publisher          pubsub.Publisher
	Notifier           notification.Notifier
}

func NewTransferUseCase(props TransferUseCaseProperty) TransferUseCase {
	return &transferUseCase{
		logger:             props.Logger,
		timeout:            props.Timeout,
		baseURL:            props.BaseURL,
		clock:              props.Clock,
		validate:           props.Validate,
		transferRepository: props.TransferRepository,
		ticketRepository:   props.TicketRepository,
		accountRepository:  props.AccountRepository,
		eventRepository:    props.EventRepository,
		publisher:          props.Publisher,
		notifier:           props.Notifier,
	}
}

// reassign hands t to destinationUserID. The destination becomes owner only
// when they do not own another ticket for the event yet. The destination's
// account row must already be locked in tx.
func (u *transferUseCase) reassign(ctx context.Context, t ticket.Ticket, destinationUserID int64, now time.Time, tx *sql.Tx) (ticket.Ticket, error) {
	owned, err := u.ticketRepository.CountOwnedByEvent(ctx, t.EventID, destinationUserID, tx)
	if err != nil {
		return ticket.Ticket{}, err
	}

	t.HolderID = destinationUserID

	var ownerID *int64
	if owned == 0 {
		id := destinationUserID
		ownerID = &id
	}
	t.SetOwner(ownerID, now)

	if err := u.ticketRepository.Update(ctx, t, tx); err != nil {
		return ticket.Ticket{}, err
	}

	return t, nil
}

// InitiateTransfer implements TransferUseCase.
func (u *transferUseCase) InitiateTransfer(ctx context.Context, req InitiateTransferRequest) (InitiateTransferResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, u.timeout)
	defer cancel()

	email := util.NormalizeEmail(req.DestinationEmail)
	if err := u.validate.VarCtx(ctx, email, "required,email"); err != nil {
		return InitiateTransferResponse{}, errors.New(http.StatusBadRequest, status.BAD_REQUEST, "invalid destination email")
	}

	now := u.clock.Now()

	tx, err := u.transferRepository.BeginTx(ctx)
	if err != nil {
		return InitiateTransferResponse{}, err
	}

	// Locking every account under the destination email, verified or not,
	// serializes this transaction with the activation of any of them.
	candidates, err := u.accountRepository.FindManyByEmailForUpdate(ctx, email, tx)
	if err != nil {
		u.transferRepository.Rollback(ctx, tx)
		return InitiateTransferResponse{}, err
	}

	var (
		destination account.Account
		found       bool
		toSelf      bool
	)
	for _, c := range candidates {
		if c.ID == req.FromUserID {
			toSelf = true
		}
		if c.EmailVerified && !found {
			destination, found = c, true
		}
	}

	t, err := u.ticketRepository.FindByKeyForUpdate(ctx, req.TicketKey, tx)
	if err != nil {
		u.transferRepository.Rollback(ctx, tx)
		return InitiateTransferResponse{}, err
	}

	ev, err := u.eventRepository.FindByID(ctx, t.EventID, tx)
	if err != nil {
		u.transferRepository.Rollback(ctx, tx)
		return InitiateTransferResponse{}, err
	}

	if err := ev.CheckTransferWindow(now); err != nil {
		u.transferRepository.Rollback(ctx, tx)
		return InitiateTransferResponse{}, err
	}

	if t.HolderID != req.FromUserID {
		u.transferRepository.Rollback(ctx, tx)
		return InitiateTransferResponse{}, errors.New(http.StatusForbidden, status.FORBIDDEN, "you are not the holder of this ticket")
	}

	if toSelf {
		u.transferRepository.Rollback(ctx, tx)
		return InitiateTransferResponse{}, errors.New(http.StatusBadRequest, status.BAD_REQUEST, "you cannot transfer a ticket to yourself")
	}

	if t.Used {
		u.transferRepository.Rollback(ctx, tx)
		return InitiateTransferResponse{}, errors.New(http.StatusConflict, status.TICKET_ALREADY_USED, "ticket has already been used")
	}

	pending, err := u.transferRepository.CountPendingByTicketKey(ctx, t.Key, tx)
	if err != nil {
		u.transferRepository.Rollback(ctx, tx)
		return InitiateTransferResponse{}, err
	}
	if pending > 0 {
		u.transferRepository.Rollback(ctx, tx)
		return InitiateTransferResponse{}, errors.New(http.StatusConflict, status.DUPLICATE_PENDING_TRANSFER, "ticket already has a pending transfer")
	}

	tr := Transfer{
		Key:              util.NewKey("TRF"),
		TicketKey:        t.Key,
		EventID:          t.EventID,
		FromUserID:       req.FromUserID,
		DestinationEmail: email,
		Status:           StatusPending,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	if found {
		t, err = u.reassign(ctx, t, destination.ID, now, tx)
		if err != nil {
			u.transferRepository.Rollback(ctx, tx)
			return InitiateTransferResponse{}, err
		}
		tr.Complete(destination.ID, now)
	}

	if err := u.transferRepository.Save(ctx, tr, tx); err != nil {
		u.transferRepository.Rollback(ctx, tx)
		return InitiateTransferResponse{}, err
	}

	if err := u.transferRepository.CommitTx(ctx, tx); err != nil {
		return InitiateTransferResponse{}, err
	}

	u.logger.WithContext(ctx).WithFields(logrus.Fields{
		"transferKey": tr.Key,
		"ticketKey":   tr.TicketKey,
		"status":      tr.Status,
	}).Info("transfer initiated")

	resp := InitiateTransferResponse{}
	resp.Transfer.PopulateFromEntity(tr)
	resp.Ticket.PopulateFromEntity(t)

	if tr.Status == StatusCompleted {
		u.afterCompleted(ctx, ev, tr, t, destination)
		return resp, nil
	}

	if settled, ok := u.settleLateActivation(ctx, tr); ok {
		resp.Transfer = settled
		if reloaded, err := u.ticketRepository.FindByKey(ctx, tr.TicketKey, nil); err == nil {
			resp.Ticket.PopulateFromEntity(reloaded)
		}
		return resp, nil
	}

	u.sendInvitation(ctx, ev, tr)

	return resp, nil
}

// settleLateActivation completes tr when an account for its destination
// was created and activated after the initiating transaction read the
// account table. That activation ran before tr was committed and found
// nothing to settle.
func (u *transferUseCase) settleLateActivation(ctx context.Context, tr Transfer) (TransferResponse, bool) {
	accounts, err := u.accountRepository.FindManyByEmails(ctx, []string{tr.DestinationEmail}, nil)
	if err != nil {
		u.logger.WithContext(ctx).WithError(err).WithField("transferKey", tr.Key).Error("failed to re-check transfer destination")
		return TransferResponse{}, false
	}

	for _, acc := range accounts {
		if !acc.Activated() {
			continue
		}

		completed, err := u.CompleteTransfersForNewAccount(ctx, acc.ID)
		if err != nil {
			u.logger.WithContext(ctx).WithError(err).WithField("transferKey", tr.Key).Warn("failed to settle transfer for activated destination")
			return TransferResponse{}, false
		}

		for _, c := range completed.Completed {
			if c.Key == tr.Key {
				return c, true
			}
		}
		return TransferResponse{}, false
	}

	return TransferResponse{}, false
}

func (u *transferUseCase) senderName(ctx context.Context, userID int64) string {
	sender, err := u.accountRepository.FindByID(ctx, userID, nil)
	if err != nil {
		return ""
	}
	if sender.Name != "" {
		return sender.Name
	}
	return sender.Email
}

func (u *transferUseCase) sendInvitation(ctx context.Context, ev event.Event, tr Transfer) {
	err := u.notifier.SendEmail(ctx, notification.TemplateTransferInvitation, []string{tr.DestinationEmail}, map[string]interface{}{
		"event_name":  ev.Name,
		"sender_name": u.senderName(ctx, tr.FromUserID),
		"signup_url":  u.baseURL + "/signup",
	})
	if err != nil {
		u.logger.WithContext(ctx).WithError(err).WithField("transferKey", tr.Key).Error("failed to send transfer invitation")
	}
}

// afterCompleted runs after commit; failures are only logged.
func (u *transferUseCase) afterCompleted(ctx context.Context, ev event.Event, tr Transfer, t ticket.Ticket, destination account.Account) {
	buff, _ := json.Marshal(TicketTransferredEvent{
		TransferKey:   tr.Key,
		TicketKey:     t.Key,
		EventID:       t.EventID,
		FromUserID:    tr.FromUserID,
		ToUserID:      destination.ID,
		OwnerAssigned: t.OwnerID != nil,
	})
	if err := u.publisher.Publish(ctx, TopicTicketTransferred, t.Key, nil, buff); err != nil {
		u.logger.WithContext(ctx).WithError(err).WithField("transferKey", tr.Key).Error("failed to publish ticket transfer")
	}

	err := u.notifier.SendEmail(ctx, notification.TemplateTransferReceived, []string{destination.Email}, map[string]interface{}{
		"event_name":     ev.Name,
		"sender_name":    u.senderName(ctx, tr.FromUserID),
		"ticket_key":     t.Key,
		"owner_assigned": t.OwnerID != nil,
	})
	if err != nil {
		u.logger.WithContext(ctx).WithError(err).WithField("transferKey", tr.Key).Error("failed to notify transfer destination")
	}

	sender, err := u.accountRepository.FindByID(ctx, tr.FromUserID, nil)
	if err != nil {
		return
	}

	err = u.notifier.SendEmail(ctx, notification.TemplateTransferCompleted, []string{sender.Email}, map[string]interface{}{
		"event_name":        ev.Name,
		"destination_email": tr.DestinationEmail,
		"ticket_key":        t.Key,
	})
	if err != nil {
		u.logger.WithContext(ctx).WithError(err).WithField("transferKey", tr.Key).Error("failed to notify transfer sender")
	}
}

// CancelTransfer implements TransferUseCase.
func (u *transferUseCase) CancelTransfer(ctx context.Context, req CancelTransferRequest) (TransferResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, u.timeout)
	defer cancel()

	now := u.clock.Now()

	tx, err := u.transferRepository.BeginTx(ctx)
	if err != nil {
		return TransferResponse{}, err
	}

	tr, err := u.transferRepository.FindByKeyForUpdate(ctx, req.TransferKey, tx)
	if err != nil {
		u.transferRepository.Rollback(ctx, tx)
		return TransferResponse{}, err
	}

	ev, err := u.eventRepository.FindByID(ctx, tr.EventID, tx)
	if err != nil {
		u.transferRepository.Rollback(ctx, tx)
		return TransferResponse{}, err
	}

	if err := ev.CheckTransferWindow(now); err != nil {
		u.transferRepository.Rollback(ctx, tx)
		return TransferResponse{}, err
	}

	if tr.FromUserID != req.RequesterID {
		u.transferRepository.Rollback(ctx, tx)
		return TransferResponse{}, errors.New(http.StatusForbidden, status.FORBIDDEN, "only the sender can cancel this transfer")
	}

	if !tr.Pending() {
		u.transferRepository.Rollback(ctx, tx)
		return TransferResponse{}, errors.New(http.StatusConflict, status.TRANSFER_NOT_PENDING, "transfer is no longer pending")
	}

	tr.Cancel(now)

	if err := u.transferRepository.Update(ctx, tr, tx); err != nil {
		u.transferRepository.Rollback(ctx, tx)
		return TransferResponse{}, err
	}

	if err := u.transferRepository.CommitTx(ctx, tx); err != nil {
		return TransferResponse{}, err
	}

	u.logger.WithContext(ctx).WithField("transferKey", tr.Key).Info("transfer cancelled")

	resp := TransferResponse{}
	resp.PopulateFromEntity(tr)

	return resp, nil
}

type completedTransfer struct {
	event    event.Event
	transfer Transfer
	ticket   ticket.Ticket
}

// CompleteTransfersForNewAccount implements TransferUseCase. All pending
// transfers to the account's email are settled in one transaction, oldest
// first, so only the first one can hand over ownership.
func (u *transferUseCase) CompleteTransfersForNewAccount(ctx context.Context, userID int64) (CompleteTransfersResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, u.timeout)
	defer cancel()

	now := u.clock.Now()

	tx, err := u.transferRepository.BeginTx(ctx)
	if err != nil {
		return CompleteTransfersResponse{}, err
	}

	acc, err := u.accountRepository.FindByIDForUpdate(ctx, userID, tx)
	if err != nil {
		u.transferRepository.Rollback(ctx, tx)
		return CompleteTransfersResponse{}, err
	}

	if !acc.Activated() {
		u.transferRepository.Rollback(ctx, tx)
		return CompleteTransfersResponse{}, errors.New(http.StatusConflict, status.ACCOUNT_NOT_ACTIVATED, "account has not completed activation")
	}

	transfers, err := u.transferRepository.FindManyPendingByDestinationEmailForUpdate(ctx, util.NormalizeEmail(acc.Email), tx)
	if err != nil {
		u.transferRepository.Rollback(ctx, tx)
		return CompleteTransfersResponse{}, err
	}

	events := make(map[string]event.Event)
	completed := make([]completedTransfer, 0, len(transfers))
	resp := CompleteTransfersResponse{}

	for _, tr := range transfers {
		ev, ok := events[tr.EventID]
		if !ok {
			ev, err = u.eventRepository.FindByID(ctx, tr.EventID, tx)
			if err != nil {
				u.transferRepository.Rollback(ctx, tx)
				return CompleteTransfersResponse{}, err
			}
			events[tr.EventID] = ev
		}

		if !ev.TransfersOpen(now) {
			resp.Skipped++
			continue
		}

		t, err := u.ticketRepository.FindByKeyForUpdate(ctx, tr.TicketKey, tx)
		if err != nil {
			u.transferRepository.Rollback(ctx, tx)
			return CompleteTransfersResponse{}, err
		}

		// the sender no longer has the ticket, so the transfer cannot happen
		if t.HolderID != tr.FromUserID || t.Used || tr.FromUserID == acc.ID {
			tr.Cancel(now)
			if err := u.transferRepository.Update(ctx, tr, tx); err != nil {
				u.transferRepository.Rollback(ctx, tx)
				return CompleteTransfersResponse{}, err
			}
			resp.Cancelled++
			continue
		}

		t, err = u.reassign(ctx, t, acc.ID, now, tx)
		if err != nil {
			u.transferRepository.Rollback(ctx, tx)
			return CompleteTransfersResponse{}, err
		}

		tr.Complete(acc.ID, now)
		if err := u.transferRepository.Update(ctx, tr, tx); err != nil {
			u.transferRepository.Rollback(ctx, tx)
			return CompleteTransfersResponse{}, err
		}

		completed = append(completed, completedTransfer{event: ev, transfer: tr, ticket: t})
	}

	if len(completed) == 0 && resp.Cancelled == 0 && resp.Skipped > 0 {
		u.transferRepository.Rollback(ctx, tx)
		return CompleteTransfersResponse{}, errors.New(http.StatusConflict, status.TRANSFER_WINDOW_CLOSED, "transfer window has closed")
	}

	if err := u.transferRepository.CommitTx(ctx, tx); err != nil {
		return CompleteTransfersResponse{}, err
	}

	u.logger.WithContext(ctx).WithFields(logrus.Fields{
		"accountId": acc.ID,
		"completed": len(completed),
		"cancelled": resp.Cancelled,
		"skipped":   resp.Skipped,
	}).Info("pending transfers settled for activated account")

	resp.Completed = make([]TransferResponse, len(completed))
	for k, c := range completed {
		resp.Completed[k].PopulateFromEntity(c.transfer)
		u.afterCompleted(ctx, c.event, c.transfer, c.ticket, acc)
	}

	return resp, nil
}

func (u *transferUseCase) changeOwner(ctx context.Context, req AssignTicketRequest, assign bool) (TicketResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, u.timeout)
	defer cancel()

	now := u.clock.Now()

	tx, err := u.transferRepository.BeginTx(ctx)
	if err != nil {
		return TicketResponse{}, err
	}

	if _, err := u.accountRepository.FindByIDForUpdate(ctx, req.UserID, tx); err != nil {
		u.transferRepository.Rollback(ctx, tx)
		return TicketResponse{}, err
	}

	t, err := u.ticketRepository.FindByKeyForUpdate(ctx, req.TicketKey, tx)
	if err != nil {
		u.transferRepository.Rollback(ctx, tx)
		return TicketResponse{}, err
	}

	ev, err := u.eventRepository.FindByID(ctx, t.EventID, tx)
	if err != nil {
		u.transferRepository.Rollback(ctx, tx)
		return TicketResponse{}, err
	}

	if err := ev.CheckTransferWindow(now); err != nil {
		u.transferRepository.Rollback(ctx, tx)
		return TicketResponse{}, err
	}

	if t.HolderID != req.UserID {
		u.transferRepository.Rollback(ctx, tx)
		return TicketResponse{}, errors.New(http.StatusForbidden, status.FORBIDDEN, "you are not the holder of this ticket")
	}

	if t.Used {
		u.transferRepository.Rollback(ctx, tx)
		return TicketResponse{}, errors.New(http.StatusConflict, status.TICKET_ALREADY_USED, "ticket has already been used")
	}

	if assign {
		if t.OwnerID != nil {
			u.transferRepository.Rollback(ctx, tx)
			return TicketResponse{}, errors.New(http.StatusConflict, status.TICKET_ALREADY_ASSIGNED, "ticket is already assigned")
		}

		owned, err := u.ticketRepository.CountOwnedByEvent(ctx, t.EventID, req.UserID, tx)
		if err != nil {
			u.transferRepository.Rollback(ctx, tx)
			return TicketResponse{}, err
		}
		if owned > 0 {
			u.transferRepository.Rollback(ctx, tx)
			return TicketResponse{}, errors.New(http.StatusConflict, status.ALREADY_OWNS_TICKET, "you already have a ticket assigned for this event")
		}

		ownerID := req.UserID
		t.SetOwner(&ownerID, now)
	} else {
		if !t.OwnedBy(req.UserID) {
			u.transferRepository.Rollback(ctx, tx)
			return TicketResponse{}, errors.New(http.StatusConflict, status.TICKET_NOT_ASSIGNED, "ticket is not assigned to you")
		}

		t.SetOwner(nil, now)
	}

	if err := u.ticketRepository.Update(ctx, t, tx); err != nil {
		u.transferRepository.Rollback(ctx, tx)
		return TicketResponse{}, err
	}

	if err := u.transferRepository.CommitTx(ctx, tx); err != nil {
		return TicketResponse{}, err
	}

	u.logger.WithContext(ctx).WithFields(logrus.Fields{
		"ticketKey": t.Key,
		"userId":    req.UserID,
		"assign":    assign,
	}).Info("ticket owner changed")

	resp := TicketResponse{}
	resp.PopulateFromEntity(t)

	return resp, nil
}

// AssignTicket implements TransferUseCase.
func (u *transferUseCase) AssignTicket(ctx context.Context, req AssignTicketRequest) (TicketResponse, error) {
	return u.changeOwner(ctx, req, true)
}

// UnassignTicket implements TransferUseCase.
func (u *transferUseCase) UnassignTicket(ctx context.Context, req AssignTicketRequest) (TicketResponse, error) {
	return u.changeOwner(ctx, req, false)
}

// GetManyHeldTickets implements TransferUseCase.
func (u *transferUseCase) GetManyHeldTickets(ctx context.Context, req GetManyHeldTicketsRequest) ([]TicketResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, u.timeout)
	defer cancel()

	tickets, err := u.ticketRepository.FindManyHeldByEvent(ctx, req.EventID, req.HolderID, nil)
	if err != nil {
		return nil, err
	}

	keys := make([]string, len(tickets))
	for k, t := range tickets {
		keys[k] = t.Key
	}

	pending, err := u.transferRepository.FindManyPendingByTicketKeys(ctx, keys, nil)
	if err != nil {
		return nil, err
	}

	pendingByTicket := make(map[string]Transfer, len(pending))
	for _, tr := range pending {
		pendingByTicket[tr.TicketKey] = tr
	}

	resp := make([]TicketResponse, len(tickets))
	for k, t := range tickets {
		resp[k].PopulateFromEntity(t)
		if tr, ok := pendingByTicket[t.Key]; ok {
			overlay := TransferResponse{}
			overlay.PopulateFromEntity(tr)
			resp[k].PendingTransfer = &overlay
		}
	}

	return resp, nil
}

// GetManyOutgoingTransfers implements TransferUseCase.
func (u *transferUseCase) GetManyOutgoingTransfers(ctx context.Context, req GetManyOutgoingTransfersRequest) ([]TransferResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, u.timeout)
	defer cancel()

	transfers, err := u.transferRepository.FindManyByFromUserAndEventID(ctx, req.FromUserID, req.EventID, nil)
	if err != nil {
		return nil, err
	}

	resp := make([]TransferResponse, len(transfers))
	for k, tr := range transfers {
		resp[k].PopulateFromEntity(tr)
	}

	return resp, nil
}
