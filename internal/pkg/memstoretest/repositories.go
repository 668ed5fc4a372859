package memstoretest

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"sort"

	adminTicket "github.com/fuegoaustral/ticketera-sub000/internal/module/adminapp/ticket"
	"github.com/fuegoaustral/ticketera-sub000/internal/module/customerapp/account"
	"github.com/fuegoaustral/ticketera-sub000/internal/module/customerapp/event"
	"github.com/fuegoaustral/ticketera-sub000/internal/module/customerapp/order"
	"github.com/fuegoaustral/ticketera-sub000/internal/module/customerapp/reminder"
	"github.com/fuegoaustral/ticketera-sub000/internal/module/customerapp/ticket"
	"github.com/fuegoaustral/ticketera-sub000/internal/module/customerapp/transfer"
	"github.com/fuegoaustral/ticketera-sub000/internal/pkg/util"
	"github.com/fuegoaustral/ticketera-sub000/pkg/errors"
	"github.com/fuegoaustral/ticketera-sub000/pkg/status"
)

// txRunner gives every transactional repository the same store-wide
// transaction. The returned *sql.Tx is always nil.
type txRunner struct {
	s *Store
}

func (r txRunner) BeginTx(ctx context.Context) (*sql.Tx, error) {
	r.s.begin()
	return nil, nil
}

func (r txRunner) CommitTx(ctx context.Context, tx *sql.Tx) error {
	r.s.commit()
	return nil
}

func (r txRunner) Rollback(ctx context.Context, tx *sql.Tx) error {
	r.s.rollback()
	return nil
}

// events

type eventRepository struct{ s *Store }

func (s *Store) Events() event.EventRepository { return eventRepository{s} }

func (r eventRepository) FindByID(ctx context.Context, ID string, tx *sql.Tx) (e event.Event, err error) {
	r.s.read(func(d *state) {
		var ok bool
		if e, ok = d.events[ID]; !ok {
			err = errors.New(http.StatusNotFound, status.NOT_FOUND, fmt.Sprintf("event with id '%s' is not found", ID))
		}
	})
	return e, err
}

func (r eventRepository) FindManyActive(ctx context.Context, tx *sql.Tx) ([]event.Event, error) {
	out := make([]event.Event, 0)
	r.s.read(func(d *state) {
		for _, e := range d.events {
			if e.Active {
				out = append(out, e)
			}
		}
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// accounts

type accountRepository struct{ s *Store }

func (s *Store) Accounts() account.AccountRepository { return accountRepository{s} }

func (r accountRepository) FindByID(ctx context.Context, ID int64, tx *sql.Tx) (a account.Account, err error) {
	r.s.read(func(d *state) {
		var ok bool
		if a, ok = d.accounts[ID]; !ok {
			err = errors.New(http.StatusNotFound, status.NOT_FOUND, fmt.Sprintf("account with id '%d' is not found", ID))
		}
	})
	return a, err
}

func (r accountRepository) FindByIDForUpdate(ctx context.Context, ID int64, tx *sql.Tx) (account.Account, error) {
	return r.FindByID(ctx, ID, tx)
}

func (r accountRepository) FindVerifiedByEmailForUpdate(ctx context.Context, email string, tx *sql.Tx) (a account.Account, found bool, err error) {
	email = util.NormalizeEmail(email)
	r.s.read(func(d *state) {
		for _, v := range d.accounts {
			if !v.EmailVerified || util.NormalizeEmail(v.Email) != email {
				continue
			}
			if !found || v.ID < a.ID {
				a, found = v, true
			}
		}
	})
	return a, found, nil
}

func (r accountRepository) FindManyByEmailForUpdate(ctx context.Context, email string, tx *sql.Tx) ([]account.Account, error) {
	return r.FindManyByEmails(ctx, []string{email}, tx)
}

func (r accountRepository) FindManyByEmails(ctx context.Context, emails []string, tx *sql.Tx) ([]account.Account, error) {
	want := make(map[string]struct{}, len(emails))
	for _, e := range emails {
		want[util.NormalizeEmail(e)] = struct{}{}
	}

	out := make([]account.Account, 0)
	r.s.read(func(d *state) {
		for _, a := range d.accounts {
			if _, ok := want[util.NormalizeEmail(a.Email)]; ok {
				out = append(out, a)
			}
		}
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r accountRepository) FindManyByIDs(ctx context.Context, IDs []int64, tx *sql.Tx) ([]account.Account, error) {
	out := make([]account.Account, 0)
	r.s.read(func(d *state) {
		for _, id := range IDs {
			if a, ok := d.accounts[id]; ok {
				out = append(out, a)
			}
		}
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// ticket types

type ticketTypeRepository struct {
	txRunner
}

func (s *Store) TicketTypes() ticket.TicketTypeRepository { return ticketTypeRepository{txRunner{s}} }

func (r ticketTypeRepository) FindManyByEventID(ctx context.Context, eventID string, tx *sql.Tx) ([]ticket.TicketType, error) {
	out := make([]ticket.TicketType, 0)
	r.s.read(func(d *state) {
		for _, tt := range d.ticketTypes {
			if tt.EventID == eventID {
				out = append(out, tt)
			}
		}
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r ticketTypeRepository) FindByIDForUpdate(ctx context.Context, ID string, tx *sql.Tx) (tt ticket.TicketType, err error) {
	r.s.read(func(d *state) {
		var ok bool
		if tt, ok = d.ticketTypes[ID]; !ok {
			err = errors.New(http.StatusNotFound, status.NOT_FOUND, fmt.Sprintf("ticket type with id '%s' is not found", ID))
		}
	})
	return tt, err
}

func (r ticketTypeRepository) Update(ctx context.Context, ID string, tt ticket.TicketType, tx *sql.Tx) (err error) {
	r.s.write(func(d *state) {
		if _, ok := d.ticketTypes[ID]; !ok {
			err = errors.New(http.StatusNotFound, status.NOT_FOUND, fmt.Sprintf("ticket type with id '%s' is not found", ID))
			return
		}
		// mirrors CHECK (remaining >= 0)
		if tt.Remaining < 0 {
			err = errors.New(http.StatusInternalServerError, status.INTERNAL_SERVER_ERROR, "an error occurred while updating ticket type's properties")
			return
		}
		d.ticketTypes[ID] = tt
	})
	return err
}

// tickets

type ticketRepository struct{ s *Store }

func (s *Store) TicketRepository() ticket.TicketRepository { return ticketRepository{s} }

func (r ticketRepository) Save(ctx context.Context, t ticket.Ticket, tx *sql.Tx) (err error) {
	r.s.write(func(d *state) {
		if _, ok := d.tickets[t.Key]; ok {
			err = errors.New(http.StatusInternalServerError, status.INTERNAL_SERVER_ERROR, "an error occurred while saving ticket's properties")
			return
		}
		if t.OwnerID != nil && ownsOther(d, t.EventID, *t.OwnerID, t.Key) {
			err = errors.New(http.StatusInternalServerError, status.INTERNAL_SERVER_ERROR, "an error occurred while saving ticket's properties")
			return
		}
		d.tickets[t.Key] = copyTicket(t)
	})
	return err
}

// ownsOther mirrors the partial unique index on ticket(event_id, owner_id).
func ownsOther(d *state, eventID string, ownerID int64, except string) bool {
	for k, v := range d.tickets {
		if k != except && v.EventID == eventID && v.OwnedBy(ownerID) {
			return true
		}
	}
	return false
}

func (r ticketRepository) Update(ctx context.Context, t ticket.Ticket, tx *sql.Tx) (err error) {
	r.s.write(func(d *state) {
		cur, ok := d.tickets[t.Key]
		if !ok {
			return
		}
		if t.OwnerID != nil && ownsOther(d, cur.EventID, *t.OwnerID, t.Key) {
			err = errors.New(http.StatusInternalServerError, status.INTERNAL_SERVER_ERROR, "an error occurred while updating ticket's properties")
			return
		}
		cur.HolderID = t.HolderID
		cur.OwnerID = t.OwnerID
		cur.Roles = t.Roles
		cur.UpdatedAt = t.UpdatedAt
		d.tickets[t.Key] = copyTicket(cur)
	})
	return err
}

func (r ticketRepository) FindByKey(ctx context.Context, key string, tx *sql.Tx) (t ticket.Ticket, err error) {
	r.s.read(func(d *state) {
		var ok bool
		if t, ok = d.tickets[key]; !ok {
			err = errors.New(http.StatusNotFound, status.NOT_FOUND, fmt.Sprintf("ticket with key '%s' is not found", key))
		}
	})
	return copyTicket(t), err
}

func (r ticketRepository) FindByKeyForUpdate(ctx context.Context, key string, tx *sql.Tx) (ticket.Ticket, error) {
	return r.FindByKey(ctx, key, tx)
}

func (r ticketRepository) CountOwnedByEvent(ctx context.Context, eventID string, userID int64, tx *sql.Tx) (n int64, err error) {
	r.s.read(func(d *state) {
		for _, t := range d.tickets {
			if t.EventID == eventID && t.OwnedBy(userID) {
				n++
			}
		}
	})
	return n, nil
}

func (r ticketRepository) findMany(match func(t ticket.Ticket) bool) []ticket.Ticket {
	out := make([]ticket.Ticket, 0)
	r.s.read(func(d *state) {
		for _, t := range d.tickets {
			if match(t) {
				out = append(out, copyTicket(t))
			}
		}
	})
	sortTickets(out)
	return out
}

func (r ticketRepository) FindManyByOrderKey(ctx context.Context, orderKey string, tx *sql.Tx) ([]ticket.Ticket, error) {
	return r.findMany(func(t ticket.Ticket) bool { return t.OrderKey == orderKey }), nil
}

func (r ticketRepository) FindManyHeldByEvent(ctx context.Context, eventID string, holderID int64, tx *sql.Tx) ([]ticket.Ticket, error) {
	return r.findMany(func(t ticket.Ticket) bool { return t.EventID == eventID && t.HolderID == holderID }), nil
}

func (r ticketRepository) FindManyOwnerlessByEvent(ctx context.Context, eventID string, tx *sql.Tx) ([]ticket.Ticket, error) {
	out := r.findMany(func(t ticket.Ticket) bool { return t.EventID == eventID && t.OwnerID == nil && !t.Used })
	sort.SliceStable(out, func(i, j int) bool { return out[i].HolderID < out[j].HolderID })
	return out, nil
}

// orders

type orderRepository struct {
	txRunner
}

func (s *Store) Orders() order.OrderRepository { return orderRepository{txRunner{s}} }

func (r orderRepository) FindByKey(ctx context.Context, key string, tx *sql.Tx) (o order.Order, err error) {
	r.s.read(func(d *state) {
		var ok bool
		if o, ok = d.orders[key]; !ok {
			err = errors.New(http.StatusNotFound, status.NOT_FOUND, fmt.Sprintf("order with key '%s' is not found", key))
		}
	})
	return o, err
}

func (r orderRepository) FindByKeyForUpdate(ctx context.Context, key string, tx *sql.Tx) (order.Order, error) {
	return r.FindByKey(ctx, key, tx)
}

func (r orderRepository) FindManyByStatusesAndEventIDs(ctx context.Context, statuses []string, eventIDs []string, tx *sql.Tx) ([]order.Order, error) {
	inStatus := make(map[string]struct{}, len(statuses))
	for _, v := range statuses {
		inStatus[v] = struct{}{}
	}
	inEvent := make(map[string]struct{}, len(eventIDs))
	for _, v := range eventIDs {
		inEvent[v] = struct{}{}
	}

	out := make([]order.Order, 0)
	r.s.read(func(d *state) {
		for _, o := range d.orders {
			_, okStatus := inStatus[o.Status]
			_, okEvent := inEvent[o.EventID]
			if okStatus && okEvent {
				out = append(out, o)
			}
		}
	})
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].Key < out[j].Key
	})
	return out, nil
}

func (r orderRepository) Update(ctx context.Context, key string, o order.Order, tx *sql.Tx) (err error) {
	r.s.write(func(d *state) {
		cur, ok := d.orders[key]
		if !ok {
			err = errors.New(http.StatusNotFound, status.NOT_FOUND, fmt.Sprintf("order with key '%s' is not found", key))
			return
		}
		cur.Status = o.Status
		cur.CustomerID = o.CustomerID
		cur.NetReceivedAmount = o.NetReceivedAmount
		cur.ProviderResponse = o.ProviderResponse
		cur.UpdatedAt = o.UpdatedAt
		d.orders[key] = cur
	})
	return err
}

type itemRepository struct{ s *Store }

func (s *Store) Items() order.ItemRepository { return itemRepository{s} }

func (r itemRepository) FindManyByOrderKey(ctx context.Context, orderKey string, tx *sql.Tx) ([]order.Item, error) {
	var out []order.Item
	r.s.read(func(d *state) { out = append([]order.Item{}, d.items[orderKey]...) })
	sort.Slice(out, func(i, j int) bool {
		if out[i].TicketTypeID != out[j].TicketTypeID {
			return out[i].TicketTypeID < out[j].TicketTypeID
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// transfers

type transferRepository struct {
	txRunner
}

func (s *Store) TransferRepository() transfer.TransferRepository {
	return transferRepository{txRunner{s}}
}

func (r transferRepository) Save(ctx context.Context, t transfer.Transfer, tx *sql.Tx) (err error) {
	r.s.write(func(d *state) {
		if t.Status == transfer.StatusPending {
			for _, v := range d.transfers {
				if v.TicketKey == t.TicketKey && v.Pending() {
					err = errors.New(http.StatusConflict, status.DUPLICATE_PENDING_TRANSFER, "ticket already has a pending transfer")
					return
				}
			}
		}
		d.transfers[t.Key] = t
	})
	return err
}

func (r transferRepository) Update(ctx context.Context, t transfer.Transfer, tx *sql.Tx) error {
	r.s.write(func(d *state) {
		cur, ok := d.transfers[t.Key]
		if !ok {
			return
		}
		cur.DestinationUserID = t.DestinationUserID
		cur.Status = t.Status
		cur.UpdatedAt = t.UpdatedAt
		d.transfers[t.Key] = cur
	})
	return nil
}

func (r transferRepository) FindByKeyForUpdate(ctx context.Context, key string, tx *sql.Tx) (t transfer.Transfer, err error) {
	r.s.read(func(d *state) {
		var ok bool
		if t, ok = d.transfers[key]; !ok {
			err = errors.New(http.StatusNotFound, status.NOT_FOUND, fmt.Sprintf("transfer with key '%s' is not found", key))
		}
	})
	return t, err
}

func (r transferRepository) CountPendingByTicketKey(ctx context.Context, ticketKey string, tx *sql.Tx) (n int64, err error) {
	r.s.read(func(d *state) {
		for _, t := range d.transfers {
			if t.TicketKey == ticketKey && t.Pending() {
				n++
			}
		}
	})
	return n, nil
}

func (r transferRepository) findMany(match func(t transfer.Transfer) bool) []transfer.Transfer {
	out := make([]transfer.Transfer, 0)
	r.s.read(func(d *state) {
		for _, t := range d.transfers {
			if match(t) {
				out = append(out, t)
			}
		}
	})
	sortTransfers(out)
	return out
}

func (r transferRepository) FindManyPendingByDestinationEmailForUpdate(ctx context.Context, email string, tx *sql.Tx) ([]transfer.Transfer, error) {
	email = util.NormalizeEmail(email)
	return r.findMany(func(t transfer.Transfer) bool {
		return t.Pending() && util.NormalizeEmail(t.DestinationEmail) == email
	}), nil
}

func (r transferRepository) FindManyPendingByEventID(ctx context.Context, eventID string, tx *sql.Tx) ([]transfer.Transfer, error) {
	return r.findMany(func(t transfer.Transfer) bool { return t.Pending() && t.EventID == eventID }), nil
}

func (r transferRepository) FindManyPendingByTicketKeys(ctx context.Context, ticketKeys []string, tx *sql.Tx) ([]transfer.Transfer, error) {
	keys := make(map[string]struct{}, len(ticketKeys))
	for _, k := range ticketKeys {
		keys[k] = struct{}{}
	}
	return r.findMany(func(t transfer.Transfer) bool {
		_, ok := keys[t.TicketKey]
		return ok && t.Pending()
	}), nil
}

func (r transferRepository) FindManyByFromUserAndEventID(ctx context.Context, fromUserID int64, eventID string, tx *sql.Tx) ([]transfer.Transfer, error) {
	out := r.findMany(func(t transfer.Transfer) bool { return t.FromUserID == fromUserID && t.EventID == eventID })
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

// notification records

type notificationRecordRepository struct{ s *Store }

func (s *Store) NotificationRecordRepository() reminder.NotificationRecordRepository {
	return notificationRecordRepository{s}
}

func recordKey(recipient, fingerprint string) string {
	return recipient + "\x00" + fingerprint
}

func (r notificationRecordRepository) Claim(ctx context.Context, rec reminder.NotificationRecord, tx *sql.Tx) (claimed bool, err error) {
	r.s.write(func(d *state) {
		k := recordKey(rec.Recipient, rec.Fingerprint)
		if _, ok := d.records[k]; ok {
			return
		}
		d.records[k] = rec
		claimed = true
	})
	return claimed, nil
}

func (r notificationRecordRepository) Release(ctx context.Context, recipient string, fingerprint string, tx *sql.Tx) error {
	r.s.write(func(d *state) { delete(d.records, recordKey(recipient, fingerprint)) })
	return nil
}

// capacity journal

type capacityJournalRepository struct{ s *Store }

func (s *Store) CapacityJournalRepository() adminTicket.CapacityJournalRepository {
	return capacityJournalRepository{s}
}

func (r capacityJournalRepository) Save(ctx context.Context, j adminTicket.CapacityJournal, tx *sql.Tx) error {
	r.s.write(func(d *state) {
		r.s.seq++
		j.ID = r.s.seq
		d.journal = append(d.journal, j)
	})
	return nil
}

func (r capacityJournalRepository) FindManyByTicketTypeID(ctx context.Context, ticketTypeID string, tx *sql.Tx) ([]adminTicket.CapacityJournal, error) {
	out := make([]adminTicket.CapacityJournal, 0)
	r.s.read(func(d *state) {
		for _, j := range d.journal {
			if j.TicketTypeID == ticketTypeID {
				out = append(out, j)
			}
		}
	})
	return out, nil
}
