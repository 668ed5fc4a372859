// Package memstoretest keeps every repository of the service in memory. It
// backs the use case tests: transactions are serialized store-wide and a
// rollback restores the state captured at BeginTx, which is enough to
// exercise row-lock and all-or-nothing behaviour without Postgres.
package memstoretest

import (
	"sort"
	"sync"

	adminTicket "github.com/fuegoaustral/ticketera-sub000/internal/module/adminapp/ticket"
	"github.com/fuegoaustral/ticketera-sub000/internal/module/customerapp/account"
	"github.com/fuegoaustral/ticketera-sub000/internal/module/customerapp/event"
	"github.com/fuegoaustral/ticketera-sub000/internal/module/customerapp/order"
	"github.com/fuegoaustral/ticketera-sub000/internal/module/customerapp/reminder"
	"github.com/fuegoaustral/ticketera-sub000/internal/module/customerapp/ticket"
	"github.com/fuegoaustral/ticketera-sub000/internal/module/customerapp/transfer"
)

type state struct {
	events      map[string]event.Event
	accounts    map[int64]account.Account
	ticketTypes map[string]ticket.TicketType
	tickets     map[string]ticket.Ticket
	orders      map[string]order.Order
	items       map[string][]order.Item
	transfers   map[string]transfer.Transfer
	records     map[string]reminder.NotificationRecord
	journal     []adminTicket.CapacityJournal
}

func newState() *state {
	return &state{
		events:      make(map[string]event.Event),
		accounts:    make(map[int64]account.Account),
		ticketTypes: make(map[string]ticket.TicketType),
		tickets:     make(map[string]ticket.Ticket),
		orders:      make(map[string]order.Order),
		items:       make(map[string][]order.Item),
		transfers:   make(map[string]transfer.Transfer),
		records:     make(map[string]reminder.NotificationRecord),
	}
}

func (s *state) clone() *state {
	c := newState()
	for k, v := range s.events {
		c.events[k] = v
	}
	for k, v := range s.accounts {
		c.accounts[k] = v
	}
	for k, v := range s.ticketTypes {
		c.ticketTypes[k] = v
	}
	for k, v := range s.tickets {
		c.tickets[k] = copyTicket(v)
	}
	for k, v := range s.orders {
		c.orders[k] = v
	}
	for k, v := range s.items {
		c.items[k] = append([]order.Item(nil), v...)
	}
	for k, v := range s.transfers {
		c.transfers[k] = v
	}
	for k, v := range s.records {
		c.records[k] = v
	}
	c.journal = append([]adminTicket.CapacityJournal(nil), s.journal...)
	return c
}

func copyTicket(t ticket.Ticket) ticket.Ticket {
	if t.Roles != nil {
		t.Roles = append([]string(nil), t.Roles...)
	}
	return t
}

// Store is safe for concurrent use. Reads outside a transaction may observe
// uncommitted writes of a running one; tests do not rely on either.
type Store struct {
	txMu sync.Mutex

	mu       sync.RWMutex
	data     *state
	snapshot *state
	inTx     bool
	seq      int64
}

func New() *Store {
	return &Store{data: newState()}
}

func (s *Store) begin() {
	s.txMu.Lock()

	s.mu.Lock()
	s.snapshot = s.data.clone()
	s.inTx = true
	s.mu.Unlock()
}

func (s *Store) commit() {
	s.mu.Lock()
	if !s.inTx {
		s.mu.Unlock()
		return
	}
	s.snapshot = nil
	s.inTx = false
	s.mu.Unlock()

	s.txMu.Unlock()
}

func (s *Store) rollback() {
	s.mu.Lock()
	if !s.inTx {
		s.mu.Unlock()
		return
	}
	s.data = s.snapshot
	s.snapshot = nil
	s.inTx = false
	s.mu.Unlock()

	s.txMu.Unlock()
}

func (s *Store) read(fn func(d *state)) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	fn(s.data)
}

func (s *Store) write(fn func(d *state)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s.data)
}

// Seeding and inspection helpers for tests.

func (s *Store) PutEvent(e event.Event) {
	s.write(func(d *state) { d.events[e.ID] = e })
}

func (s *Store) PutAccount(a account.Account) {
	s.write(func(d *state) { d.accounts[a.ID] = a })
}

func (s *Store) PutTicketType(tt ticket.TicketType) {
	s.write(func(d *state) { d.ticketTypes[tt.ID] = tt })
}

func (s *Store) PutTicket(t ticket.Ticket) {
	s.write(func(d *state) { d.tickets[t.Key] = copyTicket(t) })
}

func (s *Store) PutOrder(o order.Order, items ...order.Item) {
	s.write(func(d *state) {
		for i := range items {
			if items[i].ID == 0 {
				s.seq++
				items[i].ID = s.seq
			}
			items[i].OrderKey = o.Key
		}
		o.Items = nil
		d.orders[o.Key] = o
		d.items[o.Key] = append([]order.Item(nil), items...)
	})
}

func (s *Store) PutTransfer(t transfer.Transfer) {
	s.write(func(d *state) { d.transfers[t.Key] = t })
}

func (s *Store) Ticket(key string) (t ticket.Ticket, ok bool) {
	s.read(func(d *state) { t, ok = d.tickets[key] })
	return copyTicket(t), ok
}

func (s *Store) TicketType(id string) (tt ticket.TicketType, ok bool) {
	s.read(func(d *state) { tt, ok = d.ticketTypes[id] })
	return tt, ok
}

func (s *Store) Order(key string) (o order.Order, ok bool) {
	s.read(func(d *state) { o, ok = d.orders[key] })
	return o, ok
}

func (s *Store) Transfer(key string) (t transfer.Transfer, ok bool) {
	s.read(func(d *state) { t, ok = d.transfers[key] })
	return t, ok
}

// Tickets returns every ticket sorted by key.
func (s *Store) Tickets() []ticket.Ticket {
	var out []ticket.Ticket
	s.read(func(d *state) {
		for _, t := range d.tickets {
			out = append(out, copyTicket(t))
		}
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// Transfers returns every transfer sorted by creation time, then key.
func (s *Store) Transfers() []transfer.Transfer {
	var out []transfer.Transfer
	s.read(func(d *state) {
		for _, t := range d.transfers {
			out = append(out, t)
		}
	})
	sortTransfers(out)
	return out
}

func (s *Store) NotificationRecords() []reminder.NotificationRecord {
	var out []reminder.NotificationRecord
	s.read(func(d *state) {
		for _, r := range d.records {
			out = append(out, r)
		}
	})
	sort.Slice(out, func(i, j int) bool {
		if out[i].Recipient != out[j].Recipient {
			return out[i].Recipient < out[j].Recipient
		}
		return out[i].Fingerprint < out[j].Fingerprint
	})
	return out
}

func (s *Store) Journal() []adminTicket.CapacityJournal {
	var out []adminTicket.CapacityJournal
	s.read(func(d *state) { out = append(out, d.journal...) })
	return out
}

func sortTransfers(ts []transfer.Transfer) {
	sort.Slice(ts, func(i, j int) bool {
		if !ts[i].CreatedAt.Equal(ts[j].CreatedAt) {
			return ts[i].CreatedAt.Before(ts[j].CreatedAt)
		}
		return ts[i].Key < ts[j].Key
	})
}

func sortTickets(ts []ticket.Ticket) {
	sort.Slice(ts, func(i, j int) bool {
		if !ts[i].CreatedAt.Equal(ts[j].CreatedAt) {
			return ts[i].CreatedAt.Before(ts[j].CreatedAt)
		}
		return ts[i].Key < ts[j].Key
	})
}
