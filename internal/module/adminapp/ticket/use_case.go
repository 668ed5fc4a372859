package ticket

import (
	"context"
	"time"

	customerTicket "github.com/fuegoaustral/ticketera-sub000/internal/module/customerapp/ticket"
	"github.com/fuegoaustral/ticketera-sub000/pkg/clock"
	"github.com/sirupsen/logrus"
)

type TicketUseCase interface {
	Restock(ctx context.Context, req RestockRequest) (TicketTypeResponse, error)
	GetManyTicketTypes(ctx context.Context, eventID string) ([]TicketTypeResponse, error)
}

type ticketUseCase struct {
	logger                    *logrus.Logger
	timeout                   time.Duration
	clock                     clock.Clock
	ticketTypeRepository      customerTicket.TicketTypeRepository
	capacityJournalRepository CapacityJournalRepository
}

type TicketUseCaseProperty struct {
	Logger                    *logrus.Logger
	Timeout                   time.Duration
	Clock                     clock.Clock
	TicketTypeRepository      customerTicket.TicketTypeRepository
	CapacityJournalRepository CapacityJournalRepository
}

func NewTicketUseCase(props TicketUseCaseProperty) TicketUseCase {
	return &ticketUseCase{
		logger:                    props.Logger,
		timeout:                   props.Timeout,
		clock:                     props.Clock,
		ticketTypeRepository:      props.TicketTypeRepository,
		capacityJournalRepository: props.CapacityJournalRepository,
	}
}

// Restock implements TicketUseCase.
func (u *ticketUseCase) Restock(ctx context.Context, req RestockRequest) (TicketTypeResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, u.timeout)
	defer cancel()

	tx, err := u.ticketTypeRepository.BeginTx(ctx)
	if err != nil {
		return TicketTypeResponse{}, err
	}

	tt, err := u.ticketTypeRepository.FindByIDForUpdate(ctx, req.TicketTypeID, tx)
	if err != nil {
		u.ticketTypeRepository.Rollback(ctx, tx)
		return TicketTypeResponse{}, err
	}

	tt, err = customerTicket.Restock(tt, req.Quantity)
	if err != nil {
		u.ticketTypeRepository.Rollback(ctx, tx)
		return TicketTypeResponse{}, err
	}

	now := u.clock.Now()
	tt.UpdatedAt = now

	if err := u.ticketTypeRepository.Update(ctx, tt.ID, tt, tx); err != nil {
		u.ticketTypeRepository.Rollback(ctx, tx)
		return TicketTypeResponse{}, err
	}

	err = u.capacityJournalRepository.Save(ctx, CapacityJournal{
		TicketTypeID: tt.ID,
		Action:       JournalActionRestock,
		Quantity:     req.Quantity,
		Remaining:    tt.Remaining,
		Description:  req.Description,
		StaffID:      req.StaffID,
		CreatedAt:    now,
	}, tx)
	if err != nil {
		u.ticketTypeRepository.Rollback(ctx, tx)
		return TicketTypeResponse{}, err
	}

	if err := u.ticketTypeRepository.CommitTx(ctx, tx); err != nil {
		return TicketTypeResponse{}, err
	}

	u.logger.WithContext(ctx).WithFields(logrus.Fields{
		"ticketTypeId": tt.ID,
		"quantity":     req.Quantity,
		"remaining":    tt.Remaining,
		"staffId":      req.StaffID,
	}).Info("ticket type restocked")

	resp := TicketTypeResponse{}
	resp.PopulateFromEntity(tt)

	return resp, nil
}

// GetManyTicketTypes implements TicketUseCase.
func (u *ticketUseCase) GetManyTicketTypes(ctx context.Context, eventID string) ([]TicketTypeResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, u.timeout)
	defer cancel()

	tts, err := u.ticketTypeRepository.FindManyByEventID(ctx, eventID, nil)
	if err != nil {
		return nil, err
	}

	resp := make([]TicketTypeResponse, len(tts))
	for k, tt := range tts {
		resp[k].PopulateFromEntity(tt)
	}

	return resp, nil
}
