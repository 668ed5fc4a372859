package transfer

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/fuegoaustral/ticketera-sub000/internal/pkg/middleware"
	"github.com/fuegoaustral/ticketera-sub000/internal/pkg/session"
	"github.com/fuegoaustral/ticketera-sub000/pkg/errors"
	publicMiddleware "github.com/fuegoaustral/ticketera-sub000/pkg/middleware"
	"github.com/fuegoaustral/ticketera-sub000/pkg/response"
	"github.com/fuegoaustral/ticketera-sub000/pkg/status"
	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
)

type HTTPHandler struct {
	Validate        *validator.Validate
	TransferUseCase TransferUseCase
}

func InitHTTPHandler(router *mux.Router, customerSession *middleware.CustomerSession, internalToken *middleware.InternalToken, validate *validator.Validate, transferUseCase TransferUseCase) {
	handler := &HTTPHandler{
		Validate:        validate,
		TransferUseCase: transferUseCase,
	}

	router.HandleFunc("/ticketera/v1/customerapp/tickets", publicMiddleware.SetRouteChain(handler.GetManyHeldTickets, customerSession.Verify)).Methods(http.MethodGet)
	router.HandleFunc("/ticketera/v1/customerapp/tickets/{key}/transfers", publicMiddleware.SetRouteChain(handler.InitiateTransfer, customerSession.Verify)).Methods(http.MethodPost)
	router.HandleFunc("/ticketera/v1/customerapp/tickets/{key}/assign", publicMiddleware.SetRouteChain(handler.AssignTicket, customerSession.Verify)).Methods(http.MethodPost)
	router.HandleFunc("/ticketera/v1/customerapp/tickets/{key}/unassign", publicMiddleware.SetRouteChain(handler.UnassignTicket, customerSession.Verify)).Methods(http.MethodPost)
	router.HandleFunc("/ticketera/v1/customerapp/transfers", publicMiddleware.SetRouteChain(handler.GetManyOutgoingTransfers, customerSession.Verify)).Methods(http.MethodGet)
	router.HandleFunc("/ticketera/v1/customerapp/transfers/{key}/cancel", publicMiddleware.SetRouteChain(handler.CancelTransfer, customerSession.Verify)).Methods(http.MethodPost)
	router.HandleFunc("/ticketera/v1/internal/accounts/{id}/on-activated", publicMiddleware.SetRouteChain(handler.OnAccountActivated, internalToken.Verify)).Methods(http.MethodPost)
}

func (handler HTTPHandler) validate(ctx context.Context, payload interface{}) error {
	err := handler.Validate.StructCtx(ctx, payload)
	if err == nil {
		return nil
	}

	errorFields := err.(validator.ValidationErrors)

	errMessages := make([]string, len(errorFields))

	for k, errorField := range errorFields {
		errMessages[k] = fmt.Sprintf("invalid '%s' with value '%v'", errorField.Field(), errorField.Value())
	}

	return fmt.Errorf(strings.Join(errMessages, ", "))
}

func writeError(w http.ResponseWriter, err error) {
	ae := errors.Destruct(err)
	response.JSON(w, ae.HTTPStatusCode, response.RESTEnvelope{
		Status:  ae.Status,
		Message: ae.Message,
	})
}

func writeBadRequest(w http.ResponseWriter, err error) {
	response.JSON(w, http.StatusBadRequest, response.RESTEnvelope{
		Status:  status.BAD_REQUEST,
		Message: err.Error(),
	})
}

func (handler HTTPHandler) GetManyHeldTickets(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	acc, err := session.GetAccountFromCtx(ctx)
	if err != nil {
		writeError(w, err)
		return
	}

	req := GetManyHeldTicketsRequest{
		EventID:  r.URL.Query().Get("event_id"),
		HolderID: acc.ID,
	}

	if err := handler.validate(ctx, req); err != nil {
		writeBadRequest(w, err)
		return
	}

	resp, err := handler.TransferUseCase.GetManyHeldTickets(ctx, req)
	if err != nil {
		writeError(w, err)
		return
	}

	response.JSON(w, http.StatusOK, response.RESTEnvelope{
		Status:  status.OK,
		Message: "list of held tickets",
		Data:    resp,
	})
}

func (handler HTTPHandler) InitiateTransfer(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	acc, err := session.GetAccountFromCtx(ctx)
	if err != nil {
		writeError(w, err)
		return
	}

	req := InitiateTransferRequest{}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.JSON(w, http.StatusUnprocessableEntity, response.RESTEnvelope{
			Status:  status.UNPROCESSABLE_ENTITY,
			Message: err.Error(),
		})

		return
	}

	if err := handler.validate(ctx, req); err != nil {
		writeBadRequest(w, err)
		return
	}

	req.TicketKey = mux.Vars(r)["key"]
	req.FromUserID = acc.ID

	resp, err := handler.TransferUseCase.InitiateTransfer(ctx, req)
	if err != nil {
		writeError(w, err)
		return
	}

	message := "transfer has been created and is waiting for the destination to sign up"
	if resp.Transfer.Status == StatusCompleted {
		message = "ticket has been transferred"
	}

	response.JSON(w, http.StatusCreated, response.RESTEnvelope{
		Status:  status.CREATED,
		Message: message,
		Data:    resp,
	})
}

func (handler HTTPHandler) AssignTicket(w http.ResponseWriter, r *http.Request) {
	handler.changeOwner(w, r, true)
}

func (handler HTTPHandler) UnassignTicket(w http.ResponseWriter, r *http.Request) {
	handler.changeOwner(w, r, false)
}

func (handler HTTPHandler) changeOwner(w http.ResponseWriter, r *http.Request, assign bool) {
	ctx := r.Context()

	acc, err := session.GetAccountFromCtx(ctx)
	if err != nil {
		writeError(w, err)
		return
	}

	req := AssignTicketRequest{
		TicketKey: mux.Vars(r)["key"],
		UserID:    acc.ID,
	}

	var resp TicketResponse
	message := "ticket has been assigned to you"
	if assign {
		resp, err = handler.TransferUseCase.AssignTicket(ctx, req)
	} else {
		resp, err = handler.TransferUseCase.UnassignTicket(ctx, req)
		message = "ticket has been unassigned"
	}
	if err != nil {
		writeError(w, err)
		return
	}

	response.JSON(w, http.StatusOK, response.RESTEnvelope{
		Status:  status.OK,
		Message: message,
		Data:    resp,
	})
}

func (handler HTTPHandler) GetManyOutgoingTransfers(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	acc, err := session.GetAccountFromCtx(ctx)
	if err != nil {
		writeError(w, err)
		return
	}

	req := GetManyOutgoingTransfersRequest{
		EventID:    r.URL.Query().Get("event_id"),
		FromUserID: acc.ID,
	}

	if err := handler.validate(ctx, req); err != nil {
		writeBadRequest(w, err)
		return
	}

	resp, err := handler.TransferUseCase.GetManyOutgoingTransfers(ctx, req)
	if err != nil {
		writeError(w, err)
		return
	}

	response.JSON(w, http.StatusOK, response.RESTEnvelope{
		Status:  status.OK,
		Message: "list of transfers",
		Data:    resp,
	})
}

func (handler HTTPHandler) CancelTransfer(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	acc, err := session.GetAccountFromCtx(ctx)
	if err != nil {
		writeError(w, err)
		return
	}

	resp, err := handler.TransferUseCase.CancelTransfer(ctx, CancelTransferRequest{
		TransferKey: mux.Vars(r)["key"],
		RequesterID: acc.ID,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	response.JSON(w, http.StatusOK, response.RESTEnvelope{
		Status:  status.OK,
		Message: "transfer has been cancelled",
		Data:    resp,
	})
}

func (handler HTTPHandler) OnAccountActivated(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userID, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		writeBadRequest(w, fmt.Errorf("invalid account id"))
		return
	}

	resp, err := handler.TransferUseCase.CompleteTransfersForNewAccount(ctx, userID)
	if err != nil {
		writeError(w, err)
		return
	}

	response.JSON(w, http.StatusOK, response.RESTEnvelope{
		Status:  status.OK,
		Message: "pending transfers have been settled",
		Data:    resp,
	})
}
