package order

import (
	"net/http"
	"strings"

	"github.com/fuegoaustral/ticketera-sub000/internal/pkg/middleware"
	"github.com/fuegoaustral/ticketera-sub000/internal/pkg/session"
	"github.com/fuegoaustral/ticketera-sub000/pkg/errors"
	publicMiddleware "github.com/fuegoaustral/ticketera-sub000/pkg/middleware"
	"github.com/fuegoaustral/ticketera-sub000/pkg/response"
	"github.com/fuegoaustral/ticketera-sub000/pkg/status"
	"github.com/gorilla/mux"
)

type HTTPHandler struct {
	OrderUseCase OrderUseCase
}

func InitHTTPHandler(router *mux.Router, customerSession *middleware.CustomerSession, internalToken *middleware.InternalToken, orderUseCase OrderUseCase) {
	handler := &HTTPHandler{
		OrderUseCase: orderUseCase,
	}

	router.HandleFunc("/ticketera/v1/customerapp/orders/{key}", publicMiddleware.SetRouteChain(handler.GetOrder, customerSession.Verify)).Methods(http.MethodGet)
	router.HandleFunc("/ticketera/v1/customerapp/orders/{key}/fulfill", publicMiddleware.SetRouteChain(handler.FulfillOrder, internalToken.Verify)).Methods(http.MethodPost)
}

func writeError(w http.ResponseWriter, err error) {
	ae := errors.Destruct(err)
	response.JSON(w, ae.HTTPStatusCode, response.RESTEnvelope{
		Status:  ae.Status,
		Message: ae.Message,
	})
}

func (handler HTTPHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	acc, err := session.GetAccountFromCtx(ctx)
	if err != nil {
		writeError(w, err)
		return
	}

	resp, err := handler.OrderUseCase.GetOrder(ctx, mux.Vars(r)["key"])
	if err != nil {
		writeError(w, err)
		return
	}

	owns := resp.CustomerID != nil && *resp.CustomerID == acc.ID
	if !owns && !strings.EqualFold(resp.CustomerEmail, acc.Email) {
		writeError(w, errors.New(http.StatusNotFound, status.NOT_FOUND, "order not found"))
		return
	}

	response.JSON(w, http.StatusOK, response.RESTEnvelope{
		Status:  status.OK,
		Message: "order",
		Data:    resp,
	})
}

func (handler HTTPHandler) FulfillOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	resp, err := handler.OrderUseCase.FulfillOrder(ctx, mux.Vars(r)["key"])
	if err != nil {
		writeError(w, err)
		return
	}

	message := "order has been fulfilled"
	if resp.AlreadyFulfilled {
		message = "order was already fulfilled"
	}

	response.JSON(w, http.StatusOK, response.RESTEnvelope{
		Status:  status.OK,
		Message: message,
		Data:    resp,
	})
}
