package order

import (
	"net/http"

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
	Validate     *validator.Validate
	OrderUseCase OrderUseCase
}

func InitHTTPHandler(router *mux.Router, customerSession *middleware.CustomerSession, adminSession *middleware.AdminSession, validate *validator.Validate, orderUseCase OrderUseCase) {
	handler := &HTTPHandler{
		Validate:     validate,
		OrderUseCase: orderUseCase,
	}

	router.HandleFunc("/ticketera/v1/adminapp/orders", publicMiddleware.SetRouteChain(handler.GetManyOrder, customerSession.Verify, adminSession.Verify)).Methods(http.MethodGet)
	router.HandleFunc("/ticketera/v1/adminapp/orders/{key}/confirm", publicMiddleware.SetRouteChain(handler.ConfirmOrder, customerSession.Verify, adminSession.Verify)).Methods(http.MethodPost)
}

func (handler HTTPHandler) GetManyOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	qs := r.URL.Query()

	req := GetManyOrderRequest{
		EventID: qs.Get("event_id"),
		Status:  qs.Get("status"),
	}

	if err := handler.Validate.StructCtx(ctx, req); err != nil {
		response.JSON(w, http.StatusBadRequest, response.RESTEnvelope{
			Status:  status.BAD_REQUEST,
			Message: "invalid 'event_id' or 'status'",
		})

		return
	}

	resp, err := handler.OrderUseCase.GetManyOrder(ctx, req)
	if err != nil {
		ae := errors.Destruct(err)
		response.JSON(w, ae.HTTPStatusCode, response.RESTEnvelope{
			Status:  ae.Status,
			Message: ae.Message,
		})

		return
	}

	response.JSON(w, http.StatusOK, response.RESTEnvelope{
		Status:  status.OK,
		Message: "list of orders",
		Data:    resp,
	})
}

func (handler HTTPHandler) ConfirmOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	acc, err := session.GetAccountFromCtx(ctx)
	if err != nil {
		ae := errors.Destruct(err)
		response.JSON(w, ae.HTTPStatusCode, response.RESTEnvelope{
			Status:  ae.Status,
			Message: ae.Message,
		})

		return
	}

	resp, err := handler.OrderUseCase.ConfirmOrder(ctx, ConfirmOrderRequest{
		Key:     mux.Vars(r)["key"],
		StaffID: acc.ID,
	})
	if err != nil {
		ae := errors.Destruct(err)
		response.JSON(w, ae.HTTPStatusCode, response.RESTEnvelope{
			Status:  ae.Status,
			Message: ae.Message,
		})

		return
	}

	response.JSON(w, http.StatusOK, response.RESTEnvelope{
		Status:  status.OK,
		Message: "order has been confirmed",
		Data:    resp,
	})
}
