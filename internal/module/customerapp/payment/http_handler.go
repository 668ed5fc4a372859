package payment

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/fuegoaustral/ticketera-sub000/internal/pkg/middleware"
	"github.com/fuegoaustral/ticketera-sub000/pkg/errors"
	publicMiddleware "github.com/fuegoaustral/ticketera-sub000/pkg/middleware"
	"github.com/fuegoaustral/ticketera-sub000/pkg/response"
	"github.com/fuegoaustral/ticketera-sub000/pkg/status"
	"github.com/gorilla/mux"
)

const maxWebhookBody = 1 << 16

type HTTPHandler struct {
	PaymentUseCase PaymentUseCase
}

func InitHTTPHandler(router *mux.Router, internalToken *middleware.InternalToken, paymentUseCase PaymentUseCase) {
	handler := &HTTPHandler{
		PaymentUseCase: paymentUseCase,
	}

	router.HandleFunc("/ticketera/v1/customerapp/payments/webhook", publicMiddleware.SetRouteChain(handler.OnPaymentNotification)).Methods(http.MethodPost)
	router.HandleFunc(JobPath, publicMiddleware.SetRouteChain(handler.ReconcilePendingPayments, internalToken.Verify)).Methods(http.MethodPost)
}

func writeError(w http.ResponseWriter, err error) {
	ae := errors.Destruct(err)
	response.JSON(w, ae.HTTPStatusCode, response.RESTEnvelope{
		Status:  ae.Status,
		Message: ae.Message,
	})
}

func (handler HTTPHandler) OnPaymentNotification(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	qs := r.URL.Query()

	req := WebhookRequest{
		Signature: r.Header.Get("x-signature"),
		RequestID: r.Header.Get("x-request-id"),
		DataID:    qs.Get("data.id"),
		Type:      qs.Get("type"),
	}

	// the body is informational only; authority comes from the provider API
	raw, _ := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	body := webhookBody{}
	if len(raw) > 0 && json.Unmarshal(raw, &body) == nil && req.Type == "" {
		req.Type = body.Type
	}

	resp, err := handler.PaymentUseCase.HandlePaymentWebhook(ctx, req)
	if err != nil {
		writeError(w, err)
		return
	}

	response.JSON(w, http.StatusOK, response.RESTEnvelope{
		Status:  status.OK,
		Message: "notification received",
		Data:    resp,
	})
}

func (handler HTTPHandler) ReconcilePendingPayments(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	req := ReconcileRequest{}
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && err != io.EOF {
			response.JSON(w, http.StatusUnprocessableEntity, response.RESTEnvelope{
				Status:  status.UNPROCESSABLE_ENTITY,
				Message: err.Error(),
			})

			return
		}
	}

	resp, err := handler.PaymentUseCase.ReconcilePendingPayments(ctx, req)
	if err != nil {
		writeError(w, err)
		return
	}

	response.JSON(w, http.StatusOK, response.RESTEnvelope{
		Status:  status.OK,
		Message: "payment reconcile finished",
		Data:    resp,
	})
}
