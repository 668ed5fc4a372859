package reminder

import (
	"encoding/json"
	"net/http"

	"github.com/fuegoaustral/ticketera-sub000/internal/pkg/middleware"
	"github.com/fuegoaustral/ticketera-sub000/pkg/errors"
	publicMiddleware "github.com/fuegoaustral/ticketera-sub000/pkg/middleware"
	"github.com/fuegoaustral/ticketera-sub000/pkg/response"
	"github.com/fuegoaustral/ticketera-sub000/pkg/status"
	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
)

type HTTPHandler struct {
	Validate        *validator.Validate
	ReminderUseCase ReminderUseCase
}

func InitHTTPHandler(router *mux.Router, internalToken *middleware.InternalToken, validate *validator.Validate, reminderUseCase ReminderUseCase) {
	handler := &HTTPHandler{
		Validate:        validate,
		ReminderUseCase: reminderUseCase,
	}

	router.HandleFunc(JobPath, publicMiddleware.SetRouteChain(handler.RunReminderSweep, internalToken.Verify)).Methods(http.MethodPost)
}

func (handler HTTPHandler) RunReminderSweep(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	req := RunReminderSweepRequest{}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.JSON(w, http.StatusUnprocessableEntity, response.RESTEnvelope{
			Status:  status.UNPROCESSABLE_ENTITY,
			Message: err.Error(),
		})

		return
	}

	if err := handler.Validate.StructCtx(ctx, req); err != nil {
		response.JSON(w, http.StatusBadRequest, response.RESTEnvelope{
			Status:  status.BAD_REQUEST,
			Message: "invalid 'event_id'",
		})

		return
	}

	resp, err := handler.ReminderUseCase.RunReminderSweep(ctx, req)
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
		Message: "reminder sweep finished",
		Data:    resp,
	})
}
