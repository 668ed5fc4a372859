package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/fuegoaustral/ticketera-sub000/config"
	adminapp_order "github.com/fuegoaustral/ticketera-sub000/internal/module/adminapp/order"
	adminapp_ticket "github.com/fuegoaustral/ticketera-sub000/internal/module/adminapp/ticket"
	customerapp_account "github.com/fuegoaustral/ticketera-sub000/internal/module/customerapp/account"
	customerapp_event "github.com/fuegoaustral/ticketera-sub000/internal/module/customerapp/event"
	"github.com/fuegoaustral/ticketera-sub000/internal/module/customerapp/mercadopago"
	customerapp_order "github.com/fuegoaustral/ticketera-sub000/internal/module/customerapp/order"
	customerapp_payment "github.com/fuegoaustral/ticketera-sub000/internal/module/customerapp/payment"
	customerapp_reminder "github.com/fuegoaustral/ticketera-sub000/internal/module/customerapp/reminder"
	customerapp_ticket "github.com/fuegoaustral/ticketera-sub000/internal/module/customerapp/ticket"
	customerapp_transfer "github.com/fuegoaustral/ticketera-sub000/internal/module/customerapp/transfer"
	"github.com/fuegoaustral/ticketera-sub000/internal/pkg/jobs"
	"github.com/fuegoaustral/ticketera-sub000/internal/pkg/jwt"
	"github.com/fuegoaustral/ticketera-sub000/internal/pkg/lease"
	internalMiddleare "github.com/fuegoaustral/ticketera-sub000/internal/pkg/middleware"
	"github.com/fuegoaustral/ticketera-sub000/internal/pkg/notification"
	"github.com/fuegoaustral/ticketera-sub000/internal/pkg/session"
	"github.com/fuegoaustral/ticketera-sub000/pkg/applogger"
	"github.com/fuegoaustral/ticketera-sub000/pkg/clock"
	"github.com/fuegoaustral/ticketera-sub000/pkg/gctasks"
	"github.com/fuegoaustral/ticketera-sub000/pkg/kafka"
	"github.com/fuegoaustral/ticketera-sub000/pkg/middleware"
	"github.com/fuegoaustral/ticketera-sub000/pkg/monitoring"
	"github.com/fuegoaustral/ticketera-sub000/pkg/postgresql"
	"github.com/fuegoaustral/ticketera-sub000/pkg/pubsub"
	"github.com/fuegoaustral/ticketera-sub000/pkg/redis"
	"github.com/fuegoaustral/ticketera-sub000/pkg/server"
	"github.com/fuegoaustral/ticketera-sub000/pkg/validator"
	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gorilla/mux/otelmux"
)

var (
	c *config.Config
)

func init() {
	c = config.Get()
}

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	logger := applogger.GetLogrus()

	mon := monitoring.NewOpenTelemetry(
		c.Application.Name,
		c.Application.Environment,
		c.GCP.ProjectID,
	)

	mon.Start(ctx)

	validate := validator.Get()

	hc := http.DefaultClient

	clk := clock.Real()

	jsonWebToken := jwt.NewJSONWebToken(c.JWT.PublicKey)

	psqldb := postgresql.GetDatabase()
	if err := psqldb.Ping(); err != nil {
		logger.WithContext(ctx).WithError(err).Error()
	}

	publisher := pubsub.PublisherFromConfluentKafkaProducer(logger, kafka.NewProducer())
	notifier := notification.NewPublisherNotifier(logger, publisher)

	rc := redis.GetClient()
	if err := rc.Ping(context.Background()).Err(); err != nil {
		logger.WithContext(ctx).WithError(err).Error()
	}

	locker := lease.NewRedisLocker(logger, rc)

	cloudTask := gctasks.NewGCTasks(logger, c.GCP.ProjectID, c.GCP.Location, c.GCP.ServiceAccount)

	reminderRescheduler := jobs.NewCloudTasksRescheduler(jobs.RescheduleProperty{
		Logger:        logger,
		Tasks:         cloudTask,
		QueueID:       c.GCP.QueueID,
		BaseURL:       c.Application.BaseURL,
		InternalToken: c.Application.InternalToken,
		Interval:      c.Reminder.Interval,
	})
	reconcilerRescheduler := jobs.NewCloudTasksRescheduler(jobs.RescheduleProperty{
		Logger:        logger,
		Tasks:         cloudTask,
		QueueID:       c.GCP.QueueID,
		BaseURL:       c.Application.BaseURL,
		InternalToken: c.Application.InternalToken,
		Interval:      c.Reconciler.Interval,
	})

	sessionStore := session.NewRedisSessionStore(logger, rc)

	customerSessionMiddleware := internalMiddleare.NewCustomerSessionMiddleware(jsonWebToken, sessionStore)
	adminSessionMiddleware := internalMiddleare.NewAdminSessionMiddleware()
	internalTokenMiddleware := internalMiddleare.NewInternalTokenMiddleware(c.Application.InternalToken)

	router := mux.NewRouter()
	router.Use(
		otelmux.Middleware(c.Application.Name),
		middleware.HTTPResponseTraceInjection,
		middleware.NewHTTPRequestLogger(logger, c.Application.Debug, http.StatusInternalServerError).Middleware,
	)

	// repositories
	eventRepo := customerapp_event.NewEventRepository(logger, psqldb)
	accountRepo := customerapp_account.NewAccountRepository(logger, psqldb)
	ticketRepo := customerapp_ticket.NewTicketRepository(logger, psqldb)
	ticketTypeRepo := customerapp_ticket.NewTicketTypeRepository(logger, psqldb)
	orderRepo := customerapp_order.NewOrderRepository(logger, psqldb)
	orderItemRepo := customerapp_order.NewItemRepository(logger, psqldb)
	transferRepo := customerapp_transfer.NewTransferRepository(logger, psqldb)
	notificationRecordRepo := customerapp_reminder.NewNotificationRecordRepository(logger, psqldb)
	capacityJournalRepo := adminapp_ticket.NewCapacityJournalRepository(logger, psqldb)
	mercadoPagoRepo := mercadopago.NewMercadoPagoRepository(c.MercadoPago.BaseURL, c.MercadoPago.AccessToken, c.MercadoPago.Timeout, logger, hc)

	// customer's app
	customerappOrderUseCase := customerapp_order.NewOrderUseCase(customerapp_order.OrderUseCaseProperty{
		Logger:               logger,
		Timeout:              c.Application.Timeout,
		BaseURL:              c.Application.BaseURL,
		Clock:                clk,
		OrderRepository:      orderRepo,
		ItemRepository:       orderItemRepo,
		AccountRepository:    accountRepo,
		TicketRepository:     ticketRepo,
		TicketTypeRepository: ticketTypeRepo,
		Publisher:            publisher,
		Notifier:             notifier,
	})
	customerapp_order.InitHTTPHandler(router, customerSessionMiddleware, internalTokenMiddleware, customerappOrderUseCase)

	customerappTransferUseCase := customerapp_transfer.NewTransferUseCase(customerapp_transfer.TransferUseCaseProperty{
		Logger:             logger,
		Timeout:            c.Application.Timeout,
		BaseURL:            c.Application.BaseURL,
		Clock:              clk,
		Validate:           validate,
		TransferRepository: transferRepo,
		TicketRepository:   ticketRepo,
		AccountRepository:  accountRepo,
		EventRepository:    eventRepo,
		Publisher:          publisher,
		Notifier:           notifier,
	})
	customerapp_transfer.InitHTTPHandler(router, customerSessionMiddleware, internalTokenMiddleware, validate, customerappTransferUseCase)

	customerappPaymentUseCase := customerapp_payment.NewPaymentUseCase(customerapp_payment.PaymentUseCaseProperty{
		Logger:                logger,
		Timeout:               c.Application.Timeout,
		SweepTimeout:          c.Reconciler.Timeout,
		WebhookSecret:         c.MercadoPago.WebhookSecret,
		Locker:                locker,
		Rescheduler:           reconcilerRescheduler,
		EventRepository:       eventRepo,
		MercadoPagoRepository: mercadoPagoRepo,
		OrderUseCase:          customerappOrderUseCase,
	})
	customerapp_payment.InitHTTPHandler(router, internalTokenMiddleware, customerappPaymentUseCase)

	customerappReminderUseCase := customerapp_reminder.NewReminderUseCase(customerapp_reminder.ReminderUseCaseProperty{
		Logger:                       logger,
		Timeout:                      c.Reconciler.Timeout,
		BaseURL:                      c.Application.BaseURL,
		Workers:                      c.Reminder.Workers,
		SMSEnabled:                   c.Reminder.SMSEnabled,
		Clock:                        clk,
		Locker:                       locker,
		Rescheduler:                  reminderRescheduler,
		EventRepository:              eventRepo,
		TransferRepository:           transferRepo,
		TicketRepository:             ticketRepo,
		AccountRepository:            accountRepo,
		NotificationRecordRepository: notificationRecordRepo,
		Notifier:                     notifier,
	})
	customerapp_reminder.InitHTTPHandler(router, internalTokenMiddleware, validate, customerappReminderUseCase)

	// admin's app
	adminappTicketUseCase := adminapp_ticket.NewTicketUseCase(adminapp_ticket.TicketUseCaseProperty{
		Logger:                    logger,
		Timeout:                   c.Application.Timeout,
		Clock:                     clk,
		TicketTypeRepository:      ticketTypeRepo,
		CapacityJournalRepository: capacityJournalRepo,
	})
	adminapp_ticket.InitHTTPHandler(router, customerSessionMiddleware, adminSessionMiddleware, validate, adminappTicketUseCase)

	adminappOrderUseCase := adminapp_order.NewOrderUseCase(adminapp_order.OrderUseCaseProperty{
		Logger:               logger,
		Timeout:              c.Application.Timeout,
		OrderRepository:      orderRepo,
		CustomerOrderUseCase: customerappOrderUseCase,
	})
	adminapp_order.InitHTTPHandler(router, customerSessionMiddleware, adminSessionMiddleware, validate, adminappOrderUseCase)

	handler := middleware.SetChain(
		router,
		cors.New(cors.Options{
			AllowedOrigins:   c.CORS.AllowedOrigins,
			AllowedMethods:   c.CORS.AllowedMethods,
			AllowedHeaders:   c.CORS.AllowedHeaders,
			ExposedHeaders:   c.CORS.ExposedHeaders,
			MaxAge:           c.CORS.MaxAge,
			AllowCredentials: c.CORS.AllowCredentials,
		}).Handler,
	)

	srv := &server.Server{
		Server: http.Server{
			Addr:    fmt.Sprintf(":%d", c.Application.Port),
			Handler: handler,
		},
		Logger: logger,
	}

	go func() {
		srv.ListenAndServe()
	}()

	sigterm := make(chan os.Signal, 1)
	signal.Notify(sigterm, syscall.SIGINT, syscall.SIGTERM)
	<-sigterm

	srv.Shutdown(ctx)
	if cloudTask != nil {
		cloudTask.Close()
	}
	publisher.Close()
	psqldb.Close()
	rc.Close()
	mon.Stop(ctx)
}
