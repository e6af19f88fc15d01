package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"discount-system/internal/config"
	"discount-system/internal/database"
	"discount-system/internal/handlers"
	"discount-system/internal/kafka"
	"discount-system/internal/logger"
	"discount-system/internal/models"
	"discount-system/internal/redis"
	"discount-system/internal/services"

	"github.com/google/uuid"
)

// Фабричные функции для подключения внешних сервисов (подменяемые в тестах).
var (
	dbConnect        = database.Connect
	redisConnect     = redis.Connect
	newKafkaProducer = kafka.NewProducer
	newKafkaConsumer = kafka.NewConsumer
	kafkaHealthCheck = handlers.CheckKafkaHealth
	loadConfig       = config.Load
	newLogger        = logger.New
)

const maintenanceInterval = time.Hour

// application агрегирует собранные зависимости.
type application struct {
	cfg       *config.Config
	log       *logger.Logger
	db        *database.DB
	redis     *redis.Client
	producer  *kafka.Producer
	consumer  *kafka.Consumer
	discounts *services.DiscountService
	audits    *services.AuditService
	mux       *http.ServeMux
	server    *http.Server
	stopSweep chan struct{}
}

func main() {
	app, err := buildApplication()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build app: %v\n", err)
		os.Exit(1)
	}
	app.log.Info("Starting discount system server...")

	go app.runMaintenance()

	go func() {
		app.log.WithField("address", app.server.Addr).Info("HTTP server starting")
		if err := app.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			app.log.WithError(err).Fatal("HTTP server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	app.log.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	close(app.stopSweep)
	_ = app.consumer.Stop()
	if err := app.server.Shutdown(ctx); err != nil {
		app.log.WithError(err).Error("Server forced to shutdown")
	}
	_ = app.producer.Close()
	_ = app.redis.Close()
	_ = app.db.Close()
	app.log.Info("Server exited")
}

// buildApplication создает все зависимости (подменяемые в тестах).
func buildApplication() (*application, error) {
	cfg := loadConfig()
	log := newLogger(&cfg.Logger)

	db, err := dbConnect(&cfg.Database, log)
	if err != nil {
		return nil, fmt.Errorf("db connect: %w", err)
	}
	if err := db.Migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("db migrate: %w", err)
	}

	redisClient, err := redisConnect(&cfg.Redis, log)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("redis connect: %w", err)
	}

	producer, err := newKafkaProducer(&cfg.Kafka, log)
	if err != nil {
		_ = redisClient.Close()
		_ = db.Close()
		return nil, fmt.Errorf("kafka producer: %w", err)
	}

	consumer, err := newKafkaConsumer(&cfg.Kafka, log)
	if err != nil {
		_ = producer.Close()
		_ = redisClient.Close()
		_ = db.Close()
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}

	eligibilityService := services.NewEligibilityService(db, redisClient, log, &cfg.Cache)
	stackingEngine := services.NewStackingEngine(&cfg.Stacking, &cfg.Rounding)
	userLock := services.NewUserLock(redisClient, log, &cfg.Concurrency)

	discountService := services.NewDiscountService(db, log, eligibilityService, &cfg.Audit)
	applicationService := services.NewApplicationService(db, log, eligibilityService, stackingEngine, userLock, producer, cfg)
	auditService := services.NewAuditService(db, log, &cfg.Audit)

	discountHandler := handlers.NewDiscountHandler(discountService, log)
	userDiscountHandler := handlers.NewUserDiscountHandler(applicationService, eligibilityService, log)
	auditHandler := handlers.NewAuditHandler(auditService, log)
	healthHandler := handlers.NewHealthHandler(db, redisClient, cfg.Kafka.Brokers, kafkaHealthCheck)

	registerEventHandlers(consumer, eligibilityService, log)
	if err := consumer.Start(); err != nil {
		_ = consumer.Stop()
		_ = producer.Close()
		_ = redisClient.Close()
		_ = db.Close()
		return nil, fmt.Errorf("kafka consumer start: %w", err)
	}

	mux := setupRoutes(discountHandler, userDiscountHandler, auditHandler, healthHandler)
	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port),
		Handler:      mux,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	return &application{
		cfg:       cfg,
		log:       log,
		db:        db,
		redis:     redisClient,
		producer:  producer,
		consumer:  consumer,
		discounts: discountService,
		audits:    auditService,
		mux:       mux,
		server:    server,
		stopSweep: make(chan struct{}),
	}, nil
}

// runMaintenance периодически деактивирует скидки с истёкшим окном
// действия и чистит журнал аудита по сроку хранения.
func (app *application) runMaintenance() {
	ticker := time.NewTicker(maintenanceInterval)
	defer ticker.Stop()

	for {
		select {
		case <-app.stopSweep:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
			now := time.Now()

			if n, err := app.discounts.DeactivateExpired(ctx, now); err != nil {
				app.log.WithError(err).Error("Failed to deactivate expired discounts")
			} else if n > 0 {
				app.log.WithField("count", n).Info("Deactivated expired discounts")
			}

			if n, err := app.audits.PurgeExpired(ctx, now); err != nil {
				app.log.WithError(err).Error("Failed to purge audit records")
			} else if n > 0 {
				app.log.WithField("count", n).Info("Purged expired audit records")
			}
			cancel()
		}
	}
}

// setupRoutes настраивает маршруты HTTP сервера
func setupRoutes(discountHandler *handlers.DiscountHandler, userDiscountHandler *handlers.UserDiscountHandler, auditHandler *handlers.AuditHandler, healthHandler *handlers.HealthHandler) *http.ServeMux {
	mux := http.NewServeMux()

	// Health check endpoints
	mux.HandleFunc("/health", corsMiddleware(healthHandler.Health))
	mux.HandleFunc("/health/readiness", corsMiddleware(healthHandler.Readiness))
	mux.HandleFunc("/health/liveness", corsMiddleware(healthHandler.Liveness))

	// Discount rule endpoints
	mux.HandleFunc("/api/discounts", corsMiddleware(handleDiscountsRoute(discountHandler)))
	mux.HandleFunc("/api/discounts/", corsMiddleware(handleDiscountRoute(discountHandler)))

	// User discount endpoints
	mux.HandleFunc("/api/users/", corsMiddleware(handleUserDiscountRoute(userDiscountHandler)))

	// Audit log endpoints
	mux.HandleFunc("/api/audits", corsMiddleware(auditHandler.ListAudits))

	return mux
}

// handleDiscountsRoute обрабатывает маршруты для коллекции скидок
func handleDiscountsRoute(handler *handlers.DiscountHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			handler.ListDiscounts(w, r)
		case http.MethodPost:
			handler.CreateDiscount(w, r)
		default:
			writeErrorResponse(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	}
}

// handleDiscountRoute обрабатывает маршруты для отдельной скидки
func handleDiscountRoute(handler *handlers.DiscountHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			handler.GetDiscount(w, r)
		case http.MethodPut:
			handler.UpdateDiscount(w, r)
		case http.MethodDelete:
			handler.DeleteDiscount(w, r)
		default:
			writeErrorResponse(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	}
}

// handleUserDiscountRoute обрабатывает маршруты скидок пользователя
func handleUserDiscountRoute(handler *handlers.UserDiscountHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasSuffix(r.URL.Path, "/discounts/assign"):
			handler.AssignDiscount(w, r)
		case strings.HasSuffix(r.URL.Path, "/revoke"):
			handler.RevokeDiscount(w, r)
		case strings.HasSuffix(r.URL.Path, "/discounts/eligible"):
			handler.EligibleDiscounts(w, r)
		case strings.HasSuffix(r.URL.Path, "/discounts/stats"):
			handler.DiscountStats(w, r)
		case strings.HasSuffix(r.URL.Path, "/discounts/apply"):
			handler.ApplyDiscounts(w, r)
		default:
			writeErrorResponse(w, http.StatusNotFound, "Unknown route")
		}
	}
}

// registerEventHandlers регистрирует обработчики событий Kafka
func registerEventHandlers(consumer *kafka.Consumer, eligibility *services.EligibilityService, log *logger.Logger) {
	consumer.RegisterHandler(models.EventTypeDiscountAssigned, func(ctx context.Context, event *models.Event) error {
		log.WithField("event_id", event.ID).Info("Processing discount assigned event")
		return nil
	})

	consumer.RegisterHandler(models.EventTypeDiscountRevoked, func(ctx context.Context, event *models.Event) error {
		log.WithField("event_id", event.ID).Info("Processing discount revoked event")
		return nil
	})

	// Сброс кеша по событию применения: обработчик идемпотентен,
	// повторная доставка безопасна.
	consumer.RegisterHandler(models.EventTypeDiscountApplied, func(ctx context.Context, event *models.Event) error {
		log.WithField("event_id", event.ID).Info("Processing discount applied event")
		if userID, ok := eventUserID(event); ok {
			return eligibility.Invalidate(ctx, userID)
		}
		return nil
	})
}

// eventUserID достаёт user_id из данных события после JSON-десериализации.
func eventUserID(event *models.Event) (uuid.UUID, bool) {
	binding, ok := event.Data["user_discount"].(map[string]interface{})
	if !ok {
		return uuid.Nil, false
	}
	raw, ok := binding["user_id"].(string)
	if !ok {
		return uuid.Nil, false
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}

// corsMiddleware и другие helper функции
func corsMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next(w, r)
	}
}

func writeErrorResponse(w http.ResponseWriter, statusCode int, message string) {
	type errorResponse struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(errorResponse{
		Error:   http.StatusText(statusCode),
		Message: message,
	})
}
