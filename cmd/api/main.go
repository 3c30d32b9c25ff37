package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/cit-platform/crewtask-service/internal/application"
	mongoRepo "github.com/cit-platform/crewtask-service/internal/infrastructure/mongodb"
	"github.com/cit-platform/crewtask-service/pkg/api"
	"github.com/cit-platform/crewtask-service/pkg/cloudevents"
	"github.com/cit-platform/crewtask-service/pkg/errors"
	"github.com/cit-platform/crewtask-service/pkg/kafka"
	"github.com/cit-platform/crewtask-service/pkg/logging"
	"github.com/cit-platform/crewtask-service/pkg/metrics"
	"github.com/cit-platform/crewtask-service/pkg/middleware"
	"github.com/cit-platform/crewtask-service/pkg/mongodb"
	"github.com/cit-platform/crewtask-service/pkg/outbox"
	outboxMongo "github.com/cit-platform/crewtask-service/pkg/outbox/mongodb"
)

const serviceName = "crewtask-service"

func main() {
	logConfig := logging.DefaultConfig(serviceName)
	logConfig.Level = logging.LogLevel(getEnv("LOG_LEVEL", "info"))
	logger := logging.New(logConfig)
	logger.SetDefault()

	logger.Info("Starting crewtask-service API")

	config := loadConfig()
	ctx := context.Background()

	// Prometheus metrics
	metricsConfig := metrics.DefaultConfig(serviceName)
	m := metrics.New(metricsConfig)

	// MongoDB
	mongoClient, err := mongodb.NewClient(ctx, config.MongoDB)
	if err != nil {
		logger.WithError(err).Error("Failed to connect to MongoDB")
		os.Exit(1)
	}
	defer mongoClient.Close(ctx)
	logger.Info("Connected to MongoDB", "database", config.MongoDB.Database)

	// Kafka producer behind a circuit breaker
	producer := kafka.NewProducer(config.Kafka)
	cbProducer := kafka.NewCircuitBreakerProducer(producer, m, logger)
	defer cbProducer.Close()
	logger.Info("Kafka producer initialized", "brokers", config.Kafka.Brokers)

	eventFactory := cloudevents.NewEventFactory(cloudevents.SourceCrewTask)

	// Repositories
	activityRepo := mongoRepo.NewActivityRepository(mongoClient.Database(), m)
	taskRepo := mongoRepo.NewTaskRepository(mongoClient.Database(), activityRepo, eventFactory, m)
	crewRepo := mongoRepo.NewCrewRepository(mongoClient.Database(), m)

	// Outbox publisher drains transition events to Kafka
	outboxRepo := outboxMongo.NewOutboxRepository(mongoClient.Database())
	outboxPublisher := outbox.NewPublisher(outboxRepo, cbProducer, logger, m, &outbox.PublisherConfig{
		PollInterval: config.OutboxPollInterval,
		BatchSize:    100,
	})
	if err := outboxPublisher.Start(ctx); err != nil {
		logger.WithError(err).Error("Failed to start outbox publisher")
		os.Exit(1)
	}
	defer outboxPublisher.Stop()
	logger.Info("Outbox publisher started")

	taskService := application.NewCrewTaskService(taskRepo, activityRepo, crewRepo, logger, m)

	// Gin router with the standard middleware chain
	router := gin.New()
	middlewareConfig := middleware.DefaultConfig(serviceName, logger.Logger)
	middleware.Setup(router, middlewareConfig)
	router.Use(middleware.MetricsMiddleware(m))

	router.NoRoute(middleware.NoRoute())
	router.NoMethod(middleware.NoMethod())

	router.GET("/health", middleware.HealthCheck(serviceName))
	router.GET("/ready", middleware.ReadinessCheck(serviceName, func() error {
		return mongoClient.HealthCheck(ctx)
	}))
	router.GET("/metrics", middleware.MetricsEndpoint(m))

	v1 := router.Group("/api/v1")
	v1.Use(middleware.CrewAuth([]byte(config.JWTSecret)))
	{
		bss := v1.Group("/bss/tasks/:taskId")
		{
			bss.POST("/start", transitionHandler(logger, taskService.Start))
			bss.POST("/arrived", transitionHandler(logger, taskService.Arrived))
			bss.POST("/amount", amountHandler(taskService, logger))
			bss.POST("/load", loadHandler(taskService, logger))
			bss.POST("/arrive-delivery", transitionHandler(logger, taskService.ArrivedDelivery))
			bss.POST("/unload", unloadHandler(taskService, logger))
			bss.POST("/complete", completeHandler(taskService, logger))
			bss.POST("/fail", failHandler(taskService, logger))
		}

		atm := v1.Group("/atm/tasks/:taskId")
		{
			atm.POST("/start", transitionHandler(logger, taskService.Start))
			atm.POST("/arrived", transitionHandler(logger, taskService.Arrived))
			atm.POST("/load-bank", loadHandler(taskService, logger))
			atm.POST("/arrive-delivery", transitionHandler(logger, taskService.ArrivedDelivery))
			atm.POST("/load-atm", transferHandler(taskService, logger))
			atm.POST("/unload-atm", unloadHandler(taskService, logger))
			atm.POST("/complete", completeHandler(taskService, logger))
			atm.POST("/fail", failHandler(taskService, logger))
		}

		cit := v1.Group("/cit/tasks/:taskId")
		{
			cit.POST("/start", transitionHandler(logger, taskService.Start))
			cit.POST("/arrived", transitionHandler(logger, taskService.Arrived))
			cit.POST("/advance", transitionHandler(logger, taskService.Advance))
			cit.POST("/complete", completeHandler(taskService, logger))
			cit.POST("/fail", failHandler(taskService, logger))
		}

		tasks := v1.Group("/tasks")
		{
			tasks.POST("", createTaskHandler(taskService, logger))
			tasks.GET("", listTasksHandler(taskService, logger))
			tasks.GET("/:taskId", getTaskHandler(taskService, logger))
			tasks.GET("/:taskId/activities", getActivitiesHandler(taskService, logger))
		}
	}

	srv := &http.Server{
		Addr:         config.ServerAddr,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Error("Server error")
		}
	}()
	logger.Info("Server started", "addr", config.ServerAddr)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("Server forced to shutdown")
	}

	logger.Info("Server stopped")
}

// Config holds application configuration
type Config struct {
	ServerAddr         string
	JWTSecret          string
	OutboxPollInterval time.Duration
	MongoDB            *mongodb.Config
	Kafka              *kafka.Config
}

func loadConfig() *Config {
	pollInterval, err := time.ParseDuration(getEnv("OUTBOX_POLL_INTERVAL", "1s"))
	if err != nil {
		pollInterval = time.Second
	}

	return &Config{
		ServerAddr:         getEnv("SERVER_ADDR", ":8080"),
		JWTSecret:          getEnv("JWT_SECRET", "dev-secret-do-not-use"),
		OutboxPollInterval: pollInterval,
		MongoDB: &mongodb.Config{
			URI:            getEnv("MONGODB_URI", "mongodb://localhost:27017"),
			Database:       getEnv("MONGODB_DATABASE", "cit_tasks"),
			ConnectTimeout: 10 * time.Second,
			MaxPoolSize:    100,
			MinPoolSize:    10,
		},
		Kafka: &kafka.Config{
			Brokers:       []string{getEnv("KAFKA_BROKERS", "localhost:9092")},
			ConsumerGroup: serviceName,
			ClientID:      serviceName,
			BatchSize:     100,
			BatchTimeout:  10 * time.Millisecond,
			RequiredAcks:  -1,
		},
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// LocationRequest is the device-reported position in a transition body
type LocationRequest struct {
	Lat  string `json:"lat"`
	Long string `json:"long"`
}

// TransitionRequest is the common body shape of every transition endpoint
type TransitionRequest struct {
	NextScreenID string          `json:"nextScreenId" binding:"required"`
	Time         time.Time       `json:"time"`
	Location     LocationRequest `json:"location"`
}

// SaveAmountRequest adds the amount fields for the BSS amount stage
type SaveAmountRequest struct {
	TransitionRequest
	Amount        float64 `json:"amount" binding:"required,gt=0"`
	Denominations string  `json:"denominations"`
}

// LoadRequest carries the pickup receipt and parcel batch
type LoadRequest struct {
	TransitionRequest
	PickupReceiptNumber string   `json:"pickupReceiptNumber"`
	ParcelQRCodes       []string `json:"parcelQRCodes" binding:"required,min=1"`
}

// TransferRequest carries the parcel batch moved into the machine
type TransferRequest struct {
	TransitionRequest
	ParcelQRCodes []string `json:"parcelQRCodes" binding:"required,min=1"`
}

// UnloadRequest carries the delivery receipt and parcel batch
type UnloadRequest struct {
	TransitionRequest
	DeliveryReceiptNumber string   `json:"deliveryReceiptNumber"`
	ParcelQRCodes         []string `json:"parcelQRCodes" binding:"required,min=1"`
}

// CompleteRequest optionally carries a final parcel batch (ATM)
type CompleteRequest struct {
	TransitionRequest
	ParcelQRCodes []string `json:"parcelQRCodes"`
}

// FailRequest carries the mandatory failure reason
type FailRequest struct {
	FailedReason string          `json:"failedReason" binding:"required"`
	Time         time.Time       `json:"time"`
	Location     LocationRequest `json:"location"`
}

// CreateTaskRequest assigns a new unit of crew work
type CreateTaskRequest struct {
	TaskID          string `json:"taskId" binding:"required"`
	OrderID         string `json:"orderId" binding:"required"`
	TaskType        string `json:"taskType" binding:"required,oneof=BSS ATM CIT"`
	CrewCommanderID int64  `json:"crewCommanderId" binding:"required"`
}

// actorFrom extracts the bound crew identity placed by the auth middleware
func actorFrom(c *gin.Context) (application.Actor, bool) {
	identity := middleware.GetCrewIdentity(c)
	if identity == nil {
		return application.Actor{}, false
	}
	return application.Actor{ClaimUserID: identity.UserID, BadgeID: identity.BadgeID}, true
}

// validateLocation rejects missing coordinates, including the placeholder
// sentinel some devices submit for unfilled template fields
func validateLocation(loc LocationRequest) *errors.AppError {
	return api.RequireFields(map[string]string{
		"location.lat":  loc.Lat,
		"location.long": loc.Long,
	})
}

// normalizeQRs maps placeholder-sentinel QR codes to empty strings so the
// batch validation rejects them as missing
func normalizeQRs(qrs []string) []string {
	normalized := make([]string, len(qrs))
	for i, qr := range qrs {
		if !api.FieldProvided(qr) {
			normalized[i] = ""
			continue
		}
		normalized[i] = qr
	}
	return normalized
}

func transitionTime(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t.UTC()
}

func respondTransition(responder *middleware.Responder, result *application.TransitionResult, err error) {
	if err != nil {
		responder.RespondWithError(err)
		return
	}
	if result.Partial {
		responder.RespondPartial(result)
		return
	}
	responder.RespondOK(result)
}

type transitionFunc func(ctx context.Context, actor application.Actor, cmd application.TransitionCommand) (*application.TransitionResult, error)

// transitionHandler serves the stages whose body is the common shape
func transitionHandler(logger *logging.Logger, fn transitionFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		responder := middleware.NewResponder(c, logger.Logger)

		actor, ok := actorFrom(c)
		if !ok {
			responder.RespondWithAppError(errors.ErrUnauthorized(""))
			return
		}

		var req TransitionRequest
		if appErr := api.BindAndValidate(c, &req); appErr != nil {
			responder.RespondWithAppError(appErr)
			return
		}
		if appErr := validateLocation(req.Location); appErr != nil {
			responder.RespondWithAppError(appErr)
			return
		}

		cmd := application.TransitionCommand{
			TaskID:          c.Param("taskId"),
			RequestedScreen: req.NextScreenID,
			Time:            transitionTime(req.Time),
			Location:        application.LocationInput{Latitude: req.Location.Lat, Longitude: req.Location.Long},
		}

		result, err := fn(c.Request.Context(), actor, cmd)
		respondTransition(responder, result, err)
	}
}

func amountHandler(service *application.CrewTaskService, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		responder := middleware.NewResponder(c, logger.Logger)

		actor, ok := actorFrom(c)
		if !ok {
			responder.RespondWithAppError(errors.ErrUnauthorized(""))
			return
		}

		var req SaveAmountRequest
		if appErr := api.BindAndValidate(c, &req); appErr != nil {
			responder.RespondWithAppError(appErr)
			return
		}
		if appErr := validateLocation(req.Location); appErr != nil {
			responder.RespondWithAppError(appErr)
			return
		}

		cmd := application.SaveAmountCommand{
			TransitionCommand: application.TransitionCommand{
				TaskID:          c.Param("taskId"),
				RequestedScreen: req.NextScreenID,
				Time:            transitionTime(req.Time),
				Location:        application.LocationInput{Latitude: req.Location.Lat, Longitude: req.Location.Long},
			},
			Amount:        req.Amount,
			Denominations: req.Denominations,
		}

		result, err := service.SaveAmount(c.Request.Context(), actor, cmd)
		respondTransition(responder, result, err)
	}
}

func loadHandler(service *application.CrewTaskService, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		responder := middleware.NewResponder(c, logger.Logger)

		actor, ok := actorFrom(c)
		if !ok {
			responder.RespondWithAppError(errors.ErrUnauthorized(""))
			return
		}

		var req LoadRequest
		if appErr := api.BindAndValidate(c, &req); appErr != nil {
			responder.RespondWithAppError(appErr)
			return
		}
		if appErr := validateLocation(req.Location); appErr != nil {
			responder.RespondWithAppError(appErr)
			return
		}
		if appErr := api.RequireFields(map[string]string{
			"pickupReceiptNumber": req.PickupReceiptNumber,
		}); appErr != nil {
			responder.RespondWithAppError(appErr)
			return
		}

		cmd := application.LoadParcelsCommand{
			TransitionCommand: application.TransitionCommand{
				TaskID:          c.Param("taskId"),
				RequestedScreen: req.NextScreenID,
				Time:            transitionTime(req.Time),
				Location:        application.LocationInput{Latitude: req.Location.Lat, Longitude: req.Location.Long},
			},
			PickupReceipt: req.PickupReceiptNumber,
			ParcelQRs:     normalizeQRs(req.ParcelQRCodes),
		}

		result, err := service.LoadParcels(c.Request.Context(), actor, cmd)
		respondTransition(responder, result, err)
	}
}

func transferHandler(service *application.CrewTaskService, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		responder := middleware.NewResponder(c, logger.Logger)

		actor, ok := actorFrom(c)
		if !ok {
			responder.RespondWithAppError(errors.ErrUnauthorized(""))
			return
		}

		var req TransferRequest
		if appErr := api.BindAndValidate(c, &req); appErr != nil {
			responder.RespondWithAppError(appErr)
			return
		}
		if appErr := validateLocation(req.Location); appErr != nil {
			responder.RespondWithAppError(appErr)
			return
		}

		cmd := application.TransferParcelsCommand{
			TransitionCommand: application.TransitionCommand{
				TaskID:          c.Param("taskId"),
				RequestedScreen: req.NextScreenID,
				Time:            transitionTime(req.Time),
				Location:        application.LocationInput{Latitude: req.Location.Lat, Longitude: req.Location.Long},
			},
			ParcelQRs: normalizeQRs(req.ParcelQRCodes),
		}

		result, err := service.TransferParcels(c.Request.Context(), actor, cmd)
		respondTransition(responder, result, err)
	}
}

func unloadHandler(service *application.CrewTaskService, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		responder := middleware.NewResponder(c, logger.Logger)

		actor, ok := actorFrom(c)
		if !ok {
			responder.RespondWithAppError(errors.ErrUnauthorized(""))
			return
		}

		var req UnloadRequest
		if appErr := api.BindAndValidate(c, &req); appErr != nil {
			responder.RespondWithAppError(appErr)
			return
		}
		if appErr := validateLocation(req.Location); appErr != nil {
			responder.RespondWithAppError(appErr)
			return
		}
		if appErr := api.RequireFields(map[string]string{
			"deliveryReceiptNumber": req.DeliveryReceiptNumber,
		}); appErr != nil {
			responder.RespondWithAppError(appErr)
			return
		}

		cmd := application.UnloadParcelsCommand{
			TransitionCommand: application.TransitionCommand{
				TaskID:          c.Param("taskId"),
				RequestedScreen: req.NextScreenID,
				Time:            transitionTime(req.Time),
				Location:        application.LocationInput{Latitude: req.Location.Lat, Longitude: req.Location.Long},
			},
			DeliveryReceipt: req.DeliveryReceiptNumber,
			ParcelQRs:       normalizeQRs(req.ParcelQRCodes),
		}

		result, err := service.UnloadParcels(c.Request.Context(), actor, cmd)
		respondTransition(responder, result, err)
	}
}

func completeHandler(service *application.CrewTaskService, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		responder := middleware.NewResponder(c, logger.Logger)

		actor, ok := actorFrom(c)
		if !ok {
			responder.RespondWithAppError(errors.ErrUnauthorized(""))
			return
		}

		var req CompleteRequest
		if appErr := api.BindAndValidate(c, &req); appErr != nil {
			responder.RespondWithAppError(appErr)
			return
		}
		if appErr := validateLocation(req.Location); appErr != nil {
			responder.RespondWithAppError(appErr)
			return
		}

		cmd := application.CompleteTaskCommand{
			TransitionCommand: application.TransitionCommand{
				TaskID:          c.Param("taskId"),
				RequestedScreen: req.NextScreenID,
				Time:            transitionTime(req.Time),
				Location:        application.LocationInput{Latitude: req.Location.Lat, Longitude: req.Location.Long},
			},
			ParcelQRs: normalizeQRs(req.ParcelQRCodes),
		}

		result, err := service.Complete(c.Request.Context(), actor, cmd)
		respondTransition(responder, result, err)
	}
}

func failHandler(service *application.CrewTaskService, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		responder := middleware.NewResponder(c, logger.Logger)

		actor, ok := actorFrom(c)
		if !ok {
			responder.RespondWithAppError(errors.ErrUnauthorized(""))
			return
		}

		var req FailRequest
		if appErr := api.BindAndValidate(c, &req); appErr != nil {
			responder.RespondWithAppError(appErr)
			return
		}
		if appErr := validateLocation(req.Location); appErr != nil {
			responder.RespondWithAppError(appErr)
			return
		}
		if appErr := api.RequireFields(map[string]string{
			"failedReason": req.FailedReason,
		}); appErr != nil {
			responder.RespondWithAppError(appErr)
			return
		}

		cmd := application.FailTaskCommand{
			TaskID:   c.Param("taskId"),
			Reason:   req.FailedReason,
			Time:     transitionTime(req.Time),
			Location: application.LocationInput{Latitude: req.Location.Lat, Longitude: req.Location.Long},
		}

		result, err := service.Fail(c.Request.Context(), actor, cmd)
		respondTransition(responder, result, err)
	}
}

func createTaskHandler(service *application.CrewTaskService, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		responder := middleware.NewResponder(c, logger.Logger)

		var req CreateTaskRequest
		if appErr := api.BindAndValidate(c, &req); appErr != nil {
			responder.RespondWithAppError(appErr)
			return
		}

		cmd := application.CreateTaskCommand{
			TaskID:          req.TaskID,
			OrderID:         req.OrderID,
			Family:          req.TaskType,
			CrewCommanderID: req.CrewCommanderID,
		}

		result, err := service.CreateTask(c.Request.Context(), cmd)
		if err != nil {
			responder.RespondWithError(err)
			return
		}

		responder.RespondCreated(result)
	}
}

func getTaskHandler(service *application.CrewTaskService, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		responder := middleware.NewResponder(c, logger.Logger)

		task, err := service.GetTask(c.Request.Context(), c.Param("taskId"))
		if err != nil {
			responder.RespondWithError(err)
			return
		}

		responder.RespondOK(task)
	}
}

func listTasksHandler(service *application.CrewTaskService, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		responder := middleware.NewResponder(c, logger.Logger)

		page := api.ParsePagination(c)

		query := application.ListTasksQuery{
			Page:     page.Page,
			PageSize: page.PageSize,
		}
		if family := c.Query("taskType"); family != "" {
			query.Family = &family
		}
		if status := c.Query("status"); status != "" {
			query.StatusLabel = &status
		}
		if crewID := c.Query("crewId"); crewID != "" {
			id, err := strconv.ParseInt(crewID, 10, 64)
			if err != nil {
				responder.RespondWithAppError(errors.ErrValidation("crewId must be numeric"))
				return
			}
			query.CrewID = &id
		}

		tasks, total, err := service.ListTasks(c.Request.Context(), query)
		if err != nil {
			responder.RespondWithError(err)
			return
		}

		responder.RespondOK(api.NewPageResponse(tasks, page.Page, page.PageSize, total))
	}
}

func getActivitiesHandler(service *application.CrewTaskService, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		responder := middleware.NewResponder(c, logger.Logger)

		activities, err := service.GetActivities(c.Request.Context(), c.Param("taskId"))
		if err != nil {
			responder.RespondWithError(err)
			return
		}

		responder.RespondOK(activities)
	}
}
