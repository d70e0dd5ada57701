package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/lalas825/jantile-tracker-v2-sub000/config"
	"github.com/lalas825/jantile-tracker-v2-sub000/models"
	"github.com/lalas825/jantile-tracker-v2-sub000/utils"
	"github.com/lalas825/jantile-tracker-v2-sub000/workflow"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

const defaultPort = "8080"

// Define a struct to represent the rate limiter.
type RateLimiter struct {
	client *redis.Client
	limit  int64
	window time.Duration
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func getRedisClient(redisAddress string) *redis.Client {
	client := redis.NewClient(&redis.Options{
		Addr: redisAddress,
	})
	return client
}

// projectScopeMiddleware requires an x-project-id header on every app route
// and attaches the project scope to the request context.
func projectScopeMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		projectId := strings.TrimSpace(c.GetHeader("x-project-id"))
		if projectId == "" {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "x-project-id header is required"})
			return
		}
		ctx := utils.SetProjectIdInContext(c.Request.Context(), projectId)
		if userName := strings.TrimSpace(c.GetHeader("x-user-name")); userName != "" {
			ctx = utils.SetUserNameInContext(ctx, userName)
		}
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

func bindError(c *gin.Context, err error) {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		c.JSON(http.StatusBadRequest, gin.H{"errors": utils.ProcessValidationErrors(verrs)})
		return
	}
	c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
}

func domainError(c *gin.Context, err error) {
	if errors.Is(err, utils.ErrorRecordNotFound) || strings.HasSuffix(err.Error(), "not found") {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
}

func pathId(c *gin.Context) (int, bool) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return 0, false
	}
	return id, true
}

func createUnitHandler(c *gin.Context) {
	var input models.NewUnit
	if err := c.ShouldBindJSON(&input); err != nil {
		bindError(c, err)
		return
	}
	unit, err := models.CreateUnit(c.Request.Context(), &input)
	if err != nil {
		domainError(c, err)
		return
	}
	c.JSON(http.StatusCreated, unit)
}

func createAreaHandler(c *gin.Context) {
	var input models.NewArea
	if err := c.ShouldBindJSON(&input); err != nil {
		bindError(c, err)
		return
	}
	area, err := models.CreateArea(c.Request.Context(), &input)
	if err != nil {
		domainError(c, err)
		return
	}
	c.JSON(http.StatusCreated, area)
}

func listAreasHandler(c *gin.Context) {
	areas, err := models.ListAreas(c.Request.Context())
	if err != nil {
		domainError(c, err)
		return
	}
	c.JSON(http.StatusOK, areas)
}

func getAreaHandler(c *gin.Context) {
	id, ok := pathId(c)
	if !ok {
		return
	}
	area, err := models.GetArea(c.Request.Context(), id)
	if err != nil {
		domainError(c, err)
		return
	}
	c.JSON(http.StatusOK, area)
}

func deleteAreaHandler(c *gin.Context) {
	id, ok := pathId(c)
	if !ok {
		return
	}
	area, err := models.DeleteArea(c.Request.Context(), id)
	if err != nil {
		domainError(c, err)
		return
	}
	c.JSON(http.StatusOK, area)
}

func createMaterialHandler(c *gin.Context) {
	var input models.NewMaterialCommitment
	if err := c.ShouldBindJSON(&input); err != nil {
		bindError(c, err)
		return
	}
	m, err := models.CreateMaterialCommitment(c.Request.Context(), &input)
	if err != nil {
		domainError(c, err)
		return
	}
	c.JSON(http.StatusCreated, m)
}

func listMaterialsHandler(c *gin.Context) {
	if areaParam := c.Query("area_id"); areaParam != "" {
		areaId, err := strconv.Atoi(areaParam)
		if err != nil || areaId <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid area_id"})
			return
		}
		list, err := models.ListMaterialCommitmentsByArea(c.Request.Context(), areaId)
		if err != nil {
			domainError(c, err)
			return
		}
		c.JSON(http.StatusOK, list)
		return
	}
	list, err := models.ListMaterialCommitmentsByProject(c.Request.Context())
	if err != nil {
		domainError(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

func getMaterialHandler(c *gin.Context) {
	id, ok := pathId(c)
	if !ok {
		return
	}
	m, err := models.GetMaterialCommitment(c.Request.Context(), id)
	if err != nil {
		domainError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"material": m, "to_buy": m.ToBuy()})
}

func updateMaterialHandler(c *gin.Context) {
	id, ok := pathId(c)
	if !ok {
		return
	}
	var input models.NewMaterialCommitment
	if err := c.ShouldBindJSON(&input); err != nil {
		bindError(c, err)
		return
	}
	m, err := models.UpdateMaterialCommitment(c.Request.Context(), id, &input)
	if err != nil {
		domainError(c, err)
		return
	}
	c.JSON(http.StatusOK, m)
}

func deleteMaterialHandler(c *gin.Context) {
	id, ok := pathId(c)
	if !ok {
		return
	}
	m, err := models.DeleteMaterialCommitment(c.Request.Context(), id)
	if err != nil {
		domainError(c, err)
		return
	}
	c.JSON(http.StatusOK, m)
}

func aggregateHandler(c *gin.Context) {
	view, err := models.AggregateProject(c.Request.Context())
	if err != nil {
		domainError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func createPurchaseOrderHandler(c *gin.Context) {
	var input models.NewPurchaseOrder
	if err := c.ShouldBindJSON(&input); err != nil {
		bindError(c, err)
		return
	}
	po, warnings, err := models.CreatePurchaseOrder(c.Request.Context(), &input)
	if err != nil {
		domainError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"purchase_order": po, "warnings": warnings})
}

func addLineItemsHandler(c *gin.Context) {
	id, ok := pathId(c)
	if !ok {
		return
	}
	var items []models.NewPOLineItem
	if err := c.ShouldBindJSON(&items); err != nil {
		bindError(c, err)
		return
	}
	po, warnings, err := models.AddLineItemsToPurchaseOrder(c.Request.Context(), id, items)
	if err != nil {
		domainError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"purchase_order": po, "warnings": warnings})
}

func listPurchaseOrdersHandler(c *gin.Context) {
	if c.Query("active") == "true" {
		orders, err := models.ListActivePurchaseOrders(c.Request.Context())
		if err != nil {
			domainError(c, err)
			return
		}
		c.JSON(http.StatusOK, orders)
		return
	}
	var status *models.PurchaseOrderStatus
	if s := c.Query("status"); s != "" {
		st := models.PurchaseOrderStatus(s)
		status = &st
	}
	orders, err := models.ListPurchaseOrders(c.Request.Context(), status)
	if err != nil {
		domainError(c, err)
		return
	}
	c.JSON(http.StatusOK, orders)
}

func getPurchaseOrderHandler(c *gin.Context) {
	id, ok := pathId(c)
	if !ok {
		return
	}
	po, err := models.GetPurchaseOrder(c.Request.Context(), id)
	if err != nil {
		domainError(c, err)
		return
	}
	c.JSON(http.StatusOK, po)
}

func placePurchaseOrderHandler(c *gin.Context) {
	id, ok := pathId(c)
	if !ok {
		return
	}
	po, err := models.PlacePurchaseOrder(c.Request.Context(), id)
	if err != nil {
		domainError(c, err)
		return
	}
	c.JSON(http.StatusOK, po)
}

func receivePurchaseOrderHandler(c *gin.Context) {
	id, ok := pathId(c)
	if !ok {
		return
	}
	var receipts []workflow.ReceiptDescriptor
	if err := c.ShouldBindJSON(&receipts); err != nil {
		bindError(c, err)
		return
	}
	result, err := workflow.ApplyReceipt(c.Request.Context(), id, receipts)
	if err != nil {
		domainError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func reorderPurchaseOrderHandler(c *gin.Context) {
	id, ok := pathId(c)
	if !ok {
		return
	}
	po, err := workflow.CreateReorder(c.Request.Context(), id)
	if err != nil {
		domainError(c, err)
		return
	}
	c.JSON(http.StatusCreated, po)
}

func createDeliveryTicketHandler(c *gin.Context) {
	var input models.NewDeliveryTicket
	if err := c.ShouldBindJSON(&input); err != nil {
		bindError(c, err)
		return
	}
	ticket, err := models.CreateDeliveryTicket(c.Request.Context(), &input)
	if err != nil {
		domainError(c, err)
		return
	}
	c.JSON(http.StatusCreated, ticket)
}

func listDeliveryTicketsHandler(c *gin.Context) {
	var status *models.DeliveryTicketStatus
	if s := c.Query("status"); s != "" {
		st := models.DeliveryTicketStatus(s)
		if !st.IsValid() {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("unknown ticket status %q", s)})
			return
		}
		status = &st
	}
	tickets, err := models.ListDeliveryTickets(c.Request.Context(), status)
	if err != nil {
		domainError(c, err)
		return
	}
	c.JSON(http.StatusOK, tickets)
}

func getDeliveryTicketHandler(c *gin.Context) {
	id, ok := pathId(c)
	if !ok {
		return
	}
	ticket, err := models.GetDeliveryTicket(c.Request.Context(), id)
	if err != nil {
		domainError(c, err)
		return
	}
	c.JSON(http.StatusOK, ticket)
}

func advanceDeliveryTicketHandler(c *gin.Context) {
	id, ok := pathId(c)
	if !ok {
		return
	}
	ticket, err := models.AdvanceDeliveryTicket(c.Request.Context(), id)
	if err != nil {
		domainError(c, err)
		return
	}
	c.JSON(http.StatusOK, ticket)
}

func deleteDeliveryTicketHandler(c *gin.Context) {
	id, ok := pathId(c)
	if !ok {
		return
	}
	ticket, err := models.DeleteDeliveryTicket(c.Request.Context(), id)
	if err != nil {
		domainError(c, err)
		return
	}
	c.JSON(http.StatusOK, ticket)
}

func customNotFoundHandler(c *gin.Context) {
	c.JSON(http.StatusNotFound, gin.H{"error": "route not found"})
}

func main() {
	port := os.Getenv("API_PORT")
	if port == "" {
		port = os.Getenv("PORT")
	}
	if port == "" {
		port = defaultPort
	}

	logger := config.GetLogger()

	sigCtx, stopSignals := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stopSignals()

	// Start the HTTP server ASAP; until DB is ready app endpoints return 503.
	r := gin.New()
	// Correlation IDs: generate once per request and attach to context.
	r.Use(func(c *gin.Context) {
		cid := c.GetHeader("x-correlation-id")
		if cid == "" {
			cid = uuid.NewString()
		}
		c.Request = c.Request.WithContext(utils.SetCorrelationIdInContext(c.Request.Context(), cid))
		c.Next()
	})
	r.Use(func(c *gin.Context) {
		if c.Request.URL.Path == "/healthz" {
			c.Status(http.StatusNoContent)
			c.Abort()
			return
		}
		// Gate app endpoints on dependency readiness.
		if config.GetDB() == nil {
			c.AbortWithStatus(http.StatusServiceUnavailable)
			return
		}
		c.Next()
	})

	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	corsConfig := cors.DefaultConfig()
	allowedOrigins := strings.TrimSpace(os.Getenv("CORS_ALLOWED_ORIGINS"))
	if strings.EqualFold(strings.TrimSpace(os.Getenv("GO_ENV")), "production") {
		if allowedOrigins == "" {
			// Safer default: deny all if not configured in production.
			corsConfig.AllowOrigins = []string{}
		} else {
			corsConfig.AllowOrigins = splitAndTrim(allowedOrigins)
		}
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AddAllowMethods("GET", "POST", "PUT", "DELETE", "OPTIONS")
	corsConfig.AddAllowHeaders("x-project-id", "x-user-name", "x-correlation-id", "Origin", "Content-Type", "Authorization")
	corsConfig.AddExposeHeaders("Content-Length")
	corsConfig.AllowCredentials = true
	r.Use(cors.New(corsConfig))

	// Optional rate limiting.
	// Env:
	// - RATE_LIMIT_ENABLED=true
	// - RATE_LIMIT_WINDOW_SECONDS=60
	// - RATE_LIMIT_MAX_REQUESTS=600
	if strings.EqualFold(strings.TrimSpace(os.Getenv("RATE_LIMIT_ENABLED")), "true") {
		client := getRedisClient(os.Getenv("REDIS_ADDRESS"))
		limit := int64(600)
		if v := strings.TrimSpace(os.Getenv("RATE_LIMIT_MAX_REQUESTS")); v != "" {
			if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
				limit = n
			}
		}
		windowSec := int64(60)
		if v := strings.TrimSpace(os.Getenv("RATE_LIMIT_WINDOW_SECONDS")); v != "" {
			if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
				windowSec = n
			}
		}
		rateLimiter := NewRateLimiter(client, limit, time.Duration(windowSec)*time.Second)
		r.Use(rateLimiter.RateLimitMiddleware)
	}

	r.Use(customErrorLogger(logger))
	r.Use(gin.Recovery())

	api := r.Group("/", projectScopeMiddleware())
	api.POST("/units", createUnitHandler)
	api.POST("/areas", createAreaHandler)
	api.GET("/areas", listAreasHandler)
	api.GET("/areas/:id", getAreaHandler)
	api.DELETE("/areas/:id", deleteAreaHandler)

	api.POST("/materials", createMaterialHandler)
	api.GET("/materials", listMaterialsHandler)
	api.GET("/materials/:id", getMaterialHandler)
	api.PUT("/materials/:id", updateMaterialHandler)
	api.DELETE("/materials/:id", deleteMaterialHandler)

	api.GET("/aggregate", aggregateHandler)

	api.POST("/purchase-orders", createPurchaseOrderHandler)
	api.GET("/purchase-orders", listPurchaseOrdersHandler)
	api.GET("/purchase-orders/:id", getPurchaseOrderHandler)
	api.POST("/purchase-orders/:id/line-items", addLineItemsHandler)
	api.POST("/purchase-orders/:id/place", placePurchaseOrderHandler)
	api.POST("/purchase-orders/:id/receive", receivePurchaseOrderHandler)
	api.POST("/purchase-orders/:id/reorder", reorderPurchaseOrderHandler)

	api.POST("/delivery-tickets", createDeliveryTicketHandler)
	api.GET("/delivery-tickets", listDeliveryTicketsHandler)
	api.GET("/delivery-tickets/:id", getDeliveryTicketHandler)
	api.POST("/delivery-tickets/:id/advance", advanceDeliveryTicketHandler)
	api.DELETE("/delivery-tickets/:id", deleteDeliveryTicketHandler)

	r.NoRoute(customNotFoundHandler)

	srv := &http.Server{
		Addr:    ":" + port,
		Handler: r,
	}
	serverErrCh := make(chan error, 1)
	go func() {
		// ListenAndServe returns http.ErrServerClosed on graceful shutdown.
		serverErrCh <- srv.ListenAndServe()
	}()

	// Connect dependencies after the port is open.
	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()

	db := config.GetDB()
	sqlDB, _ := db.DB()
	defer func() {
		if sqlDB != nil {
			_ = sqlDB.Close()
		}
	}()
	// AutoMigrate can run DDL that blocks tables; allow running migrations
	// as a separate job instead.
	if !strings.EqualFold(strings.TrimSpace(os.Getenv("SKIP_MIGRATIONS")), "true") {
		models.MigrateTable()
	} else {
		logger.WithFields(logrus.Fields{"field": "migrations"}).Warn("SKIP_MIGRATIONS=true; skipping AutoMigrate on startup")
	}

	// Set the session isolation level to READ COMMITTED
	for attempt := 1; ; attempt++ {
		err := db.Exec("SET SESSION TRANSACTION ISOLATION LEVEL READ COMMITTED").Error
		if err == nil {
			break
		}
		sleep := time.Second * time.Duration(1<<min(attempt, 5))
		if sleep > 30*time.Second {
			sleep = 30 * time.Second
		}
		logger.WithFields(logrus.Fields{
			"field":   "database",
			"attempt": attempt,
		}).Warn("failed to set isolation level; retrying in " + sleep.String() + ": " + err.Error())
		time.Sleep(sleep)
	}

	logger.WithFields(logrus.Fields{
		"info": "Connection Established",
	}).Info("listening on http://localhost:", port, "/")
	log.Println("Server started successfully")

	select {
	case <-sigCtx.Done():
		// graceful shutdown below
	case err := <-serverErrCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithFields(logrus.Fields{"field": "http"}).Error("server stopped unexpectedly: " + err.Error())
		}
	}

	shutdownTimeout := 30 * time.Second
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithFields(logrus.Fields{"field": "http"}).Error("graceful shutdown failed: " + err.Error())
	}

	if rdb := config.GetRedisDB(); rdb != nil {
		_ = rdb.Close()
	}
}

// customErrorLogger is a custom Gin middleware that logs only errors
func customErrorLogger(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		// Only log when there are errors
		if len(c.Errors) > 0 {
			logger.Error(c.Errors.String())
		}
	}
}

// Initialize a new RateLimiter instance.
func NewRateLimiter(client *redis.Client, limit int64, window time.Duration) *RateLimiter {
	return &RateLimiter{
		client: client,
		limit:  limit,
		window: window,
	}
}

// Middleware function to check rate limits.
func (rl *RateLimiter) RateLimitMiddleware(c *gin.Context) {
	key := c.ClientIP()

	exists, err := rl.client.Exists(c.Request.Context(), key).Result()
	if err != nil {
		c.AbortWithError(http.StatusInternalServerError, err)
		return
	}

	if exists == 0 {
		err := rl.client.Set(c.Request.Context(), key, 1, rl.window).Err()
		if err != nil {
			c.AbortWithError(http.StatusInternalServerError, err)
			return
		}
		c.Next()
		return
	}

	count, err := rl.client.Incr(c.Request.Context(), key).Result()
	if err != nil {
		c.AbortWithError(http.StatusInternalServerError, err)
		return
	}

	if count > rl.limit {
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
			"error": fmt.Sprintf("Rate limit exceeded. Try again in %d seconds", int(rl.window.Seconds())),
		})
		return
	}

	c.Next()
}

func splitAndTrim(csv string) []string {
	if strings.TrimSpace(csv) == "" {
		return nil
	}
	parts := strings.Split(csv, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
