package app

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/newrelic/go-agent/v3/integrations/nrgin"
	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/redis/go-redis/v9"

	"dispatch/internal/domain"
	"dispatch/internal/handler"
	"dispatch/internal/middleware"
)

// RouterDeps contains all dependencies needed for the router.
type RouterDeps struct {
	RideHandler     *handler.RideHandler
	PaymentHandler  *handler.PaymentHandler
	LocationHandler *handler.LocationHandler
	WalletHandler   *handler.WalletHandler
	AdminHandler    *handler.AdminHandler
	WebhookHandler  *handler.WebhookHandler
	WSHandler       *handler.WSHandler
	HealthHandler   *handler.HealthHandler
	Verifier        *middleware.TokenVerifier
	RedisClient     *redis.Client // optional, enables Idempotency-Key replay
	NewRelicApp     *newrelic.Application
	AllowedOrigins  []string
}

// NewRouter creates a new Gin router with all routes registered.
func NewRouter(deps RouterDeps) *gin.Engine {
	router := gin.New()

	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(middleware.Logger())
	router.Use(cors.New(corsConfig(deps.AllowedOrigins)))

	if deps.NewRelicApp != nil {
		router.Use(nrgin.Middleware(deps.NewRelicApp))
		router.Use(middleware.NewRelicAttributes())
	}

	router.GET("/health", deps.HealthHandler.Health)

	v1 := router.Group("/v1")

	// Provider callbacks authenticate by signature, not bearer token.
	v1.POST("/webhooks/payout", deps.WebhookHandler.Payout)

	authed := v1.Group("")
	authed.Use(middleware.Auth(deps.Verifier))
	authed.Use(middleware.Idempotency(deps.RedisClient))

	customer := middleware.RequireRoles(domain.RoleCustomer)
	technician := middleware.RequireRoles(domain.RoleTechnician)

	authed.GET("/ws", deps.WSHandler.Serve)

	rides := authed.Group("/rides")
	{
		rides.POST("", customer, deps.RideHandler.CreateRide)
		rides.GET("/pending", technician, deps.RideHandler.ListPending)
		rides.GET("/history", deps.RideHandler.History)
		rides.GET("/:id", deps.RideHandler.GetRide)

		rides.POST("/:id/accept", technician, deps.RideHandler.Accept)
		rides.POST("/:id/verify-arrival", technician, deps.RideHandler.VerifyArrival)
		rides.POST("/:id/start", technician, deps.RideHandler.StartService)
		rides.POST("/:id/end", technician, deps.RideHandler.EndService)
		rides.POST("/:id/complete", technician, deps.RideHandler.Complete)
		rides.POST("/:id/cancel", customer, deps.RideHandler.Cancel)
		rides.POST("/:id/cancel-by-technician", technician, deps.RideHandler.CancelByTechnician)

		rides.POST("/:id/payment/order", customer, deps.PaymentHandler.CreateOrder)
		rides.POST("/:id/payment/confirm", customer, deps.PaymentHandler.Confirm)

		rides.GET("/:id/location", deps.LocationHandler.GetLocation)
		rides.POST("/:id/location", technician, deps.LocationHandler.SetLocation)
	}

	wallet := authed.Group("/wallet", technician)
	{
		wallet.GET("", deps.WalletHandler.GetWallet)
		wallet.GET("/transactions", deps.WalletHandler.ListTransactions)
		wallet.GET("/statement.pdf", deps.WalletHandler.Statement)
		wallet.POST("/withdrawals", deps.WalletHandler.RequestWithdrawal)
		wallet.POST("/commission/pay", deps.WalletHandler.PayCommission)
	}

	admin := authed.Group("/admin", middleware.RequireRoles(domain.RoleAdmin))
	{
		admin.GET("/withdrawals", deps.AdminHandler.ListWithdrawals)
		admin.POST("/withdrawals/:id/approve", deps.AdminHandler.Approve)
		admin.POST("/withdrawals/:id/reject", deps.AdminHandler.Reject)
		admin.POST("/withdrawals/:id/mark-paid", deps.AdminHandler.MarkPaid)
		admin.PUT("/wallets/:technicianId/verification", deps.AdminHandler.SetVerification)
		admin.PUT("/wallets/:technicianId/cod-limit", deps.AdminHandler.SetCODLimit)
	}

	return router
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods:    []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:    []string{"Origin", "Content-Type", "Accept", "Authorization", "Idempotency-Key", "X-Request-ID"},
		ExposeHeaders:   []string{"X-Request-ID", "Content-Disposition"},
		AllowWebSockets: true,
		MaxAge:          12 * time.Hour,
	}
	if len(origins) == 0 || (len(origins) == 1 && origins[0] == "*") {
		cfg.AllowAllOrigins = true
		return cfg
	}
	cfg.AllowOrigins = origins
	cfg.AllowCredentials = true
	return cfg
}
