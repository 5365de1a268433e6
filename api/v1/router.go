package v1

import (
	"net/http"

	"go_certhub/api/v1/acme"
	"go_certhub/api/v1/dns"
	"go_certhub/api/v1/middleware"
	"go_certhub/api/v1/stats"
	"go_certhub/internal/account"
	"go_certhub/internal/cert"
	dnssvc "go_certhub/internal/dns"
	"go_certhub/internal/httpx"
	"go_certhub/internal/metrics"
	"go_certhub/internal/orchestrator"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// Permission strings checked by RequirePermission
const (
	PermAccountCreate = "acme:account:create"
	PermAccountRead   = "acme:account:read"
	PermAccountDelete = "acme:account:delete"
	PermAccountManage = "acme:account:manage"

	PermCertCreate         = "acme:cert:create"
	PermCertRead           = "acme:cert:read"
	PermCertDelete         = "acme:cert:delete"
	PermCertAuth           = "acme:cert:auth"
	PermCertManage         = "acme:cert:manage"
	PermCertPrivateKeyRead = "acme:cert:private_key:read"

	PermDNSCreate     = "dns:provider:create"
	PermDNSRead       = "dns:provider:read"
	PermDNSUpdate     = "dns:provider:update"
	PermDNSDelete     = "dns:provider:delete"
	PermDNSSecretRead = "dns:provider:secret:read"

	PermDashboardStats = "dashboard:stats"
)

// Deps are the services served by the router
type Deps struct {
	Accounts     *account.Service
	Certs        *cert.Service
	DNS          *dnssvc.Service
	Orchestrator *orchestrator.Orchestrator
	// Events serves socket.io; nil disables the route
	Events       http.Handler
	AllowOrigins []string
}

// NewRouter creates the engine with global middleware and all routes
func NewRouter(deps Deps) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	if metrics.Enabled {
		r.Use(middleware.Metrics())
		r.GET("/metrics", gin.WrapH(metrics.Handler()))
	}
	if len(deps.AllowOrigins) > 0 {
		corsConfig := cors.DefaultConfig()
		corsConfig.AllowOrigins = deps.AllowOrigins
		corsConfig.AllowMethods = []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"}
		corsConfig.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", "Authorization"}
		corsConfig.ExposeHeaders = []string{"Content-Disposition"}
		corsConfig.AllowCredentials = true
		r.Use(cors.New(corsConfig))
	}
	if deps.Events != nil {
		r.Any("/socket.io/*any", gin.WrapH(deps.Events))
	}

	SetupRouter(r, deps)
	return r
}

// SetupRouter sets up the API v1 routes
func SetupRouter(r *gin.Engine, deps Deps) {
	v1 := r.Group("/api/v1")
	{
		// Public routes (no authentication required)
		v1.GET("/ping", pingHandler)

		// Protected routes (authentication required)
		protected := v1.Group("")
		protected.Use(middleware.AuthRequired())
		{
			protected.GET("/me", meHandler)

			statsHandler := stats.NewHandler(deps.Accounts, deps.Certs, deps.DNS)
			protected.GET("/stats", middleware.RequirePermission(PermDashboardStats), statsHandler.Get)

			accountHandler := acme.NewAccountHandler(deps.Accounts)
			accounts := protected.Group("/acme/accounts")
			{
				accounts.POST("", middleware.RequirePermission(PermAccountCreate), accountHandler.Create)
				accounts.GET("", middleware.RequirePermission(PermAccountRead), accountHandler.List)
				accounts.GET("/:id", middleware.RequirePermission(PermAccountRead), accountHandler.Get)
				accounts.DELETE("/:id", middleware.RequirePermission(PermAccountDelete), accountHandler.Delete)
				accounts.POST("/:id/deactivate", middleware.RequirePermission(PermAccountManage), accountHandler.Deactivate)
			}

			authHandler := acme.NewAuthHandler(deps.Orchestrator)
			auth := protected.Group("/acme/auth")
			{
				auth.POST("", middleware.RequirePermission(PermCertAuth), authHandler.Create)
				auth.POST("/cert", middleware.RequirePermission(PermCertCreate), authHandler.Issue)
				auth.GET("/:id", middleware.RequirePermission(PermCertAuth), authHandler.Get)
				auth.DELETE("/:id", middleware.RequirePermission(PermCertAuth), authHandler.Abandon)
			}

			certHandler := acme.NewCertificateHandler(deps.Certs)
			certs := protected.Group("/acme/certificates")
			{
				certs.GET("", middleware.RequirePermission(PermCertRead), certHandler.List)
				certs.GET("/covering", middleware.RequirePermission(PermCertRead), certHandler.Covering)
				certs.GET("/:id", middleware.RequirePermission(PermCertRead), certHandler.Get)
				certs.GET("/:id/chain", middleware.RequirePermission(PermCertRead), certHandler.Chain)
				certs.GET("/:id/private_key", middleware.RequirePermission(PermCertPrivateKeyRead), certHandler.PrivateKey)
				certs.GET("/:id/private-key-content", middleware.RequirePermission(PermCertPrivateKeyRead), certHandler.PrivateKeyContent)
				certs.POST("/:id/revoke", middleware.RequirePermission(PermCertManage), certHandler.Revoke)
				certs.DELETE("/:id", middleware.RequirePermission(PermCertDelete), certHandler.Delete)
			}

			dnsHandler := dns.NewHandler(deps.DNS)
			providers := protected.Group("/dns/provider")
			{
				providers.GET("/types", middleware.RequirePermission(PermDNSRead), dnsHandler.Types)
				providers.POST("", middleware.RequirePermission(PermDNSCreate), dnsHandler.Create)
				providers.GET("", middleware.RequirePermission(PermDNSRead), dnsHandler.List)
				providers.GET("/:id", middleware.RequirePermission(PermDNSRead), dnsHandler.Get)
				providers.PATCH("/:id", middleware.RequirePermission(PermDNSUpdate), dnsHandler.Update)
				providers.DELETE("/:id", middleware.RequirePermission(PermDNSDelete), dnsHandler.Delete)
				providers.GET("/:id/secrets", middleware.RequirePermission(PermDNSSecretRead), dnsHandler.Secrets)
			}
		}
	}
}

// pingHandler handles the ping request using unified response
func pingHandler(c *gin.Context) {
	httpx.OK(c, gin.H{
		"pong": true,
	})
}

// meHandler returns current user information
func meHandler(c *gin.Context) {
	claims := middleware.Claims(c)

	httpx.OK(c, gin.H{
		"uid":         claims.UID,
		"username":    claims.Username,
		"role":        claims.Role,
		"permissions": claims.Permissions,
	})
}
