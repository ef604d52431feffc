package restapi

import (
	"net/http/pprof"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"x402_gateway/internal/domain/entity"
	"x402_gateway/internal/infrastructure/configloader"
	"x402_gateway/internal/pkg/utils"
)

// SetupRouter настраивает и возвращает экземпляр Gin роутера.
func SetupRouter(handler *ResourceHandler, gate *PaymentGate, cfg *configloader.Config, zapLogger *zap.Logger) *gin.Engine {
	router := gin.New()

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowAllOrigins = true
	corsConfig.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Accept", "Authorization", entity.PaymentHeader, entity.BudgetHeader}
	corsConfig.ExposeHeaders = []string{entity.PaymentResponseHeader}
	router.Use(cors.New(corsConfig))

	router.Use(utils.ZapLoggerMiddleware(zapLogger))
	router.Use(gin.Recovery())

	router.GET("/", handler.Index)
	router.GET("/healthz", handler.Healthz)
	router.GET("/favicon.ico", handler.Favicon)

	// Routes carrying a payment gate. The budget route accepts GET and POST:
	// payment catalogs probe with either method.
	budgetGate := gate.Gate(RouteOptions{
		Description:       "acp job budget",
		MimeType:          "application/json",
		MaxTimeoutSeconds: 300,
		OutputSchema:      acpBudgetSchema(),
	})
	router.GET("/acp-budget", budgetGate, handler.ACPBudget)
	router.POST("/acp-budget", budgetGate, handler.ACPBudget)

	premiumGate := gate.Gate(RouteOptions{
		Price:       cfg.Payment.DefaultPrice,
		Description: utils.FirstNonEmpty(cfg.Payment.Description, "premium market insights"),
		MimeType:    "application/json",
	})
	router.GET("/premium/insights", premiumGate, handler.PremiumInsights)

	v1 := router.Group("/api/v1")
	{
		v1.GET("/networks", handler.ListNetworks)
		v1.GET("/networks/:identifier", handler.GetNetwork)
	}

	if cfg.Swagger.Enabled {
		router.StaticFile("/docs/swagger.yaml", "docs/swagger.yaml")
		router.GET(cfg.Swagger.Path+"/*any", ginSwagger.WrapHandler(swaggerFiles.Handler, ginSwagger.URL("/docs/swagger.yaml")))
	}

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	pprofRouter := router.Group("/debug/pprof")
	{
		pprofRouter.GET("/", gin.WrapF(pprof.Index))
		pprofRouter.GET("/cmdline", gin.WrapF(pprof.Cmdline))
		pprofRouter.GET("/profile", gin.WrapF(pprof.Profile))
		pprofRouter.POST("/symbol", gin.WrapF(pprof.Symbol))
		pprofRouter.GET("/symbol", gin.WrapF(pprof.Symbol))
		pprofRouter.GET("/trace", gin.WrapF(pprof.Trace))
		pprofRouter.GET("/allocs", gin.WrapH(pprof.Handler("allocs")))
		pprofRouter.GET("/block", gin.WrapH(pprof.Handler("block")))
		pprofRouter.GET("/goroutine", gin.WrapH(pprof.Handler("goroutine")))
		pprofRouter.GET("/heap", gin.WrapH(pprof.Handler("heap")))
		pprofRouter.GET("/mutex", gin.WrapH(pprof.Handler("mutex")))
		pprofRouter.GET("/threadcreate", gin.WrapH(pprof.Handler("threadcreate")))
	}

	return router
}

// acpBudgetSchema describes the budget route for resource catalogs: the
// X-Budget header is the only input.
func acpBudgetSchema() map[string]any {
	return map[string]any{
		"input": map[string]any{
			"type":   "http",
			"method": "GET",
			"headerFields": map[string]any{
				entity.BudgetHeader: map[string]any{
					"type":        "string",
					"required":    false,
					"description": "Optional budget amount in USD (e.g., $0.01). If not provided, defaults to $0.001",
					"example":     "$0.01",
				},
			},
		},
	}
}
