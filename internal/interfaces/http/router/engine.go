package router

import (
	"github.com/erp/reconciler/internal/infrastructure/logger"
	"github.com/erp/reconciler/internal/interfaces/http/handler"
	"github.com/erp/reconciler/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

// EngineConfig wires the HTTP surface of the reconciler
type EngineConfig struct {
	Logger         *zap.Logger
	CORS           middleware.CORSConfig
	Tracing        middleware.TracingConfig
	Meter          metric.Meter // nil disables HTTP metrics
	TrustedProxies []string
	Settlement     *handler.SettlementHandler
	Health         *handler.HealthHandler
}

// NewEngine builds the gin engine with the middleware chain and all routes
func NewEngine(cfg EngineConfig) (*gin.Engine, error) {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}

	engine := gin.New()
	if err := engine.SetTrustedProxies(cfg.TrustedProxies); err != nil {
		return nil, err
	}

	engine.Use(
		middleware.RequestID(),
		logger.Recovery(log),
		middleware.TracingWithConfig(cfg.Tracing),
		middleware.SpanAttributes(),
		middleware.SpanErrorMarker(),
		middleware.HTTPMetrics(cfg.Meter, log),
		logger.GinMiddleware(log),
		middleware.Secure(),
		middleware.CORSWithConfig(cfg.CORS),
	)

	if cfg.Health != nil {
		engine.GET("/health", cfg.Health.Health)
	}

	r := NewRouter(engine)
	if cfg.Settlement != nil {
		r.Register(SettlementRoutes(cfg.Settlement))
	}
	r.Setup()

	return engine, nil
}

// SettlementRoutes returns the settlement route group
func SettlementRoutes(h *handler.SettlementHandler) *DomainGroup {
	return NewDomainGroup("settlement", "/settlement").
		GET("/parties", h.ListParties).
		GET("/parties/:id/ledger", h.GetPartyLedger)
}
