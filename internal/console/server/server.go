package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/xela07ax/crmflow-prototype/internal/console/handler"
	"github.com/xela07ax/crmflow-prototype/internal/infra"
	"github.com/xela07ax/crmflow-prototype/internal/infra/auth"
	"go.uber.org/zap"
)

type ConsoleServer struct {
	router *chi.Mux
	logger *zap.Logger
	cfg    *infra.Config

	// Проверка RS256 токенов (реализуется через embedding BaseValidator в AgentService)
	authValidator auth.TokenValidator
	metrics       *Metrics

	// Обработчики бизнес-доменов
	authHandler     *handler.AuthHandler     // /auth/token
	agentHandler    *handler.AgentHandler    // /workspaces/{id}/agents
	pipelineHandler *handler.PipelineHandler // /workspaces/{id}/pipelines
	templateHandler *handler.TemplateHandler // /workspaces/{id}/templates
	syncHandler     *handler.SyncHandler     // /workspaces/{id}/sync
	auditHandler    *handler.AuditHandler    // /workspaces/{id}/audit
}

// NewConsoleServer инициализирует сервер консоли со всеми зависимостями
func NewConsoleServer(
	cfg *infra.Config,
	logger *zap.Logger,
	validator auth.TokenValidator,
	metrics *Metrics,
	authH *handler.AuthHandler,
	agentH *handler.AgentHandler,
	pipelineH *handler.PipelineHandler,
	templateH *handler.TemplateHandler,
	syncH *handler.SyncHandler,
	auditH *handler.AuditHandler,
) *ConsoleServer {
	s := &ConsoleServer{
		router:          chi.NewRouter(),
		logger:          logger.Named("console-api"),
		cfg:             cfg,
		authValidator:   validator,
		metrics:         metrics,
		authHandler:     authH,
		agentHandler:    agentH,
		pipelineHandler: pipelineH,
		templateHandler: templateH,
		syncHandler:     syncH,
		auditHandler:    auditH,
	}

	s.routes()
	return s
}

func (s *ConsoleServer) routes() {
	r := s.router

	// --- 1. Глобальные инфраструктурные Middleware (для всех) ---
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(TracingMiddleware)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	if s.metrics != nil {
		r.Use(s.metrics.Middleware)
	}

	// --- 2. ПУБЛИЧНЫЕ РОУТЫ (Открыты для всех) ---
	r.Group(func(r chi.Router) {
		// Логин должен быть доступен без токена
		r.Post("/auth/token", s.authHandler.Login)

		// Healthcheck для мониторинга
		r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		})
	})

	// --- 3. ЗАЩИЩЕННЫЙ ПЕРИМЕТР (Требуют RS256 токен) ---
	r.Group(func(r chi.Router) {
		// Подключаем универсальный Middleware только для этой группы
		r.Use(auth.NewMiddleware(s.authValidator, s.logger))

		r.Route("/workspaces/{workspaceID}", func(r chi.Router) {
			// Конструктор агентов: секционные сохранения с оптимистичной блокировкой
			r.Route("/agents", func(r chi.Router) {
				r.Get("/", s.agentHandler.List)
				r.Post("/", s.agentHandler.Create)
				r.Route("/{agentID}", func(r chi.Router) {
					r.Get("/", s.agentHandler.Get)
					r.Patch("/sections/{section}", s.agentHandler.SaveSection) // Токен в теле
					r.Post("/status", s.agentHandler.ChangeStatus)             // draft/live/paused
				})
			})

			// Воронки продаж и сделки
			r.Route("/pipelines", func(r chi.Router) {
				r.Get("/", s.pipelineHandler.List)
				r.Post("/", s.pipelineHandler.Create)
				r.Route("/{pipelineID}", func(r chi.Router) {
					r.Get("/", s.pipelineHandler.Get)
					r.Get("/opportunities", s.pipelineHandler.ListOpportunities)
					r.Post("/opportunities", s.pipelineHandler.CreateOpportunity)
					r.Patch("/opportunities/{opportunityID}", s.pipelineHandler.UpdateOpportunity)
				})
			})

			// Email-шаблоны и AI-генерация (шаг preview визарда)
			r.Route("/templates", func(r chi.Router) {
				r.Get("/", s.templateHandler.List)
				r.Post("/", s.templateHandler.Create)
				r.Post("/generate", s.templateHandler.Generate)
				r.Get("/{templateID}", s.templateHandler.Get)
			})

			// Синхронизация с Salesforce (асинхронная, через syncd)
			r.Route("/sync/salesforce", func(r chi.Router) {
				r.Post("/", s.syncHandler.Trigger)
				r.Get("/", s.syncHandler.LastRun)
			})

			// Журнал изменений (Observability)
			r.Get("/audit", s.auditHandler.GetChanges)
		})
	})
}

// ServeHTTP позволяет использовать ConsoleServer как стандартный http.Handler
func (s *ConsoleServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
