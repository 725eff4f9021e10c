package services

import (
	"log/slog"

	"github.com/SAP-F-2025/worksheet-session/internal/cache"
	"github.com/SAP-F-2025/worksheet-session/internal/config"
	"github.com/SAP-F-2025/worksheet-session/internal/events"
	"github.com/SAP-F-2025/worksheet-session/internal/repositories"
	"github.com/SAP-F-2025/worksheet-session/internal/validator"
)

// ServiceManager gives the HTTP layer access to every service.
type ServiceManager interface {
	Sessions() *SessionRegistry
	Handoffs() *HandoffStore
	Regeneration() *RegenerationService
	Exporter() *ResultExporter
	Validator() *validator.Validator
	Logger() *slog.Logger
	Shutdown()
}

// ServiceDeps are the infrastructure pieces the services are built on.
type ServiceDeps struct {
	Assignments repositories.AssignmentRepositories
	Content     repositories.ContentRepository
	Jobs        repositories.JobBackend
	Cache       cache.CacheService
	Publisher   events.EventPublisher
	HandoffBus  *events.HandoffBus
	Config      *config.Config
	Logger      *slog.Logger
}

type serviceManager struct {
	sessions     *SessionRegistry
	handoffs     *HandoffStore
	regeneration *RegenerationService
	exporter     *ResultExporter
	orchestrator *JobOrchestrator
	answers      *AnswerStore
	validator    *validator.Validator
	logger       *slog.Logger
}

func NewServiceManager(deps ServiceDeps) ServiceManager {
	logger := deps.Logger
	v := validator.New()
	notifier := NewEventNotifier(deps.Publisher, logger)
	orchestrator := NewJobOrchestrator(deps.Config.JobPolling, deps.Publisher, logger.With("component", "job_orchestrator"))
	answers := NewAnswerStore(deps.Config.AutosaveTimeout, logger.With("component", "answer_store"))

	sessions := NewSessionRegistry(SessionDeps{
		Repositories: deps.Assignments,
		Jobs:         deps.Jobs,
		Orchestrator: orchestrator,
		Answers:      answers,
		Reconciler:   NewResultReconciler(logger.With("component", "result_reconciler")),
		Validator:    v,
		Notifier:     notifier,
		Logger:       logger,
		TimeLimit:    deps.Config.SessionTimeLimit,
	})

	return &serviceManager{
		sessions:     sessions,
		handoffs:     NewHandoffStore(deps.Cache, deps.HandoffBus, notifier, v, deps.Config.HandoffTTL, logger.With("component", "handoff_store")),
		regeneration: NewRegenerationService(deps.Content, deps.Jobs, orchestrator, sessions, v, logger),
		exporter:     NewResultExporter(),
		orchestrator: orchestrator,
		answers:      answers,
		validator:    v,
		logger:       logger,
	}
}

func (m *serviceManager) Sessions() *SessionRegistry { return m.sessions }
func (m *serviceManager) Handoffs() *HandoffStore { return m.handoffs }
func (m *serviceManager) Regeneration() *RegenerationService { return m.regeneration }
func (m *serviceManager) Exporter() *ResultExporter { return m.exporter }
func (m *serviceManager) Validator() *validator.Validator { return m.validator }
func (m *serviceManager) Logger() *slog.Logger { return m.logger }

// Shutdown stops running jobs and waits for pending autosaves.
func (m *serviceManager) Shutdown() {
	m.regeneration.Close()
	m.orchestrator.Shutdown()
	m.answers.Wait()
}
