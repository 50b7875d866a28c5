package api

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/dgarciamx/Tramita/internal/domain"
	"github.com/dgarciamx/Tramita/internal/gateway"
	"github.com/dgarciamx/Tramita/internal/store"
)

// Orchestrator — операции диспетчера, нужные API.
// Реализуется dispatch.Dispatcher.
type Orchestrator interface {
	Submit(ctx context.Context, task *domain.Task) (uuid.UUID, error)
	Cancel(ctx context.Context, id uuid.UUID) (*domain.Task, error)
	Pause(ctx context.Context, id uuid.UUID) (*domain.Task, error)
	Resume(ctx context.Context, id uuid.UUID) (*domain.Task, error)
	TakeControl(ctx context.Context, id uuid.UUID) (*domain.Task, error)

	RunningCount() int
	PoolSize() int
	QueueDepth() int
	IsStopped() bool
}

// Handler — главный обработчик API с зависимостями.
type Handler struct {
	store      store.Store
	dispatcher Orchestrator
	gateway    *gateway.Gateway
	logger     *slog.Logger
}

// Config — конфигурация для создания Handler.
type Config struct {
	Store      store.Store
	Dispatcher Orchestrator
	Gateway    *gateway.Gateway
	Logger     *slog.Logger
}

// NewHandler создаёт новый Handler.
func NewHandler(cfg Config) *Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		store:      cfg.Store,
		dispatcher: cfg.Dispatcher,
		gateway:    cfg.Gateway,
		logger:     logger,
	}
}
