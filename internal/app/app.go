package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"brianhub/internal/config"
	"brianhub/internal/handlers"
	"brianhub/internal/logger"
	"brianhub/internal/middleware"
	"brianhub/internal/repository/inter"
	"brianhub/internal/repository/task/inmemory"
	"brianhub/internal/repository/task/postgres"
	"brianhub/internal/service"
	"brianhub/internal/worker"
)

type storage interface {
	inter.TaskRepository
	inter.WorkspaceRepository
	handlers.HealthChecker
	Close()
}

type App struct {
	config    *config.Config
	server    *http.Server
	storage   storage
	worker    *worker.CheckinWorker
	shutdowns []func()
}

func New(cfg *config.Config) *App {
	return &App{
		config:    cfg,
		shutdowns: make([]func(), 0),
	}
}

func (a *App) Init(ctx context.Context) error {
	if err := logger.Init(a.config.Logging.Development); err != nil {
		return fmt.Errorf("инициализация логгера: %w", err)
	}
	a.shutdowns = append(a.shutdowns, func() {
		logger.Info("Завершение работы логгирования...")
		logger.Sync()
	})

	switch a.config.Repository.Type {
	case "inmemory":
		a.storage = inmemory.NewTaskStorage()
	default:
		pg, err := postgres.New(ctx, a.config.Database.URL)
		if err != nil {
			return fmt.Errorf("подключение к PostgreSQL: %w", err)
		}
		if err := pg.Migrate(ctx); err != nil {
			return fmt.Errorf("применение миграций: %w", err)
		}
		a.storage = pg
	}
	a.shutdowns = append(a.shutdowns, a.storage.Close)

	taskService := service.NewTaskService(a.storage, a.config.Sync.WaitingDays)
	workspaceService := service.NewWorkspaceService(a.storage)
	syncService := service.NewSyncService(a.storage, &taskService, a.config.Sync.WaitingDays, a.config.Sync.PullBatchSize)

	taskHandler := handlers.NewTaskHandler(&taskService, a.storage)
	workspaceHandler := handlers.NewWorkspaceHandler(&workspaceService)
	syncHandler := handlers.NewSyncHandler(&syncService)

	a.worker = worker.NewCheckinWorker(a.storage, a.config.Worker.CheckinSchedule, a.config.Worker.BatchSize)
	if err := a.worker.Start(ctx); err != nil {
		return fmt.Errorf("запуск воркера: %w", err)
	}
	a.shutdowns = append(a.shutdowns, a.worker.Stop)

	router := a.buildRouter(taskHandler, workspaceHandler, syncHandler)
	a.server = &http.Server{
		Addr:         a.config.GetServerAddr(),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	return nil
}

func (a *App) buildRouter(taskHandler handlers.TaskHandler, workspaceHandler handlers.WorkspaceHandler, syncHandler handlers.SyncHandler) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Logging)
	r.Use(middleware.RateLimit(300))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Org-Id", "X-Workspace-Id", "X-Client-Id", "X-Request-ID"},
		MaxAge:         300,
	}))

	r.Route("/tasks", func(r chi.Router) {
		r.Get("/", taskHandler.GetTasks)  // GET /tasks
		r.Post("/", taskHandler.PostTask) // POST /tasks

		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", taskHandler.GetTaskByID)   // GET /tasks/{id}
			r.Patch("/", taskHandler.PatchTask)   // PATCH /tasks/{id}
			r.Delete("/", taskHandler.DeleteTask) // DELETE /tasks/{id}

			r.Get("/tree", taskHandler.GetTaskTree)          // GET /tasks/{id}/tree
			r.Post("/reparent", taskHandler.ReparentTask)    // POST /tasks/{id}/reparent
			r.Post("/checkin", taskHandler.CheckInTask)      // POST /tasks/{id}/checkin
			r.Post("/reschedule", taskHandler.RescheduleTask) // POST /tasks/{id}/reschedule
		})
	})

	r.Route("/task-dependencies", func(r chi.Router) {
		r.Get("/", taskHandler.GetDependencies)      // GET /task-dependencies
		r.Post("/", taskHandler.PostDependency)      // POST /task-dependencies
		r.Delete("/", taskHandler.DeleteDependency)  // DELETE /task-dependencies
	})

	r.Route("/workspaces", func(r chi.Router) {
		r.Get("/", workspaceHandler.GetWorkspaces)  // GET /workspaces
		r.Post("/", workspaceHandler.PostWorkspace) // POST /workspaces

		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", workspaceHandler.GetWorkspaceByID)       // GET /workspaces/{id}
			r.Put("/", workspaceHandler.RenameWorkspace)        // PUT /workspaces/{id}
			r.Post("/archive", workspaceHandler.ArchiveWorkspace) // POST /workspaces/{id}/archive
		})
	})

	r.Route("/sync", func(r chi.Router) {
		r.Post("/push", syncHandler.Push) // POST /sync/push
		r.Get("/pull", syncHandler.Pull)  // GET /sync/pull
	})

	r.Get("/health", taskHandler.HealthCheck)
	return r
}

func (a *App) Run() error {
	logger.Info("Server started")
	if err := a.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (a *App) Shutdown(ctx context.Context) {
	if a.server != nil {
		if err := a.server.Shutdown(ctx); err != nil {
			logger.Warn("Ошибка остановки HTTP сервера")
		}
	}
	for i := len(a.shutdowns) - 1; i >= 0; i-- {
		a.shutdowns[i]()
	}
}
