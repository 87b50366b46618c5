// Package worker provides the HTTP worker service for the fluxtask
// engine: outcome recording, priority scoring, insights, experiments.
package worker

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm/logger"

	"github.com/fluxtask/fluxtask/internal/analytics"
	"github.com/fluxtask/fluxtask/internal/cache"
	"github.com/fluxtask/fluxtask/internal/config"
	"github.com/fluxtask/fluxtask/internal/db"
	gormstore "github.com/fluxtask/fluxtask/internal/db/gorm"
	"github.com/fluxtask/fluxtask/internal/db/sqlite"
	"github.com/fluxtask/fluxtask/internal/experiment"
	"github.com/fluxtask/fluxtask/internal/learning"
	"github.com/fluxtask/fluxtask/internal/scoring"
	"github.com/fluxtask/fluxtask/internal/weights"
	"github.com/fluxtask/fluxtask/pkg/models"
)

const (
	// readHeaderTimeout bounds slow-header clients.
	readHeaderTimeout = 10 * time.Second

	// recomputeQueueSize buffers background similarity recompute requests.
	recomputeQueueSize = 100

	// recomputeInterval is how often the periodic full recompute runs.
	recomputeInterval = time.Hour
)

// Store is the persistence surface the worker needs: the engine stores
// plus the task/habit mirrors it serves writes into.
type Store interface {
	db.Store
	db.TaskRepository
	db.HabitRepository
	db.UserRepository
	UpsertTask(ctx context.Context, t *models.Task) error
	MarkTaskCompleted(ctx context.Context, id string, completed bool) error
	UpsertHabit(ctx context.Context, h *models.Habit) error
	Close() error
}

// Service is the worker service orchestrator.
type Service struct {
	version string
	config  *config.Config

	store       Store
	weights     *weights.Manager
	analytics   *analytics.Service
	experiments *experiment.Engine
	detector    *experiment.Detector
	learning    *learning.Engine
	insights    *cache.Cache

	router *chi.Mux
	server *http.Server

	recomputeQueue chan string

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewService wires the full engine over the configured store.
func NewService(version string, cfg *config.Config) (*Service, error) {
	store, err := openStore(cfg)
	if err != nil {
		return nil, err
	}

	wm := weights.NewManager(store)
	if cfg.Alpha > 0 {
		wm.SetDefaultAlpha(cfg.Alpha)
	}
	as := analytics.NewService(store, store, store)
	ee := experiment.NewEngine(store, store)

	detectorCfg := experiment.DefaultDetectorConfig()
	if cfg.AnomalyMinSamples > 0 {
		detectorCfg.MinSamples = cfg.AnomalyMinSamples
	}
	if cfg.AnomalyZThreshold > 0 {
		detectorCfg.ZThreshold = cfg.AnomalyZThreshold
	}
	detector := experiment.NewDetector(store, store, detectorCfg)

	calculator := scoring.NewCalculator(scoring.DefaultConfig())
	le := learning.NewEngine(wm, store, as, ee, detector, calculator, store, store, cfg.LearningRate)

	ctx, cancel := context.WithCancel(context.Background())
	svc := &Service{
		version:        version,
		config:         cfg,
		store:          store,
		weights:        wm,
		analytics:      as,
		experiments:    ee,
		detector:       detector,
		learning:       le,
		insights:       cache.New(cfg.RedisAddr, time.Duration(cfg.CacheTTLSecs)*time.Second),
		router:         chi.NewRouter(),
		recomputeQueue: make(chan string, recomputeQueueSize),
		ctx:            ctx,
		cancel:         cancel,
	}

	svc.setupMiddleware()
	svc.setupRoutes()
	return svc, nil
}

func openStore(cfg *config.Config) (Store, error) {
	if cfg.PostgresDSN != "" {
		store, err := gormstore.NewStore(gormstore.Config{
			DSN:      cfg.PostgresDSN,
			MaxConns: cfg.MaxConns,
			LogLevel: logger.Silent,
		})
		if err != nil {
			return nil, fmt.Errorf("open postgres store: %w", err)
		}
		return store, nil
	}
	store, err := sqlite.NewStore(sqlite.StoreConfig{
		Path:     cfg.DBPath,
		MaxConns: cfg.MaxConns,
	})
	if err != nil {
		return nil, fmt.Errorf("open sqlite store: %w", err)
	}
	return store, nil
}

func (s *Service) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(requestLogger)
	s.router.Use(middleware.Recoverer)
}

func (s *Service) setupRoutes() {
	s.router.Get("/health", s.handleHealth)

	s.router.Route("/api", func(r chi.Router) {
		r.Route("/users/{userID}", func(r chi.Router) {
			r.Get("/priorities", s.handlePriorities)
			r.Get("/insights", s.handleInsights)
			r.Get("/anomalies", s.handleAnomalies)
		})

		r.Put("/tasks", s.handleUpsertTask)
		r.Post("/tasks/{taskID}/complete", s.handleComplete)
		r.Post("/tasks/{taskID}/fail", s.handleFail)

		r.Put("/habits", s.handleUpsertHabit)

		r.Route("/experiments", func(r chi.Router) {
			r.Post("/", s.handleCreateExperiment)
			r.Get("/", s.handleListExperiments)
			r.Get("/active", s.handleActiveExperiment)
			r.Get("/{experimentID}", s.handleGetExperiment)
			r.Get("/{experimentID}/analysis", s.handleAnalyzeExperiment)
			r.Delete("/{experimentID}", s.handleDeactivateExperiment)
		})
	})
}

// Start launches the HTTP server and the background recompute loop.
func (s *Service) Start() error {
	s.wg.Add(1)
	go s.recomputeLoop()

	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.config.WorkerPort),
		Handler:           s.router,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("HTTP server error")
		}
	}()

	log.Info().Int("port", s.config.WorkerPort).Str("version", s.version).
		Msg("Worker service listening")
	return nil
}

// ApplyConfig applies hot-reloadable tunables from a reloaded config.
// The learning rate takes effect for the next recorded outcome; the
// alpha seeds weight vectors created after the reload.
func (s *Service) ApplyConfig(cfg *config.Config) {
	s.config.LearningRate = cfg.LearningRate
	s.config.Alpha = cfg.Alpha
	s.learning.SetLearningRate(cfg.LearningRate)
	if cfg.Alpha > 0 {
		s.weights.SetDefaultAlpha(cfg.Alpha)
	}
	s.detector.SetThresholds(cfg.AnomalyMinSamples, cfg.AnomalyZThreshold)
	log.Info().Float64("learning_rate", cfg.LearningRate).
		Float64("alpha", cfg.Alpha).Msg("Tunables updated")
}

// Shutdown gracefully stops the service: HTTP first, then the
// background loops, then in-flight learning triggers, then the store.
func (s *Service) Shutdown(ctx context.Context) error {
	s.cancel()

	if s.server != nil {
		if err := s.server.Shutdown(ctx); err != nil {
			log.Error().Err(err).Msg("HTTP server shutdown error")
		}
	}

	s.wg.Wait()
	s.learning.Wait()

	if err := s.insights.Close(); err != nil {
		log.Error().Err(err).Msg("Cache close error")
	}
	if err := s.store.Close(); err != nil {
		log.Error().Err(err).Msg("Store close error")
	}

	log.Info().Msg("Worker service shutdown complete")
	return nil
}

// enqueueRecompute schedules a background similarity recompute for a
// user. A full queue drops the request; the periodic sweep covers it.
func (s *Service) enqueueRecompute(userID string) {
	select {
	case s.recomputeQueue <- userID:
	default:
		log.Debug().Str("user", userID).Msg("Recompute queue full, skipping")
	}
}

// recomputeLoop drains queued recompute requests and periodically
// sweeps every known user so similarities never go stale for inactive
// users.
func (s *Service) recomputeLoop() {
	defer s.wg.Done()
	ticker := time.NewTicker(recomputeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case userID := <-s.recomputeQueue:
			if err := s.analytics.UpdateSimilarities(s.ctx, userID); err != nil {
				log.Error().Err(err).Str("user", userID).Msg("Queued recompute failed")
			}
		case <-ticker.C:
			s.sweepAllUsers()
		}
	}
}

func (s *Service) sweepAllUsers() {
	ids, err := s.store.AllUserIDs(s.ctx)
	if err != nil {
		log.Error().Err(err).Msg("User sweep failed")
		return
	}
	for _, id := range ids {
		s.enqueueRecompute(id)
	}
}
