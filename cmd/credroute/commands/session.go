package commands

import (
	"fmt"
	"os"

	"github.com/systmms/credroute/internal/capability"
	"github.com/systmms/credroute/internal/config"
	dserrors "github.com/systmms/credroute/internal/errors"
	"github.com/systmms/credroute/internal/logging"
	"github.com/systmms/credroute/internal/metrics"
	"github.com/systmms/credroute/internal/stores/badgerstore"
	"github.com/systmms/credroute/internal/stores/keyringstore"
	"github.com/systmms/credroute/internal/trust"
	"github.com/systmms/credroute/pkg/router"
)

// session is one command's view of the configured stores.
type session struct {
	router *router.Router
	legacy *badgerstore.Store
	modern *keyringstore.Store
	probe  *capability.Probe
	logger *logging.Logger
}

func openSession(cfg *config.Config) (*session, error) {
	if err := cfg.Load(); err != nil {
		return nil, err
	}
	def := cfg.Definition

	logger := cfg.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	if def.Logging.Debug && !logger.DebugEnabled() {
		logger = logging.New(true, def.Logging.NoColor)
	}
	if def.Metrics.Enabled {
		metrics.Init()
	}

	s := &session{logger: logger}
	opts := []router.Option{
		router.WithLogger(logger),
		router.WithParentCacheSize(def.Router.ParentCacheSize),
	}

	if def.LegacyEnabled() {
		store, err := badgerstore.Open(badgerstore.Config{
			Path:            def.Legacy.Path,
			InMemory:        def.Legacy.InMemory,
			SyncWrites:      def.Legacy.SyncWrites,
			DefaultKeychain: def.Legacy.DefaultKeychain,
			Logger:          logger,
		})
		if err != nil {
			return nil, dserrors.UserError{
				Message:    "Failed to open the legacy store",
				Details:    err.Error(),
				Suggestion: "Check legacy.path in credroute.yaml, or set legacy.enabled: false",
				Err:        err,
			}
		}
		s.legacy = store
		opts = append(opts, router.WithLegacyStore(store))
	}

	if def.ModernEnabled() {
		s.modern = keyringstore.New(def.Modern.Service)
		s.probe = capability.NewProbe(func() bool {
			return !cfg.NonInteractive && capability.Interactive(os.Getenv)
		}, s.modern)
		opts = append(opts, router.WithModernStore(s.modern), router.WithUnlocker(s.probe.Unlocker()))
	}

	engine, err := trust.New(nil, nil)
	if err != nil {
		logger.Warn("Trust evaluation disabled: %v", err)
	} else {
		opts = append(opts, router.WithTrustEngine(engine, trust.Basic()))
	}

	r, err := router.New(opts...)
	if err != nil {
		s.Close()
		return nil, dserrors.ConfigError{
			Field:      "legacy.enabled",
			Message:    fmt.Sprintf("no credential store configured: %v", err),
			Suggestion: "Enable at least one of legacy or modern in credroute.yaml",
		}
	}
	if engine != nil {
		engine.SetParents(r)
	}
	s.router = r
	return s, nil
}

// Close releases the legacy store.
func (s *session) Close() {
	if s.legacy == nil {
		return
	}
	if err := s.legacy.Close(); err != nil {
		s.logger.Warn("Closing legacy store: %v", err)
	}
}

// mutated drops cached parent certificates after a store write.
func (s *session) mutated() {
	s.router.InvalidateParentCache()
}
