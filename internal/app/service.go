// Package app runs the polling loop that keeps the profile engine current
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"golang.org/x/sync/errgroup"

	"github.com/mrcode/nightscout-profiles/internal/config"
	"github.com/mrcode/nightscout-profiles/internal/models"
	"github.com/mrcode/nightscout-profiles/internal/nightscout"
	"github.com/mrcode/nightscout-profiles/internal/notifications"
	"github.com/mrcode/nightscout-profiles/internal/profile"
)

// staleAfter is how long a carried-over snapshot is served before it is marked stale
const staleAfter = 7 * time.Minute

// Source supplies profile documents and treatments
type Source interface {
	GetProfiles(ctx context.Context) ([]models.RawDocument, error)
	GetTreatments(ctx context.Context, q nightscout.TreatmentQuery) ([]models.Treatment, error)
}

// Service polls a Source and feeds the engine
type Service struct {
	settings      *config.Settings
	source        Source
	engine        *profile.Engine
	notifyManager *notifications.Manager
	logger        *slog.Logger
	now           func() time.Time

	mu                sync.RWMutex
	lastSnapshot      *models.Snapshot
	lastSuccessTime   time.Time
	consecutiveErrors int
}

// NewService creates a service. notifyManager may be nil.
func NewService(settings *config.Settings, source Source, engine *profile.Engine, notifyManager *notifications.Manager, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		settings:      settings,
		source:        source,
		engine:        engine,
		notifyManager: notifyManager,
		logger:        logger,
		now:           time.Now,
	}
}

// Run refreshes immediately and then every refresh interval until ctx is
// done. After a failed refresh the next attempt follows an exponential
// backoff capped at the refresh interval.
func (s *Service) Run(ctx context.Context) error {
	interval := s.settings.Refresh.Interval
	retry := backoff.NewExponentialBackOff()
	retry.InitialInterval = s.settings.Refresh.RetryInitial
	retry.MaxInterval = interval

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-timer.C:
		}

		next := interval
		if s.fetchAndUpdate(ctx) {
			retry.Reset()
		} else if sleep := retry.NextBackOff(); sleep != backoff.Stop {
			next = sleep
		}
		timer.Reset(next)
	}
}

func (s *Service) fetchAndUpdate(ctx context.Context) bool {
	if err := s.Refresh(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			return false
		}

		s.mu.Lock()
		s.consecutiveErrors++
		errorCount := s.consecutiveErrors
		lastSnapshot := s.lastSnapshot
		lastSuccess := s.lastSuccessTime
		if lastSnapshot != nil && !lastSuccess.IsZero() {
			stale := *lastSnapshot
			stale.StaleMinutes = int(s.now().Sub(lastSuccess).Minutes())
			stale.IsStale = s.now().Sub(lastSuccess) > staleAfter
			s.lastSnapshot = &stale
		}
		s.mu.Unlock()

		s.logger.Error("refresh failed", slog.Int("attempt", errorCount), slog.Any("error", err))
		return false
	}

	snap := s.Snapshot()
	if s.notifyManager != nil {
		if err := s.notifyManager.CheckAndNotify(snap); err != nil {
			s.logger.Warn("notification failed", slog.Any("error", err))
		}
	}
	return true
}

// Refresh fetches profiles and overlay treatments concurrently, replaces the
// engine state and publishes a new snapshot
func (s *Service) Refresh(ctx context.Context) error {
	return s.RefreshAt(ctx, s.now())
}

// RefreshAt is Refresh with the treatment window and snapshot taken at now
func (s *Service) RefreshAt(ctx context.Context, now time.Time) error {
	from := now.Add(-s.settings.TreatmentWindow())
	count := s.settings.Treatments.Count

	var (
		docs                    []models.RawDocument
		switches, temps, combos []models.Treatment
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		docs, err = s.source.GetProfiles(gctx)
		if err != nil {
			return fmt.Errorf("fetching profiles: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		// the active switch may be older than the window
		switches, err = s.source.GetTreatments(gctx, nightscout.TreatmentQuery{
			EventType: models.TreatmentEventTypes.ProfileSwitch,
			Count:     count,
		})
		if err != nil {
			return fmt.Errorf("fetching profile switches: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		temps, err = s.source.GetTreatments(gctx, nightscout.TreatmentQuery{
			EventType: models.TreatmentEventTypes.TempBasal,
			From:      from,
			Count:     count,
		})
		if err != nil {
			return fmt.Errorf("fetching temp basals: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		combos, err = s.source.GetTreatments(gctx, nightscout.TreatmentQuery{
			EventType: models.TreatmentEventTypes.ComboBolus,
			From:      from,
			Count:     count,
		})
		if err != nil {
			return fmt.Errorf("fetching combo boluses: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return err
	}

	// a partially valid fetch still loads its valid documents
	if err := s.engine.Load(docs); err != nil {
		s.logger.Warn("some profile documents were rejected", slog.Any("error", err))
	}

	treatments := make([]models.Treatment, 0, len(switches)+len(temps)+len(combos))
	treatments = append(treatments, switches...)
	treatments = append(treatments, temps...)
	treatments = append(treatments, combos...)
	if err := s.engine.UpdateFromTreatments(treatments); err != nil {
		return fmt.Errorf("updating overlays: %w", err)
	}

	snap := BuildSnapshot(s.engine, now)

	s.mu.Lock()
	s.consecutiveErrors = 0
	s.lastSuccessTime = now
	s.lastSnapshot = snap
	s.mu.Unlock()

	s.logger.Debug("refreshed",
		slog.Int("profileDocuments", len(docs)),
		slog.Int("treatments", len(treatments)),
		slog.String("activeProfile", snap.ActiveProfile),
		slog.String("effectiveBasal", snap.EffectiveBasal.String()),
	)
	return nil
}

// Snapshot returns a copy of the latest snapshot, or nil before the first
// successful refresh
func (s *Service) Snapshot() *models.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.lastSnapshot == nil {
		return nil
	}
	snap := *s.lastSnapshot
	return &snap
}

// ConsecutiveErrors returns the number of failed refreshes since the last success
func (s *Service) ConsecutiveErrors() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.consecutiveErrors
}

// BuildSnapshot resolves the therapy state of the active profile at instant
func BuildSnapshot(engine *profile.Engine, instant time.Time) *models.Snapshot {
	basal := engine.GetEffectiveBasal(instant, "")
	return &models.Snapshot{
		Time:           instant,
		ActiveProfile:  engine.ActiveProfileName(instant),
		Units:          engine.Units(instant, ""),
		BasalBase:      basal.Base,
		BasalAdjusted:  basal.Adjusted,
		BasalAdditive:  basal.Additive,
		EffectiveBasal: basal.Total,
		TempActive:     basal.TempOverride != nil,
		AdditiveActive: basal.AdditiveOverride != nil,
		Sensitivity:    engine.Sensitivity(instant, ""),
		CarbRatio:      engine.CarbRatio(instant, ""),
		TargetLow:      engine.LowTarget(instant, ""),
		TargetHigh:     engine.HighTarget(instant, ""),
	}
}
