// Package notifications reports changes in the resolved therapy state
package notifications

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/mrcode/nightscout-profiles/internal/models"
)

// Alert type constants
const (
	alertProfileSwitched = "profile_switched"
	alertBasalChanged    = "basal_changed"
	alertBasalMissing    = "basal_missing"
)

// Notifier delivers a notification
type Notifier interface {
	Notify(title, message string) error
}

// LogNotifier writes notifications to a logger
type LogNotifier struct {
	Logger *slog.Logger
}

func (n LogNotifier) Notify(title, message string) error {
	logger := n.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info(title, "message", message)
	return nil
}

// Manager compares successive snapshots and notifies on changes
type Manager struct {
	notifier Notifier
	repeat   time.Duration
	now      func() time.Time

	mu        sync.Mutex
	last      *models.Snapshot
	lastAlert map[string]map[string]time.Time // alert type -> message -> sent at
}

// NewManager creates a new notification manager. An identical alert is not
// repeated within the repeat window; a zero window never repeats it.
func NewManager(notifier Notifier, repeat time.Duration) *Manager {
	return &Manager{
		notifier:  notifier,
		repeat:    repeat,
		now:       time.Now,
		lastAlert: make(map[string]map[string]time.Time),
	}
}

// CheckAndNotify compares snap with the previous snapshot and sends a
// notification for every change. The first snapshot only sets the baseline.
// Stale snapshots are ignored.
func (m *Manager) CheckAndNotify(snap *models.Snapshot) error {
	if snap == nil || snap.IsStale {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	prev := m.last
	current := *snap
	m.last = &current
	if prev == nil {
		return nil
	}

	var firstErr error
	for _, alertType := range m.changes(prev, snap) {
		title, message := m.formatNotification(prev, snap, alertType)
		if m.suppressed(alertType, message) {
			continue
		}
		if err := m.notifier.Notify(title, message); err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("sending %s: %w", alertType, err)
			}
			continue
		}
		if m.lastAlert[alertType] == nil {
			m.lastAlert[alertType] = make(map[string]time.Time)
		}
		m.lastAlert[alertType][message] = m.now()
	}
	return firstErr
}

// changes lists the alert types raised between prev and next
func (m *Manager) changes(prev, next *models.Snapshot) []string {
	var out []string
	if prev.ActiveProfile != next.ActiveProfile {
		out = append(out, alertProfileSwitched)
	}
	switch {
	case !next.EffectiveBasal.Valid && prev.EffectiveBasal.Valid:
		out = append(out, alertBasalMissing)
	case next.EffectiveBasal.Valid && !next.EffectiveBasal.Equal(prev.EffectiveBasal):
		out = append(out, alertBasalChanged)
	}
	return out
}

func (m *Manager) suppressed(alertType, message string) bool {
	at, ok := m.lastAlert[alertType][message]
	if !ok {
		return false
	}
	if m.repeat <= 0 {
		return true
	}
	return m.now().Sub(at) < m.repeat
}

// formatNotification creates the notification title and message
func (m *Manager) formatNotification(prev, next *models.Snapshot, alertType string) (string, string) {
	var title, message string

	switch alertType {
	case alertProfileSwitched:
		title = "Profile switched"
		message = fmt.Sprintf("Active profile is now %q (was %q)", next.ActiveProfile, prev.ActiveProfile)
	case alertBasalChanged:
		title = "Basal rate changed"
		message = fmt.Sprintf("Effective basal %s U/h (was %s U/h)", next.EffectiveBasal, prev.EffectiveBasal)
		if next.TempActive {
			message += ", temp basal running"
		}
	case alertBasalMissing:
		title = "Basal rate unavailable"
		message = fmt.Sprintf("No basal rate resolves for profile %q", next.ActiveProfile)
	}

	return title, message
}

// ClearAlertState clears the alert state for a specific type or all types
func (m *Manager) ClearAlertState(alertType string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if alertType == "" {
		m.lastAlert = make(map[string]map[string]time.Time)
	} else {
		delete(m.lastAlert, alertType)
	}
}

// SendTestNotification sends a test notification
func (m *Manager) SendTestNotification() error {
	return m.notifier.Notify("Nightscout Profiles", "Test notification - alerts are working!")
}
