package notifications

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/mrcode/nightscout-profiles/internal/models"
)

type recordingNotifier struct {
	titles   []string
	messages []string
	err      error
}

func (r *recordingNotifier) Notify(title, message string) error {
	if r.err != nil {
		return r.err
	}
	r.titles = append(r.titles, title)
	r.messages = append(r.messages, message)
	return nil
}

func snapshot(profile string, basal models.Value) *models.Snapshot {
	return &models.Snapshot{ActiveProfile: profile, EffectiveBasal: basal}
}

func newTestManager(repeat time.Duration) (*Manager, *recordingNotifier, *time.Time) {
	rec := &recordingNotifier{}
	m := NewManager(rec, repeat)
	clock := time.Date(2024, 3, 10, 10, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return clock }
	return m, rec, &clock
}

func TestManager_FirstSnapshotIsBaseline(t *testing.T) {
	m, rec, _ := newTestManager(15 * time.Minute)

	if err := m.CheckAndNotify(snapshot("Default", models.Some(0.8))); err != nil {
		t.Fatalf("CheckAndNotify() error = %v", err)
	}
	if len(rec.titles) != 0 {
		t.Errorf("first snapshot sent %d notifications, want 0", len(rec.titles))
	}
}

func TestManager_changes(t *testing.T) {
	m, _, _ := newTestManager(0)

	tests := []struct {
		name     string
		prev     *models.Snapshot
		next     *models.Snapshot
		expected []string
	}{
		{"Unchanged", snapshot("Default", models.Some(0.8)), snapshot("Default", models.Some(0.8)), nil},
		{"Basal changed", snapshot("Default", models.Some(0.8)), snapshot("Default", models.Some(0)), []string{alertBasalChanged}},
		{"Basal appeared", snapshot("Default", models.Missing), snapshot("Default", models.Some(0.5)), []string{alertBasalChanged}},
		{"Basal lost", snapshot("Default", models.Some(0.8)), snapshot("Default", models.Missing), []string{alertBasalMissing}},
		{"Still missing", snapshot("Default", models.Missing), snapshot("Default", models.Missing), nil},
		{"Switch and basal", snapshot("Default", models.Some(0.8)), snapshot("Exercise", models.Some(0.3)), []string{alertProfileSwitched, alertBasalChanged}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := m.changes(tt.prev, tt.next)
			if strings.Join(result, ",") != strings.Join(tt.expected, ",") {
				t.Errorf("changes() = %v, want %v", result, tt.expected)
			}
		})
	}
}

func TestManager_CheckAndNotify(t *testing.T) {
	m, rec, _ := newTestManager(15 * time.Minute)

	_ = m.CheckAndNotify(snapshot("Default", models.Some(0.8)))
	if err := m.CheckAndNotify(snapshot("Exercise", models.Some(0.3))); err != nil {
		t.Fatalf("CheckAndNotify() error = %v", err)
	}

	if len(rec.titles) != 2 {
		t.Fatalf("sent %d notifications, want 2", len(rec.titles))
	}
	if rec.titles[0] != "Profile switched" {
		t.Errorf("title = %s, want Profile switched", rec.titles[0])
	}
	if !strings.Contains(rec.messages[1], "0.3 U/h") || !strings.Contains(rec.messages[1], "was 0.8 U/h") {
		t.Errorf("unexpected basal message: %s", rec.messages[1])
	}
}

func TestManager_RepeatSuppression(t *testing.T) {
	m, rec, clock := newTestManager(15 * time.Minute)

	_ = m.CheckAndNotify(snapshot("Default", models.Some(0.8)))
	_ = m.CheckAndNotify(snapshot("Default", models.Some(0)))
	_ = m.CheckAndNotify(snapshot("Default", models.Some(0.8)))
	// same transition as the first alert, inside the window
	_ = m.CheckAndNotify(snapshot("Default", models.Some(0)))
	if len(rec.titles) != 2 {
		t.Fatalf("sent %d notifications, want 2", len(rec.titles))
	}

	*clock = clock.Add(20 * time.Minute)
	_ = m.CheckAndNotify(snapshot("Default", models.Some(0.8)))
	if len(rec.titles) != 3 {
		t.Errorf("sent %d notifications after the window, want 3", len(rec.titles))
	}
}

func TestManager_NoRepeatWindow(t *testing.T) {
	m, rec, clock := newTestManager(0)

	_ = m.CheckAndNotify(snapshot("Default", models.Some(0.8)))
	_ = m.CheckAndNotify(snapshot("Default", models.Missing))
	_ = m.CheckAndNotify(snapshot("Default", models.Some(0.8)))

	*clock = clock.Add(24 * time.Hour)
	_ = m.CheckAndNotify(snapshot("Default", models.Missing))

	missing := 0
	for _, title := range rec.titles {
		if title == "Basal rate unavailable" {
			missing++
		}
	}
	if missing != 1 {
		t.Errorf("basal missing sent %d times, want 1", missing)
	}
}

func TestManager_StaleSnapshotsIgnored(t *testing.T) {
	m, rec, _ := newTestManager(0)

	_ = m.CheckAndNotify(snapshot("Default", models.Some(0.8)))
	stale := snapshot("Exercise", models.Some(0.3))
	stale.IsStale = true
	_ = m.CheckAndNotify(stale)

	if len(rec.titles) != 0 {
		t.Errorf("stale snapshot sent %d notifications", len(rec.titles))
	}
}

func TestManager_NotifierError(t *testing.T) {
	m, rec, _ := newTestManager(0)
	rec.err = errors.New("bus unavailable")

	_ = m.CheckAndNotify(snapshot("Default", models.Some(0.8)))
	err := m.CheckAndNotify(snapshot("Default", models.Some(1.0)))
	if err == nil || !strings.Contains(err.Error(), "bus unavailable") {
		t.Errorf("CheckAndNotify() error = %v, want notifier error", err)
	}

	// a failed alert is retried on the next change
	rec.err = nil
	_ = m.CheckAndNotify(snapshot("Default", models.Some(0.8)))
	_ = m.CheckAndNotify(snapshot("Default", models.Some(1.0)))
	if len(rec.titles) != 2 {
		t.Errorf("sent %d notifications, want 2", len(rec.titles))
	}
}

func TestManager_ClearAlertState(t *testing.T) {
	m, _, _ := newTestManager(0)

	m.lastAlert[alertBasalChanged] = map[string]time.Time{"a": time.Now()}
	m.lastAlert[alertProfileSwitched] = map[string]time.Time{"b": time.Now()}

	m.ClearAlertState(alertBasalChanged)
	if _, ok := m.lastAlert[alertBasalChanged]; ok {
		t.Error("basal alert should be cleared")
	}
	if _, ok := m.lastAlert[alertProfileSwitched]; !ok {
		t.Error("profile alert should still exist")
	}

	m.ClearAlertState("")
	if len(m.lastAlert) != 0 {
		t.Error("All alerts should be cleared")
	}
}

func TestManager_SendTestNotification(t *testing.T) {
	m, rec, _ := newTestManager(0)

	if err := m.SendTestNotification(); err != nil {
		t.Fatalf("SendTestNotification() error = %v", err)
	}
	if len(rec.titles) != 1 {
		t.Errorf("sent %d notifications, want 1", len(rec.titles))
	}
}

func TestLogNotifier(t *testing.T) {
	if err := (LogNotifier{}).Notify("title", "message"); err != nil {
		t.Errorf("Notify() error = %v", err)
	}
}
