package alerting

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/pmradar/pmradar/internal/cache/memory"
	"github.com/pmradar/pmradar/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func fixedNow() time.Time {
	return time.Date(2026, 8, 15, 12, 0, 0, 0, time.UTC)
}

func newTestGenerator(cfg Config, notifier Notifier) (*Generator, *memory.AlertCache) {
	cache := memory.NewAlertCache()
	g := New(cfg, memory.NewCounterCache(), cache, notifier, testLogger())
	g.now = fixedNow
	return g, cache
}

func scored(id string, score float64) domain.Pattern {
	return domain.Pattern{
		ID:              "pat-" + id,
		Type:            domain.PatternVolumeSpike,
		Venue:           domain.VenuePolymarket,
		MarketID:        id,
		Title:           "Market " + id,
		Description:     "description " + id,
		SuggestedAction: "action " + id,
		Score:           score,
	}
}

func TestProcessTierAssignment(t *testing.T) {
	cfg := Config{
		Tiers: map[domain.Tier]domain.TierPolicy{
			domain.TierPro:   {MinScore: 30, MaxPerDay: 10},
			domain.TierBasic: {MinScore: 70, MaxPerDay: 10},
		},
		RecentGlobal:  50,
		RecentPerTier: 20,
	}
	g, _ := newTestGenerator(cfg, nil)

	alerts := g.Process(context.Background(), []domain.Pattern{
		scored("m1", 80),
		scored("m2", 50),
		scored("m3", 10),
	})

	// m1 reaches pro and basic, m2 only pro, m3 neither.
	if len(alerts) != 3 {
		t.Fatalf("got %d alerts, want 3", len(alerts))
	}
	type key struct {
		market string
		tier   domain.Tier
	}
	seen := make(map[key]bool)
	for _, a := range alerts {
		seen[key{a.MarketID, a.Tier}] = true
	}
	for _, want := range []key{
		{"m1", domain.TierPro},
		{"m1", domain.TierBasic},
		{"m2", domain.TierPro},
	} {
		if !seen[want] {
			t.Fatalf("missing alert %v; got %v", want, alerts)
		}
	}
}

func TestProcessDailyBudget(t *testing.T) {
	cfg := Config{
		Tiers: map[domain.Tier]domain.TierPolicy{
			domain.TierBasic: {MinScore: 70, MaxPerDay: 1},
		},
		RecentGlobal:  50,
		RecentPerTier: 20,
	}
	g, _ := newTestGenerator(cfg, nil)

	alerts := g.Process(context.Background(), []domain.Pattern{
		scored("m1", 90),
		scored("m2", 80),
	})
	if len(alerts) != 1 {
		t.Fatalf("got %d alerts, want 1 after budget", len(alerts))
	}
	if alerts[0].MarketID != "m1" {
		t.Fatalf("budget should go to the highest ranked, got %s", alerts[0].MarketID)
	}

	// The budget persists across runs within the same day.
	more := g.Process(context.Background(), []domain.Pattern{scored("m3", 85)})
	if len(more) != 0 {
		t.Fatalf("got %d alerts on the second run, want 0", len(more))
	}
}

func TestProcessAlertFields(t *testing.T) {
	cfg := Config{
		Tiers: map[domain.Tier]domain.TierPolicy{
			domain.TierBasic: {MinScore: 70, MaxPerDay: 5},
		},
		RecentGlobal:  50,
		RecentPerTier: 20,
	}
	g, cache := newTestGenerator(cfg, nil)

	p := scored("m1", 80)
	alerts := g.Process(context.Background(), []domain.Pattern{p})
	if len(alerts) != 1 {
		t.Fatalf("got %d alerts, want 1", len(alerts))
	}
	a := alerts[0]
	if a.ID == "" {
		t.Fatal("alert ID not assigned")
	}
	if a.Title != "Volume spike: Market m1" {
		t.Fatalf("title = %q", a.Title)
	}
	if a.Message != p.Description || a.Action != p.SuggestedAction {
		t.Fatalf("message/action not carried over: %+v", a)
	}
	if a.PatternID != p.ID || a.PatternType != p.Type || a.Score != p.Score {
		t.Fatalf("pattern linkage wrong: %+v", a)
	}
	if !a.CreatedAt.Equal(fixedNow()) {
		t.Fatalf("created at = %v", a.CreatedAt)
	}

	recent, err := cache.Recent(context.Background(), 10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(recent) != 1 || recent[0].ID != a.ID {
		t.Fatalf("global ring = %v", recent)
	}
	tiered, err := cache.RecentByTier(context.Background(), domain.TierBasic, 10)
	if err != nil {
		t.Fatalf("RecentByTier: %v", err)
	}
	if len(tiered) != 1 || tiered[0].ID != a.ID {
		t.Fatalf("tier ring = %v", tiered)
	}
}

func TestCounterKeyUsesUTCDate(t *testing.T) {
	day := time.Date(2026, 8, 15, 23, 30, 0, 0, time.FixedZone("EST", -5*3600))
	got := counterKey(domain.TierPremium, day)
	if got != "radar:alerts:premium:2026-08-16" {
		t.Fatalf("counterKey = %q", got)
	}
}

type recordingNotifier struct {
	alerts []domain.Alert
	err    error
}

func (n *recordingNotifier) AlertRaised(_ context.Context, alert domain.Alert) error {
	n.alerts = append(n.alerts, alert)
	return n.err
}

func TestNotifyTopProOnly(t *testing.T) {
	notifier := &recordingNotifier{}
	cfg := Config{
		Tiers: map[domain.Tier]domain.TierPolicy{
			domain.TierPro:   {MinScore: 30, MaxPerDay: 10},
			domain.TierBasic: {MinScore: 70, MaxPerDay: 10},
		},
		RecentGlobal:   50,
		RecentPerTier:  20,
		NotifyMinScore: 75,
	}
	g, _ := newTestGenerator(cfg, notifier)

	g.Process(context.Background(), []domain.Pattern{
		scored("m1", 80), // pro + basic, above notify threshold
		scored("m2", 50), // pro only, below notify threshold
	})

	if len(notifier.alerts) != 1 {
		t.Fatalf("got %d notifications, want 1", len(notifier.alerts))
	}
	got := notifier.alerts[0]
	if got.Tier != domain.TierPro {
		t.Fatalf("tier = %q", got.Tier)
	}
	if got.MarketID != "m1" {
		t.Fatalf("market = %q", got.MarketID)
	}
	if !strings.Contains(got.Title, "Market m1") {
		t.Fatalf("title = %q", got.Title)
	}
}

func TestNotifyFailureIgnored(t *testing.T) {
	notifier := &recordingNotifier{err: errors.New("telegram down")}
	cfg := Config{
		Tiers: map[domain.Tier]domain.TierPolicy{
			domain.TierPro: {MinScore: 30, MaxPerDay: 10},
		},
		RecentGlobal:  50,
		RecentPerTier: 20,
	}
	g, _ := newTestGenerator(cfg, notifier)

	alerts := g.Process(context.Background(), []domain.Pattern{scored("m1", 80)})
	if len(alerts) != 1 {
		t.Fatalf("notifier failure must not drop alerts, got %d", len(alerts))
	}
}

type failingCounter struct{}

func (failingCounter) IncrWithExpiry(context.Context, string, time.Duration) (int64, error) {
	return 0, errors.New("redis unavailable")
}

func TestCounterErrorSkipsTier(t *testing.T) {
	cfg := Config{
		Tiers: map[domain.Tier]domain.TierPolicy{
			domain.TierBasic: {MinScore: 70, MaxPerDay: 5},
		},
		RecentGlobal:  50,
		RecentPerTier: 20,
	}
	g := New(cfg, failingCounter{}, memory.NewAlertCache(), nil, testLogger())
	g.now = fixedNow

	alerts := g.Process(context.Background(), []domain.Pattern{scored("m1", 90)})
	if len(alerts) != 0 {
		t.Fatalf("got %d alerts with a failing counter, want 0", len(alerts))
	}
}
