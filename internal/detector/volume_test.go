package detector

import (
	"io"
	"log/slog"
	"math"
	"testing"
	"time"

	"github.com/pmradar/pmradar/internal/config"
	"github.com/pmradar/pmradar/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testDetectorConfig() config.DetectorConfig {
	return config.Defaults().Detector
}

// market builds a snapshot with parallel price/volume history series.
func market(id string, yesPrice, volume float64, prices, volumes []float64) domain.MarketSnapshot {
	if len(prices) != len(volumes) {
		panic("prices and volumes must align")
	}
	history := make([]domain.PricePoint, len(prices))
	base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	for i := range prices {
		history[i] = domain.PricePoint{
			Price:     prices[i],
			Volume:    volumes[i],
			Timestamp: base.Add(time.Duration(i) * 15 * time.Minute),
		}
	}
	return domain.MarketSnapshot{
		Venue:    domain.VenuePolymarket,
		MarketID: id,
		Title:    "Test market " + id,
		YesPrice: yesPrice,
		Volume:   volume,
		History:  history,
	}
}

func byType(patterns []domain.Pattern, typ domain.PatternType) []domain.Pattern {
	var out []domain.Pattern
	for _, p := range patterns {
		if p.Type == typ {
			out = append(out, p)
		}
	}
	return out
}

func TestVolumeSpike(t *testing.T) {
	d := NewVolumeDetector(testDetectorConfig(), testLogger())
	flat := []float64{0.5, 0.5, 0.5, 0.5, 0.5}
	vols := []float64{100, 100, 100, 100, 100}

	tests := []struct {
		name   string
		volume float64
		want   bool
	}{
		{name: "just above multiplier fires", volume: 301, want: true},
		{name: "just below multiplier silent", volume: 299, want: false},
		{name: "exactly at multiplier fires", volume: 300, want: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := byType(d.DetectBatch([]domain.MarketSnapshot{
				market("m1", 0.5, tt.volume, flat, vols),
			}), domain.PatternVolumeSpike)
			if (len(got) == 1) != tt.want {
				t.Fatalf("spike fired=%v, want %v", len(got) == 1, tt.want)
			}
		})
	}
}

func TestVolumeSpikeScoresAndEvidence(t *testing.T) {
	d := NewVolumeDetector(testDetectorConfig(), testLogger())
	m := market("m1", 0.5, 301,
		[]float64{0.5, 0.5, 0.5, 0.5, 0.5},
		[]float64{100, 100, 100, 100, 100})

	got := byType(d.DetectBatch([]domain.MarketSnapshot{m}), domain.PatternVolumeSpike)
	if len(got) != 1 {
		t.Fatalf("got %d spikes, want 1", len(got))
	}
	p := got[0]
	if math.Abs(p.Confidence-50.1) > 1e-9 {
		t.Fatalf("confidence = %v, want 50.1", p.Confidence)
	}
	if math.Abs(p.ProfitPotential-55.05) > 1e-9 {
		t.Fatalf("profit = %v, want 55.05", p.ProfitPotential)
	}
	if p.TimeSensitivity != 4 || p.RiskLevel != 3 {
		t.Fatalf("ts/risk = %d/%d", p.TimeSensitivity, p.RiskLevel)
	}
	if math.Abs(p.Evidence["ratio"]-3.01) > 1e-9 {
		t.Fatalf("ratio evidence = %v", p.Evidence["ratio"])
	}
}

func TestVolumeSpikeConcurrentMoveBoost(t *testing.T) {
	d := NewVolumeDetector(testDetectorConfig(), testLogger())
	still := market("m1", 0.50, 400,
		[]float64{0.5, 0.5, 0.5, 0.5, 0.5},
		[]float64{100, 100, 100, 100, 100})
	moving := market("m2", 0.55, 400,
		[]float64{0.5, 0.5, 0.5, 0.5, 0.5},
		[]float64{100, 100, 100, 100, 100})

	base := byType(d.DetectBatch([]domain.MarketSnapshot{still}), domain.PatternVolumeSpike)
	boosted := byType(d.DetectBatch([]domain.MarketSnapshot{moving}), domain.PatternVolumeSpike)
	if len(base) != 1 || len(boosted) != 1 {
		t.Fatalf("expected both to fire: %d, %d", len(base), len(boosted))
	}
	if boosted[0].Confidence != base[0].Confidence+10 {
		t.Fatalf("confidence boost missing: %v vs %v", boosted[0].Confidence, base[0].Confidence)
	}
	if boosted[0].ProfitPotential != base[0].ProfitPotential+10 {
		t.Fatalf("profit boost missing: %v vs %v", boosted[0].ProfitPotential, base[0].ProfitPotential)
	}
}

func TestVolumeSpikeInsufficientHistory(t *testing.T) {
	d := NewVolumeDetector(testDetectorConfig(), testLogger())
	m := market("m1", 0.5, 1000,
		[]float64{0.5, 0.5, 0.5},
		[]float64{100, 100, 100})
	if got := d.DetectBatch([]domain.MarketSnapshot{m}); len(got) != 0 {
		t.Fatalf("got %d patterns on short history, want 0", len(got))
	}
}

func TestVolumeDivergence(t *testing.T) {
	d := NewVolumeDetector(testDetectorConfig(), testLogger())
	m := market("m1", 0.5, 120,
		[]float64{0.50, 0.50, 0.50, 0.50, 0.50},
		[]float64{100, 110, 120, 130, 140})

	got := byType(d.DetectBatch([]domain.MarketSnapshot{m}), domain.PatternVolumeDivergence)
	if len(got) != 1 {
		t.Fatalf("got %d divergences, want 1", len(got))
	}
	p := got[0]
	if math.Abs(p.Confidence-70) > 1e-9 {
		t.Fatalf("confidence = %v, want 70", p.Confidence)
	}
	if p.ProfitPotential != 60 {
		t.Fatalf("profit = %v, want 60", p.ProfitPotential)
	}
	if math.Abs(p.Evidence["volume_change"]-0.4) > 1e-9 {
		t.Fatalf("volume change = %v", p.Evidence["volume_change"])
	}
}

func TestVolumeDivergenceSilentWhenPriceMoves(t *testing.T) {
	d := NewVolumeDetector(testDetectorConfig(), testLogger())
	m := market("m1", 0.6, 120,
		[]float64{0.50, 0.52, 0.55, 0.58, 0.60},
		[]float64{100, 110, 120, 130, 140})
	if got := byType(d.DetectBatch([]domain.MarketSnapshot{m}), domain.PatternVolumeDivergence); len(got) != 0 {
		t.Fatalf("divergence should not fire when price follows volume")
	}
}

func TestUnusualFlow(t *testing.T) {
	d := NewVolumeDetector(testDetectorConfig(), testLogger())
	m := market("m1", 0.65, 100,
		[]float64{0.50, 0.50, 0.50, 0.60, 0.60, 0.60},
		[]float64{10, 10, 10, 100, 100, 100})

	got := byType(d.DetectBatch([]domain.MarketSnapshot{m}), domain.PatternUnusualFlow)
	if len(got) != 1 {
		t.Fatalf("got %d flow patterns, want 1", len(got))
	}
	p := got[0]
	accel := p.Evidence["acceleration"]
	if math.Abs(accel-100.0/55.0) > 1e-9 {
		t.Fatalf("acceleration = %v, want %v", accel, 100.0/55.0)
	}
	if p.ProfitPotential != 55 || p.TimeSensitivity != 3 {
		t.Fatalf("profit/ts = %v/%d", p.ProfitPotential, p.TimeSensitivity)
	}
}

func TestUnusualFlowSilentOnSteadyVolume(t *testing.T) {
	d := NewVolumeDetector(testDetectorConfig(), testLogger())
	m := market("m1", 0.5, 100,
		[]float64{0.5, 0.5, 0.5, 0.5, 0.5, 0.5},
		[]float64{100, 100, 100, 100, 100, 100})
	if got := byType(d.DetectBatch([]domain.MarketSnapshot{m}), domain.PatternUnusualFlow); len(got) != 0 {
		t.Fatal("flow should not fire on steady volume")
	}
}

func TestDedupKeepsFirst(t *testing.T) {
	a := domain.Pattern{Type: domain.PatternVolumeSpike, MarketID: "m1", Confidence: 80}
	b := domain.Pattern{Type: domain.PatternVolumeSpike, MarketID: "m1", Confidence: 60}
	c := domain.Pattern{Type: domain.PatternUnusualFlow, MarketID: "m1", Confidence: 50}

	got := Dedup([]domain.Pattern{a, b, c})
	if len(got) != 2 {
		t.Fatalf("got %d patterns, want 2", len(got))
	}
	if got[0].Confidence != 80 {
		t.Fatalf("dedup kept the wrong duplicate: %+v", got[0])
	}
}
