package detector

import (
	"math"
	"testing"

	"github.com/pmradar/pmradar/internal/domain"
)

func TestRapidChange(t *testing.T) {
	d := NewPriceDetector(testDetectorConfig(), testLogger())
	flat := []float64{0.5, 0.5, 0.5, 0.5}
	vols := []float64{100, 100, 100, 100}

	tests := []struct {
		name     string
		yesPrice float64
		want     bool
		wantConf float64
		wantRisk int
	}{
		{name: "12 percent move fires", yesPrice: 0.56, want: true, wantConf: 72, wantRisk: 3},
		{name: "8 percent move silent", yesPrice: 0.54, want: false},
		{name: "22 percent move raises risk", yesPrice: 0.61, want: true, wantConf: 82, wantRisk: 4},
		{name: "downward move fires", yesPrice: 0.44, want: true, wantConf: 72, wantRisk: 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := byType(d.DetectBatch([]domain.MarketSnapshot{
				market("m1", tt.yesPrice, 100, flat, vols),
			}), domain.PatternRapidPriceChange)
			if (len(got) == 1) != tt.want {
				t.Fatalf("fired=%v, want %v", len(got) == 1, tt.want)
			}
			if !tt.want {
				return
			}
			p := got[0]
			if math.Abs(p.Confidence-tt.wantConf) > 1e-6 {
				t.Fatalf("confidence = %v, want %v", p.Confidence, tt.wantConf)
			}
			if p.RiskLevel != tt.wantRisk || p.TimeSensitivity != 5 {
				t.Fatalf("risk/ts = %d/%d, want %d/5", p.RiskLevel, p.TimeSensitivity, tt.wantRisk)
			}
		})
	}
}

func TestTrendReversal(t *testing.T) {
	d := NewPriceDetector(testDetectorConfig(), testLogger())
	vols := []float64{100, 100, 100, 100, 100, 100, 100, 100}

	t.Run("up then down fires", func(t *testing.T) {
		prices := []float64{0.50, 0.52, 0.54, 0.56, 0.56, 0.54, 0.52, 0.50}
		got := byType(d.DetectBatch([]domain.MarketSnapshot{
			market("m1", 0.50, 100, prices, vols),
		}), domain.PatternTrendReversal)
		if len(got) != 1 {
			t.Fatalf("got %d reversals, want 1", len(got))
		}
		p := got[0]
		// first half +12%, second half -10.7%
		if p.Evidence["first_half_trend"] <= 0 || p.Evidence["second_half_trend"] >= 0 {
			t.Fatalf("trend signs wrong: %+v", p.Evidence)
		}
		combined := 0.06/0.50 + 0.06/0.56
		if math.Abs(p.Confidence-(50+combined*100)) > 1e-6 {
			t.Fatalf("confidence = %v", p.Confidence)
		}
	})

	t.Run("monotonic trend silent", func(t *testing.T) {
		prices := []float64{0.40, 0.44, 0.48, 0.52, 0.56, 0.60, 0.64, 0.68}
		got := byType(d.DetectBatch([]domain.MarketSnapshot{
			market("m1", 0.68, 100, prices, vols),
		}), domain.PatternTrendReversal)
		if len(got) != 0 {
			t.Fatal("reversal should not fire on a one-way trend")
		}
	})

	t.Run("weak swing silent", func(t *testing.T) {
		prices := []float64{0.50, 0.51, 0.52, 0.53, 0.53, 0.52, 0.51, 0.50}
		got := byType(d.DetectBatch([]domain.MarketSnapshot{
			market("m1", 0.50, 100, prices, vols),
		}), domain.PatternTrendReversal)
		if len(got) != 0 {
			t.Fatal("reversal should not fire below the swing threshold")
		}
	})
}

func TestResistanceBreak(t *testing.T) {
	d := NewPriceDetector(testDetectorConfig(), testLogger())
	prices := []float64{0.50, 0.50, 0.50, 0.50, 0.50, 0.60, 0.60, 0.60, 0.40, 0.45}
	vols := []float64{100, 100, 100, 100, 100, 100, 100, 100, 100, 100}

	t.Run("clears the level with margin", func(t *testing.T) {
		got := byType(d.DetectBatch([]domain.MarketSnapshot{
			market("m1", 0.52, 100, prices, vols),
		}), domain.PatternResistanceBreak)
		if len(got) != 1 {
			t.Fatalf("got %d breaks, want 1", len(got))
		}
		p := got[0]
		if math.Abs(p.Evidence["resistance"]-0.505) > 1e-6 {
			t.Fatalf("resistance = %v, want 0.505", p.Evidence["resistance"])
		}
		if p.Confidence != 70 || p.RiskLevel != 3 {
			t.Fatalf("conf/risk = %v/%d", p.Confidence, p.RiskLevel)
		}
	})

	t.Run("inside the margin silent", func(t *testing.T) {
		got := byType(d.DetectBatch([]domain.MarketSnapshot{
			market("m1", 0.51, 100, prices, vols),
		}), domain.PatternResistanceBreak)
		if len(got) != 0 {
			t.Fatal("break should not fire inside the margin")
		}
	})
}

func TestSupportBreak(t *testing.T) {
	d := NewPriceDetector(testDetectorConfig(), testLogger())
	prices := []float64{0.60, 0.60, 0.60, 0.60, 0.60, 0.70, 0.70, 0.70, 0.80, 0.65}
	vols := []float64{100, 100, 100, 100, 100, 100, 100, 100, 100, 100}

	got := byType(d.DetectBatch([]domain.MarketSnapshot{
		market("m1", 0.55, 100, prices, vols),
	}), domain.PatternSupportBreak)
	if len(got) != 1 {
		t.Fatalf("got %d breaks, want 1", len(got))
	}
	p := got[0]
	if math.Abs(p.Evidence["support"]-0.605) > 1e-6 {
		t.Fatalf("support = %v, want 0.605", p.Evidence["support"])
	}
	if p.RiskLevel != 4 {
		t.Fatalf("risk = %d, want 4", p.RiskLevel)
	}
}

func TestLevelBreaksFlatHistory(t *testing.T) {
	d := NewPriceDetector(testDetectorConfig(), testLogger())
	prices := []float64{0.5, 0.5, 0.5, 0.5, 0.5, 0.5, 0.5, 0.5, 0.5, 0.5}
	vols := []float64{100, 100, 100, 100, 100, 100, 100, 100, 100, 100}

	got := d.DetectBatch([]domain.MarketSnapshot{market("m1", 0.9, 100, prices, vols)})
	for _, p := range got {
		if p.Type == domain.PatternSupportBreak || p.Type == domain.PatternResistanceBreak {
			t.Fatalf("flat history should define no levels, got %s", p.Type)
		}
	}
}
