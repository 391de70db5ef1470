package indicators

import (
	"testing"

	"github.com/gridforge/hedgeengine/internal/models"
)

func TestCCI_InsufficientHistory(t *testing.T) {
	if got := CCI(nil, 5); got != 0 {
		t.Errorf("expected 0, got %f", got)
	}
}

func TestCCI_ZeroMeanDeviationYieldsZero(t *testing.T) {
	candles := make([]models.Candle, 3)
	for i := range candles {
		candles[i] = candle(10, 10, 10)
	}
	if got := CCI(candles, 3); got != 0 {
		t.Errorf("expected 0 for flat candles, got %f", got)
	}
}

func TestCrossedAboveAndBelow(t *testing.T) {
	history := []float64{90, 105}
	if !CrossedAbove(history, 100) {
		t.Errorf("expected crossed above 100")
	}
	if CrossedBelow(history, 100) {
		t.Errorf("did not expect crossed below 100")
	}

	history = []float64{105, 90}
	if !CrossedBelow(history, 100) {
		t.Errorf("expected crossed below 100")
	}
	if CrossedAbove(history, 100) {
		t.Errorf("did not expect crossed above 100")
	}
}

func TestPushCCI_TruncatesAtMax(t *testing.T) {
	var history []float64
	for i := 0; i < maxCCIHistory+10; i++ {
		history = PushCCI(history, float64(i))
	}
	if len(history) != maxCCIHistory {
		t.Fatalf("expected history bounded to %d, got %d", maxCCIHistory, len(history))
	}
	if history[len(history)-1] != float64(maxCCIHistory+9) {
		t.Errorf("expected most recent value retained, got %f", history[len(history)-1])
	}
}
