package grid

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEvaluateSignal_SARAboveSMA(t *testing.T) {
	assert.Equal(t, SignalBuy, EvaluateSignal(true, 10, 11, false, false, false, false))
	assert.Equal(t, SignalSell, EvaluateSignal(true, 11, 10, false, false, false, false))
}

func TestEvaluateSignal_ReverseOrderNegates(t *testing.T) {
	assert.Equal(t, SignalSell, EvaluateSignal(true, 10, 11, true, false, false, false))
}

func TestEvaluateSignal_CCICrossingOverridesBaseSignal(t *testing.T) {
	assert.Equal(t, SignalSell, EvaluateSignal(true, 10, 11, false, true, true, false))
	assert.Equal(t, SignalBuy, EvaluateSignal(true, 10, 11, false, true, false, true))
}

func TestEvaluateSignal_DisabledSMAYieldsNone(t *testing.T) {
	assert.Equal(t, SignalNone, EvaluateSignal(false, 0, 0, false, false, false, false))
}
