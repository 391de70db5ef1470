package models

import "fmt"

// Settings is the full per-session configuration surface described in
// spec §6. The registration API checks it with config.ValidateSettings
// (struct tags plus Validate) before a session is created; the Engine and
// grid.Strategy do not validate it again.
type Settings struct {
	Symbol       string `validate:"required"`
	Leverage     int    `validate:"gt=0"`
	TickInterval string `validate:"required"` // Go duration string, e.g. "1s"
	Timeframe    string `validate:"required"` // e.g. "1m", "5m"

	OpenOnNewCandle bool

	Levels [4]GridLevelConfig `validate:"required,dive"`

	Multiplier float64 `validate:"gte=0"` // 0 => fixed lots
	BaseLot    float64 `validate:"gt=0"`
	MinLot     float64 `validate:"gt=0"`
	MaxLot     float64 `validate:"gt=0"`

	UseSMASAR    bool
	SMAPeriod    int `validate:"gte=0"`
	SARAf        float64
	SARMax       float64
	ReverseOrder bool

	CCIPeriod int `validate:"gte=0"` // 0 => disabled
	CCIMax    float64
	CCIMin    float64

	SingleOrderProfit float64 `validate:"gte=0"` // 0 => disabled
	PairGlobalProfit  float64 `validate:"gte=0"`
	GlobalProfit      float64 `validate:"gte=0"`
	MaxLoss           float64 `validate:"gte=0"`

	CloseOnStop bool

	// Time filter; empty means "no filter". Format HH:MM, local-to-UTC.
	StartHHMM  string
	FinishHHMM string

	WebhookURL    string
	WebhookSecret string
}

// Validate runs the structural checks from spec §6 that a struct-tag
// validator cannot express: strictly increasing level percents, lot bound
// ordering, and SAR parameter ordering. Callers should also run this
// through a github.com/go-playground/validator instance for the tag-level
// checks; see config.ValidateSettings.
func (s Settings) Validate() error {
	var errs []string

	for i := 1; i < len(s.Levels); i++ {
		if s.Levels[i].Percent <= s.Levels[i-1].Percent {
			errs = append(errs, fmt.Sprintf(
				"grid levels must have strictly increasing percent: level %d (%.4f) <= level %d (%.4f)",
				i, s.Levels[i].Percent, i-1, s.Levels[i-1].Percent))
		}
	}

	if s.MinLot > s.BaseLot {
		errs = append(errs, fmt.Sprintf("min_lot (%.8f) must be <= base_lot (%.8f)", s.MinLot, s.BaseLot))
	}
	if s.BaseLot > s.MaxLot {
		errs = append(errs, fmt.Sprintf("base_lot (%.8f) must be <= max_lot (%.8f)", s.BaseLot, s.MaxLot))
	}

	if s.UseSMASAR && s.SARAf > s.SARMax {
		errs = append(errs, fmt.Sprintf("sar_af (%.4f) must be <= sar_max (%.4f)", s.SARAf, s.SARMax))
	}

	if len(errs) > 0 {
		return &SettingsValidationError{Errors: errs}
	}
	return nil
}

// SettingsValidationError aggregates every validation failure so a caller
// can fix all of them in one registration attempt rather than one at a
// time.
type SettingsValidationError struct {
	Errors []string
}

func (e *SettingsValidationError) Error() string {
	msg := fmt.Sprintf("%d settings error(s):", len(e.Errors))
	for _, s := range e.Errors {
		msg += "\n  - " + s
	}
	return msg
}
