package domain

import (
	"fmt"
	"math"
	"strconv"

	"github.com/dustin/go-humanize"
)

// FormatValue renders value for display according to the unit's category.
// A nil unit renders the shortest decimal form.
func FormatValue(unit *Unit, value float64) string {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return strconv.FormatFloat(value, 'f', -1, 64)
	}
	if unit == nil {
		return strconv.FormatFloat(value, 'f', -1, 64)
	}
	switch unit.Category {
	case UnitCategoryPercentage:
		return fmt.Sprintf("%.2f%%", value)
	case UnitCategoryCount:
		return humanize.Comma(int64(math.Round(value)))
	case UnitCategoryStatus:
		if value == 1 {
			return "Yes"
		}
		return "No"
	case UnitCategoryCurrency:
		return unit.Symbol + humanize.FormatFloat("#,###.##", value)
	default:
		return strconv.FormatFloat(value, 'f', -1, 64)
	}
}

// ThresholdStatus classifies value against the metric's thresholds. Green at
// or above red means higher is better, otherwise lower is better.
func ThresholdStatus(metric MetricDefinition, value float64) string {
	if !metric.HasThresholds() {
		return StatusNone
	}
	green, yellow := *metric.ThresholdGreen, *metric.ThresholdYellow
	if green >= *metric.ThresholdRed {
		switch {
		case value >= green:
			return StatusGreen
		case value >= yellow:
			return StatusYellow
		default:
			return StatusRed
		}
	}
	switch {
	case value <= green:
		return StatusGreen
	case value <= yellow:
		return StatusYellow
	default:
		return StatusRed
	}
}

// MonotonicThresholds reports whether g >= y >= r or g <= y <= r.
func MonotonicThresholds(green, yellow, red float64) bool {
	return (green >= yellow && yellow >= red) || (green <= yellow && yellow <= red)
}
