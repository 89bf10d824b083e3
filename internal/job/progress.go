package job

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Progress is the structured view of a raw engine progress message plus the
// string the dashboard shows.
type Progress struct {
	FuelType       string `json:"fuel_type,omitempty"`
	CurrentStep    int    `json:"current_step,omitempty"`
	TotalSteps     int    `json:"total_steps,omitempty"`
	DispenserIndex int    `json:"dispenser_index,omitempty"`
	DispenserTotal int    `json:"dispenser_total,omitempty"`
	Display        string `json:"display"`
}

var (
	fuelTypeRe  = regexp.MustCompile(`(?i)processing fuel type:\s*(.+?)\s*\((\d+)\s*/\s*(\d+)\)`)
	dispenserRe = regexp.MustCompile(`(?i)dispenser\s*#?(\d+)\s*(?:/\s*(\d+))?`)
)

// NormalizeProgress turns a raw engine progress message into a Progress.
// targetURL and dispenserCount come from the job record: the URL is used to
// recognize completion text that quotes it, and dispenserCount fills in a
// dispenser total the text omits.
//
// Idempotent: feeding a produced Display back in yields the same Display.
func NormalizeProgress(raw string, status Status, targetURL string, dispenserCount int) Progress {
	raw = strings.TrimSpace(raw)

	if status == StatusCompleted {
		if strings.Contains(strings.ToLower(raw), "successfully") ||
			(targetURL != "" && strings.Contains(raw, targetURL)) {
			return Progress{Display: "Form completed successfully"}
		}
	}

	if raw == "" {
		if status == StatusRunning {
			return Progress{Display: "Processing form..."}
		}
		return Progress{}
	}

	m := fuelTypeRe.FindStringSubmatch(raw)
	if m == nil {
		return Progress{Display: raw}
	}

	p := Progress{FuelType: m[1]}
	p.CurrentStep, _ = strconv.Atoi(m[2])
	p.TotalSteps, _ = strconv.Atoi(m[3])
	display := fmt.Sprintf("Processing %s (%d/%d)", p.FuelType, p.CurrentStep, p.TotalSteps)

	if dm := dispenserRe.FindStringSubmatch(raw); dm != nil {
		p.DispenserIndex, _ = strconv.Atoi(dm[1])
		if dm[2] != "" {
			p.DispenserTotal, _ = strconv.Atoi(dm[2])
		} else {
			p.DispenserTotal = dispenserCount
		}
		if p.DispenserTotal > 0 {
			display += fmt.Sprintf(" - Dispenser #%d/%d", p.DispenserIndex, p.DispenserTotal)
		} else {
			display += fmt.Sprintf(" - Dispenser #%d", p.DispenserIndex)
		}
	}

	p.Display = display
	return p
}
