package job

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeProgress_EmptyWhileRunning(t *testing.T) {
	p := NormalizeProgress("", StatusRunning, "", 0)
	assert.Equal(t, "Processing form...", p.Display)
}

func TestNormalizeProgress_FuelTypeWithDispenser(t *testing.T) {
	p := NormalizeProgress("processing fuel type: Diesel (2/4) dispenser 3/6", StatusRunning, "", 0)

	assert.Equal(t, "Processing Diesel (2/4) - Dispenser #3/6", p.Display)
	assert.Equal(t, "Diesel", p.FuelType)
	assert.Equal(t, 2, p.CurrentStep)
	assert.Equal(t, 4, p.TotalSteps)
	assert.Equal(t, 3, p.DispenserIndex)
	assert.Equal(t, 6, p.DispenserTotal)
}

func TestNormalizeProgress_FuelTypeWithoutDispenser(t *testing.T) {
	p := NormalizeProgress("processing fuel type: Unleaded 95 (1/3)", StatusRunning, "", 0)

	assert.Equal(t, "Processing Unleaded 95 (1/3)", p.Display)
	assert.Equal(t, "Unleaded 95", p.FuelType)
	assert.Zero(t, p.DispenserIndex)
}

func TestNormalizeProgress_DispenserTotalFromJob(t *testing.T) {
	// No total in the text; the job's stored dispenser count fills it in.
	p := NormalizeProgress("processing fuel type: Diesel (2/4) dispenser 3", StatusRunning, "", 8)

	assert.Equal(t, "Processing Diesel (2/4) - Dispenser #3/8", p.Display)
	assert.Equal(t, 8, p.DispenserTotal)
}

func TestNormalizeProgress_DispenserNoTotalAnywhere(t *testing.T) {
	p := NormalizeProgress("processing fuel type: Diesel (2/4) dispenser 3", StatusRunning, "", 0)

	assert.Equal(t, "Processing Diesel (2/4) - Dispenser #3", p.Display)
	assert.Zero(t, p.DispenserTotal)
}

func TestNormalizeProgress_CompletedCollapsesURL(t *testing.T) {
	p := NormalizeProgress("https://x/visits/123 finished", StatusCompleted, "https://x/visits/123", 0)
	assert.Equal(t, "Form completed successfully", p.Display)
}

func TestNormalizeProgress_CompletedCollapsesSuccessfully(t *testing.T) {
	p := NormalizeProgress("Form submitted Successfully for site 44", StatusCompleted, "https://x/visits/44", 0)
	assert.Equal(t, "Form completed successfully", p.Display)
}

func TestNormalizeProgress_CompletedUnrelatedTextPassesThrough(t *testing.T) {
	p := NormalizeProgress("done", StatusCompleted, "https://x/visits/44", 0)
	assert.Equal(t, "done", p.Display)
}

func TestNormalizeProgress_UnmatchedPassThrough(t *testing.T) {
	p := NormalizeProgress("Navigating to dispenser layout page", StatusRunning, "", 0)
	assert.Equal(t, "Navigating to dispenser layout page", p.Display)
	assert.Empty(t, p.FuelType)
}

func TestNormalizeProgress_Idempotent(t *testing.T) {
	inputs := []struct {
		raw    string
		status Status
		url    string
		count  int
	}{
		{"", StatusRunning, "", 0},
		{"processing fuel type: Diesel (2/4) dispenser 3/6", StatusRunning, "", 0},
		{"processing fuel type: Diesel (2/4) dispenser 3", StatusRunning, "", 8},
		{"https://x/visits/123 finished", StatusCompleted, "https://x/visits/123", 0},
		{"some free text", StatusRunning, "", 0},
	}

	for _, in := range inputs {
		once := NormalizeProgress(in.raw, in.status, in.url, in.count)
		twice := NormalizeProgress(once.Display, in.status, in.url, in.count)
		assert.Equal(t, once.Display, twice.Display, "raw=%q", in.raw)
	}
}
