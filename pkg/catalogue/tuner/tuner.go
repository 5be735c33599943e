// Package tuner sizes the hashing worker pool from the detected CPU and RAM.
package tuner

// SystemResources contains detected system resources.
type SystemResources struct {
	// CPUCores is the number of logical CPU cores available.
	CPUCores int

	// TotalRAM is the total physical RAM in bytes.
	TotalRAM int64

	// AvailableRAM is the available (free) RAM in bytes.
	// This may be an estimate based on system heuristics.
	AvailableRAM int64
}

const (
	// maxWorkers caps the hashing pool. SHA-512 is CPU bound and input
	// trees rarely live on storage that rewards more readers.
	maxWorkers = 32

	// lowMemory is the available RAM below which the pool is halved.
	lowMemory = 1 << 30
)

// Plan is the worker configuration derived from system resources.
type Plan struct {
	// HashWorkers is the number of files hashed concurrently when
	// producing per-file output digests.
	HashWorkers int
}

// Calculate returns a plan for the given resources: one hashing worker per
// core, halved when available memory is low, capped at 32 and never below 1.
func Calculate(resources SystemResources) Plan {
	workers := resources.CPUCores
	if resources.AvailableRAM > 0 && resources.AvailableRAM < lowMemory {
		workers /= 2
	}
	workers = max(workers, 1)
	workers = min(workers, maxWorkers)
	return Plan{HashWorkers: workers}
}

// CalculateWithOverride applies a user override to the calculated plan. An
// override of 0 or less keeps the calculated value.
func CalculateWithOverride(resources SystemResources, override int) Plan {
	plan := Calculate(resources)
	if override > 0 {
		plan.HashWorkers = min(override, maxWorkers)
	}
	return plan
}

// HashWorkers detects the system resources and returns the number of
// hashing workers to use, honouring override when positive.
func HashWorkers(override int) int {
	resources, err := Detect()
	if err != nil && resources.CPUCores == 0 {
		return max(min(override, maxWorkers), 1)
	}
	return CalculateWithOverride(resources, override).HashWorkers
}
