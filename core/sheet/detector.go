package sheet

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"sync"

	"github.com/attenx/attenx/core/anomaly"
)

// Employee is one entry of the seed roster the simulated detector works from.
type Employee struct {
	ID   string
	Name string
}

// SeedRoster stands in for a real employee directory until a detector can
// read names off the sheet itself.
var SeedRoster = []Employee{
	{"EMP001", "John Smith"},
	{"EMP002", "Sarah Johnson"},
	{"EMP003", "Mike Davis"},
	{"EMP004", "Lisa Wilson"},
	{"EMP005", "Robert Brown"},
	{"EMP006", "Emily Chen"},
	{"EMP007", "David Miller"},
	{"EMP008", "Anna Garcia"},
	{"EMP009", "James Taylor"},
	{"EMP010", "Maria Rodriguez"},
}

// simulatedDetector fabricates signatures and anomalies in place of a real
// recognition pipeline. It produces one signature candidate per roster entry
// and flags each one with probability anomalyRate. Deterministic for a fixed
// seed.
type simulatedDetector struct {
	mu          sync.Mutex
	rnd         *rand.Rand
	anomalyRate float64
}

var _ Detector = (*simulatedDetector)(nil)

func NewSimulatedDetector(seed int64, anomalyRate float64) *simulatedDetector {
	return &simulatedDetector{
		rnd:         rand.New(rand.NewSource(seed)),
		anomalyRate: anomalyRate,
	}
}

func (d *simulatedDetector) Detect(_ context.Context, sht Sheet) ([]Candidate, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	candidates := make([]Candidate, 0, len(SeedRoster))
	for _, emp := range SeedRoster {
		sig := Signature{
			SheetID:         sht.ID,
			EmployeeID:      emp.ID,
			EmployeeName:    emp.Name,
			ConfidenceScore: 0.7 + d.rnd.Float64()*0.3,
			PositionX:       d.rnd.Float64() * 100,
			PositionY:       d.rnd.Float64() * 100,
			Width:           50 + d.rnd.Float64()*30,
			Height:          20 + d.rnd.Float64()*15,
		}

		cand := Candidate{Signature: sig}
		if d.rnd.Float64() < d.anomalyRate {
			typ := anomaly.Types[d.rnd.Intn(len(anomaly.Types))]
			cand.Anomaly = &anomaly.Anomaly{
				EmployeeID:      emp.ID,
				Type:            typ,
				Severity:        anomaly.Severities[d.rnd.Intn(len(anomaly.Severities))],
				Description:     fmt.Sprintf("Detected %s for %s", strings.ReplaceAll(typ, "_", " "), emp.Name),
				ConfidenceScore: 0.6 + d.rnd.Float64()*0.4,
				Status:          anomaly.StatusPending,
			}
		}
		candidates = append(candidates, cand)
	}
	return candidates, nil
}
