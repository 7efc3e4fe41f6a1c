package domain

import "time"

// Run is the archived summary of one generated batch.
type Run struct {
	ID            string    `json:"id"`
	Seed          uint64    `json:"seed"`
	GeneratedAt   time.Time `json:"generated_at"`
	EventCount    int       `json:"event_count"`
	TotalCost     float64   `json:"total_cost"`
	AnomalyRate   float64   `json:"anomaly_rate"`
	AvgEfficiency float64   `json:"avg_efficiency"`
	RiskLevel     RiskLevel `json:"risk_level"`
	RiskReasons   []string  `json:"risk_reasons,omitempty"`
	ArchivedAt    time.Time `json:"archived_at"`
}

// RunMessage is the bus payload announcing a generated batch.
type RunMessage struct {
	Run        Run             `json:"run"`
	Assessment *Assessment     `json:"assessment,omitempty"`
	Events     []BusinessEvent `json:"events"`
}
