package model

import (
	"sort"
	"strings"
	"time"
)

type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
)

// Rank orders severities, 1 being most severe. Unknown severities rank as medium.
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 1
	case SeverityHigh:
		return 2
	case SeverityLow:
		return 4
	default:
		return 3
	}
}

// ParseSeverity normalizes s. ok is false when s is not a known severity, in
// which case medium is returned.
func ParseSeverity(s string) (Severity, bool) {
	switch sev := Severity(strings.ToLower(strings.TrimSpace(s))); sev {
	case SeverityCritical, SeverityHigh, SeverityMedium, SeverityLow:
		return sev, true
	default:
		return SeverityMedium, false
	}
}

// Cluster is a group of tickets sharing a probable root cause.
type Cluster struct {
	Title             string   `json:"title"`
	RootCause         string   `json:"root_cause"`
	TicketIDs         []int64  `json:"ticket_ids"`
	Severity          Severity `json:"severity"`
	GeographicPattern string   `json:"geographic_pattern,omitempty"`
	CategoryID        string   `json:"category_id,omitempty"`
}

// SortClusters ranks clusters by severity, then member count descending, then title.
func SortClusters(clusters []Cluster) {
	sort.SliceStable(clusters, func(i, j int) bool {
		a, b := clusters[i], clusters[j]
		if a.Severity.Rank() != b.Severity.Rank() {
			return a.Severity.Rank() < b.Severity.Rank()
		}
		if len(a.TicketIDs) != len(b.TicketIDs) {
			return len(a.TicketIDs) > len(b.TicketIDs)
		}
		return a.Title < b.Title
	})
}

const WarningTruncatedInput = "truncated_input"

type Warning struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Analysis is what the analyzer returns for one ticket set.
type Analysis struct {
	Clusters        []Cluster `json:"clusters"`
	AnalyzedTickets int       `json:"analyzed_tickets"`
	Warnings        []Warning `json:"warnings,omitempty"`
}

// AnalysisResult is the immutable input to the formatter.
type AnalysisResult struct {
	Window          TimeWindow `json:"window"`
	Clusters        []Cluster  `json:"clusters"`
	TotalTickets    int        `json:"total_tickets"`
	AnalyzedTickets int        `json:"analyzed_tickets"`
	GeneratedAt     time.Time  `json:"generated_at"`
	Warnings        []Warning  `json:"warnings,omitempty"`
}
