package models

import (
	"strings"
	"time"
)

type Verdict string

const (
	VerdictGood Verdict = "GOOD"
	VerdictBad  Verdict = "BAD"
	VerdictNA   Verdict = "N/A"
)

// ParseVerdict normalizes a raw verdict cell. Anything that is not
// recognisably GOOD or BAD becomes N/A.
func ParseVerdict(raw string) Verdict {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "GOOD":
		return VerdictGood
	case "BAD":
		return VerdictBad
	default:
		return VerdictNA
	}
}

type AuditRow struct {
	CheckName string            `json:"check_name"`
	Verdict   Verdict           `json:"verdict"`
	Details   map[string]string `json:"details,omitempty"`
}

// AuditResultSet is one ingested report for a host.
type AuditResultSet struct {
	ID          int64      `json:"id" db:"id"`
	HostID      int64      `json:"host_id" db:"host_id"`
	Username    string     `json:"username" db:"username"`
	ExecutionID string     `json:"execution_id,omitempty" db:"execution_id"`
	Columns     []string   `json:"columns" db:"-"`
	Rows        []AuditRow `json:"rows" db:"-"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
}

type AuditSummary struct {
	Good  int `json:"GOOD"`
	Bad   int `json:"BAD"`
	NA    int `json:"N/A"`
	Total int `json:"total"`
}

func Summarize(rows []AuditRow) AuditSummary {
	var s AuditSummary
	for _, r := range rows {
		switch r.Verdict {
		case VerdictGood:
			s.Good++
		case VerdictBad:
			s.Bad++
		default:
			s.NA++
		}
	}
	s.Total = len(rows)
	return s
}
