package engine

import (
	"time"

	"github.com/gantry-ci/gantry/internal/util"
)

// Record kinds.
const (
	KindPhase    = "phase"
	KindHealStep = "heal-step"
)

// Statuses recorded in the ledger and reported in summaries.
const (
	StatusPass    = "pass"
	StatusFail    = "fail"
	StatusPartial = "partial"
)

// Record is one ledger entry: a completed phase or heal step.
type Record struct {
	Kind     string
	Name     string
	Status   string
	Duration time.Duration
	Detail   string
	Metadata map[string]interface{}
}

// Ledger is the append-only run-scoped result log. The engine is its single
// writer; everything handed out is a copy.
type Ledger struct {
	records []Record
}

// NewLedger creates an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{}
}

// Append records an entry. Metadata is deep-copied so later caller mutation
// cannot rewrite history.
func (l *Ledger) Append(r Record) {
	if r.Metadata != nil {
		if m, ok := util.DeepCopy(r.Metadata).(map[string]interface{}); ok {
			r.Metadata = m
		}
	}
	l.records = append(l.records, r)
}

// Records returns a copy of the recorded entries in append order.
func (l *Ledger) Records() []Record {
	out := make([]Record, len(l.records))
	copy(out, l.records)
	return out
}

// Len returns the number of recorded entries.
func (l *Ledger) Len() int { return len(l.records) }

// Summary is the derived aggregate view over a run's ledger.
type Summary struct {
	Overall       string
	TotalDuration time.Duration
	Records       []Record
}

// Summarize derives the run summary. Overall is pass only when every entry
// passed; a run containing failures among passes is partial, and fail when
// nothing passed.
func (l *Ledger) Summarize() *Summary {
	s := &Summary{Records: l.Records()}
	passes, fails := 0, 0
	for _, r := range s.Records {
		s.TotalDuration += r.Duration
		switch r.Status {
		case StatusPass:
			passes++
		case StatusFail:
			fails++
		case StatusPartial:
			fails++
			passes++
		}
	}
	switch {
	case fails == 0:
		s.Overall = StatusPass
	case passes == 0:
		s.Overall = StatusFail
	default:
		s.Overall = StatusPartial
	}
	return s
}
