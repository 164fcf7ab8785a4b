package pipeline

import (
	"github.com/artpar/docgate/core/stamp"
	"github.com/artpar/docgate/core/validation"
)

// State is the outcome of one submitted document.
type State int

const (
	// Pending documents passed validation but were not persisted yet.
	Pending State = iota
	Rejected
	Committed
)

func (s State) String() string {
	switch s {
	case Rejected:
		return "rejected"
	case Committed:
		return "committed"
	default:
		return "pending"
	}
}

// Outcome is the result for one submitted document.
type Outcome struct {
	Index int
	State State

	// Submitted is the candidate as the client sent it.
	Submitted map[string]any

	// Issues are set for rejected documents.
	Issues validation.Issues

	// Document and Stamp are set for committed documents.
	Document map[string]any
	Stamp    stamp.Stamp
}

// Status summarises a completed batch.
type Status int

const (
	// StatusCreated means at least one document was persisted.
	StatusCreated Status = iota

	// StatusInvalid means every document failed validation.
	StatusInvalid
)

func (s Status) String() string {
	if s == StatusCreated {
		return "created"
	}
	return "invalid"
}

// Report lists one outcome per submitted document in submission order.
type Report struct {
	Resource string
	Outcomes []Outcome

	// Committed holds the persisted documents in commit order.
	Committed []map[string]any

	// HookWarnings are after-* hook failures. The documents stay committed.
	HookWarnings []error
}

func newReport(resource string, candidates []map[string]any) *Report {
	r := &Report{
		Resource: resource,
		Outcomes: make([]Outcome, len(candidates)),
	}
	for i, c := range candidates {
		r.Outcomes[i] = Outcome{Index: i, State: Pending, Submitted: c}
	}
	return r
}

func (r *Report) commit(i int, doc map[string]any, st stamp.Stamp) {
	r.Outcomes[i].State = Committed
	r.Outcomes[i].Document = doc
	r.Outcomes[i].Stamp = st
	r.Committed = append(r.Committed, doc)
}

// truncate cuts the outcomes to the final ones before position limit: the
// list stops at the first document still pending.
func (r *Report) truncate(limit int) {
	n := limit
	for i := 0; i < limit; i++ {
		if r.Outcomes[i].State == Pending {
			n = i
			break
		}
	}
	r.Outcomes = r.Outcomes[:n]
}

// Status reports created when any document was persisted.
func (r *Report) Status() Status {
	if len(r.Committed) > 0 {
		return StatusCreated
	}
	return StatusInvalid
}

// Counts returns the number of committed and rejected documents.
func (r *Report) Counts() (committed, rejected int) {
	for _, o := range r.Outcomes {
		switch o.State {
		case Committed:
			committed++
		case Rejected:
			rejected++
		}
	}
	return committed, rejected
}
