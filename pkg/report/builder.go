package report

import (
	"errors"

	"github.com/cgedge/slipfill/pkg/core"
	"github.com/cgedge/slipfill/pkg/slip"
)

// BuilderConfig contains configuration for building a report skeleton.
type BuilderConfig struct {
	RunID  string
	Source string
	Runner RunnerInfo
}

// BuildSkeleton creates a report with every item pending.
func BuildSkeleton(sl *slip.Slip, cfg BuilderConfig) *Report {
	r := &Report{
		Version: Version,
		RunID:   cfg.RunID,
		Status:  core.StatusPending,
		Runner:  cfg.Runner,
		Slip:    SlipInfo{Source: cfg.Source, Items: sl.Len()},
		Items:   []Item{},
	}
	if sl != nil {
		for i, it := range sl.Items {
			r.Items = append(r.Items, Item{
				Index:  i,
				Name:   it.Name,
				Prop:   it.Prop,
				Side:   it.Side,
				Status: core.StatusPending,
			})
		}
	}
	r.Summary = summarize(r.Items)
	return r
}

// ErrorOf classifies err for the report. Nil yields nil.
func ErrorOf(err error) *Error {
	if err == nil {
		return nil
	}
	typ := "unknown"
	var execErr *core.ExecutionError
	if errors.As(err, &execErr) {
		typ = execErr.Category.String()
	}
	return &Error{Type: typ, Message: err.Error()}
}

func summarize(items []Item) Summary {
	var s Summary
	for _, it := range items {
		s.Total++
		switch it.Status {
		case core.StatusPassed:
			s.Passed++
		case core.StatusWarned:
			s.Warned++
		case core.StatusFailed:
			s.Failed++
		case core.StatusSkipped:
			s.Skipped++
		case core.StatusRunning:
			s.Running++
		case core.StatusPending:
			s.Pending++
		}
	}
	return s
}

// runStatus determines the overall status from item statuses. A run with no
// items passes; any failed item fails it.
func runStatus(items []Item) core.Status {
	status := core.StatusPassed
	for _, it := range items {
		if !it.Status.IsTerminal() {
			return core.StatusRunning
		}
		if it.Status == core.StatusFailed {
			status = core.StatusFailed
		}
	}
	return status
}
