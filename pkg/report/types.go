// Package report provides the JSON run report.
//
// A run writes one report file: run metadata, the navigation outcome and
// one entry per slip item. The file is rewritten atomically after every
// item, so a run that is killed midway still leaves a readable report.
// Failure artifacts (screenshots, DOM snapshots) live next to it and are
// referenced by path, never inlined.
package report

import (
	"time"

	"github.com/cgedge/slipfill/pkg/core"
	"github.com/cgedge/slipfill/pkg/navigator"
	"github.com/cgedge/slipfill/pkg/slip"
)

// Version is the report schema version.
const Version = "1.0.0"

// Report is the run report file.
type Report struct {
	Version    string            `json:"version"`
	RunID      string            `json:"runId"`
	Status     core.Status       `json:"status"`
	StartTime  time.Time         `json:"startTime"`
	EndTime    *time.Time        `json:"endTime,omitempty"`
	Duration   *int64            `json:"duration,omitempty"` // milliseconds
	Runner     RunnerInfo        `json:"runner"`
	Slip       SlipInfo          `json:"slip"`
	Navigation *navigator.Result `json:"navigation,omitempty"`
	Summary    Summary           `json:"summary"`
	Items      []Item            `json:"items"`
}

// RunnerInfo describes the binary and page adapter that produced the run.
type RunnerInfo struct {
	Version string `json:"version"`
	Driver  string `json:"driver"` // rod, cdp
	Headful bool   `json:"headful"`
}

// SlipInfo records where the slip came from.
type SlipInfo struct {
	Source string `json:"source"` // inline, payload-file, slip-file, env, fragment, page-storage, none
	Items  int    `json:"items"`
}

// Summary contains aggregated item counts.
type Summary struct {
	Total   int `json:"total"`
	Passed  int `json:"passed"`
	Warned  int `json:"warned"`
	Failed  int `json:"failed"`
	Skipped int `json:"skipped"`
	Running int `json:"running"`
	Pending int `json:"pending"`
}

// Item is the report entry for one slip item.
type Item struct {
	Index     int               `json:"index"`
	Name      string            `json:"name"`
	Prop      string            `json:"prop"`
	Side      slip.Side         `json:"side"`
	Status    core.Status       `json:"status"`
	StartTime *time.Time        `json:"startTime,omitempty"`
	Duration  *int64            `json:"duration,omitempty"` // milliseconds
	PropTab   bool              `json:"propTab"`            // a prop tab was found for the item
	Matcher   string            `json:"matcher,omitempty"`  // side matcher that produced the click
	Element   *core.ElementInfo `json:"element,omitempty"`  // the control that was clicked
	Error     *Error            `json:"error,omitempty"`
	Artifacts Artifacts         `json:"artifacts,omitempty"`
}

// Error contains error details.
type Error struct {
	Type    string `json:"type"` // element, timeout, navigation, unknown
	Message string `json:"message"`
}

// Artifacts are the files captured for an item.
type Artifacts []core.Attachment

// Path returns the path of the named attachment, or "".
func (a Artifacts) Path(name string) string {
	for _, at := range a {
		if at.Name == name {
			return at.Path
		}
	}
	return ""
}

// ItemUpdate carries the outcome of one item.
type ItemUpdate struct {
	Status    core.Status
	PropTab   bool
	Matcher   string
	Element   *core.ElementInfo
	Error     *Error
	Artifacts Artifacts
}
