// Package executor places the picks of a slip on the board, one item at a
// time, connecting the page to the run report.
package executor

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/cgedge/slipfill/pkg/core"
	"github.com/cgedge/slipfill/pkg/dom"
	"github.com/cgedge/slipfill/pkg/locator"
	"github.com/cgedge/slipfill/pkg/logger"
	"github.com/cgedge/slipfill/pkg/report"
	"github.com/cgedge/slipfill/pkg/slip"
)

// RunnerConfig configures the pick runner. Zero durations take the defaults
// noted.
type RunnerConfig struct {
	RunID      string        // Default: a new UUID
	TabSettle  time.Duration // after a prop tab click. Default: 400ms
	SideSettle time.Duration // after a side click. Default: 300ms
	ItemPause  time.Duration // between items. Default: 250ms

	Artifacts core.ArtifactConfig
	Report    *report.Writer // optional live report

	// Live progress callbacks
	OnItemStart func(idx, total int, item slip.Item)
	OnItemEnd   func(res ItemResult)
}

// RunResult contains the outcome of a run.
type RunResult struct {
	ID           string       `json:"id"`
	Status       core.Status  `json:"status"`
	TotalItems   int          `json:"totalItems"`
	PassedItems  int          `json:"passedItems"`
	WarnedItems  int          `json:"warnedItems"`
	FailedItems  int          `json:"failedItems"`
	SkippedItems int          `json:"skippedItems"`
	Duration     int64        `json:"duration"` // Total duration in milliseconds
	ItemResults  []ItemResult `json:"items"`
}

// ItemResult contains the outcome of a single slip item.
type ItemResult struct {
	Index    int               `json:"index"`
	Item     slip.Item         `json:"item"`
	Status   core.Status       `json:"status"`
	PropTab  bool              `json:"propTab"`
	Matcher  string            `json:"matcher,omitempty"`
	Clicked  *core.ElementInfo `json:"clicked,omitempty"`
	Error    string            `json:"error,omitempty"`
	Duration int64             `json:"duration"`

	Err error `json:"-"`
}

// Runner places slip items on a page.
type Runner struct {
	config RunnerConfig
	page   core.Page
}

// New creates a new Runner.
func New(page core.Page, cfg RunnerConfig) *Runner {
	if cfg.RunID == "" {
		cfg.RunID = uuid.NewString()
	}
	if cfg.TabSettle <= 0 {
		cfg.TabSettle = 400 * time.Millisecond
	}
	if cfg.SideSettle <= 0 {
		cfg.SideSettle = 300 * time.Millisecond
	}
	if cfg.ItemPause <= 0 {
		cfg.ItemPause = 250 * time.Millisecond
	}
	return &Runner{config: cfg, page: page}
}

// ID returns the run ID.
func (r *Runner) ID() string {
	return r.config.RunID
}

// Run executes every item in order. Item failures are recorded and logged,
// never returned; a cancelled context marks the remaining items skipped.
//
// Running the same slip twice selects its picks again: nothing checks
// whether a pick is already on the slip.
func (r *Runner) Run(ctx context.Context, sl *slip.Slip) *RunResult {
	start := time.Now()
	var items []slip.Item
	if sl != nil {
		items = sl.Items
	}
	results := make([]ItemResult, len(items))

	for i, item := range items {
		if ctx.Err() != nil {
			results[i] = ItemResult{Index: i, Item: item, Status: core.StatusSkipped, Error: "run cancelled", Err: ctx.Err()}
			r.itemEnd(results[i], nil)
			continue
		}
		if i > 0 {
			if err := core.Wait(ctx, r.config.ItemPause); err != nil {
				results[i] = ItemResult{Index: i, Item: item, Status: core.StatusSkipped, Error: "run cancelled", Err: err}
				r.itemEnd(results[i], nil)
				continue
			}
		}

		if r.config.OnItemStart != nil {
			r.config.OnItemStart(i, len(items), item)
		}
		if r.config.Report != nil {
			r.config.Report.ItemStart(i)
		}
		logger.Info("item %d/%d: %s", i+1, len(items), item.Describe())

		itemStart := time.Now()
		res, snap := r.executeItem(ctx, i, item)
		res.Duration = time.Since(itemStart).Milliseconds()
		results[i] = res

		var artifacts report.Artifacts
		if r.config.Artifacts.ShouldCapture(res.Status) {
			artifacts = r.captureArtifacts(ctx, i, snap)
		}
		r.itemEnd(res, artifacts)
	}

	return buildRunResult(r.config.RunID, results, time.Since(start))
}

// executeItem runs prop tab, player card and side selection for one item.
// It returns the last snapshot taken for artifact capture.
func (r *Runner) executeItem(ctx context.Context, idx int, item slip.Item) (ItemResult, *dom.Snapshot) {
	res := ItemResult{Index: idx, Item: item, Status: core.StatusRunning}

	snap, err := r.page.Snapshot(ctx)
	if err != nil {
		return r.fail(res, err), nil
	}
	tabQuery := locator.Query{Kind: locator.KindPropTab, Target: item.Prop}
	if tab := locator.Locate(snap, tabQuery); tab.Found() {
		res.PropTab = true
		if locator.Active(tab.Element) {
			logger.Debug("prop tab %q already active", item.Prop)
		} else {
			if err := r.page.Click(ctx, tab.Element); err != nil {
				return r.fail(res, err), snap
			}
			if err := core.Wait(ctx, r.config.TabSettle); err != nil {
				return r.fail(res, err), snap
			}
			if snap, err = r.page.Snapshot(ctx); err != nil {
				return r.fail(res, err), nil
			}
		}
	} else {
		logger.Debug("%s not found, skipping", tabQuery)
	}

	cardQuery := locator.Query{Kind: locator.KindPlayerCard, Target: item.Name}
	card := locator.Locate(snap, cardQuery)
	if !card.Found() {
		err := core.ErrElementNotFound.WithMessage("player not found").
			WithDetails(map[string]interface{}{"query": cardQuery.String(), "prop": item.Prop})
		return r.fail(res, err), snap
	}

	want := slip.ParseSide(string(item.Side))
	side := locator.SideButton(card.Element, string(want))
	if err := r.page.Click(ctx, side.Element); err != nil {
		return r.fail(res, err), snap
	}
	res.Matcher = side.Matcher
	res.Clicked = core.InfoOf(side.Element)
	if err := core.Wait(ctx, r.config.SideSettle); err != nil {
		return r.fail(res, err), snap
	}

	res.Status = core.StatusPassed
	if side.Matcher == locator.SideCard {
		res.Status = core.StatusWarned
		logger.Warn("item %d %s: no %s control on the card, clicked the card", idx+1, item.Describe(), want)
	}
	return res, snap
}

// fail records err on res and logs it once. Cancellation skips the item.
func (r *Runner) fail(res ItemResult, err error) ItemResult {
	res.Err = err
	res.Error = err.Error()
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		res.Status = core.StatusSkipped
		return res
	}
	res.Status = core.StatusFailed
	logger.WithFields(map[string]interface{}{
		"item": res.Index + 1,
		"name": res.Item.Name,
		"prop": res.Item.Prop,
		"side": string(res.Item.Side),
	}).Warnf("item %d %s: %v", res.Index+1, res.Item.Describe(), err)
	return res
}

func (r *Runner) itemEnd(res ItemResult, artifacts report.Artifacts) {
	if r.config.Report != nil {
		r.config.Report.ItemEnd(res.Index, report.ItemUpdate{
			Status:    res.Status,
			PropTab:   res.PropTab,
			Matcher:   res.Matcher,
			Element:   res.Clicked,
			Error:     report.ErrorOf(res.Err),
			Artifacts: artifacts,
		})
	}
	if r.config.OnItemEnd != nil {
		r.config.OnItemEnd(res)
	}
}

// captureArtifacts saves a screenshot and the DOM snapshot for an item.
func (r *Runner) captureArtifacts(ctx context.Context, idx int, snap *dom.Snapshot) report.Artifacts {
	var artifacts report.Artifacts
	if r.config.Report == nil || ctx.Err() != nil {
		return artifacts
	}

	if r.config.Artifacts.Screenshot {
		if data, err := r.page.Screenshot(ctx); err == nil && len(data) > 0 {
			if a, err := r.config.Report.SaveScreenshot(idx, data); err == nil {
				artifacts = append(artifacts, a)
			}
		}
	}
	if r.config.Artifacts.Snapshot && snap != nil {
		if a, err := r.config.Report.SaveSnapshot(idx, []byte(snap.HTML())); err == nil {
			artifacts = append(artifacts, a)
		}
	}
	return artifacts
}

// buildRunResult aggregates item results into a run result.
func buildRunResult(id string, items []ItemResult, d time.Duration) *RunResult {
	result := &RunResult{
		ID:          id,
		TotalItems:  len(items),
		Duration:    d.Milliseconds(),
		ItemResults: items,
	}

	for _, ir := range items {
		switch ir.Status {
		case core.StatusPassed:
			result.PassedItems++
		case core.StatusWarned:
			result.WarnedItems++
		case core.StatusFailed:
			result.FailedItems++
		case core.StatusSkipped:
			result.SkippedItems++
		}
	}

	// Skipped items alone do not fail a run
	if result.FailedItems > 0 {
		result.Status = core.StatusFailed
	} else {
		result.Status = core.StatusPassed
	}
	return result
}
