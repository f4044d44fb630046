package app

import (
	"context"
	"fmt"

	"github.com/atotto/clipboard"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/rebeliceyang/lazyvar/internal/db/connection"
	"github.com/rebeliceyang/lazyvar/internal/filter"
	"github.com/rebeliceyang/lazyvar/internal/models"
	"github.com/rebeliceyang/lazyvar/internal/query"
	"github.com/rebeliceyang/lazyvar/internal/switcher"
)

// ApplyFilterMsg replaces the filter and refreshes
type ApplyFilterMsg struct {
	Tree filter.Tree
}

// RestrictSamplesMsg limits the results to samples. Empty means all.
type RestrictSamplesMsg struct {
	Samples []string
}

// SwitchAnalysisMsg asks to move the workspace to another analysis
type SwitchAnalysisMsg struct {
	Analysis string
}

// SwitchPendingMsg is sent once the switch is checked
type SwitchPendingMsg struct {
	Pending *switcher.PendingSwitch
	Err     error
}

// SwitchResolvedMsg is sent when every conflict has an answer
type SwitchResolvedMsg struct {
	Outcome switcher.Outcome
	Err     error
}

// OpenProfileMsg loads a saved profile into the workspace
type OpenProfileMsg struct {
	ID string
}

// ProfileOpenedMsg carries a decoded profile
type ProfileOpenedMsg struct {
	Workspace switcher.Workspace
	Err       error
}

// SaveProfileMsg stores the workspace under a name
type SaveProfileMsg struct {
	Name        string
	Description string
}

// ProfileSavedMsg reports a save
type ProfileSavedMsg struct {
	Entry *models.ProfileEntry
	Err   error
}

// RefreshDoneMsg carries the count and first rows of a refresh
type RefreshDoneMsg struct {
	Generation uint64
	Count      int64
	Table      query.Table
	SQL        string
	Err        error
}

// SamplesLoadedMsg carries the samples having at least one match
type SamplesLoadedMsg struct {
	Generation uint64
	Samples    []string
	Err        error
}

// ClipboardMsg reports a clipboard copy
type ClipboardMsg struct {
	Err error
}

// copyToClipboard is replaced in tests
var copyToClipboard = clipboard.WriteAll

// startRefresh supersedes any running refresh: its statements are cancelled
// and its result will carry a stale generation
func (a *App) startRefresh() tea.Cmd {
	if a.deps.Engine == nil {
		return nil
	}
	if a.cancelRefresh != nil {
		a.cancelRefresh()
	}
	if a.deps.Gateway != nil {
		a.deps.Gateway.CancelOwner(refreshOwner)
		a.deps.Gateway.CancelOwner(samplesOwner)
	}

	// A sample listing of the previous filter is stale as well
	a.generation++
	a.refreshing = true
	a.listing = false
	a.sampleNames = nil
	a.err, a.retry = nil, nil

	ctx, cancel := context.WithCancel(connection.WithOwner(context.Background(), refreshOwner))
	a.cancelRefresh = cancel

	var (
		gen      = a.generation
		engine   = a.deps.Engine
		analysis = a.analysis
		tree     = a.ws.Filter
		samples  = a.samples
		columns  = a.columns
		limit    = a.config.Query.ResultLimit
		title    = fmt.Sprintf("%s: %s", analysis, tree)
	)
	worker := func() tea.Msg {
		defer cancel()
		msg := RefreshDoneMsg{Generation: gen}

		count, err := engine.RetrieveCount(ctx, analysis, tree, samples)
		if err != nil {
			msg.Err = err
			return msg
		}
		msg.Count = count

		res, err := engine.RetrieveData(ctx, analysis, tree, columns, samples, title)
		if err != nil {
			msg.Err = err
			return msg
		}
		msg.SQL = res.Statement.SQL
		msg.Table, msg.Err = res.Collect(limit)
		return msg
	}
	return tea.Batch(worker, a.spinner.Tick)
}

func (a *App) startSamples() tea.Cmd {
	if a.deps.Engine == nil {
		return nil
	}
	if a.deps.Gateway != nil {
		a.deps.Gateway.CancelOwner(samplesOwner)
	}
	a.listing = true

	var (
		gen      = a.generation
		engine   = a.deps.Engine
		analysis = a.analysis
		tree     = a.ws.Filter
	)
	worker := func() tea.Msg {
		ctx := connection.WithOwner(context.Background(), samplesOwner)
		samples, err := engine.AllSamples(ctx, analysis, tree)
		return SamplesLoadedMsg{Generation: gen, Samples: samples, Err: err}
	}
	return tea.Batch(worker, a.spinner.Tick)
}

func (a *App) beginSwitch(target models.Analysis, ws switcher.Workspace) tea.Cmd {
	a.switching = true
	v := a.validator
	return func() tea.Msg {
		p, err := v.Begin(target, ws)
		return SwitchPendingMsg{Pending: p, Err: err}
	}
}

func (a *App) resolveSwitch(choices []switcher.Choice) tea.Cmd {
	v := a.validator
	return func() tea.Msg {
		outcome, err := v.Resolve(choices)
		return SwitchResolvedMsg{Outcome: outcome, Err: err}
	}
}

func (a *App) openProfile(id string) tea.Cmd {
	store := a.deps.Profiles
	if store == nil {
		return a.fail("Failed to open profile", fmt.Errorf("no profile store"), nil)
	}
	registry, analysis := a.deps.Registry, a.analysis
	return func() tea.Msg {
		ws, err := store.Open(id, registry, analysis)
		return ProfileOpenedMsg{Workspace: ws, Err: err}
	}
}

func (a *App) saveProfile(name, description string) tea.Cmd {
	store := a.deps.Profiles
	if store == nil {
		return a.fail("Failed to save profile", fmt.Errorf("no profile store"), nil)
	}
	analysis, ws := a.analysis, a.ws
	return func() tea.Msg {
		entry, err := store.Save(name, description, nil, analysis, ws)
		return ProfileSavedMsg{Entry: entry, Err: err}
	}
}

func copyStatement(sql string) tea.Cmd {
	return func() tea.Msg {
		return ClipboardMsg{Err: copyToClipboard(sql)}
	}
}
