// Package app is the interactive session. Update is the only writer of the
// session state; every database operation runs in a tea.Cmd worker and
// reports back with a message.
package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"
	"github.com/rebeliceyang/lazyvar/internal/config"
	"github.com/rebeliceyang/lazyvar/internal/db/connection"
	"github.com/rebeliceyang/lazyvar/internal/fields"
	"github.com/rebeliceyang/lazyvar/internal/filter"
	"github.com/rebeliceyang/lazyvar/internal/models"
	"github.com/rebeliceyang/lazyvar/internal/profile"
	"github.com/rebeliceyang/lazyvar/internal/query"
	"github.com/rebeliceyang/lazyvar/internal/switcher"
	"github.com/rebeliceyang/lazyvar/internal/ui/theme"
)

// Statement owners used for cancellation
const (
	refreshOwner = "refresh"
	samplesOwner = "samples"
)

// Workspace edits are refused while a switch runs on a snapshot of it
const switchingStatus = "Finish the analysis switch first"

// Columns shown when the analysis offers them
var defaultColumns = []string{"chr", "pos", "reference", "alternative", "gene_symbol", "sample", "read_depth"}

// Canceller is the part of the gateway the session cancels statements with
type Canceller interface {
	CancelOwner(owner string) int
}

// Deps are the services a session runs on. Profiles may be nil.
type Deps struct {
	Registry *fields.Registry
	Engine   *query.Engine
	Gateway  Canceller
	Profiles *profile.Store
	Analysis models.Analysis
}

// App is the main application model
type App struct {
	config    *config.Config
	deps      Deps
	validator *switcher.Validator
	styles    styles

	width  int
	height int

	analysis models.Analysis
	ws       switcher.Workspace
	samples  []string
	columns  []*models.Field

	// generation identifies the latest refresh; older results are dropped
	generation    uint64
	cancelRefresh context.CancelFunc
	refreshing    bool
	listing       bool
	spinner       spinner.Model

	count       int64
	table       query.Table
	sampleNames []string
	lastSQL     string

	pending   *switcher.PendingSwitch
	choices   []switcher.Choice
	switching bool // from Begin until Resolve reports

	err    error
	retry  func() tea.Cmd
	status string
}

// New creates a session on deps.Analysis with an empty filter
func New(cfg *config.Config, deps Deps) *App {
	if cfg == nil {
		cfg = config.GetDefaults()
	}
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(theme.GetTheme(cfg.UI.Theme).BarText)

	a := &App{
		config:    cfg,
		deps:      deps,
		validator: switcher.NewValidator(deps.Analysis),
		analysis:  deps.Analysis,
		ws:        switcher.Workspace{Filter: filter.Empty(filter.NewArena())},
		spinner:   s,
		styles:    newStyles(theme.GetTheme(cfg.UI.Theme)),
	}
	a.columns = a.columnsFor(deps.Analysis)
	return a
}

// Init implements tea.Model
func (a *App) Init() tea.Cmd {
	return a.startRefresh()
}

// Analysis returns the analysis in effect
func (a *App) Analysis() models.Analysis {
	return a.analysis
}

// Workspace returns the current filter, highlighting and sorting
func (a *App) Workspace() switcher.Workspace {
	return a.ws
}

// Count returns the row count of the last completed refresh
func (a *App) Count() int64 {
	return a.count
}

// Table returns the rows of the last completed refresh
func (a *App) Table() query.Table {
	return a.table
}

// Busy reports whether a worker is running
func (a *App) Busy() bool {
	return a.refreshing || a.listing
}

// Err returns the error on display, if any
func (a *App) Err() error {
	return a.err
}

// Update implements tea.Model
func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return a.handleKey(msg)

	case ApplyFilterMsg:
		if a.switching {
			a.status = switchingStatus
			return a, nil
		}
		a.ws.Filter = msg.Tree
		return a, a.startRefresh()

	case RestrictSamplesMsg:
		if a.switching {
			a.status = switchingStatus
			return a, nil
		}
		a.samples = msg.Samples
		return a, a.startRefresh()

	case SwitchAnalysisMsg:
		target, err := a.deps.Registry.Analysis(msg.Analysis)
		if err != nil {
			return a, a.fail("Switch failed", err, nil)
		}
		return a, a.beginSwitch(target, a.ws)

	case SwitchPendingMsg:
		if msg.Err != nil {
			a.switching = false
			return a, a.fail("Switch failed", msg.Err, nil)
		}
		if len(msg.Pending.Conflicts) == 0 {
			return a, a.resolveSwitch(nil)
		}
		a.pending = msg.Pending
		a.choices = nil
		return a, nil

	case SwitchResolvedMsg:
		a.switching = false
		a.pending = nil
		a.choices = nil
		if msg.Err != nil {
			return a, a.fail("Switch failed", msg.Err, nil)
		}
		if msg.Outcome.Aborted {
			a.status = fmt.Sprintf("Stayed on %s", a.analysis)
			return a, nil
		}
		a.analysis = msg.Outcome.Analysis
		a.ws = msg.Outcome.Workspace
		a.columns = a.columnsFor(a.analysis)
		a.status = fmt.Sprintf("Analysis %s", a.analysis)
		if n := len(msg.Outcome.Removed); n > 0 {
			a.status += fmt.Sprintf(", %d criteria removed", n)
		}
		return a, a.startRefresh()

	case OpenProfileMsg:
		return a, a.openProfile(msg.ID)

	case ProfileOpenedMsg:
		var incompatible *filter.IncompatibleFieldError
		switch {
		case msg.Err == nil:
			a.ws = msg.Workspace
			return a, a.startRefresh()
		case errors.As(msg.Err, &incompatible):
			// Prune with consent, as for a switch to the current analysis
			return a, a.beginSwitch(a.analysis, msg.Workspace)
		default:
			return a, a.fail("Failed to open profile", msg.Err, nil)
		}

	case SaveProfileMsg:
		return a, a.saveProfile(msg.Name, msg.Description)

	case ProfileSavedMsg:
		if msg.Err != nil {
			return a, a.fail("Failed to save profile", msg.Err, nil)
		}
		a.status = fmt.Sprintf("Saved profile %s", msg.Entry.Name)
		return a, nil

	case RefreshDoneMsg:
		if msg.Generation != a.generation {
			return a, nil
		}
		a.refreshing = false
		a.cancelRefresh = nil
		if msg.Err != nil {
			return a, a.fail("Refresh failed", msg.Err, a.startRefresh)
		}
		a.count = msg.Count
		a.table = msg.Table
		a.lastSQL = msg.SQL
		a.err, a.retry = nil, nil
		return a, nil

	case SamplesLoadedMsg:
		if msg.Generation != a.generation {
			return a, nil
		}
		a.listing = false
		if msg.Err != nil {
			return a, a.fail("Sample listing failed", msg.Err, a.startSamples)
		}
		a.sampleNames = msg.Samples
		return a, nil

	case ClipboardMsg:
		if msg.Err != nil {
			log.Printf("Failed to copy to clipboard: %v", msg.Err)
			a.status = "Clipboard unavailable"
		} else {
			a.status = "Statement copied"
		}
		return a, nil

	case spinner.TickMsg:
		if !a.Busy() {
			return a, nil
		}
		var cmd tea.Cmd
		a.spinner, cmd = a.spinner.Update(msg)
		return a, cmd

	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
	}
	return a, nil
}

func (a *App) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	key := msg.String()
	if key == "ctrl+c" {
		a.cancel()
		return a, tea.Quit
	}

	// A pending switch consumes every other key
	if a.pending != nil {
		switch key {
		case "y":
			a.choices = append(a.choices, switcher.Prune)
			if len(a.choices) == len(a.pending.Conflicts) {
				return a, a.resolveSwitch(a.choices)
			}
		case "n", "esc":
			for len(a.choices) < len(a.pending.Conflicts) {
				a.choices = append(a.choices, switcher.Abort)
			}
			return a, a.resolveSwitch(a.choices)
		}
		return a, nil
	}

	switch key {
	case "q":
		a.cancel()
		return a, tea.Quit
	case "esc":
		if a.Busy() {
			a.cancel()
		}
	case "r":
		if a.retry != nil {
			retry := a.retry
			a.err, a.retry = nil, nil
			return a, retry()
		}
		return a, a.startRefresh()
	case "s":
		return a, a.startSamples()
	case "c":
		if a.lastSQL != "" {
			return a, copyStatement(a.lastSQL)
		}
	}
	return a, nil
}

// cancel stops the running workers. Their results come back as
// cancellations and are dropped silently.
func (a *App) cancel() {
	if a.cancelRefresh != nil {
		a.cancelRefresh()
	}
	if a.deps.Gateway != nil {
		a.deps.Gateway.CancelOwner(refreshOwner)
		a.deps.Gateway.CancelOwner(samplesOwner)
	}
}

// fail records err for display, or clears the busy state silently when err
// is a cancellation
func (a *App) fail(title string, err error, retry func() tea.Cmd) tea.Cmd {
	if connection.IsCancelled(err) {
		a.status = "Cancelled"
		return nil
	}

	var qe *connection.QueryExecutionError
	if errors.As(err, &qe) {
		log.Printf("%s: schema %s: %v\n%s", title, qe.Schema, qe.Err, qe.SQL)
	} else {
		log.Printf("%s: %v", title, err)
	}
	a.err = fmt.Errorf("%s: %w", title, err)
	a.retry = retry
	return nil
}

func (a *App) columnsFor(analysis models.Analysis) []*models.Field {
	if a.deps.Registry == nil {
		return nil
	}
	var cols []*models.Field
	for _, name := range defaultColumns {
		f, err := a.deps.Registry.Resolve(name)
		if err == nil && f.HasAnalysis(analysis) {
			cols = append(cols, f)
		}
	}
	if len(cols) == 0 {
		return a.deps.Registry.FieldsFor(analysis)
	}
	return cols
}

type styles struct {
	bar    lipgloss.Style
	err    lipgloss.Style
	prompt lipgloss.Style
	dim    lipgloss.Style
	header lipgloss.Style
}

func newStyles(th theme.Theme) styles {
	return styles{
		bar:    lipgloss.NewStyle().Background(th.Bar).Foreground(th.BarText).Padding(0, 2),
		err:    lipgloss.NewStyle().Foreground(th.Error).Bold(true),
		prompt: lipgloss.NewStyle().Foreground(th.Prompt),
		dim:    lipgloss.NewStyle().Foreground(th.Muted),
		header: lipgloss.NewStyle().Foreground(th.TableHeader).Bold(true),
	}
}

// View implements tea.Model
func (a *App) View() string {
	var b strings.Builder

	top := "lazyvar | " + a.analysis.String()
	if a.Busy() {
		top += " " + a.spinner.View()
	}
	b.WriteString(a.styles.bar.Width(a.width).Render(top))
	b.WriteString("\n")

	fmt.Fprintf(&b, "Filter: %s\n", a.ws.Filter)
	if len(a.samples) > 0 {
		fmt.Fprintf(&b, "Samples: %s\n", strings.Join(a.samples, ", "))
	}
	fmt.Fprintf(&b, "Matches: %d\n", a.count)
	if len(a.sampleNames) > 0 {
		fmt.Fprintf(&b, "Samples with matches: %s\n", strings.Join(a.sampleNames, ", "))
	}

	if len(a.table.Columns) > 0 {
		b.WriteString("\n")
		b.WriteString(renderTable(a.table, a.styles.header))
		if a.table.Truncated {
			b.WriteString(a.styles.dim.Render(fmt.Sprintf("(first %d rows)", len(a.table.Rows))))
			b.WriteString("\n")
		}
	}

	if a.pending != nil {
		c := a.pending.Conflicts[len(a.choices)]
		b.WriteString("\n")
		b.WriteString(a.styles.prompt.Render(c.Prompt() + " [y] remove  [n] abort"))
		b.WriteString("\n")
	}
	if a.err != nil {
		b.WriteString("\n")
		b.WriteString(a.styles.err.Render(a.err.Error()))
		if a.retry != nil {
			b.WriteString(a.styles.dim.Render("  [r] retry"))
		}
		b.WriteString("\n")
	}

	bottom := "[r] refresh | [s] samples | [c] copy SQL | [esc] cancel | [q] quit"
	if a.status != "" {
		bottom = a.status + " | " + bottom
	}
	b.WriteString(a.styles.bar.Width(a.width).Render(bottom))
	return b.String()
}

// Cells wider than this are cut with an ellipsis
const maxCellWidth = 40

func renderTable(t query.Table, header lipgloss.Style) string {
	widths := make([]int, len(t.Columns))
	for i, c := range t.Columns {
		widths[i] = runewidth.StringWidth(c)
	}
	rows := make([][]string, len(t.Rows))
	for r, row := range t.Rows {
		rows[r] = make([]string, len(row))
		for i, v := range row {
			v = runewidth.Truncate(v, maxCellWidth, "…")
			rows[r][i] = v
			if w := runewidth.StringWidth(v); w > widths[i] {
				widths[i] = w
			}
		}
	}

	var b strings.Builder
	line := func(cells []string, style lipgloss.Style) {
		for i, v := range cells {
			b.WriteString(style.Width(widths[i] + 2).Render(v))
		}
		b.WriteString("\n")
	}
	line(t.Columns, header)
	for _, row := range rows {
		line(row, lipgloss.NewStyle())
	}
	return b.String()
}
