// Package switcher validates analysis switches against the active filter,
// highlighting rules and sorting criteria.
package switcher

import (
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/rebeliceyang/lazyvar/internal/filter"
	"github.com/rebeliceyang/lazyvar/internal/models"
)

var (
	// ErrSwitchInProgress is returned by Begin while another switch waits
	// for answers
	ErrSwitchInProgress = errors.New("an analysis switch is already pending")
	// ErrNoPendingSwitch is returned by Resolve when nothing is pending
	ErrNoPendingSwitch = errors.New("no analysis switch is pending")
)

// State of the validator
type State int

const (
	// Stable means the workspace is valid for the current analysis
	Stable State = iota
	// Pending means a switch waits for the user's answers
	Pending
)

func (s State) String() string {
	if s == Pending {
		return "pending"
	}
	return "stable"
}

// ArtifactKind names what holds incompatible criteria
type ArtifactKind string

const (
	FilterArtifact    ArtifactKind = "filter"
	HighlightArtifact ArtifactKind = "highlighting rule"
	SortingArtifact   ArtifactKind = "sorting criterion"
)

// Choice is the user's answer to one conflict
type Choice int

const (
	// Prune removes the incompatible criteria and continues
	Prune Choice = iota
	// Abort cancels the whole switch
	Abort
)

// Workspace is everything that depends on the current analysis
type Workspace struct {
	Filter       filter.Tree
	Highlighting []models.HighlightingRule
	Sorting      []models.SortingCriterion
}

// Conflict is one artifact that cannot follow the switch as is
type Conflict struct {
	Kind ArtifactKind
	// Index of the rule or criterion; always 0 for the filter
	Index int
	Err   *filter.IncompatibleFieldError
}

// Prompt is the question shown to the user
func (c Conflict) Prompt() string {
	return fmt.Sprintf("%s: remove and continue, or abort the switch?", c.Err)
}

// PendingSwitch is a switch waiting for one choice per conflict
type PendingSwitch struct {
	From      models.Analysis
	To        models.Analysis
	Workspace Workspace
	Conflicts []Conflict
}

// Outcome is the result of a resolved switch
type Outcome struct {
	// Analysis is the analysis in effect afterwards: the target, or the
	// previous one when the switch was aborted
	Analysis  models.Analysis
	Workspace Workspace
	Aborted   bool
	// Removed describes every pruned leaf, rule and criterion
	Removed []string
}

// Prompter asks the user about one conflict
type Prompter interface {
	Choose(c Conflict) Choice
}

// PrompterFunc adapts a function to Prompter
type PrompterFunc func(Conflict) Choice

func (f PrompterFunc) Choose(c Conflict) Choice { return f(c) }

// Validator owns the current analysis. Only one switch can be pending.
type Validator struct {
	mu      sync.Mutex
	current models.Analysis
	pending *PendingSwitch
}

// NewValidator starts in the Stable state on analysis a
func NewValidator(a models.Analysis) *Validator {
	return &Validator{current: a}
}

// Current returns the analysis in effect
func (v *Validator) Current() models.Analysis {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.current
}

// State returns Pending while a switch waits for answers
func (v *Validator) State() State {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.pending != nil {
		return Pending
	}
	return Stable
}

// Begin checks each artifact of ws against target independently and enters
// the Pending state. The current analysis does not change until Resolve.
func (v *Validator) Begin(target models.Analysis, ws Workspace) (*PendingSwitch, error) {
	if target.IsZero() {
		return nil, fmt.Errorf("no target analysis")
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.pending != nil {
		return nil, ErrSwitchInProgress
	}

	p := &PendingSwitch{From: v.current, To: target, Workspace: ws}
	p.Conflicts = Check(target, ws)
	v.pending = p
	return p, nil
}

// Check lists the artifacts of ws that are incompatible with target
func Check(target models.Analysis, ws Workspace) []Conflict {
	var conflicts []Conflict
	if err := filter.NewIncompatibleFieldError(string(FilterArtifact), ws.Filter, target); err != nil {
		conflicts = append(conflicts, Conflict{Kind: FilterArtifact, Err: err})
	}
	for i, rule := range ws.Highlighting {
		if !rule.Field.HasAnalysis(target) {
			conflicts = append(conflicts, Conflict{Kind: HighlightArtifact, Index: i, Err: &filter.IncompatibleFieldError{
				Analysis: target,
				Artifact: string(HighlightArtifact) + " " + rule.Name(),
				Leaves:   []string{rule.Name()},
				Fields:   []string{rule.Field.Name},
			}})
		}
	}
	for i, sc := range ws.Sorting {
		if !sc.Field.HasAnalysis(target) {
			conflicts = append(conflicts, Conflict{Kind: SortingArtifact, Index: i, Err: &filter.IncompatibleFieldError{
				Analysis: target,
				Artifact: string(SortingArtifact) + " " + sc.Name(),
				Leaves:   []string{sc.Name()},
				Fields:   []string{sc.Field.Name},
			}})
		}
	}
	return conflicts
}

// Resolve applies one choice per conflict, in order, and returns to Stable.
// A single Abort rolls the whole switch back; nothing is pruned in that case.
func (v *Validator) Resolve(choices []Choice) (Outcome, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	p := v.pending
	if p == nil {
		return Outcome{}, ErrNoPendingSwitch
	}
	if len(choices) != len(p.Conflicts) {
		return Outcome{}, fmt.Errorf("got %d choices for %d conflicts", len(choices), len(p.Conflicts))
	}
	v.pending = nil

	for _, c := range choices {
		if c == Abort {
			log.Printf("Analysis switch from %s to %s aborted", p.From, p.To)
			return Outcome{Analysis: p.From, Workspace: p.Workspace, Aborted: true}, nil
		}
	}

	ws, removed, err := adapt(p.To, p.Workspace)
	if err != nil {
		return Outcome{Analysis: p.From, Workspace: p.Workspace, Aborted: true}, err
	}
	v.current = p.To
	log.Printf("Switched analysis from %s to %s (%d criteria removed)", p.From, p.To, len(removed))
	return Outcome{Analysis: p.To, Workspace: ws, Removed: removed}, nil
}

// Abort drops the pending switch, if any
func (v *Validator) Abort() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.pending = nil
}

// Switch runs Begin, asks p about each conflict and resolves. It stops
// asking after the first Abort.
func (v *Validator) Switch(target models.Analysis, ws Workspace, p Prompter) (Outcome, error) {
	pending, err := v.Begin(target, ws)
	if err != nil {
		return Outcome{}, err
	}
	choices := make([]Choice, len(pending.Conflicts))
	for i, c := range pending.Conflicts {
		choices[i] = p.Choose(c)
		if choices[i] == Abort {
			for j := i + 1; j < len(choices); j++ {
				choices[j] = Abort
			}
			break
		}
	}
	return v.Resolve(choices)
}

// adapt prunes every artifact for target and moves them over
func adapt(target models.Analysis, ws Workspace) (Workspace, []string, error) {
	var removed []string

	tree, pruned := ws.Filter.Prune(target)
	for _, l := range pruned {
		removed = append(removed, string(FilterArtifact)+": "+l.String())
	}
	if !tree.ChangeAnalysis(target) {
		return Workspace{}, nil, filter.NewIncompatibleFieldError(string(FilterArtifact), tree, target)
	}

	out := Workspace{Filter: tree}
	for _, rule := range ws.Highlighting {
		if rule.Field.HasAnalysis(target) {
			out.Highlighting = append(out.Highlighting, rule)
			continue
		}
		removed = append(removed, string(HighlightArtifact)+": "+rule.Name())
	}
	for _, sc := range ws.Sorting {
		if sc.Field.HasAnalysis(target) {
			out.Sorting = append(out.Sorting, sc)
			continue
		}
		removed = append(removed, string(SortingArtifact)+": "+sc.Name())
	}
	return out, removed, nil
}
