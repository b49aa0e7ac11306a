package tasks

import (
	"context"
	"errors"
	"strings"

	"github.com/dshills/sagaflow-go/workflow"
)

// Automatic dependency detection: relate graph-query tasks through
// the code graph and suggest workflow edges the author did not
// declare. Suggestions are advisory; the caller decides which to wire
// via Workflow.AddDependency.

// AutoDetectConfig tunes the dependency analyzer.
type AutoDetectConfig struct {
	// MaxHops is the maximum impact distance considered when relating
	// two tasks through the graph.
	MaxHops int

	// IncludeTransitive marks indirect dependencies for inclusion.
	// Reserved: the analyzer currently reports every suggestion within
	// MaxHops regardless.
	IncludeTransitive bool

	// ConfidenceThreshold is the minimum confidence a suggestion
	// needs to be reported.
	ConfidenceThreshold float64
}

// DefaultAutoDetectConfig returns the default tuning: two hops,
// direct dependencies, 0.7 confidence floor.
func DefaultAutoDetectConfig() AutoDetectConfig {
	return AutoDetectConfig{
		MaxHops:             2,
		IncludeTransitive:   false,
		ConfidenceThreshold: 0.7,
	}
}

// WithMaxHops sets the maximum impact distance.
func (c AutoDetectConfig) WithMaxHops(n int) AutoDetectConfig {
	c.MaxHops = n
	return c
}

// WithTransitive sets transitive dependency inclusion.
func (c AutoDetectConfig) WithTransitive(include bool) AutoDetectConfig {
	c.IncludeTransitive = include
	return c
}

// WithConfidenceThreshold sets the minimum reported confidence.
func (c AutoDetectConfig) WithConfidenceThreshold(threshold float64) AutoDetectConfig {
	c.ConfidenceThreshold = threshold
	return c
}

// DependencyReasonKind classifies why a dependency was suggested.
type DependencyReasonKind string

const (
	// SymbolImpact: impact analysis reached the dependent task's
	// target within MaxHops.
	SymbolImpact DependencyReasonKind = "symbol_impact"

	// Reference: the dependent task's target directly references the
	// prerequisite's target.
	Reference DependencyReasonKind = "reference"
)

// DependencyReason explains one suggestion.
type DependencyReason struct {
	// Kind classifies the detection.
	Kind DependencyReasonKind

	// Symbol is the graph symbol that linked the two tasks.
	Symbol string

	// Hops is the impact distance for SymbolImpact reasons, 0
	// otherwise.
	Hops int
}

// DependencySuggestion proposes an edge: From should execute before
// To.
type DependencySuggestion struct {
	// From is the prerequisite task.
	From workflow.TaskID

	// To is the dependent task.
	To workflow.TaskID

	// Reason explains the detection.
	Reason DependencyReason

	// Confidence scores the suggestion between 0 and 1.
	Confidence float64
}

// highConfidence is the floor above which a suggestion is considered
// safe to wire without review.
const highConfidence = 0.8

// IsHighConfidence reports whether the suggestion is safe to wire
// without review.
func (s DependencySuggestion) IsHighConfidence() bool {
	return s.Confidence >= highConfidence
}

// referenceConfidence scores a direct reference detection. A direct
// reference is stronger evidence than a multi-hop impact.
const referenceConfidence = 0.85

// DependencyAnalyzer suggests workflow edges by analyzing the code
// graph targets of GraphQueryTasks.
type DependencyAnalyzer struct {
	querier GraphQuerier
	config  AutoDetectConfig
}

// NewDependencyAnalyzer creates an analyzer with the default
// configuration.
func NewDependencyAnalyzer(querier GraphQuerier) *DependencyAnalyzer {
	return &DependencyAnalyzer{querier: querier, config: DefaultAutoDetectConfig()}
}

// WithConfig replaces the analyzer's configuration.
func (a *DependencyAnalyzer) WithConfig(config AutoDetectConfig) *DependencyAnalyzer {
	a.config = config
	return a
}

// DetectDependencies analyzes a workflow's graph-query tasks and
// suggests edges between tasks whose targets are related in the code
// graph.
//
// For each pair of targets, impact analysis walks outward from the
// prerequisite up to MaxHops; a hit on another task's target becomes
// a SymbolImpact suggestion whose confidence decays with distance.
// Direct references become Reference suggestions. Duplicate pairs and
// edges already present in the workflow are dropped. Individual query
// failures skip that target; the analysis is best-effort.
func (a *DependencyAnalyzer) DetectDependencies(ctx context.Context, w *workflow.Workflow) ([]DependencySuggestion, error) {
	if a.querier == nil {
		return nil, errors.New("no graph querier configured")
	}

	// Collect graph-query targets in insertion order so output is
	// deterministic.
	ids := w.TaskIDs()
	targets := make(map[workflow.TaskID]string, len(ids))
	var queryIDs []workflow.TaskID
	for _, id := range ids {
		task, ok := w.Task(id)
		if !ok {
			continue
		}
		if gq, ok := task.(*GraphQueryTask); ok && gq.Target() != "" {
			targets[id] = gq.Target()
			queryIDs = append(queryIDs, id)
		}
	}

	var suggestions []DependencySuggestion
	for _, from := range queryIDs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		impacted, err := a.impactWithin(ctx, targets[from], a.config.MaxHops)
		if err == nil {
			for _, to := range queryIDs {
				if to == from {
					continue
				}
				for symbol, hops := range impacted {
					if !symbolMatches(targets[to], symbol) {
						continue
					}
					confidence := impactConfidence(hops)
					if confidence < a.config.ConfidenceThreshold {
						continue
					}
					suggestions = append(suggestions, DependencySuggestion{
						From:       from,
						To:         to,
						Reason:     DependencyReason{Kind: SymbolImpact, Symbol: symbol, Hops: hops},
						Confidence: confidence,
					})
					break
				}
			}
		}

		refs, err := a.querier.References(ctx, targets[from])
		if err != nil {
			continue
		}
		for _, to := range queryIDs {
			if to == from {
				continue
			}
			for _, symbol := range refs {
				if !symbolMatches(targets[to], symbol) {
					continue
				}
				if referenceConfidence < a.config.ConfidenceThreshold {
					break
				}
				suggestions = append(suggestions, DependencySuggestion{
					From:       from,
					To:         to,
					Reason:     DependencyReason{Kind: Reference, Symbol: symbol},
					Confidence: referenceConfidence,
				})
				break
			}
		}
	}

	return a.prune(w, suggestions), nil
}

// impactWithin walks impact analysis outward from target, recording
// the shortest hop distance per reached symbol.
func (a *DependencyAnalyzer) impactWithin(ctx context.Context, target string, maxHops int) (map[string]int, error) {
	reached := make(map[string]int)
	frontier := []string{target}
	seen := map[string]bool{target: true}

	for hop := 1; hop <= maxHops && len(frontier) > 0; hop++ {
		var next []string
		for _, symbol := range frontier {
			impacted, err := a.querier.ImpactOf(ctx, symbol)
			if err != nil {
				return nil, err
			}
			for _, hit := range impacted {
				if seen[hit] {
					continue
				}
				seen[hit] = true
				reached[hit] = hop
				next = append(next, hit)
			}
		}
		frontier = next
	}
	return reached, nil
}

// prune drops duplicate pairs (first detection wins) and edges the
// workflow already has.
func (a *DependencyAnalyzer) prune(w *workflow.Workflow, suggestions []DependencySuggestion) []DependencySuggestion {
	seen := make(map[[2]workflow.TaskID]bool, len(suggestions))
	var kept []DependencySuggestion
	for _, s := range suggestions {
		pair := [2]workflow.TaskID{s.From, s.To}
		if seen[pair] {
			continue
		}
		seen[pair] = true

		existing := false
		if incoming, err := w.Incoming(s.To); err == nil {
			for _, id := range incoming {
				if id == s.From {
					existing = true
					break
				}
			}
		}
		if !existing {
			kept = append(kept, s)
		}
	}
	return kept
}

// symbolMatches relates a task target to a graph symbol: exact match
// or containment either way.
func symbolMatches(target, symbol string) bool {
	if target == "" || symbol == "" {
		return false
	}
	return strings.Contains(symbol, target) || strings.Contains(target, symbol)
}

// impactConfidence decays with hop distance: 0.9 at one hop, minus
// 0.1 per additional hop, floored at 0.5.
func impactConfidence(hops int) float64 {
	confidence := 0.9 - 0.1*float64(hops-1)
	if confidence < 0.5 {
		return 0.5
	}
	if confidence > 1.0 {
		return 1.0
	}
	return confidence
}
