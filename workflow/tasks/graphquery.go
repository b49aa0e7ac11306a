package tasks

import (
	"context"
	"fmt"

	"github.com/dshills/sagaflow-go/workflow"
)

// GraphQueryType selects the kind of code-graph query a
// GraphQueryTask runs.
type GraphQueryType string

const (
	// FindSymbol looks a symbol up by name.
	FindSymbol GraphQueryType = "find_symbol"

	// References finds references to a symbol.
	References GraphQueryType = "references"

	// ImpactAnalysis analyzes the impact of changing a symbol.
	ImpactAnalysis GraphQueryType = "impact_analysis"
)

// GraphQuerier is the contract a code-graph backend exposes to graph
// query tasks. The engine treats the backend as an external
// collaborator; any indexing system satisfying this interface plugs
// in.
type GraphQuerier interface {
	// FindSymbol returns the locations of a symbol by name.
	FindSymbol(ctx context.Context, name string) ([]string, error)

	// References returns the references to a symbol.
	References(ctx context.Context, name string) ([]string, error)

	// ImpactOf returns the symbols affected by changing the named
	// symbol.
	ImpactOf(ctx context.Context, name string) ([]string, error)
}

// GraphQueryTask queries a code graph. Queries are read-only, so the
// task carries a stable Skip compensation.
type GraphQueryTask struct {
	id        workflow.TaskID
	name      string
	deps      []workflow.TaskID
	queryType GraphQueryType
	target    string
	querier   GraphQuerier

	// Results holds the last run's matches for downstream inspection.
	results []string
}

// NewGraphQueryTask creates a query task.
func NewGraphQueryTask(id workflow.TaskID, queryType GraphQueryType, target string, querier GraphQuerier) *GraphQueryTask {
	return &GraphQueryTask{
		id:        id,
		name:      fmt.Sprintf("Graph Query: %s %s", queryType, target),
		queryType: queryType,
		target:    target,
		querier:   querier,
	}
}

// DependsOn declares dependency hints consumed by the Builder.
func (t *GraphQueryTask) DependsOn(ids ...workflow.TaskID) *GraphQueryTask {
	t.deps = append(t.deps, ids...)
	return t
}

// Results returns the matches from the last execution.
func (t *GraphQueryTask) Results() []string {
	return t.results
}

// Target returns the symbol the query operates on. The dependency
// analyzer reads it to relate tasks through the code graph.
func (t *GraphQueryTask) Target() string {
	return t.target
}

// ID implements workflow.Task.
func (t *GraphQueryTask) ID() workflow.TaskID {
	return t.id
}

// Name implements workflow.Task.
func (t *GraphQueryTask) Name() string {
	return t.name
}

// Dependencies implements workflow.Task.
func (t *GraphQueryTask) Dependencies() []workflow.TaskID {
	return t.deps
}

// Execute implements workflow.Task.
func (t *GraphQueryTask) Execute(ctx context.Context, tc *workflow.TaskContext) (workflow.TaskResult, error) {
	if t.querier == nil {
		return workflow.TaskResult{}, &workflow.TaskError{
			Message: "no graph querier configured",
			Code:    "GRAPH_QUERIER_MISSING",
			TaskID:  t.id,
		}
	}
	if tc.Cancelled() {
		return workflow.Skipped("cancelled before start"), nil
	}

	var results []string
	var err error
	switch t.queryType {
	case FindSymbol:
		results, err = t.querier.FindSymbol(ctx, t.target)
	case References:
		results, err = t.querier.References(ctx, t.target)
	case ImpactAnalysis:
		results, err = t.querier.ImpactOf(ctx, t.target)
	default:
		return workflow.Failed("unknown graph query type: " + string(t.queryType)), nil
	}
	if err != nil {
		return workflow.TaskResult{}, &workflow.TaskError{
			Message: fmt.Sprintf("graph query %s failed", t.queryType),
			Code:    "GRAPH_QUERY_FAILED",
			TaskID:  t.id,
			Cause:   err,
		}
	}

	t.results = results
	return workflow.Success(), nil
}

// Compensation implements workflow.Task: queries are read-only.
func (t *GraphQueryTask) Compensation() *workflow.Compensation {
	return workflow.SkipCompensation("read-only graph query")
}
