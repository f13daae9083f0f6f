package dispatch

import "unisearch/internal/model"

// Result is the parsed outcome of one MCP backend call. A failed or
// unparseable call degrades to a Result with Success=false and an empty
// Results/Count/Aggregates set; the orchestrator treats this as a partial
// failure, never a hard error.
type Result struct {
	Results    []model.SearchResult
	Count      *int64
	Aggregates []model.AggregateGroup
	Mode       model.Mode
	Success    bool
	Errors     []string
}

func emptyResult(mode model.Mode, errs ...string) Result {
	return Result{Mode: mode, Success: false, Errors: errs}
}
