// Package dispatch implements the MCP dispatcher (C2): it binds source
// names to remote call functions and shapes/parses unified_search and
// search_capabilities exchanges with remote backends.
package dispatch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"unisearch/internal/model"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// CallFunc is the shape of one MCP backend call: an async
// (method_name, arguments) -> response dict. The actual
// MCP transport (stdio, SSE, HTTP) is wired in by the caller; the
// dispatcher depends only on this shape.
type CallFunc func(ctx context.Context, method string, args map[string]interface{}) (map[string]interface{}, error)

type binding struct {
	connectionKey      string
	callFn             CallFunc
	requestRoutingArgs map[string]interface{}
}

// Dispatcher maps source names to remote call functions. Maps are built at
// registration time and not mutated during a search.
type Dispatcher struct {
	mu       sync.RWMutex
	sources  map[string]binding
	limiters map[string]*rate.Limiter
	logger   *zap.Logger
}

// New creates an empty Dispatcher.
func New(logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		sources:  make(map[string]binding),
		limiters: make(map[string]*rate.Limiter),
		logger:   logger,
	}
}

// RegisterMCP binds every name in sourceNames to callFn under connectionKey.
// Later registrations for the same source name override earlier ones
// (last write wins, like the capability registry).
func (d *Dispatcher) RegisterMCP(connectionKey string, sourceNames []string, callFn CallFunc, requestRoutingArgs map[string]interface{}) {
	d.mu.Lock()
	defer d.mu.Unlock()
	b := binding{connectionKey: connectionKey, callFn: callFn, requestRoutingArgs: requestRoutingArgs}
	for _, name := range sourceNames {
		d.sources[name] = b
	}
	if _, ok := d.limiters[connectionKey]; !ok {
		// 10 req/s with a burst of 20 per connection: generous enough not to
		// throttle a single search's fan-out, strict enough to protect a
		// shared remote endpoint from a refinement storm.
		d.limiters[connectionKey] = rate.NewLimiter(rate.Limit(10), 20)
	}
}

// HasSource reports whether source is bound to an MCP call function.
func (d *Dispatcher) HasSource(source string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.sources[source]
	return ok
}

// Search shapes and issues a unified_search call for source.
func (d *Dispatcher) Search(
	ctx context.Context,
	source, query string,
	methods []model.Method,
	filters []model.FilterClause,
	topK int,
	mode model.Mode,
	sortField string,
	sortOrder model.SortOrder,
	groupBy string,
	aggregateTopN int,
) Result {
	d.mu.RLock()
	b, ok := d.sources[source]
	limiter := d.limiters[b.connectionKey]
	d.mu.RUnlock()
	if !ok {
		return emptyResult(mode, fmt.Sprintf("source %q is not bound to an MCP connection", source))
	}

	if limiter != nil {
		if err := limiter.Wait(ctx); err != nil {
			return emptyResult(mode, fmt.Sprintf("rate limit wait for %q: %v", source, err))
		}
	}

	args := map[string]interface{}{
		"query":          query,
		"top_k":          topK,
		"include_scores": true,
		"mode":           string(mode),
	}
	if len(methods) > 0 {
		strMethods := make([]string, len(methods))
		for i, m := range methods {
			strMethods[i] = string(m)
		}
		args["methods"] = strMethods
	}
	if len(filters) > 0 {
		args["filters"] = filtersToArgs(filters)
	}
	if sortField != "" {
		args["sort_field"] = sortField
		args["sort_order"] = string(sortOrder)
	}
	if mode == model.ModeAggregate {
		args["group_by"] = groupBy
		args["aggregate_top_n"] = aggregateTopN
	}
	for k, v := range b.requestRoutingArgs {
		args[k] = v
	}

	callCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	raw, err := b.callFn(callCtx, "unified_search", args)
	if err != nil {
		d.logger.Warn("mcp search call failed", zap.String("source", source), zap.Error(err))
		return emptyResult(mode, fmt.Sprintf("%s: %v", source, err))
	}

	result, err := parseResponse(raw, mode)
	if err != nil {
		d.logger.Warn("mcp search response unparseable", zap.String("source", source), zap.Error(err))
		return emptyResult(mode, fmt.Sprintf("%s: %v", source, err))
	}
	if !result.Success {
		d.logger.Warn("mcp search reported failure", zap.String("source", source), zap.Strings("errors", result.Errors))
		return emptyResult(mode, result.Errors...)
	}
	return result
}

func filtersToArgs(filters []model.FilterClause) []map[string]interface{} {
	out := make([]map[string]interface{}, 0, len(filters))
	for _, f := range filters {
		out = append(out, map[string]interface{}{
			"field":    f.Field,
			"operator": string(f.Operator),
			"value":    f.Value,
		})
	}
	return out
}

// FetchCapabilities calls the well-known search_capabilities method and
// normalizes single-source vs. multi-source payloads.
func (d *Dispatcher) FetchCapabilities(ctx context.Context, callFn CallFunc) ([]model.Capability, error) {
	raw, err := callFn(ctx, "search_capabilities", nil)
	if err != nil {
		return nil, fmt.Errorf("fetch_capabilities: %w", err)
	}
	return parseCapabilities(raw)
}
