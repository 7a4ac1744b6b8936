package mcp

import (
	"context"
	"encoding/json"
	"runtime/debug"
	"sort"
	"time"

	"github.com/google/uuid"

	"stockd/internal/logging"
	"stockd/internal/query"
	"stockd/internal/types"
)

// Method names served by the dispatcher.
const (
	MethodGetStockByCode      = "get_stock_by_code"
	MethodSearchStocksByName  = "search_stocks_by_name"
	MethodGetStocksByIndustry = "get_stocks_by_industry"
	MethodGetStocksBySize     = "get_stocks_by_size"
	MethodGetAllStocks        = "get_all_stocks"
)

// Request outcomes reported to the Observer.
const (
	OutcomeOK       = "ok"
	OutcomeNotFound = "not_found"
)

// Handler runs one method. A nil *Error means result is the success payload.
type Handler func(ctx context.Context, params Params) (result interface{}, err *Error)

// Observer receives one call per handled request. The method is "unknown"
// for names outside the method table.
type Observer interface {
	ObserveRequest(method, outcome string, elapsed time.Duration)
}

// Dispatcher maps one request to one response. It holds no per-call state:
// the method table is fixed at construction and the store is read-only.
type Dispatcher struct {
	engine   *query.Engine
	methods  map[string]Handler
	observer Observer
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithObserver reports every request to o.
func WithObserver(o Observer) DispatcherOption {
	return func(d *Dispatcher) {
		d.observer = o
	}
}

// NewDispatcher builds a dispatcher serving engine's store.
func NewDispatcher(engine *query.Engine, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{engine: engine}
	d.methods = map[string]Handler{
		MethodGetStockByCode:      d.getStockByCode,
		MethodSearchStocksByName:  d.searchStocksByName,
		MethodGetStocksByIndustry: d.getStocksByIndustry,
		MethodGetStocksBySize:     d.getStocksBySize,
		MethodGetAllStocks:        d.getAllStocks,
	}
	for _, opt := range opts {
		opt(d)
	}
	logging.DispatchDebug("Dispatcher ready with %d methods", len(d.methods))
	return d
}

// Methods returns the served method names, sorted.
func (d *Dispatcher) Methods() []string {
	names := make([]string, 0, len(d.methods))
	for name := range d.methods {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// HandleLine decodes and dispatches one request line.
func (d *Dispatcher) HandleLine(ctx context.Context, line []byte) *Response {
	req, perr := ParseRequest(line)
	if perr != nil {
		var id json.RawMessage
		method := ""
		if req != nil {
			id = req.ID
			method = req.Method
		}
		logging.Get(logging.CategoryDispatch).Warn("Rejected request: %s", perr.Message)
		d.observe(method, string(perr.Kind), 0)
		return Failure(id, perr)
	}
	return d.Dispatch(ctx, req)
}

// Dispatch resolves the request's method and runs it. Any panic raised while
// matching is converted into an internal error envelope.
func (d *Dispatcher) Dispatch(ctx context.Context, req *Request) (resp *Response) {
	if req == nil {
		return Failure(nil, newError(KindProtocol, "Invalid request"))
	}
	start := time.Now()
	log := logging.Get(logging.CategoryDispatch).With("request_id", uuid.NewString(), "method", req.Method)
	log.Info("Handling request")

	outcome := OutcomeOK
	defer func() {
		if rec := recover(); rec != nil {
			log.Error("Internal error: %v\n%s", rec, debug.Stack())
			resp = Failure(req.ID, newError(KindInternal, "Internal error: %v", rec))
			outcome = string(KindInternal)
		}
		elapsed := time.Since(start)
		log.Debug("Handled request outcome=%s elapsed=%v", outcome, elapsed)
		d.observe(req.Method, outcome, elapsed)
	}()

	handler, ok := d.methods[req.Method]
	if !ok {
		outcome = string(KindProtocol)
		return Failure(req.ID, newError(KindProtocol, "Unknown method: %s", req.Method))
	}

	result, herr := handler(ctx, req.Params)
	if herr != nil {
		outcome = string(herr.Kind)
		return Failure(req.ID, herr)
	}
	if isNotFound(result) {
		outcome = OutcomeNotFound
	}
	return Success(req.ID, result)
}

func (d *Dispatcher) observe(method, outcome string, elapsed time.Duration) {
	if d.observer == nil {
		return
	}
	if _, ok := d.methods[method]; !ok {
		method = "unknown"
	}
	d.observer.ObserveRequest(method, outcome, elapsed)
}

func isNotFound(result interface{}) bool {
	switch r := result.(type) {
	case NotFoundPayload:
		return true
	case []NotFoundPayload:
		return len(r) > 0
	default:
		return false
	}
}

// single shapes an outcome for a method returning one record.
func single(out query.Outcome) interface{} {
	if r, ok := out.First(); ok {
		return r
	}
	return NotFoundPayload{Error: out.Reason()}
}

// list shapes an outcome for a method returning a sequence.
func list(out query.Outcome) interface{} {
	if !out.Found() {
		return []NotFoundPayload{{Error: out.Reason()}}
	}
	records := out.Records()
	if records == nil {
		records = []types.Record{}
	}
	return records
}

func (d *Dispatcher) getStockByCode(ctx context.Context, p Params) (interface{}, *Error) {
	code, err := p.Text("code")
	if err != nil {
		return nil, err
	}
	return single(d.engine.ByCode(code)), nil
}

func (d *Dispatcher) searchStocksByName(ctx context.Context, p Params) (interface{}, *Error) {
	name, err := p.Text("name")
	if err != nil {
		return nil, err
	}
	return list(d.engine.SearchByName(name)), nil
}

func (d *Dispatcher) getStocksByIndustry(ctx context.Context, p Params) (interface{}, *Error) {
	industry, err := p.Text("industry")
	if err != nil {
		return nil, err
	}
	return list(d.engine.ByIndustry(industry)), nil
}

func (d *Dispatcher) getStocksBySize(ctx context.Context, p Params) (interface{}, *Error) {
	size, ok, label, err := p.Integer("size_code")
	if err != nil {
		return nil, err
	}
	return list(d.engine.BySize(size, ok, label)), nil
}

func (d *Dispatcher) getAllStocks(ctx context.Context, p Params) (interface{}, *Error) {
	return list(d.engine.All()), nil
}
