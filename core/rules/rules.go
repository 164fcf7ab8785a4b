// Package rules evaluates boolean Expr conditions against write lifecycle
// events. Conditions guard configured hooks, for example to veto documents
// whose fields match a business rule the schema cannot express.
package rules

import (
	"fmt"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// Env is the data a condition sees. Item points fill Doc, before-batch fills
// Docs with the candidates, after-batch with the persisted documents.
type Env struct {
	Resource string
	Point    string
	Doc      map[string]any
	Docs     []map[string]any
}

func (e Env) vars() map[string]any {
	docs := make([]any, len(e.Docs))
	for i, d := range e.Docs {
		docs[i] = d
	}
	doc := e.Doc
	if doc == nil {
		doc = map[string]any{}
	}
	return map[string]any{
		"resource": e.Resource,
		"point":    e.Point,
		"doc":      doc,
		"docs":     docs,
	}
}

// template declares the variable types conditions are checked against.
var template = Env{}.vars()

// Engine compiles and caches conditions.
type Engine struct {
	cache   map[string]*vm.Program
	cacheMu sync.RWMutex

	options []expr.Option
}

// NewEngine creates an engine with the built-in function set.
func NewEngine() *Engine {
	opts := []expr.Option{expr.Env(template), expr.AsBool()}
	return &Engine{
		cache:   make(map[string]*vm.Program),
		options: append(opts, functions()...),
	}
}

// Check compiles a condition without running it.
func (e *Engine) Check(condition string) error {
	_, err := e.getOrCompile(condition)
	return err
}

// Match reports whether condition holds for env. An empty condition always
// matches.
func (e *Engine) Match(condition string, env Env) (bool, error) {
	if condition == "" {
		return true, nil
	}

	program, err := e.getOrCompile(condition)
	if err != nil {
		return false, err
	}

	result, err := expr.Run(program, env.vars())
	if err != nil {
		return false, fmt.Errorf("run condition %q: %w", condition, err)
	}
	matched, _ := result.(bool)
	return matched, nil
}

// getOrCompile returns a cached compiled program or compiles a new one.
func (e *Engine) getOrCompile(condition string) (*vm.Program, error) {
	e.cacheMu.RLock()
	program, ok := e.cache[condition]
	e.cacheMu.RUnlock()
	if ok {
		return program, nil
	}

	program, err := expr.Compile(condition, e.options...)
	if err != nil {
		return nil, fmt.Errorf("compile condition %q: %w", condition, err)
	}

	e.cacheMu.Lock()
	e.cache[condition] = program
	e.cacheMu.Unlock()

	return program, nil
}

// ClearCache drops compiled conditions. Call after the configured hooks change.
func (e *Engine) ClearCache() {
	e.cacheMu.Lock()
	e.cache = make(map[string]*vm.Program)
	e.cacheMu.Unlock()
}

var defaultEngine = NewEngine()

// Check compiles condition with the shared engine.
func Check(condition string) error {
	return defaultEngine.Check(condition)
}
