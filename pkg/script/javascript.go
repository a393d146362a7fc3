package script

import (
	"context"
	"fmt"

	"github.com/dop251/goja"
)

type jsRunnerFactory struct{}

// sandbox evaluates a script as strict direct eval inside a function, so its var, let
// and const declarations die with the call and undeclared assignments fail.
const sandbox = `(function (__source) { "use strict"; return eval(__source); })`

func (jsRunnerFactory) NewRunner() Runner {
	vm := goja.New()

	value, err := vm.RunString(sandbox)
	if err != nil {
		panic(fmt.Sprintf("script sandbox does not compile: %v", err))
	}

	eval, ok := goja.AssertFunction(value)
	if !ok {
		panic("script sandbox is not a function")
	}

	return &jsRunner{vm: vm, eval: eval, globals: globalKeys(vm)}
}

type jsRunner struct {
	vm      *goja.Runtime
	eval    goja.Callable
	globals map[string]struct{}
}

func (r *jsRunner) Runner() {}

func globalKeys(vm *goja.Runtime) map[string]struct{} {
	keys := make(map[string]struct{})
	for _, key := range vm.GlobalObject().Keys() {
		keys[key] = struct{}{}
	}

	return keys
}

// run binds env as globals and evaluates code. Afterwards every global the VM did not
// have when it was created is removed, bindings included.
func (r *jsRunner) run(ctx context.Context, code string, env map[string]any) (any, error) {
	defer r.reset()

	for name, value := range env {
		if err := r.vm.Set(name, value); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", name, err)
		}
	}

	stop := context.AfterFunc(ctx, func() {
		r.vm.Interrupt("evaluation cancelled")
	})

	defer func() {
		stop()
		r.vm.ClearInterrupt()
	}()

	value, err := r.eval(goja.Undefined(), r.vm.ToValue(code))
	if err != nil {
		return nil, fmt.Errorf("error running script %q: %w", code, err)
	}

	if value == nil || goja.IsUndefined(value) || goja.IsNull(value) {
		return nil, nil
	}

	return value.Export(), nil
}

func (r *jsRunner) reset() {
	global := r.vm.GlobalObject()
	for _, key := range global.Keys() {
		if _, ok := r.globals[key]; !ok {
			_ = global.Delete(key)
		}
	}
}

// JavaScriptEngine runs scripts on pooled goja VMs.
type JavaScriptEngine struct {
	pool *RunnerPool
}

func NewJavaScriptEngine(ctx context.Context, maxPoolSize, minPoolSize int) *JavaScriptEngine {
	return &JavaScriptEngine{
		pool: NewRunnerPool(ctx, jsRunnerFactory{}, maxPoolSize, minPoolSize),
	}
}

func (e *JavaScriptEngine) Evaluate(ctx context.Context, code string, env map[string]any) (any, error) {
	code, bound, err := Bind(code, env)
	if err != nil {
		return nil, err
	}

	runner, err := e.pool.Get(ctx)
	if err != nil {
		return nil, err
	}
	defer e.pool.Put(runner)

	return runner.(*jsRunner).run(ctx, code, bound)
}
