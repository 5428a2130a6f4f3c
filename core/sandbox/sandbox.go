// Package sandbox runs untrusted transformation units: short, synchronous
// JavaScript functions that derive summaries, blocking keys and migrated
// content from document JSON. Every run gets a fresh interpreter with no
// network, file system, timers or wall clock; the only host capability is the
// DateTime bridge.
package sandbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dop251/goja"
	"go.uber.org/zap"
)

// Unit is a transformation function: its human-readable source and the
// directly executable CommonJS-style JavaScript compiled from it. The
// default export is module.exports.default when present, otherwise
// module.exports.
type Unit struct {
	Source   string `json:"source" yaml:"source"`
	Compiled string `json:"compiled" yaml:"compiled"`
}

// FromSource builds a unit from code that is already CommonJS, as written
// by hand or by an assistant.
func FromSource(code string) Unit {
	return Unit{Source: code, Compiled: code}
}

// IsZero reports whether the unit carries no code.
func (u Unit) IsZero() bool {
	return u.Compiled == ""
}

// Observer receives one call per run with its outcome: "ok" or a FailureKind.
type Observer interface {
	ObserveRun(outcome string, elapsed time.Duration)
}

// Options configure a Sandbox.
type Options struct {
	// Timeout bounds the wall-clock time of a single run.
	Timeout time.Duration
	// MaxCallStackSize bounds guest recursion.
	MaxCallStackSize int
	// Location is the zone local ISO literals are interpreted in.
	Location *time.Location
	// Now is the clock DateTime.now() reads once per run.
	Now func() time.Time

	Logger   *zap.Logger
	Observer Observer
}

// DefaultOptions returns the options used when none are given.
func DefaultOptions() Options {
	return Options{
		Timeout:          250 * time.Millisecond,
		MaxCallStackSize: 512,
		Location:         time.UTC,
		Now:              time.Now,
	}
}

// Sandbox executes transformation units. It is safe for concurrent use; no
// guest state survives between runs.
type Sandbox struct {
	opts   Options
	cache  *programCache
	logger *zap.Logger
}

var errTimeout = errors.New("time budget exceeded")

// New creates a sandbox. Zero-valued options fall back to DefaultOptions.
func New(opts Options) *Sandbox {
	def := DefaultOptions()
	if opts.Timeout <= 0 {
		opts.Timeout = def.Timeout
	}
	if opts.MaxCallStackSize <= 0 {
		opts.MaxCallStackSize = def.MaxCallStackSize
	}
	if opts.Location == nil {
		opts.Location = def.Location
	}
	if opts.Now == nil {
		opts.Now = def.Now
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sandbox{opts: opts, cache: newProgramCache(), logger: logger}
}

// Check compiles the unit without running it and returns any compile failure.
func (s *Sandbox) Check(unit Unit) error {
	_, _, err := s.cache.load(unit.Compiled)
	return err
}

// Run invokes the unit's default export with input and returns its result
// decoded from JSON. Every failure is a *Failure.
func (s *Sandbox) Run(ctx context.Context, unit Unit, input any) (any, error) {
	start := time.Now()
	out, err := s.run(ctx, unit, input)

	outcome := "ok"
	if f, ok := AsFailure(err); ok {
		outcome = string(f.Kind)
		s.logger.Debug("transformation unit failed",
			zap.String("kind", string(f.Kind)),
			zap.String("message", f.Message),
			zap.Duration("elapsed", time.Since(start)))
	}
	if s.opts.Observer != nil {
		s.opts.Observer.ObserveRun(outcome, time.Since(start))
	}
	return out, err
}

func (s *Sandbox) run(ctx context.Context, unit Unit, input any) (any, error) {
	if unit.IsZero() {
		return nil, compileFailure("unit has no compiled code")
	}
	program, key, err := s.cache.load(unit.Compiled)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, &Failure{Kind: TimeoutFailure, Message: "cancelled before start", Err: err}
	}

	inputJSON, err := json.Marshal(input)
	if err != nil {
		return nil, runtimeFailure(err, "input is not serializable: %v", err)
	}

	vm := goja.New()
	vm.SetMaxCallStackSize(s.opts.MaxCallStackSize)

	timer := time.AfterFunc(s.opts.Timeout, func() { vm.Interrupt(errTimeout) })
	defer timer.Stop()
	stop := context.AfterFunc(ctx, func() { vm.Interrupt(ctx.Err()) })
	defer stop()

	if err := s.isolate(vm); err != nil {
		return nil, runtimeFailure(err, "preparing interpreter: %v", err)
	}

	fn, err := s.instantiate(vm, program)
	if err != nil {
		if f, ok := AsFailure(err); ok && f.Kind == CompileFailure {
			s.cache.reject(key, f)
		}
		return nil, err
	}

	arg, err := guestJSON(vm, "parse", vm.ToValue(string(inputJSON)))
	if err != nil {
		return nil, s.classify(err)
	}

	result, err := fn(goja.Undefined(), arg)
	if err != nil {
		return nil, s.classify(err)
	}

	encoded, err := guestJSON(vm, "stringify", result)
	if err != nil {
		return nil, s.classify(err)
	}
	if goja.IsUndefined(encoded) {
		return nil, runtimeFailure(nil, "result is not JSON-serializable")
	}

	var out any
	if err := json.Unmarshal([]byte(encoded.String()), &out); err != nil {
		return nil, runtimeFailure(err, "decoding result: %v", err)
	}
	return out, nil
}

// isolate removes ambient clock access and installs the DateTime bridge.
func (s *Sandbox) isolate(vm *goja.Runtime) error {
	global := vm.GlobalObject()
	if err := global.Delete("Date"); err != nil {
		return err
	}

	prelude, err := loadPrelude()
	if err != nil {
		return fmt.Errorf("compiling date prelude: %w", err)
	}
	factoryValue, err := vm.RunProgram(prelude)
	if err != nil {
		return err
	}
	factory, ok := goja.AssertFunction(factoryValue)
	if !ok {
		return errors.New("date prelude is not a function")
	}

	now := s.opts.Now().In(s.opts.Location).Format(isoDateTimeLayout)
	flush := func(call goja.FunctionCall) goja.Value {
		out, err := replayDate(
			call.Argument(0).String(),
			call.Argument(1).String(),
			call.Argument(2).String(),
			s.opts.Location,
		)
		if err != nil {
			panic(vm.NewTypeError(err.Error()))
		}
		return vm.ToValue(out)
	}

	api, err := factory(goja.Undefined(), vm.ToValue(flush), vm.ToValue(now))
	if err != nil {
		return err
	}
	return vm.Set("DateTime", api)
}

// instantiate evaluates the module body and returns its callable default
// export.
func (s *Sandbox) instantiate(vm *goja.Runtime, program *goja.Program) (goja.Callable, error) {
	wrapperValue, err := vm.RunProgram(program)
	if err != nil {
		return nil, s.classify(err)
	}
	wrapper, ok := goja.AssertFunction(wrapperValue)
	if !ok {
		return nil, compileFailure("module wrapper is not callable")
	}

	module := vm.NewObject()
	exports := vm.NewObject()
	if err := module.Set("exports", exports); err != nil {
		return nil, runtimeFailure(err, "preparing module: %v", err)
	}
	if _, err := wrapper(goja.Undefined(), module, exports); err != nil {
		return nil, s.classify(err)
	}

	exported := module.Get("exports")
	if obj, ok := exported.(*goja.Object); ok {
		if def := obj.Get("default"); def != nil && !goja.IsUndefined(def) {
			exported = def
		}
	}
	fn, ok := goja.AssertFunction(exported)
	if !ok {
		return nil, compileFailure("default export is not callable")
	}
	return fn, nil
}

// guestJSON calls JSON.parse or JSON.stringify inside the interpreter.
func guestJSON(vm *goja.Runtime, method string, arg goja.Value) (goja.Value, error) {
	fn, ok := goja.AssertFunction(vm.Get("JSON").ToObject(vm).Get(method))
	if !ok {
		return nil, fmt.Errorf("JSON.%s is unavailable", method)
	}
	return fn(goja.Undefined(), arg)
}

func (s *Sandbox) classify(err error) error {
	var interrupted *goja.InterruptedError
	if errors.As(err, &interrupted) {
		msg := "exceeded time budget"
		if cause, ok := interrupted.Value().(error); ok && !errors.Is(cause, errTimeout) {
			msg = cause.Error()
		}
		return &Failure{Kind: TimeoutFailure, Message: msg, Err: err}
	}

	var overflow *goja.StackOverflowError
	if errors.As(err, &overflow) {
		return runtimeFailure(err, "maximum call stack size exceeded")
	}

	var exception *goja.Exception
	if errors.As(err, &exception) {
		return runtimeFailure(err, "%s", exception.Value().String())
	}
	return runtimeFailure(err, "%v", err)
}
