// SPDX-License-Identifier: MPL-2.0

package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/dop251/goja"

	"github.com/ptcrun/ptc/internal/capability"
	"github.com/ptcrun/ptc/internal/progress"
)

const (
	scriptName = "script.js"

	// The script is placed on the same line as the function header so that
	// line numbers in stack traces match the submitted text.
	wrapperPrefix = "(async function (capabilities, progress) {"
	wrapperSuffix = "\n})"
)

var errUnsettled = errors.New("script is waiting on a promise that nothing can settle")

// run is the state of one Execute call. Everything except post and the
// capability goroutines is confined to the goroutine that called execute,
// which is the only one allowed to touch vm.
type run struct {
	ctx        context.Context
	vm         *goja.Runtime
	dispatcher *capability.Dispatcher
	events     *progress.Channel

	jsonParse     goja.Callable
	jsonStringify goja.Callable
	errorCtor     *goja.Object
	objectProto   *goja.Object

	jobs     chan func()
	done     chan struct{}
	inflight int
}

func newRun(ctx context.Context, dispatcher *capability.Dispatcher, events *progress.Channel) *run {
	vm := goja.New()
	r := &run{
		ctx:        ctx,
		vm:         vm,
		dispatcher: dispatcher,
		events:     events,
		jobs:       make(chan func()),
		done:       make(chan struct{}),
	}

	// Captured before the script runs so that reassigning globals cannot
	// change how values cross the boundary.
	jsonObj := vm.Get("JSON").ToObject(vm)
	r.jsonParse, _ = goja.AssertFunction(jsonObj.Get("parse"))
	r.jsonStringify, _ = goja.AssertFunction(jsonObj.Get("stringify"))
	r.errorCtor = vm.Get("Error").ToObject(vm)
	r.objectProto = vm.Get("Object").ToObject(vm).Get("prototype").ToObject(vm)
	return r
}

// execute compiles and runs source, driving the event loop until the
// script's promise settles. It returns the JSON output or the fault.
func (r *run) execute(source string) (json.RawMessage, *ErrorInfo) {
	defer close(r.done)

	stop := context.AfterFunc(r.ctx, func() {
		r.vm.Interrupt(r.ctx.Err())
	})
	defer stop()

	prg, err := goja.Compile(scriptName, wrapperPrefix+source+wrapperSuffix, false)
	if err != nil {
		return nil, compileErrorInfo(err)
	}
	fnVal, err := r.vm.RunProgram(prg)
	if err != nil {
		return nil, r.faultInfo(err)
	}
	fn, ok := goja.AssertFunction(fnVal)
	if !ok {
		return nil, &ErrorInfo{Message: "script does not evaluate to a function body", Type: TypeSyntax}
	}

	caps := r.vm.NewDynamicObject(&capabilitiesObject{r: r, namespaces: make(map[string]goja.Value)})
	ret, err := fn(goja.Undefined(), caps, r.vm.ToValue(r.progress))
	if err != nil {
		return nil, r.faultInfo(err)
	}

	promise, ok := ret.Export().(*goja.Promise)
	if !ok {
		return r.encodeOutput(ret)
	}
	if err := r.wait(promise); err != nil {
		return nil, r.faultInfo(err)
	}
	// A cancelled capability call may have settled the promise with its own
	// context error before the interrupt landed; report it as an interrupt.
	if err := r.ctx.Err(); err != nil {
		return nil, r.faultInfo(err)
	}
	if promise.State() == goja.PromiseStateRejected {
		return nil, r.thrownInfo(promise.Result())
	}
	return r.encodeOutput(promise.Result())
}

// wait runs completion jobs posted by capability goroutines until p settles.
// A pending promise with no capability call in flight can never settle.
func (r *run) wait(p *goja.Promise) error {
	for p.State() == goja.PromiseStatePending {
		if err := r.ctx.Err(); err != nil {
			return err
		}
		if r.inflight == 0 {
			return errUnsettled
		}
		select {
		case job := <-r.jobs:
			job()
		case <-r.ctx.Done():
			return r.ctx.Err()
		}
	}
	return nil
}

// post hands job to the loop. Jobs posted after the run ended are dropped.
func (r *run) post(job func()) {
	select {
	case r.jobs <- job:
	case <-r.done:
	}
}

// call starts one capability call and returns its promise.
func (r *run) call(namespace, method string, invoke capability.Invoker, arg goja.Value) goja.Value {
	promise, resolve, reject := r.vm.NewPromise()

	input, err := r.toJSON(arg)
	if err != nil {
		reject(r.capabilityError(&capability.CallError{
			Namespace: namespace,
			Method:    method,
			Cause:     fmt.Errorf("argument is not serializable: %s", r.thrownInfo(r.thrown(err)).Message),
		}))
		return r.vm.ToValue(promise)
	}

	r.inflight++
	go func() {
		out, err := invoke(r.ctx, input)
		var payload []byte
		if err == nil {
			payload, err = json.Marshal(out)
			if err != nil {
				err = &capability.CallError{
					Namespace: namespace,
					Method:    method,
					Input:     input,
					Cause:     fmt.Errorf("result is not serializable: %w", err),
				}
			}
		}

		r.post(func() {
			r.inflight--
			if err != nil {
				reject(r.capabilityError(err))
				return
			}
			v, perr := r.jsonParse(goja.Undefined(), r.vm.ToValue(string(payload)))
			if perr != nil {
				reject(r.thrown(perr))
				return
			}
			resolve(v)
		})
	}()
	return r.vm.ToValue(promise)
}

// progress is the script's progress(step, data?) function.
func (r *run) progress(call goja.FunctionCall) goja.Value {
	step := call.Argument(0).String()

	var data map[string]any
	if arg := call.Argument(1); !goja.IsUndefined(arg) && !goja.IsNull(arg) {
		plain, err := r.toPlain(arg)
		if err != nil {
			panic(r.thrown(err))
		}
		switch v := plain.(type) {
		case nil:
		case map[string]any:
			data = v
		default:
			data = map[string]any{"value": v}
		}
	}

	r.events.Append(step, data)
	return goja.Undefined()
}

// toJSON returns the JSON.stringify text of a script value, or nil when
// the value has no JSON form (undefined, functions).
func (r *run) toJSON(v goja.Value) (json.RawMessage, error) {
	if v == nil || goja.IsUndefined(v) {
		return nil, nil
	}
	s, err := r.jsonStringify(goja.Undefined(), v)
	if err != nil {
		return nil, err
	}
	if goja.IsUndefined(s) {
		return nil, nil
	}
	return json.RawMessage(s.String()), nil
}

// toPlain converts a script value into plain JSON data (maps, slices,
// float64, string, bool, nil) the way JSON.stringify sees it.
func (r *run) toPlain(v goja.Value) (any, error) {
	raw, err := r.toJSON(v)
	if err != nil || raw == nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// encodeOutput serializes the script's return value with JSON.stringify.
// undefined, and values JSON cannot represent such as functions, become null.
func (r *run) encodeOutput(v goja.Value) (json.RawMessage, *ErrorInfo) {
	if v == nil || goja.IsUndefined(v) {
		return nil, nil
	}
	s, err := r.jsonStringify(goja.Undefined(), v)
	if err != nil {
		return nil, r.faultInfo(err)
	}
	if goja.IsUndefined(s) {
		return nil, nil
	}
	return json.RawMessage(s.String()), nil
}

// capabilityError builds the Error a failed capability call rejects with.
func (r *run) capabilityError(err error) goja.Value {
	obj, nerr := r.vm.New(r.errorCtor, r.vm.ToValue(err.Error()))
	if nerr != nil {
		return r.vm.ToValue(err.Error())
	}
	_ = obj.Set("name", "CapabilityError")
	_ = obj.Set("kind", string(capability.KindOf(err)))

	var callErr *capability.CallError
	if errors.As(err, &callErr) {
		_ = obj.Set("namespace", callErr.Namespace)
		_ = obj.Set("method", callErr.Method)
	}
	return obj
}

// thrown returns the script-visible value of an error raised by the runtime.
func (r *run) thrown(err error) goja.Value {
	var ex *goja.Exception
	if errors.As(err, &ex) {
		return ex.Value()
	}
	return r.vm.ToValue(err.Error())
}

// faultInfo describes an error returned by the runtime or the event loop.
func (r *run) faultInfo(err error) *ErrorInfo {
	var (
		interrupted *goja.InterruptedError
		ex          *goja.Exception
	)
	switch {
	case errors.As(err, &interrupted):
		msg := err.Error()
		if cause, ok := interrupted.Value().(error); ok {
			msg = cause.Error()
		}
		return &ErrorInfo{Message: msg, Type: TypeInterrupted}
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return &ErrorInfo{Message: err.Error(), Type: TypeInterrupted}
	case errors.Is(err, errUnsettled):
		return &ErrorInfo{Message: err.Error(), Type: TypeUnsettled}
	case errors.As(err, &ex):
		return r.thrownInfo(ex.Value())
	default:
		return &ErrorInfo{Message: err.Error(), Type: TypeGeneric}
	}
}

// thrownInfo describes a thrown or rejected value. Error instances keep
// their message, name and stack; anything else is converted with String().
func (r *run) thrownInfo(v goja.Value) *ErrorInfo {
	if obj, ok := v.(*goja.Object); ok && r.vm.InstanceOf(obj, r.errorCtor) {
		info := &ErrorInfo{
			Message: stringProp(obj, "message"),
			Stack:   stringProp(obj, "stack"),
			Type:    stringProp(obj, "name"),
		}
		if info.Type == "" {
			info.Type = TypeGeneric
		}
		return info
	}
	if v == nil {
		return &ErrorInfo{Message: "undefined", Type: TypeGeneric}
	}
	return &ErrorInfo{Message: v.String(), Type: TypeGeneric}
}

func compileErrorInfo(err error) *ErrorInfo {
	var refErr *goja.CompilerReferenceError
	if errors.As(err, &refErr) {
		return &ErrorInfo{Message: strings.TrimPrefix(err.Error(), "ReferenceError: "), Type: "ReferenceError"}
	}
	return &ErrorInfo{Message: strings.TrimPrefix(err.Error(), "SyntaxError: "), Type: TypeSyntax}
}

func stringProp(obj *goja.Object, name string) string {
	v := obj.Get(name)
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return ""
	}
	return v.String()
}
