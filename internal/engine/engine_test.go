// SPDX-License-Identifier: MPL-2.0

package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ptcrun/ptc/internal/capability"
	"github.com/ptcrun/ptc/internal/progress"
	"github.com/ptcrun/ptc/internal/testutil"
)

type addInput struct {
	A float64 `json:"a"`
	B float64 `json:"b"`
}

func testCatalog(gate chan struct{}) *capability.Catalog {
	catalog := capability.NewCatalog()
	catalog.Register(capability.Descriptor{
		Key: capability.NewKey("math", "add"),
		Impl: capability.Typed(func(_ context.Context, in addInput) (float64, error) {
			return in.A + in.B, nil
		}),
	})
	catalog.Register(capability.Descriptor{
		Key: capability.NewKey("test", "fast"),
		Impl: capability.Func(func(context.Context, any) (any, error) {
			close(gate)
			return "fast", nil
		}),
	})
	catalog.Register(capability.Descriptor{
		Key: capability.NewKey("test", "slow"),
		Impl: capability.Func(func(ctx context.Context, _ any) (any, error) {
			select {
			case <-gate:
			case <-ctx.Done():
				return nil, ctx.Err()
			}
			time.Sleep(50 * time.Millisecond)
			return "slow", nil
		}),
	})
	catalog.Register(capability.Descriptor{
		Key: capability.NewKey("test", "block"),
		Impl: capability.Func(func(ctx context.Context, _ any) (any, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		}),
	})
	catalog.Register(capability.Descriptor{
		Key: capability.NewKey("test", "unserializable"),
		Impl: capability.Func(func(context.Context, any) (any, error) {
			return make(chan int), nil
		}),
	})
	return catalog
}

func newTestEngine(t *testing.T, opts ...Option) (*Engine, string) {
	t.Helper()
	toolsDir := t.TempDir()
	reg := capability.NewRegistry(
		capability.WithNative(testCatalog(make(chan struct{}))),
		capability.WithToolsDir(toolsDir),
	)
	return New(reg, opts...), toolsDir
}

func TestExecute_ReturnValue(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		source string
		want   string
	}{
		{name: "arithmetic", source: "return 1+1;", want: "2"},
		{name: "object", source: `return {a: [1, "x", null], b: true};`, want: `{"a":[1,"x",null],"b":true}`},
		{name: "awaited value", source: "const v = await Promise.resolve(41); return v + 1;", want: "42"},
		{name: "explicit null", source: "return null;", want: "null"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			e, _ := newTestEngine(t)
			res := e.Execute(context.Background(), tt.source)
			require.Nil(t, res.Error)
			assert.Equal(t, StatusSuccess, res.Status)
			assert.JSONEq(t, tt.want, string(res.Output))
			assert.NotNil(t, res.ProgressLogs)
			assert.Empty(t, res.ProgressLogs)
			assert.GreaterOrEqual(t, res.ExecutionTime, 0.0)
			assert.NotEmpty(t, res.ExecutionID)
		})
	}
}

func TestExecute_UndefinedOutput(t *testing.T) {
	t.Parallel()

	e, _ := newTestEngine(t)
	for _, src := range []string{"const x = 1;", "return undefined;", "return function () {};"} {
		res := e.Execute(context.Background(), src)
		assert.Equal(t, StatusSuccess, res.Status, src)
		assert.Nil(t, res.Output, src)

		var buf bytes.Buffer
		require.NoError(t, res.WriteJSON(&buf, true))
		var doc map[string]any
		require.NoError(t, json.Unmarshal(buf.Bytes(), &doc))
		assert.Contains(t, doc, "output")
		assert.Nil(t, doc["output"])
	}
}

func TestExecute_Faults(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		source   string
		wantType string
		wantMsg  string
	}{
		{name: "thrown string", source: `throw "boom";`, wantType: "Error", wantMsg: "boom"},
		{name: "thrown error", source: `throw new Error("kaput");`, wantType: "Error", wantMsg: "kaput"},
		{name: "thrown type error", source: `throw new TypeError("bad type");`, wantType: "TypeError", wantMsg: "bad type"},
		{name: "thrown number", source: `throw 42;`, wantType: "Error", wantMsg: "42"},
		{name: "rejected await", source: `await Promise.reject(new RangeError("out"));`, wantType: "RangeError", wantMsg: "out"},
		{name: "runtime type error", source: `const o = null; return o.x;`, wantType: "TypeError"},
		{name: "syntax error", source: `return (;`, wantType: "SyntaxError"},
		{name: "unsettled", source: `await new Promise(() => {});`, wantType: TypeUnsettled},
		{name: "unserializable result", source: `return await capabilities.test.unserializable();`, wantType: "CapabilityError", wantMsg: "result is not serializable"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			e, _ := newTestEngine(t)
			res := e.Execute(context.Background(), tt.source)
			assert.Equal(t, StatusError, res.Status)
			assert.Nil(t, res.Output)
			require.NotNil(t, res.Error)
			assert.Equal(t, tt.wantType, res.Error.Type)
			if tt.wantMsg != "" {
				assert.Contains(t, res.Error.Message, tt.wantMsg)
			}
			assert.NotNil(t, res.ProgressLogs)
			assert.GreaterOrEqual(t, res.ExecutionTime, 0.0)
			assert.Equal(t, 1, res.ExitCode())
		})
	}
}

func TestExecute_MissingCapabilityNamesBothLocations(t *testing.T) {
	t.Parallel()

	e, toolsDir := newTestEngine(t)
	res := e.Execute(context.Background(), `return await capabilities.nosuch.method({});`)

	require.NotNil(t, res.Error)
	assert.Equal(t, StatusError, res.Status)
	assert.Equal(t, "CapabilityError", res.Error.Type)
	assert.Contains(t, res.Error.Message, "nosuch.method({})")
	assert.Contains(t, res.Error.Message, "native:nosuch/method")
	assert.Contains(t, res.Error.Message, filepath.Join(toolsDir, "nosuch", "method.sh"))
}

func TestExecute_CaughtCapabilityError(t *testing.T) {
	t.Parallel()

	e, _ := newTestEngine(t)
	res := e.Execute(context.Background(), `
try {
  await capabilities.nosuch.method({ id: 1 });
  return "unreachable";
} catch (err) {
  progress("recovered");
  return { name: err.name, kind: err.kind, namespace: err.namespace, method: err.method, isError: err instanceof Error };
}`)

	require.Nil(t, res.Error)
	assert.JSONEq(t, `{"name":"CapabilityError","kind":"NotFound","namespace":"nosuch","method":"method","isError":true}`, string(res.Output))
	require.Len(t, res.ProgressLogs, 1)
	assert.Equal(t, "recovered", res.ProgressLogs[0].Step)
}

func TestExecute_NativeCapability(t *testing.T) {
	t.Parallel()

	e, _ := newTestEngine(t)
	res := e.Execute(context.Background(), `
const add = capabilities.math.add;
const sum = await add({ a: 2, b: 3 });
return { sum, same: add === capabilities.math.add, ns: capabilities.math === capabilities.math };`)

	require.Nil(t, res.Error)
	assert.JSONEq(t, `{"sum":5,"same":true,"ns":true}`, string(res.Output))
}

func TestExecute_ProcessFallbackEcho(t *testing.T) {
	if _, err := exec.LookPath("bash"); err != nil {
		t.Skip("bash not available")
	}
	t.Parallel()

	e, toolsDir := newTestEngine(t)
	testutil.WriteTool(t, toolsDir, "util", "echo", "cat\n")

	res := e.Execute(context.Background(), `
const x = { n: 1.5, s: "text", list: [1, { deep: true }], nothing: null };
const y = await capabilities.util.echo(x);
return { y, equal: JSON.stringify(x) === JSON.stringify(y) };`)

	require.Nil(t, res.Error)
	assert.JSONEq(t, `{"y":{"n":1.5,"s":"text","list":[1,{"deep":true}],"nothing":null},"equal":true}`, string(res.Output))
}

func TestExecute_ProcessFallbackKeepsKeyOrder(t *testing.T) {
	if _, err := exec.LookPath("bash"); err != nil {
		t.Skip("bash not available")
	}
	t.Parallel()

	e, toolsDir := newTestEngine(t)
	testutil.WriteTool(t, toolsDir, "util", "echo", "cat\n")

	res := e.Execute(context.Background(), `
const y = await capabilities.util.echo({ z: 1, a: 2, m: { y: true, b: false } });
return JSON.stringify(y);`)

	require.Nil(t, res.Error)
	assert.Equal(t, `"{\"z\":1,\"a\":2,\"m\":{\"y\":true,\"b\":false}}"`, string(res.Output))
}

func TestExecute_FaultMessageKeepsInputKeyOrder(t *testing.T) {
	t.Parallel()

	e, _ := newTestEngine(t)
	res := e.Execute(context.Background(), `return await capabilities.nosuch.m({ z: 1, a: 2 });`)

	require.NotNil(t, res.Error)
	assert.Contains(t, res.Error.Message, `nosuch.m({"z":1,"a":2})`)
}

func TestExecute_UnserializableArgument(t *testing.T) {
	t.Parallel()

	e, _ := newTestEngine(t)
	res := e.Execute(context.Background(), `
const cyclic = {};
cyclic.self = cyclic;
try {
  await capabilities.math.add(cyclic);
  return "unreachable";
} catch (err) {
  return { name: err.name, kind: err.kind, namespace: err.namespace, method: err.method };
}`)

	require.Nil(t, res.Error)
	assert.JSONEq(t, `{"name":"CapabilityError","kind":"CapabilityFault","namespace":"math","method":"add"}`, string(res.Output))
}

func TestExecute_ProgressOrder(t *testing.T) {
	t.Parallel()

	var live []string
	sink := progress.SinkFunc(func(ev progress.Event) { live = append(live, ev.Step) })
	e, _ := newTestEngine(t,
		WithProgressSink(sink),
		WithClock(testutil.NewSteppingClock(time.UnixMilli(1234), time.Millisecond).Now),
	)

	res := e.Execute(context.Background(), `progress("a"); progress("b", { n: 2 }); progress("c", 7); return "ok";`)

	require.Nil(t, res.Error)
	assert.Equal(t, []progress.Event{
		{Step: "a", Timestamp: 1234},
		{Step: "b", Data: map[string]any{"n": float64(2)}, Timestamp: 1235},
		{Step: "c", Data: map[string]any{"value": float64(7)}, Timestamp: 1236},
	}, res.ProgressLogs)
	assert.Equal(t, []string{"a", "b", "c"}, live)
}

func TestExecute_ProgressKeptOnFault(t *testing.T) {
	t.Parallel()

	e, _ := newTestEngine(t)
	res := e.Execute(context.Background(), `progress("started"); throw new Error("late");`)

	assert.Equal(t, StatusError, res.Status)
	require.Len(t, res.ProgressLogs, 1)
	assert.Equal(t, "started", res.ProgressLogs[0].Step)
}

func TestExecute_ConcurrentCallsCompleteInCompletionOrder(t *testing.T) {
	t.Parallel()

	e, _ := newTestEngine(t)
	res := e.Execute(context.Background(), `
const results = await Promise.all([
  capabilities.test.slow().then((v) => { progress(v); return v; }),
  capabilities.test.fast().then((v) => { progress(v); return v; }),
]);
return results;`)

	require.Nil(t, res.Error)
	assert.JSONEq(t, `["slow","fast"]`, string(res.Output))
	require.Len(t, res.ProgressLogs, 2)
	assert.Equal(t, "fast", res.ProgressLogs[0].Step)
	assert.Equal(t, "slow", res.ProgressLogs[1].Step)
}

func TestExecute_Cancellation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		source string
	}{
		{name: "blocked capability call", source: `await capabilities.test.block(); return 1;`},
		{name: "busy loop", source: `while (true) {}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			e, _ := newTestEngine(t)
			ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
			defer cancel()

			res := e.Execute(ctx, tt.source)
			assert.Equal(t, StatusError, res.Status)
			require.NotNil(t, res.Error)
			assert.Equal(t, TypeInterrupted, res.Error.Type)
			assert.Contains(t, res.Error.Message, "deadline exceeded")
		})
	}
}

func TestExecute_NoAmbientHostState(t *testing.T) {
	t.Parallel()

	e, _ := newTestEngine(t)
	res := e.Execute(context.Background(),
		`return [typeof require, typeof console, typeof process, typeof fetch, typeof capabilities, typeof progress];`)

	require.Nil(t, res.Error)
	assert.JSONEq(t, `["undefined","undefined","undefined","undefined","object","function"]`, string(res.Output))
}

func TestExecute_RegistryPersistsAcrossRuns(t *testing.T) {
	t.Parallel()

	e, _ := newTestEngine(t)
	for range 2 {
		res := e.Execute(context.Background(), `return await capabilities.math.add({ a: 1, b: 1 });`)
		require.Nil(t, res.Error)
		assert.JSONEq(t, "2", string(res.Output))
	}
	assert.Equal(t, []capability.Key{capability.NewKey("math", "add")}, e.Registry().Resolved())
}

func TestResult_JSONShape(t *testing.T) {
	t.Parallel()

	e, _ := newTestEngine(t)
	res := e.Execute(context.Background(), `throw "boom";`)

	var buf bytes.Buffer
	require.NoError(t, res.WriteJSON(&buf, false))
	assert.Contains(t, buf.String(), "\n  \"status\": \"error\"")

	var doc map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &doc))
	assert.Equal(t, "error", doc["status"])
	assert.Nil(t, doc["output"])
	assert.Contains(t, doc, "output")
	assert.Equal(t, []any{}, doc["progressLogs"])
	assert.Equal(t, map[string]any{"message": "boom", "type": "Error"}, doc["error"])
	assert.Contains(t, doc, "executionTime")
}

func TestNewNoInputResult(t *testing.T) {
	t.Parallel()

	res := NewNoInputResult()
	assert.False(t, res.Success())
	assert.Equal(t, 1, res.ExitCode())
	assert.Equal(t, TypeNoInput, res.Error.Type)
	assert.NotNil(t, res.ProgressLogs)

	var buf bytes.Buffer
	require.NoError(t, res.WriteJSON(&buf, true))
	assert.JSONEq(t, `{
		"status": "error",
		"output": null,
		"error": {"message": "`+NoInputMessage+`", "type": "NoInputError"},
		"progressLogs": [],
		"executionTime": 0
	}`, buf.String())
}

func TestIsNoInput(t *testing.T) {
	t.Parallel()

	assert.True(t, IsNoInput(""))
	assert.True(t, IsNoInput(" \n\t\r\n"))
	assert.False(t, IsNoInput("return 1"))
	assert.False(t, IsNoInput("  // comment only\n"))
}
