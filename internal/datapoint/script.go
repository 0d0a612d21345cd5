package datapoint

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	lua "github.com/yuin/gopher-lua"
)

const scriptTimeout = 100 * time.Millisecond

// Script is a per-model Lua expression applied to a coerced datapoint value,
// e.g. "value / 2" or "if value > 1000 then return nil end return value".
// The value is passed in as a local named value. Returning nil drops it.
type Script struct {
	src string

	mu sync.Mutex // an LState is not safe for concurrent use
	L  *lua.LState
	fn *lua.LFunction
}

// CompileScript compiles expr in a sandboxed Lua state.
func CompileScript(expr string) (*Script, error) {
	body := strings.TrimSpace(expr)
	if body == "" {
		return nil, fmt.Errorf("datapoint: empty script")
	}
	if !strings.Contains(body, "return") {
		body = "return " + body
	}

	L := lua.NewState(lua.Options{SkipOpenLibs: false})
	// Sandbox: remove dangerous libs and functions
	for _, name := range []string{"os", "io", "loadfile", "dofile", "require", "load", "loadstring", "debug", "package"} {
		L.SetGlobal(name, lua.LNil)
	}

	fn, err := L.LoadString("local value = ...\n" + body)
	if err != nil {
		L.Close()
		return nil, fmt.Errorf("datapoint: compile script %q: %w", expr, err)
	}
	return &Script{src: expr, L: L, fn: fn}, nil
}

// Eval runs the script with value bound. The result is a float64, a bool, or
// nil when the script drops the value.
func (s *Script) Eval(value any) (any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var arg lua.LValue
	switch v := value.(type) {
	case bool:
		arg = lua.LBool(v)
	case float64:
		arg = lua.LNumber(v)
	case int64:
		arg = lua.LNumber(v)
	case string:
		arg = lua.LString(v)
	default:
		return nil, fmt.Errorf("datapoint: script input %T", value)
	}

	ctx, cancel := context.WithTimeout(context.Background(), scriptTimeout)
	defer cancel()
	s.L.SetContext(ctx)
	defer s.L.RemoveContext()

	if err := s.L.CallByParam(lua.P{Fn: s.fn, NRet: 1, Protect: true}, arg); err != nil {
		return nil, fmt.Errorf("datapoint: script %q: %w", s.src, err)
	}
	ret := s.L.Get(-1)
	s.L.Pop(1)

	switch r := ret.(type) {
	case lua.LNumber:
		return float64(r), nil
	case lua.LBool:
		return bool(r), nil
	case *lua.LNilType:
		return nil, nil
	}
	return nil, fmt.Errorf("datapoint: script %q returned %s", s.src, ret.Type())
}

// Close releases the Lua state.
func (s *Script) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.L.Close()
}
