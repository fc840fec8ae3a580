package lua

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/aarzilli/golua/lua"
	"github.com/sirupsen/logrus"

	_ "embed"
)

//go:embed lua-libs/myolib.lua
var myolibLua string // helper library available to scripts via require("myolib")

// OutputRecord represents a single output record from Lua script execution
type OutputRecord struct {
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
	Source    string    `json:"source"` // "stdout" or "stderr"
}

// LuaError represents detailed Lua execution errors
type LuaError struct {
	Type       string // "syntax", "runtime", "api"
	Message    string
	Line       int
	Source     string
	StackTrace string
	Underlying error
}

func (e *LuaError) Error() string {
	parts := []string{}
	if e.Source != "" {
		parts = append(parts, fmt.Sprintf("in %s", e.Source))
	}
	if e.Line > 0 {
		parts = append(parts, fmt.Sprintf("line %d", e.Line))
	}

	prefix := "Lua error"
	if len(parts) > 0 {
		prefix = fmt.Sprintf("Lua %s error (%s)", e.Type, strings.Join(parts, ", "))
	}
	result := fmt.Sprintf("%s: %s", prefix, e.Message)
	if e.StackTrace != "" {
		result += "\n" + e.StackTrace
	}
	return result
}

func (e *LuaError) Unwrap() error {
	return e.Underlying
}

func (e *LuaError) Is(target error) bool {
	if target == nil {
		return false
	}
	var luaErr *LuaError
	if errors.As(target, &luaErr) {
		return e.Type == luaErr.Type
	}
	return false
}

// Engine is a Lua interpreter with full output capture. All state access is
// serialized through stateMutex: the goroutine executing a script holds it for
// the whole run, so Go functions called from that script run under the lock
// and callbacks arriving from other goroutines (telemetry pumps) queue on
// DoWithState until the script yields the interpreter.
type Engine struct {
	state      *lua.State
	stateMutex sync.Mutex
	logger     *logrus.Logger
	scriptCode string
	outputChan *RingChannel[OutputRecord] // ring buffer for Lua outputs

	ctxMu   sync.Mutex
	execCtx context.Context // context of the script run in flight, nil between runs
}

// NewEngine creates a new Lua engine with full stdout/stderr capture
func NewEngine(logger *logrus.Logger) *Engine {
	engine := &Engine{
		logger:     logger,
		outputChan: NewRingChannel[OutputRecord](100),
	}

	engine.Reset()

	logger.Debug("Lua engine initialized with full output capture")
	return engine
}

// DoWithState runs callback with exclusive access to the interpreter state.
// Returns nil without calling back when the engine is closed.
func (e *Engine) DoWithState(callback func(*lua.State) interface{}) interface{} {
	e.stateMutex.Lock()
	defer e.stateMutex.Unlock()

	if e.state == nil {
		return nil
	}
	return callback(e.state)
}

func (e *Engine) doWithStateInternal(callback func(*lua.State) interface{}) interface{} {
	if e.state == nil {
		return nil
	}
	return callback(e.state)
}

// luaValueToString renders the value at stack index i the way Lua's print
// does: plain strings and numbers directly, booleans and nil by name, and
// everything else through the global tostring().
func luaValueToString(L *lua.State, i int) string {
	switch {
	case L.IsNil(i):
		return "nil"
	case L.IsBoolean(i):
		if L.ToBoolean(i) {
			return "true"
		}
		return "false"
	case L.IsNumber(i):
		return fmt.Sprintf("%v", L.ToNumber(i))
	case L.IsString(i):
		return L.ToString(i)
	default:
		// Tables, functions, threads, userdata: call Lua tostring()
		L.GetGlobal("tostring") // push global tostring
		L.PushValue(i)          // push value as argument
		L.Call(1, 1)            // call tostring(value)
		s := L.ToString(-1)
		L.Pop(1) // pop result
		return s
	}
}

// registerOutputCaptureInternal replaces print and io.write with versions that
// route all output through the engine's ring channel. print keeps its
// tab-joined, newline-terminated convention; io.write concatenates its
// arguments verbatim.
func (e *Engine) registerOutputCaptureInternal() {
	e.doWithStateInternal(func(L *lua.State) interface{} {
		// Override print
		L.PushGoFunction(func(L *lua.State) int {
			top := L.GetTop()
			parts := make([]string, 0, top)

			for i := 1; i <= top; i++ {
				parts = append(parts, luaValueToString(L, i))
			}

			// Join with tabs and append a newline
			line := strings.Join(parts, "\t") + "\n"

			// Send to RingChannel
			e.outputChan.ForceSend(OutputRecord{
				Content:   line,
				Timestamp: time.Now(),
				Source:    "stdout",
			})

			return 0
		})

		L.SetGlobal("print")

		// Override io.write: no separator, no trailing newline
		L.GetGlobal("io")
		L.PushString("write")
		L.PushGoFunction(func(L *lua.State) int {
			top := L.GetTop()
			var sb strings.Builder

			for i := 1; i <= top; i++ {
				sb.WriteString(luaValueToString(L, i))
			}

			e.outputChan.ForceSend(OutputRecord{
				Content:   sb.String(),
				Timestamp: time.Now(),
				Source:    "stdout",
			})

			return 0
		})
		L.SetTable(-3)
		L.Pop(1) // pop io table

		return nil
	})
}

// registerSandboxInternal disables interpreter escape hatches. Gesture scripts
// drive a physical device; letting them spawn processes or touch the
// filesystem is a different product.
func (e *Engine) registerSandboxInternal() {
	e.doWithStateInternal(func(L *lua.State) interface{} {
		blockFn := func(name string) func(*lua.State) int {
			return func(L *lua.State) int {
				L.RaiseError(name + " is blocked")
				return 0
			}
		}

		for _, name := range []string{"dofile", "loadfile"} {
			L.PushGoFunction(blockFn(name))
			L.SetGlobal(name)
		}

		blockedFields := map[string][]string{
			"os": {"execute", "exit", "remove", "rename"},
			"io": {"read", "lines"},
		}
		for table, fields := range blockedFields {
			L.GetGlobal(table)
			for _, field := range fields {
				L.PushString(field)
				L.PushGoFunction(blockFn(table + "." + field))
				L.SetTable(-3)
			}
			L.Pop(1) // pop the table
		}

		return nil
	})
}

// preloadLibraryInternal loads a Lua module source directly into
// package.loaded[module], bypassing package.preload callbacks. The chunk must
// return the module table. Callers must already hold the state lock.
func (e *Engine) preloadLibraryInternal(source, module, chunkname string) {
	e.doWithStateInternal(func(L *lua.State) interface{} {
		if err := L.LoadString(source); err != 0 {
			e.logger.WithField("chunk", chunkname).Error("Failed to load embedded Lua library")
			L.Pop(1)
			return nil
		}

		// Execute the chunk to get the module table
		L.Call(0, 1) // runs chunk -> pushes module table

		// Put it directly into package.loaded[module]
		L.GetField(lua.LUA_GLOBALSINDEX, "package")
		L.GetField(-1, "loaded")
		L.PushValue(-3)         // push the module table
		L.SetField(-2, module)  // package.loaded[module] = module table
		L.Pop(3)                // pop package, loaded and the module table
		return nil
	})
}

// PreloadLuaLibrary makes a Lua module source available to scripts as
// require(module). The chunk must evaluate to the module table.
func (e *Engine) PreloadLuaLibrary(source, module, chunkname string) {
	e.stateMutex.Lock()
	defer e.stateMutex.Unlock()
	e.preloadLibraryInternal(source, module, chunkname)
}

// SafeWrapGoFunction wraps a Go function exposed to Lua with panic recovery.
// A recovered panic is logged, routed to the stderr output stream for script
// visibility, then re-raised so the interpreter reports it as an ordinary Lua
// error at the call site.
func (e *Engine) SafeWrapGoFunction(name string, fn func(*lua.State) int) func(*lua.State) int {
	return func(L *lua.State) int {
		defer func() {
			if r := recover(); r != nil {
				e.logger.WithFields(logrus.Fields{
					"function": name,
					"panic":    r,
				}).Error("Lua API function panicked")

				e.outputChan.ForceSend(OutputRecord{
					Content:   fmt.Sprintf("%s error: %v\n", name, r),
					Timestamp: time.Now(),
					Source:    "stderr",
				})

				panic(r)
			}
		}()
		return fn(L)
	}
}

// OutputChannel returns the output channel
func (e *Engine) OutputChannel() <-chan OutputRecord {
	return e.outputChan.C()
}

// Context returns the context of the script run currently in flight, or
// Background between runs. API functions use it to honor cancellation from
// inside blocking calls (sleep, device operations).
func (e *Engine) Context() context.Context {
	e.ctxMu.Lock()
	defer e.ctxMu.Unlock()
	if e.execCtx != nil {
		return e.execCtx
	}
	return context.Background()
}

func (e *Engine) setExecContext(ctx context.Context) {
	e.ctxMu.Lock()
	e.execCtx = ctx
	e.ctxMu.Unlock()
}

// parseLuaError extracts detailed info from Lua error messages
func (e *Engine) parseLuaError(errType, source string) *LuaError {
	if e.state.GetTop() == 0 {
		return &LuaError{Type: errType, Message: "unknown Lua error", Source: source}
	}

	errMsg := ""
	if e.state.IsString(-1) {
		errMsg = e.state.ToString(-1)
	} else {
		errMsg = "non-string error object"
	}
	e.state.Pop(1)

	line := 0
	message := errMsg
	if strings.Contains(errMsg, ":") {
		parts := strings.SplitN(errMsg, ":", 3)
		if len(parts) >= 3 {
			if parsed, err := fmt.Sscanf(strings.TrimSpace(parts[1]), "%d", &line); err == nil && parsed == 1 {
				message = strings.TrimSpace(parts[2])
			}
		}
	}

	return &LuaError{
		Type:    errType,
		Message: message,
		Line:    line,
		Source:  source,
	}
}

// Thread-safe execution
func (e *Engine) safeExecuteScript(script string) error {
	var execErr error
	e.DoWithState(func(L *lua.State) interface{} {
		if err := L.DoString(script); err != nil {
			// Syntax problems were caught at load time, so whatever DoString
			// reports here is a runtime failure.
			luaErr := e.parseLuaError("runtime", "")
			luaErr.Underlying = err
			e.outputChan.ForceSend(OutputRecord{
				Content:   fmt.Sprintf("Lua runtime error: %s\n", luaErr.Message),
				Timestamp: time.Now(),
				Source:    "stderr",
			})
			execErr = luaErr
		}
		return nil
	})
	return execErr
}

// LoadScriptFile loads a Lua script from a file
func (e *Engine) LoadScriptFile(filename string) error {
	content, err := os.ReadFile(filename)
	if err != nil {
		return fmt.Errorf("failed to read script %s: %w", filename, err)
	}
	return e.LoadScript(string(content), filename)
}

// LoadScript loads a Lua script string and validates it
func (e *Engine) LoadScript(script, name string) error {
	if script == "" {
		return &LuaError{Type: "api", Message: "empty script", Source: name}
	}

	e.scriptCode = script

	var loadErr error
	e.DoWithState(func(L *lua.State) interface{} {
		if status := L.LoadString(script); status != 0 {
			luaErr := e.parseLuaError("syntax", name)
			e.outputChan.Send(OutputRecord{
				Content:   fmt.Sprintf("Lua syntax error: %s\n", luaErr.Message),
				Timestamp: time.Now(),
				Source:    "stderr",
			})
			loadErr = luaErr
			return nil
		}
		L.Pop(1)
		return nil
	})
	return loadErr
}

// ExecuteScript runs script, or the most recently loaded script when script is
// empty. The context bounds the run: it is checked before execution starts and
// API functions consult it during blocking calls. The interpreter itself is
// not preempted mid-statement.
func (e *Engine) ExecuteScript(ctx context.Context, script string) error {
	if script != "" {
		if err := e.LoadScript(script, "ad-hoc script"); err != nil {
			return err
		}
	}
	if e.scriptCode == "" {
		return &LuaError{Type: "api", Message: "no script loaded"}
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	e.setExecContext(ctx)
	defer e.setExecContext(nil)

	return e.safeExecuteScript(e.scriptCode)
}

func (e *Engine) resetInternal() {
	if e.state != nil {
		e.state.Close()
	}

	e.state = lua.NewState()
	e.state.OpenLibs()

	e.registerOutputCaptureInternal()
	e.registerSandboxInternal()
	e.preloadLibraryInternal(myolibLua, "myolib", "myolib.lua")
}

// Reset recreates the Lua state
func (e *Engine) Reset() {
	e.stateMutex.Lock()
	defer e.stateMutex.Unlock()
	e.resetInternal()
}

// Close cleans up the engine
func (e *Engine) Close() {
	e.stateMutex.Lock()
	defer e.stateMutex.Unlock()

	if e.state != nil {
		e.state.Close()
		e.state = nil
	}
}

// ExecuteFunction executes a specific Lua function by name
func (e *Engine) ExecuteFunction(functionName string) error {
	var funcErr error
	e.DoWithState(func(L *lua.State) interface{} {
		// Get the function from a global scope
		L.GetGlobal(functionName)
		if !L.IsFunction(-1) {
			L.Pop(1)
			funcErr = fmt.Errorf("function %s not found or not a function", functionName)
			return nil
		}

		// Call the function with no arguments
		if err := L.Call(0, 0); err != nil {
			funcErr = fmt.Errorf("failed to call function %s: %w", functionName, err)
		}
		return nil
	})

	if funcErr == nil && e.state == nil {
		return fmt.Errorf("lua state not initialized")
	}

	return funcErr
}

// SetGlobal sets a global variable in the Lua state
func (e *Engine) SetGlobal(name string, value interface{}) error {
	res := e.DoWithState(func(state *lua.State) any {
		switch v := value.(type) {
		case string:
			state.PushString(v)
		case int:
			state.PushInteger(int64(v))
		case int64:
			state.PushInteger(v)
		case float64:
			state.PushNumber(v)
		case bool:
			state.PushBoolean(v)
		default:
			return fmt.Errorf("unsupported type for global variable %s", name)
		}

		state.SetGlobal(name)
		return nil
	})

	// Type assert the result as an error
	if err, ok := res.(error); ok {
		return err
	}
	return nil
}

// GetGlobal gets a global variable from the Lua state
func (e *Engine) GetGlobal(name string) interface{} {
	return e.DoWithState(func(state *lua.State) any {
		state.GetGlobal(name)
		defer state.Pop(1)

		switch {
		case state.IsString(-1):
			return state.ToString(-1)
		case state.IsNumber(-1):
			return state.ToNumber(-1)
		case state.IsBoolean(-1):
			return state.ToBoolean(-1)
		default:
			return nil // unsupported type
		}
	})
}

// GetGlobalInteger gets an integer global variable from the Lua state
func (e *Engine) GetGlobalInteger(name string) (int, error) {
	var result int
	var err error

	e.DoWithState(func(state *lua.State) interface{} {
		state.GetGlobal(name)
		defer state.Pop(1)

		if !state.IsNumber(-1) {
			err = fmt.Errorf("global variable %s is not a number", name)
			return nil
		}

		result = int(state.ToInteger(-1))
		return nil
	})

	return result, err
}

// GetGlobalString gets a string global variable from the Lua state
func (e *Engine) GetGlobalString(name string) (string, error) {
	var result string
	var err error

	e.DoWithState(func(state *lua.State) interface{} {
		state.GetGlobal(name)
		defer state.Pop(1)

		if !state.IsString(-1) {
			err = fmt.Errorf("global variable %s is not a string", name)
			return nil
		}

		result = state.ToString(-1)
		return nil
	})

	return result, err
}

// GetTableValue gets a string value from a Lua table by key
func (e *Engine) GetTableValue(tableName, key string) (string, error) {
	var result string
	var err error

	e.DoWithState(func(state *lua.State) interface{} {
		state.GetGlobal(tableName)
		if !state.IsTable(-1) {
			state.Pop(1)
			err = fmt.Errorf("global %s is not a table", tableName)
			return nil
		}

		state.PushString(key)
		state.GetTable(-2)
		defer state.Pop(2) // pop value and table

		switch {
		case state.IsString(-1):
			result = state.ToString(-1)
		case state.IsNil(-1):
			err = fmt.Errorf("key %s not found in table %s", key, tableName)
		default:
			err = fmt.Errorf("value for key %s in table %s is not a string", key, tableName)
		}

		return nil
	})

	return result, err
}
