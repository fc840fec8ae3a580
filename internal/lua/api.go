package lua

import (
	"context"
	"fmt"
	"runtime/debug"
	"strings"
	"time"

	"github.com/aarzilli/golua/lua"
	"github.com/sirupsen/logrus"
	"github.com/srg/myolink/internal/hand"
	"github.com/srg/myolink/session"
)

// luaSubscribeTable holds a parsed myo.subscribe{} configuration
type luaSubscribeTable struct {
	Kinds       []hand.Kind `json:"kinds"`
	Mode        string      `json:"mode"`
	MaxRateMs   int         `json:"max_rate_ms"`
	CallbackRef int         `json:"-"` // Lua function reference
}

// API binds a connected session into Lua as the global myo table. Scripts
// drive the hand through the session's blocking surface; every myo call is
// one session operation, so scripts inherit the session's one-at-a-time
// ordering for free.
type API struct {
	session *session.Session
	Engine  *Engine
	logger  *logrus.Logger
}

// NewAPI creates a Lua API bound to a session
func NewAPI(sess *session.Session, logger *logrus.Logger) *API {
	r := &API{
		session: sess,
		logger:  logger,
		Engine:  NewEngine(logger),
	}

	r.Reset()
	return r
}

// Session returns the bound session
func (api *API) Session() *session.Session {
	return api.session
}

// SafePushGoFunction pushes a function name and safe-wrapped Go function onto the Lua stack.
// The function will be automatically wrapped with panic recovery and error logging.
// After calling this, you typically call L.SetTable(-3) to add it to the parent table.
//
// Example:
//
//	api.SafePushGoFunction(L, "get_pressures", func(L *lua.State) int {
//	    // your implementation
//	})
//	L.SetTable(-3)
func (api *API) SafePushGoFunction(L *lua.State, name string, fn func(*lua.State) int) {
	L.PushString(name)
	L.PushGoFunction(api.Engine.SafeWrapGoFunction(name+"()", fn))
}

// stripWrappedGoErrorSuffix removes Go error wrapping suffixes from error messages for cleaner Lua API messages.
// Strips known suffixes like ": unsupported", ": not connected", ": not_connected", ": timeout" while keeping
// the Go code properly structured with error wrapping for errors.Is() checks.
func stripWrappedGoErrorSuffix(errMsg string) string {
	if idx := strings.LastIndex(errMsg, ": "); idx != -1 {
		suffix := errMsg[idx+2:]
		if suffix == "unsupported" || suffix == "not connected" || suffix == "not_connected" || suffix == "timeout" {
			return errMsg[:idx]
		}
	}
	return errMsg
}

// parseStreamMode converts a mode string to a hand.StreamMode
func parseStreamMode(mode string) hand.StreamMode {
	switch mode {
	case "EveryUpdate":
		return hand.StreamEveryUpdate
	case "Batched":
		return hand.StreamBatched
	case "Aggregated":
		return hand.StreamAggregated
	default:
		return hand.StreamEveryUpdate // Default fallback
	}
}

func (api *API) ExecuteScript(ctx context.Context, script string) error {
	return api.Engine.ExecuteScript(ctx, script)
}

func (api *API) LoadScriptFile(filename string) error {
	return api.Engine.LoadScriptFile(filename)
}

func (api *API) LoadScript(script, name string) error {
	return api.Engine.LoadScript(script, name)
}

func (api *API) Reset() {
	api.Engine.Reset()
	api.registerMyoAPI()
}

func (api *API) OutputChannel() <-chan OutputRecord {
	return api.Engine.OutputChannel()
}

// Close shuts down the Lua engine. The session is the caller's to disconnect:
// the API borrows it, it does not own it.
func (api *API) Close() {
	api.Engine.Close()
}

// registerMyoAPI registers the myo table in the Lua state
func (api *API) registerMyoAPI() {
	api.Engine.DoWithState(func(L *lua.State) interface{} {
		// Create myo table
		L.NewTable()

		// Register API functions
		api.registerInfoFunction(L)
		api.registerMuscleCountFunction(L)
		api.registerMuscleNamesFunction(L)
		api.registerSetPressuresFunction(L)
		api.registerGetPressuresFunction(L)
		api.registerLooseAllFunction(L)
		api.registerTelemetryFunction(L)
		api.registerIMUFunction(L)
		api.registerMagneticsFunction(L)
		api.registerSubscribeFunction(L)

		// Register utility functions
		api.registerSleepFunction(L)

		// Set global 'myo' variable
		L.SetGlobal("myo")

		return nil
	})
}

// registerInfoFunction registers the myo.info() function
//
// Returns (info, nil) on success or (nil, error_message) on failure.
// The info table carries name, model, firmware, serial, muscle_count,
// imu_count plus muscles and joints arrays.
func (api *API) registerInfoFunction(L *lua.State) {
	api.SafePushGoFunction(L, "info", func(L *lua.State) int {
		info, err := api.session.Info()
		if err != nil {
			L.PushNil()
			L.PushString(fmt.Sprintf("info() failed: %s", stripWrappedGoErrorSuffix(err.Error())))
			return 2
		}

		L.NewTable()

		L.PushString("name")
		L.PushString(info.Name)
		L.SetTable(-3)

		L.PushString("model")
		L.PushString(info.Model)
		L.SetTable(-3)

		L.PushString("firmware")
		L.PushString(info.Firmware)
		L.SetTable(-3)

		L.PushString("serial")
		L.PushString(info.Serial)
		L.SetTable(-3)

		L.PushString("muscle_count")
		L.PushInteger(int64(info.MuscleCount()))
		L.SetTable(-3)

		L.PushString("imu_count")
		L.PushInteger(int64(info.IMUCount))
		L.SetTable(-3)

		L.PushString("muscles")
		pushStringArray(L, info.MuscleNames)
		L.SetTable(-3)

		L.PushString("joints")
		pushStringArray(L, info.JointNames)
		L.SetTable(-3)

		L.PushNil()
		return 2 // (info, nil)
	})
	L.SetTable(-3)
}

// registerMuscleCountFunction registers the myo.muscle_count() function.
// The count is cached at connect time, so this never touches the device.
func (api *API) registerMuscleCountFunction(L *lua.State) {
	api.SafePushGoFunction(L, "muscle_count", func(L *lua.State) int {
		L.PushInteger(int64(api.session.MuscleCount()))
		return 1
	})
	L.SetTable(-3)
}

// registerMuscleNamesFunction registers the myo.muscle_names() function.
// Returns the device's canonical muscle order as an array; pressures are
// always addressed in this order.
func (api *API) registerMuscleNamesFunction(L *lua.State) {
	api.SafePushGoFunction(L, "muscle_names", func(L *lua.State) int {
		pushStringArray(L, api.session.MuscleOrder())
		return 1
	})
	L.SetTable(-3)
}

// registerSetPressuresFunction registers the myo.set_pressures() function
//
// Usage: myo.set_pressures{0.2, 0.2, 0.0, 0.5}
// Expects an array with one normalized pressure per muscle, in muscle order.
// Length and range validation is the device's business; its verdict comes
// back unchanged.
// Returns (true, nil) on success or (nil, error_message) on failure.
func (api *API) registerSetPressuresFunction(L *lua.State) {
	api.SafePushGoFunction(L, "set_pressures", func(L *lua.State) int {
		if !L.IsTable(1) {
			L.RaiseError("set_pressures(pressures) expects an array of numbers")
			return 0
		}

		values, err := parseNumberArray(L, 1)
		if err != nil {
			L.RaiseError("set_pressures: " + err.Error())
			return 0
		}

		if err := api.session.SetPressures(values); err != nil {
			L.PushNil()
			L.PushString(fmt.Sprintf("set_pressures() failed: %s", stripWrappedGoErrorSuffix(err.Error())))
			return 2
		}

		L.PushBoolean(true)
		L.PushNil()
		return 2
	})
	L.SetTable(-3)
}

// registerGetPressuresFunction registers the myo.get_pressures() function
//
// Returns a dual-purpose Lua table with both array and hash parts:
//
// Array part (numeric indices):
//   - p[1], p[2], ... in the device's muscle order
//   - Accessed with ipairs() for ordered iteration
//
// Hash part (muscle-name keys):
//   - p["thumb_flexor"] for direct lookup by muscle name
//
// Returns (pressures, nil) on success or (nil, error_message) on failure.
func (api *API) registerGetPressuresFunction(L *lua.State) {
	api.SafePushGoFunction(L, "get_pressures", func(L *lua.State) int {
		values, err := api.session.GetPressures()
		if err != nil {
			L.PushNil()
			L.PushString(fmt.Sprintf("get_pressures() failed: %s", stripWrappedGoErrorSuffix(err.Error())))
			return 2
		}

		names := api.session.MuscleOrder()

		L.NewTable()
		for i, v := range values {
			// Array part (for ordered iteration: ipairs(p))
			L.PushInteger(int64(i + 1))
			L.PushNumber(v)
			L.SetTable(-3)

			// Hash part (for named access: p["thumb_flexor"])
			if i < len(names) {
				L.PushString(names[i])
				L.PushNumber(v)
				L.SetTable(-3)
			}
		}

		L.PushNil()
		return 2 // (pressures, nil)
	})
	L.SetTable(-3)
}

// registerLooseAllFunction registers the myo.loose_all() function.
// Vents every muscle by commanding zero pressure across the board.
// Returns (true, nil) on success or (nil, error_message) on failure.
func (api *API) registerLooseAllFunction(L *lua.State) {
	api.SafePushGoFunction(L, "loose_all", func(L *lua.State) int {
		if err := api.session.LooseAll(); err != nil {
			L.PushNil()
			L.PushString(fmt.Sprintf("loose_all() failed: %s", stripWrappedGoErrorSuffix(err.Error())))
			return 2
		}

		L.PushBoolean(true)
		L.PushNil()
		return 2
	})
	L.SetTable(-3)
}

// registerTelemetryFunction registers the myo.telemetry() function
//
// Returns (frame, nil) on success or (nil, error_message) on failure. The
// frame table carries ts_us, seq, flags and a pressures table with the same
// dual array/hash layout as get_pressures().
func (api *API) registerTelemetryFunction(L *lua.State) {
	api.SafePushGoFunction(L, "telemetry", func(L *lua.State) int {
		tele, err := api.session.GetTelemetry()
		if err != nil {
			L.PushNil()
			L.PushString(fmt.Sprintf("telemetry() failed: %s", stripWrappedGoErrorSuffix(err.Error())))
			return 2
		}

		names := api.session.MuscleOrder()

		L.NewTable()

		L.PushString("ts_us")
		L.PushInteger(tele.TsUs)
		L.SetTable(-3)

		L.PushString("seq")
		L.PushInteger(int64(tele.Seq))
		L.SetTable(-3)

		L.PushString("flags")
		L.PushInteger(int64(tele.Flags))
		L.SetTable(-3)

		L.PushString("pressures")
		L.NewTable()
		for i, v := range tele.Pressures {
			L.PushInteger(int64(i + 1))
			L.PushNumber(v)
			L.SetTable(-3)

			if i < len(names) {
				L.PushString(names[i])
				L.PushNumber(v)
				L.SetTable(-3)
			}
		}
		L.SetTable(-3)

		L.PushNil()
		return 2
	})
	L.SetTable(-3)
}

// registerIMUFunction registers the myo.imu() function
//
// Returns (samples, nil) on success or (nil, error_message) on failure.
// Each sample is a table with quat (w,x,y,z), gyro and accel arrays.
func (api *API) registerIMUFunction(L *lua.State) {
	api.SafePushGoFunction(L, "imu", func(L *lua.State) int {
		samples, err := api.session.GetIMU()
		if err != nil {
			L.PushNil()
			L.PushString(fmt.Sprintf("imu() failed: %s", stripWrappedGoErrorSuffix(err.Error())))
			return 2
		}

		L.NewTable()
		for i, s := range samples {
			L.PushInteger(int64(i + 1))
			L.NewTable()

			L.PushString("quat")
			pushNumberArray(L, s.Quat[:])
			L.SetTable(-3)

			L.PushString("gyro")
			pushNumberArray(L, s.Gyro[:])
			L.SetTable(-3)

			L.PushString("accel")
			pushNumberArray(L, s.Accel[:])
			L.SetTable(-3)

			L.SetTable(-3)
		}

		L.PushNil()
		return 2
	})
	L.SetTable(-3)
}

// registerMagneticsFunction registers the myo.magnetics() function
//
// Returns (samples, nil) on success or (nil, error_message) on failure.
// Each sample is a table with temp (raw digits) and a pixels array of four
// {x, y, z} field vectors, also in raw digits. Decoding to physical units is
// the estimator's business, not the script's.
func (api *API) registerMagneticsFunction(L *lua.State) {
	api.SafePushGoFunction(L, "magnetics", func(L *lua.State) int {
		samples, err := api.session.GetMagnetics()
		if err != nil {
			L.PushNil()
			L.PushString(fmt.Sprintf("magnetics() failed: %s", stripWrappedGoErrorSuffix(err.Error())))
			return 2
		}

		L.NewTable()
		for i, s := range samples {
			L.PushInteger(int64(i + 1))
			L.NewTable()

			L.PushString("temp")
			L.PushNumber(s.Temp)
			L.SetTable(-3)

			L.PushString("pixels")
			L.NewTable()
			for p := 0; p < len(s.Pixels); p++ {
				L.PushInteger(int64(p + 1))
				pushNumberArray(L, s.Pixels[p][:])
				L.SetTable(-3)
			}
			L.SetTable(-3)

			L.SetTable(-3)
		}

		L.PushNil()
		return 2
	})
	L.SetTable(-3)
}

// registerSubscribeFunction registers the myo.subscribe() function
//
// Usage:
//
//	myo.subscribe{
//	    kinds = {"pressure", "imu"},  -- omit for every stream
//	    mode = "EveryUpdate",         -- or "Batched", "Aggregated"
//	    max_rate_ms = 100,
//	    callback = function(record) ... end,
//	}
//
// The callback receives a record table with TsUs, Seq, Flags and either a
// Values table (kind -> array) or a BatchValues table (kind -> array of
// arrays) depending on the mode.
func (api *API) registerSubscribeFunction(L *lua.State) {
	api.SafePushGoFunction(L, "subscribe", func(L *lua.State) int {
		// Expect a table as the first argument
		if !L.IsTable(1) {
			L.RaiseError("Error: subscribe() expects a lua table argument")
			return 0
		}

		// Parse the subscription table
		config, err := api.parseSubscribeTable(L, 1)
		if err != nil {
			L.RaiseError("Error parsing subscription config: " + err.Error())
			return 0
		}

		// Execute the subscription
		err = api.executeSubscription(config)
		if err != nil {
			L.RaiseError("Error executing subscription: " + err.Error())
			return 0
		}

		return 0
	})
	L.SetTable(-3)
}

// registerSleepFunction registers the myo.sleep_ms() utility function
// Usage: myo.sleep_ms(milliseconds)
// Sleeps for the specified number of milliseconds. Cancelling the script
// context aborts the sleep with a Lua error so the script unwinds promptly.
func (api *API) registerSleepFunction(L *lua.State) {
	api.SafePushGoFunction(L, "sleep_ms", func(L *lua.State) int {
		// Validate argument
		if !L.IsNumber(1) {
			L.RaiseError("sleep_ms(milliseconds) expects a number argument")
			return 0
		}

		ms := L.ToInteger(1)
		if ms < 0 {
			L.RaiseError("sleep_ms(milliseconds) expects a non-negative number")
			return 0
		}

		ctx := api.Engine.Context()
		timer := time.NewTimer(time.Duration(ms) * time.Millisecond)
		defer timer.Stop()

		select {
		case <-timer.C:
		case <-ctx.Done():
			L.RaiseError("sleep_ms interrupted: " + ctx.Err().Error())
			return 0
		}

		return 0
	})
	L.SetTable(-3)
}

// parseSubscribeTable parses the Lua table into a luaSubscribeTable
func (api *API) parseSubscribeTable(L *lua.State, tableIndex int) (*luaSubscribeTable, error) {
	config := &luaSubscribeTable{}

	// Convert relative index to absolute index
	if tableIndex < 0 {
		tableIndex = L.GetTop() + tableIndex + 1
	}

	// Parse kinds array
	L.PushString("kinds")
	L.GetTable(tableIndex)
	if L.IsTable(-1) {
		config.Kinds = api.parseKindsArray(L, -1)
	}
	L.Pop(1)

	// Parse mode
	L.PushString("mode")
	L.GetTable(tableIndex)
	if L.IsString(-1) {
		config.Mode = L.ToString(-1)
	} else {
		config.Mode = "EveryUpdate" // Default
	}
	L.Pop(1)

	// Parse max_rate_ms
	L.PushString("max_rate_ms")
	L.GetTable(tableIndex)
	if L.IsNumber(-1) {
		config.MaxRateMs = L.ToInteger(-1)
	} else {
		config.MaxRateMs = 0 // Default
	}
	L.Pop(1)

	// Parse callback function
	L.PushString("callback")
	L.GetTable(tableIndex)
	if L.IsFunction(-1) {
		// Store reference to the function
		config.CallbackRef = L.Ref(lua.LUA_REGISTRYINDEX)
	} else {
		L.Pop(1) // Pop non-function value
	}

	return config, nil
}

// parseKindsArray parses the stream kind names from a subscription table
func (api *API) parseKindsArray(L *lua.State, tableIndex int) []hand.Kind {
	var kinds []hand.Kind

	// Convert relative index to absolute index for L.Next()
	if tableIndex < 0 {
		tableIndex = L.GetTop() + tableIndex + 1
	}

	L.PushNil()
	for L.Next(tableIndex) != 0 {
		if L.IsString(-1) {
			// Unknown names pass through; subscription validation rejects
			// them with the full list of missing streams.
			kinds = append(kinds, hand.Kind(L.ToString(-1)))
		}
		L.Pop(1) // Pop value, keep key for next iteration
	}

	return kinds
}

// executeSubscription starts the actual telemetry subscription
func (api *API) executeSubscription(config *luaSubscribeTable) error {
	api.logger.WithFields(logrus.Fields{
		"kinds": len(config.Kinds),
		"mode":  config.Mode,
	}).Debug("executeSubscription called")

	opts := []*hand.SubscribeOptions{
		{Kinds: config.Kinds},
	}

	// Parse mode and max rate
	mode := parseStreamMode(config.Mode)
	maxRate := time.Duration(config.MaxRateMs) * time.Millisecond

	// Create a callback that calls the Lua function (nil if no callback provided)
	var callback func(*hand.Record)
	if config.CallbackRef != 0 {
		callback = func(record *hand.Record) {
			api.callLuaCallback(config.CallbackRef, record)
		}
	}

	return api.session.Subscribe(opts, mode, maxRate, callback)
}

// callLuaCallback calls the Lua callback function with the record data.
// It runs on the controller's pump goroutine and serializes against script
// execution through DoWithState.
func (api *API) callLuaCallback(callbackRef int, record *hand.Record) {
	if callbackRef == lua.LUA_NOREF {
		return
	}

	// Outer panic handler: catches ALL panics (including LuaError from StackTrace crashes)
	// This ensures one callback's error doesn't crash other subscriptions
	defer func() {
		if r := recover(); r != nil {
			// Log ALL panics (LuaError or otherwise) and recover gracefully
			stack := string(debug.Stack())
			api.logger.Errorf("Lua subscribe callback panic (recovered): %v\nStack:\n%s", r, stack)

			// Send error to stderr for user visibility
			api.Engine.outputChan.ForceSend(OutputRecord{
				Content:   fmt.Sprintf("Subscribe callback error: %v\n", r),
				Timestamp: time.Now(),
				Source:    "stderr",
			})

			// DO NOT touch the Lua state here: a panic out of the FFI layer
			// can mean a corrupted VM, and poking it again is how a recovered
			// panic turns into a process crash.
		}
	}()

	api.Engine.DoWithState(func(L *lua.State) interface{} {
		// Inner panic handler: catches panics from L.Call() (including StackTrace crashes)
		defer func() {
			if r := recover(); r != nil {
				// Re-panic to outer handler for cleanup
				panic(r)
			}
		}()

		// Push the callback function onto the stack using reference
		L.RawGeti(lua.LUA_REGISTRYINDEX, callbackRef)

		// Create a record table
		L.NewTable()

		// Set TsUs
		L.PushString("TsUs")
		L.PushInteger(record.TsUs)
		L.SetTable(-3)

		// Set Seq
		L.PushString("Seq")
		L.PushInteger(int64(record.Seq))
		L.SetTable(-3)

		// Set Flags
		L.PushString("Flags")
		L.PushInteger(int64(record.Flags))
		L.SetTable(-3)

		// Set Values table (for EveryUpdate/Aggregated modes)
		if record.Values != nil {
			L.PushString("Values")
			L.NewTable()
			for kind, values := range record.Values {
				L.PushString(string(kind))
				pushNumberArray(L, values)
				L.SetTable(-3)
			}
			L.SetTable(-3)
		}

		// Set the BatchValues table (for Batched mode)
		if record.BatchValues != nil {
			L.PushString("BatchValues")
			L.NewTable()
			for kind, valuesArray := range record.BatchValues {
				L.PushString(string(kind))
				L.NewTable()
				for i, values := range valuesArray {
					L.PushInteger(int64(i + 1)) // Lua arrays are 1-indexed
					pushNumberArray(L, values)
					L.SetTable(-3)
				}
				L.SetTable(-3)
			}
			L.SetTable(-3)
		}

		// Call the function with 1 argument (the record table)
		// This can panic if StackTrace() crashes while building LuaError
		if err := L.Call(1, 0); err != nil {
			// Log the error for debugging
			api.logger.Errorf("Lua callback execution failed: %v", err)

			// Send error to an output channel for user visibility
			api.Engine.outputChan.ForceSend(OutputRecord{
				Content:   fmt.Sprintf("Callback error: %v\n", err),
				Timestamp: time.Now(),
				Source:    "stderr",
			})

			// CRITICAL: Reset the Lua stack after an error to prevent corruption
			// When L.Call() fails, the stack may be left in an inconsistent state
			// Resetting ensures the next callback starts with a clean stack
			L.SetTop(0)
		}

		return nil
	})
}

// parseNumberArray reads the array part of the table at tableIndex, in index
// order. Stops at the first missing index, Lua array convention.
func parseNumberArray(L *lua.State, tableIndex int) ([]float64, error) {
	if tableIndex < 0 {
		tableIndex = L.GetTop() + tableIndex + 1
	}

	var values []float64
	for i := 1; ; i++ {
		L.PushInteger(int64(i))
		L.GetTable(tableIndex)
		if L.IsNil(-1) {
			L.Pop(1)
			break
		}
		if !L.IsNumber(-1) {
			L.Pop(1)
			return nil, fmt.Errorf("element %d is not a number", i)
		}
		values = append(values, L.ToNumber(-1))
		L.Pop(1)
	}
	return values, nil
}

// pushNumberArray pushes values as a Lua array table.
// Stack effect: pushes one table
func pushNumberArray(L *lua.State, values []float64) {
	L.NewTable()
	for i, v := range values {
		L.PushInteger(int64(i + 1))
		L.PushNumber(v)
		L.SetTable(-3)
	}
}

// pushStringArray pushes values as a Lua array table.
// Stack effect: pushes one table
func pushStringArray(L *lua.State, values []string) {
	L.NewTable()
	for i, v := range values {
		L.PushInteger(int64(i + 1))
		L.PushString(v)
		L.SetTable(-3)
	}
}
