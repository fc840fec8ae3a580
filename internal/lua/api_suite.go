//go:build test

package lua

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/srg/myolink/internal/testutils"
	"github.com/srg/myolink/session"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// APISuite is the shared fixture for myo-table tests. It wires a mock hand
// behind a connected session, binds the Lua API to it and captures all script
// output in an OutputCollector for assertions.
//
// Embed it and add test methods:
//
//	type MyTests struct {
//	    lua.APISuite
//	}
//
//	func (suite *MyTests) TestSomething() {
//	    err := suite.ExecuteScript(`print(myo.muscle_count())`)
//	    suite.NoError(err)
//	    suite.Contains(suite.CollectOutput(), "4")
//	}
type APISuite struct {
	testutils.MockHandSuite

	API           *API
	Session       *session.Session
	outputCapture *OutputCollector
}

// APISurface lists every function the myo table exposes, in registration
// order, mapped to a one-line description. Tests iterate it to pin the
// published API surface; adding a function without extending this map is a
// test failure by construction.
func APISurface() *orderedmap.OrderedMap[string, string] {
	om := orderedmap.New[string, string]()
	om.Set("info", "device identity and muscle/joint layout")
	om.Set("muscle_count", "number of muscles, cached at connect")
	om.Set("muscle_names", "canonical muscle order")
	om.Set("set_pressures", "command normalized pressures, one per muscle")
	om.Set("get_pressures", "current pressures as a dual array/hash table")
	om.Set("loose_all", "vent every muscle")
	om.Set("telemetry", "latest pressure telemetry frame")
	om.Set("imu", "latest inertial samples")
	om.Set("magnetics", "latest raw joint sensor samples")
	om.Set("subscribe", "register a telemetry stream callback")
	om.Set("sleep_ms", "context-aware sleep")
	return om
}

// SetupTest connects a session to the mock hand and binds a fresh Lua API to
// it. Tests that need a custom muscle profile configure WithHand() in their
// own SetupTest before calling this one.
func (suite *APISuite) SetupTest() {
	// Default four-muscle profile unless the test configured its own hand
	if suite.HandBuilder == nil {
		suite.WithHand().
			WithModel("hand8").
			WithFirmware("fw-2.1.0").
			WithMuscles("thumb_flexor", "index_flexor", "middle_flexor", "pinky_flexor")
	}

	suite.MockHandSuite.SetupTest()

	suite.Session = session.New("sim://mock-hand", session.WithLogger(suite.Logger))
	err := suite.Session.Connect(context.Background())
	suite.Require().NoError(err, "MUST connect successfully")

	suite.API = NewAPI(suite.Session, suite.Logger)

	if err := suite.setupOutputCollector(); err != nil {
		suite.API.Close()
		suite.API = nil
		suite.T().Fatalf("Failed to setup output collector: %v", err)
	}
}

// setupOutputCollector creates and starts the Lua output collector with proper error handling
func (suite *APISuite) setupOutputCollector() error {
	lc, err := NewOutputCollector(suite.API.OutputChannel(), 100, nil)
	if err != nil {
		return fmt.Errorf("creating output collector: %w", err)
	}

	if err := lc.Start(); err != nil {
		// Attempt cleanup on start failure - if stop also fails, log it but return the original error
		if stopErr := lc.Stop(); stopErr != nil {
			suite.T().Logf("Warning: failed to stop collector after start failure: %v", stopErr)
		}
		return fmt.Errorf("starting output collector: %w", err)
	}

	suite.outputCapture = lc
	return nil
}

// TearDownTest cleans up test resources in proper order: session, output collector, then Lua API.
// Logs warnings for cleanup errors but does not fail the test.
//
// CRITICAL ORDER: Disconnect the session FIRST to stop subscription pumps and prevent
// writes to closed channels, THEN stop the output collector to drain remaining output,
// THEN close the Lua API.
func (suite *APISuite) TearDownTest() {
	var errors []error

	// Step 1: Disconnect session FIRST to stop subscriptions and prevent writes to output channels
	if suite.Session != nil {
		if suite.Session.IsConnected() {
			if err := suite.Session.Disconnect(); err != nil {
				errors = append(errors, fmt.Errorf("disconnecting session: %w", err))
			}
		}
		suite.Session = nil
	}

	// Step 2: Stop output collector AFTER session disconnect to drain any final output
	if suite.outputCapture != nil {
		if err := suite.outputCapture.Stop(); err != nil {
			errors = append(errors, fmt.Errorf("stopping output collector: %w", err))
		}
		suite.outputCapture = nil
	}

	// Step 3: Close Lua API
	if suite.API != nil {
		suite.API.Close()
		suite.API = nil
	}

	// Step 4: Call parent teardown
	suite.MockHandSuite.TearDownTest()

	// Report any cleanup errors (but don't fail the test)
	if len(errors) > 0 {
		for _, err := range errors {
			suite.T().Logf("Cleanup warning: %v", err)
		}
	}
}

// SetupSubTest recreates the Lua API and collector for each subtest so state
// from one subtest never leaks into the next. Step subtests (Step_1, Step_2,
// ...) share the parent's API on purpose: they represent one script session.
func (suite *APISuite) SetupSubTest() {
	testName := suite.T().Name()
	if strings.HasPrefix(testName, "Step_") || strings.Contains(testName, "/Step_") {
		return
	}

	// Clean up existing resources in proper order (for test case subtests only)
	if suite.outputCapture != nil {
		if err := suite.outputCapture.Stop(); err != nil {
			suite.T().Fatalf("Failed to stop output collector during subtest setup: %v", err)
		}
		suite.outputCapture = nil
	}

	if suite.API != nil {
		suite.API.Close()
		suite.API = nil
	}

	// The session survives across subtests; only the Lua side is rebuilt
	suite.API = NewAPI(suite.Session, suite.Logger)

	if err := suite.setupOutputCollector(); err != nil {
		suite.T().Fatalf("Failed to setup output collector in subtest: %v", err)
	}
}

// ExecuteScript loads and runs a script, returning the execution error.
// Load failures fail the test immediately: they are test bugs, not behavior
// under test.
func (suite *APISuite) ExecuteScript(script string) error {
	err := suite.API.LoadScript(script, "test")
	suite.NoError(err, "Should load script without errors")
	return suite.API.ExecuteScript(context.Background(), "")
}

// CollectOutput drains everything captured so far and returns it as plain text.
func (suite *APISuite) CollectOutput() string {
	out, err := suite.outputCapture.ConsumePlainText()
	suite.Require().NoError(err, "Should consume collected output")
	return out
}

// AssertOutput asserts the whole drained output equals want, reporting a
// unified diff on mismatch. Whole-output comparison catches stray prints that
// Contains-style checks let through. Surrounding whitespace is ignored; pass
// output from WaitForOutput when callbacks may still be flushing.
func (suite *APISuite) AssertOutput(got, want string) {
	testutils.NewTextAsserter(suite.T()).
		WithOptions(testutils.WithTrimSpace(true)).
		Assert(got, want)
}

// WaitForOutput keeps draining collected output until it contains want or the
// timeout expires, returning everything drained. Subscription callbacks run on
// pump goroutines, so their output can trail the script that registered them.
func (suite *APISuite) WaitForOutput(want string, timeout time.Duration) string {
	var all strings.Builder
	deadline := time.Now().Add(timeout)
	for {
		out, err := suite.outputCapture.ConsumePlainText()
		suite.Require().NoError(err, "Should consume collected output")
		all.WriteString(out)
		if strings.Contains(all.String(), want) || time.Now().After(deadline) {
			return all.String()
		}
		time.Sleep(10 * time.Millisecond)
	}
}
