package lua

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/suite"

	"github.com/srg/myolink/internal/hand/sim"
	"github.com/srg/myolink/session"
)

// APISimTestSuite runs the myo API against a real simulated hand. The mock
// suite covers the call surface; these tests cover what only a live device
// exercises: the telemetry pump delivering into Lua callbacks, pressure
// dynamics settling toward targets, and sleeps cut short by the context.
type APISimTestSuite struct {
	suite.Suite
	logger  *logrus.Logger
	sess    *session.Session
	api     *API
	capture *OutputCollector
}

const simHandName = "lua-sim"

func (suite *APISimTestSuite) SetupSuite() {
	suite.logger = logrus.New()
	suite.logger.SetLevel(logrus.PanicLevel) // Suppress log output during tests
}

func (suite *APISimTestSuite) SetupTest() {
	// A fast, nearly noise-free hand so pressure assertions settle within a
	// few script milliseconds instead of the default 120ms time constant.
	cfg := sim.DefaultConfig()
	cfg.TimeConstant = time.Millisecond
	cfg.NoiseAmplitude = 1e-9
	cfg.TelemetryInterval = 10 * time.Millisecond
	cfg.Seed = 7
	sim.Register(sim.New(simHandName, cfg, suite.logger))

	suite.sess = session.New("sim://"+simHandName, session.WithLogger(suite.logger))
	suite.Require().NoError(suite.sess.Connect(context.Background()), "MUST connect to the simulated hand")

	suite.api = NewAPI(suite.sess, suite.logger)

	capture, err := NewOutputCollector(suite.api.OutputChannel(), 100, nil)
	suite.Require().NoError(err, "Failed to create output collector")
	suite.Require().NoError(capture.Start(), "Failed to start output collector")
	suite.capture = capture
}

func (suite *APISimTestSuite) TearDownTest() {
	// Disconnect first: tearing down the device cancels subscription pumps
	// before the Lua state they call into goes away.
	if suite.sess != nil && suite.sess.IsConnected() {
		if err := suite.sess.Disconnect(); err != nil {
			suite.T().Logf("Warning: failed to disconnect session: %v", err)
		}
	}
	if suite.capture != nil {
		if err := suite.capture.Stop(); err != nil {
			suite.T().Logf("Warning: failed to stop output collector: %v", err)
		}
	}
	if suite.api != nil {
		suite.api.Close()
	}
	sim.Unregister(simHandName)
}

// ExecuteScript loads and runs script, failing the test on compile errors.
func (suite *APISimTestSuite) ExecuteScript(script string) error {
	err := suite.api.LoadScript(script, "test")
	suite.Require().NoError(err, "Script execution should not fail")
	return suite.api.ExecuteScript(context.Background(), "")
}

// waitForOutput polls the collector until want shows up or timeout expires,
// returning everything collected either way.
func (suite *APISimTestSuite) waitForOutput(want string, timeout time.Duration) string {
	var collected strings.Builder
	deadline := time.Now().Add(timeout)
	for {
		chunk, err := suite.capture.ConsumePlainText()
		suite.Require().NoError(err)
		collected.WriteString(chunk)
		if strings.Contains(collected.String(), want) || time.Now().After(deadline) {
			return collected.String()
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func (suite *APISimTestSuite) TestInfoReportsSimulatedDevice() {
	// GOAL: Verify info() reflects the simulated hand8 device identity
	err := suite.ExecuteScript(`
		local i = myo.info()
		assert(i ~= nil, "info() returned nil")
		assert(i.model == "hand8", "model: " .. tostring(i.model))
		assert(i.serial == "SIM-hand8-lua-sim", "serial: " .. tostring(i.serial))
		assert(i.muscle_count == 8, "muscle_count: " .. tostring(i.muscle_count))
		assert(i.imu_count == 1, "imu_count: " .. tostring(i.imu_count))
		assert(i.muscles[1] == "thumb_flexor", "first muscle: " .. tostring(i.muscles[1]))
		assert(i.joints[1] == "thumb_cmc", "first joint: " .. tostring(i.joints[1]))
		print("info ok")
	`)
	suite.NoError(err)
	suite.Contains(suite.waitForOutput("info ok", time.Second), "info ok")
}

func (suite *APISimTestSuite) TestPressuresSettleTowardTargets() {
	// GOAL: Verify commanded pressures are observable through get_pressures()
	// once the simulated first-order response has settled
	err := suite.ExecuteScript(`
		local ok, serr = myo.set_pressures{0.5, 0.25, 0, 0, 0, 0, 0, 0.75}
		assert(ok, "set_pressures failed: " .. tostring(serr))

		myo.sleep_ms(80)

		local p, gerr = myo.get_pressures()
		assert(p ~= nil, "get_pressures failed: " .. tostring(gerr))

		local function close(a, b) return math.abs(a - b) < 0.02 end
		assert(close(p[1], 0.5), "p[1]: " .. tostring(p[1]))
		assert(close(p[2], 0.25), "p[2]: " .. tostring(p[2]))
		assert(close(p[3], 0), "p[3]: " .. tostring(p[3]))
		assert(close(p["wrist_flexor"], 0.75), "wrist_flexor: " .. tostring(p["wrist_flexor"]))
		print("roundtrip ok")
	`)
	suite.NoError(err)
	suite.Contains(suite.waitForOutput("roundtrip ok", time.Second), "roundtrip ok")
}

func (suite *APISimTestSuite) TestSubscribeDeliversPressureRecords() {
	// GOAL: Verify the device pump delivers pressure records into a Lua
	// callback registered via myo.subscribe{}
	//
	// TEST SCENARIO: a first script registers the subscription and returns,
	// releasing the Lua state; the pump then invokes the callback between
	// scripts; a second script inspects the counters the callback maintained.
	err := suite.ExecuteScript(`
		count = 0
		have_values = false
		myo.subscribe{
			kinds = {"pressure"},
			mode = "EveryUpdate",
			callback = function(record)
				count = count + 1
				if record.Values ~= nil and record.Values["pressure"] ~= nil then
					have_values = true
				end
			end,
		}
	`)
	suite.Require().NoError(err)

	// The pump publishes every 10ms; give it room for several deliveries
	time.Sleep(300 * time.Millisecond)

	err = suite.ExecuteScript(`
		assert(count > 0, "expected pressure records, got none")
		assert(have_values, "expected Values.pressure in delivered records")
	`)
	suite.NoError(err)

	count, err := suite.api.Engine.GetGlobalInteger("count")
	suite.Require().NoError(err)
	suite.Positive(count, "Callback should have run at least once")
}

func (suite *APISimTestSuite) TestSubscribeSurvivesCallbackError() {
	// GOAL: Verify a failing callback does not kill the subscription: later
	// records still arrive and the failure is reported on stderr
	err := suite.ExecuteScript(`
		count = 0
		myo.subscribe{
			kinds = {"pressure"},
			callback = function(record)
				count = count + 1
				error("callback boom")
			end,
		}
	`)
	suite.Require().NoError(err)

	time.Sleep(300 * time.Millisecond)

	count, err := suite.api.Engine.GetGlobalInteger("count")
	suite.Require().NoError(err)
	suite.Greater(count, 1, "Subscription should keep delivering after a callback error")

	suite.Contains(suite.waitForOutput("Callback error", time.Second), "Callback error")
}

func (suite *APISimTestSuite) TestSleepInterruptedByDeadline() {
	// GOAL: Verify a context deadline cuts myo.sleep_ms() short with a
	// runtime error instead of sleeping out the full duration
	suite.Require().NoError(suite.api.LoadScript(`myo.sleep_ms(5000)`, "test"))

	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := suite.api.ExecuteScript(ctx, "")
	elapsed := time.Since(start)

	suite.Error(err)
	suite.Contains(err.Error(), "sleep_ms interrupted")
	suite.Less(elapsed, 2*time.Second, "Sleep must be cut short by the deadline")
}

func (suite *APISimTestSuite) TestUnconnectedSessionIsReportedToScripts() {
	// GOAL: Verify scripts see a zero-muscle device and not_connected errors
	// when the bound session never connected
	sess := session.New("sim://lua-sim-unconnected", session.WithLogger(suite.logger))
	api := NewAPI(sess, suite.logger)
	defer api.Close()

	suite.Require().NoError(api.LoadScript(`
		assert(myo.muscle_count() == 0, "expected no muscles before connect")
		local p, perr = myo.get_pressures()
		assert(p == nil, "expected nil pressures")
		assert(string.find(perr, "not_connected") ~= nil, "unexpected error: " .. tostring(perr))
	`, "test"))
	suite.NoError(api.ExecuteScript(context.Background(), ""))
}

// TestAPISimSuite runs the test suite using testify/suite
func TestAPISimSuite(t *testing.T) {
	suite.Run(t, new(APISimTestSuite))
}
