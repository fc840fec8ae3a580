package choreo

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/suite"

	myolink "github.com/srg/myolink"
)

// ChoreoTestSuite exercises Play against simulated hands: lifecycle phases,
// the gestures helper library, embedded builtins, and failure paths.
type ChoreoTestSuite struct {
	suite.Suite
	logger *logrus.Logger
}

func (suite *ChoreoTestSuite) SetupSuite() {
	suite.logger = logrus.New()
	suite.logger.SetLevel(logrus.PanicLevel) // Suppress log output during tests
}

func (suite *ChoreoTestSuite) TestPlayValidation() {
	suite.Run("NilOptions", func() {
		err := Play(context.Background(), `print("x")`, nil, nil)
		suite.Error(err)
		suite.Contains(err.Error(), "options are required")
	})

	suite.Run("MissingAddress", func() {
		err := Play(context.Background(), `print("x")`, &PlayOptions{}, nil)
		suite.Error(err)
		suite.Contains(err.Error(), "device address is required")
	})

	suite.Run("EmptyScript", func() {
		err := Play(context.Background(), "  \n\t", &PlayOptions{Address: "sim://choreo-empty"}, nil)
		suite.Error(err)
		suite.Contains(err.Error(), "script is empty")
	})
}

func (suite *ChoreoTestSuite) TestPlayRunsGesture() {
	// GOAL: Verify Play connects, exposes myo + require("gestures") to the
	// script, reports its phases in order, and tears down cleanly
	var stdout bytes.Buffer
	var phases []string

	err := Play(context.Background(), `
		local g = require("gestures")
		g.apply(g.uniform(0.3))
		print("played " .. myo.muscle_count())
	`, &PlayOptions{
		Address: "sim://choreo-basic",
		Stdout:  &stdout,
		Logger:  suite.logger,
	}, func(phase string) {
		phases = append(phases, phase)
	})

	suite.NoError(err)
	suite.Contains(stdout.String(), "played 8")
	suite.Equal([]string{"Connecting", "Connected", "Running gesture"}, phases)
}

func (suite *ChoreoTestSuite) TestPlayEmbeddedWaveGesture() {
	// GOAL: Verify the embedded wave builtin runs end to end with arg[]
	// injection trimming it to a single ripple
	var stdout bytes.Buffer

	err := Play(context.Background(), myolink.WaveGestureScript, &PlayOptions{
		Address: "sim://choreo-wave",
		Args:    map[string]string{"reps": "1"},
		Stdout:  &stdout,
		Logger:  suite.logger,
	}, nil)

	suite.NoError(err)
	suite.Contains(stdout.String(), "wave complete")
}

func (suite *ChoreoTestSuite) TestPlayScriptFailure() {
	// GOAL: Verify a failing script surfaces through Play with the device
	// still torn down (no goroutine or connection leaks to trip other tests)
	var stderr bytes.Buffer
	err := Play(context.Background(), `error("gesture exploded")`, &PlayOptions{
		Address: "sim://choreo-fail",
		Stderr:  &stderr,
		Logger:  suite.logger,
	}, nil)

	suite.Error(err)
	suite.Contains(err.Error(), "failed to execute script")
	suite.Contains(stderr.String(), "Lua runtime error")
}

func (suite *ChoreoTestSuite) TestPlayConnectFailure() {
	// GOAL: Verify an unreachable device fails in the Connecting phase with
	// a wrapped error naming the address
	var phases []string
	err := Play(context.Background(), `print("never")`, &PlayOptions{
		Address: "serial://no-such-scheme",
		Logger:  suite.logger,
	}, func(phase string) {
		phases = append(phases, phase)
	})

	suite.Error(err)
	suite.Contains(err.Error(), "failed to connect to device serial://no-such-scheme")
	suite.Equal([]string{"Connecting", "Failed"}, phases)
}

func (suite *ChoreoTestSuite) TestPlayCancelledContext() {
	// GOAL: Verify an already-cancelled context aborts before the script runs
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var stdout bytes.Buffer
	err := Play(ctx, `print("never")`, &PlayOptions{
		Address:      "sim://choreo-cancelled",
		Stdout:       &stdout,
		DrainTimeout: 20 * time.Millisecond,
		Logger:       suite.logger,
	}, nil)

	suite.Error(err)
	suite.ErrorIs(err, context.Canceled)
	suite.Empty(stdout.String())
}

// TestChoreoSuite runs the test suite using testify/suite
func TestChoreoSuite(t *testing.T) {
	suite.Run(t, new(ChoreoTestSuite))
}
