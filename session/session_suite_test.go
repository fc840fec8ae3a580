//go:build test

package session_test

import (
	"context"

	"github.com/srg/myolink/internal/testutils"
	"github.com/srg/myolink/session"
)

type SessionTestSuite struct {
	testutils.MockHandSuite

	session *session.Session
}

// ensureConnected ensures the session is connected, reconnecting if necessary
func (suite *SessionTestSuite) ensureConnected() {
	if suite.session != nil && suite.session.IsConnected() {
		return
	}

	suite.session = session.New("sim://mock-hand", session.WithLogger(suite.Logger))
	err := suite.session.Connect(context.Background())
	if err != nil {
		suite.session = nil
	}

	suite.Require().NoError(err, "MUST connect successfully")
}

// SetupTest configures a default four-muscle hand profile for all tests
func (suite *SessionTestSuite) SetupTest() {
	suite.WithHand().
		WithModel("hand8").
		WithFirmware("fw-2.1.0").
		WithMuscles("thumb_flexor", "index_flexor", "middle_flexor", "pinky_flexor")

	// Call parent to apply the configuration and set up the controller factory
	suite.MockHandSuite.SetupTest()

	suite.ensureConnected()
}

func (suite *SessionTestSuite) SetupSubTest() {
	suite.ensureConnected()
}

func (suite *SessionTestSuite) TearDownTest() {
	if suite.session != nil {
		if err := suite.session.Disconnect(); err != nil {
			suite.Logger.WithError(err).Error("Failed to disconnect session")
		}
		suite.session = nil
	}

	suite.MockHandSuite.TearDownTest()
}
