//go:build test

package testutils

import (
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/myolink/internal/hand"
	"github.com/srg/myolink/internal/handfactory"
	"github.com/srg/myolink/internal/testutils/mocks"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"
)

// MockHandSuite provides a reusable test suite with mock hand support.
// It follows testify/suite best practices and provides standardized hand
// mocking capabilities.
//
// The suite automatically handles controller factory lifecycle management and
// provides a fluent API for configuring mock hands with muscle profiles,
// telemetry behavior, and discovery advertisements.
//
// Basic usage (automatic setup with the default four-muscle profile):
//
//	type SimpleSuite struct {
//	    testutils.MockHandSuite
//	}
//
//	func TestSimpleSuite(t *testing.T) {
//	    suite.Run(t, new(SimpleSuite))
//	}
//
// Custom hand profile usage:
//
//	type InfoSuite struct {
//	    testutils.MockHandSuite
//	}
//
//	func (s *InfoSuite) SetupTest() {
//	    // Configure the custom hand first
//	    s.WithHand().
//	        WithModel("hand8").
//	        WithMuscles("thumb_flexor", "index_flexor")
//
//	    s.MockHandSuite.SetupTest() // Call parent last to apply configuration
//	}
//
// Discovery with advertisements usage:
//
//	type DevicesSuite struct {
//	    testutils.MockHandSuite
//	}
//
//	func (s *DevicesSuite) SetupTest() {
//	    s.WithAdvertisements().
//	        WithNewAdvertisement().WithAddress("sim://left").WithModel("hand8").Build()
//
//	    s.MockHandSuite.SetupTest() // Call parent last to apply configuration
//	}
//
// MockHandSuite embeds testify/suite.Suite and provides hand-specific test utilities.
type MockHandSuite struct {
	suite.Suite

	// Core test utilities
	Helper *TestHelper    // Test helper with logging and assertions
	Logger *logrus.Logger // Structured logger for test output

	// Controller factory management
	OriginalControllerFactory func(addr hand.Address, logger *logrus.Logger) (hand.Controller, error)
	OriginalDiscovererFactory func(scheme string, logger *logrus.Logger) hand.Discoverer
	TestTimeout               time.Duration // Default timeout for hand operations

	// Mock hand configuration
	HandBuilder *MockHandBuilder // Builder for configuring the mock hand

	// Mock advertisements configuration
	AdvertisementsBuilder *AdvertisementArrayBuilder[[]hand.Advertisement]

	// Built mock, available to tests for expectation assertions
	Controller *mocks.MockController
}

// SetupSuite initializes the test suite following testify/suite best practices.
// Called once before all tests in the suite.
func (s *MockHandSuite) SetupSuite() {
	s.Helper = NewTestHelper(s.T())
	s.Logger = s.Helper.Logger
	s.TestTimeout = 30 * time.Second

	// Save the original factories for restoration
	s.OriginalControllerFactory = handfactory.ControllerFactory
	s.OriginalDiscovererFactory = handfactory.NewDiscoverer

	// Use t.Cleanup for automatic resource restoration
	s.T().Cleanup(func() {
		if s.OriginalControllerFactory != nil {
			handfactory.ControllerFactory = s.OriginalControllerFactory
		}
		if s.OriginalDiscovererFactory != nil {
			handfactory.NewDiscoverer = s.OriginalDiscovererFactory
			s.Logger.Debug("Controller factory restored via t.Cleanup")
		}
	})

	s.Logger.Debug("Suite setup completed")
}

// SetupTest configures the mock controller factory before each test.
// Called before each test method.
func (s *MockHandSuite) SetupTest() {
	if s.HandBuilder == nil {
		s.HandBuilder = NewMockHandBuilder()
	}

	s.Controller = s.HandBuilder.Build()

	handfactory.ControllerFactory = func(addr hand.Address, logger *logrus.Logger) (hand.Controller, error) {
		return s.Controller, nil
	}

	if s.AdvertisementsBuilder != nil {
		ads := s.AdvertisementsBuilder.Build()
		discoverer := &mocks.MockDiscoverer{}
		discoverer.On("Discover", mock.Anything).Return(ads, nil)
		handfactory.NewDiscoverer = func(scheme string, logger *logrus.Logger) hand.Discoverer {
			return discoverer
		}
	}

	s.Logger.Debug("Test setup completed - ready for execution")
}

// TearDownTest resets the hand builder after each test.
// Called after each test method.
func (s *MockHandSuite) TearDownTest() {
	// Restore the factories to prevent nil pointer panics in subsequent tests
	if s.OriginalControllerFactory != nil {
		handfactory.ControllerFactory = s.OriginalControllerFactory
	}
	if s.OriginalDiscovererFactory != nil {
		handfactory.NewDiscoverer = s.OriginalDiscovererFactory
	}

	// Reset builders to clean state
	s.HandBuilder = nil
	s.AdvertisementsBuilder = nil
	s.Controller = nil
}

// TearDownSuite performs final cleanup after all tests complete.
// Factory restoration is handled automatically via t.Cleanup().
func (s *MockHandSuite) TearDownSuite() {
	s.Logger.Debug("Suite teardown completed")
}

// WithHand returns the hand builder for fluent configuration.
// Use this method to configure custom hand profiles in the test setup.
func (s *MockHandSuite) WithHand() *MockHandBuilder {
	if s.HandBuilder == nil {
		s.HandBuilder = NewMockHandBuilder()
	}

	s.Logger.Debug("Hand configuration started")
	return s.HandBuilder
}

// WithAdvertisements returns the advertisement array builder for configuring discovery results.
// Use this method to set up discovery advertisements in the test setup.
func (s *MockHandSuite) WithAdvertisements() *AdvertisementArrayBuilder[[]hand.Advertisement] {
	if s.AdvertisementsBuilder == nil {
		s.AdvertisementsBuilder = NewAdvertisementArrayBuilder[[]hand.Advertisement]()
	}

	s.Logger.Debug("Advertisements configuration started")
	return s.AdvertisementsBuilder
}
