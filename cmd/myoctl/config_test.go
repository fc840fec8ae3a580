package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/srg/myolink/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

// CLIConfigTestSuite provides testify/suite for proper test isolation
type CLIConfigTestSuite struct {
	suite.Suite
	originalFlags struct {
		getFresh          bool
		getJSON           bool
		getWatch          string
		getTimeout        time.Duration
		getConnectTimeout time.Duration
	}
}

// SetupSuite runs once before all tests in the suite
func (suite *CLIConfigTestSuite) SetupSuite() {
	suite.originalFlags.getFresh = getFresh
	suite.originalFlags.getJSON = getJSON
	suite.originalFlags.getWatch = getWatch
	suite.originalFlags.getTimeout = getTimeout
	suite.originalFlags.getConnectTimeout = getConnectTimeout
}

// TearDownSuite runs once after all tests in the suite
func (suite *CLIConfigTestSuite) TearDownSuite() {
	getFresh = suite.originalFlags.getFresh
	getJSON = suite.originalFlags.getJSON
	getWatch = suite.originalFlags.getWatch
	getTimeout = suite.originalFlags.getTimeout
	getConnectTimeout = suite.originalFlags.getConnectTimeout
}

// SetupTest runs before each test in the suite
func (suite *CLIConfigTestSuite) SetupTest() {
	getFresh = false
	getJSON = false
	getWatch = ""
	getTimeout = 5 * time.Second
	getConnectTimeout = 30 * time.Second
}

// writeConfigFile writes a YAML config to a temp dir and returns its path.
func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "myoctl.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644), "config file MUST be written")
	return path
}

// newConfigAwareRoot builds a root with the --config persistent flag, mirroring
// the real CLI root.
func newConfigAwareRoot(children ...*cobra.Command) *cobra.Command {
	root := &cobra.Command{}
	root.PersistentFlags().String("config", "", "Config file")
	root.PersistentFlags().String("log-level", "", "Log level")
	for _, c := range children {
		root.AddCommand(c)
	}
	return root
}

func (suite *CLIConfigTestSuite) TestGetCmd_DefaultDeviceFromConfig() {
	// GOAL: Verify a bare 'get' resolves the device and output format from the
	// config file
	//
	// TEST SCENARIO: Register sim hand → config with default_device and
	// output_format json → get --config with no address → JSON report from the
	// configured hand

	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	cleanup := registerFastHand("cli-config", logger)
	defer cleanup()

	path := writeConfigFile(suite.T(), "log_level: panic\ndefault_device: sim://cli-config\noutput_format: json\n")

	root := newConfigAwareRoot(getCmd)

	var err error
	output := captureStdout(suite.T(), func() {
		_, err = executeCommand(root, "get", "--config", path)
	})
	suite.Require().NoError(err, "bare get MUST succeed with default_device configured")

	var report pressureReport
	suite.Require().NoError(json.Unmarshal([]byte(output), &report), "output_format json MUST produce JSON output")
	suite.Assert().Equal("sim://cli-config", report.Address, "report MUST come from the configured default device")
	suite.Assert().Len(report.Pressures, 8, "hand8 MUST report 8 pressures")
}

func (suite *CLIConfigTestSuite) TestGetCmd_NoAddressNoConfig() {
	// GOAL: Verify a bare 'get' without a config file fails with a helpful error
	//
	// TEST SCENARIO: get with no address and no --config → error names default_device

	root := newConfigAwareRoot(getCmd)

	_, err := executeCommand(root, "get")

	suite.Require().Error(err, "bare get without a config MUST fail")
	suite.Assert().Contains(err.Error(), "default_device", "error MUST point at the config fallback")
}

func (suite *CLIConfigTestSuite) TestGetCmd_ExplicitJSONFlagWins() {
	// GOAL: Verify an explicit --json=false overrides output_format from the file
	//
	// TEST SCENARIO: Config says json → get --json=false → table output

	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	cleanup := registerFastHand("cli-config-flag", logger)
	defer cleanup()

	path := writeConfigFile(suite.T(), "log_level: panic\ndefault_device: sim://cli-config-flag\noutput_format: json\n")

	root := newConfigAwareRoot(getCmd)

	var err error
	output := captureStdout(suite.T(), func() {
		_, err = executeCommand(root, "get", "--config", path, "--json=false")
	})
	suite.Require().NoError(err, "get MUST succeed")

	suite.Assert().Contains(output, "MUSCLE", "explicit --json=false MUST keep the table output")
}

func (suite *CLIConfigTestSuite) TestGetCmd_BadConfigFile() {
	// GOAL: Verify an invalid config file fails fast, before connecting
	//
	// TEST SCENARIO: Config with bad log_level → get --config → load error surfaces

	path := writeConfigFile(suite.T(), "log_level: chatty\n")

	root := newConfigAwareRoot(getCmd)

	_, err := executeCommand(root, "get", "sim://right", "--config", path)

	suite.Require().Error(err, "invalid config MUST fail the command")
	suite.Assert().Contains(err.Error(), "log_level", "error MUST name the offending field")
}

// TestCLIConfigSuite runs the test suite
func TestCLIConfigSuite(t *testing.T) {
	suite.Run(t, new(CLIConfigTestSuite))
}

func TestLoadCLIConfig_NoFlag(t *testing.T) {
	// GOAL: Verify commands without --config run on flag defaults alone
	//
	// TEST SCENARIO: Command lacking the flag entirely → nil config, no error

	cmd := &cobra.Command{}

	cfg, err := loadCLIConfig(cmd)
	require.NoError(t, err, "missing --config MUST NOT be an error")
	assert.Nil(t, cfg, "no config file means nil config")
}

func TestResolveDeviceAddress(t *testing.T) {
	// GOAL: Verify address resolution order: positional arg, then default_device
	//
	// TEST SCENARIO: Arg wins over config → config fills in when absent → neither errors

	cfg := config.DefaultConfig()
	cfg.DefaultDevice = "sim://configured"

	addr, err := resolveDeviceAddress(cfg, []string{"sim://explicit"})
	require.NoError(t, err)
	assert.Equal(t, "sim://explicit", addr, "positional argument MUST win")

	addr, err = resolveDeviceAddress(cfg, nil)
	require.NoError(t, err)
	assert.Equal(t, "sim://configured", addr, "default_device MUST fill in a missing argument")

	_, err = resolveDeviceAddress(nil, nil)
	require.Error(t, err, "no argument and no config MUST error")

	cfg.DefaultDevice = ""
	_, err = resolveDeviceAddress(cfg, nil)
	require.Error(t, err, "empty default_device MUST NOT satisfy the address")
}

func TestResolveConnectTimeout(t *testing.T) {
	// GOAL: Verify --connect-timeout precedence over the config file value
	//
	// TEST SCENARIO: Unset flag defers to config → parsed flag wins → nil config keeps flag default

	newCmd := func() *cobra.Command {
		cmd := &cobra.Command{Use: "x", RunE: func(*cobra.Command, []string) error { return nil }}
		cmd.Flags().Duration("connect-timeout", 30*time.Second, "")
		return cmd
	}

	cfg := config.DefaultConfig()
	cfg.ConnectTimeout = 7 * time.Second

	cmd := newCmd()
	require.NoError(t, cmd.Execute())
	assert.Equal(t, 7*time.Second, resolveConnectTimeout(cmd, 30*time.Second, cfg),
		"config value MUST apply when the flag was not given")
	assert.Equal(t, 30*time.Second, resolveConnectTimeout(cmd, 30*time.Second, nil),
		"flag default MUST hold without a config file")

	cmd = newCmd()
	cmd.SetArgs([]string{"--connect-timeout", "3s"})
	require.NoError(t, cmd.Execute())
	assert.Equal(t, 3*time.Second, resolveConnectTimeout(cmd, 3*time.Second, cfg),
		"explicit flag MUST win over the config value")
}

func TestConfigureLogger_ConfigLevel(t *testing.T) {
	// GOAL: Verify log level precedence: --log-level, --verbose, then config file
	//
	// TEST SCENARIO: Config alone sets level → --log-level overrides it

	newCmd := func() *cobra.Command {
		cmd := &cobra.Command{Use: "x", RunE: func(*cobra.Command, []string) error { return nil }}
		cmd.Flags().String("log-level", "", "")
		cmd.Flags().Bool("verbose", false, "")
		return cmd
	}

	cfg := config.DefaultConfig()
	cfg.LogLevel = "warn"

	cmd := newCmd()
	require.NoError(t, cmd.Execute())
	logger, err := configureLogger(cmd, cfg, "verbose")
	require.NoError(t, err)
	assert.Equal(t, logrus.WarnLevel, logger.GetLevel(), "config log_level MUST apply without flags")

	cmd = newCmd()
	cmd.SetArgs([]string{"--log-level", "error"})
	require.NoError(t, cmd.Execute())
	logger, err = configureLogger(cmd, cfg, "verbose")
	require.NoError(t, err)
	assert.Equal(t, logrus.ErrorLevel, logger.GetLevel(), "--log-level MUST override the config file")

	cmd = newCmd()
	require.NoError(t, cmd.Execute())
	logger, err = configureLogger(cmd, nil, "verbose")
	require.NoError(t, err)
	assert.Equal(t, logrus.PanicLevel, logger.GetLevel(), "no flags and no config MUST stay quiet")
}
