package lua

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/myolink/internal/testutils"
	"github.com/stretchr/testify/suite"
	suitelib "github.com/stretchr/testify/suite"
)

// EngineTestSuite covers the bare interpreter: output capture, sandboxing,
// error reporting and the global accessors. No device is involved.
type EngineTestSuite struct {
	suite.Suite

	helper *testutils.TestHelper // Test helper with logging and assertions
	logger *logrus.Logger        // Structured logger for test output

	engine        *Engine
	outputCapture *OutputCollector
}

func (suite *EngineTestSuite) SetupSuite() {
	suite.helper = testutils.NewTestHelper(suite.T())
	suite.logger = suite.helper.Logger
}

func (suite *EngineTestSuite) SetupTest() {
	suite.engine = NewEngine(suite.logger)

	if lc, err := NewOutputCollector(suite.engine.OutputChannel(), 100, nil); err != nil {
		suite.NoError(fmt.Errorf("error creating output collector: %v", err))
	} else {
		suite.outputCapture = lc
		suite.outputCapture.Start()
	}
}

func (suite *EngineTestSuite) TearDownTest() {
	suite.outputCapture.Stop()
	suite.engine.Close()
}

func (suite *EngineTestSuite) SetupSubTest() {
	if suite.engine != nil {
		suite.engine.Close()
	}
	suite.engine = NewEngine(suite.logger)

	if suite.outputCapture != nil {
		suite.outputCapture.Stop()
	}

	if lc, err := NewOutputCollector(suite.engine.OutputChannel(), 100, nil); err != nil {
		suite.NoError(fmt.Errorf("error creating output collector: %v", err))
	} else {
		suite.outputCapture = lc
		suite.outputCapture.Start()
	}
}

func (suite *EngineTestSuite) ExecuteScript(script string) error {
	err := suite.engine.LoadScript(script, "test")
	suite.NoError(err, "Should load script without errors")
	return suite.engine.ExecuteScript(context.Background(), "")
}

func (suite *EngineTestSuite) TestCapturePrintVariants() {
	cases := []struct {
		name     string
		script   string
		expected *regexp.Regexp
	}{
		{"no args", `print()`, regexp.MustCompile(`^\n$`)},
		{"one string", `print("hello")`, regexp.MustCompile(`^hello\n$`)},
		{"two strings", `print("foo", "bar")`, regexp.MustCompile(`^foo\tbar\n$`)},
		{"number", `print(123)`, regexp.MustCompile(`^123\n$`)},
		{"boolean true", `print(true)`, regexp.MustCompile(`^true\n$`)},
		{"boolean false", `print(false)`, regexp.MustCompile(`^false\n$`)},
		{"nil value", `print(nil)`, regexp.MustCompile(`^nil\n$`)},

		// Mixed types
		{"string + number", `print("val:", 42)`, regexp.MustCompile(`^val:\t42\n$`)},
		{"boolean + string", `print(false, "end")`, regexp.MustCompile(`^false\tend\n$`)},

		// Expressions
		{"addition", `print(1+2)`, regexp.MustCompile(`^3\n$`)},
		{"concat", `print("a" .. "b")`, regexp.MustCompile(`^ab\n$`)},
		{"concat mixed", `print("val=" .. 123)`, regexp.MustCompile(`^val=123\n$`)},

		// Tables
		{"empty table", `print({})`, regexp.MustCompile(`^table: 0x[0-9a-fA-F]+\n$`)},
		{"table with values", `print({x=1, y=2})`, regexp.MustCompile(`^table: 0x[0-9a-fA-F]+\n$`)},

		// Functions and userdata
		{"function ref", `print(function() end)`, regexp.MustCompile(`^function: 0x[0-9a-fA-F]+\n$`)},
		{"coroutine", `print(coroutine.create(function() end))`, regexp.MustCompile(`^thread: 0x[0-9a-fA-F]+\n$`)},

		// Multiple args
		{"string num bool nil", `print("s", 9, true, nil)`, regexp.MustCompile(`^s\t9\ttrue\tnil\n$`)},

		// Newline preservation
		{"string with newline", `print("a\nb")`, regexp.MustCompile(`^a\nb\n$`)},

		// Empty string and spaces
		{"empty string", `print("")`, regexp.MustCompile(`^\n$`)},
		{"whitespace string", `print("   ")`, regexp.MustCompile(`^   \n$`)},
	}

	for _, c := range cases {
		suite.Run(c.name, func() {
			err := suite.ExecuteScript(c.script)
			suite.NoError(err, "Lua code should execute")

			// Give the collector a brief moment to consume the channel
			time.Sleep(10 * time.Millisecond)

			if got, err := suite.outputCapture.ConsumePlainText(); err != nil {
				suite.NoError(fmt.Errorf("should be able to consume plain text: %v", err))
			} else {
				if !c.expected.MatchString(got) {
					suite.Failf("Output mismatch", "got %q, want match %q", got, c.expected.String())
				}
			}
		})
	}
}

// TestCaptureIOWriteVariants tests io.write() capture with various argument types
func (suite *EngineTestSuite) TestCaptureIOWriteVariants() {
	cases := []struct {
		name     string
		script   string
		expected *regexp.Regexp
	}{
		// Basic io.write tests - NO automatic newline unlike print
		{"one string", `io.write("hello")`, regexp.MustCompile(`^hello$`)},
		{"two strings", `io.write("foo", "bar")`, regexp.MustCompile(`^foobar$`)},
		{"number", `io.write(123)`, regexp.MustCompile(`^123$`)},
		{"boolean true", `io.write(true)`, regexp.MustCompile(`^true$`)},
		{"nil value", `io.write(nil)`, regexp.MustCompile(`^nil$`)},

		// Mixed types - concatenated without separator
		{"string + number", `io.write("val:", 42)`, regexp.MustCompile(`^val:42$`)},

		// Manual newlines
		{"with newline", `io.write("hello\n")`, regexp.MustCompile(`^hello\n$`)},
		{"multiple lines", `io.write("line1\nline2\n")`, regexp.MustCompile(`^line1\nline2\n$`)},

		// Empty string and spaces
		{"empty string", `io.write("")`, regexp.MustCompile(`^$`)},
		{"whitespace string", `io.write("   ")`, regexp.MustCompile(`^   $`)},

		// Multiple io.write calls
		{"multiple calls", `io.write("a"); io.write("b")`, regexp.MustCompile(`^ab$`)},
		{"multiple calls with newlines", `io.write("a\n"); io.write("b\n")`, regexp.MustCompile(`^a\nb\n$`)},
	}

	for _, c := range cases {
		suite.Run(c.name, func() {
			err := suite.ExecuteScript(c.script)
			suite.NoError(err, "Lua code should execute")

			// Give the collector a brief moment to consume the channel
			time.Sleep(10 * time.Millisecond)

			if got, err := suite.outputCapture.ConsumePlainText(); err != nil {
				suite.NoError(fmt.Errorf("should be able to consume plain text: %v", err))
			} else {
				if !c.expected.MatchString(got) {
					suite.Failf("Output mismatch", "got %q, want match %q", got, c.expected.String())
				}
			}
		})
	}
}

// TestCaptureMixedPrintAndIOWrite tests that print() and io.write() can be mixed
func (suite *EngineTestSuite) TestCaptureMixedPrintAndIOWrite() {
	script := `
		io.write("line1")
		print("line2")
		io.write("line3\n")
	`
	err := suite.ExecuteScript(script)
	suite.NoError(err, "Lua code should execute")

	time.Sleep(10 * time.Millisecond)

	got, err := suite.outputCapture.ConsumePlainText()
	suite.NoError(err, "should be able to consume plain text")

	// Expected: "line1" + "line2\n" + "line3\n"
	expected := "line1line2\nline3\n"
	suite.Equal(expected, got, "Mixed print and io.write should preserve order and newline behavior")
}

// TestHelperLibraryAvailability verifies the embedded helper library is
// preloaded and its JSON encoder emits parseable output
func (suite *EngineTestSuite) TestHelperLibraryAvailability() {
	suite.NotEmpty(myolibLua, "Embedded helper library should not be empty")

	script := `
		local lib = require("myolib")

		assert(lib.clamp(1.4, 0, 1) == 1, "clamp upper bound")
		assert(lib.clamp(-0.2, 0, 1) == 0, "clamp lower bound")
		assert(lib.lerp(0, 10, 0.5) == 5, "lerp midpoint")

		local filled = lib.fill(3, 0.25)
		assert(#filled == 3 and filled[2] == 0.25, "fill produces n copies")

		print(lib.to_json({gesture = "wave", steps = 3, loop = false}))
	`
	err := suite.ExecuteScript(script)
	suite.NoError(err, "Helper library should be available and working")

	// Allow some time for processing
	time.Sleep(10 * time.Millisecond)

	output, err := suite.outputCapture.ConsumePlainText()
	suite.NoError(err, "should be able to consume plain text")
	suite.NotEmpty(output, "Should have captured JSON output")

	// Parse the JSON output to verify it's valid
	var doc struct {
		Gesture string `json:"gesture"`
		Steps   int    `json:"steps"`
		Loop    bool   `json:"loop"`
	}
	err = json.Unmarshal([]byte(strings.TrimSpace(output)), &doc)
	suite.NoError(err, "Should be able to parse JSON output: %s", output)

	suite.Equal("wave", doc.Gesture, "JSON should contain correct gesture field")
	suite.Equal(3, doc.Steps, "JSON should contain correct steps field")
	suite.False(doc.Loop, "JSON should contain correct loop field")
}

func (suite *EngineTestSuite) TestExecuteScript_ContextCancellation() {
	suite.Run("CompletesBeforeTimeout", func() {
		script := `print("Quick execution")`

		ctx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
		defer cancel()

		err := suite.engine.ExecuteScript(ctx, script)
		suite.NoError(err, "Should complete successfully before timeout")
	})

	suite.Run("AlreadyCancelled", func() {
		script := `print("Should not run")`

		ctx, cancel := context.WithCancel(context.Background())
		cancel() // Cancel before execution

		err := suite.engine.ExecuteScript(ctx, script)
		suite.Error(err, "Should fail with already cancelled context")
		suite.ErrorIs(err, context.Canceled, "Should return context.Canceled")

		time.Sleep(10 * time.Millisecond)
		got, consumeErr := suite.outputCapture.ConsumePlainText()
		suite.NoError(consumeErr)
		suite.Empty(got, "Cancelled script must not produce output")
	})
}

func (suite *EngineTestSuite) TestExecuteScript_BlockedFunctions() {
	blockedFunctions := map[string]string{
		"os.execute": `os.execute("echo test")`,
		"os.exit":    `os.exit(0)`,
		"os.remove":  `os.remove("file.txt")`,
		"os.rename":  `os.rename("old.txt", "new.txt")`,
		"io.read":    `io.read()`,
		"io.lines":   `io.lines("file.txt")`,
		"dofile":     `dofile("script.lua")`,
		"loadfile":   `loadfile("script.lua")`,
	}

	for name, script := range blockedFunctions {
		suite.Run(name, func() {
			err := suite.engine.ExecuteScript(context.Background(), script)
			suite.Error(err, "Should error on blocked function: "+name)
			suite.Contains(err.Error(), "is blocked", "Error should mention function is blocked")
		})
	}
}

func (suite *EngineTestSuite) TestLoadScriptErrors() {
	suite.Run("Empty script", func() {
		err := suite.engine.LoadScript("", "empty-test")

		var luaErr *LuaError
		suite.ErrorAs(err, &luaErr, "Empty script should produce a LuaError")
		suite.Equal("api", luaErr.Type)
		suite.Contains(luaErr.Message, "empty script")
	})

	suite.Run("Syntax error", func() {
		err := suite.engine.LoadScript(`this is not lua(`, "bad.lua")

		var luaErr *LuaError
		suite.ErrorAs(err, &luaErr, "Malformed script should produce a LuaError")
		suite.Equal("syntax", luaErr.Type)
		suite.Equal(1, luaErr.Line, "Error should carry the offending line")
		suite.Contains(err.Error(), "Lua syntax error")
	})

	suite.Run("Nothing loaded", func() {
		err := suite.engine.ExecuteScript(context.Background(), "")

		var luaErr *LuaError
		suite.ErrorAs(err, &luaErr)
		suite.Equal("api", luaErr.Type)
		suite.Contains(luaErr.Message, "no script loaded")
	})
}

func (suite *EngineTestSuite) TestRuntimeErrorReporting() {
	// Runtime failures carry type "runtime" and land on stderr
	err := suite.ExecuteScript(`error("deliberate failure")`)

	var luaErr *LuaError
	suite.ErrorAs(err, &luaErr, "error() should surface as a LuaError")
	suite.Equal("runtime", luaErr.Type)
	suite.Contains(luaErr.Message, "deliberate failure")
}

func (suite *EngineTestSuite) TestGlobalAccessors() {
	suite.Run("Set and get round trip", func() {
		suite.NoError(suite.engine.SetGlobal("answer", 42))
		suite.NoError(suite.engine.SetGlobal("label", "wave"))
		suite.NoError(suite.engine.SetGlobal("enabled", true))

		suite.Equal(float64(42), suite.engine.GetGlobal("answer"))
		suite.Equal("wave", suite.engine.GetGlobal("label"))
		suite.Equal(true, suite.engine.GetGlobal("enabled"))
	})

	suite.Run("Typed getters", func() {
		err := suite.ExecuteScript(`count = 7; name = "ramp"`)
		suite.NoError(err)

		n, err := suite.engine.GetGlobalInteger("count")
		suite.NoError(err)
		suite.Equal(7, n)

		s, err := suite.engine.GetGlobalString("name")
		suite.NoError(err)
		suite.Equal("ramp", s)

		_, err = suite.engine.GetGlobalInteger("name")
		suite.Error(err, "Type mismatch should be reported")
	})

	suite.Run("Unsupported type rejected", func() {
		err := suite.engine.SetGlobal("bad", []int{1, 2})
		suite.Error(err)
		suite.Contains(err.Error(), "unsupported type")
	})
}

func (suite *EngineTestSuite) TestGetTableValue() {
	err := suite.ExecuteScript(`config = {mode = "wave", speed = "fast"}`)
	suite.NoError(err)

	v, err := suite.engine.GetTableValue("config", "mode")
	suite.NoError(err)
	suite.Equal("wave", v)

	_, err = suite.engine.GetTableValue("config", "missing")
	suite.Error(err)
	suite.Contains(err.Error(), "not found")

	_, err = suite.engine.GetTableValue("no_such_table", "key")
	suite.Error(err)
	suite.Contains(err.Error(), "not a table")
}

func (suite *EngineTestSuite) TestExecuteFunction() {
	err := suite.ExecuteScript(`function bump() counter = (counter or 0) + 1 end`)
	suite.NoError(err)

	suite.NoError(suite.engine.ExecuteFunction("bump"))
	suite.NoError(suite.engine.ExecuteFunction("bump"))

	counter, err := suite.engine.GetGlobalInteger("counter")
	suite.NoError(err)
	suite.Equal(2, counter)

	err = suite.engine.ExecuteFunction("no_such_function")
	suite.Error(err)
	suite.Contains(err.Error(), "not found")
}

func (suite *EngineTestSuite) TestReset() {
	// Reset discards script state but keeps the capture and helper wiring
	err := suite.ExecuteScript(`leftover = "stale"`)
	suite.NoError(err)

	suite.engine.Reset()

	suite.Nil(suite.engine.GetGlobal("leftover"), "Reset should clear globals")

	err = suite.engine.ExecuteScript(context.Background(), `
		local lib = require("myolib")
		print(lib.fmt_list({0.5}))
	`)
	suite.NoError(err, "Helper library should survive a reset")

	time.Sleep(10 * time.Millisecond)
	got, err := suite.outputCapture.ConsumePlainText()
	suite.NoError(err)
	suite.Contains(got, "0.500", "Output capture should survive a reset")
}

// TestEngineSuite runs the test suite using testify/suite
func TestEngineSuite(t *testing.T) {
	suitelib.Run(t, new(EngineTestSuite))
}
