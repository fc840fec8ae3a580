package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	myolink "github.com/srg/myolink"
	"github.com/srg/myolink/choreo"
)

// playCmd represents the play command
var playCmd = &cobra.Command{
	Use:   "play [device-address] <script.lua|builtin>",
	Short: "Run a gesture script against a hand",
	Long: fmt.Sprintf(`Runs a Lua gesture script against a connected hand.

The script argument is either a path to a .lua file or the name of a built-in
gesture (%s). Scripts drive the hand through the myo API and can require the
bundled "gestures" helper library. Values passed via --arg are visible to the
script as the arg table.

Examples:
  # Built-in wave gesture
  myoctl play %s wave

  # Built-in wave, three ripples
  myoctl play %s wave --arg reps=3

  # Custom script file
  myoctl play %s my-gesture.lua

%s`, strings.Join(myolink.BuiltinScriptNames(), ", "), exampleDeviceAddress, exampleDeviceAddress, exampleDeviceAddress, deviceAddressNote),
	Args: cobra.RangeArgs(1, 2),
	RunE: runPlay,
}

var (
	playArgs           []string
	playConnectTimeout time.Duration
)

func init() {
	playCmd.Flags().StringArrayVar(&playArgs, "arg", nil, "Script argument as key=value (repeatable)")
	playCmd.Flags().DurationVar(&playConnectTimeout, "connect-timeout", 30*time.Second, "Connection timeout")
}

func runPlay(cmd *cobra.Command, args []string) error {
	cfg, err := loadCLIConfig(cmd)
	if err != nil {
		return err
	}

	// The script reference is always the last argument; with a single argument
	// the address comes from the config file's default_device.
	address, err := resolveDeviceAddress(cfg, args[:len(args)-1])
	if err != nil {
		return err
	}

	script, err := resolveGestureScript(args[len(args)-1])
	if err != nil {
		return err
	}

	scriptArgs, err := parseScriptArgs(playArgs)
	if err != nil {
		return err
	}

	// Configure logger
	logger, err := configureLogger(cmd, cfg, "verbose")
	if err != nil {
		return err
	}

	// All arguments validated - don't show usage on runtime errors
	cmd.SilenceUsage = true

	// Setup context with signal handling
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)
	go func() {
		<-sigChan
		logger.Info("Received interrupt signal, stopping gesture...")
		cancel()
	}()

	// Setup progress printer; the gesture's own output takes over once it runs
	progress := NewProgressPrinter(fmt.Sprintf("Playing gesture on %s", address), "Connecting", "Running gesture", "Failed")
	progress.Start()
	defer progress.Stop()

	return choreo.Play(ctx, script, &choreo.PlayOptions{
		Address:        address,
		ConnectTimeout: resolveConnectTimeout(cmd, playConnectTimeout, cfg),
		Args:           scriptArgs,
		Stdout:         os.Stdout,
		Stderr:         os.Stderr,
		Logger:         logger,
	}, progress.Callback())
}

// resolveGestureScript resolves a script reference: built-in gesture names
// first, file paths second.
func resolveGestureScript(ref string) (string, error) {
	if script, ok := myolink.BuiltinScript(ref); ok {
		return script, nil
	}

	content, err := os.ReadFile(ref)
	if err != nil {
		// A name that is neither a builtin nor a path deserves the builtin list
		if os.IsNotExist(err) && !strings.ContainsAny(ref, "./\\") {
			return "", fmt.Errorf("unknown gesture %q: built-ins are %s", ref, strings.Join(myolink.BuiltinScriptNames(), ", "))
		}
		return "", fmt.Errorf("failed to read script file: %w", err)
	}
	return string(content), nil
}

// parseScriptArgs converts repeated key=value flags into the script arg table.
func parseScriptArgs(pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	args := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid --arg %q: expected key=value", pair)
		}
		args[key] = value
	}
	return args, nil
}
