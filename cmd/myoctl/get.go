package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/srg/myolink/internal/hand"
	"github.com/srg/myolink/interval"
	"github.com/srg/myolink/session"
)

// getCmd represents the get command
var getCmd = &cobra.Command{
	Use:   "get [device-address]",
	Short: "Read muscle pressures",
	Long: fmt.Sprintf(`Reads the current pressure of every muscle, normalized to [0,1] in the
device's actuation order (see 'myoctl info').

By default the last telemetry frame the device reported is returned. With
--fresh the command waits for the next frame instead, so the values are
guaranteed to postdate the call.

Examples:
  # Read once
  myoctl get %s

  # Wait for a fresh frame
  myoctl get %s --fresh

  # JSON output
  myoctl get %s --json

  # Continuously read (polls every second)
  myoctl get %s --watch

  # Watch with custom interval
  myoctl get %s --watch 250ms

%s`, exampleDeviceAddress, exampleDeviceAddress, exampleDeviceAddress, exampleDeviceAddress, exampleDeviceAddress, deviceAddressNote),
	Args: cobra.MaximumNArgs(1),
	RunE: runGet,
}

var (
	getFresh          bool
	getJSON           bool
	getWatch          string
	getTimeout        time.Duration
	getConnectTimeout time.Duration
)

func init() {
	getCmd.Flags().BoolVar(&getFresh, "fresh", false, "Wait for the next telemetry frame instead of returning the cached one")
	getCmd.Flags().BoolVar(&getJSON, "json", false, "Output as JSON")
	getCmd.Flags().StringVar(&getWatch, "watch", "", "Continuously read at interval (e.g., 1s, 500ms); default 1s if no value given")
	getCmd.Flags().Lookup("watch").NoOptDefVal = "1s"
	getCmd.Flags().DurationVar(&getTimeout, "timeout", 5*time.Second, "Fresh frame timeout")
	getCmd.Flags().DurationVar(&getConnectTimeout, "connect-timeout", 30*time.Second, "Connection timeout")
}

func runGet(cmd *cobra.Command, args []string) error {
	cfg, err := loadCLIConfig(cmd)
	if err != nil {
		return err
	}

	address, err := resolveDeviceAddress(cfg, args)
	if err != nil {
		return err
	}

	// Parse watch interval if watch flag is set
	var watchInterval time.Duration
	if getWatch != "" {
		var err error
		watchInterval, err = time.ParseDuration(getWatch)
		if err != nil {
			return fmt.Errorf("invalid watch interval: %w", err)
		}
		if watchInterval <= 0 {
			return fmt.Errorf("invalid watch interval: must be positive")
		}
	}

	// Configure logger
	logger, err := configureLogger(cmd, cfg, "verbose")
	if err != nil {
		return err
	}

	getJSON = resolveOutputJSON(cmd, getJSON, cfg)

	// All arguments validated - don't show usage on runtime errors
	cmd.SilenceUsage = true

	// Setup context with signal handling; watch mode runs until Ctrl+C
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)
	go func() {
		<-sigChan
		cancel()
	}()

	// Setup progress printer
	operation := "Reading pressures"
	if getWatch != "" {
		operation = "Watching pressures"
	}
	progress := NewProgressPrinter(fmt.Sprintf("%s from %s", operation, address), "Connecting", "Processing results")
	progress.Start()
	defer progress.Stop()

	opts := &session.RunOptions{ConnectTimeout: resolveConnectTimeout(cmd, getConnectTimeout, cfg)}

	_, err = session.Run(ctx, address, opts, logger, progress.Callback(),
		func(sess *session.Session) (any, error) {
			if getWatch != "" {
				return nil, watchPressures(ctx, sess, watchInterval, logger)
			}

			values, err := readPressures(sess)
			if err != nil {
				return nil, err
			}
			if getJSON {
				return nil, displayJSON(pressureReport{
					Address:   address,
					Muscles:   sess.MuscleOrder(),
					Pressures: values,
				})
			}
			return nil, displayPressuresTable(sess.MuscleOrder(), values)
		})
	return err
}

// readPressures reads once, honoring --fresh.
func readPressures(sess *session.Session) ([]float64, error) {
	if getFresh {
		return sess.GetPressuresFresh(getTimeout)
	}
	return sess.GetPressures()
}

// watchPressures re-reads pressures on an absolute schedule until the context
// is cancelled. Read failures are logged and skipped unless the device
// dropped out entirely.
func watchPressures(ctx context.Context, sess *session.Session, ival time.Duration, logger *logrus.Logger) error {
	fmt.Fprintf(os.Stderr, "Watching (reading every %v). Press Ctrl+C to stop...\n", ival)

	// Perform immediate first read
	if err := printPressureLine(sess); err != nil {
		return err
	}

	err := interval.Tick(ctx, ival, func(time.Time) error {
		if err := printPressureLine(sess); err != nil {
			// Check if the connection was lost by checking for ErrNotConnected in the error chain
			if errors.Is(err, hand.ErrNotConnected) {
				return ErrConnectionLost
			}

			// Log other errors but continue watching
			logger.WithError(err).Warn("Failed to read pressures, continuing...")
		}
		return nil
	})
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// printPressureLine emits one reading: a JSON object per line with --json,
// otherwise a timestamped row of values.
func printPressureLine(sess *session.Session) error {
	values, err := readPressures(sess)
	if err != nil {
		return err
	}

	if getJSON {
		data, err := json.Marshal(pressureReport{
			Address:   sess.Address(),
			Muscles:   sess.MuscleOrder(),
			Pressures: values,
		})
		if err != nil {
			return err
		}
		fmt.Println(string(data))
		return nil
	}

	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = fmt.Sprintf("%.3f", v)
	}
	fmt.Printf("%s  %s\n", time.Now().Format("15:04:05.000"), strings.Join(parts, " "))
	return nil
}
