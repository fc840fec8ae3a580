package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/srg/myolink/session"
)

// setCmd represents the set command
var setCmd = &cobra.Command{
	Use:   "set [device-address] <v1,v2,...>",
	Short: "Set muscle pressures",
	Long: fmt.Sprintf(`Commands target pressures, one value per muscle in the device's actuation
order (see 'myoctl info'). Values are normalized to [0,1]; the device rejects
lists whose length does not match its muscle count.

Muscles hold their targets after the command exits. Use --hold to keep the
session open for a duration first, and 'myoctl loose' to vent.

Examples:
  # Half-close all eight muscles
  myoctl set %s 0.5,0.5,0.5,0.5,0.5,0.5,0.5,0.5

  # Clench, keeping the session open for two seconds
  myoctl set %s 0.8,0.8,0.8,0.8,0.8,0.8,0.8,0.8 --hold 2s

%s`, exampleDeviceAddress, exampleDeviceAddress, deviceAddressNote),
	Args: cobra.RangeArgs(1, 2),
	RunE: runSet,
}

var (
	setHold           time.Duration
	setConnectTimeout time.Duration
)

func init() {
	setCmd.Flags().DurationVar(&setHold, "hold", 0, "Keep the session open for this long after setting")
	setCmd.Flags().DurationVar(&setConnectTimeout, "connect-timeout", 30*time.Second, "Connection timeout")
}

func runSet(cmd *cobra.Command, args []string) error {
	cfg, err := loadCLIConfig(cmd)
	if err != nil {
		return err
	}

	// The value list is always the last argument; with a single argument the
	// address comes from the config file's default_device.
	address, err := resolveDeviceAddress(cfg, args[:len(args)-1])
	if err != nil {
		return err
	}

	// Only number syntax is checked here; the device validates count and range
	values, err := parsePressures(args[len(args)-1])
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

	// Setup context with signal handling so --hold can be released early
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
	progress := NewProgressPrinter(fmt.Sprintf("Setting %d pressures on %s", len(values), address), "Connecting", "Processing results")
	progress.Start()
	defer progress.Stop()

	opts := &session.RunOptions{ConnectTimeout: resolveConnectTimeout(cmd, setConnectTimeout, cfg)}

	_, err = session.Run(ctx, address, opts, logger, progress.Callback(),
		func(sess *session.Session) (any, error) {
			if err := sess.SetPressures(values); err != nil {
				return nil, err
			}

			if setHold > 0 {
				fmt.Fprintf(os.Stderr, "Holding for %v. Press Ctrl+C to release early...\n", setHold)
				select {
				case <-ctx.Done():
				case <-time.After(setHold):
				}
			}
			return nil, nil
		})
	if err != nil {
		return err
	}

	fmt.Println("Pressures set")
	return nil
}
