package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/srg/myolink/estimator"
	"github.com/srg/myolink/internal/hand"
	"github.com/srg/myolink/interval"
	"github.com/srg/myolink/session"
)

// anglesCmd represents the angles command
var anglesCmd = &cobra.Command{
	Use:   "angles [device-address]",
	Short: "Stream estimated joint angles",
	Long: fmt.Sprintf(`Streams joint angles estimated from the hand's magnetic joint sensors.

A calibration mapping is required: it relates measured field vectors to
flexion/abduction angle pairs per joint (YAML, or the positional JSON export
of the calibration rig). Joints absent from the mapping are omitted.

The estimate needs a few frames to warm up before the first row appears.

Examples:
  # Stream angles at the default rate
  myoctl angles %s --mapping cal.yaml

  # Faster refresh, one JSON object per line
  myoctl angles %s --mapping cal.yaml --rate 50ms --json

%s`, exampleDeviceAddress, exampleDeviceAddress, deviceAddressNote),
	Args: cobra.MaximumNArgs(1),
	RunE: runAngles,
}

var (
	anglesMapping        string
	anglesRate           time.Duration
	anglesJSON           bool
	anglesConnectTimeout time.Duration
)

func init() {
	anglesCmd.Flags().StringVar(&anglesMapping, "mapping", "", "Calibration mapping file (required)")
	anglesCmd.Flags().DurationVar(&anglesRate, "rate", 100*time.Millisecond, "Refresh interval")
	anglesCmd.Flags().BoolVar(&anglesJSON, "json", false, "Output one JSON object per refresh")
	anglesCmd.Flags().DurationVar(&anglesConnectTimeout, "connect-timeout", 30*time.Second, "Connection timeout")
	_ = anglesCmd.MarkFlagRequired("mapping")
}

func runAngles(cmd *cobra.Command, args []string) error {
	cfg, err := loadCLIConfig(cmd)
	if err != nil {
		return err
	}

	address, err := resolveDeviceAddress(cfg, args)
	if err != nil {
		return err
	}

	if anglesRate <= 0 {
		return fmt.Errorf("invalid rate: must be positive")
	}

	mapping, err := estimator.LoadMapping(anglesMapping)
	if err != nil {
		return err
	}

	// Configure logger
	logger, err := configureLogger(cmd, cfg, "verbose")
	if err != nil {
		return err
	}

	anglesJSON = resolveOutputJSON(cmd, anglesJSON, cfg)

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
		cancel()
	}()

	// Setup progress printer
	progress := NewProgressPrinter(fmt.Sprintf("Estimating joint angles for %s", address), "Connecting", "Processing results")
	progress.Start()
	defer progress.Stop()

	opts := &session.RunOptions{ConnectTimeout: resolveConnectTimeout(cmd, anglesConnectTimeout, cfg)}

	_, err = session.Run(ctx, address, opts, logger, progress.Callback(),
		func(sess *session.Session) (any, error) {
			info, err := sess.Info()
			if err != nil {
				return nil, err
			}

			est, err := estimator.New(estimator.DefaultConfig(), mapping, info.JointNames)
			if err != nil {
				return nil, err
			}

			fmt.Fprintf(os.Stderr, "Streaming %d calibrated joints (every %v). Press Ctrl+C to stop...\n",
				est.CalibratedJoints(), anglesRate)

			tickErr := interval.Tick(ctx, anglesRate, func(time.Time) error {
				samples, err := sess.GetMagnetics()
				if err != nil {
					// Check if the connection was lost
					if errors.Is(err, hand.ErrNotConnected) {
						return ErrConnectionLost
					}
					// Log other errors but continue streaming
					logger.WithError(err).Warn("Failed to read joint sensors, continuing...")
					return nil
				}

				ready, err := est.Update(samples)
				if err != nil {
					return err
				}
				if !ready {
					return nil // outlier window still warming up
				}

				angles, err := est.Angles()
				if err != nil {
					if errors.Is(err, estimator.ErrWarmingUp) {
						return nil
					}
					return err
				}

				return displayAngles(angles, est.Temperatures())
			})
			if errors.Is(tickErr, context.Canceled) {
				return nil, nil
			}
			return nil, tickErr
		})
	return err
}

// displayAngles renders one refresh: a JSON line with --json, otherwise an
// in-place table.
func displayAngles(angles []estimator.JointAngles, temps []float64) error {
	if anglesJSON {
		data, err := json.Marshal(angles)
		if err != nil {
			return err
		}
		fmt.Println(string(data))
		return nil
	}

	clearScreen()

	var base io.Writer = os.Stdout
	if base == nil {
		base = io.Discard
	}
	w := tabwriter.NewWriter(base, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "JOINT\tFLEXION\tABDUCTION\tTEMP")
	fmt.Fprintln(w, strings.Repeat("-", 50))

	for _, a := range angles {
		temp := math.NaN()
		if a.Joint < len(temps) {
			temp = temps[a.Joint]
		}
		fmt.Fprintf(w, "%s\t%7.2f\t%7.2f\t%5.1fC\n", a.Name, a.Flexion, a.Abduction, temp)
	}
	return w.Flush()
}
