package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/srg/myolink/internal/hand"
	"github.com/srg/myolink/session"
	"golang.org/x/term"
)

// watchCmd represents the watch command
var watchCmd = &cobra.Command{
	Use:   "watch [device-address]",
	Short: "Stream pressure telemetry",
	Long: fmt.Sprintf(`Streams live pressure telemetry from a hand.

Stream modes:
  live     - Output every frame immediately (default)
  batched  - Collect frames, output at rate interval
  latest   - Keep only the latest frame, output at rate interval

With --bars each muscle renders as a horizontal bar sized to the terminal,
redrawn in place at the rate interval (implies latest mode).

Examples:
  # One line per telemetry frame
  myoctl watch %s

  # Ten batched updates per second
  myoctl watch %s --mode batched --rate 100ms

  # Live bar display
  myoctl watch %s --bars

%s`, exampleDeviceAddress, exampleDeviceAddress, exampleDeviceAddress, deviceAddressNote),
	Args: cobra.MaximumNArgs(1),
	RunE: runWatch,
}

var (
	watchMode           string
	watchRate           time.Duration
	watchBars           bool
	watchConnectTimeout time.Duration
)

func init() {
	watchCmd.Flags().StringVar(&watchMode, "mode", "live", "Stream mode: live, batched, or latest")
	watchCmd.Flags().DurationVar(&watchRate, "rate", hand.DefaultBatchedInterval, "Rate limit interval for batched/latest modes")
	watchCmd.Flags().BoolVar(&watchBars, "bars", false, "Render per-muscle pressure bars sized to the terminal")
	watchCmd.Flags().DurationVar(&watchConnectTimeout, "connect-timeout", 30*time.Second, "Connection timeout")
}

// parseStreamMode converts CLI mode string to hand.StreamMode
func parseStreamMode(mode string) (hand.StreamMode, error) {
	switch strings.ToLower(mode) {
	case "live", "instant", "every":
		return hand.StreamEveryUpdate, nil
	case "batched", "batch":
		return hand.StreamBatched, nil
	case "latest", "aggregated":
		return hand.StreamAggregated, nil
	default:
		return 0, fmt.Errorf("invalid mode %q: use live, batched, or latest", mode)
	}
}

func runWatch(cmd *cobra.Command, args []string) error {
	cfg, err := loadCLIConfig(cmd)
	if err != nil {
		return err
	}

	address, err := resolveDeviceAddress(cfg, args)
	if err != nil {
		return err
	}

	// Parse stream mode
	streamMode, err := parseStreamMode(watchMode)
	if err != nil {
		return err
	}

	// Bars redraw in place and want exactly the latest frame per refresh
	if watchBars {
		streamMode = hand.StreamAggregated
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
		cancel()
	}()

	// Setup progress printer
	progress := NewProgressPrinter(fmt.Sprintf("Watching %s", address), "Connecting", "Processing results")
	progress.Start()
	defer progress.Stop()

	opts := &session.RunOptions{ConnectTimeout: resolveConnectTimeout(cmd, watchConnectTimeout, cfg)}

	_, err = session.Run(ctx, address, opts, logger, progress.Callback(),
		func(sess *session.Session) (any, error) {
			fmt.Fprintf(os.Stderr, "Streaming pressure telemetry from %s. Press Ctrl+C to stop...\n", address)

			// Determine rate for subscription
			rate := watchRate
			if streamMode == hand.StreamEveryUpdate {
				rate = 0 // No rate limiting for live mode
			}

			render := newPressureRenderer(sess.MuscleOrder(), watchBars)

			err := sess.Subscribe(
				[]*hand.SubscribeOptions{{Kinds: []hand.Kind{hand.KindPressure}}},
				streamMode,
				rate,
				render.Record,
			)
			if err != nil {
				return nil, fmt.Errorf("failed to subscribe: %w", err)
			}

			// Wait for user cancellation (Ctrl+C); Disconnect tears the
			// subscription down
			<-ctx.Done()
			return nil, nil
		})
	return err
}

const (
	defaultTermWidth = 80
	minBarWidth      = 10

	// Bar color break points, fractions of full scale
	barWarnLevel = 0.5
	barHighLevel = 0.8
)

var (
	barLow  = color.New(color.FgGreen)
	barWarn = color.New(color.FgYellow)
	barHigh = color.New(color.FgRed)
)

// pressureRenderer formats subscription records for the terminal: either one
// timestamped line per frame, or an in-place bar display.
type pressureRenderer struct {
	muscles []string
	bars    bool
	width   int
}

func newPressureRenderer(muscles []string, bars bool) *pressureRenderer {
	r := &pressureRenderer{
		muscles: muscles,
		bars:    bars,
		width:   defaultTermWidth,
	}
	if bars && term.IsTerminal(int(os.Stdout.Fd())) {
		if w, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil && w > 0 {
			r.width = w
		}
	}
	return r
}

// Record is the subscription callback.
func (r *pressureRenderer) Record(rec *hand.Record) {
	if r.bars {
		values, ok := rec.Values[hand.KindPressure]
		if !ok {
			return
		}
		clearScreen()
		renderPressureBars(os.Stdout, r.muscles, values, r.width)
		return
	}

	// Batched mode delivers every frame since the last tick
	if rec.BatchValues != nil {
		for _, values := range rec.BatchValues[hand.KindPressure] {
			r.line(rec.TsUs, values)
		}
		return
	}

	if values, ok := rec.Values[hand.KindPressure]; ok {
		r.line(rec.TsUs, values)
	}
}

func (r *pressureRenderer) line(tsUs int64, values []float64) {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = fmt.Sprintf("%.3f", v)
	}
	ts := time.UnixMicro(tsUs).Format("15:04:05.000")
	fmt.Printf("%s  %s\n", ts, strings.Join(parts, " "))
}

// renderPressureBars draws one horizontal bar per muscle, scaled to width
// columns. Values outside [0,1] are clamped for display only.
func renderPressureBars(w io.Writer, muscles []string, values []float64, width int) {
	nameW := 0
	for _, m := range muscles {
		if len(m) > nameW {
			nameW = len(m)
		}
	}

	// Room for the name column, " [", "] " and the numeric value
	barW := width - nameW - 10
	if barW < minBarWidth {
		barW = minBarWidth
	}

	for i, v := range values {
		name := fmt.Sprintf("#%d", i)
		if i < len(muscles) {
			name = muscles[i]
		}

		clamped := v
		if clamped < 0 {
			clamped = 0
		}
		if clamped > 1 {
			clamped = 1
		}
		filled := int(clamped*float64(barW) + 0.5)
		if filled > barW {
			filled = barW
		}

		c := barLow
		switch {
		case clamped >= barHighLevel:
			c = barHigh
		case clamped >= barWarnLevel:
			c = barWarn
		}

		fmt.Fprintf(w, "%-*s [", nameW, name)
		c.Fprint(w, strings.Repeat("█", filled))
		fmt.Fprintf(w, "%s] %.3f\n", strings.Repeat(" ", barW-filled), v)
	}
}
