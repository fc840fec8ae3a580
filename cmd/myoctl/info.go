package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/srg/myolink/internal/hand"
	"github.com/srg/myolink/session"
)

// infoCmd represents the info command
var infoCmd = &cobra.Command{
	Use:   "info [device-address]",
	Short: "Show device identity and calibration",
	Long: fmt.Sprintf(`Connects to a hand and prints its identity plus the calibration data it
reports at connect time: muscle actuation order, joint sensor order, and
IMU count.

Examples:
  # Human-readable table
  myoctl info %s

  # JSON for scripting
  myoctl info %s --json

%s`, exampleDeviceAddress, exampleDeviceAddress, deviceAddressNote),
	Args: cobra.MaximumNArgs(1),
	RunE: runInfo,
}

var (
	infoJSON           bool
	infoConnectTimeout time.Duration
)

func init() {
	infoCmd.Flags().BoolVar(&infoJSON, "json", false, "Output as JSON")
	infoCmd.Flags().DurationVar(&infoConnectTimeout, "connect-timeout", 30*time.Second, "Connection timeout")
}

func runInfo(cmd *cobra.Command, args []string) error {
	cfg, err := loadCLIConfig(cmd)
	if err != nil {
		return err
	}

	address, err := resolveDeviceAddress(cfg, args)
	if err != nil {
		return err
	}

	// Configure logger
	logger, err := configureLogger(cmd, cfg, "verbose")
	if err != nil {
		return err
	}

	infoJSON = resolveOutputJSON(cmd, infoJSON, cfg)

	// All arguments validated - don't show usage on runtime errors
	cmd.SilenceUsage = true

	// Setup progress printer
	progress := NewProgressPrinter(fmt.Sprintf("Inspecting %s", address), "Connecting", "Processing results")
	progress.Start()
	defer progress.Stop()

	opts := &session.RunOptions{ConnectTimeout: resolveConnectTimeout(cmd, infoConnectTimeout, cfg)}

	info, err := session.Run(context.Background(), address, opts, logger, progress.Callback(),
		func(sess *session.Session) (hand.Info, error) {
			return sess.Info()
		})
	if err != nil {
		return err
	}

	if infoJSON {
		return displayJSON(info)
	}
	return displayInfoTable(info)
}

// displayInfoTable renders identity fields followed by the muscle and joint
// order tables. Muscle and joint lists usually have different lengths; missing
// cells stay blank.
func displayInfoTable(info hand.Info) error {
	var base io.Writer = os.Stdout
	if base == nil {
		base = io.Discard
	}

	w := tabwriter.NewWriter(base, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "Name\t%s\n", info.Name)
	fmt.Fprintf(w, "Model\t%s\n", info.Model)
	fmt.Fprintf(w, "Firmware\t%s\n", info.Firmware)
	fmt.Fprintf(w, "Serial\t%s\n", info.Serial)
	fmt.Fprintf(w, "Muscles\t%d\n", info.MuscleCount())
	fmt.Fprintf(w, "Joints\t%d\n", len(info.JointNames))
	fmt.Fprintf(w, "IMUs\t%d\n", info.IMUCount)
	if err := w.Flush(); err != nil {
		return err
	}

	fmt.Fprintln(base)

	w = tabwriter.NewWriter(base, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "IDX\tMUSCLE\tJOINT")
	fmt.Fprintln(w, strings.Repeat("-", 40))

	rows := len(info.MuscleNames)
	if len(info.JointNames) > rows {
		rows = len(info.JointNames)
	}
	for i := 0; i < rows; i++ {
		muscle, joint := "", ""
		if i < len(info.MuscleNames) {
			muscle = info.MuscleNames[i]
		}
		if i < len(info.JointNames) {
			joint = info.JointNames[i]
		}
		fmt.Fprintf(w, "%d\t%s\t%s\n", i, muscle, joint)
	}
	return w.Flush()
}
