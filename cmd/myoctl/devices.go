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
	"github.com/srg/myolink/internal/hand/sim"
	"github.com/srg/myolink/internal/handfactory"
	"github.com/srg/myolink/internal/muscledb"
	"github.com/srg/myolink/pkg/config"
)

// devicesCmd represents the devices command
var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "List reachable hands",
	Long: `List the pneumatic hands this process can reach.

The built-in simulator always provides at least one hand (` + exampleDeviceAddress + `);
any other sim://<name> address is materialized on first connect. Use --models
to list the supported hand models instead of reachable devices.`,
	RunE: runDevices,
}

var (
	devicesFormat string
	devicesModels bool
)

func init() {
	devicesCmd.Flags().StringVarP(&devicesFormat, "format", "f", "table", "Output format (table, json)")
	devicesCmd.Flags().BoolVar(&devicesModels, "models", false, "List supported hand models instead of devices")
}

func runDevices(cmd *cobra.Command, args []string) error {
	cfg, err := loadCLIConfig(cmd)
	if err != nil {
		return err
	}

	// Config file's output_format applies unless --format was given explicitly
	if cfg != nil && !cmd.Flags().Changed("format") {
		devicesFormat = cfg.OutputFormat
	}

	// Validate format parameter
	isValidFormat := false
	for _, format := range config.ValidOutputFormats {
		if devicesFormat == format {
			isValidFormat = true
			break
		}
	}
	if !isValidFormat {
		return fmt.Errorf("invalid format '%s': must be one of %v", devicesFormat, config.ValidOutputFormats)
	}

	// Configure logger based on --log-level and --verbose flags
	logger, err := configureLogger(cmd, cfg, "verbose")
	if err != nil {
		return err
	}

	// All arguments validated - don't show usage on runtime errors
	cmd.SilenceUsage = true

	if devicesModels {
		if devicesFormat == "json" {
			return displayModelsJSON()
		}
		return displayModelsTable()
	}

	// A fresh process has no simulated hands yet; materialize the default one
	// so discovery always has something to report.
	sim.Shared(defaultSimHand, nil, logger)

	disc := handfactory.NewDiscoverer(hand.SchemeSim, logger)
	if disc == nil {
		return fmt.Errorf("no discoverer available for scheme %q", hand.SchemeSim)
	}

	advs, err := disc.Discover(context.Background())
	if err != nil {
		return fmt.Errorf("discovery failed: %w", err)
	}

	if devicesFormat == "json" {
		return displayJSON(advs)
	}
	return displayAdvertisementsTable(advs)
}

func displayAdvertisementsTable(advs []hand.Advertisement) error {
	if len(advs) == 0 {
		fmt.Println("No hands discovered")
		return nil
	}

	var base io.Writer = os.Stdout
	if base == nil {
		base = io.Discard
	}
	w := tabwriter.NewWriter(base, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tADDRESS\tMODEL\tMUSCLES\tLAST SEEN")
	fmt.Fprintln(w, strings.Repeat("-", 70))

	for _, adv := range advs {
		name := adv.Name
		if len(name) > 20 {
			name = name[:17] + "..."
		}

		lastSeen := time.Since(adv.LastSeen).Truncate(time.Second)

		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s ago\n",
			name, adv.Address, adv.Model, adv.Muscles, lastSeen)
	}

	return w.Flush()
}

// modelEntry is one supported hand model for --models output.
type modelEntry struct {
	Name    string   `json:"name"`
	Muscles []string `json:"muscles"`
	Joints  []string `json:"joints"`
}

func supportedModels() []modelEntry {
	names := muscledb.Models()
	entries := make([]modelEntry, 0, len(names))
	for _, name := range names {
		entries = append(entries, modelEntry{
			Name:    name,
			Muscles: muscledb.LookupMuscles(name),
			Joints:  muscledb.LookupJoints(name),
		})
	}
	return entries
}

func displayModelsTable() error {
	var base io.Writer = os.Stdout
	if base == nil {
		base = io.Discard
	}
	w := tabwriter.NewWriter(base, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "MODEL\tMUSCLES\tJOINTS")
	fmt.Fprintln(w, strings.Repeat("-", 40))

	for _, m := range supportedModels() {
		fmt.Fprintf(w, "%s\t%d\t%d\n", m.Name, len(m.Muscles), len(m.Joints))
	}

	return w.Flush()
}

func displayModelsJSON() error {
	return displayJSON(supportedModels())
}
