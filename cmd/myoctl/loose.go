package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/srg/myolink/session"
)

// looseCmd represents the loose command
var looseCmd = &cobra.Command{
	Use:   "loose [device-address]",
	Short: "Vent all muscles",
	Long: fmt.Sprintf(`Vents every muscle to zero pressure, letting the hand relax.

Example:
  myoctl loose %s

%s`, exampleDeviceAddress, deviceAddressNote),
	Args: cobra.MaximumNArgs(1),
	RunE: runLoose,
}

var looseConnectTimeout time.Duration

func init() {
	looseCmd.Flags().DurationVar(&looseConnectTimeout, "connect-timeout", 30*time.Second, "Connection timeout")
}

func runLoose(cmd *cobra.Command, args []string) error {
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

	// All arguments validated - don't show usage on runtime errors
	cmd.SilenceUsage = true

	// Setup progress printer
	progress := NewProgressPrinter(fmt.Sprintf("Venting muscles on %s", address), "Connecting", "Processing results")
	progress.Start()
	defer progress.Stop()

	opts := &session.RunOptions{ConnectTimeout: resolveConnectTimeout(cmd, looseConnectTimeout, cfg)}

	_, err = session.Run(context.Background(), address, opts, logger, progress.Callback(),
		func(sess *session.Session) (any, error) {
			return nil, sess.LooseAll()
		})
	if err != nil {
		return err
	}

	fmt.Println("Muscles vented")
	return nil
}
