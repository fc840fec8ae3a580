package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
)

const (
	exampleDeviceAddress = "sim://right"

	// defaultSimHand is the simulated hand every fresh process can reach.
	defaultSimHand = "right"

	deviceAddressNote = "Device address format: <scheme>://<name>; a bare name defaults to sim://<name>\n  Examples: sim://right or right\n  Omit the address to use default_device from the --config file\n  Use 'myoctl devices' to discover hands"
)

// parsePressures converts a comma-separated value list into a pressure slice.
// Only the number syntax is checked here; count and range validation belong to
// the device.
func parsePressures(csv string) ([]float64, error) {
	parts := strings.Split(csv, ",")
	values := make([]float64, 0, len(parts))
	for _, part := range parts {
		s := strings.TrimSpace(part)
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid pressure value %q: must be a number", s)
		}
		values = append(values, v)
	}
	return values, nil
}

// pressureReport pairs muscle names with their pressures for JSON output.
type pressureReport struct {
	Address   string    `json:"address"`
	Muscles   []string  `json:"muscles"`
	Pressures []float64 `json:"pressures"`
}

// displayPressuresTable renders pressures as a MUSCLE/PRESSURE table. When the
// muscle names are unknown the index column stands in for them.
func displayPressuresTable(muscles []string, pressures []float64) error {
	var base io.Writer = os.Stdout
	if base == nil {
		base = io.Discard
	}
	w := tabwriter.NewWriter(base, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "MUSCLE\tPRESSURE")
	fmt.Fprintln(w, strings.Repeat("-", 30))

	for i, v := range pressures {
		name := fmt.Sprintf("#%d", i)
		if i < len(muscles) {
			name = muscles[i]
		}
		fmt.Fprintf(w, "%s\t%.3f\n", name, v)
	}

	return w.Flush()
}

// displayJSON writes v to stdout as indented JSON.
func displayJSON(v any) error {
	var w io.Writer = os.Stdout
	if w == nil {
		w = io.Discard
	}
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}

func clearScreen() {
	var w io.Writer = os.Stdout
	if w == nil {
		w = io.Discard
	}
	fmt.Fprint(w, "\033[2J\033[H")
}
