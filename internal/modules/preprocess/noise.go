package preprocess

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/vk/waveflow/internal/ctxlog"
	"github.com/vk/waveflow/internal/manifest"
	"github.com/vk/waveflow/internal/paramfile"
	"github.com/vk/waveflow/internal/registry"
)

// Noise extends the default preprocessing for ambient-noise data. It owns a
// Default and delegates to it explicitly; on top it loads the station table
// from the SPECFEM data directory so later rotation/weighting steps know
// the receiver geometry.
type Noise struct {
	Base     Default  `json:"base"`
	Data     string   `json:"specfem_data"`
	Stations []string `json:"stations"`
}

// Variant implements registry.Component.
func (n *Noise) Variant() string { return "noise" }

// Manifest implements registry.Component.
func (n *Noise) Manifest() *manifest.Set {
	return manifest.Join(n.Base.Manifest(), manifest.New("preprocess.noise").
		RequirePath("SPECFEM_DATA", "directory with Par_file, STATIONS and source files"))
}

// Configure implements registry.Component.
func (n *Noise) Configure(vals *paramfile.Values) error {
	if err := n.Base.Configure(vals); err != nil {
		return err
	}
	n.Data = vals.PathOf("SPECFEM_DATA")
	return nil
}

// Check implements registry.Component.
func (n *Noise) Check(ctx context.Context) error {
	if err := n.Base.Check(ctx); err != nil {
		return err
	}
	if _, err := os.Stat(n.stationsFile()); err != nil {
		return fmt.Errorf("preprocess.noise: STATIONS table: %w", err)
	}
	return nil
}

func (n *Noise) stationsFile() string {
	return filepath.Join(n.Data, "STATIONS")
}

// Prepare loads the station table on top of the base setup. The loaded list
// is part of the checkpointed state, so a resumed run skips the re-read.
func (n *Noise) Prepare(ctx context.Context) error {
	if err := n.Base.Prepare(ctx); err != nil {
		return err
	}
	stations, err := readStations(n.stationsFile())
	if err != nil {
		return err
	}
	n.Stations = stations
	ctxlog.FromContext(ctx).Info("Station table loaded.", "stations", len(stations))
	return nil
}

// Quantify implements registry.PreprocessComponent.
func (n *Noise) Quantify(ctx context.Context, sys registry.SystemComponent) error {
	if len(n.Stations) == 0 {
		return fmt.Errorf("preprocess.noise: no stations loaded; was Prepare run?")
	}
	return n.Base.Quantify(ctx, sys)
}

// readStations parses a SPECFEM STATIONS file: whitespace-separated columns,
// station name first, network second.
func readStations(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var stations []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 2 {
			continue
		}
		stations = append(stations, fields[1]+"."+fields[0])
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if len(stations) == 0 {
		return nil, fmt.Errorf("%s: no station rows", path)
	}
	return stations, nil
}
