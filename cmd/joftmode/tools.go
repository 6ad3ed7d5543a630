package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"joftmode/internal/infer"
	"joftmode/internal/recorder"
)

func openLog(path string) (*os.File, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("path is empty")
	}
	return os.Open(path)
}

func summarizeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "summarize <log.csv>",
		Short: "Print row, position and classification counts for a log",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return printLogSummary(cmd.OutOrStdout(), args[0])
		},
	}
}

func printLogSummary(w io.Writer, path string) error {
	f, err := openLog(path)
	if err != nil {
		return err
	}
	defer f.Close()

	s, err := recorder.Summarize(f)
	if err != nil {
		return errors.Wrapf(err, "summarize %s", path)
	}
	if _, err := fmt.Fprintf(w, "# %s\n", path); err != nil {
		return err
	}
	return writeYAML(w, s)
}

// normalizationTable is shaped like the ml section of the config so the output
// can be pasted into it.
type normalizationTable struct {
	ML struct {
		Mean []float64 `yaml:"mean,flow"`
		Std  []float64 `yaml:"std,flow"`
	} `yaml:"ml"`
}

func statsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats <log.csv>",
		Short: "Compute per-channel mean/std from a log in ml.mean/ml.std form",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return printChannelStats(cmd.OutOrStdout(), args[0])
		},
	}
}

func printChannelStats(w io.Writer, path string) error {
	f, err := openLog(path)
	if err != nil {
		return err
	}
	defer f.Close()

	norm, rows, err := recorder.ChannelStats(f)
	if err != nil {
		return errors.Wrapf(err, "stats %s", path)
	}
	var out normalizationTable
	out.ML.Mean = append([]float64(nil), norm.Mean[:]...)
	out.ML.Std = append([]float64(nil), norm.Std[:]...)

	names := make([]string, infer.Channels)
	for i := range names {
		names[i] = infer.ChannelName(i)
	}
	if _, err := fmt.Fprintf(w, "# %d rows from %s\n# channels: %s\n", rows, path, strings.Join(names, ", ")); err != nil {
		return err
	}
	return writeYAML(w, out)
}

func writeYAML(w io.Writer, v any) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return err
	}
	return enc.Close()
}
