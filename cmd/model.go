// Copyright © 2019 Andrei Gubarev <agubarev@protonmail.com>

package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/agubarev/aegis/pkg/anomaly"
	"github.com/agubarev/aegis/pkg/util"
	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

var (
	fitOut        string
	fitTrees      int
	fitSampleSize int
	fitSeed       int64
)

// modelSummary is what "model inspect" reports
type modelSummary struct {
	Path       string    `json:"path"`
	Version    int       `json:"version"`
	Trees      int       `json:"trees"`
	Nodes      int       `json:"nodes"`
	SampleSize int       `json:"sample_size"`
	Features   []string  `json:"features"`
	Seed       int64     `json:"seed"`
	CreatedAt  time.Time `json:"created_at"`
}

// modelCmd groups anomaly model tooling
var modelCmd = &cobra.Command{
	Use:   "model",
	Short: "Inspect and build anomaly model artifacts.",
}

var modelInspectCmd = &cobra.Command{
	Use:   "inspect <artifact>",
	Short: "Print a summary of a model artifact.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		m, err := anomaly.LoadFile(args[0])
		if err != nil {
			return err
		}

		s := modelSummary{
			Path:       args[0],
			Version:    m.Version,
			Trees:      len(m.Trees),
			SampleSize: m.SampleSize,
			Features:   anomaly.FeatureNames[:m.Features],
			Seed:       m.Seed,
			CreatedAt:  m.CreatedAt,
		}

		for _, t := range m.Trees {
			s.Nodes += len(t.Nodes)
		}

		out, err := util.PrettyJSON(s)
		if err != nil {
			return err
		}

		fmt.Println(string(out))

		return nil
	},
}

var modelFitCmd = &cobra.Command{
	Use:   "fit <vectors.jsonl>",
	Short: "Fit an isolation forest from feature vectors, one JSON array per line.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		samples, err := readVectors(args[0])
		if err != nil {
			return err
		}

		m, err := anomaly.Fit(samples, anomaly.Options{
			Trees:      fitTrees,
			SampleSize: fitSampleSize,
			Seed:       fitSeed,
		})

		if err != nil {
			return err
		}

		if err = anomaly.SaveFile(fitOut, m); err != nil {
			return err
		}

		fmt.Fprintf(os.Stderr, "fitted %d trees over %d samples into %s\n", len(m.Trees), len(samples), fitOut)

		return nil
	},
}

func readVectors(path string) (samples []anomaly.Vector, err error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open %s", path)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for line := 1; scanner.Scan(); line++ {
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}

		var v anomaly.Vector
		if err = jsoniter.ConfigCompatibleWithStandardLibrary.UnmarshalFromString(text, &v); err != nil {
			return nil, errors.Wrapf(err, "line %d", line)
		}

		samples = append(samples, v)
	}

	return samples, scanner.Err()
}

func init() {
	modelFitCmd.Flags().StringVarP(&fitOut, "out", "o", "model.bin", "artifact output path")
	modelFitCmd.Flags().IntVar(&fitTrees, "trees", anomaly.DefaultTrees, "number of trees")
	modelFitCmd.Flags().IntVar(&fitSampleSize, "sample-size", anomaly.DefaultSampleSize, "subsample size per tree")
	modelFitCmd.Flags().Int64Var(&fitSeed, "seed", time.Now().UnixNano(), "random seed")

	modelCmd.AddCommand(modelInspectCmd, modelFitCmd)
	rootCmd.AddCommand(modelCmd)
}
