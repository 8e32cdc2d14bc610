// Command cyclectl derives cycles and predictions from a JSON sample export.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/i474232898/cycle-tracker/internal/config"
	"github.com/i474232898/cycle-tracker/internal/cycle"
	"github.com/i474232898/cycle-tracker/internal/logger"
	"github.com/i474232898/cycle-tracker/internal/store"
)

const defaultUser = "local"

var (
	inputFile  string
	todayFlag  string
	policyFile string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:   "cyclectl",
	Short: "Inspect cycles and predictions from a sample export",
	Long: `cyclectl loads a JSON array of samples (flow, complaint and note records)
and prints the derived cycles, the predicted next period or a month calendar.

Each sample needs at least "category" and "valueDate" (YYYYMMDD000000);
flow samples carry "intensity" 0-3.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logger.Init(logLevel, "development")
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&inputFile, "file", "f", "-", "sample export to read, - for stdin")
	rootCmd.PersistentFlags().StringVar(&todayFlag, "today", "", "evaluate as of this day (YYYY-MM-DD), default today")
	rootCmd.PersistentFlags().StringVar(&policyFile, "policy", "", "optional YAML prediction policy")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "log level")

	rootCmd.AddCommand(cyclesCmd, predictCmd, calendarCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadService reads the export into a memory store and returns a service
// evaluating it as of --today.
func loadService(ctx context.Context, cmd *cobra.Command) (*cycle.Service, string, error) {
	var r io.Reader = cmd.InOrStdin()
	if inputFile != "-" {
		f, err := os.Open(inputFile)
		if err != nil {
			return nil, "", fmt.Errorf("open export: %w", err)
		}
		defer f.Close()
		r = f
	}

	samples, user, err := decodeSamples(r)
	if err != nil {
		return nil, "", err
	}

	mem := store.NewMemoryStore(0)
	if _, err := mem.SaveSamples(ctx, samples); err != nil {
		return nil, "", fmt.Errorf("load samples: %w", err)
	}

	opts := []cycle.Option{}
	if todayFlag != "" {
		today, err := cycle.ParseDateKey(todayFlag)
		if err != nil {
			return nil, "", err
		}
		at := today.Date().Add(12 * time.Hour)
		opts = append(opts, cycle.WithClock(func() time.Time { return at }))
	}
	if policyFile != "" {
		pc, err := config.LoadPolicy(policyFile)
		if err != nil {
			return nil, "", err
		}
		opts = append(opts, cycle.WithPolicy(pc.Policy()))
	}
	return cycle.NewService(cycle.StaticResolver(mem), opts...), user, nil
}

// decodeSamples parses the export. Samples without a user are assigned to the
// first user seen, or to "local".
func decodeSamples(r io.Reader) ([]cycle.Sample, string, error) {
	var samples []cycle.Sample
	if err := json.NewDecoder(r).Decode(&samples); err != nil {
		return nil, "", fmt.Errorf("decode export: %w", err)
	}

	user := ""
	for _, smp := range samples {
		if smp.UserID != "" {
			user = smp.UserID
			break
		}
	}
	if user == "" {
		user = defaultUser
	}

	for i := range samples {
		if samples[i].UserID == "" {
			samples[i].UserID = user
		}
		if samples[i].Category == "" {
			samples[i].Category = cycle.CategoryFlow
		}
		if !samples[i].ValueDateKey.Valid() {
			return nil, "", fmt.Errorf("sample %d: %w: %d", i, cycle.ErrInvalidDate, samples[i].ValueDateKey)
		}
	}
	return samples, user, nil
}
