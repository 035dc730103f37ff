package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"cravebiz/internal/apperror"
	"cravebiz/internal/logger"

	"github.com/spf13/cobra"
)

var recurCmd = &cobra.Command{
	Use:   "recur",
	Short: "Fire due recurring invoice templates once",
	Long: `Materializes every recurring template whose next date is on or before
--date (default: today), catching up missed periods in order, and prints
the run as JSON.

Exits non-zero when any template failed; the other templates still fire.`,
	Example: `  # Fire everything due today
  cravebiz recur

  # Catch up as of a given day
  cravebiz recur --date 2024-03-01`,
	RunE: runRecur,
}

func init() {
	rootCmd.AddCommand(recurCmd)
	recurCmd.Flags().String("date", "", "As-of date (format: YYYY-MM-DD, default: today)")
}

func runRecur(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("recur")

	asOf, err := dateFlag(cmd, "date")
	if err != nil {
		return err
	}

	a, err := newApp(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	log.Info().Str("as_of", asOf.Format(time.DateOnly)).Msg("running recurrence")
	run, runErr := a.recurrence().RunDue(cmd.Context(), asOf)
	if run != nil {
		if err := printJSON(run); err != nil {
			return err
		}
	}
	if runErr != nil {
		return fmt.Errorf("recurrence run: %s", apperror.UserMessage(runErr))
	}
	return nil
}

// dateFlag parses a YYYY-MM-DD flag; empty means today.
func dateFlag(cmd *cobra.Command, name string) (time.Time, error) {
	raw, _ := cmd.Flags().GetString(name)
	if raw == "" {
		return time.Now(), nil
	}
	d, err := time.Parse(time.DateOnly, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid --%s, use YYYY-MM-DD: %w", name, err)
	}
	return d, nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
