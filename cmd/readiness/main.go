// Command readiness checks that every go-live environment variable is set
// before a production deploy. It exits non-zero when anything is missing.
package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"inkwell/api/internal/config"
	"inkwell/api/internal/logging"
)

var errNotReady = errors.New("not ready for go-live")

type report struct {
	Ready    bool     `json:"ready"`
	Problems []string `json:"problems"`
}

func newRootCmd(lookup func(string) (string, bool)) *cobra.Command {
	var (
		envFiles []string
		output   string
	)
	cmd := &cobra.Command{
		Use:           "readiness",
		Short:         "Check go-live environment variables",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(envFiles) > 0 {
				config.LoadEnv(logging.NewLogger(), envFiles...)
			}
			problems := config.CheckReadiness(lookup)

			result := report{Ready: len(problems) == 0, Problems: make([]string, 0, len(problems))}
			for _, problem := range problems {
				result.Problems = append(result.Problems, problem.String())
			}

			out := cmd.OutOrStdout()
			if output == "json" {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				if err := enc.Encode(result); err != nil {
					return err
				}
			} else if result.Ready {
				fmt.Fprintln(out, "Ready for go-live: all required environment variables are set.")
			} else {
				fmt.Fprintln(out, "Go-live readiness check failed:")
				for _, problem := range result.Problems {
					fmt.Fprintf(out, " ✗ %s\n", problem)
				}
			}

			if !result.Ready {
				return errNotReady
			}
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&envFiles, "env-file", nil, "load variables from these .env files first")
	cmd.Flags().StringVarP(&output, "output", "o", "text", "output format: text or json")
	return cmd
}

func main() {
	if err := newRootCmd(os.LookupEnv).Execute(); err != nil {
		if !errors.Is(err, errNotReady) {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}
