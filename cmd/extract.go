package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/spigell/cv-screener/internal/extract"
	"github.com/spigell/cv-screener/internal/filtering"
)

var extractCmd = &cobra.Command{
	Use:   "extract <file>",
	Short: "Print the text of a résumé file and the screening verdicts, without scoring",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		logger, config := setup()
		defer logger.Sync()

		text, err := extract.ExtractFile(args[0])
		if err != nil {
			logger.Fatal("extracting text", zap.String("file", args[0]), zap.Error(err))
		}

		out := cmd.OutOrStdout()
		if quiet, _ := cmd.Flags().GetBool("verdicts-only"); !quiet {
			fmt.Fprintln(out, text)
			fmt.Fprintln(out)
		}

		result := filtering.Run(filtering.Default(config.Screening), text)
		for _, step := range result.Steps {
			switch {
			case step.Skipped:
				fmt.Fprintf(out, "%-10s skipped\n", step.Name)
			case step.Verdict.Passed:
				fmt.Fprintf(out, "%-10s ok (%g, limit %g)\n", step.Name, step.Verdict.Measured, step.Verdict.Limit)
			default:
				fmt.Fprintf(out, "%-10s FAIL: %s\n", step.Name, step.Verdict.Reason)
			}
		}
		if !result.Passed() {
			fmt.Fprintln(out, "the text does not look like a résumé")
		}
	},
}

func init() {
	rootCmd.AddCommand(extractCmd)

	extractCmd.Flags().Bool("verdicts-only", false, "do not print the extracted text")
}
