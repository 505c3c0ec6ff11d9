package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/spigell/cv-screener/internal/audit"
	"github.com/spigell/cv-screener/internal/evaluation"
)

var evaluationCmd = &cobra.Command{
	Use:   "evaluation",
	Short: "Inspect stored evaluations",
}

var evaluationShowCmd = &cobra.Command{
	Use:   "show <ref>",
	Short: "Print a stored evaluation record",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		withSink(func(ctx context.Context, sink audit.Sink) error {
			ref, err := audit.ParseRef(args[0])
			if err != nil {
				return err
			}
			record, err := sink.Get(ctx, ref)
			if err != nil {
				return err
			}

			pretty, err := json.MarshalIndent(record, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(pretty))
			return nil
		})
	},
}

var evaluationListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored evaluations",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, _ []string) {
		withSink(func(ctx context.Context, sink audit.Sink) error {
			vacancyID, _ := cmd.Flags().GetString("vacancy")
			records, err := listRecords(ctx, sink, vacancyID)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tCREATED\tVACANCY\tRATING\tTAG\tSUBMITTER")
			for _, r := range records {
				fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%s\n",
					r.ID, r.CreatedAt.Format("2006-01-02 15:04"), r.VacancyID, r.Rating, r.Tag, r.SubmitterID)
			}
			return w.Flush()
		})
	},
}

func init() {
	rootCmd.AddCommand(evaluationCmd)
	evaluationCmd.AddCommand(evaluationShowCmd, evaluationListCmd)

	evaluationListCmd.Flags().String("vacancy", "", "only records of this vacancy (required for the sqlite sink)")
}

func listRecords(ctx context.Context, sink audit.Sink, vacancyID string) ([]evaluation.Record, error) {
	switch s := sink.(type) {
	case *audit.SQLiteSink:
		if vacancyID == "" {
			return nil, errors.New("--vacancy is required for the sqlite sink")
		}
		return s.ListByVacancy(ctx, vacancyID)
	case *audit.FileSink:
		all, err := s.List(ctx)
		if err != nil || vacancyID == "" {
			return all, err
		}
		var filtered []evaluation.Record
		for _, r := range all {
			if r.VacancyID == vacancyID {
				filtered = append(filtered, r)
			}
		}
		return filtered, nil
	default:
		return nil, fmt.Errorf("listing is not supported by %T", sink)
	}
}

func withSink(fn func(ctx context.Context, sink audit.Sink) error) {
	logger, config := setup()
	defer logger.Sync()
	ctx := context.Background()

	sink, err := audit.Open(ctx, config.Audit, logger)
	if err != nil {
		logger.Fatal("opening audit sink", zap.Error(err))
	}

	err = fn(ctx, sink)
	if closeErr := sink.Close(); closeErr != nil {
		logger.Warn("closing audit sink", zap.Error(closeErr))
	}
	if err != nil {
		logger.Fatal("evaluation command failed", zap.Error(err))
	}
}
