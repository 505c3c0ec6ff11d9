package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/spigell/cv-screener/internal/pipeline"
	"github.com/spigell/cv-screener/internal/vacancy"
)

var screenCmd = &cobra.Command{
	Use:   "screen <file>",
	Short: "Evaluate a single résumé file against a vacancy",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		screen(cmd, args[0])
	},
}

func init() {
	rootCmd.AddCommand(screenCmd)

	screenCmd.Flags().String("vacancy", "", "vacancy id; asks interactively when unset")
	screenCmd.Flags().String("submitter", "", "who sent the résumé, stored with the evaluation")
}

func screen(cmd *cobra.Command, path string) {
	logger, config := setup()
	defer logger.Sync()
	ctx := context.Background()

	data, err := os.ReadFile(path)
	if err != nil {
		logger.Fatal("reading résumé", zap.Error(err))
	}

	c, err := buildComponents(ctx, config, logger)
	if err != nil {
		logger.Fatal("building components", zap.Error(err))
	}
	defer c.close(logger)

	vacancyID, _ := cmd.Flags().GetString("vacancy")
	v, err := pickVacancy(ctx, c.vacancies, vacancyID)
	if err != nil {
		logger.Fatal("selecting vacancy", zap.Error(err))
	}

	submitter, _ := cmd.Flags().GetString("submitter")
	res, err := c.orchestrator.Submit(ctx, pipeline.Submission{
		Data:        data,
		Filename:    filepath.Base(path),
		Vacancy:     v,
		SubmitterID: submitter,
	})
	if err != nil {
		fail := pipeline.AsFailure(err)
		fmt.Fprintln(cmd.OutOrStdout(), fail.SafeMessage())
		c.close(logger)
		logger.Fatal("screening failed", zap.String("kind", string(fail.Kind)), zap.Error(fail.Err))
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "evaluation: %s\n", res.Ref)
	fmt.Fprintf(out, "rating: %d (%s), accepted: %t\n", res.Decision.Rating, res.Decision.Tag, res.Decision.Accept)
	fmt.Fprintln(out, res.Decision.Message)
	if res.Decision.OfferTips {
		fmt.Fprintf(out, "\nInterview tips:\n%s\n", res.Record.InterviewTips)
	}

	<-res.Review
}

func pickVacancy(ctx context.Context, store vacancy.Store, id string) (vacancy.Descriptor, error) {
	if id != "" {
		return store.Get(ctx, id)
	}

	list, err := store.ListActive(ctx)
	if err != nil {
		return vacancy.Descriptor{}, err
	}
	if len(list) == 0 {
		return vacancy.Descriptor{}, errors.New("there are no active vacancies")
	}

	prompt := promptui.Select{
		Label: "Vacancy",
		Items: list,
		Size:  10,
		Templates: &promptui.SelectTemplates{
			Label:    "{{ . }}",
			Active:   "▸ {{ .Title | cyan }} ({{ .ID }})",
			Inactive: "  {{ .Title }} ({{ .ID }})",
			Selected: "✔ {{ .Title | green }}",
		},
	}
	idx, _, err := prompt.Run()
	if err != nil {
		return vacancy.Descriptor{}, err
	}
	return list[idx], nil
}
