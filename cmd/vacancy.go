package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/spigell/cv-screener/internal/headhunter"
	"github.com/spigell/cv-screener/internal/secrets"
	"github.com/spigell/cv-screener/internal/vacancy"
)

var vacancyCmd = &cobra.Command{
	Use:   "vacancy",
	Short: "Manage vacancies",
}

var vacancyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List active vacancies",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, _ []string) {
		logger, config := setup()
		store, err := openVacancies(config, logger)
		if err != nil {
			logger.Fatal("opening vacancies", zap.Error(err))
		}

		list, err := store.ListActive(context.Background())
		if err != nil {
			logger.Fatal("listing vacancies", zap.Error(err))
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tTITLE")
		for _, v := range list {
			fmt.Fprintf(w, "%s\t%s\n", v.ID, v.Title)
		}
		w.Flush()
	},
}

var vacancyCompaniesCmd = &cobra.Command{
	Use:   "companies",
	Short: "List companies of an owner with their vacancies",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, _ []string) {
		withAdmin(func(ctx context.Context, store *vacancy.GormStore, logger *zap.Logger) error {
			owner, _ := cmd.Flags().GetInt64("owner")
			companies, err := store.CompaniesFor(ctx, owner)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, c := range companies {
				fmt.Fprintf(out, "%d %s\n", c.ID, c.Title)
				for _, v := range c.Vacancies {
					state := "active"
					if !v.IsActive {
						state = "inactive"
					}
					fmt.Fprintf(out, "  %d %s (%s)\n", v.ID, v.Title, state)
				}
			}
			return nil
		})
	},
}

var vacancyCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a vacancy",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, _ []string) {
		withAdmin(func(ctx context.Context, store *vacancy.GormStore, logger *zap.Logger) error {
			title, _ := cmd.Flags().GetString("title")
			description, err := descriptionFlag(cmd)
			if err != nil {
				return err
			}
			companyID, err := companyFlag(ctx, cmd, store)
			if err != nil {
				return err
			}

			d, err := store.Create(ctx, companyID, title, description)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created vacancy %s\n", d.ID)
			return nil
		})
	},
}

var vacancyUpdateCmd = &cobra.Command{
	Use:   "update <id>",
	Short: "Change the title or description of a vacancy",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		withAdmin(func(ctx context.Context, store *vacancy.GormStore, logger *zap.Logger) error {
			changed := false
			if cmd.Flags().Changed("title") {
				title, _ := cmd.Flags().GetString("title")
				if err := store.UpdateTitle(ctx, args[0], title); err != nil {
					return err
				}
				changed = true
			}
			if cmd.Flags().Changed("description") || cmd.Flags().Changed("description-file") {
				description, err := descriptionFlag(cmd)
				if err != nil {
					return err
				}
				if err := store.UpdateDescription(ctx, args[0], description); err != nil {
					return err
				}
				changed = true
			}
			if !changed {
				return errors.New("nothing to update: pass --title and/or --description")
			}
			return nil
		})
	},
}

var vacancyDeactivateCmd = &cobra.Command{
	Use:   "deactivate <id>",
	Short: "Stop accepting résumés for a vacancy",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		withAdmin(func(ctx context.Context, store *vacancy.GormStore, logger *zap.Logger) error {
			v, err := store.Get(ctx, args[0])
			if err != nil {
				return err
			}

			if yes, _ := cmd.Flags().GetBool("yes"); !yes {
				prompt := promptui.Prompt{
					Label:     fmt.Sprintf("Deactivate %q", v.Title),
					IsConfirm: true,
				}
				if _, err := prompt.Run(); err != nil {
					logger.Info("exiting", zap.String("reason", "deactivation not confirmed"))
					return nil
				}
			}

			return store.Deactivate(ctx, args[0])
		})
	},
}

var vacancyImportCmd = &cobra.Command{
	Use:   "import <hh-id>",
	Short: "Create a vacancy from a HeadHunter posting",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		withAdmin(func(ctx context.Context, store *vacancy.GormStore, logger *zap.Logger) error {
			config, err := getConfig()
			if err != nil {
				return err
			}
			token, err := secrets.Optional(secrets.Source{
				Name: "headhunter token",
				File: config.HH.TokenFile,
				Env:  "HH_TOKEN",
			})
			if err != nil {
				return err
			}

			hh := headhunter.New(logger, token)
			if config.HH.UserAgent != "" {
				hh.UserAgent = config.HH.UserAgent
			}

			posting, err := hh.GetVacancy(ctx, args[0])
			if err != nil {
				return err
			}
			if posting.Archived {
				logger.Warn("importing an archived vacancy", zap.String("hh_id", posting.ID))
			}
			description, err := posting.PlainDescription()
			if err != nil {
				return err
			}

			companyID, err := companyFlag(ctx, cmd, store)
			if err != nil {
				return err
			}
			d, err := store.Create(ctx, companyID, posting.Name, description)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "imported %s as vacancy %s\n", posting.ID, d.ID)
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(vacancyCmd)
	vacancyCmd.AddCommand(vacancyListCmd, vacancyCompaniesCmd, vacancyCreateCmd, vacancyUpdateCmd, vacancyDeactivateCmd, vacancyImportCmd)

	vacancyCompaniesCmd.Flags().Int64("owner", 0, "owner user id")

	for _, c := range []*cobra.Command{vacancyCreateCmd, vacancyImportCmd} {
		c.Flags().Uint("company", 0, "company id")
		c.Flags().String("new-company", "", "create a company with this title when --company is unset")
		c.Flags().Int64("owner", 0, "owner user id of a new company")
	}

	for _, c := range []*cobra.Command{vacancyCreateCmd, vacancyUpdateCmd} {
		c.Flags().String("title", "", "vacancy title")
		c.Flags().String("description", "", "vacancy description")
		c.Flags().String("description-file", "", "read the description from a file")
	}
	vacancyCreateCmd.MarkFlagRequired("title")

	vacancyDeactivateCmd.Flags().BoolP("yes", "y", false, "do not ask for confirmation")
}

func withAdmin(fn func(ctx context.Context, store *vacancy.GormStore, logger *zap.Logger) error) {
	logger, config := setup()
	defer logger.Sync()

	store, err := openAdmin(config, logger)
	if err != nil {
		logger.Fatal("opening vacancy store", zap.Error(err))
	}

	err = fn(context.Background(), store, logger)
	if closeErr := store.Close(); closeErr != nil {
		logger.Warn("closing vacancy store", zap.Error(closeErr))
	}
	if err != nil {
		logger.Fatal("vacancy command failed", zap.Error(err))
	}
}

func descriptionFlag(cmd *cobra.Command) (string, error) {
	if path, _ := cmd.Flags().GetString("description-file"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("reading description: %w", err)
		}
		return string(data), nil
	}
	description, _ := cmd.Flags().GetString("description")
	return description, nil
}

func companyFlag(ctx context.Context, cmd *cobra.Command, store *vacancy.GormStore) (uint, error) {
	if id, _ := cmd.Flags().GetUint("company"); id != 0 {
		return id, nil
	}
	title, _ := cmd.Flags().GetString("new-company")
	if strings.TrimSpace(title) == "" {
		return 0, errors.New("either --company or --new-company is required")
	}
	owner, _ := cmd.Flags().GetInt64("owner")
	company, err := store.CreateCompany(ctx, owner, title)
	if err != nil {
		return 0, err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "created company %d\n", company.ID)
	return company.ID, nil
}
