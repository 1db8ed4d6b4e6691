package cmd

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/hnmirror/internal/hn"
)

// newRunCmd creates the long-running 'run' subcommand.
func newRunCmd(s *rootState) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Runs the crawl scheduler and the admin server until interrupted",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := s.app.Migrate(cmd.Context()); err != nil {
				return err
			}
			return s.app.Serve(cmd.Context())
		},
	}
}

// newCrawlCmd creates the 'crawl' subcommand, which runs one cycle for one category.
func newCrawlCmd(s *rootState) *cobra.Command {
	var (
		category string
		force    bool
	)
	cmd := &cobra.Command{
		Use:   "crawl",
		Short: "Runs one crawl cycle for a category",
		Long: `Runs a single crawl cycle for one category. The cycle is skipped when the
category is not due yet, unless --force is given. --force never overlaps a
crawl that is still running.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cat, err := hn.ParseCategory(category)
			if err != nil {
				return err
			}
			if err := s.app.Migrate(cmd.Context()); err != nil {
				return err
			}
			report, err := s.app.Scheduler().RunCategory(cmd.Context(), cat, force)
			if err != nil {
				return fmt.Errorf("crawl %s: %w", cat, err)
			}
			out := cmd.OutOrStdout()
			if report.Skipped {
				fmt.Fprintf(out, "%s not due, next fetch in %s\n", cat, report.Wait.Round(time.Second))
				return nil
			}
			res := report.Result
			fmt.Fprintf(out, "%s cycle %s: requested=%d crawled=%d failed=%d items=%d users=%d\n",
				cat, report.CycleID, res.Requested, res.Crawled, res.Failed, res.Items, res.Users)
			if report.ArchiveURI != "" {
				fmt.Fprintf(out, "archived to %s\n", report.ArchiveURI)
			}
			s.app.Logger().Info("crawl command finished", zap.String("category", string(cat)))
			return nil
		},
	}
	cmd.Flags().StringVar(&category, "category", string(hn.CategoryTop), "category to crawl (top, new, best, ask, show, job)")
	cmd.Flags().BoolVar(&force, "force", false, "crawl even if the category is not due")
	return cmd
}

// newMigrateCmd creates the 'migrate' subcommand.
func newMigrateCmd(s *rootState) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Applies the storage schema",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := s.app.Migrate(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "schema applied (%s)\n", s.cfg.DB.Driver)
			return nil
		},
	}
}

// newStatusCmd creates the 'status' subcommand.
func newStatusCmd(s *rootState) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Prints the latest schedule row and next fetch time per category",
		RunE: func(cmd *cobra.Command, _ []string) error {
			statuses, err := s.app.Scheduler().Status(cmd.Context())
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "CATEGORY\tSTATE\tSTARTED\tITEMS\tNEXT IN")
			for _, st := range statuses {
				state, started, items := "never", "-", "-"
				if st.Latest != nil {
					state = "finished"
					if st.Running {
						state = "running"
					}
					if st.Latest.Abandoned {
						state = "abandoned"
					}
					started = st.Latest.CreatedAt.Format(time.RFC3339)
					if st.Latest.TotalItems != nil {
						items = fmt.Sprint(*st.Latest.TotalItems)
					}
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", st.Category, state, started, items, st.NextIn.Round(time.Second))
			}
			return tw.Flush()
		},
	}
}
