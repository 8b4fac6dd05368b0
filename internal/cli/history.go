package cli

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/kingrea/cbuildbot/internal/config"
	"github.com/kingrea/cbuildbot/internal/history"
)

func newHistoryCommand(env Env) *cobra.Command {
	var (
		limit    int
		stateDir string
	)
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent pipeline runs, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if limit < 1 {
				return usagef("-n must be at least 1")
			}
			paths, err := config.InitStateDir(stateDir)
			if err != nil {
				return err
			}
			store, err := history.Open(paths.HistoryDir())
			if err != nil {
				return err
			}
			defer store.Close()
			runs, err := store.Recent(limit)
			if err != nil {
				return fmt.Errorf("cli: read history: %w", err)
			}
			if len(runs) == 0 {
				fmt.Fprintln(env.Stdout, "No runs recorded.")
				return nil
			}
			w := tabwriter.NewWriter(env.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "STARTED\tCONFIG\tBOARD\tSTATUS\tDURATION\tID")
			for _, run := range runs {
				duration := "-"
				if !run.FinishedAt.IsZero() {
					duration = run.FinishedAt.Sub(run.StartedAt).Round(time.Second).String()
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
					run.StartedAt.Local().Format("2006-01-02 15:04:05"),
					run.ConfigName, run.Board, run.Status, duration, run.ID)
			}
			return w.Flush()
		},
	}
	cmd.SetFlagErrorFunc(flagErrors)
	cmd.Flags().IntVarP(&limit, "number", "n", 10, "number of runs to show")
	cmd.Flags().StringVar(&stateDir, "state-dir", "", "directory for logs and run history (default ~/"+config.StateDirName+")")
	return cmd
}

func newConfigsCommand(env Env) *cobra.Command {
	var configFile string
	cmd := &cobra.Command{
		Use:   "configs",
		Short: "List the build configs that can be passed as CONFIG",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			table, err := config.Load(configFile)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(env.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tBOARD\tUPREV")
			for _, name := range table.Names() {
				cfg, err := table.Get(name)
				if err != nil {
					return err
				}
				fmt.Fprintf(w, "%s\t%s\t%t\n", name, cfg.Board, cfg.Uprev)
			}
			return w.Flush()
		},
	}
	cmd.Flags().StringVar(&configFile, "config-file", "", "YAML build config table (default: built-in table)")
	return cmd
}
