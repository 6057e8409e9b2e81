package cmd

import (
	"fmt"
	"strings"

	"github.com/habedi/tenantctl/client"
	"github.com/habedi/tenantctl/pkg/clierr"
	"github.com/habedi/tenantctl/pkg/operations"
	"github.com/habedi/tenantctl/pkg/validation"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

// bulkCmd applies one operation to many IDs of a resource.
func bulkCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "bulk [resource] [operation] [id]...",
		Short: "Apply an operation to many items at once",
		Long:  "Posts {\"operation\": ..., \"ids\": [...]} to <resource>/bulk, e.g. `tenantctl bulk /users deactivate 1 2 3`.",
		Args:  cobra.MinimumNArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			var out []byte
			if err := a.client.BulkOperation(cmd.Context(), args[0], args[1], args[2:], &out); err != nil {
				return err
			}
			cmd.Printf("Applied %q to %d items.\n", args[1], len(args)-2)
			return printBody(cmd.OutOrStdout(), out)
		},
	}
}

// fetchCmd fires several GETs concurrently and reports each outcome.
func fetchCmd(a *app) *cobra.Command {
	var workers int
	var showBody bool

	cmd := &cobra.Command{
		Use:   "fetch [path]...",
		Short: "Fetch several paths concurrently",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validation.ValidateWorkerCount(workers); err != nil {
				return clierr.New(clierr.Validation, err.Error(), err)
			}
			results := operations.FetchAll(cmd.Context(), a.client, args, workers)

			table := newTable(cmd.OutOrStdout(), []string{"Path", "Status", "Attempts", "Result"})
			var failed []error
			for _, r := range results {
				status, result := "-", "ok"
				if r.Status > 0 {
					status = fmt.Sprint(r.Status)
				}
				if r.Err != nil {
					failed = append(failed, r.Err)
					result = clierr.FromError(r.Err).Message
					if kind := client.KindOf(r.Err); kind != client.KindUnknown {
						result = fmt.Sprintf("%s: %s", kind, result)
					}
				}
				table.Append([]string{r.Path, status, fmt.Sprint(r.Attempts), result})
			}
			table.Render()

			if showBody {
				for _, r := range results {
					if r.Err == nil {
						cmd.Printf("\n# %s\n", r.Path)
						if err := printBody(cmd.OutOrStdout(), r.Body); err != nil {
							return err
						}
					}
				}
			}

			if len(failed) > 0 {
				log.Warn().Int("failed", len(failed)).Int("total", len(results)).Msg("Some fetches failed")
				// The first failure decides the exit status.
				return clierr.New(clierr.FromError(failed[0]).Type,
					fmt.Sprintf("%d of %d requests failed: %s", len(failed), len(results), strings.TrimSpace(failed[0].Error())),
					failed[0])
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&workers, "workers", "w", 5, "Number of concurrent requests [1-20]")
	cmd.Flags().BoolVarP(&showBody, "body", "b", false, "Print every successful response body")

	return cmd
}

// historyCmd lists the newest entries of the request log.
func historyCmd(a *app) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent API calls",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if a.logs == nil {
				cmd.Println("The memory token backend keeps no history.")
				return nil
			}
			entries, err := a.logs.Recent(cmd.Context(), limit)
			if err != nil {
				return clierr.New(clierr.Internal, "Failed to read the request log", err)
			}
			if len(entries) == 0 {
				cmd.Println("No requests recorded yet.")
				return nil
			}
			table := newTable(cmd.OutOrStdout(), []string{"Time", "Method", "Path", "Status", "Kind", "Attempts", "Duration", "Request ID"})
			for _, e := range entries {
				table.Append([]string{
					e.CreatedAt.Local().Format("2006-01-02 15:04:05"),
					e.Method,
					e.Path,
					fmt.Sprint(e.Status),
					e.Kind,
					fmt.Sprint(e.Attempts),
					fmt.Sprintf("%dms", e.DurationMs),
					e.RequestID,
				})
			}
			table.Render()
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "l", 20, "Number of entries to show")

	return cmd
}
