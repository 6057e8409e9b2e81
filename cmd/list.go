package cmd

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/habedi/tenantctl/client"
	"github.com/habedi/tenantctl/pkg/clierr"
	"github.com/habedi/tenantctl/pkg/validation"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

// listCmd shows one page (or every page) of a list endpoint as a table.
func listCmd(a *app) *cobra.Command {
	var page, limit int
	var sortBy, order string
	var filters, columns []string
	var all bool

	cmd := &cobra.Command{
		Use:   "list [path]",
		Short: "List a paginated resource as a table",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validation.ValidatePage(page, limit); err != nil {
				return clierr.New(clierr.Validation, err.Error(), err)
			}
			if err := validation.ValidateSortOrder(order); err != nil {
				return clierr.New(clierr.Validation, err.Error(), err)
			}
			filterMap, err := validation.ParseKeyValues(filters)
			if err != nil {
				return clierr.New(clierr.Validation, err.Error(), err)
			}
			params := client.PageParams{Page: page, Limit: limit, Sort: sortBy, Order: strings.ToLower(order), Filters: filterMap}

			log.Info().Str("path", args[0]).Int("page", page).Bool("all", all).Msg("Listing resource")

			var rows []map[string]any
			var footer string
			if all {
				if rows, err = client.AllPages[map[string]any](cmd.Context(), a.client, args[0], params); err != nil {
					return err
				}
				footer = fmt.Sprintf("%d items", len(rows))
			} else {
				p, err := client.GetPaginated[map[string]any](cmd.Context(), a.client, args[0], params)
				if err != nil {
					return err
				}
				rows = p.Items
				footer = fmt.Sprintf("Page %d of %d (%d items)", p.Page, max(p.TotalPages, 1), p.Total)
			}

			if len(rows) == 0 {
				cmd.Println("No items found.")
				return nil
			}
			renderRows(cmd, rows, columns)
			cmd.Println(footer)
			return nil
		},
	}

	cmd.Flags().IntVarP(&page, "page", "p", 1, "Page number")
	cmd.Flags().IntVarP(&limit, "limit", "l", 20, "Items per page [1-1000]")
	cmd.Flags().StringVar(&sortBy, "sort", "", "Field to sort by")
	cmd.Flags().StringVar(&order, "order", "", "Sort order [asc, desc]")
	cmd.Flags().StringArrayVarP(&filters, "filter", "f", nil, "Filter as key=value (repeatable)")
	cmd.Flags().StringSliceVarP(&columns, "columns", "c", nil, "Columns to show (defaults to every field)")
	cmd.Flags().BoolVarP(&all, "all", "a", false, "Fetch every page")

	return cmd
}

// renderRows prints rows as a table. Without explicit columns every key seen
// is shown, with id first and the rest sorted.
func renderRows(cmd *cobra.Command, rows []map[string]any, columns []string) {
	if len(columns) == 0 {
		seen := map[string]bool{}
		for _, row := range rows {
			for k := range row {
				seen[k] = true
			}
		}
		for k := range seen {
			if k != "id" {
				columns = append(columns, k)
			}
		}
		sort.Strings(columns)
		if seen["id"] {
			columns = append([]string{"id"}, columns...)
		}
	}

	table := newTable(cmd.OutOrStdout(), columns)
	for _, row := range rows {
		cells := make([]string, len(columns))
		for i, col := range columns {
			cells[i] = cellValue(row[col])
		}
		table.Append(cells)
	}
	table.Render()
}

// cellValue flattens a JSON value into one table cell.
func cellValue(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return strings.ReplaceAll(val, "\n", " ")
	case float64:
		return claimValue(val)
	case map[string]any, []any:
		b, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprint(val)
		}
		return string(b)
	default:
		return fmt.Sprint(val)
	}
}
