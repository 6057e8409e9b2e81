package cmd

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/habedi/tenantctl/client"
	"github.com/spf13/cobra"
)

// requestCmd creates the command for one HTTP method, e.g. `tenantctl get /users`.
func requestCmd(a *app, method string) *cobra.Command {
	var data, file string
	var query []string
	withBody := method == http.MethodPost || method == http.MethodPut || method == http.MethodPatch

	cmd := &cobra.Command{
		Use:   strings.ToLower(method) + " [path]",
		Short: fmt.Sprintf("Send a %s request and print the response", method),
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			q, err := parseQuery(query)
			if err != nil {
				return err
			}
			call := client.Call{Method: method, Path: args[0], Query: q}
			if withBody {
				body, err := readJSONBody(data, file)
				if err != nil {
					return err
				}
				if body != nil {
					call.JSON = body
				}
			}

			resp, err := a.client.Do(cmd.Context(), call)
			if err != nil {
				return err
			}
			return printBody(cmd.OutOrStdout(), resp.Body)
		},
	}

	cmd.Flags().StringArrayVarP(&query, "query", "q", nil, "Query parameter as key=value (repeatable)")
	if withBody {
		cmd.Flags().StringVarP(&data, "data", "d", "", "JSON request body")
		cmd.Flags().StringVarP(&file, "file", "f", "", "Read the JSON request body from a file")
	}

	return cmd
}
