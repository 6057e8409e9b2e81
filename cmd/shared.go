package cmd

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"

	"github.com/habedi/tenantctl/pkg/clierr"
	"github.com/habedi/tenantctl/pkg/validation"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

// printBody writes a response body, indenting it when it is JSON.
func printBody(w io.Writer, body []byte) error {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	var out bytes.Buffer
	if err := json.Indent(&out, body, "", "  "); err != nil {
		out.Reset()
		out.Write(body)
	}
	if !bytes.HasSuffix(out.Bytes(), []byte("\n")) {
		out.WriteByte('\n')
	}
	_, err := w.Write(out.Bytes())
	return err
}

// readJSONBody returns the request body given inline or as a file. Both empty means no body.
func readJSONBody(data, file string) (json.RawMessage, error) {
	if data != "" && file != "" {
		return nil, clierr.New(clierr.Validation, "use either --data or --file, not both", nil)
	}
	raw := []byte(data)
	if file != "" {
		var err error
		if raw, err = os.ReadFile(file); err != nil {
			return nil, clierr.New(clierr.Validation, fmt.Sprintf("cannot read %s", file), err)
		}
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, nil
	}
	if !json.Valid(raw) {
		return nil, clierr.New(clierr.Validation, "request body is not valid JSON", nil)
	}
	return json.RawMessage(raw), nil
}

// parseQuery turns repeated key=value flags into query values.
func parseQuery(pairs []string) (url.Values, error) {
	kv, err := validation.ParseKeyValues(pairs)
	if err != nil {
		return nil, clierr.New(clierr.Validation, err.Error(), err)
	}
	if len(kv) == 0 {
		return nil, nil
	}
	q := url.Values{}
	for k, v := range kv {
		q.Set(k, v)
	}
	return q, nil
}

// newTable returns a left-aligned table writing to w.
func newTable(w io.Writer, header []string) *tablewriter.Table {
	table := tablewriter.NewWriter(w)
	table.SetHeader(header)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAutoWrapText(false)
	table.SetRowLine(false)
	return table
}

// promptForInput prompts on cmd's output and reads one trimmed line from in.
func promptForInput(cmd *cobra.Command, in *bufio.Reader, prompt string) (string, error) {
	cmd.Print(prompt)
	input, err := in.ReadString('\n')
	if err != nil && (err != io.EOF || input == "") {
		return "", clierr.New(clierr.Validation, "Failed to read input", err)
	}
	return strings.TrimSpace(input), nil
}

// promptForPassword reads a password without echo when stdin is a terminal,
// and a plain line from in otherwise so it can be piped.
func promptForPassword(cmd *cobra.Command, in *bufio.Reader, prompt string) (string, error) {
	if f, ok := cmd.InOrStdin().(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		cmd.Print(prompt)
		password, err := term.ReadPassword(int(f.Fd()))
		cmd.Println()
		if err != nil {
			return "", clierr.New(clierr.Validation, "Failed to read password", err)
		}
		return strings.TrimSpace(string(password)), nil
	}
	return promptForInput(cmd, in, prompt)
}
