package cmd

import (
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/habedi/tenantctl/client"
	"github.com/habedi/tenantctl/pkg/clierr"
	"github.com/habedi/tenantctl/pkg/hasher"
	"github.com/habedi/tenantctl/pkg/validation"
	"github.com/rs/zerolog/log"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

// uploadCmd posts a local file as multipart/form-data.
func uploadCmd(a *app) *cobra.Command {
	var field, name string
	var fields []string

	cmd := &cobra.Command{
		Use:   "upload [path] [file]",
		Short: "Upload a file as multipart/form-data",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			extra, err := validation.ParseKeyValues(fields)
			if err != nil {
				return clierr.New(clierr.Validation, err.Error(), err)
			}
			var out []byte
			err = a.client.Upload(cmd.Context(), args[0], client.FileUpload{
				FieldName: field,
				FileName:  name,
				Path:      args[1],
				Fields:    extra,
			}, &out)
			if err != nil {
				return err
			}
			cmd.Printf("Uploaded %s\n", filepath.Base(args[1]))
			return printBody(cmd.OutOrStdout(), out)
		},
	}

	cmd.Flags().StringVar(&field, "field", "file", "Form field name of the file")
	cmd.Flags().StringVar(&name, "name", "", "File name sent to the server (defaults to the local name)")
	cmd.Flags().StringArrayVar(&fields, "set", nil, "Extra form field as key=value (repeatable)")

	return cmd
}

// downloadCmd streams a response body into a local file with a progress bar.
func downloadCmd(a *app) *cobra.Command {
	var output, checksum string
	var rateLimit int64
	var timeout time.Duration
	var quiet bool

	cmd := &cobra.Command{
		Use:   "download [path]",
		Short: "Download a file or export",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if rateLimit < 0 {
				return clierr.New(clierr.Validation, "Rate limit cannot be negative.", nil)
			}
			var want hasher.Checksum
			if checksum != "" {
				var err error
				if want, err = hasher.ParseChecksum(checksum); err != nil {
					return clierr.New(clierr.Validation, err.Error(), err)
				}
			}
			dest := output
			if dest == "" {
				dest = client.FileNameFor(args[0], "")
			}

			opts := client.DownloadOptions{RateLimit: rateLimit, Timeout: timeout}
			if !quiet {
				opts.Progress = func(total int64) io.Writer {
					return progressbar.NewOptions64(total,
						progressbar.OptionSetDescription(fmt.Sprintf("Downloading %s", filepath.Base(dest))),
						progressbar.OptionSetWriter(cmd.ErrOrStderr()),
						progressbar.OptionShowBytes(true),
						progressbar.OptionThrottle(100*time.Millisecond),
						progressbar.OptionClearOnFinish(),
						progressbar.OptionSpinnerType(14),
					)
				}
			}

			n, err := a.client.DownloadTo(cmd.Context(), args[0], dest, opts)
			if err != nil {
				return err
			}
			if checksum != "" {
				if err := hasher.Verify(dest, want); err != nil {
					log.Error().Err(err).Str("dest", dest).Msg("Checksum verification failed")
					return clierr.New(clierr.Validation, err.Error(), err)
				}
				cmd.Printf("Checksum %s verified.\n", want.Algo)
			}
			cmd.Printf("Downloaded %d bytes to %q\n", n, dest)
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "Destination file (defaults to the last path segment)")
	cmd.Flags().Int64Var(&rateLimit, "rate-limit", 0, "Limit download speed in bytes per second (0 uses the configured limit)")
	cmd.Flags().StringVar(&checksum, "checksum", "", "Expected checksum as algo=hex, e.g. sha256=ab12...")
	cmd.Flags().DurationVar(&timeout, "transfer-timeout", 0, "Timeout for one download attempt (0 uses --timeout)")
	cmd.Flags().BoolVar(&quiet, "quiet", false, "Hide the progress bar")

	return cmd
}
