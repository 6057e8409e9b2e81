package cmd

import (
	"path/filepath"

	"github.com/habedi/tenantctl/pkg/clierr"
	"github.com/habedi/tenantctl/pkg/hasher"
	"github.com/habedi/tenantctl/pkg/operations"
	"github.com/habedi/tenantctl/pkg/validation"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

// checksumCmd hashes downloaded files in a directory.
func checksumCmd() *cobra.Command {
	var algo string
	var recursive, save, clean bool
	var workers int

	cmd := &cobra.Command{
		Use:         "checksum [dir]",
		Short:       "Generate checksums for downloaded files",
		Args:        cobra.ExactArgs(1),
		Annotations: map[string]string{annotationOffline: "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := args[0]
			if !hasher.IsValidHashAlgo(algo) {
				return clierr.New(clierr.Validation, "Unsupported hash algorithm: "+algo, nil)
			}
			if err := validation.ValidateWorkerCount(workers); err != nil {
				return clierr.New(clierr.Validation, err.Error(), err)
			}
			if clean {
				if err := operations.CleanHashes(dir, recursive); err != nil {
					return clierr.New(clierr.Internal, "Failed to remove old checksum files", err)
				}
			}

			files, err := operations.FindFilesToHash(dir, recursive, operations.DefaultHashExclusions)
			if err != nil {
				return clierr.New(clierr.Validation, "Cannot read "+dir, err)
			}
			if len(files) == 0 {
				cmd.Println("No files to hash.")
				return nil
			}

			table := newTable(cmd.OutOrStdout(), []string{"File", algo})
			var firstErr error
			for _, res := range operations.GenerateHashes(cmd.Context(), files, algo, workers) {
				rel, relErr := filepath.Rel(dir, res.File)
				if relErr != nil {
					rel = res.File
				}
				if res.Err != nil {
					log.Error().Err(res.Err).Str("file", res.File).Msg("Failed to hash file")
					table.Append([]string{rel, "error: " + res.Err.Error()})
					if firstErr == nil {
						firstErr = res.Err
					}
					continue
				}
				table.Append([]string{rel, res.Hash})
				if save {
					if err := operations.WriteHashFile(res, algo); err != nil {
						log.Error().Err(err).Str("file", res.File).Msg("Failed to write checksum file")
					}
				}
			}
			table.Render()
			if firstErr != nil {
				return clierr.New(clierr.Internal, "Some files could not be hashed", firstErr)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&algo, "algo", "a", "sha256", "Hash algorithm to use [md5, sha1, sha256, sha512]")
	cmd.Flags().BoolVarP(&recursive, "recursive", "r", true, "Process files in subdirectories? [true, false]")
	cmd.Flags().BoolVarP(&save, "save", "s", false, "Save each hash next to its file? [true, false]")
	cmd.Flags().BoolVarP(&clean, "clean", "c", false, "Remove old checksum files first? [true, false]")
	cmd.Flags().IntVarP(&workers, "workers", "w", 4, "Number of files hashed in parallel [1-20]")

	return cmd
}
