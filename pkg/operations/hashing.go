package operations

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/habedi/tenantctl/pkg/hasher"
	"github.com/habedi/tenantctl/pkg/pool"
	"github.com/rs/zerolog/log"
)

// HashResult represents the result of hashing one downloaded file.
type HashResult struct {
	File string
	Hash string
	Err  error
}

// DefaultHashExclusions skips checksum files and unfinished downloads.
var DefaultHashExclusions = []string{
	".DS_Store", "Thumbs.db", "desktop.ini", ".tenantctl-download-*",
	"*.md5", "*.sha1", "*.sha256", "*.sha512",
}

// FindFilesToHash walks dir and returns the files whose names match none of exclusions.
func FindFilesToHash(dir string, recursive bool, exclusions []string) ([]string, error) {
	var files []string
	walkErr := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			if !recursive && path != dir {
				return filepath.SkipDir
			}
			return nil
		}
		for _, pattern := range exclusions {
			if matched, _ := filepath.Match(pattern, info.Name()); matched {
				return nil
			}
		}
		files = append(files, path)
		return nil
	})
	return files, walkErr
}

// GenerateHashes hashes files with numWorkers workers. Results keep the order of files.
func GenerateHashes(ctx context.Context, files []string, algo string, numWorkers int) []HashResult {
	results := pool.Run(ctx, files, numWorkers, func(ctx context.Context, file string) (string, error) {
		return hasher.GenerateHash(file, algo)
	})

	out := make([]HashResult, len(results))
	for i, r := range results {
		out[i] = HashResult{File: files[i], Hash: r.Value, Err: r.Err}
	}
	return out
}

// WriteHashFile stores res next to its file as <file>.<algo> in the
// "<digest>  <name>" layout sha256sum understands.
func WriteHashFile(res HashResult, algo string) error {
	if res.Err != nil || res.Hash == "" {
		return fmt.Errorf("no hash for %s", res.File)
	}
	line := fmt.Sprintf("%s  %s\n", res.Hash, filepath.Base(res.File))
	return os.WriteFile(res.File+"."+strings.ToLower(algo), []byte(line), 0o644)
}

// CleanHashes removes checksum files written by WriteHashFile.
func CleanHashes(dir string, recursive bool) error {
	return filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			if !recursive && path != dir {
				return filepath.SkipDir
			}
			return nil
		}
		for _, algo := range hasher.HashAlgorithms {
			if strings.HasSuffix(info.Name(), "."+algo) {
				if err := os.Remove(path); err != nil {
					log.Warn().Err(err).Str("path", path).Msg("Failed to remove old hash file")
				}
				break
			}
		}
		return nil
	})
}
