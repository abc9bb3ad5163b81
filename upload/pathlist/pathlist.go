// Package pathlist expands user-provided path and glob patterns into the
// list of media files to upload.
package pathlist

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/bitrise-io/go-utils/v2/pathutil"
	"github.com/bmatcuk/doublestar/v4"
)

// Expand evaluates each pattern (plain paths and "doublestar" globs such as
// `media/**/*.jpg`, relative or absolute) and returns the sorted,
// deduplicated list of regular files. Patterns matching nothing are logged
// as warnings, not errors.
func Expand(patterns []string, logger log.Logger) ([]string, error) {
	pathModifier := pathutil.NewPathModifier()

	var candidates []string
	for _, pattern := range patterns {
		if !strings.Contains(pattern, "*") {
			candidates = append(candidates, pattern)
			continue
		}

		// io/fs globbing wants a relative pattern, so split off the
		// non-glob base and use it as the FS root.
		base, glob := doublestar.SplitPattern(pattern)
		absBase, err := pathModifier.AbsPath(base) // resolves ~/ and expands any envs
		if err != nil {
			logger.Warnf("Error in pattern '%s': %s", pattern, err)
			continue
		}
		matches, err := doublestar.Glob(os.DirFS(absBase), glob, doublestar.WithNoFollow())
		if err != nil {
			logger.Warnf("Error in pattern '%s': %s", pattern, err)
			continue
		}
		if matches == nil {
			logger.Warnf("No match for pattern: %s", pattern)
			continue
		}
		for _, match := range matches {
			candidates = append(candidates, filepath.Join(base, match))
		}
	}

	files := filterFilesOnly(candidates)

	seen := make(map[string]bool, len(files))
	var unique []string
	for _, path := range files {
		if !seen[path] {
			seen[path] = true
			unique = append(unique, path)
		}
	}
	sort.Strings(unique)

	return unique, nil
}

func filterFilesOnly(paths []string) []string {
	var files []string
	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			continue
		}
		if info.IsDir() {
			continue
		}
		files = append(files, path)
	}
	return files
}
