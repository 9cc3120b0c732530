package downloader

import (
	"path/filepath"

	"jardownloader/internal/deps"
	"jardownloader/internal/downloader/core"
	apperrors "jardownloader/internal/errors"
)

// Conflict is a dependency dropped because another list already claimed
// the same file name with a different URL.
type Conflict struct {
	FileName string
	Kept     deps.Dependency
	Dropped  deps.Dependency
}

// Err describes the conflict as a DEP-004 error.
func (c Conflict) Err() *apperrors.AppError {
	return apperrors.DependencyError(apperrors.CodeNameConflict, "file name already claimed by another URL", nil).
		WithModule("downloader").
		WithOperation("Plan").
		WithFields(apperrors.Metadata{
			"file":      c.FileName,
			"kept_url":  c.Kept.URL,
			"kept_from": c.Kept.Source,
			"url":       c.Dropped.URL,
			"source":    c.Dropped.Source,
			"line":      c.Dropped.Line,
		})
}

// Plan turns parsed lists into download targets below downloadDir. Targets
// are deduplicated by local path in list order: the first dependency for a
// file name wins, the same URL seen again is dropped silently and a different
// URL is returned as a Conflict.
func Plan(lists []*deps.List, downloadDir string) ([]core.Target, []Conflict) {
	var (
		targets   []core.Target
		conflicts []Conflict
	)
	claimed := make(map[string]deps.Dependency)

	for _, list := range lists {
		if list == nil {
			continue
		}
		for _, dep := range list.Dependencies {
			localPath := filepath.Join(downloadDir, dep.FileName)
			if prev, ok := claimed[localPath]; ok {
				if prev.URL != dep.URL {
					conflicts = append(conflicts, Conflict{FileName: dep.FileName, Kept: prev, Dropped: dep})
				}
				continue
			}
			claimed[localPath] = dep

			source := dep.Source
			if source == "" {
				source = list.Source
			}
			targets = append(targets, core.Target{
				Name:         dep.FileName,
				URL:          dep.URL,
				ExpectedHash: dep.SHA256,
				LocalPath:    localPath,
				MinSize:      1,
				Source:       source,
			})
		}
	}

	return targets, conflicts
}
