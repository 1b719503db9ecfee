package project

import (
	"context"
	"fmt"
	"regexp"
)

// versionPattern is an allow-list: pre-releases and arbitrary labels are not releases.
var versionPattern = regexp.MustCompile(`^[0-9]+\.[0-9]+(\.[0-9]+)?$`)

// ArtifactExtensions lists archive extensions in order of preference.
var ArtifactExtensions = []string{"tar.xz", "tar.bz2", "tar.gz"}

// IsVersion reports whether a tag name is a release version (MAJOR.MINOR[.PATCH]).
func IsVersion(name string) bool {
	return versionPattern.MatchString(name)
}

// ExtractVersions turns a tag list into release versions, keeping the tag
// enumeration order. store may be nil, in which case no artifact is resolved.
func ExtractVersions(ctx context.Context, backend Backend, store ArtifactStore, id string, tags []Tag) ([]Version, error) {
	versions := make([]Version, 0, len(tags))
	for _, tag := range tags {
		if !IsVersion(tag.Name) {
			continue
		}

		released, err := backend.CommitTime(ctx, id, tag.Revision)
		if err != nil {
			return nil, fmt.Errorf("commit time of tag %s: %w", tag.Name, err)
		}

		url, err := findArtifact(store, id, tag.Name)
		if err != nil {
			return nil, fmt.Errorf("artifact for %s: %w", tag.Name, err)
		}

		versions = append(versions, Version{
			Tag:         tag.Name,
			ReleasedAt:  released.UTC(),
			ArtifactURL: url,
		})
	}
	return versions, nil
}

func findArtifact(store ArtifactStore, id, version string) (string, error) {
	if store == nil {
		return "", nil
	}
	for _, ext := range ArtifactExtensions {
		url, ok, err := store.Lookup(id, version, ext)
		if err != nil {
			return "", err
		}
		if ok {
			return url, nil
		}
	}
	return "", nil
}
