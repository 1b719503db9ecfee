package project

import (
	"context"
	"math/rand"
	"strings"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gurisko/projects/internal/artifact"
)

func TestIsVersion(t *testing.T) {
	tests := []struct {
		name string
		want bool
	}{
		{"1.0", true},
		{"2.1.3", true},
		{"0.0.0", true},
		{"10.20.30", true},
		{"1", false},
		{"1.", false},
		{".1", false},
		{"1.0.0.0", false},
		{"v1.0", false},
		{"1.0-rc1", false},
		{"1.0\n", false},
		{" 1.0", false},
		{"１.０", false},
		{"abc", false},
		{"", false},
	}

	for _, tt := range tests {
		if got := IsVersion(tt.name); got != tt.want {
			t.Errorf("IsVersion(%q) = %v, want %v", tt.name, got, tt.want)
		}
	}
}

// referenceIsVersion is a hand-written parser for MAJOR.MINOR[.PATCH].
func referenceIsVersion(s string) bool {
	parts := strings.Split(s, ".")
	if len(parts) != 2 && len(parts) != 3 {
		return false
	}
	for _, p := range parts {
		if p == "" {
			return false
		}
		for _, c := range p {
			if c < '0' || c > '9' {
				return false
			}
		}
	}
	return true
}

func TestIsVersion_GeneratedStrings(t *testing.T) {
	const alphabet = "0123456789....ab-v \n"
	rng := rand.New(rand.NewSource(42))

	accepted := 0
	for i := 0; i < 20000; i++ {
		n := rng.Intn(9)
		var sb strings.Builder
		for j := 0; j < n; j++ {
			sb.WriteByte(alphabet[rng.Intn(len(alphabet))])
		}
		s := sb.String()
		want := referenceIsVersion(s)
		if want {
			accepted++
		}
		require.Equal(t, want, IsVersion(s), "tag %q", s)
	}
	// Make sure the generator actually exercised the accepting side.
	assert.Greater(t, accepted, 50)
}

func TestExtractVersions_FiltersAndKeepsOrder(t *testing.T) {
	ts := time.Date(2012, 5, 1, 10, 0, 0, 0, time.FixedZone("BRT", -3*3600))
	backend := newFakeBackend()
	backend.add("p", &fakeRepo{
		times: map[string]time.Time{"A": ts, "B": ts.Add(time.Hour), "C": ts.Add(2 * time.Hour)},
	})

	tags := []Tag{{"1.0", "A"}, {"abc", "B"}, {"2.1.3", "C"}}
	versions, err := ExtractVersions(context.Background(), backend, nil, "p", tags)
	require.NoError(t, err)
	require.Len(t, versions, 2)

	assert.Equal(t, "1.0", versions[0].Tag)
	assert.Equal(t, "2.1.3", versions[1].Tag)
	assert.Equal(t, time.UTC, versions[0].ReleasedAt.Location())
	assert.True(t, versions[0].ReleasedAt.Equal(ts))
	assert.Empty(t, versions[0].ArtifactURL)

	// Non-version tags are never resolved.
	assert.Equal(t, 2, backend.count("time"))
}

func TestExtractVersions_ArtifactPreference(t *testing.T) {
	fs := afero.NewMemMapFs()
	for _, name := range []string{"p-1.0.tar.gz", "p-1.0.tar.bz2", "p-1.1.tar.gz", "p-1.2.zip"} {
		require.NoError(t, afero.WriteFile(fs, "/dist/p/"+name, []byte("x"), 0o644))
	}
	store, err := artifact.New(fs, "/dist", "https://dist.example.com/")
	require.NoError(t, err)

	ts := time.Date(2013, 1, 1, 0, 0, 0, 0, time.UTC)
	backend := newFakeBackend()
	backend.add("p", &fakeRepo{times: map[string]time.Time{"a": ts, "b": ts, "c": ts}})

	versions, err := ExtractVersions(context.Background(), backend, store, "p",
		[]Tag{{"1.0", "a"}, {"1.1", "b"}, {"1.2", "c"}})
	require.NoError(t, err)
	require.Len(t, versions, 3)

	assert.Equal(t, "https://dist.example.com/p/p-1.0.tar.bz2", versions[0].ArtifactURL)
	assert.Equal(t, "https://dist.example.com/p/p-1.1.tar.gz", versions[1].ArtifactURL)
	assert.Empty(t, versions[2].ArtifactURL)
}

func TestExtractVersions_NoTags(t *testing.T) {
	versions, err := ExtractVersions(context.Background(), newFakeBackend(), nil, "p", nil)
	require.NoError(t, err)
	assert.Empty(t, versions)
	assert.NotNil(t, versions)
}

func TestExtractVersions_UnknownRevision(t *testing.T) {
	backend := newFakeBackend()
	backend.add("p", &fakeRepo{})

	_, err := ExtractVersions(context.Background(), backend, nil, "p", []Tag{{"1.0", "missing"}})
	assert.Error(t, err)
}
