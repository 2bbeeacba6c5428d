package id

import (
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAtSortsBySimulatedTime(t *testing.T) {
	t.Parallel()

	base := time.Date(2020, 3, 1, 0, 0, 0, 0, time.UTC)
	var ids []string
	for i := 0; i < 50; i++ {
		ids = append(ids, At(base.Add(time.Duration(i/5)*time.Hour)))
	}
	assert.True(t, sort.StringsAreSorted(ids))

	got, err := Time(ids[len(ids)-1])
	require.NoError(t, err)
	assert.Equal(t, base.Add(9*time.Hour), got)
}

func TestNewIsUnique(t *testing.T) {
	t.Parallel()

	seen := map[string]bool{}
	for i := 0; i < 1000; i++ {
		s := New()
		require.Len(t, s, 26)
		require.False(t, seen[s])
		seen[s] = true
	}
}

func TestTimeRejectsGarbage(t *testing.T) {
	t.Parallel()

	_, err := Time("not-a-ulid")
	assert.Error(t, err)
}
