package settings_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/castordb/castor/internal/settings"
)

func TestSorted_Deterministic(t *testing.T) {
	s := settings.Settings{
		"max_threads":                    "8",
		"query_cache_entry_put_timeout":  "500",
		"distributed_product_mode":       "local",
		"allow_experimental_query_cache": "1",
	}

	first := s.Sorted()
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, s.Sorted())
	}
	for i := 1; i < len(first); i++ {
		assert.Less(t, first[i-1].Name, first[i].Name)
	}
}

func TestEqual(t *testing.T) {
	tests := []struct {
		name string
		a, b settings.Settings
		want bool
	}{
		{name: "both empty", a: settings.Settings{}, b: settings.Settings{}, want: true},
		{
			name: "same entries",
			a:    settings.Settings{"a": "1", "b": "2"},
			b:    settings.Settings{"b": "2", "a": "1"},
			want: true,
		},
		{
			name: "different value",
			a:    settings.Settings{"a": "1"},
			b:    settings.Settings{"a": "2"},
			want: false,
		},
		{
			name: "extra entry",
			a:    settings.Settings{"a": "1"},
			b:    settings.Settings{"a": "1", "b": "2"},
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.a.Equal(tt.b))
		})
	}
}

func TestEntryPutTimeoutOr(t *testing.T) {
	def := 15 * time.Second

	assert.Equal(t, def, settings.Settings{}.EntryPutTimeoutOr(def))
	assert.Equal(t, 500*time.Millisecond,
		settings.Settings{settings.EntryPutTimeout: "500"}.EntryPutTimeoutOr(def))
	assert.Equal(t, def,
		settings.Settings{settings.EntryPutTimeout: "not-a-number"}.EntryPutTimeoutOr(def))
	assert.Equal(t, def,
		settings.Settings{settings.EntryPutTimeout: "-5"}.EntryPutTimeoutOr(def))
}

func TestMaxEntrySizeOr(t *testing.T) {
	assert.Equal(t, int64(1024), settings.Settings{}.MaxEntrySizeOr(1024))
	assert.Equal(t, int64(500),
		settings.Settings{settings.MaxEntrySize: "500"}.MaxEntrySizeOr(1024))
	assert.Equal(t, int64(1024),
		settings.Settings{settings.MaxEntrySize: "0"}.MaxEntrySizeOr(1024))
}
