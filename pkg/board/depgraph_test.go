package board

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFindCycle(t *testing.T) {
	tests := []struct {
		name  string
		edges map[string][]string
		start string
		want  []string
	}{
		{
			name:  "no edges",
			edges: map[string][]string{},
			start: "a",
			want:  nil,
		},
		{
			name:  "chain has no cycle",
			edges: map[string][]string{"a": {"b"}, "b": {"c"}},
			start: "a",
			want:  nil,
		},
		{
			name:  "self loop",
			edges: map[string][]string{"a": {"a"}},
			start: "a",
			want:  []string{"a", "a"},
		},
		{
			name:  "two node cycle",
			edges: map[string][]string{"a": {"b"}, "b": {"a"}},
			start: "a",
			want:  []string{"a", "b", "a"},
		},
		{
			name:  "longer cycle through start",
			edges: map[string][]string{"a": {"b"}, "b": {"c"}, "c": {"a"}},
			start: "a",
			want:  []string{"a", "b", "c", "a"},
		},
		{
			name:  "cycle elsewhere does not involve start",
			edges: map[string][]string{"a": {"b"}, "c": {"d"}, "d": {"c"}},
			start: "a",
			want:  nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := findCycle(tt.edges, tt.start)
			assert.Equal(t, tt.want, got)
		})
	}
}
