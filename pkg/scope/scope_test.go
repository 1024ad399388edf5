package scope

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ateamhq/warroom/pkg/apperr"
)

func TestNormalizeProjectID(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    string
		wantErr bool
	}{
		{name: "simple", raw: "alpha", want: "alpha"},
		{name: "uppercase is lowered", raw: "Alpha-Team", want: "alpha-team"},
		{name: "digits and underscores", raw: "proj_42", want: "proj_42"},
		{name: "empty", raw: "", wantErr: true},
		{name: "spaces", raw: "my project", wantErr: true},
		{name: "slash", raw: "a/b", wantErr: true},
		{name: "dot", raw: "a.b", wantErr: true},
		{name: "max length ok", raw: strings.Repeat("a", 100), want: strings.Repeat("a", 100)},
		{name: "over max length", raw: strings.Repeat("a", 101), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizeProjectID(tt.raw)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, apperr.IsCode(err, apperr.CodeValidation))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestProjectContext(t *testing.T) {
	ctx := context.Background()

	_, ok := ProjectFrom(ctx)
	assert.False(t, ok)

	ctx = WithProject(ctx, "p1")
	got, ok := ProjectFrom(ctx)
	require.True(t, ok)
	assert.Equal(t, "p1", got)
}
