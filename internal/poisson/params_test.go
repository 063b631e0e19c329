package poisson

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/banshee-data/cloudmesh/internal/geom"
)

func TestParams_Validate(t *testing.T) {
	t.Parallel()

	mod := func(f func(*Params)) Params {
		p := DefaultParams()
		f(&p)
		return p
	}
	tests := []struct {
		name    string
		params  Params
		wantErr bool
	}{
		{"defaults", DefaultParams(), false},
		{"depth zero", mod(func(p *Params) { p.Depth = 0 }), true},
		{"depth too deep", mod(func(p *Params) { p.Depth = maxDepth + 1 }), true},
		{"scale below one", mod(func(p *Params) { p.Scale = 0.9 }), true},
		{"scale nan", mod(func(p *Params) { p.Scale = math.NaN() }), true},
		{"negative width", mod(func(p *Params) { p.Width = -1 }), true},
		{"explicit width", mod(func(p *Params) { p.Width = 0.01 }), false},
		{"samples per node", mod(func(p *Params) { p.SamplesPerNode = 0.5 }), true},
		{"band", mod(func(p *Params) { p.Band = 0 }), true},
		{"tolerance", mod(func(p *Params) { p.Tolerance = 0 }), true},
		{"iterations", mod(func(p *Params) { p.MaxIterations = 0 }), true},
		{"min points", mod(func(p *Params) { p.MinPoints = 0 }), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := tt.params.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, geom.ErrInvalidParameter)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
