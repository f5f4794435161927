package safemath

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAdd(t *testing.T) {
	tests := []struct {
		name    string
		a, b    uint64
		want    uint64
		wantErr error
	}{
		{name: "simple", a: 2, b: 3, want: 5},
		{name: "zero operands", a: 0, b: 0, want: 0},
		{name: "max plus zero", a: math.MaxUint64, b: 0, want: math.MaxUint64},
		{name: "max plus one overflows", a: math.MaxUint64, b: 1, wantErr: ErrOverflow},
		{name: "halves overflow", a: math.MaxUint64/2 + 1, b: math.MaxUint64/2 + 1, wantErr: ErrOverflow},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Add(tt.a, tt.b)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSub(t *testing.T) {
	tests := []struct {
		name    string
		a, b    uint64
		want    uint64
		wantErr error
	}{
		{name: "simple", a: 5, b: 3, want: 2},
		{name: "to zero", a: 7, b: 7, want: 0},
		{name: "underflow", a: 3, b: 5, wantErr: ErrUnderflow},
		{name: "zero minus one underflows", a: 0, b: 1, wantErr: ErrUnderflow},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Sub(tt.a, tt.b)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMul(t *testing.T) {
	tests := []struct {
		name    string
		a, b    uint64
		want    uint64
		wantErr error
	}{
		{name: "simple", a: 6, b: 7, want: 42},
		{name: "zero left", a: 0, b: math.MaxUint64, want: 0},
		{name: "zero right", a: math.MaxUint64, b: 0, want: 0},
		{name: "identity", a: math.MaxUint64, b: 1, want: math.MaxUint64},
		{name: "overflow", a: math.MaxUint64, b: 2, wantErr: ErrOverflow},
		{name: "large credit cost", a: 1 << 40, b: 1 << 30, wantErr: ErrOverflow},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Mul(tt.a, tt.b)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
