package common

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseUint64orHex(t *testing.T) {
	tests := []struct {
		name    string
		input   *string
		want    uint64
		wantErr bool
	}{
		{name: "nil input", input: nil, want: 0},
		{name: "decimal string", input: strPtr("12345"), want: 12345},
		{name: "block number quantity", input: strPtr("0x1a2b"), want: 0x1a2b},
		{name: "uppercase prefix", input: strPtr("0XDEADBEEF"), want: 0xDEADBEEF},
		{name: "max uint64", input: strPtr("0xffffffffffffffff"), want: math.MaxUint64},
		{name: "overflows uint64", input: strPtr("0x10000000000000000"), wantErr: true},
		{name: "invalid decimal string", input: strPtr("12abc"), wantErr: true},
		{name: "invalid hex string", input: strPtr("0xGHIJK"), wantErr: true},
		{name: "empty string", input: strPtr(""), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseUint64orHex(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestToHexQuantity(t *testing.T) {
	require.Equal(t, "0x0", ToHexQuantity(0))
	require.Equal(t, "0x64", ToHexQuantity(100))
	require.Equal(t, "0x112a880", ToHexQuantity(18000000))
	require.Equal(t, "0xffffffffffffffff", ToHexQuantity(math.MaxUint64))
}

func TestToLowerWithTrim(t *testing.T) {
	require.Equal(t, "0xabcdef", ToLowerWithTrim("  0xABCdef \n"))
	require.Equal(t, "", ToLowerWithTrim("   "))
}

func strPtr(s string) *string {
	return &s
}
