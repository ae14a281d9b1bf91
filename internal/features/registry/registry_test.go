package registry

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRegistrySize(t *testing.T) {
	r, err := New(nil)
	require.NoError(t, err)
	require.Equal(t, RequiredFeatureCount, r.Size())
	require.Len(t, r.Names(), RequiredFeatureCount)
}

func TestRegistryNoDuplicates(t *testing.T) {
	r, err := New(nil)
	require.NoError(t, err)
	seen := make(map[string]bool, r.Size())
	for _, n := range r.Names() {
		require.False(t, seen[n], "duplicate feature name %q", n)
		seen[n] = true
	}
}

func TestRegistryOrderStable(t *testing.T) {
	a, err := New(nil)
	require.NoError(t, err)
	b, err := New(nil)
	require.NoError(t, err)
	require.Equal(t, a.Names(), b.Names())
}

func TestValidate(t *testing.T) {
	r, err := New(nil)
	require.NoError(t, err)

	exact := append([]string(nil), r.Names()...)
	require.NoError(t, r.Validate(exact))

	short := exact[:len(exact)-1]
	require.Error(t, r.Validate(short))

	swapped := append([]string(nil), exact...)
	swapped[0], swapped[1] = swapped[1], swapped[0]
	require.Error(t, r.Validate(swapped))
}

func TestFallbacks(t *testing.T) {
	r, err := New(nil)
	require.NoError(t, err)

	require.Equal(t, 0.5, r.Fallback("btc_correlation_96"))
	require.Equal(t, 1.0, r.Fallback("btc_beta_96"))
	require.Equal(t, 0.0, r.Fallback("rsi_14"))
	require.Equal(t, 0.0, r.Fallback("not_a_feature"))
}

func TestIndex(t *testing.T) {
	r, err := New(nil)
	require.NoError(t, err)

	require.Equal(t, 0, r.Index("ret_1"))
	require.Equal(t, -1, r.Index("nope"))
	for i, n := range r.Names() {
		require.Equal(t, i, r.Index(n))
	}
}
