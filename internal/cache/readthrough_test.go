package cache

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyKeepsEmptyFilterSlots(t *testing.T) {
	byPartner := Key("daily", "1", "Acme", "", "2024-05-01", "2024-05-31")
	byCountry := Key("daily", "1", "", "Acme", "2024-05-01", "2024-05-31")

	assert.NotEqual(t, byPartner, byCountry)
	assert.Equal(t, "daily|1|Acme||2024-05-01|2024-05-31", byPartner)
	assert.Equal(t, "daily|1||Acme|2024-05-01|2024-05-31", byCountry)
}

func TestKeyPreservesCase(t *testing.T) {
	assert.NotEqual(t, Key("daily", "1", "ACME"), Key("daily", "1", "acme"))
}

func TestReadThroughServesPerKey(t *testing.T) {
	rt := NewReadThrough[string](time.Minute, 8)

	calls := 0
	load := func(v string) func() (string, error) {
		return func() (string, error) {
			calls++
			return v, nil
		}
	}

	first, err := rt.Do(Key("daily", "1", "Acme", ""), load("partner rows"))
	require.NoError(t, err)
	second, err := rt.Do(Key("daily", "1", "", "Acme"), load("country rows"))
	require.NoError(t, err)

	assert.Equal(t, "partner rows", first)
	assert.Equal(t, "country rows", second)
	assert.Equal(t, 2, calls)

	// Repeating either query hits the cached value for its own key.
	again, err := rt.Do(Key("daily", "1", "Acme", ""), load("recomputed"))
	require.NoError(t, err)
	assert.Equal(t, "partner rows", again)
	assert.Equal(t, 2, calls)
}

func TestReadThroughNeverCachesErrors(t *testing.T) {
	rt := NewReadThrough[int](time.Minute, 8)

	boom := errors.New("load failed")
	_, err := rt.Do("k", func() (int, error) { return 0, boom })
	require.ErrorIs(t, err, boom)

	v, err := rt.Do("k", func() (int, error) { return 42, nil })
	require.NoError(t, err)
	assert.Equal(t, 42, v)
}
