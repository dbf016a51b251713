package models

import (
	"encoding/json"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewULID_UniqueAndOrdered(t *testing.T) {
	ids := make([]string, 100)
	seen := make(map[string]bool, len(ids))
	for i := range ids {
		ids[i] = NewULID().String()
		require.False(t, seen[ids[i]], "duplicate ULID %s", ids[i])
		seen[ids[i]] = true
	}

	// Monotonic entropy keeps same-millisecond IDs in mint order.
	assert.True(t, sort.StringsAreSorted(ids), "ULIDs should sort in mint order")
}

func TestParseULID(t *testing.T) {
	id := NewULID()

	parsed, err := ParseULID(id.String())
	require.NoError(t, err)
	assert.Equal(t, id, parsed)
	assert.Len(t, id.String(), 26)

	for _, bad := range []string{"", "not-a-valid-ulid", "0000"} {
		_, err := ParseULID(bad)
		assert.Error(t, err, "input %q", bad)
	}

	assert.Panics(t, func() { MustParseULID("nope") })
}

func TestULID_IsZero(t *testing.T) {
	var zero ULID
	assert.True(t, zero.IsZero())
	assert.False(t, NewULID().IsZero())
}

func TestULID_DatabaseRoundTrip(t *testing.T) {
	id := NewULID()

	val, err := id.Value()
	require.NoError(t, err)
	assert.Equal(t, id.String(), val)

	var scanned ULID
	require.NoError(t, scanned.Scan(val))
	assert.Equal(t, id, scanned)

	require.NoError(t, scanned.Scan([]byte(id.String())))
	assert.Equal(t, id, scanned)
}

func TestULID_ZeroStoresAsNull(t *testing.T) {
	var zero ULID
	val, err := zero.Value()
	require.NoError(t, err)
	assert.Nil(t, val)

	var scanned ULID
	require.NoError(t, scanned.Scan(nil))
	assert.True(t, scanned.IsZero())
	require.NoError(t, scanned.Scan(""))
	assert.True(t, scanned.IsZero())
}

func TestULID_ScanRejectsGarbage(t *testing.T) {
	var u ULID
	assert.Error(t, u.Scan("bad-ulid"))
	assert.Error(t, u.Scan(12345))
}

func TestULID_JSON(t *testing.T) {
	type wrapper struct {
		ID ULID `json:"id"`
	}

	t.Run("round trip", func(t *testing.T) {
		original := wrapper{ID: NewULID()}
		data, err := json.Marshal(original)
		require.NoError(t, err)
		assert.JSONEq(t, `{"id":"`+original.ID.String()+`"}`, string(data))

		var decoded wrapper
		require.NoError(t, json.Unmarshal(data, &decoded))
		assert.Equal(t, original.ID, decoded.ID)
	})

	t.Run("zero marshals to null", func(t *testing.T) {
		data, err := json.Marshal(wrapper{})
		require.NoError(t, err)
		assert.JSONEq(t, `{"id":null}`, string(data))
	})

	t.Run("null and empty string decode to zero", func(t *testing.T) {
		for _, in := range []string{`{"id":null}`, `{"id":""}`} {
			var decoded wrapper
			require.NoError(t, json.Unmarshal([]byte(in), &decoded))
			assert.True(t, decoded.ID.IsZero(), "input %s", in)
		}
	})

	t.Run("rejects malformed input", func(t *testing.T) {
		var u ULID
		assert.Error(t, json.Unmarshal([]byte("12345"), &u))
		assert.Error(t, json.Unmarshal([]byte(`"not-a-ulid"`), &u))
	})
}

func TestULID_GormDataType(t *testing.T) {
	assert.Equal(t, "varchar(26)", ULID{}.GormDataType())
}

func TestBaseModel_BeforeCreate(t *testing.T) {
	m := &BaseModel{}
	require.NoError(t, m.BeforeCreate(nil))
	assert.False(t, m.ID.IsZero(), "BeforeCreate mints an ID")

	existing := NewULID()
	m = &BaseModel{ID: existing}
	require.NoError(t, m.BeforeCreate(nil))
	assert.Equal(t, existing, m.ID, "existing IDs are preserved")
	assert.Equal(t, existing, m.GetID())
}
