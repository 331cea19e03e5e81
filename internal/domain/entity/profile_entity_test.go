package entity

import (
	"encoding/json"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func jsonKeys(t *testing.T, v any) []string {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	var m map[string]any
	require.NoError(t, json.Unmarshal(b, &m))
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func TestMergeProfile_IsFieldUnion(t *testing.T) {
	pub := PublicProfile{ID: "u1", Name: StringPtr("Ada"), Avatar: StringPtr("a.png")}
	priv := PrivateProfile{ID: "u1", Admin: true, Email: "ada@example.com", Phone: StringPtr("+15550100")}

	got := MergeProfile(pub, priv)

	union := map[string]struct{}{}
	for _, k := range append(jsonKeys(t, pub), jsonKeys(t, priv)...) {
		union[k] = struct{}{}
	}
	want := make([]string, 0, len(union))
	for k := range union {
		want = append(want, k)
	}
	sort.Strings(want)

	assert.Equal(t, want, jsonKeys(t, got))
	assert.Equal(t, "Ada", got.DisplayName())
	assert.Equal(t, "a.png", got.AvatarPath())
	assert.True(t, got.Admin)
	assert.Equal(t, "ada@example.com", got.Email)
}

func TestMergeProfile_PrivateWinsOnCollision(t *testing.T) {
	got := MergeProfile(PublicProfile{ID: "public"}, PrivateProfile{ID: "private"})
	assert.Equal(t, "private", got.ID)
	assert.Equal(t, "", got.DisplayName())
	assert.Equal(t, "", got.AvatarPath())
}

func TestStringPtr(t *testing.T) {
	assert.Nil(t, StringPtr(""))
	require.NotNil(t, StringPtr("x"))
	assert.Equal(t, "x", *StringPtr("x"))
}
