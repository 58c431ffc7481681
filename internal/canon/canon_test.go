package canon

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBytes_KeyOrderIndependent(t *testing.T) {
	a := map[string]interface{}{"b": 1, "a": 2, "c": []interface{}{3, 2, 1}}
	b := map[string]interface{}{"c": []interface{}{3, 2, 1}, "a": 2, "b": 1}

	ab, err := Bytes(a)
	require.NoError(t, err)
	bb, err := Bytes(b)
	require.NoError(t, err)

	assert.Equal(t, string(ab), string(bb))
	assert.Equal(t, `{"a":2,"b":1,"c":[3,2,1]}`, string(ab))
}

func TestBytes_CompactNoWhitespace(t *testing.T) {
	b, err := Bytes(map[string]interface{}{"x": "y"})
	require.NoError(t, err)
	assert.NotContains(t, string(b), " ")
	assert.NotContains(t, string(b), "\n")
}

func TestFingerprint_StablePrefix(t *testing.T) {
	fp, err := Fingerprint(map[string]interface{}{"k": "v"})
	require.NoError(t, err)
	assert.Regexp(t, `^sha256:[0-9a-f]{64}$`, fp)
}

func TestFingerprint_Deterministic(t *testing.T) {
	x := map[string]interface{}{"events": []interface{}{"a", "b"}, "anchor": "d1"}
	fp1 := MustFingerprint(x)
	fp2 := MustFingerprint(x)
	assert.Equal(t, fp1, fp2)
}

func TestEnsurePrefix_Idempotent(t *testing.T) {
	h := SHA256Hex([]byte("abc"))
	once := EnsurePrefix(h)
	twice := EnsurePrefix(once)
	assert.Equal(t, once, twice)
}
