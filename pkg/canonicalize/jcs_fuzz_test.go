package canonicalize

import (
	"bytes"
	"encoding/json"
	"testing"
)

func FuzzJCS(f *testing.F) {
	for _, seed := range []string{
		`{"type":"REGISTRATION","details":{"case_id":"CASE-7","metadata":{"name":"disk.img"}}}`,
		`{"tags":["drugs","weapon"],"integrity_verified":true,"last_verified_at":null}`,
		`{"notes":"<seal> & bag","size":123.456}`,
		`{"":"empty","unicode":"café","emoji":"🔒"}`,
		`{"escape":"line1\nline2\ttab"}`,
		`{}`,
	} {
		f.Add([]byte(seed))
	}

	f.Fuzz(func(t *testing.T, data []byte) {
		var v any
		if err := json.Unmarshal(data, &v); err != nil {
			t.Skip()
		}
		first, err := JCS(v)
		if err != nil {
			return
		}
		again, err := JCS(v)
		if err != nil || !bytes.Equal(first, again) {
			t.Fatalf("non-deterministic: %s vs %s (%v)", first, again, err)
		}

		var round any
		if err := json.Unmarshal(first, &round); err != nil {
			t.Fatalf("output is not JSON: %s", first)
		}
		// Canonical output is a fixed point.
		fixed, err := JCS(round)
		if err != nil || !bytes.Equal(first, fixed) {
			t.Fatalf("not idempotent: %s vs %s (%v)", first, fixed, err)
		}
	})
}
