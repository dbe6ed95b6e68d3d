//go:build go1.18

package domain

import (
	"testing"
	"unicode/utf8"
)

// FuzzParseAssetID checks that parsing never panics and yields either a
// round-trippable ID or an error.
func FuzzParseAssetID(f *testing.F) {
	f.Add("")
	f.Add("550e8400-e29b-41d4-a716-446655440000")
	f.Add("00000000-0000-0000-0000-000000000000")
	f.Add("not-a-uuid")
	f.Add("'; DROP TABLE assets;--")
	f.Add(string([]byte{0x00, 0x01, 0x02}))

	f.Fuzz(func(t *testing.T, input string) {
		id, err := ParseAssetID(input)
		if err == nil {
			roundTrip, err2 := ParseAssetID(id.String())
			if err2 != nil {
				t.Errorf("valid ID failed round-trip: %v", err2)
			}
			if roundTrip != id {
				t.Error("round-trip changed ID value")
			}
		}
		if !utf8.ValidString(input) && err == nil {
			t.Error("non-UTF8 input was accepted")
		}
	})
}

// FuzzParseCapability checks that only allowlisted capabilities parse.
func FuzzParseCapability(f *testing.F) {
	f.Add("security_review")
	f.Add("audit")
	f.Add("SUPERUSER")
	f.Add("")

	f.Fuzz(func(t *testing.T, input string) {
		c, err := ParseCapability(input)
		if err == nil && !c.IsValid() {
			t.Errorf("parsed capability %q is not valid", c)
		}
	})
}
