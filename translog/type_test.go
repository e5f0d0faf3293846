package translog

import "testing"

func TestType_ExternalBitRoundTrips(t *testing.T) {
	plain := TypeFlagUpdate
	external := plain | ExternalBit

	if plain.IsExternal() {
		t.Fatalf("%v reports external, want not", plain)
	}
	if !external.IsExternal() {
		t.Fatalf("%v does not report external, want external", external)
	}
	if external.Base() != plain {
		t.Fatalf("Base() = %v, want %v", external.Base(), plain)
	}
	if external.String() != plain.String()+"+external" {
		t.Fatalf("String() = %q, want %q", external.String(), plain.String()+"+external")
	}
}
