package internal

import "testing"

func TestNewTokenLengthAndUniqueness(t *testing.T) {
	seen := make(map[string]struct{})
	for i := 0; i < 64; i++ {
		tok, err := NewToken(16)
		if err != nil {
			t.Fatalf("NewToken: %v", err)
		}
		if len(tok) != 32 {
			t.Fatalf("expected 32 hex chars, got %d", len(tok))
		}
		if _, dup := seen[tok]; dup {
			t.Fatalf("duplicate token %s", tok)
		}
		seen[tok] = struct{}{}
	}
	if _, err := RandomBytes(0); err == nil {
		t.Fatal("expected error for zero size")
	}
}

func TestHashBindingValueStable(t *testing.T) {
	a := HashBindingValue("ua|10.0.0.0/24")
	if a != HashBindingValue("ua|10.0.0.0/24") {
		t.Fatal("hash must be deterministic")
	}
	if a == HashBindingValue("ua|10.0.1.0/24") {
		t.Fatal("different inputs must not collide")
	}
	if len(a) != 64 {
		t.Fatalf("expected hex sha256, got %d chars", len(a))
	}
}
