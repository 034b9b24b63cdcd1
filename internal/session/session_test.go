package session

import "testing"

func TestHashAccessTokenDeterministic(t *testing.T) {
	a := HashAccessToken("same-token")
	b := HashAccessToken("same-token")

	if a != b {
		t.Fatalf("hashing the same token twice should produce the same hash: %q != %q", a, b)
	}
}

func TestHashAccessTokenDiffers(t *testing.T) {
	a := HashAccessToken("token-one")
	b := HashAccessToken("token-two")

	if a == b {
		t.Fatal("different tokens should hash differently")
	}
}

func TestRandomTokenLength(t *testing.T) {
	tok, err := randomToken()
	if err != nil {
		t.Fatalf("randomToken: %v", err)
	}

	// 32 raw bytes hex-encoded is 64 characters.
	if len(tok) != 64 {
		t.Fatalf("token length = %d, want 64", len(tok))
	}
}

func TestRandomTokenUnique(t *testing.T) {
	a, _ := randomToken()
	b, _ := randomToken()

	if a == b {
		t.Fatal("two generated tokens should not collide")
	}
}
