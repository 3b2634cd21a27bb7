package auth

import (
	"strings"
	"testing"
)

func TestBcryptHasherRoundTrip(t *testing.T) {
	h := NewBcryptHasher(4)
	hash, err := h.Hash("s3cret")
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	if hash == "" || hash == "s3cret" {
		t.Fatalf("unexpected hash %q", hash)
	}
	if !h.Verify(hash, "s3cret") {
		t.Fatalf("expected bcrypt password check to pass")
	}
	if h.Verify(hash, "s3creT") {
		t.Fatalf("expected bcrypt password check to fail")
	}
}

func TestArgon2idHasherRoundTrip(t *testing.T) {
	h := &Argon2idHasher{Time: 1, Memory: 8 * 1024, Threads: 1, SaltLen: 16, KeyLen: 32}
	hash, err := h.Hash("pw1")
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	if !strings.HasPrefix(hash, "$argon2id$v=19$m=8192,t=1,p=1$") {
		t.Fatalf("unexpected encoding %q", hash)
	}
	if !h.Verify(hash, "pw1") {
		t.Fatalf("expected argon2id password check to pass")
	}
	if h.Verify(hash, "pw2") {
		t.Fatalf("expected argon2id password check to fail")
	}
}

func TestArgon2idHashesAreSalted(t *testing.T) {
	h := &Argon2idHasher{Time: 1, Memory: 8 * 1024, Threads: 1, SaltLen: 16, KeyLen: 32}
	a, _ := h.Hash("same")
	b, _ := h.Hash("same")
	if a == b {
		t.Fatalf("expected distinct hashes for the same password")
	}
}

func TestArgon2idVerifyUsesEncodedParameters(t *testing.T) {
	old := &Argon2idHasher{Time: 1, Memory: 8 * 1024, Threads: 1, SaltLen: 8, KeyLen: 16}
	hash, err := old.Hash("pw")
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	current := NewArgon2idHasher()
	if !current.Verify(hash, "pw") {
		t.Fatalf("expected hash made with older parameters to verify")
	}
}

func TestArgon2idVerifyRejectsMalformed(t *testing.T) {
	h := NewArgon2idHasher()
	for _, hash := range []string{"", "plain", "$argon2id$v=19$m=1,t=1,p=1$$", "$bcrypt$v=19$m=1,t=1,p=1$YQ$YQ"} {
		if h.Verify(hash, "pw") {
			t.Fatalf("Verify(%q) = true, want false", hash)
		}
	}
}

func TestNewHasher(t *testing.T) {
	if h, err := NewHasher("", 0); err != nil {
		t.Fatalf("default hasher: %v", err)
	} else if _, ok := h.(*BcryptHasher); !ok {
		t.Fatalf("default hasher = %T, want *BcryptHasher", h)
	}
	if h, err := NewHasher("Argon2id", 0); err != nil {
		t.Fatalf("argon2id hasher: %v", err)
	} else if _, ok := h.(*Argon2idHasher); !ok {
		t.Fatalf("hasher = %T, want *Argon2idHasher", h)
	}
	if _, err := NewHasher("sha256", 0); err == nil {
		t.Fatalf("expected unsupported algorithm error")
	}
}
