package password

import (
	"strings"
	"testing"
)

func fastArgon2Config() Config {
	return Config{
		Strategy:    StrategyArgon2id,
		Memory:      8 * 1024,
		Time:        1,
		Parallelism: 1,
	}
}

func TestArgon2RoundTrip(t *testing.T) {
	hasher, err := New(fastArgon2Config())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	encoded, err := hasher.Hash("correct horse battery")
	if err != nil {
		t.Fatalf("Hash failed: %v", err)
	}
	if !strings.HasPrefix(encoded, "$argon2id$") {
		t.Fatalf("unexpected format: %s", encoded)
	}

	ok, err := hasher.Verify("correct horse battery", encoded)
	if err != nil || !ok {
		t.Fatalf("Verify = %v,%v want true,nil", ok, err)
	}

	ok, err = hasher.Verify("wrong password", encoded)
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if ok {
		t.Fatal("wrong password verified")
	}
}

func TestArgon2SaltedHashesDiffer(t *testing.T) {
	hasher, err := New(fastArgon2Config())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	first, err := hasher.Hash("correct horse battery")
	if err != nil {
		t.Fatalf("Hash failed: %v", err)
	}
	second, err := hasher.Hash("correct horse battery")
	if err != nil {
		t.Fatalf("Hash failed: %v", err)
	}
	if first == second {
		t.Fatal("two hashes of the same password are identical")
	}
}

func TestArgon2RejectsShortPassword(t *testing.T) {
	hasher, err := New(fastArgon2Config())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if _, err := hasher.Hash("short"); err == nil {
		t.Fatal("short password accepted")
	}
}

func TestBcryptRoundTrip(t *testing.T) {
	hasher, err := New(Config{Strategy: StrategyBcrypt, BcryptCost: 4})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	encoded, err := hasher.Hash("correct horse battery")
	if err != nil {
		t.Fatalf("Hash failed: %v", err)
	}
	if !strings.HasPrefix(encoded, "$2") {
		t.Fatalf("unexpected format: %s", encoded)
	}

	ok, err := hasher.Verify("correct horse battery", encoded)
	if err != nil || !ok {
		t.Fatalf("Verify = %v,%v want true,nil", ok, err)
	}

	ok, err = hasher.Verify("wrong password", encoded)
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if ok {
		t.Fatal("wrong password verified")
	}
}

func TestTaggedDispatchAcrossStrategies(t *testing.T) {
	// Credentials hashed under bcrypt keep verifying after switching the
	// configured strategy to argon2id, and vice versa.
	bc, err := New(Config{Strategy: StrategyBcrypt, BcryptCost: 4})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	ar, err := New(fastArgon2Config())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	bcryptHash, err := bc.Hash("correct horse battery")
	if err != nil {
		t.Fatalf("Hash failed: %v", err)
	}
	argonHash, err := ar.Hash("correct horse battery")
	if err != nil {
		t.Fatalf("Hash failed: %v", err)
	}

	if ok, err := ar.Verify("correct horse battery", bcryptHash); err != nil || !ok {
		t.Fatalf("argon2 config failed to verify bcrypt hash: %v,%v", ok, err)
	}
	if ok, err := bc.Verify("correct horse battery", argonHash); err != nil || !ok {
		t.Fatalf("bcrypt config failed to verify argon2 hash: %v,%v", ok, err)
	}
}

func TestUnknownFormatTag(t *testing.T) {
	hasher, err := New(fastArgon2Config())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if _, err := hasher.Verify("whatever password", "$md5$nope"); err == nil {
		t.Fatal("unknown format tag accepted")
	}
}

func TestConfigValidation(t *testing.T) {
	if _, err := New(Config{Strategy: "scrypt"}); err == nil {
		t.Fatal("unsupported strategy accepted")
	}
	if _, err := New(Config{Strategy: StrategyArgon2id, Memory: 1024}); err == nil {
		t.Fatal("undersized memory accepted")
	}
	if _, err := New(Config{Strategy: StrategyArgon2id, SaltLength: 8}); err == nil {
		t.Fatal("undersized salt accepted")
	}
}
