package password

import (
	"errors"
	"strings"
)

// Strategy selects the hashing algorithm for newly stored credentials.
type Strategy string

const (
	// StrategyArgon2id hashes with argon2id in PHC string format.
	StrategyArgon2id Strategy = "argon2id"
	// StrategyBcrypt hashes with bcrypt.
	StrategyBcrypt Strategy = "bcrypt"
)

// Hasher is the storage contract: Hash produces a self-describing
// encoded string, Verify checks a password against one.
type Hasher interface {
	Hash(password string) (string, error)
	Verify(password, encoded string) (bool, error)
}

// Config selects and tunes exactly one strategy. The choice is
// validated once at startup; there is no runtime fallback chain.
type Config struct {
	Strategy Strategy

	// Argon2id parameters. Zero values take hardened defaults.
	Memory      uint32
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32

	// Bcrypt cost. Zero takes the library default.
	BcryptCost int
}

// New builds the configured Hasher. Verification always dispatches on
// the format tag embedded in the stored hash, so credentials hashed
// under a previous strategy keep verifying after a strategy change.
func New(cfg Config) (Hasher, error) {
	var primary Hasher

	switch cfg.Strategy {
	case StrategyArgon2id, "":
		h, err := newArgon2(cfg)
		if err != nil {
			return nil, err
		}
		primary = h
	case StrategyBcrypt:
		h, err := newBcrypt(cfg.BcryptCost)
		if err != nil {
			return nil, err
		}
		primary = h
	default:
		return nil, errors.New("unsupported password strategy")
	}

	return &tagged{primary: primary}, nil
}

// tagged wraps the configured strategy and dispatches Verify on the
// stored format tag instead of re-detecting the format per call.
type tagged struct {
	primary Hasher
}

func (t *tagged) Hash(password string) (string, error) {
	return t.primary.Hash(password)
}

func (t *tagged) Verify(password, encoded string) (bool, error) {
	switch {
	case strings.HasPrefix(encoded, "$argon2id$"):
		return verifyArgon2(password, encoded)
	case strings.HasPrefix(encoded, "$2a$"),
		strings.HasPrefix(encoded, "$2b$"),
		strings.HasPrefix(encoded, "$2y$"):
		return verifyBcrypt(password, encoded)
	default:
		return false, errors.New("unknown hash format tag")
	}
}
