package password

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"golang.org/x/crypto/argon2"
)

const (
	minMemoryKB    uint32 = 8 * 1024
	minTimeCost    uint32 = 1
	minParallelism uint8  = 1
	minSaltLength  uint32 = 16
	minKeyLength   uint32 = 16
	algorithmID           = "argon2id"
)

var (
	// ErrMalformedHash is returned when a stored hash is not a parseable argon2id PHC string.
	ErrMalformedHash = errors.New("malformed password hash")
	// ErrEmptyPassword is returned when hashing an empty password.
	ErrEmptyPassword = errors.New("empty password")
)

// Config holds the Argon2id cost parameters used for new hashes.
type Config struct {
	Memory      uint32
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// Hasher produces and verifies Argon2id password hashes.
type Hasher struct {
	config Config
}

type params struct {
	memory      uint32
	time        uint32
	parallelism uint8
}

type encodedHash struct {
	params
	salt []byte
	key  []byte
}

// NewHasher validates cfg and returns a Hasher using it for every new hash.
func NewHasher(cfg Config) (*Hasher, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &Hasher{config: cfg}, nil
}

// Hash derives a salted Argon2id key from plain and encodes it as a PHC string.
// Passwords are hashed as raw bytes; no Unicode normalization is applied.
func (h *Hasher) Hash(plain string) (string, error) {
	if plain == "" {
		return "", ErrEmptyPassword
	}

	salt := make([]byte, h.config.SaltLength)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return "", fmt.Errorf("read salt: %w", err)
	}

	p := params{memory: h.config.Memory, time: h.config.Time, parallelism: h.config.Parallelism}
	key := p.derive(plain, salt, h.config.KeyLength)

	return fmt.Sprintf(
		"$%s$v=%d$m=%d,t=%d,p=%d$%s$%s",
		algorithmID,
		argon2.Version,
		p.memory,
		p.time,
		p.parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

// Verify reports whether plain matches the stored hash. A malformed stored
// hash is an error, a mismatch is not.
func (h *Hasher) Verify(plain, stored string) (bool, error) {
	decoded, err := decodeHash(stored)
	if err != nil {
		return false, err
	}

	computed := decoded.derive(plain, decoded.salt, uint32(len(decoded.key)))
	return subtle.ConstantTimeCompare(computed, decoded.key) == 1, nil
}

// NeedsUpgrade reports whether stored was produced with weaker parameters
// than the hasher's current configuration.
func (h *Hasher) NeedsUpgrade(stored string) (bool, error) {
	decoded, err := decodeHash(stored)
	if err != nil {
		return false, err
	}

	switch {
	case h.config.Memory > decoded.memory,
		h.config.Time > decoded.time,
		h.config.Parallelism > decoded.parallelism,
		h.config.KeyLength != uint32(len(decoded.key)):
		return true, nil
	}
	return false, nil
}

func (p params) derive(plain string, salt []byte, keyLen uint32) []byte {
	return argon2.IDKey([]byte(plain), salt, p.time, p.memory, p.parallelism, keyLen)
}

func decodeHash(stored string) (*encodedHash, error) {
	parts := strings.Split(stored, "$")
	if len(parts) != 6 || parts[0] != "" || parts[1] != algorithmID {
		return nil, ErrMalformedHash
	}

	version, ok := strings.CutPrefix(parts[2], "v=")
	if !ok || version != strconv.Itoa(argon2.Version) {
		return nil, fmt.Errorf("%w: unsupported version", ErrMalformedHash)
	}

	p, err := decodeParams(parts[3])
	if err != nil {
		return nil, err
	}

	salt, err := decodeSegment(parts[4])
	if err != nil || len(salt) < int(minSaltLength) {
		return nil, fmt.Errorf("%w: bad salt", ErrMalformedHash)
	}
	key, err := decodeSegment(parts[5])
	if err != nil || len(key) == 0 {
		return nil, fmt.Errorf("%w: bad key", ErrMalformedHash)
	}

	return &encodedHash{params: p, salt: salt, key: key}, nil
}

// decodeSegment accepts both unpadded (PHC) and padded base64.
func decodeSegment(s string) ([]byte, error) {
	if strings.HasSuffix(s, "=") {
		return base64.StdEncoding.DecodeString(s)
	}
	return base64.RawStdEncoding.DecodeString(s)
}

func decodeParams(segment string) (params, error) {
	var (
		p    params
		seen = map[string]bool{}
	)

	for _, pair := range strings.Split(segment, ",") {
		name, raw, ok := strings.Cut(pair, "=")
		if !ok || seen[name] {
			return params{}, fmt.Errorf("%w: bad parameter %q", ErrMalformedHash, pair)
		}
		seen[name] = true

		switch name {
		case "m":
			v, err := strconv.ParseUint(raw, 10, 32)
			if err != nil || uint32(v) < minMemoryKB {
				return params{}, fmt.Errorf("%w: bad memory", ErrMalformedHash)
			}
			p.memory = uint32(v)
		case "t":
			v, err := strconv.ParseUint(raw, 10, 32)
			if err != nil || uint32(v) < minTimeCost {
				return params{}, fmt.Errorf("%w: bad time", ErrMalformedHash)
			}
			p.time = uint32(v)
		case "p":
			v, err := strconv.ParseUint(raw, 10, 8)
			if err != nil || uint8(v) < minParallelism {
				return params{}, fmt.Errorf("%w: bad parallelism", ErrMalformedHash)
			}
			p.parallelism = uint8(v)
		default:
			return params{}, fmt.Errorf("%w: unknown parameter %q", ErrMalformedHash, name)
		}
	}

	if len(seen) != 3 {
		return params{}, fmt.Errorf("%w: missing parameters", ErrMalformedHash)
	}
	return p, nil
}

func (c Config) validate() error {
	switch {
	case c.Memory < minMemoryKB:
		return errors.New("password memory must be >= 8192 KB")
	case c.Time < minTimeCost:
		return errors.New("password time must be >= 1")
	case c.Parallelism < minParallelism:
		return errors.New("password parallelism must be >= 1")
	case c.SaltLength < minSaltLength:
		return errors.New("password salt length must be >= 16")
	case c.KeyLength < minKeyLength:
		return errors.New("password key length must be >= 16")
	}
	return nil
}
