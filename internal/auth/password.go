package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

// ErrInvalidHash is returned for password hashes that are not argon2id PHC strings.
var ErrInvalidHash = errors.New("invalid password hash")

const (
	saltLen = 16

	// maxArgonMemory caps the memory cost (KiB) accepted from configuration.
	maxArgonMemory = 1 << 20
)

type argonParams struct {
	memory  uint32 // KiB
	time    uint32
	threads uint8
	keyLen  uint32
}

// defaultParams are used for new hashes: 64 MiB, 3 passes, 1 lane.
var defaultParams = argonParams{memory: 64 * 1024, time: 3, threads: 1, keyLen: 32}

// weakerThan reports whether p costs less than ref on any axis.
func (p argonParams) weakerThan(ref argonParams) bool {
	return p.memory < ref.memory || p.time < ref.time || p.keyLen < ref.keyLen
}

// phcHash is a decoded $argon2id$v=19$m=..,t=..,p=..$salt$key string.
type phcHash struct {
	params argonParams
	salt   []byte
	key    []byte
}

func (h phcHash) String() string {
	b64 := base64.RawStdEncoding.EncodeToString
	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, h.params.memory, h.params.time, h.params.threads, b64(h.salt), b64(h.key))
}

func (h phcHash) matches(password string) bool {
	p := h.params
	candidate := argon2.IDKey([]byte(password), h.salt, p.time, p.memory, p.threads, p.keyLen)
	return subtle.ConstantTimeCompare(h.key, candidate) == 1
}

// HashPassword returns an argon2id PHC string for password with a fresh
// random salt.
func HashPassword(password string) (string, error) {
	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generating salt: %w", err)
	}
	p := defaultParams
	key := argon2.IDKey([]byte(password), salt, p.time, p.memory, p.threads, p.keyLen)
	return phcHash{params: p, salt: salt, key: key}.String(), nil
}

// VerifyPassword checks password against an argon2id PHC string. A
// malformed hash is an error wrapping ErrInvalidHash, not a mismatch.
func VerifyPassword(password, encoded string) (bool, error) {
	h, err := parsePHC(encoded)
	if err != nil {
		return false, err
	}
	return h.matches(password), nil
}

func parsePHC(encoded string) (phcHash, error) {
	var h phcHash
	invalid := func(format string, args ...any) (phcHash, error) {
		return phcHash{}, fmt.Errorf("%w: "+format, append([]any{ErrInvalidHash}, args...)...)
	}

	fields := strings.Split(encoded, "$")
	if len(fields) != 6 || fields[0] != "" {
		return invalid("want 6 $-separated fields")
	}
	if fields[1] != "argon2id" {
		return invalid("unsupported algorithm %q", fields[1])
	}
	if fields[2] != fmt.Sprintf("v=%d", argon2.Version) {
		return invalid("unsupported version %q", fields[2])
	}

	p := &h.params
	if _, err := fmt.Sscanf(fields[3], "m=%d,t=%d,p=%d", &p.memory, &p.time, &p.threads); err != nil {
		return invalid("parameters %q", fields[3])
	}
	if p.time == 0 || p.threads == 0 || p.memory == 0 || p.memory > maxArgonMemory {
		return invalid("parameters out of range")
	}

	var err error
	if h.salt, err = base64.RawStdEncoding.DecodeString(fields[4]); err != nil {
		return invalid("salt: %v", err)
	}
	if h.key, err = base64.RawStdEncoding.DecodeString(fields[5]); err != nil {
		return invalid("key: %v", err)
	}
	if len(h.key) == 0 {
		return invalid("empty key")
	}
	p.keyLen = uint32(len(h.key)) //nolint:gosec // decoded from a config string
	return h, nil
}
