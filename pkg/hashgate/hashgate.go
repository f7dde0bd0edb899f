// Package hashgate performs password hashing and verification behind a
// counting semaphore so that a burst of logins cannot occupy every
// runnable thread with CPU-bound argon2 work and starve the rest of the
// server.
package hashgate

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"

	"golang.org/x/crypto/argon2"
	"golang.org/x/sync/semaphore"
)

// ErrMalformedHash is returned when a stored hash string cannot be parsed.
// It is an internal fault: stored hashes are produced by Hash and should
// always round-trip.
var ErrMalformedHash = errors.New("malformed password hash")

const (
	saltLen = 16
	keyLen  = 32

	// argon2id cost parameters for newly created hashes. Existing hashes
	// carry their own parameters in the encoded string.
	timeCost    = 1
	memoryCost  = 64 * 1024
	threadsCost = 4
)

// Gate bounds concurrent hash and verify operations. Construct one at
// process start and pass it to every call site; the semaphore is the only
// shared mutable state.
type Gate struct {
	sem    *semaphore.Weighted
	pepper []byte

	// inFlight counts operations currently holding a slot; it exists so
	// tests can observe that the admission bound holds.
	inFlight atomic.Int64
}

// New creates a Gate allowing at most maxWorkers concurrent operations.
// The pepper is folded into every hash via an HMAC pre-step, so hashes are
// only verifiable by a process configured with the same pepper.
func New(maxWorkers int64, pepper []byte) *Gate {
	return &Gate{
		sem:    semaphore.NewWeighted(maxWorkers),
		pepper: pepper,
	}
}

// Hash derives an encoded argon2id hash from password using a fresh random
// salt. It blocks until an admission slot is free or ctx is cancelled.
func (g *Gate) Hash(ctx context.Context, password string) (string, error) {
	if err := g.sem.Acquire(ctx, 1); err != nil {
		return "", fmt.Errorf("acquiring hash slot: %w", err)
	}
	defer g.sem.Release(1)

	g.inFlight.Add(1)
	defer g.inFlight.Add(-1)

	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generating salt: %w", err)
	}

	key := argon2.IDKey(
		g.prehash(password), salt, timeCost, memoryCost, threadsCost, keyLen,
	)

	return encodeHash(salt, key, timeCost, memoryCost, threadsCost), nil
}

// Verify reports whether password matches the encoded hash. A mismatch is
// (false, nil); only parse failures and cancellation are errors.
func (g *Gate) Verify(
	ctx context.Context, encoded, password string,
) (bool, error) {
	if err := g.sem.Acquire(ctx, 1); err != nil {
		return false, fmt.Errorf("acquiring hash slot: %w", err)
	}
	defer g.sem.Release(1)

	g.inFlight.Add(1)
	defer g.inFlight.Add(-1)

	salt, key, time, memory, threads, err := decodeHash(encoded)
	if err != nil {
		return false, err
	}

	computed := argon2.IDKey(
		g.prehash(password), salt, time, memory, threads,
		uint32(len(key)), //nolint:gosec // key length is bounded by decode
	)

	return subtle.ConstantTimeCompare(computed, key) == 1, nil
}

// InFlight returns the number of operations currently holding a slot.
func (g *Gate) InFlight() int64 {
	return g.inFlight.Load()
}

// prehash keys the password with the pepper. The stdlib argon2 API has no
// secret input, so the pepper is applied as an HMAC over the password
// before key derivation.
func (g *Gate) prehash(password string) []byte {
	mac := hmac.New(sha256.New, g.pepper)
	mac.Write([]byte(password))

	return mac.Sum(nil)
}

var b64 = base64.RawStdEncoding

// encodeHash renders the standard encoded form,
// $argon2id$v=19$m=..,t=..,p=..$salt$key, so verification can recover the
// parameters and salt from the stored string alone.
func encodeHash(salt, key []byte, time, memory uint32, threads uint8) string {
	return fmt.Sprintf(
		"$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, memory, time, threads,
		b64.EncodeToString(salt), b64.EncodeToString(key),
	)
}

func decodeHash(
	encoded string,
) (salt, key []byte, time, memory uint32, threads uint8, err error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[0] != "" || parts[1] != "argon2id" {
		return nil, nil, 0, 0, 0,
			fmt.Errorf("%w: %q", ErrMalformedHash, encoded)
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil {
		return nil, nil, 0, 0, 0,
			fmt.Errorf("%w: bad version: %q", ErrMalformedHash, parts[2])
	}

	if version != argon2.Version {
		return nil, nil, 0, 0, 0,
			fmt.Errorf("%w: unsupported version %d", ErrMalformedHash, version)
	}

	if _, err := fmt.Sscanf(
		parts[3], "m=%d,t=%d,p=%d", &memory, &time, &threads,
	); err != nil {
		return nil, nil, 0, 0, 0,
			fmt.Errorf("%w: bad parameters: %q", ErrMalformedHash, parts[3])
	}

	salt, err = b64.DecodeString(parts[4])
	if err != nil {
		return nil, nil, 0, 0, 0,
			fmt.Errorf("%w: bad salt encoding", ErrMalformedHash)
	}

	key, err = b64.DecodeString(parts[5])
	if err != nil {
		return nil, nil, 0, 0, 0,
			fmt.Errorf("%w: bad key encoding", ErrMalformedHash)
	}

	return salt, key, time, memory, threads, nil
}
