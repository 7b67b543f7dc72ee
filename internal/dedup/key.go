package dedup

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
)

// DefaultKeyLength is the number of hex characters kept from each digest.
// 24 hex chars (96 bits) keeps keys short while collisions stay negligible at
// per-user data volumes.
const DefaultKeyLength = 24

// Generator produces dedup keys truncated to a fixed length
type Generator struct {
	length int
}

// New returns a generator that truncates digests to length hex chars. Values
// outside (0, 64] fall back to DefaultKeyLength.
func New(length int) *Generator {
	if length <= 0 || length > sha256.Size*2 {
		length = DefaultKeyLength
	}
	return &Generator{length: length}
}

// Length returns the truncation length in hex chars
func (g *Generator) Length() int {
	return g.length
}

// Hash returns the truncated sha256 of the stable serialization of payload
func (g *Generator) Hash(payload any) string {
	return sum(serializeOrFallback(payload))[:g.length]
}

// Key returns sha256(file:line:Hash(payload)) truncated to the generator length
func (g *Generator) Key(file string, line int, payload any) string {
	inner := g.Hash(payload)
	return sum([]byte(file + ":" + strconv.Itoa(line) + ":" + inner))[:g.length]
}

var defaultGenerator = New(DefaultKeyLength)

// Key computes a dedup key with the default length
func Key(file string, line int, payload any) string {
	return defaultGenerator.Key(file, line, payload)
}

// Hash computes a payload hash with the default length
func Hash(payload any) string {
	return defaultGenerator.Hash(payload)
}

func sum(data []byte) string {
	digest := sha256.Sum256(data)
	return hex.EncodeToString(digest[:])
}

// serializeOrFallback keeps key derivation total. Payloads are built from plain
// maps and scalars, so the fallback only triggers for programming errors and
// still yields a deterministic value.
func serializeOrFallback(payload any) []byte {
	data, err := StableSerialize(payload)
	if err != nil {
		return []byte(fmt.Sprintf("%#v", payload))
	}
	return data
}
