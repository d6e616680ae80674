// Package ident mints and validates mahavishnu identifiers.
//
// An identifier is 26 characters of lowercase Crockford base32: the first
// 10 characters encode a millisecond Unix timestamp big-endian, the
// remaining 16 encode 80 random bits. Identifiers sort lexicographically
// by creation time.
package ident

import (
	"crypto/rand"
	"fmt"
	"sync"
	"time"

	"github.com/mahavishnu/mahavishnu/internal/errors"
)

// Alphabet is lowercase Crockford base32: digits plus letters excluding
// i, l, o and u.
const Alphabet = "0123456789abcdefghjkmnpqrstvwxyz"

const (
	// Length is the total identifier length.
	Length = 26
	// timeLen is the number of leading timestamp characters.
	timeLen = 10
	// randLen is the number of trailing entropy characters.
	randLen = 16

	// DefaultRewindSlack is how far the clock may move backward between
	// calls before generation fails.
	DefaultRewindSlack = 50 * time.Millisecond
)

// decode maps alphabet bytes back to their 5-bit values; -1 marks
// characters outside the alphabet.
var decode [256]int8

func init() {
	for i := range decode {
		decode[i] = -1
	}
	for i := 0; i < len(Alphabet); i++ {
		decode[Alphabet[i]] = int8(i)
	}
}

// Generator mints identifiers. Safe for concurrent use; two calls within
// the same millisecond on one generator produce distinct identifiers whose
// lexicographic order matches call order.
type Generator struct {
	mu          sync.Mutex
	lastMillis  int64
	lastEntropy [randLen]byte // 5-bit values, big-endian
	rewindSlack time.Duration
	now         func() time.Time
}

// Option configures a Generator.
type Option func(*Generator)

// WithRewindSlack sets the tolerated backward clock drift.
func WithRewindSlack(d time.Duration) Option {
	return func(g *Generator) { g.rewindSlack = d }
}

// WithClock overrides the time source. Used by tests.
func WithClock(now func() time.Time) Option {
	return func(g *Generator) { g.now = now }
}

// NewGenerator creates an identifier generator.
func NewGenerator(opts ...Option) *Generator {
	g := &Generator{
		rewindSlack: DefaultRewindSlack,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Generate returns a fresh identifier. It fails with a CLOCK_REWIND error
// only if the system clock moved backward more than the configured slack
// since the previous call.
func (g *Generator) Generate() (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	millis := g.now().UnixMilli()
	switch {
	case millis > g.lastMillis:
		g.lastMillis = millis
		if err := g.freshEntropy(); err != nil {
			return "", err
		}
	case millis == g.lastMillis:
		g.incrementEntropy()
	default:
		if time.Duration(g.lastMillis-millis)*time.Millisecond > g.rewindSlack {
			return "", errors.Newf(errors.CodeClockRewind,
				"clock moved backward %dms, beyond %s slack",
				g.lastMillis-millis, g.rewindSlack)
		}
		// Within slack: reuse the last timestamp so ordering holds.
		g.incrementEntropy()
	}

	var buf [Length]byte
	encodeTimestamp(buf[:timeLen], g.lastMillis)
	for i, v := range g.lastEntropy {
		buf[timeLen+i] = Alphabet[v]
	}
	return string(buf[:]), nil
}

// freshEntropy draws 16 new random 5-bit values. Called with mu held.
func (g *Generator) freshEntropy() error {
	var raw [randLen]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return errors.New(errors.CodeInternal, "read entropy").WithCause(err)
	}
	for i, b := range raw {
		g.lastEntropy[i] = b & 0x1f
	}
	return nil
}

// incrementEntropy bumps the entropy as a base-32 counter so same-millisecond
// identifiers remain strictly increasing. Called with mu held.
func (g *Generator) incrementEntropy() {
	for i := randLen - 1; i >= 0; i-- {
		g.lastEntropy[i]++
		if g.lastEntropy[i] < 32 {
			return
		}
		g.lastEntropy[i] = 0
	}
	// Counter wrapped within one millisecond (2^80 draws). Advance the
	// timestamp rather than repeat an identifier.
	g.lastMillis++
}

// encodeTimestamp writes millis as 10 base-32 characters, big-endian.
func encodeTimestamp(dst []byte, millis int64) {
	for i := timeLen - 1; i >= 0; i-- {
		dst[i] = Alphabet[millis&0x1f]
		millis >>= 5
	}
}

// Validate reports whether id is a well-formed identifier: exactly 26
// characters, all from the lowercase Crockford alphabet.
func Validate(id string) bool {
	if len(id) != Length {
		return false
	}
	for i := 0; i < len(id); i++ {
		if decode[id[i]] < 0 {
			return false
		}
	}
	return true
}

// Timestamp extracts the creation instant from a valid identifier.
func Timestamp(id string) (time.Time, error) {
	if !Validate(id) {
		return time.Time{}, errors.ErrInvalidIdentifier(id)
	}
	var millis int64
	for i := 0; i < timeLen; i++ {
		millis = millis<<5 | int64(decode[id[i]])
	}
	return time.UnixMilli(millis).UTC(), nil
}

// MustGenerate returns a fresh identifier and panics on failure. Intended
// for wiring code where a rewound clock is unrecoverable anyway.
func (g *Generator) MustGenerate() string {
	id, err := g.Generate()
	if err != nil {
		panic(fmt.Sprintf("ident: %v", err))
	}
	return id
}
