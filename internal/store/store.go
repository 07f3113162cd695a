// Package store implements the keyspace: a polymorphic map from string
// keys to typed values (string/list/sorted-set/stream), each with an
// optional absolute expiry checked lazily on access. Because the
// reactor this package is used from runs on a single goroutine
// (internal/reactor), Keyspace needs no internal locking.
package store

import (
	"errors"
	"regexp"
	"strings"
	"time"

	"github.com/kvsrv/redisd/internal/streamlog"
	"github.com/kvsrv/redisd/internal/zset"
)

// Kind identifies which field of a Value is populated.
type Kind int

const (
	KindString Kind = iota
	KindList
	KindZSet
	KindStream
)

// Name returns the lowercase type name used by the TYPE command.
func (k Kind) Name() string {
	switch k {
	case KindString:
		return "string"
	case KindList:
		return "list"
	case KindZSet:
		return "zset"
	case KindStream:
		return "stream"
	default:
		return "none"
	}
}

// Value is one keyspace entry: exactly one of the typed fields matching
// Kind is meaningful.
type Value struct {
	Kind     Kind
	Str      string
	List     []string
	ZSet     *zset.Set
	Stream   *streamlog.Stream
	ExpireAt *time.Time // nil means no expiry
}

func (v *Value) expired(now time.Time) bool {
	return v.ExpireAt != nil && !v.ExpireAt.After(now)
}

// ErrWrongType is returned by the typed accessors when a key holds a
// value of a different kind, matching Redis's WRONGTYPE error.
var ErrWrongType = errors.New("WRONGTYPE Operation against a key holding the wrong kind of value")

// Keyspace is the single database of keyed values.
type Keyspace struct {
	data map[string]*Value
	now  func() time.Time
}

// New returns an empty keyspace. now is injected for testability; pass
// nil to use time.Now.
func New(now func() time.Time) *Keyspace {
	if now == nil {
		now = time.Now
	}
	return &Keyspace{data: make(map[string]*Value), now: now}
}

// get returns the live (non-expired) value for key, lazily deleting it
// first if its expiry has passed.
func (ks *Keyspace) get(key string) (*Value, bool) {
	v, ok := ks.data[key]
	if !ok {
		return nil, false
	}
	if v.expired(ks.now()) {
		delete(ks.data, key)
		return nil, false
	}
	return v, true
}

// Exists reports whether key holds a live value.
func (ks *Keyspace) Exists(key string) bool {
	_, ok := ks.get(key)
	return ok
}

// Delete removes key, returning true if it held a live value.
func (ks *Keyspace) Delete(key string) bool {
	ok := ks.Exists(key)
	delete(ks.data, key)
	return ok
}

// TypeOf returns the type name for key, or "none" if it doesn't exist.
func (ks *Keyspace) TypeOf(key string) string {
	v, ok := ks.get(key)
	if !ok {
		return "none"
	}
	return v.Kind.Name()
}

// SetString stores a plain string value at key, clearing any expiry
// unless expireAt is non-nil.
func (ks *Keyspace) SetString(key, val string, expireAt *time.Time) {
	ks.data[key] = &Value{Kind: KindString, Str: val, ExpireAt: expireAt}
}

// GetString returns key's string value. ok is false if the key is
// absent; err is ErrWrongType if it holds a different kind.
func (ks *Keyspace) GetString(key string) (val string, ok bool, err error) {
	v, ok := ks.get(key)
	if !ok {
		return "", false, nil
	}
	if v.Kind != KindString {
		return "", true, ErrWrongType
	}
	return v.Str, true, nil
}

// ListForWrite returns key's list, creating an empty one if absent. err
// is ErrWrongType if key holds a different kind. Callers that end up
// leaving the list empty must call DeleteIfEmptyList.
func (ks *Keyspace) ListForWrite(key string) (list *Value, err error) {
	v, ok := ks.get(key)
	if !ok {
		v = &Value{Kind: KindList}
		ks.data[key] = v
		return v, nil
	}
	if v.Kind != KindList {
		return nil, ErrWrongType
	}
	return v, nil
}

// GetList returns key's list without creating it if absent.
func (ks *Keyspace) GetList(key string) (list *Value, ok bool, err error) {
	v, ok := ks.get(key)
	if !ok {
		return nil, false, nil
	}
	if v.Kind != KindList {
		return nil, true, ErrWrongType
	}
	return v, true, nil
}

// DeleteIfEmptyList removes key if it holds a list that is now empty,
// per the invariant that list values are never stored empty.
func (ks *Keyspace) DeleteIfEmptyList(key string) {
	if v, ok := ks.data[key]; ok && v.Kind == KindList && len(v.List) == 0 {
		delete(ks.data, key)
	}
}

// ZSetForWrite returns key's sorted set, creating an empty one if
// absent. err is ErrWrongType if key holds a different kind.
func (ks *Keyspace) ZSetForWrite(key string) (z *Value, err error) {
	v, ok := ks.get(key)
	if !ok {
		v = &Value{Kind: KindZSet, ZSet: zset.New()}
		ks.data[key] = v
		return v, nil
	}
	if v.Kind != KindZSet {
		return nil, ErrWrongType
	}
	return v, nil
}

// GetZSet returns key's sorted set without creating it if absent.
func (ks *Keyspace) GetZSet(key string) (z *Value, ok bool, err error) {
	v, ok := ks.get(key)
	if !ok {
		return nil, false, nil
	}
	if v.Kind != KindZSet {
		return nil, true, ErrWrongType
	}
	return v, true, nil
}

// StreamForWrite returns key's stream, creating an empty one if absent.
// err is ErrWrongType if key holds a different kind.
func (ks *Keyspace) StreamForWrite(key string) (s *Value, err error) {
	v, ok := ks.get(key)
	if !ok {
		v = &Value{Kind: KindStream, Stream: streamlog.New()}
		ks.data[key] = v
		return v, nil
	}
	if v.Kind != KindStream {
		return nil, ErrWrongType
	}
	return v, nil
}

// GetStream returns key's stream without creating it if absent.
func (ks *Keyspace) GetStream(key string) (s *Value, ok bool, err error) {
	v, ok := ks.get(key)
	if !ok {
		return nil, false, nil
	}
	if v.Kind != KindStream {
		return nil, true, ErrWrongType
	}
	return v, true, nil
}

// Keys returns every live key matching the glob pattern (`*`, `?`, and
// `[...]` character classes), compiled to a regular expression anchored
// at both ends.
func (ks *Keyspace) Keys(pattern string) ([]string, error) {
	re, err := globToRegexp(pattern)
	if err != nil {
		return nil, err
	}
	now := ks.now()
	out := make([]string, 0, len(ks.data))
	for k, v := range ks.data {
		if v.expired(now) {
			delete(ks.data, k)
			continue
		}
		if re.MatchString(k) {
			out = append(out, k)
		}
	}
	return out, nil
}

// globToRegexp compiles a Redis-style glob pattern into an anchored
// regular expression: `*` -> `.*`, `?` -> `.`, `[...]` passed through
// as a character class, everything else escaped literally.
func globToRegexp(pattern string) (*regexp.Regexp, error) {
	var b strings.Builder
	b.WriteString("^")
	for i := 0; i < len(pattern); i++ {
		c := pattern[i]
		switch c {
		case '*':
			b.WriteString(".*")
		case '?':
			b.WriteString(".")
		case '[':
			j := i + 1
			for j < len(pattern) && pattern[j] != ']' {
				j++
			}
			if j < len(pattern) {
				b.WriteString(pattern[i : j+1])
				i = j
			} else {
				b.WriteString(regexp.QuoteMeta(string(c)))
			}
		default:
			b.WriteString(regexp.QuoteMeta(string(c)))
		}
	}
	b.WriteString("$")
	return regexp.Compile(b.String())
}

// Config holds the server's startup-only configuration values exposed
// through CONFIG GET.
type Config struct {
	Dir        string
	Dbfilename string
}

// Get returns the named config value, if recognized.
func (c Config) Get(name string) (string, bool) {
	switch strings.ToLower(name) {
	case "dir":
		return c.Dir, true
	case "dbfilename":
		return c.Dbfilename, true
	default:
		return "", false
	}
}
