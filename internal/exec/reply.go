package exec

import "strings"

// RKind identifies which field of a Reply is meaningful; mirrors
// internal/resp's frame types plus the null variants RESP2 encodes
// specially.
type RKind int

const (
	RSimple RKind = iota
	RError
	RInteger
	RBulk
	RNullBulk
	RArray
	RNullArray
)

// Reply is a value produced by the executor, encoded onto the wire by
// internal/reactor via internal/resp.Writer.
type Reply struct {
	Kind  RKind
	Str   string
	Int   int64
	Items []Reply
}

func OK() Reply             { return Reply{Kind: RSimple, Str: "OK"} }
func Simple(s string) Reply { return Reply{Kind: RSimple, Str: s} }

// Err builds an error reply, prefixing msg with the generic "ERR " code
// per spec.md §4.1/§7 unless msg already carries its own code (e.g.
// ErrWrongType's "WRONGTYPE …" or the reactor's "EXECABORT …"), which is
// left untouched.
func Err(msg string) Reply {
	if !hasErrorCode(msg) {
		msg = "ERR " + msg
	}
	return Reply{Kind: RError, Str: msg}
}

// hasErrorCode reports whether msg's leading word looks like an error
// code (e.g. "WRONGTYPE", "EXECABORT"): present, followed by a space,
// and all uppercase letters.
func hasErrorCode(msg string) bool {
	sp := strings.IndexByte(msg, ' ')
	if sp <= 0 {
		return false
	}
	code := msg[:sp]
	for _, r := range code {
		if r < 'A' || r > 'Z' {
			return false
		}
	}
	return true
}

func Int(n int64) Reply   { return Reply{Kind: RInteger, Int: n} }
func Bulk(s string) Reply { return Reply{Kind: RBulk, Str: s} }
func NullBulk() Reply     { return Reply{Kind: RNullBulk} }
func NullArray() Reply    { return Reply{Kind: RNullArray} }
func Array(items ...Reply) Reply {
	return Reply{Kind: RArray, Items: items}
}

// BulkArray wraps plain strings as an array of bulk strings.
func BulkArray(vals []string) Reply {
	items := make([]Reply, len(vals))
	for i, v := range vals {
		items[i] = Bulk(v)
	}
	return Reply{Kind: RArray, Items: items}
}
