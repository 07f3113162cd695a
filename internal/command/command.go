// Package command turns already-framed argv slices into a closed set
// of typed command values, validating arity, integer/float arguments,
// and trailing options (EX/PX, BLOCK, count) at parse time rather than
// at execution time. Grounded on original_source's commands/parser.rs
// (validate-then-dispatch split) and the teacher's per-command arity
// checks in diyredis/commands.go.
package command

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/kvsrv/redisd/internal/streamlog"
)

// Command is the closed sum of parsed commands; each concrete type
// below implements it.
type Command interface {
	commandMarker()
}

type base struct{}

func (base) commandMarker() {}

type (
	Ping struct {
		base
		Msg string // optional PING message argument, "" if absent
		Has bool
	}
	Echo struct {
		base
		Msg string
	}
	Get struct {
		base
		Key string
	}
	Set struct {
		base
		Key, Val string
		TTL      *time.Duration // nil clears any existing expiry
	}
	Del struct {
		base
		Keys []string
	}
	Exists struct {
		base
		Keys []string
	}
	Incr struct {
		base
		Key string
	}
	RPush struct {
		base
		Key  string
		Vals []string
	}
	LPush struct {
		base
		Key  string
		Vals []string
	}
	LRange struct {
		base
		Key        string
		Start, End int
	}
	LLen struct {
		base
		Key string
	}
	LPop struct {
		base
		Key   string
		Count *int
	}
	BLPop struct {
		base
		Keys    []string
		Timeout time.Duration // 0 means block forever
	}
	BRPop struct {
		base
		Keys    []string
		Timeout time.Duration
	}
	ZPair struct {
		Score  float64
		Member string
	}
	ZAdd struct {
		base
		Key   string
		Pairs []ZPair
	}
	ZRank struct {
		base
		Key, Member string
	}
	ZRange struct {
		base
		Key        string
		Start, End int
	}
	ZCard struct {
		base
		Key string
	}
	ZScore struct {
		base
		Key, Member string
	}
	ZRem struct {
		base
		Key     string
		Members []string
	}
	Type struct {
		base
		Key string
	}
	XAdd struct {
		base
		Key    string
		ID     string
		Fields []streamlog.Field
	}
	XRange struct {
		base
		Key, From, To string
	}
	XRead struct {
		base
		Keys  []string
		IDs   []string
		Block *time.Duration // nil means non-blocking; 0 means block forever
	}
	GeoPoint struct {
		Lon, Lat float64
		Member   string
	}
	GeoAdd struct {
		base
		Key    string
		Points []GeoPoint
	}
	GeoPos struct {
		base
		Key     string
		Members []string
	}
	GeoDist struct {
		base
		Key, Member1, Member2 string
		Unit                  string
	}
	Keys struct {
		base
		Pattern string
	}
	ConfigGet struct {
		base
		Param string
	}
	Multi struct{ base }
	Exec  struct{ base }
	Discard struct{ base }
)

// ParseError is returned for malformed commands; Msg is the exact
// client-facing error text (without the leading "-ERR ").
type ParseError struct{ Msg string }

func (e *ParseError) Error() string { return e.Msg }

func errf(format string, args ...any) error {
	return &ParseError{Msg: fmt.Sprintf(format, args...)}
}

func wrongArgs(name string) error {
	return errf("wrong number of arguments for '%s' command", strings.ToLower(name))
}

// Parse validates argv (already split into command name + arguments)
// and returns the matching Command, or a ParseError.
func Parse(argv []string) (Command, error) {
	if len(argv) == 0 {
		return nil, errf("empty command")
	}
	name := strings.ToUpper(argv[0])
	args := argv[1:]

	switch name {
	case "PING":
		if len(args) > 1 {
			return nil, wrongArgs(name)
		}
		if len(args) == 1 {
			return Ping{Msg: args[0], Has: true}, nil
		}
		return Ping{}, nil

	case "ECHO":
		if len(args) != 1 {
			return nil, wrongArgs(name)
		}
		return Echo{Msg: args[0]}, nil

	case "GET":
		if len(args) != 1 {
			return nil, wrongArgs(name)
		}
		return Get{Key: args[0]}, nil

	case "SET":
		return parseSet(args)

	case "DEL":
		if len(args) < 1 {
			return nil, wrongArgs(name)
		}
		return Del{Keys: args}, nil

	case "EXISTS":
		if len(args) < 1 {
			return nil, wrongArgs(name)
		}
		return Exists{Keys: args}, nil

	case "INCR":
		if len(args) != 1 {
			return nil, wrongArgs(name)
		}
		return Incr{Key: args[0]}, nil

	case "RPUSH":
		if len(args) < 2 {
			return nil, wrongArgs(name)
		}
		return RPush{Key: args[0], Vals: args[1:]}, nil

	case "LPUSH":
		if len(args) < 2 {
			return nil, wrongArgs(name)
		}
		return LPush{Key: args[0], Vals: args[1:]}, nil

	case "LRANGE":
		if len(args) != 3 {
			return nil, wrongArgs(name)
		}
		start, end, err := parseIntPair(args[1], args[2])
		if err != nil {
			return nil, err
		}
		return LRange{Key: args[0], Start: start, End: end}, nil

	case "LLEN":
		if len(args) != 1 {
			return nil, wrongArgs(name)
		}
		return LLen{Key: args[0]}, nil

	case "LPOP":
		if len(args) < 1 || len(args) > 2 {
			return nil, wrongArgs(name)
		}
		var count *int
		if len(args) == 2 {
			n, err := strconv.Atoi(args[1])
			if err != nil || n < 0 {
				return nil, errf("value is not an integer or out of range")
			}
			count = &n
		}
		return LPop{Key: args[0], Count: count}, nil

	case "BLPOP", "BRPOP":
		if len(args) < 2 {
			return nil, wrongArgs(name)
		}
		timeout, err := parseTimeoutSeconds(args[len(args)-1])
		if err != nil {
			return nil, err
		}
		keys := args[:len(args)-1]
		if name == "BLPOP" {
			return BLPop{Keys: keys, Timeout: timeout}, nil
		}
		return BRPop{Keys: keys, Timeout: timeout}, nil

	case "ZADD":
		if len(args) < 3 || (len(args)-1)%2 != 0 {
			return nil, wrongArgs(name)
		}
		pairs := make([]ZPair, 0, (len(args)-1)/2)
		for i := 1; i < len(args); i += 2 {
			score, err := strconv.ParseFloat(args[i], 64)
			if err != nil {
				return nil, errf("value is not a valid float")
			}
			pairs = append(pairs, ZPair{Score: score, Member: args[i+1]})
		}
		return ZAdd{Key: args[0], Pairs: pairs}, nil

	case "ZRANK":
		if len(args) != 2 {
			return nil, wrongArgs(name)
		}
		return ZRank{Key: args[0], Member: args[1]}, nil

	case "ZRANGE":
		if len(args) != 3 {
			return nil, wrongArgs(name)
		}
		start, end, err := parseIntPair(args[1], args[2])
		if err != nil {
			return nil, err
		}
		return ZRange{Key: args[0], Start: start, End: end}, nil

	case "ZCARD":
		if len(args) != 1 {
			return nil, wrongArgs(name)
		}
		return ZCard{Key: args[0]}, nil

	case "ZSCORE":
		if len(args) != 2 {
			return nil, wrongArgs(name)
		}
		return ZScore{Key: args[0], Member: args[1]}, nil

	case "ZREM":
		if len(args) < 2 {
			return nil, wrongArgs(name)
		}
		return ZRem{Key: args[0], Members: args[1:]}, nil

	case "TYPE":
		if len(args) != 1 {
			return nil, wrongArgs(name)
		}
		return Type{Key: args[0]}, nil

	case "XADD":
		if len(args) < 4 || (len(args)-2)%2 != 0 {
			return nil, wrongArgs(name)
		}
		fields := make([]streamlog.Field, 0, (len(args)-2)/2)
		for i := 2; i < len(args); i += 2 {
			fields = append(fields, streamlog.Field{Name: args[i], Value: args[i+1]})
		}
		return XAdd{Key: args[0], ID: args[1], Fields: fields}, nil

	case "XRANGE":
		if len(args) != 3 {
			return nil, wrongArgs(name)
		}
		return XRange{Key: args[0], From: args[1], To: args[2]}, nil

	case "XREAD":
		return parseXRead(args)

	case "GEOADD":
		if len(args) < 4 || (len(args)-1)%3 != 0 {
			return nil, wrongArgs(name)
		}
		points := make([]GeoPoint, 0, (len(args)-1)/3)
		for i := 1; i < len(args); i += 3 {
			lon, err := strconv.ParseFloat(args[i], 64)
			if err != nil {
				return nil, errf("value is not a valid float")
			}
			lat, err := strconv.ParseFloat(args[i+1], 64)
			if err != nil {
				return nil, errf("value is not a valid float")
			}
			points = append(points, GeoPoint{Lon: lon, Lat: lat, Member: args[i+2]})
		}
		return GeoAdd{Key: args[0], Points: points}, nil

	case "GEOPOS":
		if len(args) < 1 {
			return nil, wrongArgs(name)
		}
		return GeoPos{Key: args[0], Members: args[1:]}, nil

	case "GEODIST":
		if len(args) < 3 || len(args) > 4 {
			return nil, wrongArgs(name)
		}
		unit := "m"
		if len(args) == 4 {
			unit = strings.ToLower(args[3])
		}
		return GeoDist{Key: args[0], Member1: args[1], Member2: args[2], Unit: unit}, nil

	case "KEYS":
		if len(args) != 1 {
			return nil, wrongArgs(name)
		}
		return Keys{Pattern: args[0]}, nil

	case "CONFIG":
		if len(args) != 2 || strings.ToUpper(args[0]) != "GET" {
			return nil, errf("unsupported CONFIG subcommand")
		}
		return ConfigGet{Param: args[1]}, nil

	case "MULTI":
		if len(args) != 0 {
			return nil, wrongArgs(name)
		}
		return Multi{}, nil

	case "EXEC":
		if len(args) != 0 {
			return nil, wrongArgs(name)
		}
		return Exec{}, nil

	case "DISCARD":
		if len(args) != 0 {
			return nil, wrongArgs(name)
		}
		return Discard{}, nil

	default:
		return nil, errf("unknown command '%s'", argv[0])
	}
}

func parseSet(args []string) (Command, error) {
	if len(args) < 2 {
		return nil, wrongArgs("SET")
	}
	cmd := Set{Key: args[0], Val: args[1]}
	if len(args) == 2 {
		return cmd, nil
	}
	if len(args) != 4 {
		return nil, errf("syntax error")
	}
	opt := strings.ToUpper(args[2])
	n, err := strconv.ParseInt(args[3], 10, 64)
	if err != nil {
		return nil, errf("value is not an integer or out of range")
	}
	var ttl time.Duration
	switch opt {
	case "EX":
		ttl = time.Duration(n) * time.Second
	case "PX":
		ttl = time.Duration(n) * time.Millisecond
	default:
		return nil, errf("syntax error")
	}
	cmd.TTL = &ttl
	return cmd, nil
}

func parseXRead(args []string) (Command, error) {
	var block *time.Duration
	i := 0
	if len(args) >= 2 && strings.ToUpper(args[0]) == "BLOCK" {
		ms, err := strconv.ParseInt(args[1], 10, 64)
		if err != nil || ms < 0 {
			return nil, errf("timeout is not an integer or out of range")
		}
		d := time.Duration(ms) * time.Millisecond
		block = &d
		i = 2
	}
	if len(args)-i < 3 || strings.ToUpper(args[i]) != "STREAMS" {
		return nil, wrongArgs("XREAD")
	}
	rest := args[i+1:]
	if len(rest)%2 != 0 {
		return nil, errf("Unbalanced XREAD list of streams: for each stream key an ID or '$' must be specified.")
	}
	half := len(rest) / 2
	return XRead{Keys: rest[:half], IDs: rest[half:], Block: block}, nil
}

func parseIntPair(a, b string) (int, int, error) {
	x, err := strconv.Atoi(a)
	if err != nil {
		return 0, 0, errf("value is not an integer or out of range")
	}
	y, err := strconv.Atoi(b)
	if err != nil {
		return 0, 0, errf("value is not an integer or out of range")
	}
	return x, y, nil
}

func parseTimeoutSeconds(raw string) (time.Duration, error) {
	secs, err := strconv.ParseFloat(raw, 64)
	if err != nil || secs < 0 {
		return 0, errf("timeout is not a float or out of range")
	}
	return time.Duration(secs * float64(time.Second)), nil
}
