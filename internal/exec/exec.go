// Package exec dispatches parsed commands against the keyspace and the
// blocked-client registry, and performs the post-mutation wake walk
// that delivers queued BLPOP/BRPOP/XREAD replies. Grounded on
// original_source's commands/executor.rs (dispatch shape) and
// storage/memory/mod.rs's unblock_clients_for_key (consume-in-FIFO-
// order, stop when the key is exhausted).
package exec

import (
	"fmt"
	"strconv"
	"time"

	"github.com/kvsrv/redisd/internal/blocked"
	"github.com/kvsrv/redisd/internal/command"
	"github.com/kvsrv/redisd/internal/geo"
	"github.com/kvsrv/redisd/internal/store"
	"github.com/kvsrv/redisd/internal/streamlog"
)

// BlockSpec describes a park request the reactor must register when
// Outcome.Block is non-nil: the command could not be satisfied
// immediately.
type BlockSpec struct {
	Keys      []string
	Kind      blocked.Kind
	Timeout   time.Duration // 0 means block forever
	StreamIDs map[string]streamlog.Key
}

// WakeEvent is a reply the executor computed for a previously-parked
// client as a side effect of a mutating command; the reactor delivers
// it over the control channel and resumes that connection.
type WakeEvent struct {
	Token uint64
	Reply Reply
}

// Outcome is the result of executing one command. Exactly one of Reply
// or Block is set, except for MULTI/EXEC/DISCARD which exec never
// sees (the reactor's connection FSM intercepts them).
type Outcome struct {
	Reply *Reply
	Block *BlockSpec
	Wakes []WakeEvent
}

func reply(r Reply) Outcome { return Outcome{Reply: &r} }

// Executor runs commands against a single keyspace and blocked-client
// registry. Not safe for concurrent use; the reactor that owns it runs
// on a single goroutine.
type Executor struct {
	KS      *store.Keyspace
	Blocked *blocked.Registry
	Config  store.Config
	Now     func() time.Time
}

// Execute runs cmd for the connection identified by token, returning
// either a reply, a park request, or (for mutating commands) a reply
// plus any wake events for other connections unblocked by the
// mutation.
func (e *Executor) Execute(cmd command.Command, token uint64) Outcome {
	switch c := cmd.(type) {
	case command.Ping:
		if c.Has {
			return reply(Bulk(c.Msg))
		}
		return reply(Simple("PONG"))

	case command.Echo:
		return reply(Bulk(c.Msg))

	case command.Get:
		val, ok, err := e.KS.GetString(c.Key)
		if err != nil {
			return reply(Err(err.Error()))
		}
		if !ok {
			return reply(NullBulk())
		}
		return reply(Bulk(val))

	case command.Set:
		var expireAt *time.Time
		if c.TTL != nil {
			at := e.Now().Add(*c.TTL)
			expireAt = &at
		}
		e.KS.SetString(c.Key, c.Val, expireAt)
		return reply(OK())

	case command.Del:
		var n int64
		for _, k := range c.Keys {
			if e.KS.Delete(k) {
				n++
			}
		}
		return reply(Int(n))

	case command.Exists:
		var n int64
		for _, k := range c.Keys {
			if e.KS.Exists(k) {
				n++
			}
		}
		return reply(Int(n))

	case command.Incr:
		return e.incr(c)

	case command.RPush:
		return e.push(c.Key, c.Vals, false)

	case command.LPush:
		return e.push(c.Key, c.Vals, true)

	case command.LRange:
		return e.lrange(c)

	case command.LLen:
		v, ok, err := e.KS.GetList(c.Key)
		if err != nil {
			return reply(Err(err.Error()))
		}
		if !ok {
			return reply(Int(0))
		}
		return reply(Int(int64(len(v.List))))

	case command.LPop:
		return e.lpop(c)

	case command.BLPop:
		return e.blockingPop(c.Keys, c.Timeout, token, true)

	case command.BRPop:
		return e.blockingPop(c.Keys, c.Timeout, token, false)

	case command.ZAdd:
		return e.zadd(c)

	case command.ZRank:
		v, ok, err := e.KS.GetZSet(c.Key)
		if err != nil {
			return reply(Err(err.Error()))
		}
		if !ok {
			return reply(NullBulk())
		}
		rank, ok := v.ZSet.Rank(c.Member)
		if !ok {
			return reply(NullBulk())
		}
		return reply(Int(int64(rank)))

	case command.ZRange:
		v, ok, err := e.KS.GetZSet(c.Key)
		if err != nil {
			return reply(Err(err.Error()))
		}
		if !ok {
			return reply(Array())
		}
		members := v.ZSet.Range(c.Start, c.End)
		names := make([]string, len(members))
		for i, m := range members {
			names[i] = m.Member
		}
		return reply(BulkArray(names))

	case command.ZCard:
		v, ok, err := e.KS.GetZSet(c.Key)
		if err != nil {
			return reply(Err(err.Error()))
		}
		if !ok {
			return reply(Int(0))
		}
		return reply(Int(int64(v.ZSet.Len())))

	case command.ZScore:
		v, ok, err := e.KS.GetZSet(c.Key)
		if err != nil {
			return reply(Err(err.Error()))
		}
		if !ok {
			return reply(NullBulk())
		}
		score, ok := v.ZSet.Score(c.Member)
		if !ok {
			return reply(NullBulk())
		}
		return reply(Bulk(formatFloat(score)))

	case command.ZRem:
		v, ok, err := e.KS.GetZSet(c.Key)
		if err != nil {
			return reply(Err(err.Error()))
		}
		if !ok {
			return reply(Int(0))
		}
		var n int64
		for _, m := range c.Members {
			if v.ZSet.Remove(m) {
				n++
			}
		}
		return reply(Int(n))

	case command.Type:
		return reply(Simple(e.KS.TypeOf(c.Key)))

	case command.XAdd:
		return e.xadd(c)

	case command.XRange:
		return e.xrange(c)

	case command.XRead:
		return e.xread(c, token)

	case command.GeoAdd:
		return e.geoadd(c)

	case command.GeoPos:
		return e.geopos(c)

	case command.GeoDist:
		return e.geodist(c)

	case command.Keys:
		keys, err := e.KS.Keys(c.Pattern)
		if err != nil {
			return reply(Err("invalid glob pattern"))
		}
		return reply(BulkArray(keys))

	case command.ConfigGet:
		val, ok := e.Config.Get(c.Param)
		if !ok {
			return reply(Array())
		}
		return reply(BulkArray([]string{c.Param, val}))

	default:
		return reply(Err(fmt.Sprintf("command %T not implemented", cmd)))
	}
}

func (e *Executor) incr(c command.Incr) Outcome {
	val, ok, err := e.KS.GetString(c.Key)
	if err != nil {
		return reply(Err(err.Error()))
	}
	var n int64
	if ok {
		n, err = strconv.ParseInt(val, 10, 64)
		if err != nil {
			return reply(Err("value is not an integer or out of range"))
		}
		if n == 1<<63-1 {
			return reply(Err("value is not an integer or out of range"))
		}
		n++
	} else {
		n = 1
	}
	e.KS.SetString(c.Key, strconv.FormatInt(n, 10), nil)
	return reply(Int(n))
}

func (e *Executor) push(key string, vals []string, left bool) Outcome {
	v, err := e.KS.ListForWrite(key)
	if err != nil {
		return reply(Err(err.Error()))
	}
	if left {
		for _, val := range vals {
			v.List = append([]string{val}, v.List...)
		}
	} else {
		v.List = append(v.List, vals...)
	}
	n := int64(len(v.List))
	wakes := e.wakeList(key)
	return Outcome{Reply: replyPtr(Int(n)), Wakes: wakes}
}

func replyPtr(r Reply) *Reply { return &r }

// wakeList serves parked BLPOP/BRPOP clients on key in FIFO order,
// stopping as soon as the list is exhausted; a wake that would empty
// the list as it goes still lets earlier-queued clients each get one
// element first.
func (e *Executor) wakeList(key string) []WakeEvent {
	var wakes []WakeEvent
	for {
		v, ok, err := e.KS.GetList(key)
		if err != nil || !ok || len(v.List) == 0 {
			break
		}
		rec, ok := e.Blocked.PopFront(key)
		if !ok {
			break
		}
		var elem string
		if rec.Kind == blocked.KindListRight {
			elem = v.List[len(v.List)-1]
			v.List = v.List[:len(v.List)-1]
		} else {
			elem = v.List[0]
			v.List = v.List[1:]
		}
		e.KS.DeleteIfEmptyList(key)
		wakes = append(wakes, WakeEvent{Token: rec.Token, Reply: BulkArray([]string{key, elem})})
	}
	return wakes
}

func (e *Executor) lrange(c command.LRange) Outcome {
	v, ok, err := e.KS.GetList(c.Key)
	if err != nil {
		return reply(Err(err.Error()))
	}
	if !ok {
		return reply(Array())
	}
	n := len(v.List)
	start, end := c.Start, c.End
	if start < 0 {
		start += n
	}
	if end < 0 {
		end += n
	}
	if start < 0 {
		start = 0
	}
	if end >= n {
		end = n - 1
	}
	if n == 0 || start > end || start >= n {
		return reply(Array())
	}
	return reply(BulkArray(v.List[start : end+1]))
}

func (e *Executor) lpop(c command.LPop) Outcome {
	v, ok, err := e.KS.GetList(c.Key)
	if err != nil {
		return reply(Err(err.Error()))
	}
	if !ok {
		if c.Count != nil {
			return reply(NullArray())
		}
		return reply(NullBulk())
	}
	if c.Count == nil {
		elem := v.List[0]
		v.List = v.List[1:]
		e.KS.DeleteIfEmptyList(c.Key)
		return reply(Bulk(elem))
	}
	n := *c.Count
	if n > len(v.List) {
		n = len(v.List)
	}
	popped := v.List[:n]
	v.List = v.List[n:]
	e.KS.DeleteIfEmptyList(c.Key)
	return reply(BulkArray(popped))
}

// blockingPop handles BLPOP/BRPOP: scan keys in order for the first
// non-empty list and pop immediately; otherwise park on every key.
func (e *Executor) blockingPop(keys []string, timeout time.Duration, token uint64, left bool) Outcome {
	for _, key := range keys {
		v, ok, err := e.KS.GetList(key)
		if err != nil || !ok || len(v.List) == 0 {
			continue
		}
		var elem string
		if left {
			elem = v.List[0]
			v.List = v.List[1:]
		} else {
			elem = v.List[len(v.List)-1]
			v.List = v.List[:len(v.List)-1]
		}
		e.KS.DeleteIfEmptyList(key)
		return reply(BulkArray([]string{key, elem}))
	}
	kind := blocked.KindListLeft
	if !left {
		kind = blocked.KindListRight
	}
	return Outcome{Block: &BlockSpec{Keys: keys, Kind: kind, Timeout: timeout}}
}

func (e *Executor) zadd(c command.ZAdd) Outcome {
	v, err := e.KS.ZSetForWrite(c.Key)
	if err != nil {
		return reply(Err(err.Error()))
	}
	var added int64
	for _, p := range c.Pairs {
		if v.ZSet.Add(p.Score, p.Member) {
			added++
		}
	}
	return reply(Int(added))
}

func (e *Executor) xadd(c command.XAdd) Outcome {
	v, err := e.KS.StreamForWrite(c.Key)
	if err != nil {
		return reply(Err(err.Error()))
	}
	id, perr := streamlog.ParseID(c.ID, v.Stream.Last, func() uint64 { return uint64(e.Now().UnixMilli()) })
	if perr != nil {
		return reply(Err(perr.Error()))
	}
	if id == (streamlog.Key{}) {
		return reply(Err("The ID specified in XADD must be greater than 0-0"))
	}
	if err := v.Stream.Append(id, c.Fields); err != nil {
		return reply(Err("The ID specified in XADD is equal or smaller than the target stream top item"))
	}
	wakes := e.wakeStream(c.Key)
	return Outcome{Reply: replyPtr(Bulk(id.String())), Wakes: wakes}
}

// wakeStream serves parked XREAD BLOCK clients on key: each parked
// client has its own per-key last-seen id (recorded at park time), so
// unlike list wakes, every waiter can potentially be served regardless
// of order.
func (e *Executor) wakeStream(key string) []WakeEvent {
	var wakes []WakeEvent
	var remaining []*blocked.Record
	for {
		rec, ok := e.Blocked.PopFront(key)
		if !ok {
			break
		}
		lastIDs, _ := rec.Meta.(map[string]streamlog.Key)
		result := e.collectXRead(rec.Keys, lastIDs)
		if result.Kind == RNullArray {
			remaining = append(remaining, rec)
			continue
		}
		wakes = append(wakes, WakeEvent{Token: rec.Token, Reply: result})
	}
	for _, rec := range remaining {
		e.Blocked.Park(rec.Token, rec.Keys, rec.Kind, rec.Deadline, rec.Meta)
	}
	return wakes
}

func (e *Executor) xrange(c command.XRange) Outcome {
	v, ok, err := e.KS.GetStream(c.Key)
	if err != nil {
		return reply(Err(err.Error()))
	}
	if !ok {
		return reply(Array())
	}
	from, ferr := streamlog.ParseRangeBound(c.From, true)
	if ferr != nil {
		return reply(Err("Invalid stream ID specified as stream command argument"))
	}
	to, terr := streamlog.ParseRangeBound(c.To, false)
	if terr != nil {
		return reply(Err("Invalid stream ID specified as stream command argument"))
	}
	entries := v.Stream.Range(from, to)
	return reply(entriesToReply(entries))
}

func entriesToReply(entries []streamlog.Entry) Reply {
	items := make([]Reply, len(entries))
	for i, ent := range entries {
		fields := make([]string, 0, len(ent.Fields)*2)
		for _, f := range ent.Fields {
			fields = append(fields, f.Name, f.Value)
		}
		items[i] = Array(Bulk(ent.Key.String()), BulkArray(fields))
	}
	return Reply{Kind: RArray, Items: items}
}

func (e *Executor) xread(c command.XRead, token uint64) Outcome {
	lastIDs := make(map[string]streamlog.Key, len(c.Keys))
	for i, key := range c.Keys {
		v, ok, err := e.KS.GetStream(key)
		if err != nil {
			return reply(Err(err.Error()))
		}
		id := streamlog.MinKey
		if c.IDs[i] != "$" {
			parsed, perr := streamlog.ParseRangeBound(c.IDs[i], true)
			if perr != nil {
				return reply(Err("Invalid stream ID specified as stream command argument"))
			}
			id = parsed
		} else if ok {
			id = v.Stream.Last
		}
		lastIDs[key] = id
	}

	result := e.collectXRead(c.Keys, lastIDs)
	if result.Kind != RNullArray {
		return reply(result)
	}
	if c.Block == nil {
		return reply(NullArray())
	}
	return Outcome{Block: &BlockSpec{Keys: c.Keys, Kind: blocked.KindStream, Timeout: *c.Block, StreamIDs: lastIDs}}
}

// collectXRead returns the XREAD reply for keys given each key's
// last-seen id, or an RNullArray Reply if nothing new is available.
func (e *Executor) collectXRead(keys []string, lastIDs map[string]streamlog.Key) Reply {
	var perKey []Reply
	for _, key := range keys {
		v, ok, err := e.KS.GetStream(key)
		if err != nil || !ok {
			continue
		}
		entries := v.Stream.After(lastIDs[key])
		if len(entries) == 0 {
			continue
		}
		perKey = append(perKey, Array(Bulk(key), entriesToReply(entries)))
	}
	if len(perKey) == 0 {
		return NullArray()
	}
	return Reply{Kind: RArray, Items: perKey}
}

func (e *Executor) geoadd(c command.GeoAdd) Outcome {
	v, err := e.KS.ZSetForWrite(c.Key)
	if err != nil {
		return reply(Err(err.Error()))
	}
	var added int64
	for _, p := range c.Points {
		if verr := geo.Validate(p.Lon, p.Lat); verr != nil {
			return reply(Err(verr.Error()))
		}
		score := geo.EncodeScore(p.Lon, p.Lat)
		if v.ZSet.Add(score, p.Member) {
			added++
		}
	}
	return reply(Int(added))
}

func (e *Executor) geopos(c command.GeoPos) Outcome {
	v, ok, err := e.KS.GetZSet(c.Key)
	if err != nil {
		return reply(Err(err.Error()))
	}
	items := make([]Reply, len(c.Members))
	for i, m := range c.Members {
		if !ok {
			items[i] = NullArray()
			continue
		}
		score, found := v.ZSet.Score(m)
		if !found {
			items[i] = NullArray()
			continue
		}
		lon, lat := geo.DecodeScore(score)
		items[i] = Array(Bulk(formatFloat(lon)), Bulk(formatFloat(lat)))
	}
	return reply(Reply{Kind: RArray, Items: items})
}

func (e *Executor) geodist(c command.GeoDist) Outcome {
	v, ok, err := e.KS.GetZSet(c.Key)
	if err != nil {
		return reply(Err(err.Error()))
	}
	if !ok {
		return reply(NullBulk())
	}
	s1, ok1 := v.ZSet.Score(c.Member1)
	s2, ok2 := v.ZSet.Score(c.Member2)
	if !ok1 || !ok2 {
		return reply(NullBulk())
	}
	lon1, lat1 := geo.DecodeScore(s1)
	lon2, lat2 := geo.DecodeScore(s2)
	meters := geo.Haversine(lon1, lat1, lon2, lat2)
	dist := convertUnit(meters, c.Unit)
	return reply(Bulk(fmt.Sprintf("%.5f", dist)))
}

func convertUnit(meters float64, unit string) float64 {
	switch unit {
	case "km":
		return meters / 1000
	case "mi":
		return meters / 1609.34
	case "ft":
		return meters * 3.28084
	default:
		return meters
	}
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}
