package exec

import "github.com/kvsrv/redisd/internal/resp"

// Encode appends r's RESP2 wire representation to w.
func Encode(w *resp.Writer, r Reply) {
	switch r.Kind {
	case RSimple:
		w.WriteSimpleString(r.Str)
	case RError:
		w.WriteError(r.Str)
	case RInteger:
		w.WriteInteger(r.Int)
	case RBulk:
		w.WriteBulkStringStr(r.Str)
	case RNullBulk:
		w.WriteNullBulk()
	case RNullArray:
		w.WriteNullArray()
	case RArray:
		w.WriteArrayHeader(len(r.Items))
		for _, item := range r.Items {
			Encode(w, item)
		}
	}
}
