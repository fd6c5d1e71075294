package optimize

import (
	"context"
	"fmt"

	"github.com/sfdeloach/pdf-tools/filters"
	"github.com/sfdeloach/pdf-tools/ir/raw"
)

// reencodable lists the filters whose output is worth replacing with Flate.
var reencodable = map[string]bool{
	"ASCIIHexDecode":  true,
	"ASCII85Decode":   true,
	"LZWDecode":       true,
	"RunLengthDecode": true,
}

// CompressStreams deflates every stream in store that has no filter and
// re-encodes streams filtered only by ASCII, LZW or run-length filters.
// Streams carrying an image codec or Flate are left alone. It reports the
// number of streams rewritten.
func CompressStreams(ctx context.Context, store *raw.Store, level int) (int, error) {
	n := 0
	for _, ref := range store.Refs() {
		if err := ctx.Err(); err != nil {
			return n, err
		}
		obj, _ := store.Get(ref)
		st, ok := obj.(*raw.StreamObj)
		if !ok {
			continue
		}
		names, _ := filters.ExtractFilters(st.Dict, store.Resolve)
		if !compressible(names) {
			continue
		}
		data := st.Data
		if len(names) > 0 {
			decoded, err := filters.DecodeStream(ctx, st, store.Resolve)
			if err != nil {
				// keep the stream as it is
				continue
			}
			data = decoded
		}
		compressed, err := filters.FlateEncode(data, level)
		if err != nil {
			return n, fmt.Errorf("compress %v: %w", ref, err)
		}
		dict := raw.CloneDict(st.Dict)
		dict.Put("Filter", raw.NameLiteral("FlateDecode"))
		dict.Delete("DecodeParms")
		dict.Delete("DP")
		dict.Put("Length", raw.NumberInt(int64(len(compressed))))
		store.Set(ref, raw.NewStream(dict, compressed))
		n++
	}
	return n, nil
}

func compressible(names []string) bool {
	for _, name := range names {
		if !reencodable[name] {
			return false
		}
	}
	return true
}
