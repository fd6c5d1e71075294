package filters

import (
	"context"
	"errors"

	"github.com/sfdeloach/pdf-tools/ir/raw"
)

// Resolver maps possibly indirect objects to direct ones.
type Resolver func(raw.Object) raw.Object

func identity(o raw.Object) raw.Object { return o }

// ExtractFilters reads Filter and DecodeParms entries from a stream
// dictionary. The params slice is aligned with the names; entries without
// parameters are nil.
func ExtractFilters(dict raw.Dictionary, resolve Resolver) ([]string, []raw.Dictionary) {
	if resolve == nil {
		resolve = identity
	}
	var names []string
	var params []raw.Dictionary

	filterObj, ok := dict.Get(raw.NameObj{Val: "Filter"})
	if !ok {
		return names, params
	}

	switch f := resolve(filterObj).(type) {
	case raw.Name:
		names = append(names, f.Value())
	case *raw.ArrayObj:
		for _, item := range f.Items {
			if n, ok := resolve(item).(raw.Name); ok {
				names = append(names, n.Value())
			}
		}
	}

	if len(names) > 0 {
		pObj, ok := dict.Get(raw.NameObj{Val: "DecodeParms"})
		if !ok {
			pObj, ok = dict.Get(raw.NameObj{Val: "DP"})
		}
		if ok {
			switch p := resolve(pObj).(type) {
			case *raw.DictObj:
				params = append(params, p)
			case *raw.ArrayObj:
				for _, item := range p.Items {
					d, _ := resolve(item).(*raw.DictObj)
					if d == nil {
						params = append(params, nil)
						continue
					}
					params = append(params, d)
				}
			}
		}
	}

	return names, params
}

var defaultPipeline = NewDefaultPipeline(DefaultLimits())

// DecodeStream returns the fully decoded data of s. For image streams the
// result stops before the image codec and ErrImageFilter is returned
// together with the codec name and its parameters through ImageData.
func DecodeStream(ctx context.Context, s *raw.StreamObj, resolve Resolver) ([]byte, error) {
	names, params := ExtractFilters(s.Dict, resolve)
	if len(names) == 0 {
		return s.Data, nil
	}
	return defaultPipeline.Decode(ctx, s.Data, names, params)
}

// ImageData decodes every non-image filter of s and reports the image codec
// that remains, if any.
func ImageData(ctx context.Context, s *raw.StreamObj, resolve Resolver) (data []byte, codec string, params raw.Dictionary, err error) {
	names, ps := ExtractFilters(s.Dict, resolve)
	data, err = defaultPipeline.Decode(ctx, s.Data, names, ps)
	if err == nil {
		return data, "", nil, nil
	}
	if !errors.Is(err, ErrImageFilter) {
		return nil, "", nil, err
	}
	for i, n := range names {
		if IsImageFilter(n) {
			codec = n
			if i < len(ps) {
				params = ps[i]
			}
			break
		}
	}
	return data, codec, params, nil
}
