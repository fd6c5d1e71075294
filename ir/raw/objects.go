package raw

import "sort"

// Concrete implementations for raw objects.

// Name object
type NameObj struct{ Val string }

func (n NameObj) Type() string     { return "name" }
func (n NameObj) IsIndirect() bool { return false }
func (n NameObj) Value() string    { return n.Val }

// Number object
type NumberObj struct {
	I     int64
	F     float64
	IsInt bool
}

func (n NumberObj) Type() string     { return "number" }
func (n NumberObj) IsIndirect() bool { return false }
func (n NumberObj) Int() int64 {
	if n.IsInt {
		return n.I
	}
	return int64(n.F)
}
func (n NumberObj) Float() float64 {
	if n.IsInt {
		return float64(n.I)
	}
	return n.F
}
func (n NumberObj) IsInteger() bool { return n.IsInt }

// Boolean object
type BoolObj struct{ V bool }

func (b BoolObj) Type() string     { return "boolean" }
func (b BoolObj) IsIndirect() bool { return false }
func (b BoolObj) Value() bool      { return b.V }

// Null object
type NullObj struct{}

func (n NullObj) Type() string     { return "null" }
func (n NullObj) IsIndirect() bool { return false }

// String object. Hex only affects how the writer serializes it.
type StringObj struct {
	Bytes []byte
	Hex   bool
}

func (s StringObj) Type() string     { return "string" }
func (s StringObj) IsIndirect() bool { return false }
func (s StringObj) Value() []byte    { return s.Bytes }
func (s StringObj) IsHex() bool      { return s.Hex }

// Array object
type ArrayObj struct{ Items []Object }

func (a *ArrayObj) Type() string     { return "array" }
func (a *ArrayObj) IsIndirect() bool { return false }
func (a *ArrayObj) Get(i int) (Object, bool) {
	if i < 0 || i >= len(a.Items) {
		return nil, false
	}
	return a.Items[i], true
}
func (a *ArrayObj) Len() int        { return len(a.Items) }
func (a *ArrayObj) Append(o Object) { a.Items = append(a.Items, o) }

// Dictionary object
type DictObj struct{ KV map[string]Object }

func (d *DictObj) Type() string     { return "dict" }
func (d *DictObj) IsIndirect() bool { return false }
func (d *DictObj) Get(key Name) (Object, bool) {
	if d == nil {
		return nil, false
	}
	o, ok := d.KV[key.Value()]
	return o, ok
}
func (d *DictObj) Set(key Name, value Object) {
	if d.KV == nil {
		d.KV = make(map[string]Object)
	}
	d.KV[key.Value()] = value
}

// Keys returns the dictionary keys in sorted order.
func (d *DictObj) Keys() []Name {
	if d == nil {
		return nil
	}
	names := make([]string, 0, len(d.KV))
	for k := range d.KV {
		names = append(names, k)
	}
	sort.Strings(names)
	keys := make([]Name, len(names))
	for i, k := range names {
		keys[i] = NameObj{Val: k}
	}
	return keys
}
func (d *DictObj) Len() int {
	if d == nil {
		return 0
	}
	return len(d.KV)
}

// Lookup returns the value stored under key, or nil.
func (d *DictObj) Lookup(key string) Object {
	if d == nil {
		return nil
	}
	return d.KV[key]
}

// Put stores value under key. A nil value deletes the key.
func (d *DictObj) Put(key string, value Object) {
	if value == nil {
		d.Delete(key)
		return
	}
	if d.KV == nil {
		d.KV = make(map[string]Object)
	}
	d.KV[key] = value
}

// Delete removes key from the dictionary.
func (d *DictObj) Delete(key string) {
	if d != nil {
		delete(d.KV, key)
	}
}

// Stream object
type StreamObj struct {
	Dict *DictObj
	Data []byte
}

func (s *StreamObj) Type() string           { return "stream" }
func (s *StreamObj) IsIndirect() bool       { return false }
func (s *StreamObj) Dictionary() Dictionary { return s.Dict }
func (s *StreamObj) RawData() []byte        { return s.Data }
func (s *StreamObj) Length() int64          { return int64(len(s.Data)) }

// Reference object
type RefObj struct{ R ObjectRef }

func (r RefObj) Type() string     { return "ref" }
func (r RefObj) IsIndirect() bool { return true }
func (r RefObj) Ref() ObjectRef   { return r.R }

// Helpers
func NameLiteral(v string) NameObj                    { return NameObj{Val: v} }
func NumberInt(i int64) NumberObj                     { return NumberObj{I: i, IsInt: true} }
func NumberFloat(f float64) NumberObj                 { return NumberObj{F: f, IsInt: false} }
func Bool(v bool) BoolObj                             { return BoolObj{V: v} }
func Str(bytes []byte) StringObj                      { return StringObj{Bytes: bytes} }
func HexStr(bytes []byte) StringObj                   { return StringObj{Bytes: bytes, Hex: true} }
func NewArray(items ...Object) *ArrayObj              { return &ArrayObj{Items: items} }
func Dict() *DictObj                                  { return &DictObj{KV: make(map[string]Object)} }
func NewStream(dict *DictObj, data []byte) *StreamObj { return &StreamObj{Dict: dict, Data: data} }
func Ref(num, gen int) RefObj                         { return RefObj{R: ObjectRef{Num: num, Gen: gen}} }

// Clone returns a deep copy of obj. Stream data is shared because streams are
// never modified in place.
func Clone(obj Object) Object {
	switch t := obj.(type) {
	case *ArrayObj:
		out := &ArrayObj{Items: make([]Object, len(t.Items))}
		for i, it := range t.Items {
			out.Items[i] = Clone(it)
		}
		return out
	case *DictObj:
		return CloneDict(t)
	case *StreamObj:
		return &StreamObj{Dict: CloneDict(t.Dict), Data: t.Data}
	case StringObj:
		return StringObj{Bytes: append([]byte(nil), t.Bytes...), Hex: t.Hex}
	default:
		return obj
	}
}

// CloneDict deep-copies a dictionary. A nil input yields an empty dictionary.
func CloneDict(d *DictObj) *DictObj {
	out := Dict()
	if d == nil {
		return out
	}
	for k, v := range d.KV {
		out.KV[k] = Clone(v)
	}
	return out
}

// Walk calls fn for obj and every object nested in it (not following
// references). Walking stops early when fn returns false for a container.
func Walk(obj Object, fn func(Object) bool) {
	if obj == nil || !fn(obj) {
		return
	}
	switch t := obj.(type) {
	case *ArrayObj:
		for _, it := range t.Items {
			Walk(it, fn)
		}
	case *DictObj:
		for _, v := range t.KV {
			Walk(v, fn)
		}
	case *StreamObj:
		Walk(t.Dict, fn)
	}
}
