package raw

import (
	"fmt"
	"sort"
)

// maxResolveDepth bounds chains of references that point at references.
const maxResolveDepth = 32

// Store is an arena of indirect objects addressed by ObjectRef. Object numbers
// handed out by Add grow monotonically and are never reused, even after Delete.
//
// A Store is not safe for concurrent mutation. Concurrent readers are fine as
// long as nobody writes.
type Store struct {
	objects map[ObjectRef]Object
	next    int
}

// NewStore returns an empty arena whose first allocated number is 1.
func NewStore() *Store {
	return &Store{objects: make(map[ObjectRef]Object), next: 1}
}

// NewStoreFrom adopts the objects of a parsed document. Numbering continues
// after the highest object number present.
func NewStoreFrom(objects map[ObjectRef]Object) *Store {
	s := NewStore()
	for ref, obj := range objects {
		s.Set(ref, obj)
	}
	return s
}

// Add stores obj under a fresh object number and returns its reference.
func (s *Store) Add(obj Object) ObjectRef {
	ref := ObjectRef{Num: s.next}
	s.next++
	s.objects[ref] = obj
	return ref
}

// Reserve allocates an object number without storing anything yet. Use Set to
// fill it in; this allows building cyclic structures.
func (s *Store) Reserve() ObjectRef {
	ref := ObjectRef{Num: s.next}
	s.next++
	return ref
}

// Set stores obj under ref, replacing any previous object.
func (s *Store) Set(ref ObjectRef, obj Object) {
	s.objects[ref] = obj
	if ref.Num >= s.next {
		s.next = ref.Num + 1
	}
}

// Get returns the object stored under ref.
func (s *Store) Get(ref ObjectRef) (Object, bool) {
	obj, ok := s.objects[ref]
	return obj, ok
}

// Delete removes ref from the arena. The number is not handed out again.
func (s *Store) Delete(ref ObjectRef) { delete(s.objects, ref) }

// Len returns the number of stored objects.
func (s *Store) Len() int { return len(s.objects) }

// NextNum returns the number the next Add will use.
func (s *Store) NextNum() int { return s.next }

// Refs returns every stored reference in ascending order.
func (s *Store) Refs() []ObjectRef {
	refs := make([]ObjectRef, 0, len(s.objects))
	for ref := range s.objects {
		refs = append(refs, ref)
	}
	sort.Slice(refs, func(i, j int) bool {
		if refs[i].Num != refs[j].Num {
			return refs[i].Num < refs[j].Num
		}
		return refs[i].Gen < refs[j].Gen
	})
	return refs
}

// Resolve follows references until a direct object is reached. Dangling
// references resolve to NullObj, as PDF readers are required to do.
func (s *Store) Resolve(obj Object) Object {
	for i := 0; i < maxResolveDepth; i++ {
		ref, ok := obj.(RefObj)
		if !ok {
			return obj
		}
		target, ok := s.objects[ref.R]
		if !ok {
			return NullObj{}
		}
		obj = target
	}
	return NullObj{}
}

// ResolveDict resolves obj and returns it as a dictionary. The dictionary of a
// stream is returned for stream objects.
func (s *Store) ResolveDict(obj Object) (*DictObj, bool) {
	switch t := s.Resolve(obj).(type) {
	case *DictObj:
		return t, true
	case *StreamObj:
		return t.Dict, t.Dict != nil
	}
	return nil, false
}

// ResolveArray resolves obj and returns it as an array.
func (s *Store) ResolveArray(obj Object) (*ArrayObj, bool) {
	a, ok := s.Resolve(obj).(*ArrayObj)
	return a, ok
}

// ResolveStream resolves obj and returns it as a stream.
func (s *Store) ResolveStream(obj Object) (*StreamObj, bool) {
	st, ok := s.Resolve(obj).(*StreamObj)
	return st, ok
}

// ResolveNumber resolves obj to a float.
func (s *Store) ResolveNumber(obj Object) (float64, bool) {
	n, ok := s.Resolve(obj).(NumberObj)
	if !ok {
		return 0, false
	}
	return n.Float(), true
}

// ResolveName resolves obj to a name value.
func (s *Store) ResolveName(obj Object) (string, bool) {
	n, ok := s.Resolve(obj).(NameObj)
	if !ok {
		return "", false
	}
	return n.Val, true
}

// Copier deep-copies object graphs from one store into another, giving every
// indirect object a fresh number in the destination. A Copier remembers what
// it has already copied, so objects shared between several roots are copied
// once and stay shared.
type Copier struct {
	src, dst *Store
	mapping  map[ObjectRef]ObjectRef
	// Skip lists dictionary keys that are not followed (e.g. "Parent").
	Skip map[string]bool
}

// NewCopier prepares a copy from src into dst.
func NewCopier(src, dst *Store) *Copier {
	return &Copier{src: src, dst: dst, mapping: make(map[ObjectRef]ObjectRef)}
}

// Copy returns a copy of obj valid in the destination store. Every reference
// reachable from obj is rewritten to a newly allocated destination number.
func (c *Copier) Copy(obj Object) (Object, error) {
	return c.copy(obj, 0)
}

// Mapped reports the destination reference assigned to a source reference.
func (c *Copier) Mapped(ref ObjectRef) (ObjectRef, bool) {
	r, ok := c.mapping[ref]
	return r, ok
}

func (c *Copier) copy(obj Object, depth int) (Object, error) {
	if depth > 1024 {
		return nil, fmt.Errorf("object graph too deep")
	}
	switch t := obj.(type) {
	case RefObj:
		if dst, ok := c.mapping[t.R]; ok {
			return RefObj{R: dst}, nil
		}
		target, ok := c.src.Get(t.R)
		if !ok {
			return NullObj{}, nil
		}
		dst := c.dst.Reserve()
		c.mapping[t.R] = dst
		copied, err := c.copy(target, depth+1)
		if err != nil {
			return nil, err
		}
		c.dst.Set(dst, copied)
		return RefObj{R: dst}, nil
	case *ArrayObj:
		out := &ArrayObj{Items: make([]Object, 0, len(t.Items))}
		for _, it := range t.Items {
			cp, err := c.copy(it, depth+1)
			if err != nil {
				return nil, err
			}
			out.Items = append(out.Items, cp)
		}
		return out, nil
	case *DictObj:
		return c.copyDict(t, depth)
	case *StreamObj:
		d, err := c.copyDict(t.Dict, depth)
		if err != nil {
			return nil, err
		}
		return &StreamObj{Dict: d, Data: t.Data}, nil
	default:
		return Clone(obj), nil
	}
}

func (c *Copier) copyDict(d *DictObj, depth int) (*DictObj, error) {
	out := Dict()
	if d == nil {
		return out, nil
	}
	for k, v := range d.KV {
		if c.Skip[k] {
			continue
		}
		cp, err := c.copy(v, depth+1)
		if err != nil {
			return nil, err
		}
		out.KV[k] = cp
	}
	return out, nil
}
