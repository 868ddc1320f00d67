package oops

// Oop is a reference to a heap object. The zero reference is a nil Oop.
type Oop interface {
	Klass() *Klass
	// Handle is the object's narrow encoding; never 0 for a live object.
	Handle() uint32
}

// Array is an Oop with a length.
type Array interface {
	Oop
	Length() int
}

// Decoder resolves narrow handles back to objects.
type Decoder interface {
	Decode(handle uint32) Oop
}

// header is the common object header.
type header struct {
	klass  *Klass
	handle uint32
}

func (h *header) Klass() *Klass  { return h.klass }
func (h *header) Handle() uint32 { return h.handle }

// Instance is an object of an instance klass.
type Instance struct {
	header
}

// NewInstance builds an instance. It is called by Heap implementations.
func NewInstance(k *Klass, handle uint32) *Instance {
	guarantee(k != nil && k.IsInstance(), "NewInstance requires an instance klass")
	return &Instance{header: header{klass: k, handle: handle}}
}

// ObjArray is an array of references. Exactly one of narrow and wide holds
// the slots, depending on whether the heap compresses references.
type ObjArray struct {
	header
	narrow  []uint32
	wide    []Oop
	decoder Decoder
}

// NewObjArray builds a zero-filled reference array. It is called by Heap
// implementations; a non-nil decoder selects narrow slots.
func NewObjArray(k *Klass, length int, handle uint32, decoder Decoder) *ObjArray {
	guarantee(k != nil && k.IsObjArray(), "NewObjArray requires an objArray klass")
	a := &ObjArray{header: header{klass: k, handle: handle}, decoder: decoder}
	if decoder != nil {
		a.narrow = make([]uint32, length)
	} else {
		a.wide = make([]Oop, length)
	}
	return a
}

// Length returns the element count.
func (a *ObjArray) Length() int {
	if a.decoder != nil {
		return len(a.narrow)
	}
	return len(a.wide)
}

// IsNarrow reports whether slots hold compressed handles.
func (a *ObjArray) IsNarrow() bool { return a.decoder != nil }

// ObjAt returns element i.
func (a *ObjArray) ObjAt(i int) Oop {
	if a.decoder != nil {
		return decodeNarrow(a.decoder, a.narrow[i])
	}
	return a.wide[i]
}

// ObjAtPut stores v at element i without a type check.
func (a *ObjArray) ObjAtPut(i int, v Oop) {
	if isNil(v) {
		v = nil
	}
	if a.decoder != nil {
		a.narrow[i] = encodeNarrow(v)
		return
	}
	a.wide[i] = v
}

// Elements returns a snapshot of all elements.
func (a *ObjArray) Elements() []Oop {
	out := make([]Oop, a.Length())
	for i := range out {
		out[i] = a.ObjAt(i)
	}
	return out
}

// TypeArray is a primitive array. Its payload is opaque to this package.
type TypeArray struct {
	header
	data []byte
}

// NewTypeArray builds a zero-filled primitive array.
func NewTypeArray(k *Klass, length int, handle uint32) *TypeArray {
	guarantee(k != nil && k.IsTypeArray(), "NewTypeArray requires a typeArray klass")
	size := length << k.layout.Log2ElementSize()
	return &TypeArray{header: header{klass: k, handle: handle}, data: make([]byte, size)}
}

// Length returns the element count.
func (a *TypeArray) Length() int {
	return len(a.data) >> a.klass.layout.Log2ElementSize()
}

// Bytes returns the raw payload.
func (a *TypeArray) Bytes() []byte { return a.data }

func encodeNarrow(v Oop) uint32 {
	if isNil(v) {
		return 0
	}
	return v.Handle()
}

func decodeNarrow(d Decoder, n uint32) Oop {
	if n == 0 {
		return nil
	}
	return d.Decode(n)
}

// isNil reports whether o is nil or a typed nil pointer.
func isNil(o Oop) bool {
	switch v := o.(type) {
	case nil:
		return true
	case *Instance:
		return v == nil
	case *ObjArray:
		return v == nil
	case *TypeArray:
		return v == nil
	}
	return false
}
