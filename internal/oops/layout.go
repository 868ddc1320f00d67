package oops

import "fmt"

// BasicType identifies the element kind of an array slot.
type BasicType uint8

const (
	TBoolean BasicType = iota + 4
	TChar
	TFloat
	TDouble
	TByte
	TShort
	TInt
	TLong
	TObject
)

var basicTypeInfo = map[BasicType]struct {
	name       string
	descriptor byte
	log2Size   uint8
}{
	TBoolean: {"boolean", 'Z', 0},
	TChar:    {"char", 'C', 1},
	TFloat:   {"float", 'F', 2},
	TDouble:  {"double", 'D', 3},
	TByte:    {"byte", 'B', 0},
	TShort:   {"short", 'S', 1},
	TInt:     {"int", 'I', 2},
	TLong:    {"long", 'J', 3},
	TObject:  {"object", 'L', 3},
}

// PrimitiveTypes lists the basic types that have a type-array klass, in
// bootstrap order.
var PrimitiveTypes = []BasicType{TBoolean, TChar, TFloat, TDouble, TByte, TShort, TInt, TLong}

// Name returns the language name of the type ("int").
func (t BasicType) Name() string {
	if info, ok := basicTypeInfo[t]; ok {
		return info.name
	}
	return fmt.Sprintf("basic(%d)", uint8(t))
}

// Descriptor returns the one-letter descriptor ('I').
func (t BasicType) Descriptor() byte {
	return basicTypeInfo[t].descriptor
}

// BasicTypeForDescriptor maps a descriptor letter back to a primitive type.
func BasicTypeForDescriptor(c byte) (BasicType, bool) {
	for _, t := range PrimitiveTypes {
		if basicTypeInfo[t].descriptor == c {
			return t, true
		}
	}
	return 0, false
}

// Reference slot sizes.
const (
	narrowOopSize = 4
	wideOopSize   = 8

	// arrayHeaderSize is the byte offset of element 0: mark word, klass
	// word and length, rounded to 8.
	arrayHeaderSize = 16

	// instanceHeaderSize is the size of an instance with no fields.
	instanceHeaderSize = 16
)

// LayoutHelper packs the array layout of a klass into one word:
//
//	bits 31-30  tag (objArray 0b10, typeArray 0b11)
//	bit  29     null-free
//	bits 23-16  header size in bytes
//	bits 15-8   element basic type
//	bits 7-0    log2 of element size
//
// Instance klasses have a layout helper equal to their instance size.
type LayoutHelper uint32

const (
	lhTagObjArray  = 0b10
	lhTagTypeArray = 0b11
	lhTagShift     = 30
	lhNullFreeBit  = 1 << 29
	lhHeaderShift  = 16
	lhTypeShift    = 8
)

func arrayLayoutHelper(t BasicType, narrow bool) LayoutHelper {
	tag := uint32(lhTagTypeArray)
	log2 := basicTypeInfo[t].log2Size
	if t == TObject {
		tag = lhTagObjArray
		if narrow {
			log2 = 2
		} else {
			log2 = 3
		}
	}
	return LayoutHelper(tag<<lhTagShift |
		uint32(arrayHeaderSize)<<lhHeaderShift |
		uint32(t)<<lhTypeShift |
		uint32(log2))
}

// IsArray reports whether the helper describes an array layout.
func (lh LayoutHelper) IsArray() bool { return uint32(lh)>>lhTagShift >= lhTagObjArray }

// IsObjArray reports whether the helper describes a reference array.
func (lh LayoutHelper) IsObjArray() bool { return uint32(lh)>>lhTagShift == lhTagObjArray }

// IsNullFree reports whether the null-free bit is set.
func (lh LayoutHelper) IsNullFree() bool { return uint32(lh)&lhNullFreeBit != 0 }

// WithNullFree returns the helper with the null-free bit set.
func (lh LayoutHelper) WithNullFree() LayoutHelper { return lh | lhNullFreeBit }

// HeaderSize returns the byte offset of the first element.
func (lh LayoutHelper) HeaderSize() int { return int(uint32(lh) >> lhHeaderShift & 0xFF) }

// ElementType returns the element basic type.
func (lh LayoutHelper) ElementType() BasicType { return BasicType(uint32(lh) >> lhTypeShift & 0xFF) }

// Log2ElementSize returns log2 of the element slot size.
func (lh LayoutHelper) Log2ElementSize() int { return int(uint32(lh) & 0xFF) }

// ArraySize returns the aligned allocation size of an array of length n.
func (lh LayoutHelper) ArraySize(n int) int64 {
	size := int64(lh.HeaderSize()) + int64(n)<<lh.Log2ElementSize()
	return (size + 7) &^ 7
}

func (lh LayoutHelper) String() string {
	return fmt.Sprintf("0x%08x", uint32(lh))
}
