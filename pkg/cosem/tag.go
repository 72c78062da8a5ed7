// Package cosem implements the COSEM value model: the typed data primitives
// exchanged between interface class attributes and methods, together with
// equality, ordering and validity rules.
package cosem

// Tag identifies the kind of a Value. The numeric values are the A-XDR
// type tags from IEC 62056-6-2.
type Tag uint8

const (
	TagNull               Tag = 0  // null-data
	TagArray              Tag = 1  // array of homogeneous elements
	TagStructure          Tag = 2  // structure of heterogeneous elements
	TagBoolean            Tag = 3  // boolean
	TagBitString          Tag = 4  // bit-string, length in bits
	TagDoubleLong         Tag = 5  // int32
	TagDoubleLongUnsigned Tag = 6  // uint32
	TagOctetString        Tag = 9  // octet-string
	TagVisibleString      Tag = 10 // printable ASCII
	TagUTF8String         Tag = 12 // UTF-8 string
	TagInteger            Tag = 15 // int8
	TagLong               Tag = 16 // int16
	TagUnsigned           Tag = 17 // uint8
	TagLongUnsigned       Tag = 18 // uint16
	TagLong64             Tag = 20 // int64
	TagLong64Unsigned     Tag = 21 // uint64
	TagEnum               Tag = 22 // enumerated, uint8
	TagFloat32            Tag = 23 // IEEE 754 single precision
	TagFloat64            Tag = 24 // IEEE 754 double precision
	TagDateTime           Tag = 25 // date-time, 12 octets
	TagDate               Tag = 26 // date, 5 octets
	TagTime               Tag = 27 // time, 4 octets

	// TagDontCare is used in attribute descriptors to accept any kind.
	// It never appears on a Value.
	TagDontCare Tag = 255
)

// String returns the IEC 62056-6-2 name of the tag.
func (t Tag) String() string {
	switch t {
	case TagNull:
		return "null-data"
	case TagArray:
		return "array"
	case TagStructure:
		return "structure"
	case TagBoolean:
		return "boolean"
	case TagBitString:
		return "bit-string"
	case TagDoubleLong:
		return "double-long"
	case TagDoubleLongUnsigned:
		return "double-long-unsigned"
	case TagOctetString:
		return "octet-string"
	case TagVisibleString:
		return "visible-string"
	case TagUTF8String:
		return "utf8-string"
	case TagInteger:
		return "integer"
	case TagLong:
		return "long"
	case TagUnsigned:
		return "unsigned"
	case TagLongUnsigned:
		return "long-unsigned"
	case TagLong64:
		return "long64"
	case TagLong64Unsigned:
		return "long64-unsigned"
	case TagEnum:
		return "enum"
	case TagFloat32:
		return "float32"
	case TagFloat64:
		return "float64"
	case TagDateTime:
		return "date-time"
	case TagDate:
		return "date"
	case TagTime:
		return "time"
	case TagDontCare:
		return "dont-care"
	default:
		return "unknown"
	}
}

// IsKnown reports whether t is a tag a Value can carry.
func (t Tag) IsKnown() bool {
	switch t {
	case TagNull, TagArray, TagStructure, TagBoolean, TagBitString,
		TagDoubleLong, TagDoubleLongUnsigned, TagOctetString, TagVisibleString,
		TagUTF8String, TagInteger, TagLong, TagUnsigned, TagLongUnsigned,
		TagLong64, TagLong64Unsigned, TagEnum, TagFloat32, TagFloat64,
		TagDateTime, TagDate, TagTime:
		return true
	}
	return false
}

// IsSigned returns true for the signed integer kinds.
func (t Tag) IsSigned() bool {
	switch t {
	case TagInteger, TagLong, TagDoubleLong, TagLong64:
		return true
	}
	return false
}

// IsUnsigned returns true for the unsigned integer kinds. Enum is not
// considered an unsigned integer.
func (t Tag) IsUnsigned() bool {
	switch t {
	case TagUnsigned, TagLongUnsigned, TagDoubleLongUnsigned, TagLong64Unsigned:
		return true
	}
	return false
}

// IsInteger returns true for signed and unsigned integer kinds.
func (t Tag) IsInteger() bool {
	return t.IsSigned() || t.IsUnsigned()
}

// IsFloat returns true for float32 and float64.
func (t Tag) IsFloat() bool {
	return t == TagFloat32 || t == TagFloat64
}

// IsNumeric returns true for kinds that carry an arithmetic quantity.
func (t Tag) IsNumeric() bool {
	return t.IsInteger() || t.IsFloat()
}

// IsTimeLike returns true for date, time and date-time.
func (t Tag) IsTimeLike() bool {
	return t == TagDateTime || t == TagDate || t == TagTime
}

// IsContainer returns true for array and structure.
func (t Tag) IsContainer() bool {
	return t == TagArray || t == TagStructure
}

// FixedSize returns the encoded size in octets of the value part for
// fixed-width kinds, or -1 for variable-length kinds.
func (t Tag) FixedSize() int {
	switch t {
	case TagNull:
		return 0
	case TagBoolean, TagInteger, TagUnsigned, TagEnum:
		return 1
	case TagLong, TagLongUnsigned:
		return 2
	case TagDoubleLong, TagDoubleLongUnsigned, TagFloat32:
		return 4
	case TagLong64, TagLong64Unsigned, TagFloat64:
		return 8
	case TagDateTime:
		return DateTimeSize
	case TagDate:
		return DateSize
	case TagTime:
		return TimeSize
	default:
		return -1
	}
}

// intRange returns the inclusive bounds for an integer tag.
func (t Tag) intRange() (min int64, max uint64) {
	switch t {
	case TagInteger:
		return -1 << 7, 1<<7 - 1
	case TagLong:
		return -1 << 15, 1<<15 - 1
	case TagDoubleLong:
		return -1 << 31, 1<<31 - 1
	case TagLong64:
		return -1 << 63, 1<<63 - 1
	case TagUnsigned, TagEnum:
		return 0, 1<<8 - 1
	case TagLongUnsigned:
		return 0, 1<<16 - 1
	case TagDoubleLongUnsigned:
		return 0, 1<<32 - 1
	case TagLong64Unsigned:
		return 0, 1<<64 - 1
	}
	return 0, 0
}
