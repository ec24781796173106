package dbusconn

// Value is the Go-side representation of a single D-Bus value. Concrete
// values use native Go types for basic kinds (byte, bool, int16, uint16,
// int32, uint32, int64, uint64, float64, string), ObjectPath/Signature for
// those two text types, []Value for ARRAY, Struct for STRUCT, DictEntry
// (inside a []Value) for array-of-dict-entry, and Variant for VARIANT.
type Value = any

// Struct is an ordered, heterogeneous tuple (8-aligned).
type Struct struct {
	Fields []Value
}

// DictEntry is exactly one basic key plus one value; legal only as the
// element type of an ARRAY.
type DictEntry struct {
	Key   Value
	Value Value
}

// UnixFDIndex is the body-side representation of a UNIX_FD value: an index
// into the message's out-of-band descriptor array. This package does not
// pass descriptors; the index still marshals as a plain UINT32 so signatures
// containing 'h' round-trip.
type UnixFDIndex uint32

// Variant carries its own inline signature alongside the value it wraps.
type Variant struct {
	Sig   Signature
	Value Value
}

// Dict is a convenience constructor building the []Value an ARRAY of
// DICT_ENTRY expects, preserving insertion order (the wire format has no
// notion of map ordering, but encode needs a deterministic one).
func Dict(entries ...DictEntry) []Value {
	out := make([]Value, len(entries))
	for i, e := range entries {
		out[i] = e
	}
	return out
}
