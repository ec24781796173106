package dbusconn

import (
	"encoding/binary"
	"math"
	"unicode/utf8"
)

// encoder accumulates wire bytes. offset always equals len(buf) and every
// encoder starts at stream offset 0, so alignment padding is computed against
// len(buf) directly. EncodeMessage uses one encoder for the header and a
// separate one (via Marshal) for the body; the body is appended at an
// 8-aligned offset, so its padding is the same as in a single buffer.
type encoder struct {
	buf   []byte
	order binary.ByteOrder
}

func newEncoder(e Endianness) *encoder {
	order := binary.ByteOrder(binary.LittleEndian)
	if e == BigEndian {
		order = binary.BigEndian
	}
	return &encoder{order: order}
}

func (enc *encoder) offset() int { return len(enc.buf) }

func (enc *encoder) align(a int) {
	want := padTo(enc.offset(), a)
	for enc.offset() < want {
		enc.buf = append(enc.buf, 0)
	}
}

func (enc *encoder) writeBytes(b []byte) { enc.buf = append(enc.buf, b...) }

func (enc *encoder) writeByte(b byte) { enc.buf = append(enc.buf, b) }

func (enc *encoder) writeUint16(v uint16) {
	enc.align(2)
	var b [2]byte
	enc.order.PutUint16(b[:], v)
	enc.writeBytes(b[:])
}

func (enc *encoder) writeUint32(v uint32) {
	enc.align(4)
	var b [4]byte
	enc.order.PutUint32(b[:], v)
	enc.writeBytes(b[:])
}

func (enc *encoder) writeUint64(v uint64) {
	enc.align(8)
	var b [8]byte
	enc.order.PutUint64(b[:], v)
	enc.writeBytes(b[:])
}

// patchUint32 back-patches a previously reserved 4-byte length field at pos.
func (enc *encoder) patchUint32(pos int, v uint32) {
	enc.order.PutUint32(enc.buf[pos:pos+4], v)
}

// Marshal encodes values (one per top-level type of sig) in the given
// endianness and returns the raw body bytes, suitable as a message body.
func Marshal(e Endianness, sig Signature, values []Value) ([]byte, error) {
	types := sig.Types()
	if len(types) != len(values) {
		return nil, newErrf(KindCodecEncode, "signature %q expects %d values, got %d", sig, len(types), len(values))
	}
	enc := newEncoder(e)
	for i, t := range types {
		if err := encodeValue(enc, t, values[i]); err != nil {
			return nil, err
		}
	}
	return enc.buf, nil
}

// encodeValue encodes one complete type (typeSig, e.g. "a(su)") carrying val.
func encodeValue(enc *encoder, typeSig string, val Value) error {
	t := Type(typeSig[0])
	switch t {
	case TypeByte:
		b, ok := val.(byte)
		if !ok {
			return encodeTypeErr(t, val)
		}
		enc.writeByte(b)
	case TypeBoolean:
		bl, ok := val.(bool)
		if !ok {
			return encodeTypeErr(t, val)
		}
		v := uint32(0)
		if bl {
			v = 1
		}
		enc.writeUint32(v)
	case TypeInt16:
		v, ok := val.(int16)
		if !ok {
			return encodeTypeErr(t, val)
		}
		enc.writeUint16(uint16(v))
	case TypeUint16:
		v, ok := val.(uint16)
		if !ok {
			return encodeTypeErr(t, val)
		}
		enc.writeUint16(v)
	case TypeInt32:
		v, ok := val.(int32)
		if !ok {
			return encodeTypeErr(t, val)
		}
		enc.writeUint32(uint32(v))
	case TypeUint32:
		v, ok := val.(uint32)
		if !ok {
			return encodeTypeErr(t, val)
		}
		enc.writeUint32(v)
	case TypeUnixFD:
		v, ok := val.(UnixFDIndex)
		if !ok {
			return encodeTypeErr(t, val)
		}
		enc.writeUint32(uint32(v))
	case TypeInt64:
		v, ok := val.(int64)
		if !ok {
			return encodeTypeErr(t, val)
		}
		enc.writeUint64(uint64(v))
	case TypeUint64:
		v, ok := val.(uint64)
		if !ok {
			return encodeTypeErr(t, val)
		}
		enc.writeUint64(v)
	case TypeDouble:
		v, ok := val.(float64)
		if !ok {
			return encodeTypeErr(t, val)
		}
		enc.writeUint64(math.Float64bits(v))
	case TypeString:
		s, ok := val.(string)
		if !ok {
			return encodeTypeErr(t, val)
		}
		return encodeTextLen32(enc, s)
	case TypeObjectPath:
		var s string
		switch v := val.(type) {
		case ObjectPath:
			s = string(v)
		case string:
			s = v
		default:
			return encodeTypeErr(t, val)
		}
		if err := ValidateObjectPath(s); err != nil {
			return err
		}
		return encodeTextLen32(enc, s)
	case TypeSignature:
		var s string
		switch v := val.(type) {
		case Signature:
			s = v.String()
		case string:
			s = v
		default:
			return encodeTypeErr(t, val)
		}
		if len(s) > MaxSignatureLength {
			return newErrf(KindCodecEncode, "signature exceeds %d bytes", MaxSignatureLength)
		}
		enc.writeByte(byte(len(s)))
		enc.writeBytes([]byte(s))
		enc.writeByte(0)
	case TypeArray:
		elemType := typeSig[1:]
		vals, ok := val.([]Value)
		if !ok {
			return encodeTypeErr(t, val)
		}
		return encodeArray(enc, elemType, vals)
	case Type(structOpen):
		st, ok := val.(Struct)
		if !ok {
			return encodeTypeErr(t, val)
		}
		return encodeStruct(enc, typeSig, st.Fields)
	case TypeVariant:
		v, ok := val.(Variant)
		if !ok {
			return encodeTypeErr(t, val)
		}
		return encodeVariant(enc, v)
	default:
		return newErrf(KindCodecEncode, "unsupported type code %q", t)
	}
	return nil
}

func encodeTypeErr(t Type, val Value) error {
	return newErrf(KindCodecEncode, "value %#v does not match type %q", val, t)
}

func encodeTextLen32(enc *encoder, s string) error {
	if !utf8.ValidString(s) {
		return newErr(KindCodecEncode, errStr("string is not valid UTF-8"))
	}
	enc.writeUint32(uint32(len(s)))
	enc.writeBytes([]byte(s))
	enc.writeByte(0)
	return nil
}

func encodeArray(enc *encoder, elemType string, vals []Value) error {
	enc.align(4)
	lenPos := enc.offset()
	enc.writeUint32(0) // placeholder, back-patched below
	elemAlign := Align(Type(elemType[0]))
	if elemType[0] == dictOpen {
		elemAlign = 8
	}
	enc.align(elemAlign)
	bodyStart := enc.offset()
	for _, v := range vals {
		if elemType[0] == dictOpen {
			de, ok := v.(DictEntry)
			if !ok {
				return newErrf(KindCodecEncode, "array element %#v is not a DictEntry", v)
			}
			if err := encodeDictEntry(enc, elemType, de); err != nil {
				return err
			}
			continue
		}
		if err := encodeValue(enc, elemType, v); err != nil {
			return err
		}
	}
	enc.patchUint32(lenPos, uint32(enc.offset()-bodyStart))
	return nil
}

func encodeDictEntry(enc *encoder, dictType string, de DictEntry) error {
	// dictType is "{kv}"; key type is dictType[1:], value type follows.
	enc.align(8)
	keyLen := completeTypeLen(dictType[1:])
	keyType := dictType[1 : 1+keyLen]
	valType := dictType[1+keyLen : len(dictType)-1]
	if err := encodeValue(enc, keyType, de.Key); err != nil {
		return err
	}
	return encodeValue(enc, valType, de.Value)
}

func encodeStruct(enc *encoder, typeSig string, fields []Value) error {
	enc.align(8)
	inner := typeSig[1 : len(typeSig)-1]
	i := 0
	for _, f := range fields {
		if i >= len(inner) {
			return newErr(KindCodecEncode, errStr("struct has more values than its signature declares"))
		}
		n := completeTypeLen(inner[i:])
		if err := encodeValue(enc, inner[i:i+n], f); err != nil {
			return err
		}
		i += n
	}
	if i != len(inner) {
		return newErr(KindCodecEncode, errStr("struct has fewer values than its signature declares"))
	}
	return nil
}

func encodeVariant(enc *encoder, v Variant) error {
	types := v.Sig.Types()
	if len(types) != 1 {
		return newErr(KindCodecEncode, errStr("variant signature must contain exactly one complete type"))
	}
	sigStr := v.Sig.String()
	enc.writeByte(byte(len(sigStr)))
	enc.writeBytes([]byte(sigStr))
	enc.writeByte(0)
	return encodeValue(enc, types[0], v.Value)
}
