package dbusconn

import (
	"encoding/binary"
	"math"
	"unicode/utf8"
)

// decoder mirrors encoder: pos tracks the absolute stream offset (buf is the
// full message, so pos starts wherever the body begins, not necessarily 0).
type decoder struct {
	buf   []byte
	pos   int
	order binary.ByteOrder
}

func newDecoder(e Endianness, buf []byte, startOffset int) *decoder {
	order := binary.ByteOrder(binary.LittleEndian)
	if e == BigEndian {
		order = binary.BigEndian
	}
	return &decoder{buf: buf, pos: startOffset, order: order}
}

func (d *decoder) remaining() int { return len(d.buf) - d.pos }

func (d *decoder) align(a int) error {
	want := padTo(d.pos, a)
	if want > len(d.buf) {
		return newErr(KindCodecDecode, errStr("padding runs past end of body"))
	}
	for _, b := range d.buf[d.pos:want] {
		if b != 0 {
			return newErr(KindCodecDecode, errStr("non-zero alignment padding"))
		}
	}
	d.pos = want
	return nil
}

func (d *decoder) need(n int) error {
	if d.remaining() < n {
		return newErr(KindCodecDecode, errStr("message ends before declared value"))
	}
	return nil
}

func (d *decoder) readByte() (byte, error) {
	if err := d.need(1); err != nil {
		return 0, err
	}
	b := d.buf[d.pos]
	d.pos++
	return b, nil
}

func (d *decoder) readUint16() (uint16, error) {
	if err := d.align(2); err != nil {
		return 0, err
	}
	if err := d.need(2); err != nil {
		return 0, err
	}
	v := d.order.Uint16(d.buf[d.pos:])
	d.pos += 2
	return v, nil
}

func (d *decoder) readUint32() (uint32, error) {
	if err := d.align(4); err != nil {
		return 0, err
	}
	if err := d.need(4); err != nil {
		return 0, err
	}
	v := d.order.Uint32(d.buf[d.pos:])
	d.pos += 4
	return v, nil
}

func (d *decoder) readUint64() (uint64, error) {
	if err := d.align(8); err != nil {
		return 0, err
	}
	if err := d.need(8); err != nil {
		return 0, err
	}
	v := d.order.Uint64(d.buf[d.pos:])
	d.pos += 8
	return v, nil
}

// Unmarshal decodes values for each top-level type in sig out of buf,
// starting at the given stream offset (the offset at which this body's
// first byte lives — required so alignment padding is computed correctly).
func Unmarshal(e Endianness, sig Signature, buf []byte, startOffset int) ([]Value, error) {
	types := sig.Types()
	d := newDecoder(e, buf, startOffset)
	out := make([]Value, 0, len(types))
	for _, t := range types {
		v, err := decodeValue(d, t)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func decodeValue(d *decoder, typeSig string) (Value, error) {
	t := Type(typeSig[0])
	switch t {
	case TypeByte:
		return d.readByte()
	case TypeBoolean:
		v, err := d.readUint32()
		if err != nil {
			return nil, err
		}
		if v != 0 && v != 1 {
			return nil, newErrf(KindCodecDecode, "boolean wire value %d is neither 0 nor 1", v)
		}
		return v == 1, nil
	case TypeInt16:
		v, err := d.readUint16()
		return int16(v), err
	case TypeUint16:
		return d.readUint16()
	case TypeInt32:
		v, err := d.readUint32()
		return int32(v), err
	case TypeUint32:
		return d.readUint32()
	case TypeUnixFD:
		v, err := d.readUint32()
		return UnixFDIndex(v), err
	case TypeInt64:
		v, err := d.readUint64()
		return int64(v), err
	case TypeUint64:
		return d.readUint64()
	case TypeDouble:
		v, err := d.readUint64()
		if err != nil {
			return nil, err
		}
		return math.Float64frombits(v), nil
	case TypeString:
		return decodeText32(d)
	case TypeObjectPath:
		s, err := decodeText32(d)
		if err != nil {
			return nil, err
		}
		if err := ValidateObjectPath(s); err != nil {
			return nil, err
		}
		return ObjectPath(s), nil
	case TypeSignature:
		n, err := d.readByte()
		if err != nil {
			return nil, err
		}
		if err := d.need(int(n) + 1); err != nil {
			return nil, err
		}
		s := string(d.buf[d.pos : d.pos+int(n)])
		d.pos += int(n)
		nul, err := d.readByte()
		if err != nil {
			return nil, err
		}
		if nul != 0 {
			return nil, newErr(KindCodecDecode, errStr("signature missing trailing NUL"))
		}
		sig, err := ParseSignature(s)
		if err != nil {
			return nil, err
		}
		return sig, nil
	case TypeArray:
		return decodeArray(d, typeSig[1:])
	case Type(structOpen):
		return decodeStruct(d, typeSig)
	case TypeVariant:
		return decodeVariant(d)
	default:
		return nil, newErrf(KindCodecDecode, "unsupported type code %q", t)
	}
}

func decodeText32(d *decoder) (string, error) {
	n, err := d.readUint32()
	if err != nil {
		return "", err
	}
	if n > uint32(d.remaining()) {
		return "", newErr(KindCodecDecode, errStr("string length exceeds remaining body"))
	}
	if err := d.need(int(n) + 1); err != nil {
		return "", err
	}
	s := string(d.buf[d.pos : d.pos+int(n)])
	d.pos += int(n)
	nul, err := d.readByte()
	if err != nil {
		return "", err
	}
	if nul != 0 {
		return "", newErr(KindCodecDecode, errStr("string missing trailing NUL"))
	}
	if !utf8.ValidString(s) {
		return "", newErr(KindCodecDecode, errStr("string is not valid UTF-8"))
	}
	return s, nil
}

func decodeArray(d *decoder, elemType string) ([]Value, error) {
	byteLen, err := d.readUint32()
	if err != nil {
		return nil, err
	}
	elemAlign := Align(Type(elemType[0]))
	if elemType[0] == dictOpen {
		elemAlign = 8
	}
	if err := d.align(elemAlign); err != nil {
		return nil, err
	}
	if int(byteLen) > d.remaining() {
		return nil, newErr(KindCodecDecode, errStr("array length exceeds remaining body"))
	}
	end := d.pos + int(byteLen)
	var out []Value
	for d.pos < end {
		if elemType[0] == dictOpen {
			de, err := decodeDictEntry(d, elemType)
			if err != nil {
				return nil, err
			}
			out = append(out, de)
			continue
		}
		v, err := decodeValue(d, elemType)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	if d.pos != end {
		return nil, newErr(KindCodecDecode, errStr("array element overruns its declared length"))
	}
	return out, nil
}

func decodeDictEntry(d *decoder, dictType string) (DictEntry, error) {
	if err := d.align(8); err != nil {
		return DictEntry{}, err
	}
	keyLen := completeTypeLen(dictType[1:])
	keyType := dictType[1 : 1+keyLen]
	valType := dictType[1+keyLen : len(dictType)-1]
	k, err := decodeValue(d, keyType)
	if err != nil {
		return DictEntry{}, err
	}
	v, err := decodeValue(d, valType)
	if err != nil {
		return DictEntry{}, err
	}
	return DictEntry{Key: k, Value: v}, nil
}

func decodeStruct(d *decoder, typeSig string) (Struct, error) {
	if err := d.align(8); err != nil {
		return Struct{}, err
	}
	inner := typeSig[1 : len(typeSig)-1]
	var fields []Value
	i := 0
	for i < len(inner) {
		n := completeTypeLen(inner[i:])
		v, err := decodeValue(d, inner[i:i+n])
		if err != nil {
			return Struct{}, err
		}
		fields = append(fields, v)
		i += n
	}
	return Struct{Fields: fields}, nil
}

func decodeVariant(d *decoder) (Variant, error) {
	n, err := d.readByte()
	if err != nil {
		return Variant{}, err
	}
	if err := d.need(int(n) + 1); err != nil {
		return Variant{}, err
	}
	s := string(d.buf[d.pos : d.pos+int(n)])
	d.pos += int(n)
	nul, err := d.readByte()
	if err != nil {
		return Variant{}, err
	}
	if nul != 0 {
		return Variant{}, newErr(KindCodecDecode, errStr("variant signature missing trailing NUL"))
	}
	sig, err := ParseSignature(s)
	if err != nil {
		return Variant{}, err
	}
	types := sig.Types()
	if len(types) != 1 {
		return Variant{}, newErr(KindCodecDecode, errStr("variant signature contains more than one complete type"))
	}
	val, err := decodeValue(d, types[0])
	if err != nil {
		return Variant{}, err
	}
	return Variant{Sig: sig, Value: val}, nil
}
