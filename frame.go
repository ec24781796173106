package dbusconn

import (
	"encoding/binary"
	"sort"
)

// errNeedMoreData signals that buf does not yet hold a complete frame; the
// caller should read more bytes from the transport and retry. It is not a
// *Error because it never escapes the frame codec / connection read loop.
var errNeedMoreData = errStr("need more data")

// headerFieldSig is the wire signature of one header-field entry.
const headerFieldSig = "(yv)"

// headerFieldsArraySig is the wire signature of the whole header-fields
// array (ARRAY of STRUCT(BYTE, VARIANT)).
const headerFieldsArraySig = "a(yv)"

// EncodeMessage renders m to its complete wire form: fixed header, header
// fields, 8-byte pad, body. It validates required header
// fields for m.Type first.
func EncodeMessage(m *Message) ([]byte, error) {
	if m.Serial == 0 {
		return nil, newErr(KindMessageInvalid, errStr("serial must be non-zero"))
	}
	if !m.Endian.Valid() {
		m.Endian = LittleEndian
	}
	if err := m.validateHeaders(); err != nil {
		return nil, err
	}

	var bodyBytes []byte
	if !m.BodySig.Empty() {
		b, err := Marshal(m.Endian, m.BodySig, m.Body)
		if err != nil {
			return nil, err
		}
		bodyBytes = b
	}

	enc := newEncoder(m.Endian)
	enc.writeByte(byte(m.Endian))
	enc.writeByte(byte(m.Type))
	enc.writeByte(byte(m.Flags))
	enc.writeByte(ProtocolVersion)
	bodyLenPos := enc.offset()
	enc.writeUint32(0) // patched below
	enc.writeUint32(m.Serial)

	fields := make([]Value, 0, len(m.Headers))
	codes := make([]int, 0, len(m.Headers))
	for code := range m.Headers {
		codes = append(codes, int(code))
	}
	sort.Ints(codes)
	for _, code := range codes {
		v := m.Headers[HeaderField(code)]
		fields = append(fields, Struct{Fields: []Value{byte(code), v}})
	}
	if err := encodeArray(enc, headerFieldSig, fields); err != nil {
		return nil, err
	}
	enc.align(8)
	enc.patchUint32(bodyLenPos, uint32(len(bodyBytes)))
	enc.writeBytes(bodyBytes)

	if len(enc.buf) > MaxMessageSize {
		return nil, newErrf(KindCodecEncode, "message of %d bytes exceeds the %d byte maximum", len(enc.buf), MaxMessageSize)
	}
	return enc.buf, nil
}

// PeekFrameLength inspects buf (which must hold at least FixedHeaderSize
// bytes — the header-fields array's own length prefix lives inside the
// fixed header, at bytes 12-15) and returns the total byte length of the
// frame it starts, without
// fully decoding it. Returns errNeedMoreData if buf is too short to compute
// the length yet, or a *Error (KindCodecDecode) if the declared length
// exceeds MaxMessageSize.
func PeekFrameLength(buf []byte) (int, error) {
	if len(buf) < FixedHeaderSize {
		return 0, errNeedMoreData
	}
	order, err := byteOrderOf(buf[0])
	if err != nil {
		return 0, err
	}
	arrayLen := order.Uint32(buf[12:16])
	contentStart := padTo(FixedHeaderSize, 8)
	headerFieldsEnd := contentStart + int(arrayLen)
	bodyLenWord := order.Uint32(buf[4:8])
	bodyStart := padTo(headerFieldsEnd, 8)
	total := bodyStart + int(bodyLenWord)
	if total > MaxMessageSize {
		return 0, newErrf(KindCodecDecode, "frame of %d bytes exceeds the %d byte maximum", total, MaxMessageSize)
	}
	return total, nil
}

func byteOrderOf(endianByte byte) (binary.ByteOrder, error) {
	switch Endianness(endianByte) {
	case LittleEndian:
		return binary.LittleEndian, nil
	case BigEndian:
		return binary.BigEndian, nil
	default:
		return nil, newErrf(KindCodecDecode, "invalid endianness byte %q", endianByte)
	}
}

// DecodeFrame attempts to decode one complete message from the front of
// buf. On success it returns the Message and the number of bytes consumed.
// If buf does not yet hold a complete frame it returns errNeedMoreData and
// the caller should read more and retry with a longer buf.
func DecodeFrame(buf []byte) (*Message, int, error) {
	total, err := PeekFrameLength(buf)
	if err != nil {
		return nil, 0, err
	}
	if len(buf) < total {
		return nil, 0, errNeedMoreData
	}
	frame := buf[:total]

	endian := Endianness(frame[0])
	if !endian.Valid() {
		return nil, 0, newErrf(KindCodecDecode, "invalid endianness byte %q", frame[0])
	}
	mtype := MessageType(frame[1])
	flags := Flags(frame[2])
	version := frame[3]
	if version != ProtocolVersion {
		return nil, 0, newErrf(KindCodecDecode, "unsupported protocol version %d", version)
	}

	d := newDecoder(endian, frame, 4)
	bodyLen, err := d.readUint32()
	if err != nil {
		return nil, 0, err
	}
	serial, err := d.readUint32()
	if err != nil {
		return nil, 0, err
	}
	if serial == 0 {
		return nil, 0, newErr(KindCodecDecode, errStr("serial must be non-zero"))
	}

	headerArrayVal, err := decodeValue(d, headerFieldsArraySig)
	if err != nil {
		return nil, 0, err
	}
	headerStructs := headerArrayVal.([]Value)

	headers := make(map[HeaderField]Variant, len(headerStructs))
	for _, hv := range headerStructs {
		st := hv.(Struct)
		if len(st.Fields) != 2 {
			return nil, 0, newErr(KindCodecDecode, errStr("header field struct must have exactly two fields"))
		}
		code, ok := st.Fields[0].(byte)
		if !ok {
			return nil, 0, newErr(KindCodecDecode, errStr("header field code must be a byte"))
		}
		variant, ok := st.Fields[1].(Variant)
		if !ok {
			return nil, 0, newErr(KindCodecDecode, errStr("header field value must be a variant"))
		}
		headers[HeaderField(code)] = variant
	}

	if err := d.align(8); err != nil {
		return nil, 0, err
	}

	msg := &Message{
		Endian:  endian,
		Type:    mtype,
		Flags:   flags,
		Serial:  serial,
		Headers: headers,
	}

	if sigVariant, ok := headers[FieldSignature]; ok {
		sig, ok := sigVariant.Value.(Signature)
		if !ok {
			return nil, 0, newErr(KindCodecDecode, errStr("SIGNATURE header field value must be a signature"))
		}
		if err := d.need(int(bodyLen)); err != nil {
			return nil, 0, err
		}
		values, err := Unmarshal(endian, sig, frame, d.pos)
		if err != nil {
			return nil, 0, err
		}
		msg.BodySig = sig
		msg.Body = values
	} else if bodyLen != 0 {
		return nil, 0, newErr(KindCodecDecode, errStr("body present without a SIGNATURE header field"))
	}

	if err := msg.validateHeaders(); err != nil {
		return nil, 0, err
	}

	return msg, total, nil
}
