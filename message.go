package dbusconn

// MessageType distinguishes the four D-Bus message kinds.
type MessageType byte

const (
	TypeMethodCall   MessageType = 1
	TypeMethodReturn MessageType = 2
	TypeError        MessageType = 3
	TypeSignal       MessageType = 4
)

// Flags is a bitset over the three message flags.
type Flags byte

const (
	FlagNoReplyExpected               Flags = 1 << 0
	FlagNoAutoStart                   Flags = 1 << 1
	FlagAllowInteractiveAuthorization Flags = 1 << 2
)

func (f Flags) Has(bit Flags) bool { return f&bit != 0 }

// HeaderField is one of the nine header-field codes.
type HeaderField byte

const (
	FieldPath        HeaderField = 1
	FieldInterface   HeaderField = 2
	FieldMember      HeaderField = 3
	FieldErrorName   HeaderField = 4
	FieldReplySerial HeaderField = 5
	FieldDestination HeaderField = 6
	FieldSender      HeaderField = 7
	FieldSignature   HeaderField = 8
	FieldUnixFDs     HeaderField = 9
)

// ProtocolVersion is the only version this package speaks.
const ProtocolVersion = 1

// MaxMessageSize is the D-Bus maximum total wire length: 128 MiB.
const MaxMessageSize = 1 << 27

// FixedHeaderSize is the length of the fixed portion of every message:
// endian, type, flags, version, body-length, serial, and the byte length of
// the header-fields array.
const FixedHeaderSize = 16

// Message is the in-memory representation of one D-Bus message.
type Message struct {
	Endian  Endianness
	Type    MessageType
	Flags   Flags
	Serial  uint32
	Headers map[HeaderField]Variant
	Body    []Value
	BodySig Signature
}

// NewMessage builds a zero-value Message with an initialized header map and
// little-endian wire order (the common default; callers may overwrite
// Endian).
func NewMessage(t MessageType) *Message {
	return &Message{Endian: LittleEndian, Type: t, Headers: make(map[HeaderField]Variant)}
}

func (m *Message) header(f HeaderField) (Variant, bool) {
	v, ok := m.Headers[f]
	return v, ok
}

func (m *Message) setHeader(f HeaderField, sig string, v Value) {
	m.Headers[f] = Variant{Sig: MustParseSignature(sig), Value: v}
}

// Path returns the PATH header field, if set.
func (m *Message) Path() (ObjectPath, bool) {
	v, ok := m.header(FieldPath)
	if !ok {
		return "", false
	}
	p, _ := v.Value.(ObjectPath)
	return p, true
}

// SetPath sets the PATH header field.
func (m *Message) SetPath(p ObjectPath) { m.setHeader(FieldPath, "o", p) }

// Interface returns the INTERFACE header field, if set.
func (m *Message) Interface() (string, bool) {
	v, ok := m.header(FieldInterface)
	if !ok {
		return "", false
	}
	s, _ := v.Value.(string)
	return s, true
}

func (m *Message) SetInterface(s string) { m.setHeader(FieldInterface, "s", s) }

// Member returns the MEMBER header field, if set.
func (m *Message) Member() (string, bool) {
	v, ok := m.header(FieldMember)
	if !ok {
		return "", false
	}
	s, _ := v.Value.(string)
	return s, true
}

func (m *Message) SetMember(s string) { m.setHeader(FieldMember, "s", s) }

// ErrorName returns the ERROR_NAME header field, if set.
func (m *Message) ErrorName() (string, bool) {
	v, ok := m.header(FieldErrorName)
	if !ok {
		return "", false
	}
	s, _ := v.Value.(string)
	return s, true
}

func (m *Message) SetErrorName(s string) { m.setHeader(FieldErrorName, "s", s) }

// ReplySerial returns the REPLY_SERIAL header field, if set.
func (m *Message) ReplySerial() (uint32, bool) {
	v, ok := m.header(FieldReplySerial)
	if !ok {
		return 0, false
	}
	s, _ := v.Value.(uint32)
	return s, true
}

func (m *Message) SetReplySerial(s uint32) { m.setHeader(FieldReplySerial, "u", s) }

// Destination returns the DESTINATION header field, if set.
func (m *Message) Destination() (string, bool) {
	v, ok := m.header(FieldDestination)
	if !ok {
		return "", false
	}
	s, _ := v.Value.(string)
	return s, true
}

func (m *Message) SetDestination(s string) { m.setHeader(FieldDestination, "s", s) }

// Sender returns the SENDER header field, if set.
func (m *Message) Sender() (string, bool) {
	v, ok := m.header(FieldSender)
	if !ok {
		return "", false
	}
	s, _ := v.Value.(string)
	return s, true
}

func (m *Message) SetSender(s string) { m.setHeader(FieldSender, "s", s) }

// SetBody attaches a body matching sig to the message and records the
// SIGNATURE header field (absent when the body is empty).
func (m *Message) SetBody(sig Signature, values ...Value) {
	m.BodySig = sig
	m.Body = values
	if sig.Empty() {
		delete(m.Headers, FieldSignature)
		return
	}
	m.setHeader(FieldSignature, "g", sig)
}

// validateHeaders enforces the presence rules of the D-Bus specification for m.Type.
func (m *Message) validateHeaders() error {
	_, hasPath := m.header(FieldPath)
	_, hasMember := m.header(FieldMember)
	_, hasReplySerial := m.header(FieldReplySerial)
	_, hasErrorName := m.header(FieldErrorName)
	_, hasInterface := m.header(FieldInterface)

	switch m.Type {
	case TypeMethodCall:
		if !hasPath {
			return newErr(KindMessageInvalid, errStr("method_call requires PATH"))
		}
		if !hasMember {
			return newErr(KindMessageInvalid, errStr("method_call requires MEMBER"))
		}
	case TypeMethodReturn:
		if !hasReplySerial {
			return newErr(KindMessageInvalid, errStr("method_return requires REPLY_SERIAL"))
		}
	case TypeError:
		if !hasErrorName {
			return newErr(KindMessageInvalid, errStr("error requires ERROR_NAME"))
		}
		if !hasReplySerial {
			return newErr(KindMessageInvalid, errStr("error requires REPLY_SERIAL"))
		}
	case TypeSignal:
		if !hasPath {
			return newErr(KindMessageInvalid, errStr("signal requires PATH"))
		}
		if !hasInterface {
			return newErr(KindMessageInvalid, errStr("signal requires INTERFACE"))
		}
		if !hasMember {
			return newErr(KindMessageInvalid, errStr("signal requires MEMBER"))
		}
	default:
		return newErrf(KindMessageInvalid, "unknown message type %d", m.Type)
	}
	return nil
}
