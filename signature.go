package dbusconn

import "strings"

// MaxSignatureLength is the wire limit on a SIGNATURE value: a
// UINT8 length prefix means at most 255 bytes.
const MaxSignatureLength = 255

// MaxTypeNesting is the deepest a container type may nest.
const MaxTypeNesting = 32

// Signature is a validated, well-formed D-Bus type signature.
type Signature struct {
	str string
}

// ParseSignature validates s against the D-Bus grammar and returns a
// Signature, or an *Error (KindCodecDecode) describing the first violation.
//
// Rejected: the empty string, trailing container openers, '{' '}' outside an
// array, dict-entry keys that are not basic types, empty struct "()", type
// codes outside the alphabet, more than MaxTypeNesting levels, signatures
// over MaxSignatureLength bytes.
func ParseSignature(s string) (Signature, error) {
	if s == "" {
		return Signature{}, newErr(KindCodecDecode, errEmptySig)
	}
	if len(s) > MaxSignatureLength {
		return Signature{}, newErrf(KindCodecDecode, "signature exceeds %d bytes", MaxSignatureLength)
	}
	if err := validateSignature(s); err != nil {
		return Signature{}, err
	}
	return Signature{str: s}, nil
}

// MustParseSignature panics on an invalid signature; for use with
// compile-time-known literals only.
func MustParseSignature(s string) Signature {
	sig, err := ParseSignature(s)
	if err != nil {
		panic(err)
	}
	return sig
}

func (s Signature) String() string { return s.str }
func (s Signature) Empty() bool    { return s.str == "" }

// Types returns the top-level complete types making up s, e.g. "ai(su)" ->
// ["ai", "(su)"].
func (s Signature) Types() []string {
	var out []string
	rest := s.str
	for rest != "" {
		n := completeTypeLen(rest)
		out = append(out, rest[:n])
		rest = rest[n:]
	}
	return out
}

var (
	errEmptySig       = errStr("empty signature")
	errTrailingOpener = errStr("trailing container opener")
	errEmptyStruct    = errStr("empty struct ()")
	errBareDictEntry  = errStr("dict-entry type outside array element position")
)

type errStr string

func (e errStr) Error() string { return string(e) }

func validateSignature(s string) error {
	depth := 0
	i := 0
	for i < len(s) {
		n, d, err := validateOneType(s[i:], depth)
		if err != nil {
			return err
		}
		_ = d
		i += n
	}
	return nil
}

// validateOneType validates the single complete type starting at s[0],
// returning its length in bytes. depth is the current struct/array/dict
// nesting depth, used to enforce MaxTypeNesting.
func validateOneType(s string, depth int) (length int, newDepth int, err error) {
	if len(s) == 0 {
		return 0, depth, newErr(KindCodecDecode, errEmptySig)
	}
	if depth > MaxTypeNesting {
		return 0, depth, newErrf(KindCodecDecode, "signature nests deeper than %d", MaxTypeNesting)
	}
	c := s[0]
	if !strings.ContainsRune(typeAlphabet, rune(c)) {
		return 0, depth, newErrf(KindCodecDecode, "invalid type code %q", c)
	}
	switch Type(c) {
	case TypeArray:
		if len(s) < 2 {
			return 0, depth, newErr(KindCodecDecode, errTrailingOpener)
		}
		if s[1] == dictOpen {
			elemLen, err := validateDictEntryElement(s[1:], depth+1)
			if err != nil {
				return 0, depth, err
			}
			return 1 + elemLen, depth, nil
		}
		elemLen, _, err := validateOneType(s[1:], depth+1)
		if err != nil {
			return 0, depth, err
		}
		return 1 + elemLen, depth, nil
	case Type(structOpen):
		j := 1
		fields := 0
		for {
			if j >= len(s) {
				return 0, depth, newErr(KindCodecDecode, errTrailingOpener)
			}
			if s[j] == structClose {
				break
			}
			fl, _, err := validateOneType(s[j:], depth+1)
			if err != nil {
				return 0, depth, err
			}
			j += fl
			fields++
		}
		if fields == 0 {
			return 0, depth, newErr(KindCodecDecode, errEmptyStruct)
		}
		return j + 1, depth, nil
	case Type(dictOpen):
		return 0, depth, newErr(KindCodecDecode, errBareDictEntry)
	case TypeVariant, TypeByte, TypeBoolean, TypeInt16, TypeUint16, TypeInt32,
		TypeUint32, TypeInt64, TypeUint64, TypeDouble, TypeString,
		TypeObjectPath, TypeSignature, TypeUnixFD:
		return 1, depth, nil
	default:
		return 0, depth, newErrf(KindCodecDecode, "invalid type code %q", c)
	}
}

// validateDictEntryElement validates a '{kv}' array element: exactly one
// basic key type followed by one complete value type.
func validateDictEntryElement(s string, depth int) (length int, err error) {
	// s[0] == '{'
	j := 1
	if j >= len(s) {
		return 0, newErr(KindCodecDecode, errTrailingOpener)
	}
	if j < len(s) && !IsBasic(Type(s[j])) {
		return 0, newErrf(KindCodecDecode, "dict-entry key %q is not a basic type", s[j])
	}
	keyLen, _, err := validateOneType(s[j:], depth+1)
	if err != nil {
		return 0, err
	}
	j += keyLen
	if j >= len(s) {
		return 0, newErr(KindCodecDecode, errTrailingOpener)
	}
	valLen, _, err := validateOneType(s[j:], depth+1)
	if err != nil {
		return 0, err
	}
	j += valLen
	if j >= len(s) || s[j] != dictClose {
		return 0, newErr(KindCodecDecode, errBareDictEntry)
	}
	return j + 1, nil
}

// completeTypeLen returns the byte length of the single complete type
// starting at s[0]. Assumes s is already validated.
func completeTypeLen(s string) int {
	if len(s) == 0 {
		return 0
	}
	switch Type(s[0]) {
	case TypeArray:
		return 1 + completeTypeLen(s[1:])
	case Type(structOpen):
		j := 1
		for s[j] != structClose {
			j += completeTypeLen(s[j:])
		}
		return j + 1
	case Type(dictOpen):
		j := 1
		for s[j] != dictClose {
			j += completeTypeLen(s[j:])
		}
		return j + 1
	default:
		return 1
	}
}
