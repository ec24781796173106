package dbusconn

import "strconv"

// externalMechanism implements EXTERNAL: the argument is the hex-encoded
// decimal UID of the current process, and no DATA challenge is expected.
type externalMechanism struct {
	uid int
}

func newExternalMechanism(uid int) *externalMechanism {
	return &externalMechanism{uid: uid}
}

func (m *externalMechanism) Name() string { return "EXTERNAL" }

func (m *externalMechanism) InitialResponse() ([]byte, error) {
	return []byte(strconv.Itoa(m.uid)), nil
}

func (m *externalMechanism) Continue(challenge []byte) ([]byte, error) {
	return nil, newErr(KindSASLProtocol, errStr("EXTERNAL does not expect a DATA challenge"))
}
