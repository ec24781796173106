package dbusconn

import (
	"crypto/sha1"
	"encoding/hex"
	"os"
	"strings"
	"testing"
)

type stubKeyring struct {
	dir      string
	mode     os.FileMode
	statErr  error
	contexts map[string][]byte
}

func (k *stubKeyring) Stat() (string, os.FileMode, error) {
	if k.statErr != nil {
		return "", 0, k.statErr
	}
	return k.dir, k.mode, nil
}

func (k *stubKeyring) ReadContext(context string) ([]byte, error) {
	b, ok := k.contexts[context]
	if !ok {
		return nil, newErr(KindSASLCookie, errStr("no such context"))
	}
	return b, nil
}

func TestCookieMechanismRejectsWorldReadableKeyring(t *testing.T) {
	kr := &stubKeyring{dir: "/home/u/.dbus-keyrings", mode: 0755}
	m := newCookieMechanism("1000", kr)
	if _, err := m.Continue([]byte("org_freedesktop_general 1 deadbeef")); err == nil {
		t.Fatalf("Continue() = nil error, want error for group/world-accessible keyring dir")
	}
}

func TestCookieMechanismHappyPath(t *testing.T) {
	kr := &stubKeyring{
		dir:  "/home/u/.dbus-keyrings",
		mode: 0700,
		contexts: map[string][]byte{
			"org_freedesktop_general": []byte("1 1700000000 thecookie\n"),
		},
	}
	m := newCookieMechanism("1000", kr)
	resp, err := m.Continue([]byte("org_freedesktop_general 1 serverchallenge"))
	if err != nil {
		t.Fatalf("Continue: %v", err)
	}
	fields := strings.Fields(string(resp))
	if len(fields) != 2 {
		t.Fatalf("response = %q, want two space-separated fields", resp)
	}
	clientChallengeHex, sha1Hex := fields[0], fields[1]
	if _, err := hex.DecodeString(clientChallengeHex); err != nil {
		t.Errorf("client challenge %q is not valid hex: %v", clientChallengeHex, err)
	}
	want := sha1.Sum([]byte("serverchallenge:" + clientChallengeHex + ":thecookie"))
	if sha1Hex != hex.EncodeToString(want[:]) {
		t.Errorf("sha1 digest mismatch: got %s, want %s", sha1Hex, hex.EncodeToString(want[:]))
	}
}

func TestCookieMechanismUnknownCookieID(t *testing.T) {
	kr := &stubKeyring{
		dir:  "/home/u/.dbus-keyrings",
		mode: 0700,
		contexts: map[string][]byte{
			"org_freedesktop_general": []byte("1 1700000000 thecookie\n"),
		},
	}
	m := newCookieMechanism("1000", kr)
	if _, err := m.Continue([]byte("org_freedesktop_general 99 serverchallenge")); err == nil {
		t.Fatalf("Continue() = nil error, want error for unknown cookie id")
	}
}

func TestCookieMechanismMalformedChallenge(t *testing.T) {
	kr := &stubKeyring{dir: "/home/u/.dbus-keyrings", mode: 0700}
	m := newCookieMechanism("1000", kr)
	if _, err := m.Continue([]byte("not-enough-parts")); err == nil {
		t.Fatalf("Continue() = nil error, want error for malformed challenge")
	}
}
