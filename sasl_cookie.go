package dbusconn

import (
	"bufio"
	"bytes"
	"crypto/rand"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// cookieKeyring is the filesystem capability the DBUS_COOKIE_SHA1 mechanism
// reads cookies through. It is injected rather than hard-coded so it can be
// stubbed in tests ("the SASL cookie code reads the user's home
// directory; treat it as an injected filesystem capability").
type cookieKeyring interface {
	// Stat returns the keyring directory path and its permission mode.
	Stat() (dir string, mode os.FileMode, err error)
	// ReadContext returns the raw bytes of the cookie file named context.
	ReadContext(context string) ([]byte, error)
}

// homeCookieKeyring is the default keyring: $HOME/.dbus-keyrings.
type homeCookieKeyring struct{}

func (homeCookieKeyring) dir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".dbus-keyrings"), nil
}

func (k homeCookieKeyring) Stat() (string, os.FileMode, error) {
	dir, err := k.dir()
	if err != nil {
		return "", 0, newErr(KindSASLCookie, err)
	}
	info, err := os.Stat(dir)
	if err != nil {
		return "", 0, newErr(KindSASLCookie, err)
	}
	owned, err := keyringOwnedByCurrentUser(dir)
	if err != nil {
		return "", 0, newErr(KindSASLCookie, err)
	}
	if !owned {
		return "", 0, newErr(KindSASLCookie, errStr("keyring directory is not owned by the current user"))
	}
	return dir, info.Mode().Perm(), nil
}

func (k homeCookieKeyring) ReadContext(context string) ([]byte, error) {
	dir, err := k.dir()
	if err != nil {
		return nil, newErr(KindSASLCookie, err)
	}
	b, err := os.ReadFile(filepath.Join(dir, context))
	if err != nil {
		return nil, newErr(KindSASLCookie, err)
	}
	return b, nil
}

// cookieMechanism implements DBUS_COOKIE_SHA1.
type cookieMechanism struct {
	identity string
	keyring  cookieKeyring
}

func newCookieMechanism(identity string, keyring cookieKeyring) *cookieMechanism {
	if keyring == nil {
		keyring = homeCookieKeyring{}
	}
	return &cookieMechanism{identity: identity, keyring: keyring}
}

func (m *cookieMechanism) Name() string { return "DBUS_COOKIE_SHA1" }

func (m *cookieMechanism) InitialResponse() ([]byte, error) {
	return []byte(m.identity), nil
}

// Continue decodes "<context> <cookie-id> <server-challenge>", looks up the
// cookie, and replies "<client-challenge-hex> <sha1-hex>" where the digest
// covers "server-challenge:client-challenge-hex:cookie".
func (m *cookieMechanism) Continue(challenge []byte) ([]byte, error) {
	_, mode, err := m.keyring.Stat()
	if err != nil {
		return nil, err
	}
	if mode&0077 != 0 {
		return nil, newErr(KindSASLCookie, fmt.Errorf("keyring directory mode %o is group/world accessible", mode))
	}

	parts := strings.SplitN(string(challenge), " ", 3)
	if len(parts) != 3 {
		return nil, newErr(KindSASLCookie, errStr("malformed DBUS_COOKIE_SHA1 challenge"))
	}
	context, cookieID, serverChallenge := parts[0], parts[1], parts[2]

	cookie, err := m.lookupCookie(context, cookieID)
	if err != nil {
		return nil, err
	}

	clientChallenge := make([]byte, 16)
	if _, err := rand.Read(clientChallenge); err != nil {
		return nil, newErr(KindTransportIO, err)
	}
	clientChallengeHex := hex.EncodeToString(clientChallenge)

	sum := sha1.Sum([]byte(serverChallenge + ":" + clientChallengeHex + ":" + cookie))
	response := clientChallengeHex + " " + hex.EncodeToString(sum[:])
	return []byte(response), nil
}

func (m *cookieMechanism) lookupCookie(context, cookieID string) (string, error) {
	raw, err := m.keyring.ReadContext(context)
	if err != nil {
		return "", err
	}
	scanner := bufio.NewScanner(bytes.NewReader(raw))
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) != 3 {
			continue
		}
		if fields[0] == cookieID {
			return fields[2], nil
		}
	}
	return "", newErr(KindSASLCookie, fmt.Errorf("no cookie with id %q in context %q", cookieID, context))
}
