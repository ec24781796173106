//go:build unix

package dbusconn

import "golang.org/x/sys/unix"

// keyringOwnedByCurrentUser reports whether dir is owned by the uid of the
// current process. A keyring owned by anyone else cannot be trusted for
// DBUS_COOKIE_SHA1, regardless of its permission bits.
func keyringOwnedByCurrentUser(dir string) (bool, error) {
	var st unix.Stat_t
	if err := unix.Stat(dir, &st); err != nil {
		return false, err
	}
	return int(st.Uid) == unix.Getuid(), nil
}
