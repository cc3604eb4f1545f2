/*
   Keydir - OpenPGP certificate directory
   Copyright (C) 2019-2023  Keydir contributors

   This program is free software: you can redistribute it and/or modify
   it under the terms of the GNU Affero General Public License as published by
   the Free Software Foundation, version 3.

   This program is distributed in the hope that it will be useful,
   but WITHOUT ANY WARRANTY; without even the implied warranty of
   MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
   GNU Affero General Public License for more details.

   You should have received a copy of the GNU Affero General Public License
   along with this program.  If not, see <http://www.gnu.org/licenses/>.
*/

// Package types provides the identifier value types used throughout keydir:
// primary key fingerprints, 64-bit key IDs and canonical email addresses.
// Values are validated on construction and opaque afterwards.
package types

import (
	"net/mail"
	"strings"

	"github.com/pkg/errors"
)

const (
	fingerprintLen = 40
	keyIDLen       = 16
)

// Fingerprint is the canonical 40-digit uppercase hex form of an OpenPGP v4
// key fingerprint.
type Fingerprint string

// KeyID is the canonical 16-digit uppercase hex form of an OpenPGP key ID,
// the low-order half of a fingerprint.
type KeyID string

// Email is a canonicalized email address taken from a user ID. Addresses are
// lowercased so that lookups are case-insensitive.
type Email string

func isHex(s string) bool {
	for _, c := range s {
		switch {
		case c >= '0' && c <= '9':
		case c >= 'a' && c <= 'f':
		case c >= 'A' && c <= 'F':
		default:
			return false
		}
	}
	return true
}

// ParseFingerprint validates and canonicalizes a fingerprint string.
func ParseFingerprint(s string) (Fingerprint, error) {
	s = strings.TrimSpace(strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X"))
	if len(s) != fingerprintLen || !isHex(s) {
		return "", errors.Errorf("invalid fingerprint %q", s)
	}
	return Fingerprint(strings.ToUpper(s)), nil
}

func (f Fingerprint) String() string {
	return string(f)
}

// KeyID returns the 64-bit key ID derived from the fingerprint.
func (f Fingerprint) KeyID() KeyID {
	return KeyID(f[len(f)-keyIDLen:])
}

// ParseKeyID validates and canonicalizes a long key ID string.
func ParseKeyID(s string) (KeyID, error) {
	s = strings.TrimSpace(strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X"))
	if len(s) != keyIDLen || !isHex(s) {
		return "", errors.Errorf("invalid key ID %q", s)
	}
	return KeyID(strings.ToUpper(s)), nil
}

func (k KeyID) String() string {
	return string(k)
}

// ParseEmail validates an address and returns its canonical lowercase form.
func ParseEmail(s string) (Email, error) {
	addr, err := mail.ParseAddress(strings.TrimSpace(s))
	if err != nil {
		return "", errors.Wrapf(err, "invalid email %q", s)
	}
	if !strings.Contains(addr.Address, "@") {
		return "", errors.Errorf("invalid email %q", s)
	}
	return Email(strings.ToLower(addr.Address)), nil
}

func (e Email) String() string {
	return string(e)
}
