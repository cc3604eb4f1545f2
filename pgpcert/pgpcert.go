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

// Package pgpcert implements the read-only certificate capability over
// OpenPGP key material. It extracts exactly what the storage engine needs
// (primary fingerprint, indexable (sub)keys, user ID emails, revocation
// status) and exposes nothing of the packet structure.
package pgpcert

import (
	"bytes"
	"encoding/hex"
	"strings"

	"github.com/ProtonMail/go-crypto/openpgp"
	"github.com/ProtonMail/go-crypto/openpgp/packet"
	"github.com/pkg/errors"

	"keydir/storage"
	"keydir/types"
)

// Certificate is a parsed OpenPGP certificate reduced to its identifiers.
type Certificate struct {
	primary types.Fingerprint
	keys    []types.Fingerprint
	signing []types.Fingerprint
	emails  []types.Email
	revoked bool
}

var _ storage.Certificate = (*Certificate)(nil)

func (c *Certificate) PrimaryFingerprint() types.Fingerprint    { return c.primary }
func (c *Certificate) KeyFingerprints() []types.Fingerprint     { return c.keys }
func (c *Certificate) SigningFingerprints() []types.Fingerprint { return c.signing }
func (c *Certificate) Emails() []types.Email                    { return c.emails }
func (c *Certificate) Revoked() bool                            { return c.revoked }

func keyFingerprint(pk *packet.PublicKey) (types.Fingerprint, error) {
	return types.ParseFingerprint(strings.ToUpper(hex.EncodeToString(pk.Fingerprint)))
}

// Parse reads one certificate from armored or binary key material.
func Parse(buf []byte) (*Certificate, error) {
	var el openpgp.EntityList
	var err error
	if bytes.Contains(buf, []byte("-----BEGIN PGP")) {
		el, err = openpgp.ReadArmoredKeyRing(bytes.NewReader(buf))
	} else {
		el, err = openpgp.ReadKeyRing(bytes.NewReader(buf))
	}
	if err != nil {
		return nil, errors.Wrap(err, "unreadable key material")
	}
	if len(el) != 1 {
		return nil, errors.Errorf("expected one key, read %d", len(el))
	}
	return fromEntity(el[0])
}

// ParseCertificate adapts Parse to the storage.ParseCertificate contract.
func ParseCertificate(buf []byte) (storage.Certificate, error) {
	return Parse(buf)
}

func fromEntity(e *openpgp.Entity) (*Certificate, error) {
	primary, err := keyFingerprint(e.PrimaryKey)
	if err != nil {
		return nil, errors.Wrap(err, "invalid primary key fingerprint")
	}

	cert := &Certificate{
		primary: primary,
		// The primary key is always certification-capable and must be
		// indexed under its own fingerprint.
		keys:    []types.Fingerprint{primary},
		signing: []types.Fingerprint{primary},
		revoked: len(e.Revocations) > 0,
	}

	for _, subkey := range e.Subkeys {
		fpr, err := keyFingerprint(subkey.PublicKey)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid subkey fingerprint on %s", primary)
		}
		cert.keys = append(cert.keys, fpr)
		if subkey.Sig != nil && subkey.Sig.FlagsValid &&
			(subkey.Sig.FlagSign || subkey.Sig.FlagCertify) {
			cert.signing = append(cert.signing, fpr)
		}
	}

	for _, ident := range e.Identities {
		if ident.UserId == nil || ident.UserId.Email == "" {
			continue
		}
		email, err := types.ParseEmail(ident.UserId.Email)
		if err != nil {
			// User IDs are free-form; skip addresses that do not parse.
			continue
		}
		cert.emails = append(cert.emails, email)
	}

	return cert, nil
}
