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

package storage

import (
	"errors"
	"fmt"

	pkgerrors "github.com/pkg/errors"

	"keydir/types"
)

var ErrKeyNotFound = errors.New("key not found")

func IsNotFound(err error) bool {
	return pkgerrors.Cause(err) == ErrKeyNotFound
}

// IndexKind identifies one of the secondary index families.
type IndexKind string

const (
	ByFpr   IndexKind = "by-fpr"
	ByKeyID IndexKind = "by-keyid"
	ByEmail IndexKind = "by-email"
)

// Query is a lookup term for one of the index families.
type Query interface {
	indexKind() IndexKind
}

type FingerprintQuery types.Fingerprint

func (FingerprintQuery) indexKind() IndexKind { return ByFpr }

type KeyIDQuery types.KeyID

func (KeyIDQuery) indexKind() IndexKind { return ByKeyID }

type EmailQuery types.Email

func (EmailQuery) indexKind() IndexKind { return ByEmail }

// Kind returns the index family a query resolves through.
func Kind(q Query) IndexKind { return q.indexKind() }

// Certificate is the read-only capability the engine needs over an
// already-parsed certificate. It deliberately exposes nothing about packet
// structure; parsing and merging happen upstream.
type Certificate interface {
	// PrimaryFingerprint returns the fingerprint of the primary key.
	PrimaryFingerprint() types.Fingerprint

	// KeyFingerprints returns the fingerprints of the primary key and all
	// subkeys, regardless of capability.
	KeyFingerprints() []types.Fingerprint

	// SigningFingerprints returns the fingerprints of the primary key and
	// of every certification- or signing-capable subkey. These are the
	// identifiers that must be indexed.
	SigningFingerprints() []types.Fingerprint

	// Emails returns the canonical email addresses of all user IDs.
	Emails() []types.Email

	// Revoked reports whether the primary key carries a revocation.
	Revoked() bool
}

// ParseCertificate turns stored record bytes back into a Certificate. The
// consistency checker takes one of these so that the engine stays decoupled
// from certificate-format logic.
type ParseCertificate func([]byte) (Certificate, error)

// Guard is a held write lock. Release must be called on every exit path of
// the critical section.
type Guard interface {
	Release() error
}

// IndexStore maps (kind, identifier) to the primary fingerprint of a
// published record. Link atomically creates or replaces an entry; Unlink
// removes an entry only if it still resolves to the given primary
// fingerprint; Check fails with a CollisionError if the entry resolves to a
// different primary than expected.
//
// The canonical implementation is the symlink tree in fsdb; ldbdb provides
// the same contract on a key-value store.
type IndexStore interface {
	Link(kind IndexKind, id string, primary types.Fingerprint) error
	Unlink(kind IndexKind, id string, primary types.Fingerprint) error
	LookupPrimary(kind IndexKind, id string) (types.Fingerprint, bool, error)
	Check(kind IndexKind, id string, primary types.Fingerprint) error
}

// CollisionError reports an index entry that already resolves to a different
// primary certificate than the one being registered. It is never resolved
// automatically; operators must intervene.
type CollisionError struct {
	Kind IndexKind
	ID   string
}

func (e CollisionError) Error() string {
	return fmt.Sprintf("%s collision for %q", e.Kind, e.ID)
}

func IsCollision(err error) bool {
	_, ok := pkgerrors.Cause(err).(CollisionError)
	return ok
}

// MalformedPathError reports a path under a managed root that does not
// reverse-map to a valid identifier.
type MalformedPathError struct {
	Path string
}

func (e MalformedPathError) Error() string {
	return fmt.Sprintf("malformed path %q", e.Path)
}

func IsMalformedPath(err error) bool {
	_, ok := pkgerrors.Cause(err).(MalformedPathError)
	return ok
}
