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

// Package ldbdb implements the secondary index contract on a LevelDB
// key-value store. It preserves the safety properties of the symlink tree:
// Link atomically creates or replaces an entry, Unlink never removes an
// entry that has been reassigned to another key, and Check surfaces
// collisions instead of overwriting.
//
// Entries are keyed "<kind>:<identifier>" with the primary fingerprint as
// value.
package ldbdb

import (
	"github.com/pkg/errors"
	"github.com/syndtr/goleveldb/leveldb"

	"keydir/storage"
	"keydir/types"
)

type IndexStore struct {
	db *leveldb.DB
}

var _ storage.IndexStore = (*IndexStore)(nil)

// Open opens or creates an index store at path.
func Open(path string) (*IndexStore, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return &IndexStore{db: db}, nil
}

// New wraps an already-open LevelDB handle.
func New(db *leveldb.DB) *IndexStore {
	return &IndexStore{db: db}
}

func (s *IndexStore) Close() error {
	return errors.WithStack(s.db.Close())
}

func entryKey(kind storage.IndexKind, id string) []byte {
	return []byte(string(kind) + ":" + id)
}

// Link creates or replaces the entry for id in the given family.
func (s *IndexStore) Link(kind storage.IndexKind, id string, primary types.Fingerprint) error {
	err := s.db.Put(entryKey(kind, id), []byte(primary.String()), nil)
	return errors.WithStack(err)
}

// Unlink removes the entry for id only if it still resolves to primary. A
// missing or reassigned entry is left alone. The read and delete happen in
// one transaction so a concurrent relink cannot be lost.
func (s *IndexStore) Unlink(kind storage.IndexKind, id string, primary types.Fingerprint) error {
	tx, err := s.db.OpenTransaction()
	if err != nil {
		return errors.WithStack(err)
	}
	value, err := tx.Get(entryKey(kind, id), nil)
	if err == leveldb.ErrNotFound {
		tx.Discard()
		return nil
	} else if err != nil {
		tx.Discard()
		return errors.WithStack(err)
	}
	if string(value) != primary.String() {
		tx.Discard()
		return nil
	}
	if err := tx.Delete(entryKey(kind, id), nil); err != nil {
		tx.Discard()
		return errors.WithStack(err)
	}
	return errors.WithStack(tx.Commit())
}

// LookupPrimary returns the primary fingerprint the entry resolves to.
func (s *IndexStore) LookupPrimary(kind storage.IndexKind, id string) (types.Fingerprint, bool, error) {
	value, err := s.db.Get(entryKey(kind, id), nil)
	if err == leveldb.ErrNotFound {
		return "", false, nil
	} else if err != nil {
		return "", false, errors.WithStack(err)
	}
	fpr, err := types.ParseFingerprint(string(value))
	if err != nil {
		return "", false, errors.Wrapf(err, "corrupt index entry %s:%s", kind, id)
	}
	return fpr, true, nil
}

// Check verifies that the entry for id, if present, resolves to primary.
func (s *IndexStore) Check(kind storage.IndexKind, id string, primary types.Fingerprint) error {
	existing, ok, err := s.LookupPrimary(kind, id)
	if err != nil {
		return err
	}
	if ok && existing != primary {
		return errors.WithStack(storage.CollisionError{Kind: kind, ID: id})
	}
	return nil
}
