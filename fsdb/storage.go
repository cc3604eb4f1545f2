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

// Package fsdb implements the keydir storage engine on a POSIX filesystem.
//
// Certificate records live in three tiers (full, quarantined, published)
// keyed by primary fingerprint, with sharded directory layouts. Secondary
// lookups (by-fpr, by-keyid, by-email) are symlink trees whose entries point
// at published records. Every mutation is atomic: records are staged in a
// scratch directory and renamed into place, symlinks are created in a
// temporary directory and renamed onto their destination. Writers serialize
// on a process-wide advisory file lock; readers take no lock and always
// observe either the old or the new state of any single file.
package fsdb

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"keydir/storage"
	"keydir/types"
)

const (
	fullFileMode      = 0640
	publishedFileMode = 0644
)

// Filesystem is the filesystem-backed certificate database.
type Filesystem struct {
	tmpDir string

	internalDir string
	externalDir string

	fullDir        string
	quarantinedDir string
	publishedDir   string

	byFprDir   string
	byKeyIDDir string
	byEmailDir string

	dryRun bool
}

var _ storage.IndexStore = (*Filesystem)(nil)

// Settings holds the filesystem backend configuration.
type Settings struct {
	InternalDir string `toml:"internalDir"`
	ExternalDir string `toml:"externalDir"`
	TmpDir      string `toml:"tmpDir"`
	DryRun      bool   `toml:"dryRun"`
}

// NewFromBase opens a database with internal and external trees sharing
// baseDir/keys and scratch space in baseDir/tmp.
func NewFromBase(baseDir string) (*Filesystem, error) {
	keysDir := filepath.Join(baseDir, "keys")
	return New(&Settings{
		InternalDir: keysDir,
		ExternalDir: keysDir,
		TmpDir:      filepath.Join(baseDir, "tmp"),
	})
}

// New opens a database at the configured roots, creating any missing
// directories.
func New(s *Settings) (*Filesystem, error) {
	internalDir, err := filepath.Abs(s.InternalDir)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	externalDir, err := filepath.Abs(s.ExternalDir)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	tmpDir, err := filepath.Abs(s.TmpDir)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	fs := &Filesystem{
		tmpDir: tmpDir,

		internalDir: internalDir,
		externalDir: externalDir,

		fullDir:        filepath.Join(internalDir, "full"),
		quarantinedDir: filepath.Join(internalDir, "quarantined"),
		publishedDir:   filepath.Join(externalDir, "pub"),

		byFprDir:   filepath.Join(externalDir, "links", "by-fpr"),
		byKeyIDDir: filepath.Join(externalDir, "links", "by-keyid"),
		byEmailDir: filepath.Join(externalDir, "links", "by-email"),

		dryRun: s.DryRun,
	}

	for _, dir := range []string{
		fs.tmpDir,
		fs.fullDir, fs.quarantinedDir, fs.publishedDir,
		fs.byFprDir, fs.byKeyIDDir, fs.byEmailDir,
	} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, errors.WithStack(err)
		}
	}

	registerMetrics()

	log.Infof("opened filesystem database")
	log.Infof("internal dir: %q", fs.internalDir)
	log.Infof("external dir: %q", fs.externalDir)
	log.Infof("tmp dir: %q", fs.tmpDir)
	return fs, nil
}

// Lock blocks until the process-wide write lock is acquired. The returned
// guard must be released on every exit path of the caller's critical
// section.
func (fs *Filesystem) Lock() (storage.Guard, error) {
	return lockDir(fs.internalDir)
}

// WriteToFull stages content into the full tier for fpr. No-op under dry
// run.
func (fs *Filesystem) WriteToFull(fpr types.Fingerprint, content []byte) error {
	if fs.dryRun {
		return nil
	}
	err := fs.writeThenPublish(fs.fingerprintPathFull(fpr), content, fullFileMode)
	if err == nil {
		metrics.tierWrites.WithLabelValues("full").Inc()
	}
	return err
}

// WriteToPublished stages content into the published tier for fpr. No-op
// under dry run.
func (fs *Filesystem) WriteToPublished(fpr types.Fingerprint, content []byte) error {
	if fs.dryRun {
		return nil
	}
	err := fs.writeThenPublish(fs.fingerprintPathPublished(fpr), content, publishedFileMode)
	if err == nil {
		metrics.tierWrites.WithLabelValues("published").Inc()
	}
	return err
}

// WriteToQuarantine stages content into the quarantine tier for fpr.
// Quarantine writes are an audit capture and happen even under dry run;
// callers must not rely on them being elided.
func (fs *Filesystem) WriteToQuarantine(fpr types.Fingerprint, content []byte) error {
	err := fs.writeThenPublish(fs.fingerprintPathQuarantined(fpr), content, fullFileMode)
	if err == nil {
		metrics.tierWrites.WithLabelValues("quarantined").Inc()
	}
	return err
}

// readFromPath reads a record after verifying the path lies within the
// configured roots. Absence is reported as ErrKeyNotFound.
func (fs *Filesystem) readFromPath(path string, allowInternal bool) ([]byte, error) {
	fs.assertConfined(path, allowInternal)
	buf, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, storage.ErrKeyNotFound
	} else if err != nil {
		return nil, errors.WithStack(err)
	}
	return buf, nil
}

// ByFprFull returns the full-tier record for fpr.
func (fs *Filesystem) ByFprFull(fpr types.Fingerprint) ([]byte, error) {
	return fs.readFromPath(fs.fingerprintPathFull(fpr), true)
}

// ByPrimaryFpr returns the published record for the primary fingerprint fpr.
func (fs *Filesystem) ByPrimaryFpr(fpr types.Fingerprint) ([]byte, error) {
	return fs.readFromPath(fs.fingerprintPathPublished(fpr), false)
}

// ByFpr returns the published record that the by-fpr index resolves fpr to.
func (fs *Filesystem) ByFpr(fpr types.Fingerprint) ([]byte, error) {
	return fs.readFromPath(fs.entryPath(storage.ByFpr, fpr.String()), false)
}

// ByKeyID returns the published record that the by-keyid index resolves kid
// to.
func (fs *Filesystem) ByKeyID(kid types.KeyID) ([]byte, error) {
	return fs.readFromPath(fs.entryPath(storage.ByKeyID, kid.String()), false)
}

// ByEmail returns the published record that the by-email index resolves
// email to.
func (fs *Filesystem) ByEmail(email types.Email) ([]byte, error) {
	return fs.readFromPath(fs.entryPath(storage.ByEmail, email.String()), false)
}

// Lookup resolves a query through its index family and returns the published
// record.
func (fs *Filesystem) Lookup(q storage.Query) ([]byte, error) {
	path, ok := fs.queryPath(q)
	if !ok {
		return nil, storage.ErrKeyNotFound
	}
	return fs.readFromPath(path, false)
}

func (fs *Filesystem) queryPath(q storage.Query) (string, bool) {
	switch term := q.(type) {
	case storage.FingerprintQuery:
		return fs.entryPath(storage.ByFpr, types.Fingerprint(term).String()), true
	case storage.KeyIDQuery:
		return fs.entryPath(storage.ByKeyID, types.KeyID(term).String()), true
	case storage.EmailQuery:
		return fs.entryPath(storage.ByEmail, types.Email(term).String()), true
	}
	return "", false
}

// LookupPrimaryFingerprint returns the primary fingerprint a query currently
// resolves to, if any.
func (fs *Filesystem) LookupPrimaryFingerprint(q storage.Query) (types.Fingerprint, bool) {
	path, ok := fs.queryPath(q)
	if !ok {
		return "", false
	}
	target, err := os.Readlink(path)
	if err != nil {
		return "", false
	}
	fpr, err := pathToFingerprint(target)
	if err != nil {
		return "", false
	}
	return fpr, true
}

// LookupPath returns the path of the record a query resolves to, relative to
// the external root.
func (fs *Filesystem) LookupPath(q storage.Query) (string, bool) {
	path, ok := fs.queryPath(q)
	if !ok {
		return "", false
	}
	if _, err := os.Stat(path); err != nil {
		return "", false
	}
	rel, err := filepath.Rel(fs.externalDir, path)
	if err != nil {
		return "", false
	}
	return rel, true
}

// relTarget computes the expected symlink target: the path from the entry's
// directory to the published record of primary.
func (fs *Filesystem) relTarget(entry string, primary types.Fingerprint) (string, error) {
	target, err := filepath.Rel(filepath.Dir(entry), fs.fingerprintPathPublished(primary))
	if err != nil {
		return "", errors.WithStack(err)
	}
	return target, nil
}

// Link creates or replaces the index entry for id in the given family,
// pointing at the published record of primary. Linking an entry that already
// has the expected target is a no-op, as is any link under dry run.
func (fs *Filesystem) Link(kind storage.IndexKind, id string, primary types.Fingerprint) error {
	if fs.dryRun {
		return nil
	}
	entry := fs.entryPath(kind, id)
	target, err := fs.relTarget(entry, primary)
	if err != nil {
		return err
	}
	if existing, err := os.Readlink(entry); err == nil && existing == target {
		return nil
	}
	if err := symlinkReplace(target, entry); err != nil {
		return err
	}
	metrics.indexOps.WithLabelValues(string(kind), "link").Inc()
	return nil
}

// Unlink removes the index entry for id only if it still points at the
// published record of primary. A missing entry or an entry that has since
// been reassigned to another key is left alone.
func (fs *Filesystem) Unlink(kind storage.IndexKind, id string, primary types.Fingerprint) error {
	if fs.dryRun {
		return nil
	}
	entry := fs.entryPath(kind, id)
	expected, err := fs.relTarget(entry, primary)
	if err != nil {
		return err
	}
	existing, err := os.Readlink(entry)
	if err != nil {
		return nil
	}
	if existing != expected {
		return nil
	}
	if err := os.Remove(entry); err != nil {
		return errors.WithStack(err)
	}
	metrics.indexOps.WithLabelValues(string(kind), "unlink").Inc()
	return nil
}

// LookupPrimary returns the primary fingerprint an index entry resolves to.
func (fs *Filesystem) LookupPrimary(kind storage.IndexKind, id string) (types.Fingerprint, bool, error) {
	target, err := os.Readlink(fs.entryPath(kind, id))
	if os.IsNotExist(err) {
		return "", false, nil
	} else if err != nil {
		return "", false, errors.WithStack(err)
	}
	fpr, err := pathToFingerprint(target)
	if err != nil {
		return "", false, storage.MalformedPathError{Path: target}
	}
	return fpr, true, nil
}

// Check verifies that the index entry for id, if present, resolves to the
// published record of primary. An entry resolving elsewhere is a collision
// and is never overwritten.
func (fs *Filesystem) Check(kind storage.IndexKind, id string, primary types.Fingerprint) error {
	entry := fs.entryPath(kind, id)
	resolved, err := filepath.EvalSymlinks(entry)
	if err != nil {
		// Absent entries are not collisions.
		return nil
	}
	if !pathHasSuffix(resolved, filepath.Join("pub", pathSplit(primary.String()))) {
		log.Infof("%s entry for %q points to different key (expected %q to resolve to %s)",
			kind, id, resolved, primary)
		metrics.collisions.WithLabelValues(string(kind)).Inc()
		return errors.WithStack(storage.CollisionError{Kind: kind, ID: id})
	}
	return nil
}

// pathHasSuffix reports whether the trailing components of path equal
// suffix, component-wise.
func pathHasSuffix(path, suffix string) bool {
	path = filepath.ToSlash(filepath.Clean(path))
	suffix = filepath.ToSlash(filepath.Clean(suffix))
	return path == suffix || strings.HasSuffix(path, "/"+suffix)
}

// LinkEmail indexes email to the published record of fpr.
func (fs *Filesystem) LinkEmail(email types.Email, fpr types.Fingerprint) error {
	return fs.Link(storage.ByEmail, email.String(), fpr)
}

// UnlinkEmail removes the email index entry if it still resolves to fpr.
func (fs *Filesystem) UnlinkEmail(email types.Email, fpr types.Fingerprint) error {
	return fs.Unlink(storage.ByEmail, email.String(), fpr)
}

// LinkFpr indexes the (sub)key fingerprint from, and its derived key ID, to
// the published record of primary.
func (fs *Filesystem) LinkFpr(from, primary types.Fingerprint) error {
	if err := fs.Link(storage.ByFpr, from.String(), primary); err != nil {
		return err
	}
	return fs.Link(storage.ByKeyID, from.KeyID().String(), primary)
}

// UnlinkFpr removes the by-fpr and by-keyid entries for from if they still
// resolve to primary.
func (fs *Filesystem) UnlinkFpr(from, primary types.Fingerprint) error {
	if err := fs.Unlink(storage.ByFpr, from.String(), primary); err != nil {
		return err
	}
	return fs.Unlink(storage.ByKeyID, from.KeyID().String(), primary)
}

// CheckLinkFpr verifies the by-fpr and by-keyid entries of the (sub)key
// fingerprint fpr against the published record of primary. It returns true
// when at least one of the two entries is absent and should be linked, and a
// CollisionError if either entry resolves to a different key.
func (fs *Filesystem) CheckLinkFpr(fpr, primary types.Fingerprint) (bool, error) {
	if err := fs.Check(storage.ByFpr, fpr.String(), primary); err != nil {
		return false, err
	}
	if err := fs.Check(storage.ByKeyID, fpr.KeyID().String(), primary); err != nil {
		return false, err
	}
	_, fprExists, err := fs.LookupPrimary(storage.ByFpr, fpr.String())
	if err != nil {
		return false, err
	}
	_, kidExists, err := fs.LookupPrimary(storage.ByKeyID, fpr.KeyID().String())
	if err != nil {
		return false, err
	}
	return !fprExists || !kidExists, nil
}
