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

package fsdb

import (
	"io/fs"
	"os"
	"path/filepath"

	lru "github.com/hashicorp/golang-lru"
	"github.com/pkg/errors"

	"keydir/storage"
	"keydir/types"
)

// certCacheSize bounds the per-pass certificate cache. The cache is shared
// across passes of one CheckConsistency call and discarded afterwards.
const certCacheSize = 16384

type certLoader struct {
	fs    *Filesystem
	parse storage.ParseCertificate
	cache *lru.Cache
}

func (l *certLoader) load(primary types.Fingerprint) (storage.Certificate, error) {
	if cached, ok := l.cache.Get(primary); ok {
		return cached.(storage.Certificate), nil
	}
	buf, err := l.fs.ByPrimaryFpr(primary)
	if err != nil {
		return nil, errors.Wrapf(err, "no published key %s", primary)
	}
	cert, err := l.parse(buf)
	if err != nil {
		return nil, errors.Wrapf(err, "unreadable published key %s", primary)
	}
	l.cache.Add(primary, cert)
	return cert, nil
}

// performChecks walks dir and applies check to every non-directory entry,
// resolving the owning primary fingerprint and its certificate first.
func (l *certLoader) performChecks(dir string, check func(path string, cert storage.Certificate, primary types.Fingerprint) error) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return errors.WithStack(err)
		}
		if d.IsDir() {
			return nil
		}
		primary, err := pathToPrimary(path)
		if err != nil {
			return errors.WithStack(storage.MalformedPathError{Path: path})
		}
		cert, err := l.load(primary)
		if err != nil {
			return errors.Wrapf(err, "broken entry %q", path)
		}
		return check(path, cert, primary)
	})
}

// CheckConsistency verifies the whole tree: every published record is stored
// under its own fingerprint, every signing-capable (sub)key and every user
// ID email is indexed, and every index entry belongs to the certificate it
// resolves to. The pass is read-only and aborts on the first violation; it
// does not attempt repair.
//
// This may take a long time on a large store and is intended for operational
// auditing, not the request path.
func (fs *Filesystem) CheckConsistency(parse storage.ParseCertificate) error {
	cache, err := lru.New(certCacheSize)
	if err != nil {
		return errors.WithStack(err)
	}
	loader := &certLoader{fs: fs, parse: parse, cache: cache}

	// Every published record decodes to its own primary fingerprint.
	err = loader.performChecks(fs.publishedDir, func(path string, cert storage.Certificate, primary types.Fingerprint) error {
		fpr, err := pathToFingerprint(path)
		if err != nil {
			return errors.WithStack(storage.MalformedPathError{Path: path})
		}
		if fpr != primary {
			return errors.Errorf("%q points to the wrong key, expected %s but found %s",
				path, primary, fpr)
		}
		if cert.PrimaryFingerprint() != fpr {
			return errors.Errorf("%q stored under the wrong path, expected %s but found %s",
				path, cert.PrimaryFingerprint(), fpr)
		}
		return nil
	})
	if err != nil {
		return err
	}

	// All signing-capable (sub)keys are linked.
	err = loader.performChecks(fs.publishedDir, func(_ string, cert storage.Certificate, primary types.Fingerprint) error {
		for _, fpr := range cert.SigningFingerprints() {
			missing, err := fs.CheckLinkFpr(fpr, primary)
			if err != nil {
				return err
			}
			if missing {
				return errors.Errorf("missing link to key %s for sub %s", primary, fpr)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	// All user ID emails are linked.
	err = loader.performChecks(fs.publishedDir, func(_ string, cert storage.Certificate, primary types.Fingerprint) error {
		for _, email := range cert.Emails() {
			if _, err := os.Lstat(fs.entryPath(storage.ByEmail, email.String())); err != nil {
				return errors.Errorf("missing link to key %s for email %s", primary, email)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	// Every by-fpr entry names a (sub)key of the certificate it resolves to.
	err = loader.performChecks(fs.byFprDir, func(path string, cert storage.Certificate, _ types.Fingerprint) error {
		fpr, err := pathToFingerprint(path)
		if err != nil {
			return errors.WithStack(storage.MalformedPathError{Path: path})
		}
		for _, keyFpr := range cert.KeyFingerprints() {
			if keyFpr == fpr {
				return nil
			}
		}
		return errors.Errorf("%q points to the wrong key, no (sub)key %s", path, fpr)
	})
	if err != nil {
		return err
	}

	// Every by-keyid entry names a (sub)key of the certificate it resolves
	// to.
	err = loader.performChecks(fs.byKeyIDDir, func(path string, cert storage.Certificate, _ types.Fingerprint) error {
		kid, err := pathToKeyID(path)
		if err != nil {
			return errors.WithStack(storage.MalformedPathError{Path: path})
		}
		for _, keyFpr := range cert.KeyFingerprints() {
			if keyFpr.KeyID() == kid {
				return nil
			}
		}
		return errors.Errorf("%q points to the wrong key, no (sub)key %s", path, kid)
	})
	if err != nil {
		return err
	}

	// Every by-email entry names a user ID of the certificate it resolves
	// to.
	return loader.performChecks(fs.byEmailDir, func(path string, cert storage.Certificate, _ types.Fingerprint) error {
		email, err := pathToEmail(path)
		if err != nil {
			return errors.WithStack(storage.MalformedPathError{Path: path})
		}
		for _, certEmail := range cert.Emails() {
			if certEmail == email {
				return nil
			}
		}
		return errors.Errorf("%q points to the wrong key, no email %s", path, email)
	})
}
