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
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"keydir/storage"
	"keydir/types"
)

// pathSplit shards an identifier string into a 2/2/remainder directory
// layout to bound directory fan-out. Strings of length <= 4 are stored
// unsharded.
func pathSplit(s string) string {
	if len(s) > 4 {
		return filepath.Join(s[:2], s[2:4], s[4:])
	}
	return s
}

// pathMerge reverses pathSplit by concatenating the last three path
// components in original order. This is exact because pathSplit always
// produces exactly three trailing components for sharded identifiers.
func pathMerge(path string) string {
	comps := strings.Split(filepath.ToSlash(filepath.Clean(path)), "/")
	if len(comps) > 3 {
		comps = comps[len(comps)-3:]
	}
	return strings.Join(comps, "")
}

// encodeEmail percent-encodes an address so it is a valid path segment that
// round-trips losslessly through pathSplit/pathMerge.
func encodeEmail(email types.Email) string {
	return url.QueryEscape(email.String())
}

func pathToFingerprint(path string) (types.Fingerprint, error) {
	return types.ParseFingerprint(pathMerge(path))
}

func pathToKeyID(path string) (types.KeyID, error) {
	return types.ParseKeyID(pathMerge(path))
}

func pathToEmail(path string) (types.Email, error) {
	decoded, err := url.QueryUnescape(pathMerge(path))
	if err != nil {
		return "", storage.MalformedPathError{Path: path}
	}
	return types.ParseEmail(decoded)
}

// pathToPrimary resolves the primary fingerprint backing any managed path,
// following at most one level of symlink. Index entries are symlinks into the
// published tree; records resolve directly.
func pathToPrimary(path string) (types.Fingerprint, error) {
	fi, err := os.Lstat(path)
	if err != nil {
		return "", err
	}
	if fi.Mode()&os.ModeSymlink != 0 {
		target, err := os.Readlink(path)
		if err != nil {
			return "", err
		}
		return pathToFingerprint(target)
	}
	return pathToFingerprint(path)
}

func (fs *Filesystem) fingerprintPathFull(fpr types.Fingerprint) string {
	return filepath.Join(fs.fullDir, pathSplit(fpr.String()))
}

func (fs *Filesystem) fingerprintPathQuarantined(fpr types.Fingerprint) string {
	return filepath.Join(fs.quarantinedDir, fpr.String())
}

func (fs *Filesystem) fingerprintPathPublished(fpr types.Fingerprint) string {
	return filepath.Join(fs.publishedDir, pathSplit(fpr.String()))
}

// entryPath returns the index entry path for an identifier in the given
// family. Email identifiers are percent-encoded before sharding.
func (fs *Filesystem) entryPath(kind storage.IndexKind, id string) string {
	switch kind {
	case storage.ByFpr:
		return filepath.Join(fs.byFprDir, pathSplit(id))
	case storage.ByKeyID:
		return filepath.Join(fs.byKeyIDDir, pathSplit(id))
	case storage.ByEmail:
		return filepath.Join(fs.byEmailDir, pathSplit(url.QueryEscape(id)))
	}
	panic("unknown index kind " + string(kind))
}

// assertConfined panics if path escapes the configured roots. A path built
// from an identifier can never leave them; escaping means a logic bug or a
// hostile identifier that bypassed upstream validation.
func (fs *Filesystem) assertConfined(path string, allowInternal bool) {
	clean := filepath.Clean(path)
	if strings.HasPrefix(clean, fs.externalDir+string(filepath.Separator)) {
		return
	}
	if allowInternal && strings.HasPrefix(clean, fs.internalDir+string(filepath.Separator)) {
		return
	}
	panic("attempted to access file outside expected dirs: " + path)
}
