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
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

// ensureParent creates the parent directory of path if missing and returns
// path for chaining.
func ensureParent(path string) (string, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return "", errors.WithStack(err)
	}
	return path, nil
}

// writeThenPublish writes content to a freshly created temporary file in the
// scratch directory, flushes it, sets the permission bits, then atomically
// renames it onto target. The target never appears except fully written. The
// temporary file is removed on every failure path.
func (fs *Filesystem) writeThenPublish(target string, content []byte, mode os.FileMode) error {
	f, err := os.CreateTemp(fs.tmpDir, "key")
	if err != nil {
		return errors.WithStack(err)
	}
	tmpName := f.Name()
	published := false
	defer func() {
		if !published {
			os.Remove(tmpName)
		}
	}()

	if _, err := f.Write(content); err != nil {
		f.Close()
		return errors.WithStack(err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return errors.WithStack(err)
	}
	if err := f.Chmod(mode); err != nil {
		f.Close()
		return errors.WithStack(err)
	}
	if err := f.Close(); err != nil {
		return errors.WithStack(err)
	}

	if _, err := ensureParent(target); err != nil {
		return err
	}
	if err := os.Rename(tmpName, target); err != nil {
		return errors.WithStack(err)
	}
	published = true
	return nil
}

// symlinkReplace atomically creates or replaces linkName pointing at target.
// The new symlink is created under a fresh temporary directory next to the
// destination and renamed into place, so the destination is always either
// absent or a fully-formed link.
func symlinkReplace(target, linkName string) error {
	if _, err := ensureParent(linkName); err != nil {
		return err
	}
	tmpDir, err := os.MkdirTemp(filepath.Dir(linkName), "link")
	if err != nil {
		return errors.WithStack(err)
	}
	defer os.RemoveAll(tmpDir)

	tmpLink := filepath.Join(tmpDir, "link")
	if err := os.Symlink(target, tmpLink); err != nil {
		return errors.WithStack(err)
	}
	if err := os.Rename(tmpLink, linkName); err != nil {
		return errors.WithStack(err)
	}
	return nil
}
