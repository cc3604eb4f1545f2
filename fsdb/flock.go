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
	"golang.org/x/sys/unix"
)

const lockFileName = ".lock"

// flockGuard holds the process-wide advisory write lock, an exclusive
// flock(2) on a lock file under the internal root. All mutations happen
// under one guard; readers never take it.
type flockGuard struct {
	f *os.File
}

// lockDir blocks until the exclusive lock on dir is acquired. There is no
// timeout; callers needing bounded wait must layer it externally.
func lockDir(dir string) (*flockGuard, error) {
	f, err := os.OpenFile(filepath.Join(dir, lockFileName), os.O_CREATE|os.O_RDWR, 0640)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	for {
		err = unix.Flock(int(f.Fd()), unix.LOCK_EX)
		if err != unix.EINTR {
			break
		}
	}
	if err != nil {
		f.Close()
		return nil, errors.WithStack(err)
	}
	return &flockGuard{f: f}, nil
}

func (g *flockGuard) Release() error {
	defer g.f.Close()
	if err := unix.Flock(int(g.f.Fd()), unix.LOCK_UN); err != nil {
		return errors.WithStack(err)
	}
	return nil
}
