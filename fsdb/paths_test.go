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
	"path/filepath"

	gc "gopkg.in/check.v1"

	"keydir/storage"
	"keydir/types"
)

type PathsSuite struct{}

var _ = gc.Suite(&PathsSuite{})

const testFpr = "CBCD8F030588653EEDD7E2659B7DD433F254904A"

func (s *PathsSuite) TestPathSplit(c *gc.C) {
	c.Assert(pathSplit(testFpr), gc.Equals,
		filepath.Join("CB", "CD", "8F030588653EEDD7E2659B7DD433F254904A"))
	c.Assert(pathSplit("ABCD"), gc.Equals, "ABCD")
	c.Assert(pathSplit("AB"), gc.Equals, "AB")
}

func (s *PathsSuite) TestPathMergeRoundTrip(c *gc.C) {
	c.Assert(pathMerge(pathSplit(testFpr)), gc.Equals, testFpr)
	c.Assert(pathMerge(filepath.Join("/some", "root", pathSplit(testFpr))), gc.Equals, testFpr)
}

func (s *PathsSuite) TestFingerprintRoundTrip(c *gc.C) {
	db, err := NewFromBase(c.MkDir())
	c.Assert(err, gc.IsNil)

	fpr, err := types.ParseFingerprint(testFpr)
	c.Assert(err, gc.IsNil)

	for _, path := range []string{
		db.fingerprintPathFull(fpr),
		db.fingerprintPathPublished(fpr),
		db.entryPath(storage.ByFpr, fpr.String()),
	} {
		got, err := pathToFingerprint(path)
		c.Assert(err, gc.IsNil)
		c.Assert(got, gc.Equals, fpr)
	}

	kid, err := pathToKeyID(db.entryPath(storage.ByKeyID, fpr.KeyID().String()))
	c.Assert(err, gc.IsNil)
	c.Assert(kid, gc.Equals, fpr.KeyID())
}

func (s *PathsSuite) TestEmailRoundTrip(c *gc.C) {
	db, err := NewFromBase(c.MkDir())
	c.Assert(err, gc.IsNil)

	for _, addr := range []string{
		"alice@example.org",
		"alice+tag@example.org",
		"weird/address@example.org",
	} {
		email, err := types.ParseEmail(addr)
		c.Assert(err, gc.IsNil)
		got, err := pathToEmail(db.entryPath(storage.ByEmail, email.String()))
		c.Assert(err, gc.IsNil)
		c.Assert(got, gc.Equals, email)
	}
}

func (s *PathsSuite) TestPathHasSuffix(c *gc.C) {
	c.Assert(pathHasSuffix("/srv/keys/pub/CB/CD/8F", filepath.Join("pub", "CB", "CD", "8F")), gc.Equals, true)
	c.Assert(pathHasSuffix("/srv/keys/pub/CB/CD/8F", filepath.Join("pub", "CB", "CD", "00")), gc.Equals, false)
	c.Assert(pathHasSuffix("pub/CB/CD/8F", filepath.Join("pub", "CB", "CD", "8F")), gc.Equals, true)
}
