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

package types

import (
	stdtesting "testing"

	gc "gopkg.in/check.v1"
)

func Test(t *stdtesting.T) { gc.TestingT(t) }

type TypesSuite struct{}

var _ = gc.Suite(&TypesSuite{})

func (s *TypesSuite) TestParseFingerprint(c *gc.C) {
	fp, err := ParseFingerprint("cbcd8f030588653eedd7e2659b7dd433f254904a")
	c.Assert(err, gc.IsNil)
	c.Assert(fp.String(), gc.Equals, "CBCD8F030588653EEDD7E2659B7DD433F254904A")

	fp, err = ParseFingerprint("0xCBCD8F030588653EEDD7E2659B7DD433F254904A")
	c.Assert(err, gc.IsNil)
	c.Assert(fp.String(), gc.Equals, "CBCD8F030588653EEDD7E2659B7DD433F254904A")

	_, err = ParseFingerprint("CBCD8F03")
	c.Assert(err, gc.NotNil)
	_, err = ParseFingerprint("zbcd8f030588653eedd7e2659b7dd433f254904a")
	c.Assert(err, gc.NotNil)
}

func (s *TypesSuite) TestFingerprintKeyID(c *gc.C) {
	fp, err := ParseFingerprint("CBCD8F030588653EEDD7E2659B7DD433F254904A")
	c.Assert(err, gc.IsNil)
	c.Assert(fp.KeyID(), gc.Equals, KeyID("9B7DD433F254904A"))
}

func (s *TypesSuite) TestParseKeyID(c *gc.C) {
	kid, err := ParseKeyID("9b7dd433f254904a")
	c.Assert(err, gc.IsNil)
	c.Assert(kid.String(), gc.Equals, "9B7DD433F254904A")

	_, err = ParseKeyID("9b7dd433")
	c.Assert(err, gc.NotNil)
}

func (s *TypesSuite) TestParseEmail(c *gc.C) {
	email, err := ParseEmail("Alice.Lovelace@Example.ORG")
	c.Assert(err, gc.IsNil)
	c.Assert(email.String(), gc.Equals, "alice.lovelace@example.org")

	_, err = ParseEmail("not an address")
	c.Assert(err, gc.NotNil)
}
