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

	"github.com/pkg/errors"
	gc "gopkg.in/check.v1"

	"keydir/storage"
	"keydir/types"
)

// testCert implements storage.Certificate for checker tests. Records are
// stored with the primary fingerprint as content so parsing is a table
// lookup.
type testCert struct {
	primary types.Fingerprint
	keys    []types.Fingerprint
	signing []types.Fingerprint
	emails  []types.Email
}

func (t *testCert) PrimaryFingerprint() types.Fingerprint    { return t.primary }
func (t *testCert) KeyFingerprints() []types.Fingerprint     { return t.keys }
func (t *testCert) SigningFingerprints() []types.Fingerprint { return t.signing }
func (t *testCert) Emails() []types.Email                    { return t.emails }
func (t *testCert) Revoked() bool                            { return false }

type ChecksSuite struct {
	db    *Filesystem
	certs map[string]*testCert
}

var _ = gc.Suite(&ChecksSuite{})

func (s *ChecksSuite) SetUpTest(c *gc.C) {
	var err error
	s.db, err = NewFromBase(c.MkDir())
	c.Assert(err, gc.IsNil)
	s.certs = make(map[string]*testCert)
}

func (s *ChecksSuite) parse(buf []byte) (storage.Certificate, error) {
	cert, ok := s.certs[string(buf)]
	if !ok {
		return nil, errors.Errorf("unknown record %q", buf)
	}
	return cert, nil
}

// publish writes and fully indexes a certificate.
func (s *ChecksSuite) publish(c *gc.C, cert *testCert) {
	s.certs[cert.primary.String()] = cert
	c.Assert(s.db.WriteToPublished(cert.primary, []byte(cert.primary.String())), gc.IsNil)
	for _, fpr := range cert.signing {
		missing, err := s.db.CheckLinkFpr(fpr, cert.primary)
		c.Assert(err, gc.IsNil)
		if missing {
			c.Assert(s.db.LinkFpr(fpr, cert.primary), gc.IsNil)
		}
	}
	for _, email := range cert.emails {
		c.Assert(s.db.LinkEmail(email, cert.primary), gc.IsNil)
	}
}

func (s *ChecksSuite) newCert(c *gc.C, primaryHex, subHex string, addrs ...string) *testCert {
	primary := mustFpr(c, primaryHex)
	cert := &testCert{
		primary: primary,
		keys:    []types.Fingerprint{primary},
		signing: []types.Fingerprint{primary},
	}
	if subHex != "" {
		sub := mustFpr(c, subHex)
		cert.keys = append(cert.keys, sub)
		cert.signing = append(cert.signing, sub)
	}
	for _, addr := range addrs {
		cert.emails = append(cert.emails, mustEmail(c, addr))
	}
	return cert
}

func (s *ChecksSuite) TestConsistentStore(c *gc.C) {
	s.publish(c, s.newCert(c, fprA, fprC, "alice@example.org"))
	s.publish(c, s.newCert(c, fprB, "", "bob@example.org"))

	c.Assert(s.db.CheckConsistency(s.parse), gc.IsNil)
}

func (s *ChecksSuite) TestEmptyStore(c *gc.C) {
	c.Assert(s.db.CheckConsistency(s.parse), gc.IsNil)
}

func (s *ChecksSuite) TestMissingEmailLink(c *gc.C) {
	cert := s.newCert(c, fprA, "", "alice@example.org")
	s.publish(c, cert)
	c.Assert(s.db.CheckConsistency(s.parse), gc.IsNil)

	c.Assert(os.Remove(s.db.entryPath(storage.ByEmail, "alice@example.org")), gc.IsNil)
	err := s.db.CheckConsistency(s.parse)
	c.Assert(err, gc.ErrorMatches, "(?s).*missing link to key "+fprA+" for email alice@example.org.*")
}

func (s *ChecksSuite) TestMissingSubkeyLink(c *gc.C) {
	cert := s.newCert(c, fprA, fprC, "alice@example.org")
	s.publish(c, cert)
	c.Assert(s.db.CheckConsistency(s.parse), gc.IsNil)

	sub := mustFpr(c, fprC)
	c.Assert(os.Remove(s.db.entryPath(storage.ByKeyID, sub.KeyID().String())), gc.IsNil)
	err := s.db.CheckConsistency(s.parse)
	c.Assert(err, gc.ErrorMatches, "(?s).*missing link to key "+fprA+" for sub "+fprC+".*")
}

func (s *ChecksSuite) TestRecordUnderWrongPath(c *gc.C) {
	cert := s.newCert(c, fprA, "", "alice@example.org")
	s.publish(c, cert)

	// Store A's record under B's path: the path-identity check must fail.
	wrong := mustFpr(c, fprB)
	c.Assert(s.db.WriteToPublished(wrong, []byte(cert.primary.String())), gc.IsNil)
	err := s.db.CheckConsistency(s.parse)
	c.Assert(err, gc.ErrorMatches, "(?s).*stored under the wrong path, expected "+fprA+" but found "+fprB+".*")
}

func (s *ChecksSuite) TestForeignEmailEntry(c *gc.C) {
	cert := s.newCert(c, fprA, "", "alice@example.org")
	s.publish(c, cert)

	// An index entry for an email the certificate does not carry violates
	// reverse soundness.
	c.Assert(s.db.Link(storage.ByEmail, "mallory@example.org", cert.primary), gc.IsNil)
	err := s.db.CheckConsistency(s.parse)
	c.Assert(err, gc.ErrorMatches, "(?s).*no email mallory@example.org.*")
}

func (s *ChecksSuite) TestForeignKeyIDEntry(c *gc.C) {
	cert := s.newCert(c, fprA, "", "alice@example.org")
	s.publish(c, cert)

	foreign := mustFpr(c, fprB)
	c.Assert(s.db.Link(storage.ByKeyID, foreign.KeyID().String(), cert.primary), gc.IsNil)
	err := s.db.CheckConsistency(s.parse)
	c.Assert(err, gc.ErrorMatches, "(?s).*no \\(sub\\)key "+string(foreign.KeyID())+".*")
}

func (s *ChecksSuite) TestMalformedPublishedPath(c *gc.C) {
	cert := s.newCert(c, fprA, "", "alice@example.org")
	s.publish(c, cert)

	bad := s.db.publishedDir + "/zz/zz/not-a-fingerprint"
	c.Assert(os.MkdirAll(s.db.publishedDir+"/zz/zz", 0755), gc.IsNil)
	c.Assert(os.WriteFile(bad, []byte("junk"), 0644), gc.IsNil)
	err := s.db.CheckConsistency(s.parse)
	c.Assert(err, gc.ErrorMatches, "(?s).*malformed path.*")
}
