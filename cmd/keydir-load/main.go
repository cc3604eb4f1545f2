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

// keydir-load imports OpenPGP key files into a keydir store: it writes the
// full and published records and creates the index entries for every
// signing-capable (sub)key and user ID email. Keys whose identifiers collide
// with an already-published key are quarantined for manual review.
package main

import (
	"flag"
	"os"
	"path/filepath"
	"time"

	log "github.com/sirupsen/logrus"
	"gopkg.in/errgo.v1"

	"keydir/cmd"
	"keydir/fsdb"
	"keydir/pgpcert"
	"keydir/storage"
)

var (
	configFile = flag.String("config", "", "config file")
	dryRun     = flag.Bool("dry-run", false, "validate inputs without mutating the store")
)

func main() {
	flag.Parse()

	settings, err := cmd.LoadSettings(*configFile)
	if err != nil {
		cmd.Die(errgo.Mask(err))
	}
	if *dryRun {
		settings.FS.DryRun = true
	}
	cmd.OpenLog(settings)

	args := flag.Args()
	if len(args) == 0 {
		log.Errorf("usage: %s [flags] <file1> [file2 .. fileN]", os.Args[0])
		cmd.Die(errgo.New("missing PGP key file arguments"))
	}

	cmd.Die(load(settings, args))
}

func load(settings *cmd.Settings, args []string) error {
	db, err := fsdb.New(&settings.FS)
	if err != nil {
		return errgo.Mask(err)
	}

	for _, arg := range args {
		matches, err := filepath.Glob(arg)
		if err != nil {
			log.Errorf("failed to match %q: %v", arg, err)
			continue
		}
		for _, file := range matches {
			t := time.Now()
			err := loadFile(db, file)
			if err != nil {
				log.Errorf("failed to load %q: %v", file, errgo.Details(err))
				continue
			}
			log.Infof("loaded %q in %v", file, time.Since(t))
		}
	}
	return nil
}

func loadFile(db *fsdb.Filesystem, file string) error {
	buf, err := os.ReadFile(file)
	if err != nil {
		return errgo.Mask(err)
	}
	cert, err := pgpcert.Parse(buf)
	if err != nil {
		return errgo.Mask(err)
	}
	primary := cert.PrimaryFingerprint()

	guard, err := db.Lock()
	if err != nil {
		return errgo.Mask(err)
	}
	defer guard.Release()

	// Probe for identifier collisions before touching the store.
	for _, fpr := range cert.SigningFingerprints() {
		if _, err := db.CheckLinkFpr(fpr, primary); err != nil {
			if storage.IsCollision(err) {
				log.Warningf("quarantining %s: %v", primary, err)
				if qerr := db.WriteToQuarantine(primary, buf); qerr != nil {
					return errgo.Mask(qerr)
				}
			}
			return errgo.Mask(err)
		}
	}

	if err := db.WriteToFull(primary, buf); err != nil {
		return errgo.Mask(err)
	}
	if err := db.WriteToPublished(primary, buf); err != nil {
		return errgo.Mask(err)
	}
	for _, fpr := range cert.SigningFingerprints() {
		if err := db.LinkFpr(fpr, primary); err != nil {
			return errgo.Mask(err)
		}
	}
	for _, email := range cert.Emails() {
		if err := db.LinkEmail(email, primary); err != nil {
			return errgo.Mask(err)
		}
	}
	return nil
}
