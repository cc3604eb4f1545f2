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

// keydir-check audits a keydir store: it verifies that every published
// record, index entry and (sub)key relationship is consistent, and reports
// the first violation found. It never repairs.
package main

import (
	"flag"
	"time"

	log "github.com/sirupsen/logrus"
	"gopkg.in/errgo.v1"

	"keydir/cmd"
	"keydir/fsdb"
	"keydir/metrics"
	"keydir/pgpcert"
)

var (
	configFile  = flag.String("config", "", "config file")
	withMetrics = flag.Bool("metrics", false, "serve prometheus metrics while checking")
)

func main() {
	flag.Parse()

	settings, err := cmd.LoadSettings(*configFile)
	if err != nil {
		cmd.Die(errgo.Mask(err))
	}
	cmd.OpenLog(settings)

	db, err := fsdb.New(&settings.FS)
	if err != nil {
		cmd.Die(errgo.Mask(err))
	}

	if *withMetrics {
		m := metrics.NewMetrics(settings.Metrics)
		m.Start()
		defer m.Stop()
	}

	t := time.Now()
	err = db.CheckConsistency(pgpcert.ParseCertificate)
	if err != nil {
		log.Errorf("store is inconsistent: %v", errgo.Details(err))
		cmd.Die(err)
	}
	log.Infof("store is consistent (%v)", time.Since(t))
}
