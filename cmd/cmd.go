package cmd

import (
	"fmt"
	"os"
	"strings"

	log "github.com/sirupsen/logrus"
)

func Die(err error) {
	if err != nil {
		fmt.Fprintf(os.Stderr, "%+v\n", err)
		os.Exit(1)
	}
	os.Exit(0)
}

// OpenLog configures logrus from settings: optional log file, level from the
// settings string.
func OpenLog(s *Settings) {
	if s.LogFile != "" {
		f, err := os.OpenFile(s.LogFile, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0644)
		if err != nil {
			log.Errorf("failed to open LogFile=%q: %v", s.LogFile, err)
		} else {
			log.SetOutput(f)
		}
	}
	level, err := log.ParseLevel(strings.ToLower(s.LogLevel))
	if err != nil {
		log.Warningf("invalid LogLevel=%q: %v", s.LogLevel, err)
		return
	}
	log.SetLevel(level)
}
