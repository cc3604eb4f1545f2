package cmd

import (
	"os"

	"github.com/BurntSushi/toml"
	"gopkg.in/errgo.v1"

	"keydir/fsdb"
	"keydir/metrics"
)

type Settings struct {
	FS fsdb.Settings `toml:"fs"`

	Metrics *metrics.Settings `toml:"metrics"`

	LogFile  string `toml:"logfile"`
	LogLevel string `toml:"loglevel"`
}

const (
	DefaultLogLevel = "INFO"
	DefaultBaseDir  = "/var/lib/keydir"
)

func DefaultSettings() Settings {
	return Settings{
		FS: fsdb.Settings{
			InternalDir: DefaultBaseDir + "/keys",
			ExternalDir: DefaultBaseDir + "/keys",
			TmpDir:      DefaultBaseDir + "/tmp",
		},
		Metrics:  metrics.DefaultSettings(),
		LogLevel: DefaultLogLevel,
	}
}

func ParseSettings(data string) (*Settings, error) {
	var doc struct {
		Keydir Settings `toml:"keydir"`
	}
	doc.Keydir = DefaultSettings()
	_, err := toml.Decode(data, &doc)
	if err != nil {
		return nil, errgo.Mask(err)
	}
	return &doc.Keydir, nil
}

// LoadSettings reads and parses a settings file, or returns defaults when
// path is empty.
func LoadSettings(path string) (*Settings, error) {
	if path == "" {
		settings := DefaultSettings()
		return &settings, nil
	}
	conf, err := os.ReadFile(path)
	if err != nil {
		return nil, errgo.Mask(err)
	}
	return ParseSettings(string(conf))
}
