// Package geoconfig loads Geology's runtime configuration the way the
// teacher's runsc/config package does: flags registered on a flag.FlagSet,
// with an optional TOML file (github.com/BurntSushi/toml) overlaid
// underneath them so flags always win.
package geoconfig

import (
	"flag"
	"os"

	"github.com/BurntSushi/toml"
)

// Config is the set of knobs geoctl and its subcommands read.
type Config struct {
	// Root is the volume's root directory on the host filesystem.
	Root string `toml:"root"`

	// LogFormat is "text" or "json".
	LogFormat string `toml:"log-format"`

	// Debug enables debug-level logging.
	Debug bool `toml:"debug"`

	// QuotaBytes is the per-volume byte budget enforced by the Volume's
	// write-path token bucket (0 disables the quota).
	QuotaBytes int64 `toml:"quota-bytes"`

	// ProcInodeCacheSize bounds procfs's inode cache (spec.md §9 Open
	// Question 1). 0 disables caching.
	ProcInodeCacheSize int `toml:"proc-inode-cache-size"`

	// RewriteTablePath, if set, points at a JSON Patch rewrite table the
	// Governor uses to produce modify(substitute) decisions (spec.md §9
	// Open Question 2). Empty disables modify entirely.
	RewriteTablePath string `toml:"rewrite-table"`
}

// Default returns the zero-value-safe defaults used when neither a config
// file nor flags override them.
func Default() Config {
	return Config{
		LogFormat:          "text",
		ProcInodeCacheSize: 256,
	}
}

// RegisterFlags registers Config's fields on fs, mirroring
// runsc/config/flags.go's RegisterFlags.
func RegisterFlags(fs *flag.FlagSet, cfg *Config) {
	fs.StringVar(&cfg.Root, "root", cfg.Root, "root directory of the Geology volume")
	fs.StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, "log format: text (default) or json")
	fs.BoolVar(&cfg.Debug, "debug", cfg.Debug, "enable debug logging")
	fs.Int64Var(&cfg.QuotaBytes, "quota-bytes", cfg.QuotaBytes, "per-volume byte quota (0 disables)")
	fs.IntVar(&cfg.ProcInodeCacheSize, "proc-inode-cache-size", cfg.ProcInodeCacheSize, "bounded inode cache size for procfs (0 disables)")
	fs.StringVar(&cfg.RewriteTablePath, "rewrite-table", cfg.RewriteTablePath, "path to a JSON Patch rewrite table enabling Governor modify decisions")
}

// LoadFile overlays a TOML config file onto cfg. A missing file is not an
// error: the caller falls back to defaults plus flags, exactly as runsc
// treats an absent runsc.toml.
func LoadFile(path string, cfg *Config) error {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	_, err := toml.DecodeFile(path, cfg)
	return err
}
