// Package build carries the packed asset tree produced by solarctl pack.
// The public/ directory is embedded so the server binary ships with its
// pages, static assets, locale bundles, and configuration.
package build

import "io/fs"

// EmbeddedConfig returns the site configuration packed alongside the
// assets, or nil when no packed config is present.
func EmbeddedConfig() []byte {
	data, err := fs.ReadFile(FS, "public/config.json")
	if err != nil {
		return nil
	}
	return data
}
