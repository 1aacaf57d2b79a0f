// Package config loads the provisioning manifest and the runtime settings.
//
// The manifest is CUE. A default manifest is embedded in the binary and any
// user manifests are unified on top of it, so a user file only has to name
// the fields it changes:
//
//	toolkit: version: "12.4"
//	converter: image_size: 640
//
// After unification the manifest is decoded into Go structs and checked with
// validator tags. All problems are returned together as ValidationErrors with
// file positions where CUE can provide them.
//
// Settings are plain YAML and cover how a run behaves: the log file, the
// history database, the exit delay and telemetry.
package config
