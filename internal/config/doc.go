// Package config defines the detector settings and provides helpers to
// load, validate and save them in YAML format.
//
// Validate fills defaults for unset fields, so a partially written file is
// enough to run the detector.
package config
