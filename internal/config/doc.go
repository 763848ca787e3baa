// Package config provides configuration structures and utilities for
// AnonymityEngine. It defines the rotation defaults, the optional YAML
// configuration file, and interval clamping rules.
package config
