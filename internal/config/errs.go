package config

import "errors"

// ErrLoad indicates a configuration file could not be read or parsed.
var ErrLoad = errors.New("config: load failed")
