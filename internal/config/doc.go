// Package config loads the process configuration.
//
// Values come from three layers, later layers overriding earlier ones:
//
//  1. the defaults of [Default]
//  2. an optional YAML file (the --config flag or SGSYNC_CONFIG)
//  3. environment variables
//
// [Config.Validate] rejects a configuration the process cannot run with, and
// the accessor methods ([Config.Targets], [Config.LogLevels] and friends)
// return the parsed forms the rest of the program consumes.
package config
