package config

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/caarlos0/env/v9"
)

// parsers returns the custom environment parsers applied on top of the
// caarlos0/env built-ins.
func parsers() map[reflect.Type]env.ParserFunc {
	return map[reflect.Type]env.ParserFunc{
		reflect.TypeOf(true): parseBool,
	}
}

// parseBool accepts the on/off and yes/no spellings besides true/false and 1/0,
// case-insensitively.
func parseBool(v string) (interface{}, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "true", "t", "1", "yes", "on":
		return true, nil
	case "false", "f", "0", "no", "off":
		return false, nil
	}
	return nil, fmt.Errorf("invalid boolean %q (want true/false, yes/no, on/off or 1/0)", v)
}
