package am

import (
	"encoding/json"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/teranos/gridpulse/errors"
)

// Output formats accepted by Render.
const (
	FormatTOML = "toml"
	FormatJSON = "json"
	FormatYAML = "yaml"
)

// Formats lists the supported output formats.
var Formats = []string{FormatTOML, FormatJSON, FormatYAML}

// Render encodes value in the given format. Map keys are emitted as-is, so
// passing viper's AllSettings yields the same key names as the config file.
func Render(value interface{}, format string) ([]byte, error) {
	switch strings.ToLower(format) {
	case FormatTOML, "":
		out, err := toml.Marshal(value)
		return out, errors.Wrap(err, "failed to encode toml")
	case FormatJSON:
		out, err := json.MarshalIndent(value, "", "  ")
		if err != nil {
			return nil, errors.Wrap(err, "failed to encode json")
		}
		return append(out, '\n'), nil
	case FormatYAML:
		out, err := yaml.Marshal(value)
		return out, errors.Wrap(err, "failed to encode yaml")
	}
	return nil, errors.Newf("unknown format %q (want %s)", format, strings.Join(Formats, ", "))
}

// EffectiveSettings returns the merged settings as a nested map.
func EffectiveSettings() (map[string]interface{}, error) {
	if _, err := Load(); err != nil {
		return nil, err
	}
	v, err := GetViper()
	if err != nil {
		return nil, err
	}
	return v.AllSettings(), nil
}
