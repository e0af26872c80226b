package am

import (
	"sort"

	"github.com/BurntSushi/toml"

	"github.com/teranos/gridpulse/errors"
)

// FileReport is the result of checking one config file.
type FileReport struct {
	Path        string
	UnknownKeys []string // keys gridpulse does not read, usually typos
	Config      *Config  // the file decoded on its own, without defaults
}

// CheckFile parses path strictly and reports keys that do not map to any
// setting. Syntax errors are returned with the offending line.
func CheckFile(path string) (*FileReport, error) {
	var cfg Config
	md, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		var perr toml.ParseError
		if errors.As(err, &perr) {
			return nil, errors.WithDetail(
				errors.Newf("%s: syntax error at line %d", path, perr.Position.Line),
				perr.ErrorWithUsage())
		}
		return nil, errors.Wrapf(err, "failed to decode %s", path)
	}

	report := &FileReport{Path: path, Config: &cfg}
	for _, key := range md.Undecoded() {
		report.UnknownKeys = append(report.UnknownKeys, key.String())
	}
	sort.Strings(report.UnknownKeys)
	return report, nil
}
