package slip

import (
	"os"

	"github.com/cgedge/slipfill/pkg/logger"
)

// EnvVar is the environment variable consulted when no other source is given.
const EnvVar = "CGPP"

// Source names, in resolution order.
const (
	SourceInline      = "inline"
	SourcePayloadFile = "payload-file"
	SourceSlipFile    = "slip-file"
	SourceEnv         = "env"
	SourceNone        = "none"
)

// Sources are the places a slip may come from. Empty fields are unset.
type Sources struct {
	Inline      string // encoded payload given on the command line
	PayloadFile string // file holding an encoded payload
	SlipFile    string // structured JSON/YAML slip
	Env         string // encoded payload from the environment
}

// WithEnv fills Env from the process environment.
func (s Sources) WithEnv() Sources {
	s.Env = os.Getenv(EnvVar)
	return s
}

// Resolve tries the configured sources in order (inline, payload file, slip
// file, environment) and returns the first slip that decodes along with the
// name of its source. Failures are logged and the next source is tried; when
// nothing decodes the result is nil with SourceNone, meaning navigate only.
func Resolve(src Sources) (*Slip, string) {
	type attempt struct {
		name  string
		value string
		load  func(string) (*Slip, error)
	}
	attempts := []attempt{
		{SourceInline, src.Inline, Decode},
		{SourcePayloadFile, src.PayloadFile, ReadPayloadFile},
		{SourceSlipFile, src.SlipFile, ReadFile},
		{SourceEnv, src.Env, Decode},
	}

	for _, a := range attempts {
		if a.value == "" {
			continue
		}
		s, err := a.load(a.value)
		if err != nil {
			logger.Warn("slip from %s could not be decoded: %v", a.name, err)
			continue
		}
		logger.Info("slip loaded from %s: %d item(s)", a.name, s.Len())
		return s, a.name
	}
	return nil, SourceNone
}
