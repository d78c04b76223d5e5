package slip

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/cgedge/slipfill/pkg/core"
	"gopkg.in/yaml.v3"
)

// FragmentKey is the name the payload travels under in URL fragments and
// query strings (#cgpp=...).
const FragmentKey = "cgpp"

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Decode turns an encoded payload into a slip.
//
// Surrounding whitespace and quotes are ignored. In a fragment or query
// string ("#ref=x&cgpp=...") the cgpp parameter is taken. Both the standard
// and the URL-safe base64 alphabets are accepted with or without padding. The decoded bytes must be
// UTF-8 JSON exposing an "items" array.
func Decode(blob string) (*Slip, error) {
	s := cleanBlob(blob)
	if s == "" {
		return nil, core.ErrDecode.WithMessage("empty slip payload")
	}

	raw, err := base64.StdEncoding.DecodeString(pad(s))
	if err != nil {
		return nil, core.ErrDecode.WithMessage("slip payload is not base64").WithCause(err)
	}
	raw = bytes.TrimPrefix(raw, utf8BOM)
	if !utf8.Valid(raw) {
		return nil, core.ErrDecode.WithMessage("slip payload is not valid UTF-8")
	}
	return parseJSON(raw, false)
}

// Encode renders a slip in the canonical wire form: standard alphabet,
// padded base64 of the JSON document.
func Encode(s *Slip) (string, error) {
	if s == nil {
		return "", core.ErrDecode.WithMessage("nil slip")
	}
	doc := Slip{Version: s.Version, Items: make([]Item, len(s.Items))}
	for i, it := range s.Items {
		it.Side = ParseSide(string(it.Side))
		doc.Items[i] = it
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("encode slip: %w", err)
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

// Unmarshal parses a plain JSON slip document. Like Decode it requires an
// "items" array.
func Unmarshal(data []byte) (*Slip, error) {
	return parseJSON(bytes.TrimPrefix(data, utf8BOM), false)
}

// Marshal renders the plain JSON document persisted in page storage.
func Marshal(s *Slip) ([]byte, error) {
	doc := Slip{Version: s.Version, Items: s.Items}
	if doc.Version == 0 {
		doc.Version = 1
	}
	if doc.Items == nil {
		doc.Items = []Item{}
	}
	return json.Marshal(doc)
}

// ReadFile loads a structured slip file. JSON and YAML (.yaml, .yml) files
// are accepted; the document is either {items: [...]} or a bare list.
func ReadFile(path string) (*Slip, error) {
	data, err := os.ReadFile(path) //#nosec G304 -- user-provided slip file
	if err != nil {
		return nil, core.ErrDecode.WithMessage("read slip file").WithCause(err).
			WithDetails(map[string]interface{}{"path": path})
	}
	data = bytes.TrimPrefix(data, utf8BOM)

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return parseYAML(data)
	default:
		return parseJSON(data, true)
	}
}

// ReadPayloadFile loads a file that holds an encoded payload.
func ReadPayloadFile(path string) (*Slip, error) {
	data, err := os.ReadFile(path) //#nosec G304 -- user-provided slip file
	if err != nil {
		return nil, core.ErrDecode.WithMessage("read payload file").WithCause(err).
			WithDetails(map[string]interface{}{"path": path})
	}
	return Decode(string(bytes.TrimPrefix(data, utf8BOM)))
}

func cleanBlob(blob string) string {
	s := strings.TrimSpace(blob)
	for len(s) >= 2 && isQuote(s[0]) && s[len(s)-1] == s[0] {
		s = strings.TrimSpace(s[1 : len(s)-1])
	}
	s = payloadParam(strings.TrimPrefix(s, "#"))
	// Percent escapes only; '+' is a base64 digit here, never a space.
	if u, err := url.PathUnescape(s); err == nil {
		s = u
	}
	s = strings.NewReplacer("-", "+", "_", "/", "\n", "", "\r", "").Replace(s)
	return strings.TrimRight(s, "=")
}

// payloadParam picks the cgpp value out of a fragment or query string such
// as "ref=abc&cgpp=<payload>". A bare payload, optionally followed by other
// parameters, is returned up to the first '&'.
func payloadParam(s string) string {
	params := strings.Split(s, "&")
	for _, p := range params {
		if v, ok := strings.CutPrefix(p, FragmentKey+"="); ok {
			return v
		}
	}
	return params[0]
}

func isQuote(c byte) bool {
	return c == '"' || c == '\'' || c == '`'
}

func pad(s string) string {
	if r := len(s) % 4; r != 0 {
		s += strings.Repeat("=", 4-r)
	}
	return s
}

// parseJSON requires an {items: [...]} document. allowBare additionally
// accepts a top-level list.
func parseJSON(data []byte, allowBare bool) (*Slip, error) {
	trimmed := bytes.TrimSpace(data)
	if allowBare && len(trimmed) > 0 && trimmed[0] == '[' {
		var items []Item
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return nil, core.ErrDecode.WithMessage("slip list is not valid JSON").WithCause(err)
		}
		return &Slip{Items: items}, nil
	}

	var probe map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &probe); err != nil {
		return nil, core.ErrDecode.WithMessage("slip is not a JSON object").WithCause(err)
	}
	rawItems, ok := probe["items"]
	if !ok || !isJSONArray(rawItems) {
		return nil, core.ErrDecode.WithMessage("slip has no items array")
	}

	var s Slip
	if err := json.Unmarshal(trimmed, &s); err != nil {
		return nil, core.ErrDecode.WithMessage("slip items are malformed").WithCause(err)
	}
	return &s, nil
}

func isJSONArray(raw json.RawMessage) bool {
	t := bytes.TrimSpace(raw)
	return len(t) > 0 && t[0] == '['
}

func parseYAML(data []byte) (*Slip, error) {
	var node yaml.Node
	if err := yaml.Unmarshal(data, &node); err != nil {
		return nil, core.ErrDecode.WithMessage("slip is not valid YAML").WithCause(err)
	}
	if len(node.Content) == 0 {
		return nil, core.ErrDecode.WithMessage("empty slip file")
	}
	root := node.Content[0]

	switch root.Kind {
	case yaml.SequenceNode:
		var items []Item
		if err := root.Decode(&items); err != nil {
			return nil, core.ErrDecode.WithMessage("slip items are malformed").WithCause(err)
		}
		return &Slip{Items: items}, nil
	case yaml.MappingNode:
		if !hasSequenceKey(root, "items") {
			return nil, core.ErrDecode.WithMessage("slip has no items array")
		}
		var s Slip
		if err := root.Decode(&s); err != nil {
			return nil, core.ErrDecode.WithMessage("slip items are malformed").WithCause(err)
		}
		return &s, nil
	default:
		return nil, core.ErrDecode.WithMessage("slip has no items array")
	}
}

func hasSequenceKey(m *yaml.Node, key string) bool {
	for i := 0; i+1 < len(m.Content); i += 2 {
		if m.Content[i].Value == key {
			return m.Content[i+1].Kind == yaml.SequenceNode
		}
	}
	return false
}
