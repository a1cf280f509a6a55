package calibopts

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/goccy/go-json"

	"github.com/samcharles93/nndquant/internal/fileindex"
	"github.com/samcharles93/nndquant/internal/logger"
)

type nodeKind uint8

const (
	kindNull nodeKind = iota
	kindBool
	kindNumber
	kindString
	kindArray
	kindObject
)

func (k nodeKind) String() string {
	switch k {
	case kindBool:
		return "bool"
	case kindNumber:
		return "number"
	case kindString:
		return "string"
	case kindArray:
		return "list"
	case kindObject:
		return "object"
	default:
		return "null"
	}
}

// node is a decoded JSON value. Objects keep their members in document
// order, duplicates included.
type node struct {
	kind  nodeKind
	b     bool
	num   float64
	str   string
	keys  []string
	elems []*node
}

// get returns the last member named key, matching what a map decode keeps.
func (n *node) get(key string) (*node, bool) {
	for i := len(n.keys) - 1; i >= 0; i-- {
		if n.keys[i] == key {
			return n.elems[i], true
		}
	}
	return nil, false
}

func (n *node) has(key string) bool {
	_, ok := n.get(key)
	return ok
}

func readNode(dec *json.Decoder) (*node, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	switch t := tok.(type) {
	case json.Delim:
		switch t {
		case '{':
			n := &node{kind: kindObject}
			for dec.More() {
				kt, err := dec.Token()
				if err != nil {
					return nil, err
				}
				key, ok := kt.(string)
				if !ok {
					return nil, fmt.Errorf("object key must be a string, got %v", kt)
				}
				v, err := readNode(dec)
				if err != nil {
					return nil, err
				}
				n.keys = append(n.keys, key)
				n.elems = append(n.elems, v)
			}
			if _, err := dec.Token(); err != nil {
				return nil, err
			}
			return n, nil
		case '[':
			n := &node{kind: kindArray}
			for dec.More() {
				v, err := readNode(dec)
				if err != nil {
					return nil, err
				}
				n.elems = append(n.elems, v)
			}
			if _, err := dec.Token(); err != nil {
				return nil, err
			}
			return n, nil
		default:
			return nil, fmt.Errorf("unexpected %q", rune(t))
		}
	case string:
		return &node{kind: kindString, str: t}, nil
	case float64:
		return &node{kind: kindNumber, num: t}, nil
	case bool:
		return &node{kind: kindBool, b: t}, nil
	case nil:
		return &node{kind: kindNull}, nil
	default:
		return nil, fmt.Errorf("unexpected token %v", tok)
	}
}

// fixup makes the relaxed grammar valid JSON: the enclosing braces may be
// omitted and a trailing comma is tolerated.
func fixup(text string) string {
	s := strings.TrimSpace(text)
	if strings.HasPrefix(s, "{") {
		return closeObject(s)
	}
	if wrapped := "{" + trimComma(s) + "}"; json.Valid([]byte(wrapped)) {
		return wrapped
	}
	// only the opening brace is missing
	return closeObject("{" + s)
}

func closeObject(s string) string {
	if !strings.HasSuffix(s, "}") {
		return trimComma(s) + "}"
	}
	body := strings.TrimRight(s[:len(s)-1], " \t\r\n")
	if strings.HasSuffix(body, ",") {
		return body[:len(body)-1] + "}"
	}
	return s
}

func trimComma(s string) string {
	return strings.TrimSuffix(strings.TrimRight(s, " \t\r\n"), ",")
}

// Load reads and parses the calibration options file at path.
func Load(path string, log logger.Logger) (*Options, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	o, err := ParseBytes(b, log)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return o, nil
}

// Parse reads calibration options from r.
func Parse(r io.Reader, log logger.Logger) (*Options, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	return ParseBytes(b, log)
}

// ParseBytes parses and normalizes calibration options. Primitive names are
// lower-cased; a repeated primitive keeps its first definition.
func ParseBytes(b []byte, log logger.Logger) (*Options, error) {
	text := []byte(fixup(string(b)))
	if !json.Valid(text) {
		return nil, fmt.Errorf("%w: not valid JSON", ErrMalformed)
	}
	root, err := readNode(json.NewDecoder(bytes.NewReader(text)))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if root.kind != kindObject {
		return nil, fmt.Errorf("%w: top level must be an object, got %s", ErrMalformed, root.kind)
	}

	o := newOptions()
	for i, key := range root.keys {
		name := strings.ToLower(key)
		if _, dup := o.index[name]; dup {
			log.Warn("duplicated primitive in calibration options, later definition ignored", "primitive", name)
			continue
		}
		p, err := parsePrimitive(name, root.elems[i])
		if err != nil {
			return nil, &GraphError{Primitive: name, Err: err}
		}
		o.add(p)
	}
	return o, nil
}

func parsePrimitive(name string, v *node) (Primitive, error) {
	p := Primitive{
		Name:        name,
		Groups:      1,
		DecalibMode: DecalibNone,
		Weights:     name,
		DumpMode:    fileindex.DumpNormal,
	}

	var deps []*node
	switch v.kind {
	case kindObject:
		if d, ok := v.get("deps"); ok {
			switch d.kind {
			case kindArray:
				deps = d.elems
			case kindString:
				deps = []*node{d}
			default:
				return p, fmt.Errorf("%w: deps must be a list or string, got %s", ErrMalformed, d.kind)
			}
		}

		g, ok := v.get("groups")
		if !ok {
			g, ok = v.get("split")
		}
		if ok {
			n, err := asInt(g)
			if err != nil {
				return p, fmt.Errorf("%w: groups: %v", ErrMalformed, err)
			}
			p.Groups = max(n, 1)
		}

		m, ok := v.get("decalibrate_mode")
		if !ok {
			m, ok = v.get("decalib_mode")
		}
		if ok {
			switch {
			case m.kind == kindString:
				p.DecalibMode = DecalibMode(m.str)
			case m.kind == kindBool && m.b, m.kind == kindNumber && m.num != 0:
				p.DecalibMode = DecalibFirst
			}
		}

		if w, ok := v.get("weights"); ok {
			if w.kind != kindString {
				return p, fmt.Errorf("%w: weights must be a string, got %s", ErrMalformed, w.kind)
			}
			p.Weights = w.str
		}
		if dm, ok := v.get("dump_mode"); ok {
			if dm.kind != kindString {
				return p, fmt.Errorf("%w: dump_mode must be a string, got %s", ErrMalformed, dm.kind)
			}
			p.DumpMode = fileindex.ParseDumpMode(dm.str)
		}
	case kindArray:
		deps = v.elems
	case kindString:
		deps = []*node{v}
	default:
		return p, fmt.Errorf("%w: expected list, object or string, got %s", ErrMalformed, v.kind)
	}

	var cur []Dep
	for _, d := range deps {
		switch d.kind {
		case kindArray:
			if len(d.elems) == 0 {
				continue
			}
			// a nested list starts a new frontier
			if len(cur) > 0 {
				p.Frontiers = append(p.Frontiers, cur)
				cur = nil
			}
			for _, fd := range d.elems {
				switch fd.kind {
				case kindObject:
					ds, err := groupDeps(fd)
					if err != nil {
						return p, err
					}
					cur = append(cur, ds...)
				case kindString:
					cur = append(cur, Dep{Name: strings.ToLower(fd.str), Group: -1})
				default:
					return p, fmt.Errorf("%w: frontier entry must be an object or string, got %s", ErrMalformed, fd.kind)
				}
			}
		case kindObject:
			ds, err := groupDeps(d)
			if err != nil {
				return p, err
			}
			cur = append(cur, ds...)
		case kindString:
			cur = append(cur, Dep{Name: strings.ToLower(d.str), Group: -1})
		default:
			return p, fmt.Errorf("%w: dependency must be a list, object or string, got %s", ErrMalformed, d.kind)
		}
	}
	if len(cur) > 0 {
		p.Frontiers = append(p.Frontiers, cur)
	}
	return p, nil
}

// groupDeps expands {"prim": groupIndex, ...}.
func groupDeps(n *node) ([]Dep, error) {
	out := make([]Dep, 0, len(n.keys))
	for i, k := range n.keys {
		g, err := asInt(n.elems[i])
		if err != nil {
			return nil, fmt.Errorf("%w: group index of %q: %v", ErrMalformed, k, err)
		}
		out = append(out, Dep{Name: strings.ToLower(k), Group: max(g, 0)})
	}
	return out, nil
}

func asInt(n *node) (int, error) {
	switch n.kind {
	case kindNumber:
		return int(n.num), nil
	case kindString:
		v, err := strconv.Atoi(strings.TrimSpace(n.str))
		if err != nil {
			return 0, err
		}
		return v, nil
	case kindBool:
		if n.b {
			return 1, nil
		}
		return 0, nil
	default:
		return 0, errors.New("expected an integer")
	}
}
