package kg

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
)

// Serialize renders the graph as one statement per line, sorted
// lexicographically so that equal graphs serialize identically.
func (g *Graph) Serialize() string {
	triples := g.Triples()
	lines := make([]string, len(triples))
	for i, t := range triples {
		lines[i] = t.String()
	}
	sort.Strings(lines)
	return strings.Join(lines, "\n")
}

// Save writes the serialized graph to a file.
func (g *Graph) Save(path string) error {
	if err := os.WriteFile(path, []byte(g.Serialize()+"\n"), 0o644); err != nil {
		return fmt.Errorf("save graph: %w", err)
	}
	return nil
}

// Load reads a serialized graph from a file.
func Load(path string) (*Graph, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load graph: %w", err)
	}
	return ParseGraph(string(data))
}

// ParseGraph reconstructs a graph from its serialized form. The result is
// not re-seeded with perspective entities; parsing the output of Serialize
// yields an exact copy of the original triple set.
func ParseGraph(text string) (*Graph, error) {
	g := newBareGraph()
	for n, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		t, err := parseStatement(line)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", n+1, err)
		}
		g.add(t)
	}
	return g, nil
}

func parseStatement(line string) (Triple, error) {
	if !strings.HasSuffix(line, ".") {
		return Triple{}, fmt.Errorf("statement missing terminating '.': %q", line)
	}
	body := strings.TrimSpace(strings.TrimSuffix(line, "."))
	subjEnd := strings.IndexByte(body, ' ')
	if subjEnd < 0 {
		return Triple{}, fmt.Errorf("statement too short: %q", line)
	}
	subject := body[:subjEnd]
	rest := strings.TrimSpace(body[subjEnd:])
	predEnd := strings.IndexByte(rest, ' ')
	if predEnd < 0 {
		return Triple{}, fmt.Errorf("statement missing object: %q", line)
	}
	predicate := rest[:predEnd]
	objectText := strings.TrimSpace(rest[predEnd:])
	obj, err := parseObject(objectText)
	if err != nil {
		return Triple{}, fmt.Errorf("%w in %q", err, line)
	}
	return Triple{Subject: subject, Predicate: predicate, Object: obj}, nil
}

func parseObject(text string) (Value, error) {
	switch {
	case text == "":
		return Value{}, fmt.Errorf("empty object")
	case strings.HasPrefix(text, `"`):
		s, err := strconv.Unquote(text)
		if err != nil {
			return Value{}, fmt.Errorf("bad string literal")
		}
		return String(s), nil
	case text == "true" || text == "false":
		return Boolean(text == "true"), nil
	default:
		if f, err := strconv.ParseFloat(text, 64); err == nil {
			return Number(f), nil
		}
		if strings.ContainsAny(text, " \t") {
			return Value{}, fmt.Errorf("unquoted object with whitespace")
		}
		return Ref(text), nil
	}
}
