package kg

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"unicode"
)

// QuerySyntaxError reports a malformed graph query. It is surfaced to the
// caller unchanged so the offending query text stays visible.
type QuerySyntaxError struct {
	Query  string
	Detail string
}

func (e *QuerySyntaxError) Error() string {
	return fmt.Sprintf("query syntax error: %s in %q", e.Detail, e.Query)
}

// term is one position of a triple pattern: either a variable or a constant.
type term struct {
	variable string // "?x" form, without the question mark
	value    Value
	isVar    bool
}

type pattern struct {
	subject   term
	predicate term
	object    term
}

type selectItem struct {
	variable string
	count    bool
	alias    string // output column for aggregates
}

type query struct {
	raw      string
	selects  []selectItem
	patterns []pattern
	// notExists holds FILTER NOT EXISTS pattern groups. A solution survives
	// only if none of these groups can be satisfied under its bindings.
	notExists [][]pattern
	groupBy   []string
}

// Query runs a SELECT pattern query against the graph and returns one row
// per solution. Variables bind to native values; references come back as
// bare entity keys. Aggregate columns use their AS alias.
//
// Supported grammar:
//
//	SELECT ?a (COUNT(?b) AS ?n) WHERE { ?a pred ?b . ?b a Type .
//	  FILTER NOT EXISTS { ?a other ?c } } GROUP BY ?a
func (g *Graph) Query(text string) ([]map[string]any, error) {
	q, err := parseQuery(text)
	if err != nil {
		return nil, err
	}
	triples := g.Triples()
	solutions := matchAll(triples, q.patterns, map[string]Value{})
	if len(q.notExists) > 0 {
		kept := solutions[:0]
		for _, sol := range solutions {
			blocked := false
			for _, group := range q.notExists {
				if len(matchAll(triples, group, sol)) > 0 {
					blocked = true
					break
				}
			}
			if !blocked {
				kept = append(kept, sol)
			}
		}
		solutions = kept
	}
	if hasAggregate(q.selects) {
		return aggregateRows(q, solutions), nil
	}
	return plainRows(q, solutions), nil
}

func hasAggregate(items []selectItem) bool {
	for _, it := range items {
		if it.count {
			return true
		}
	}
	return false
}

// matchAll finds every binding extension of base that satisfies all patterns.
func matchAll(triples []Triple, patterns []pattern, base map[string]Value) []map[string]Value {
	if len(patterns) == 0 {
		return []map[string]Value{cloneBindings(base)}
	}
	p, rest := patterns[0], patterns[1:]
	var out []map[string]Value
	for _, t := range triples {
		next, ok := unify(p, t, base)
		if !ok {
			continue
		}
		out = append(out, matchAll(triples, rest, next)...)
	}
	return out
}

func unify(p pattern, t Triple, base map[string]Value) (map[string]Value, bool) {
	bindings := base
	extended := false
	bind := func(tm term, actual Value) bool {
		if !tm.isVar {
			return tm.value == actual
		}
		if bound, ok := bindings[tm.variable]; ok {
			return bound == actual
		}
		if !extended {
			bindings = cloneBindings(bindings)
			extended = true
		}
		bindings[tm.variable] = actual
		return true
	}
	if !bind(p.subject, Ref(t.Subject)) {
		return nil, false
	}
	if !bind(p.predicate, Ref(t.Predicate)) {
		return nil, false
	}
	if !bind(p.object, t.Object) {
		return nil, false
	}
	if !extended {
		bindings = cloneBindings(bindings)
	}
	return bindings, true
}

func cloneBindings(b map[string]Value) map[string]Value {
	out := make(map[string]Value, len(b))
	for k, v := range b {
		out[k] = v
	}
	return out
}

func plainRows(q *query, solutions []map[string]Value) []map[string]any {
	rows := make([]map[string]any, 0, len(solutions))
	seen := make(map[string]struct{})
	for _, sol := range solutions {
		row := make(map[string]any, len(q.selects))
		var sig strings.Builder
		for _, it := range q.selects {
			v, ok := sol[it.variable]
			if !ok {
				continue
			}
			row[it.variable] = v.Native()
			sig.WriteString(it.variable)
			sig.WriteByte('=')
			sig.WriteString(v.Encode())
			sig.WriteByte('|')
		}
		if _, dup := seen[sig.String()]; dup {
			continue
		}
		seen[sig.String()] = struct{}{}
		rows = append(rows, row)
	}
	return rows
}

func aggregateRows(q *query, solutions []map[string]Value) []map[string]any {
	type group struct {
		key      map[string]Value
		counted  map[string]map[string]struct{} // select variable -> distinct encodings
		firstIdx int
	}
	groups := make(map[string]*group)
	var orderKeys []string
	for i, sol := range solutions {
		var sig strings.Builder
		for _, gv := range q.groupBy {
			sig.WriteString(sol[gv].Encode())
			sig.WriteByte('|')
		}
		grp, ok := groups[sig.String()]
		if !ok {
			key := make(map[string]Value, len(q.groupBy))
			for _, gv := range q.groupBy {
				key[gv] = sol[gv]
			}
			grp = &group{key: key, counted: make(map[string]map[string]struct{}), firstIdx: i}
			groups[sig.String()] = grp
			orderKeys = append(orderKeys, sig.String())
		}
		for _, it := range q.selects {
			if !it.count {
				continue
			}
			if v, ok := sol[it.variable]; ok {
				set := grp.counted[it.variable]
				if set == nil {
					set = make(map[string]struct{})
					grp.counted[it.variable] = set
				}
				set[v.Encode()] = struct{}{}
			}
		}
	}
	sort.SliceStable(orderKeys, func(a, b int) bool {
		return groups[orderKeys[a]].firstIdx < groups[orderKeys[b]].firstIdx
	})
	rows := make([]map[string]any, 0, len(groups))
	for _, sig := range orderKeys {
		grp := groups[sig]
		row := make(map[string]any)
		for _, it := range q.selects {
			if it.count {
				row[it.alias] = float64(len(grp.counted[it.variable]))
				continue
			}
			if v, ok := grp.key[it.variable]; ok {
				row[it.variable] = v.Native()
			}
		}
		rows = append(rows, row)
	}
	return rows
}

// parsing

func parseQuery(text string) (*query, error) {
	toks, err := tokenize(text)
	if err != nil {
		return nil, &QuerySyntaxError{Query: text, Detail: err.Error()}
	}
	p := &queryParser{query: text, toks: toks}
	q, err := p.parse()
	if err != nil {
		return nil, &QuerySyntaxError{Query: text, Detail: err.Error()}
	}
	return q, nil
}

func tokenize(text string) ([]string, error) {
	var toks []string
	r := []rune(text)
	for i := 0; i < len(r); {
		c := r[i]
		switch {
		case unicode.IsSpace(c):
			i++
		case c == '{' || c == '}' || c == '(' || c == ')' || c == '.':
			toks = append(toks, string(c))
			i++
		case c == '"':
			j := i + 1
			for j < len(r) {
				if r[j] == '\\' {
					j += 2
					continue
				}
				if r[j] == '"' {
					break
				}
				j++
			}
			if j >= len(r) {
				return nil, fmt.Errorf("unterminated string literal")
			}
			toks = append(toks, string(r[i:j+1]))
			i = j + 1
		default:
			j := i
			for j < len(r) && !unicode.IsSpace(r[j]) && !strings.ContainsRune(`{}()."`, r[j]) {
				j++
			}
			toks = append(toks, string(r[i:j]))
			i = j
		}
	}
	return toks, nil
}

type queryParser struct {
	query string
	toks  []string
	pos   int
}

func (p *queryParser) peek() string {
	if p.pos < len(p.toks) {
		return p.toks[p.pos]
	}
	return ""
}

func (p *queryParser) next() string {
	t := p.peek()
	p.pos++
	return t
}

func (p *queryParser) expect(keyword string) error {
	if !strings.EqualFold(p.peek(), keyword) {
		return fmt.Errorf("expected %s, got %q", keyword, p.peek())
	}
	p.pos++
	return nil
}

func (p *queryParser) parse() (*query, error) {
	q := &query{raw: p.query}
	if err := p.expect("SELECT"); err != nil {
		return nil, err
	}
	for !strings.EqualFold(p.peek(), "WHERE") {
		if p.peek() == "" {
			return nil, fmt.Errorf("missing WHERE clause")
		}
		item, err := p.parseSelectItem()
		if err != nil {
			return nil, err
		}
		q.selects = append(q.selects, item)
	}
	if len(q.selects) == 0 {
		return nil, fmt.Errorf("empty select list")
	}
	p.pos++ // WHERE
	if err := p.expect("{"); err != nil {
		return nil, err
	}
	for p.peek() != "}" {
		if p.peek() == "" {
			return nil, fmt.Errorf("unterminated WHERE block")
		}
		if strings.EqualFold(p.peek(), "FILTER") {
			group, err := p.parseNotExists()
			if err != nil {
				return nil, err
			}
			q.notExists = append(q.notExists, group)
			continue
		}
		pat, err := p.parsePattern()
		if err != nil {
			return nil, err
		}
		q.patterns = append(q.patterns, pat)
	}
	p.pos++ // }
	if strings.EqualFold(p.peek(), "GROUP") {
		p.pos++
		if err := p.expect("BY"); err != nil {
			return nil, err
		}
		for strings.HasPrefix(p.peek(), "?") {
			q.groupBy = append(q.groupBy, strings.TrimPrefix(p.next(), "?"))
		}
		if len(q.groupBy) == 0 {
			return nil, fmt.Errorf("GROUP BY requires at least one variable")
		}
	}
	if p.peek() != "" {
		return nil, fmt.Errorf("unexpected trailing token %q", p.peek())
	}
	if hasAggregate(q.selects) && len(q.groupBy) == 0 {
		return nil, fmt.Errorf("aggregate select requires GROUP BY")
	}
	return q, nil
}

func (p *queryParser) parseSelectItem() (selectItem, error) {
	tok := p.next()
	if tok == "(" {
		if err := p.expect("COUNT"); err != nil {
			return selectItem{}, err
		}
		if err := p.expect("("); err != nil {
			return selectItem{}, err
		}
		v := p.next()
		if !strings.HasPrefix(v, "?") {
			return selectItem{}, fmt.Errorf("COUNT argument must be a variable, got %q", v)
		}
		if err := p.expect(")"); err != nil {
			return selectItem{}, err
		}
		if err := p.expect("AS"); err != nil {
			return selectItem{}, err
		}
		alias := p.next()
		if !strings.HasPrefix(alias, "?") {
			return selectItem{}, fmt.Errorf("AS alias must be a variable, got %q", alias)
		}
		if err := p.expect(")"); err != nil {
			return selectItem{}, err
		}
		return selectItem{
			variable: strings.TrimPrefix(v, "?"),
			count:    true,
			alias:    strings.TrimPrefix(alias, "?"),
		}, nil
	}
	if !strings.HasPrefix(tok, "?") {
		return selectItem{}, fmt.Errorf("expected variable in select list, got %q", tok)
	}
	return selectItem{variable: strings.TrimPrefix(tok, "?")}, nil
}

func (p *queryParser) parseNotExists() ([]pattern, error) {
	p.pos++ // FILTER
	if err := p.expect("NOT"); err != nil {
		return nil, err
	}
	if err := p.expect("EXISTS"); err != nil {
		return nil, err
	}
	if err := p.expect("{"); err != nil {
		return nil, err
	}
	var group []pattern
	for p.peek() != "}" {
		if p.peek() == "" {
			return nil, fmt.Errorf("unterminated NOT EXISTS block")
		}
		pat, err := p.parsePattern()
		if err != nil {
			return nil, err
		}
		group = append(group, pat)
	}
	p.pos++ // }
	if len(group) == 0 {
		return nil, fmt.Errorf("empty NOT EXISTS block")
	}
	return group, nil
}

func (p *queryParser) parsePattern() (pattern, error) {
	s, err := p.parseTerm()
	if err != nil {
		return pattern{}, err
	}
	pr, err := p.parseTerm()
	if err != nil {
		return pattern{}, err
	}
	o, err := p.parseTerm()
	if err != nil {
		return pattern{}, err
	}
	// Trailing dot between patterns is optional before the closing brace.
	if p.peek() == "." {
		p.pos++
	} else if p.peek() != "}" {
		return pattern{}, fmt.Errorf("expected '.' after pattern, got %q", p.peek())
	}
	return pattern{subject: s, predicate: pr, object: o}, nil
}

func (p *queryParser) parseTerm() (term, error) {
	tok := p.next()
	switch {
	case tok == "":
		return term{}, fmt.Errorf("unexpected end of query in pattern")
	case strings.HasPrefix(tok, "?"):
		name := strings.TrimPrefix(tok, "?")
		if name == "" {
			return term{}, fmt.Errorf("empty variable name")
		}
		return term{variable: name, isVar: true}, nil
	case strings.HasPrefix(tok, `"`):
		s, err := strconv.Unquote(tok)
		if err != nil {
			return term{}, fmt.Errorf("bad string literal %s", tok)
		}
		return term{value: String(s)}, nil
	case tok == "true" || tok == "false":
		return term{value: Boolean(tok == "true")}, nil
	default:
		if f, err := strconv.ParseFloat(tok, 64); err == nil {
			return term{value: Number(f)}, nil
		}
		return term{value: Ref(tok)}, nil
	}
}
