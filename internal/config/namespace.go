package config

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// cfg_args written by the training scripts is the repr of an argparse
// Namespace, for example:
//
//	Namespace(eval=True, images='images', sh_degree=3, source_path='/data/x')
//
// Only literals that argparse can produce are understood: quoted strings,
// numbers, True, False, None and lists or tuples of those.

const namespacePrefix = "Namespace("

func isNamespace(data []byte) bool {
	return strings.HasPrefix(strings.TrimSpace(string(data)), namespacePrefix)
}

// parseNamespace reads the model parameters out of a Namespace repr. Keys
// that are not model parameters are ignored.
func parseNamespace(data []byte) (*ModelParams, error) {
	text := strings.TrimSpace(string(data))
	if !strings.HasPrefix(text, namespacePrefix) || !strings.HasSuffix(text, ")") {
		return nil, fmt.Errorf("not a Namespace(...) value")
	}
	p := &nsParser{s: text[len(namespacePrefix) : len(text)-1]}

	m := &ModelParams{}
	for {
		p.skipSpace()
		if p.done() {
			return m, nil
		}
		key, err := p.ident()
		if err != nil {
			return nil, err
		}
		if err := p.expect('='); err != nil {
			return nil, err
		}
		val, err := p.value()
		if err != nil {
			return nil, fmt.Errorf("%s: %w", key, err)
		}
		if err := m.setNamespaceField(key, val); err != nil {
			return nil, err
		}
		p.skipSpace()
		if p.done() {
			return m, nil
		}
		if err := p.expect(','); err != nil {
			return nil, err
		}
	}
}

func (m *ModelParams) setNamespaceField(key string, val interface{}) error {
	if val == nil {
		return nil
	}
	wrong := func(want string) error {
		return fmt.Errorf("%s: want %s, got %v", key, want, val)
	}
	switch key {
	case "sh_degree":
		n, ok := val.(int64)
		if !ok {
			return wrong("int")
		}
		m.SHDegree = PtrInt(int(n))
	case "source_path", "model_path", "images":
		s, ok := val.(string)
		if !ok {
			return wrong("string")
		}
		switch key {
		case "source_path":
			m.SourcePath = PtrString(s)
		case "model_path":
			m.ModelPath = PtrString(s)
		default:
			m.Images = PtrString(s)
		}
	case "white_background", "eval":
		b, ok := val.(bool)
		if !ok {
			return wrong("bool")
		}
		if key == "eval" {
			m.Eval = PtrBool(b)
		} else {
			m.WhiteBackground = PtrBool(b)
		}
	}
	return nil
}

// formatNamespace renders m the way argparse prints a Namespace: keys
// sorted, unset fields omitted.
func formatNamespace(m *ModelParams) string {
	fields := map[string]string{}
	if m.SHDegree != nil {
		fields["sh_degree"] = strconv.Itoa(*m.SHDegree)
	}
	if m.SourcePath != nil {
		fields["source_path"] = pyQuote(*m.SourcePath)
	}
	if m.ModelPath != nil {
		fields["model_path"] = pyQuote(*m.ModelPath)
	}
	if m.Images != nil {
		fields["images"] = pyQuote(*m.Images)
	}
	if m.WhiteBackground != nil {
		fields["white_background"] = pyBool(*m.WhiteBackground)
	}
	if m.Eval != nil {
		fields["eval"] = pyBool(*m.Eval)
	}

	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + "=" + fields[k]
	}
	return namespacePrefix + strings.Join(parts, ", ") + ")"
}

func pyBool(b bool) string {
	if b {
		return "True"
	}
	return "False"
}

func pyQuote(s string) string {
	var b strings.Builder
	b.WriteByte('\'')
	for _, r := range s {
		switch r {
		case '\\':
			b.WriteString(`\\`)
		case '\'':
			b.WriteString(`\'`)
		case '\n':
			b.WriteString(`\n`)
		case '\t':
			b.WriteString(`\t`)
		default:
			b.WriteRune(r)
		}
	}
	b.WriteByte('\'')
	return b.String()
}

type nsParser struct {
	s   string
	pos int
}

func (p *nsParser) done() bool { return p.pos >= len(p.s) }

func (p *nsParser) skipSpace() {
	for !p.done() && strings.IndexByte(" \t\r\n", p.s[p.pos]) >= 0 {
		p.pos++
	}
}

func (p *nsParser) expect(c byte) error {
	p.skipSpace()
	if p.done() || p.s[p.pos] != c {
		return fmt.Errorf("expected %q at offset %d", c, p.pos)
	}
	p.pos++
	return nil
}

func isIdentByte(c byte, first bool) bool {
	switch {
	case c == '_', c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z':
		return true
	case c >= '0' && c <= '9':
		return !first
	}
	return false
}

func (p *nsParser) ident() (string, error) {
	p.skipSpace()
	start := p.pos
	for !p.done() && isIdentByte(p.s[p.pos], p.pos == start) {
		p.pos++
	}
	if p.pos == start {
		return "", fmt.Errorf("expected a name at offset %d", start)
	}
	return p.s[start:p.pos], nil
}

// value returns string, int64, float64, bool, nil or []interface{}.
func (p *nsParser) value() (interface{}, error) {
	p.skipSpace()
	if p.done() {
		return nil, fmt.Errorf("missing value")
	}
	switch c := p.s[p.pos]; {
	case c == '\'' || c == '"':
		return p.str(c)
	case c == '[':
		return p.seq(']')
	case c == '(':
		return p.seq(')')
	case c == '-' || c == '+' || c == '.' || (c >= '0' && c <= '9'):
		return p.number()
	}

	word, err := p.ident()
	if err != nil {
		return nil, err
	}
	switch word {
	case "True":
		return true, nil
	case "False":
		return false, nil
	case "None":
		return nil, nil
	}
	return nil, fmt.Errorf("unsupported value %q", word)
}

func (p *nsParser) str(quote byte) (string, error) {
	p.pos++
	var b strings.Builder
	for !p.done() {
		c := p.s[p.pos]
		p.pos++
		switch c {
		case quote:
			return b.String(), nil
		case '\\':
			if p.done() {
				return "", fmt.Errorf("unterminated escape")
			}
			e := p.s[p.pos]
			p.pos++
			switch e {
			case 'n':
				b.WriteByte('\n')
			case 't':
				b.WriteByte('\t')
			case 'r':
				b.WriteByte('\r')
			default:
				b.WriteByte(e)
			}
		default:
			b.WriteByte(c)
		}
	}
	return "", fmt.Errorf("unterminated string")
}

func (p *nsParser) number() (interface{}, error) {
	start := p.pos
	for !p.done() && strings.IndexByte("+-.0123456789eE_", p.s[p.pos]) >= 0 {
		p.pos++
	}
	lit := strings.ReplaceAll(p.s[start:p.pos], "_", "")
	if n, err := strconv.ParseInt(lit, 10, 64); err == nil {
		return n, nil
	}
	f, err := strconv.ParseFloat(lit, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid number %q", lit)
	}
	return f, nil
}

func (p *nsParser) seq(end byte) ([]interface{}, error) {
	p.pos++
	var out []interface{}
	for {
		p.skipSpace()
		if !p.done() && p.s[p.pos] == end {
			p.pos++
			return out, nil
		}
		v, err := p.value()
		if err != nil {
			return nil, err
		}
		out = append(out, v)
		p.skipSpace()
		if !p.done() && p.s[p.pos] == ',' {
			p.pos++
			continue
		}
		if err := p.expect(end); err != nil {
			return nil, err
		}
		return out, nil
	}
}
