package scriptparse

import (
	"fmt"
	"strings"

	"github.com/juvistr/draftspec/internal/specerr"
)

// Parse statically recognizes describe/context/it/fit/xit/tag/before[_all]/
// after[_all]/let calls and #load directives in src, without evaluating it.
// Grounded on internal/attractor/dot.Parse's hand-rolled, byte-level
// recursive-descent approach (scope stack, lookahead-free scanning, explicit
// line tracking) rather than a generated parser.
func Parse(file string, src []byte) (*Result, error) {
	p := &parser{src: src, line: 1, result: &Result{File: file}}
	if err := p.parseStatements(nil); err != nil {
		return p.result, specerr.NewParseError(file, p.line, err.Error())
	}
	p.skipWS()
	if !p.eof() {
		return p.result, specerr.NewParseError(file, p.line, fmt.Sprintf("unexpected %q", string(p.peek())))
	}
	p.result.Complete = len(p.result.Warnings) == 0
	return p.result, nil
}

type parser struct {
	src    []byte
	pos    int
	line   int
	result *Result
}

func (p *parser) eof() bool { return p.pos >= len(p.src) }

func (p *parser) peek() byte {
	if p.eof() {
		return 0
	}
	return p.src[p.pos]
}

func (p *parser) adv() byte {
	b := p.src[p.pos]
	p.pos++
	if b == '\n' {
		p.line++
	}
	return b
}

func (p *parser) skipWS() {
	for !p.eof() {
		b := p.peek()
		if b == ' ' || b == '\t' || b == '\r' || b == '\n' {
			p.adv()
			continue
		}
		if b == '/' && p.pos+1 < len(p.src) && p.src[p.pos+1] == '/' {
			p.skipToEndOfLine()
			continue
		}
		return
	}
}

func (p *parser) skipToEndOfLine() {
	for !p.eof() && p.peek() != '\n' {
		p.adv()
	}
}

func isIdentStart(b byte) bool {
	return b == '_' || (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
}

func isIdentPart(b byte) bool {
	return isIdentStart(b) || (b >= '0' && b <= '9')
}

func (p *parser) readIdent() string {
	start := p.pos
	for !p.eof() && isIdentPart(p.peek()) {
		p.pos++
	}
	return string(p.src[start:p.pos])
}

func (p *parser) readStringLiteral() (string, error) {
	startLine := p.line
	p.adv() // opening quote
	var sb strings.Builder
	for {
		if p.eof() {
			return "", fmt.Errorf("unterminated string literal starting at line %d", startLine)
		}
		b := p.adv()
		if b == '"' {
			return sb.String(), nil
		}
		if b == '\\' && !p.eof() {
			next := p.adv()
			switch next {
			case 'n':
				sb.WriteByte('\n')
			case 't':
				sb.WriteByte('\t')
			default:
				sb.WriteByte(next)
			}
			continue
		}
		sb.WriteByte(b)
	}
}

type argVal struct {
	Value    string
	IsString bool
}

// parseArgs assumes p.peek() == '(' and consumes through the matching ')'.
func (p *parser) parseArgs() ([]argVal, error) {
	p.adv() // '('
	var args []argVal
	p.skipWS()
	if p.peek() == ')' {
		p.adv()
		return args, nil
	}
	for {
		val, isStr, delim, err := p.parseArg()
		if err != nil {
			return nil, err
		}
		args = append(args, argVal{Value: val, IsString: isStr})
		if delim == ')' {
			return args, nil
		}
		p.skipWS()
		if p.peek() == ')' {
			p.adv()
			return args, nil
		}
	}
}

// parseArg scans one comma/paren-delimited argument. If it is exactly a
// quoted string literal with no trailing content, IsString is true and Value
// holds the unescaped content; otherwise the argument is a non-literal
// expression and only skipped over (its raw text is discarded).
func (p *parser) parseArg() (value string, isString bool, delim byte, err error) {
	p.skipWS()
	if p.peek() == '"' {
		s, err := p.readStringLiteral()
		if err != nil {
			return "", false, 0, err
		}
		p.skipWS()
		if p.peek() == ',' || p.peek() == ')' {
			d := p.adv()
			return s, true, d, nil
		}
		d, err := p.skipArgTail()
		return "", false, d, err
	}
	d, err := p.skipArgTail()
	return "", false, d, err
}

// skipArgTail consumes bytes until a top-level (paren/brace/bracket depth 0)
// comma or closing paren, respecting nested brackets and string literals.
func (p *parser) skipArgTail() (byte, error) {
	depth := 0
	for {
		if p.eof() {
			return 0, fmt.Errorf("unterminated argument list")
		}
		b := p.peek()
		switch b {
		case '"':
			if _, err := p.readStringLiteral(); err != nil {
				return 0, err
			}
		case '(', '{', '[':
			depth++
			p.adv()
		case ')', '}', ']':
			if depth == 0 {
				p.adv()
				return b, nil
			}
			depth--
			p.adv()
		case ',':
			if depth == 0 {
				p.adv()
				return ',', nil
			}
			p.adv()
		default:
			p.adv()
		}
	}
}

// skipBlockRaw assumes p.peek() == '{' and discards the whole block's
// contents without interpreting them (used for it/before/after/let bodies,
// whose contents are arbitrary script code the static parser never runs).
func (p *parser) skipBlockRaw() error {
	p.adv() // '{'
	depth := 1
	for depth > 0 {
		if p.eof() {
			return fmt.Errorf("unterminated block")
		}
		b := p.peek()
		switch b {
		case '"':
			if _, err := p.readStringLiteral(); err != nil {
				return err
			}
		case '{':
			depth++
			p.adv()
		case '}':
			depth--
			p.adv()
		default:
			p.adv()
		}
	}
	return nil
}

// parseBlockAsStatements assumes p.peek() == '{' and recurses into its
// contents as further statements (used for describe/context/tag bodies,
// which may themselves declare nested specs and contexts).
func (p *parser) parseBlockAsStatements(path []string) error {
	p.adv() // '{'
	if err := p.parseStatements(path); err != nil {
		return err
	}
	p.skipWS()
	if p.eof() {
		return fmt.Errorf("unterminated block")
	}
	if p.peek() != '}' {
		return fmt.Errorf("expected '}', got %q", string(p.peek()))
	}
	p.adv()
	return nil
}

func (p *parser) parseStatements(path []string) error {
	for {
		p.skipWS()
		if p.eof() || p.peek() == '}' {
			return nil
		}
		if err := p.parseStatement(path); err != nil {
			return err
		}
	}
}

func firstArg(args []argVal) (string, bool) {
	if len(args) == 0 {
		return "", false
	}
	return args[0].Value, args[0].IsString
}

func (p *parser) parseStatement(path []string) error {
	if p.peek() == '#' {
		return p.parseLoadDirective()
	}
	if !isIdentStart(p.peek()) {
		// Stray token outside any recognized call; skip one byte leniently
		// rather than failing the whole file over unrelated script syntax.
		p.adv()
		return nil
	}

	startLine := p.line
	ident := p.readIdent()
	p.skipWS()

	var args []argVal
	if p.peek() == '(' {
		var err error
		args, err = p.parseArgs()
		if err != nil {
			return err
		}
		p.skipWS()
	}
	hasBlock := p.peek() == '{'

	switch ident {
	case "describe", "context":
		desc, isLit := firstArg(args)
		if !isLit {
			p.warn(startLine, "non-literal description")
			desc = placeholderDescription
		}
		childPath := append(append([]string{}, path...), desc)
		if hasBlock {
			return p.parseBlockAsStatements(childPath)
		}
		return nil
	case "tag", "tags":
		if hasBlock {
			return p.parseBlockAsStatements(path)
		}
		return nil
	case "it", "fit", "xit":
		desc, isLit := firstArg(args)
		if !isLit {
			p.warn(startLine, "non-literal description")
			desc = placeholderDescription
		}
		kind := KindRegular
		switch ident {
		case "fit":
			kind = KindFocused
		case "xit":
			kind = KindSkipped
		}
		pending := !hasBlock
		if hasBlock {
			if err := p.skipBlockRaw(); err != nil {
				return err
			}
		}
		p.result.Specs = append(p.result.Specs, StaticSpec{
			Description: desc,
			ContextPath: append([]string{}, path...),
			Line:        startLine,
			Kind:        kind,
			Pending:     pending,
		})
		return nil
	case "before", "before_all", "after", "after_all", "let":
		if hasBlock {
			return p.skipBlockRaw()
		}
		return nil
	default:
		if hasBlock {
			return p.skipBlockRaw()
		}
		return nil
	}
}

func (p *parser) parseLoadDirective() error {
	line := p.line
	p.adv() // '#'
	save := p.pos
	p.skipWS()
	if isIdentStart(p.peek()) {
		ident := p.readIdent()
		if ident == "load" {
			p.skipWS()
			if p.peek() == '"' {
				path, err := p.readStringLiteral()
				if err != nil {
					return err
				}
				p.result.Loads = append(p.result.Loads, LoadDirective{Line: line, Path: path})
				return nil
			}
		}
	}
	// Not a recognized #load directive: treat the rest of the line as a
	// comment, matching the DOT dialect's comment-stripping convention.
	p.pos = save
	p.skipToEndOfLine()
	return nil
}

func (p *parser) warn(line int, reason string) {
	p.result.Warnings = append(p.result.Warnings, Warning{Line: line, Reason: reason})
}
