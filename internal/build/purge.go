package build

import (
	"bytes"
	"io"
	"path/filepath"
	"strings"

	"github.com/tdewolff/parse/v2"
	"github.com/tdewolff/parse/v2/css"
	"golang.org/x/net/html"

	"github.com/conneroisu/assetkit/internal/errors"
	"github.com/conneroisu/assetkit/internal/source"
)

var markupExtensions = map[string]bool{
	".html": true, ".htm": true, ".twig": true, ".vue": true, ".svelte": true, ".php": true,
}

// collectUsedNames gathers every class and id that may occur in the files
// matched by patterns. Markup files contribute class and id attribute
// values; other files contribute every identifier-like token.
func collectUsedNames(patterns []string, read func(string) ([]byte, error)) (map[string]bool, error) {
	files, err := source.Enumerate(patterns)
	if err != nil {
		return nil, err
	}

	used := make(map[string]bool)
	for _, file := range files {
		data, err := read(file)
		if err != nil {
			return nil, errors.NewIOError(errors.CodeReadFailed, "cannot read purge content", err).WithFile(file)
		}
		if markupExtensions[strings.ToLower(filepath.Ext(file))] {
			markupNames(data, used)
		} else {
			tokenNames(data, used)
		}
	}

	return used, nil
}

func markupNames(data []byte, used map[string]bool) {
	z := html.NewTokenizer(bytes.NewReader(data))
	for {
		switch z.Next() {
		case html.ErrorToken:
			return
		case html.StartTagToken, html.SelfClosingTagToken:
			for {
				key, val, more := z.TagAttr()
				k := string(key)
				// covers class, id and bound forms like :class or x-bind:class
				if k == "id" || strings.HasSuffix(k, "class") {
					tokenNames(val, used)
				}
				if !more {
					break
				}
			}
		case html.TextToken:
			// template expressions inside text can build class names
			if bytes.ContainsAny(z.Text(), "{}") {
				tokenNames(z.Text(), used)
			}
		}
	}
}

func isNameByte(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' ||
		c == '-' || c == '_' || c == ':' || c == '/' || c == '.' || c == '[' || c == ']' || c == '%' || c == '!' || c == '@'
}

func tokenNames(data []byte, used map[string]bool) {
	start := -1
	flush := func(end int) {
		if start < 0 {
			return
		}
		token := string(data[start:end])
		start = -1
		used[token] = true
		if strings.Contains(token, ".") {
			for _, part := range strings.Split(token, ".") {
				if part != "" {
					used[part] = true
				}
			}
		}
	}

	for i := 0; i < len(data); i++ {
		if isNameByte(data[i]) {
			if start < 0 {
				start = i
			}
			continue
		}
		flush(i)
	}
	flush(len(data))
}

// purgeStylesheet rewrites src without the rulesets whose every selector
// names a class or id missing from used. Rulesets without class or id
// selectors and all at-rule preludes are kept.
func purgeStylesheet(src []byte, used map[string]bool) ([]byte, error) {
	p := css.NewParser(parse.NewInput(bytes.NewReader(src)), false)

	var out bytes.Buffer
	var selectors [][]css.Token
	skipDepth := 0

	for {
		gt, _, data := p.Next()
		if gt == css.ErrorGrammar {
			if p.Err() == io.EOF {
				return out.Bytes(), nil
			}
			return nil, errors.NewTransformError(errors.CodeStageFailed, "cannot parse stylesheet", p.Err())
		}

		if skipDepth > 0 {
			switch gt {
			case css.BeginRulesetGrammar, css.BeginAtRuleGrammar:
				skipDepth++
			case css.EndRulesetGrammar, css.EndAtRuleGrammar:
				skipDepth--
			}
			continue
		}

		switch gt {
		case css.CommentGrammar:
		case css.AtRuleGrammar:
			writeAtRule(&out, data, p.Values())
			out.WriteByte(';')
		case css.BeginAtRuleGrammar:
			writeAtRule(&out, data, p.Values())
			out.WriteByte('{')
		case css.EndAtRuleGrammar, css.EndRulesetGrammar:
			out.WriteByte('}')
		case css.QualifiedRuleGrammar:
			selectors = append(selectors, copyTokens(p.Values()))
		case css.BeginRulesetGrammar:
			selectors = append(selectors, copyTokens(p.Values()))
			if !anySelectorAlive(selectors, used) {
				skipDepth = 1
				selectors = selectors[:0]
				continue
			}
			for i, sel := range selectors {
				if i > 0 {
					out.WriteByte(',')
				}
				writeTokens(&out, sel)
			}
			out.WriteByte('{')
			selectors = selectors[:0]
		case css.DeclarationGrammar, css.CustomPropertyGrammar:
			out.Write(data)
			out.WriteByte(':')
			writeTokens(&out, p.Values())
			out.WriteByte(';')
		default:
			out.Write(data)
		}
	}
}

func copyTokens(values []css.Token) []css.Token {
	out := make([]css.Token, len(values))
	for i, v := range values {
		out[i] = css.Token{TokenType: v.TokenType, Data: append([]byte(nil), v.Data...)}
	}

	return out
}

func writeAtRule(out *bytes.Buffer, name []byte, values []css.Token) {
	out.Write(name)
	if len(values) > 0 {
		out.WriteByte(' ')
	}
	writeTokens(out, values)
}

func writeTokens(out *bytes.Buffer, values []css.Token) {
	for _, v := range values {
		out.Write(v.Data)
	}
}

func anySelectorAlive(selectors [][]css.Token, used map[string]bool) bool {
	for _, sel := range selectors {
		if selectorAlive(sel, used) {
			return true
		}
	}

	return false
}

// selectorAlive reports whether every class and id in sel is used. Names
// inside functional pseudo-classes such as :not() are ignored.
func selectorAlive(sel []css.Token, used map[string]bool) bool {
	depth := 0
	for i, tok := range sel {
		switch tok.TokenType {
		case css.FunctionToken, css.LeftParenthesisToken:
			depth++
		case css.RightParenthesisToken:
			if depth > 0 {
				depth--
			}
		case css.HashToken:
			if depth == 0 && !used[unescape(tok.Data[1:])] {
				return false
			}
		case css.DelimToken:
			if depth == 0 && bytes.Equal(tok.Data, []byte(".")) && i+1 < len(sel) && sel[i+1].TokenType == css.IdentToken {
				if !used[unescape(sel[i+1].Data)] {
					return false
				}
			}
		}
	}

	return true
}

func unescape(name []byte) string {
	return strings.ReplaceAll(string(name), `\`, "")
}
