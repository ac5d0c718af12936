// Package sqltext cleans model output into executable SQL and gates what may
// be executed.
package sqltext

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
)

var ErrNotReadOnly = errors.New("only read-only SELECT/WITH queries are allowed")

// Clean removes every "```sql" and "```" marker and trims the result. It
// does not parse or validate SQL.
func Clean(raw string) string {
	cleaned := strings.ReplaceAll(raw, "```sql", "")
	cleaned = strings.ReplaceAll(cleaned, "```", "")
	return strings.TrimSpace(cleaned)
}

// Dialect selects the lexical rules used to find statement boundaries. The
// values match the dialect names used in prompts.
type Dialect string

const (
	BigQuery Dialect = "BigQuery"
	DuckDB   Dialect = "DuckDB"
)

// lexer describes how a dialect quotes and comments.
type lexer struct {
	// backslash escapes the next rune inside every quoted token.
	backslash   bool
	hashComment bool
	backtick    bool
	// tripleQuotes enables '''...''' and """...""".
	tripleQuotes bool
	// dollarQuotes enables $tag$...$tag$ strings.
	dollarQuotes bool
	// escapeStrings enables E'...' with backslash escapes.
	escapeStrings bool
}

var lexers = map[Dialect]lexer{
	BigQuery: {backslash: true, hashComment: true, backtick: true, tripleQuotes: true},
	DuckDB:   {dollarQuotes: true, escapeStrings: true},
}

var writeKeywords = map[string]struct{}{
	"alter":    {},
	"attach":   {},
	"call":     {},
	"copy":     {},
	"create":   {},
	"delete":   {},
	"detach":   {},
	"drop":     {},
	"export":   {},
	"grant":    {},
	"insert":   {},
	"install":  {},
	"load":     {},
	"merge":    {},
	"pragma":   {},
	"revoke":   {},
	"truncate": {},
	"update":   {},
}

// ReadOnly accepts a single SELECT or WITH statement of the given dialect. A
// trailing semicolon is allowed. Keywords inside string literals, quoted
// identifiers and comments are ignored, and write keywords only count where
// a statement can begin. An unknown dialect must pass the rules of every
// known one.
func ReadOnly(dialect Dialect, sql string) error {
	lex, ok := lexers[dialect]
	if ok {
		return checkReadOnly(lex, sql)
	}
	for _, known := range []Dialect{BigQuery, DuckDB} {
		if err := checkReadOnly(lexers[known], sql); err != nil {
			return err
		}
	}
	return nil
}

func checkReadOnly(lex lexer, sql string) error {
	tokens, statements, err := lex.scan(sql)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNotReadOnly, err)
	}
	first := ""
	for _, tok := range tokens {
		if tok.word {
			first = tok.text
			break
		}
	}
	if first == "" {
		return fmt.Errorf("%w: empty statement", ErrNotReadOnly)
	}
	if statements > 1 {
		return fmt.Errorf("%w: multiple statements", ErrNotReadOnly)
	}
	if first != "select" && first != "with" {
		return fmt.Errorf("%w: statement starts with %q", ErrNotReadOnly, strings.ToUpper(first))
	}
	for i, tok := range tokens {
		if _, ok := writeKeywords[tok.text]; ok && tok.word && statementVerb(tokens, i) {
			return fmt.Errorf("%w: contains %q", ErrNotReadOnly, strings.ToUpper(tok.text))
		}
	}
	return nil
}

// statementVerb reports whether the word at tokens[i] sits where a statement
// begins: at the start, after a semicolon, or after a parenthesis when it is
// followed by another word ("(DELETE FROM", ") INSERT INTO"). A column
// reference such as count(load) is left alone.
func statementVerb(tokens []token, i int) bool {
	if i == 0 || tokens[i-1].text == ";" {
		return true
	}
	switch tokens[i-1].text {
	case "(", ")":
		return i+1 < len(tokens) && tokens[i+1].word
	}
	return false
}

type token struct {
	text string
	word bool
}

// scan returns the significant tokens of sql (lower-cased words and
// punctuation; literals and comments are dropped) and the number of
// non-empty statements separated by semicolons. Unterminated literals and
// comments are errors so that nothing is hidden from the caller.
func (lex lexer) scan(sql string) ([]token, int, error) {
	runes := []rune(sql)
	n := len(runes)
	var tokens []token
	statements := 0
	pending := false

	for i := 0; i < n; {
		r := runes[i]
		switch {
		case r == '-' && i+1 < n && runes[i+1] == '-', r == '#' && lex.hashComment:
			for i < n && runes[i] != '\n' {
				i++
			}
		case r == '/' && i+1 < n && runes[i+1] == '*':
			end := indexFrom(runes, i+2, []rune("*/"))
			if end < 0 {
				return nil, 0, errors.New("unterminated comment")
			}
			i = end + 2
		case r == '\'' || r == '"' || (r == '`' && lex.backtick):
			end, err := lex.quoted(runes, i)
			if err != nil {
				return nil, 0, err
			}
			pending = true
			i = end
		case r == '$' && lex.dollarQuotes && dollarTagAt(runes, i) > 0:
			tagEnd := dollarTagAt(runes, i)
			tag := runes[i:tagEnd]
			end := indexFrom(runes, tagEnd, tag)
			if end < 0 {
				return nil, 0, errors.New("unterminated dollar-quoted string")
			}
			pending = true
			i = end + len(tag)
		case r == ';':
			if pending {
				statements++
				pending = false
			}
			tokens = append(tokens, token{text: ";"})
			i++
		case unicode.IsLetter(r) || r == '_':
			start := i
			for i < n && (unicode.IsLetter(runes[i]) || unicode.IsDigit(runes[i]) || runes[i] == '_') {
				i++
			}
			word := strings.ToLower(string(runes[start:i]))
			if lex.escapeStrings && word == "e" && i < n && runes[i] == '\'' {
				escaped := lex
				escaped.backslash = true
				end, err := escaped.quoted(runes, i)
				if err != nil {
					return nil, 0, err
				}
				pending = true
				i = end
				continue
			}
			tokens = append(tokens, token{text: word, word: true})
			pending = true
		case unicode.IsSpace(r):
			i++
		default:
			tokens = append(tokens, token{text: string(r)})
			pending = true
			i++
		}
	}
	if pending {
		statements++
	}
	return tokens, statements, nil
}

// quoted returns the index just past the quoted token starting at runes[i].
// A doubled quote always stands for one quote; a backslash escapes only when
// the dialect says so.
func (lex lexer) quoted(runes []rune, i int) (int, error) {
	q := runes[i]
	n := len(runes)
	if lex.tripleQuotes && q != '`' && i+2 < n && runes[i+1] == q && runes[i+2] == q {
		delim := []rune{q, q, q}
		for j := i + 3; j < n; j++ {
			if lex.backslash && runes[j] == '\\' {
				j++
				continue
			}
			if j+2 < n && runes[j] == q && runes[j+1] == q && runes[j+2] == q {
				return j + len(delim), nil
			}
		}
		return 0, errors.New("unterminated triple-quoted string")
	}
	for j := i + 1; j < n; j++ {
		switch {
		case lex.backslash && runes[j] == '\\':
			j++
		case runes[j] == q && j+1 < n && runes[j+1] == q:
			j++
		case runes[j] == q:
			return j + 1, nil
		}
	}
	return 0, fmt.Errorf("unterminated %c-quoted token", q)
}

// dollarTagAt returns the index just past a $tag$ opener at runes[i], or 0.
// Positional parameters such as $1 are not openers.
func dollarTagAt(runes []rune, i int) int {
	for j := i + 1; j < len(runes); j++ {
		r := runes[j]
		switch {
		case r == '$':
			return j + 1
		case r == '_' || unicode.IsLetter(r):
		case unicode.IsDigit(r) && j > i+1:
		default:
			return 0
		}
	}
	return 0
}

func indexFrom(runes []rune, from int, needle []rune) int {
	for j := from; j+len(needle) <= len(runes); j++ {
		match := true
		for k, r := range needle {
			if runes[j+k] != r {
				match = false
				break
			}
		}
		if match {
			return j
		}
	}
	return -1
}
