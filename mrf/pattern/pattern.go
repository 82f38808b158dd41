package pattern

import (
	"fmt"
	"regexp"
	"strings"
)

// Prefix marking a pattern string as a regular expression: `~r/SOURCE/FLAGS`.
const RegexPrefix = "~r/"

// Regex flags accepted in pattern strings. "u" is accepted for compatibility and has no effect, since Go regular expressions always operate on UTF-8.
const regexFlags = "imsUu"

// Text pattern: either a literal substring, or a regular expression.
//
// The zero value is the empty literal pattern, which matches any text.
type Pattern struct {
	source string
	flags  string
	re     *regexp.Regexp
}

// Creates a literal (substring) pattern.
func Literal(s string) Pattern {
	return Pattern{source: s}
}

// Compiles a regular expression pattern with the given flags (subset of "imsUu").
func Regex(source, flags string) (Pattern, error) {
	goFlags := ""
	for _, f := range flags {
		if !strings.ContainsRune(regexFlags, f) {
			return Pattern{}, fmt.Errorf("unsupported regex flag %q in pattern %q", f, source)
		}
		if f != 'u' && !strings.ContainsRune(goFlags, f) {
			goFlags += string(f)
		}
	}
	expr := source
	if goFlags != "" {
		expr = "(?" + goFlags + ")" + source
	}
	re, err := regexp.Compile(expr)
	if err != nil {
		return Pattern{}, fmt.Errorf("invalid regex pattern %q: %w", source, err)
	}
	return Pattern{source: source, flags: flags, re: re}, nil
}

func MustRegex(source, flags string) Pattern {
	p, err := Regex(source, flags)
	if err != nil {
		panic(err)
	}
	return p
}

// Parses a pattern string. Strings of the form `~r/SOURCE/FLAGS` are regular expressions; anything else is a literal.
//
// Within SOURCE, `\/` is an escaped slash.
func Parse(s string) (Pattern, error) {
	if !strings.HasPrefix(s, RegexPrefix) {
		return Literal(s), nil
	}
	body := s[len(RegexPrefix):]
	end := strings.LastIndex(body, "/")
	if end < 0 {
		return Pattern{}, fmt.Errorf("unterminated regex pattern: %q", s)
	}
	source := strings.ReplaceAll(body[:end], `\/`, "/")
	return Regex(source, body[end+1:])
}

func MustParse(s string) Pattern {
	p, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return p
}

func (p Pattern) IsRegex() bool {
	return p.re != nil
}

// Reports whether the pattern occurs anywhere in text. Literal patterns are case-sensitive and do no normalization.
func (p Pattern) Match(text string) bool {
	if p.re != nil {
		return p.re.MatchString(text)
	}
	return strings.Contains(text, p.source)
}

// Replaces every occurrence of the pattern in text. For regex patterns, `$1`-style expansions in repl refer to capture groups.
func (p Pattern) Replace(text, repl string) string {
	if p.re != nil {
		return p.re.ReplaceAllString(text, repl)
	}
	if p.source == "" {
		return text
	}
	return strings.ReplaceAll(text, p.source, repl)
}

// Human-readable form; inverse of Parse.
func (p Pattern) String() string {
	if p.re != nil {
		return RegexPrefix + strings.ReplaceAll(p.source, "/", `\/`) + "/" + p.flags
	}
	return p.source
}

func (p Pattern) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

func (p *Pattern) UnmarshalText(b []byte) error {
	parsed, err := Parse(string(b))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// Reports whether any of the patterns matches text.
func MatchAny(text string, patterns []Pattern) bool {
	for _, p := range patterns {
		if p.Match(text) {
			return true
		}
	}
	return false
}

// Renders a list of patterns as strings.
func Strings(patterns []Pattern) []string {
	out := make([]string, len(patterns))
	for i, p := range patterns {
		out[i] = p.String()
	}
	return out
}
