package features

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Count is the fixed length of every Vector.
const Count = 9

// Field positions inside a Vector.
const (
	URLLength = iota
	AuthorityLength
	SubdomainDepth
	SpecialChars
	PathLength
	QueryParams
	Secure
	HasUserinfo
	AuthorityDigits
)

// Names lists the fields in vector order.
var Names = [Count]string{
	"url_length",
	"authority_length",
	"subdomain_depth",
	"special_chars",
	"path_length",
	"query_params",
	"secure",
	"has_userinfo",
	"authority_digits",
}

// Vector is the numeric form of a URL fed to the classifier.
type Vector [Count]float64

// Parts are the syntactic components of a URL after scheme normalization.
type Parts struct {
	Scheme    string
	Authority string
	Path      string
	Query     string
}

var schemeRe = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9+.\-]*://`)

// Normalize prefixes http:// when raw carries no scheme.
func Normalize(raw string) string {
	if schemeRe.MatchString(raw) {
		return raw
	}
	return "http://" + raw
}

// Split breaks a URL into scheme, authority, path and query. It never fails:
// anything it cannot place ends up in the component it was found in.
func Split(raw string) Parts {
	s := Normalize(raw)

	var p Parts
	idx := strings.Index(s, "://")
	p.Scheme = strings.ToLower(s[:idx])
	rest := s[idx+3:]

	if end := strings.IndexAny(rest, "/?#"); end >= 0 {
		p.Authority = rest[:end]
		rest = rest[end:]
	} else {
		p.Authority = rest
		rest = ""
	}

	if i := strings.IndexByte(rest, '#'); i >= 0 {
		rest = rest[:i]
	}
	if i := strings.IndexByte(rest, '?'); i >= 0 {
		p.Path = rest[:i]
		p.Query = rest[i+1:]
	} else {
		p.Path = rest
	}
	return p
}

// Host returns the lower-cased host of the authority, without userinfo or port.
func (p Parts) Host() string {
	host := p.Authority
	if i := strings.LastIndexByte(host, '@'); i >= 0 {
		host = host[i+1:]
	}
	if strings.HasPrefix(host, "[") {
		if end := strings.IndexByte(host, ']'); end > 0 {
			return strings.ToLower(host[1:end])
		}
		return strings.ToLower(strings.TrimPrefix(host, "["))
	}
	if i := strings.LastIndexByte(host, ':'); i >= 0 {
		host = host[:i]
	}
	return strings.ToLower(strings.TrimSuffix(host, "."))
}

// Extract computes the feature vector for raw. Lengths and character counts
// are taken over the input as submitted, structural fields over its parts.
func Extract(raw string) Vector {
	p := Split(raw)

	var v Vector
	v[URLLength] = float64(utf8.RuneCountInString(raw))
	v[AuthorityLength] = float64(utf8.RuneCountInString(p.Authority))
	if dots := strings.Count(p.Authority, "."); dots > 1 {
		v[SubdomainDepth] = float64(dots - 1)
	}
	v[SpecialChars] = float64(countFunc(raw, isSpecial))
	v[PathLength] = float64(utf8.RuneCountInString(p.Path))
	if p.Query != "" {
		v[QueryParams] = float64(strings.Count(p.Query, "&") + 1)
	}
	if p.Scheme == "https" {
		v[Secure] = 1
	}
	if strings.Contains(p.Authority, "@") {
		v[HasUserinfo] = 1
	}
	v[AuthorityDigits] = float64(countFunc(p.Authority, unicode.IsDigit))
	return v
}

// Slice returns the vector as a float32 slice, the layout model runtimes expect.
func (v Vector) Slice() []float32 {
	out := make([]float32, Count)
	for i, f := range v {
		out[i] = float32(f)
	}
	return out
}

func isSpecial(r rune) bool {
	if unicode.IsLetter(r) || unicode.IsNumber(r) {
		return false
	}
	switch r {
	case '.', '-', '_', '/', ':':
		return false
	}
	return true
}

func countFunc(s string, f func(rune) bool) int {
	n := 0
	for _, r := range s {
		if f(r) {
			n++
		}
	}
	return n
}
