// Package mailbody turns encoded message parts into plain text.
//
// Decoding never fails hard. A part that cannot be decoded is returned as
// received so a best-effort match can still be attempted against it.
package mailbody

import (
	"encoding/base64"
	"strings"
	"unicode/utf8"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/htmlindex"
)

var encodings = []*base64.Encoding{
	base64.URLEncoding,
	base64.RawURLEncoding,
	base64.StdEncoding,
	base64.RawStdEncoding,
}

// Decode decodes a base64url message part holding UTF-8 text. The boolean is
// false when data was not valid base64 and was returned unchanged.
func Decode(data string) (string, bool) {
	return DecodeCharset(data, "")
}

// DecodeCharset is Decode for a part declared in the given charset. An empty
// or unknown charset means UTF-8, falling back to Windows-1252 for bytes that
// are not valid UTF-8.
func DecodeCharset(data, charset string) (string, bool) {
	trimmed := strings.TrimSpace(data)
	if trimmed == "" {
		return "", true
	}
	for _, enc := range encodings {
		b, err := enc.DecodeString(trimmed)
		if err == nil {
			return ToUTF8(b, charset), true
		}
	}
	return data, false
}

// ToUTF8 converts raw part bytes in the given charset to a UTF-8 string.
func ToUTF8(b []byte, charset string) string {
	charset = strings.ToLower(strings.TrimSpace(charset))
	if charset != "" && charset != "utf-8" && charset != "utf8" && charset != "us-ascii" {
		if enc, err := htmlindex.Get(charset); err == nil {
			if out, err := enc.NewDecoder().Bytes(b); err == nil {
				return string(out)
			}
		}
	}
	if utf8.Valid(b) {
		return string(b)
	}
	out, err := charmap.Windows1252.NewDecoder().Bytes(b)
	if err != nil {
		return strings.ToValidUTF8(string(b), "�")
	}
	return string(out)
}

// LooksLikeHTML reports whether s appears to be an HTML document or fragment.
func LooksLikeHTML(s string) bool {
	head := strings.ToLower(s)
	if len(head) > 2048 {
		head = head[:2048]
	}
	for _, marker := range []string{"<html", "<body", "<div", "<table", "<p>", "<br", "<!doctype"} {
		if strings.Contains(head, marker) {
			return true
		}
	}
	return false
}

var lineBreaks = map[atom.Atom]bool{
	atom.Br: true, atom.P: true, atom.Div: true, atom.Tr: true, atom.Li: true,
	atom.Table: true, atom.H1: true, atom.H2: true, atom.H3: true, atom.H4: true,
	atom.Title: true,
}

// HTMLToText strips markup from an HTML body. Block elements become line
// breaks, runs of whitespace collapse to one space and blank lines are dropped.
func HTMLToText(s string) string {
	z := html.NewTokenizer(strings.NewReader(s))
	var b strings.Builder
	skip := 0

	for {
		tt := z.Next()
		switch tt {
		case html.ErrorToken:
			return normalize(b.String())
		case html.StartTagToken, html.SelfClosingTagToken:
			name, _ := z.TagName()
			tag := atom.Lookup(name)
			switch {
			case tag == atom.Script || tag == atom.Style || tag == atom.Head:
				if tt == html.StartTagToken {
					skip++
				}
			case tag == atom.Td || tag == atom.Th:
				b.WriteByte(' ')
			case lineBreaks[tag]:
				b.WriteByte('\n')
			}
		case html.EndTagToken:
			name, _ := z.TagName()
			tag := atom.Lookup(name)
			switch {
			case tag == atom.Script || tag == atom.Style || tag == atom.Head:
				if skip > 0 {
					skip--
				}
			case lineBreaks[tag]:
				b.WriteByte('\n')
			}
		case html.TextToken:
			if skip == 0 {
				b.Write(z.Text())
			}
		}
	}
}

func normalize(s string) string {
	lines := strings.Split(s, "\n")
	out := lines[:0]
	for _, line := range lines {
		if line = strings.Join(strings.Fields(line), " "); line != "" {
			out = append(out, line)
		}
	}
	return strings.Join(out, "\n")
}
