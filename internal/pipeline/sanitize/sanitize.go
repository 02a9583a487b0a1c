package sanitize

import (
	"errors"
	"io"
	"regexp"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

var tagLike = regexp.MustCompile(`<[a-zA-Z!/][^>]*>`)

var blockElems = map[atom.Atom]bool{
	atom.P: true, atom.Div: true, atom.Br: true, atom.Li: true, atom.Tr: true,
	atom.H1: true, atom.H2: true, atom.H3: true, atom.H4: true, atom.H5: true, atom.H6: true,
	atom.Table: true, atom.Ul: true, atom.Ol: true, atom.Blockquote: true, atom.Hr: true,
	atom.Section: true, atom.Article: true, atom.Header: true, atom.Footer: true,
	atom.Td: true, atom.Th: true, atom.Pre: true,
}

var skipElems = map[atom.Atom]bool{
	atom.Script: true, atom.Style: true, atom.Head: true, atom.Title: true, atom.Noscript: true,
}

// Text converts an email body to plain text. Bodies without markup are only
// whitespace-normalised. If the markup cannot be tokenised the input is
// returned unchanged. Escaped markup in the source stays escaped in the
// output, so Text(Text(x)) == Text(x).
func Text(body string) string {
	if !tagLike.MatchString(body) {
		return normalize(body)
	}
	out, err := render(body)
	if err != nil {
		return body
	}
	return normalize(escapeTags(out))
}

func escapeTags(s string) string {
	return tagLike.ReplaceAllStringFunc(s, func(m string) string {
		return "&lt;" + m[1:]
	})
}

func render(body string) (string, error) {
	z := html.NewTokenizer(strings.NewReader(body))
	var b strings.Builder
	skip := 0
	for {
		tt := z.Next()
		switch tt {
		case html.ErrorToken:
			if err := z.Err(); !errors.Is(err, io.EOF) {
				return "", err
			}
			return b.String(), nil
		case html.TextToken:
			if skip == 0 {
				b.Write(z.Text())
			}
		case html.StartTagToken, html.SelfClosingTagToken:
			tok := z.Token()
			if skipElems[tok.DataAtom] {
				if tt == html.StartTagToken {
					skip++
				}
				continue
			}
			if skip > 0 {
				continue
			}
			if tok.DataAtom == atom.Img {
				if alt := imageAlt(tok); alt != "" {
					b.WriteString(alt)
				}
				continue
			}
			if blockElems[tok.DataAtom] {
				b.WriteByte('\n')
			}
		case html.EndTagToken:
			tok := z.Token()
			if skipElems[tok.DataAtom] {
				if skip > 0 {
					skip--
				}
				continue
			}
			if skip == 0 && blockElems[tok.DataAtom] {
				b.WriteByte('\n')
			}
		}
	}
}

// imageAlt returns the alt text worth keeping for an image. Tracking pixels
// (1x1) and images without alt text contribute nothing.
func imageAlt(tok html.Token) string {
	var w, h, alt string
	for _, a := range tok.Attr {
		switch strings.ToLower(a.Key) {
		case "width":
			w = strings.TrimSuffix(strings.TrimSpace(a.Val), "px")
		case "height":
			h = strings.TrimSuffix(strings.TrimSpace(a.Val), "px")
		case "alt":
			alt = strings.TrimSpace(a.Val)
		}
	}
	if w == "1" && h == "1" {
		return ""
	}
	return alt
}

func normalize(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\u00a0", " ")
	lines := strings.Split(s, "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		if l := strings.Join(strings.Fields(line), " "); l != "" {
			out = append(out, l)
		}
	}
	return strings.Join(out, "\n")
}
