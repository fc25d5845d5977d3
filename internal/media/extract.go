// Pressimport - Bulk Content Import Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pressimport

package media

import (
	"regexp"
	"sort"
	"strings"

	"github.com/samber/lo"
	"golang.org/x/net/html"
)

var imgSrcPattern = regexp.MustCompile(`(?i)<img[^>]+src\s*=\s*["']([^"']+)["']`)

// ExtractImageURLs returns the distinct image URLs referenced by body, in
// document order. It reads src, data-src and srcset of img tags and falls
// back to a regular expression when tokenizing yields nothing.
func ExtractImageURLs(body string) []string {
	urls := tokenizeImages(body)
	if len(urls) == 0 && strings.Contains(strings.ToLower(body), "<img") {
		for _, m := range imgSrcPattern.FindAllStringSubmatch(body, -1) {
			urls = append(urls, html.UnescapeString(m[1]))
		}
	}
	return lo.Uniq(lo.Filter(urls, func(u string, _ int) bool {
		return u != "" && !strings.HasPrefix(u, "data:")
	}))
}

func tokenizeImages(body string) []string {
	var urls []string
	z := html.NewTokenizer(strings.NewReader(body))
	for {
		switch z.Next() {
		case html.ErrorToken:
			return urls
		case html.StartTagToken, html.SelfClosingTagToken:
			name, hasAttr := z.TagName()
			if string(name) != "img" || !hasAttr {
				continue
			}
			for more := true; more; {
				var key, val []byte
				key, val, more = z.TagAttr()
				switch string(key) {
				case "src", "data-src":
					urls = append(urls, strings.TrimSpace(string(val)))
				case "srcset":
					urls = append(urls, parseSrcset(string(val))...)
				}
			}
		}
	}
}

func parseSrcset(v string) []string {
	var out []string
	for _, candidate := range strings.Split(v, ",") {
		fields := strings.Fields(candidate)
		if len(fields) > 0 {
			out = append(out, fields[0])
		}
	}
	return out
}

// ContainsURL reports whether body references u either literally or in its
// HTML-escaped form, as attribute values are stored.
func ContainsURL(body, u string) bool {
	if u == "" {
		return false
	}
	return strings.Contains(body, u) || strings.Contains(body, html.EscapeString(u))
}

// RewriteURLs replaces every key of subs in body with its value. Keys are
// decoded URLs; their HTML-escaped forms ("&amp;" in query strings) are
// replaced with the escaped value. At any position the longest matching URL
// wins, and replaced text is never scanned again, so a second pass with the
// same map is a no-op.
func RewriteURLs(body string, subs map[string]string) (string, bool) {
	if len(subs) == 0 || body == "" {
		return body, false
	}
	repl := make(map[string]string, len(subs)*2)
	for old, dst := range subs {
		if old == "" || old == dst {
			continue
		}
		repl[old] = dst
		if esc := html.EscapeString(old); esc != old {
			repl[esc] = html.EscapeString(dst)
		}
	}
	if len(repl) == 0 {
		return body, false
	}

	olds := lo.Keys(repl)
	sort.Slice(olds, func(i, j int) bool {
		if len(olds[i]) != len(olds[j]) {
			return len(olds[i]) > len(olds[j])
		}
		return olds[i] < olds[j]
	})
	pairs := make([]string, 0, len(olds)*2)
	for _, old := range olds {
		pairs = append(pairs, old, repl[old])
	}
	out := strings.NewReplacer(pairs...).Replace(body)
	return out, out != body
}
