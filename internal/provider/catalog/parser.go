package catalog

import (
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"github.com/modwatch/modwatch/internal/release"
)

const (
	titleSelector    = "div.modtitle"
	headingSelector  = "h1"
	metadataSelector = "div.modinfo"
	versionLabel     = "Version"
	releasedLabel    = "Released"
)

// ParsePage extracts a release snapshot from a catalog mod page.
// Missing elements leave the matching fields empty.
func ParsePage(r io.Reader, pageURL *url.URL) (release.ReleaseInfo, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return release.ReleaseInfo{}, fmt.Errorf("%w: failed to parse HTML: %w", release.ErrMalformedUpstream, err)
	}

	info := release.ReleaseInfo{
		DisplayName: extractTitle(doc),
	}
	info.Version, info.PublishedAt = extractMetadata(doc)
	info.AssetURL = extractArchiveLink(doc, pageURL)
	info.AssetName = release.AssetNameFromURL(info.AssetURL)

	return info, nil
}

func extractTitle(doc *goquery.Document) string {
	for _, selector := range []string{titleSelector, headingSelector} {
		sel := doc.Find(selector).First()
		if sel.Length() == 0 {
			continue
		}
		if title := collapseSpace(sel.Text()); title != "" {
			return title
		}
	}
	return ""
}

// extractMetadata scans the text lines of every metadata block for the version
// and release date. When a label appears more than once the last value wins.
func extractMetadata(doc *goquery.Document) (version, released string) {
	doc.Find(metadataSelector).Each(func(_ int, block *goquery.Selection) {
		lines := textLines(block)
		if v := labelValue(lines, versionLabel); v != "" {
			version = v
		}
		if v := labelValue(lines, releasedLabel); v != "" {
			released = v
		}
	})
	return version, released
}

// labelValue finds the last occurrence of label in lines that carries a value.
// The value is either the rest of the label line ("Version 1.0", "Version: 1.0")
// or the next non-empty line when the label stands alone.
func labelValue(lines []string, label string) string {
	var value string
	for i, line := range lines {
		idx := strings.LastIndex(line, label)
		if idx < 0 {
			continue
		}
		rest := strings.TrimSpace(line[idx+len(label):])
		rest = strings.TrimSpace(strings.TrimLeft(rest, ":"))
		if rest != "" {
			value = rest
			continue
		}
		if i+1 < len(lines) {
			value = strings.TrimSpace(strings.TrimLeft(lines[i+1], ":"))
		}
	}
	return value
}

// textLines returns the trimmed, non-empty text nodes under sel in document order.
func textLines(sel *goquery.Selection) []string {
	var lines []string
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			if text := collapseSpace(n.Data); text != "" {
				lines = append(lines, text)
			}
			return
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}
	for _, n := range sel.Nodes {
		walk(n)
	}
	return lines
}

func extractArchiveLink(doc *goquery.Document, pageURL *url.URL) string {
	var link string
	doc.Find("a[href]").EachWithBreak(func(_ int, a *goquery.Selection) bool {
		href, _ := a.Attr("href")
		href = strings.TrimSpace(href)
		if !release.IsArchive(href) {
			return true
		}
		link = resolveLink(href, pageURL)
		return false
	})
	return link
}

func resolveLink(href string, pageURL *url.URL) string {
	ref, err := url.Parse(href)
	if err != nil {
		return href
	}
	if ref.IsAbs() || pageURL == nil {
		return ref.String()
	}
	origin := &url.URL{Scheme: pageURL.Scheme, Host: pageURL.Host, Path: "/"}
	return origin.ResolveReference(ref).String()
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
