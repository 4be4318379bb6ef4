package proxy

import (
	"context"
	"errors"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// ShortDescriptionLimit is the longest item description the provider accepts.
const ShortDescriptionLimit = 127

// ErrProductNotFound is returned by a Catalog for unknown products.
var ErrProductNotFound = errors.New("product not found")

// Product is the proxy-side catalog entry a storefront item can be mapped to.
type Product struct {
	ID               int64  `json:"id"`
	Name             string `json:"name"`
	SKU              string `json:"sku"`
	ShortDescription string `json:"short_description"`
}

// Catalog resolves locally mapped products.
type Catalog interface {
	Product(ctx context.Context, id int64) (*Product, error)
}

// StripTags returns the text content of an HTML fragment, dropping markup and
// the contents of script and style elements.
func StripTags(fragment string) string {
	if !strings.ContainsAny(fragment, "<&") {
		return strings.TrimSpace(fragment)
	}

	var b strings.Builder
	z := html.NewTokenizer(strings.NewReader(fragment))
	skip := 0
	for {
		switch z.Next() {
		case html.ErrorToken:
			return strings.TrimSpace(b.String())
		case html.StartTagToken:
			name, _ := z.TagName()
			if a := atom.Lookup(name); a == atom.Script || a == atom.Style {
				skip++
			}
		case html.EndTagToken:
			name, _ := z.TagName()
			if a := atom.Lookup(name); (a == atom.Script || a == atom.Style) && skip > 0 {
				skip--
			}
		case html.TextToken:
			if skip == 0 {
				b.Write(z.Text())
			}
		}
	}
}

// Truncate cuts s to at most limit runes.
func Truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}
