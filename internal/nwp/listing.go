package nwp

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/net/html"
)

// defaultListingTimeout bounds directory-index fetches; downloads get a
// longer budget.
const defaultListingTimeout = 10 * time.Second

// ListingProber fetches an HTML directory index and extracts the anchor
// targets. Providers whose filenames embed provider-assigned tokens are
// resolved against these listings instead of constructed blindly.
type ListingProber struct {
	transport *Transport
	timeout   time.Duration
	log       zerolog.Logger
}

// NewListingProber builds a prober on top of the given transport.
func NewListingProber(transport *Transport, log zerolog.Logger) *ListingProber {
	return &ListingProber{
		transport: transport,
		timeout:   defaultListingTimeout,
		log:       log.With().Str("component", "listing").Logger(),
	}
}

// ListDirectory GETs a directory-index page and returns the set of href
// targets, with any trailing slash trimmed.
func (p *ListingProber) ListDirectory(ctx context.Context, url string) (map[string]struct{}, error) {
	body, err := p.transport.Fetch(ctx, url, p.timeout)
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", url, err)
	}

	doc, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parsing listing %s: %w", url, err)
	}

	names := make(map[string]struct{})
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && strings.EqualFold(n.Data, "a") {
			for _, a := range n.Attr {
				if !strings.EqualFold(a.Key, "href") {
					continue
				}
				name := strings.TrimRight(strings.TrimSpace(a.Val), "/")
				if name != "" {
					names[name] = struct{}{}
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	p.log.Debug().Str("url", url).Int("entries", len(names)).Msg("listed directory")
	return names, nil
}
