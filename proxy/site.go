package proxy

import (
	"context"
	"time"
)

// SiteStatus is the administrative state of a storefront.
type SiteStatus string

const (
	SiteActive   SiteStatus = "active"
	SiteInactive SiteStatus = "inactive"
)

// Site is a registered storefront with its own API key/secret pair.
type Site struct {
	ID        int64      `json:"id"`
	APIKey    string     `json:"api_key"`
	APISecret string     `json:"-"`
	SiteURL   string     `json:"site_url"`
	SiteName  string     `json:"site_name"`
	Status    SiteStatus `json:"status"`
	CreatedAt time.Time  `json:"created_at"`
}

// SiteStore resolves API keys to sites. Only active sites are returned and
// keys are matched exactly.
type SiteStore interface {
	FindActiveByAPIKey(ctx context.Context, apiKey string) (*Site, error)
}

// SiteAdmin is the out-of-band administration surface used by sitectl.
type SiteAdmin interface {
	SiteStore
	CreateSite(ctx context.Context, site *Site) (int64, error)
	ListSites(ctx context.Context) ([]Site, error)
	SetSiteStatus(ctx context.Context, id int64, status SiteStatus) error
}

type siteSinkKey struct{}

// WithSiteSink returns a context through which authenticated operations report
// the id of the site they resolved. Request loggers use it to tag audit entries.
func WithSiteSink(ctx context.Context, sink *int64) context.Context {
	return context.WithValue(ctx, siteSinkKey{}, sink)
}

func reportSite(ctx context.Context, siteID int64) {
	if sink, ok := ctx.Value(siteSinkKey{}).(*int64); ok && sink != nil {
		*sink = siteID
	}
}
