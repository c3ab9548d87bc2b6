package personalize

import (
	"net/url"
	"strings"
)

// Links builds the per-recipient tracking and unsubscribe URLs. Every URL
// is keyed by the (campaign, contact) pair or by the contact's unsubscribe
// token.
type Links struct {
	base string
}

// NewLinks creates a link builder rooted at the public tracking base URL.
func NewLinks(baseURL string) Links {
	return Links{base: strings.TrimRight(baseURL, "/")}
}

// Base returns the normalised base URL.
func (l Links) Base() string { return l.base }

// OpenURL is the tracking pixel address.
func (l Links) OpenURL(campaignID, contactID string) string {
	return l.base + "/campaigns/track/open/" + url.PathEscape(campaignID) + "/" + url.PathEscape(contactID)
}

// ClickURL wraps target in a click-tracking redirect.
func (l Links) ClickURL(campaignID, contactID, target string) string {
	return l.base + "/campaigns/track/click/" + url.PathEscape(campaignID) + "/" + url.PathEscape(contactID) +
		"?url=" + url.QueryEscape(target)
}

// UnsubscribeURL is the one-click unsubscribe address for a token.
func (l Links) UnsubscribeURL(token string) string {
	return l.base + "/campaigns/unsubscribe/" + url.PathEscape(token)
}

// owns reports whether href already points at one of our endpoints.
func (l Links) owns(href string) bool {
	return strings.HasPrefix(href, l.base+"/campaigns/track/") ||
		strings.HasPrefix(href, l.base+"/campaigns/unsubscribe/")
}
