// Package personalize turns a campaign and one contact into the message that
// contact receives: Liquid templating, click wrapping, the open pixel and
// the unsubscribe link and headers. Rendering has no side effects.
package personalize

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"html"
	"io"
	"net/url"
	"strings"
	"sync"

	"github.com/ignite/campaign-engine/internal/domain"
	"github.com/osteele/liquid"
	xhtml "golang.org/x/net/html"
)

// Rendered is the personalised content of one message.
type Rendered struct {
	Subject string
	HTML    string
	Text    string
	Headers map[string]string
}

// Renderer renders campaigns with a shared, cached Liquid engine.
// It is safe for concurrent use.
type Renderer struct {
	engine *liquid.Engine
	links  Links
	cache  sync.Map // template hash -> *liquid.Template
}

// NewRenderer creates a renderer whose links are rooted at baseURL.
func NewRenderer(baseURL string) *Renderer {
	r := &Renderer{engine: liquid.NewEngine(), links: NewLinks(baseURL)}
	r.registerFilters()
	return r
}

// Links exposes the URL builder used by the renderer.
func (r *Renderer) Links() Links { return r.links }

func (r *Renderer) registerFilters() {
	// {{ contact.first_name | default: "there" }}
	r.engine.RegisterFilter("default", func(value interface{}, defaultVal string) interface{} {
		if value == nil {
			return defaultVal
		}
		if s := fmt.Sprintf("%v", value); s == "" || s == "<nil>" {
			return defaultVal
		}
		return value
	})

	r.engine.RegisterFilter("capitalize", func(s string) string {
		if s == "" {
			return s
		}
		return strings.ToUpper(s[:1]) + strings.ToLower(s[1:])
	})

	r.engine.RegisterFilter("truncate", func(s string, length int) string {
		runes := []rune(s)
		if len(runes) <= length {
			return s
		}
		if length <= 3 {
			return string(runes[:length])
		}
		return string(runes[:length-3]) + "..."
	})

	r.engine.RegisterFilter("urlencode", func(s string) string {
		return url.QueryEscape(s)
	})
}

// Validate parses every template of a campaign.
func (r *Renderer) Validate(c *domain.Campaign) error {
	for name, src := range map[string]string{"subject": c.Subject, "html_body": c.HTMLBody, "text_body": c.TextBody} {
		if _, err := r.template(src); err != nil {
			return fmt.Errorf("%w: %s: %v", domain.ErrValidation, name, err)
		}
	}
	return nil
}

// Render produces the message for one recipient. unsubscribeToken may be
// empty, in which case no unsubscribe link or header is added.
func (r *Renderer) Render(c *domain.Campaign, ct *domain.Contact, unsubscribeToken string) (*Rendered, error) {
	unsubURL := ""
	if unsubscribeToken != "" {
		unsubURL = r.links.UnsubscribeURL(unsubscribeToken)
	}

	subject, err := r.render(c.Subject, bindings(c, ct, unsubURL, false))
	if err != nil {
		return nil, fmt.Errorf("render subject: %w", err)
	}
	text, err := r.render(c.TextBody, bindings(c, ct, unsubURL, false))
	if err != nil {
		return nil, fmt.Errorf("render text: %w", err)
	}
	body, err := r.render(c.HTMLBody, bindings(c, ct, unsubURL, true))
	if err != nil {
		return nil, fmt.Errorf("render html: %w", err)
	}

	out := &Rendered{
		Subject: strings.TrimSpace(subject),
		Text:    text,
		Headers: map[string]string{},
	}

	var footer string
	if unsubURL != "" {
		if !strings.Contains(body, unsubURL) {
			footer = fmt.Sprintf(`<p style="font-size:12px;color:#888"><a href="%s">Unsubscribe</a></p>`, html.EscapeString(unsubURL))
		}
		if text != "" && !strings.Contains(text, unsubURL) {
			out.Text = strings.TrimRight(text, "\n") + "\n\nUnsubscribe: " + unsubURL + "\n"
		}
		out.Headers["List-Unsubscribe"] = "<" + unsubURL + ">"
		out.Headers["List-Unsubscribe-Post"] = "List-Unsubscribe=One-Click"
	}

	pixel := fmt.Sprintf(`<img src="%s" width="1" height="1" alt="" style="display:none" />`,
		html.EscapeString(r.links.OpenURL(c.ID, ct.ID)))
	out.HTML = r.rewrite(body, c.ID, ct.ID, footer+pixel)
	return out, nil
}

func (r *Renderer) render(src string, vars map[string]interface{}) (string, error) {
	if src == "" {
		return "", nil
	}
	tpl, err := r.template(src)
	if err != nil {
		return "", err
	}
	out, rerr := tpl.RenderString(vars)
	if rerr != nil {
		return "", rerr
	}
	return out, nil
}

func (r *Renderer) template(src string) (*liquid.Template, error) {
	sum := sha256.Sum256([]byte(src))
	key := hex.EncodeToString(sum[:])
	if cached, ok := r.cache.Load(key); ok {
		return cached.(*liquid.Template), nil
	}
	tpl, err := r.engine.ParseString(src)
	if err != nil {
		return nil, err
	}
	r.cache.Store(key, tpl)
	return tpl, nil
}

func bindings(c *domain.Campaign, ct *domain.Contact, unsubURL string, escape bool) map[string]interface{} {
	esc := func(s string) string {
		if escape {
			return html.EscapeString(s)
		}
		return s
	}
	return map[string]interface{}{
		"contact": map[string]interface{}{
			"id":         ct.ID,
			"email":      esc(ct.Email),
			"first_name": esc(ct.FirstName),
			"last_name":  esc(ct.LastName),
			"full_name":  esc(ct.FullName()),
			"city":       esc(ct.City),
		},
		"campaign": map[string]interface{}{
			"id":   c.ID,
			"name": esc(c.Name),
		},
		"unsubscribe_url": esc(unsubURL),
	}
}

// rewrite wraps http(s) anchors in click-tracking URLs and places tail
// right before </body>, or at the end when the document has no body end
// tag. Everything else is copied byte for byte.
func (r *Renderer) rewrite(doc, campaignID, contactID, tail string) string {
	var buf bytes.Buffer
	buf.Grow(len(doc) + len(tail) + 256)

	z := xhtml.NewTokenizer(strings.NewReader(doc))
	injected := false
	for {
		tt := z.Next()
		if tt == xhtml.ErrorToken {
			if z.Err() != io.EOF {
				// Malformed input: keep what is left untouched.
				buf.Write(z.Raw())
			}
			break
		}
		raw := z.Raw()

		switch tt {
		case xhtml.StartTagToken:
			tok := z.Token()
			if tok.Data == "a" && r.wrapAnchor(&tok, campaignID, contactID) {
				buf.WriteString(tok.String())
				continue
			}
		case xhtml.EndTagToken:
			name, _ := z.TagName()
			if !injected && string(name) == "body" {
				buf.WriteString(tail)
				injected = true
			}
		}
		buf.Write(raw)
	}
	if !injected {
		buf.WriteString(tail)
	}
	return buf.String()
}

func (r *Renderer) wrapAnchor(tok *xhtml.Token, campaignID, contactID string) bool {
	for i, a := range tok.Attr {
		if a.Namespace != "" || !strings.EqualFold(a.Key, "href") {
			continue
		}
		href := strings.TrimSpace(a.Val)
		lower := strings.ToLower(href)
		if !strings.HasPrefix(lower, "http://") && !strings.HasPrefix(lower, "https://") {
			return false
		}
		if r.links.owns(href) {
			return false
		}
		tok.Attr[i].Val = r.links.ClickURL(campaignID, contactID, href)
		return true
	}
	return false
}
