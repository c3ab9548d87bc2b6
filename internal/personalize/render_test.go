package personalize

import (
	"net/url"
	"strings"
	"testing"

	"github.com/ignite/campaign-engine/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testCampaign(htmlBody string) *domain.Campaign {
	return &domain.Campaign{
		ID:       "camp-1",
		Name:     "Spring checkup",
		Subject:  "Hi {{ contact.first_name | default: \"there\" }}",
		HTMLBody: htmlBody,
		TextBody: "Hello {{ contact.first_name }}",
	}
}

var ana = &domain.Contact{ID: "c-1", Email: "ana@example.com", FirstName: "ana", LastName: "Diaz"}

func TestRender_SubjectAndFilters(t *testing.T) {
	r := NewRenderer("https://t.example.com/")
	c := testCampaign(`<p>{{ contact.first_name | capitalize }} from {{ campaign.name | truncate: 8 }}</p>`)

	out, err := r.Render(c, ana, "")
	require.NoError(t, err)
	assert.Equal(t, "Hi ana", out.Subject)
	assert.Contains(t, out.HTML, "<p>Ana from Sprin...</p>")

	anon := &domain.Contact{ID: "c-2", Email: "x@example.com"}
	out, err = r.Render(c, anon, "")
	require.NoError(t, err)
	assert.Equal(t, "Hi there", out.Subject)
}

func TestRender_WrapsLinksOnce(t *testing.T) {
	r := NewRenderer("https://t.example.com")
	body := `<html><body>
<a href="https://shop.example.com/a?x=1&amp;y=2">Shop</a>
<a href="mailto:help@example.com">Mail</a>
<a href="#top">Top</a>
<a href="https://t.example.com/campaigns/unsubscribe/abc">Leave</a>
</body></html>`

	out, err := r.Render(testCampaign(body), ana, "")
	require.NoError(t, err)

	want := "https://t.example.com/campaigns/track/click/camp-1/c-1?url=" + url.QueryEscape("https://shop.example.com/a?x=1&y=2")
	assert.Contains(t, out.HTML, `href="`+strings.ReplaceAll(want, "&", "&amp;")+`"`)
	assert.Contains(t, out.HTML, `href="mailto:help@example.com"`)
	assert.Contains(t, out.HTML, `href="#top"`)
	assert.Contains(t, out.HTML, `href="https://t.example.com/campaigns/unsubscribe/abc"`)
	assert.Equal(t, 1, strings.Count(out.HTML, "/campaigns/track/click/"))
}

func TestRender_PixelPlacement(t *testing.T) {
	r := NewRenderer("https://t.example.com")
	pixel := "https://t.example.com/campaigns/track/open/camp-1/c-1"

	out, err := r.Render(testCampaign(`<html><body><p>Hi</p></body></html>`), ana, "")
	require.NoError(t, err)
	idx := strings.Index(out.HTML, pixel)
	require.NotEqual(t, -1, idx)
	assert.Less(t, idx, strings.Index(out.HTML, "</body>"))

	out, err = r.Render(testCampaign(`<p>fragment</p>`), ana, "")
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(out.HTML, `style="display:none" />`))
	assert.Contains(t, out.HTML, pixel)
}

func TestRender_UnsubscribeLinkAndHeaders(t *testing.T) {
	r := NewRenderer("https://t.example.com")
	unsub := "https://t.example.com/campaigns/unsubscribe/tok123"

	out, err := r.Render(testCampaign(`<body><p>Hi</p></body>`), ana, "tok123")
	require.NoError(t, err)
	assert.Contains(t, out.HTML, `<a href="`+unsub+`">Unsubscribe</a>`)
	assert.Contains(t, out.Text, "Unsubscribe: "+unsub)
	assert.Equal(t, "<"+unsub+">", out.Headers["List-Unsubscribe"])
	assert.Equal(t, "List-Unsubscribe=One-Click", out.Headers["List-Unsubscribe-Post"])

	// A template that places the link itself gets no extra footer.
	out, err = r.Render(testCampaign(`<body><a href="{{ unsubscribe_url }}">Opt out</a></body>`), ana, "tok123")
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(out.HTML, unsub))
	assert.NotContains(t, out.HTML, ">Unsubscribe</a>")
}

func TestRender_EscapesContactDataInHTML(t *testing.T) {
	r := NewRenderer("https://t.example.com")
	evil := &domain.Contact{ID: "c-9", Email: "e@example.com", FirstName: "<script>x</script>"}

	out, err := r.Render(testCampaign(`<p>{{ contact.first_name }}</p>`), evil, "")
	require.NoError(t, err)
	assert.NotContains(t, out.HTML, "<script>")
	assert.Contains(t, out.HTML, "&lt;script&gt;")
}

func TestValidate_RejectsBrokenTemplates(t *testing.T) {
	r := NewRenderer("https://t.example.com")
	c := testCampaign(`<p>{% if %}</p>`)
	assert.ErrorIs(t, r.Validate(c), domain.ErrValidation)
	assert.NoError(t, r.Validate(testCampaign(`<p>{{ contact.first_name }}</p>`)))
}

func TestLinks(t *testing.T) {
	l := NewLinks("https://t.example.com/")
	assert.Equal(t, "https://t.example.com/campaigns/track/open/a%2Fb/c", l.OpenURL("a/b", "c"))
	assert.Equal(t, "https://t.example.com/campaigns/track/click/a/c?url=https%3A%2F%2Fexample.com", l.ClickURL("a", "c", "https://example.com"))
	assert.Equal(t, "https://t.example.com/campaigns/unsubscribe/tok", l.UnsubscribeURL("tok"))
}
