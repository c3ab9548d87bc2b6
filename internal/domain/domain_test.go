package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCampaignStateHelpers(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	past := now.Add(-time.Minute)

	tests := []struct {
		status      CampaignStatus
		editable    bool
		cancellable bool
		terminal    bool
	}{
		{CampaignDraft, true, false, false},
		{CampaignScheduled, false, true, false},
		{CampaignSending, false, true, false},
		{CampaignSent, false, false, true},
		{CampaignCancelled, false, false, true},
	}
	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			c := &Campaign{Status: tt.status, ScheduledAt: &past}
			assert.Equal(t, tt.editable, c.Editable())
			assert.Equal(t, tt.cancellable, c.Cancellable())
			assert.Equal(t, tt.terminal, c.IsTerminal())
			assert.Equal(t, tt.status == CampaignScheduled, c.IsDue(now))
		})
	}

	assert.False(t, CampaignStatus("paused").Valid())
	assert.False(t, CampaignType("spam").Valid())
}

func TestContactAge(t *testing.T) {
	born := time.Date(2000, 2, 29, 0, 0, 0, 0, time.UTC)
	c := &Contact{BirthDate: &born}

	assert.Equal(t, 25, c.Age(time.Date(2026, 2, 28, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, 26, c.Age(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, -1, (&Contact{}).Age(time.Now()))
}

func TestContactFullName(t *testing.T) {
	assert.Equal(t, "Ana Diaz", (&Contact{FirstName: "Ana", LastName: "Diaz"}).FullName())
	assert.Equal(t, "Diaz", (&Contact{LastName: "Diaz"}).FullName())
	assert.Equal(t, "", (&Contact{}).FullName())
}

func TestCriteriaScan(t *testing.T) {
	var c Criteria
	require.NoError(t, c.Scan([]byte(`{"kind":"match","field":"city","operator":"eq","value":"Lyon"}`)))
	assert.Equal(t, Match("city", OpEq, "Lyon"), c)

	require.NoError(t, c.Scan(nil))
	assert.True(t, c.IsEmpty())

	require.NoError(t, c.Scan(""))
	assert.True(t, c.IsEmpty())

	assert.Error(t, c.Scan(42))

	v, err := Not(Match("tags", OpHas, "vip")).Value()
	require.NoError(t, err)
	assert.JSONEq(t, `{"kind":"not","children":[{"kind":"match","field":"tags","operator":"has","value":"vip"}]}`, string(v.([]byte)))
}
