package postgres

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/ignite/campaign-engine/internal/domain"
	"github.com/ignite/campaign-engine/internal/service/audience"
	"github.com/ignite/campaign-engine/internal/service/campaign"
	"github.com/ignite/campaign-engine/internal/service/suppression"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db, mock
}

var campaignCols = []string{"id", "name", "subject", "html_body", "text_body", "from_name", "from_email",
	"campaign_type", "status", "target_audience", "scheduled_at", "sent_at", "created_at", "updated_at"}

func TestCampaignRepo_Get(t *testing.T) {
	db, mock := newMock(t)
	repo := NewCampaignRepo(db)
	created := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery("SELECT .+ FROM campaigns WHERE id = \\$1").
		WithArgs("camp-1").
		WillReturnRows(sqlmock.NewRows(campaignCols).AddRow(
			"camp-1", "Spring", "Hi", "<p>x</p>", "", "", "", "newsletter", "scheduled",
			[]byte(`{"kind":"match","field":"city","operator":"eq","value":"Lyon"}`),
			created.Add(time.Hour), nil, created, created,
		))

	c, err := repo.Get(context.Background(), "camp-1")
	require.NoError(t, err)
	assert.Equal(t, domain.CampaignScheduled, c.Status)
	assert.Equal(t, domain.TypeNewsletter, c.Type)
	assert.Equal(t, "city", c.TargetAudience.Field)
	assert.Equal(t, "Lyon", c.TargetAudience.Arg)
	require.NotNil(t, c.ScheduledAt)
	assert.Nil(t, c.SentAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCampaignRepo_GetNotFound(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectQuery("SELECT .+ FROM campaigns").WillReturnError(sql.ErrNoRows)

	_, err := NewCampaignRepo(db).Get(context.Background(), "missing")
	assert.ErrorIs(t, err, campaign.ErrNotFound)
}

func TestCampaignRepo_Transition(t *testing.T) {
	from := []domain.CampaignStatus{domain.CampaignSending}
	sentAt := time.Now().UTC()

	t.Run("applied", func(t *testing.T) {
		db, mock := newMock(t)
		mock.ExpectExec("UPDATE campaigns SET").
			WithArgs("sent", false, nil, sqlmock.AnyArg(), "camp-1", sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 1))

		err := NewCampaignRepo(db).Transition(context.Background(), "camp-1", from, domain.CampaignSent,
			campaign.TransitionFields{SentAt: &sentAt})
		require.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("guard missed", func(t *testing.T) {
		db, mock := newMock(t)
		mock.ExpectExec("UPDATE campaigns SET").WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery("SELECT EXISTS").WithArgs("camp-1").
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

		err := NewCampaignRepo(db).Transition(context.Background(), "camp-1", from, domain.CampaignSent, campaign.TransitionFields{})
		assert.ErrorIs(t, err, campaign.ErrInvalidState)
	})

	t.Run("missing", func(t *testing.T) {
		db, mock := newMock(t)
		mock.ExpectExec("UPDATE campaigns SET").WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery("SELECT EXISTS").
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))

		err := NewCampaignRepo(db).Transition(context.Background(), "nope", from, domain.CampaignSent, campaign.TransitionFields{})
		assert.ErrorIs(t, err, campaign.ErrNotFound)
	})
}

func TestCampaignRepo_UpdateOnlyDrafts(t *testing.T) {
	db, mock := newMock(t)
	name := "Renamed"
	mock.ExpectExec("UPDATE campaigns SET name = \\$1, updated_at = NOW\\(\\) WHERE id = \\$2 AND status = \\$3").
		WithArgs("Renamed", "camp-1", "draft").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT EXISTS").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	err := NewCampaignRepo(db).Update(context.Background(), "camp-1", campaign.UpdateFields{Name: &name})
	assert.ErrorIs(t, err, campaign.ErrInvalidState)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecipientRepo_SnapshotIsOneStatement(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectExec("INSERT INTO campaign_recipients .+ FROM unnest\\(\\$2::text\\[\\], \\$3::text\\[\\]\\) .+ ON CONFLICT").
		WithArgs("camp-1", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 2))

	n, err := NewRecipientRepo(db).Snapshot(context.Background(), "camp-1", []domain.Contact{
		{ID: "c-1", Email: "a@example.com"}, {ID: "c-2", Email: "b@example.com"},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecipientRepo_MarkSentKeepsExistingOutcome(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectExec("UPDATE campaign_recipients SET status = 'sent'").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT EXISTS").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	err := NewRecipientRepo(db).MarkSent(context.Background(), "camp-1", "c-1", "m-1", time.Now())
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecipientRepo_RecordOpen(t *testing.T) {
	db, mock := newMock(t)
	repo := NewRecipientRepo(db)

	mock.ExpectExec("SET open_count = open_count \\+ 1, opened_at = COALESCE\\(opened_at, \\$3\\)").
		WithArgs("camp-1", "c-1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("SET open_count").
		WithArgs("nope", "nobody", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	ok, err := repo.RecordOpen(context.Background(), "camp-1", "c-1", time.Now())
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.RecordOpen(context.Background(), "nope", "nobody", time.Now())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRecipientRepo_Stats(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectQuery("FILTER \\(WHERE status = 'pending'\\)").
		WithArgs("camp-1").
		WillReturnRows(sqlmock.NewRows([]string{"a", "b", "c", "d", "e", "f", "g", "h", "i"}).
			AddRow(5, 1, 3, 1, 0, 2, 1, 4, 1))

	st, err := NewRecipientRepo(db).Stats(context.Background(), "camp-1")
	require.NoError(t, err)
	assert.Equal(t, domain.RecipientStats{Total: 5, Pending: 1, Sent: 3, Failed: 1, Opened: 2, Clicked: 1, Opens: 4, Clicks: 1}, *st)
}

func TestAudienceQuery_Compile(t *testing.T) {
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	root, err := audience.Parse(domain.All(
		domain.Match("city", domain.OpEq, "Lyon"),
		domain.Not(domain.Match("tags", domain.OpHasAny, []interface{}{"vip", "staff"})),
		domain.Match("age", domain.OpBetween, []interface{}{30.0, 40.0}),
		domain.Match("last_visit_at", domain.OpWithinLastDays, 30.0),
	))
	require.NoError(t, err)

	q := &audienceQuery{now: now}
	where, err := q.where(root, domain.ChannelEmail)
	require.NoError(t, err)

	assert.Equal(t, "c.email <> '' AND ("+
		"COALESCE((LOWER(COALESCE(c.city, '')) = $1), false) AND "+
		"(NOT COALESCE((COALESCE(c.tags, '{}') && $2), false)) AND "+
		"COALESCE((EXTRACT(YEAR FROM AGE($3::date, c.birth_date)) BETWEEN $4 AND $5), false) AND "+
		"COALESCE((c.last_visit_at >= $6), false)"+
		") AND NOT EXISTS (SELECT 1 FROM suppressions s WHERE s.contact_id = c.id AND s.channel = $7)", where)

	require.Len(t, q.args, 7)
	assert.Equal(t, "lyon", q.args[0])
	assert.Equal(t, "2026-06-01", q.args[2])
	assert.Equal(t, 30.0, q.args[3])
	assert.Equal(t, now.Add(-30*24*time.Hour), q.args[5])
	assert.Equal(t, "email", q.args[6])
}

func TestAudienceQuery_EmptyCriteriaSelectsEveryone(t *testing.T) {
	q := &audienceQuery{now: time.Now()}
	where, err := q.where(nil, domain.ChannelEmail)
	require.NoError(t, err)
	assert.Equal(t, "c.email <> '' AND NOT EXISTS (SELECT 1 FROM suppressions s WHERE s.contact_id = c.id AND s.channel = $1)", where)
}

func TestContactRepo_FindOrdersAndLimits(t *testing.T) {
	db, mock := newMock(t)
	cols := []string{"id", "email", "first_name", "last_name", "gender", "city", "birth_date", "last_visit_at", "tags", "created_at"}
	mock.ExpectQuery("FROM contacts c WHERE .+ ORDER BY c.id LIMIT \\$2").
		WithArgs("email", 10).
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow("c-1", "a@example.com", "Ana", "", "", "Lyon", nil, nil, []byte("{vip,new}"), time.Now()))

	out, err := NewContactRepo(db).Find(context.Background(), audience.Query{Channel: domain.ChannelEmail, Now: time.Now(), Limit: 10})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, []string{"vip", "new"}, out[0].Tags)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSuppressionRepo(t *testing.T) {
	db, mock := newMock(t)
	repo := NewSuppressionRepo(db)
	ctx := context.Background()

	mock.ExpectExec("INSERT INTO suppressions .+ ON CONFLICT \\(contact_id, channel\\) DO NOTHING").
		WithArgs("c-1", "email", "unsubscribe link", "unsubscribe").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("SELECT EXISTS").WithArgs("c-1", "email").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectExec("DELETE FROM suppressions").WithArgs("c-2", "email").
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, repo.Suppress(ctx, &domain.Suppression{
		ContactID: "c-1", Channel: domain.ChannelEmail, Reason: "unsubscribe link", Source: domain.SourceUnsubscribe,
	}))
	ok, err := repo.IsSuppressed(ctx, "c-1", domain.ChannelEmail)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.ErrorIs(t, repo.Remove(ctx, "c-2", domain.ChannelEmail), suppression.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTokenRepo_GetOrCreateReturnsStoredToken(t *testing.T) {
	db, mock := newMock(t)
	cols := []string{"token", "contact_id", "scope", "created_at", "last_used_at"}

	mock.ExpectExec("INSERT INTO unsubscribe_tokens .+ ON CONFLICT \\(contact_id, scope\\) DO NOTHING").
		WithArgs("new-token", "c-1", "email", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT token, contact_id, scope").WithArgs("c-1", "email").
		WillReturnRows(sqlmock.NewRows(cols).AddRow("old-token", "c-1", "email", time.Now(), nil))
	mock.ExpectQuery("SELECT token, contact_id, scope").WithArgs("unknown").
		WillReturnError(sql.ErrNoRows)

	repo := NewTokenRepo(db)
	tok, err := repo.GetOrCreate(context.Background(), &domain.UnsubscribeToken{
		Token: "new-token", ContactID: "c-1", Scope: domain.ChannelEmail, CreatedAt: time.Now(),
	})
	require.NoError(t, err)
	assert.Equal(t, "old-token", tok.Token)

	_, err = repo.Lookup(context.Background(), "unknown")
	assert.ErrorIs(t, err, suppression.ErrNotFound)
}

func TestJobRepo(t *testing.T) {
	db, mock := newMock(t)
	repo := NewJobRepo(db)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO scheduled_jobs .+ ON CONFLICT \\(name\\) DO NOTHING").
		WithArgs("dispatch_due_campaigns", "* * * * *", true).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO scheduled_jobs").
		WithArgs("recover_interrupted_dispatches", "*/15 * * * *", false).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()
	mock.ExpectExec("UPDATE scheduled_jobs SET enabled").WithArgs("ghost", true).
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, repo.Seed(ctx, []domain.ScheduledJob{
		{Name: "dispatch_due_campaigns", CronSchedule: "* * * * *", Enabled: true},
		{Name: "recover_interrupted_dispatches", CronSchedule: "*/15 * * * *"},
	}))
	assert.ErrorIs(t, repo.SetEnabled(ctx, "ghost", true), domain.ErrUnknownJob)
	assert.NoError(t, mock.ExpectationsWereMet())
}
