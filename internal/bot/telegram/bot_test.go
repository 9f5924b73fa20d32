package telegram

import (
	"context"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/nichewire/syndicator/internal/extract"
	"github.com/nichewire/syndicator/internal/pipeline"
)

type recordingAPI struct {
	sent []tgbotapi.MessageConfig
}

func (r *recordingAPI) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	if msg, ok := c.(tgbotapi.MessageConfig); ok {
		r.sent = append(r.sent, msg)
	}
	return tgbotapi.Message{}, nil
}

func (r *recordingAPI) GetUpdatesChan(tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel {
	return make(chan tgbotapi.Update)
}

func (r *recordingAPI) StopReceivingUpdates() {}

type stubJobStore struct {
	snap pipeline.StatusSnapshot
	err  error
}

func (s *stubJobStore) CreateJob(context.Context, pipeline.Job) error { return nil }
func (s *stubJobStore) UpdateJobStatus(context.Context, string, pipeline.JobStatus, string, pipeline.JobCounters) error {
	return nil
}
func (s *stubJobStore) GetJob(context.Context, string) (pipeline.Job, error) {
	return pipeline.Job{}, nil
}
func (s *stubJobStore) Snapshot(context.Context) (pipeline.StatusSnapshot, error) {
	return s.snap, s.err
}

type stubArticleStore struct {
	recent    []pipeline.StoredArticle
	stored    int
	published int
}

func (s *stubArticleStore) StoreArticle(context.Context, pipeline.StoredArticle) error { return nil }
func (s *stubArticleStore) UpdatePublishState(context.Context, string, pipeline.PublishState, string) error {
	return nil
}
func (s *stubArticleStore) ListArticles(context.Context, string) ([]pipeline.StoredArticle, error) {
	return nil, nil
}
func (s *stubArticleStore) ListRecent(context.Context, int) ([]pipeline.StoredArticle, error) {
	return s.recent, nil
}
func (s *stubArticleStore) CountArticles(context.Context) (int, int, error) {
	return s.stored, s.published, nil
}

func commandUpdate(userID, chatID int64, command string) tgbotapi.Update {
	return tgbotapi.Update{
		Message: &tgbotapi.Message{
			From: &tgbotapi.User{ID: userID},
			Chat: &tgbotapi.Chat{ID: chatID},
			Text: "/" + command,
			Entities: []tgbotapi.MessageEntity{
				{Type: "bot_command", Offset: 0, Length: len(command) + 1},
			},
		},
	}
}

func newTestBot(api api, cfg Config, jobs pipeline.JobStore, articles pipeline.ArticleStore) *Bot {
	return newWithAPI(api, cfg, jobs, articles, zap.NewNop())
}

func TestAuthorized_DeniesWhenNoAllowLists(t *testing.T) {
	t.Parallel()

	b := newTestBot(&recordingAPI{}, Config{}, &stubJobStore{}, &stubArticleStore{})
	require.False(t, b.authorized(commandUpdate(1, 2, "status")))
}

func TestAuthorized_AllowsListedUserAnywhere(t *testing.T) {
	t.Parallel()

	b := newTestBot(&recordingAPI{}, Config{AllowedUserIDs: []int64{42}}, &stubJobStore{}, &stubArticleStore{})
	require.True(t, b.authorized(commandUpdate(42, 999, "status")))
	require.False(t, b.authorized(commandUpdate(43, 999, "status")))
}

func TestAuthorized_AllowsListedChatForAnyUser(t *testing.T) {
	t.Parallel()

	b := newTestBot(&recordingAPI{}, Config{AllowedChatIDs: []int64{-100}}, &stubJobStore{}, &stubArticleStore{})
	require.True(t, b.authorized(commandUpdate(7, -100, "status")))
	require.False(t, b.authorized(commandUpdate(7, -200, "status")))
}

func TestHandleUpdate_UnauthorizedGetsNoReply(t *testing.T) {
	t.Parallel()

	rec := &recordingAPI{}
	b := newTestBot(rec, Config{AllowedUserIDs: []int64{42}}, &stubJobStore{}, &stubArticleStore{})
	b.handleUpdate(context.Background(), commandUpdate(1, 1, "status"))
	require.Empty(t, rec.sent)
}

func TestHandleUpdate_StatusCommand(t *testing.T) {
	t.Parallel()

	rec := &recordingAPI{}
	jobs := &stubJobStore{snap: pipeline.StatusSnapshot{
		JobsRunning:       1,
		JobsSucceeded:     10,
		JobsFailed:        2,
		ArticlesStored:    37,
		ArticlesPublished: 20,
		LastScrapeAt:      time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC),
	}}

	b := newTestBot(rec, Config{AllowedUserIDs: []int64{42}}, jobs, &stubArticleStore{})
	b.handleUpdate(context.Background(), commandUpdate(42, 5, "status"))

	require.Len(t, rec.sent, 1)
	require.Equal(t, int64(5), rec.sent[0].ChatID)
	require.Contains(t, rec.sent[0].Text, "Jobs running:</b> 1")
	require.Contains(t, rec.sent[0].Text, "Articles stored:</b> 37")
	require.Contains(t, rec.sent[0].Text, "⚠️")
}

func TestHandleUpdate_RecentCommand(t *testing.T) {
	t.Parallel()

	rec := &recordingAPI{}
	articles := &stubArticleStore{recent: []pipeline.StoredArticle{
		{
			URL:          "https://example.com/a",
			Article:      extract.Article{Title: "First Story"},
			PublishState: pipeline.PublishStatePublished,
		},
		{
			URL:          "https://example.com/b",
			Article:      extract.Article{Title: "Second Story"},
			PublishState: pipeline.PublishStatePending,
		},
	}}

	b := newTestBot(rec, Config{AllowedUserIDs: []int64{42}}, &stubJobStore{}, articles)
	b.handleUpdate(context.Background(), commandUpdate(42, 5, "recent"))

	require.Len(t, rec.sent, 1)
	require.Contains(t, rec.sent[0].Text, "First Story")
	require.Contains(t, rec.sent[0].Text, "published")
}

func TestHandleUpdate_StatsCommand(t *testing.T) {
	t.Parallel()

	rec := &recordingAPI{}
	articles := &stubArticleStore{stored: 40, published: 10}

	b := newTestBot(rec, Config{AllowedUserIDs: []int64{42}}, &stubJobStore{}, articles)
	b.handleUpdate(context.Background(), commandUpdate(42, 5, "stats"))

	require.Len(t, rec.sent, 1)
	require.Contains(t, rec.sent[0].Text, "Stored:</b> 40")
	require.Contains(t, rec.sent[0].Text, "Published:</b> 10")
	require.Contains(t, rec.sent[0].Text, "25%")
}

func TestHandleUpdate_IgnoresNonCommands(t *testing.T) {
	t.Parallel()

	rec := &recordingAPI{}
	b := newTestBot(rec, Config{AllowedUserIDs: []int64{42}}, &stubJobStore{}, &stubArticleStore{})
	b.handleUpdate(context.Background(), tgbotapi.Update{
		Message: &tgbotapi.Message{
			From: &tgbotapi.User{ID: 42},
			Chat: &tgbotapi.Chat{ID: 5},
			Text: "hello there",
		},
	})
	require.Empty(t, rec.sent)
}

func TestBroadcast_SendsToAllChats(t *testing.T) {
	t.Parallel()

	rec := &recordingAPI{}
	b := newTestBot(rec, Config{AllowedChatIDs: []int64{1, 2, 3}}, &stubJobStore{}, &stubArticleStore{})
	b.Broadcast("job finished")
	require.Len(t, rec.sent, 3)
}
