package main

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LeventeLantos/wa-scheduler/internal/config"
	"github.com/LeventeLantos/wa-scheduler/internal/model"
	"github.com/LeventeLantos/wa-scheduler/internal/notify"
	"github.com/LeventeLantos/wa-scheduler/internal/prefs"
	"github.com/LeventeLantos/wa-scheduler/internal/service"
)

func testConfig() *config.Config {
	return &config.Config{
		Server:   config.ServerConfig{Address: ":0", AppBaseURL: "http://localhost:8080"},
		Database: config.DatabaseConfig{URL: ":memory:"},
		Scheduler: config.SchedulerConfig{
			ForegroundInterval: 15 * time.Second,
			BackgroundInterval: 5 * time.Minute,
			Advance:            5 * time.Minute,
			Expiry:             48 * time.Hour,
			Policy:             service.PolicyAuto,
		},
		Links: config.LinksConfig{CountryCode: "33"},
	}
}

func TestBuildSurfaces(t *testing.T) {
	surfaces, err := buildSurfaces(config.NotifyConfig{})
	require.NoError(t, err)
	require.Len(t, surfaces, 1)
	assert.Equal(t, "log", surfaces[0].Name())

	surfaces, err = buildSurfaces(config.NotifyConfig{WebhookURL: "http://push.local/hook"})
	require.NoError(t, err)
	require.Len(t, surfaces, 2)
	assert.Equal(t, "webhook", surfaces[0].Name())
	assert.Equal(t, "log", surfaces[1].Name())

	_, err = buildSurfaces(config.NotifyConfig{TelegramToken: "not-a-token", TelegramChatID: 1})
	assert.Error(t, err)
}

func TestNewRuntime_InMemoryPrefsWithoutRedis(t *testing.T) {
	rt, err := newRuntime(context.Background(), testConfig())
	require.NoError(t, err)
	defer rt.Close()

	_, ok := rt.prefs.(*prefs.MemoryStore)
	assert.True(t, ok, "expected memory preferences, got %T", rt.prefs)
}

func TestWakeOnce_RunsOneBackgroundTick(t *testing.T) {
	ctx := context.Background()
	rt, err := newRuntime(ctx, testConfig())
	require.NoError(t, err)
	defer rt.Close()

	at := rt.clock.Now().Add(-time.Minute).UTC()
	require.NoError(t, rt.repo.Create(ctx, &model.Message{
		ID:                 "m1",
		Phone:              "0612345678",
		Text:               "hello",
		ScheduledAt:        at,
		App:                model.WhatsApp,
		Recurrence:         model.Daily,
		RecurrenceInterval: 1,
		Status:             model.Pending,
		CreatedAt:          at,
		UpdatedAt:          at,
	}))

	res, err := wakeOnce(ctx, rt)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Triggered)
	assert.Equal(t, 1, res.Completed)
	assert.Equal(t, 1, res.Spawned)

	res, err = wakeOnce(ctx, rt)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Triggered, "a second wake does not repeat the reminder")

	m, err := rt.repo.Get(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, model.Sent, m.Status)
}

func TestRuntimeAgent_CapabilitySelectsPrefs(t *testing.T) {
	rt, err := newRuntime(context.Background(), testConfig())
	require.NoError(t, err)
	defer rt.Close()

	fg, err := rt.agent(service.Foreground)
	require.NoError(t, err)
	assert.True(t, fg.Capability().ReadsPreferences)

	bg, err := rt.agent(service.Background)
	require.NoError(t, err)
	assert.True(t, bg.Capability().ActionableReminders)
}

func TestTickSummary(t *testing.T) {
	assert.False(t, tickSummary{Evaluated: 3}.changed())
	assert.True(t, tickSummary{Expired: 1}.changed())
	assert.Contains(t, tickSummary{}.attrs(), "spawned")
}

func TestDispatcherClickURL(t *testing.T) {
	rt, err := newRuntime(context.Background(), testConfig())
	require.NoError(t, err)
	defer rt.Close()

	r := rt.dispatcher.Build(model.Message{ID: "m1", Phone: "0612345678", Text: "x"}, notify.Advance, false)
	assert.Equal(t, "http://localhost:8080/#/edit/m1", r.ClickURL)
	assert.Equal(t, "https://api.whatsapp.com/send?phone=33612345678&text=x", r.DeepLinkURL)
}

func TestRootCmd_WakeEndToEnd(t *testing.T) {
	t.Setenv("DATABASE_URL", ":memory:")
	t.Setenv("LOG_LEVEL", "error")

	root := newRootCmd()
	root.SetArgs([]string{"wake"})
	require.NoError(t, root.Execute())
}

func TestRootCmd_ConfigErrorSurfaces(t *testing.T) {
	t.Setenv("DATABASE_URL", "")

	root := newRootCmd()
	root.SetArgs([]string{"wake"})
	err := root.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DATABASE_URL")
}
