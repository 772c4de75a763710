package cmd

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/garden-stock/internal/config"
	"github.com/JakeFAU/garden-stock/internal/stock"
)

type fakeApp struct {
	snapshot   stock.Snapshot
	refreshErr error
	runErr     error
	ran        bool
	closed     bool
}

func (f *fakeApp) Run(context.Context) error {
	f.ran = true
	return f.runErr
}

func (f *fakeApp) Refresh(context.Context) (stock.Snapshot, error) {
	return f.snapshot, f.refreshErr
}

func (f *fakeApp) Close() {
	f.closed = true
}

func withFakeApp(t *testing.T, app *fakeApp) {
	t.Helper()
	original := newApp
	newApp = func(config.Config, *zap.Logger) (App, error) { return app, nil }
	t.Cleanup(func() { newApp = original })
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestScrapePrintsSnapshot(t *testing.T) {
	app := &fakeApp{snapshot: stock.NewSnapshot().WithSection(stock.CategoryGear, stock.StockSection{
		Items:     []stock.StockItem{{Name: "Watering Can", Quantity: 3}},
		UpdatesIn: "1m 5s",
	})}
	withFakeApp(t, app)

	out, err := execute(t, "scrape")
	require.NoError(t, err)
	require.JSONEq(t, `{
		"gear_stock": {"items": [{"name": "Watering Can", "quantity": 3}], "updates_in": "1m 5s"},
		"egg_stock": {"items": [], "updates_in": "Unknown"},
		"seeds_stock": {"items": [], "updates_in": "Unknown"}
	}`, out)
	require.True(t, app.closed)
}

func TestScrapeReturnsRefreshError(t *testing.T) {
	app := &fakeApp{refreshErr: stock.NewFetchError(stock.ReasonBadStatus, errors.New("403"))}
	withFakeApp(t, app)

	_, err := execute(t, "scrape")
	require.ErrorIs(t, err, stock.ErrBadStatus)
	require.True(t, app.closed, "a failed scrape must still release the app")
}

func TestServeFailureClosesApp(t *testing.T) {
	app := &fakeApp{runErr: errors.New("listen tcp :8080: address already in use")}
	withFakeApp(t, app)

	_, err := execute(t, "serve")
	require.ErrorContains(t, err, "serve: listen tcp")
	require.True(t, app.closed)
}

func TestSubcommandWithoutSession(t *testing.T) {
	cmd := newScrapeCmd()
	cmd.SetContext(context.Background())

	err := cmd.RunE(cmd, nil)
	require.EqualError(t, err, "application services not initialized")
}

func TestServeRunsApp(t *testing.T) {
	app := &fakeApp{}
	withFakeApp(t, app)

	_, err := execute(t, "serve")
	require.NoError(t, err)
	require.True(t, app.ran)
	require.True(t, app.closed)
}

func TestRootRejectsMissingConfigFile(t *testing.T) {
	withFakeApp(t, &fakeApp{})

	_, err := execute(t, "--config", "does-not-exist.yaml", "scrape")
	require.ErrorContains(t, err, "load config")
}
