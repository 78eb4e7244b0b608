package mocks

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xkilldash9x/jobagent-cli/api/schemas"
)

func TestFakeBrowser_ClickCallbackNavigates(t *testing.T) {
	ctx := context.Background()
	f := NewFakeBrowser()
	f.SetPage("https://a.test/", `<button id="go">Go</button>`)
	f.OnClick[schemas.ID("go").String()] = func(f *FakeBrowser) { f.GoTo("https://a.test/next") }

	require.NoError(t, f.Navigate(ctx, "https://a.test/"))
	require.NoError(t, f.Click(ctx, schemas.ID("go"), 0))

	u, err := f.CurrentURL(ctx)
	require.NoError(t, err)
	assert.Equal(t, "https://a.test/next", u)
	assert.Equal(t, []string{"https://a.test/"}, f.Navigations, "page-initiated moves are not recorded")
}

func TestFakeBrowser_MissingElement(t *testing.T) {
	ctx := context.Background()
	f := NewFakeBrowser()

	_, err := f.FindElement(ctx, schemas.CSS("#nope"), time.Millisecond)
	assert.Equal(t, schemas.KindTimeout, schemas.KindOf(err))

	_, err = f.FindElement(ctx, schemas.CSS("#nope"), 0)
	assert.Equal(t, schemas.KindPageStructureMismatch, schemas.KindOf(err))
}

func TestFakeBrowser_Tabs(t *testing.T) {
	ctx := context.Background()
	f := NewFakeBrowser()

	id, err := f.OpenTab(ctx, "https://a.test/detail")
	require.NoError(t, err)
	assert.Equal(t, id, f.CurrentTab())
	assert.Len(t, f.Tabs(), 2)

	assert.Error(t, f.CloseTab(PrimaryTab))
	require.NoError(t, f.CloseTab(id))
	assert.Equal(t, PrimaryTab, f.CurrentTab())
	assert.Equal(t, []schemas.TabID{PrimaryTab}, f.Tabs())
}

func TestFakeBrowser_InjectedFailures(t *testing.T) {
	ctx := context.Background()
	f := NewFakeBrowser()
	f.Fail["Screenshot"] = errors.New("boom")
	f.NavigateErrors["https://a.test/down"] = errors.New("net::ERR_NAME_NOT_RESOLVED")

	assert.EqualError(t, f.Screenshot(ctx, "x.png"), "boom")
	assert.Error(t, f.Navigate(ctx, "https://a.test/down"))
	assert.True(t, f.Navigated("https://a.test/down"))
}

func TestFakeBrowser_RedirectSeesCookies(t *testing.T) {
	ctx := context.Background()
	f := NewFakeBrowser()
	f.Redirect = func(url string, cookies []schemas.Cookie) string {
		if len(cookies) == 0 {
			return "https://a.test/login"
		}
		return url
	}

	require.NoError(t, f.Navigate(ctx, "https://a.test/home"))
	u, _ := f.CurrentURL(ctx)
	assert.Equal(t, "https://a.test/login", u)

	require.NoError(t, f.SetCookies(ctx, []schemas.Cookie{{Name: "s", Value: "1"}}))
	require.NoError(t, f.Navigate(ctx, "https://a.test/home"))
	u, _ = f.CurrentURL(ctx)
	assert.Equal(t, "https://a.test/home", u)
}
