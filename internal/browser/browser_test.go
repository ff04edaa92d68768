package browser

import (
	"context"
	"testing"
	"time"

	"github.com/kamilpajak/smarttest/internal/config"
	"github.com/kamilpajak/smarttest/internal/server"
	"github.com/kamilpajak/smarttest/pkg/page"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const fixture = `<!doctype html>
<html><head><title>Fixture Shop</title></head>
<body>
  <input id="renamed-search" placeholder="Search products">
  <button class="btn">Add to cart</button>
  <a href="#help">Help center</a>
  <p style="display:none" id="hidden">secret</p>
</body></html>`

func TestLaunch_UnknownDriver(t *testing.T) {
	_, err := Launch(context.Background(), config.BrowserSettings{Driver: "selenium"}, nil)
	assert.ErrorContains(t, err, "unknown browser driver")
}

func TestLaunchRod_RejectsFirefox(t *testing.T) {
	_, err := Launch(context.Background(), config.BrowserSettings{Driver: DriverRod, Engine: "firefox"}, nil)
	assert.ErrorContains(t, err, "chromium")
}

func TestViewport(t *testing.T) {
	w, h := viewport(config.BrowserSettings{WindowSize: "1280,720"})
	assert.Equal(t, []int{1280, 720}, []int{w, h})
	w, h = viewport(config.BrowserSettings{WindowSize: "bogus"})
	assert.Equal(t, []int{1920, 1080}, []int{w, h})
}

func TestRemaining(t *testing.T) {
	assert.Equal(t, 3*time.Second, remaining(context.Background(), 3*time.Second))

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	d := remaining(ctx, time.Second)
	assert.Greater(t, d, 50*time.Second)
}

func TestBounded(t *testing.T) {
	n, err := bounded(context.Background(), func() (int, error) { return 3, nil })
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	canceled, cancel := context.WithCancel(context.Background())
	cancel()
	calls := 0
	_, err = bounded(canceled, func() (int, error) { calls++; return 1, nil })
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, calls)

	release := make(chan struct{})
	defer close(release)
	ctx, cancelTimeout := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancelTimeout()
	start := time.Now()
	_, err = bounded(ctx, func() (string, error) {
		<-release
		return "late", nil
	})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestPlaywrightDocument_Healing(t *testing.T) {
	if testing.Short() {
		t.Skip("browser test")
	}
	if !IsAvailable() {
		t.Skip("playwright not installed")
	}

	srv, err := server.Start(map[string][]byte{"index.html": []byte(fixture)})
	require.NoError(t, err)
	defer srv.Stop()

	ctx := context.Background()
	doc, closeFn, err := Open(ctx, config.BrowserSettings{Driver: DriverPlaywright, Engine: "chromium", Headless: true, WindowSize: "1024,768", Timeout: 10}, nil)
	if err != nil {
		t.Skipf("browser unavailable: %v", err)
	}
	defer closeFn()

	p := page.New("home", doc, nil)
	require.NoError(t, p.Open(ctx, srv.URL("index.html")))
	require.NoError(t, p.WaitForLoad(ctx, 0))

	title, err := p.Title(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Fixture Shop", title)

	p.Register("search", "search input field", page.By(page.ByID, "search-box"))
	p.Register("cart", "add to cart button", nil)
	p.Register("help", "", page.By(page.ByLinkText, "Help"))
	p.Register("hidden", "", page.By(page.ByID, "hidden"))

	assert.True(t, p.Type(ctx, "search", "laptop"))
	assert.True(t, p.Click(ctx, "cart"))
	assert.True(t, p.IsVisible(ctx, "help"))
	assert.False(t, p.IsVisible(ctx, "hidden"))

	history := p.History("search")
	require.Len(t, history, 2)
	assert.True(t, history[1].Success)
	assert.Equal(t, "search", history[1].MatchedToken)
}
