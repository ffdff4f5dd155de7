// internal/browser/types.go
package browser

import (
	"context"
	"errors"
	"time"
)

// ErrStaleElement is returned when an element handle refers to a DOM node
// that no longer exists, usually because the page re-rendered after a
// scroll or load-more round. Callers re-query and continue.
var ErrStaleElement = errors.New("stale element handle")

// Geometry is an element's position and size in CSS pixels.
type Geometry struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Area returns width*height, zero for degenerate boxes.
func (g Geometry) Area() float64 {
	if g.Width <= 0 || g.Height <= 0 {
		return 0
	}
	return g.Width * g.Height
}

// Element is a handle to a single DOM element. Handles stay valid until the
// session navigates, or until the page discards the underlying node; after
// that operations return ErrStaleElement.
type Element interface {
	// Text returns the rendered text of the element and its subtree,
	// with newlines between block-level children.
	Text(ctx context.Context) (string, error)

	// HTML returns the element's outer HTML.
	HTML(ctx context.Context) (string, error)

	// TagName returns the lower-case tag name.
	TagName(ctx context.Context) (string, error)

	// Attribute returns the named attribute, "" when absent.
	Attribute(ctx context.Context, name string) (string, error)

	// BoundingBox returns the element's geometry.
	BoundingBox(ctx context.Context) (Geometry, error)

	// IsVisible reports whether the element is rendered and has nonzero size.
	IsVisible(ctx context.Context) (bool, error)

	// IsEnabled reports whether the element accepts interaction.
	IsEnabled(ctx context.Context) (bool, error)

	// Click clicks the element.
	Click(ctx context.Context) error

	// ScrollIntoView scrolls the element to the viewport center.
	ScrollIntoView(ctx context.Context) error

	// Parent returns the parent element, or nil at the document root.
	Parent(ctx context.Context) (Element, error)

	// Find returns descendants matching a CSS selector.
	Find(ctx context.Context, selector string) ([]Element, error)

	// Has reports whether any descendant matches a CSS selector.
	Has(ctx context.Context, selector string) (bool, error)
}

// Session is one browser page. ChromeSession drives a real headless Chrome;
// StaticSession serves a saved HTML document for offline runs and tests.
type Session interface {
	// Navigate loads a URL and waits for the document body.
	Navigate(ctx context.Context, url string) error

	// Query returns elements matching a CSS selector, invalidating
	// handles from previous queries on dynamic sessions.
	Query(ctx context.Context, selector string) ([]Element, error)

	// QueryByText returns elements whose own text nodes contain the
	// given substring.
	QueryByText(ctx context.Context, substring string) ([]Element, error)

	// ScrollBy scrolls the page down by dy pixels.
	ScrollBy(ctx context.Context, dy int) error

	// ScrollToBottom scrolls to the end of the document.
	ScrollToBottom(ctx context.Context) error

	// PageHeight returns the current document scroll height.
	PageHeight(ctx context.Context) (float64, error)

	// CurrentURL returns the page URL after redirects.
	CurrentURL(ctx context.Context) (string, error)

	// DismissOverlays clicks away transient overlays (login walls,
	// app banners) matching the given close-button selectors.
	DismissOverlays(ctx context.Context, selectors ...string) error

	// Close releases the session and the browser it owns.
	Close() error
}

// Config holds browser session settings.
type Config struct {
	Headless       bool          `yaml:"headless" json:"headless"`
	UserAgent      string        `yaml:"user_agent,omitempty" json:"user_agent,omitempty"`
	ViewportWidth  int           `yaml:"viewport_width" json:"viewport_width"`
	ViewportHeight int           `yaml:"viewport_height" json:"viewport_height"`
	NavTimeout     time.Duration `yaml:"nav_timeout" json:"nav_timeout"`
	OpTimeout      time.Duration `yaml:"op_timeout" json:"op_timeout"`
	WaitDelay      time.Duration `yaml:"wait_delay" json:"wait_delay"`
	DisableImages  bool          `yaml:"disable_images" json:"disable_images"`
	ProxyURL       string        `yaml:"proxy_url,omitempty" json:"proxy_url,omitempty"`
	UserDataDir    string        `yaml:"user_data_dir,omitempty" json:"user_data_dir,omitempty"`

	// FromFile serves the given saved HTML document instead of launching
	// Chrome. Navigate becomes a no-op and scrolling never adds content.
	FromFile string `yaml:"from_file,omitempty" json:"from_file,omitempty"`
}

// DefaultConfig returns production browser settings.
func DefaultConfig() *Config {
	return &Config{
		Headless:       true,
		ViewportWidth:  1920,
		ViewportHeight: 1080,
		NavTimeout:     45 * time.Second,
		OpTimeout:      10 * time.Second,
		WaitDelay:      2 * time.Second,
		DisableImages:  false,
	}
}

// New returns a session for the config: StaticSession when FromFile is set,
// otherwise a ChromeSession. The context bounds the session's lifetime.
func New(ctx context.Context, cfg *Config) (Session, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.FromFile != "" {
		return NewStaticSessionFromFile(cfg.FromFile)
	}
	return NewChromeSession(ctx, cfg)
}
