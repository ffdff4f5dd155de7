// internal/scraper/images_test.go
package scraper

import (
	"context"
	"testing"

	"github.com/propertylens/propertylens/pkg/types"
)

func TestKeepImageURL(t *testing.T) {
	tokens := []string{"99acres", "cloudfront"}

	tests := []struct {
		name string
		url  string
		want bool
	}{
		{
			name: "portal domain",
			url:  "https://imagecdn.99acres.com/img/123.jpg",
			want: true,
		},
		{
			name: "property keyword on foreign host",
			url:  "https://cdn.example.com/property/photo.jpg",
			want: true,
		},
		{
			name: "logo rejected",
			url:  "https://imagecdn.99acres.com/logo-small.png",
			want: false,
		},
		{
			name: "ad path segment rejected",
			url:  "https://cdn.example.com/ads/property.jpg",
			want: false,
		},
		{
			name: "road survives the ad token",
			url:  "https://d1.cloudfront.net/sohna-road-tower.jpg",
			want: true,
		},
		{
			name: "data uri rejected",
			url:  "data:image/png;base64,iVBORw0KGgo=",
			want: false,
		},
		{
			name: "too short",
			url:  "a.jpg",
			want: false,
		},
		{
			name: "unknown host no keyword",
			url:  "https://cdn.example.com/x/y/z123456.jpg",
			want: false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := keepImageURL(tt.url, tokens); got != tt.want {
				t.Errorf("keepImageURL(%q) = %v, want %v", tt.url, got, tt.want)
			}
		})
	}
}

// A repeated src must yield one URL, and the logo must never survive, no
// matter how many img nodes carry it.
func TestImageHarvestCollapsesDuplicates(t *testing.T) {
	ctx := context.Background()
	page := `<!DOCTYPE html>
<html><body height="600">
  <div id="card" width="400" height="300">
    <img src="https://img.cdn/logo.png">
    <img src="https://img.cdn/property1.jpg">
    <img src="https://img.cdn/property1.jpg">
  </div>
</body></html>`
	sess := staticSession(t, page)
	els, err := sess.Query(ctx, "#card")
	if err != nil || len(els) != 1 {
		t.Fatalf("Query card: %v (%d els)", err, len(els))
	}

	profile, _ := ProfileFor(types.SiteNinetyNineAcres)
	ex := NewExtractor(profile)

	got := ex.images(ctx, Card{Element: els[0]})
	if len(got) != 1 || got[0] != "https://img.cdn/property1.jpg" {
		t.Errorf("images = %v, want just the property photo", got)
	}
}

func TestFirstURLFromSrcset(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "width descriptors",
			in:   "https://cdn.example.com/a-320.jpg 320w, https://cdn.example.com/a-640.jpg 640w",
			want: "https://cdn.example.com/a-320.jpg",
		},
		{
			name: "single entry",
			in:   "https://cdn.example.com/a.jpg",
			want: "https://cdn.example.com/a.jpg",
		},
		{
			name: "empty",
			in:   "  ",
			want: "",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := firstURLFromSrcset(tt.in); got != tt.want {
				t.Errorf("firstURLFromSrcset(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestCSSBackgroundURL(t *testing.T) {
	tests := []struct {
		name  string
		style string
		want  string
	}{
		{
			name:  "double quoted",
			style: `background-image: url("https://cdn.example.com/hero.jpg"); color: red`,
			want:  "https://cdn.example.com/hero.jpg",
		},
		{
			name:  "unquoted",
			style: "background-image:url(https://cdn.example.com/hero.jpg)",
			want:  "https://cdn.example.com/hero.jpg",
		},
		{
			name:  "no url",
			style: "color: red",
			want:  "",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := cssBackgroundURL(tt.style); got != tt.want {
				t.Errorf("cssBackgroundURL(%q) = %q, want %q", tt.style, got, tt.want)
			}
		})
	}
}
