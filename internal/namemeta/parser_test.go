package namemeta_test

import (
	"testing"

	"vpo/internal/namemeta"
)

func TestParseMovie(t *testing.T) {
	meta := namemeta.Parse("/library/in/The.Grand.Heist.2019.1080p.BluRay.x265.mkv")
	if meta.Title != "The Grand Heist" {
		t.Errorf("title = %q", meta.Title)
	}
	if meta.Year != 2019 {
		t.Errorf("year = %d", meta.Year)
	}
	if meta.Resolution != "1080p" {
		t.Errorf("resolution = %q", meta.Resolution)
	}
	if meta.Codec != "hevc" {
		t.Errorf("codec = %q", meta.Codec)
	}
	if meta.Extension != "mkv" {
		t.Errorf("extension = %q", meta.Extension)
	}
	if meta.Season != 0 || meta.Episode != 0 {
		t.Errorf("unexpected episode markers: S%d E%d", meta.Season, meta.Episode)
	}
}

func TestParseEpisode(t *testing.T) {
	cases := []struct {
		name            string
		season, episode int
		title           string
	}{
		{"Show.Name.S02E05.720p.WEB.h264.mkv", 2, 5, "Show Name"},
		{"Show Name 3x12 HDTV.mp4", 3, 12, "Show Name"},
		{"Another_Show_s01e01.mkv", 1, 1, "Another Show"},
	}
	for _, tc := range cases {
		meta := namemeta.Parse(tc.name)
		if meta.Season != tc.season || meta.Episode != tc.episode {
			t.Errorf("%s: got S%02dE%02d, want S%02dE%02d", tc.name, meta.Season, meta.Episode, tc.season, tc.episode)
		}
		if meta.Title != tc.title {
			t.Errorf("%s: title = %q, want %q", tc.name, meta.Title, tc.title)
		}
	}
}

func TestParseSeasonOnly(t *testing.T) {
	meta := namemeta.Parse("Some Show Season 4 (2015) 2160p.mkv")
	if meta.Season != 4 {
		t.Errorf("season = %d", meta.Season)
	}
	if meta.Year != 2015 {
		t.Errorf("year = %d", meta.Year)
	}
	if meta.Resolution != "2160p" {
		t.Errorf("resolution = %q", meta.Resolution)
	}
}

func TestNormalizeResolution(t *testing.T) {
	if got := namemeta.NormalizeResolution("4K"); got != "2160p" {
		t.Errorf("4K -> %q", got)
	}
	if got := namemeta.NormalizeResolution("1080i"); got != "1080p" {
		t.Errorf("1080i -> %q", got)
	}
}

func TestResolutionLabel(t *testing.T) {
	cases := []struct {
		w, h int
		want string
	}{
		{1920, 1080, "1080p"},
		{1920, 800, "1080p"}, // cropped scope ratio still 1080p by width
		{1280, 720, "720p"},
		{3840, 2160, "2160p"},
		{720, 480, "480p"},
		{0, 0, ""},
	}
	for _, tc := range cases {
		if got := namemeta.ResolutionLabel(tc.w, tc.h); got != tc.want {
			t.Errorf("ResolutionLabel(%d, %d) = %q, want %q", tc.w, tc.h, got, tc.want)
		}
	}
}

func TestResolutionRankOrdering(t *testing.T) {
	labels := []string{"480p", "576p", "720p", "1080p", "1440p", "2160p", "4320p"}
	for i := 1; i < len(labels); i++ {
		if namemeta.ResolutionRank(labels[i-1]) >= namemeta.ResolutionRank(labels[i]) {
			t.Errorf("rank(%s) should be below rank(%s)", labels[i-1], labels[i])
		}
	}
	if namemeta.ResolutionRank("garbage") != 0 {
		t.Error("unknown labels must rank lowest")
	}
}

func TestRender(t *testing.T) {
	meta := namemeta.Parse("Show.Name.S02E05.1080p.x264.mkv")
	got := namemeta.Render("tv/{title}/Season {season}/{title} - S{season}E{episode}.{ext}", meta, "unknown")
	want := "tv/Show Name/Season 02/Show Name - S02E05.mkv"
	if got != want {
		t.Errorf("Render = %q, want %q", got, want)
	}
}

func TestRenderFallback(t *testing.T) {
	meta := namemeta.Parse("movie.mkv")
	got := namemeta.Render("movies/{title} ({year})/{title}.{ext}", meta, "unsorted")
	want := "movies/Movie (unsorted)/Movie.mkv"
	if got != want {
		t.Errorf("Render = %q, want %q", got, want)
	}
}
