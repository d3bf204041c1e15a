package naming

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"

	"github.com/sirupsen/logrus"

	"torrentify/internal/domain"
)

func TestSafeNameIsStableAndDistinct(t *testing.T) {
	a := SafeName("The Movie 2020")
	if a != "The.Movie.2020" {
		t.Fatalf("unexpected safe name %q", a)
	}
	if SafeName("The Movie 2020") != a {
		t.Fatalf("safe name not stable")
	}
	if SafeName("The Movie 2021") == a {
		t.Fatalf("distinct inputs collided")
	}
}

func TestFallbackName(t *testing.T) {
	if got := FallbackName("/data/films/My Film.mkv", false); got != "My Film" {
		t.Fatalf("file fallback %q", got)
	}
	if got := FallbackName("/data/jeux/Some Game", true); got != "Some Game" {
		t.Fatalf("dir fallback %q", got)
	}
}

func TestReleaseNameTokenOrder(t *testing.T) {
	raw := `{
		"title": "Blade Runner",
		"year": 2049,
		"edition": ["Director's Cut", "IMAX"],
		"other": ["Proper", "Dolby Vision", "HDR10", "HDR10+"],
		"language": ["fr", "en"],
		"screen_size": "2160p",
		"streaming_service": "Netflix",
		"source": "Web",
		"audio_codec": "Dolby Digital Plus",
		"audio_channels": "5.1",
		"audio_profile": "Atmos",
		"video_codec": "H.265",
		"release_group": "GRP"
	}`
	var f Fields
	if err := json.Unmarshal([]byte(raw), &f); err != nil {
		t.Fatalf("decode: %v", err)
	}
	got, ok := ReleaseName(f)
	if !ok {
		t.Fatalf("expected a release name")
	}
	want := "Blade.Runner.2049.PROPER.Directors.Cut.IMAX.MULTi.HDR10+.HDR10.DV.2160p.NF.WEB-DL.EAC3.5.1.Atmos.x265-GRP"
	if got != want {
		t.Fatalf("release name\n got %s\nwant %s", got, want)
	}
}

func TestReleaseNameNormalizers(t *testing.T) {
	cases := []struct {
		name   string
		fields Fields
		want   string
	}{
		{
			name:   "webdl and avc",
			fields: Fields{Title: "Film", Year: Values{"2020"}, Source: Values{"webdl"}, VideoCodec: Values{"AVC"}},
			want:   "Film.2020.WEB-DL.x264-NoTag",
		},
		{
			name:   "episode follows year",
			fields: Fields{Title: "Show", Year: Values{"2019"}, Season: Values{"1"}, Episode: Values{"2"}, ScreenSize: Values{"1080p"}},
			want:   "Show.2019.S01E02.1080p-NoTag",
		},
		{
			name:   "single french language with vostfr",
			fields: Fields{Title: "Anime", SubtitleLanguage: Values{"fr"}, Source: Values{"Blu-ray"}, AudioCodec: Values{"FLAC"}, AudioChannels: Values{"2.0"}},
			want:   "Anime.VOSTFR.BluRay.FLAC.2.0-NoTag",
		},
		{
			name:   "dts-hd master audio",
			fields: Fields{Title: "Film", AudioCodec: Values{"DTS-HD"}, AudioProfile: Values{"Master Audio"}, ReleaseGroup: "Team X"},
			want:   "Film.DTS-HD.MA-Team.X",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := ReleaseName(tc.fields)
			if !ok || got != tc.want {
				t.Fatalf("got %q (ok=%v), want %q", got, ok, tc.want)
			}
		})
	}
}

func TestReleaseNameWithoutTitle(t *testing.T) {
	if _, ok := ReleaseName(Fields{Year: Values{"2020"}}); ok {
		t.Fatalf("no title must not produce a name")
	}
}

type stubExtractor struct {
	fields Fields
	err    error
	calls  int
}

func (s *stubExtractor) Extract(context.Context, string) (Fields, error) {
	s.calls++
	return s.fields, s.err
}

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func TestSceneStrategy(t *testing.T) {
	ctx := context.Background()

	ok := &stubExtractor{fields: Fields{Title: "Film", Year: Values{"2001"}}}
	s := NewScene(ok, quietLogger())
	if got := s.ReleaseName(ctx, Source{Path: "/m/film.mkv", Category: domain.CategoryFilms}); got != "Film.2001-NoTag" {
		t.Fatalf("unexpected name %q", got)
	}

	broken := &stubExtractor{err: errors.New("python missing")}
	s = NewScene(broken, quietLogger())
	if got := s.ReleaseName(ctx, Source{Path: "/m/My Film.mkv", Category: domain.CategoryFilms}); got != "My Film" {
		t.Fatalf("extraction failure should fall back, got %q", got)
	}

	games := &stubExtractor{fields: Fields{Title: "ignored"}}
	s = NewScene(games, quietLogger())
	if got := s.ReleaseName(ctx, Source{Path: "/g/Game Dir", Category: domain.CategoryGames, IsDirectory: true}); got != "Game Dir" {
		t.Fatalf("games keep their name, got %q", got)
	}
	if games.calls != 0 {
		t.Fatalf("games must not run extraction")
	}
	if got := s.ReleaseName(ctx, Source{Path: "/g/Game Dir", Category: domain.CategoryGames, Override: "Custom"}); got != "Custom" {
		t.Fatalf("override ignored, got %q", got)
	}
}
