package naming

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"unicode"
)

// SafeName turns a display name into the output folder name. Spaces become
// dots; nothing else changes, so distinct names stay distinct.
func SafeName(name string) string {
	return strings.ReplaceAll(strings.TrimSpace(name), " ", ".")
}

// FallbackName is the name used when extraction yields nothing usable.
func FallbackName(path string, isDir bool) string {
	base := filepath.Base(path)
	if isDir {
		return base
	}
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// hdrOrder is the fixed priority in which HDR tags are emitted.
var hdrOrder = []string{"HDR10+", "HDR10", "HDR", "DV", "HLG", "SDR"}

var hdrAliases = map[string]string{
	"hdr10+":       "HDR10+",
	"hdr10plus":    "HDR10+",
	"hdr10":        "HDR10",
	"hdr":          "HDR",
	"dolby vision": "DV",
	"dv":           "DV",
	"dovi":         "DV",
	"hlg":          "HLG",
	"sdr":          "SDR",
}

var infoTags = map[string]string{
	"proper":   "PROPER",
	"repack":   "REPACK",
	"internal": "iNTERNAL",
	"limited":  "LiMiTED",
	"remux":    "REMUX",
	"complete": "COMPLETE",
}

var editions = map[string]string{
	"director's cut": "Directors.Cut",
	"directors cut":  "Directors.Cut",
	"extended":       "EXTENDED",
	"unrated":        "UNRATED",
	"uncut":          "UNCUT",
	"remastered":     "REMASTERED",
	"theatrical":     "THEATRICAL",
	"criterion":      "CRiTERiON",
	"special":        "SPECIAL.EDITION",
	"collector":      "COLLECTORS.EDITION",
}

var languages = map[string]string{
	"fr": "FRENCH", "fra": "FRENCH", "fre": "FRENCH", "french": "FRENCH",
	"en": "ENGLISH", "eng": "ENGLISH", "english": "ENGLISH",
	"de": "GERMAN", "deu": "GERMAN", "ger": "GERMAN", "german": "GERMAN",
	"es": "SPANISH", "spa": "SPANISH", "spanish": "SPANISH",
	"it": "ITALIAN", "ita": "ITALIAN", "italian": "ITALIAN",
	"ja": "JAPANESE", "jpn": "JAPANESE", "japanese": "JAPANESE",
	"ko": "KOREAN", "kor": "KOREAN", "korean": "KOREAN",
}

var languageInfo = map[string]string{
	"vff":        "VFF",
	"vfq":        "VFQ",
	"vfi":        "VFI",
	"vf2":        "VF2",
	"truefrench": "TRUEFRENCH",
	"vostfr":     "VOSTFR",
}

var platforms = map[string]string{
	"netflix":       "NF",
	"amazon prime":  "AMZN",
	"amazon":        "AMZN",
	"disney+":       "DSNP",
	"disney plus":   "DSNP",
	"apple tv+":     "ATVP",
	"apple tv plus": "ATVP",
	"hbo max":       "HMAX",
	"max":           "MAX",
	"canal+":        "CANAL",
	"hulu":          "HULU",
	"paramount+":    "PMTP",
	"crunchyroll":   "CR",
	"adn":           "ADN",
}

var sources = map[string]string{
	"web":              "WEB-DL",
	"web-dl":           "WEB-DL",
	"webdl":            "WEB-DL",
	"web-rip":          "WEBRip",
	"webrip":           "WEBRip",
	"blu-ray":          "BluRay",
	"bluray":           "BluRay",
	"ultra hd blu-ray": "BluRay",
	"hd-dvd":           "HDDVD",
	"hdtv":             "HDTV",
	"digital tv":       "HDTV",
	"tv":               "HDTV",
	"dvd":              "DVDRip",
	"dvdrip":           "DVDRip",
	"vhs":              "VHSRip",
}

var audioCodecs = map[string]string{
	"dolby digital":      "AC3",
	"ac3":                "AC3",
	"dolby digital plus": "EAC3",
	"eac3":               "EAC3",
	"e-ac-3":             "EAC3",
	"ddp":                "EAC3",
	"dolby truehd":       "TrueHD",
	"truehd":             "TrueHD",
	"dts":                "DTS",
	"dts-hd":             "DTS-HD",
	"dts:x":              "DTS-X",
	"aac":                "AAC",
	"flac":               "FLAC",
	"opus":               "OPUS",
	"mp3":                "MP3",
	"mp2":                "MP2",
	"lpcm":               "LPCM",
	"pcm":                "LPCM",
}

var videoCodecs = map[string]string{
	"h.264":  "x264",
	"h264":   "x264",
	"avc":    "x264",
	"x264":   "x264",
	"h.265":  "x265",
	"h265":   "x265",
	"hevc":   "x265",
	"x265":   "x265",
	"av1":    "AV1",
	"vp9":    "VP9",
	"xvid":   "XviD",
	"divx":   "DivX",
	"mpeg-2": "MPEG2",
}

// ReleaseName assembles a dot-separated scene name from extracted fields.
// It returns false when the fields carry no usable title.
func ReleaseName(f Fields) (string, bool) {
	title := titleToken(f.Title)
	if title == "" {
		return "", false
	}

	tokens := []string{title}
	add := func(s ...string) {
		for _, t := range s {
			if t != "" {
				tokens = append(tokens, t)
			}
		}
	}

	add(f.YearString())
	add(episodeToken(f))
	add(mapAll(f.Other, infoTags)...)
	add(editionTokens(f.Edition)...)
	if f.Edition.Has("IMAX") || f.Other.Has("IMAX") {
		add("IMAX")
	}
	add(languageToken(f))
	add(languageInfoToken(f))
	add(hdrTokens(f.Other)...)
	add(resolutionToken(f.ScreenSize.First()))
	add(platformToken(f.StreamingService.First()))
	add(sourceToken(f))
	add(audioCodecToken(f))
	add(f.AudioChannels.First())
	if f.AudioProfile.Has("Atmos") || f.Other.Has("Atmos") || f.AudioCodec.Has("Atmos") {
		add("Atmos")
	}
	add(lookup(f.VideoCodec.First(), videoCodecs, false))

	group := groupToken(f.ReleaseGroup)
	if group == "" {
		group = "NoTag"
	}
	return strings.Join(tokens, ".") + "-" + group, true
}

func titleToken(title string) string {
	var b strings.Builder
	for _, r := range title {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		case r == '&' || r == '-' || r == '+':
			b.WriteRune(r)
		case r == '\'' || r == '’':
			// dropped: "Director's" -> "Directors"
		default:
			b.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), ".")
}

func episodeToken(f Fields) string {
	season, ok := atoi(f.Season.First())
	if !ok {
		return ""
	}
	out := fmt.Sprintf("S%02d", season)
	for _, e := range f.Episode {
		if n, ok := atoi(e); ok {
			out += fmt.Sprintf("E%02d", n)
		}
	}
	return out
}

func editionTokens(vals Values) []string {
	var out []string
	for _, v := range vals {
		if strings.EqualFold(v, "IMAX") {
			continue
		}
		if t := lookup(v, editions, false); t != "" {
			out = append(out, t)
			continue
		}
		out = append(out, titleToken(strings.ToUpper(v)))
	}
	return out
}

func languageToken(f Fields) string {
	switch len(f.Language) {
	case 0:
		return ""
	case 1:
		if f.Language.Has("mul", "multi", "multiple languages") {
			return "MULTi"
		}
		return lookup(f.Language[0], languages, false)
	default:
		return "MULTi"
	}
}

func languageInfoToken(f Fields) string {
	for _, o := range f.Other {
		if t := lookup(o, languageInfo, false); t != "" {
			return t
		}
	}
	if len(f.Language) == 0 && f.SubtitleLanguage.Has("fr", "fra", "french") {
		return "VOSTFR"
	}
	return ""
}

func hdrTokens(other Values) []string {
	seen := make(map[string]bool)
	for _, o := range other {
		if t, ok := hdrAliases[strings.ToLower(o)]; ok {
			seen[t] = true
		}
	}
	var out []string
	for _, t := range hdrOrder {
		if seen[t] {
			out = append(out, t)
		}
	}
	return out
}

func resolutionToken(size string) string {
	switch strings.ToLower(size) {
	case "":
		return ""
	case "4k", "uhd":
		return "2160p"
	default:
		return size
	}
}

func platformToken(service string) string {
	if service == "" {
		return ""
	}
	if t := lookup(service, platforms, false); t != "" {
		return t
	}
	var b strings.Builder
	for _, r := range service {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(unicode.ToUpper(r))
		}
	}
	return b.String()
}

func sourceToken(f Fields) string {
	src := strings.ToLower(f.Source.First())
	if src == "" {
		return ""
	}
	if src == "web" && f.Other.Has("Rip") {
		return "WEBRip"
	}
	return lookup(src, sources, true)
}

func audioCodecToken(f Fields) string {
	codec := strings.ToLower(f.AudioCodec.First())
	if codec == "atmos" && len(f.AudioCodec) > 1 {
		codec = strings.ToLower(f.AudioCodec[1])
	}
	if codec == "dts-hd" && f.AudioProfile.Has("Master Audio") {
		return "DTS-HD.MA"
	}
	if codec == "atmos" {
		return ""
	}
	return lookup(codec, audioCodecs, true)
}

func groupToken(group string) string {
	return strings.Join(strings.Fields(group), ".")
}

// lookup maps raw through table ignoring case. When keep is set an unknown
// value is returned as-is instead of dropped.
func lookup(raw string, table map[string]string, keep bool) string {
	if raw == "" {
		return ""
	}
	if t, ok := table[strings.ToLower(raw)]; ok {
		return t
	}
	if keep {
		return strings.Join(strings.Fields(raw), ".")
	}
	return ""
}

func mapAll(vals Values, table map[string]string) []string {
	var out []string
	for _, v := range vals {
		if t := lookup(v, table, false); t != "" {
			out = append(out, t)
		}
	}
	return out
}

func atoi(s string) (int, bool) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	return n, err == nil
}
