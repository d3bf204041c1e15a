package naming

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Values is a guessit property that may come back as a scalar or a list.
type Values []string

func (v *Values) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || string(data) == "null" {
		*v = nil
		return nil
	}
	if data[0] == '[' {
		var raw []json.RawMessage
		if err := json.Unmarshal(data, &raw); err != nil {
			return err
		}
		out := make(Values, 0, len(raw))
		for _, r := range raw {
			s, err := scalar(r)
			if err != nil {
				return err
			}
			if s != "" {
				out = append(out, s)
			}
		}
		*v = out
		return nil
	}
	s, err := scalar(data)
	if err != nil {
		return err
	}
	if s == "" {
		*v = nil
		return nil
	}
	*v = Values{s}
	return nil
}

func scalar(data []byte) (string, error) {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		return strings.TrimSpace(s), nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err == nil {
		return n.String(), nil
	}
	var b bool
	if err := json.Unmarshal(data, &b); err == nil {
		return strconv.FormatBool(b), nil
	}
	return "", fmt.Errorf("unsupported guessit value %s", data)
}

// First returns the first value or "".
func (v Values) First() string {
	if len(v) == 0 {
		return ""
	}
	return v[0]
}

// Has reports whether any value equals one of want, ignoring case.
func (v Values) Has(want ...string) bool {
	for _, s := range v {
		for _, w := range want {
			if strings.EqualFold(s, w) {
				return true
			}
		}
	}
	return false
}

// Fields is the structured result of name extraction. JSON names follow
// guessit's property names.
type Fields struct {
	Title            string `json:"title"`
	Year             Values `json:"year"`
	Season           Values `json:"season"`
	Episode          Values `json:"episode"`
	ScreenSize       Values `json:"screen_size"`
	Source           Values `json:"source"`
	VideoCodec       Values `json:"video_codec"`
	AudioCodec       Values `json:"audio_codec"`
	AudioChannels    Values `json:"audio_channels"`
	AudioProfile     Values `json:"audio_profile"`
	Language         Values `json:"language"`
	SubtitleLanguage Values `json:"subtitle_language"`
	StreamingService Values `json:"streaming_service"`
	Edition          Values `json:"edition"`
	Other            Values `json:"other"`
	ReleaseGroup     string `json:"release_group"`
}

// YearString returns the first year or "".
func (f Fields) YearString() string {
	return f.Year.First()
}
