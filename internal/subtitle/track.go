package subtitle

import (
	"strings"

	"github.com/asticode/go-astisub"

	"github.com/dunamismax/mediaflow/internal/domain"
)

// Cue is one timed text entry. Text uses "\n" for line breaks whatever the
// source syntax was. Start <= End is not enforced.
type Cue struct {
	Start Timecode
	End   Timecode
	Text  string
}

// Track is an ordered cue list in presentation order.
type Track []Cue

// Parse reads a track in the given source syntax.
func Parse(f domain.SubtitleFormat, text string) (Track, error) {
	var (
		track Track
		err   error
	)

	switch f {
	case domain.SubtitleSRT:
		track, err = parseSRT(text)
	case domain.SubtitleVTT:
		track, err = parseVTT(text)
	case domain.SubtitleASS, domain.SubtitleSSA:
		track, err = parseASS(text)
	case domain.SubtitleUnknown:
		return nil, domain.Errorf(domain.KindUnsupportedFormat, "unsupported subtitle source")
	}
	if err != nil {
		return nil, err
	}
	if len(track) == 0 {
		return nil, domain.Errorf(domain.KindParseFailure, "%s source contains no cues", f)
	}
	return track, nil
}

// Render serializes a track in the target syntax.
func Render(f domain.SubtitleFormat, track Track) (string, error) {
	switch f {
	case domain.SubtitleSRT:
		return renderSRT(track), nil
	case domain.SubtitleVTT:
		return renderVTT(track), nil
	case domain.SubtitleASS, domain.SubtitleSSA:
		return renderASS(track), nil
	case domain.SubtitleUnknown:
	}
	return "", domain.Errorf(domain.KindUnsupportedFormat, "unsupported subtitle target")
}

func splitLines(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	return strings.Split(text, "\n")
}

// trackFrom flattens decoded items into cues. Styled spans in a line are
// joined back into plain text.
func trackFrom(subs *astisub.Subtitles) Track {
	track := make(Track, 0, len(subs.Items))
	for _, item := range subs.Items {
		lines := make([]string, 0, len(item.Lines))
		for _, line := range item.Lines {
			lines = append(lines, strings.TrimRight(line.String(), " \t"))
		}
		track = append(track, Cue{
			Start: Timecode(item.StartAt.Milliseconds()),
			End:   Timecode(item.EndAt.Milliseconds()),
			Text:  strings.Join(lines, "\n"),
		})
	}
	return track
}
