package subtitle

import (
	"fmt"
	"strings"

	"github.com/dunamismax/mediaflow/internal/domain"
)

const assHeader = `[Script Info]
Title: Converted Subtitle
ScriptType: v4.00+
PlayResX: 1280
PlayResY: 720

[V4+ Styles]
Format: Name, Fontname, Fontsize, PrimaryColour, SecondaryColour, OutlineColour, BackColour, Bold, Italic, Underline, StrikeOut, ScaleX, ScaleY, Spacing, Angle, BorderStyle, Outline, Shadow, Alignment, MarginL, MarginR, MarginV, Encoding
Style: Default,Arial,20,&H00FFFFFF,&H000000FF,&H00000000,&H00000000,0,0,0,0,100,100,0,0,1,2,2,2,10,10,10,1

[Events]
Format: Layer, Start, End, Style, Name, MarginL, MarginR, MarginV, Effect, Text
`

// assLayout holds the positions declared by an [Events] Format line.
type assLayout struct {
	fields int
	start  int
	end    int
	text   int
}

func parseASSFormat(value string) (assLayout, error) {
	layout := assLayout{start: -1, end: -1, text: -1}
	names := strings.Split(value, ",")
	layout.fields = len(names)
	for i, name := range names {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "start":
			layout.start = i
		case "end":
			layout.end = i
		case "text":
			layout.text = i
		}
	}
	if layout.start < 0 || layout.end < 0 || layout.text < 0 {
		return assLayout{}, fmt.Errorf("format line must declare Start, End and Text: %q", strings.TrimSpace(value))
	}
	return layout, nil
}

func parseASS(text string) (Track, error) {
	var (
		track    Track
		inEvents bool
		layout   *assLayout
	)

	for n, raw := range splitLines(text) {
		line := strings.TrimSpace(raw)
		if strings.HasPrefix(line, "[") && strings.HasSuffix(line, "]") {
			inEvents = strings.EqualFold(line, "[Events]")
			continue
		}
		if !inEvents {
			continue
		}

		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}

		switch strings.TrimSpace(key) {
		case "Format":
			l, err := parseASSFormat(value)
			if err != nil {
				return nil, domain.Wrap(domain.KindParseFailure, err, "ass line %d", n+1)
			}
			layout = &l
		case "Dialogue":
			if layout == nil {
				return nil, domain.Errorf(domain.KindParseFailure, "ass line %d: Dialogue before Format line", n+1)
			}
			cue, err := layout.parseDialogue(value)
			if err != nil {
				return nil, domain.Wrap(domain.KindParseFailure, err, "ass line %d", n+1)
			}
			track = append(track, cue)
		}
	}

	return track, nil
}

// parseDialogue splits only as far as the declared field count, so commas
// inside the text survive.
func (l assLayout) parseDialogue(value string) (Cue, error) {
	parts := strings.SplitN(strings.TrimLeft(value, " "), ",", l.fields)
	if len(parts) <= max(l.start, l.end, l.text) {
		return Cue{}, fmt.Errorf("dialogue has %d fields, format declares %d", len(parts), l.fields)
	}

	start, err := ParseTimecode(parts[l.start])
	if err != nil {
		return Cue{}, err
	}
	end, err := ParseTimecode(parts[l.end])
	if err != nil {
		return Cue{}, err
	}

	body := strings.NewReplacer(`\N`, "\n", `\n`, "\n").Replace(parts[l.text])
	return Cue{Start: start, End: end, Text: body}, nil
}

func renderASS(track Track) string {
	var b strings.Builder
	b.WriteString(assHeader)
	for _, cue := range track {
		body := strings.ReplaceAll(cue.Text, "\n", `\N`)
		fmt.Fprintf(&b, "Dialogue: 0,%s,%s,Default,,0,0,0,,%s\n", cue.Start.ASS(), cue.End.ASS(), body)
	}
	return b.String()
}
