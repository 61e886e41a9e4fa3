package subtitle

import (
	"fmt"
	"strings"

	"github.com/asticode/go-astisub"

	"github.com/dunamismax/mediaflow/internal/domain"
)

func parseSRT(text string) (Track, error) {
	if err := checkSRTBlocks(text); err != nil {
		return nil, err
	}

	subs, err := astisub.ReadFromSRT(strings.NewReader(text))
	if err != nil {
		return nil, domain.Wrap(domain.KindParseFailure, err, "parse srt")
	}
	return trackFrom(subs), nil
}

// checkSRTBlocks rejects cue blocks with no timing line. The reader would
// otherwise drop them without an error.
func checkSRTBlocks(text string) error {
	lines := splitLines(text)
	for i := 0; i < len(lines); i++ {
		line := strings.TrimSpace(lines[i])
		if line == "" {
			continue
		}
		timed := strings.Contains(line, "-->") ||
			(i+1 < len(lines) && strings.Contains(lines[i+1], "-->"))
		if !timed {
			return domain.Errorf(domain.KindParseFailure, "srt line %d: expected cue timing, got %q", i+1, line)
		}
		for i < len(lines) && strings.TrimSpace(lines[i]) != "" {
			i++
		}
	}
	return nil
}

func renderSRT(track Track) string {
	var b strings.Builder
	for i, cue := range track {
		fmt.Fprintf(&b, "%d\n%s --> %s\n%s\n\n", i+1, cue.Start.SRT(), cue.End.SRT(), cue.Text)
	}
	return b.String()
}
