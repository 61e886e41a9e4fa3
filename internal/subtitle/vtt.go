package subtitle

import (
	"fmt"
	"strings"

	"github.com/asticode/go-astisub"

	"github.com/dunamismax/mediaflow/internal/domain"
)

const vttHeader = "WEBVTT"

func parseVTT(text string) (Track, error) {
	if !strings.HasPrefix(strings.TrimLeft(text, " \t\r\n"), vttHeader) {
		return nil, domain.Errorf(domain.KindParseFailure, "vtt source is missing the WEBVTT header")
	}

	subs, err := astisub.ReadFromWebVTT(strings.NewReader(text))
	if err != nil {
		return nil, domain.Wrap(domain.KindParseFailure, err, "parse vtt")
	}
	return trackFrom(subs), nil
}

func renderVTT(track Track) string {
	var b strings.Builder
	b.WriteString(vttHeader + "\n\n")
	for _, cue := range track {
		fmt.Fprintf(&b, "%s --> %s\n%s\n\n", cue.Start.VTT(), cue.End.VTT(), cue.Text)
	}
	return b.String()
}
