package pavolmon

import (
	"fmt"
	"strings"
)

// Labels are the four user-facing strings printed in front of each device's volume
type Labels struct {
	Speaker      string `mapstructure:"speaker"`
	SpeakerMuted string `mapstructure:"speaker_muted"`
	Mic          string `mapstructure:"mic"`
	MicMuted     string `mapstructure:"mic_muted"`
}

// DefaultLabels are used when neither the command line nor the config provides any
var DefaultLabels = Labels{
	Speaker:      "VOL+",
	SpeakerMuted: "VOL-",
	Mic:          "MIC+",
	MicMuted:     "MIC-",
}

func (l Labels) speaker(muted bool) string {
	if muted {
		return l.SpeakerMuted
	}
	return l.Speaker
}

func (l Labels) mic(muted bool) string {
	if muted {
		return l.MicMuted
	}
	return l.Mic
}

// Formatter renders a single status line (without the trailing newline)
type Formatter interface {
	Format(labels Labels, sink, source VolumeState) string
}

const (
	FormatPercent = "percent"
	FormatBars    = "bars"
	FormatBlocks  = "blocks"
)

// KnownFormats lists every name accepted by NewFormatter
var KnownFormats = []string{FormatPercent, FormatBars, FormatBlocks}

// NewFormatter returns the formatter registered under name
func NewFormatter(name string) (Formatter, error) {
	switch strings.ToLower(name) {
	case FormatPercent, "":
		return percentFormatter{}, nil
	case FormatBars:
		return barsFormatter{}, nil
	case FormatBlocks:
		return blocksFormatter{}, nil
	default:
		return nil, fmt.Errorf("unknown output format %q (must be one of %s)", name, strings.Join(KnownFormats, ", "))
	}
}

// percentFormatter prints fixed-width percentages, e.g. "VOL+ 50% MIC- 75%"
type percentFormatter struct{}

func (percentFormatter) Format(labels Labels, sink, source VolumeState) string {
	return fmt.Sprintf("%s%3d%% %s%3d%%",
		labels.speaker(sink.Muted), sink.Percent(),
		labels.mic(source.Muted), source.Percent())
}

// barGlyphs are indexed by BarGlyphIndex; the last one marks a muted device
var barGlyphs = [...]string{" ", "▁", "▂", "▃", "▄", "▅", "▆", "▇", "█", "X"}

const mutedBarGlyph = len(barGlyphs) - 1

// BarGlyphIndex maps a percentage to one of the ten bar glyphs
func BarGlyphIndex(percent int, muted bool) int {
	switch {
	case muted:
		return mutedBarGlyph
	case percent >= 100:
		return 8
	case percent >= 88:
		return 7
	case percent >= 75:
		return 6
	case percent >= 63:
		return 5
	case percent >= 50:
		return 4
	case percent >= 38:
		return 3
	case percent >= 20:
		return 2
	case percent > 0:
		return 1
	default:
		return 0
	}
}

// barsFormatter replaces the percentage with a single bar glyph, e.g. "VOL+▄ MIC-X"
type barsFormatter struct{}

func (barsFormatter) Format(labels Labels, sink, source VolumeState) string {
	return labels.speaker(sink.Muted) + barGlyphs[BarGlyphIndex(sink.Percent(), sink.Muted)] + " " +
		labels.mic(source.Muted) + barGlyphs[BarGlyphIndex(source.Percent(), source.Muted)]
}

var blockGlyphs = [...]string{"▁", "▂", "▃", "▄", "▅", "▆", "▇", "█"}

// BlockGlyphIndex maps a percentage to one of the eight block glyphs. There is
// no muted glyph, mute only shows through the label.
func BlockGlyphIndex(percent int) int {
	switch {
	case percent >= 88:
		return 7
	case percent >= 75:
		return 6
	case percent >= 63:
		return 5
	case percent >= 50:
		return 4
	case percent >= 38:
		return 3
	case percent >= 25:
		return 2
	case percent >= 13:
		return 1
	default:
		return 0
	}
}

// blocksFormatter prints a block glyph alongside the percentage, e.g. "VOL+▅ 50%"
type blocksFormatter struct{}

func (blocksFormatter) Format(labels Labels, sink, source VolumeState) string {
	return fmt.Sprintf("%s%s%3d%% %s%s%3d%%",
		labels.speaker(sink.Muted), blockGlyphs[BlockGlyphIndex(sink.Percent())], sink.Percent(),
		labels.mic(source.Muted), blockGlyphs[BlockGlyphIndex(source.Percent())], source.Percent())
}
