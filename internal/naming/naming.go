// Package naming derives the destination keys for a run's outputs.
package naming

import (
	"strings"
	"time"
)

const (
	DefaultPrefix      = "shokken-sales/"
	DefaultStripPrefix = "Transcription-Output-for-"
	DefaultStripSuffix = ".wav-speaker-identification.txt"
	DefaultDateLayout  = "20060102"

	summaryExt  = ".txt"
	metadataExt = ".metadata.json"
)

// Namer is a pure function of (source key, date); it holds no state beyond its settings.
type Namer struct {
	Prefix      string
	StripPrefix string
	StripSuffix string
	DateLayout  string
}

// Default returns the Namer used when no overrides are configured.
func Default() Namer {
	return Namer{
		Prefix:      DefaultPrefix,
		StripPrefix: DefaultStripPrefix,
		StripSuffix: DefaultStripSuffix,
		DateLayout:  DefaultDateLayout,
	}
}

// ID returns the base name of sourceKey with the configured prefix and suffix removed. Keys that
// do not carry them are returned unchanged.
func (n Namer) ID(sourceKey string) string {
	base := sourceKey
	if i := strings.LastIndex(base, "/"); i >= 0 {
		base = base[i+1:]
	}
	if n.StripPrefix != "" {
		base = strings.TrimPrefix(base, n.StripPrefix)
	}
	if n.StripSuffix != "" {
		base = strings.TrimSuffix(base, n.StripSuffix)
	}
	return base
}

// NameFor returns the summary key and the metadata key for sourceKey on date.
func (n Namer) NameFor(sourceKey string, date time.Time) (summaryKey, metadataKey string) {
	layout := n.DateLayout
	if layout == "" {
		layout = DefaultDateLayout
	}
	summaryKey = n.Prefix + date.Format(layout) + "-" + n.ID(sourceKey) + summaryExt
	return summaryKey, summaryKey + metadataExt
}
