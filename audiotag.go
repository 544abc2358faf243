// Package audiotag reads (and, for MP3/FLAC/Ogg Vorbis, writes) metadata
// tags and basic technical audio info from MP3, FLAC, Ogg Vorbis, and M4A
// (read-only) files, without decoding any audio samples.
package audiotag

// Format identifies the container/tag family a file was recognized as.
type Format int

const (
	FormatUnknown Format = iota
	FormatMP3
	FormatFLAC
	FormatOggVorbis
	FormatM4A
)

func (f Format) String() string {
	switch f {
	case FormatMP3:
		return "mp3"
	case FormatFLAC:
		return "flac"
	case FormatOggVorbis:
		return "ogg-vorbis"
	case FormatM4A:
		return "m4a"
	default:
		return "unknown"
	}
}

// AudioInfo carries technical properties derived from the audio stream
// itself rather than from tags: sample rate, channel count, bitrate, and
// estimated duration.
type AudioInfo struct {
	Format        Format  `json:"format"`
	Codec         string  `json:"codec"`
	SampleRate    int     `json:"sample_rate"`
	Channels      int     `json:"channels"`
	BitsPerSample int     `json:"bits_per_sample,omitempty"`
	Bitrate       int     `json:"bitrate"`
	DurationSecs  float64 `json:"duration_seconds"`
	VBR           bool    `json:"vbr"`
}

// ParsedFile is the result of a successful Parse call: the detected format,
// decoded technical AudioInfo, and a TagSet of metadata tags. For MP3 files
// the TagSet is backed by a lazily-decoded ID3v2 frame index; accessing a
// tag key decodes only the frames that can satisfy it.
type ParsedFile struct {
	Path string
	Info AudioInfo

	id3v2   *id3v2Index // non-nil only for MP3 files carrying an ID3v2 tag
	id3v1   *TagSet     // non-nil only for MP3 files carrying an ID3v1 tag
	generic *TagSet     // FLAC/Ogg/M4A: fully materialized at parse time
}

// Tag returns the first value stored under key (case-sensitive, canonical
// upper-case keys like "TITLE", "ARTIST", "TRACKNUMBER"). For MP3 files this
// triggers decoding of whichever ID3v2 frames map to key, memoized after the
// first call.
func (p *ParsedFile) Tag(key string) (TagValue, bool) {
	if p.generic != nil {
		return p.generic.First(key)
	}
	if p.id3v2 != nil {
		if vs := p.id3v2.tag(key); len(vs) > 0 {
			return vs[0], true
		}
	}
	if p.id3v1 != nil {
		return p.id3v1.First(key)
	}
	return TagValue{}, false
}

// Tags materializes and returns the full merged TagSet (ID3v2 values take
// precedence over ID3v1 values for the same key, v2 entries first). For MP3
// files this decodes every frame the index holds, trading the lazy-access
// benefit for a complete snapshot — callers that only need a few keys should
// prefer Tag.
func (p *ParsedFile) Tags() *TagSet {
	if p.generic != nil {
		return p.generic
	}
	merged := newTagSet()
	if p.id3v2 != nil {
		all := p.id3v2.allTags()
		for _, key := range all.Keys() {
			for _, v := range all.All(key) {
				merged.Add(key, v)
			}
		}
	}
	if p.id3v1 != nil {
		for _, key := range p.id3v1.Keys() {
			if _, ok := merged.First(key); ok {
				continue
			}
			for _, v := range p.id3v1.All(key) {
				merged.Add(key, v)
			}
		}
	}
	return merged
}
