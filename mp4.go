package audiotag

import "encoding/binary"

// ISO-BMFF atom tree walk for M4A/iTunes tags. MP4 is read-only: tags are
// enumerated from moov/udta/meta/ilst, never written back.

func looksLikeM4A(b ByteSlice) bool {
	if len(b) < 12 {
		return false
	}
	if string(b[4:8]) != "ftyp" {
		return false
	}
	brand := string(b[8:12])
	switch brand {
	case "M4A ", "M4B ", "mp42", "isom", "qt  ":
		return true
	}
	return false
}

type mp4Atom struct {
	Type       string
	Offset     int // offset of the 8-byte header
	DataOffset int // offset of the atom's payload
	DataSize   int
	Size       int // total size, header included
}

// readAtomHeader reads one atom header at off: 4-byte big-endian size plus
// 4-byte type, with an optional 64-bit "largesize" extension when size==1.
func readAtomHeader(b ByteSlice, off int) (mp4Atom, bool) {
	if off+8 > len(b) {
		return mp4Atom{}, false
	}
	size := int(binary.BigEndian.Uint32(b[off : off+4]))
	typ := string(b[off+4 : off+8])

	headerLen := 8
	if size == 1 {
		if off+16 > len(b) {
			return mp4Atom{}, false
		}
		size = int(binary.BigEndian.Uint64(b[off+8 : off+16]))
		headerLen = 16
	} else if size == 0 {
		size = len(b) - off
	}

	if size < headerLen || off+size > len(b) {
		return mp4Atom{}, false
	}

	return mp4Atom{
		Type:       typ,
		Offset:     off,
		DataOffset: off + headerLen,
		DataSize:   size - headerLen,
		Size:       size,
	}, true
}

// findChildAtom scans the direct children of a container spanning
// [start, end) for one with the given type.
func findChildAtom(b ByteSlice, start, end int, want string) (mp4Atom, bool) {
	off := start
	for off < end {
		a, ok := readAtomHeader(b, off)
		if !ok || a.Size <= 0 {
			return mp4Atom{}, false
		}
		if a.Type == want {
			return a, true
		}
		off += a.Size
	}
	return mp4Atom{}, false
}

// descendPath walks a fixed chain of container atoms (moov, udta, meta, ilst, ...).
func descendPath(b ByteSlice, path ...string) (mp4Atom, bool) {
	start, end := 0, len(b)
	var cur mp4Atom
	for i, name := range path {
		a, ok := findChildAtom(b, start, end, name)
		if !ok {
			return mp4Atom{}, false
		}
		cur = a
		start, end = a.DataOffset, a.DataOffset+a.DataSize
		// "meta" atoms carry a 4-byte version/flags field before their children.
		if name == "meta" && i < len(path)-1 {
			start += 4
		}
	}
	return cur, true
}

// parseMP4 reads the moov/trak audio sample description for technical info
// and the moov/udta/meta/ilst tree for iTunes tags, bounded by
// opts.MaxMP4Depth atoms visited in ilst (a flat list, so this bounds ilst
// entries rather than recursion depth, which the atom tree here never
// exceeds a handful of levels of).
func parseMP4(path string, b ByteSlice, opts Options) (*ParsedFile, *ParseError) {
	if !looksLikeM4A(b) {
		return nil, newErr(KindFormat, "not an ISO-BMFF/M4A file", nil)
	}

	pf := &ParsedFile{Path: path, Info: AudioInfo{Format: FormatM4A}, generic: newTagSet()}

	track, perr := findAudioSampleInfo(b)
	if perr != nil {
		return nil, perr
	}
	pf.Info.SampleRate = track.SampleRate
	pf.Info.Channels = track.Channels
	pf.Info.BitsPerSample = track.BitsPerSample
	pf.Info.Codec = track.Codec
	pf.Info.DurationSecs = track.DurationSecs
	if pf.Info.DurationSecs > 0 {
		pf.Info.Bitrate = int(float64(len(b)) * 8 / pf.Info.DurationSecs)
	}

	ilst, ok := descendPath(b, "moov", "udta", "meta", "ilst")
	if !ok {
		// No tags is not an error; technical info alone is still valid.
		return pf, nil
	}

	off := ilst.DataOffset
	end := ilst.DataOffset + ilst.DataSize
	visited := 0
	for off < end && visited < opts.MaxMP4Depth*64 {
		tagAtom, ok := readAtomHeader(b, off)
		if !ok || tagAtom.Size <= 0 {
			break
		}
		visited++

		// Tag keys are stored as the raw 4-byte atom code, including the
		// non-printable copyright-symbol-prefixed codes like "\xA9nam" —
		// never normalized to an ASCII-only alias, so the TagSet keeps the
		// file's own vocabulary.
		switch tagAtom.Type {
		case "trkn", "disk":
			if num, total, ok := parseMP4IntPair(b, tagAtom); ok {
				pf.generic.Add(tagAtom.Type, TagValue{Kind: TagPair, Num: num, Total: total})
			}
		default:
			if v, ok := parseMP4DataTag(b, tagAtom); ok {
				pf.generic.Add(tagAtom.Type, v)
			}
		}

		off += tagAtom.Size
	}

	return pf, nil
}

// parseMP4DataTag reads the nested "data" atom under an ilst child and
// decodes it per its type indicator: 1=UTF-8 text, 21=big-endian integer,
// 13/14=JPEG/PNG picture, 0=implicit (treated as binary, since the atom
// code itself carries no further hint).
func parseMP4DataTag(b ByteSlice, tagAtom mp4Atom) (TagValue, bool) {
	data, ok := findChildAtom(b, tagAtom.DataOffset, tagAtom.DataOffset+tagAtom.DataSize, "data")
	if !ok || data.DataSize < 8 {
		return TagValue{}, false
	}
	typeIndicator := binary.BigEndian.Uint32(b[data.DataOffset : data.DataOffset+4])
	valOff := data.DataOffset + 8
	valLen := data.DataSize - 8
	if valLen < 0 || valOff+valLen > len(b) {
		return TagValue{}, false
	}
	raw := b[valOff : valOff+valLen]

	switch typeIndicator {
	case 1:
		return TagValue{Kind: TagText, Text: sanitizeUTF8(string(raw))}, true
	case 21:
		var n int64
		for _, c := range raw {
			n = n<<8 | int64(c)
		}
		return TagValue{Kind: TagInt, Int: n}, true
	case 13:
		return TagValue{Kind: TagPicture, Picture: Picture{MIME: "image/jpeg", Data: append([]byte(nil), raw...)}}, true
	case 14:
		return TagValue{Kind: TagPicture, Picture: Picture{MIME: "image/png", Data: append([]byte(nil), raw...)}}, true
	default:
		return TagValue{Kind: TagBinary, Binary: append([]byte(nil), raw...)}, true
	}
}

// parseMP4IntPair decodes the binary trkn/disk payload: 2 bytes reserved, 2
// bytes number, 2 bytes total, 2 bytes reserved.
func parseMP4IntPair(b ByteSlice, tagAtom mp4Atom) (num, total int, ok bool) {
	data, found := findChildAtom(b, tagAtom.DataOffset, tagAtom.DataOffset+tagAtom.DataSize, "data")
	if !found || data.DataSize < 8+6 {
		return 0, 0, false
	}
	off := data.DataOffset + 8 + 2
	if off+4 > len(b) {
		return 0, 0, false
	}
	num = int(binary.BigEndian.Uint16(b[off : off+2]))
	total = int(binary.BigEndian.Uint16(b[off+2 : off+4]))
	return num, total, true
}

// mp4Track is the technical description of the first audio track: mdhd's
// timescale/duration plus the stsd sample entry's codec, channel count, and
// sample width.
type mp4Track struct {
	SampleRate    int
	Channels      int
	BitsPerSample int
	Codec         string
	DurationSecs  float64
}

// findAudioSampleInfo descends moov/trak/mdia to read the first audio
// track's mdhd (timescale, duration) and stsd (codec id, channels, bits per
// sample).
func findAudioSampleInfo(b ByteSlice) (mp4Track, *ParseError) {
	moov, ok := findChildAtom(b, 0, len(b), "moov")
	if !ok {
		return mp4Track{}, newErr(KindMalformed, "no moov atom", nil)
	}
	off, end := moov.DataOffset, moov.DataOffset+moov.DataSize
	sawTrak := false
	for off < end {
		trak, ok := readAtomHeader(b, off)
		if !ok || trak.Size <= 0 {
			break
		}
		if trak.Type == "trak" {
			sawTrak = true
			if track, ok := readTrack(b, trak); ok {
				return track, nil
			}
		}
		off += trak.Size
	}
	if !sawTrak {
		return mp4Track{}, newErr(KindMalformed, "moov has no trak atom", nil)
	}
	return mp4Track{}, newErr(KindMalformed, "no audio trak with a readable mdhd", nil)
}

func readTrack(b ByteSlice, trak mp4Atom) (mp4Track, bool) {
	mdia, ok := findChildAtom(b, trak.DataOffset, trak.DataOffset+trak.DataSize, "mdia")
	if !ok {
		return mp4Track{}, false
	}
	rate, dur, ok := readMdhd(b, mdia)
	if !ok {
		return mp4Track{}, false
	}
	track := mp4Track{SampleRate: rate, DurationSecs: dur, Channels: 2, Codec: "aac"}
	if entry, ok := readStsdEntry(b, mdia); ok {
		track.Codec = entry.Codec
		if entry.Channels > 0 {
			track.Channels = entry.Channels
		}
		track.BitsPerSample = entry.BitsPerSample
		if entry.SampleRate > 0 {
			track.SampleRate = entry.SampleRate
		}
	}
	return track, true
}

func readMdhd(b ByteSlice, mdia mp4Atom) (sampleRate int, durationSecs float64, ok bool) {
	mdhd, ok := findChildAtom(b, mdia.DataOffset, mdia.DataOffset+mdia.DataSize, "mdhd")
	if !ok || mdhd.DataSize < 4 {
		return 0, 0, false
	}
	version := b[mdhd.DataOffset]
	var timescaleOff, durationOff, fieldLen int
	if version == 1 {
		timescaleOff = mdhd.DataOffset + 1 + 3 + 8 + 8
		durationOff = timescaleOff + 4
		fieldLen = 8
	} else {
		timescaleOff = mdhd.DataOffset + 1 + 3 + 4 + 4
		durationOff = timescaleOff + 4
		fieldLen = 4
	}
	if durationOff+fieldLen > len(b) {
		return 0, 0, false
	}
	timescale := int(binary.BigEndian.Uint32(b[timescaleOff : timescaleOff+4]))
	var duration uint64
	if fieldLen == 8 {
		duration = binary.BigEndian.Uint64(b[durationOff : durationOff+8])
	} else {
		duration = uint64(binary.BigEndian.Uint32(b[durationOff : durationOff+4]))
	}
	if timescale <= 0 {
		return 0, 0, false
	}
	return timescale, float64(duration) / float64(timescale), true
}

type mp4SampleEntry struct {
	Codec         string
	Channels      int
	BitsPerSample int
	SampleRate    int
}

// readStsdEntry reads the first sample description from mdia/minf/stbl/stsd:
// the entry's four-char format code maps to the codec tag (mp4a → aac,
// alac → alac), and the audio sample entry fields give channel count, sample
// width, and a 16.16 fixed-point sample rate.
func readStsdEntry(b ByteSlice, mdia mp4Atom) (mp4SampleEntry, bool) {
	minf, ok := findChildAtom(b, mdia.DataOffset, mdia.DataOffset+mdia.DataSize, "minf")
	if !ok {
		return mp4SampleEntry{}, false
	}
	stbl, ok := findChildAtom(b, minf.DataOffset, minf.DataOffset+minf.DataSize, "stbl")
	if !ok {
		return mp4SampleEntry{}, false
	}
	stsd, ok := findChildAtom(b, stbl.DataOffset, stbl.DataOffset+stbl.DataSize, "stsd")
	if !ok || stsd.DataSize < 8+8 {
		return mp4SampleEntry{}, false
	}

	// stsd payload: 4 bytes version/flags, 4 bytes entry count, then the
	// first sample entry (itself an atom: size, format code, fields).
	entryOff := stsd.DataOffset + 8
	entry, ok := readAtomHeader(b, entryOff)
	if !ok {
		return mp4SampleEntry{}, false
	}

	out := mp4SampleEntry{}
	switch entry.Type {
	case "mp4a":
		out.Codec = "aac"
	case "alac":
		out.Codec = "alac"
	default:
		out.Codec = entry.Type
	}

	// Audio sample entry layout after the 8-byte atom header: 6 bytes
	// reserved, 2 bytes data-reference index, 2+2+4 bytes version/revision/
	// vendor, then channel count (2), sample size (2), 2+2 reserved, and
	// sample rate as 16.16 fixed point (4).
	fields := entry.DataOffset
	if fields+28 <= len(b) {
		out.Channels = int(binary.BigEndian.Uint16(b[fields+16 : fields+18]))
		out.BitsPerSample = int(binary.BigEndian.Uint16(b[fields+18 : fields+20]))
		out.SampleRate = int(binary.BigEndian.Uint32(b[fields+24:fields+28]) >> 16)
	}
	return out, true
}
