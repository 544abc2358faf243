package audiotag

import "bytes"

// MPEG version/layer bit values, per ISO/IEC 11172-3 frame header layout.
const (
	mpegVersion2_5 = 0b00
	mpegVersion2   = 0b10
	mpegVersion1   = 0b11

	mpegLayer3 = 0b01
	mpegLayer2 = 0b10
	mpegLayer1 = 0b11
)

var mp3BitrateTable = map[byte]map[byte][16]int{
	mpegVersion1: {
		mpegLayer1: {0, 32, 64, 96, 128, 160, 192, 224, 256, 288, 320, 352, 384, 416, 448, -1},
		mpegLayer2: {0, 32, 48, 56, 64, 80, 96, 112, 128, 160, 192, 224, 256, 320, 384, -1},
		mpegLayer3: {0, 32, 40, 48, 56, 64, 80, 96, 112, 128, 160, 192, 224, 256, 320, -1},
	},
	mpegVersion2: {
		mpegLayer1: {0, 32, 48, 56, 64, 80, 96, 112, 128, 144, 160, 176, 192, 224, 256, -1},
		mpegLayer2: {0, 8, 16, 24, 32, 40, 48, 56, 64, 80, 96, 112, 128, 144, 160, -1},
		mpegLayer3: {0, 8, 16, 24, 32, 40, 48, 56, 64, 80, 96, 112, 128, 144, 160, -1},
	},
}

var mp3SampleRateTable = map[byte][4]int{
	mpegVersion1:   {44100, 48000, 32000, -1},
	mpegVersion2:   {22050, 24000, 16000, -1},
	mpegVersion2_5: {11025, 12000, 8000, -1},
}

type mpegFrameHeader struct {
	Version    byte
	Layer      byte
	Bitrate    int
	SampleRate int
	Channels   int
	Padding    int
	FrameSize  int
}

// parseMPEGFrameHeader decodes a 4-byte MPEG audio frame header at b[off:],
// covering all three MPEG versions (1/2/2.5) and all three layers.
func parseMPEGFrameHeader(b ByteSlice, off int) (mpegFrameHeader, bool) {
	if off+4 > len(b) {
		return mpegFrameHeader{}, false
	}
	w := uint32(b[off])<<24 | uint32(b[off+1])<<16 | uint32(b[off+2])<<8 | uint32(b[off+3])
	if w&0xFFE00000 != 0xFFE00000 {
		return mpegFrameHeader{}, false
	}

	version := byte((w >> 19) & 0x3)
	layer := byte((w >> 17) & 0x3)
	if version == 0b01 || layer == 0b00 {
		return mpegFrameHeader{}, false
	}
	bitrateIdx := byte((w >> 12) & 0xF)
	sampleIdx := byte((w >> 10) & 0x3)
	padding := int((w >> 9) & 0x1)
	channelMode := int((w >> 6) & 0x3)

	bitrateVersion := version
	if version == mpegVersion2_5 {
		bitrateVersion = mpegVersion2
	}
	layerTable, ok := mp3BitrateTable[bitrateVersion]
	if !ok {
		return mpegFrameHeader{}, false
	}
	bitrates, ok := layerTable[layer]
	if !ok || bitrateIdx >= 15 {
		return mpegFrameHeader{}, false
	}
	bitrateKbps := bitrates[bitrateIdx]
	if bitrateKbps <= 0 {
		return mpegFrameHeader{}, false
	}

	rates, ok := mp3SampleRateTable[version]
	if !ok || sampleIdx >= 3 {
		return mpegFrameHeader{}, false
	}
	sampleRate := rates[sampleIdx]
	if sampleRate <= 0 {
		return mpegFrameHeader{}, false
	}

	channels := 2
	if channelMode == 0b11 {
		channels = 1
	}

	var frameSize int
	bitrateBps := bitrateKbps * 1000
	if layer == mpegLayer1 {
		frameSize = (12*bitrateBps/sampleRate + padding) * 4
	} else {
		samplesPerFrame := 144
		if version != mpegVersion1 && layer == mpegLayer3 {
			samplesPerFrame = 72
		}
		frameSize = samplesPerFrame*bitrateBps/sampleRate + padding
	}

	return mpegFrameHeader{
		Version:    version,
		Layer:      layer,
		Bitrate:    bitrateBps,
		SampleRate: sampleRate,
		Channels:   channels,
		Padding:    padding,
		FrameSize:  frameSize,
	}, true
}

// parseMP3 locates the first MPEG frame (after any ID3v2 tag), computes
// technical AudioInfo (preferring a Xing/Info or VBRI VBR header when
// present for accurate bitrate/duration, falling back to a CBR estimate
// from file size), and merges ID3v2 (if present) with ID3v1 (if present)
// tags into the returned ParsedFile.
func parseMP3(path string, b ByteSlice, opts Options) (*ParsedFile, *ParseError) {
	pf := &ParsedFile{Path: path, Info: AudioInfo{Format: FormatMP3, Codec: "mp3"}}

	searchFrom := 0
	if idx, ok, err := parseID3v2Index(b, opts.MaxID3Frames); err != nil {
		return nil, err
	} else if ok {
		pf.id3v2 = idx
		tagSize := 10 + syncsafeToInt(b[6:10])
		searchFrom = tagSize
	}

	if ts, ok := parseID3v1(b); ok {
		pf.id3v1 = ts
	}

	hdrOff, hdr, ok := findFirstMPEGFrame(b, searchFrom)
	if !ok {
		return nil, newErr(KindFormat, "no MPEG audio frame found", nil)
	}

	pf.Info.SampleRate = hdr.SampleRate
	pf.Info.Channels = hdr.Channels

	if vbrFrames, vbrBytes, vbr := findVBRHeader(b, hdrOff, hdr); vbr {
		pf.Info.VBR = true
		durationSecs := float64(vbrFrames) * samplesPerMPEGFrame(hdr) / float64(hdr.SampleRate)
		pf.Info.DurationSecs = durationSecs
		if durationSecs > 0 {
			pf.Info.Bitrate = int(float64(vbrBytes) * 8 / durationSecs)
		}
		return pf, nil
	}

	pf.Info.Bitrate = hdr.Bitrate
	audioBytes := len(b) - hdrOff
	if pf.id3v1 != nil {
		audioBytes -= id3v1Size
	}
	if audioBytes < 0 {
		audioBytes = 0
	}
	pf.Info.DurationSecs = float64(audioBytes) * 8 / float64(hdr.Bitrate)

	return pf, nil
}

func samplesPerMPEGFrame(hdr mpegFrameHeader) float64 {
	if hdr.Layer == mpegLayer1 {
		return 384
	}
	if hdr.Version != mpegVersion1 && hdr.Layer == mpegLayer3 {
		return 576
	}
	return 1152
}

// findFirstMPEGFrame scans for a valid frame sync, verifying that the very
// next frame (at off+FrameSize) also looks like a sync word, to reject
// false-positive 0xFFE matches inside tag/padding data.
func findFirstMPEGFrame(b ByteSlice, from int) (int, mpegFrameHeader, bool) {
	firstLoose := -1
	var firstLooseHdr mpegFrameHeader
	for off := from; off < len(b)-4; off++ {
		if b[off] != 0xFF {
			continue
		}
		hdr, ok := parseMPEGFrameHeader(b, off)
		if !ok || hdr.FrameSize <= 0 {
			continue
		}
		if firstLoose < 0 {
			firstLoose, firstLooseHdr = off, hdr
		}
		if next := off + hdr.FrameSize; next+4 <= len(b) {
			if _, ok := parseMPEGFrameHeader(b, next); !ok {
				continue
			}
		}
		return off, hdr, true
	}
	// No sync with a confirming second frame; fall back to the first
	// header-valid sync (a file whose only frame is followed by padding or
	// an ID3v1 trailer is still a legitimate stream).
	if firstLoose >= 0 {
		return firstLoose, firstLooseHdr, true
	}
	return 0, mpegFrameHeader{}, false
}

// findConfirmedMPEGFrame is findFirstMPEGFrame without the single-frame
// fallback: a sync only counts if the frame it declares is followed by
// another valid sync. Used by the sniffer, where a lone 0xFF Ex pair in
// arbitrary data must not claim the file as MP3.
func findConfirmedMPEGFrame(b ByteSlice, from int) bool {
	for off := from; off < len(b)-4; off++ {
		if b[off] != 0xFF {
			continue
		}
		hdr, ok := parseMPEGFrameHeader(b, off)
		if !ok || hdr.FrameSize <= 0 {
			continue
		}
		next := off + hdr.FrameSize
		if next+4 > len(b) {
			continue
		}
		if _, ok := parseMPEGFrameHeader(b, next); ok {
			return true
		}
	}
	return false
}

var xingMagics = [][]byte{[]byte("Xing"), []byte("Info")}

// findVBRHeader looks for a Xing/Info header (at the position the Layer III
// side-information reserves for it) or a VBRI header (fixed offset 32 past
// the 4-byte frame header, i.e. 36 bytes into the frame) in the first frame.
func findVBRHeader(b ByteSlice, frameOff int, hdr mpegFrameHeader) (frames int, bytesTotal int, ok bool) {
	// Layer III side-information length: 32 bytes for MPEG-1 stereo, 17 for
	// MPEG-1 mono or MPEG-2/2.5 stereo, 9 for MPEG-2/2.5 mono. The Xing/Info
	// magic sits immediately after it.
	sideInfoLen := 32
	if hdr.Version != mpegVersion1 {
		sideInfoLen = 17
		if hdr.Channels == 1 {
			sideInfoLen = 9
		}
	} else if hdr.Channels == 1 {
		sideInfoLen = 17
	}
	base := frameOff + 4 + sideInfoLen
	for _, magic := range xingMagics {
		if hasPrefixAt(b, base, magic) {
			return parseXingBody(b, base+4)
		}
	}

	vbriOff := frameOff + 4 + 32
	if hasPrefixAt(b, vbriOff, []byte("VBRI")) && vbriOff+26 <= len(b) {
		frameCount := int(b[vbriOff+14])<<24 | int(b[vbriOff+15])<<16 | int(b[vbriOff+16])<<8 | int(b[vbriOff+17])
		byteCount := int(b[vbriOff+10])<<24 | int(b[vbriOff+11])<<16 | int(b[vbriOff+12])<<8 | int(b[vbriOff+13])
		return frameCount, byteCount, true
	}

	return 0, 0, false
}

func parseXingBody(b ByteSlice, off int) (frames int, bytesTotal int, ok bool) {
	if off+4 > len(b) {
		return 0, 0, false
	}
	flags := int(b[off])<<24 | int(b[off+1])<<16 | int(b[off+2])<<8 | int(b[off+3])
	pos := off + 4
	if flags&0x1 != 0 {
		if pos+4 > len(b) {
			return 0, 0, false
		}
		frames = int(b[pos])<<24 | int(b[pos+1])<<16 | int(b[pos+2])<<8 | int(b[pos+3])
		pos += 4
	}
	if flags&0x2 != 0 {
		if pos+4 > len(b) {
			return frames, 0, frames > 0
		}
		bytesTotal = int(b[pos])<<24 | int(b[pos+1])<<16 | int(b[pos+2])<<8 | int(b[pos+3])
	}
	return frames, bytesTotal, frames > 0
}

// looksLikeMP3 is used by the dispatcher: true if b starts with an ID3v2
// header or a valid MPEG frame sync within the first few KiB.
func looksLikeMP3(b ByteSlice) bool {
	if len(b) >= 3 && bytes.Equal(b[0:3], []byte("ID3")) {
		return true
	}
	searchLimit := 8192
	if searchLimit > len(b) {
		searchLimit = len(b)
	}
	return findConfirmedMPEGFrame(b[:searchLimit], 0)
}
