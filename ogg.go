package audiotag

import (
	"encoding/binary"
)

var oggMagic = []byte("OggS")

func looksLikeOgg(b ByteSlice) bool {
	return hasPrefixAt(b, 0, oggMagic)
}

// oggPage is one physical Ogg page: its header fields plus the raw segment
// payload.
type oggPage struct {
	headerType   byte
	granulePos   int64
	serialNum    uint32
	pageSeq      uint32
	segmentTable []byte
	payload      []byte
	size         int // total bytes this page occupies, header included
}

const oggHeaderFixedLen = 27

// readOggPage parses one page starting at off, or returns ok=false if off
// doesn't begin with "OggS" or the page is truncated.
func readOggPage(b ByteSlice, off int) (oggPage, bool) {
	if !hasPrefixAt(b, off, oggMagic) {
		return oggPage{}, false
	}
	if off+oggHeaderFixedLen > len(b) {
		return oggPage{}, false
	}

	headerType := b[off+5]
	granule := int64(binary.LittleEndian.Uint64(b[off+6 : off+14]))
	serial := binary.LittleEndian.Uint32(b[off+14 : off+18])
	seq := binary.LittleEndian.Uint32(b[off+18 : off+22])
	segCount := int(b[off+26])

	segTableOff := off + 27
	if segTableOff+segCount > len(b) {
		return oggPage{}, false
	}
	segTable := b[segTableOff : segTableOff+segCount]

	payloadLen := 0
	for _, s := range segTable {
		payloadLen += int(s)
	}
	payloadOff := segTableOff + segCount
	if payloadOff+payloadLen > len(b) {
		return oggPage{}, false
	}

	return oggPage{
		headerType:   headerType,
		granulePos:   granule,
		serialNum:    serial,
		pageSeq:      seq,
		segmentTable: append([]byte(nil), segTable...),
		payload:      append([]byte(nil), b[payloadOff:payloadOff+payloadLen]...),
		size:         (payloadOff + payloadLen) - off,
	}, true
}

const oggMaxPacketSize = 10 << 20

// collectOggPackets reassembles packets from pages belonging to serial,
// starting at off, stopping once wantPackets have been collected or pages
// run out. A packet continues across pages as long as the page's final
// segment table entry is 255; an oversized-packet guard drops anything that
// would exceed oggMaxPacketSize instead of growing unbounded.
func collectOggPackets(b ByteSlice, off int, serial uint32, wantPackets int) ([][]byte, int) {
	var packets [][]byte
	var current []byte
	skipping := false

	pos := off
	for pos < len(b) && len(packets) < wantPackets {
		page, ok := readOggPage(b, pos)
		if !ok {
			break
		}
		if page.serialNum != serial {
			pos += page.size
			continue
		}

		segLen := 0
		consumed := 0
		for _, s := range page.segmentTable {
			segLen = int(s)
			seg := page.payload[consumed : consumed+segLen]
			consumed += segLen

			if !skipping {
				current = append(current, seg...)
				if len(current) > oggMaxPacketSize {
					logf("Ogg", "packet exceeds %d bytes, skipping", oggMaxPacketSize)
					skipping = true
					current = nil
				}
			}

			isLastSegmentOfPacket := segLen < 255
			if isLastSegmentOfPacket {
				if !skipping {
					packets = append(packets, current)
					if len(packets) >= wantPackets {
						break
					}
				}
				current = nil
				skipping = false
			}
		}

		pos += page.size
	}

	return packets, pos
}

// findLastGranulePosition scans the tail of the file for the last page
// belonging to serial, returning its granule position — the exact sample
// count, where an average-bitrate estimate would drift on VBR streams.
func findLastGranulePosition(b ByteSlice, serial uint32) (int64, bool) {
	const scanWindow = 64 * 1024
	start := len(b) - scanWindow
	if start < 0 {
		start = 0
	}

	best := int64(-1)
	found := false
	for off := start; off < len(b); {
		idx := find(b, oggMagic, off)
		if idx < 0 {
			break
		}
		page, ok := readOggPage(b, idx)
		if !ok {
			off = idx + 4
			continue
		}
		if page.serialNum == serial && page.granulePos >= 0 {
			best = page.granulePos
			found = true
		}
		off = idx + page.size
		if page.size <= 0 {
			off = idx + 4
		}
	}
	return best, found
}

var (
	vorbisPacketMagic  = []byte("\x01vorbis")
	vorbisCommentMagic = []byte("\x03vorbis")
)

// parseOgg demuxes the first logical Vorbis bitstream in b: identification
// header (sample rate, channels, nominal bitrate) from the first packet,
// comment header (shared Vorbis-comment layout) from the second, and
// duration from the last page's granule position over sample rate.
// Non-Vorbis Ogg streams (Opus) are rejected as KindUnsupported.
func parseOgg(path string, b ByteSlice, opts Options) (*ParsedFile, *ParseError) {
	first, ok := readOggPage(b, 0)
	if !ok {
		return nil, newErr(KindFormat, "not an Ogg bitstream", nil)
	}

	packets, _ := collectOggPackets(b, 0, first.serialNum, 2)
	if len(packets) < 2 {
		return nil, newErr(KindTruncation, "missing Vorbis identification/comment packets", nil)
	}

	ident := packets[0]
	if len(ident) < 7 || !hasPrefixAt(ByteSlice(ident), 0, vorbisPacketMagic) {
		if hasPrefixAt(b, 28, []byte("OpusHead")) {
			return nil, newErr(KindUnsupported, "Ogg/Opus is not a supported format", nil)
		}
		return nil, newErr(KindUnsupported, "Ogg stream is not Vorbis", nil)
	}

	info, perr := parseVorbisIdentHeader(ident)
	if perr != nil {
		return nil, perr
	}

	commentPacket := packets[1]
	if len(commentPacket) < 7 || !hasPrefixAt(ByteSlice(commentPacket), 0, vorbisCommentMagic) {
		return nil, newErr(KindMalformed, "second Vorbis packet is not a comment header", nil)
	}
	_, tags, perr := parseVorbisComment(commentPacket[7:])
	if perr != nil {
		logf("Ogg", "comment header partially unreadable: %v", perr)
	}

	pf := &ParsedFile{Path: path, Info: info, generic: tags}

	if granule, ok := findLastGranulePosition(b, first.serialNum); ok && info.SampleRate > 0 {
		pf.Info.DurationSecs = float64(granule) / float64(info.SampleRate)
		if pf.Info.DurationSecs > 0 {
			pf.Info.Bitrate = int(float64(len(b)) * 8 / pf.Info.DurationSecs)
		}
	}

	return pf, nil
}

// parseVorbisIdentHeader decodes the 30-byte Vorbis identification header:
// the 7-byte packet-type+"vorbis" prefix followed by 23 bytes of fields.
func parseVorbisIdentHeader(packet []byte) (AudioInfo, *ParseError) {
	if len(packet) < 7+23 {
		return AudioInfo{}, newErr(KindTruncation, "Vorbis identification header truncated", nil)
	}
	body := packet[7:]
	channels := int(body[4])
	sampleRate := int(binary.LittleEndian.Uint32(body[5:9]))
	bitrateNominal := int(int32(binary.LittleEndian.Uint32(body[13:17])))

	info := AudioInfo{
		Format:     FormatOggVorbis,
		Codec:      "vorbis",
		Channels:   channels,
		SampleRate: sampleRate,
	}
	if bitrateNominal > 0 {
		info.Bitrate = bitrateNominal
		info.VBR = true
	}
	return info, nil
}
