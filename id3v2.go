package audiotag

import (
	"strconv"
	"strings"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
)

const (
	id3v23FlagCompression = 0x80
	id3v23FlagEncryption  = 0x40

	id3v24FlagCompression = 0x08
	id3v24FlagEncryption  = 0x04
	id3v24FlagUnsync      = 0x02
)

// id3v2FrameIndexEntry is the cheap, eagerly-built record for one frame: its
// id, flags, and a *copy* of its raw payload bytes. Nothing about the
// payload's text encoding or unsynchronisation is touched here — that's the
// whole point of the lazy design (see decodeFrame below).
type id3v2FrameIndexEntry struct {
	ID      string
	Flags   uint16
	Payload []byte
	Version byte // 2, 3, or 4
	// TagUnsync is the tag-wide unsynchronisation bit from the ID3v2 header;
	// v2.2/2.3 have no per-frame flag, so it is the only unsync signal there.
	TagUnsync bool
}

// id3v2Index is the result of the cheap first pass over an ID3v2 tag: one
// entry per frame, built in O(tagSize/averageFrameSize) time with no
// per-frame decoding. Decoding (unsync reversal, text transcoding, TXXX/
// APIC/COMM structuring) happens lazily the first time a caller asks for a
// given key, and is memoized afterward.
type id3v2Index struct {
	Version byte
	entries []id3v2FrameIndexEntry
	decoded map[string][]TagValue // memoized decode results, keyed by mapped tag key
}

// parseID3v2Index builds the frame index for an ID3v2.2/2.3/2.4 tag located
// at the start of b. Returns ok=false if b doesn't start with "ID3".
func parseID3v2Index(b ByteSlice, maxFrames int) (*id3v2Index, bool, *ParseError) {
	if len(b) < 10 || string(b[0:3]) != "ID3" {
		return nil, false, nil
	}

	major := b[3]
	flags := b[5]
	tagUnsync := flags&0x80 != 0
	size := syncsafeToInt(b[6:10])
	if size < 0 || 10+size > len(b) {
		return nil, true, newErr(KindTruncation, "ID3v2 tag size exceeds buffer", nil)
	}

	body := b[10 : 10+size]
	pos := 0

	// Extended header (v2.3/2.4 only), flag bit 0x40.
	if flags&0x40 != 0 && major >= 3 {
		if len(body) < 4 {
			return nil, true, newErr(KindTruncation, "ID3v2 extended header truncated", nil)
		}
		var extSize int
		if major == 4 {
			extSize = syncsafeToInt(body[0:4])
		} else {
			extSize = int(body[0])<<24 | int(body[1])<<16 | int(body[2])<<8 | int(body[3])
			extSize += 4 // v2.3 extended header size field excludes itself
		}
		if extSize < 0 || extSize > len(body) {
			return nil, true, newErr(KindTruncation, "ID3v2 extended header size invalid", nil)
		}
		pos += extSize
	}

	idLen, headerLen := 4, 10
	if major == 2 {
		idLen, headerLen = 3, 6
	}

	idx := &id3v2Index{Version: major, decoded: make(map[string][]TagValue)}

	for pos+headerLen <= len(body) && len(idx.entries) < maxFrames {
		rawID := body[pos : pos+idLen]
		if rawID[0] == 0 {
			break // padding
		}
		if !isValidFrameID(rawID) {
			break
		}
		id := string(rawID)

		var frameSize int
		var flagBytes uint16
		switch major {
		case 2:
			frameSize = int(body[pos+3])<<16 | int(body[pos+4])<<8 | int(body[pos+5])
		case 3:
			frameSize = int(body[pos+4])<<24 | int(body[pos+5])<<16 | int(body[pos+6])<<8 | int(body[pos+7])
			flagBytes = uint16(body[pos+8])<<8 | uint16(body[pos+9])
		default: // 4
			frameSize = syncsafeToInt(body[pos+4 : pos+8])
			flagBytes = uint16(body[pos+8])<<8 | uint16(body[pos+9])
		}

		if frameSize < 0 || pos+headerLen+frameSize > len(body) {
			logf("ID3v2", "frame %s claims size %d beyond tag bounds, stopping scan", id, frameSize)
			break
		}

		// Copy the payload now: one allocation per frame, in exchange for
		// never touching unsync/encoding until Tag() is called and for an
		// index whose lifetime is independent of the source buffer.
		payload := make([]byte, frameSize)
		copy(payload, body[pos+headerLen:pos+headerLen+frameSize])

		idx.entries = append(idx.entries, id3v2FrameIndexEntry{
			ID:        id,
			Flags:     flagBytes,
			Payload:   payload,
			Version:   major,
			TagUnsync: tagUnsync,
		})

		pos += headerLen + frameSize
	}

	// Stopping at the limit with another frame header still ahead means the
	// tag holds more than maxFrames frames.
	if len(idx.entries) >= maxFrames && pos+headerLen <= len(body) &&
		body[pos] != 0 && isValidFrameID(body[pos:pos+idLen]) {
		return nil, true, newErr(KindResource, "ID3v2 tag has more than "+strconv.Itoa(maxFrames)+" frames", nil)
	}

	return idx, true, nil
}

func isValidFrameID(id []byte) bool {
	for _, c := range id {
		if !(c >= 'A' && c <= 'Z') && !(c >= '0' && c <= '9') {
			return false
		}
	}
	return true
}

// tag decodes (and memoizes) every frame whose mapped key matches want, then
// returns the merged values. Decoding per frame is: reverse unsynchronisation
// if flagged, then decode according to the frame's semantics (text, TXXX,
// COMM, APIC, track/disc number).
func (idx *id3v2Index) tag(want string) []TagValue {
	if v, ok := idx.decoded[want]; ok {
		return v
	}

	var out []TagValue
	for _, e := range idx.entries {
		key, _ := mappedKey(e.ID, e.Version)
		if key != want {
			continue
		}
		out = append(out, decodeFrame(e)...)
	}
	idx.decoded[want] = out
	return out
}

// allTags decodes every frame (first access of each only) and returns a
// TagSet holding every mapped key present with its values. Used by
// TagSet-materializing callers that want every tag, not a single lookup.
func (idx *id3v2Index) allTags() *TagSet {
	ts := newTagSet()
	seen := make(map[string]bool)
	for _, e := range idx.entries {
		key, _ := mappedKey(e.ID, e.Version)
		if seen[key] {
			continue
		}
		seen[key] = true
		for _, v := range idx.tag(key) {
			ts.Add(key, v)
		}
	}
	return ts
}

// mappedKey translates a raw ID3v2 frame id (version-specific) to the
// package's canonical upper-case tag key.
func mappedKey(id string, version byte) (string, bool) {
	if version == 2 {
		switch id {
		case "TT2":
			return "TITLE", true
		case "TP1":
			return "ARTIST", true
		case "TP2":
			return "ALBUMARTIST", true
		case "TAL":
			return "ALBUM", true
		case "TYE":
			return "DATE", true
		case "TRK":
			return "TRACKNUMBER", true
		case "TPA":
			return "DISCNUMBER", true
		case "TCO":
			return "GENRE", true
		case "TSR", "TRC":
			return "ISRC", true
		case "PIC":
			return "PICTURE", true
		case "COM":
			return "COMMENT", true
		}
		return id, false
	}

	switch id {
	case "TIT2":
		return "TITLE", true
	case "TPE1":
		return "ARTIST", true
	case "TPE2":
		return "ALBUMARTIST", true
	case "TALB":
		return "ALBUM", true
	case "TYER", "TDRC", "TDAT":
		return "DATE", true
	case "TRCK":
		return "TRACKNUMBER", true
	case "TPOS":
		return "DISCNUMBER", true
	case "TCON":
		return "GENRE", true
	case "TSRC":
		return "ISRC", true
	case "APIC":
		return "PICTURE", true
	case "COMM":
		return "COMMENT", true
	case "TXXX":
		return "TXXX", true
	}
	return id, false
}

func decodeFrame(e id3v2FrameIndexEntry) []TagValue {
	payload := e.Payload

	// v2.2/2.3 only have the tag-wide unsync bit; v2.4 adds a per-frame flag
	// on top of it.
	unsync := e.TagUnsync
	if e.Version == 4 && e.Flags&id3v24FlagUnsync != 0 {
		unsync = true
	}
	if unsync {
		payload = removeUnsync(payload)
	}

	if e.Version == 3 && (e.Flags&id3v23FlagCompression != 0 || e.Flags&id3v23FlagEncryption != 0) {
		logf("ID3v2", "frame %s is compressed/encrypted, skipping", e.ID)
		return nil
	}
	if e.Version == 4 && (e.Flags&id3v24FlagCompression != 0 || e.Flags&id3v24FlagEncryption != 0) {
		logf("ID3v2", "frame %s is compressed/encrypted, skipping", e.ID)
		return nil
	}

	switch {
	case e.ID == "APIC" || e.ID == "PIC":
		pic, ok := decodeAPIC(payload, e.Version == 2)
		if !ok {
			return nil
		}
		return []TagValue{{Kind: TagPicture, Picture: pic}}
	case e.ID == "TXXX" || e.ID == "TXX":
		desc, val, ok := decodeTXXX(payload)
		if !ok {
			return nil
		}
		return []TagValue{{Kind: TagText, Text: desc + "=" + val}}
	case e.ID == "COMM" || e.ID == "COM":
		_, _, text, ok := decodeCOMM(payload)
		if !ok {
			return nil
		}
		return []TagValue{{Kind: TagText, Text: text}}
	case e.ID == "TRCK" || e.ID == "TRK" || e.ID == "TPOS" || e.ID == "TPA":
		text := decodeTextFrame(payload)
		n, _ := parseLeadingNumber(text)
		return []TagValue{{Kind: TagInt, Int: int64(n)}}
	case len(e.ID) > 0 && e.ID[0] == 'T':
		return []TagValue{{Kind: TagText, Text: decodeTextFrame(payload)}}
	case len(e.ID) > 0 && e.ID[0] == 'W':
		// URL frames carry no encoding byte; the payload is ISO-8859-1.
		return []TagValue{{Kind: TagText, Text: latin1ToUTF8(trimTextTerminator(payload, false))}}
	default:
		return nil
	}
}

// decodeTextFrame decodes a standard text-information frame's payload: one
// encoding byte followed by the (possibly multi-value, null-separated) text.
func decodeTextFrame(payload []byte) string {
	if len(payload) == 0 {
		return ""
	}
	return decodeEncodedText(payload[0], payload[1:])
}

func decodeEncodedText(encoding byte, data []byte) string {
	switch encoding {
	case 0: // ISO-8859-1
		return latin1ToUTF8(trimTextTerminator(data, false))
	case 1: // UTF-16 with BOM
		return decodeUTF16Bytes(trimTextTerminator(data, true), true)
	case 2: // UTF-16BE, no BOM
		return decodeUTF16Bytes(trimTextTerminator(data, true), false)
	case 3: // UTF-8
		return sanitizeUTF8(string(trimTextTerminator(data, false)))
	default: // invalid encoding byte: read as ISO-8859-1
		return latin1ToUTF8(trimTextTerminator(data, false))
	}
}

func trimTextTerminator(data []byte, wide bool) []byte {
	if wide {
		for i := 0; i+1 < len(data); i += 2 {
			if data[i] == 0 && data[i+1] == 0 {
				return data[:i]
			}
		}
		return data
	}
	if i := indexByte(data, 0); i >= 0 {
		return data[:i]
	}
	return data
}

// latin1ToUTF8 decodes ID3v2 encoding byte 0 (ISO-8859-1) via x/text/encoding/
// charmap rather than a hand-rolled byte-to-rune loop, since every byte value
// maps onto a Latin-1 code point and the ecosystem already has a Decoder for
// that.
func latin1ToUTF8(data []byte) string {
	out, err := charmap.ISO8859_1.NewDecoder().Bytes(data)
	if err != nil {
		return sanitizeUTF8(string(data))
	}
	return string(out)
}

// decodeUTF16Bytes decodes ID3v2 encoding bytes 1 (UTF-16 with a leading
// BOM) and 2 (UTF-16BE, no BOM) via x/text/encoding/unicode. A malformed or
// truncated trailing surrogate is absorbed by the decoder's replacement
// behavior rather than panicking or dropping the whole string.
func decodeUTF16Bytes(data []byte, hasBOM bool) string {
	var dec = unicode.UTF16(unicode.BigEndian, unicode.IgnoreBOM).NewDecoder()
	if hasBOM {
		dec = unicode.UTF16(unicode.BigEndian, unicode.UseBOM).NewDecoder()
	}
	out, err := dec.Bytes(data)
	if err != nil {
		return ""
	}
	return string(out)
}

// decodeTXXX splits a user-defined text frame's payload into description and
// value, both null-separated per the encoding byte.
func decodeTXXX(payload []byte) (desc, value string, ok bool) {
	if len(payload) < 1 {
		return "", "", false
	}
	enc := payload[0]
	rest := payload[1:]
	sepLen := 1
	if enc == 1 || enc == 2 {
		sepLen = 2
	}
	sep := findTerminator(rest, sepLen)
	if sep < 0 {
		return "", decodeEncodedText(enc, rest), true
	}
	desc = decodeEncodedText(enc, rest[:sep])
	value = decodeEncodedText(enc, rest[sep+sepLen:])
	return desc, value, true
}

func findTerminator(data []byte, width int) int {
	if width == 1 {
		return indexByte(data, 0)
	}
	for i := 0; i+1 < len(data); i += 2 {
		if data[i] == 0 && data[i+1] == 0 {
			return i
		}
	}
	return -1
}

// decodeCOMM splits a comment frame into language, description, and text.
func decodeCOMM(payload []byte) (lang, desc, text string, ok bool) {
	if len(payload) < 4 {
		return "", "", "", false
	}
	enc := payload[0]
	lang = string(payload[1:4])
	rest := payload[4:]
	sepLen := 1
	if enc == 1 || enc == 2 {
		sepLen = 2
	}
	sep := findTerminator(rest, sepLen)
	if sep < 0 {
		return lang, "", decodeEncodedText(enc, rest), true
	}
	desc = decodeEncodedText(enc, rest[:sep])
	text = decodeEncodedText(enc, rest[sep+sepLen:])
	return lang, desc, text, true
}

// decodeAPIC decodes an attached-picture frame (APIC for v2.3/2.4, PIC for
// v2.2, which uses a 3-char image format instead of a MIME string).
func decodeAPIC(payload []byte, v2 bool) (Picture, bool) {
	if len(payload) < 2 {
		return Picture{}, false
	}
	enc := payload[0]
	rest := payload[1:]

	var mime string
	if v2 {
		if len(rest) < 3 {
			return Picture{}, false
		}
		mime = "image/" + strings.ToLower(string(rest[0:3]))
		rest = rest[3:]
	} else {
		i := indexByte(rest, 0)
		if i < 0 {
			return Picture{}, false
		}
		mime = string(rest[:i])
		rest = rest[i+1:]
	}

	if len(rest) < 1 {
		return Picture{}, false
	}
	rest = rest[1:] // picture type byte

	sepLen := 1
	if enc == 1 || enc == 2 {
		sepLen = 2
	}
	sep := findTerminator(rest, sepLen)
	if sep < 0 {
		return Picture{}, false
	}
	desc := decodeEncodedText(enc, rest[:sep])
	data := rest[sep+sepLen:]

	return Picture{MIME: mime, Description: desc, Data: append([]byte(nil), data...)}, true
}

func parseLeadingNumber(s string) (int, bool) {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '/'); i >= 0 {
		s = s[:i]
	}
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, false
	}
	return n, true
}

// removeUnsync reverses ID3v2 unsynchronisation byte-stuffing: every
// literal 0xFF 0x00 becomes 0xFF.
func removeUnsync(data []byte) []byte {
	out := make([]byte, 0, len(data))
	for i := 0; i < len(data); i++ {
		out = append(out, data[i])
		if data[i] == 0xFF && i+1 < len(data) && data[i+1] == 0x00 {
			i++
		}
	}
	return out
}

// syncsafeToInt decodes a 4-byte big-endian syncsafe integer (7 significant
// bits per byte, MSB always 0), used for ID3v2.4 frame sizes and for the
// tag header size in all ID3v2 versions.
func syncsafeToInt(b []byte) int {
	if len(b) < 4 {
		return -1
	}
	return int(b[0])<<21 | int(b[1])<<14 | int(b[2])<<7 | int(b[3])
}
