package audiotag

import (
	"encoding/binary"
	"strings"
	"unicode"
	"unicode/utf8"
)

// vorbisComment is the layout shared by FLAC's VORBIS_COMMENT metadata block
// and Ogg Vorbis's comment header packet:
//
//	uint32le vendor_length
//	byte     vendor_string[vendor_length]
//	uint32le comment_count
//	{ uint32le length; byte value[length] } * comment_count
//
// Malformed entries are skipped with a log line rather than failing the
// whole structure; only a truncated vendor/count prefix is fatal.
func parseVorbisComment(b ByteSlice) (vendor string, tags *TagSet, err *ParseError) {
	tags = newTagSet()

	if len(b) < 4 {
		return "", tags, newErr(KindTruncation, "vorbis comment: missing vendor length", nil)
	}
	vendorLen := int(binary.LittleEndian.Uint32(b[0:4]))
	off := 4
	if vendorLen < 0 || off+vendorLen > len(b) {
		return "", tags, newErr(KindTruncation, "vorbis comment: vendor string exceeds buffer", nil)
	}
	vendor = sanitizeUTF8(string(b[off : off+vendorLen]))
	off += vendorLen

	if off+4 > len(b) {
		return vendor, tags, newErr(KindTruncation, "vorbis comment: missing comment count", nil)
	}
	count := int(binary.LittleEndian.Uint32(b[off : off+4]))
	off += 4

	for i := 0; i < count; i++ {
		if off+4 > len(b) {
			logf("Vorbis", "comment %d/%d truncated, stopping", i, count)
			break
		}
		length := int(binary.LittleEndian.Uint32(b[off : off+4]))
		off += 4
		if length < 0 || off+length > len(b) {
			logf("Vorbis", "comment %d/%d has invalid length %d, stopping", i, count, length)
			break
		}
		raw := b[off : off+length]
		off += length

		eq := indexByte(raw, '=')
		if eq < 0 {
			logf("Vorbis", "comment %d missing '=' separator, skipping", i)
			continue
		}
		key := strings.ToUpper(sanitizeUTF8(string(raw[:eq])))
		if key == "" || strings.IndexFunc(key, unicode.IsControl) >= 0 {
			logf("Vorbis", "comment %d has invalid key, skipping", i)
			continue
		}
		value := sanitizeUTF8(string(raw[eq+1:]))
		tags.Add(key, TagValue{Kind: TagText, Text: value})
	}

	return vendor, tags, nil
}

// encodeVorbisComment is the inverse of parseVorbisComment, used by the
// FLAC/Ogg write paths.
func encodeVorbisComment(vendor string, tags *TagSet) []byte {
	var buf []byte
	buf = appendUint32LE(buf, uint32(len(vendor)))
	buf = append(buf, vendor...)

	// Walk entries in insertion order, not grouped by key, so an interleaved
	// duplicate key (ARTIST, TITLE, ARTIST) round-trips in file order.
	var count uint32
	var body []byte
	for _, e := range tags.entries {
		if e.Value.Kind != TagText {
			continue
		}
		entry := e.Key + "=" + e.Value.Text
		body = appendUint32LE(body, uint32(len(entry)))
		body = append(body, entry...)
		count++
	}
	buf = appendUint32LE(buf, count)
	buf = append(buf, body...)
	return buf
}

func appendUint32LE(b []byte, v uint32) []byte {
	return append(b, byte(v), byte(v>>8), byte(v>>16), byte(v>>24))
}

func indexByte(b []byte, c byte) int {
	for i, x := range b {
		if x == c {
			return i
		}
	}
	return -1
}

func sanitizeUTF8(s string) string {
	if utf8.ValidString(s) {
		return s
	}
	return strings.ToValidUTF8(s, "�")
}
