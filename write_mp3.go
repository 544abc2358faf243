package audiotag

import (
	"os"
	"strconv"
)

// reverseMappedFrameID34 gives the ID3v2.3 frame id to write a fresh text
// frame under for each canonical key this package maps on read (id3v2.go's
// mappedKey, inverted). Keys with no entry here (TXXX, PICTURE, COMMENT,
// any raw unmapped frame id) are never synthesized fresh — they only
// survive a write if an existing frame for them is carried forward
// untouched.
var reverseMappedFrameID34 = map[string]string{
	"TITLE":       "TIT2",
	"ARTIST":      "TPE1",
	"ALBUMARTIST": "TPE2",
	"ALBUM":       "TALB",
	"DATE":        "TDRC",
	"TRACKNUMBER": "TRCK",
	"DISCNUMBER":  "TPOS",
	"GENRE":       "TCON",
	"ISRC":        "TSRC",
}

// WriteMP3Tags rewrites path's ID3v2 tag (always written as ID3v2.3,
// regardless of the source tag's version) to hold tags, then reappends the
// original MPEG audio stream (and any trailing ID3v1 block) byte-for-byte.
// Frames this package has a mapped key for are replaced wholesale when tags
// carries a new value for that key; every other existing frame (APIC,
// COMM, TXXX, and any frame id this package doesn't interpret) is carried
// forward verbatim. A frame carrying a compression or encryption flag is
// dropped rather than written back (see DESIGN.md).
func WriteMP3Tags(path string, tags *TagSet) error {
	ob, err := Open(path)
	if err != nil {
		return err
	}
	b := append([]byte(nil), ob.Bytes()...)
	ob.Close()

	audioStart := 0
	var preserved []id3v2FrameIndexEntry
	if idx, ok, perr := parseID3v2Index(ByteSlice(b), currentOptions().MaxID3Frames); perr != nil {
		return perr
	} else if ok {
		audioStart = 10 + syncsafeToInt(b[6:10])
		for _, e := range idx.entries {
			if e.Version < 3 {
				// A v2.2 (3-char id) source frame has no direct v2.3 mapping
				// this writer carries forward; only frames this package
				// doesn't overwrite via reverseMappedFrameID34 are preserved,
				// so silently dropping unmappable v2.2 frames here only
				// loses frames a v2.3-writing round trip couldn't keep
				// anyway.
				continue
			}
			if e.Flags&(id3v23FlagCompression|id3v23FlagEncryption) != 0 && e.Version == 3 ||
				e.Flags&(id3v24FlagCompression|id3v24FlagEncryption) != 0 && e.Version == 4 {
				// Compressed/encrypted frames can't be round-tripped into a
				// fresh v2.3 tag; strip them instead of writing bytes this
				// package can't vouch for.
				continue
			}
			if key, known := mappedKey(e.ID, e.Version); known {
				if _, writable := reverseMappedFrameID34[key]; writable {
					if _, present := tags.First(key); present {
						continue // superseded by a fresh frame below
					}
				}
			}
			preserved = append(preserved, e)
		}
	}

	var body []byte
	for _, key := range tags.Keys() {
		frameID, ok := reverseMappedFrameID34[key]
		if !ok {
			continue
		}
		for _, v := range tags.All(key) {
			var text string
			switch v.Kind {
			case TagText:
				text = v.Text
			case TagInt:
				text = strconv.FormatInt(v.Int, 10)
			default:
				continue
			}
			body = append(body, encodeID3v23TextFrame(frameID, text)...)
		}
	}
	for _, e := range preserved {
		body = append(body, encodeID3v23Frame(e.ID, e.Payload)...)
	}

	header := make([]byte, 10)
	copy(header[0:3], "ID3")
	header[3] = 3 // major version
	putSyncsafe(header[6:10], len(body))

	out := make([]byte, 0, len(header)+len(body)+len(b)-audioStart)
	out = append(out, header...)
	out = append(out, body...)
	out = append(out, b[audioStart:]...)

	if err := os.WriteFile(path, out, 0o644); err != nil {
		return newErr(KindIO, "writing MP3 file", err)
	}
	return nil
}

func encodeID3v23TextFrame(id, text string) []byte {
	payload := append([]byte{3}, []byte(text)...) // encoding byte 3 = UTF-8
	return encodeID3v23Frame(id, payload)
}

func encodeID3v23Frame(id string, payload []byte) []byte {
	out := make([]byte, 10+len(payload))
	copy(out[0:4], id)
	size := len(payload)
	out[4] = byte(size >> 24)
	out[5] = byte(size >> 16)
	out[6] = byte(size >> 8)
	out[7] = byte(size)
	copy(out[10:], payload)
	return out
}

func putSyncsafe(b []byte, v int) {
	b[0] = byte((v >> 21) & 0x7f)
	b[1] = byte((v >> 14) & 0x7f)
	b[2] = byte((v >> 7) & 0x7f)
	b[3] = byte(v & 0x7f)
}
