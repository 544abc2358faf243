package audiotag

import (
	"encoding/binary"
	"os"
)

// oggCRCTable is libogg's non-reflected CRC-32 (polynomial 0x04c11db7, no
// input/output reflection, zero init/xor) per RFC 3533 §6's reference
// checksum algorithm. hash/crc32's IEEE table is the reflected variant, so
// it can't be reused here.
var oggCRCTable = func() [256]uint32 {
	var t [256]uint32
	for i := range t {
		crc := uint32(i) << 24
		for j := 0; j < 8; j++ {
			if crc&0x80000000 != 0 {
				crc = (crc << 1) ^ 0x04c11db7
			} else {
				crc <<= 1
			}
		}
		t[i] = crc
	}
	return t
}()

func oggCRC32(data []byte) uint32 {
	var crc uint32
	for _, c := range data {
		crc = (crc << 8) ^ oggCRCTable[byte(crc>>24)^c]
	}
	return crc
}

// WriteOggTags rewrites the Vorbis-comment packet of path's first logical
// bitstream, leaving the identification packet, the setup packet, and every
// audio page byte-for-byte untouched. This assumes the common encoder
// convention that the comment and setup packets finish exactly on a page
// boundary (true of every encoder in general use) — see DESIGN.md.
func WriteOggTags(path string, vendor string, tags *TagSet) error {
	ob, err := Open(path)
	if err != nil {
		return err
	}
	b := append([]byte(nil), ob.Bytes()...)
	ob.Close()

	first, ok := readOggPage(ByteSlice(b), 0)
	if !ok {
		return newErr(KindFormat, "not an Ogg bitstream", nil)
	}

	// Walk pages belonging to this serial until the page containing the end
	// of the setup packet (the third packet); everything at or after the
	// following page offset is the unmodified audio stream.
	pos := 0
	packetsSeen := 0
	headerEnd := -1
	for pos < len(b) {
		page, ok := readOggPage(ByteSlice(b), pos)
		if !ok {
			break
		}
		if page.serialNum == first.serialNum {
			for _, s := range page.segmentTable {
				if s < 255 {
					packetsSeen++
				}
			}
		}
		pos += page.size
		if page.serialNum == first.serialNum && packetsSeen >= 3 {
			headerEnd = pos
			break
		}
	}
	if headerEnd < 0 {
		return newErr(KindTruncation, "could not locate end of Ogg header pages", nil)
	}

	packets, _ := collectOggPackets(ByteSlice(b), 0, first.serialNum, 3)
	if len(packets) < 3 {
		return newErr(KindTruncation, "missing Vorbis identification/comment/setup packets", nil)
	}
	identPacket, setupPacket := packets[0], packets[2]

	newComment := append([]byte{0x03}, "vorbis"...)
	newComment = append(newComment, encodeVorbisComment(vendor, tags)...)

	identPage := encodeSingleSegmentOggPage(first.serialNum, 0, 0x02, identPacket)
	commentSetupPage := encodeOggPage(first.serialNum, 1, 0, 0x00, [][]byte{newComment, setupPacket})

	out := make([]byte, 0, len(identPage)+len(commentSetupPage)+len(b)-headerEnd)
	out = append(out, identPage...)
	out = append(out, commentSetupPage...)
	out = append(out, b[headerEnd:]...)

	// Audio pages after the header carry a page sequence number continuing
	// from where the header left off (2); since this writer always emits
	// exactly two header pages, that matches every encoder's own numbering
	// and no renumbering of subsequent pages is needed.
	if err := os.WriteFile(path, out, 0o644); err != nil {
		return newErr(KindIO, "writing Ogg file", err)
	}
	return nil
}

// encodeSingleSegmentOggPage builds a page carrying exactly one packet no
// longer than 255*255 bytes represented as one page (the identification
// header always fits comfortably under that).
func encodeSingleSegmentOggPage(serial uint32, seq uint32, headerType byte, packet []byte) []byte {
	return encodeOggPage(serial, seq, 0, headerType, [][]byte{packet})
}

// encodeOggPage serializes packets (each packet split into 255-byte lacing
// segments, with a terminal segment shorter than 255, per RFC 3533
// §6) into one physical page, stamping granulePos and computing the page's
// CRC-32 with the checksum field held at zero during the calculation as the
// format requires.
func encodeOggPage(serial uint32, seq uint32, granulePos int64, headerType byte, packets [][]byte) []byte {
	var segTable []byte
	var payload []byte
	for _, p := range packets {
		n := len(p)
		for n >= 255 {
			segTable = append(segTable, 255)
			n -= 255
		}
		segTable = append(segTable, byte(n))
		payload = append(payload, p...)
	}

	header := make([]byte, 27+len(segTable))
	copy(header[0:4], "OggS")
	header[4] = 0 // stream structure version
	header[5] = headerType
	binary.LittleEndian.PutUint64(header[6:14], uint64(granulePos))
	binary.LittleEndian.PutUint32(header[14:18], serial)
	binary.LittleEndian.PutUint32(header[18:22], seq)
	// bytes 22:26 (CRC) left zero for the checksum pass below
	header[26] = byte(len(segTable))
	copy(header[27:], segTable)

	page := append(header, payload...)
	crc := oggCRC32(page)
	binary.LittleEndian.PutUint32(page[22:26], crc)
	return page
}
