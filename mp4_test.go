package audiotag

import (
	"encoding/binary"
	"errors"
	"testing"
)

// atom serializes one ISO-BMFF atom: 4-byte big-endian size (header
// included), 4-byte type, payload.
func atom(typ string, payload []byte) []byte {
	out := make([]byte, 8+len(payload))
	binary.BigEndian.PutUint32(out[0:4], uint32(8+len(payload)))
	copy(out[4:8], typ)
	copy(out[8:], payload)
	return out
}

func mdhdV0(timescale, duration uint32) []byte {
	p := make([]byte, 24)
	// version 0, flags 0, creation/modification times 0
	binary.BigEndian.PutUint32(p[12:16], timescale)
	binary.BigEndian.PutUint32(p[16:20], duration)
	return atom("mdhd", p)
}

// mp4aSampleEntry builds an stsd audio sample entry with the given format
// code, channel count, sample width, and rate.
func mp4aSampleEntry(format string, channels, bits uint16, rate uint32) []byte {
	p := make([]byte, 28)
	// 6 reserved + 2 data-ref index + 8 version/revision/vendor
	binary.BigEndian.PutUint16(p[16:18], channels)
	binary.BigEndian.PutUint16(p[18:20], bits)
	binary.BigEndian.PutUint32(p[24:28], rate<<16) // 16.16 fixed point
	return atom(format, p)
}

func stsdAtom(entry []byte) []byte {
	p := make([]byte, 8)
	binary.BigEndian.PutUint32(p[4:8], 1) // entry count
	return atom("stsd", append(p, entry...))
}

func dataAtom(typeIndicator uint32, value []byte) []byte {
	p := make([]byte, 8)
	binary.BigEndian.PutUint32(p[0:4], typeIndicator)
	return atom("data", append(p, value...))
}

func trknData(num, total uint16) []byte {
	v := make([]byte, 8)
	binary.BigEndian.PutUint16(v[2:4], num)
	binary.BigEndian.PutUint16(v[4:6], total)
	return dataAtom(0, v)
}

// buildM4AFile assembles ftyp + moov with one audio trak (44100 Hz timescale,
// 441000 duration) and the given ilst children.
func buildM4AFile(ilstChildren []byte) []byte {
	ftyp := atom("ftyp", append([]byte("M4A "), make([]byte, 8)...))

	stbl := atom("stbl", stsdAtom(mp4aSampleEntry("mp4a", 2, 16, 44100)))
	minf := atom("minf", stbl)
	mdia := atom("mdia", append(mdhdV0(44100, 441000), minf...))
	trak := atom("trak", mdia)

	ilst := atom("ilst", ilstChildren)
	// meta is a full atom: 4-byte version/flags before its children.
	meta := atom("meta", append(make([]byte, 4), ilst...))
	udta := atom("udta", meta)

	moov := atom("moov", append(trak, udta...))
	return append(ftyp, moov...)
}

func TestParseM4ATagsAndInfo(t *testing.T) {
	children := atom("\xA9nam", dataAtom(1, []byte("Track")))
	children = append(children, atom("trkn", trknData(3, 12))...)

	pf, err := ParseBytes("test.m4a", buildM4AFile(children))
	if err != nil {
		t.Fatalf("ParseBytes: %v", err)
	}

	if pf.Info.Format != FormatM4A || pf.Info.Codec != "aac" {
		t.Errorf("Format/Codec = %v/%v, want m4a/aac", pf.Info.Format, pf.Info.Codec)
	}
	if pf.Info.DurationSecs != 10.0 {
		t.Errorf("DurationSecs = %v, want 10.0 (441000 / 44100)", pf.Info.DurationSecs)
	}
	if pf.Info.SampleRate != 44100 || pf.Info.Channels != 2 || pf.Info.BitsPerSample != 16 {
		t.Errorf("Info = %+v, want 44100/2/16", pf.Info)
	}

	tags := pf.Tags()
	if v, ok := tags.First("\xA9nam"); !ok || v.Text != "Track" {
		t.Errorf("©nam = %v, %v, want Track", v, ok)
	}
	v, ok := tags.First("trkn")
	if !ok || v.Kind != TagPair || v.Num != 3 || v.Total != 12 {
		t.Errorf("trkn = %+v, %v, want (3, 12)", v, ok)
	}
}

func TestParseM4AIntegerAndBinaryData(t *testing.T) {
	children := atom("tmpo", dataAtom(21, []byte{0x00, 0x78})) // BPM 120 as BE int
	children = append(children, atom("covr", dataAtom(14, []byte{0x89, 'P', 'N', 'G'}))...)

	pf, err := ParseBytes("x.m4a", buildM4AFile(children))
	if err != nil {
		t.Fatalf("ParseBytes: %v", err)
	}
	tags := pf.Tags()
	if v, ok := tags.First("tmpo"); !ok || v.Kind != TagInt || v.Int != 120 {
		t.Errorf("tmpo = %+v, %v, want int 120", v, ok)
	}
	if v, ok := tags.First("covr"); !ok || v.Kind != TagPicture || v.Picture.MIME != "image/png" {
		t.Errorf("covr = %+v, %v, want a PNG picture", v, ok)
	}
}

func TestParseM4AALACCodec(t *testing.T) {
	ftyp := atom("ftyp", append([]byte("M4A "), make([]byte, 8)...))
	stbl := atom("stbl", stsdAtom(mp4aSampleEntry("alac", 2, 24, 96000)))
	minf := atom("minf", stbl)
	mdia := atom("mdia", append(mdhdV0(96000, 960000), minf...))
	moov := atom("moov", atom("trak", mdia))

	pf, err := ParseBytes("lossless.m4a", append(ftyp, moov...))
	if err != nil {
		t.Fatalf("ParseBytes: %v", err)
	}
	if pf.Info.Codec != "alac" || pf.Info.BitsPerSample != 24 {
		t.Errorf("Codec/Bits = %v/%d, want alac/24", pf.Info.Codec, pf.Info.BitsPerSample)
	}
}

func TestParseM4AWithoutIlst(t *testing.T) {
	ftyp := atom("ftyp", append([]byte("M4A "), make([]byte, 8)...))
	mdia := atom("mdia", mdhdV0(44100, 44100))
	moov := atom("moov", atom("trak", mdia))

	pf, err := ParseBytes("notags.m4a", append(ftyp, moov...))
	if err != nil {
		t.Fatalf("ParseBytes: %v", err)
	}
	if pf.Tags().Len() != 0 {
		t.Errorf("Tags().Len() = %d, want 0 when ilst is absent", pf.Tags().Len())
	}
	if pf.Info.DurationSecs != 1.0 {
		t.Errorf("DurationSecs = %v, want 1.0", pf.Info.DurationSecs)
	}
}

func TestParseM4ANoMoov(t *testing.T) {
	ftyp := atom("ftyp", append([]byte("M4A "), make([]byte, 8)...))
	_, err := ParseBytes("empty.m4a", ftyp)
	if err == nil {
		t.Fatal("expected an error for a file without a moov atom")
	}
	var pe *ParseError
	if !errors.As(err, &pe) || pe.Kind != KindMalformed {
		t.Fatalf("err = %v, want KindMalformed", err)
	}
}

func TestReadAtomHeaderLargesize(t *testing.T) {
	payload := []byte("hello")
	buf := make([]byte, 16+len(payload))
	binary.BigEndian.PutUint32(buf[0:4], 1) // size 1: 64-bit largesize follows
	copy(buf[4:8], "free")
	binary.BigEndian.PutUint64(buf[8:16], uint64(len(buf)))
	copy(buf[16:], payload)

	a, ok := readAtomHeader(ByteSlice(buf), 0)
	if !ok {
		t.Fatal("readAtomHeader should accept a largesize atom")
	}
	if a.DataOffset != 16 || a.DataSize != len(payload) {
		t.Errorf("atom = %+v", a)
	}
}

func TestReadAtomHeaderOverrun(t *testing.T) {
	buf := make([]byte, 12)
	binary.BigEndian.PutUint32(buf[0:4], 100) // claims more than the buffer has
	copy(buf[4:8], "moov")
	if _, ok := readAtomHeader(ByteSlice(buf), 0); ok {
		t.Fatal("readAtomHeader should reject an atom overrunning the buffer")
	}
}
