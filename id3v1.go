package audiotag

import "strings"

// id3v1Genres is the fixed 148-entry ID3v1 genre table, position = byte
// value of the genre field.
var id3v1Genres = []string{
	"Blues", "Classic Rock", "Country", "Dance", "Disco", "Funk", "Grunge",
	"Hip-Hop", "Jazz", "Metal", "New Age", "Oldies", "Other", "Pop", "R&B",
	"Rap", "Reggae", "Rock", "Techno", "Industrial", "Alternative", "Ska",
	"Death Metal", "Pranks", "Soundtrack", "Euro-Techno", "Ambient",
	"Trip-Hop", "Vocal", "Jazz+Funk", "Fusion", "Trance", "Classical",
	"Instrumental", "Acid", "House", "Game", "Sound Clip", "Gospel",
	"Noise", "AlternRock", "Bass", "Soul", "Punk", "Space", "Meditative",
	"Instrumental Pop", "Instrumental Rock", "Ethnic", "Gothic",
	"Darkwave", "Techno-Industrial", "Electronic", "Pop-Folk", "Eurodance",
	"Dream", "Southern Rock", "Comedy", "Cult", "Gangsta", "Top 40",
	"Christian Rap", "Pop/Funk", "Jungle", "Native American", "Cabaret",
	"New Wave", "Psychedelic", "Rave", "Showtunes", "Trailer", "Lo-Fi",
	"Tribal", "Acid Punk", "Acid Jazz", "Polka", "Retro", "Musical",
	"Rock & Roll", "Hard Rock", "Folk", "Folk-Rock", "National Folk",
	"Swing", "Fast Fusion", "Bebop", "Latin", "Revival", "Celtic",
	"Bluegrass", "Avantgarde", "Gothic Rock", "Progressive Rock",
	"Psychedelic Rock", "Symphonic Rock", "Slow Rock", "Big Band",
	"Chorus", "Easy Listening", "Acoustic", "Humour", "Speech", "Chanson",
	"Opera", "Chamber Music", "Sonata", "Symphony", "Booty Bass", "Primus",
	"Porn Groove", "Satire", "Slow Jam", "Club", "Tango", "Samba",
	"Folklore", "Ballad", "Power Ballad", "Rhythmic Soul", "Freestyle",
	"Duet", "Punk Rock", "Drum Solo", "A capella", "Euro-House",
	"Dance Hall", "Goa", "Drum & Bass", "Club-House", "Hardcore",
	"Terror", "Indie", "BritPop", "Negerpunk", "Polsk Punk", "Beat",
	"Christian Gangsta Rap", "Heavy Metal", "Black Metal", "Crossover",
	"Contemporary Christian", "Christian Rock", "Merengue", "Salsa",
	"Thrash Metal", "Anime", "J-Pop", "Synthpop",
}

const id3v1Size = 128

// parseID3v1 reads the trailing 128-byte ID3v1/1.1 block, if present, and
// returns its fields as a TagSet.
func parseID3v1(b ByteSlice) (*TagSet, bool) {
	if len(b) < id3v1Size {
		return nil, false
	}
	tag := b[len(b)-id3v1Size:]
	if string(tag[0:3]) != "TAG" {
		return nil, false
	}

	tags := newTagSet()
	addText := func(key string, raw []byte) {
		// Fields are ISO-8859-1, padded with trailing NULs/spaces.
		v := strings.TrimRight(latin1ToUTF8(raw), " \x00")
		if v != "" {
			tags.Add(key, TagValue{Kind: TagText, Text: v})
		}
	}

	addText("TITLE", tag[3:33])
	addText("ARTIST", tag[33:63])
	addText("ALBUM", tag[63:93])
	addText("DATE", tag[93:97])

	// ID3v1.1: byte 125 zero and byte 126 nonzero means byte 126 is a track
	// number and the comment field shrinks to 28 bytes.
	if tag[125] == 0 && tag[126] != 0 {
		addText("COMMENT", tag[97:125])
		tags.Add("TRACKNUMBER", TagValue{Kind: TagInt, Int: int64(tag[126])})
	} else {
		addText("COMMENT", tag[97:127])
	}

	genreIndex := int(tag[127])
	if genreIndex < len(id3v1Genres) {
		tags.Add("GENRE", TagValue{Kind: TagText, Text: id3v1Genres[genreIndex]})
	}

	return tags, true
}
