package audiotag

import (
	"github.com/go-flac/flacvorbis/v2"
	"github.com/go-flac/go-flac/v2"
)

// WriteFLACTags rewrites path's VORBIS_COMMENT block to hold exactly the
// key/value pairs in tags, leaving every other metadata block (including
// PICTURE and any blocks this package doesn't otherwise interpret) byte-for-
// byte untouched, then saves in place via go-flac/v2's own Save.
func WriteFLACTags(path string, tags *TagSet) error {
	f, err := flac.ParseFile(path)
	if err != nil {
		return newErr(KindFormat, "not a FLAC stream", err)
	}

	cmt := flacvorbis.New()
	for _, e := range tags.entries {
		if e.Value.Kind != TagText {
			continue
		}
		if err := cmt.Add(e.Key, e.Value.Text); err != nil {
			return newErr(KindMalformed, "invalid tag value for "+e.Key, err)
		}
	}
	block := cmt.Marshal()

	replaced := false
	for i, b := range f.Meta {
		if b.Type == flac.VorbisComment {
			f.Meta[i] = &block
			replaced = true
			break
		}
	}
	if !replaced {
		f.Meta = append(f.Meta, &block)
	}

	if err := f.Save(path); err != nil {
		return newErr(KindIO, "saving FLAC file", err)
	}
	return nil
}
