package audiotag

import (
	"bytes"

	"github.com/go-flac/flacpicture/v2"
	"github.com/go-flac/go-flac/v2"
)

// flacMagic is the 4-byte stream marker every FLAC file starts with.
var flacMagic = []byte("fLaC")

func looksLikeFLAC(b ByteSlice) bool {
	return hasPrefixAt(b, 0, flacMagic)
}

// parseFLAC walks the FLAC metadata blocks using the go-flac/v2 container
// reader and decodes STREAMINFO by hand, since go-flac stops at raw block
// bytes and leaves bit-unpacking to the caller.
func parseFLAC(path string, b ByteSlice, opts Options) (*ParsedFile, *ParseError) {
	f, err := flac.ParseBytes(bytes.NewReader(b))
	if err != nil {
		return nil, newErr(KindFormat, "not a FLAC stream", err)
	}

	pf := &ParsedFile{Path: path, Info: AudioInfo{Format: FormatFLAC, Codec: "flac"}, generic: newTagSet()}

	var streamInfoSeen, commentSeen bool
	var pictures []Picture
	for _, block := range f.Meta {
		switch block.Type {
		case flac.StreamInfo:
			info, perr := parseStreamInfo(block.Data)
			if perr != nil {
				return nil, perr
			}
			pf.Info.SampleRate = info.SampleRate
			pf.Info.Channels = info.Channels
			pf.Info.BitsPerSample = info.BitsPerSample
			if info.SampleRate > 0 {
				pf.Info.DurationSecs = float64(info.TotalSamples) / float64(info.SampleRate)
			}
			streamInfoSeen = true

		case flac.VorbisComment:
			// Same key normalization and validation as the Ogg path: both
			// formats share one comment parser.
			commentSeen = true
			_, cmts, perr := parseVorbisComment(ByteSlice(block.Data))
			if perr != nil {
				logf("FLAC", "VORBIS_COMMENT block partially unreadable: %v", perr)
			}
			for _, e := range cmts.entries {
				pf.generic.Add(e.Key, e.Value)
			}

		case flac.Picture:
			pic, perr := flacpicture.ParseFromMetaDataBlock(*block)
			if perr != nil {
				logf("FLAC", "PICTURE block unreadable: %v", perr)
				continue
			}
			pictures = append(pictures, Picture{
				MIME:        pic.MIME,
				Description: pic.Description,
				Data:        pic.ImageData,
			})
		}
	}

	// Pictures key off whether the stream carried any VORBIS_COMMENT block:
	// METADATA_BLOCK_PICTURE alongside comments, the synthetic PICTURE
	// otherwise.
	pictureKey := "PICTURE"
	if commentSeen {
		pictureKey = "METADATA_BLOCK_PICTURE"
	}
	for _, pic := range pictures {
		pf.generic.Add(pictureKey, TagValue{Kind: TagPicture, Picture: pic})
	}

	if !streamInfoSeen {
		return nil, newErr(KindMalformed, "FLAC stream missing STREAMINFO block", nil)
	}
	if pf.Info.Bitrate == 0 && pf.Info.DurationSecs > 0 {
		pf.Info.Bitrate = int(float64(len(b)) * 8 / pf.Info.DurationSecs)
	}

	return pf, nil
}

type flacStreamInfo struct {
	SampleRate    int
	Channels      int
	BitsPerSample int
	TotalSamples  uint64
}

// parseStreamInfo unpacks the fixed 34-byte STREAMINFO block: min/max
// block size, min/max frame size, then a packed 64-bit field carrying
// sample rate, channels, bits per sample, and total samples.
func parseStreamInfo(data []byte) (flacStreamInfo, *ParseError) {
	if len(data) < 34 {
		return flacStreamInfo{}, newErr(KindTruncation, "STREAMINFO block too short", nil)
	}
	packed := uint64(data[10])<<56 | uint64(data[11])<<48 | uint64(data[12])<<40 |
		uint64(data[13])<<32 | uint64(data[14])<<24 | uint64(data[15])<<16 |
		uint64(data[16])<<8 | uint64(data[17])

	sampleRate := int(packed >> 44)
	channels := int((packed>>41)&0x7) + 1
	bitsPerSample := int((packed>>36)&0x1F) + 1
	totalSamples := packed & 0xFFFFFFFFF

	return flacStreamInfo{
		SampleRate:    sampleRate,
		Channels:      channels,
		BitsPerSample: bitsPerSample,
		TotalSamples:  totalSamples,
	}, nil
}
