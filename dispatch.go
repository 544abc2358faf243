package audiotag

import "path/filepath"

// sniff identifies the format of b by magic bytes, independent of file
// extension.
func sniff(b ByteSlice) Format {
	switch {
	case looksLikeFLAC(b):
		return FormatFLAC
	case looksLikeOgg(b):
		return FormatOggVorbis
	case looksLikeM4A(b):
		return FormatM4A
	case looksLikeMP3(b):
		return FormatMP3
	default:
		return FormatUnknown
	}
}

// Parse opens path, detects its format from content (falling back to the
// extension only when content sniffing finds nothing), and fully parses it
// using the package-level Options (see SetOptions). For repeated or concurrent parses,
// prefer a Cache (cache.go) or ParseBatch (batch.go).
func Parse(path string) (*ParsedFile, error) {
	return ParseWithOptions(path, currentOptions())
}

// ParseWithOptions is Parse with explicit resource limits.
func ParseWithOptions(path string, opts Options) (*ParsedFile, error) {
	ob, err := Open(path)
	if err != nil {
		return nil, err
	}
	defer ob.Close()

	pf, perr := parseBuffer(path, ob.Bytes(), opts)
	if perr != nil {
		return nil, withPath(perr, path)
	}
	return pf, nil
}

// ParseBytes parses an in-memory buffer without touching the filesystem.
// The path argument is never opened: it is used in error messages, as
// ParsedFile.Path, and for its extension when content sniffing finds no
// format. It may be empty.
func ParseBytes(path string, data []byte) (*ParsedFile, error) {
	ob := Wrap(data)
	pf, perr := parseBuffer(path, ob.Bytes(), currentOptions())
	if perr != nil {
		return nil, withPath(perr, path)
	}
	return pf, nil
}

func parseBuffer(path string, b ByteSlice, opts Options) (*ParsedFile, *ParseError) {
	format := sniff(b)
	if format == FormatUnknown {
		// Content sniffing found nothing definite (e.g. an MP3 with neither
		// ID3v2 nor a locatable frame sync within the search window); fall
		// back to the extension as a last resort rather than failing outright.
		format = guessFormatByExtension(path)
	}

	switch format {
	case FormatFLAC:
		return parseFLAC(path, b, opts)
	case FormatOggVorbis:
		return parseOgg(path, b, opts)
	case FormatM4A:
		return parseMP4(path, b, opts)
	case FormatMP3:
		return parseMP3(path, b, opts)
	default:
		return nil, newErr(KindFormat, "unrecognized audio format", nil)
	}
}

// guessFormatByExtension is used only as a tie-breaker when sniff can't
// decide (e.g. an MP3 with no ID3v2 header and no confirmed frame sync in
// the first 8 KiB); content sniffing always wins when it produces a definite
// answer.
func guessFormatByExtension(path string) Format {
	switch filepath.Ext(path) {
	case ".mp3":
		return FormatMP3
	case ".flac":
		return FormatFLAC
	case ".ogg", ".oga":
		return FormatOggVorbis
	case ".m4a", ".m4b":
		return FormatM4A
	default:
		return FormatUnknown
	}
}
