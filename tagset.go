package audiotag

// TagValue is a single decoded tag value. Exactly one of the typed fields is
// meaningful, selected by Kind.
type TagValueKind int

const (
	TagText TagValueKind = iota
	TagInt
	TagBool
	TagBinary
	TagPicture
	// TagPair is a (number, total) pair, produced for MP4 trkn/disk. Vorbis
	// "TRACKNUMBER=3/12"-style fields stay text, and ID3v2 TRCK/TPOS keep
	// only the number as TagInt.
	TagPair
)

type Picture struct {
	MIME        string
	Description string
	Data        []byte
}

type TagValue struct {
	Kind    TagValueKind
	Text    string
	Int     int64
	Bool    bool
	Binary  []byte
	Picture Picture
	// Pair holds (Num, Total) when Kind == TagPair.
	Num, Total int
}

type tagEntry struct {
	Key   string
	Value TagValue
}

// TagSet is an ordered multimap of tag key to value, preserving the order
// values were parsed in (frames/comments of the same key may legally repeat,
// e.g. multiple COMM frames with different languages) while still offering
// O(1) lookup by key.
type TagSet struct {
	entries []tagEntry
	index   map[string][]int
}

func newTagSet() *TagSet {
	return &TagSet{index: make(map[string][]int)}
}

// Add appends a value under key, preserving any existing values for that key.
func (t *TagSet) Add(key string, v TagValue) {
	t.index[key] = append(t.index[key], len(t.entries))
	t.entries = append(t.entries, tagEntry{Key: key, Value: v})
}

// First returns the first value stored under key, if any.
func (t *TagSet) First(key string) (TagValue, bool) {
	idx, ok := t.index[key]
	if !ok || len(idx) == 0 {
		return TagValue{}, false
	}
	return t.entries[idx[0]].Value, true
}

// All returns every value stored under key, in insertion order.
func (t *TagSet) All(key string) []TagValue {
	idx := t.index[key]
	if len(idx) == 0 {
		return nil
	}
	out := make([]TagValue, len(idx))
	for i, e := range idx {
		out[i] = t.entries[e].Value
	}
	return out
}

// Keys returns the set of distinct keys present, in first-seen order.
func (t *TagSet) Keys() []string {
	keys := make([]string, 0, len(t.index))
	seen := make(map[string]bool, len(t.index))
	for _, e := range t.entries {
		if !seen[e.Key] {
			seen[e.Key] = true
			keys = append(keys, e.Key)
		}
	}
	return keys
}

// Len returns the total number of values across all keys.
func (t *TagSet) Len() int { return len(t.entries) }
