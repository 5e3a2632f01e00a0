package profile

import "strings"

// Collections are stored as one string: members joined by '|', with '\'
// and '|' inside a member escaped by a preceding '\'. An empty collection
// encodes to "" and a single empty member to "\e".

const (
	delimiter   = '|'
	escape      = '\\'
	emptyMarker = `\e`
)

// EncodeCollection joins items into a single escaped string.
func EncodeCollection(items []string) string {
	if len(items) == 1 && items[0] == "" {
		return emptyMarker
	}
	var b strings.Builder
	for i, it := range items {
		if i > 0 {
			b.WriteByte(delimiter)
		}
		for j := 0; j < len(it); j++ {
			c := it[j]
			if c == delimiter || c == escape {
				b.WriteByte(escape)
			}
			b.WriteByte(c)
		}
	}
	return b.String()
}

// DecodeCollection is the inverse of EncodeCollection. A dangling escape
// at the end of the input is kept literally.
func DecodeCollection(s string) []string {
	if s == "" {
		return nil
	}
	if s == emptyMarker {
		return []string{""}
	}
	var (
		items []string
		cur   strings.Builder
	)
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == escape && i+1 < len(s):
			i++
			cur.WriteByte(s[i])
		case c == delimiter:
			items = append(items, cur.String())
			cur.Reset()
		default:
			cur.WriteByte(c)
		}
	}
	return append(items, cur.String())
}
