package model

// Vocabulary maps between token ids and their text. Ids are assigned
// sequentially in file order.
type Vocabulary struct {
	words []string
	ids   map[string]int
}

func newVocabulary(words []string) *Vocabulary {
	v := &Vocabulary{words: words, ids: make(map[string]int, len(words))}
	for i, w := range words {
		// First occurrence wins when the file carries duplicates.
		if _, ok := v.ids[w]; !ok {
			v.ids[w] = i
		}
	}
	return v
}

// Size returns the number of entries.
func (v *Vocabulary) Size() int { return len(v.words) }

// Text returns the text of a token id, or "" when out of range.
func (v *Vocabulary) Text(id int) string {
	if id < 0 || id >= len(v.words) {
		return ""
	}
	return v.words[id]
}

// ID returns the id for an exact token text.
func (v *Vocabulary) ID(text string) (int, bool) {
	id, ok := v.ids[text]
	return id, ok
}

// Tokenize splits text greedily: at each position it takes the longest
// vocabulary entry that prefixes the remainder. Text with no matching
// prefix at some position cannot be encoded and yields false.
func (v *Vocabulary) Tokenize(text string) ([]int, bool) {
	var toks []int
	for len(text) > 0 {
		best := -1
		bestLen := 0
		for w, id := range v.ids {
			if len(w) > bestLen && len(w) <= len(text) && text[:len(w)] == w {
				best = id
				bestLen = len(w)
			}
		}
		if best < 0 {
			return nil, false
		}
		toks = append(toks, best)
		text = text[bestLen:]
	}
	return toks, true
}
