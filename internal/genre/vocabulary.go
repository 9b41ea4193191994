// Package genre maps free-text mood descriptions to genre labels by semantic
// similarity against a small vocabulary that grows when nothing matches.
package genre

import "sync"

// DefaultSeedGenres is the vocabulary a new engine starts with.
var DefaultSeedGenres = []string{
	"pop", "rock", "hip hop", "edm", "country", "jazz",
	"classical", "study", "sleep", "chill", "sad", "happy",
	"romance", "party", "metal", "r&b", "dance", "ambient",
}

// Vocabulary is an ordered set of unique genre labels. Labels are only ever
// appended; positions are stable for the life of the vocabulary.
type Vocabulary struct {
	mu     sync.RWMutex
	labels []string
	pos    map[string]int
}

// NewVocabulary returns a vocabulary seeded with labels in order. Repeated
// labels keep their first position.
func NewVocabulary(seed []string) *Vocabulary {
	v := &Vocabulary{
		labels: make([]string, 0, len(seed)),
		pos:    make(map[string]int, len(seed)),
	}
	for _, label := range seed {
		v.add(label)
	}
	return v
}

// Add appends label if it is not already present and reports whether it did.
func (v *Vocabulary) Add(label string) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.add(label)
}

func (v *Vocabulary) add(label string) bool {
	if _, ok := v.pos[label]; ok {
		return false
	}
	v.pos[label] = len(v.labels)
	v.labels = append(v.labels, label)
	return true
}

// Labels returns a copy of the labels in vocabulary order.
func (v *Vocabulary) Labels() []string {
	v.mu.RLock()
	defer v.mu.RUnlock()
	out := make([]string, len(v.labels))
	copy(out, v.labels)
	return out
}

// Contains reports whether label is in the vocabulary (exact match).
func (v *Vocabulary) Contains(label string) bool {
	_, ok := v.Position(label)
	return ok
}

// Position returns the index of label in the vocabulary.
func (v *Vocabulary) Position(label string) (int, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	i, ok := v.pos[label]
	return i, ok
}

// Len returns the number of labels.
func (v *Vocabulary) Len() int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return len(v.labels)
}
