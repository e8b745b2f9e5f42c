package memory

import "sort"

// InMemoryEpisodic is the session-scale store: a plain map keyed by claim
// hash. Owned by the pipeline, accessed only inside the tick step, so no
// locking.
type InMemoryEpisodic struct {
	entries map[uint64]EpisodicEntry
}

// NewInMemoryEpisodic returns an empty episodic store.
func NewInMemoryEpisodic() *InMemoryEpisodic {
	return &InMemoryEpisodic{entries: make(map[uint64]EpisodicEntry)}
}

func (e *InMemoryEpisodic) Put(entry EpisodicEntry) {
	e.entries[entry.Claim.KeyHash()] = entry
}

func (e *InMemoryEpisodic) GetByKey(key uint64) (EpisodicEntry, bool) {
	entry, ok := e.entries[key]
	return entry, ok
}

func (e *InMemoryEpisodic) GetBySubject(subject EntityId) []EpisodicEntry {
	var out []EpisodicEntry
	for _, entry := range e.entries {
		if entry.Claim.Subject == subject {
			out = append(out, entry)
		}
	}
	sortEpisodic(out)
	return out
}

func (e *InMemoryEpisodic) All() []EpisodicEntry {
	out := make([]EpisodicEntry, 0, len(e.entries))
	for _, entry := range e.entries {
		out = append(out, entry)
	}
	sortEpisodic(out)
	return out
}

func (e *InMemoryEpisodic) Delete(key uint64) {
	delete(e.entries, key)
}

func (e *InMemoryEpisodic) Len() int { return len(e.entries) }

// sortEpisodic orders strongest-first, then oldest-first for determinism.
func sortEpisodic(entries []EpisodicEntry) {
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Confidence != entries[j].Confidence {
			return entries[i].Confidence > entries[j].Confidence
		}
		return entries[i].FirstSeen < entries[j].FirstSeen
	})
}
