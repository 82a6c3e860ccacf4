package search

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/bluecoinverse/coinverse/internal/store"
)

// History and favorites caps.
const (
	MaxHistory   = 50
	MaxFavorites = 20
)

const (
	keyHistory   = "search_history"
	keyFavorites = "search_favorites"
)

// HistoryEntry is one persisted search with its result.
type HistoryEntry struct {
	ID        string    `json:"id"`
	Query     string    `json:"query"`
	Result    Result    `json:"result"`
	Timestamp time.Time `json:"timestamp"`
	Favorite  bool      `json:"isFavorite"`
}

// Favorite is a pinned search.
type Favorite struct {
	ID          string    `json:"id"`
	Query       string    `json:"query"`
	DisplayName string    `json:"displayName"`
	Timestamp   time.Time `json:"timestamp"`
}

// History persists search history and favorites. A corrupted stored list
// reads back as empty rather than failing.
type History struct {
	store        *store.Store
	now          func() time.Time
	maxEntries   int
	maxFavorites int
}

// NewHistory creates a history over st with the default caps.
func NewHistory(st *store.Store) *History {
	return NewHistoryWith(st, MaxHistory, MaxFavorites)
}

// NewHistoryWith creates a history over st with explicit caps.
func NewHistoryWith(st *store.Store, maxEntries, maxFavorites int) *History {
	if maxEntries <= 0 {
		maxEntries = MaxHistory
	}
	if maxFavorites <= 0 {
		maxFavorites = MaxFavorites
	}
	return &History{store: st, now: time.Now, maxEntries: maxEntries, maxFavorites: maxFavorites}
}

// Entries returns the history, newest first.
func (h *History) Entries() []HistoryEntry {
	var entries []HistoryEntry
	h.store.GetJSON(keyHistory, &entries)
	return entries
}

// Save prepends a new entry for query, replacing any previous entry with
// the same query regardless of case, and trims to the cap.
func (h *History) Save(query string, result Result) {
	entry := HistoryEntry{
		ID:        uuid.NewString(),
		Query:     strings.TrimSpace(query),
		Result:    result,
		Timestamp: h.now(),
	}

	kept := []HistoryEntry{entry}
	for _, e := range h.Entries() {
		if !strings.EqualFold(e.Query, entry.Query) {
			kept = append(kept, e)
		}
	}
	if len(kept) > h.maxEntries {
		kept = kept[:h.maxEntries]
	}
	_ = h.store.PutJSON(keyHistory, kept)
}

// Find returns the history entry whose query matches, ignoring case.
func (h *History) Find(query string) (HistoryEntry, bool) {
	for _, e := range h.Entries() {
		if strings.EqualFold(e.Query, query) {
			return e, true
		}
	}
	return HistoryEntry{}, false
}

// Favorites returns the pinned searches, newest first.
func (h *History) Favorites() []Favorite {
	var favorites []Favorite
	h.store.GetJSON(keyFavorites, &favorites)
	return favorites
}

// AddFavorite pins the history entry with the given id: the entry is
// flagged and, unless a favorite with the same query already exists, a
// favorite is prepended (capped).
func (h *History) AddFavorite(id string) error {
	entries := h.Entries()
	idx := -1
	for i, e := range entries {
		if e.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return fmt.Errorf("search: no history entry %s", id)
	}
	entries[idx].Favorite = true
	_ = h.store.PutJSON(keyHistory, entries)

	favorites := h.Favorites()
	for _, f := range favorites {
		if strings.EqualFold(f.Query, entries[idx].Query) {
			return nil
		}
	}
	name := entries[idx].Result.Product
	if name == "" {
		name = entries[idx].Query
	}
	favorites = append([]Favorite{{
		ID:          entries[idx].ID,
		Query:       entries[idx].Query,
		DisplayName: name,
		Timestamp:   h.now(),
	}}, favorites...)
	if len(favorites) > h.maxFavorites {
		favorites = favorites[:h.maxFavorites]
	}
	return h.store.PutJSON(keyFavorites, favorites)
}

// RemoveFavorite unpins the entry with the given id, clearing its history
// flag and dropping it from the favorites list.
func (h *History) RemoveFavorite(id string) error {
	entries := h.Entries()
	for i, e := range entries {
		if e.ID == id {
			entries[i].Favorite = false
		}
	}
	_ = h.store.PutJSON(keyHistory, entries)

	favorites := h.Favorites()
	kept := favorites[:0]
	for _, f := range favorites {
		if f.ID != id {
			kept = append(kept, f)
		}
	}
	return h.store.PutJSON(keyFavorites, kept)
}

// Clear wipes both the history and the favorites.
func (h *History) Clear() error {
	return h.store.Delete(keyHistory, keyFavorites)
}
