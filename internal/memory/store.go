package memory

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	fuzzy "github.com/paul-mannino/go-fuzzywuzzy"
)

const (
	fuzzyThreshold    = 60  // partial-ratio floor, out of 100
	semanticThreshold = 0.3 // cosine floor
	semanticMinFuzzy  = 3   // semantic pass runs only below this many fuzzy hits
	importanceMin     = 1
	importanceMax     = 10
	importanceBoost   = 2

	DefaultSearchLimit = 5
)

// Store owns one JSON file of memories per guild. Guild lists are independent;
// the single mutex is enough because every operation loads, mutates and
// rewrites one whole file.
type Store struct {
	dir string
	mu  sync.Mutex
	now func() time.Time
}

func NewStore(dir string) *Store {
	return &Store{dir: dir, now: time.Now}
}

// SetClock overrides the time source (for tests).
func (s *Store) SetClock(now func() time.Time) { s.now = now }

type guildFile struct {
	Memories []Memory `json:"memories"`
}

// Save creates a new memory. Importance is clamped to [1, 10]; the embedding
// is computed synchronously at write time.
func (s *Store) Save(guildID, content string, tags []string, importance int, ttlDays float64, sourceMessageID string) (Memory, error) {
	if strings.TrimSpace(content) == "" {
		return Memory{}, fmt.Errorf("save memory: empty content")
	}
	if importance < importanceMin {
		importance = importanceMin
	}
	if importance > importanceMax {
		importance = importanceMax
	}

	created := s.now().UTC()
	expires := created.Add(time.Duration(ttlDays * 24 * float64(time.Hour)))
	if !expires.After(created) {
		expires = created.Add(time.Nanosecond)
	}

	mem := Memory{
		ID:              uuid.NewString(),
		Content:         content,
		Tags:            normalizeTags(tags),
		Importance:      importance,
		CreatedAt:       created,
		ExpiresAt:       expires,
		Embedding:       Embed(content),
		SourceMessageID: sourceMessageID,
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	gf, err := s.loadLocked(guildID)
	if err != nil {
		return Memory{}, err
	}
	gf.Memories = append(gf.Memories, mem)
	if err := s.persistLocked(guildID, gf); err != nil {
		return Memory{}, err
	}
	return mem, nil
}

// SearchOptions narrows a memory search.
type SearchOptions struct {
	Tags          []string // any-match filter, empty = all
	MinImportance int      // default 1
	Limit         int      // default 5
	Semantic      bool     // enable the vector fallback pass
}

// Search ranks a guild's memories against query. Expired and under-threshold
// records never surface. Returned memories get their access count bumped and
// last-accessed stamped, persisted immediately.
func (s *Store) Search(guildID, query string, opts SearchOptions) ([]Scored, error) {
	if opts.MinImportance < importanceMin {
		opts.MinImportance = importanceMin
	}
	if opts.Limit <= 0 {
		opts.Limit = DefaultSearchLimit
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	gf, err := s.loadLocked(guildID)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	tagFilter := normalizeTags(opts.Tags)

	candidates := make([]*Memory, 0, len(gf.Memories))
	for i := range gf.Memories {
		m := &gf.Memories[i]
		if m.Expired(now) || m.Importance < opts.MinImportance {
			continue
		}
		if len(tagFilter) > 0 && !anyTagMatch(m.Tags, tagFilter) {
			continue
		}
		candidates = append(candidates, m)
	}

	queryLower := strings.ToLower(query)
	matched := make([]Scored, 0, len(candidates))
	matchedIDs := make(map[string]struct{})

	for _, m := range candidates {
		ratio := fuzzy.PartialRatio(queryLower, strings.ToLower(m.Content))
		if ratio >= fuzzyThreshold {
			matched = append(matched, Scored{Memory: *m, Score: float64(ratio) / 100})
			matchedIDs[m.ID] = struct{}{}
		}
	}

	if len(matched) < semanticMinFuzzy && opts.Semantic {
		queryVec := Embed(query)
		for _, m := range candidates {
			if _, dup := matchedIDs[m.ID]; dup {
				continue
			}
			sim := CosineSimilarity(queryVec, m.Embedding)
			if sim > semanticThreshold {
				matched = append(matched, Scored{Memory: *m, Score: sim})
				matchedIDs[m.ID] = struct{}{}
			}
		}
	}

	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].Score > matched[j].Score
	})
	if len(matched) > opts.Limit {
		matched = matched[:opts.Limit]
	}

	if len(matched) > 0 {
		for i := range matched {
			for j := range gf.Memories {
				if gf.Memories[j].ID == matched[i].Memory.ID {
					gf.Memories[j].AccessCount++
					stamp := now
					gf.Memories[j].LastAccessed = &stamp
					matched[i].Memory = gf.Memories[j]
					break
				}
			}
		}
		if err := s.persistLocked(guildID, gf); err != nil {
			return nil, err
		}
	}

	return matched, nil
}

// Update applies one action to a memory by id. Returns nil if the id is
// unknown. ttlDays only applies to ActionExtend.
func (s *Store) Update(guildID, id, action string, ttlDays float64) (*Memory, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	gf, err := s.loadLocked(guildID)
	if err != nil {
		return nil, err
	}

	idx := -1
	for i := range gf.Memories {
		if gf.Memories[i].ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, nil
	}

	switch action {
	case ActionDelete:
		removed := gf.Memories[idx]
		gf.Memories = append(gf.Memories[:idx], gf.Memories[idx+1:]...)
		if err := s.persistLocked(guildID, gf); err != nil {
			return nil, err
		}
		return &removed, nil
	case ActionExtend:
		if ttlDays <= 0 {
			ttlDays = 1
		}
		gf.Memories[idx].ExpiresAt = s.now().UTC().Add(time.Duration(ttlDays * 24 * float64(time.Hour)))
	case ActionIncreaseImportance:
		imp := gf.Memories[idx].Importance + importanceBoost
		if imp > importanceMax {
			imp = importanceMax
		}
		gf.Memories[idx].Importance = imp
	default:
		return nil, fmt.Errorf("update memory: unknown action %q", action)
	}

	if err := s.persistLocked(guildID, gf); err != nil {
		return nil, err
	}
	mem := gf.Memories[idx]
	return &mem, nil
}

// CleanupExpired removes every expired memory for one guild, or for all
// guilds when guildID is empty. Returns the number removed.
func (s *Store) CleanupExpired(guildID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	guilds := []string{guildID}
	if guildID == "" {
		var err error
		guilds, err = s.guildIDsLocked()
		if err != nil {
			return 0, err
		}
	}

	now := s.now().UTC()
	removed := 0
	for _, g := range guilds {
		gf, err := s.loadLocked(g)
		if err != nil {
			return removed, err
		}
		kept := gf.Memories[:0]
		before := len(gf.Memories)
		for _, m := range gf.Memories {
			if m.Expired(now) {
				continue
			}
			kept = append(kept, m)
		}
		gf.Memories = kept
		if len(kept) == before {
			continue
		}
		removed += before - len(kept)
		if err := s.persistLocked(g, gf); err != nil {
			return removed, err
		}
	}
	return removed, nil
}

// Stats summarizes one guild's memories.
func (s *Store) Stats(guildID string) (Stats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	gf, err := s.loadLocked(guildID)
	if err != nil {
		return Stats{}, err
	}

	now := s.now().UTC()
	st := Stats{Total: len(gf.Memories), TopTags: map[string]int{}}
	var importanceSum int
	tagCounts := map[string]int{}
	for _, m := range gf.Memories {
		if m.Expired(now) {
			st.Expired++
		} else {
			st.Active++
		}
		importanceSum += m.Importance
		for _, tag := range m.Tags {
			tagCounts[tag]++
		}
	}
	if st.Total > 0 {
		st.AverageImportance = float64(importanceSum) / float64(st.Total)
	}

	type tagCount struct {
		tag string
		n   int
	}
	counts := make([]tagCount, 0, len(tagCounts))
	for tag, n := range tagCounts {
		counts = append(counts, tagCount{tag, n})
	}
	sort.Slice(counts, func(i, j int) bool {
		if counts[i].n != counts[j].n {
			return counts[i].n > counts[j].n
		}
		return counts[i].tag < counts[j].tag
	})
	for i, tc := range counts {
		if i >= 5 {
			break
		}
		st.TopTags[tc.tag] = tc.n
	}
	return st, nil
}

// GuildIDs lists guilds that have a memory file.
func (s *Store) GuildIDs() ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.guildIDsLocked()
}

func (s *Store) guildIDsLocked() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read memory dir: %w", err)
	}
	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		ids = append(ids, strings.TrimSuffix(name, ".json"))
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *Store) guildPath(guildID string) string {
	return filepath.Join(s.dir, guildID+".json")
}

func (s *Store) loadLocked(guildID string) (*guildFile, error) {
	data, err := os.ReadFile(s.guildPath(guildID))
	if err != nil {
		if os.IsNotExist(err) {
			return &guildFile{}, nil
		}
		return nil, fmt.Errorf("read guild memory: %w", err)
	}
	var gf guildFile
	if err := json.Unmarshal(data, &gf); err != nil {
		return nil, fmt.Errorf("parse guild memory: %w", err)
	}
	return &gf, nil
}

func (s *Store) persistLocked(guildID string, gf *guildFile) error {
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return fmt.Errorf("create memory dir: %w", err)
	}
	data, err := json.MarshalIndent(gf, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal guild memory: %w", err)
	}
	path := s.guildPath(guildID)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("write guild memory: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("replace guild memory: %w", err)
	}
	return nil
}

func normalizeTags(tags []string) []string {
	seen := make(map[string]struct{}, len(tags))
	out := make([]string, 0, len(tags))
	for _, tag := range tags {
		t := strings.ToLower(strings.TrimSpace(tag))
		if t == "" {
			continue
		}
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}

func anyTagMatch(have, want []string) bool {
	for _, w := range want {
		for _, h := range have {
			if h == w {
				return true
			}
		}
	}
	return false
}
