package skills

import (
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	fuzzy "github.com/paul-mannino/go-fuzzywuzzy"
	"gopkg.in/yaml.v3"
)

const (
	skillFileName   = "SKILL.md"
	searchThreshold = 60
)

var (
	errInvalidSkillYAML = errors.New("invalid skill YAML frontmatter")

	// ErrExists is returned by Create when a skill with the same name
	// is already on disk.
	ErrExists = errors.New("skill already exists")
)

// Skill is one markdown knowledge document: API usage notes the assistant
// writes for itself. The three sections mirror the document layout.
type Skill struct {
	Name           string
	Description    string
	Keywords       []string
	Authentication string
	Endpoints      string
	Notes          string
}

type skillFrontmatter struct {
	Name        string   `yaml:"name"`
	Description string   `yaml:"description"`
	Keywords    []string `yaml:"keywords"`
}

// Match pairs a skill with its search score in [0, 1].
type Match struct {
	Skill Skill
	Score float64
}

// Store is a file-backed skill library: one directory per skill holding a
// SKILL.md with YAML frontmatter and fixed markdown sections.
type Store struct {
	dir string
	mu  sync.Mutex
}

func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

// List loads every valid skill, sorted by name. Documents with broken
// frontmatter are skipped with a warning instead of failing the listing.
func (s *Store) List() ([]Skill, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listLocked()
}

func (s *Store) listLocked() ([]Skill, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read skills dir %q: %w", s.dir, err)
	}

	skills := make([]Skill, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		sk, skip, err := s.readFileLocked(filepath.Join(s.dir, entry.Name(), skillFileName))
		if err != nil {
			return nil, err
		}
		if skip {
			continue
		}
		skills = append(skills, *sk)
	}

	sort.Slice(skills, func(i, j int) bool { return skills[i].Name < skills[j].Name })
	return skills, nil
}

// Read returns the named skill, or nil if it does not exist.
func (s *Store) Read(name string) (*Skill, error) {
	name, err := normalizeName(name)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sk, skip, err := s.readFileLocked(s.skillPath(name))
	if err != nil {
		return nil, err
	}
	if skip {
		return nil, nil
	}
	return sk, nil
}

// Create writes a new skill document. The name must be a slug; an existing
// skill of the same name is an ErrExists.
func (s *Store) Create(sk Skill) (*Skill, error) {
	name, err := normalizeName(sk.Name)
	if err != nil {
		return nil, err
	}
	sk.Name = name
	sk.Keywords = sanitizeKeywords(sk.Keywords)

	s.mu.Lock()
	defer s.mu.Unlock()

	path := s.skillPath(name)
	if _, err := os.Stat(path); err == nil {
		return nil, fmt.Errorf("%w: %s", ErrExists, name)
	} else if !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("stat skill %q: %w", path, err)
	}

	if err := s.writeLocked(&sk); err != nil {
		return nil, err
	}
	return &sk, nil
}

// Update carries the fields Edit may change. Nil pointers leave the current
// value in place; a non-nil Keywords slice replaces the keyword list.
type Update struct {
	Description    *string
	Keywords       []string
	Authentication *string
	Endpoints      *string
	Notes          *string
}

// Edit applies an update to an existing skill and returns the new document,
// or nil if the skill does not exist.
func (s *Store) Edit(name string, up Update) (*Skill, error) {
	name, err := normalizeName(name)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sk, skip, err := s.readFileLocked(s.skillPath(name))
	if err != nil {
		return nil, err
	}
	if skip {
		return nil, nil
	}

	if up.Description != nil {
		sk.Description = strings.TrimSpace(*up.Description)
	}
	if up.Keywords != nil {
		sk.Keywords = sanitizeKeywords(up.Keywords)
	}
	if up.Authentication != nil {
		sk.Authentication = strings.TrimSpace(*up.Authentication)
	}
	if up.Endpoints != nil {
		sk.Endpoints = strings.TrimSpace(*up.Endpoints)
	}
	if up.Notes != nil {
		sk.Notes = strings.TrimSpace(*up.Notes)
	}

	if err := s.writeLocked(sk); err != nil {
		return nil, err
	}
	return sk, nil
}

// Search ranks skills against query by the best partial-ratio across name,
// description and keywords. Only matches at or above the threshold return.
func (s *Store) Search(query string) ([]Match, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	all, err := s.listLocked()
	if err != nil {
		return nil, err
	}

	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return nil, nil
	}

	matches := make([]Match, 0, len(all))
	for _, sk := range all {
		best := fuzzy.PartialRatio(q, strings.ToLower(sk.Name))
		if r := fuzzy.PartialRatio(q, strings.ToLower(sk.Description)); r > best {
			best = r
		}
		for _, kw := range sk.Keywords {
			if r := fuzzy.PartialRatio(q, kw); r > best {
				best = r
			}
		}
		if best >= searchThreshold {
			matches = append(matches, Match{Skill: sk, Score: float64(best) / 100})
		}
	}

	sort.SliceStable(matches, func(i, j int) bool { return matches[i].Score > matches[j].Score })
	return matches, nil
}

func (s *Store) skillPath(name string) string {
	return filepath.Join(s.dir, name, skillFileName)
}

func (s *Store) readFileLocked(path string) (*Skill, bool, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, true, nil
		}
		return nil, false, fmt.Errorf("read skill %q: %w", path, err)
	}

	meta, body, err := parseFrontmatter(content)
	if err != nil {
		if errors.Is(err, errInvalidSkillYAML) {
			log.Printf("[skills] warning: skip invalid YAML skill %s: %v", path, err)
			return nil, true, nil
		}
		return nil, false, fmt.Errorf("parse skill %q: %w", path, err)
	}
	if strings.TrimSpace(meta.Name) == "" {
		return nil, false, fmt.Errorf("parse skill %q: missing name", path)
	}

	sections := parseSections(body)
	return &Skill{
		Name:           strings.TrimSpace(meta.Name),
		Description:    strings.TrimSpace(meta.Description),
		Keywords:       sanitizeKeywords(meta.Keywords),
		Authentication: sections["authentication"],
		Endpoints:      sections["endpoints"],
		Notes:          sections["notes"],
	}, false, nil
}

func (s *Store) writeLocked(sk *Skill) error {
	dir := filepath.Dir(s.skillPath(sk.Name))
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create skill dir %q: %w", dir, err)
	}
	data := renderSkill(sk)
	path := s.skillPath(sk.Name)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, []byte(data), 0644); err != nil {
		return fmt.Errorf("write skill %q: %w", path, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("replace skill %q: %w", path, err)
	}
	return nil
}

func renderSkill(sk *Skill) string {
	var b strings.Builder
	b.WriteString("---\n")
	b.WriteString("name: " + sk.Name + "\n")
	b.WriteString("description: " + yamlScalar(sk.Description) + "\n")
	if len(sk.Keywords) > 0 {
		b.WriteString("keywords:\n")
		for _, kw := range sk.Keywords {
			b.WriteString("  - " + yamlScalar(kw) + "\n")
		}
	}
	b.WriteString("---\n\n")
	writeSection(&b, "Authentication", sk.Authentication)
	writeSection(&b, "Endpoints", sk.Endpoints)
	writeSection(&b, "Notes", sk.Notes)
	return b.String()
}

func writeSection(b *strings.Builder, title, body string) {
	b.WriteString("## " + title + "\n\n")
	body = strings.TrimSpace(body)
	if body == "" {
		body = "None."
	}
	b.WriteString(body + "\n\n")
}

// yamlScalar quotes a value so it survives the yaml round trip.
func yamlScalar(s string) string {
	out, err := yaml.Marshal(s)
	if err != nil {
		return "\"\""
	}
	return strings.TrimRight(string(out), "\n")
}

// parseSections splits a markdown body on "## Title" headers. Text before
// the first header is dropped; unknown headers are kept under their own key.
func parseSections(body string) map[string]string {
	sections := map[string]string{}
	current := ""
	var buf []string
	flush := func() {
		if current == "" {
			return
		}
		text := strings.TrimSpace(strings.Join(buf, "\n"))
		if text == "None." {
			text = ""
		}
		sections[current] = text
	}
	for _, line := range strings.Split(body, "\n") {
		if strings.HasPrefix(line, "## ") {
			flush()
			current = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(line, "## ")))
			buf = buf[:0]
			continue
		}
		buf = append(buf, line)
	}
	flush()
	return sections
}

func parseFrontmatter(content []byte) (skillFrontmatter, string, error) {
	text := strings.TrimPrefix(string(content), "\ufeff")
	lines := strings.Split(text, "\n")
	if len(lines) == 0 || strings.TrimSpace(lines[0]) != "---" {
		return skillFrontmatter{}, "", errors.New("missing YAML frontmatter")
	}

	end := -1
	for i := 1; i < len(lines); i++ {
		if strings.TrimSpace(lines[i]) == "---" {
			end = i
			break
		}
	}
	if end == -1 {
		return skillFrontmatter{}, "", errors.New("missing closing frontmatter separator")
	}

	frontmatter := strings.Join(lines[1:end], "\n")
	body := strings.Join(lines[end+1:], "\n")

	var meta skillFrontmatter
	if err := yaml.Unmarshal([]byte(frontmatter), &meta); err != nil {
		return skillFrontmatter{}, "", fmt.Errorf("%w: %v", errInvalidSkillYAML, err)
	}

	return meta, body, nil
}

// normalizeName lowercases and validates a skill name. Names are directory
// names, so only slug characters are allowed.
func normalizeName(name string) (string, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return "", errors.New("skill name is empty")
	}
	for _, r := range name {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-' || r == '_' {
			continue
		}
		return "", fmt.Errorf("invalid skill name %q: use letters, digits, - and _", name)
	}
	return name, nil
}

func sanitizeKeywords(keywords []string) []string {
	if len(keywords) == 0 {
		return nil
	}

	seen := make(map[string]struct{}, len(keywords))
	out := make([]string, 0, len(keywords))
	for _, keyword := range keywords {
		normalized := strings.ToLower(strings.TrimSpace(keyword))
		if normalized == "" {
			continue
		}
		if _, exists := seen[normalized]; exists {
			continue
		}
		seen[normalized] = struct{}{}
		out = append(out, normalized)
	}
	if len(out) == 0 {
		return nil
	}
	sort.Strings(out)

	return out
}
