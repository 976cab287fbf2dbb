package stats

import (
	"sort"
	"strings"

	"github.com/trendwire/trendwire/internal/config"
	"github.com/trendwire/trendwire/internal/models"
)

// Analysis modes. The mode selects the candidate title universe before any
// keyword matching happens.
const (
	ModeIncremental = "incremental"
	ModeCurrent     = "current"
	ModeDaily       = "daily"
)

// Input carries one cycle's raw data into Compute. All fields are read-only
// during the run.
type Input struct {
	// History holds every title observed so far today, per source.
	History models.TitleHistory
	// LatestBatch holds the most recent crawl only; used by mode "current".
	LatestBatch models.CrawlResults
	// NewTitles lists titles first observed in the latest batch, per source;
	// used by mode "incremental" and for the is-new marker.
	NewTitles map[string][]string
	// SourceNames maps source ID to display name.
	SourceNames map[string]string

	Groups        []models.KeywordGroup
	GlobalFilters []string

	// PlatformMode re-buckets matched titles by source platform instead of
	// by keyword group, ordered by weighted rank/count score.
	PlatformMode bool
}

// Engine computes keyword statistics for one analysis cycle.
type Engine struct {
	cfg config.ReportConfig
}

// New returns an engine bound to the given report settings.
func New(cfg config.ReportConfig) *Engine {
	return &Engine{cfg: cfg}
}

type candidate struct {
	rec        models.TitleRecord
	sourceID   string
	sourceName string
	isNew      bool
}

// Compute matches the mode-selected candidate titles against the keyword
// groups, deduplicates near-identical titles within each group, applies the
// per-keyword cap, and returns the entries plus the total candidate count.
// Malformed groups (empty word) are skipped; no matches yields an empty
// slice, not an error.
func (e *Engine) Compute(in Input) ([]models.StatEntry, int) {
	candidates := e.selectCandidates(in)
	total := len(candidates)

	eligible := candidates[:0:0]
	for _, c := range candidates {
		if containsAny(c.rec.Title, in.GlobalFilters) {
			continue
		}
		eligible = append(eligible, c)
	}

	if in.PlatformMode {
		return e.computePlatform(in, eligible), total
	}

	type bucket struct {
		word  string
		cands []candidate
	}
	buckets := make([]bucket, 0, len(in.Groups))
	index := make(map[int]int, len(in.Groups))
	for gi, g := range in.Groups {
		if g.Word == "" {
			continue
		}
		index[gi] = len(buckets)
		buckets = append(buckets, bucket{word: g.Word})
	}

	// First matching group claims the title.
	for _, c := range eligible {
		for gi, g := range in.Groups {
			if g.Word == "" {
				continue
			}
			if g.Matches(c.rec.Title) {
				bi := index[gi]
				buckets[bi].cands = append(buckets[bi].cands, c)
				break
			}
		}
	}

	entries := make([]models.StatEntry, 0, len(buckets))
	for _, b := range buckets {
		if len(b.cands) == 0 {
			continue
		}
		entries = append(entries, models.StatEntry{
			Word:   b.word,
			Count:  len(b.cands),
			Titles: e.dedupAndCap(b.cands),
		})
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Count > entries[j].Count
	})
	return entries, total
}

// selectCandidates applies the mode to the day's history and returns the
// candidate titles in a deterministic order: sources sorted by ID, titles by
// first-seen time then title text.
func (e *Engine) selectCandidates(in Input) []candidate {
	newSet := make(map[string]map[string]bool, len(in.NewTitles))
	for src, titles := range in.NewTitles {
		set := make(map[string]bool, len(titles))
		for _, t := range titles {
			set[t] = true
		}
		newSet[src] = set
	}

	sources := make([]string, 0, len(in.History))
	for src := range in.History {
		sources = append(sources, src)
	}
	sort.Strings(sources)

	var out []candidate
	for _, src := range sources {
		name := in.SourceNames[src]
		if name == "" {
			name = src
		}

		records := in.History[src]
		titles := make([]string, 0, len(records))
		for t := range records {
			titles = append(titles, t)
		}
		sort.Slice(titles, func(i, j int) bool {
			a, b := records[titles[i]], records[titles[j]]
			if a.FirstSeen != b.FirstSeen {
				return a.FirstSeen < b.FirstSeen
			}
			return a.Title < b.Title
		})

		for _, t := range titles {
			isNew := newSet[src][t]
			switch e.cfg.Mode {
			case ModeIncremental:
				if !isNew {
					continue
				}
			case ModeCurrent:
				if in.LatestBatch == nil {
					continue
				}
				if _, ok := in.LatestBatch[src][t]; !ok {
					continue
				}
			}
			out = append(out, candidate{
				rec:        records[t],
				sourceID:   src,
				sourceName: name,
				isNew:      isNew,
			})
		}
	}
	return out
}

// dedupAndCap collapses near-duplicate titles in candidate order, then
// truncates to the configured per-keyword cap.
func (e *Engine) dedupAndCap(cands []candidate) []models.TitleItem {
	accepted := make([]models.TitleItem, 0, len(cands))
	for _, c := range cands {
		merged := false
		for i := range accepted {
			if Similarity(accepted[i].Title, c.rec.Title) > e.cfg.SimilarityThreshold {
				accepted[i].Count++
				accepted[i].Ranks = unionRanks(accepted[i].Ranks, c.rec.Ranks)
				if c.isNew {
					accepted[i].IsNew = true
				}
				merged = true
				break
			}
		}
		if merged {
			continue
		}
		accepted = append(accepted, models.TitleItem{
			Title:       c.rec.Title,
			SourceName:  c.sourceName,
			Ranks:       unionRanks(nil, c.rec.Ranks),
			Count:       1,
			URL:         c.rec.URL,
			TimeDisplay: timeDisplay(c.rec),
			IsNew:       c.isNew,
			FirstSeen:   c.rec.FirstSeen,
		})
	}

	if e.cfg.SortByPositionFirst {
		sort.SliceStable(accepted, func(i, j int) bool {
			return rankKey(accepted[i]) < rankKey(accepted[j])
		})
	}
	if limit := e.cfg.MaxNewsPerKeyword; limit > 0 && len(accepted) > limit {
		accepted = accepted[:limit]
	}
	return accepted
}

// computePlatform buckets matched titles by source platform and orders the
// platforms by weighted score: better (lower) ranks and more merged hits
// score higher. Ties break by earliest first-seen time.
func (e *Engine) computePlatform(in Input, eligible []candidate) []models.StatEntry {
	type platform struct {
		name      string
		cands     []candidate
		firstSeen string
	}
	byID := make(map[string]*platform)
	var order []string

	for _, c := range eligible {
		if !matchesAny(c.rec.Title, in.Groups) {
			continue
		}
		p, ok := byID[c.sourceID]
		if !ok {
			p = &platform{name: c.sourceName, firstSeen: c.rec.FirstSeen}
			byID[c.sourceID] = p
			order = append(order, c.sourceID)
		}
		p.cands = append(p.cands, c)
		if c.rec.FirstSeen != "" && (p.firstSeen == "" || c.rec.FirstSeen < p.firstSeen) {
			p.firstSeen = c.rec.FirstSeen
		}
	}

	type scored struct {
		entry     models.StatEntry
		score     float64
		firstSeen string
	}
	entries := make([]scored, 0, len(order))
	for _, id := range order {
		p := byID[id]
		titles := e.dedupAndCap(p.cands)
		score := 0.0
		for _, t := range titles {
			if best := t.BestRank(); best > 0 {
				score += e.cfg.RankWeight / float64(best)
			}
			score += e.cfg.CountWeight * float64(t.Count)
		}
		entries = append(entries, scored{
			entry:     models.StatEntry{Word: p.name, Count: len(p.cands), Titles: titles},
			score:     score,
			firstSeen: p.firstSeen,
		})
	}

	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].score != entries[j].score {
			return entries[i].score > entries[j].score
		}
		return entries[i].firstSeen < entries[j].firstSeen
	})

	out := make([]models.StatEntry, len(entries))
	for i, s := range entries {
		out[i] = s.entry
	}
	return out
}

// FilterRSS returns the feed items that match at least one keyword group and
// hit no global filter word, preserving input order. Items from standalone
// feeds should not be passed here.
func FilterRSS(items []models.RSSItem, groups []models.KeywordGroup, globalFilters []string) []models.RSSItem {
	var out []models.RSSItem
	for _, it := range items {
		if containsAny(it.Title, globalFilters) {
			continue
		}
		if matchesAny(it.Title, groups) {
			out = append(out, it)
		}
	}
	return out
}

func matchesAny(title string, groups []models.KeywordGroup) bool {
	for _, g := range groups {
		if g.Word == "" {
			continue
		}
		if g.Matches(title) {
			return true
		}
	}
	return false
}

func containsAny(title string, words []string) bool {
	for _, w := range words {
		if w != "" && strings.Contains(title, w) {
			return true
		}
	}
	return false
}

func unionRanks(dst, src []int) []int {
	seen := make(map[int]bool, len(dst)+len(src))
	out := make([]int, 0, len(dst)+len(src))
	for _, r := range dst {
		if !seen[r] {
			seen[r] = true
			out = append(out, r)
		}
	}
	for _, r := range src {
		if !seen[r] {
			seen[r] = true
			out = append(out, r)
		}
	}
	sort.Ints(out)
	return out
}

// rankKey orders items by best rank with unranked items last.
func rankKey(t models.TitleItem) int {
	if best := t.BestRank(); best > 0 {
		return best
	}
	return 1 << 30
}

func timeDisplay(r models.TitleRecord) string {
	if r.FirstSeen == "" {
		return ""
	}
	if r.LastSeen != "" && r.LastSeen != r.FirstSeen {
		return r.FirstSeen + " ~ " + r.LastSeen
	}
	return r.FirstSeen
}
