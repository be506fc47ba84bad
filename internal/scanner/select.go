package scanner

import (
	"sort"

	"github.com/cognitoforge/redteam-backend/model"
)

// DefaultSelectLimit is the number of files returned by SelectHighRisk when no limit is given.
const DefaultSelectLimit = 15

type priority struct {
	tier  int
	vulns int
	size  int64
}

func priorityOf(f model.FileEntry) priority {
	p := priority{size: -f.Size}
	if len(f.Vulnerabilities) > 0 {
		p.vulns = -len(f.Vulnerabilities)
		return p
	}
	// critical 1 through low 4; unknown levels sort last
	p.tier = 1 + model.SeverityCritical.Rank() - f.RiskLevel.Rank()
	return p
}

func (p priority) less(o priority) bool {
	if p.tier != o.tier {
		return p.tier < o.tier
	}
	if p.vulns != o.vulns {
		return p.vulns < o.vulns
	}
	return p.size < o.size
}

// SelectHighRisk ranks manifest files by priority and returns at most limit
// of them. Vulnerable files come first, then critical, high and medium tiers,
// larger files first within a tier. Ties keep manifest order.
func SelectHighRisk(m *model.Manifest, limit int) []model.FileEntry {
	if m == nil || limit == 0 {
		return []model.FileEntry{}
	}
	if limit < 0 {
		limit = DefaultSelectLimit
	}

	ranked := make([]model.FileEntry, len(m.Files))
	copy(ranked, m.Files)
	keys := make([]priority, len(ranked))
	for i, f := range ranked {
		keys[i] = priorityOf(f)
	}

	sort.Stable(byPriority{files: ranked, keys: keys})

	if len(ranked) > limit {
		ranked = ranked[:limit]
	}
	return ranked
}

type byPriority struct {
	files []model.FileEntry
	keys  []priority
}

func (b byPriority) Len() int           { return len(b.files) }
func (b byPriority) Less(i, j int) bool { return b.keys[i].less(b.keys[j]) }
func (b byPriority) Swap(i, j int) {
	b.files[i], b.files[j] = b.files[j], b.files[i]
	b.keys[i], b.keys[j] = b.keys[j], b.keys[i]
}
