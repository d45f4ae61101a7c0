package sqlite

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"unicode"

	"github.com/agentkits/memory/internal/types"
)

// SearchEntriesByVector brute-force scans the memory_vec shadow table,
// scoring every candidate (restricted first by filter's structural
// predicates) by cosine similarity, then returns the top k above
// threshold. There is no ANN index: at the entry counts a single project's
// memory reaches, a full scan is fast enough and avoids an extra native
// dependency.
func (s *SQLiteStorage) SearchEntriesByVector(ctx context.Context, vector []float32, k int, threshold float64, filter types.EntryFilter) ([]types.ScoredEntry, error) {
	if len(vector) == 0 {
		return nil, nil
	}

	where, args := buildEntryWhere(filter)
	query := fmt.Sprintf(`
		SELECT %s FROM memory_entries
		JOIN memory_vec ON memory_vec.entry_id = memory_entries.id
	`, prefixColumns("memory_entries", entryColumns))
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrapDBError("search entries by vector", err)
	}
	defer func() { _ = rows.Close() }()

	var candidates []*types.Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, wrapDBError("scan vector candidate", err)
		}
		candidates = append(candidates, e)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapDBError("iterate vector candidates", err)
	}

	vecRows, err := s.db.QueryContext(ctx, `SELECT entry_id, vector FROM memory_vec`)
	if err != nil {
		return nil, wrapDBError("load vectors", err)
	}
	defer func() { _ = vecRows.Close() }()

	vectors := make(map[string][]float32)
	for vecRows.Next() {
		var id string
		var blob []byte
		if err := vecRows.Scan(&id, &blob); err != nil {
			return nil, wrapDBError("scan vector", err)
		}
		vectors[id] = decodeVector(blob)
	}

	var scored []types.ScoredEntry
	for _, e := range candidates {
		vec, ok := vectors[e.ID]
		if !ok || len(vec) != len(vector) {
			continue
		}
		score := cosineSimilarity(vector, vec)
		if score < threshold {
			continue
		}
		scored = append(scored, types.ScoredEntry{Entry: e, Score: score, VectorScore: score})
	}

	sort.Slice(scored, func(i, j int) bool { return scored[i].Score > scored[j].Score })
	if k > 0 && len(scored) > k {
		scored = scored[:k]
	}
	return scored, nil
}

// prefixColumns rewrites a "a, b, c" column list into "table.a, table.b,
// table.c" for use in a JOIN query where column names would otherwise be
// ambiguous.
func prefixColumns(table, columns string) string {
	parts := strings.Split(columns, ",")
	for i, p := range parts {
		p = strings.TrimSpace(p)
		parts[i] = table + "." + p
	}
	return strings.Join(parts, ", ")
}

var nonWordRe = regexp.MustCompile(`[^\p{L}\p{N}_]+`)

// sanitizeFTSQuery strips punctuation, splits on whitespace, quotes each
// term, and OR-joins them so any one matching term surfaces a result.
// Returns "" if nothing alphanumeric survives, signalling "no results"
// rather than an FTS5 syntax error on an all-punctuation query.
func sanitizeFTSQuery(q string) string {
	terms := strings.Fields(nonWordRe.ReplaceAllString(q, " "))
	if len(terms) == 0 {
		return ""
	}
	quoted := make([]string, len(terms))
	for i, t := range terms {
		quoted[i] = `"` + strings.ReplaceAll(t, `"`, `""`) + `"`
	}
	return strings.Join(quoted, " OR ")
}

// isCJK reports whether q contains any CJK/Korean ideograph or syllable,
// for which FTS5's non-trigram word tokenizers find no boundaries; such
// queries fall back to a substring LIKE scan unless trigram is active.
func isCJK(q string) bool {
	for _, r := range q {
		if unicode.Is(unicode.Han, r) || unicode.Is(unicode.Hiragana, r) || unicode.Is(unicode.Katakana, r) || unicode.Is(unicode.Hangul, r) {
			return true
		}
	}
	return false
}

// SearchEntriesByText runs a BM25-ranked FTS5 query, converting SQLite's
// raw (negative, unbounded) bm25() score into a 0..1 value via
// clamp(1+bm25/10, 0, 1), or — when the active tokenizer isn't trigram and
// the query contains CJK/Korean text its word boundaries can't find —
// falls back to a plain substring LIKE scan with a fixed score of 1.0 per
// match. Trigram indexes CJK/Korean content directly, so it's used as-is.
func (s *SQLiteStorage) SearchEntriesByText(ctx context.Context, query string, limit int, filter types.EntryFilter) ([]types.ScoredEntry, error) {
	if strings.TrimSpace(query) == "" {
		return nil, nil
	}

	if s.tokenizer != "trigram" && isCJK(query) {
		return s.searchEntriesByLike(ctx, query, limit, filter)
	}

	ftsQuery := sanitizeFTSQuery(query)
	if ftsQuery == "" {
		return nil, nil
	}

	where, args := buildEntryWhere(filter)
	sqlQuery := fmt.Sprintf(`
		SELECT %s, bm25(memory_fts) AS rank
		FROM memory_entries
		JOIN memory_fts ON memory_fts.rowid = memory_entries.rowid
		WHERE memory_fts MATCH ?
	`, prefixColumns("memory_entries", entryColumns))
	ftsArgs := append([]interface{}{ftsQuery}, args...)
	if len(where) > 0 {
		sqlQuery += " AND " + strings.Join(where, " AND ")
	}
	sqlQuery += " ORDER BY rank LIMIT ?"
	if limit <= 0 {
		limit = 50
	}
	ftsArgs = append(ftsArgs, limit)

	rows, err := s.db.QueryContext(ctx, sqlQuery, ftsArgs...)
	if err != nil {
		return nil, wrapDBError("search entries by text", err)
	}
	defer func() { _ = rows.Close() }()

	var out []types.ScoredEntry
	for rows.Next() {
		entry, rank, err := scanEntryWithRank(rows)
		if err != nil {
			return nil, wrapDBError("scan text search row", err)
		}
		out = append(out, types.ScoredEntry{Entry: entry, Score: bm25ToScore(rank), KeywordScore: bm25ToScore(rank)})
	}
	return out, wrapDBError("iterate text search rows", rows.Err())
}

// rankScanner is satisfied by *sql.Rows; it's the subset scanEntryWithRank
// needs, kept narrow so it's easy to see exactly one extra trailing column
// (the bm25 rank) is expected beyond the normal entry columns.
type rankScanner interface {
	Scan(dest ...interface{}) error
}

func scanEntryWithRank(row rankScanner) (*types.Entry, float64, error) {
	scanned := &rankCapture{}
	e, err := scanEntry(scanned.wrap(row))
	if err != nil {
		return nil, 0, err
	}
	return e, scanned.rank, nil
}

// rankCapture adapts a row with 16 entry columns + 1 trailing rank column
// into the rowScanner shape scanEntry expects, stashing the rank aside.
type rankCapture struct {
	row  rankScanner
	rank float64
}

func (c *rankCapture) wrap(row rankScanner) rowScanner {
	c.row = row
	return rankCaptureScanner{c}
}

type rankCaptureScanner struct{ c *rankCapture }

func (s rankCaptureScanner) Scan(dest ...interface{}) error {
	return s.c.row.Scan(append(dest, &s.c.rank)...)
}

// bm25ToScore maps SQLite's raw bm25() output (more negative is a better
// match) onto 0..1 via clamp(1 + rank/10, 0, 1).
func bm25ToScore(rank float64) float64 {
	score := 1 + rank/10
	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}

func (s *SQLiteStorage) searchEntriesByLike(ctx context.Context, query string, limit int, filter types.EntryFilter) ([]types.ScoredEntry, error) {
	where, args := buildEntryWhere(filter)
	where = append(where, "content LIKE ? ESCAPE '\\'")
	args = append(args, "%"+escapeLike(query)+"%")

	if limit <= 0 {
		limit = 50
	}
	sqlQuery := fmt.Sprintf(`SELECT %s FROM memory_entries WHERE %s ORDER BY updated_at DESC LIMIT %d`,
		entryColumns, strings.Join(where, " AND "), limit)

	rows, err := s.db.QueryContext(ctx, sqlQuery, args...)
	if err != nil {
		return nil, wrapDBError("search entries by like", err)
	}
	defer func() { _ = rows.Close() }()

	var out []types.ScoredEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, wrapDBError("scan like search row", err)
		}
		out = append(out, types.ScoredEntry{Entry: e, Score: 1.0, KeywordScore: 1.0})
	}
	return out, wrapDBError("iterate like search rows", rows.Err())
}
