package memory

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"

	_ "modernc.org/sqlite"

	"nexuscortex/internal/kernel"
)

// SqliteSemantic is the durable tier: one sqlite table with JSON-encoded
// embeddings, similarity computed in Go. Pure-Go driver, no cgo.
type SqliteSemantic struct {
	db *sql.DB
}

const semanticSchema = `
CREATE TABLE IF NOT EXISTS semantic_memory (
	id           TEXT PRIMARY KEY,
	subject      TEXT NOT NULL,
	predicate    TEXT NOT NULL,
	object       TEXT NOT NULL,
	modality     INTEGER NOT NULL,
	confidence   REAL NOT NULL,
	stable_since INTEGER NOT NULL,
	occurrences  INTEGER NOT NULL,
	embedding    TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_semantic_subject ON semantic_memory(subject);
`

// OpenSqliteSemantic opens (and migrates) the semantic store at path.
// ":memory:" works for tests.
func OpenSqliteSemantic(path string) (*SqliteSemantic, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open semantic store: %w", err)
	}
	// The store is only touched from the driver goroutine, but sqlite
	// handles still dislike connection churn under WAL.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(semanticSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate semantic store: %w", err)
	}
	return &SqliteSemantic{db: db}, nil
}

func (s *SqliteSemantic) Close() error { return s.db.Close() }

// Put upserts one entry, re-deriving its embedding from the claim summary.
func (s *SqliteSemantic) Put(entry SemanticEntry) error {
	emb, err := json.Marshal(Embed(entry.Claim.Summary()))
	if err != nil {
		return fmt.Errorf("encode embedding: %w", err)
	}
	_, err = s.db.Exec(`
		INSERT INTO semantic_memory
			(id, subject, predicate, object, modality, confidence, stable_since, occurrences, embedding)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			object = excluded.object,
			confidence = excluded.confidence,
			occurrences = excluded.occurrences,
			embedding = excluded.embedding`,
		entry.ID,
		string(entry.Claim.Subject),
		entry.Claim.Predicate,
		entry.Claim.Object.String(),
		int(entry.Claim.Modality),
		entry.Confidence,
		int64(entry.StableSince),
		entry.Occurrences,
		string(emb),
	)
	if err != nil {
		return fmt.Errorf("put semantic entry: %w", err)
	}
	return nil
}

// GetBySubject returns every entry about one subject, strongest first.
func (s *SqliteSemantic) GetBySubject(subject EntityId) ([]SemanticEntry, error) {
	rows, err := s.db.Query(`
		SELECT id, subject, predicate, object, modality, confidence, stable_since, occurrences
		FROM semantic_memory WHERE subject = ? ORDER BY confidence DESC`,
		string(subject))
	if err != nil {
		return nil, fmt.Errorf("query by subject: %w", err)
	}
	defer rows.Close()
	return scanEntries(rows)
}

// TopK ranks entries: by cosine similarity to the query embedding, or by
// confidence when the query is nil.
func (s *SqliteSemantic) TopK(queryEmbedding []float32, k int) ([]SemanticEntry, error) {
	if k <= 0 {
		return nil, nil
	}

	if queryEmbedding == nil {
		rows, err := s.db.Query(`
			SELECT id, subject, predicate, object, modality, confidence, stable_since, occurrences
			FROM semantic_memory ORDER BY confidence DESC, id LIMIT ?`, k)
		if err != nil {
			return nil, fmt.Errorf("query top-k: %w", err)
		}
		defer rows.Close()
		return scanEntries(rows)
	}

	rows, err := s.db.Query(`
		SELECT id, subject, predicate, object, modality, confidence, stable_since, occurrences, embedding
		FROM semantic_memory`)
	if err != nil {
		return nil, fmt.Errorf("query all for ranking: %w", err)
	}
	defer rows.Close()

	type scored struct {
		entry SemanticEntry
		score float64
	}
	var ranked []scored
	for rows.Next() {
		var (
			entry   SemanticEntry
			subject string
			object  string
			embJSON string
			stable  int64
		)
		if err := rows.Scan(&entry.ID, &subject, &entry.Claim.Predicate, &object,
			&entry.Claim.Modality, &entry.Confidence, &stable, &entry.Occurrences, &embJSON); err != nil {
			return nil, fmt.Errorf("scan semantic entry: %w", err)
		}
		entry.Claim.Subject = EntityId(subject)
		entry.Claim.Object = TextValue(object)
		entry.StableSince = kernel.Tick(stable)

		var emb []float32
		if err := json.Unmarshal([]byte(embJSON), &emb); err != nil {
			continue // a corrupt embedding disqualifies, not fails
		}
		ranked = append(ranked, scored{entry: entry, score: CosineSimilarity(queryEmbedding, emb)})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate semantic entries: %w", err)
	}

	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].score != ranked[j].score {
			return ranked[i].score > ranked[j].score
		}
		return ranked[i].entry.ID < ranked[j].entry.ID
	})
	if len(ranked) > k {
		ranked = ranked[:k]
	}
	out := make([]SemanticEntry, 0, len(ranked))
	for _, r := range ranked {
		out = append(out, r.entry)
	}
	return out, nil
}

func scanEntries(rows *sql.Rows) ([]SemanticEntry, error) {
	var out []SemanticEntry
	for rows.Next() {
		var (
			entry   SemanticEntry
			subject string
			object  string
			stable  int64
		)
		if err := rows.Scan(&entry.ID, &subject, &entry.Claim.Predicate, &object,
			&entry.Claim.Modality, &entry.Confidence, &stable, &entry.Occurrences); err != nil {
			return nil, fmt.Errorf("scan semantic entry: %w", err)
		}
		entry.Claim.Subject = EntityId(subject)
		entry.Claim.Object = TextValue(object)
		entry.StableSince = kernel.Tick(stable)
		out = append(out, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate semantic entries: %w", err)
	}
	return out, nil
}
