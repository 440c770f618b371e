package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/lazypower/recall/internal/store"
)

// MaxDocumentBytes bounds the text of a single document.
const MaxDocumentBytes = 64 * 1024

// DefaultSchedule re-embeds pending documents every quarter hour.
const DefaultSchedule = "@every 15m"

var (
	ErrEmptyDocument    = errors.New("document text is empty")
	ErrDocumentTooLarge = fmt.Errorf("document text exceeds %d bytes", MaxDocumentBytes)
)

// documentNamespace scopes the deterministic ids derived from document text.
var documentNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("recall:documents"))

// DocumentID returns the deterministic id of a document with the given text.
func DocumentID(text string) string {
	return uuid.NewSHA1(documentNamespace, []byte(strings.TrimSpace(text))).String()
}

// Engine indexes documents and keeps their embeddings current.
type Engine struct {
	DB       *store.DB
	Embedder Embedder
	logger   *slog.Logger

	mu   sync.Mutex
	cron *cron.Cron
}

// New creates a new Engine. A nil embedder stores documents without vectors.
func New(db *store.DB, emb Embedder, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Engine{
		DB:       db,
		Embedder: emb,
		logger:   logger.With("component", "engine"),
	}
}

// AddResult reports what AddDocument did.
type AddResult struct {
	ID        string `json:"id"`
	Created   bool   `json:"created"`
	Duplicate bool   `json:"duplicate"`
	Embedded  bool   `json:"embedded"`
}

// AddDocument stores doc and its embedding. Without an id the id is
// derived from the text, and text near-identical to an existing document
// is reported as a duplicate instead of stored again. An embedding
// failure leaves the document stored for EmbedMissing to retry.
func (e *Engine) AddDocument(ctx context.Context, doc store.Document) (AddResult, error) {
	doc.Text = strings.TrimSpace(doc.Text)
	if doc.Text == "" {
		return AddResult{}, ErrEmptyDocument
	}
	if len(doc.Text) > MaxDocumentBytes {
		return AddResult{}, ErrDocumentTooLarge
	}

	if doc.ID == "" {
		existing, err := e.DB.FindNearIdentical(doc.Text)
		if err != nil {
			return AddResult{}, err
		}
		if existing != nil {
			e.logger.Debug("skipping near-identical document", "id", existing.ID)
			return AddResult{ID: existing.ID, Duplicate: true}, nil
		}
		doc.ID = DocumentID(doc.Text)
	}

	created, err := e.DB.UpsertDocument(&doc)
	if err != nil {
		return AddResult{}, err
	}
	res := AddResult{ID: doc.ID, Created: created}

	if e.Embedder != nil {
		if err := e.embedDocument(ctx, doc); err != nil {
			e.logger.Warn("embedding deferred", "id", doc.ID, "err", err)
		} else {
			res.Embedded = true
		}
	}
	return res, nil
}

func (e *Engine) embedDocument(ctx context.Context, doc store.Document) error {
	vec, err := e.Embedder.Embed(ctx, doc.Text)
	if err != nil {
		return fmt.Errorf("embed document %s: %w", doc.ID, err)
	}
	return e.DB.SaveVector(doc.ID, vec, e.Embedder.Model())
}

// EmbedMissing embeds every document that has no vector from the current model.
func (e *Engine) EmbedMissing(ctx context.Context) (int, error) {
	if e.Embedder == nil {
		return 0, nil
	}

	docs, err := e.DB.DocumentsMissingVector(e.Embedder.Model())
	if err != nil {
		return 0, err
	}

	embedded := 0
	for _, doc := range docs {
		if err := ctx.Err(); err != nil {
			return embedded, err
		}
		if err := e.embedDocument(ctx, doc); err != nil {
			e.logger.Warn("embed missing", "err", err)
			continue
		}
		embedded++
	}
	return embedded, nil
}

// StartScheduler runs Refit and EmbedMissing on the given cron spec until Stop.
// An empty spec uses DefaultSchedule.
func (e *Engine) StartScheduler(spec string) error {
	if spec == "" {
		spec = DefaultSchedule
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.cron != nil {
		return fmt.Errorf("scheduler already running")
	}

	c := cron.New()
	if _, err := c.AddFunc(spec, e.runScheduled); err != nil {
		return fmt.Errorf("schedule %q: %w", spec, err)
	}
	c.Start()
	e.cron = c
	e.logger.Info("embedding scheduler started", "schedule", spec)
	return nil
}

// Refit refits a corpus-derived embedder to the stored documents. When
// the vector space changes every document becomes pending under the new
// model, so the next EmbedMissing re-embeds the whole corpus.
func (e *Engine) Refit(ctx context.Context) (bool, error) {
	f, ok := e.Embedder.(Fitter)
	if !ok {
		return false, nil
	}
	texts, err := documentTexts(e.DB)
	if err != nil {
		return false, err
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}
	changed := f.Fit(texts)
	if changed {
		e.logger.Info("embedding space refit", "model", e.Embedder.Model(), "documents", len(texts))
	}
	return changed, nil
}

func (e *Engine) runScheduled() {
	ctx := context.Background()
	if _, err := e.Refit(ctx); err != nil {
		e.logger.Error("scheduled refit", "err", err)
	}
	n, err := e.EmbedMissing(ctx)
	if err != nil {
		e.logger.Error("scheduled embed", "err", err)
		return
	}
	if n > 0 {
		e.logger.Info("scheduled embed", "embedded", n)
	}
}

// Stop halts the scheduler and waits for a running job to finish.
func (e *Engine) Stop() {
	e.mu.Lock()
	c := e.cron
	e.cron = nil
	e.mu.Unlock()

	if c != nil {
		<-c.Stop().Done()
	}
}

// Dedup finds semantically duplicate documents and removes them.
// It clusters documents by cosine similarity at or above threshold,
// keeps the most recently updated document per cluster, and deletes
// the rest. Returns the number of documents removed.
func (e *Engine) Dedup(ctx context.Context, threshold float64) (int, error) {
	if e.Embedder == nil {
		return 0, fmt.Errorf("no embedder configured")
	}
	if _, err := e.EmbedMissing(ctx); err != nil {
		return 0, err
	}

	docs, err := e.DB.ListDocuments()
	if err != nil {
		return 0, err
	}
	vectors, err := e.DB.AllVectors(e.Embedder.Model())
	if err != nil {
		return 0, fmt.Errorf("load vectors: %w", err)
	}
	vecMap := make(map[string][]float64, len(vectors))
	for _, v := range vectors {
		vecMap[v.DocumentID] = v.Embedding
	}

	claimed := make(map[string]bool)
	removed := 0
	for i := 0; i < len(docs); i++ {
		if claimed[docs[i].ID] {
			continue
		}
		vecI, ok := vecMap[docs[i].ID]
		if !ok {
			continue
		}

		cluster := []int{i}
		for j := i + 1; j < len(docs); j++ {
			if claimed[docs[j].ID] {
				continue
			}
			vecJ, ok := vecMap[docs[j].ID]
			if !ok {
				continue
			}
			if CosineSimilarity(vecI, vecJ) >= threshold {
				cluster = append(cluster, j)
			}
		}
		if len(cluster) <= 1 {
			continue
		}

		best := cluster[0]
		for _, idx := range cluster[1:] {
			if docs[idx].UpdatedAt > docs[best].UpdatedAt {
				best = idx
			}
		}

		for _, idx := range cluster {
			claimed[docs[idx].ID] = true
			if idx == best {
				continue
			}
			e.logger.Info("dedup: removing document", "id", docs[idx].ID, "duplicate_of", docs[best].ID)
			if err := e.DB.DeleteDocument(docs[idx].ID); err != nil {
				e.logger.Warn("dedup: delete", "id", docs[idx].ID, "err", err)
				continue
			}
			removed++
		}
	}
	return removed, nil
}
