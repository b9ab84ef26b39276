// Package filestore keeps shared plans as one JSON document per share plus a
// summary index.json, on any storage.BlobStore (local directory or S3 bucket).
package filestore

import (
	"alcyxob/fitness-share/internal/domain"
	"alcyxob/fitness-share/internal/repository"
	"alcyxob/fitness-share/internal/storage"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// FileSharedPlanRepository implements repository.SharedPlanRepository.
// Exclusive creates in the blob store decide racing inserts; the mutex only
// serialises read-modify-write cycles inside this process.
type FileSharedPlanRepository struct {
	blobs  storage.BlobStore
	logger *zap.Logger
	mu     sync.Mutex
	now    func() time.Time
}

// NewFileSharedPlanRepository creates a file-backed repository on blobs.
func NewFileSharedPlanRepository(blobs storage.BlobStore, logger *zap.Logger) *FileSharedPlanRepository {
	return &FileSharedPlanRepository{
		blobs:  blobs,
		logger: logger.With(zap.String("component", "filestore")),
		now:    time.Now,
	}
}

func documentKey(id string) string {
	return id + documentSuffix
}

func (r *FileSharedPlanRepository) Exists(ctx context.Context, id string) (bool, error) {
	return r.blobs.Exists(ctx, documentKey(id))
}

func (r *FileSharedPlanRepository) Insert(ctx context.Context, plan *domain.SharedPlan) error {
	if plan.ShareID == "" {
		return errors.New("shared plan requires a share ID")
	}
	doc := newDocument(plan)
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode share %s: %w", plan.ShareID, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.blobs.Create(ctx, documentKey(plan.ShareID), data); err != nil {
		if errors.Is(err, storage.ErrObjectExists) {
			return repository.ErrDuplicateKey
		}
		return err
	}
	r.updateIndex(ctx, func(idx *indexFile) { upsertEntry(idx, doc.summary()) })
	return nil
}

func (r *FileSharedPlanRepository) FindByID(ctx context.Context, id string) (*domain.SharedPlan, error) {
	doc, err := r.readDocument(ctx, id)
	if err != nil {
		return nil, err
	}
	return doc.toDomain(), nil
}

func (r *FileSharedPlanRepository) Update(ctx context.Context, id string, patch domain.SharePatch, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	doc, err := r.readDocument(ctx, id)
	if err != nil {
		return err
	}
	if patch.HasPlanData() {
		doc.Plan = patch.PlanData
		doc.OriginalID, _ = planLabels(patch.PlanData)
		doc.Metadata.FileSize = len(patch.PlanData)
	}
	if patch.IsActive != nil {
		doc.Metadata.IsActive = *patch.IsActive
	}
	doc.Metadata.LastModified = at.UTC()

	if err := r.writeDocument(ctx, doc); err != nil {
		return err
	}
	r.updateIndex(ctx, func(idx *indexFile) { upsertEntry(idx, doc.summary()) })
	return nil
}

// RecordAccess does not touch the index; access counters are not part of the summary.
func (r *FileSharedPlanRepository) RecordAccess(ctx context.Context, id string, at time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	doc, err := r.readDocument(ctx, id)
	if err != nil {
		return 0, err
	}
	if !doc.toDomain().Resolvable(at) {
		return 0, repository.ErrNotResolvable
	}
	accessed := at.UTC()
	doc.Metadata.AccessCount++
	doc.Metadata.LastAccessedAt = &accessed

	if err := r.writeDocument(ctx, doc); err != nil {
		return 0, err
	}
	return doc.Metadata.AccessCount, nil
}

func (r *FileSharedPlanRepository) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.blobs.Delete(ctx, documentKey(id)); err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			return repository.ErrNotFound
		}
		return err
	}
	r.updateIndex(ctx, func(idx *indexFile) { removeEntry(idx, id) })
	return nil
}

// RebuildIndex regenerates index.json from the share documents and returns the
// number of shares indexed. Unreadable documents are skipped and logged.
func (r *FileSharedPlanRepository) RebuildIndex(ctx context.Context) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	idx, err := r.scanDocuments(ctx)
	if err != nil {
		return 0, err
	}
	if err := r.writeIndex(ctx, idx); err != nil {
		return 0, err
	}
	r.logger.Info("rebuilt share index", zap.Int("total", idx.TotalWorkouts))
	return idx.TotalWorkouts, nil
}

// Summaries returns the current index entries, newest first.
func (r *FileSharedPlanRepository) Summaries(ctx context.Context) ([]IndexEntry, error) {
	idx, err := r.readIndex(ctx)
	if err != nil {
		return nil, err
	}
	return idx.Workouts, nil
}

func (r *FileSharedPlanRepository) readDocument(ctx context.Context, id string) (*shareDocument, error) {
	data, err := r.blobs.Get(ctx, documentKey(id))
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	var doc shareDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode share %s: %w", id, err)
	}
	return &doc, nil
}

func (r *FileSharedPlanRepository) writeDocument(ctx context.Context, doc *shareDocument) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode share %s: %w", doc.ID, err)
	}
	return r.blobs.Put(ctx, documentKey(doc.ID), data)
}

// updateIndex applies mutate to index.json. Failures are logged and swallowed:
// the share document is the source of truth and the index can be rebuilt.
// Callers must hold r.mu.
func (r *FileSharedPlanRepository) updateIndex(ctx context.Context, mutate func(*indexFile)) {
	idx, err := r.readIndex(ctx)
	if err != nil {
		r.logger.Warn("share index unreadable, rebuilding from documents", zap.Error(err))
		idx, err = r.scanDocuments(ctx)
		if err != nil {
			r.logger.Warn("failed to rebuild share index", zap.Error(err))
			return
		}
	} else {
		mutate(idx)
	}
	if err := r.writeIndex(ctx, idx); err != nil {
		r.logger.Warn("failed to write share index", zap.Error(err))
	}
}

func (r *FileSharedPlanRepository) readIndex(ctx context.Context) (*indexFile, error) {
	data, err := r.blobs.Get(ctx, indexKey)
	if errors.Is(err, storage.ErrObjectNotFound) {
		return &indexFile{Workouts: []IndexEntry{}, Version: indexVersion}, nil
	}
	if err != nil {
		return nil, err
	}
	var idx indexFile
	if err := json.Unmarshal(data, &idx); err != nil {
		return nil, fmt.Errorf("decode %s: %w", indexKey, err)
	}
	if idx.Workouts == nil {
		idx.Workouts = []IndexEntry{}
	}
	return &idx, nil
}

func (r *FileSharedPlanRepository) writeIndex(ctx context.Context, idx *indexFile) error {
	sortEntries(idx.Workouts)
	idx.TotalWorkouts = len(idx.Workouts)
	idx.LastUpdated = r.now().UTC()
	idx.Version = indexVersion
	data, err := json.MarshalIndent(idx, "", "  ")
	if err != nil {
		return err
	}
	return r.blobs.Put(ctx, indexKey, data)
}

func (r *FileSharedPlanRepository) scanDocuments(ctx context.Context) (*indexFile, error) {
	keys, err := r.blobs.List(ctx, documentSuffix)
	if err != nil {
		return nil, err
	}
	idx := &indexFile{Workouts: []IndexEntry{}, Version: indexVersion}
	for _, key := range keys {
		if key == indexKey {
			continue
		}
		doc, err := r.readDocument(ctx, strings.TrimSuffix(key, documentSuffix))
		if err != nil {
			r.logger.Warn("skipping unreadable share document", zap.String("key", key), zap.Error(err))
			continue
		}
		idx.Workouts = append(idx.Workouts, doc.summary())
	}
	return idx, nil
}

func upsertEntry(idx *indexFile, entry IndexEntry) {
	for i := range idx.Workouts {
		if idx.Workouts[i].ID == entry.ID {
			idx.Workouts[i] = entry
			return
		}
	}
	idx.Workouts = append(idx.Workouts, entry)
}

func removeEntry(idx *indexFile, id string) {
	kept := idx.Workouts[:0]
	for _, e := range idx.Workouts {
		if e.ID != id {
			kept = append(kept, e)
		}
	}
	idx.Workouts = kept
}

func sortEntries(entries []IndexEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		if !entries[i].Timestamp.Equal(entries[j].Timestamp) {
			return entries[i].Timestamp.After(entries[j].Timestamp)
		}
		return entries[i].ID < entries[j].ID
	})
}

var _ repository.SharedPlanRepository = (*FileSharedPlanRepository)(nil)
