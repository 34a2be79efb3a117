package etl

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"playlog/api/models"
)

// TargetStore is what the pipeline needs from the denormalized store.
type TargetStore interface {
	Reset(ctx context.Context) error
	LoadRecords(ctx context.Context, records []models.PlayRecord) error
}

// Run performs one complete batch load: extract the canonical records,
// optionally persist them as an artifact, then drop, recreate and
// repopulate every target table. Extraction finishes before any load
// starts, and any failure aborts the run; a partially loaded schema is
// cured by running again.
func Run(ctx context.Context, log *slog.Logger, root, artifactPath string, store TargetStore) (*models.LoadResult, error) {
	runID := uuid.New().String()
	log = log.With("runId", runID)
	log.Info("starting batch load", "root", root)

	extractor := NewExtractor(log, root)
	result, err := extractor.Extract()
	if err != nil {
		return nil, err
	}

	if artifactPath != "" {
		if err := WriteArtifact(artifactPath, result.Records); err != nil {
			return nil, err
		}
		log.Info("wrote canonical record artifact", "path", artifactPath, "records", len(result.Records))
	}

	if err := store.Reset(ctx); err != nil {
		return nil, err
	}
	if err := store.LoadRecords(ctx, result.Records); err != nil {
		return nil, err
	}

	log.Info("batch load complete", "records", len(result.Records))
	return &models.LoadResult{
		RunID:     runID,
		Files:     result.Files,
		RawRows:   result.RawRows,
		Records:   len(result.Records),
		Discarded: result.Discarded,
	}, nil
}
