package etl

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"playlog/api/models"
)

type fakeStore struct {
	calls  []string
	loaded []models.PlayRecord

	resetErr error
	loadErr  error
}

func (s *fakeStore) Reset(context.Context) error {
	s.calls = append(s.calls, "reset")
	return s.resetErr
}

func (s *fakeStore) LoadRecords(_ context.Context, records []models.PlayRecord) error {
	s.calls = append(s.calls, "load")
	s.loaded = records
	return s.loadErr
}

func TestRunResetsBeforeLoading(t *testing.T) {
	store := &fakeStore{}
	artifact := filepath.Join(t.TempDir(), "canonical.csv")

	result, err := Run(context.Background(), testLogger(), "testdata/event_data", artifact, store)
	require.NoError(t, err)

	assert.Equal(t, []string{"reset", "load"}, store.calls)
	require.Len(t, store.loaded, 3)

	assert.NotEmpty(t, result.RunID)
	assert.Equal(t, 2, result.Files)
	assert.Equal(t, 5, result.RawRows)
	assert.Equal(t, 3, result.Records)
	assert.Equal(t, 2, result.Discarded)

	// The artifact mirrors exactly what was loaded.
	records, err := ReadArtifact(artifact)
	require.NoError(t, err)
	assert.Equal(t, store.loaded, records)
}

func TestRunWithoutArtifact(t *testing.T) {
	store := &fakeStore{}

	_, err := Run(context.Background(), testLogger(), "testdata/event_data", "", store)
	require.NoError(t, err)
	require.Len(t, store.loaded, 3)
}

func TestRunExtractionFailureSkipsStore(t *testing.T) {
	store := &fakeStore{}

	_, err := Run(context.Background(), testLogger(), "testdata/does-not-exist", "", store)
	require.Error(t, err)
	assert.Empty(t, store.calls, "a failed extraction must not touch the store")
}

func TestRunResetFailureSkipsLoad(t *testing.T) {
	store := &fakeStore{resetErr: errors.New("boom")}

	_, err := Run(context.Background(), testLogger(), "testdata/event_data", "", store)
	require.Error(t, err)
	assert.Equal(t, []string{"reset"}, store.calls)
}

func TestRunSurfacesLoadFailure(t *testing.T) {
	store := &fakeStore{loadErr: errors.New("insert failed")}

	_, err := Run(context.Background(), testLogger(), "testdata/event_data", "", store)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "insert failed")
}
