package retention

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marketlink/marketlink/internal/store"
)

type fakeStore struct {
	refs    []store.ArtifactRef
	cleared []store.ArtifactRef
}

func (f *fakeStore) ListArtifactRefs(context.Context) ([]store.ArtifactRef, error) {
	out := make([]store.ArtifactRef, 0, len(f.refs))
	out = append(out, f.refs...)
	return out, nil
}

func (f *fakeStore) clear(kind string, id int64) {
	for i, ref := range f.refs {
		if ref.Kind == kind && ref.ID == id {
			f.cleared = append(f.cleared, ref)
			f.refs = append(f.refs[:i], f.refs[i+1:]...)
			return
		}
	}
}

func (f *fakeStore) ClearOrderProof(_ context.Context, id int64) error {
	f.clear("order", id)
	return nil
}

func (f *fakeStore) ClearPaymentProof(_ context.Context, id int64) error {
	f.clear("payment", id)
	return nil
}

type fakeBlobs struct {
	files     map[string]time.Time
	removed   []string
	removeErr map[string]error
}

func newFakeBlobs() *fakeBlobs {
	return &fakeBlobs{files: make(map[string]time.Time), removeErr: make(map[string]error)}
}

func (f *fakeBlobs) ModTime(path string) (time.Time, error) {
	mt, ok := f.files[path]
	if !ok {
		return time.Time{}, os.ErrNotExist
	}
	return mt, nil
}

func (f *fakeBlobs) Remove(path string) error {
	if err := f.removeErr[path]; err != nil {
		return err
	}
	delete(f.files, path)
	f.removed = append(f.removed, path)
	return nil
}

func TestSweepRemovesOnlyExpiredArtifacts(t *testing.T) {
	now := time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)
	st := &fakeStore{refs: []store.ArtifactRef{
		{Kind: "order", ID: 1, Path: "uploads/old.jpg"},
		{Kind: "payment", ID: 2, Path: "uploads/fresh.jpg"},
	}}
	blobs := newFakeBlobs()
	blobs.files["uploads/old.jpg"] = now.Add(-31 * 24 * time.Hour)
	blobs.files["uploads/fresh.jpg"] = now.Add(-1 * 24 * time.Hour)

	sw := NewSweeper(st, blobs, 30*24*time.Hour, func() time.Time { return now })
	sw.Sweep(context.Background())

	assert.Equal(t, []string{"uploads/old.jpg"}, blobs.removed)
	require.Len(t, st.refs, 1)
	assert.Equal(t, "uploads/fresh.jpg", st.refs[0].Path)
}

func TestSweepClearsDanglingRefs(t *testing.T) {
	now := time.Now()
	st := &fakeStore{refs: []store.ArtifactRef{
		{Kind: "payment", ID: 5, Path: "uploads/vanished.jpg"},
	}}
	blobs := newFakeBlobs()

	sw := NewSweeper(st, blobs, 30*24*time.Hour, func() time.Time { return now })
	sw.Sweep(context.Background())

	assert.Empty(t, blobs.removed)
	assert.Empty(t, st.refs, "dangling reference must be cleared")
}

func TestSweepTwiceIsIdempotent(t *testing.T) {
	now := time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)
	st := &fakeStore{refs: []store.ArtifactRef{
		{Kind: "order", ID: 1, Path: "uploads/old.jpg"},
	}}
	blobs := newFakeBlobs()
	blobs.files["uploads/old.jpg"] = now.Add(-40 * 24 * time.Hour)

	sw := NewSweeper(st, blobs, 30*24*time.Hour, func() time.Time { return now })
	sw.Sweep(context.Background())
	sw.Sweep(context.Background())

	assert.Equal(t, []string{"uploads/old.jpg"}, blobs.removed, "file deleted exactly once")
	assert.Empty(t, st.refs)
}

func TestSweepSkipsFailingItems(t *testing.T) {
	now := time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)
	st := &fakeStore{refs: []store.ArtifactRef{
		{Kind: "order", ID: 1, Path: "uploads/stuck.jpg"},
		{Kind: "order", ID: 2, Path: "uploads/old.jpg"},
	}}
	blobs := newFakeBlobs()
	blobs.files["uploads/stuck.jpg"] = now.Add(-40 * 24 * time.Hour)
	blobs.files["uploads/old.jpg"] = now.Add(-40 * 24 * time.Hour)
	blobs.removeErr["uploads/stuck.jpg"] = errors.New("permission denied")

	sw := NewSweeper(st, blobs, 30*24*time.Hour, func() time.Time { return now })
	sw.Sweep(context.Background())

	assert.Equal(t, []string{"uploads/old.jpg"}, blobs.removed)
	require.Len(t, st.refs, 1, "failed item keeps its reference for the next pass")
	assert.Equal(t, "uploads/stuck.jpg", st.refs[0].Path)

	// Next pass retries the stuck file once the failure clears.
	delete(blobs.removeErr, "uploads/stuck.jpg")
	sw.Sweep(context.Background())
	assert.Empty(t, st.refs)
}
