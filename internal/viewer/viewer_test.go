package viewer_test

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"resume-store-go/internal/config"
	"resume-store-go/internal/encoder"
	"resume-store-go/internal/processor"
	"resume-store-go/internal/resumestore"
	"resume-store-go/internal/storage"
	"resume-store-go/internal/types"
	"resume-store-go/internal/viewer"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeStore 内存中的 RecordGetter，记录调用次数
type fakeStore struct {
	records map[string]*types.ResumeRecord
	calls   int
}

func (f *fakeStore) Get(_ context.Context, id string) *types.ResumeRecord {
	f.calls++
	if r, ok := f.records[id]; ok {
		return r.Clone()
	}
	return nil
}

var uploaded = time.Date(2025, 3, 9, 10, 30, 0, 0, time.UTC)

func TestResolveForView(t *testing.T) {
	ctx := context.Background()
	pdf := encoder.EncodeBytes(types.MimePDF, []byte("%PDF-1.4 body"))
	png := []byte{0x89, 'P', 'N', 'G'}

	store := &fakeStore{records: map[string]*types.ResumeRecord{
		"r_pdf":     {ID: "r_pdf", Name: "cv.pdf", Type: types.MimePDF, Size: 13, Data: pdf, UploadDate: uploaded},
		"r_blob":    {ID: "r_blob", Name: "photo.png", Type: types.MimePNG, Size: 4, Blob: png},
		"r_corrupt": {ID: "r_corrupt", Name: "cv.pdf", Type: types.MimePDF, Size: 10, Data: "data:image/png;base64,AAAA"},
		"r_other":   {ID: "r_other", Name: "notes.txt", Type: "text/plain", Size: 5, Data: "data:text/plain;base64,aGVsbG8="},
	}}
	v := viewer.New(store)

	tests := []struct {
		name       string
		ref        *types.ResumeRecord
		wantKind   viewer.Kind
		wantSource string
		wantData   string
	}{
		{"caller payload", &types.ResumeRecord{ID: "r_missing", Type: types.MimePDF, Data: pdf}, viewer.KindInlinePDF, viewer.SourceCaller, pdf},
		{"store payload", &types.ResumeRecord{ID: "r_pdf"}, viewer.KindInlinePDF, viewer.SourceStore, pdf},
		{"store blob", &types.ResumeRecord{ID: "r_blob"}, viewer.KindInlineImage, viewer.SourceStoreBlob, "data:image/png;base64,iVBORw=="},
		{"corrupt store payload", &types.ResumeRecord{ID: "r_corrupt"}, viewer.KindFileInfo, viewer.SourceMetadata, ""},
		{"unsupported type", &types.ResumeRecord{ID: "r_other"}, viewer.KindFileInfo, viewer.SourceMetadata, ""},
		{"not a data url", &types.ResumeRecord{Name: "cv.pdf", Type: types.MimePDF, Data: "not-a-data-url"}, viewer.KindFileInfo, viewer.SourceMetadata, ""},
		{"nothing", nil, viewer.KindFileInfo, viewer.SourceMetadata, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := v.ResolveForView(ctx, tt.ref)
			assert.Equal(t, tt.wantKind, res.Kind)
			assert.Equal(t, tt.wantSource, res.Source)
			assert.Equal(t, tt.wantData, res.Payload)
		})
	}
}

func TestResolveForViewSkipsStoreWhenPayloadPresent(t *testing.T) {
	store := &fakeStore{}
	v := viewer.New(store)
	pdf := encoder.EncodeBytes(types.MimePDF, []byte("%PDF"))

	res := v.ResolveForView(context.Background(), &types.ResumeRecord{Type: types.MimePDF, Data: pdf})
	assert.Equal(t, viewer.KindInlinePDF, res.Kind)
	assert.Zero(t, store.calls)
}

func TestResolveForViewMergesMetadata(t *testing.T) {
	store := &fakeStore{records: map[string]*types.ResumeRecord{
		"r1": {ID: "r1", Name: "stored.pdf", Type: types.MimePDF, Size: 2048, UploadDate: uploaded},
	}}
	v := viewer.New(store)

	res := v.ResolveForView(context.Background(), &types.ResumeRecord{ID: "r1", Name: "embedded.pdf", Size: 1})
	assert.Equal(t, viewer.KindFileInfo, res.Kind)
	assert.Equal(t, "stored.pdf", res.Info.Name)
	assert.Equal(t, int64(2048), res.Info.Size)
	assert.Equal(t, uploaded, res.Info.UploadDate)
}

func TestResolveForDownload(t *testing.T) {
	ctx := context.Background()
	content := []byte("%PDF-1.4 body")
	store := &fakeStore{records: map[string]*types.ResumeRecord{
		"r_pdf": {ID: "r_pdf", Name: "cv.pdf", SavedFileName: "Resume_Jane_2025-03-09.pdf", Type: types.MimePDF,
			Data: encoder.EncodeBytes(types.MimePDF, content)},
		"r_meta": {ID: "r_meta", Name: "cv.pdf", Type: types.MimePDF},
	}}
	v := viewer.New(store)

	d, err := v.ResolveForDownload(ctx, &types.ResumeRecord{ID: "r_pdf"})
	require.NoError(t, err)
	assert.Equal(t, content, d.Data)
	assert.Equal(t, types.MimePDF, d.MimeType)
	assert.Equal(t, "Resume_Jane_2025-03-09.pdf", d.Name)

	// 调用方数据损坏时继续尝试存储
	d, err = v.ResolveForDownload(ctx, &types.ResumeRecord{ID: "r_pdf", Type: types.MimePDF, Data: "data:application/pdf;base64,@@@"})
	require.NoError(t, err)
	assert.Equal(t, content, d.Data)

	_, err = v.ResolveForDownload(ctx, &types.ResumeRecord{ID: "r_meta"})
	assert.ErrorIs(t, err, types.ErrNoDataAvailable)

	_, err = v.ResolveForDownload(ctx, &types.ResumeRecord{ID: "r_missing"})
	assert.ErrorIs(t, err, types.ErrNoDataAvailable)
}

func TestDeliverToDir(t *testing.T) {
	content := []byte("%PDF-1.4 body")
	v := viewer.New(nil)
	dir := filepath.Join(t.TempDir(), "downloads")

	loc, err := v.Deliver(context.Background(), &types.ResumeRecord{
		Name: "../escape.pdf",
		Type: types.MimePDF,
		Data: encoder.EncodeBytes(types.MimePDF, content),
	}, viewer.DirSink{Dir: dir})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "escape.pdf"), loc)

	got, err := os.ReadFile(loc)
	require.NoError(t, err)
	assert.Equal(t, content, got)

	_, err = v.Deliver(context.Background(), &types.ResumeRecord{Name: "cv.pdf"}, viewer.DirSink{Dir: dir})
	assert.ErrorIs(t, err, types.ErrNoDataAvailable)
}

// TestUploadAndView 上传后只凭 id 即可预览和下载
func TestUploadAndView(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	kv, err := storage.NewRedisFromClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}), &config.RedisConfig{})
	require.NoError(t, err)
	store := resumestore.New(resumestore.Options{KeyValue: kv})

	uploader, err := processor.NewResumeUploader(store, nil, []processor.SettingOpt{
		processor.WithsetClock(func() time.Time { return uploaded }),
	})
	require.NoError(t, err)

	content := []byte("%PDF-1.4" + strings.Repeat("x", 1992))
	rec, err := uploader.Upload(ctx, processor.UploadRequest{
		File:    types.FileCandidate{Name: "CV.pdf", Type: types.MimePDF, Size: int64(len(content))},
		Content: io.NopCloser(bytes.NewReader(content)),
		Owner:   types.Owner{ID: "u1", Name: "Jane"},
	})
	require.NoError(t, err)
	assert.Equal(t, "resume_1741516200000_u1", rec.ID)
	assert.Equal(t, types.StorageKeyValue, rec.StorageMethod)

	v := viewer.New(store)
	res := v.ResolveForView(ctx, &types.ResumeRecord{ID: rec.ID})
	require.Equal(t, viewer.KindInlinePDF, res.Kind)
	assert.Equal(t, viewer.SourceStore, res.Source)
	assert.True(t, strings.HasPrefix(res.Payload, "data:application/pdf;base64,"))
	assert.Equal(t, int64(2000), res.Info.Size)

	d, err := v.ResolveForDownload(ctx, &types.ResumeRecord{ID: rec.ID})
	require.NoError(t, err)
	assert.Equal(t, content, d.Data)
	assert.Equal(t, "Resume_Jane_2025-03-09.pdf", d.Name)
}
