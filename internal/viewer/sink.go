package viewer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"resume-store-go/internal/types"
)

// DownloadSink 下载内容的落地位置，返回可访问的位置（路径或 URL）
// storage.MinIO 也实现了该接口
type DownloadSink interface {
	Put(ctx context.Context, fileName, contentType string, data []byte) (string, error)
}

// DirSink 保存到本地目录
type DirSink struct {
	Dir string
}

// Put 写入 Dir/fileName，只取文件名部分
func (s DirSink) Put(_ context.Context, fileName, _ string, data []byte) (string, error) {
	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return "", fmt.Errorf("创建下载目录失败: %w", err)
	}
	path := filepath.Join(s.Dir, filepath.Base(fileName))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("写入下载文件失败: %w", err)
	}
	return path, nil
}

// Deliver 解析下载内容并交给 sink 保存
func (v *Viewer) Deliver(ctx context.Context, ref *types.ResumeRecord, sink DownloadSink) (string, error) {
	d, err := v.ResolveForDownload(ctx, ref)
	if err != nil {
		return "", err
	}
	location, err := sink.Put(ctx, d.Name, d.MimeType, d.Data)
	if err != nil {
		id := ""
		if ref != nil {
			id = ref.ID
		}
		return "", types.NewStorageError(id, "deliver", "failed to save download", err)
	}
	v.log.Info().Str("name", d.Name).Str("location", location).Int("size", len(d.Data)).Msg("简历已下载")
	return location, nil
}
