package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"resume-store-go/internal/applications"
	"resume-store-go/internal/encoder"
	"resume-store-go/internal/outbox"
	"resume-store-go/internal/processor"
	"resume-store-go/internal/types"
	"resume-store-go/internal/utils"
	"resume-store-go/internal/viewer"
)

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func requireFlag(name, value string) error {
	if value == "" {
		return fmt.Errorf("缺少参数 --%s", name)
	}
	return nil
}

// detectMimeType 按扩展名推断 MIME 类型，去掉参数部分
func detectMimeType(path string) string {
	t := mime.TypeByExtension(filepath.Ext(path))
	if t == "" {
		return ""
	}
	if media, _, err := mime.ParseMediaType(t); err == nil {
		return media
	}
	return t
}

func (a *app) upload(ctx context.Context) error {
	if err := requireFlag("file", *filePath); err != nil {
		return err
	}
	if err := requireFlag("owner-id", *ownerID); err != nil {
		return err
	}

	f, err := os.Open(*filePath)
	if err != nil {
		return fmt.Errorf("打开文件失败: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return fmt.Errorf("读取文件信息失败: %w", err)
	}

	contentType := *mimeType
	if contentType == "" {
		contentType = detectMimeType(*filePath)
	}

	up, err := a.uploader()
	if err != nil {
		_ = f.Close()
		return err
	}
	req := processor.UploadRequest{
		File:    types.FileCandidate{Name: filepath.Base(*filePath), Type: contentType, Size: info.Size()},
		Content: f,
		Owner:   types.Owner{ID: *ownerID, Name: *ownerName},
	}
	if *appID != "" {
		req.ApplicationID = utils.StringPtr(*appID)
	}

	rec, err := up.Upload(ctx, req)
	if err != nil {
		return err
	}
	return printJSON(map[string]any{
		"id":            rec.ID,
		"name":          rec.Name,
		"type":          rec.Type,
		"size":          utils.FormatSize(rec.Size),
		"checksum":      rec.Checksum,
		"savedFileName": rec.SavedFileName,
		"storageMethod": rec.StorageMethod,
	})
}

func (a *app) view(ctx context.Context) error {
	if err := requireFlag("id", *resumeID); err != nil {
		return err
	}
	res := a.viewer.ResolveForView(ctx, &types.ResumeRecord{ID: *resumeID})
	out := map[string]any{
		"kind":   res.Kind.String(),
		"source": res.Source,
		"file":   res.Info,
		"size":   utils.FormatSize(res.Info.Size),
	}
	if res.Payload != "" {
		out["payloadLength"] = len(res.Payload)
		out["checksum"] = encoder.Checksum(res.Payload)
	}
	return printJSON(out)
}

func (a *app) download(ctx context.Context) error {
	if err := requireFlag("id", *resumeID); err != nil {
		return err
	}

	var sink viewer.DownloadSink = viewer.DirSink{Dir: *outDir}
	if *toMinIO {
		if a.storage.MinIO == nil {
			return errors.New("未配置 MinIO")
		}
		sink = a.storage.MinIO
	}

	location, err := a.viewer.Deliver(ctx, &types.ResumeRecord{ID: *resumeID}, sink)
	if err != nil {
		return err
	}
	fmt.Println(location)
	return nil
}

func (a *app) remove(ctx context.Context) error {
	if err := requireFlag("id", *resumeID); err != nil {
		return err
	}
	if !a.store.Delete(ctx, *resumeID) {
		fmt.Printf("简历 %s 不存在\n", *resumeID)
		return nil
	}
	fmt.Printf("简历 %s 已删除\n", *resumeID)
	return nil
}

func (a *app) stats(ctx context.Context) error {
	return printJSON(a.store.Stats(ctx))
}

// selftest 用一条临时记录走一遍保存、读取、删除
func (a *app) selftest(ctx context.Context) error {
	id := "test_" + strconv.FormatInt(time.Now().UnixMilli(), 10)
	data := encoder.EncodeBytes("text/plain", []byte("test"))
	rec := &types.ResumeRecord{
		ID:         id,
		Name:       "test.txt",
		Type:       "text/plain",
		Size:       4,
		Data:       data,
		UploadDate: time.Now().UTC(),
		Checksum:   encoder.Checksum(data),
	}

	if _, err := a.store.Save(ctx, rec); err != nil {
		return fmt.Errorf("保存测试记录失败: %w", err)
	}
	got := a.store.Get(ctx, id)
	deleted := a.store.Delete(ctx, id)
	if got == nil || got.Data != data {
		return fmt.Errorf("测试记录读取结果不一致")
	}
	if !deleted {
		return fmt.Errorf("删除测试记录失败")
	}
	return printJSON(map[string]any{
		"ok":            true,
		"storageMethod": rec.StorageMethod,
		"stats":         a.store.Stats(ctx),
	})
}

// apply 用已保存的简历提交一条职位申请
func (a *app) apply(ctx context.Context) error {
	if a.board == nil {
		return errors.New("职位申请需要 Redis")
	}
	if err := requireFlag("app-id", *appID); err != nil {
		return err
	}
	if err := requireFlag("id", *resumeID); err != nil {
		return err
	}

	rec := a.store.Get(ctx, *resumeID)
	if rec == nil {
		return fmt.Errorf("简历 %s 不存在", *resumeID)
	}
	application := &applications.Application{
		ID:            *appID,
		UserID:        rec.UserID,
		ApplicantName: *ownerName,
		Resume:        rec,
	}
	if err := a.board.CheckCapacity(ctx, applications.EstimateSize(application)); err != nil {
		return err
	}
	if err := a.board.Submit(ctx, application); err != nil {
		return err
	}
	fmt.Printf("申请 %s 已提交\n", *appID)
	return nil
}

// relay 一次性转发 outbox 中的全部待发送事件
func (a *app) relay(ctx context.Context) error {
	if a.storage.RabbitMQ == nil {
		return errors.New("未配置 RabbitMQ")
	}
	if !a.storage.HasStructured() {
		return errors.New("outbox 需要结构化后端")
	}
	db, err := a.storage.OpenStructured(ctx)
	if err != nil {
		return err
	}
	defer db.Close()

	sent, err := outbox.NewMessageRelay(db.DB(), a.storage.RabbitMQ).Drain(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("已转发 %d 条事件\n", sent)
	return nil
}
