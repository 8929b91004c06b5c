// Package encoder 文件内容与 data URL 之间的互转，以及轻量校验和
package encoder

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode"
	"unicode/utf16"

	"resume-store-go/internal/constants"
	"resume-store-go/internal/logger"
	"resume-store-go/internal/types"
	"resume-store-go/internal/utils"
)

const (
	dataScheme   = "data:"
	base64Marker = ";base64,"
)

// Encoder 带超时的文件编码器
type Encoder struct {
	timeout time.Duration
}

// New 创建编码器，timeout <= 0 时使用 30s
func New(timeout time.Duration) *Encoder {
	if timeout <= 0 {
		timeout = constants.EncodeTimeout
	}
	return &Encoder{timeout: timeout}
}

// Timeout 当前超时设置
func (e *Encoder) Timeout() time.Duration {
	return e.timeout
}

type readResult struct {
	data []byte
	err  error
}

// Encode 在超时内读完 r 并编码为 data URL，不限制读取长度
func (e *Encoder) Encode(ctx context.Context, mimeType string, r io.ReadCloser) (string, error) {
	payload, _, err := e.EncodeLimited(ctx, mimeType, r, 0)
	return payload, err
}

// EncodeLimited 同 Encode，同时返回实际读取的字节数
// maxBytes > 0 时最多读取 maxBytes+1 字节，超出即返回校验错误
// 超时或 ctx 取消时关闭 r 以中断读取；r 在所有路径上都会被关闭
func (e *Encoder) EncodeLimited(ctx context.Context, mimeType string, r io.ReadCloser, maxBytes int64) (string, int64, error) {
	var once sync.Once
	release := func() {
		once.Do(func() {
			if err := r.Close(); err != nil {
				logger.Debug().Err(err).Msg("关闭文件句柄失败")
			}
		})
	}
	defer release()

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	var src io.Reader = r
	if maxBytes > 0 {
		src = io.LimitReader(r, maxBytes+1)
	}
	done := make(chan readResult, 1)
	go func() {
		b, err := io.ReadAll(src)
		done <- readResult{data: b, err: err}
	}()

	select {
	case res := <-done:
		if res.err != nil {
			return "", 0, fmt.Errorf("读取文件失败: %w", res.err)
		}
		n := int64(len(res.data))
		if maxBytes > 0 && n > maxBytes {
			return "", n, types.NewValidationError("", fmt.Sprintf("File too large. Maximum allowed: %s",
				utils.FormatSize(maxBytes)))
		}
		return EncodeBytes(mimeType, res.data), n, nil
	case <-ctx.Done():
		release()
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", 0, types.NewTimeoutError(
				fmt.Sprintf("File read timed out after %s", e.timeout), ctx.Err())
		}
		return "", 0, fmt.Errorf("读取文件被取消: %w", ctx.Err())
	}
}

// Prefix 返回 MIME 类型对应的 data URL 前缀
func Prefix(mimeType string) string {
	return dataScheme + mimeType + base64Marker
}

// HasPrefixFor payload 是否以该 MIME 类型的前缀开头
func HasPrefixFor(payload, mimeType string) bool {
	return mimeType != "" && strings.HasPrefix(payload, Prefix(mimeType))
}

// EncodeBytes 同步编码内存中的内容
func EncodeBytes(mimeType string, data []byte) string {
	return Prefix(mimeType) + base64.StdEncoding.EncodeToString(data)
}

// Decode 解析 data URL，返回 MIME 类型和原始字节
func Decode(payload string) (string, []byte, error) {
	if !strings.HasPrefix(payload, dataScheme) {
		return "", nil, types.NewCorruptError("", "payload is not a data URL")
	}
	rest := payload[len(dataScheme):]
	idx := strings.Index(rest, base64Marker)
	if idx < 0 {
		return "", nil, types.NewCorruptError("", "payload is not base64 encoded")
	}
	mimeType := rest[:idx]
	data, err := base64.StdEncoding.DecodeString(rest[idx+len(base64Marker):])
	if err != nil {
		return "", nil, &types.ResumeError{Op: "decode", BaseErr: types.ErrCorrupt, Detail: "invalid base64 payload", Cause: err}
	}
	return mimeType, data, nil
}

// Checksum 对 payload 前 1000 个 UTF-16 码元计算 32 位滚动哈希（h*31+c），返回绝对值的十六进制
// 仅用于诊断，前缀相同的长 payload 会碰撞
func Checksum(payload string) string {
	var h int32
	n := 0
	for _, r := range payload {
		units := []uint16{uint16(r)}
		if r1, r2 := utf16.EncodeRune(r); r1 != unicode.ReplacementChar {
			units = []uint16{uint16(r1), uint16(r2)}
		}
		for _, c := range units {
			if n >= constants.ChecksumWindow {
				return hexAbs(h)
			}
			h = (h << 5) - h + int32(c)
			n++
		}
	}
	return hexAbs(h)
}

func hexAbs(h int32) string {
	v := int64(h)
	if v < 0 {
		v = -v
	}
	return strconv.FormatInt(v, 16)
}
