package utils

import (
	"math"
	"strconv"
)

var sizeUnits = []string{"Bytes", "KB", "MB", "GB"}

// FormatSize 将字节数格式化为可读字符串，例如 1536 -> "1.5 KB"。
// 单位按 1024 进位，最多保留两位小数，超过 GB 的值仍以 GB 表示。
func FormatSize(bytes int64) string {
	if bytes <= 0 {
		return "0 Bytes"
	}

	const k = 1024
	i := 0
	threshold := float64(k)
	for i < len(sizeUnits)-1 && float64(bytes) >= threshold {
		i++
		threshold *= k
	}

	value := float64(bytes) / math.Pow(k, float64(i))
	value = math.Round(value*100) / 100
	return strconv.FormatFloat(value, 'f', -1, 64) + " " + sizeUnits[i]
}
