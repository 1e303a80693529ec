// internal/storage/archive.go
package storage

import (
	"bytes"
	"fmt"
	"time"

	"github.com/Corphon/Direktiva/internal/utils"
	"github.com/dustin/go-humanize"
	"github.com/klauspost/compress/zip"
)

// ArchiveEntry 压缩包中的一个文件
type ArchiveEntry struct {
	Name string
	Data []byte
}

// BuildArchive 把条目按顺序打包成 zip，名称重复时报错
func BuildArchive(entries []ArchiveEntry) ([]byte, error) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)

	seen := make(map[string]bool, len(entries))
	var raw uint64
	for _, entry := range entries {
		if seen[entry.Name] {
			zw.Close()
			return nil, fmt.Errorf("压缩包内文件名重复: %s", entry.Name)
		}
		seen[entry.Name] = true

		w, err := zw.CreateHeader(&zip.FileHeader{
			Name:     entry.Name,
			Method:   zip.Deflate,
			Modified: time.Now(),
		})
		if err != nil {
			zw.Close()
			return nil, fmt.Errorf("创建压缩条目失败: %w", err)
		}
		if _, err := w.Write(entry.Data); err != nil {
			zw.Close()
			return nil, fmt.Errorf("写入压缩条目失败: %w", err)
		}
		raw += uint64(len(entry.Data))
	}

	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("完成压缩包失败: %w", err)
	}

	utils.GetLogger().Info("📦 压缩包已生成", map[string]interface{}{
		"files":      len(entries),
		"raw_size":   humanize.Bytes(raw),
		"final_size": humanize.Bytes(uint64(buf.Len())),
	})
	return buf.Bytes(), nil
}
