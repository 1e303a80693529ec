// internal/storage/open.go
package storage

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/Corphon/Direktiva/internal/config"
)

// Open 按配置选择存储后端
func Open(cfg *config.AppConfig) (KVStore, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	switch cfg.StoreBackend {
	case "", "file":
		return NewFileStorage(filepath.Join(cfg.DataDir, "preferences"))
	case "memory":
		return NewMemoryStore(), nil
	case "mongo", "mongodb":
		return NewMongoStore(ctx, cfg.MongoURI, cfg.MongoDB)
	case "redis":
		return NewRedisStore(ctx, cfg.RedisAddr)
	default:
		return nil, fmt.Errorf("未知的存储后端: %s", cfg.StoreBackend)
	}
}
