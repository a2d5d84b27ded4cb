package storage

import (
	"context"
	"fmt"
	"io"
	"path"
	"time"

	"github.com/google/uuid"
)

// Storage はアーカイブ文書の保存を抽象化するインターフェース。
// ローカルファイルシステム実装と S3 実装がある。
type Storage interface {
	// Save は data を key に保存し、保存先の URL を返す。
	// key はストレージ内の一意パス (例: "contact/2026/10/19/<uuid>.json")。
	Save(ctx context.Context, key string, data io.Reader, contentType string) (url string, err error)
}

// ArchiveKey returns a date-partitioned, collision-free key under prefix.
func ArchiveKey(prefix string, t time.Time) string {
	t = t.UTC()
	return path.Join(prefix,
		fmt.Sprintf("%04d", t.Year()),
		fmt.Sprintf("%02d", int(t.Month())),
		fmt.Sprintf("%02d", t.Day()),
		uuid.NewString()+".json",
	)
}
