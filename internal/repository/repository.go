package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// NewPool は PostgreSQL 接続プールを生成し、疎通を確認する。connectTimeout は新規接続ごとの上限。
func NewPool(ctx context.Context, connString string, connectTimeout time.Duration) (*pgxpool.Pool, error) {
	pool, err := NewLazyPool(ctx, connString, connectTimeout)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, Classify(err)
	}
	return pool, nil
}

// NewLazyPool は接続を確認せずにプールを生成する。接続は最初のクエリ時に張られるため、
// 起動時に DB が落ちていてもサーバーは起動でき、リクエスト単位で ErrUnavailable を返す。
func NewLazyPool(ctx context.Context, connString string, connectTimeout time.Duration) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	if connectTimeout > 0 {
		cfg.ConnConfig.ConnectTimeout = connectTimeout
	}
	return pgxpool.NewWithConfig(ctx, cfg)
}
