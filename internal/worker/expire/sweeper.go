// Package expire は期限切れアカウントのバックグラウンド失効処理を提供する。
// 一定間隔でレジストリを走査し、expires_atを過ぎた紐付けを失効させる。
package expire

import (
	"context"
	"log/slog"
	"time"

	"github.com/hitoshi/mediagate/internal/metrics"
	"github.com/hitoshi/mediagate/internal/repository"
)

// Revoker はアカウント失効の実行インターフェース。
type Revoker interface {
	// Revoke は指定アクターのアカウントを失効させる。
	Revoke(ctx context.Context, actorID string) error
}

// Sweeper は期限切れアカウントの走査と失効を行う。
// 1件の失敗は記録して次の候補に進み、サイクル全体は中断しない。
type Sweeper struct {
	repo    repository.LinkedAccountRepository
	revoker Revoker
	metrics metrics.MetricsCollector
	logger  *slog.Logger
	now     func() time.Time
}

// NewSweeper はSweeperの新しいインスタンスを生成する。
func NewSweeper(
	repo repository.LinkedAccountRepository,
	revoker Revoker,
	collector metrics.MetricsCollector,
	logger *slog.Logger,
) *Sweeper {
	return &Sweeper{
		repo:    repo,
		revoker: revoker,
		metrics: collector,
		logger:  logger,
		now:     time.Now,
	}
}

// Start は指定間隔のティッカーでスイーパーを起動する。
// コンテキストがキャンセルされるまで実行を継続する。
func (s *Sweeper) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger.Info("期限切れスイーパーを開始しました",
		slog.Duration("interval", interval),
	)

	// 起動直後に1回実行
	if err := s.RunOnce(ctx); err != nil {
		s.logger.Error("スイープサイクルの実行に失敗しました",
			slog.String("error", err.Error()),
		)
	}

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("期限切れスイーパーを停止しました")
			return
		case <-ticker.C:
			if err := s.RunOnce(ctx); err != nil {
				s.logger.Error("スイープサイクルの実行に失敗しました",
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

// RunOnce は期限切れの紐付けを1回走査し、順次失効させる。
// 個別の失効失敗は次回サイクルで再試行されるため、エラーとして返さない。
func (s *Sweeper) RunOnce(ctx context.Context) error {
	start := time.Now()

	expired, err := s.repo.ListExpired(ctx, s.now().UTC())
	if err != nil {
		return err
	}

	if len(expired) == 0 {
		s.metrics.RecordSweepLatency(time.Since(start))
		return nil
	}

	s.logger.Info("スイープサイクルを開始します",
		slog.Int("expired_count", len(expired)),
	)

	revoked := 0
	for _, account := range expired {
		if err := s.revoker.Revoke(ctx, account.ActorID); err != nil {
			s.logger.Error("期限切れアカウントの失効に失敗しました",
				slog.String("actor_id", account.ActorID),
				slog.String("username", account.Username),
				slog.String("error", err.Error()),
			)
			continue
		}
		revoked++
	}

	duration := time.Since(start)
	s.metrics.RecordExpiredRevoked(revoked)
	s.metrics.RecordSweepLatency(duration)

	s.logger.Info("スイープサイクルが完了しました",
		slog.Int("expired_count", len(expired)),
		slog.Int("revoked_count", revoked),
		slog.Float64("duration_ms", float64(duration.Milliseconds())),
	)

	return nil
}
