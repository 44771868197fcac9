// Package intent は特権アクターごとの保留中コマンドの追跡を提供する。
// 複数ステップのコマンド（対象をリプライで指定する等）を他アクターをブロックせずに進めるための
// キー付きストアであり、モジュールレベルのシングルトンではなくハンドルとして受け渡す。
package intent

import (
	"sync"
	"time"

	"github.com/hitoshi/mediagate/internal/model"
)

// Tracker はアクターIDをキーとする保留中コマンドのストア。
// 1アクターにつき保留コマンドは最大1件（後勝ち）。
// 同一キーに対するSet/Consumeの競合はミューテックスで保護する。
type Tracker struct {
	mu      sync.Mutex
	intents map[string]*model.PendingIntent
	ttl     time.Duration // 0の場合は無期限に保持する
	now     func() time.Time
	stop    chan struct{}
}

// New はTrackerの新しいインスタンスを生成する。
// ttlが正の場合、その期間を超えた保留コマンドはConsumeで返されず破棄される。
// 消費されないまま放置されたエントリは定期清掃で回収される（Stopで停止）。
// ttlが0の場合は消費または明示的なクリアまで無期限に保持する。
func New(ttl time.Duration) *Tracker {
	t := &Tracker{
		intents: make(map[string]*model.PendingIntent),
		ttl:     ttl,
		now:     time.Now,
	}
	if ttl > 0 {
		t.stop = make(chan struct{})
		go t.cleanupLoop()
	}
	return t
}

// cleanupLoop はTTLを超過した保留コマンドを定期的に破棄する。
// ConsumeもClearもされないまま放置されたエントリの蓄積を防ぐ。
func (t *Tracker) cleanupLoop() {
	ticker := time.NewTicker(t.ttl)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			t.removeExpired()
		case <-t.stop:
			return
		}
	}
}

// removeExpired はTTLを超過したエントリをすべて破棄する。
func (t *Tracker) removeExpired() {
	now := t.now()
	t.mu.Lock()
	defer t.mu.Unlock()
	for actorID, pending := range t.intents {
		if now.Sub(pending.CreatedAt) > t.ttl {
			delete(t.intents, actorID)
		}
	}
}

// Stop は定期清掃を停止する。TTLが0の場合は何もしない。
func (t *Tracker) Stop() {
	if t.stop != nil {
		close(t.stop)
	}
}

// Set はアクターの保留中コマンドを設定する。
// 既存の保留コマンドがある場合は上書きする（キューイングしない）。
func (t *Tracker) Set(actorID string, kind model.IntentKind) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.intents[actorID] = &model.PendingIntent{
		ActorID:   actorID,
		Kind:      kind,
		CreatedAt: t.now(),
	}
}

// Consume はアクターの保留中コマンドを取得し、同時にクリアする（アトミック）。
// 保留コマンドがない場合、またはTTLを超過している場合はnilを返す。
// nilが返った場合、そのメッセージはこのサブシステムの管轄外として無視すること。
func (t *Tracker) Consume(actorID string) *model.PendingIntent {
	t.mu.Lock()
	defer t.mu.Unlock()

	pending, ok := t.intents[actorID]
	if !ok {
		return nil
	}
	delete(t.intents, actorID)

	if t.ttl > 0 && t.now().Sub(pending.CreatedAt) > t.ttl {
		return nil
	}

	return pending
}

// Peek はアクターの保留中コマンドをクリアせずに返す。
// TTL超過の場合はnilを返す（エントリは残る）。
func (t *Tracker) Peek(actorID string) *model.PendingIntent {
	t.mu.Lock()
	defer t.mu.Unlock()

	pending, ok := t.intents[actorID]
	if !ok {
		return nil
	}
	if t.ttl > 0 && t.now().Sub(pending.CreatedAt) > t.ttl {
		return nil
	}
	return pending
}

// Clear はアクターの保留中コマンドを無条件に破棄する。
// 不正な後続入力などでフローを中断する際に使用する。
func (t *Tracker) Clear(actorID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.intents, actorID)
}

// Len は現在保持している保留コマンドの件数を返す。テストおよびメトリクス用。
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.intents)
}
