// Package subscribe はライブクエリの購読エンジンを提供する。
//
// クエリは読み取りセット（テーブル + ユーザーIDキー）を宣言して登録される。
// ミューテーションのコミット時に書き込みセットと交差する購読だけが再計算され、
// 結果スナップショットが全購読者（ミューテーションの発行者自身を含む）へ
// プッシュされる。購読者がいないテーブルへの書き込みは再計算を発生させない。
package subscribe

import (
	"context"
	"sync"
	"time"
)

// Table は購読対象のテーブルを表す。
type Table string

const (
	// TableUsers はユーザーテーブル。
	TableUsers Table = "users"
	// TableTasks はタスクテーブル。
	TableTasks Table = "tasks"
)

// ReadSet は登録クエリが依存するデータ範囲の宣言。
// テーブルとインデックスキー（所有ユーザーID）の組で表す。
type ReadSet struct {
	Table  Table
	UserID string
}

// WriteSet はコミットされたミューテーションが変更したデータ範囲。
type WriteSet struct {
	Table   Table
	UserIDs []string
}

// QueryFunc は購読クエリの再計算関数。現在のストア状態から結果を計算する。
type QueryFunc func(ctx context.Context) (any, error)

// Snapshot は購読者へ配信されるクエリ結果。
// Seqは購読ごとに単調増加し、古い結果が新しい結果を上書きしないことを保証する。
type Snapshot struct {
	Seq  uint64
	Data any
	Err  error
}

// Instrumentation はエンジンの観測フック。
type Instrumentation interface {
	// SubscriptionStarted は購読の登録時に呼ばれる。
	SubscriptionStarted()
	// SubscriptionEnded は購読の解除時に呼ばれる。
	SubscriptionEnded()
	// RecomputeObserved はクエリ再計算の実行時に呼ばれる。
	RecomputeObserved(table string)
	// PushObserved はスナップショット配信の所要時間を記録する。
	PushObserved(d time.Duration)
}

// nopInstrumentation は観測なしのデフォルト実装。
type nopInstrumentation struct{}

func (nopInstrumentation) SubscriptionStarted()       {}
func (nopInstrumentation) SubscriptionEnded()         {}
func (nopInstrumentation) RecomputeObserved(string)   {}
func (nopInstrumentation) PushObserved(time.Duration) {}

// Subscription は登録済みのライブクエリ。
// 配信は合流（coalescing)方式: 購読者が消費する前に複数のスナップショットが
// 生成された場合、最新のものだけが保持される。順序はSeqで保証される。
type Subscription struct {
	readSet ReadSet
	compute QueryFunc

	mu        sync.Mutex
	latest    *Snapshot
	delivered uint64
	notify    chan struct{}
	closed    bool
}

// Updates は新しいスナップショットが利用可能になったことを通知するチャネルを返す。
// 通知を受けたらLatestで最新スナップショットを取得する。
func (s *Subscription) Updates() <-chan struct{} {
	return s.notify
}

// Latest は最新のスナップショットを取り出す。未配信のものがなければnilを返す。
// 取り出したスナップショットのSeqを消費済みとして記録する。
func (s *Subscription) Latest() *Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := s.latest
	s.latest = nil
	if snap != nil {
		s.delivered = snap.Seq
	}
	return snap
}

// deliver はスナップショットを保持し、購読者へ通知する。
// 購読者が既に消費したSeq、または保持中のスナップショットのSeq以下のものは
// 破棄する。遅れて完了した再計算が新しい結果を巻き戻すことはない。
func (s *Subscription) deliver(snap *Snapshot) {
	s.mu.Lock()
	if s.closed || snap.Seq <= s.delivered || (s.latest != nil && s.latest.Seq >= snap.Seq) {
		s.mu.Unlock()
		return
	}
	s.latest = snap
	s.mu.Unlock()

	// 既に通知がペンディングなら追加の通知は不要（合流）
	select {
	case s.notify <- struct{}{}:
	default:
	}
}

// close は購読を配信停止状態にする。
func (s *Subscription) close() {
	s.mu.Lock()
	s.closed = true
	s.latest = nil
	s.mu.Unlock()
}

// Engine はライブクエリ購読エンジン。
type Engine struct {
	mu   sync.RWMutex
	subs map[ReadSet]map[*Subscription]struct{}
	seq  uint64

	inst Instrumentation
}

// NewEngine はEngineを生成する。instがnilの場合は観測なしで動作する。
func NewEngine(inst Instrumentation) *Engine {
	if inst == nil {
		inst = nopInstrumentation{}
	}
	return &Engine{
		subs: make(map[ReadSet]map[*Subscription]struct{}),
		inst: inst,
	}
}

// Subscribe はクエリを購読として登録し、初回スナップショットを配信する。
// 登録された購読は、読み取りセットと交差する全ミューテーションで再計算される。
func (e *Engine) Subscribe(ctx context.Context, readSet ReadSet, compute QueryFunc) (*Subscription, error) {
	sub := &Subscription{
		readSet: readSet,
		compute: compute,
		notify:  make(chan struct{}, 1),
	}

	// 初回スナップショットは登録と同時に計算する。登録前にコミットされた
	// ミューテーションの結果を必ず含む。
	e.mu.Lock()
	e.seq++
	seq := e.seq
	if e.subs[readSet] == nil {
		e.subs[readSet] = make(map[*Subscription]struct{})
	}
	e.subs[readSet][sub] = struct{}{}
	e.mu.Unlock()

	e.inst.SubscriptionStarted()
	e.inst.RecomputeObserved(string(readSet.Table))

	data, err := compute(ctx)
	sub.deliver(&Snapshot{Seq: seq, Data: data, Err: err})

	return sub, nil
}

// Unsubscribe は購読を解除する。解除後の配信は発生しない。
func (e *Engine) Unsubscribe(sub *Subscription) {
	e.mu.Lock()
	set, ok := e.subs[sub.readSet]
	if ok {
		if _, registered := set[sub]; !registered {
			ok = false
		}
		delete(set, sub)
		if len(set) == 0 {
			delete(e.subs, sub.readSet)
		}
	}
	e.mu.Unlock()

	if ok {
		sub.close()
		e.inst.SubscriptionEnded()
	}
}

// Publish はコミット済みミューテーションの書き込みセットを通知する。
// 読み取りセットが交差する購読ごとにクエリを再計算し、スナップショットを
// 配信する。交差する購読が存在しない場合は再計算を行わない。
func (e *Engine) Publish(ctx context.Context, ws WriteSet) {
	e.mu.Lock()
	var targets []*Subscription
	for _, userID := range ws.UserIDs {
		for sub := range e.subs[ReadSet{Table: ws.Table, UserID: userID}] {
			targets = append(targets, sub)
		}
	}
	if len(targets) == 0 {
		e.mu.Unlock()
		return
	}
	e.seq++
	seq := e.seq
	e.mu.Unlock()

	for _, sub := range targets {
		e.inst.RecomputeObserved(string(ws.Table))
		start := time.Now()
		data, err := sub.compute(ctx)
		sub.deliver(&Snapshot{Seq: seq, Data: data, Err: err})
		e.inst.PushObserved(time.Since(start))
	}
}

// SubscriberCount は指定の読み取りセットに登録されている購読数を返す。
func (e *Engine) SubscriberCount(readSet ReadSet) int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.subs[readSet])
}
