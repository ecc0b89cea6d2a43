// Package store はインメモリのインデックス付きストアを提供する。
//
// 単一の論理ストアに users / tasks の2テーブルを保持し、
// リポジトリインターフェースを通じてアクセスする。設計方針:
//
//   - 読み取りはスナップショット一貫性を持つ。返す値はすべてコピーであり、
//     書き込み途中の状態を観測することはない。
//   - 書き込みはユーザー単位のロックで直列化する（single-writer-per-key）。
//     無関係なユーザーの書き込みは互いにブロックしない。
//   - タスクは (user_id) インデックスで挿入順に、(user_id, due_date) の
//     複合インデックスで期限順に引ける。ユーザーは external_id の
//     ユニークインデックスでO(1)ルックアップできる。
package store

import (
	"sync"
	"time"

	"github.com/hitoshi/taskdeck/internal/model"
	"github.com/hitoshi/taskdeck/internal/repository"
)

// taskRecord はタスク本体と挿入順シーケンスを保持する。
type taskRecord struct {
	task *model.Task
	seq  uint64
}

// Store はusers/tasksテーブルとインデックスを保持するインメモリストア。
type Store struct {
	// muはテーブルとインデックス構造を保護する。読み取りはRLockを取り、
	// 結果をコピーして返すことでスナップショットを保証する。
	mu sync.RWMutex

	users           map[string]*model.User
	usersByExternal map[string]string // external_id → user id（ユニークインデックス）

	tasks          map[string]*taskRecord
	tasksByUser    map[string][]string // user id → task id（挿入順昇順）
	tasksByUserDue map[string][]string // user id → task id（due_date昇順、同値はseq昇順）

	// seqはmuの書き込みロック下でのみ進む単調増加のコミットシーケンス。
	seq uint64

	// userLocksはユーザーIDをキーとした書き込み直列化用ロック。
	lockMu    sync.Mutex
	userLocks map[string]*sync.Mutex

	clock func() time.Time
}

// New は空のStoreを生成する。
func New() *Store {
	return &Store{
		users:           make(map[string]*model.User),
		usersByExternal: make(map[string]string),
		tasks:           make(map[string]*taskRecord),
		tasksByUser:     make(map[string][]string),
		tasksByUserDue:  make(map[string][]string),
		userLocks:       make(map[string]*sync.Mutex),
		clock:           time.Now,
	}
}

// Users はユーザーテーブルのリポジトリビューを返す。
func (s *Store) Users() repository.UserRepository {
	return &userStore{s: s}
}

// Tasks はタスクテーブルのリポジトリビューを返す。
func (s *Store) Tasks() repository.TaskRepository {
	return &taskStore{s: s}
}

// lockUser は指定ユーザーの書き込みロックを取得し、解放関数を返す。
// 同一ユーザーへのミューテーションを到着順に直列化する。
func (s *Store) lockUser(userID string) func() {
	s.lockMu.Lock()
	mu, ok := s.userLocks[userID]
	if !ok {
		mu = &sync.Mutex{}
		s.userLocks[userID] = mu
	}
	s.lockMu.Unlock()

	mu.Lock()
	return mu.Unlock
}

// nextSeq は次のコミットシーケンスを返す。muの書き込みロック下で呼ぶこと。
func (s *Store) nextSeq() uint64 {
	s.seq++
	return s.seq
}

// copyUser はユーザーの防御的コピーを返す。
func copyUser(u *model.User) *model.User {
	if u == nil {
		return nil
	}
	c := *u
	return &c
}

// copyTask はタスクの防御的コピーを返す。
func copyTask(t *model.Task) *model.Task {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}

// removeID はスライスから指定IDを取り除く。順序は維持する。
func removeID(ids []string, id string) []string {
	for i, v := range ids {
		if v == id {
			return append(ids[:i:i], ids[i+1:]...)
		}
	}
	return ids
}
