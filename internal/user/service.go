// Package user はユーザー管理のドメインロジックを提供する。
//
// ユーザーの作成・更新・削除は外部IdPのライフサイクルイベント（webhook）
// 経由の明示的なパスに限る。読み取り系は認証済みの呼び出し元の識別情報を
// 使ってIdentity Resolver経由で解決する。
package user

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/taskdeck/internal/identity"
	"github.com/hitoshi/taskdeck/internal/model"
	"github.com/hitoshi/taskdeck/internal/repository"
	"github.com/hitoshi/taskdeck/internal/security"
	"github.com/hitoshi/taskdeck/internal/storage"
)

// TaskDeleter はユーザーが所有するタスクの一括削除インターフェース。
// アカウント削除のカスケード処理で使用する。
type TaskDeleter interface {
	DeleteByUserID(ctx context.Context, userID string) (int, error)
}

// ProvisionInput はライフサイクルイベントから受け取るユーザー情報。
type ProvisionInput struct {
	ExternalID string
	Email      string
	FirstName  string
	LastName   string
	Username   string
	ImageURL   string
}

// ProfilePatch はプロフィールの部分更新を表す。nilフィールドは変更しない。
type ProfilePatch struct {
	Email     *string
	FirstName *string
	LastName  *string
	Username  *string
	ImageURL  *string
}

// Service はユーザー管理のサービス層。
type Service struct {
	users         repository.UserRepository
	tasks         TaskDeleter
	resolver      *identity.Resolver
	imageResolver storage.URLResolver
	sanitizer     security.TextSanitizerService
	guard         security.ImageURLGuardService
}

// NewService はServiceの新しいインスタンスを生成する。
// imageResolverがnilの場合、ストレージハンドルは未解決のまま返される。
func NewService(
	users repository.UserRepository,
	tasks TaskDeleter,
	resolver *identity.Resolver,
	imageResolver storage.URLResolver,
	sanitizer security.TextSanitizerService,
	guard security.ImageURLGuardService,
) *Service {
	return &Service{
		users:         users,
		tasks:         tasks,
		resolver:      resolver,
		imageResolver: imageResolver,
		sanitizer:     sanitizer,
		guard:         guard,
	}
}

// Provision はライフサイクルイベント（user.created）からユーザーを作成する。
// username未指定時はfirst_name + last_nameの連結を既定値とする。
// 同一外部IDのユーザーが既に存在する場合はDUPLICATE_USERを返す。
// イベントの重複配信に対する冪等化は呼び出し側（webhookハンドラ）が行う。
func (s *Service) Provision(ctx context.Context, in ProvisionInput) (*model.User, error) {
	if in.ExternalID == "" {
		return nil, fmt.Errorf("external ID is required for provisioning")
	}

	username := s.sanitizer.Sanitize(in.Username)
	if username == "" {
		username = model.DefaultUsername(
			s.sanitizer.Sanitize(in.FirstName),
			s.sanitizer.Sanitize(in.LastName),
		)
	}

	now := time.Now()
	newUser := &model.User{
		ID:         uuid.New().String(),
		ExternalID: in.ExternalID,
		Email:      in.Email,
		FirstName:  s.sanitizer.Sanitize(in.FirstName),
		LastName:   s.sanitizer.Sanitize(in.LastName),
		Username:   username,
		Image:      s.acceptImageRef(in.ImageURL),
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	if err := s.users.Create(ctx, newUser); err != nil {
		if err == repository.ErrDuplicateExternalID {
			return nil, model.NewDuplicateUserError(in.ExternalID)
		}
		return nil, fmt.Errorf("ユーザーの作成に失敗しました: %w", err)
	}

	slog.Info("ユーザーをプロビジョニングしました",
		slog.String("user_id", newUser.ID),
		slog.String("external_id", newUser.ExternalID),
	)

	return newUser, nil
}

// Upsert はライフサイクルイベント（user.updated）を処理する。
// ユーザーが存在すれば配信されたフィールドで更新し、存在しなければ新規作成する。
func (s *Service) Upsert(ctx context.Context, in ProvisionInput) (*model.User, error) {
	existing, err := s.users.FindByExternalID(ctx, in.ExternalID)
	if err != nil {
		return nil, fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if existing == nil {
		return s.Provision(ctx, in)
	}

	username := s.sanitizer.Sanitize(in.Username)
	firstName := s.sanitizer.Sanitize(in.FirstName)
	lastName := s.sanitizer.Sanitize(in.LastName)
	if username == "" {
		username = model.DefaultUsername(firstName, lastName)
	}
	image := s.acceptImageRef(in.ImageURL)

	patch := repository.UserPatch{
		Email:     &in.Email,
		FirstName: &firstName,
		LastName:  &lastName,
		Username:  &username,
		Image:     &image,
	}

	updated, err := s.users.Update(ctx, existing.ID, patch)
	if err != nil {
		return nil, fmt.Errorf("ユーザーの更新に失敗しました: %w", err)
	}
	if updated == nil {
		// 削除イベントと競合した場合。作成し直さず呼び出し側に伝える。
		return nil, model.NewUserNotFoundError()
	}
	return updated, nil
}

// Remove はライフサイクルイベント（user.deleted）を処理する。
// 所有タスクを先に削除してからユーザーを削除する。ユーザーが存在しない
// 場合は重複配信とみなして何もしない。
func (s *Service) Remove(ctx context.Context, externalID string) error {
	existing, err := s.users.FindByExternalID(ctx, externalID)
	if err != nil {
		return fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if existing == nil {
		slog.Info("削除対象のユーザーが存在しないためスキップします",
			slog.String("external_id", externalID),
		)
		return nil
	}

	deleted, err := s.tasks.DeleteByUserID(ctx, existing.ID)
	if err != nil {
		return fmt.Errorf("タスクの一括削除に失敗しました: %w", err)
	}

	if _, err := s.users.DeleteByID(ctx, existing.ID); err != nil {
		return fmt.Errorf("ユーザーの削除に失敗しました: %w", err)
	}

	slog.Info("ユーザーを削除しました",
		slog.String("user_id", existing.ID),
		slog.String("external_id", externalID),
		slog.Int("deleted_tasks", deleted),
	)

	return nil
}

// GetCurrentUser は呼び出し元の識別情報から自身のユーザーを返す。
func (s *Service) GetCurrentUser(ctx context.Context) (*model.User, error) {
	u, err := s.resolver.Resolve(ctx)
	if err != nil {
		return nil, err
	}
	return s.resolveImage(ctx, u), nil
}

// GetByID は指定IDのユーザーを返す。見つからない場合はnilを返す。
func (s *Service) GetByID(ctx context.Context, id string) (*model.User, error) {
	u, err := s.users.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if u == nil {
		return nil, nil
	}
	return s.resolveImage(ctx, u), nil
}

// GetByExternalID は外部IDでユーザーを検索する。見つからない場合はnilを返す。
func (s *Service) GetByExternalID(ctx context.Context, externalID string) (*model.User, error) {
	u, err := s.users.FindByExternalID(ctx, externalID)
	if err != nil {
		return nil, fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if u == nil {
		return nil, nil
	}
	return s.resolveImage(ctx, u), nil
}

// GetProfile は指定IDのユーザーを返す。GetByIDと異なり、見つからない場合は
// USER_NOT_FOUNDを返す厳格な読み取り。
func (s *Service) GetProfile(ctx context.Context, id string) (*model.User, error) {
	u, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, model.NewUserNotFoundError()
	}
	return u, nil
}

// UpdateProfile は指定されたフィールドのみを更新する。
// 画像URLが指定された場合は保存前に安全性を検証する。
// ユーザーが存在しない場合はUSER_NOT_FOUNDを返す。
func (s *Service) UpdateProfile(ctx context.Context, id string, patch ProfilePatch) (*model.User, error) {
	repoPatch := repository.UserPatch{
		Email: patch.Email,
	}
	if patch.FirstName != nil {
		v := s.sanitizer.Sanitize(*patch.FirstName)
		repoPatch.FirstName = &v
	}
	if patch.LastName != nil {
		v := s.sanitizer.Sanitize(*patch.LastName)
		repoPatch.LastName = &v
	}
	if patch.Username != nil {
		v := s.sanitizer.Sanitize(*patch.Username)
		repoPatch.Username = &v
	}
	if patch.ImageURL != nil {
		ref := model.ParseImageRef(*patch.ImageURL)
		if ref.Kind == model.ImageRefExternalURL {
			if err := s.guard.ValidateURL(ref.Value); err != nil {
				return nil, model.NewInvalidImageURLError(err.Error())
			}
		}
		repoPatch.Image = &ref
	}

	updated, err := s.users.Update(ctx, id, repoPatch)
	if err != nil {
		return nil, fmt.Errorf("ユーザーの更新に失敗しました: %w", err)
	}
	if updated == nil {
		return nil, model.NewUserNotFoundError()
	}

	return s.resolveImage(ctx, updated), nil
}

// acceptImageRef はライフサイクルイベント由来の画像URLをImageRefへ変換する。
// 外部URLとして安全性検証に失敗した値はイベント全体を失敗させず、
// 画像未設定として受理する。
func (s *Service) acceptImageRef(rawURL string) model.ImageRef {
	ref := model.ParseImageRef(rawURL)
	if ref.Kind != model.ImageRefExternalURL {
		return ref
	}
	if err := s.guard.ValidateURL(ref.Value); err != nil {
		slog.Warn("安全でない画像URLを無視します",
			slog.String("url", rawURL),
			slog.String("error", err.Error()),
		)
		return model.ImageRef{}
	}
	return ref
}

// resolveImage はストレージハンドルを取得可能なURLへ解決したコピーを返す。
// 解決に失敗した場合は読み取り全体を失敗させず、未解決のまま返す。
func (s *Service) resolveImage(ctx context.Context, u *model.User) *model.User {
	if u.Image.Kind != model.ImageRefStorage || s.imageResolver == nil {
		return u
	}

	resolved, err := s.imageResolver.ResolveURL(ctx, u.Image.Value)
	if err != nil {
		slog.Warn("画像URLの解決に失敗しました",
			slog.String("user_id", u.ID),
			slog.String("error", err.Error()),
		)
		return u
	}

	copied := *u
	copied.Image = model.ImageRef{Kind: model.ImageRefExternalURL, Value: resolved}
	return &copied
}
