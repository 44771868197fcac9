// Package provision はアカウントプロビジョニングのオーケストレーションを提供する。
// メディアサーバーでのアカウント作成、リクエストサービスへの取り込み、
// レジストリへの紐付け登録を順序付きステップとして実行し、
// 途中で失敗した場合は作成済みのリソースを補償処理で削除する。
package provision

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/hitoshi/mediagate/internal/jellyfin"
	"github.com/hitoshi/mediagate/internal/jellyseerr"
	"github.com/hitoshi/mediagate/internal/metrics"
	"github.com/hitoshi/mediagate/internal/model"
	"github.com/hitoshi/mediagate/internal/notify"
	"github.com/hitoshi/mediagate/internal/repository"
)

// MediaServerClient はメディアサーバー（アイデンティティバックエンド）の操作インターフェース。
type MediaServerClient interface {
	FindUserByName(ctx context.Context, name string) (*jellyfin.User, error)
	CreateUser(ctx context.Context, name, password string, policy jellyfin.Policy) (*jellyfin.User, error)
	DeleteUser(ctx context.Context, id string) error
	Authenticate(ctx context.Context, name, password string) (*jellyfin.User, error)
}

// RequestServiceClient はリクエストサービスの操作インターフェース。
type RequestServiceClient interface {
	ImportFromMediaServer(ctx context.Context, mediaAccountID string) error
	FindUserByMediaAccountID(ctx context.Context, mediaAccountID string, take int) (*jellyseerr.User, error)
	DeleteUser(ctx context.Context, id int) error
}

// Notifier はエンドユーザーへの直接通知のインターフェース。
type Notifier interface {
	SendDirect(ctx context.Context, actorID, text string) error
}

// Config はオーケストレーターの動作設定。
type Config struct {
	MediaServerURL      string        // 通知メッセージに記載するメディアサーバーURL
	RequestServerURL    string        // 通知メッセージに記載するリクエストサービスURL
	ImportRetryBackoff  time.Duration  // 取り込み失敗後の待機時間
	RequestUserPageSize int            // リクエストサービスのユーザー一覧取得件数
	TierDurations       map[string]int // ティアごとの既定有効日数。DurationDays未指定時に適用する
}

// Result はプロビジョニングの結果を表す。
// Deliveredがfalseの場合、呼び出し側はPasswordを使ってフォールバック表示を行う。
// Passwordはこの構造体以外に保持されず、ログにも出力されない。
type Result struct {
	Account   *model.LinkedAccount
	Password  string
	Delivered bool
}

// Service はプロビジョニングサーガのオーケストレーター。
type Service struct {
	media    MediaServerClient
	request  RequestServiceClient
	repo     repository.LinkedAccountRepository
	notifier Notifier
	metrics  metrics.MetricsCollector
	logger   *slog.Logger
	config   Config
	locks    *keyedMutex
	now      func() time.Time
}

// NewService はServiceの新しいインスタンスを生成する。
// notifierはnilを許容し、その場合は常にフォールバック表示となる。
func NewService(
	media MediaServerClient,
	request RequestServiceClient,
	repo repository.LinkedAccountRepository,
	notifier Notifier,
	collector metrics.MetricsCollector,
	logger *slog.Logger,
	config Config,
) *Service {
	return &Service{
		media:    media,
		request:  request,
		repo:     repo,
		notifier: notifier,
		metrics:  collector,
		logger:   logger,
		config:   config,
		locks:    newKeyedMutex(),
		now:      time.Now,
	}
}

// sagaStep はサーガの1ステップを表す。
// compensateは後続ステップの失敗時に逆順で実行される。nilの場合は補償なし。
type sagaStep struct {
	name       string
	run        func(ctx context.Context) error
	compensate func(ctx context.Context)
}

// Provision はアカウントを作成し、リクエストサービスへ連携し、レジストリに登録する。
// 途中で失敗した場合、作成済みのバックエンドリソースは削除され、
// レジストリに行は残らない。同名ユーザーへの並行呼び出しは直列化される。
func (s *Service) Provision(ctx context.Context, req model.ProvisioningRequest) (*Result, error) {
	if req.TargetActorID == "" {
		return nil, model.NewInvalidRequestError("対象アクターIDが指定されていません")
	}

	username := NormalizeUsername(req.DesiredUsername, req.TargetActorID)
	key := usernameKey(username)
	s.locks.Lock(key)
	defer s.locks.Unlock(key)

	password, err := GeneratePassword()
	if err != nil {
		return nil, err
	}

	// 有効日数の明示指定がない場合はティアの既定値を適用する
	durationDays := req.DurationDays
	if durationDays == 0 {
		durationDays = s.config.TierDurations[req.Tier]
	}

	createdAt := s.now().UTC()
	var expiresAt *time.Time
	if durationDays > 0 {
		t := createdAt.Add(time.Duration(durationDays) * 24 * time.Hour)
		expiresAt = &t
	}

	var (
		mediaUser   *jellyfin.User
		requestUser *jellyseerr.User
	)

	account := &model.LinkedAccount{
		ActorID:   req.TargetActorID,
		Username:  username,
		Tier:      req.Tier,
		CreatedAt: createdAt,
		ExpiresAt: expiresAt,
	}

	steps := []sagaStep{
		{
			name: "check_exists",
			run: func(ctx context.Context) error {
				existing, err := s.media.FindUserByName(ctx, username)
				if err != nil {
					return model.NewTransportError("メディアサーバー", err.Error())
				}
				if existing != nil {
					return model.NewAccountAlreadyExistsError(existing.Name, existing.ID)
				}
				return nil
			},
		},
		{
			name: "create_identity",
			run: func(ctx context.Context) error {
				created, err := s.media.CreateUser(ctx, username, password, jellyfin.DefaultPolicy())
				if err != nil {
					return model.NewAccountCreateFailedError(err.Error())
				}
				mediaUser = created
				account.MediaAccountID = created.ID
				return nil
			},
			compensate: func(ctx context.Context) {
				if err := s.media.DeleteUser(ctx, mediaUser.ID); err != nil {
					s.logger.Error("補償処理でメディアサーバーアカウントの削除に失敗しました",
						slog.String("media_account_id", mediaUser.ID),
						slog.String("error", err.Error()),
					)
				}
			},
		},
		{
			// 取り込みはリモート側で非同期に反映されることがあるため、
			// 呼び出し失敗は致命とせず待機してから次の解決ステップに委ねる。
			name: "import_account",
			run: func(ctx context.Context) error {
				if err := s.request.ImportFromMediaServer(ctx, mediaUser.ID); err != nil {
					s.logger.Warn("リクエストサービスへの取り込み呼び出しに失敗しました",
						slog.String("media_account_id", mediaUser.ID),
						slog.String("error", err.Error()),
					)
					select {
					case <-time.After(s.config.ImportRetryBackoff):
					case <-ctx.Done():
						return model.NewLinkageFailedError(ctx.Err().Error())
					}
				}
				return nil
			},
		},
		{
			name: "resolve_request_account",
			run: func(ctx context.Context) error {
				found, err := s.request.FindUserByMediaAccountID(ctx, mediaUser.ID, s.config.RequestUserPageSize)
				if err != nil {
					return model.NewLinkageFailedError(err.Error())
				}
				if found == nil {
					return model.NewLinkageFailedError("取り込み後もアカウントが見つかりません")
				}
				requestUser = found
				account.RequestAccountID = strconv.Itoa(found.ID)
				return nil
			},
			compensate: func(ctx context.Context) {
				if err := s.request.DeleteUser(ctx, requestUser.ID); err != nil {
					s.logger.Error("補償処理でリクエストサービスアカウントの削除に失敗しました",
						slog.Int("request_account_id", requestUser.ID),
						slog.String("error", err.Error()),
					)
				}
			},
		},
		{
			name: "register_linkage",
			run: func(ctx context.Context) error {
				if err := s.repo.Upsert(ctx, account); err != nil {
					return fmt.Errorf("レジストリへの登録に失敗しました: %w", err)
				}
				return nil
			},
		},
	}

	if err := s.runSaga(ctx, username, steps); err != nil {
		s.metrics.RecordProvisionFailure(failureReason(err))
		return nil, err
	}

	s.metrics.RecordProvisionSuccess()
	s.logger.Info("アカウントをプロビジョニングしました",
		slog.String("actor_id", req.TargetActorID),
		slog.String("username", username),
		slog.String("media_account_id", account.MediaAccountID),
		slog.String("tier", req.Tier),
		slog.Int("duration_days", durationDays),
	)

	result := &Result{
		Account:  account,
		Password: password,
	}
	result.Delivered = s.deliverCredentials(ctx, req.TargetActorID, username, password, durationDays)

	return result, nil
}

// runSaga はステップを順に実行し、失敗時は完了済みステップの補償処理を逆順で実行する。
func (s *Service) runSaga(ctx context.Context, username string, steps []sagaStep) error {
	for i, step := range steps {
		if err := step.run(ctx); err != nil {
			s.logger.Warn("プロビジョニングステップが失敗しました",
				slog.String("step", step.name),
				slog.String("username", username),
				slog.String("error", err.Error()),
			)
			for j := i - 1; j >= 0; j-- {
				if steps[j].compensate == nil {
					continue
				}
				s.logger.Info("補償処理を実行します",
					slog.String("step", steps[j].name),
					slog.String("username", username),
				)
				steps[j].compensate(ctx)
				s.metrics.RecordCompensation()
			}
			return err
		}
	}
	return nil
}

// deliverCredentials は資格情報を通知ゲートウェイ経由で配送する。
// 未設定または失敗の場合はfalseを返し、呼び出し側のフォールバック表示に委ねる。
func (s *Service) deliverCredentials(ctx context.Context, actorID, username, password string, durationDays int) bool {
	if s.notifier == nil {
		return false
	}

	text := notify.CredentialsMessage{
		Username:     username,
		Password:     password,
		MediaURL:     s.config.MediaServerURL,
		RequestURL:   s.config.RequestServerURL,
		DurationDays: durationDays,
	}.Render()

	if err := s.notifier.SendDirect(ctx, actorID, text); err != nil {
		if !errors.Is(err, notify.ErrNotConfigured) {
			s.metrics.RecordDeliveryFailure()
			s.logger.Warn("資格情報通知の配送に失敗しました",
				slog.String("actor_id", actorID),
				slog.String("username", username),
			)
		}
		return false
	}
	return true
}

// Revoke は指定アクターのアカウントを失効させる。
// 両バックエンドの削除はベストエフォートで、レジストリの行削除を最後に行う。
// 行が存在しない場合は成功として扱う（冪等）。
func (s *Service) Revoke(ctx context.Context, actorID string) error {
	account, err := s.repo.FindByActorID(ctx, actorID)
	if err != nil {
		return err
	}
	if account == nil {
		s.logger.Info("失効対象の紐付けが存在しません",
			slog.String("actor_id", actorID),
		)
		return nil
	}

	s.revokeBackends(ctx, account.MediaAccountID, account.RequestAccountID)

	if err := s.repo.DeleteByActorID(ctx, actorID); err != nil {
		return err
	}

	s.metrics.RecordRevoke()
	s.logger.Info("アカウントを失効させました",
		slog.String("actor_id", actorID),
		slog.String("username", account.Username),
	)
	return nil
}

// RevokeByUsername はユーザー名を起点にアカウントを失効させる。
// レジストリに紐付けがない場合はメディアサーバーを直接検索するフォールバックを行う。
func (s *Service) RevokeByUsername(ctx context.Context, username string) error {
	account, err := s.repo.FindByUsername(ctx, username)
	if err != nil {
		return err
	}
	if account != nil {
		return s.Revoke(ctx, account.ActorID)
	}

	// レジストリ外のアカウント（手動作成など）に対するフォールバック
	user, err := s.media.FindUserByName(ctx, username)
	if err != nil {
		return model.NewTransportError("メディアサーバー", err.Error())
	}
	if user == nil {
		return model.NewAccountNotFoundError(username)
	}

	requestAccountID := ""
	if found, err := s.request.FindUserByMediaAccountID(ctx, user.ID, s.config.RequestUserPageSize); err == nil && found != nil {
		requestAccountID = strconv.Itoa(found.ID)
	}

	s.revokeBackends(ctx, user.ID, requestAccountID)

	s.metrics.RecordRevoke()
	s.logger.Info("レジストリ外のアカウントを失効させました",
		slog.String("username", username),
		slog.String("media_account_id", user.ID),
	)
	return nil
}

// revokeBackends は両バックエンドのアカウントをベストエフォートで削除する。
// 片方の失敗はログに記録し、もう片方の削除は継続する。
func (s *Service) revokeBackends(ctx context.Context, mediaAccountID, requestAccountID string) {
	if mediaAccountID != "" {
		if err := s.media.DeleteUser(ctx, mediaAccountID); err != nil {
			s.logger.Warn("メディアサーバーアカウントの削除に失敗しました",
				slog.String("media_account_id", mediaAccountID),
				slog.String("error", err.Error()),
			)
		}
	}
	if requestAccountID != "" {
		id, err := strconv.Atoi(requestAccountID)
		if err != nil {
			s.logger.Warn("リクエストサービスアカウントIDが不正です",
				slog.String("request_account_id", requestAccountID),
			)
			return
		}
		if err := s.request.DeleteUser(ctx, id); err != nil {
			s.logger.Warn("リクエストサービスアカウントの削除に失敗しました",
				slog.Int("request_account_id", id),
				slog.String("error", err.Error()),
			)
		}
	}
}

// Link は既存のメディアサーバーアカウントをアクターに紐付ける。
// 資格情報で認証し、リクエストサービス側のアカウントを解決してレジストリに登録する。
// 認証は入力名の大文字小文字を区別しないため、レジストリにはサーバー側の正式な表記を保存する。
// パスワードは認証にのみ使用され、永続化もログ出力もされない。
func (s *Service) Link(ctx context.Context, actorID, username, password string) (*model.LinkedAccount, error) {
	if actorID == "" || username == "" || password == "" {
		return nil, model.NewInvalidRequestError("アクターID・ユーザー名・パスワードは必須です")
	}

	mediaUser, err := s.media.Authenticate(ctx, username, password)
	if err != nil {
		if errors.Is(err, jellyfin.ErrInvalidCredentials) {
			return nil, model.NewInvalidCredentialsError()
		}
		return nil, model.NewTransportError("メディアサーバー", err.Error())
	}

	canonicalName := mediaUser.Name
	if canonicalName == "" {
		canonicalName = username
	}

	requestUser, err := s.request.FindUserByMediaAccountID(ctx, mediaUser.ID, s.config.RequestUserPageSize)
	if err != nil {
		return nil, model.NewTransportError("リクエストサービス", err.Error())
	}
	if requestUser == nil {
		return nil, model.NewNotImportedError(canonicalName)
	}

	account := &model.LinkedAccount{
		ActorID:          actorID,
		MediaAccountID:   mediaUser.ID,
		RequestAccountID: strconv.Itoa(requestUser.ID),
		Username:         canonicalName,
		CreatedAt:        s.now().UTC(),
	}
	if err := s.repo.Upsert(ctx, account); err != nil {
		return nil, err
	}

	s.logger.Info("既存アカウントを紐付けました",
		slog.String("actor_id", actorID),
		slog.String("username", canonicalName),
		slog.String("media_account_id", mediaUser.ID),
	)
	return account, nil
}

// Unlink はレジストリの紐付けのみを削除する。バックエンドのアカウントは残す。
func (s *Service) Unlink(ctx context.Context, actorID string) error {
	account, err := s.repo.FindByActorID(ctx, actorID)
	if err != nil {
		return err
	}
	if account == nil {
		return model.NewAccountNotFoundError(actorID)
	}

	if err := s.repo.DeleteByActorID(ctx, actorID); err != nil {
		return err
	}

	s.logger.Info("紐付けを解除しました",
		slog.String("actor_id", actorID),
		slog.String("username", account.Username),
	)
	return nil
}

// failureReason はメトリクスのreasonラベルに使うエラーコードを返す。
func failureReason(err error) string {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code
	}
	return "INTERNAL"
}
