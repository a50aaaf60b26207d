package app

import (
	"context"
	"errors"
	"time"

	"quickchat/internal/member/domain"
	"quickchat/internal/member/repository"
	"quickchat/pkg/database"
	errprocess "quickchat/pkg/err"
	"quickchat/pkg/logger"
	"quickchat/pkg/token"

	"go.uber.org/zap"
)

// MemberUseCase 這裡封裝了對外提供的應用服務
type MemberUseCase interface {
	// VerifyToken resolve a session token to an existing member id
	VerifyToken(ctx context.Context, t string) (string, error)
	FindMember(ctx context.Context, param *domain.MemberQuery) (*domain.Member, error)
	ListOthers(ctx context.Context, memberID string) ([]domain.Member, error)
	FindByIDs(ctx context.Context, memberIDs []string) ([]domain.Member, error)
}

type memberUseCase struct {
	memberRepo repository.MemberRepository
	// cache member profile, nil disables
	cache    database.RedisRepository[domain.Member]
	cacheTTL time.Duration
	// sessions written by the login service, nil disables the check
	sessions database.RedisRepository[domain.MemberSession]
}

// NewMemberUseCase 建立一個新的 MemberUseCase
func NewMemberUseCase(memberRepo repository.MemberRepository,
	cache database.RedisRepository[domain.Member],
	cacheTTL time.Duration,
	sessions database.RedisRepository[domain.MemberSession],
) MemberUseCase {
	return &memberUseCase{
		memberRepo: memberRepo,
		cache:      cache,
		cacheTTL:   cacheTTL,
		sessions:   sessions,
	}
}

// VerifyToken 驗證 JWT，必要時比對 redis 內的 session
func (m *memberUseCase) VerifyToken(ctx context.Context, t string) (string, error) {
	claims, err := token.ParseJWT(t)
	if err != nil {
		if errors.Is(err, token.ErrTokenExpired) {
			return "", errprocess.Auth("Token expired, please log in again")
		}
		return "", errprocess.Auth("Invalid token")
	}

	if m.sessions != nil {
		session, err := m.sessions.Get(ctx, claims.MemberID)
		if err != nil {
			if errors.Is(err, database.ErrRedisNil) {
				return "", errprocess.Auth("Token expired, please log in again")
			}
			return "", errprocess.Transport(err, "check session")
		}
		if session.Token != t {
			return "", errprocess.Auth("Invalid token")
		}
		if session.IsExpired() {
			return "", errprocess.Auth("Token expired, please log in again")
		}
	}

	member, err := m.findByID(ctx, claims.MemberID)
	if err != nil {
		return "", err
	}
	if !member.Active() {
		return "", errprocess.Auth("Invalid token")
	}
	return member.MemberID, nil
}

// FindMember 用條件來尋找使用者
func (m *memberUseCase) FindMember(ctx context.Context, param *domain.MemberQuery) (*domain.Member, error) {
	if param.MemberID != nil && param.ID == nil && param.Email == nil {
		return m.findByID(ctx, *param.MemberID)
	}
	return m.memberRepo.FindByMember(ctx, param)
}

func (m *memberUseCase) findByID(ctx context.Context, memberID string) (*domain.Member, error) {
	if m.cache != nil {
		cached, err := m.cache.Get(ctx, memberID)
		if err == nil {
			return &cached, nil
		}
		if !errors.Is(err, database.ErrRedisNil) {
			logger.Log.Warn("member cache get", zap.String("memberID", memberID), zap.Error(err))
		}
	}

	member, err := m.memberRepo.FindByMember(ctx, &domain.MemberQuery{MemberID: &memberID})
	if err != nil {
		return nil, err
	}
	m.store(ctx, *member)
	return member, nil
}

func (m *memberUseCase) store(ctx context.Context, member domain.Member) {
	if m.cache == nil {
		return
	}
	if err := m.cache.Set(ctx, member.MemberID, member, m.cacheTTL); err != nil {
		logger.Log.Warn("member cache set", zap.String("memberID", member.MemberID), zap.Error(err))
	}
}

// ListOthers sidebar members
func (m *memberUseCase) ListOthers(ctx context.Context, memberID string) ([]domain.Member, error) {
	return m.memberRepo.ListOthers(ctx, memberID)
}

// FindByIDs 先查 cache，缺的再一次查 DB
func (m *memberUseCase) FindByIDs(ctx context.Context, memberIDs []string) ([]domain.Member, error) {
	found := make([]domain.Member, 0, len(memberIDs))
	missing := make([]string, 0, len(memberIDs))

	for _, id := range memberIDs {
		if m.cache != nil {
			if cached, err := m.cache.Get(ctx, id); err == nil {
				found = append(found, cached)
				continue
			}
		}
		missing = append(missing, id)
	}
	if len(missing) == 0 {
		return found, nil
	}

	members, err := m.memberRepo.FindByIDs(ctx, missing)
	if err != nil {
		return nil, err
	}
	for _, member := range members {
		m.store(ctx, member)
	}
	return append(found, members...), nil
}
