package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"quickchat/internal/member/domain"
	errprocess "quickchat/pkg/err"
)

// MemberRepository definition get Member info
type MemberRepository interface {
	FindByMember(ctx context.Context, memberQuery *domain.MemberQuery) (*domain.Member, error)
	// ListOthers every active member except memberID
	ListOthers(ctx context.Context, memberID string) ([]domain.Member, error)
	FindByIDs(ctx context.Context, memberIDs []string) ([]domain.Member, error)
}

// Querier the part of pgxpool.Pool used by the repository
type Querier interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

type memberRepository struct {
	db Querier
}

// NewMemberRepository create a MemberRepository
func NewMemberRepository(db *pgxpool.Pool) MemberRepository {
	return &memberRepository{db: db}
}

const memberColumns = "id, member_id, email, COALESCE(full_name, ''), COALESCE(profile_pic, ''), COALESCE(bio, ''), status"

func scanMember(row pgx.Row) (domain.Member, error) {
	var m domain.Member
	err := row.Scan(&m.ID, &m.MemberID, &m.Email, &m.FullName, &m.ProfilePic, &m.Bio, &m.Status)
	return m, err
}

func (r *memberRepository) FindByMember(ctx context.Context, memberQuery *domain.MemberQuery) (*domain.Member, error) {
	queryStr := "SELECT " + memberColumns + " FROM member WHERE 1=1"
	params := []interface{}{}
	paramCount := 1

	if memberQuery.Email != nil {
		queryStr += fmt.Sprintf(" AND email = $%d", paramCount)
		params = append(params, *memberQuery.Email)
		paramCount++
	}
	if memberQuery.MemberID != nil {
		queryStr += fmt.Sprintf(" AND member_id = $%d", paramCount)
		params = append(params, *memberQuery.MemberID)
		paramCount++
	}
	if memberQuery.ID != nil {
		queryStr += fmt.Sprintf(" AND id = $%d", paramCount)
		params = append(params, *memberQuery.ID)
		paramCount++
	}

	member, err := scanMember(r.db.QueryRow(ctx, queryStr, params...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errprocess.NotFound("User not found")
		}
		return nil, errprocess.Transport(err, "find member")
	}

	return &member, nil
}

func (r *memberRepository) ListOthers(ctx context.Context, memberID string) ([]domain.Member, error) {
	rows, err := r.db.Query(ctx,
		"SELECT "+memberColumns+" FROM member WHERE member_id <> $1 AND status < $2 ORDER BY full_name, member_id",
		memberID, domain.MemberStatusBan)
	if err != nil {
		return nil, errprocess.Transport(err, "list members")
	}
	return collect(rows)
}

func (r *memberRepository) FindByIDs(ctx context.Context, memberIDs []string) ([]domain.Member, error) {
	if len(memberIDs) == 0 {
		return []domain.Member{}, nil
	}
	rows, err := r.db.Query(ctx, "SELECT "+memberColumns+" FROM member WHERE member_id = ANY($1)", memberIDs)
	if err != nil {
		return nil, errprocess.Transport(err, "find members")
	}
	return collect(rows)
}

func collect(rows pgx.Rows) ([]domain.Member, error) {
	defer rows.Close()

	members := []domain.Member{}
	for rows.Next() {
		m, err := scanMember(rows)
		if err != nil {
			return nil, errprocess.Transport(err, "scan member")
		}
		members = append(members, m)
	}
	if err := rows.Err(); err != nil {
		return nil, errprocess.Transport(err, "read members")
	}
	return members, nil
}
