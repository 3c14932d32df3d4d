package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5/pgconn"

	"inkwell/api/internal/util"
)

var (
	// ErrConflict is returned when a unique key already exists.
	ErrConflict = errors.New("conflict")
	// ErrStaleStatus means the row changed status under a transition.
	ErrStaleStatus       = errors.New("content status changed concurrently")
	ErrAlreadyPublished  = errors.New("content already published")
	ErrPublishInProgress = errors.New("publish already in progress")
)

const uniqueViolation = "23505"

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

// Ping verifies the database connection is alive
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

func (s *PostgresStore) CreateTeam(ctx context.Context, team Team, owner TeamMember) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create team: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO teams (id, name, slug)
		VALUES ($1, $2, $3)
	`, team.ID, team.Name, team.Slug); err != nil {
		if isUniqueViolation(err) {
			return ErrConflict
		}
		return fmt.Errorf("insert team: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO team_members (team_id, user_id, email, role)
		VALUES ($1, $2, $3, $4)
	`, team.ID, owner.UserID, owner.Email, owner.Role); err != nil {
		return fmt.Errorf("insert team owner: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit create team: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetTeam(ctx context.Context, teamID string) (Team, error) {
	var team Team
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, slug, created_at
		FROM teams
		WHERE id=$1
	`, teamID).Scan(&team.ID, &team.Name, &team.Slug, &team.CreatedAt)
	if err != nil {
		return Team{}, err
	}
	return team, nil
}

func (s *PostgresStore) ListTeamsForUser(ctx context.Context, userID string) ([]Team, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT t.id, t.name, t.slug, t.created_at, m.role
		FROM teams t
		JOIN team_members m ON m.team_id = t.id
		WHERE m.user_id = $1
		ORDER BY t.name ASC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list teams: %w", err)
	}
	defer rows.Close()

	items := make([]Team, 0)
	for rows.Next() {
		var item Team
		if err := rows.Scan(&item.ID, &item.Name, &item.Slug, &item.CreatedAt, &item.Role); err != nil {
			return nil, fmt.Errorf("scan team: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate teams: %w", err)
	}
	return items, nil
}

// GetMembership returns sql.ErrNoRows when the user is not on the team.
func (s *PostgresStore) GetMembership(ctx context.Context, teamID, userID string) (TeamMember, error) {
	var member TeamMember
	err := s.db.QueryRowContext(ctx, `
		SELECT team_id, user_id, email, role, created_at
		FROM team_members
		WHERE team_id=$1 AND user_id=$2
	`, teamID, userID).Scan(&member.TeamID, &member.UserID, &member.Email, &member.Role, &member.CreatedAt)
	if err != nil {
		return TeamMember{}, err
	}
	return member, nil
}

func (s *PostgresStore) ListTeamMembers(ctx context.Context, teamID string) ([]TeamMember, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT team_id, user_id, email, role, created_at
		FROM team_members
		WHERE team_id=$1
		ORDER BY created_at ASC
	`, teamID)
	if err != nil {
		return nil, fmt.Errorf("list team members: %w", err)
	}
	defer rows.Close()

	items := make([]TeamMember, 0)
	for rows.Next() {
		var item TeamMember
		if err := rows.Scan(&item.TeamID, &item.UserID, &item.Email, &item.Role, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan team member: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate team members: %w", err)
	}
	return items, nil
}

// addTeamMember is a no-op when the user already belongs to the team.
func addTeamMember(ctx context.Context, tx execer, member TeamMember) (bool, error) {
	result, err := tx.ExecContext(ctx, `
		INSERT INTO team_members (team_id, user_id, email, role)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (team_id, user_id) DO NOTHING
	`, member.TeamID, member.UserID, strings.ToLower(member.Email), member.Role)
	if err != nil {
		return false, fmt.Errorf("add team member: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("add team member rows: %w", err)
	}
	return affected > 0, nil
}

func (s *PostgresStore) ListPlatformAccounts(ctx context.Context, teamID string) ([]PlatformAccount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, team_id, platform, account_id, account_name, created_at
		FROM platform_accounts
		WHERE team_id=$1
		ORDER BY platform ASC, created_at ASC
	`, teamID)
	if err != nil {
		return nil, fmt.Errorf("list platform accounts: %w", err)
	}
	defer rows.Close()

	items := make([]PlatformAccount, 0)
	for rows.Next() {
		var item PlatformAccount
		if err := rows.Scan(&item.ID, &item.TeamID, &item.Platform, &item.AccountID, &item.AccountName, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan platform account: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate platform accounts: %w", err)
	}
	return items, nil
}

// GetPlatformAccount loads a connection without its tokens. Accounts of other
// teams resolve to sql.ErrNoRows.
func (s *PostgresStore) GetPlatformAccount(ctx context.Context, teamID, platformAccountID string) (PlatformAccount, error) {
	var item PlatformAccount
	err := s.db.QueryRowContext(ctx, `
		SELECT id, team_id, platform, account_id, account_name, created_at
		FROM platform_accounts
		WHERE id=$1 AND team_id=$2
	`, platformAccountID, teamID).Scan(&item.ID, &item.TeamID, &item.Platform, &item.AccountID, &item.AccountName, &item.CreatedAt)
	if err != nil {
		return PlatformAccount{}, err
	}
	return item, nil
}

// GetPlatformCredentials looks the account up scoped to team and platform so a
// caller can never reach another team's tokens.
func (s *PostgresStore) GetPlatformCredentials(ctx context.Context, teamID, platformAccountID, platform string) (PlatformAccount, error) {
	var item PlatformAccount
	err := s.db.QueryRowContext(ctx, `
		SELECT id, team_id, platform, account_id, account_name, access_token, refresh_token, token_expires_at, created_at
		FROM platform_accounts
		WHERE id=$1 AND team_id=$2 AND platform=$3
	`, platformAccountID, teamID, platform).Scan(
		&item.ID,
		&item.TeamID,
		&item.Platform,
		&item.AccountID,
		&item.AccountName,
		&item.AccessToken,
		&item.RefreshToken,
		&item.TokenExpiresAt,
		&item.CreatedAt,
	)
	if err != nil {
		return PlatformAccount{}, err
	}
	return item, nil
}

// UpsertPlatformAccount stores a connection, replacing tokens for the same
// team, platform and external account.
func (s *PostgresStore) UpsertPlatformAccount(ctx context.Context, account PlatformAccount) (PlatformAccount, error) {
	if account.ID == "" {
		account.ID = util.NewID("pa")
	}
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO platform_accounts (id, team_id, platform, account_id, account_name, access_token, refresh_token, token_expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (team_id, platform, account_id) DO UPDATE
		SET account_name=EXCLUDED.account_name,
			access_token=EXCLUDED.access_token,
			refresh_token=EXCLUDED.refresh_token,
			token_expires_at=EXCLUDED.token_expires_at
		RETURNING id, created_at
	`, account.ID, account.TeamID, account.Platform, account.AccountID, account.AccountName, account.AccessToken, account.RefreshToken, account.TokenExpiresAt).Scan(&account.ID, &account.CreatedAt)
	if err != nil {
		return PlatformAccount{}, fmt.Errorf("upsert platform account: %w", err)
	}
	return account, nil
}
