package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"inkwell/api/internal/util"
)

var contentColumns = []string{
	"c.id",
	"c.team_id",
	"c.title",
	"c.blocks",
	"c.status",
	"c.scheduled_at",
	"c.published_at",
	"c.publishing_at",
	"c.created_by",
	"COALESCE(c.assigned_to, '')",
	"c.share_enabled",
	"COALESCE(c.share_token, '')",
	"c.share_allow_comments",
	"COALESCE(c.share_password_hash, '')",
	"c.created_at",
	"c.updated_at",
}

const membersColumn = `COALESCE((
	SELECT json_agg(json_build_object('team_id', m.team_id, 'user_id', m.user_id, 'email', m.email, 'role', m.role))
	FROM team_members m
	WHERE m.team_id = c.team_id
), '[]')`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanContent(row rowScanner, extra ...any) (Content, error) {
	var item Content
	var blocksRaw []byte
	dest := []any{
		&item.ID,
		&item.TeamID,
		&item.Title,
		&blocksRaw,
		&item.Status,
		&item.ScheduledAt,
		&item.PublishedAt,
		&item.PublishingAt,
		&item.CreatedBy,
		&item.AssignedTo,
		&item.Share.Enabled,
		&item.Share.Token,
		&item.Share.AllowComments,
		&item.Share.PasswordHash,
		&item.CreatedAt,
		&item.UpdatedAt,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return Content{}, err
	}
	item.Blocks = make([]ContentBlock, 0)
	if len(blocksRaw) > 0 {
		if err := json.Unmarshal(blocksRaw, &item.Blocks); err != nil {
			return Content{}, fmt.Errorf("decode content blocks: %w", err)
		}
	}
	return item, nil
}

// GetContent loads the row together with its team's members in one round trip.
func (s *PostgresStore) GetContent(ctx context.Context, contentID string) (Content, error) {
	query, args, err := psql.
		Select(append(append([]string{}, contentColumns...), membersColumn)...).
		From("contents c").
		Where(sq.Eq{"c.id": contentID}).
		ToSql()
	if err != nil {
		return Content{}, fmt.Errorf("build content query: %w", err)
	}

	var membersRaw []byte
	item, err := scanContent(s.db.QueryRowContext(ctx, query, args...), &membersRaw)
	if err != nil {
		return Content{}, err
	}
	if err := json.Unmarshal(membersRaw, &item.Members); err != nil {
		return Content{}, fmt.Errorf("decode content members: %w", err)
	}
	return item, nil
}

func (s *PostgresStore) ListContent(ctx context.Context, filter ContentFilter) ([]Content, error) {
	builder := psql.
		Select(contentColumns...).
		From("contents c").
		Where(sq.Eq{"c.team_id": filter.TeamID}).
		OrderBy("c.updated_at DESC")
	if filter.Status != "" {
		builder = builder.Where(sq.Eq{"c.status": filter.Status})
	}
	if filter.AssignedTo != "" {
		builder = builder.Where(sq.Eq{"c.assigned_to": filter.AssignedTo})
	}
	if filter.IDs != nil {
		builder = builder.Where(sq.Eq{"c.id": filter.IDs})
	}
	if filter.Query != "" {
		builder = builder.Where(sq.ILike{"c.title": "%" + filter.Query + "%"})
	}
	if filter.Limit > 0 {
		builder = builder.Limit(filter.Limit)
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build content list query: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list content: %w", err)
	}
	defer rows.Close()

	items := make([]Content, 0)
	for rows.Next() {
		item, err := scanContent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan content: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate content: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) CreateContent(ctx context.Context, item Content) error {
	blocks := item.Blocks
	if blocks == nil {
		blocks = []ContentBlock{}
	}
	encoded, err := json.Marshal(blocks)
	if err != nil {
		return fmt.Errorf("marshal content blocks: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create content: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO contents (id, team_id, title, blocks, status, created_by, assigned_to)
		VALUES ($1, $2, $3, $4::jsonb, $5, $6, NULLIF($7, ''))
	`, item.ID, item.TeamID, item.Title, string(encoded), item.Status, item.CreatedBy, item.AssignedTo); err != nil {
		return fmt.Errorf("insert content: %w", err)
	}
	if err := insertActivity(ctx, tx, ContentActivity{
		ContentID: item.ID,
		TeamID:    item.TeamID,
		UserID:    item.CreatedBy,
		Action:    "created",
		ToStatus:  item.Status,
	}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit create content: %w", err)
	}
	return nil
}

// TransitionContent moves a row from one status to another and records the
// change. It returns ErrStaleStatus when the row is no longer in from.
func (s *PostgresStore) TransitionContent(ctx context.Context, activity ContentActivity) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transition: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	result, err := tx.ExecContext(ctx, `
		UPDATE contents
		SET status=$3, updated_at=NOW()
		WHERE id=$1 AND status=$2
	`, activity.ContentID, activity.FromStatus, activity.ToStatus)
	if err != nil {
		return fmt.Errorf("update content status: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update content status rows: %w", err)
	}
	if affected == 0 {
		return ErrStaleStatus
	}
	if err := insertActivity(ctx, tx, activity); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transition: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpdateShareSettings(ctx context.Context, contentID string, settings ShareSettings) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE contents
		SET share_enabled=$2,
			share_token=NULLIF($3, ''),
			share_allow_comments=$4,
			share_password_hash=NULLIF($5, ''),
			updated_at=NOW()
		WHERE id=$1
	`, contentID, settings.Enabled, settings.Token, settings.AllowComments, settings.PasswordHash)
	if err != nil {
		return fmt.Errorf("update share settings: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListActivities(ctx context.Context, contentID string, limit int) ([]ContentActivity, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, content_id, team_id, user_id, action, COALESCE(from_status, ''), COALESCE(to_status, ''), metadata, created_at
		FROM content_activities
		WHERE content_id=$1
		ORDER BY created_at DESC
		LIMIT $2
	`, contentID, limit)
	if err != nil {
		return nil, fmt.Errorf("list activities: %w", err)
	}
	defer rows.Close()

	items := make([]ContentActivity, 0)
	for rows.Next() {
		var item ContentActivity
		var metadataRaw []byte
		if err := rows.Scan(
			&item.ID,
			&item.ContentID,
			&item.TeamID,
			&item.UserID,
			&item.Action,
			&item.FromStatus,
			&item.ToStatus,
			&metadataRaw,
			&item.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan activity: %w", err)
		}
		_ = json.Unmarshal(metadataRaw, &item.Metadata)
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate activities: %w", err)
	}
	return items, nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertActivity(ctx context.Context, tx execer, activity ContentActivity) error {
	if activity.ID == "" {
		activity.ID = util.NewID("act")
	}
	metadata := activity.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}
	encoded, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("marshal activity metadata: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO content_activities (id, content_id, team_id, user_id, action, from_status, to_status, metadata)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), NULLIF($7, ''), $8::jsonb)
	`, activity.ID, activity.ContentID, activity.TeamID, activity.UserID, activity.Action, activity.FromStatus, activity.ToStatus, string(encoded)); err != nil {
		return fmt.Errorf("insert activity: %w", err)
	}
	return nil
}

// publishLeaseTTL bounds how long a crashed publish can block a retry.
const publishLeaseTTL = 10 * time.Minute

// ClaimPublish takes the per-content publishing lease before any external
// call is made. Only one of two concurrent callers can succeed.
func (s *PostgresStore) ClaimPublish(ctx context.Context, contentID string, now time.Time) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE contents
		SET publishing_at=$2
		WHERE id=$1
			AND status <> 'PUBLISHED'
			AND (publishing_at IS NULL OR publishing_at < $3)
	`, contentID, now, now.Add(-publishLeaseTTL))
	if err != nil {
		return fmt.Errorf("claim publish: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("claim publish rows: %w", err)
	}
	if affected > 0 {
		return nil
	}

	var status string
	if err := s.db.QueryRowContext(ctx, `SELECT status FROM contents WHERE id=$1`, contentID).Scan(&status); err != nil {
		return err
	}
	if status == StatusPublished {
		return ErrAlreadyPublished
	}
	return ErrPublishInProgress
}

func (s *PostgresStore) ReleasePublish(ctx context.Context, contentID string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE contents SET publishing_at=NULL WHERE id=$1`, contentID)
	if err != nil {
		return fmt.Errorf("release publish: %w", err)
	}
	return nil
}

// FinalizePublish marks the content published and appends the activity and
// schedule rows in a single transaction.
func (s *PostgresStore) FinalizePublish(ctx context.Context, f PublishFinalization) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin finalize publish: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
		UPDATE contents
		SET status='PUBLISHED', published_at=$2, publishing_at=NULL, updated_at=$2
		WHERE id=$1
	`, f.ContentID, f.PublishedAt); err != nil {
		return fmt.Errorf("mark content published: %w", err)
	}

	metadata := map[string]any{
		"platform":          f.Platform,
		"platformAccountId": f.PlatformAccountID,
		"platformPostId":    f.PlatformPostID,
	}
	for key, value := range f.Metadata {
		metadata[key] = value
	}
	if err := insertActivity(ctx, tx, ContentActivity{
		ContentID:  f.ContentID,
		TeamID:     f.TeamID,
		UserID:     f.UserID,
		Action:     "published",
		FromStatus: f.FromStatus,
		ToStatus:   StatusPublished,
		Metadata:   metadata,
	}); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO content_schedules (id, content_id, platform_account_id, scheduled_at, status, platform_post_id)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, util.NewID("sch"), f.ContentID, f.PlatformAccountID, f.PublishedAt, ScheduleSent, f.PlatformPostID); err != nil {
		return fmt.Errorf("insert content schedule: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit finalize publish: %w", err)
	}
	return nil
}
