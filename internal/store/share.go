package store

import (
	"context"
	"fmt"
)

func (s *PostgresStore) InsertShareAnnotation(ctx context.Context, annotation ShareAnnotation) (ShareAnnotation, error) {
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO share_annotations (id, content_id, block_id, quote, body, author_name)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at
	`, annotation.ID, annotation.ContentID, annotation.BlockID, annotation.Quote, annotation.Body, annotation.AuthorName).Scan(&annotation.CreatedAt)
	if err != nil {
		return ShareAnnotation{}, fmt.Errorf("insert share annotation: %w", err)
	}
	annotation.Comments = []ShareAnnotationComment{}
	return annotation, nil
}

func (s *PostgresStore) GetShareAnnotation(ctx context.Context, annotationID string) (ShareAnnotation, error) {
	var item ShareAnnotation
	err := s.db.QueryRowContext(ctx, `
		SELECT id, content_id, block_id, quote, body, author_name, created_at
		FROM share_annotations
		WHERE id=$1
	`, annotationID).Scan(&item.ID, &item.ContentID, &item.BlockID, &item.Quote, &item.Body, &item.AuthorName, &item.CreatedAt)
	if err != nil {
		return ShareAnnotation{}, err
	}
	return item, nil
}

func (s *PostgresStore) InsertShareAnnotationComment(ctx context.Context, comment ShareAnnotationComment) (ShareAnnotationComment, error) {
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO share_annotation_comments (id, annotation_id, body, author_name)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at
	`, comment.ID, comment.AnnotationID, comment.Body, comment.AuthorName).Scan(&comment.CreatedAt)
	if err != nil {
		return ShareAnnotationComment{}, fmt.Errorf("insert share annotation comment: %w", err)
	}
	return comment, nil
}

// ListShareAnnotations returns annotations oldest first with their comments attached.
func (s *PostgresStore) ListShareAnnotations(ctx context.Context, contentID string) ([]ShareAnnotation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, content_id, block_id, quote, body, author_name, created_at
		FROM share_annotations
		WHERE content_id=$1
		ORDER BY created_at ASC
	`, contentID)
	if err != nil {
		return nil, fmt.Errorf("list share annotations: %w", err)
	}
	defer rows.Close()

	items := make([]ShareAnnotation, 0)
	index := map[string]int{}
	for rows.Next() {
		var item ShareAnnotation
		if err := rows.Scan(&item.ID, &item.ContentID, &item.BlockID, &item.Quote, &item.Body, &item.AuthorName, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan share annotation: %w", err)
		}
		item.Comments = []ShareAnnotationComment{}
		index[item.ID] = len(items)
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate share annotations: %w", err)
	}
	if len(items) == 0 {
		return items, nil
	}

	commentRows, err := s.db.QueryContext(ctx, `
		SELECT c.id, c.annotation_id, c.body, c.author_name, c.created_at
		FROM share_annotation_comments c
		JOIN share_annotations a ON a.id = c.annotation_id
		WHERE a.content_id=$1
		ORDER BY c.created_at ASC
	`, contentID)
	if err != nil {
		return nil, fmt.Errorf("list share annotation comments: %w", err)
	}
	defer commentRows.Close()

	for commentRows.Next() {
		var comment ShareAnnotationComment
		if err := commentRows.Scan(&comment.ID, &comment.AnnotationID, &comment.Body, &comment.AuthorName, &comment.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan share annotation comment: %w", err)
		}
		if i, ok := index[comment.AnnotationID]; ok {
			items[i].Comments = append(items[i].Comments, comment)
		}
	}
	if err := commentRows.Err(); err != nil {
		return nil, fmt.Errorf("iterate share annotation comments: %w", err)
	}
	return items, nil
}
