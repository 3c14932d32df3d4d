package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"inkwell/api/internal/auth"
	"inkwell/api/internal/ratelimit"
	"inkwell/api/internal/store"
	"inkwell/api/internal/util"
)

const (
	shareOpRead          = "share-read"
	shareOpAnnotation    = "share-annotation"
	shareOpComment       = "share-annotation-comment"
	defaultShareLimit    = 60
	defaultShareWindow   = time.Minute
	maxShareBodyLength   = 5000
	maxShareAuthorLength = 80
	maxShareQuoteLength  = 1000
)

// ShareAccess is what an anonymous visitor presents with a share request.
type ShareAccess struct {
	Token    string
	Password string
	ClientIP string
}

type ShareAnnotationInput struct {
	AuthorName string `json:"authorName"`
	BlockID    string `json:"blockId"`
	Quote      string `json:"quote"`
	Body       string `json:"body"`
}

type ShareCommentInput struct {
	AuthorName string `json:"authorName"`
	Body       string `json:"body"`
}

func shareNotFound() *DomainError {
	return notFound("Share link not found")
}

func (s *Service) checkShareLimit(ctx context.Context, operation, contentID, clientIP string) error {
	if s.limiter == nil {
		return nil
	}
	limit := s.cfg.ShareRateLimit
	if limit <= 0 {
		limit = defaultShareLimit
	}
	window := s.cfg.ShareRateWindow
	if window <= 0 {
		window = defaultShareWindow
	}

	decision, err := s.limiter.Check(ctx, ratelimit.Key(operation, contentID, clientIP), limit, window)
	if err != nil {
		// Abuse deterrence only; a limiter outage must not take shares down.
		s.log().WithError(err).WithField("operation", operation).Warn("rate limiter unavailable")
		return nil
	}
	if !decision.Allowed {
		s.metrics.RateLimited(operation)
		s.log().WithFields(logrus.Fields{
			"operation":  operation,
			"content_id": contentID,
			"client_ip":  clientIP,
		}).Info("share request rate limited")
		return rateLimitedError(decision.RetryAfterSeconds)
	}
	return nil
}

// resolveShare loads content a visitor may see. Unknown content, a disabled
// share and a wrong token are indistinguishable.
func (s *Service) resolveShare(ctx context.Context, contentID string, access ShareAccess) (store.Content, error) {
	content, err := s.store.GetContent(ctx, contentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return store.Content{}, shareNotFound()
		}
		return store.Content{}, err
	}
	if !content.Share.Enabled || !auth.TokensEqual(content.Share.Token, strings.TrimSpace(access.Token)) {
		return store.Content{}, shareNotFound()
	}
	if content.Share.PasswordHash != "" {
		if access.Password == "" || bcrypt.CompareHashAndPassword([]byte(content.Share.PasswordHash), []byte(access.Password)) != nil {
			return store.Content{}, domainError(http.StatusUnauthorized, "SHARE_PASSWORD_REQUIRED", "A valid share password is required", nil)
		}
	}
	return content, nil
}

func (s *Service) GetSharedContent(ctx context.Context, contentID string, access ShareAccess) (map[string]any, error) {
	if err := s.checkShareLimit(ctx, shareOpRead, contentID, access.ClientIP); err != nil {
		return nil, err
	}
	content, err := s.resolveShare(ctx, contentID, access)
	if err != nil {
		return nil, err
	}
	annotations, err := s.store.ListShareAnnotations(ctx, content.ID)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(annotations))
	for _, annotation := range annotations {
		items = append(items, annotationJSON(annotation))
	}

	payload := contentJSON(content)
	delete(payload, "createdBy")
	delete(payload, "assignedTo")
	return map[string]any{
		"content":       payload,
		"allowComments": content.Share.AllowComments,
		"annotations":   items,
	}, nil
}

func (s *Service) AddShareAnnotation(ctx context.Context, contentID string, access ShareAccess, input ShareAnnotationInput) (map[string]any, error) {
	if err := s.checkShareLimit(ctx, shareOpAnnotation, contentID, access.ClientIP); err != nil {
		return nil, err
	}
	content, err := s.resolveShare(ctx, contentID, access)
	if err != nil {
		return nil, err
	}
	if !content.Share.AllowComments {
		return nil, domainError(http.StatusForbidden, "COMMENTS_DISABLED", "Comments are disabled for this share link", nil)
	}

	author, body, err := validateShareText(input.AuthorName, input.Body)
	if err != nil {
		return nil, err
	}
	quote := strings.TrimSpace(input.Quote)
	if len([]rune(quote)) > maxShareQuoteLength {
		return nil, validationError("quote is too long")
	}
	blockID := strings.TrimSpace(input.BlockID)
	if blockID != "" && !hasBlock(content.Blocks, blockID) {
		return nil, validationError("blockId does not belong to this content")
	}

	annotation, err := s.store.InsertShareAnnotation(ctx, store.ShareAnnotation{
		ID:         util.NewID("ann"),
		ContentID:  content.ID,
		BlockID:    blockID,
		Quote:      quote,
		Body:       body,
		AuthorName: author,
	})
	if err != nil {
		return nil, err
	}
	return map[string]any{"annotation": annotationJSON(annotation)}, nil
}

func (s *Service) AddShareAnnotationComment(ctx context.Context, annotationID string, access ShareAccess, input ShareCommentInput) (map[string]any, error) {
	annotation, err := s.store.GetShareAnnotation(ctx, annotationID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, shareNotFound()
		}
		return nil, err
	}
	if err := s.checkShareLimit(ctx, shareOpComment, annotation.ContentID, access.ClientIP); err != nil {
		return nil, err
	}
	content, err := s.resolveShare(ctx, annotation.ContentID, access)
	if err != nil {
		return nil, err
	}
	if !content.Share.AllowComments {
		return nil, domainError(http.StatusForbidden, "COMMENTS_DISABLED", "Comments are disabled for this share link", nil)
	}

	author, body, err := validateShareText(input.AuthorName, input.Body)
	if err != nil {
		return nil, err
	}
	comment, err := s.store.InsertShareAnnotationComment(ctx, store.ShareAnnotationComment{
		ID:           util.NewID("cmt"),
		AnnotationID: annotation.ID,
		Body:         body,
		AuthorName:   author,
	})
	if err != nil {
		return nil, err
	}
	return map[string]any{"comment": commentJSON(comment)}, nil
}

func validateShareText(authorName, body string) (string, string, error) {
	author := strings.TrimSpace(authorName)
	if author == "" {
		author = "Guest"
	}
	if len([]rune(author)) > maxShareAuthorLength {
		return "", "", validationError(fmt.Sprintf("authorName must be at most %d characters", maxShareAuthorLength))
	}
	body = strings.TrimSpace(body)
	if body == "" {
		return "", "", validationError("body is required")
	}
	if len([]rune(body)) > maxShareBodyLength {
		return "", "", validationError(fmt.Sprintf("body must be at most %d characters", maxShareBodyLength))
	}
	return author, body, nil
}

func hasBlock(blocks []store.ContentBlock, id string) bool {
	for _, block := range blocks {
		if block.ID == id {
			return true
		}
	}
	return false
}

func annotationJSON(annotation store.ShareAnnotation) map[string]any {
	comments := make([]map[string]any, 0, len(annotation.Comments))
	for _, comment := range annotation.Comments {
		comments = append(comments, commentJSON(comment))
	}
	return map[string]any{
		"id":         annotation.ID,
		"blockId":    nullable(annotation.BlockID),
		"quote":      annotation.Quote,
		"body":       annotation.Body,
		"authorName": annotation.AuthorName,
		"createdAt":  annotation.CreatedAt.UTC().Format(time.RFC3339),
		"comments":   comments,
	}
}

func commentJSON(comment store.ShareAnnotationComment) map[string]any {
	return map[string]any{
		"id":         comment.ID,
		"body":       comment.Body,
		"authorName": comment.AuthorName,
		"createdAt":  comment.CreatedAt.UTC().Format(time.RFC3339),
	}
}
