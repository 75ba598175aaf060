package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-originality-api/internal/models"
)

// ContentResolver fetches a submission's body and naming metadata from the
// host content mirror. One variant exists per doc type, selected through
// ResolverRegistry, which keeps the doctype dispatch out of the drivers.
type ContentResolver interface {
	ResolveContent(ctx context.Context, ref models.ContentRef) (*models.ResolvedContent, error)
	ResolveNaming(ctx context.Context, ref models.ContentRef) (*models.Naming, error)
}

// ResolverRegistry selects a resolver by doc type.
type ResolverRegistry struct {
	resolvers map[models.DocType]ContentResolver
}

// NewResolverRegistry wires one resolver per supported doc type.
func NewResolverRegistry(db *sqlx.DB) *ResolverRegistry {
	naming := &namingResolver{db: db}
	return &ResolverRegistry{resolvers: map[models.DocType]ContentResolver{
		models.DocTypeAssign:   &assignResolver{db: db, naming: naming},
		models.DocTypeFile:     &fileResolver{db: db, naming: naming},
		models.DocTypeForum:    &forumResolver{db: db, naming: naming},
		models.DocTypeWorkshop: &workshopResolver{db: db, naming: naming},
		models.DocTypeQuiz:     &quizResolver{db: db, naming: naming},
	}}
}

// For returns the resolver for a doc type.
func (r *ResolverRegistry) For(doctype models.DocType) (ContentResolver, error) {
	resolver, ok := r.resolvers[doctype]
	if !ok {
		return nil, fmt.Errorf("no content resolver for doctype %q", doctype)
	}
	return resolver, nil
}

// namingResolver loads the course/module labels shared by every doc type.
type namingResolver struct {
	db *sqlx.DB
}

func (r *namingResolver) moduleNaming(ctx context.Context, ref models.ContentRef) (*models.Naming, error) {
	const query = `SELECT course_name, module_name FROM course_modules WHERE cmid = $1 AND courseid = $2`
	var row struct {
		CourseName string `db:"course_name"`
		ModuleName string `db:"module_name"`
	}
	if err := r.db.GetContext(ctx, &row, query, ref.CmID, ref.CourseID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return &models.Naming{}, nil
		}
		return nil, fmt.Errorf("resolve module naming: %w", err)
	}
	return &models.Naming{CourseName: row.CourseName, ModuleName: row.ModuleName}, nil
}

type assignResolver struct {
	db     *sqlx.DB
	naming *namingResolver
}

func (r *assignResolver) ResolveContent(ctx context.Context, ref models.ContentRef) (*models.ResolvedContent, error) {
	const query = `SELECT content FROM assignment_texts WHERE answer_id = $1 AND user_id = $2`
	var content string
	if err := r.db.GetContext(ctx, &content, query, ref.AnswerID, ref.UserID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return &models.ResolvedContent{}, nil
		}
		return nil, fmt.Errorf("resolve assignment text: %w", err)
	}
	return &models.ResolvedContent{Text: content}, nil
}

func (r *assignResolver) ResolveNaming(ctx context.Context, ref models.ContentRef) (*models.Naming, error) {
	return r.naming.moduleNaming(ctx, ref)
}

type fileResolver struct {
	db     *sqlx.DB
	naming *namingResolver
}

func (r *fileResolver) ResolveContent(ctx context.Context, ref models.ContentRef) (*models.ResolvedContent, error) {
	const query = `SELECT filename, content FROM stored_files WHERE file_id = $1`
	var row struct {
		Filename string `db:"filename"`
		Content  []byte `db:"content"`
	}
	if err := r.db.GetContext(ctx, &row, query, ref.TypeID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return &models.ResolvedContent{IsFile: true}, nil
		}
		return nil, fmt.Errorf("resolve stored file: %w", err)
	}
	return &models.ResolvedContent{IsFile: true, Filename: row.Filename, Data: row.Content}, nil
}

func (r *fileResolver) ResolveNaming(ctx context.Context, ref models.ContentRef) (*models.Naming, error) {
	return r.naming.moduleNaming(ctx, ref)
}

type forumResolver struct {
	db     *sqlx.DB
	naming *namingResolver
}

func (r *forumResolver) ResolveContent(ctx context.Context, ref models.ContentRef) (*models.ResolvedContent, error) {
	const query = `SELECT message FROM forum_posts WHERE post_id = $1 AND user_id = $2`
	var message string
	if err := r.db.GetContext(ctx, &message, query, ref.AnswerID, ref.UserID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return &models.ResolvedContent{}, nil
		}
		return nil, fmt.Errorf("resolve forum post: %w", err)
	}
	return &models.ResolvedContent{Text: message}, nil
}

func (r *forumResolver) ResolveNaming(ctx context.Context, ref models.ContentRef) (*models.Naming, error) {
	naming, err := r.naming.moduleNaming(ctx, ref)
	if err != nil {
		return nil, err
	}
	if ref.Discussion == nil {
		return naming, nil
	}
	const query = `SELECT name FROM forum_discussions WHERE discussion_id = $1`
	var topic string
	if err := r.db.GetContext(ctx, &topic, query, *ref.Discussion); err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("resolve discussion name: %w", err)
		}
	}
	naming.TopicName = topic
	return naming, nil
}

type workshopResolver struct {
	db     *sqlx.DB
	naming *namingResolver
}

func (r *workshopResolver) ResolveContent(ctx context.Context, ref models.ContentRef) (*models.ResolvedContent, error) {
	const query = `SELECT content FROM workshop_submissions WHERE submission_id = $1 AND user_id = $2`
	var content string
	if err := r.db.GetContext(ctx, &content, query, ref.AnswerID, ref.UserID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return &models.ResolvedContent{}, nil
		}
		return nil, fmt.Errorf("resolve workshop submission: %w", err)
	}
	return &models.ResolvedContent{Text: content}, nil
}

func (r *workshopResolver) ResolveNaming(ctx context.Context, ref models.ContentRef) (*models.Naming, error) {
	return r.naming.moduleNaming(ctx, ref)
}

type quizResolver struct {
	db     *sqlx.DB
	naming *namingResolver
}

func (r *quizResolver) ResolveContent(ctx context.Context, ref models.ContentRef) (*models.ResolvedContent, error) {
	const query = `SELECT response FROM quiz_essay_answers WHERE answer_id = $1 AND user_id = $2`
	var response string
	if err := r.db.GetContext(ctx, &response, query, ref.AnswerID, ref.UserID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return &models.ResolvedContent{}, nil
		}
		return nil, fmt.Errorf("resolve quiz essay answer: %w", err)
	}
	return &models.ResolvedContent{Text: response}, nil
}

func (r *quizResolver) ResolveNaming(ctx context.Context, ref models.ContentRef) (*models.Naming, error) {
	return r.naming.moduleNaming(ctx, ref)
}
