package comment

import (
	"context"
	"strings"
	"time"

	"github.com/clearledger/go-docvault/internal/models"
	"github.com/clearledger/go-docvault/internal/pkg/utils"
	"github.com/clearledger/go-docvault/internal/pkg/xerr"
	"github.com/clearledger/go-docvault/internal/repositories"
)

const maxCommentLen = 4000

// CreateCommentInput 发表评论的输入，ParentCommentID 非空表示回复
type CreateCommentInput struct {
	DocumentID      string
	Comment         string
	CommentType     string
	ParentCommentID *string
}

// Thread 顶层评论及其全部直接回复
type Thread struct {
	Comment models.DocumentComment   `json:"comment"`
	Replies []models.DocumentComment `json:"replies"`
}

type CommentService interface {
	CreateComment(ctx context.Context, actor utils.ActorContext, input CreateCommentInput) (*models.DocumentComment, error)
	// ListThreads 按顶层评论分组返回，回复挂在所属线程下
	ListThreads(ctx context.Context, actor utils.ActorContext, documentID string) ([]Thread, error)
	UpdateComment(ctx context.Context, actor utils.ActorContext, commentID, text string) (*models.DocumentComment, error)
	// ResolveComment 把顶层评论标记为已处理
	ResolveComment(ctx context.Context, actor utils.ActorContext, commentID string) (*models.DocumentComment, error)
	DeleteComment(ctx context.Context, actor utils.ActorContext, commentID string) error
}

type commentService struct {
	commentRepo  repositories.CommentRepository
	documentRepo repositories.DocumentRepository
}

var _ CommentService = (*commentService)(nil)

// NewCommentService 创建一个新的评论服务实例
func NewCommentService(commentRepo repositories.CommentRepository, documentRepo repositories.DocumentRepository) CommentService {
	return &commentService{
		commentRepo:  commentRepo,
		documentRepo: documentRepo,
	}
}

func (s *commentService) requireDocument(documentID string, actor utils.ActorContext) (*models.DocumentFile, error) {
	doc, err := s.documentRepo.FindByID(documentID)
	if err != nil {
		return nil, err
	}
	if !actor.CanAccessClient(doc.ClientID) {
		return nil, xerr.ErrPermissionDenied
	}
	return doc, nil
}

func (s *commentService) CreateComment(ctx context.Context, actor utils.ActorContext, input CreateCommentInput) (*models.DocumentComment, error) {
	text := strings.TrimSpace(input.Comment)
	if text == "" || len(text) > maxCommentLen {
		return nil, xerr.ErrValidation
	}
	if input.CommentType == "" {
		input.CommentType = models.CommentTypeGeneral
	}
	if !models.IsValidCommentType(input.CommentType) {
		return nil, xerr.ErrValidation
	}

	doc, err := s.requireDocument(input.DocumentID, actor)
	if err != nil {
		return nil, err
	}

	threadLevel := 0
	if input.ParentCommentID != nil {
		parent, err := s.commentRepo.FindByID(*input.ParentCommentID)
		if err != nil {
			return nil, err
		}
		if parent.DocumentID != doc.ID {
			return nil, xerr.ErrValidation
		}
		// 只支持单层回复，不允许回复别人的回复
		if parent.ThreadLevel > 0 {
			return nil, xerr.ErrCommentTooDeep
		}
		threadLevel = 1
	}

	comment := &models.DocumentComment{
		DocumentID:      doc.ID,
		ClientID:        doc.ClientID,
		UserID:          actor.ActorID,
		Comment:         text,
		CommentType:     input.CommentType,
		ParentCommentID: input.ParentCommentID,
		ThreadLevel:     threadLevel,
	}
	if err := s.commentRepo.Create(comment); err != nil {
		return nil, err
	}
	return comment, nil
}

func (s *commentService) ListThreads(ctx context.Context, actor utils.ActorContext, documentID string) ([]Thread, error) {
	if _, err := s.requireDocument(documentID, actor); err != nil {
		return nil, err
	}

	comments, err := s.commentRepo.ListByDocument(documentID)
	if err != nil {
		return nil, err
	}

	// 仓库按 thread_level 排序，顶层评论先到，组装时直接按父ID归组
	threads := make([]Thread, 0)
	index := make(map[string]int)
	for _, c := range comments {
		if c.ThreadLevel == 0 {
			index[c.ID] = len(threads)
			threads = append(threads, Thread{Comment: c, Replies: []models.DocumentComment{}})
			continue
		}
		if c.ParentCommentID != nil {
			if i, ok := index[*c.ParentCommentID]; ok {
				threads[i].Replies = append(threads[i].Replies, c)
			}
		}
	}
	return threads, nil
}

func (s *commentService) UpdateComment(ctx context.Context, actor utils.ActorContext, commentID, text string) (*models.DocumentComment, error) {
	text = strings.TrimSpace(text)
	if text == "" || len(text) > maxCommentLen {
		return nil, xerr.ErrValidation
	}

	comment, err := s.commentRepo.FindByID(commentID)
	if err != nil {
		return nil, err
	}
	// 只有作者本人可以改内容
	if comment.UserID != actor.ActorID {
		return nil, xerr.ErrPermissionDenied
	}

	comment.Comment = text
	if err := s.commentRepo.Update(comment); err != nil {
		return nil, err
	}
	return comment, nil
}

func (s *commentService) ResolveComment(ctx context.Context, actor utils.ActorContext, commentID string) (*models.DocumentComment, error) {
	comment, err := s.commentRepo.FindByID(commentID)
	if err != nil {
		return nil, err
	}
	if !actor.CanAccessClient(comment.ClientID) {
		return nil, xerr.ErrPermissionDenied
	}
	if comment.IsResolved {
		return comment, nil
	}

	now := time.Now()
	comment.IsResolved = true
	comment.ResolvedBy = &actor.ActorID
	comment.ResolvedAt = &now
	if err := s.commentRepo.Update(comment); err != nil {
		return nil, err
	}
	return comment, nil
}

func (s *commentService) DeleteComment(ctx context.Context, actor utils.ActorContext, commentID string) error {
	comment, err := s.commentRepo.FindByID(commentID)
	if err != nil {
		return err
	}
	// 作者或内部员工可删
	if comment.UserID != actor.ActorID && !actor.IsStaff() {
		return xerr.ErrPermissionDenied
	}
	return s.commentRepo.Delete(commentID)
}
