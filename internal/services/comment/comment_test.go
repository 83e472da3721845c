package comment

import (
	"context"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/clearledger/go-docvault/internal/models"
	"github.com/clearledger/go-docvault/internal/pkg/utils"
	"github.com/clearledger/go-docvault/internal/pkg/xerr"
	"github.com/clearledger/go-docvault/internal/repositories"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// fakeCommentRepo 内存评论仓库，ListByDocument 保持仓库的
// thread_level 优先排序，服务层组装线程依赖这个顺序
type fakeCommentRepo struct {
	mu       sync.Mutex
	comments []*models.DocumentComment
}

func (r *fakeCommentRepo) Create(comment *models.DocumentComment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if comment.ID == "" {
		comment.ID = uuid.NewString()
	}
	cp := *comment
	r.comments = append(r.comments, &cp)
	return nil
}

func (r *fakeCommentRepo) FindByID(id string) (*models.DocumentComment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.comments {
		if c.ID == id {
			cp := *c
			return &cp, nil
		}
	}
	return nil, xerr.ErrCommentNotFound
}

func (r *fakeCommentRepo) ListByDocument(documentID string) ([]models.DocumentComment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.DocumentComment
	for _, c := range r.comments {
		if c.DocumentID == documentID {
			out = append(out, *c)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].ThreadLevel < out[j].ThreadLevel
	})
	return out, nil
}

func (r *fakeCommentRepo) Update(comment *models.DocumentComment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, c := range r.comments {
		if c.ID == comment.ID {
			cp := *comment
			r.comments[i] = &cp
			return nil
		}
	}
	return xerr.ErrCommentNotFound
}

func (r *fakeCommentRepo) Delete(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, c := range r.comments {
		if c.ID == id {
			r.comments = append(r.comments[:i], r.comments[i+1:]...)
			return nil
		}
	}
	return xerr.ErrCommentNotFound
}

func (r *fakeCommentRepo) DeleteByDocument(tx *gorm.DB, documentID string) error { return nil }

func (r *fakeCommentRepo) CountReplies(parentCommentID string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, c := range r.comments {
		if c.ParentCommentID != nil && *c.ParentCommentID == parentCommentID {
			n++
		}
	}
	return n, nil
}

var _ repositories.CommentRepository = (*fakeCommentRepo)(nil)

// fakeDocumentRepo 只实现评论服务用到的 FindByID，其余返回零值
type fakeDocumentRepo struct {
	docs map[string]*models.DocumentFile
}

func newFakeDocumentRepo() *fakeDocumentRepo {
	return &fakeDocumentRepo{docs: make(map[string]*models.DocumentFile)}
}

func (r *fakeDocumentRepo) put(doc *models.DocumentFile) {
	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}
	r.docs[doc.ID] = doc
}

func (r *fakeDocumentRepo) Create(doc *models.DocumentFile) error { r.put(doc); return nil }

func (r *fakeDocumentRepo) CreateTx(tx *gorm.DB, doc *models.DocumentFile) error {
	return r.Create(doc)
}

func (r *fakeDocumentRepo) FindByID(id string) (*models.DocumentFile, error) {
	doc, ok := r.docs[id]
	if !ok {
		return nil, xerr.ErrDocumentNotFound
	}
	return doc, nil
}

func (r *fakeDocumentRepo) FindByStoragePath(path string) (*models.DocumentFile, error) {
	return nil, xerr.ErrDocumentNotFound
}

func (r *fakeDocumentRepo) ListByFolder(clientID string, folderID *string, page, pageSize int) ([]models.DocumentFile, int64, error) {
	return nil, 0, nil
}

func (r *fakeDocumentRepo) ListVersions(rootID string) ([]models.DocumentFile, error) {
	return nil, nil
}

func (r *fakeDocumentRepo) Search(params repositories.DocumentSearchParams) ([]models.DocumentFile, int64, error) {
	return nil, 0, nil
}

func (r *fakeDocumentRepo) Update(doc *models.DocumentFile) error { return nil }

func (r *fakeDocumentRepo) ClearCurrentFlag(tx *gorm.DB, rootID string) (int64, error) {
	return 0, nil
}

func (r *fakeDocumentRepo) TouchAccess(id string) error { return nil }

func (r *fakeDocumentRepo) UpdateScanStatus(id, from, to string, result *string) (bool, error) {
	return false, nil
}

func (r *fakeDocumentRepo) UpdateProcessingStatus(id, from, to string) (bool, error) {
	return false, nil
}

func (r *fakeDocumentRepo) CountByFolder(folderID string) (int64, error) { return 0, nil }

func (r *fakeDocumentRepo) DeleteVersions(tx *gorm.DB, rootID string) error { return nil }

func (r *fakeDocumentRepo) StatsByClient(clientID string) (*repositories.DocumentStats, error) {
	return &repositories.DocumentStats{}, nil
}

var _ repositories.DocumentRepository = (*fakeDocumentRepo)(nil)

type commentFixture struct {
	service CommentService
	repo    *fakeCommentRepo
	doc     *models.DocumentFile
	staff   utils.ActorContext
	client  utils.ActorContext
}

func newCommentFixture(t *testing.T) *commentFixture {
	t.Helper()
	docRepo := newFakeDocumentRepo()
	doc := &models.DocumentFile{
		ClientID:         "client-1",
		OriginalName:     "engagement-letter.pdf",
		IsCurrentVersion: true,
	}
	docRepo.put(doc)

	repo := &fakeCommentRepo{}
	return &commentFixture{
		service: NewCommentService(repo, docRepo),
		repo:    repo,
		doc:     doc,
		staff:   utils.ActorContext{ActorID: "staff-1", ActorType: utils.ActorTypeStaff},
		client:  utils.ActorContext{ActorID: "user-5", ActorType: utils.ActorTypeClient, ClientID: "client-1"},
	}
}

func (f *commentFixture) mustComment(t *testing.T, actor utils.ActorContext, text string, parentID *string) *models.DocumentComment {
	t.Helper()
	c, err := f.service.CreateComment(context.Background(), actor, CreateCommentInput{
		DocumentID:      f.doc.ID,
		Comment:         text,
		ParentCommentID: parentID,
	})
	require.NoError(t, err)
	return c
}

func TestCreateCommentDefaults(t *testing.T) {
	f := newCommentFixture(t)

	c := f.mustComment(t, f.staff, "  请确认第3页的数字  ", nil)
	assert.Equal(t, "请确认第3页的数字", c.Comment)
	assert.Equal(t, models.CommentTypeGeneral, c.CommentType)
	assert.Equal(t, 0, c.ThreadLevel)
	assert.Equal(t, "client-1", c.ClientID)
}

func TestCreateCommentValidation(t *testing.T) {
	f := newCommentFixture(t)

	tests := []struct {
		name  string
		input CreateCommentInput
	}{
		{
			name:  "empty text",
			input: CreateCommentInput{DocumentID: f.doc.ID, Comment: "   "},
		},
		{
			name:  "over length limit",
			input: CreateCommentInput{DocumentID: f.doc.ID, Comment: strings.Repeat("x", 4001)},
		},
		{
			name:  "unknown type",
			input: CreateCommentInput{DocumentID: f.doc.ID, Comment: "ok", CommentType: "rant"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.service.CreateComment(context.Background(), f.staff, tt.input)
			assert.ErrorIs(t, err, xerr.ErrValidation)
		})
	}
}

func TestCreateCommentSingleLevelOnly(t *testing.T) {
	f := newCommentFixture(t)

	top := f.mustComment(t, f.staff, "请上传W-2", nil)
	reply := f.mustComment(t, f.client, "已上传，请查收", &top.ID)
	assert.Equal(t, 1, reply.ThreadLevel)

	// 不允许回复别人的回复
	_, err := f.service.CreateComment(context.Background(), f.staff, CreateCommentInput{
		DocumentID:      f.doc.ID,
		Comment:         "收到",
		ParentCommentID: &reply.ID,
	})
	assert.ErrorIs(t, err, xerr.ErrCommentTooDeep)
}

func TestCreateCommentParentOnOtherDocument(t *testing.T) {
	f := newCommentFixture(t)
	top := f.mustComment(t, f.staff, "第一份文档的评论", nil)

	_, err := f.service.CreateComment(context.Background(), f.staff, CreateCommentInput{
		DocumentID:      "other-doc",
		Comment:         "错挂的回复",
		ParentCommentID: &top.ID,
	})
	assert.ErrorIs(t, err, xerr.ErrDocumentNotFound)
}

func TestListThreadsGroupsReplies(t *testing.T) {
	f := newCommentFixture(t)

	first := f.mustComment(t, f.staff, "第一个问题", nil)
	second := f.mustComment(t, f.staff, "第二个问题", nil)
	f.mustComment(t, f.client, "第一个问题的回复", &first.ID)
	f.mustComment(t, f.staff, "第一个问题的追问", &first.ID)

	threads, err := f.service.ListThreads(context.Background(), f.staff, f.doc.ID)
	require.NoError(t, err)
	require.Len(t, threads, 2)

	byID := make(map[string]Thread)
	for _, th := range threads {
		byID[th.Comment.ID] = th
	}
	assert.Len(t, byID[first.ID].Replies, 2)
	assert.Empty(t, byID[second.ID].Replies)
}

func TestUpdateCommentAuthorOnly(t *testing.T) {
	f := newCommentFixture(t)
	c := f.mustComment(t, f.client, "初稿", nil)

	// 哪怕是员工也不能替别人改评论内容
	_, err := f.service.UpdateComment(context.Background(), f.staff, c.ID, "改过的")
	assert.ErrorIs(t, err, xerr.ErrPermissionDenied)

	updated, err := f.service.UpdateComment(context.Background(), f.client, c.ID, "终稿")
	require.NoError(t, err)
	assert.Equal(t, "终稿", updated.Comment)
}

func TestResolveCommentIdempotent(t *testing.T) {
	f := newCommentFixture(t)
	c := f.mustComment(t, f.client, "缺第4页", nil)

	resolved, err := f.service.ResolveComment(context.Background(), f.staff, c.ID)
	require.NoError(t, err)
	require.True(t, resolved.IsResolved)
	require.NotNil(t, resolved.ResolvedAt)
	firstStamp := resolved.ResolvedAt.UnixNano()

	again, err := f.service.ResolveComment(context.Background(), f.staff, c.ID)
	require.NoError(t, err)
	assert.Equal(t, firstStamp, again.ResolvedAt.UnixNano())
	require.NotNil(t, again.ResolvedBy)
	assert.Equal(t, "staff-1", *again.ResolvedBy)
}

func TestDeleteCommentAuthorOrStaff(t *testing.T) {
	f := newCommentFixture(t)

	c := f.mustComment(t, f.client, "可以删这条", nil)
	other := utils.ActorContext{ActorID: "user-6", ActorType: utils.ActorTypeClient, ClientID: "client-1"}
	assert.ErrorIs(t, f.service.DeleteComment(context.Background(), other, c.ID), xerr.ErrPermissionDenied)

	require.NoError(t, f.service.DeleteComment(context.Background(), f.client, c.ID))

	staffDeletable := f.mustComment(t, f.client, "员工也能删", nil)
	require.NoError(t, f.service.DeleteComment(context.Background(), f.staff, staffDeletable.ID))

	threads, err := f.service.ListThreads(context.Background(), f.staff, f.doc.ID)
	require.NoError(t, err)
	assert.Empty(t, threads)
}
