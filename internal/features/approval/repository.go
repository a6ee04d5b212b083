package approval

import (
	"context"
	"errors"
	"slices"
	"sort"
	"sync"
	"time"

	"go-erp/internal/database"
	"go-erp/internal/features/flow"
	"go-erp/internal/features/role"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/fx"
)

// ListFilter narrows a request listing. Zero fields match everything.
type ListFilter struct {
	Status       Status
	Module       role.Module
	DocumentType string
	SubmittedBy  string
	Limit        int64
	Offset       int64
}

type RequestRepository interface {
	Insert(ctx context.Context, req *ApprovalRequest) error
	FindByID(ctx context.Context, id string) (*ApprovalRequest, error)

	// FindPending returns the pending request for a document and trigger, or nil.
	FindPending(ctx context.Context, documentType, documentID string, trigger flow.Trigger) (*ApprovalRequest, error)

	// Replace writes req only if the stored version is still expectedVersion.
	Replace(ctx context.Context, req *ApprovalRequest, expectedVersion int64) error

	List(ctx context.Context, filter ListFilter) ([]ApprovalRequest, int64, error)
	ListPendingForRoles(ctx context.Context, roles []role.RoleID) ([]ApprovalRequest, error)
	ListPendingBefore(ctx context.Context, before time.Time) ([]ApprovalRequest, error)
}

type RequestRepositoryImpl struct {
	Collection *mongo.Collection
}

func NewRequestRepository(lc fx.Lifecycle, mongodb *database.MongodbDB) RequestRepository {
	if mongodb == nil {
		return NewMemoryRequestRepository()
	}
	repo := &RequestRepositoryImpl{
		Collection: mongodb.DB.Collection("approval_requests"),
	}
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return repo.EnsureIndexes(ctx)
		},
	})
	return repo
}

// EnsureIndexes creates the pending-uniqueness and lookup indexes.
func (r *RequestRepositoryImpl) EnsureIndexes(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	_, err := r.Collection.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys: bson.D{
				{Key: "document_type", Value: 1},
				{Key: "document_id", Value: 1},
				{Key: "trigger", Value: 1},
			},
			Options: options.Index().
				SetName("uniq_pending_document").
				SetUnique(true).
				SetPartialFilterExpression(bson.M{"status": StatusPending}),
		},
		{
			Keys: bson.D{{Key: "status", Value: 1}, {Key: "current_role", Value: 1}},
		},
		{
			Keys: bson.D{{Key: "status", Value: 1}, {Key: "submitted_at", Value: 1}},
		},
	})
	return err
}

func (r *RequestRepositoryImpl) Insert(ctx context.Context, req *ApprovalRequest) error {
	_, err := r.Collection.InsertOne(ctx, req)
	if mongo.IsDuplicateKeyError(err) {
		return ErrDuplicatePending
	}
	return err
}

func (r *RequestRepositoryImpl) FindByID(ctx context.Context, id string) (*ApprovalRequest, error) {
	var req ApprovalRequest
	err := r.Collection.FindOne(ctx, bson.M{"_id": id}).Decode(&req)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrRequestNotFound
		}
		return nil, err
	}
	return &req, nil
}

func (r *RequestRepositoryImpl) FindPending(ctx context.Context, documentType, documentID string, trigger flow.Trigger) (*ApprovalRequest, error) {
	var req ApprovalRequest
	err := r.Collection.FindOne(ctx, bson.M{
		"document_type": documentType,
		"document_id":   documentID,
		"trigger":       trigger,
		"status":        StatusPending,
	}).Decode(&req)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, err
	}
	return &req, nil
}

func (r *RequestRepositoryImpl) Replace(ctx context.Context, req *ApprovalRequest, expectedVersion int64) error {
	res, err := r.Collection.ReplaceOne(ctx, bson.M{"_id": req.ID, "version": expectedVersion}, req)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrVersionConflict
	}
	return nil
}

func (r *RequestRepositoryImpl) List(ctx context.Context, filter ListFilter) ([]ApprovalRequest, int64, error) {
	query := bson.M{}
	if filter.Status != "" {
		query["status"] = filter.Status
	}
	if filter.Module != "" {
		query["module"] = filter.Module
	}
	if filter.DocumentType != "" {
		query["document_type"] = filter.DocumentType
	}
	if filter.SubmittedBy != "" {
		query["submitted_by"] = filter.SubmittedBy
	}

	total, err := r.Collection.CountDocuments(ctx, query)
	if err != nil {
		return nil, 0, err
	}

	opts := options.Find().SetSort(bson.D{{Key: "submitted_at", Value: -1}, {Key: "_id", Value: -1}})
	if filter.Limit > 0 {
		opts.SetLimit(filter.Limit)
	}
	if filter.Offset > 0 {
		opts.SetSkip(filter.Offset)
	}
	return r.find(ctx, query, opts, total)
}

func (r *RequestRepositoryImpl) ListPendingForRoles(ctx context.Context, roles []role.RoleID) ([]ApprovalRequest, error) {
	if len(roles) == 0 {
		return nil, nil
	}
	opts := options.Find().SetSort(bson.D{{Key: "submitted_at", Value: 1}})
	reqs, _, err := r.find(ctx, bson.M{
		"status":       StatusPending,
		"current_role": bson.M{"$in": roles},
	}, opts, 0)
	return reqs, err
}

func (r *RequestRepositoryImpl) ListPendingBefore(ctx context.Context, before time.Time) ([]ApprovalRequest, error) {
	reqs, _, err := r.find(ctx, bson.M{
		"status":       StatusPending,
		"submitted_at": bson.M{"$lt": before},
	}, options.Find(), 0)
	return reqs, err
}

func (r *RequestRepositoryImpl) find(ctx context.Context, query bson.M, opts *options.FindOptions, total int64) ([]ApprovalRequest, int64, error) {
	cursor, err := r.Collection.Find(ctx, query, opts)
	if err != nil {
		return nil, 0, err
	}
	defer cursor.Close(ctx)

	var reqs []ApprovalRequest
	if err = cursor.All(ctx, &reqs); err != nil {
		return nil, 0, err
	}
	return reqs, total, nil
}

// MemoryRequestRepository keeps requests in process memory with the same
// version and pending-uniqueness rules as the Mongo store.
type MemoryRequestRepository struct {
	mu   sync.RWMutex
	reqs map[string]*ApprovalRequest
}

func NewMemoryRequestRepository() *MemoryRequestRepository {
	return &MemoryRequestRepository{reqs: make(map[string]*ApprovalRequest)}
}

func (r *MemoryRequestRepository) Insert(ctx context.Context, req *ApprovalRequest) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.reqs[req.ID]; ok {
		return ErrDuplicatePending
	}
	if req.Status == StatusPending && r.pendingLocked(req.DocumentType, req.DocumentID, req.Trigger) != nil {
		return ErrDuplicatePending
	}
	r.reqs[req.ID] = req.Clone()
	return nil
}

func (r *MemoryRequestRepository) FindByID(ctx context.Context, id string) (*ApprovalRequest, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	req, ok := r.reqs[id]
	if !ok {
		return nil, ErrRequestNotFound
	}
	return req.Clone(), nil
}

func (r *MemoryRequestRepository) FindPending(ctx context.Context, documentType, documentID string, trigger flow.Trigger) (*ApprovalRequest, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if req := r.pendingLocked(documentType, documentID, trigger); req != nil {
		return req.Clone(), nil
	}
	return nil, nil
}

func (r *MemoryRequestRepository) pendingLocked(documentType, documentID string, trigger flow.Trigger) *ApprovalRequest {
	for _, req := range r.reqs {
		if req.Status == StatusPending && req.DocumentType == documentType &&
			req.DocumentID == documentID && req.Trigger == trigger {
			return req
		}
	}
	return nil
}

func (r *MemoryRequestRepository) Replace(ctx context.Context, req *ApprovalRequest, expectedVersion int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.reqs[req.ID]
	if !ok || stored.Version != expectedVersion {
		return ErrVersionConflict
	}
	r.reqs[req.ID] = req.Clone()
	return nil
}

func (r *MemoryRequestRepository) List(ctx context.Context, filter ListFilter) ([]ApprovalRequest, int64, error) {
	all := r.collect(func(req *ApprovalRequest) bool {
		return (filter.Status == "" || req.Status == filter.Status) &&
			(filter.Module == "" || req.Module == filter.Module) &&
			(filter.DocumentType == "" || req.DocumentType == filter.DocumentType) &&
			(filter.SubmittedBy == "" || req.SubmittedBy == filter.SubmittedBy)
	})
	sort.SliceStable(all, func(i, j int) bool {
		if !all[i].SubmittedAt.Equal(all[j].SubmittedAt) {
			return all[i].SubmittedAt.After(all[j].SubmittedAt)
		}
		return all[i].ID > all[j].ID
	})

	total := int64(len(all))
	if filter.Offset >= total {
		return []ApprovalRequest{}, total, nil
	}
	end := total
	if filter.Limit > 0 && filter.Offset+filter.Limit < total {
		end = filter.Offset + filter.Limit
	}
	return all[filter.Offset:end], total, nil
}

func (r *MemoryRequestRepository) ListPendingForRoles(ctx context.Context, roles []role.RoleID) ([]ApprovalRequest, error) {
	out := r.collect(func(req *ApprovalRequest) bool {
		return req.Status == StatusPending && slices.Contains(roles, req.CurrentRole)
	})
	sort.SliceStable(out, func(i, j int) bool { return out[i].SubmittedAt.Before(out[j].SubmittedAt) })
	return out, nil
}

func (r *MemoryRequestRepository) ListPendingBefore(ctx context.Context, before time.Time) ([]ApprovalRequest, error) {
	return r.collect(func(req *ApprovalRequest) bool {
		return req.Status == StatusPending && req.SubmittedAt.Before(before)
	}), nil
}

func (r *MemoryRequestRepository) collect(keep func(*ApprovalRequest) bool) []ApprovalRequest {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []ApprovalRequest
	for _, req := range r.reqs {
		if keep(req) {
			out = append(out, *req.Clone())
		}
	}
	return out
}
