package audit

import (
	"context"
	"sort"
	"sync"

	"go-erp/internal/database"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type AuditRepository interface {
	Create(ctx context.Context, log AuditLog) error
	List(ctx context.Context, filter Filter, limit, offset int64) ([]AuditLog, int64, error)
}

type AuditRepositoryImpl struct {
	Collection *mongo.Collection
}

func NewAuditRepository(mongodb *database.MongodbDB) AuditRepository {
	if mongodb == nil {
		return NewMemoryAuditRepository()
	}
	return &AuditRepositoryImpl{
		Collection: mongodb.DB.Collection("audit_logs"),
	}
}

func (r *AuditRepositoryImpl) Create(ctx context.Context, log AuditLog) error {
	_, err := r.Collection.InsertOne(ctx, log)
	if mongo.IsDuplicateKeyError(err) {
		// redelivered event
		return nil
	}
	return err
}

func (r *AuditRepositoryImpl) List(ctx context.Context, filter Filter, limit, offset int64) ([]AuditLog, int64, error) {
	query := bson.M{}
	for k, v := range map[string]string{
		"request_id":  filter.RequestID,
		"document_id": filter.DocumentID,
		"actor_id":    filter.ActorID,
		"event":       string(filter.Event),
		"module":      filter.Module,
	} {
		if v != "" {
			query[k] = v
		}
	}

	total, err := r.Collection.CountDocuments(ctx, query)
	if err != nil {
		return nil, 0, err
	}

	opts := options.Find().SetLimit(limit).SetSkip(offset).SetSort(bson.D{{Key: "timestamp", Value: -1}, {Key: "_id", Value: -1}})
	cursor, err := r.Collection.Find(ctx, query, opts)
	if err != nil {
		return nil, 0, err
	}
	defer cursor.Close(ctx)

	var logs []AuditLog
	if err = cursor.All(ctx, &logs); err != nil {
		return nil, 0, err
	}
	return logs, total, nil
}

// MemoryAuditRepository keeps the activity log in process memory.
type MemoryAuditRepository struct {
	mu   sync.RWMutex
	logs []AuditLog
	ids  map[string]struct{}
}

func NewMemoryAuditRepository() *MemoryAuditRepository {
	return &MemoryAuditRepository{ids: make(map[string]struct{})}
}

func (r *MemoryAuditRepository) Create(ctx context.Context, log AuditLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.ids[log.ID]; dup {
		return nil
	}
	r.ids[log.ID] = struct{}{}
	r.logs = append(r.logs, log)
	return nil
}

func (r *MemoryAuditRepository) List(ctx context.Context, filter Filter, limit, offset int64) ([]AuditLog, int64, error) {
	r.mu.RLock()
	var out []AuditLog
	for _, l := range r.logs {
		if (filter.RequestID == "" || l.RequestID == filter.RequestID) &&
			(filter.DocumentID == "" || l.DocumentID == filter.DocumentID) &&
			(filter.ActorID == "" || l.ActorID == filter.ActorID) &&
			(filter.Event == "" || l.Event == filter.Event) &&
			(filter.Module == "" || l.Module == filter.Module) {
			out = append(out, l)
		}
	}
	r.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].Timestamp.After(out[j].Timestamp)
		}
		return out[i].ID > out[j].ID
	})

	total := int64(len(out))
	if offset >= total {
		return []AuditLog{}, total, nil
	}
	end := total
	if limit > 0 && offset+limit < total {
		end = offset + limit
	}
	return out[offset:end], total, nil
}
