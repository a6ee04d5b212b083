package audit

import (
	"context"

	"go-erp/internal/events"
	"go-erp/internal/features/user"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

const systemActor = "system"

type UserFinder interface {
	FindByIDs(ctx context.Context, ids []string) ([]user.User, error)
}

type AuditService interface {
	// Record appends ev to the activity log. Redelivered events are ignored.
	Record(ctx context.Context, ev events.Event) error
	ListLogs(ctx context.Context, filter Filter, page, limit int64) ([]AuditLog, int64, error)
}

type AuditServiceImpl struct {
	Repo     AuditRepository
	UserRepo UserFinder
	Logger   *zap.Logger
}

func NewAuditService(repo AuditRepository, userRepo UserFinder, logger *zap.Logger) AuditService {
	return &AuditServiceImpl{
		Repo:     repo,
		UserRepo: userRepo,
		Logger:   logger.Named("audit"),
	}
}

// Subscribe feeds every approval event on bus into the activity log.
func Subscribe(bus *events.Bus, svc AuditService) {
	bus.HandleAll(svc.Record)
}

func (s *AuditServiceImpl) Record(ctx context.Context, ev events.Event) error {
	id := ev.ID
	if id == "" {
		id = primitive.NewObjectID().Hex()
	}
	actorID := ev.Actor
	if actorID == "" {
		actorID = systemActor
	}

	return s.Repo.Create(ctx, AuditLog{
		ID:           id,
		Event:        ev.Kind,
		RequestID:    ev.RequestID,
		ActorID:      actorID,
		Step:         ev.Step,
		Role:         ev.Role,
		Outcome:      ev.Outcome,
		Comment:      ev.Comment,
		Module:       ev.Module,
		DocumentType: ev.DocumentType,
		DocumentID:   ev.DocumentID,
		FlowName:     ev.FlowName,
		Timestamp:    ev.Timestamp,
	})
}

func (s *AuditServiceImpl) ListLogs(ctx context.Context, filter Filter, page, limit int64) ([]AuditLog, int64, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 10
	}
	offset := (page - 1) * limit
	logs, total, err := s.Repo.List(ctx, filter, limit, offset)
	if err != nil {
		return nil, 0, err
	}

	// Collect Actor IDs
	actorIDs := make([]string, 0)
	uniqueIDs := make(map[string]bool)
	for _, log := range logs {
		if log.ActorID != systemActor && !uniqueIDs[log.ActorID] {
			uniqueIDs[log.ActorID] = true
			actorIDs = append(actorIDs, log.ActorID)
		}
	}

	userMap := make(map[string]string)
	if len(actorIDs) > 0 {
		users, err := s.UserRepo.FindByIDs(ctx, actorIDs)
		if err != nil {
			s.Logger.Warn("resolve actor names", zap.Error(err))
		}
		for _, u := range users {
			userMap[u.ID] = u.Username
		}
	}

	for i, log := range logs {
		switch name, ok := userMap[log.ActorID]; {
		case log.ActorID == systemActor:
			logs[i].ActorName = "System"
		case ok:
			logs[i].ActorName = name
		default:
			logs[i].ActorName = "Unknown User"
		}
	}

	return logs, total, nil
}
