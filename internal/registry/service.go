// ABOUTME: Agent registry service: lifecycle, manifest operations, and stats
// ABOUTME: Resolves agents by per-owner name and derives retrieval collection names

package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/2389/grimoire/internal/access"
	"github.com/2389/grimoire/internal/store"
)

// Store defines what the registry service needs from storage
type Store interface {
	CreateAgent(ctx context.Context, p access.Principal, agent *store.Agent) error
	GetAgentByID(ctx context.Context, p access.Principal, id string) (*store.Agent, error)
	GetAgentByName(ctx context.Context, p access.Principal, ownerID, name string) (*store.Agent, error)
	ListAgents(ctx context.Context, p access.Principal, ownerID string) ([]*store.Agent, error)
	IngestFile(ctx context.Context, p access.Principal, agentID string, file store.FileEntry) error
	RemoveFile(ctx context.Context, p access.Principal, agentID, fileName string) error
	DeleteAgent(ctx context.Context, p access.Principal, agentID string) error

	AppendAuditLog(ctx context.Context, entry *store.AuditEntry) error
}

// Service implements agent lifecycle operations for one principal at a time.
// Callers address agents by name; the service resolves names within the
// principal's own namespace.
type Service struct {
	store  Store
	logger *slog.Logger
}

// New creates a registry service.
func New(st Store, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:  st,
		logger: logger.With("component", "registry"),
	}
}

// Stats describes one agent's knowledge base. Totals always agree with the
// manifest; reads that find them divergent fail with store.ErrIntegrity
// before this struct is ever built.
type Stats struct {
	AgentName         string
	TotalFiles        int
	TotalChunks       int
	Files             []store.FileEntry
	Description       string
	ExtraInstructions string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Create registers a new agent under the principal's account. The retrieval
// collection name is derived here and never changes afterwards. A name the
// principal already uses returns store.ErrDuplicateName.
func (s *Service) Create(ctx context.Context, p access.Principal, name, description, extraInstructions string) (*store.Agent, error) {
	if p.UserID == "" {
		return nil, errors.New("principal has no user")
	}
	if name == "" {
		return nil, errors.New("agent name is required")
	}

	agent := &store.Agent{
		UserID:            p.UserID,
		Name:              name,
		Description:       description,
		ExtraInstructions: extraInstructions,
		CollectionName:    collectionName(p.UserID, name),
	}
	if err := s.store.CreateAgent(ctx, p, agent); err != nil {
		return nil, err
	}

	s.audit(p.UserID, store.AuditAgentCreated, "agent", agent.ID, map[string]any{"name": name})
	s.logger.Info("created agent", "name", name, "id", agent.ID, "owner", p.UserID)
	return agent, nil
}

// Get returns the principal's agent with the given name.
func (s *Service) Get(ctx context.Context, p access.Principal, name string) (*store.Agent, error) {
	return s.store.GetAgentByName(ctx, p, p.UserID, name)
}

// GetByID returns an agent by its opaque ID, scoped to the principal.
func (s *Service) GetByID(ctx context.Context, p access.Principal, id string) (*store.Agent, error) {
	return s.store.GetAgentByID(ctx, p, id)
}

// List returns the principal's agents, newest first.
func (s *Service) List(ctx context.Context, p access.Principal) ([]*store.Agent, error) {
	return s.store.ListAgents(ctx, p, p.UserID)
}

// Stats reports the named agent's manifest and totals.
func (s *Service) Stats(ctx context.Context, p access.Principal, name string) (*Stats, error) {
	agent, err := s.store.GetAgentByName(ctx, p, p.UserID, name)
	if err != nil {
		return nil, err
	}
	if err := checkIntegrity(agent); err != nil {
		return nil, err
	}

	return &Stats{
		AgentName:         agent.Name,
		TotalFiles:        agent.TotalFiles,
		TotalChunks:       agent.TotalChunks,
		Files:             agent.Files,
		Description:       agent.Description,
		ExtraInstructions: agent.ExtraInstructions,
		CreatedAt:         agent.CreatedAt,
		UpdatedAt:         agent.UpdatedAt,
	}, nil
}

// IngestFile records a processed document against the named agent. A file
// name the agent already holds is superseded rather than duplicated.
func (s *Service) IngestFile(ctx context.Context, p access.Principal, name string, file store.FileEntry) error {
	if file.Name == "" {
		return errors.New("file name is required")
	}
	if file.ChunkCount < 0 {
		return fmt.Errorf("negative chunk count %d", file.ChunkCount)
	}

	agent, err := s.store.GetAgentByName(ctx, p, p.UserID, name)
	if err != nil {
		return err
	}

	if err := s.store.IngestFile(ctx, p, agent.ID, file); err != nil {
		return err
	}

	s.logger.Info("ingested file", "agent", name, "file", file.Name, "chunks", file.ChunkCount)
	return nil
}

// RemoveFile forgets a document the named agent ingested earlier.
// store.ErrNotFound if the manifest has no entry under that file name.
func (s *Service) RemoveFile(ctx context.Context, p access.Principal, name, fileName string) error {
	agent, err := s.store.GetAgentByName(ctx, p, p.UserID, name)
	if err != nil {
		return err
	}

	if err := s.store.RemoveFile(ctx, p, agent.ID, fileName); err != nil {
		return err
	}

	s.logger.Info("removed file", "agent", name, "file", fileName)
	return nil
}

// Delete removes the named agent. Conversations with it are left alone;
// callers that want them gone chain a conversation-store bulk delete.
func (s *Service) Delete(ctx context.Context, p access.Principal, name string) error {
	agent, err := s.store.GetAgentByName(ctx, p, p.UserID, name)
	if err != nil {
		return err
	}

	if err := s.store.DeleteAgent(ctx, p, agent.ID); err != nil {
		return err
	}

	s.audit(p.UserID, store.AuditAgentDeleted, "agent", agent.ID, map[string]any{"name": name})
	s.logger.Info("deleted agent", "name", name, "id", agent.ID, "owner", p.UserID)
	return nil
}

// collectionName derives the opaque handle the retrieval engine keys an
// agent's vectors under. The owner ID keeps same-named agents of different
// users apart.
func collectionName(ownerID, agentName string) string {
	return fmt.Sprintf("user_%s_agent_%s", ownerID, agentName)
}

// checkIntegrity verifies the cached totals against the manifest on a loaded
// agent. The store runs the same check before mutations; this covers plain
// reads that would otherwise serve a divergent cache.
func checkIntegrity(agent *store.Agent) error {
	chunks := 0
	for _, f := range agent.Files {
		chunks += f.ChunkCount
	}
	if agent.TotalFiles != len(agent.Files) || agent.TotalChunks != chunks {
		return fmt.Errorf("agent %s counters disagree with manifest: %w", agent.ID, store.ErrIntegrity)
	}
	return nil
}

// audit appends a best-effort audit entry after the primary write committed.
func (s *Service) audit(actorID string, action store.AuditAction, targetType, targetID string, detail map[string]any) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	entry := &store.AuditEntry{
		Action:     action,
		TargetType: targetType,
		TargetID:   targetID,
		Detail:     detail,
	}
	if actorID != "" {
		entry.ActorID = &actorID
	}
	if err := s.store.AppendAuditLog(ctx, entry); err != nil {
		s.logger.Error("failed to append audit entry", "action", string(action), "error", err)
	}
}
