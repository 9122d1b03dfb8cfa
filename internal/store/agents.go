// ABOUTME: Agent registry persistence: CRUD, manifest, and counter maintenance
// ABOUTME: The manifest is source of truth; total_files/total_chunks are caches kept in the same tx

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/2389/grimoire/internal/access"
)

// CreateAgent creates a new agent for agent.UserID. Names are unique per
// owner; a clash returns ErrDuplicateName. Totals are derived from the
// manifest so the two can never start out divergent.
func (s *SQLiteStore) CreateAgent(ctx context.Context, p access.Principal, agent *Agent) error {
	if !p.CanAccess(agent.UserID) {
		return ErrNotFound
	}

	if agent.ID == "" {
		agent.ID = uuid.New().String()
	}
	if agent.CreatedAt.IsZero() {
		agent.CreatedAt = time.Now().UTC()
	}
	if agent.UpdatedAt.IsZero() {
		agent.UpdatedAt = agent.CreatedAt
	}
	agent.TotalFiles = len(agent.Files)
	agent.TotalChunks = sumChunks(agent.Files)

	manifest, err := marshalManifest(agent.Files)
	if err != nil {
		return fmt.Errorf("marshaling manifest: %w", err)
	}

	query := `
		INSERT INTO agents (id, user_id, name, description, extra_instructions, collection_name,
			manifest_json, total_files, total_chunks, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = s.db.ExecContext(ctx, query,
		agent.ID,
		agent.UserID,
		agent.Name,
		agent.Description,
		agent.ExtraInstructions,
		agent.CollectionName,
		manifest,
		agent.TotalFiles,
		agent.TotalChunks,
		agent.CreatedAt.UTC().Format(time.RFC3339),
		agent.UpdatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateName
		}
		return fmt.Errorf("inserting agent: %w", err)
	}

	s.logger.Info("created agent", "id", agent.ID, "name", agent.Name, "user_id", agent.UserID)
	return nil
}

// GetAgentByID retrieves an agent by ID, scoped to the principal.
func (s *SQLiteStore) GetAgentByID(ctx context.Context, p access.Principal, id string) (*Agent, error) {
	owner := ownerParam(p)
	query := `
		SELECT id, user_id, name, description, extra_instructions, collection_name,
			manifest_json, total_files, total_chunks, created_at, updated_at
		FROM agents
		WHERE id = ? AND (? IS NULL OR user_id = ?)
	`

	agent, err := scanAgent(s.db.QueryRowContext(ctx, query, id, owner, owner))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying agent: %w", err)
	}

	return agent, nil
}

// GetAgentByName retrieves an agent by name within an owner's namespace.
// Foreign namespaces behave like empty ones: ErrNotFound either way.
func (s *SQLiteStore) GetAgentByName(ctx context.Context, p access.Principal, ownerID, name string) (*Agent, error) {
	if !p.CanAccess(ownerID) {
		return nil, ErrNotFound
	}

	query := `
		SELECT id, user_id, name, description, extra_instructions, collection_name,
			manifest_json, total_files, total_chunks, created_at, updated_at
		FROM agents
		WHERE user_id = ? AND name = ?
	`

	agent, err := scanAgent(s.db.QueryRowContext(ctx, query, ownerID, name))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying agent by name: %w", err)
	}

	return agent, nil
}

// ListAgents returns an owner's agents, newest first.
func (s *SQLiteStore) ListAgents(ctx context.Context, p access.Principal, ownerID string) ([]*Agent, error) {
	if !p.CanAccess(ownerID) {
		return nil, ErrNotFound
	}

	query := `
		SELECT id, user_id, name, description, extra_instructions, collection_name,
			manifest_json, total_files, total_chunks, created_at, updated_at
		FROM agents
		WHERE user_id = ?
		ORDER BY created_at DESC, name ASC
	`

	rows, err := s.db.QueryContext(ctx, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("querying agents: %w", err)
	}
	defer rows.Close()

	agents := []*Agent{}
	for rows.Next() {
		agent, err := scanAgent(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning agent: %w", err)
		}
		agents = append(agents, agent)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating agents: %w", err)
	}

	return agents, nil
}

// IngestFile records an ingested document: the manifest gains (or replaces)
// the entry and the totals move with it, in one transaction. Re-ingesting
// an existing name supersedes its previous entry; counters adjust by the
// delta.
func (s *SQLiteStore) IngestFile(ctx context.Context, p access.Principal, agentID string, file FileEntry) error {
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		files, err := s.agentManifestTx(ctx, tx, p, agentID)
		if err != nil {
			return err
		}

		replaced := false
		for i := range files {
			if files[i].Name == file.Name {
				files[i] = file
				replaced = true
				break
			}
		}
		if !replaced {
			files = append(files, file)
		}

		return s.writeManifestTx(ctx, tx, agentID, files)
	})
	if err != nil {
		return err
	}

	s.logger.Debug("ingested file", "agent_id", agentID, "file", file.Name, "chunks", file.ChunkCount)
	return nil
}

// RemoveFile deletes a manifest entry and decrements the totals by its
// recorded chunk count, in one transaction. ErrNotFound if the agent has no
// such file.
func (s *SQLiteStore) RemoveFile(ctx context.Context, p access.Principal, agentID, fileName string) error {
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		files, err := s.agentManifestTx(ctx, tx, p, agentID)
		if err != nil {
			return err
		}

		idx := -1
		for i := range files {
			if files[i].Name == fileName {
				idx = i
				break
			}
		}
		if idx == -1 {
			return ErrNotFound
		}
		files = append(files[:idx], files[idx+1:]...)

		return s.writeManifestTx(ctx, tx, agentID, files)
	})
	if err != nil {
		return err
	}

	s.logger.Debug("removed file", "agent_id", agentID, "file", fileName)
	return nil
}

// DeleteAgent removes an agent. Nothing cascades: conversations reference
// agents by name only and outlive them.
func (s *SQLiteStore) DeleteAgent(ctx context.Context, p access.Principal, agentID string) error {
	owner := ownerParam(p)
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM agents WHERE id = ? AND (? IS NULL OR user_id = ?)`,
		agentID, owner, owner,
	)
	if err != nil {
		return fmt.Errorf("deleting agent: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}

	s.logger.Info("deleted agent", "id", agentID)
	return nil
}

// agentManifestTx loads an agent's manifest inside a transaction, enforcing
// the owner guard and verifying the cached totals before any mutation
// builds on them.
func (s *SQLiteStore) agentManifestTx(ctx context.Context, tx *sql.Tx, p access.Principal, agentID string) ([]FileEntry, error) {
	owner := ownerParam(p)
	query := `
		SELECT manifest_json, total_files, total_chunks
		FROM agents
		WHERE id = ? AND (? IS NULL OR user_id = ?)
	`

	var manifest string
	var totalFiles, totalChunks int
	err := tx.QueryRowContext(ctx, query, agentID, owner, owner).Scan(&manifest, &totalFiles, &totalChunks)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying agent manifest: %w", err)
	}

	var files []FileEntry
	if err := json.Unmarshal([]byte(manifest), &files); err != nil {
		return nil, fmt.Errorf("unmarshaling manifest: %w", err)
	}

	if totalFiles != len(files) || totalChunks != sumChunks(files) {
		return nil, fmt.Errorf("agent %s counters disagree with manifest: %w", agentID, ErrIntegrity)
	}

	return files, nil
}

// writeManifestTx stores a mutated manifest with totals recomputed from it,
// so the cache cannot drift from the source of truth.
func (s *SQLiteStore) writeManifestTx(ctx context.Context, tx *sql.Tx, agentID string, files []FileEntry) error {
	manifest, err := marshalManifest(files)
	if err != nil {
		return fmt.Errorf("marshaling manifest: %w", err)
	}

	query := `
		UPDATE agents
		SET manifest_json = ?, total_files = ?, total_chunks = ?, updated_at = ?
		WHERE id = ?
	`

	_, err = tx.ExecContext(ctx, query,
		manifest,
		len(files),
		sumChunks(files),
		time.Now().UTC().Format(time.RFC3339),
		agentID,
	)
	if err != nil {
		return fmt.Errorf("updating agent manifest: %w", err)
	}

	return nil
}

func scanAgent(scanner interface{ Scan(dest ...any) error }) (*Agent, error) {
	var agent Agent
	var manifest string
	var createdAtStr, updatedAtStr string

	err := scanner.Scan(
		&agent.ID,
		&agent.UserID,
		&agent.Name,
		&agent.Description,
		&agent.ExtraInstructions,
		&agent.CollectionName,
		&manifest,
		&agent.TotalFiles,
		&agent.TotalChunks,
		&createdAtStr,
		&updatedAtStr,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(manifest), &agent.Files); err != nil {
		return nil, fmt.Errorf("unmarshaling manifest: %w", err)
	}

	if agent.CreatedAt, err = parseTime(createdAtStr); err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	if agent.UpdatedAt, err = parseTime(updatedAtStr); err != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", err)
	}

	return &agent, nil
}

func marshalManifest(files []FileEntry) (string, error) {
	if files == nil {
		files = []FileEntry{}
	}
	b, err := json.Marshal(files)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func sumChunks(files []FileEntry) int {
	total := 0
	for _, f := range files {
		total += f.ChunkCount
	}
	return total
}
