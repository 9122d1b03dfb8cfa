// ABOUTME: Store interface and data types for grimoire persistence
// ABOUTME: Defines User, OTP, Agent, Conversation, Message and the Store interface

package store

import (
	"context"
	"errors"
	"time"

	"github.com/2389/grimoire/internal/access"
)

// ErrNotFound is returned when a requested entity does not exist or the
// caller's principal may not see it. The two cases are deliberately
// indistinguishable so resource existence is never disclosed across tenants.
var ErrNotFound = errors.New("not found")

// ErrDuplicateEmail is returned when registering an email that already has an account
var ErrDuplicateEmail = errors.New("email already registered")

// ErrDuplicateName is returned when an owner already has an agent with that name
var ErrDuplicateName = errors.New("agent name already in use")

// ErrInvalidCode is returned when no matching verification code exists
var ErrInvalidCode = errors.New("invalid code")

// ErrCodeExpired is returned when the matching code exists but has expired
var ErrCodeExpired = errors.New("code expired")

// ErrCodeUsed is returned when the matching code was already consumed
var ErrCodeUsed = errors.New("code already used")

// ErrIntegrity is returned when stored counters disagree with the manifest
// they cache. It indicates a bug, not a caller mistake, and is never retried.
var ErrIntegrity = errors.New("integrity violation")

// User is an account. PasswordHash is a bcrypt hash; the store never sees
// plaintext. LastLogin is nil until the first successful authentication.
type User struct {
	ID           string
	Email        string
	PasswordHash string
	FullName     string
	Verified     bool
	Admin        bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
	LastLogin    *time.Time
}

// OTP purposes. The code a user receives is only good for the purpose it
// was issued under.
const (
	OTPPurposeVerification = "verification"
	OTPPurposeReset        = "reset"
)

// DefaultOTPTTL is the issuance-to-expiry window used when the caller does
// not configure one.
const DefaultOTPTTL = 10 * time.Minute

// OTP is one issued verification code. Rows are never updated after
// consumption and never deleted except by PurgeOTPs; consumed and expired
// entries are retained for audit.
type OTP struct {
	ID         string
	Email      string // target address; no FK, codes may precede the account row
	Code       string // 6 numeric digits
	Purpose    string // "verification" or "reset"
	CreatedAt  time.Time
	ExpiresAt  time.Time
	ConsumedAt *time.Time // nil while pending
}

// FileEntry is one ingested document in an agent's manifest.
type FileEntry struct {
	Name       string `json:"name"`
	ChunkCount int    `json:"chunk_count"`
}

// Agent is a retrieval-augmented assistant owned by one user. The manifest
// (Files) is the source of truth; TotalFiles and TotalChunks are caches
// maintained in the same transaction as every manifest change.
type Agent struct {
	ID                string
	UserID            string
	Name              string // unique per owner
	Description       string
	ExtraInstructions string
	CollectionName    string // opaque handle passed to the retrieval engine
	Files             []FileEntry
	TotalFiles        int
	TotalChunks       int
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Conversation is a thread of messages between a user and one of their
// agents. AgentName is denormalized on purpose: conversations survive agent
// rename and deletion.
type Conversation struct {
	ID           string
	UserID       string
	AgentName    string
	Title        string
	MessageCount int // must equal live message rows at all times
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Message sender values. The CHECK constraint on the table makes anything
// else unrepresentable.
const (
	SenderUser = "user"
	SenderBot  = "bot"
)

// Message is a single conversation turn. Append-only; removed only by
// conversation cascade or explicit per-message deletion.
type Message struct {
	ID             string
	ConversationID string
	AgentName      string
	Sender         string // "user" or "bot"
	Text           string
	Timestamp      time.Time
}

// Store defines the persistence interface for grimoire entities.
//
// Methods taking an access.Principal enforce owner scoping internally:
// rows belonging to someone else behave exactly like missing rows
// (ErrNotFound), and admin principals bypass scoping wholesale. User and
// OTP methods take no principal; they are credential plumbing and their
// callers enforce who may invoke them.
type Store interface {
	// Users
	CreateUser(ctx context.Context, user *User) error
	GetUser(ctx context.Context, id string) (*User, error)
	GetUserByEmail(ctx context.Context, email string) (*User, error)
	MarkUserVerified(ctx context.Context, id string) error
	UpdateUserPassword(ctx context.Context, id, passwordHash string) error
	TouchUserLogin(ctx context.Context, id string, at time.Time) error
	DeleteUser(ctx context.Context, id string) error

	// OTPs
	IssueOTP(ctx context.Context, email, purpose string, ttl time.Duration) (*OTP, error)
	ConsumeOTP(ctx context.Context, email, purpose, code string) error
	PurgeOTPs(ctx context.Context, olderThan time.Time) (int64, error)

	// Agents
	CreateAgent(ctx context.Context, p access.Principal, agent *Agent) error
	GetAgentByID(ctx context.Context, p access.Principal, id string) (*Agent, error)
	GetAgentByName(ctx context.Context, p access.Principal, ownerID, name string) (*Agent, error)
	ListAgents(ctx context.Context, p access.Principal, ownerID string) ([]*Agent, error)
	IngestFile(ctx context.Context, p access.Principal, agentID string, file FileEntry) error
	RemoveFile(ctx context.Context, p access.Principal, agentID, fileName string) error
	DeleteAgent(ctx context.Context, p access.Principal, agentID string) error

	// Conversations and messages
	CreateConversation(ctx context.Context, p access.Principal, conv *Conversation) error
	GetConversation(ctx context.Context, p access.Principal, id string) (*Conversation, error)
	ListConversations(ctx context.Context, p access.Principal, ownerID, agentName string) ([]*Conversation, error)
	AppendMessage(ctx context.Context, p access.Principal, msg *Message) error
	ListMessages(ctx context.Context, p access.Principal, conversationID string) ([]*Message, error)
	DeleteConversation(ctx context.Context, p access.Principal, conversationID string) error
	DeleteMessage(ctx context.Context, p access.Principal, messageID string) error
	DeleteAgentConversations(ctx context.Context, p access.Principal, ownerID, agentName string) (int64, error)

	// Audit trail
	AppendAuditLog(ctx context.Context, entry *AuditEntry) error
	ListAuditLog(ctx context.Context, f AuditFilter) ([]AuditEntry, error)

	// Aggregates for operator tooling
	GetPlatformStats(ctx context.Context) (*PlatformStats, error)

	// Close releases any resources held by the store
	Close() error
}
