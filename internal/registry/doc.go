// Package registry manages the lifecycle of a user's agents.
//
// # Overview
//
// An agent is a named, retrieval-augmented assistant owned by exactly one
// user. The service resolves agents by name within the caller's own
// namespace and wraps the store's manifest operations:
//
//	svc := registry.New(st, logger)
//	agent, err := svc.Create(ctx, principal, "helper", "answers visa questions", "")
//	err = svc.IngestFile(ctx, principal, "helper", store.FileEntry{Name: "faq.pdf", ChunkCount: 12})
//	stats, err := svc.Stats(ctx, principal, "helper")
//
// # Collections
//
// Create derives the retrieval collection name as
// user_{ownerID}_agent_{name}. The handle is opaque to everything in this
// module; it exists so two users' same-named agents land in different
// vector namespaces. It is fixed at creation.
//
// # Manifest
//
// The file manifest is the source of truth for what an agent knows;
// total_files and total_chunks are caches the store maintains in the same
// transaction as every manifest change. Read paths re-verify the two agree
// and fail with store.ErrIntegrity when they do not, instead of serving a
// divergent cache.
//
// # Scoping
//
// Names are unique per owner, not globally. A foreign owner's agent is
// indistinguishable from a missing one (store.ErrNotFound), so tenant
// existence never leaks. Deleting an agent cascades nothing: conversations
// reference agents by name only and outlive them.
package registry
