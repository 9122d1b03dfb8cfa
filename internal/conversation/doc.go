// Package conversation manages message threads between users and agents.
//
// # Overview
//
// A conversation is a titled thread of ordered turns with one agent. The
// service layers thread lifecycle over the store:
//
//	svc := conversation.New(st, logger)
//	conv, err := svc.Start(ctx, principal, "helper", "How do I renew my visa?")
//	msg, err := svc.Append(ctx, principal, conv.ID, store.SenderBot, reply, "helper")
//	hist, err := svc.GetHistory(ctx, principal, conv.ID)
//
// # Titles
//
// Start derives the title from the first message: trimmed, capped at 50
// characters, with "..." marking a cut.
//
// # Agent Coupling
//
// Conversations reference their agent by name, never by ID. Renaming or
// deleting an agent leaves its conversations intact; callers retiring an
// agent use DeleteAgentConversations when they also want the threads gone.
//
// # Scoping
//
// Every operation takes the caller's principal and sees only that tenant's
// rows; a foreign conversation behaves like a missing one. Message counts
// are maintained by the store in the same transaction as the message rows.
package conversation
