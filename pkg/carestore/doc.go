// Package carestore is the persistence layer for the care-planning wizard.
//
// It keeps two tiers of state on disk: ephemeral session records (one per
// browser/client instance, swept after a retention window) and durable user
// records (one per identity, removed only by explicit account erasure).
// Writes are atomic with respect to process crash, reads self-heal from
// corruption, and per-record advisory locks serialize access across
// processes and threads.
//
// Typical request flow:
//
//	sid := client.GetOrCreateSessionID(rc)
//	uid := client.GetOrCreateUserID(rc)
//	sess, _ := client.LoadSession(ctx, sid)
//	user, _ := client.LoadUser(ctx, uid)
//	client.MergeIntoState(state, user.Payload)
//	client.MergeIntoState(state, sess.Payload)
//	// ... business logic mutates state ...
//	client.SaveSession(ctx, sid, client.ExtractSessionState(state))
//	client.SaveUser(ctx, uid, client.ExtractUserState(state))
package carestore
