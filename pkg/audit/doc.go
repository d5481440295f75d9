// Package audit records who changed which role or permission override, and
// when.
//
// Services call Record after a mutation commits:
//
//	audit.Record(ctx, s.audit, &audit.Event{
//		EventType:    audit.EventRoleUpdate,
//		ResourceType: audit.ResourceRole,
//		ResourceID:   strconv.FormatInt(role.ID, 10),
//		Changes:      &audit.Changes{Before: before, After: role},
//	})
//
// Record fills the organization, actor and request ID from the request
// context and only logs its own failures. DBLogger persists events to
// PostgreSQL; SlogLogger writes them to the application log; MultiLogger
// does both.
package audit
