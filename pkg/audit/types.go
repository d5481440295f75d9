package audit

import "time"

// EventType identifies what happened
type EventType string

const (
	EventRoleCreate        EventType = "role.create"
	EventRoleUpdate        EventType = "role.update"
	EventRoleDelete        EventType = "role.delete"
	EventRoleAssign        EventType = "role.assign"
	EventPermissionsUpdate EventType = "permissions.update"
	EventAccessDenied      EventType = "authz.access_denied"
	EventCatalogPrune      EventType = "catalog.prune"
	EventOrgBootstrap      EventType = "organization.bootstrap"
)

// Status is the outcome of an audited action
type Status string

const (
	StatusSuccess Status = "success"
	StatusFailure Status = "failure"
	StatusDenied  Status = "denied"
)

// ResourceType names the kind of resource an event touched
type ResourceType string

const (
	ResourceRole         ResourceType = "role"
	ResourceUser         ResourceType = "user"
	ResourceOrganization ResourceType = "organization"
	ResourcePermission   ResourceType = "permission"
)

// Event is a single audit log entry
type Event struct {
	ID             int64        `json:"id"`
	Timestamp      time.Time    `json:"timestamp"`
	EventType      EventType    `json:"event_type"`
	Status         Status       `json:"status"`
	OrganizationID int64        `json:"organization_id"`
	ActorID        *int64       `json:"actor_id,omitempty"`
	ResourceType   ResourceType `json:"resource_type"`
	ResourceID     string       `json:"resource_id,omitempty"`
	RequestID      string       `json:"request_id,omitempty"`
	Message        string       `json:"message,omitempty"`
	Changes        *Changes     `json:"changes,omitempty"`
}

// Changes records the before and after value of a mutation
type Changes struct {
	Before interface{} `json:"before,omitempty"`
	After  interface{} `json:"after,omitempty"`
}

// SearchFilter narrows an audit search. OrganizationID is mandatory so one
// tenant never reads another tenant's trail.
type SearchFilter struct {
	OrganizationID int64
	EventTypes     []EventType
	ResourceType   ResourceType
	ResourceID     string
	Since          *time.Time
	Limit          int
}
