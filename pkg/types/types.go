package types

import (
	"time"
)

// Action is the operation a schedule performs against its server
type Action string

const (
	ActionStop      Action = "stop"
	ActionStart     Action = "start"
	ActionReboot    Action = "reboot"
	ActionScaleDown Action = "scale_down"
	ActionScaleUp   Action = "scale_up"
)

// Actions lists every recognized action in display order
var Actions = []Action{ActionStop, ActionStart, ActionReboot, ActionScaleDown, ActionScaleUp}

// Valid reports whether a is a recognized action
func (a Action) Valid() bool {
	for _, known := range Actions {
		if a == known {
			return true
		}
	}
	return false
}

// IsScaling reports whether a changes instance type or storage
func (a Action) IsScaling() bool {
	return a == ActionScaleDown || a == ActionScaleUp
}

// TransitionalStatus is the optimistic server status written after an action is attempted
func (a Action) TransitionalStatus() string {
	switch a {
	case ActionStop:
		return "stopping"
	case ActionStart:
		return "starting"
	case ActionReboot:
		return "rebooting"
	case ActionScaleDown, ActionScaleUp:
		return "scaling"
	default:
		return ""
	}
}

// Provider identifies a cloud vendor
type Provider string

const (
	ProviderAWS   Provider = "aws"
	ProviderAzure Provider = "azure"
	ProviderGCP   Provider = "gcp"
)

// Schedule is a recurring action against one server
type Schedule struct {
	ID             string     `json:"id"`
	WorkspaceID    string     `json:"workspaceId"`
	ServerID       string     `json:"serverId"`
	Name           string     `json:"name"`
	Action         Action     `json:"action"`
	RRule          string     `json:"rrule"`
	Timezone       string     `json:"timezone"`
	NextRunAt      time.Time  `json:"nextRunAt"` // UTC, minute precision
	LastRunAt      *time.Time `json:"lastRunAt,omitempty"`
	Enabled        bool       `json:"enabled"`
	ExecutionCount int        `json:"executionCount"`
	Scaling        Scaling    `json:"scaling"`
	CreatedAt      time.Time  `json:"createdAt"`
	UpdatedAt      time.Time  `json:"updatedAt"`
}

// Scaling holds the optional targets of scale_down/scale_up actions.
// A nil or empty field means the attribute is not requested.
type Scaling struct {
	TargetInstanceType   string `json:"targetInstanceType,omitempty" yaml:"targetInstanceType,omitempty"`
	OriginalInstanceType string `json:"originalInstanceType,omitempty" yaml:"originalInstanceType,omitempty"`

	TargetVolumeSize       *int32 `json:"targetVolumeSize,omitempty" yaml:"targetVolumeSize,omitempty"` // GiB
	TargetVolumeType       string `json:"targetVolumeType,omitempty" yaml:"targetVolumeType,omitempty"`
	TargetVolumeIops       *int32 `json:"targetVolumeIops,omitempty" yaml:"targetVolumeIops,omitempty"`
	TargetVolumeThroughput *int32 `json:"targetVolumeThroughput,omitempty" yaml:"targetVolumeThroughput,omitempty"` // MiB/s

	OriginalVolumeSize       *int32 `json:"originalVolumeSize,omitempty" yaml:"originalVolumeSize,omitempty"`
	OriginalVolumeType       string `json:"originalVolumeType,omitempty" yaml:"originalVolumeType,omitempty"`
	OriginalVolumeIops       *int32 `json:"originalVolumeIops,omitempty" yaml:"originalVolumeIops,omitempty"`
	OriginalVolumeThroughput *int32 `json:"originalVolumeThroughput,omitempty" yaml:"originalVolumeThroughput,omitempty"`
}

// HasTarget reports whether at least one scaling target is set
func (s Scaling) HasTarget() bool {
	return s.TargetInstanceType != "" || s.HasVolumeTarget()
}

// HasVolumeTarget reports whether any storage attribute is requested
func (s Scaling) HasVolumeTarget() bool {
	return s.TargetVolumeSize != nil || s.TargetVolumeType != "" ||
		s.TargetVolumeIops != nil || s.TargetVolumeThroughput != nil
}

// ExecutionStatus is the outcome of one execution attempt
type ExecutionStatus string

const (
	ExecutionSuccess ExecutionStatus = "success"
	ExecutionFailed  ExecutionStatus = "failed"
)

// ScheduleExecution is an append-only record of one execution attempt
type ScheduleExecution struct {
	ID         string          `json:"id"`
	ScheduleID string          `json:"scheduleId"`
	Action     Action          `json:"action"`
	Status     ExecutionStatus `json:"status"`
	Error      string          `json:"error,omitempty"`
	DurationMs int64           `json:"durationMs"`
	ExecutedAt time.Time       `json:"executedAt"`
}

// Server is a tracked cloud instance
type Server struct {
	ID             string   `json:"id"`
	WorkspaceID    string   `json:"workspaceId"`
	Name           string   `json:"name"`
	Provider       Provider `json:"provider"`
	InstanceID     string   `json:"instanceId"`
	Region         string   `json:"region"`
	InstanceType   string   `json:"instanceType"`
	Status         string   `json:"status"`
	CloudAccountID string   `json:"cloudAccountId"`
}

// CloudAccount holds encrypted provider credentials
type CloudAccount struct {
	ID          string   `json:"id"`
	WorkspaceID string   `json:"workspaceId"`
	Provider    Provider `json:"provider"`
	Region      string   `json:"region"`
	Credentials string   `json:"credentials"` // "ivhex:cipherhex"
}

// DueSchedule is a schedule joined with the server and account it acts on
type DueSchedule struct {
	Schedule     *Schedule
	Server       *Server
	CloudAccount *CloudAccount
}

// HourlyTraffic is one per-server, per-hour throughput aggregate
type HourlyTraffic struct {
	ServerID   string    `json:"serverId"`
	Hour       time.Time `json:"hour"`
	AvgInMbps  float64   `json:"avgInMbps"`
	AvgOutMbps float64   `json:"avgOutMbps"`
	MaxInMbps  float64   `json:"maxInMbps"`
	MaxOutMbps float64   `json:"maxOutMbps"`
	Samples    int       `json:"samples"`
}

// Int32 returns a pointer to v
func Int32(v int32) *int32 {
	return &v
}
