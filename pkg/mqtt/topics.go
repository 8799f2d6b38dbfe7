package mqtt

import (
	"fmt"
	"strings"
)

// Topics follow bigskies/coordinator/{name}/{action}[/{resource}].
const (
	// TopicPrefix is the root prefix for all topics
	TopicPrefix = "bigskies"

	// ComponentCoordinator is the only component kind published here
	ComponentCoordinator = "coordinator"

	// Actions
	ActionCommand  = "cmd"
	ActionResponse = "resp"
	ActionStatus   = "status"
	ActionHealth   = "health"
	ActionEvent    = "event"

	// CoordinatorStarbook is the mount coordinator name
	CoordinatorStarbook = "starbook"
)

// TopicBuilder helps construct topic strings following conventions.
type TopicBuilder struct {
	parts []string
}

// NewTopicBuilder creates a new topic builder starting with the prefix.
func NewTopicBuilder() *TopicBuilder {
	return &TopicBuilder{
		parts: []string{TopicPrefix},
	}
}

// Coordinator adds the coordinator segments.
func (tb *TopicBuilder) Coordinator(name string) *TopicBuilder {
	tb.parts = append(tb.parts, ComponentCoordinator, name)
	return tb
}

// Action adds an action segment.
func (tb *TopicBuilder) Action(action string) *TopicBuilder {
	tb.parts = append(tb.parts, action)
	return tb
}

// Resource adds a resource segment.
func (tb *TopicBuilder) Resource(resource string) *TopicBuilder {
	tb.parts = append(tb.parts, resource)
	return tb
}

// Build constructs the final topic string.
func (tb *TopicBuilder) Build() string {
	return strings.Join(tb.parts, "/")
}

// CoordinatorHealthTopic returns the health topic for a coordinator.
func CoordinatorHealthTopic(coordinator string) string {
	return NewTopicBuilder().Coordinator(coordinator).Action(ActionHealth).Resource("status").Build()
}

// CoordinatorStatusTopic returns the status topic for a coordinator.
func CoordinatorStatusTopic(coordinator string) string {
	return NewTopicBuilder().Coordinator(coordinator).Action(ActionStatus).Build()
}

// CoordinatorCommandTopic returns the command topic for one operation.
func CoordinatorCommandTopic(coordinator, op string) string {
	return NewTopicBuilder().Coordinator(coordinator).Action(ActionCommand).Resource(op).Build()
}

// CoordinatorCommandWildcard matches every command topic of a coordinator.
func CoordinatorCommandWildcard(coordinator string) string {
	return NewTopicBuilder().Coordinator(coordinator).Action(ActionCommand).Resource("+").Build()
}

// CoordinatorResponseTopic returns the response topic for one operation.
func CoordinatorResponseTopic(coordinator, op string) string {
	return NewTopicBuilder().Coordinator(coordinator).Action(ActionResponse).Resource(op).Build()
}

// CoordinatorEventTopic returns the event topic for a coordinator.
func CoordinatorEventTopic(coordinator, eventType string) string {
	return NewTopicBuilder().Coordinator(coordinator).Action(ActionEvent).Resource(eventType).Build()
}

// ParseTopic splits a topic below the prefix.
func ParseTopic(topic string) ([]string, error) {
	parts := strings.Split(topic, "/")
	if len(parts) < 2 || parts[0] != TopicPrefix {
		return nil, fmt.Errorf("invalid topic format: must start with %s", TopicPrefix)
	}
	return parts[1:], nil
}

// CommandOp extracts the operation from a command topic of coordinator.
func CommandOp(coordinator, topic string) (string, error) {
	parts, err := ParseTopic(topic)
	if err != nil {
		return "", err
	}
	if len(parts) != 4 || parts[0] != ComponentCoordinator || parts[1] != coordinator || parts[2] != ActionCommand || parts[3] == "" {
		return "", fmt.Errorf("not a %s command topic: %s", coordinator, topic)
	}
	return parts[3], nil
}
