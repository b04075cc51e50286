package core

// CommandKind describes what the caller wants the loop to do.
type CommandKind int

const (
	// CommandSelectTopic makes a topic the visible one.
	CommandSelectTopic CommandKind = iota
	// CommandSendToSelected sends text on the selected topic.
	CommandSendToSelected
	// CommandReconcile merges a topic list from the directory.
	CommandReconcile
	// CommandView snapshots what the renderer needs.
	CommandView
	// CommandStatus reports one topic's connection status.
	CommandStatus
	// CommandTeardown closes every topic.
	CommandTeardown
)

// Command represents an action requested through the Manager API.
type Command struct {
	Kind   CommandKind
	Topic  TopicID
	Topics []TopicID
	Text   string
	Author string

	reply chan result
}

type result struct {
	err  error
	view View
}
