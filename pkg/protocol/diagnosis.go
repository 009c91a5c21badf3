package protocol

import "time"

// Issue is a known problem recognised in a user's log output.
type Issue struct {
	Name        string `json:"name"`
	Remediation string `json:"remediation"`
}

// Diagnosis pairs a scanned message with the issues found in it. It is never
// persisted; the reply message posted for it is the only durable trace.
type Diagnosis struct {
	MessageID string  `json:"message_id"`
	Issues    []Issue `json:"issues"`
}

// Names returns the issue names in match order.
func (d Diagnosis) Names() []string {
	names := make([]string, len(d.Issues))
	for i, is := range d.Issues {
		names[i] = is.Name
	}
	return names
}

// Escalation is raised when a user reports that a diagnosis did not fix
// their problem and staff should step in.
type Escalation struct {
	ThreadID   string    `json:"thread_id"`
	ThreadName string    `json:"thread_name,omitempty"`
	OwnerID    string    `json:"owner_id"`
	ReporterID string    `json:"reporter_id"`
	Issues     []string  `json:"issues,omitempty"`
	At         time.Time `json:"at"`
}
