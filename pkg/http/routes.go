package http

// Names of the approval API routes; see NewAPIRouter for their paths.
const (
	Ping    = "Ping"
	Version = "Version"
	Pending = "Pending"
	Approve = "Approve"
	Reject  = "Reject"
)
