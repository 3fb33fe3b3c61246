package errors

// Code is a stable machine-readable error tag. Codes are part of the wire
// contract: occurrence artifacts, HTTP bodies, and tool results carry them.
type Code string

const (
	CodeUnknown           Code = "UNKNOWN"             // Unclassified error
	CodeInternalError     Code = "INTERNAL_ERROR"      // Internal system error
	CodeInvalidParameter  Code = "INVALID_PARAMETER"   // Invalid parameter provided
	CodeMissingParameter  Code = "MISSING_PARAMETER"   // Required parameter missing
	CodeManifestInvalid   Code = "MANIFEST_INVALID"    // Kubernetes manifest invalid
	CodeQueueFull         Code = "QUEUE_FULL"          // Agent waiter queue at capacity
	CodeWorkerCrash       Code = "WORKER_CRASH"        // Deploy worker terminated abnormally
	CodeNoDeploymentFound Code = "NO_DEPLOYMENT_FOUND" // Rollout requested without a Deployment manifest
	CodeForbidden         Code = "FORBIDDEN"           // Kubernetes API denied the request
	CodeNotFound          Code = "NOT_FOUND"           // Resource not found
	CodeTimeout           Code = "TIMEOUT"             // Operation timed out
	CodeConnectionRefused Code = "CONNECTION_REFUSED"  // Cluster unreachable
	CodeApplyFailed       Code = "APPLY_FAILED"        // Server-side apply rejected
	CodeSnapshotInvalid   Code = "SNAPSHOT_INVALID"    // Graph snapshot failed schema validation
	CodeIoError           Code = "IO_ERROR"            // Input/output operation failed
	CodeAgentStopped      Code = "AGENT_STOPPED"       // Agent shut down before replying
)
