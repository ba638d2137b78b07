package telemetry

// HTTP semantic convention attributes
const (
	AttrHTTPMethod                = "http.method"
	AttrHTTPURL                   = "http.url"
	AttrHTTPStatusCode            = "http.status_code"
	AttrHTTPRequestContentLength  = "http.request_content_length"
	AttrHTTPResponseContentLength = "http.response_content_length"
	AttrHTTPDurationMS            = "http.duration_ms"
)

// Management API attributes
const (
	AttrMgmtCommand       = "mgmt.command"
	AttrMgmtServer        = "mgmt.server"
	AttrMgmtDomain        = "mgmt.domain"
	AttrMgmtAPIVersion    = "mgmt.api_version"
	AttrMgmtLoggedIn      = "mgmt.logged_in"
	AttrMgmtSuccess       = "mgmt.success"
	AttrMgmtErrorCode     = "mgmt.error_code"
	AttrMgmtTaskID        = "mgmt.task_id"
	AttrMgmtTaskStatus    = "mgmt.task_status"
	AttrMgmtTaskProgress  = "mgmt.task_progress"
	AttrMgmtTaskPolls     = "mgmt.task_polls"
	AttrMgmtDetailsLevel  = "mgmt.details_level"
	AttrMgmtPageOffset    = "mgmt.page_offset"
	AttrMgmtPageNumber    = "mgmt.page_number"
	AttrMgmtObjectsInPage = "mgmt.objects_in_page"
	AttrMgmtTotalObjects  = "mgmt.total_objects"
)

// Playbook attributes
const (
	AttrPlaybookPath      = "playbook.path"
	AttrPlaybookSteps     = "playbook.steps"
	AttrPlaybookStep      = "playbook.step"
	AttrPlaybookStatus    = "playbook.status"
	AttrPlaybookPublished = "playbook.published"
)

// Error attributes
const (
	AttrError = "error"
)
