package protocol

// WebSocket request methods.
const (
	MethodHealth         = "health"
	MethodAnalysisStart  = "analysis.start"
	MethodAnalysisCancel = "analysis.cancel"
	MethodAnalysisGet    = "analysis.get"
	MethodRunGet         = "run.get"
	MethodSchedulesList  = "schedules.list"
)
