package models

// Health check models
type HealthData struct {
	Status  string `json:"status" example:"ok" doc:"Service status"`
	Message string `json:"message" example:"API is healthy" doc:"Status message"`
}

type HealthResponse struct {
	Body HealthData
}

// Version models
type VersionData struct {
	Version   string `json:"version" example:"1.0.0" doc:"Application version"`
	GitCommit string `json:"git_commit" example:"abc1234" doc:"Git commit hash"`
	BuildDate string `json:"build_date" example:"2026-01-01T00:00:00Z" doc:"Build timestamp"`
	GoVersion string `json:"go_version" example:"go1.24.0" doc:"Go runtime version"`
	Platform  string `json:"platform" example:"linux/arm64" doc:"Operating system and architecture"`
}

type VersionResponse struct {
	Body VersionData
}

// Mount models
type MountData struct {
	Path            string `json:"path" example:"/main" doc:"Mount path"`
	URL             string `json:"url" example:"rtsp://192.168.1.10:8554/main" doc:"RTSP URL viewers connect to"`
	Shared          bool   `json:"shared" example:"true" doc:"Whether all viewers share one pipeline"`
	Clients         int    `json:"clients" example:"2" doc:"Viewers currently attached"`
	State           string `json:"state" example:"playing" doc:"Pipeline state, idle when no pipeline runs"`
	HandleID        uint64 `json:"handle_id,omitempty" example:"3" doc:"Id of the running pipeline"`
	OverlayAttached bool   `json:"overlay_attached" example:"true" doc:"Whether the running pipeline has an overlay element"`
	OverlayText     string `json:"overlay_text,omitempty" example:"2026-01-01 12:00:00" doc:"Text the overlay currently shows"`
	Resolution      string `json:"resolution" example:"1280x720" doc:"Encoded resolution"`
	Framerate       int    `json:"framerate" example:"15" doc:"Frames per second"`
	Bitrate         int    `json:"bitrate" example:"1000000" doc:"Target bitrate in bit/s"`
}

type MountListData struct {
	Mounts []MountData `json:"mounts" doc:"Mounted streams"`
	Count  int         `json:"count" example:"1" doc:"Number of mounts"`
}

type MountListResponse struct {
	Body MountListData
}

type MountRequest struct {
	Name string `path:"name" example:"main" doc:"Mount name without the leading slash"`
}

type PipelineData struct {
	Mount       string `json:"mount" example:"/main" doc:"Mount path"`
	Description string `json:"description" doc:"Textual pipeline description"`
	Command     string `json:"command" doc:"ffmpeg command the pipeline runs"`
}

type PipelineResponse struct {
	Body PipelineData
}
