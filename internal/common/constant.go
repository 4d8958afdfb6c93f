package common

const (
	// AuthorizationHeaderName carries the bearer access token.
	AuthorizationHeaderName = "Authorization"

	// CheckpointHeaderName carries the client's last sync checkpoint on delta fetch.
	CheckpointHeaderName = "X-Sync-Checkpoint"

	// Device hints used by the media gateway.
	DeviceProfileHeaderName = "X-Device-Profile"
	DeviceWidthHeaderName   = "X-Device-Width"
	DeviceDPRHeaderName     = "X-Device-DPR"
)
