package models

// RegisterDeviceRequest is the request body for POST /v1/me/devices.
type RegisterDeviceRequest struct {
	Token    string `json:"token" validate:"required"`
	Platform string `json:"platform" validate:"required,oneof=ios android"`
	AppBuild *int   `json:"appBuild,omitempty"`
	Language string `json:"language,omitempty"`
}

// UnregisterDeviceRequest is the request body for DELETE /v1/me/devices.
type UnregisterDeviceRequest struct {
	Token string `json:"token" validate:"required"`
}

// DeviceResponse represents a registered device.
type DeviceResponse struct {
	ID        string    `json:"id"`
	Platform  string    `json:"platform"`
	AppBuild  *int      `json:"appBuild,omitempty"`
	Language  string    `json:"language,omitempty"`
	CreatedAt Timestamp `json:"createdAt"`
	UpdatedAt Timestamp `json:"updatedAt"`
}
