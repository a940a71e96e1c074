package api

import "time"

// MessageRecord is a persisted message as returned by the REST API.
type MessageRecord struct {
	ID             string    `json:"_id"`
	Sender         string    `json:"sender"`
	Receiver       string    `json:"receiver"`
	Content        string    `json:"content"`
	Status         string    `json:"status"`
	CreatedAt      time.Time `json:"createdAt"`
	AttachmentURL  string    `json:"fileUrl,omitempty"`
	AttachmentName string    `json:"fileName,omitempty"`
	AttachmentType string    `json:"fileType,omitempty"`
	AttachmentSize int64     `json:"fileSize,omitempty"`
}

// Supervisor is a directory entry: a field supervisor the local coordinator
// can chat with.
type Supervisor struct {
	EmployeeID string `json:"employeeId"`
	Name       string `json:"name"`
	Email      string `json:"email,omitempty"`
	Phone      string `json:"phoneNumber,omitempty"`
	CompanyID  string `json:"clientCode"`
	Online     bool   `json:"online"`
}

// Upload is an attachment carried on a multipart send.
type Upload struct {
	Filename    string
	ContentType string
	Data        []byte
}
