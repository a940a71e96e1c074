package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/textproto"

	"go.uber.org/zap"
)

// History returns the persisted messages between the local user and a peer,
// oldest first, as the server orders them.
func (c *Client) History(ctx context.Context, localID, peerID string) ([]MessageRecord, error) {
	req, err := http.NewRequest(http.MethodGet, c.url("chat", "messages", localID, peerID), nil)
	if err != nil {
		return nil, fmt.Errorf("build history request: %w", err)
	}

	var records []MessageRecord
	if err := c.do(ctx, req, &records); err != nil {
		return nil, err
	}
	return records, nil
}

// Send persists a message via multipart POST. content may be empty when an
// attachment is present; the caller validates that at least one is set.
// The response carries the server-assigned identity and, for attachments,
// the stored file URL.
func (c *Client) Send(ctx context.Context, localID, peerID, content string, file *Upload) (*MessageRecord, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	if content != "" {
		if err := mw.WriteField("content", content); err != nil {
			return nil, fmt.Errorf("write content field: %w", err)
		}
	}
	if file != nil {
		hdr := make(textproto.MIMEHeader)
		hdr.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, file.Filename))
		hdr.Set("Content-Type", file.ContentType)
		part, err := mw.CreatePart(hdr)
		if err != nil {
			return nil, fmt.Errorf("create file part: %w", err)
		}
		if _, err := part.Write(file.Data); err != nil {
			return nil, fmt.Errorf("write file part: %w", err)
		}
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("finalize multipart body: %w", err)
	}

	req, err := http.NewRequest(http.MethodPost, c.url("chat", "messages", localID, peerID), &body)
	if err != nil {
		return nil, fmt.Errorf("build send request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	var record MessageRecord
	if err := c.do(ctx, req, &record); err != nil {
		return nil, err
	}
	c.logger.Info("message persisted",
		zap.String("server_msg_id", record.ID),
		zap.String("peer", peerID))
	return &record, nil
}

// Delete removes a persisted message. The endpoint is addressed by the
// message identity plus the counterpart identity, mirroring how the server
// scopes conversations.
func (c *Client) Delete(ctx context.Context, messageID, counterpartID string) error {
	req, err := http.NewRequest(http.MethodDelete, c.url("chat", "messages", messageID, counterpartID), nil)
	if err != nil {
		return fmt.Errorf("build delete request: %w", err)
	}
	return c.do(ctx, req, nil)
}

// Update replaces the text content of a persisted message.
func (c *Client) Update(ctx context.Context, messageID, counterpartID, content string) error {
	payload, err := json.Marshal(map[string]string{"content": content})
	if err != nil {
		return fmt.Errorf("encode update payload: %w", err)
	}
	req, err := http.NewRequest(http.MethodPut, c.url("chat", "messages", messageID, counterpartID), bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build update request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(ctx, req, nil)
}
