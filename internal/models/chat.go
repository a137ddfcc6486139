package models

import (
	"bytes"
	"encoding/json"
	"errors"
)

// ChatRequest is the payload sent to the chat endpoint. A missing or null
// message decodes to the empty string.
type ChatRequest struct {
	Message string `json:"message"`
}

// ChatResponse is the reply from the model, or the fallback text when the
// request carried no message.
type ChatResponse struct {
	Response string `json:"response"`
}

// DecodeChatRequest accepts a single JSON object. Anything else, including a
// bare null, is an error.
func DecodeChatRequest(body []byte) (ChatRequest, error) {
	var req ChatRequest
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return req, errors.New("body is not a JSON object")
	}
	if err := json.Unmarshal(trimmed, &req); err != nil {
		return req, err
	}
	return req, nil
}
