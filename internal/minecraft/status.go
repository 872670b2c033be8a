package minecraft

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// StatusResponse is the status document returned by the server list ping.
type StatusResponse struct {
	Description Description     `json:"description"`
	Favicon     string          `json:"favicon,omitempty"`
	Version     StatusVersion   `json:"version"`
	Raw         json.RawMessage `json:"-"`
	Players     StatusPlayers   `json:"players"`
	Latency     time.Duration   `json:"-"`
}

// StatusVersion describes the server software.
type StatusVersion struct {
	Name     string `json:"name"`
	Protocol int    `json:"protocol"`
}

// StatusPlayers holds player counts and the optional sample list.
type StatusPlayers struct {
	Sample []PlayerSample `json:"sample,omitempty"`
	Online int            `json:"online"`
	Max    int            `json:"max"`
}

// PlayerSample is one entry of the player sample.
type PlayerSample struct {
	Name string `json:"name"`
	ID   string `json:"id"`
}

// Description is the server MOTD, sent either as a plain string or as a chat component.
type Description struct {
	// Text is the concatenated text of the component tree.
	Text string
	raw  json.RawMessage
}

// UnmarshalJSON accepts a string, a chat component object or an array of components.
func (d *Description) UnmarshalJSON(data []byte) error {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}

	d.Text = chatText(v)
	d.raw = bytes.Clone(data)

	return nil
}

// MarshalJSON emits the original JSON when available, the plain text otherwise.
func (d Description) MarshalJSON() ([]byte, error) {
	if len(d.raw) > 0 {
		return d.raw, nil
	}

	return json.Marshal(d.Text)
}

func chatText(v any) string {
	switch c := v.(type) {
	case string:
		return c
	case []any:
		var b strings.Builder
		for _, part := range c {
			b.WriteString(chatText(part))
		}
		return b.String()
	case map[string]any:
		var b strings.Builder
		if text, ok := c["text"].(string); ok {
			b.WriteString(text)
		}
		if extra, ok := c["extra"].([]any); ok {
			for _, part := range extra {
				b.WriteString(chatText(part))
			}
		}
		return b.String()
	}

	return ""
}

// ParseStatus decodes a status document. The version, players and description
// fields are required.
func ParseStatus(data []byte) (*StatusResponse, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, fmt.Errorf("%w: status is not a JSON object: %w", ErrInvalidResponse, err)
	}
	for _, key := range []string{"version", "players", "description"} {
		if _, ok := fields[key]; !ok {
			return nil, fmt.Errorf("%w: status has no %q field", ErrInvalidResponse, key)
		}
	}

	var status StatusResponse
	if err := json.Unmarshal(data, &status); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidResponse, err)
	}
	status.Raw = bytes.Clone(data)

	return &status, nil
}
