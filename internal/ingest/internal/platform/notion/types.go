package notion

import (
	"encoding/json"
	"strings"
	"time"
)

type richText struct {
	PlainText string `json:"plain_text"`
}

type page struct {
	Object         string    `json:"object"`
	ID             string    `json:"id"`
	URL            string    `json:"url"`
	CreatedTime    time.Time `json:"created_time"`
	LastEditedTime time.Time `json:"last_edited_time"`
	Archived       bool      `json:"archived"`
	LastEditedBy   struct{ ID string }        `json:"last_edited_by"`
	Properties map[string]json.RawMessage `json:"properties"`
}

type listResponse struct {
	Results    []json.RawMessage `json:"results"`
	HasMore    bool              `json:"has_more"`
	NextCursor string            `json:"next_cursor"`
}

// block covers the text-bearing block types; the payload lives under a key named after the type.
type block struct {
	ID          string                     `json:"id"`
	Type        string                     `json:"type"`
	HasChildren bool                       `json:"has_children"`
	Content     map[string]json.RawMessage `json:"-"`
}

func (b *block) UnmarshalJSON(data []byte) error {
	type plain block
	if err := json.Unmarshal(data, (*plain)(b)); err != nil {
		return err
	}
	return json.Unmarshal(data, &b.Content)
}

// text returns the block's plain text, prefixed the way the block renders.
func (b *block) text() string {
	raw, ok := b.Content[b.Type]
	if !ok {
		return ""
	}
	var payload struct {
		RichText []richText `json:"rich_text"`
		Title    string     `json:"title"`
		Checked  bool       `json:"checked"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return ""
	}

	text := joinRichText(payload.RichText)
	switch b.Type {
	case "heading_1":
		return "# " + text
	case "heading_2":
		return "## " + text
	case "heading_3":
		return "### " + text
	case "bulleted_list_item", "numbered_list_item":
		return "- " + text
	case "to_do":
		if payload.Checked {
			return "[x] " + text
		}
		return "[ ] " + text
	case "child_page", "child_database":
		return payload.Title
	}
	return text
}

// title finds the page's title property, whatever it is named.
func (p *page) title() string {
	for _, raw := range p.Properties {
		var prop struct {
			Type  string     `json:"type"`
			Title []richText `json:"title"`
		}
		if json.Unmarshal(raw, &prop) == nil && prop.Type == "title" {
			return joinRichText(prop.Title)
		}
	}
	return ""
}

func joinRichText(parts []richText) string {
	var b strings.Builder
	for _, part := range parts {
		b.WriteString(part.PlainText)
	}
	return b.String()
}
