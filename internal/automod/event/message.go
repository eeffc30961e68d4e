// Package event defines the normalized message view consumed by the
// moderation pipeline. Views are ephemeral: built once per gateway event,
// discarded when the pipeline finishes, never persisted.
package event

import (
	"time"

	"github.com/disgoorg/snowflake/v2"
)

// Attachment is the minimal attachment information rule evaluation needs.
type Attachment struct {
	// MIME content type as reported by the platform, may be empty.
	ContentType string
}

// IsMedia reports whether the attachment is an image or video.
func (a Attachment) IsMedia() bool {
	if len(a.ContentType) < 6 {
		return false
	}

	return a.ContentType[:6] == "image/" || a.ContentType[:6] == "video/"
}

// MessageView is the normalized, read-only view of one inbound message.
type MessageView struct {
	MessageID snowflake.ID
	AuthorID  snowflake.ID
	ChannelID snowflake.ID
	GuildID   snowflake.ID

	Content      string
	Attachments  []Attachment
	MentionCount int
	Timestamp    time.Time

	// True when the view was built from a message edit rather than a
	// create; edits re-run the full pipeline over the new content.
	Edited bool
}

// MediaCount returns the number of image or video attachments.
func (v *MessageView) MediaCount() int {
	count := 0
	for _, a := range v.Attachments {
		if a.IsMedia() {
			count++
		}
	}

	return count
}
