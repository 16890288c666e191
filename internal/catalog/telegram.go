package catalog

import (
	"fmt"

	"pulse/internal/registry"
)

// Telegram builds the Telegram bot function set. The bot token is baked into
// the API URLs, matching how the Bot API addresses a bot.
func Telegram(botToken string) []*registry.FunctionSpec {
	api := func(endpoint string) string {
		return fmt.Sprintf("https://api.telegram.org/bot%s/%s", botToken, endpoint)
	}
	jsonHeaders := map[string]string{"Content-Type": "application/json"}

	return []*registry.FunctionSpec{
		{
			Name:        "send_message",
			Platform:    "telegram",
			Description: "Send a text message that is contextually appropriate and adds value to the conversation. Consider chat type (private/group) and ongoing discussion context.",
			Args: []registry.Argument{
				{Name: "chat_id", Type: registry.ArgString, Description: "Unique identifier for the target chat or username of the target channel"},
				{Name: "text", Type: registry.ArgString, Description: "Message text to send. Should be contextually relevant and maintain conversation flow."},
			},
			HTTP: &registry.HTTPCall{
				Method:  "POST",
				URL:     api("sendMessage"),
				Headers: jsonHeaders,
				Payload: map[string]any{
					"chat_id": "{{chat_id}}",
					"text":    "{{text}}",
				},
			},
			SuccessFeedback: "Message sent successfully. Message ID: {{response.result.message_id}}",
			ErrorFeedback:   "Failed to send message: {{response.description}}",
		},
		{
			Name:        "send_media",
			Platform:    "telegram",
			Description: "Send a media message (photo, document, video, etc.) with optional caption. Use when visual or document content adds value to the conversation.",
			Args: []registry.Argument{
				{Name: "chat_id", Type: registry.ArgString, Description: "Target chat identifier where media will be sent"},
				{Name: "media_type", Type: registry.ArgString, Description: "Type of media to send: 'photo', 'document', 'video', 'audio'. Choose appropriate type for content."},
				{Name: "media", Type: registry.ArgString, Description: "File ID or URL of the media to send. Ensure content is appropriate and relevant."},
				{Name: "caption", Type: registry.ArgString, Optional: true, Description: "Optional text caption accompanying the media. Should provide context or explanation when needed, or follows up the conversation."},
			},
			HTTP: &registry.HTTPCall{
				Method:  "POST",
				URL:     api("send{{media_type}}"),
				Headers: jsonHeaders,
				Payload: map[string]any{
					"chat_id":        "{{chat_id}}",
					"{{media_type}}": "{{media}}",
					"caption":        "{{caption}}",
				},
			},
			SuccessFeedback: "Media sent successfully. Type: {{media_type}}, Message ID: {{response.result.message_id}}",
			ErrorFeedback:   "Failed to send media: {{response.description}}",
		},
		{
			Name:        "create_poll",
			Platform:    "telegram",
			Description: "Create an interactive poll to gather user opinions or make group decisions. Useful for engagement and collecting feedback.",
			Args: []registry.Argument{
				{Name: "chat_id", Type: registry.ArgString, Description: "Chat where the poll will be created"},
				{Name: "question", Type: registry.ArgString, Description: "Main poll question. Should be clear and specific."},
				{Name: "options", Type: registry.ArgArray, Description: "List of answer options. Make options clear and mutually exclusive."},
				{Name: "is_anonymous", Type: registry.ArgBoolean, Description: "Whether poll responses are anonymous. Consider privacy and group dynamics."},
			},
			HTTP: &registry.HTTPCall{
				Method:  "POST",
				URL:     api("sendPoll"),
				Headers: jsonHeaders,
				Payload: map[string]any{
					"chat_id":      "{{chat_id}}",
					"question":     "{{question}}",
					"options":      "{{options}}",
					"is_anonymous": "{{is_anonymous}}",
				},
			},
			SuccessFeedback: "Poll created successfully. Poll ID: {{response.result.poll.id}}",
			ErrorFeedback:   "Failed to create poll: {{response.description}}",
		},
		{
			Name:        "pin_message",
			Platform:    "telegram",
			Description: "Pin an important message in a chat. Use for announcements, important information, or group rules.",
			Args: []registry.Argument{
				{Name: "chat_id", Type: registry.ArgString, Description: "Chat where the message will be pinned"},
				{Name: "message_id", Type: registry.ArgString, Description: "ID of the message to pin. Ensure message contains valuable information worth pinning."},
				{Name: "disable_notification", Type: registry.ArgBoolean, Optional: true, Description: "Whether to send notification about pinned message. Consider group size and message importance."},
			},
			HTTP: &registry.HTTPCall{
				Method:  "POST",
				URL:     api("pinChatMessage"),
				Headers: jsonHeaders,
				Payload: map[string]any{
					"chat_id":              "{{chat_id}}",
					"message_id":           "{{message_id}}",
					"disable_notification": "{{disable_notification}}",
				},
			},
			SuccessFeedback: "Message pinned successfully",
			ErrorFeedback:   "Failed to pin message: {{response.description}}",
		},
		{
			Name:        "delete_message",
			Platform:    "telegram",
			Description: "Delete a message from a chat. Use for moderation or cleaning up outdated information.",
			Args: []registry.Argument{
				{Name: "chat_id", Type: registry.ArgString, Description: "Chat containing the message to delete"},
				{Name: "message_id", Type: registry.ArgString, Description: "ID of the message to delete. Consider impact before deletion."},
			},
			HTTP: &registry.HTTPCall{
				Method:  "POST",
				URL:     api("deleteMessage"),
				Headers: jsonHeaders,
				Payload: map[string]any{
					"chat_id":    "{{chat_id}}",
					"message_id": "{{message_id}}",
				},
			},
			SuccessFeedback: "Message deleted successfully",
			ErrorFeedback:   "Failed to delete message: {{response.description}}",
		},
	}
}
