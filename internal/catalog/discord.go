package catalog

import (
	"fmt"

	"pulse/internal/registry"
)

// Discord builds the Discord bot function set. Unlike Telegram, the token
// travels in the Authorization header rather than the URL.
func Discord(botToken string) []*registry.FunctionSpec {
	api := func(endpoint string) string {
		return "https://discord.com/api/v10/" + endpoint
	}
	auth := fmt.Sprintf("Bot %s", botToken)

	return []*registry.FunctionSpec{
		{
			Name:        "send_message",
			Platform:    "discord",
			Description: "Send a message to a Discord channel.",
			Args: []registry.Argument{
				{Name: "channel_id", Type: registry.ArgString, Description: "ID of the Discord channel to send the message to."},
				{Name: "content", Type: registry.ArgString, Description: "Content of the message to send."},
			},
			HTTP: &registry.HTTPCall{
				Method: "POST",
				URL:    api("channels/{{channel_id}}/messages"),
				Headers: map[string]string{
					"Content-Type":  "application/json",
					"Authorization": auth,
				},
				Payload: map[string]any{"content": "{{content}}"},
			},
			SuccessFeedback: "Message sent successfully.",
			ErrorFeedback:   "Failed to send message: {{response.message}}",
		},
		{
			Name:        "add_reaction",
			Platform:    "discord",
			Description: "Add a reaction emoji to a message.",
			Args: []registry.Argument{
				{Name: "channel_id", Type: registry.ArgString, Description: "ID of the Discord channel containing the message."},
				{Name: "message_id", Type: registry.ArgString, Description: "ID of the message to add a reaction to."},
				{Name: "emoji", Type: registry.ArgString, Description: "Emoji to add as a reaction (Unicode or custom emoji)."},
			},
			HTTP: &registry.HTTPCall{
				Method:  "PUT",
				URL:     api("channels/{{channel_id}}/messages/{{message_id}}/reactions/{{emoji}}/@me"),
				Headers: map[string]string{"Authorization": auth},
			},
			SuccessFeedback: "Reaction added successfully.",
			ErrorFeedback:   "Failed to add reaction: {{response.message}}",
		},
		{
			Name:        "pin_message",
			Platform:    "discord",
			Description: "Pin a message in a Discord channel.",
			Args: []registry.Argument{
				{Name: "channel_id", Type: registry.ArgString, Description: "ID of the Discord channel containing the message."},
				{Name: "message_id", Type: registry.ArgString, Description: "ID of the message to pin."},
			},
			HTTP: &registry.HTTPCall{
				Method:  "PUT",
				URL:     api("channels/{{channel_id}}/pins/{{message_id}}"),
				Headers: map[string]string{"Authorization": auth},
			},
			SuccessFeedback: "Message pinned successfully.",
			ErrorFeedback:   "Failed to pin message: {{response.message}}",
		},
		{
			Name:        "delete_message",
			Platform:    "discord",
			Description: "Delete a message from a Discord channel.",
			Args: []registry.Argument{
				{Name: "channel_id", Type: registry.ArgString, Description: "ID of the Discord channel containing the message."},
				{Name: "message_id", Type: registry.ArgString, Description: "ID of the message to delete."},
			},
			HTTP: &registry.HTTPCall{
				Method:  "DELETE",
				URL:     api("channels/{{channel_id}}/messages/{{message_id}}"),
				Headers: map[string]string{"Authorization": auth},
			},
			SuccessFeedback: "Message deleted successfully.",
			ErrorFeedback:   "Failed to delete message: {{response.message}}",
		},
	}
}
