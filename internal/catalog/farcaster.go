package catalog

import (
	"fmt"

	"pulse/internal/registry"
)

// Farcaster builds the Farcaster function set against the Neynar API. The
// API key travels as a header; the signer uuid is baked into every write
// payload.
func Farcaster(apiKey, signerUUID string) []*registry.FunctionSpec {
	api := func(path string) string {
		return fmt.Sprintf("https://api.neynar.com/v2/farcaster/%s", path)
	}
	headers := map[string]string{
		"accept":       "application/json",
		"content-type": "application/json",
		"api_key":      apiKey,
	}

	return []*registry.FunctionSpec{
		{
			Name:        "post_cast",
			Platform:    "farcaster",
			Description: "Create a new cast (post) on Farcaster. Use this to share thoughts, insights, or start new discussions.",
			Args: []registry.Argument{
				{Name: "text", Type: registry.ArgString, Description: "The content of your cast. Should be engaging and contextual. Max 320 characters."},
				{Name: "embed_url", Type: registry.ArgString, Optional: true, Description: "Optional URL to embed in the cast (e.g., link to an article, image, or video)"},
			},
			HTTP: &registry.HTTPCall{
				Method:  "POST",
				URL:     api("cast"),
				Headers: headers,
				Payload: map[string]any{
					"signer_uuid": signerUUID,
					"text":        "{{text}}",
					"embeds":      []any{map[string]any{"url": "{{embed_url}}"}},
				},
			},
			SuccessFeedback: "Cast posted successfully. Preview: '{{response.cast.text}}'",
			ErrorFeedback:   "Failed to post cast: {{response.message}}",
		},
		{
			Name:        "reply_to_cast",
			Platform:    "farcaster",
			Description: "Reply to an existing cast. Use this to engage in conversations or provide feedback to others.",
			Args: []registry.Argument{
				{Name: "text", Type: registry.ArgString, Description: "Your reply message. Should be relevant to the conversation. Max 320 characters."},
				{Name: "cast_hash", Type: registry.ArgString, Description: "The hash of the cast you're replying to"},
			},
			HTTP: &registry.HTTPCall{
				Method:  "POST",
				URL:     api("cast"),
				Headers: headers,
				Payload: map[string]any{
					"signer_uuid": signerUUID,
					"text":        "{{text}}",
					"parent":      "{{cast_hash}}",
				},
			},
			SuccessFeedback: "Reply posted successfully. Your reply: '{{response.cast.text}}' to cast by {{response.cast.parent_author.username}}",
			ErrorFeedback:   "Failed to post reply: {{response.message}}",
		},
		{
			Name:        "recast",
			Platform:    "farcaster",
			Description: "Share another user's cast with your followers. Use this to amplify valuable content.",
			Args: []registry.Argument{
				{Name: "cast_hash", Type: registry.ArgString, Description: "Hash of the cast you want to share with your followers"},
			},
			HTTP: &registry.HTTPCall{
				Method:  "POST",
				URL:     api("recast"),
				Headers: headers,
				Payload: map[string]any{
					"signer_uuid": signerUUID,
					"target_hash": "{{cast_hash}}",
				},
			},
			SuccessFeedback: "Successfully shared cast by {{response.cast.author.username}}. Original cast: '{{response.cast.text}}'",
			ErrorFeedback:   "Failed to recast: {{response.message}}",
		},
		{
			Name:        "like_cast",
			Platform:    "farcaster",
			Description: "Like a cast to show appreciation or agreement.",
			Args: []registry.Argument{
				{Name: "cast_hash", Type: registry.ArgString, Description: "Hash of the cast you want to like"},
			},
			HTTP: &registry.HTTPCall{
				Method:  "POST",
				URL:     api("reaction"),
				Headers: headers,
				Payload: map[string]any{
					"signer_uuid":   signerUUID,
					"target_hash":   "{{cast_hash}}",
					"reaction_type": "like",
				},
			},
			SuccessFeedback: "Liked cast by {{response.cast.author.username}}. Cast text: '{{response.cast.text}}'",
			ErrorFeedback:   "Failed to like cast: {{response.message}}",
		},
		{
			Name:        "unlike_cast",
			Platform:    "farcaster",
			Description: "Remove your like from a cast.",
			Args: []registry.Argument{
				{Name: "cast_hash", Type: registry.ArgString, Description: "Hash of the cast to unlike"},
			},
			HTTP: &registry.HTTPCall{
				Method:  "DELETE",
				URL:     api("reaction"),
				Headers: headers,
				Payload: map[string]any{
					"signer_uuid":   signerUUID,
					"target_hash":   "{{cast_hash}}",
					"reaction_type": "like",
				},
			},
			SuccessFeedback: "Removed like from cast by {{response.cast.author.username}}",
			ErrorFeedback:   "Failed to remove like: {{response.message}}",
		},
		{
			Name:        "create_channel",
			Platform:    "farcaster",
			Description: "Create a new channel on Farcaster. Use this to start a focused discussion space.",
			Args: []registry.Argument{
				{Name: "name", Type: registry.ArgString, Description: "Name of the channel (without leading 'fc:')"},
				{Name: "description", Type: registry.ArgString, Description: "Short description of what the channel is about"},
			},
			HTTP: &registry.HTTPCall{
				Method:  "POST",
				URL:     api("channel"),
				Headers: headers,
				Payload: map[string]any{
					"name":        "{{name}}",
					"description": "{{description}}",
				},
			},
			SuccessFeedback: "Channel 'fc:{{response.channel.name}}' created successfully. Description: {{response.channel.description}}",
			ErrorFeedback:   "Failed to create channel: {{response.message}}",
		},
		{
			Name:        "post_to_channel",
			Platform:    "farcaster",
			Description: "Post a cast to a specific channel. Use this to participate in topic-specific discussions.",
			Args: []registry.Argument{
				{Name: "text", Type: registry.ArgString, Description: "The content of your cast. Should be relevant to the channel topic. Max 320 characters."},
				{Name: "channel_name", Type: registry.ArgString, Description: "Name of the channel to post to (without leading 'fc:')"},
			},
			HTTP: &registry.HTTPCall{
				Method:  "POST",
				URL:     api("cast"),
				Headers: headers,
				Payload: map[string]any{
					"signer_uuid": signerUUID,
					"text":        "{{text}}",
					"channel":     "{{channel_name}}",
				},
			},
			SuccessFeedback: "Posted to channel fc:{{response.cast.channel}}: '{{response.cast.text}}'",
			ErrorFeedback:   "Failed to post to channel: {{response.message}}",
		},
		{
			Name:        "get_trending_casts",
			Platform:    "farcaster",
			Description: "Get currently trending casts on Farcaster. Use this to understand current discussions and hot topics.",
			Args: []registry.Argument{
				{Name: "time_window", Type: registry.ArgString, Optional: true, Description: "Time window for trending casts: '1h', '6h', '24h', or '7d'"},
			},
			HTTP: &registry.HTTPCall{
				Method:  "GET",
				URL:     api("feed/trending"),
				Headers: headers,
				Query: map[string]string{
					"time_window": "{{time_window}}",
				},
			},
			SuccessFeedback: "Found trending casts. Top trending: '{{response.casts.0.text}}' by {{response.casts.0.author.username}}",
			ErrorFeedback:   "Failed to get trending casts: {{response.message}}",
		},
		{
			Name:        "get_user_casts",
			Platform:    "farcaster",
			Description: "Get recent casts from a specific user. Use this to understand a user's activity and interests.",
			Args: []registry.Argument{
				{Name: "fid", Type: registry.ArgNumber, Description: "Farcaster ID of the user"},
			},
			HTTP: &registry.HTTPCall{
				Method:  "GET",
				URL:     api("user/casts"),
				Headers: headers,
				Query: map[string]string{
					"fid": "{{fid}}",
				},
			},
			SuccessFeedback: "Retrieved recent casts. Latest cast: '{{response.casts.0.text}}'",
			ErrorFeedback:   "Failed to get user's casts: {{response.message}}",
		},
		{
			Name:        "get_cast_reactions",
			Platform:    "farcaster",
			Description: "Get reactions (likes, recasts) for a specific cast. Use this to gauge a cast's impact.",
			Args: []registry.Argument{
				{Name: "cast_hash", Type: registry.ArgString, Description: "Hash of the cast to get reactions for"},
			},
			HTTP: &registry.HTTPCall{
				Method:  "GET",
				URL:     api("cast/{{cast_hash}}/reactions"),
				Headers: headers,
			},
			SuccessFeedback: "Cast has {{response.reactions.likes}} likes and {{response.reactions.recasts}} recasts",
			ErrorFeedback:   "Failed to get cast reactions: {{response.message}}",
		},
		{
			Name:        "search_casts",
			Platform:    "farcaster",
			Description: "Search for casts containing specific text or topics.",
			Args: []registry.Argument{
				{Name: "query", Type: registry.ArgString, Description: "Text to search for in casts"},
				{Name: "channel_name", Type: registry.ArgString, Optional: true, Description: "Optional: Filter search to a specific channel"},
			},
			HTTP: &registry.HTTPCall{
				Method:  "GET",
				URL:     api("cast/search"),
				Headers: headers,
				Query: map[string]string{
					"q":       "{{query}}",
					"channel": "{{channel_name}}",
				},
			},
			SuccessFeedback: "Found matching casts. Most relevant: '{{response.casts.0.text}}' by {{response.casts.0.author.username}}",
			ErrorFeedback:   "Failed to search casts: {{response.message}}",
		},
		{
			Name:        "search_users",
			Platform:    "farcaster",
			Description: "Search for Farcaster users by username or display name.",
			Args: []registry.Argument{
				{Name: "query", Type: registry.ArgString, Description: "Text to search for in usernames or display names"},
			},
			HTTP: &registry.HTTPCall{
				Method:  "GET",
				URL:     api("user/search"),
				Headers: headers,
				Query: map[string]string{
					"q": "{{query}}",
				},
			},
			SuccessFeedback: "Found matching users. Top match: {{response.users.0.username}} ({{response.users.0.display_name}})",
			ErrorFeedback:   "Failed to search users: {{response.message}}",
		},
	}
}
