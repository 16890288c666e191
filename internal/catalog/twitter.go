package catalog

import (
	"fmt"

	"pulse/internal/registry"
)

// Twitter builds the default Twitter/X function set against the v2 API with
// a user-context bearer token.
func Twitter(bearerToken string) []*registry.FunctionSpec {
	headers := map[string]string{
		"Content-Type":  "application/json",
		"Authorization": fmt.Sprintf("Bearer %s", bearerToken),
	}

	return []*registry.FunctionSpec{
		{
			Name:        "post_tweet",
			Platform:    "twitter",
			Description: "Post a new tweet. Content should fit the persona's voice and stay within the platform length limit.",
			Args: []registry.Argument{
				{Name: "text", Type: registry.ArgString, Description: "Tweet text to post."},
			},
			HTTP: &registry.HTTPCall{
				Method:  "POST",
				URL:     "https://api.twitter.com/2/tweets",
				Headers: headers,
				Payload: map[string]any{"text": "{{text}}"},
			},
			SuccessFeedback: "Tweet posted successfully. Tweet ID: {{response.data.id}}",
			ErrorFeedback:   "Failed to post tweet: {{response.detail}}",
		},
		{
			Name:        "reply_tweet",
			Platform:    "twitter",
			Description: "Reply to an existing tweet. Keep the reply on-topic and conversational.",
			Args: []registry.Argument{
				{Name: "tweet_id", Type: registry.ArgString, Description: "ID of the tweet being replied to."},
				{Name: "text", Type: registry.ArgString, Description: "Reply text."},
			},
			HTTP: &registry.HTTPCall{
				Method:  "POST",
				URL:     "https://api.twitter.com/2/tweets",
				Headers: headers,
				Payload: map[string]any{
					"text": "{{text}}",
					"reply": map[string]any{
						"in_reply_to_tweet_id": "{{tweet_id}}",
					},
				},
			},
			SuccessFeedback: "Reply posted successfully. Tweet ID: {{response.data.id}}",
			ErrorFeedback:   "Failed to reply: {{response.detail}}",
		},
		{
			Name:        "like_tweet",
			Platform:    "twitter",
			Description: "Like a tweet to signal agreement or appreciation.",
			Args: []registry.Argument{
				{Name: "user_id", Type: registry.ArgString, Description: "Authenticated user's ID performing the like."},
				{Name: "tweet_id", Type: registry.ArgString, Description: "ID of the tweet to like."},
			},
			HTTP: &registry.HTTPCall{
				Method:  "POST",
				URL:     "https://api.twitter.com/2/users/{{user_id}}/likes",
				Headers: headers,
				Payload: map[string]any{"tweet_id": "{{tweet_id}}"},
			},
			SuccessFeedback: "Tweet liked successfully.",
			ErrorFeedback:   "Failed to like tweet: {{response.detail}}",
		},
		{
			Name:        "quote_tweet",
			Platform:    "twitter",
			Description: "Quote a tweet with added commentary. Use when the commentary adds context or a distinct viewpoint.",
			Args: []registry.Argument{
				{Name: "tweet_id", Type: registry.ArgString, Description: "ID of the tweet to quote."},
				{Name: "text", Type: registry.ArgString, Description: "Commentary to attach to the quoted tweet."},
			},
			HTTP: &registry.HTTPCall{
				Method:  "POST",
				URL:     "https://api.twitter.com/2/tweets",
				Headers: headers,
				Payload: map[string]any{
					"text":           "{{text}}",
					"quote_tweet_id": "{{tweet_id}}",
				},
			},
			SuccessFeedback: "Quote tweet posted successfully. Tweet ID: {{response.data.id}}",
			ErrorFeedback:   "Failed to quote tweet: {{response.detail}}",
		},
	}
}
