package messaging

// Message is one entry of a push request: either plain text or a card.
type Message struct {
	Type     string      `json:"type"`
	Text     string      `json:"text,omitempty"`
	AltText  string      `json:"altText,omitempty"`
	Contents interface{} `json:"contents,omitempty"`
}

func NewText(text string) Message {
	return Message{Type: "text", Text: text}
}

type Field struct {
	Label string
	Value string
}

// Card is a summary with labelled rows and an optional link button.
type Card struct {
	Title       string
	Fields      []Field
	Footnote    string
	ButtonLabel string
	ButtonURL   string
}

// NewCard renders the card as a flex bubble. altText is what notification
// previews and clients without card support display.
func NewCard(altText string, card Card) Message {
	body := []map[string]interface{}{
		{"type": "text", "text": card.Title, "weight": "bold", "size": "lg", "wrap": true},
		{"type": "separator", "margin": "md"},
	}
	for _, f := range card.Fields {
		body = append(body, map[string]interface{}{
			"type":   "box",
			"layout": "baseline",
			"margin": "sm",
			"contents": []map[string]interface{}{
				{"type": "text", "text": f.Label, "color": "#888888", "size": "sm", "flex": 2},
				{"type": "text", "text": f.Value, "size": "sm", "flex": 5, "wrap": true},
			},
		})
	}
	if card.Footnote != "" {
		body = append(body, map[string]interface{}{
			"type": "text", "text": card.Footnote, "size": "xs", "color": "#aa3333", "margin": "md", "wrap": true,
		})
	}

	bubble := map[string]interface{}{
		"type": "bubble",
		"body": map[string]interface{}{"type": "box", "layout": "vertical", "contents": body},
	}
	if card.ButtonURL != "" {
		bubble["footer"] = map[string]interface{}{
			"type":   "box",
			"layout": "vertical",
			"contents": []map[string]interface{}{{
				"type":   "button",
				"style":  "primary",
				"action": map[string]interface{}{"type": "uri", "label": card.ButtonLabel, "uri": card.ButtonURL},
			}},
		}
	}

	return Message{Type: "flex", AltText: altText, Contents: bubble}
}
