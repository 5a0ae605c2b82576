// Package slack implements the Slack-facing transport: webhook
// handlers, Block Kit rendering and the Web API client.
package slack

// TextObject is a Block Kit text object.
type TextObject struct {
	Type  string `json:"type"` // plain_text or mrkdwn
	Text  string `json:"text"`
	Emoji bool   `json:"emoji,omitempty"`
}

// PlainText returns a plain_text object with emoji rendering enabled.
func PlainText(text string) *TextObject {
	return &TextObject{Type: "plain_text", Text: text, Emoji: true}
}

// Markdown returns an mrkdwn text object.
func Markdown(text string) *TextObject {
	return &TextObject{Type: "mrkdwn", Text: text}
}

// Block is a layout block. Only the fields used by this bot's views are
// modelled; the zero fields are omitted on the wire.
type Block struct {
	Type     string     `json:"type"`
	BlockID  string     `json:"block_id,omitempty"`
	Text     *TextObject `json:"text,omitempty"`
	Elements []Element  `json:"elements,omitempty"`
	Element  *Element   `json:"element,omitempty"`
	Label    *TextObject `json:"label,omitempty"`
	Hint     *TextObject `json:"hint,omitempty"`
	Optional bool       `json:"optional,omitempty"`
}

// Element is an interactive block element.
type Element struct {
	Type          string      `json:"type"` // button, plain_text_input, static_select
	ActionID      string      `json:"action_id,omitempty"`
	Text          *TextObject `json:"text,omitempty"`
	Value         string      `json:"value,omitempty"`
	Style         string      `json:"style,omitempty"`
	Confirm       *Confirm    `json:"confirm,omitempty"`
	InitialValue  string      `json:"initial_value,omitempty"`
	Multiline     bool        `json:"multiline,omitempty"`
	Placeholder   *TextObject `json:"placeholder,omitempty"`
	Options       []Option    `json:"options,omitempty"`
	InitialOption *Option     `json:"initial_option,omitempty"`
}

// Option is a static_select option.
type Option struct {
	Text  *TextObject `json:"text"`
	Value string      `json:"value"`
}

// Confirm is a confirmation dialog attached to a destructive button.
type Confirm struct {
	Title   *TextObject `json:"title"`
	Text    *TextObject `json:"text"`
	Confirm *TextObject `json:"confirm"`
	Deny    *TextObject `json:"deny"`
}

// View is a modal view payload.
type View struct {
	Type            string      `json:"type"`
	CallbackID      string      `json:"callback_id,omitempty"`
	Title           *TextObject `json:"title"`
	Submit          *TextObject `json:"submit,omitempty"`
	Close           *TextObject `json:"close,omitempty"`
	PrivateMetadata string      `json:"private_metadata,omitempty"`
	Blocks          []Block     `json:"blocks"`
}

// Message is a response_url or chat.postMessage payload.
type Message struct {
	ResponseType    string  `json:"response_type,omitempty"` // ephemeral or in_channel
	Text            string  `json:"text,omitempty"`
	Blocks          []Block `json:"blocks,omitempty"`
	ReplaceOriginal bool    `json:"replace_original,omitempty"`
}

// Block constructors.

func SectionBlock(md string) Block {
	return Block{Type: "section", Text: Markdown(md)}
}

func HeaderBlock(text string) Block {
	return Block{Type: "header", Text: PlainText(text)}
}

func DividerBlock() Block {
	return Block{Type: "divider"}
}

func ActionsBlock(blockID string, elements ...Element) Block {
	return Block{Type: "actions", BlockID: blockID, Elements: elements}
}

func InputBlock(blockID, label string, element Element) Block {
	return Block{Type: "input", BlockID: blockID, Label: PlainText(label), Element: &element}
}

// Button builds a button element.
func Button(actionID, label, value string) Element {
	return Element{Type: "button", ActionID: actionID, Text: PlainText(label), Value: value}
}

// ConfirmDialog builds a confirmation dialog.
func ConfirmDialog(title, text, confirm string) *Confirm {
	return &Confirm{
		Title:   PlainText(title),
		Text:    PlainText(text),
		Confirm: PlainText(confirm),
		Deny:    PlainText("Cancel"),
	}
}
