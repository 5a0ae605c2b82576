package slack

import (
	"encoding/json"
	"fmt"

	"github.com/cedadev/ceda-status-bot/internal/board"
	"github.com/cedadev/ceda-status-bot/internal/domain"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Modal callback ids.
const (
	CallbackServiceList   = "service_list"
	CallbackServiceEditor = "service_editor"
	CallbackUpdateEditor  = "update_editor"
)

// Action ids. Ids are fixed; the target (service id or update index)
// travels in the button value.
const (
	ActionAddService    = "svc_add"
	ActionEditService   = "svc_edit"
	ActionDeleteService = "svc_delete"
	ActionRefreshList   = "refresh_list"
	ActionBackToList    = "back_to_list"
	ActionAddUpdate     = "upd_add"
	ActionEditUpdate    = "upd_edit"
	ActionDeleteUpdate  = "upd_delete"
)

// Input block and action ids used by the editor forms.
const (
	blockServiceName   = "svc_name"
	blockServiceStatus = "svc_status"
	blockUpdateDate    = "upd_date"
	blockUpdateStatus  = "upd_status"
	blockUpdateDetails = "upd_details"
	blockUpdateURL     = "upd_url"

	actionNameInput    = "name_input"
	actionStatusSelect = "status_select"
	actionDateInput    = "date_input"
	actionDetailsInput = "details_input"
	actionURLInput     = "url_input"
)

// viewMeta is the session state carried in a modal's private_metadata.
// Revision pins the dataset version the view was rendered from; commits
// made from the view are conditioned on it.
type viewMeta struct {
	ServiceID   string `json:"service_id,omitempty"`
	UpdateIndex int    `json:"update_index"`
	Revision    string `json:"revision"`
}

func (m viewMeta) encode() string {
	raw, _ := json.Marshal(m)
	return string(raw)
}

func decodeMeta(s string) (viewMeta, error) {
	var m viewMeta
	if err := json.Unmarshal([]byte(s), &m); err != nil {
		return viewMeta{}, fmt.Errorf("decode view metadata: %w", err)
	}
	return m, nil
}

var titleCaser = cases.Title(language.English)

// StatusLabel returns the human-readable form of a status.
func StatusLabel(s domain.Status) string {
	return titleCaser.String(string(s))
}

// StatusMessage renders the read-only status board as message blocks.
func StatusMessage(ds *domain.Dataset) *Message {
	if len(ds.Services) == 0 {
		return &Message{
			ResponseType: "ephemeral",
			Text:         "No status information available.",
		}
	}

	blocks := make([]Block, 0, len(ds.Services))
	for _, svc := range ds.Services {
		line := fmt.Sprintf("%s *%s* is *%s*", svc.Status.Emoji(), svc.Name, StatusLabel(svc.Status))
		if upd, ok := svc.LatestUpdate(); ok {
			line += fmt.Sprintf(" as of 🗓️ %s 💬 %s", board.FormatTime(upd.Date), upd.Details)
		}
		blocks = append(blocks, SectionBlock(line))
	}

	return &Message{
		ResponseType: "ephemeral",
		Text:         "CEDA service status",
		Blocks:       blocks,
	}
}

// ServiceListView renders the management modal enumerating all services
// with inline edit and delete actions. An optional notice is shown at
// the top, used for conflict and error prompts.
func ServiceListView(ds *domain.Dataset, notice string) *View {
	blocks := []Block{
		HeaderBlock("CEDA Services Status Management"),
		SectionBlock("*Manage services and their status information:*"),
	}

	if notice != "" {
		blocks = append(blocks, SectionBlock(notice))
	}

	blocks = append(blocks, DividerBlock())

	for i, svc := range ds.Services {
		blocks = append(blocks,
			SectionBlock(fmt.Sprintf("%s *%s* - %s", svc.Status.Emoji(), svc.Name, StatusLabel(svc.Status))),
			ActionsBlock(fmt.Sprintf("svc_actions_%d", i),
				styled(Button(ActionEditService, "✏️ Edit", svc.ID), "primary"),
				withConfirm(
					styled(Button(ActionDeleteService, "🗑️ Delete", svc.ID), "danger"),
					ConfirmDialog("Delete this service?",
						fmt.Sprintf("This will remove the service '%s' and all its updates.", svc.Name),
						"Yes, delete"),
				),
			),
			DividerBlock(),
		)
	}

	blocks = append(blocks, ActionsBlock("list_actions",
		styled(Button(ActionAddService, "➕ Add New Service", "add"), "primary"),
		Button(ActionRefreshList, "🔄 Refresh", "refresh"),
	))

	return &View{
		Type:            "modal",
		CallbackID:      CallbackServiceList,
		Title:           PlainText("CEDA Services"),
		Close:           PlainText("Close"),
		PrivateMetadata: viewMeta{Revision: ds.Revision, UpdateIndex: -1}.encode(),
		Blocks:          blocks,
	}
}

// ServiceEditorView renders the editor modal for one service: name and
// status fields plus the list of updates with inline actions.
func ServiceEditorView(svc *domain.Service, isNew bool, revision, notice string) *View {
	title := "Edit Service"
	submit := "Save Changes"
	header := fmt.Sprintf("Edit %s", svc.Name)
	if isNew {
		title = "Add New Service"
		submit = "Create Service"
		header = "Add New Service"
	}

	blocks := []Block{
		HeaderBlock(header),
		DividerBlock(),
	}

	if notice != "" {
		blocks = append(blocks, SectionBlock(notice))
	}

	blocks = append(blocks,
		ActionsBlock("nav_actions",
			withConfirm(Button(ActionBackToList, "← Back to Service List", "back"),
				ConfirmDialog("Exit page?", "Unsaved name or status edits will be lost. Continue?", "Yes, exit")),
		),
		InputBlock(blockServiceName, "Service Name", Element{
			Type:         "plain_text_input",
			ActionID:     actionNameInput,
			InitialValue: svc.Name,
		}),
		InputBlock(blockServiceStatus, "Status", statusSelect(svc.Status)),
		HeaderBlock("📝 Updates"),
	)

	if len(svc.Updates) == 0 {
		blocks = append(blocks, SectionBlock("No updates for this service yet."))
	}

	for i, upd := range svc.Updates {
		line := fmt.Sprintf("*Update #%d* %s %s - 🗓️ %s\n%s",
			i+1, upd.Status.Emoji(), StatusLabel(upd.Status), board.FormatTime(upd.Date), upd.Details)
		if upd.URL != "" {
			line += fmt.Sprintf("\n🔗 %s", upd.URL)
		}
		blocks = append(blocks,
			SectionBlock(line),
			ActionsBlock(fmt.Sprintf("upd_actions_%d", i),
				Button(ActionEditUpdate, "✏️ Edit Update", fmt.Sprintf("%d", i)),
				withConfirm(
					styled(Button(ActionDeleteUpdate, "🗑️ Delete Update", fmt.Sprintf("%d", i)), "danger"),
					ConfirmDialog("Delete this update?", "This will remove this update from the service.", "Yes, delete"),
				),
			),
		)
	}

	if !isNew {
		blocks = append(blocks, ActionsBlock("editor_actions",
			Button(ActionAddUpdate, "Add New Update", svc.ID),
		))
	}

	return &View{
		Type:       "modal",
		CallbackID: CallbackServiceEditor,
		Title:      PlainText(title),
		Submit:     PlainText(submit),
		Close:      PlainText("Cancel"),
		PrivateMetadata: viewMeta{
			ServiceID:   svc.ID,
			UpdateIndex: -1,
			Revision:    revision,
		}.encode(),
		Blocks: blocks,
	}
}

// UpdateEditorView renders the form for adding or editing one status
// update. A nil update renders an empty add form.
func UpdateEditorView(serviceID string, index int, upd *domain.StatusUpdate, revision string) *View {
	title := "Add Update"
	submit := "Add"
	initial := domain.StatusUpdate{Status: domain.StatusResolved}
	if upd != nil {
		title = "Edit Update"
		submit = "Save"
		initial = *upd
	}

	dateValue := ""
	if !initial.Date.IsZero() {
		dateValue = board.FormatTime(initial.Date)
	}

	blocks := []Block{
		InputBlock(blockUpdateDate, "Date and Time", Element{
			Type:         "plain_text_input",
			ActionID:     actionDateInput,
			InitialValue: dateValue,
			Placeholder:  PlainText("Example: 2024-05-20T14:30"),
		}),
		InputBlock(blockUpdateStatus, "Status", statusSelect(initial.Status)),
		InputBlock(blockUpdateDetails, "Details", Element{
			Type:         "plain_text_input",
			ActionID:     actionDetailsInput,
			InitialValue: initial.Details,
			Multiline:    true,
		}),
	}
	blocks[0].Hint = PlainText("Use ISO format: YYYY-MM-DDThh:mm")

	urlBlock := InputBlock(blockUpdateURL, "URL", Element{
		Type:         "plain_text_input",
		ActionID:     actionURLInput,
		InitialValue: initial.URL,
		Placeholder:  PlainText("Example: https://example.com"),
	})
	urlBlock.Optional = true
	urlBlock.Hint = PlainText("Optional link to more information")
	blocks = append(blocks, urlBlock)

	return &View{
		Type:       "modal",
		CallbackID: CallbackUpdateEditor,
		Title:      PlainText(title),
		Submit:     PlainText(submit),
		Close:      PlainText("Cancel"),
		PrivateMetadata: viewMeta{
			ServiceID:   serviceID,
			UpdateIndex: index,
			Revision:    revision,
		}.encode(),
		Blocks: blocks,
	}
}

// conflictNotice is the retry prompt shown when a concurrent write is
// detected. The dataset shown alongside it is the freshly fetched state.
const conflictNotice = "⚠️ *The status data changed while you were editing.* " +
	"Your change was not saved. The latest data is shown below - please retry."

func statusSelect(current domain.Status) Element {
	options := make([]Option, 0, 4)
	for _, s := range domain.AllStatuses() {
		options = append(options, Option{Text: PlainText(StatusLabel(s)), Value: string(s)})
	}

	el := Element{
		Type:     "static_select",
		ActionID: actionStatusSelect,
		Options:  options,
	}
	if current.IsValid() {
		el.InitialOption = &Option{Text: PlainText(StatusLabel(current)), Value: string(current)}
	}
	return el
}

func styled(el Element, style string) Element {
	el.Style = style
	return el
}

func withConfirm(el Element, confirm *Confirm) Element {
	el.Confirm = confirm
	return el
}
