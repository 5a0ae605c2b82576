package slack

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/cedadev/ceda-status-bot/internal/board"
	"github.com/cedadev/ceda-status-bot/internal/domain"
	"github.com/cedadev/ceda-status-bot/internal/pkg/ctxlog"
	"github.com/cedadev/ceda-status-bot/internal/pkg/httputil"
	"github.com/cedadev/ceda-status-bot/internal/pkg/metrics"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
)

// Slash commands handled by the bot.
const (
	CommandStatus = "/ceda-status"
	CommandEdit   = "/ceda-status-edit"
)

// followUpTimeout bounds the deferred work started after a webhook has
// been acknowledged.
const followUpTimeout = 30 * time.Second

// User-facing notices for the error taxonomy. Store and parse failures
// never leave a session silently unacknowledged.
const (
	unauthorizedNotice = "⛔ You are not authorised to edit CEDA service status. " +
		"Please contact an administrator if you need access."
	storeErrorNotice = "❌ Could not reach the status store. " +
		"Your change was not applied - please try again later."
	parseErrorNotice = "❌ The stored status data is malformed and cannot be edited. " +
		"Please contact an operator."
	goneNotice = "⚠️ That service no longer exists. The latest data is shown below."
)

// Handler routes Slack slash commands and interaction payloads. Each
// request is acknowledged within Slack's response budget; store access
// happens in deferred follow-ups.
type Handler struct {
	board      *board.Service
	client     *Client
	authorized map[string]struct{}
	validate   *validator.Validate

	wg sync.WaitGroup
}

// NewHandler creates a new Slack webhook handler.
func NewHandler(boardService *board.Service, client *Client, authorizedUsers []string) *Handler {
	authorized := make(map[string]struct{}, len(authorizedUsers))
	for _, id := range authorizedUsers {
		authorized[id] = struct{}{}
	}
	return &Handler{
		board:      boardService,
		client:     client,
		authorized: authorized,
		validate:   validator.New(),
	}
}

// RegisterRoutes registers the webhook endpoints.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/slack/commands", h.HandleCommand)
	r.Post("/slack/interactions", h.HandleInteraction)
}

// Wait blocks until all deferred follow-ups have finished. Used during
// graceful shutdown and by tests.
func (h *Handler) Wait() {
	h.wg.Wait()
}

// async runs fn after the request has been acknowledged, carrying the
// request-scoped logger into a detached context.
func (h *Handler) async(r *http.Request, fn func(ctx context.Context)) {
	logger := ctxlog.FromContext(r.Context())
	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), followUpTimeout)
		defer cancel()
		fn(ctxlog.WithLogger(ctx, logger))
	}()
}

// HandleCommand handles the slash command webhook.
func (h *Handler) HandleCommand(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		httputil.Text(w, http.StatusBadRequest, "invalid form payload")
		return
	}

	command := r.PostFormValue("command")
	userID := r.PostFormValue("user_id")
	triggerID := r.PostFormValue("trigger_id")
	responseURL := r.PostFormValue("response_url")

	switch command {
	case CommandStatus:
		metrics.SlashCommandsTotal.WithLabelValues(command, "ok").Inc()
		h.async(r, func(ctx context.Context) {
			h.postStatus(ctx, responseURL)
		})
		w.WriteHeader(http.StatusOK)

	case CommandEdit:
		if userID == "" {
			metrics.SlashCommandsTotal.WithLabelValues(command, "error").Inc()
			httputil.JSON(w, http.StatusOK, &Message{
				ResponseType: "ephemeral",
				Text:         "⚠️ Could not identify your user ID. Please try again.",
			})
			return
		}
		if !h.isAuthorized(userID) {
			ctxlog.FromContext(r.Context()).Warn("unauthorised edit attempt", "user_id", userID)
			metrics.SlashCommandsTotal.WithLabelValues(command, "unauthorized").Inc()
			httputil.JSON(w, http.StatusOK, &Message{
				ResponseType: "ephemeral",
				Text:         unauthorizedNotice,
			})
			return
		}

		metrics.SlashCommandsTotal.WithLabelValues(command, "ok").Inc()
		h.async(r, func(ctx context.Context) {
			h.openEditModal(ctx, triggerID, responseURL)
		})
		w.WriteHeader(http.StatusOK)

	default:
		metrics.SlashCommandsTotal.WithLabelValues("unknown", "error").Inc()
		httputil.JSON(w, http.StatusOK, &Message{
			ResponseType: "ephemeral",
			Text:         "Unknown command.",
		})
	}
}

func (h *Handler) isAuthorized(userID string) bool {
	_, ok := h.authorized[userID]
	return ok
}

// postStatus fetches the dataset and posts the read-only board to the
// command's response_url.
func (h *Handler) postStatus(ctx context.Context, responseURL string) {
	ds, err := h.board.Snapshot(ctx)
	if err != nil {
		h.respond(ctx, responseURL, &Message{
			ResponseType: "ephemeral",
			Text:         h.noticeFor(ctx, err),
		})
		return
	}
	h.respond(ctx, responseURL, StatusMessage(ds))
}

// openEditModal fetches the dataset and opens the management modal.
func (h *Handler) openEditModal(ctx context.Context, triggerID, responseURL string) {
	ds, err := h.board.Snapshot(ctx)
	if err != nil {
		h.respond(ctx, responseURL, &Message{
			ResponseType: "ephemeral",
			Text:         h.noticeFor(ctx, err),
		})
		return
	}

	if err := h.client.ViewsOpen(ctx, triggerID, ServiceListView(ds, "")); err != nil {
		ctxlog.FromContext(ctx).Error("open management modal failed", "error", err)
		h.respond(ctx, responseURL, &Message{
			ResponseType: "ephemeral",
			Text:         "❌ Could not open the management view. Please try again.",
		})
	}
}

// interactionPayload is the subset of Slack's interaction payload the
// bot consumes.
type interactionPayload struct {
	Type      string `json:"type"`
	TriggerID string `json:"trigger_id"`
	User      struct {
		ID string `json:"id"`
	} `json:"user"`
	Container struct {
		ViewID string `json:"view_id"`
	} `json:"container"`
	View struct {
		ID              string    `json:"id"`
		RootViewID      string    `json:"root_view_id"`
		CallbackID      string    `json:"callback_id"`
		PrivateMetadata string    `json:"private_metadata"`
		State           viewState `json:"state"`
	} `json:"view"`
	Actions []struct {
		ActionID string `json:"action_id"`
		Value    string `json:"value"`
	} `json:"actions"`
}

// viewState holds the submitted values of a view's input blocks.
type viewState struct {
	Values map[string]map[string]stateValue `json:"values"`
}

type stateValue struct {
	Value          string `json:"value"`
	SelectedOption *struct {
		Value string `json:"value"`
	} `json:"selected_option"`
}

func (s viewState) get(blockID, actionID string) string {
	block, ok := s.Values[blockID]
	if !ok {
		return ""
	}
	v, ok := block[actionID]
	if !ok {
		return ""
	}
	if v.SelectedOption != nil {
		return v.SelectedOption.Value
	}
	return v.Value
}

// HandleInteraction handles the interactivity webhook: button clicks
// within the management modal and modal submissions.
func (h *Handler) HandleInteraction(w http.ResponseWriter, r *http.Request) {
	var p interactionPayload
	if err := json.Unmarshal([]byte(r.PostFormValue("payload")), &p); err != nil {
		httputil.Text(w, http.StatusBadRequest, "invalid interaction payload")
		return
	}

	// All interactions originate from the edit UI, so the allowlist
	// applies to every payload. Fail closed.
	if !h.isAuthorized(p.User.ID) {
		ctxlog.FromContext(r.Context()).Warn("unauthorised interaction", "user_id", p.User.ID)
		metrics.InteractionsTotal.WithLabelValues("any", "unauthorized").Inc()
		w.WriteHeader(http.StatusOK)
		return
	}

	switch p.Type {
	case "block_actions":
		h.handleBlockAction(w, r, p)
	case "view_submission":
		h.handleSubmission(w, r, p)
	default:
		w.WriteHeader(http.StatusOK)
	}
}

func (h *Handler) handleBlockAction(w http.ResponseWriter, r *http.Request, p interactionPayload) {
	if len(p.Actions) == 0 {
		w.WriteHeader(http.StatusOK)
		return
	}
	action := p.Actions[0]
	meta, err := decodeMeta(p.View.PrivateMetadata)
	if err != nil {
		ctxlog.FromContext(r.Context()).Error("invalid view metadata", "error", err)
		w.WriteHeader(http.StatusOK)
		return
	}

	metrics.InteractionsTotal.WithLabelValues(action.ActionID, "ok").Inc()
	viewID := p.Container.ViewID
	userID := p.User.ID

	switch action.ActionID {
	case ActionRefreshList, ActionBackToList:
		h.async(r, func(ctx context.Context) {
			h.showList(ctx, viewID, "")
		})

	case ActionAddService:
		h.async(r, func(ctx context.Context) {
			empty := &domain.Service{Status: domain.StatusResolved}
			h.updateView(ctx, viewID, ServiceEditorView(empty, true, meta.Revision, ""))
		})

	case ActionEditService:
		serviceID := action.Value
		h.async(r, func(ctx context.Context) {
			ds, err := h.board.Snapshot(ctx)
			if err != nil {
				h.updateView(ctx, viewID, errorView(h.noticeFor(ctx, err)))
				return
			}
			i := ds.FindService(serviceID)
			if i < 0 {
				h.updateView(ctx, viewID, ServiceListView(ds, goneNotice))
				return
			}
			h.updateView(ctx, viewID, ServiceEditorView(&ds.Services[i], false, ds.Revision, ""))
		})

	case ActionDeleteService:
		serviceID := action.Value
		h.async(r, func(ctx context.Context) {
			h.commitToList(ctx, viewID, meta, userID, func(ds *domain.Dataset, author string) (*domain.Dataset, error) {
				return h.board.DeleteService(ctx, ds, serviceID, author)
			})
		})

	case ActionAddUpdate:
		triggerID := p.TriggerID
		h.async(r, func(ctx context.Context) {
			view := UpdateEditorView(meta.ServiceID, -1, nil, meta.Revision)
			if err := h.client.ViewsPush(ctx, triggerID, view); err != nil {
				ctxlog.FromContext(ctx).Error("push update editor failed", "error", err)
			}
		})

	case ActionEditUpdate:
		index, convErr := strconv.Atoi(action.Value)
		triggerID := p.TriggerID
		if convErr != nil {
			break
		}
		h.async(r, func(ctx context.Context) {
			ds, err := h.board.Snapshot(ctx)
			if err != nil {
				h.updateView(ctx, viewID, errorView(h.noticeFor(ctx, err)))
				return
			}
			i := ds.FindService(meta.ServiceID)
			if i < 0 {
				h.updateView(ctx, viewID, ServiceListView(ds, goneNotice))
				return
			}
			svc := &ds.Services[i]
			if index < 0 || index >= len(svc.Updates) {
				h.updateView(ctx, viewID, ServiceEditorView(svc, false, ds.Revision, "⚠️ That update no longer exists."))
				return
			}
			view := UpdateEditorView(meta.ServiceID, index, &svc.Updates[index], ds.Revision)
			if err := h.client.ViewsPush(ctx, triggerID, view); err != nil {
				ctxlog.FromContext(ctx).Error("push update editor failed", "error", err)
			}
		})

	case ActionDeleteUpdate:
		index, convErr := strconv.Atoi(action.Value)
		if convErr != nil {
			break
		}
		h.async(r, func(ctx context.Context) {
			h.commitToEditor(ctx, viewID, meta, userID, func(ds *domain.Dataset, author string) (*domain.Dataset, error) {
				return h.board.DeleteUpdate(ctx, ds, meta.ServiceID, index, author)
			})
		})

	default:
		ctxlog.FromContext(r.Context()).Warn("unhandled action", "action_id", action.ActionID)
	}

	w.WriteHeader(http.StatusOK)
}

// serviceForm is the validated service editor submission.
type serviceForm struct {
	Name   string `validate:"required,max=255"`
	Status string `validate:"required"`
}

// updateForm is the validated update editor submission.
type updateForm struct {
	Date    string `validate:"required"`
	Status  string `validate:"required"`
	Details string `validate:"required,max=3000"`
	URL     string `validate:"omitempty,url,startswith=http"`
}

func (h *Handler) handleSubmission(w http.ResponseWriter, r *http.Request, p interactionPayload) {
	meta, err := decodeMeta(p.View.PrivateMetadata)
	if err != nil {
		ctxlog.FromContext(r.Context()).Error("invalid view metadata", "error", err)
		w.WriteHeader(http.StatusOK)
		return
	}

	metrics.InteractionsTotal.WithLabelValues(p.View.CallbackID, "ok").Inc()

	switch p.View.CallbackID {
	case CallbackServiceEditor:
		h.handleServiceSubmission(w, r, p, meta)
	case CallbackUpdateEditor:
		h.handleUpdateSubmission(w, r, p, meta)
	default:
		w.WriteHeader(http.StatusOK)
	}
}

// handleServiceSubmission saves the service editor form. Validation is
// synchronous; the commit happens after the modal is acknowledged, with
// the outcome delivered as a direct message.
func (h *Handler) handleServiceSubmission(w http.ResponseWriter, r *http.Request, p interactionPayload, meta viewMeta) {
	form := serviceForm{
		Name:   p.View.State.get(blockServiceName, actionNameInput),
		Status: p.View.State.get(blockServiceStatus, actionStatusSelect),
	}

	formErrors := map[string]string{}
	if err := h.validate.Struct(form); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			for _, fe := range verrs {
				if fe.Field() == "Name" {
					formErrors[blockServiceName] = "Service name cannot be empty"
				} else {
					formErrors[blockServiceStatus] = "Choose a status"
				}
			}
		}
	}
	status := domain.Status(form.Status)
	if form.Status != "" && !status.IsValid() {
		formErrors[blockServiceStatus] = "Choose a status"
	}
	if len(formErrors) > 0 {
		submissionErrors(w, formErrors)
		return
	}

	userID := p.User.ID
	h.async(r, func(ctx context.Context) {
		author := h.client.UserRealName(ctx, userID)

		ds, err := h.board.Snapshot(ctx)
		if err != nil {
			h.directMessage(ctx, userID, h.noticeFor(ctx, err))
			return
		}
		if ds.Revision != meta.Revision {
			h.directMessage(ctx, userID, "⚠️ The status data changed while you were editing. "+
				"Your change was not saved - run `"+CommandEdit+"` to review and retry.")
			return
		}

		if meta.ServiceID == "" {
			_, id, err := h.board.AddService(ctx, ds, form.Name, status, nil, author)
			if err != nil {
				h.directMessage(ctx, userID, h.noticeFor(ctx, err))
				return
			}
			h.directMessage(ctx, userID, "✅ Service '"+form.Name+"' created ("+id+"). "+
				"Run `"+CommandEdit+"` to add status updates.")
			return
		}

		if _, err := h.board.EditService(ctx, ds, meta.ServiceID, form.Name, status, author); err != nil {
			h.directMessage(ctx, userID, h.noticeFor(ctx, err))
			return
		}
		h.directMessage(ctx, userID, "✅ Service '"+form.Name+"' updated.")
	})

	w.WriteHeader(http.StatusOK)
}

// handleUpdateSubmission saves the update editor form. The submitted
// view pops on acknowledgment; the editor underneath is refreshed once
// the commit completes.
func (h *Handler) handleUpdateSubmission(w http.ResponseWriter, r *http.Request, p interactionPayload, meta viewMeta) {
	form := updateForm{
		Date:    p.View.State.get(blockUpdateDate, actionDateInput),
		Status:  p.View.State.get(blockUpdateStatus, actionStatusSelect),
		Details: p.View.State.get(blockUpdateDetails, actionDetailsInput),
		URL:     p.View.State.get(blockUpdateURL, actionURLInput),
	}

	formErrors := map[string]string{}
	if err := h.validate.Struct(form); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			for _, fe := range verrs {
				switch fe.Field() {
				case "Date":
					formErrors[blockUpdateDate] = "Date must be in format YYYY-MM-DDThh:mm (e.g. 2024-05-20T14:30)"
				case "Status":
					formErrors[blockUpdateStatus] = "Choose a status"
				case "Details":
					formErrors[blockUpdateDetails] = "Details cannot be empty"
				case "URL":
					formErrors[blockUpdateURL] = "Please enter a valid URL starting with http:// or https://"
				}
			}
		}
	}

	ts, err := board.ParseTime(form.Date)
	if form.Date != "" && err != nil {
		formErrors[blockUpdateDate] = "Date must be in format YYYY-MM-DDThh:mm (e.g. 2024-05-20T14:30)"
	}
	status := domain.Status(form.Status)
	if form.Status != "" && !status.IsValid() {
		formErrors[blockUpdateStatus] = "Choose a status"
	}
	if len(formErrors) > 0 {
		submissionErrors(w, formErrors)
		return
	}

	upd := domain.StatusUpdate{
		Date:    ts,
		Status:  status,
		Details: form.Details,
		URL:     form.URL,
	}

	rootViewID := p.View.RootViewID
	userID := p.User.ID
	h.async(r, func(ctx context.Context) {
		h.commitToEditor(ctx, rootViewID, meta, userID, func(ds *domain.Dataset, author string) (*domain.Dataset, error) {
			if meta.UpdateIndex < 0 {
				return h.board.AddUpdate(ctx, ds, meta.ServiceID, upd, author)
			}
			return h.board.EditUpdate(ctx, ds, meta.ServiceID, meta.UpdateIndex, upd, author)
		})
	})

	w.WriteHeader(http.StatusOK)
}

// commitToList applies an edit pinned at meta.Revision and redraws the
// service list modal with the outcome.
func (h *Handler) commitToList(ctx context.Context, viewID string, meta viewMeta, userID string, op func(*domain.Dataset, string) (*domain.Dataset, error)) {
	next, err := h.commit(ctx, meta, userID, op)
	switch {
	case err == nil:
		h.updateView(ctx, viewID, ServiceListView(next, ""))
	case errors.Is(err, board.ErrConflict):
		h.updateView(ctx, viewID, ServiceListView(next, conflictNotice))
	case errors.Is(err, domain.ErrServiceNotFound), errors.Is(err, domain.ErrUpdateNotFound):
		h.showList(ctx, viewID, goneNotice)
	default:
		h.showList(ctx, viewID, h.noticeFor(ctx, err))
	}
}

// commitToEditor applies an edit pinned at meta.Revision and redraws
// the service editor modal with the outcome.
func (h *Handler) commitToEditor(ctx context.Context, viewID string, meta viewMeta, userID string, op func(*domain.Dataset, string) (*domain.Dataset, error)) {
	next, err := h.commit(ctx, meta, userID, op)
	switch {
	case err == nil:
		h.showEditor(ctx, viewID, next, meta.ServiceID, "")
	case errors.Is(err, board.ErrConflict):
		h.showEditor(ctx, viewID, next, meta.ServiceID, conflictNotice)
	case errors.Is(err, domain.ErrServiceNotFound):
		h.showList(ctx, viewID, goneNotice)
	case errors.Is(err, domain.ErrUpdateNotFound):
		h.refreshEditor(ctx, viewID, meta.ServiceID, "⚠️ That update no longer exists.")
	default:
		h.refreshEditor(ctx, viewID, meta.ServiceID, h.noticeFor(ctx, err))
	}
}

// commit fetches fresh state, verifies the session's pinned revision is
// still current, applies the edit and commits it. A moved revision is
// reported as a conflict together with the latest dataset; the stale
// edit is never applied over it.
func (h *Handler) commit(ctx context.Context, meta viewMeta, userID string, op func(*domain.Dataset, string) (*domain.Dataset, error)) (*domain.Dataset, error) {
	ds, err := h.board.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	if ds.Revision != meta.Revision {
		return ds, board.ErrConflict
	}

	author := h.client.UserRealName(ctx, userID)
	return op(ds, author)
}

// showList fetches the latest dataset and redraws the list modal.
func (h *Handler) showList(ctx context.Context, viewID, notice string) {
	ds, err := h.board.Snapshot(ctx)
	if err != nil {
		h.updateView(ctx, viewID, errorView(h.noticeFor(ctx, err)))
		return
	}
	h.updateView(ctx, viewID, ServiceListView(ds, notice))
}

// refreshEditor fetches the latest dataset and redraws the editor for
// the given service, falling back to the list when it is gone.
func (h *Handler) refreshEditor(ctx context.Context, viewID, serviceID, notice string) {
	ds, err := h.board.Snapshot(ctx)
	if err != nil {
		h.updateView(ctx, viewID, errorView(h.noticeFor(ctx, err)))
		return
	}
	h.showEditor(ctx, viewID, ds, serviceID, notice)
}

func (h *Handler) showEditor(ctx context.Context, viewID string, ds *domain.Dataset, serviceID, notice string) {
	i := ds.FindService(serviceID)
	if i < 0 {
		h.updateView(ctx, viewID, ServiceListView(ds, goneNotice))
		return
	}
	h.updateView(ctx, viewID, ServiceEditorView(&ds.Services[i], false, ds.Revision, notice))
}

func (h *Handler) updateView(ctx context.Context, viewID string, view *View) {
	if err := h.client.ViewsUpdate(ctx, viewID, view); err != nil {
		ctxlog.FromContext(ctx).Error("update view failed", "view_id", viewID, "error", err)
	}
}

func (h *Handler) respond(ctx context.Context, responseURL string, msg *Message) {
	if err := h.client.Respond(ctx, responseURL, msg); err != nil {
		ctxlog.FromContext(ctx).Error("post follow-up failed", "error", err)
	}
}

func (h *Handler) directMessage(ctx context.Context, userID, text string) {
	if err := h.client.PostMessage(ctx, userID, text, nil); err != nil {
		ctxlog.FromContext(ctx).Error("post direct message failed", "user_id", userID, "error", err)
	}
}

// noticeFor converts a board or store error into a user-visible notice
// per the error taxonomy. Parse errors are logged for operator attention.
func (h *Handler) noticeFor(ctx context.Context, err error) string {
	var parseErr *board.ParseError
	switch {
	case errors.As(err, &parseErr):
		ctxlog.FromContext(ctx).Error("stored status data is malformed", "error", err)
		return parseErrorNotice
	case errors.Is(err, board.ErrStoreUnavailable):
		ctxlog.FromContext(ctx).Error("status store unavailable", "error", err)
		return storeErrorNotice
	default:
		ctxlog.FromContext(ctx).Error("edit failed", "error", err)
		return "❌ Something went wrong. Your change was not applied."
	}
}

// errorView is a minimal modal shown when even the data needed to draw
// a normal view cannot be fetched.
func errorView(notice string) *View {
	return &View{
		Type:       "modal",
		CallbackID: CallbackServiceList,
		Title:      PlainText("CEDA Services"),
		Close:      PlainText("Close"),
		Blocks:     []Block{SectionBlock(notice)},
	}
}

func submissionErrors(w http.ResponseWriter, errs map[string]string) {
	httputil.JSON(w, http.StatusOK, map[string]any{
		"response_action": "errors",
		"errors":          errs,
	})
}
