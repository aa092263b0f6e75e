package wizard

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"phoneprov/internal/authz"
	"phoneprov/internal/logs"
	"phoneprov/internal/middleware"
	"phoneprov/internal/models"
	"phoneprov/internal/render/placeholder"
	"phoneprov/internal/repo"
	"phoneprov/internal/variables"
)

// Действия POST /wizard.
const (
	ActionSelectType     = "select_type"
	ActionSelectTemplate = "select_template"
	ActionSetVariables   = "set_variables"
	ActionSelectCustomer = "select_customer"
	ActionCommit         = "commit" // синоним select_customer
	ActionReset          = "reset"

	varPrefix = "var_"
)

type Handler struct {
	machine    *Machine
	store      Store
	cookieName string
	log        *logrus.Entry
}

func NewHandler(m *Machine, store Store, cookieName string) *Handler {
	if cookieName == "" {
		cookieName = "phoneprov_wizard"
	}
	return &Handler{machine: m, store: store, cookieName: cookieName, log: logs.Component("wizard")}
}

// FieldView — поле формы шага 3.
type FieldView struct {
	variables.Definition
	Input variables.Input `json:"input"`
	Value []string        `json:"value"`
}

type ResultView struct {
	ConfigVersionID  uint  `json:"config_version_id"`
	VersionNumber    int   `json:"version_number"`
	TargetID         uint  `json:"target_id"`
	AssignedDeviceID *uint `json:"assigned_device_id,omitempty"`
}

// View — JSON текущего шага мастера.
type View struct {
	Step         int    `json:"step"`
	MaxStep      int    `json:"max_step"`
	CSRFToken    string `json:"csrf_token"`
	DeviceID     *uint  `json:"device_id,omitempty"`
	BoundTypeID  uint   `json:"bound_type_id,omitempty"`
	DeviceTypeID uint   `json:"device_type_id,omitempty"`
	TemplateID   uint   `json:"template_id,omitempty"`

	DeviceTypes        []models.DeviceType `json:"device_types,omitempty"`
	Templates          []models.Template   `json:"templates,omitempty"`
	SelectedTemplateID uint                `json:"selected_template_id,omitempty"`
	Fields             []FieldView         `json:"fields,omitempty"`
	Preview            string              `json:"preview,omitempty"`
	Targets            []models.Target     `json:"targets,omitempty"`
	Result             *ResultView         `json:"result,omitempty"`
	Errors             map[string]string   `json:"errors,omitempty"`
}

// GET /wizard?step=N[&device_id=ID][&reset=1]
func (h *Handler) Show(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	key, s, err := h.load(w, r)
	if err != nil {
		h.internal(w, r, err)
		return
	}
	if err := h.discardCompleted(ctx, key, s); err != nil {
		h.internal(w, r, err)
		return
	}
	q := r.URL.Query()
	if q.Get("reset") == "1" {
		s.Reset()
	}
	if raw := q.Get("device_id"); raw != "" {
		id, perr := strconv.ParseUint(raw, 10, 64)
		if perr != nil {
			models.WriteProblem(w, http.StatusBadRequest, "Bad Request", "device_id must be a number", nil)
			return
		}
		if err := h.machine.BindDevice(ctx, s, uint(id)); err != nil {
			h.fail(w, r, key, s, err)
			return
		}
	}
	step := s.Step
	if raw := q.Get("step"); raw != "" {
		if n, perr := strconv.Atoi(raw); perr == nil {
			step = n
		}
	}
	s.Step = s.ClampStep(step)
	if err := h.store.Save(ctx, key, s); err != nil {
		h.internal(w, r, err)
		return
	}
	models.WriteJSON(w, http.StatusOK, h.view(ctx, s))
}

// POST /wizard action=…&csrf_token=…
func (h *Handler) Submit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := r.ParseForm(); err != nil {
		models.WriteProblem(w, http.StatusBadRequest, "Bad Request", "malformed form", nil)
		return
	}
	key, s, err := h.load(w, r)
	if err != nil {
		h.internal(w, r, err)
		return
	}
	if subtle.ConstantTimeCompare([]byte(r.PostForm.Get("csrf_token")), []byte(s.CSRFToken)) != 1 {
		models.WriteProblem(w, http.StatusForbidden, "Forbidden", "invalid csrf token", nil)
		return
	}
	if err := h.discardCompleted(ctx, key, s); err != nil {
		h.internal(w, r, err)
		return
	}

	if raw := r.PostForm.Get("device_id"); raw != "" {
		id, perr := strconv.ParseUint(raw, 10, 64)
		if perr != nil {
			models.WriteProblem(w, http.StatusBadRequest, "Bad Request", "device_id must be a number", nil)
			return
		}
		if err := h.machine.BindDevice(ctx, s, uint(id)); err != nil {
			h.fail(w, r, key, s, err)
			return
		}
	}

	actor := authz.ActorFrom(ctx)
	switch action := r.PostForm.Get("action"); action {
	case ActionSelectType:
		err = h.machine.SelectType(ctx, s, formUint(r, "device_type_id"))
	case ActionSelectTemplate:
		err = h.machine.SelectTemplate(ctx, s, formUint(r, "template_id"))
	case ActionSetVariables:
		err = h.machine.SetVariables(ctx, s, collectVariables(r))
	case ActionSelectCustomer, ActionCommit:
		err = h.machine.Commit(ctx, s, actor, r.PostForm.Get("target_id"))
	case ActionReset:
		s.Reset()
	default:
		models.WriteProblem(w, http.StatusBadRequest, "Bad Request", "unknown action "+strconv.Quote(action), nil)
		return
	}
	if err != nil {
		h.fail(w, r, key, s, err)
		return
	}
	if err := h.store.Save(ctx, key, s); err != nil {
		h.internal(w, r, err)
		return
	}
	models.WriteJSON(w, http.StatusOK, h.view(ctx, s))
}

// load достаёт сессию по cookie или заводит новую.
func (h *Handler) load(w http.ResponseWriter, r *http.Request) (string, *Session, error) {
	if c, err := r.Cookie(h.cookieName); err == nil && c.Value != "" {
		s, err := h.store.Get(r.Context(), c.Value)
		if err == nil {
			return c.Value, s, nil
		}
		if !errors.Is(err, ErrSessionNotFound) {
			return "", nil, err
		}
	}
	key := uuid.NewString()
	http.SetCookie(w, &http.Cookie{
		Name:     h.cookieName,
		Value:    key,
		Path:     "/wizard",
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
	})
	return key, NewSession(), nil
}

// discardCompleted: после шага 5 сессия не переиспользуется, следующий
// запрос начинает мастер заново с тем же csrf токеном.
func (h *Handler) discardCompleted(ctx context.Context, key string, s *Session) error {
	if s.ConfigVersionID == 0 {
		return nil
	}
	if err := h.store.Clear(ctx, key); err != nil {
		return err
	}
	s.Reset()
	return nil
}

// fail сохраняет собранное состояние и отвечает по таксономии ошибок.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, key string, s *Session, err error) {
	ctx := r.Context()
	if serr := h.store.Save(ctx, key, s); serr != nil {
		h.log.WithError(serr).Warn("save wizard session after error")
	}

	var verrs variables.ValidationErrors
	var unresolved *placeholder.UnresolvedError
	switch {
	case errors.As(err, &verrs):
		models.WriteValidationProblem(w, "some values are invalid", verrs.Messages(), h.view(ctx, s))
	case errors.As(err, &unresolved):
		models.WriteValidationProblem(w, "template cannot be rendered",
			map[string]string{"template": unresolved.Error()}, h.view(ctx, s))
	case errors.Is(err, ErrNoTarget):
		models.WriteValidationProblem(w, "select a target",
			map[string]string{"target_id": "select a customer or the default target"}, h.view(ctx, s))
	case errors.Is(err, repo.ErrNotFound):
		models.WriteProblem(w, http.StatusNotFound, "Not Found", "requested item not found", nil)
	case errors.Is(err, ErrStep):
		models.WriteProblem(w, http.StatusConflict, "Conflict", err.Error(), h.view(ctx, s))
	default:
		h.log.WithError(err).WithField("request_id", middleware.GetRequestID(r)).Error("wizard action failed")
		models.WriteProblem(w, http.StatusInternalServerError, "Internal Server Error", "could not save", h.view(ctx, s))
	}
}

func (h *Handler) internal(w http.ResponseWriter, r *http.Request, err error) {
	h.log.WithError(err).WithField("request_id", middleware.GetRequestID(r)).Error("wizard session store")
	models.WriteProblem(w, http.StatusInternalServerError, "Internal Server Error", "could not save", nil)
}

// view собирает данные шага; ошибки чтения попадают в Errors, а не рвут ответ.
func (h *Handler) view(ctx context.Context, s *Session) View {
	v := View{
		Step:         s.Step,
		MaxStep:      s.MaxStep(),
		CSRFToken:    s.CSRFToken,
		DeviceID:     s.DeviceID,
		BoundTypeID:  s.BoundTypeID,
		DeviceTypeID: s.DeviceTypeID,
		TemplateID:   s.TemplateID,
	}
	addErr := func(field string, err error) {
		if v.Errors == nil {
			v.Errors = map[string]string{}
		}
		v.Errors[field] = err.Error()
	}

	switch s.Step {
	case StepSelectType:
		types, err := h.machine.devices.ListDeviceTypes(ctx)
		if err != nil {
			addErr("device_types", err)
		}
		v.DeviceTypes = types
	case StepSelectTemplate:
		tpls, sel, err := h.machine.TemplateChoices(ctx, s)
		if err != nil {
			addErr("templates", err)
		}
		v.Templates, v.SelectedTemplateID = tpls, sel
	case StepSetVariables:
		defs, err := h.machine.Definitions(ctx, s)
		if err != nil {
			addErr("fields", err)
		}
		v.Fields = fieldViews(defs, s.Variables)
	case StepPreview:
		preview, err := h.machine.Preview(ctx, s)
		if err != nil {
			addErr("preview", err)
		}
		v.Preview = preview
		targets, err := h.machine.TargetChoices(ctx)
		if err != nil {
			addErr("targets", err)
		}
		v.Targets = targets
	case StepComplete:
		v.Result = &ResultView{
			ConfigVersionID:  s.ConfigVersionID,
			VersionNumber:    s.VersionNumber,
			TargetID:         s.TargetID,
			AssignedDeviceID: s.AssignedDeviceID,
		}
	}
	return v
}

func fieldViews(defs []variables.Definition, vals variables.Values) []FieldView {
	out := make([]FieldView, 0, len(defs))
	for _, d := range defs {
		in, _ := variables.InputFor(d.Kind)
		val, ok := vals[d.Name]
		if !ok && d.Default != "" {
			if d.Kind.IsList() {
				val = variables.SplitList(d.Default)
			} else {
				val = []string{d.Default}
			}
		}
		out = append(out, FieldView{Definition: d, Input: in, Value: val})
	}
	return out
}

// collectVariables — поля var_<NAME>, повторяемые для multiselect.
func collectVariables(r *http.Request) variables.Values {
	out := variables.Values{}
	for k, vs := range r.PostForm {
		if name, ok := strings.CutPrefix(k, varPrefix); ok && name != "" {
			out[name] = vs
		}
	}
	return out
}

func formUint(r *http.Request, key string) uint {
	n, err := strconv.ParseUint(strings.TrimSpace(r.PostForm.Get(key)), 10, 64)
	if err != nil {
		return 0
	}
	return uint(n)
}

// RegisterRoutes — мастер за проверкой прав devices.manage.
func RegisterRoutes(r *mux.Router, h *Handler, a authz.Authorizer, actorHeader string) {
	sub := r.PathPrefix("/wizard").Subrouter()
	sub.Use(authz.Require(a, actorHeader, authz.PermDevicesManage))
	sub.HandleFunc("", h.Show).Methods(http.MethodGet)
	sub.HandleFunc("", h.Submit).Methods(http.MethodPost)
}
