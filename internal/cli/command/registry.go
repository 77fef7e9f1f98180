package command

import (
	"context"
	"fmt"
	"sort"
	"time"

	"ojclient/internal/draft"
	"ojclient/internal/judge"
	"ojclient/internal/submission"
	"ojclient/pkg/errors"
)

var (
	problemField  = Field{Name: "problem", Aliases: []string{"problem_id", "p"}, Prompt: "problem_id", Type: FieldInt64, Required: true}
	languageField = Field{Name: "lang", Aliases: []string{"language", "l"}, Prompt: "language", Type: FieldString, Required: true}
	codeField     = Field{Name: "code", Prompt: "source code", Type: FieldString}
	fileField     = Field{Name: "file", Aliases: []string{"source_file", "f"}, Prompt: "path", Type: FieldFile}
)

// Registry returns all CLI commands keyed by "service action".
func Registry() map[string]Command {
	commands := []Command{
		{
			Service: "login",
			Summary: "log in and store the token pair",
			Fields: []Field{
				{Name: "username", Aliases: []string{"u"}, Prompt: "username", Type: FieldString, Required: true},
				{Name: "password", Prompt: "password", Type: FieldSecret, Required: true},
			},
			Run: runLogin,
		},
		{Service: "logout", Summary: "forget the stored session", Run: runLogout},
		{Service: "show", Action: "session", Summary: "show stored credentials", Run: runShowSession},
		{Service: "show", Action: "config", Summary: "show effective configuration", Run: runShowConfig},
		{Service: "show", Action: "result", Summary: "show the latest run and submission results", Run: runShowResult},
		{Service: "languages", Summary: "list supported languages", Run: runLanguages},
		{
			Service: "run",
			Summary: "execute code without judging",
			Fields:  []Field{languageField, codeField, fileField},
			Run:     runRun,
		},
		{
			Service: "submit",
			Summary: "submit code for judging; uses the open draft when code and file are omitted",
			Fields:  []Field{problemField, languageField, codeField, fileField},
			Run:     runSubmit,
		},
		{Service: "rerun", Summary: "repeat the last run", Run: runRerun},
		{Service: "resubmit", Summary: "repeat the last submission", Run: runResubmit},
		{
			Service: "poll",
			Summary: "follow a judge ticket until it settles",
			Fields:  []Field{{Name: "token", Prompt: "token", Type: FieldString, Required: true}},
			Run:     runPoll,
		},
		{
			Service: "draft",
			Action:  "open",
			Summary: "open a draft buffer and restore the newest saved copy",
			Fields:  []Field{problemField, languageField},
			Run:     runDraftOpen,
		},
		{
			Service: "draft",
			Action:  "edit",
			Summary: "replace the buffer; autosaved after the debounce",
			Fields:  []Field{codeField, fileField},
			Run:     runDraftEdit,
		},
		{Service: "draft", Action: "save", Summary: "save the buffer now", Run: runDraftSave},
		{Service: "draft", Action: "show", Summary: "print the buffer", Run: runDraftShow},
		{Service: "draft", Action: "close", Summary: "flush and close the buffer", Run: runDraftClose},
		{Service: "draft", Action: "discard", Summary: "close the buffer dropping unsaved edits and the local copy", Run: runDraftDiscard},
		{
			Service: "draft",
			Action:  "latest",
			Summary: "fetch the newest server copy",
			Fields:  []Field{problemField},
			Run:     runDraftLatest,
		},
	}

	result := make(map[string]Command, len(commands))
	for _, cmd := range commands {
		result[cmd.Key()] = cmd
	}
	return result
}

// Sorted returns the registry ordered by key, for help output.
func Sorted(commands map[string]Command) []Command {
	out := make([]Command, 0, len(commands))
	for _, cmd := range commands {
		out = append(out, cmd)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key() < out[j].Key() })
	return out
}

// Lookup resolves the leading tokens of a line to a command and returns the
// remaining argument tokens.
func Lookup(commands map[string]Command, tokens []string) (Command, []string, bool) {
	if len(tokens) >= 2 {
		if cmd, ok := commands[tokens[0]+" "+tokens[1]]; ok {
			return cmd, tokens[2:], true
		}
	}
	if len(tokens) >= 1 {
		if cmd, ok := commands[tokens[0]]; ok {
			return cmd, tokens[1:], true
		}
	}
	return Command{}, nil, false
}

type sessionView struct {
	Session          string     `json:"session"`
	Access           string     `json:"access,omitempty"`
	Refresh          string     `json:"refresh,omitempty"`
	AccessExpiresAt  *time.Time `json:"access_expires_at,omitempty"`
	RefreshExpiresAt *time.Time `json:"refresh_expires_at,omitempty"`
	LoggedIn         bool       `json:"logged_in"`
}

func runLogin(ctx context.Context, env *Env, params Params) (any, error) {
	sid := env.Client.SessionID()
	creds, err := env.Gateway.Login(ctx, sid, params.Get("username"), params.Get("password"))
	if err != nil {
		return nil, err
	}
	return sessionView{
		Session:          sid,
		AccessExpiresAt:  timePtr(creds.AccessExpiresAt),
		RefreshExpiresAt: timePtr(creds.RefreshExpiresAt),
		LoggedIn:         true,
	}, nil
}

func runLogout(ctx context.Context, env *Env, _ Params) (any, error) {
	sid := env.Client.SessionID()
	if err := env.Gateway.Logout(ctx, sid); err != nil {
		return nil, err
	}
	env.Runs.Reset()
	env.Submits.Reset()
	return sessionView{Session: sid}, nil
}

func runShowSession(ctx context.Context, env *Env, _ Params) (any, error) {
	sid := env.Client.SessionID()
	creds, err := env.Gateway.Credentials(ctx, sid)
	if err != nil {
		return nil, err
	}
	return sessionView{
		Session:          sid,
		Access:           mask(creds.Access),
		Refresh:          mask(creds.Refresh),
		AccessExpiresAt:  timePtr(creds.AccessExpiresAt),
		RefreshExpiresAt: timePtr(creds.RefreshExpiresAt),
		LoggedIn:         !creds.Empty(),
	}, nil
}

func runShowConfig(_ context.Context, env *Env, _ Params) (any, error) {
	return env.Info, nil
}

func runLanguages(ctx context.Context, env *Env, _ Params) (any, error) {
	return env.Dispatcher.Languages(ctx)
}

type dispatchView struct {
	DispatchID string            `json:"dispatch_id"`
	ProblemID  *int64            `json:"problem_id,omitempty"`
	Language   string            `json:"language"`
	Output     submission.Output `json:"output"`
}

func runRun(ctx context.Context, env *Env, params Params) (any, error) {
	code, err := SourceCode(params)
	if err != nil {
		return nil, err
	}
	return dispatch(ctx, env.Runs, submission.Request{Code: code, Language: params.Get("lang")}, "rerun")
}

func runSubmit(ctx context.Context, env *Env, params Params) (any, error) {
	problemID, _, err := params.Int64("problem")
	if err != nil {
		return nil, err
	}
	code, err := SourceCode(params)
	if err != nil {
		return nil, err
	}
	lang := params.Get("lang")

	// With a matching draft open, the buffer is the source of truth and is
	// checkpointed before dispatch.
	if ed := env.Editor(); ed != nil && ed.ProblemID() == problemID && ed.Language() == judge.CanonicalLanguage(lang) {
		if code != "" {
			ed.Change(code)
		}
		snap, err := ed.Snapshot(ctx)
		if err != nil {
			return nil, err
		}
		code = snap.Code
	}
	return dispatch(ctx, env.Submits, submission.Request{Code: code, Language: lang, ProblemID: &problemID}, "resubmit")
}

func runRerun(ctx context.Context, env *Env, _ Params) (any, error) {
	return retry(ctx, env.Runs, "run", "rerun")
}

func runResubmit(ctx context.Context, env *Env, _ Params) (any, error) {
	return retry(ctx, env.Submits, "submission", "resubmit")
}

// retry dispatches the request of the slot's latest result again.
func retry(ctx context.Context, slot *submission.Slot, noun, retryCmd string) (any, error) {
	if slot.Pending() {
		return nil, errors.Newf(errors.InvalidParams, "a %s is still in flight", noun)
	}
	last, ok := slot.Latest()
	if !ok {
		return nil, errors.Newf(errors.InvalidParams, "no %s to repeat", noun)
	}
	return dispatch(ctx, slot, last.Request, retryCmd)
}

func dispatch(ctx context.Context, slot *submission.Slot, req submission.Request, retryCmd string) (any, error) {
	res, applied := slot.Dispatch(ctx, req)
	if !applied {
		return nil, errors.New(errors.StaleResult)
	}
	if res.Err != nil {
		return nil, withRetryHint(res.Err, retryCmd)
	}
	lang := judge.CanonicalLanguage(req.Language)
	return dispatchView{DispatchID: res.DispatchID, ProblemID: req.ProblemID, Language: lang, Output: res.Output}, nil
}

// withRetryHint keeps the failure's code and names the command that repeats it.
func withRetryHint(err error, retryCmd string) error {
	hint := "retry with: " + retryCmd
	if errors.Is(err, errors.AuthExpired) {
		hint = "log in, then " + retryCmd
	}
	return errors.Wrapf(err, errors.GetCode(err), "%s (%s)", err.Error(), hint).
		WithDetail("retry", retryCmd)
}

type resultView struct {
	Pending     bool               `json:"pending"`
	DispatchID  string             `json:"dispatch_id,omitempty"`
	ProblemID   *int64             `json:"problem_id,omitempty"`
	Language    string             `json:"language,omitempty"`
	Output      *submission.Output `json:"output,omitempty"`
	Error       string             `json:"error,omitempty"`
	Retry       string             `json:"retry,omitempty"`
	CompletedAt *time.Time         `json:"completed_at,omitempty"`
}

func resultOf(slot *submission.Slot, retryCmd string) resultView {
	view := resultView{Pending: slot.Pending()}
	last, ok := slot.Latest()
	if !ok {
		return view
	}
	view.DispatchID = last.DispatchID
	view.ProblemID = last.Request.ProblemID
	view.Language = judge.CanonicalLanguage(last.Request.Language)
	view.CompletedAt = timePtr(last.CompletedAt)
	if last.Failed() {
		view.Error = last.Err.Error()
		view.Retry = retryCmd
	} else {
		out := last.Output
		view.Output = &out
	}
	return view
}

func runShowResult(_ context.Context, env *Env, _ Params) (any, error) {
	return map[string]resultView{
		"run":        resultOf(env.Runs, "rerun"),
		"submission": resultOf(env.Submits, "resubmit"),
	}, nil
}

type pollView struct {
	Token       string            `json:"token"`
	StatusID    judge.StatusID    `json:"status_id"`
	Description string            `json:"description"`
	Output      submission.Output `json:"output"`
}

func runPoll(ctx context.Context, env *Env, params Params) (any, error) {
	if env.Poller == nil {
		return nil, fmt.Errorf("judge polling is not configured")
	}
	token := params.Get("token")
	details, err := env.Poller.Poll(ctx, token)
	if err != nil {
		return nil, err
	}
	desc := details.Description
	if desc == "" {
		desc = details.StatusID.Label()
	}
	return pollView{Token: token, StatusID: details.StatusID, Description: desc, Output: submission.FromDetails(details)}, nil
}

type draftView struct {
	ProblemID int64      `json:"problem_id"`
	Language  string     `json:"language"`
	Source    string     `json:"source,omitempty"`
	Dirty     bool       `json:"dirty"`
	LastSaved *time.Time `json:"last_saved,omitempty"`
	Code      string     `json:"code"`
}

func viewOf(ed *draft.Coordinator, source string) draftView {
	return draftView{
		ProblemID: ed.ProblemID(),
		Language:  ed.Language(),
		Source:    source,
		Dirty:     ed.Dirty(),
		LastSaved: timePtr(ed.LastSaved()),
		Code:      ed.Code(),
	}
}

func runDraftOpen(ctx context.Context, env *Env, params Params) (any, error) {
	problemID, _, err := params.Int64("problem")
	if err != nil {
		return nil, err
	}
	lang := judge.CanonicalLanguage(params.Get("lang"))
	if lang == "" {
		return nil, errors.Newf(errors.LanguageNotSupported, "language %q is not supported", params.Get("lang"))
	}
	ed, err := env.OpenEditor(ctx, problemID, lang)
	if err != nil && ed == nil {
		return nil, err
	}
	_, source, rerr := ed.Restore(ctx)
	if rerr != nil {
		return nil, rerr
	}
	return viewOf(ed, source), err
}

func openEditor(env *Env) (*draft.Coordinator, error) {
	ed := env.Editor()
	if ed == nil {
		return nil, errors.New(errors.InvalidParams).WithMessage("no draft is open, use: draft open problem=<id> lang=<language>")
	}
	return ed, nil
}

func runDraftEdit(_ context.Context, env *Env, params Params) (any, error) {
	ed, err := openEditor(env)
	if err != nil {
		return nil, err
	}
	code, err := SourceCode(params)
	if err != nil {
		return nil, err
	}
	if code == "" {
		return nil, errors.ValidationError("code", "code or file is required")
	}
	ed.Change(code)
	return viewOf(ed, ""), nil
}

func runDraftSave(ctx context.Context, env *Env, _ Params) (any, error) {
	ed, err := openEditor(env)
	if err != nil {
		return nil, err
	}
	if err := ed.SaveManual(ctx); err != nil {
		return nil, err
	}
	return viewOf(ed, ""), nil
}

func runDraftShow(_ context.Context, env *Env, _ Params) (any, error) {
	ed, err := openEditor(env)
	if err != nil {
		return nil, err
	}
	return viewOf(ed, ""), nil
}

func runDraftClose(ctx context.Context, env *Env, _ Params) (any, error) {
	ed, err := openEditor(env)
	if err != nil {
		return nil, err
	}
	view := viewOf(ed, "")
	if err := env.Close(ctx); err != nil {
		return nil, err
	}
	view.Dirty = false
	return view, nil
}

func runDraftDiscard(ctx context.Context, env *Env, _ Params) (any, error) {
	ed, err := openEditor(env)
	if err != nil {
		return nil, err
	}
	view := viewOf(ed, "")
	if err := env.DiscardEditor(ctx); err != nil {
		return nil, err
	}
	view.Dirty = false
	return view, nil
}

func runDraftLatest(ctx context.Context, env *Env, params Params) (any, error) {
	problemID, _, err := params.Int64("problem")
	if err != nil {
		return nil, err
	}
	return env.Drafts.Latest(ctx, problemID)
}

func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func mask(token string) string {
	if token == "" {
		return ""
	}
	if len(token) > 12 {
		return token[:6] + "..." + token[len(token)-4:]
	}
	return "***"
}
