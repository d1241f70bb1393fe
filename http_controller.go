package accounts

import (
	"crypto/subtle"
	"net/http"
	"strconv"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-print"
	"github.com/goliatone/go-router"
)

// AdminKeyHeader carries the shared secret for administrative routes.
const AdminKeyHeader = "X-Admin-Key"

type AccountControllerRoutes struct {
	Register             string
	Login                string
	VerifyEmail          string
	Verify               string
	RequestPasswordReset string
	CheckResetToken      string
	ResetPassword        string
	Profile              string
	DeleteAccount        string
	Health               string
}

type AccountControllerViews struct {
	VerifyEmail string
}

// AccountController exposes the account lifecycle over go-router.
type AccountController struct {
	Debug    bool
	Logger   Logger
	AdminKey string
	Routes   *AccountControllerRoutes
	Views    *AccountControllerViews
	Pinger   Pinger

	register      *RegisterAccountHandler
	login         *LoginHandler
	verifyEmail   *VerifyEmailHandler
	verifyKey     *VerifyRegistrationKeyHandler
	resetRequest  *InitializePasswordResetHandler
	resetCheck    *CheckPasswordResetHandler
	resetFinalize *FinalizePasswordResetHandler
	profile       *GetProfileHandler
	deleteAccount *DeleteAccountHandler
}

type AccountControllerOption func(*AccountController)

// WithControllerDebug logs responses in debug mode.
func WithControllerDebug(debug bool) AccountControllerOption {
	return func(a *AccountController) {
		a.Debug = debug
	}
}

// WithAdminKey enables the administrative delete route.
func WithAdminKey(key string) AccountControllerOption {
	return func(a *AccountController) {
		a.AdminKey = key
	}
}

// WithControllerLogger overrides the controller logger.
func WithControllerLogger(logger Logger) AccountControllerOption {
	return func(a *AccountController) {
		if logger != nil {
			a.Logger = logger
		}
	}
}

// WithVerifyEmailView sets the template rendered by the verification
// link route. An empty name answers with JSON.
func WithVerifyEmailView(name string) AccountControllerOption {
	return func(a *AccountController) {
		a.Views.VerifyEmail = name
	}
}

func NewAccountController(deps Dependencies, opts ...AccountControllerOption) *AccountController {
	d := deps.normalize()

	c := &AccountController{
		Logger: d.Logger,
		Pinger: d.Store,
		Routes: &AccountControllerRoutes{
			Register:             "/accounts",
			Login:                "/login",
			VerifyEmail:          "/verify-email",
			Verify:               "/verify",
			RequestPasswordReset: "/request-password-reset",
			CheckResetToken:      "/check-reset-token",
			ResetPassword:        "/reset-password",
			Profile:              "/profile",
			DeleteAccount:        "/accounts/:id",
			Health:               "/healthz",
		},
		Views: &AccountControllerViews{},

		register:      &RegisterAccountHandler{deps: d},
		login:         &LoginHandler{deps: d},
		verifyEmail:   &VerifyEmailHandler{deps: d},
		verifyKey:     &VerifyRegistrationKeyHandler{deps: d},
		resetRequest:  &InitializePasswordResetHandler{deps: d},
		resetCheck:    &CheckPasswordResetHandler{deps: d},
		resetFinalize: &FinalizePasswordResetHandler{deps: d},
		profile:       &GetProfileHandler{deps: d},
		deleteAccount: &DeleteAccountHandler{deps: d},
	}

	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}

	return c
}

// RegisterAccountRoutes mounts every account route on r.
func RegisterAccountRoutes[T any](r router.Router[T], controller *AccountController) {
	routes := controller.Routes

	r.Post(routes.Register, controller.RegisterPost).SetName("accounts.register")
	r.Post(routes.Login, controller.LoginPost).SetName("accounts.login")
	r.Get(routes.VerifyEmail, controller.VerifyEmailGet).SetName("accounts.verify-email")
	r.Post(routes.Verify, controller.VerifyPost).SetName("accounts.verify")
	r.Post(routes.RequestPasswordReset, controller.RequestPasswordResetPost).SetName("accounts.pwd-reset.request")
	r.Post(routes.CheckResetToken, controller.CheckResetTokenPost).SetName("accounts.pwd-reset.check")
	r.Post(routes.ResetPassword, controller.ResetPasswordPost).SetName("accounts.pwd-reset.execute")
	r.Post(routes.Profile, controller.ProfilePost).SetName("accounts.profile")
	r.Get(routes.Health, controller.HealthGet).SetName("health")

	if controller.AdminKey != "" {
		r.Delete(routes.DeleteAccount, controller.DeleteAccount).SetName("accounts.delete")
	}
}

func (a *AccountController) RegisterPost(ctx router.Context) error {
	payload := new(RegisterAccountMessage)
	if err := ctx.Bind(payload); err != nil {
		return a.ErrorHandler(ctx, errBadBody(err))
	}

	var res *RegisterAccountResponse
	payload.OnResponse = func(resp *RegisterAccountResponse) {
		res = resp
	}

	if err := a.register.Execute(ctx.Context(), *payload); err != nil {
		return a.ErrorHandler(ctx, err)
	}

	return a.respond(ctx, http.StatusCreated, map[string]any{
		"account_id": res.AccountID,
		"message":    "account created, check your email to verify it",
	})
}

func (a *AccountController) LoginPost(ctx router.Context) error {
	payload := new(LoginMessage)
	if err := ctx.Bind(payload); err != nil {
		return a.ErrorHandler(ctx, errBadBody(err))
	}

	var res *LoginResponse
	payload.OnResponse = func(resp *LoginResponse) {
		res = resp
	}

	if err := a.login.Execute(ctx.Context(), *payload); err != nil {
		return a.ErrorHandler(ctx, err)
	}

	return a.respond(ctx, http.StatusOK, map[string]any{
		"account_id": res.AccountID,
	})
}

// VerifyEmailGet handles the link from the verification email and answers
// with a status page.
func (a *AccountController) VerifyEmailGet(ctx router.Context) error {
	payload := VerifyEmailMessage{
		Email: ctx.Query("email", ""),
		Token: ctx.Query("token", ""),
	}

	var res *VerificationResponse
	payload.OnResponse = func(resp *VerificationResponse) {
		res = resp
	}

	if err := a.verifyEmail.Execute(ctx.Context(), payload); err != nil {
		richErr := asRichError(err, "email verification failed")
		status := httpStatus(richErr)
		return a.verifyPage(ctx, status, router.ViewContext{
			"success":   false,
			"title":     "Verification failed",
			"message":   publicMessage(richErr, status),
			"text_code": richErr.TextCode,
		})
	}

	message := "Your email address is verified. We sent your registration key by email."
	if res.AlreadyVerified {
		message = "Your email address was already verified."
	}

	return a.verifyPage(ctx, http.StatusOK, router.ViewContext{
		"success":          true,
		"title":            "Email verified",
		"message":          message,
		"already_verified": res.AlreadyVerified,
	})
}

func (a *AccountController) verifyPage(ctx router.Context, status int, binding router.ViewContext) error {
	if a.Views.VerifyEmail == "" {
		return ctx.JSON(status, binding)
	}
	return ctx.Status(status).Render(a.Views.VerifyEmail, binding)
}

func (a *AccountController) VerifyPost(ctx router.Context) error {
	payload := new(VerifyRegistrationKeyMessage)
	if err := ctx.Bind(payload); err != nil {
		return a.ErrorHandler(ctx, errBadBody(err))
	}

	var res *VerificationResponse
	payload.OnResponse = func(resp *VerificationResponse) {
		res = resp
	}

	if err := a.verifyKey.Execute(ctx.Context(), *payload); err != nil {
		return a.ErrorHandler(ctx, err)
	}

	return a.respond(ctx, http.StatusOK, res)
}

func (a *AccountController) RequestPasswordResetPost(ctx router.Context) error {
	payload := new(InitializePasswordResetMessage)
	if err := ctx.Bind(payload); err != nil {
		return a.ErrorHandler(ctx, errBadBody(err))
	}

	if err := a.resetRequest.Execute(ctx.Context(), *payload); err != nil {
		return a.ErrorHandler(ctx, err)
	}

	return a.respond(ctx, http.StatusOK, map[string]any{
		"message": "password reset requested, check your email",
	})
}

func (a *AccountController) CheckResetTokenPost(ctx router.Context) error {
	payload := new(CheckPasswordResetMessage)
	if err := ctx.Bind(payload); err != nil {
		return a.ErrorHandler(ctx, errBadBody(err))
	}

	var res ResetStatus
	payload.OnResponse = func(status ResetStatus) {
		res = status
	}

	if err := a.resetCheck.Execute(ctx.Context(), *payload); err != nil {
		return a.ErrorHandler(ctx, err)
	}

	return a.respond(ctx, http.StatusOK, res)
}

func (a *AccountController) ResetPasswordPost(ctx router.Context) error {
	payload := new(FinalizePasswordResetMessage)
	if err := ctx.Bind(payload); err != nil {
		return a.ErrorHandler(ctx, errBadBody(err))
	}

	if err := a.resetFinalize.Execute(ctx.Context(), *payload); err != nil {
		return a.ErrorHandler(ctx, err)
	}

	return a.respond(ctx, http.StatusOK, map[string]any{
		"message": "password updated",
	})
}

func (a *AccountController) ProfilePost(ctx router.Context) error {
	payload := new(GetProfileMessage)
	if err := ctx.Bind(payload); err != nil {
		return a.ErrorHandler(ctx, errBadBody(err))
	}

	var res Profile
	payload.OnResponse = func(profile Profile) {
		res = profile
	}

	if err := a.profile.Execute(ctx.Context(), *payload); err != nil {
		return a.ErrorHandler(ctx, err)
	}

	return a.respond(ctx, http.StatusOK, res)
}

func (a *AccountController) DeleteAccount(ctx router.Context) error {
	given := ctx.Header(AdminKeyHeader)
	if a.AdminKey == "" || subtle.ConstantTimeCompare([]byte(given), []byte(a.AdminKey)) != 1 {
		return a.ErrorHandler(ctx, ErrAdminKeyRequired)
	}

	id, err := strconv.ParseInt(ctx.Param("id"), 10, 64)
	if err != nil {
		return a.ErrorHandler(ctx, ErrNotFound)
	}

	msg := DeleteAccountMessage{
		AccountID: id,
		Actor:     ActorRef{Type: "admin", ID: ctx.IP()},
	}
	if err := a.deleteAccount.Execute(ctx.Context(), msg); err != nil {
		return a.ErrorHandler(ctx, err)
	}

	return ctx.NoContent(http.StatusNoContent)
}

func (a *AccountController) HealthGet(ctx router.Context) error {
	if a.Pinger != nil {
		if err := a.Pinger.Ping(ctx.Context()); err != nil {
			return ctx.JSON(http.StatusServiceUnavailable, map[string]any{"status": "unavailable"})
		}
	}
	return ctx.JSON(router.StatusOK, map[string]any{"status": "ok"})
}

func (a *AccountController) respond(ctx router.Context, status int, body any) error {
	if a.Debug {
		a.Logger.Debug("%s %s -> %d\n%s", ctx.Method(), ctx.Path(), status, print.MaybePrettyJSON(body))
	}
	return ctx.JSON(status, body)
}

// ErrorHandler writes err as {"error", "text_code", "validation"}.
func (a *AccountController) ErrorHandler(ctx router.Context, err error) error {
	richErr := asRichError(err, "an unexpected server error occurred")
	status := httpStatus(richErr)

	if status >= http.StatusInternalServerError {
		a.Logger.Error("%s %s failed: %v", ctx.Method(), ctx.Path(), err)
	} else {
		a.Logger.Debug("%s %s rejected: %s (%s)", ctx.Method(), ctx.Path(), richErr.Message, richErr.TextCode)
	}

	body := map[string]any{
		"error":     publicMessage(richErr, status),
		"text_code": richErr.TextCode,
	}
	if vm := richErr.ValidationMap(); len(vm) > 0 {
		body["validation"] = vm
	}

	return ctx.JSON(status, body)
}

func errBadBody(err error) error {
	return goerrors.Wrap(err, goerrors.CategoryBadInput, "failed to parse request body").
		WithCode(goerrors.CodeBadRequest)
}

// httpStatus prefers the explicit code and falls back to the category.
func httpStatus(richErr *goerrors.Error) int {
	if richErr.Code >= 400 && richErr.Code < 600 {
		return richErr.Code
	}

	switch richErr.Category {
	case goerrors.CategoryNotFound:
		return http.StatusNotFound
	case goerrors.CategoryConflict:
		return http.StatusConflict
	case goerrors.CategoryAuth:
		return http.StatusUnauthorized
	case goerrors.CategoryAuthz:
		return http.StatusForbidden
	case goerrors.CategoryValidation, goerrors.CategoryBadInput:
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func publicMessage(richErr *goerrors.Error, status int) string {
	if status >= http.StatusInternalServerError {
		return "an unexpected server error occurred"
	}
	return richErr.Message
}
