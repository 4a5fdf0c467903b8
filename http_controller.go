package bridge

import (
	"fmt"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/gofiber/fiber/v2"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-print"
	"github.com/nyaruka/phonenumbers"
)

// defaultPhoneRegion is assumed when a phone number has no country prefix.
const defaultPhoneRegion = "US"

type AuthControllerRoutes struct {
	Login          string
	Logout         string
	Register       string
	PasswordReset  string
	PasswordUpdate string
	Session        string
}

// AuthController exposes the bridge operations as a JSON API. Login writes
// the cookie mirror so server-rendered handlers can authorize requests on
// their own; logout clears it.
type AuthController struct {
	Debug  bool
	Logger Logger
	Bridge *Bridge
	Guard  *RouteGuard
	Routes *AuthControllerRoutes
}

// NewAuthController wires a controller with the default route table.
func NewAuthController(b *Bridge, guard *RouteGuard) *AuthController {
	return &AuthController{
		Logger: defLogger{},
		Bridge: b,
		Guard:  guard,
		Routes: &AuthControllerRoutes{
			Login:          "/login",
			Logout:         "/logout",
			Register:       "/register",
			PasswordReset:  "/password-reset",
			PasswordUpdate: "/password-update",
			Session:        "/session",
		},
	}
}

// RegisterAuthRoutes mounts the controller on the app.
func RegisterAuthRoutes(app *fiber.App, controller *AuthController) {
	app.Post(controller.Routes.Login, controller.LoginPost)
	app.Post(controller.Routes.Logout, controller.LogoutPost)
	app.Post(controller.Routes.Register, controller.RegistrationCreate)
	app.Post(controller.Routes.PasswordReset, controller.PasswordResetPost)
	app.Post(controller.Routes.PasswordUpdate, controller.PasswordUpdatePost)
	app.Get(controller.Routes.Session, controller.SessionShow)
}

// LoginPayload is the credential exchange body.
type LoginPayload struct {
	Identifier      string `form:"identifier" json:"identifier"`
	Password        string `form:"password" json:"password"`
	ExtendedSession bool   `form:"extended_session" json:"extended_session"`
}

// Validate will validate the payload
func (r LoginPayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Identifier, validation.Required, is.Email),
		validation.Field(&r.Password, validation.Required),
	)
}

func (a *AuthController) LoginPost(c *fiber.Ctx) error {
	payload := new(LoginPayload)

	if err := c.BodyParser(payload); err != nil {
		a.Logger.Error("login parse payload: ", "error", err)
		return a.renderError(c, goerrors.Wrap(err, goerrors.CategoryBadInput, "failed to parse login payload").
			WithCode(goerrors.CodeBadRequest))
	}

	if err := payload.Validate(); err != nil {
		a.Logger.Error("login validate payload: ", "error", err)
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"validation": err,
		})
	}

	session, err := a.Bridge.Login(c.UserContext(), payload.Identifier, payload.Password)
	if err != nil {
		return a.renderError(c, err)
	}

	a.Guard.SetSessionCookies(c, session)

	return c.JSON(fiber.Map{
		"user":    session.User,
		"session": session,
	})
}

func (a *AuthController) LogoutPost(c *fiber.Ctx) error {
	if err := a.Bridge.Logout(c.UserContext()); err != nil {
		return a.renderError(c, err)
	}

	a.Guard.ClearSessionCookies(c)

	return c.JSON(fiber.Map{
		"success": true,
	})
}

// RegistrationCreatePayload is the sign-up body.
type RegistrationCreatePayload struct {
	FirstName       string `form:"first_name" json:"first_name"`
	LastName        string `form:"last_name" json:"last_name"`
	Email           string `form:"email" json:"email"`
	Phone           string `form:"phone_number" json:"phone_number"`
	Password        string `form:"password" json:"password"`
	ConfirmPassword string `form:"confirm_password" json:"confirm_password"`
}

// Validate will validate the payload
func (r RegistrationCreatePayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.FirstName, validation.Required, validation.Length(1, 200)),
		validation.Field(&r.LastName, validation.Required, validation.Length(1, 200)),
		validation.Field(&r.Email, validation.Required, validation.Length(6, 100), is.Email),
		validation.Field(&r.Password, validation.Required, validation.Length(10, 100)),
		validation.Field(
			&r.ConfirmPassword,
			validation.Required,
			validation.Length(10, 100),
			validation.By(ValidateStringEquals(r.Password)),
		),
	)
}

// NormalizedPhone returns the phone number in E.164 form, or "" when no
// phone was provided.
func (r RegistrationCreatePayload) NormalizedPhone() (string, error) {
	if r.Phone == "" {
		return "", nil
	}

	num, err := phonenumbers.Parse(r.Phone, defaultPhoneRegion)
	if err != nil {
		return "", goerrors.Wrap(err, goerrors.CategoryValidation, "invalid phone number").
			WithCode(goerrors.CodeBadRequest)
	}

	return phonenumbers.Format(num, phonenumbers.E164), nil
}

func (a *AuthController) RegistrationCreate(c *fiber.Ctx) error {
	payload := new(RegistrationCreatePayload)

	if err := c.BodyParser(payload); err != nil {
		a.Logger.Error("register user parse payload: ", "error", err)
		return a.renderError(c, goerrors.Wrap(err, goerrors.CategoryBadInput, "failed to parse registration payload").
			WithCode(goerrors.CodeBadRequest))
	}

	if err := payload.Validate(); err != nil {
		a.Logger.Error("register user validate payload: ", "error", err)
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"validation": err,
		})
	}

	phone, err := payload.NormalizedPhone()
	if err != nil {
		return a.renderError(c, err)
	}

	result, err := a.Bridge.Register(c.UserContext(), SignUpInput{
		Email:     payload.Email,
		Password:  payload.Password,
		FirstName: payload.FirstName,
		LastName:  payload.LastName,
		Phone:     phone,
	})
	if err != nil {
		return a.renderError(c, err)
	}

	if result.Session != nil {
		a.Guard.SetSessionCookies(c, result.Session)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"user":    result.User,
		"pending": result.Session == nil,
	})
}

// PasswordResetRequestPayload holds values for password reset
type PasswordResetRequestPayload struct {
	Email string `form:"email" json:"email"`
}

// Validate will validate the payload
func (r PasswordResetRequestPayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, is.Email),
	)
}

func (a *AuthController) PasswordResetPost(c *fiber.Ctx) error {
	payload := new(PasswordResetRequestPayload)

	if err := c.BodyParser(payload); err != nil {
		a.Logger.Error("password reset parse payload: ", "error", err)
		return a.renderError(c, goerrors.Wrap(err, goerrors.CategoryBadInput, "failed to parse reset payload").
			WithCode(goerrors.CodeBadRequest))
	}

	if err := payload.Validate(); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"validation": err,
		})
	}

	// inline feedback contract: the error rides the response body, the
	// request itself succeeds
	if err := a.Bridge.ResetPassword(c.UserContext(), payload.Email); err != nil {
		return c.JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	return c.JSON(fiber.Map{
		"error": nil,
	})
}

// PasswordUpdatePayload holds the replacement credential.
type PasswordUpdatePayload struct {
	Password        string `form:"password" json:"password"`
	ConfirmPassword string `form:"confirm_password" json:"confirm_password"`
}

// Validate will validate the payload
func (r PasswordUpdatePayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Password, validation.Required, validation.Length(10, 100)),
		validation.Field(
			&r.ConfirmPassword,
			validation.Required,
			validation.Length(10, 100),
			validation.By(ValidateStringEquals(r.Password)),
		),
	)
}

func (a *AuthController) PasswordUpdatePost(c *fiber.Ctx) error {
	payload := new(PasswordUpdatePayload)

	if err := c.BodyParser(payload); err != nil {
		a.Logger.Error("password update parse payload: ", "error", err)
		return a.renderError(c, goerrors.Wrap(err, goerrors.CategoryBadInput, "failed to parse update payload").
			WithCode(goerrors.CodeBadRequest))
	}

	if err := payload.Validate(); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"validation": err,
		})
	}

	if err := a.Bridge.UpdatePassword(c.UserContext(), payload.Password); err != nil {
		return c.JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	return c.JSON(fiber.Map{
		"error": nil,
	})
}

func (a *AuthController) SessionShow(c *fiber.Ctx) error {
	snap := a.Bridge.Snapshot()

	return c.JSON(fiber.Map{
		"user":             snap.User,
		"state":            snap.State,
		"is_loading":       snap.IsLoading,
		"is_authenticated": snap.IsAuthenticated,
	})
}

func (a *AuthController) renderError(c *fiber.Ctx, err error) error {
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		richErr = goerrors.Wrap(err, goerrors.CategoryInternal, "an unexpected authentication error occurred").
			WithCode(goerrors.CodeInternal)
	}

	if a.Debug {
		fmt.Println(print.MaybePrettyJSON(richErr.Metadata))
	}

	status := richErr.Code
	if status == 0 {
		if richErr.Category == goerrors.CategoryRateLimit {
			status = fiber.StatusTooManyRequests
		} else {
			status = fiber.StatusInternalServerError
		}
	}

	return c.Status(status).JSON(fiber.Map{
		"error":     richErr.Message,
		"text_code": richErr.TextCode,
	})
}

// ValidateStringEquals will check that both values match
func ValidateStringEquals(str string) validation.RuleFunc {
	return func(value interface{}) error {
		s, _ := value.(string)
		if s != str {
			return fmt.Errorf("values must match")
		}
		return nil
	}
}
