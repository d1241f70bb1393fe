package content

import (
	"net/http"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-router"
	accounts "github.com/versehub/go-accounts"
)

// Controller exposes the content store under /api.
type Controller struct {
	store  Store
	logger accounts.Logger
}

func NewController(store Store, logger accounts.Logger) *Controller {
	if logger == nil {
		logger = accounts.NewSlogLogger(nil)
	}
	return &Controller{store: store, logger: logger}
}

// RegisterRoutes mounts the content routes on r.
func RegisterRoutes[T any](r router.Router[T], c *Controller) {
	api := r.Group("/api")
	api.Get("/users", c.UsersGet).SetName("content.users")
	api.Get("/translations", c.TranslationsGet).SetName("content.translations")
	api.Get("/verses/:translation", c.VersesGet).SetName("content.verses")
}

func (c *Controller) UsersGet(ctx router.Context) error {
	users, err := c.store.Users(ctx.Context())
	if err != nil {
		return c.fail(ctx, err)
	}
	return ctx.JSON(router.StatusOK, map[string]any{"users": users})
}

func (c *Controller) TranslationsGet(ctx router.Context) error {
	translations, err := c.store.Translations(ctx.Context())
	if err != nil {
		return c.fail(ctx, err)
	}
	return ctx.JSON(router.StatusOK, map[string]any{"translations": translations})
}

func (c *Controller) VersesGet(ctx router.Context) error {
	translation := ctx.Param("translation")
	verses, err := c.store.Verses(ctx.Context(), translation)
	if err != nil {
		return c.fail(ctx, err)
	}
	return ctx.JSON(router.StatusOK, map[string]any{"verses": verses})
}

func (c *Controller) fail(ctx router.Context, err error) error {
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		richErr = goerrors.Wrap(err, goerrors.CategoryInternal, "failed to read content").
			WithCode(goerrors.CodeInternal)
	}

	if richErr.Code == goerrors.CodeNotFound {
		return ctx.JSON(http.StatusNotFound, map[string]any{
			"error":     richErr.Message,
			"text_code": richErr.TextCode,
		})
	}

	c.logger.Error("content request %s failed: %v", ctx.Path(), err)
	return ctx.JSON(http.StatusInternalServerError, map[string]any{
		"error": "an unexpected server error occurred",
	})
}
