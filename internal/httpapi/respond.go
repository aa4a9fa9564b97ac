package httpapi

import "github.com/labstack/echo/v4"

// ok writes {"ok": true, ...extra} — the admin surface's uniform success
// envelope (§6: "success is {ok:true, ...}").
func ok(c echo.Context, status int, extra map[string]any) error {
	body := map[string]any{"ok": true}
	for k, v := range extra {
		body[k] = v
	}
	return c.JSON(status, body)
}

// fail writes {"ok": false, "error": slug} — the admin surface's uniform
// failure envelope (§6: "errors are {ok:false, error:<slug>}").
func fail(c echo.Context, status int, slug string) error {
	return c.JSON(status, map[string]any{"ok": false, "error": slug})
}
