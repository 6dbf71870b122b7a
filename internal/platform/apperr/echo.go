package apperr

import "github.com/labstack/echo/v4"

// ToHTTP converts a service error into the echo error handlers return.
// Unknown errors map to a generic 500 so internal details never leak.
func ToHTTP(err error) *echo.HTTPError {
	if KindOf(err) == "" {
		return echo.NewHTTPError(HTTPStatus(err), "internal server error")
	}
	return echo.NewHTTPError(HTTPStatus(err), err.Error())
}
