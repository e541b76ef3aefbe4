package router

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/gdbrns/go-whatsapp-pair-bot/pkg/log"
)

type Response struct {
	Status  bool        `json:"status"`
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

func logSuccess(c *fiber.Ctx, code int, message string) {
	statusMessage := http.StatusText(code)

	if statusMessage == message || c.OriginalURL() == BaseURL {
		log.Print(c).Info(fmt.Sprintf("%d %v", code, statusMessage))
	} else {
		log.Print(c).Info(fmt.Sprintf("%d %v", code, message))
	}
}

func logError(c *fiber.Ctx, code int, message string) {
	statusMessage := http.StatusText(code)

	if statusMessage == message {
		log.Print(c).Error(fmt.Sprintf("%d %v", code, statusMessage))
	} else {
		log.Print(c).Error(fmt.Sprintf("%d %v", code, message))
	}
}

func responseError(c *fiber.Ctx, code int, message string) error {
	if strings.TrimSpace(message) == "" {
		message = http.StatusText(code)
	}
	response := Response{
		Status:  false,
		Code:    code,
		Message: message,
		Error:   message,
	}

	logError(c, response.Code, response.Message)
	return c.Status(response.Code).JSON(response)
}

func ResponseSuccess(c *fiber.Ctx, message string) error {
	return ResponseSuccessWithData(c, message, nil)
}

func ResponseSuccessWithData(c *fiber.Ctx, message string, data interface{}) error {
	response := Response{
		Status: true,
		Code:   http.StatusOK,
		Data:   data,
	}

	if strings.TrimSpace(message) == "" {
		message = http.StatusText(response.Code)
	}
	response.Message = message

	logSuccess(c, response.Code, response.Message)
	return c.Status(response.Code).JSON(response)
}

// ResponseJSON writes body as-is, for endpoints whose clients expect a flat object
// instead of the Response envelope.
func ResponseJSON(c *fiber.Ctx, code int, body interface{}) error {
	logSuccess(c, code, http.StatusText(code))
	return c.Status(code).JSON(body)
}

func ResponseSuccessWithHTML(c *fiber.Ctx, html string) error {
	logSuccess(c, http.StatusOK, http.StatusText(http.StatusOK))
	c.Type("html", "utf-8")
	return c.Status(http.StatusOK).SendString(html)
}

func ResponseSuccessWithPNG(c *fiber.Ctx, png []byte) error {
	logSuccess(c, http.StatusOK, http.StatusText(http.StatusOK))
	c.Type("png")
	return c.Status(http.StatusOK).Send(png)
}

func ResponseNotFound(c *fiber.Ctx, message string) error {
	return responseError(c, http.StatusNotFound, message)
}

func ResponseUnauthorized(c *fiber.Ctx, message string) error {
	return responseError(c, http.StatusUnauthorized, message)
}

func ResponseBadRequest(c *fiber.Ctx, message string) error {
	return responseError(c, http.StatusBadRequest, message)
}

func ResponseConflict(c *fiber.Ctx, message string) error {
	return responseError(c, http.StatusConflict, message)
}

func ResponseTooManyRequests(c *fiber.Ctx, message string) error {
	return responseError(c, http.StatusTooManyRequests, message)
}

func ResponseInternalError(c *fiber.Ctx, message string) error {
	return responseError(c, http.StatusInternalServerError, message)
}

func ResponseBadGateway(c *fiber.Ctx, message string) error {
	return responseError(c, http.StatusBadGateway, message)
}

func ResponseNoContent(c *fiber.Ctx) error {
	return c.SendStatus(http.StatusNoContent)
}
