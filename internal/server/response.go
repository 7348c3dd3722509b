package server

import "github.com/gofiber/fiber/v3"

type envelope struct {
	Status  int    `json:"status"`
	Message string `json:"message"`
	Data    any    `json:"data"`
}

func respond(c fiber.Ctx, status int, message string, data any) error {
	return c.Status(status).JSON(envelope{Status: status, Message: message, Data: data})
}
