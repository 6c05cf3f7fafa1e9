package http

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/jhoicas/wsfe-api/internal/application/dto"
	"github.com/jhoicas/wsfe-api/internal/domain"
	domafip "github.com/jhoicas/wsfe-api/internal/domain/afip"
	"github.com/jhoicas/wsfe-api/internal/infrastructure/afip"
)

// writeError traduce errores de dominio y de AFIP a status HTTP.
func writeError(c *fiber.Ctx, err error) error {
	status, code := classify(err)
	return c.Status(status).JSON(dto.ErrorResponse{Code: code, Message: err.Error()})
}

func classify(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return fiber.StatusNotFound, "NOT_FOUND"
	case errors.Is(err, domain.ErrAlreadyAuthorized):
		return fiber.StatusConflict, "ALREADY_AUTHORIZED"
	case errors.Is(err, domain.ErrConflict):
		return fiber.StatusConflict, "CONFLICT"
	case errors.Is(err, domain.ErrInvalidInput):
		return fiber.StatusBadRequest, "VALIDATION"
	case errors.Is(err, domafip.ErrInvalidDocument), afip.IsMappingError(err):
		return fiber.StatusUnprocessableEntity, "INVALID_DOCUMENT"
	}

	var serviceErr *afip.ServiceError
	if errors.As(err, &serviceErr) {
		if serviceErr.NotFound() {
			return fiber.StatusNotFound, "AFIP_NOT_FOUND"
		}
		return fiber.StatusBadGateway, "AFIP_SERVICE_ERROR"
	}
	var signErr *afip.SigningError
	if errors.As(err, &signErr) {
		return fiber.StatusInternalServerError, "SIGNING_ERROR"
	}
	var authErr *afip.AuthenticationError
	if errors.As(err, &authErr) {
		return fiber.StatusBadGateway, "AFIP_AUTH_ERROR"
	}
	var transportErr *afip.TransportError
	if errors.As(err, &transportErr) {
		if transportErr.Timeout {
			return fiber.StatusGatewayTimeout, "AFIP_TIMEOUT"
		}
		return fiber.StatusBadGateway, "AFIP_UNAVAILABLE"
	}
	var protocolErr *afip.ProtocolError
	if errors.As(err, &protocolErr) {
		return fiber.StatusBadGateway, "AFIP_PROTOCOL_ERROR"
	}
	return fiber.StatusInternalServerError, "INTERNAL"
}
