package handlers

import (
	"context"
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/meridianpay/meridian/app/dto"
	businessflow "github.com/meridianpay/meridian/business_flow"
	"github.com/meridianpay/meridian/utils"
)

type AuthHandlerInterface interface {
	Signup(c fiber.Ctx) error
	Login(c fiber.Ctx) error
	Refresh(c fiber.Ctx) error
}

type AuthHandler struct {
	flow      businessflow.AuthFlow
	validator *validator.Validate
}

func NewAuthHandler(flow businessflow.AuthFlow) *AuthHandler {
	return &AuthHandler{flow: flow, validator: validator.New()}
}

// Signup creates an account with an empty wallet
// @Summary Signup
// @Description Register a new account
// @Tags Auth
// @Accept json
// @Produce json
// @Param request body dto.SignupRequest true "Signup payload"
// @Success 201 {object} dto.APIResponse{data=dto.AuthResponse}
// @Failure 400 {object} dto.APIResponse
// @Failure 409 {object} dto.APIResponse
// @Router /api/v1/auth/signup [post]
func (h *AuthHandler) Signup(c fiber.Ctx) error {
	var req dto.SignupRequest
	if err := c.Bind().JSON(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.APIResponse{Success: false, Message: "Invalid request body", Error: dto.ErrorDetail{Code: "INVALID_REQUEST"}})
	}
	if err := h.validator.Struct(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.APIResponse{Success: false, Message: "Validation failed", Error: dto.ErrorDetail{Code: "VALIDATION_ERROR", Details: err.Error()}})
	}
	meta := businessflow.NewClientMetadata(c.IP(), c.Get("User-Agent"))
	result, err := h.flow.Signup(h.requestCtx(c, "/api/v1/auth/signup"), &businessflow.SignupRequest{
		Email:     req.Email,
		Password:  req.Password,
		FirstName: req.FirstName,
		LastName:  req.LastName,
	}, meta)
	if err != nil {
		return mapAuthErr(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(dto.APIResponse{Success: true, Message: "Account created", Data: dto.AuthResponse{
		AccessToken:  result.AccessToken,
		RefreshToken: result.RefreshToken,
		Email:        result.User.Email,
	}})
}

// Login authenticates an account and issues tokens
// @Summary Login
// @Description Authenticate and receive a token pair
// @Tags Auth
// @Accept json
// @Produce json
// @Param request body dto.LoginRequest true "Login payload"
// @Success 200 {object} dto.APIResponse{data=dto.AuthResponse}
// @Failure 401 {object} dto.APIResponse
// @Router /api/v1/auth/login [post]
func (h *AuthHandler) Login(c fiber.Ctx) error {
	var req dto.LoginRequest
	if err := c.Bind().JSON(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.APIResponse{Success: false, Message: "Invalid request body", Error: dto.ErrorDetail{Code: "INVALID_REQUEST"}})
	}
	if err := h.validator.Struct(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.APIResponse{Success: false, Message: "Validation failed", Error: dto.ErrorDetail{Code: "VALIDATION_ERROR", Details: err.Error()}})
	}
	meta := businessflow.NewClientMetadata(c.IP(), c.Get("User-Agent"))
	result, err := h.flow.Login(h.requestCtx(c, "/api/v1/auth/login"), &businessflow.LoginRequest{
		Email:    req.Email,
		Password: req.Password,
	}, meta)
	if err != nil {
		return mapAuthErr(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(dto.APIResponse{Success: true, Message: "Logged in", Data: dto.AuthResponse{
		AccessToken:  result.AccessToken,
		RefreshToken: result.RefreshToken,
		Email:        result.User.Email,
	}})
}

// Refresh exchanges a refresh token for a new token pair
// @Summary Refresh Tokens
// @Description Exchange a refresh token for new tokens
// @Tags Auth
// @Accept json
// @Produce json
// @Param request body dto.RefreshRequest true "Refresh payload"
// @Success 200 {object} dto.APIResponse{data=dto.AuthResponse}
// @Failure 401 {object} dto.APIResponse
// @Router /api/v1/auth/refresh [post]
func (h *AuthHandler) Refresh(c fiber.Ctx) error {
	var req dto.RefreshRequest
	if err := c.Bind().JSON(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.APIResponse{Success: false, Message: "Invalid request body", Error: dto.ErrorDetail{Code: "INVALID_REQUEST"}})
	}
	if err := h.validator.Struct(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.APIResponse{Success: false, Message: "Validation failed", Error: dto.ErrorDetail{Code: "VALIDATION_ERROR", Details: err.Error()}})
	}
	result, err := h.flow.Refresh(h.requestCtx(c, "/api/v1/auth/refresh"), req.RefreshToken)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(dto.APIResponse{Success: false, Message: "Invalid refresh token", Error: dto.ErrorDetail{Code: "TOKEN_INVALID"}})
	}
	return c.Status(fiber.StatusOK).JSON(dto.APIResponse{Success: true, Message: "Tokens refreshed", Data: dto.AuthResponse{
		AccessToken:  result.AccessToken,
		RefreshToken: result.RefreshToken,
	}})
}

func (h *AuthHandler) requestCtx(c fiber.Ctx, endpoint string) context.Context {
	return context.WithValue(context.Background(), utils.EndpointKey, endpoint)
}

func mapAuthErr(c fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, businessflow.ErrEmailTaken):
		return c.Status(fiber.StatusConflict).JSON(dto.APIResponse{Success: false, Message: "Email already registered", Error: dto.ErrorDetail{Code: "EMAIL_TAKEN"}})
	case errors.Is(err, businessflow.ErrInvalidCredentials):
		return c.Status(fiber.StatusUnauthorized).JSON(dto.APIResponse{Success: false, Message: "Invalid email or password", Error: dto.ErrorDetail{Code: "INVALID_CREDENTIALS"}})
	case errors.Is(err, businessflow.ErrUserInactive):
		return c.Status(fiber.StatusForbidden).JSON(dto.APIResponse{Success: false, Message: "Account inactive", Error: dto.ErrorDetail{Code: "ACCOUNT_INACTIVE"}})
	default:
		return c.Status(fiber.StatusInternalServerError).JSON(dto.APIResponse{Success: false, Message: "Authentication failed", Error: dto.ErrorDetail{Code: "AUTH_OPERATION_FAILED", Details: err.Error()}})
	}
}
