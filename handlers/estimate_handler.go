package handlers

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/fenilmodi00/ipo-yield-backend/models"
	"github.com/fenilmodi00/ipo-yield-backend/services"
	"github.com/fenilmodi00/ipo-yield-backend/shared"
)

// EstimateInput is the body of an estimate request. Omitted fields take the
// configured defaults; aum is checked by the engine.
type EstimateInput struct {
	AUM          float64  `json:"aum"`
	RiskFreeRate *float64 `json:"risk_free_rate" validate:"omitempty,gte=0,lte=1"`
	Boards       []string `json:"boards" validate:"omitempty,max=5,dive,board"`
	WindowStart  string   `json:"window_start" validate:"omitempty,datetime=2006-01-02"`
	WindowEnd    string   `json:"window_end" validate:"omitempty,datetime=2006-01-02"`
}

// BatchEstimateInput is the body of a batch estimate request
type BatchEstimateInput struct {
	Requests []EstimateInput `json:"requests" validate:"required,min=1,dive"`
}

type EstimateHandler struct {
	Service  *services.EstimationService
	validate *validator.Validate
}

func NewEstimateHandler(service *services.EstimationService) *EstimateHandler {
	return &EstimateHandler{
		Service:  service,
		validate: newValidator(),
	}
}

// newValidator registers the "board" tag, which accepts enum codes and venue labels
func newValidator() *validator.Validate {
	validate := validator.New()
	_ = validate.RegisterValidation("board", func(fl validator.FieldLevel) bool {
		return models.ParseBoard(fl.Field().String()).IsKnown()
	})
	return validate
}

// Estimate returns the blended annualized return for one request
func (h *EstimateHandler) Estimate(c *fiber.Ctx) error {
	var input EstimateInput
	if err := c.BodyParser(&input); err != nil {
		return respondError(c, invalidRequest("Estimate", "Invalid request body", err.Error()))
	}

	request, err := h.toRequest(input, "Estimate")
	if err != nil {
		return respondError(c, err)
	}

	response, err := h.Service.Estimate(c.UserContext(), request)
	if err != nil {
		return respondError(c, err)
	}
	return respondData(c, response)
}

// EstimateBatch evaluates several requests concurrently, keeping their order
func (h *EstimateHandler) EstimateBatch(c *fiber.Ctx) error {
	var input BatchEstimateInput
	if err := c.BodyParser(&input); err != nil {
		return respondError(c, invalidRequest("EstimateBatch", "Invalid request body", err.Error()))
	}
	if err := h.validate.Struct(input); err != nil {
		return respondError(c, invalidRequest("EstimateBatch", "Invalid batch request", validationDetails(err)))
	}

	requests := make([]models.EstimationRequest, 0, len(input.Requests))
	for i, item := range input.Requests {
		request, err := h.toRequest(item, fmt.Sprintf("EstimateBatch[%d]", i))
		if err != nil {
			return respondError(c, err)
		}
		requests = append(requests, request)
	}

	items, err := h.Service.EstimateBatch(c.UserContext(), requests)
	if err != nil {
		return respondError(c, err)
	}
	return respondData(c, items)
}

// Recommendation buckets a total yield without running an estimate
func (h *EstimateHandler) Recommendation(c *fiber.Ctx) error {
	totalYield, ok := parseFinite(c.Query("total_yield"))
	if !ok {
		return respondError(c, invalidRequest("Recommendation", "total_yield must be a finite number", c.Query("total_yield")))
	}

	riskFreeRate := h.Service.Defaults().DefaultRiskFreeRate
	if raw := c.Query("risk_free_rate"); raw != "" {
		if riskFreeRate, ok = parseFinite(raw); !ok {
			return respondError(c, invalidRequest("Recommendation", "risk_free_rate must be a finite number", raw))
		}
	}

	excess := services.ExcessReturn(totalYield, riskFreeRate)
	return respondData(c, fiber.Map{
		"total_yield":            totalYield,
		"risk_free_rate":         riskFreeRate,
		"excess_return_pp":       excess,
		"recommended_allocation": services.AllocationForExcess(excess),
	})
}

// parseFinite parses a float and rejects NaN and infinities, which
// strconv accepts
func parseFinite(raw string) (float64, bool) {
	value, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(value) || math.IsInf(value, 0) {
		return 0, false
	}
	return value, true
}

func (h *EstimateHandler) toRequest(input EstimateInput, operation string) (models.EstimationRequest, error) {
	if err := h.validate.Struct(input); err != nil {
		return models.EstimationRequest{}, invalidRequest(operation, "Invalid estimate request", validationDetails(err))
	}

	defaults := h.Service.Defaults()
	defaultStart, defaultEnd, err := defaults.WindowBounds()
	if err != nil {
		return models.EstimationRequest{}, shared.WrapError(err, shared.ErrorCategoryConfiguration, shared.CodeInvalidWindow, "http-api", operation, false)
	}

	request := models.EstimationRequest{
		AUM:          input.AUM,
		RiskFreeRate: defaults.DefaultRiskFreeRate,
		WindowStart:  defaultStart,
		WindowEnd:    defaultEnd,
	}
	if input.RiskFreeRate != nil {
		request.RiskFreeRate = *input.RiskFreeRate
	}
	if input.WindowStart != "" {
		request.WindowStart, _ = time.Parse(shared.DateLayout, input.WindowStart)
	}
	if input.WindowEnd != "" {
		request.WindowEnd, _ = time.Parse(shared.DateLayout, input.WindowEnd)
	}
	for _, board := range input.Boards {
		request.Boards = append(request.Boards, models.ParseBoard(board))
	}

	return request, nil
}

// validationDetails flattens validator errors to "field: rule" strings
func validationDetails(err error) []string {
	validationErrors, ok := err.(validator.ValidationErrors)
	if !ok {
		return []string{err.Error()}
	}

	details := make([]string, 0, len(validationErrors))
	for _, fieldErr := range validationErrors {
		rule := fieldErr.Tag()
		if fieldErr.Param() != "" {
			rule += "=" + fieldErr.Param()
		}
		details = append(details, strings.TrimPrefix(fieldErr.Namespace(), "EstimateInput.")+": "+rule)
	}
	return details
}
