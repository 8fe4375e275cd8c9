package middleware

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

type amountBody struct {
	Amount decimal.Decimal `json:"amount" binding:"required,gt=0"`
}

type dniBody struct {
	DNI string `json:"dni" binding:"required,dni"`
}

func bindJSON(body string, out interface{}) error {
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest("POST", "/", strings.NewReader(body))
	c.Request.Header.Set("Content-Type", "application/json")
	return c.ShouldBindJSON(out)
}

func TestSetupValidator_AmountMustBePositive(t *testing.T) {
	SetupValidator()

	var ok amountBody
	assert.NoError(t, bindJSON(`{"amount": "1500.50"}`, &ok))

	var negative amountBody
	assert.Error(t, bindJSON(`{"amount": "-10"}`, &negative))

	var zero amountBody
	assert.Error(t, bindJSON(`{"amount": "0"}`, &zero))
}

func TestSetupValidator_DNITag(t *testing.T) {
	SetupValidator()

	tests := []struct {
		name  string
		dni   string
		valid bool
	}{
		{"eight digits", "30123456", true},
		{"seven digits", "3012345", true},
		{"nine digits", "301234567", true},
		{"too short", "301234", false},
		{"too long", "3012345678", false},
		{"letters", "30A23456", false},
		{"separators", "30.123.456", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var body dniBody
			err := bindJSON(`{"dni": "`+tt.dni+`"}`, &body)
			if tt.valid {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}
