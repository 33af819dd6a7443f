package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sampleRequest struct {
	Currency string  `validate:"required,currency"`
	Platform string  `validate:"required,platform_name"`
	Amount   float64 `validate:"gt=0"`
}

func TestCustomValidators(t *testing.T) {
	assert.NoError(t, ValidateStruct(sampleRequest{Currency: "INR", Platform: "YouTube", Amount: 10}))

	err := ValidateStruct(sampleRequest{Currency: "inr", Platform: "myspace", Amount: 0})
	require.Error(t, err)

	details := GetValidationErrors(err)
	require.Len(t, details, 3)
	tags := map[string]string{}
	for _, d := range details {
		tags[d.Field] = d.Tag
	}
	assert.Equal(t, "currency", tags["currency"])
	assert.Equal(t, "platform_name", tags["platform"])
	assert.Equal(t, "gt", tags["amount"])
}

type boundsRequest struct {
	Audience int64 `validate:"gte=0"`
	Score    int   `validate:"gte=10"`
}

func TestGteMessageUsesBound(t *testing.T) {
	err := ValidateStruct(boundsRequest{Audience: -1, Score: 3})
	require.Error(t, err)

	messages := map[string]string{}
	for _, d := range GetValidationErrors(err) {
		messages[d.Field] = d.Message
	}
	assert.Equal(t, "Audience must be at least 0", messages["audience"])
	assert.Equal(t, "Score must be at least 10", messages["score"])
}
